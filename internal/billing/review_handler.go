package billing

import (
	"errors"
	"fmt"
	"time"

	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/audit"
	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/database"
	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/models"
	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/timesheet"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type RecordReviewRequest struct {
	ProjectID           uint    `json:"project_id"`
	UserID              uint    `json:"user_id"`
	WeekStartDate       string  `json:"week_start_date"`
	VerifiedWorkedHours float64 `json:"verified_worked_hours"`
	ManagerAdjustment   float64 `json:"manager_adjustment"`
}

// POST /api/reviews
// Records the verified hours baseline for one (project, user, week). A second
// review of the same tuple replaces the first; the verified billable figure is
// always derived here, never taken from the caller.
func RecordReviewHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := actorFromCtx(c)
		if err != nil {
			return err
		}

		var body RecordReviewRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if body.ProjectID == 0 || body.UserID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "project_id and user_id are required")
		}
		if body.VerifiedWorkedHours < 0 {
			return fiber.NewError(fiber.StatusBadRequest, "verified_worked_hours cannot be negative")
		}

		weekDate, err := time.Parse("2006-01-02", body.WeekStartDate)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "week_start_date must be YYYY-MM-DD")
		}
		week := timesheet.WeekStart(weekDate)

		var project models.Project
		if err := database.DB.First(&project, body.ProjectID).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "project not found")
		}
		if IsProjectLocked(project, time.Now()) {
			return fiber.NewError(fiber.StatusForbidden, "project is locked for billing changes")
		}
		var user models.User
		if err := database.DB.First(&user, body.UserID).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "user not found")
		}

		verifiedBillable := body.VerifiedWorkedHours + body.ManagerAdjustment
		if verifiedBillable < 0 {
			verifiedBillable = 0
		}

		var review models.TimesheetReview
		err = database.DB.
			Where("project_id = ? AND user_id = ? AND week_start_date = ?", body.ProjectID, body.UserID, week).
			First(&review).Error

		action := models.AuditActionUpdate
		var before any
		switch {
		case err == nil:
			before = review
		case errors.Is(err, gorm.ErrRecordNotFound):
			action = models.AuditActionCreate
			review = models.TimesheetReview{
				ProjectID:     body.ProjectID,
				UserID:        body.UserID,
				WeekStartDate: week,
			}
		default:
			return fiber.NewError(fiber.StatusInternalServerError, "could not look up review")
		}

		review.VerifiedWorkedHours = body.VerifiedWorkedHours
		review.ManagerAdjustment = body.ManagerAdjustment
		review.VerifiedBillableHours = verifiedBillable
		review.VerifiedBy = actor.ID
		review.VerifiedAt = time.Now()

		if err := database.DB.Save(&review).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not save review")
		}

		_ = audit.WriteLog(audit.LogOptions{
			UserID:     actor.ID,
			UserName:   actor.Name,
			EntityType: "timesheet_review",
			EntityID:   review.ID,
			Action:     action,
			Description: fmt.Sprintf("Verified %.2fh (%+.2fh adjustment) for user %d on project %d, week %s",
				body.VerifiedWorkedHours, body.ManagerAdjustment, body.UserID, body.ProjectID, week.Format("2006-01-02")),
			Before: before,
			After:  review,
		})

		return c.JSON(review)
	}
}

// GET /api/reviews?projectId=1&userId=2
func ListReviewsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		q := database.DB.Model(&models.TimesheetReview{})
		if pid := c.QueryInt("projectId"); pid > 0 {
			q = q.Where("project_id = ?", pid)
		}
		if uid := c.QueryInt("userId"); uid > 0 {
			q = q.Where("user_id = ?", uid)
		}

		var reviews []models.TimesheetReview
		if err := q.Order("week_start_date DESC").Find(&reviews).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not list reviews")
		}
		return c.JSON(reviews)
	}
}
