package timesheet

import (
	"fmt"
	"time"

	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/audit"
	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/auth"
	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/database"
	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/errs"
	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/models"

	"github.com/gofiber/fiber/v2"
)

// WeekStart truncates t to the Monday of its week.
func WeekStart(t time.Time) time.Time {
	t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := int(t.Weekday())
	if offset == 0 {
		offset = 7
	}
	return t.AddDate(0, 0, -offset+1)
}

type CreateTimesheetRequest struct {
	UserID        uint   `json:"user_id"` // optional, defaults to the caller
	WeekStartDate string `json:"week_start_date"`
}

type UpdateStatusRequest struct {
	Status models.TimesheetStatus `json:"status"`
}

type CreateEntryRequest struct {
	Category      models.EntryCategory `json:"category"`
	Date          string               `json:"date"` // YYYY-MM-DD
	Hours         float64              `json:"hours"`
	IsBillable    bool                 `json:"is_billable"`
	BillableHours *float64             `json:"billable_hours"`
	HourlyRate    *float64             `json:"hourly_rate"`

	ProjectID       *uint  `json:"project_id"`
	TaskID          *uint  `json:"task_id"`
	TaskDescription string `json:"task_description"`

	LeaveSession models.LeaveSession `json:"leave_session"`
	HolidayName  string              `json:"holiday_name"`

	ActivityDescription string `json:"activity_description"`
}

func toFiberError(err error) error {
	switch errs.KindOf(err) {
	case 0:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	default:
		return fiber.NewError(errs.HTTPStatus(err), err.Error())
	}
}

// canTouchTimesheet: employees and leads only write into their own weeks.
func canTouchTimesheet(c *fiber.Ctx, ts *models.Timesheet) error {
	roleVal := c.Locals(auth.CtxUserRoleKey)
	role, ok := roleVal.(models.UserRole)
	if !ok {
		return fiber.NewError(fiber.StatusForbidden, "could not resolve role")
	}
	if role == models.RoleAdmin || role == models.RoleManagement {
		return nil
	}
	uid, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	if ts.UserID != uid {
		return fiber.NewError(fiber.StatusForbidden, "not your timesheet")
	}
	return nil
}

// POST /api/timesheets
func CreateTimesheetHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateTimesheetRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		day, err := time.Parse("2006-01-02", body.WeekStartDate)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "week_start_date must be YYYY-MM-DD")
		}

		userID := body.UserID
		if userID == 0 {
			userID, err = auth.CurrentUserID(c)
			if err != nil {
				return err
			}
		}

		var user models.User
		if err := database.DB.First(&user, userID).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "user not found")
		}

		ts := models.Timesheet{
			UserID:        userID,
			WeekStartDate: WeekStart(day),
			Status:        models.StatusDraft,
		}
		if err := canTouchTimesheet(c, &ts); err != nil {
			return err
		}

		if err := database.DB.Create(&ts).Error; err != nil {
			return fiber.NewError(fiber.StatusConflict, "timesheet already exists for this user and week")
		}

		return c.Status(fiber.StatusCreated).JSON(ts)
	}
}

// GET /api/timesheets?user_id=1&status=submitted
func ListTimesheetsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		q := database.DB.Model(&models.Timesheet{})
		if uid := c.QueryInt("user_id"); uid > 0 {
			q = q.Where("user_id = ?", uid)
		}
		if status := c.Query("status"); status != "" {
			q = q.Where("status = ?", status)
		}

		var sheets []models.Timesheet
		if err := q.Order("week_start_date DESC").Find(&sheets).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not list timesheets")
		}
		return c.JSON(sheets)
	}
}

// PUT /api/timesheets/:id/status
// Stand-in for the external approval workflow; the engine itself only reads
// the status back as a filter.
func UpdateStatusHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid timesheet id")
		}

		var body UpdateStatusRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		switch body.Status {
		case models.StatusDraft, models.StatusSubmitted, models.StatusApproved,
			models.StatusRejected, models.StatusReopened:
		default:
			return fiber.NewError(fiber.StatusBadRequest, "invalid status")
		}

		var ts models.Timesheet
		if err := database.DB.First(&ts, id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "timesheet not found")
		}

		ts.Status = body.Status
		if err := database.DB.Save(&ts).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not update status")
		}

		return c.JSON(ts)
	}
}

// POST /api/timesheets/:id/entries
func CreateEntryHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid timesheet id")
		}

		var ts models.Timesheet
		if err := database.DB.First(&ts, id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "timesheet not found")
		}
		if err := canTouchTimesheet(c, &ts); err != nil {
			return err
		}
		if !ts.Editable() {
			return fiber.NewError(fiber.StatusForbidden, fmt.Sprintf("timesheet is %s and cannot be edited", ts.Status))
		}

		var body CreateEntryRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		day, err := time.Parse("2006-01-02", body.Date)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "date must be YYYY-MM-DD")
		}
		if day.Before(ts.WeekStartDate) || day.After(ts.WeekStartDate.AddDate(0, 0, 6)) {
			return fiber.NewError(fiber.StatusBadRequest, "date is outside the timesheet week")
		}

		normalized, err := Normalize(EntryInput{
			Category:            body.Category,
			Date:                day,
			Hours:               body.Hours,
			IsBillable:          body.IsBillable,
			BillableHours:       body.BillableHours,
			HourlyRate:          body.HourlyRate,
			ProjectID:           body.ProjectID,
			TaskID:              body.TaskID,
			TaskDescription:     body.TaskDescription,
			LeaveSession:        body.LeaveSession,
			HolidayName:         body.HolidayName,
			ActivityDescription: body.ActivityDescription,
		})
		if err != nil {
			return toFiberError(err)
		}

		// Referenced project/task must exist before the row lands.
		if pw, ok := normalized.Payload.(ProjectWork); ok {
			var project models.Project
			if err := database.DB.First(&project, pw.ProjectID).Error; err != nil {
				return fiber.NewError(fiber.StatusNotFound, "project not found")
			}
			if pw.TaskID != nil {
				var task models.Task
				if err := database.DB.Where("id = ? AND project_id = ?", *pw.TaskID, pw.ProjectID).First(&task).Error; err != nil {
					return fiber.NewError(fiber.StatusNotFound, "task not found on this project")
				}
			}
		}

		row := normalized.Record(ts.ID, ts.UserID)
		if err := database.DB.Create(&row).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not create entry")
		}

		return c.Status(fiber.StatusCreated).JSON(row)
	}
}

// GET /api/timesheets/:id/entries
func ListEntriesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid timesheet id")
		}

		var entries []models.TimeEntry
		if err := database.DB.
			Where("timesheet_id = ? AND deleted_at IS NULL", id).
			Order("date ASC, id ASC").
			Find(&entries).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not list entries")
		}
		return c.JSON(entries)
	}
}

// DELETE /api/entries/:id
// Soft delete only; billing history stays reconstructible.
func DeleteEntryHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid entry id")
		}

		var entry models.TimeEntry
		if err := database.DB.Where("id = ? AND deleted_at IS NULL", id).First(&entry).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "entry not found")
		}

		var ts models.Timesheet
		if err := database.DB.First(&ts, entry.TimesheetID).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "timesheet not found")
		}
		if err := canTouchTimesheet(c, &ts); err != nil {
			return err
		}
		if !ts.Editable() {
			return fiber.NewError(fiber.StatusForbidden, fmt.Sprintf("timesheet is %s and cannot be edited", ts.Status))
		}

		actorID, err := auth.CurrentUserID(c)
		if err != nil {
			return err
		}

		now := time.Now()
		entry.DeletedAt = &now
		entry.DeletedBy = &actorID
		if err := database.DB.Save(&entry).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not delete entry")
		}

		var actor models.User
		database.DB.First(&actor, actorID)
		_ = audit.WriteLog(audit.LogOptions{
			UserID:      actorID,
			UserName:    actor.Name,
			EntityType:  "time_entry",
			EntityID:    entry.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("Time entry %d removed from timesheet %d", entry.ID, ts.ID),
			Before:      entry,
		})

		return c.JSON(fiber.Map{"message": "entry deleted"})
	}
}
