package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/auth"
	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/database"
	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/errs"
	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/models"
	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/timesheet"

	"github.com/gofiber/fiber/v2"
)

func actorFromCtx(c *fiber.Ctx) (Actor, error) {
	id, err := auth.CurrentUserID(c)
	if err != nil {
		return Actor{}, err
	}
	var user models.User
	if err := database.DB.First(&user, id).Error; err != nil {
		return Actor{}, fiber.NewError(fiber.StatusForbidden, "could not resolve user")
	}
	return Actor{ID: id, Name: user.Name}, nil
}

func toFiberError(err error) error {
	if errs.KindOf(err) == 0 {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return fiber.NewError(errs.HTTPStatus(err), err.Error())
}

func parseIDList(s string) []uint {
	if s == "" {
		return nil
	}
	var out []uint
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var id uint
		if _, err := fmt.Sscan(part, &id); err == nil && id > 0 {
			out = append(out, id)
		}
	}
	return out
}

func parseRoleList(s string) []models.UserRole {
	if s == "" {
		return nil
	}
	var out []models.UserRole
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, models.UserRole(part))
		}
	}
	return out
}

// GET /api/billing/aggregation
// ?startDate=2026-01-01&endDate=2026-01-31&view=monthly&groupBy=project
// &projectIds=1,2&clientIds=3&roles=employee,lead&search=acme&timeoutSeconds=10
func AggregationHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		params, err := aggregateParamsFromQuery(c)
		if err != nil {
			return err
		}

		ctx := context.Context(c.Context())
		if secs := c.QueryInt("timeoutSeconds"); secs > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(secs)*time.Second)
			defer cancel()
		}

		return c.JSON(Aggregate(ctx, database.DB, params))
	}
}

// GET /api/billing/aggregation/export
// Same query surface as the aggregation endpoint, rendered as xlsx.
func AggregationExportHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		params, err := aggregateParamsFromQuery(c)
		if err != nil {
			return err
		}

		res := Aggregate(c.Context(), database.DB, params)
		if res.Error != "" {
			return fiber.NewError(fiber.StatusServiceUnavailable, res.Error)
		}

		f, err := BuildAggregationWorkbook(res)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not build workbook")
		}

		c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Set(fiber.HeaderContentDisposition, `attachment; filename="billing-aggregation.xlsx"`)
		return f.Write(c.Response().BodyWriter())
	}
}

func aggregateParamsFromQuery(c *fiber.Ctx) (AggregateParams, error) {
	view := ViewGranularity(c.Query("view", string(ViewMonthly)))
	switch view {
	case ViewWeekly, ViewMonthly, ViewTimeline:
	default:
		return AggregateParams{}, fiber.NewError(fiber.StatusBadRequest, "view must be weekly, monthly or timeline")
	}

	groupBy := GroupBy(c.Query("groupBy", string(GroupByProject)))
	switch groupBy {
	case GroupByProject, GroupByTask, GroupByUser:
	default:
		return AggregateParams{}, fiber.NewError(fiber.StatusBadRequest, "groupBy must be project, task or user")
	}

	params := AggregateParams{
		View:       view,
		GroupBy:    groupBy,
		ProjectIDs: parseIDList(c.Query("projectIds")),
		ClientIDs:  parseIDList(c.Query("clientIds")),
		Roles:      parseRoleList(c.Query("roles")),
		Search:     c.Query("search"),
	}

	// Timeline resolves its own range from project dates.
	if view != ViewTimeline {
		start, err := time.Parse("2006-01-02", c.Query("startDate"))
		if err != nil {
			return AggregateParams{}, fiber.NewError(fiber.StatusBadRequest, "startDate must be YYYY-MM-DD")
		}
		end, err := time.Parse("2006-01-02", c.Query("endDate"))
		if err != nil {
			return AggregateParams{}, fiber.NewError(fiber.StatusBadRequest, "endDate must be YYYY-MM-DD")
		}
		params.StartDate = start
		params.EndDate = end
	}

	return params, nil
}

// GET /api/billing/breakdown?projectId=1&userId=2&startDate=...&endDate=...&view=monthly
func BreakdownHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		projectID := uint(c.QueryInt("projectId"))
		userID := uint(c.QueryInt("userId"))
		if projectID == 0 || userID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "projectId and userId are required")
		}

		start, err := time.Parse("2006-01-02", c.Query("startDate"))
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "startDate must be YYYY-MM-DD")
		}
		end, err := time.Parse("2006-01-02", c.Query("endDate"))
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "endDate must be YYYY-MM-DD")
		}

		view := ViewGranularity(c.Query("view", string(ViewMonthly)))

		res, err := Breakdown(c.Context(), database.DB, projectID, userID, start, end, view)
		if err != nil {
			return toFiberError(err)
		}
		return c.JSON(res)
	}
}

type UpsertAdjustmentRequest struct {
	UserID        uint    `json:"user_id"`
	ProjectID     *uint   `json:"project_id"`
	TaskID        *uint   `json:"task_id"`
	StartDate     string  `json:"start_date"`
	EndDate       string  `json:"end_date"`
	BillableHours float64 `json:"billable_hours"`
	// Optional worked-hours snapshot; computed from current entries when absent.
	TotalHours *float64 `json:"total_hours"`
	Reason     string   `json:"reason"`
}

// PUT /api/billing/adjustments
// The scope is implied by the target: a project reference makes it a
// project-scope correction, its absence a timesheet-scope one.
func UpsertAdjustmentHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := actorFromCtx(c)
		if err != nil {
			return err
		}

		var body UpsertAdjustmentRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if body.UserID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "user_id is required")
		}

		start, err := time.Parse("2006-01-02", body.StartDate)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "start_date must be YYYY-MM-DD")
		}
		end, err := time.Parse("2006-01-02", body.EndDate)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "end_date must be YYYY-MM-DD")
		}

		week := timesheet.WeekStart(start)
		var ts models.Timesheet
		if err := database.DB.
			Where("user_id = ? AND week_start_date = ?", body.UserID, week).
			First(&ts).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "no timesheet for this user and week")
		}

		scope := models.ScopeTimesheet
		if body.ProjectID != nil && *body.ProjectID != 0 {
			scope = models.ScopeProject
		}

		worked := 0.0
		if body.TotalHours != nil {
			worked = *body.TotalHours
		} else {
			q := database.DB.Model(&models.TimeEntry{}).
				Where("timesheet_id = ? AND deleted_at IS NULL", ts.ID)
			if scope == models.ScopeProject {
				q = q.Where("project_id = ?", *body.ProjectID)
			}
			if err := q.Select("COALESCE(SUM(hours), 0)").Scan(&worked).Error; err != nil {
				return fiber.NewError(fiber.StatusInternalServerError, "could not compute worked hours")
			}
		}

		adj, err := UpsertAdjustment(database.DB, UpsertAdjustmentInput{
			TimesheetID: ts.ID,
			UserID:      body.UserID,
			Scope:       scope,
			ProjectID:   body.ProjectID,
			TaskID:      body.TaskID,
			PeriodStart: start,
			PeriodEnd:   end,
			WorkedHours: worked,
			Delta:       body.BillableHours - worked,
			Reason:      body.Reason,
		}, actor)
		if err != nil {
			return toFiberError(err)
		}

		return c.JSON(adj)
	}
}

// DELETE /api/billing/adjustments/:id
func DeleteAdjustmentHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid adjustment id")
		}

		actor, err := actorFromCtx(c)
		if err != nil {
			return err
		}

		if err := SoftDeleteAdjustment(database.DB, uint(id), actor); err != nil {
			return toFiberError(err)
		}
		return c.JSON(fiber.Map{"message": "adjustment deleted"})
	}
}

type GenerateSnapshotsRequest struct {
	WeekStartDate string `json:"week_start_date"`
}

// POST /api/billing/snapshots/generate
func GenerateSnapshotsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := actorFromCtx(c)
		if err != nil {
			return err
		}

		var body GenerateSnapshotsRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		week, err := time.Parse("2006-01-02", body.WeekStartDate)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "week_start_date must be YYYY-MM-DD")
		}

		snaps, err := GenerateWeeklySnapshots(database.DB, timesheet.WeekStart(week), actor)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}

		return c.Status(fiber.StatusCreated).JSON(snaps)
	}
}

// GET /api/billing/snapshots?userId=1&weekStartDate=2026-01-05
func ListSnapshotsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		q := database.DB.Model(&models.BillingSnapshot{}).
			Where("deleted_at IS NULL AND is_hard_deleted = ?", false)
		if uid := c.QueryInt("userId"); uid > 0 {
			q = q.Where("user_id = ?", uid)
		}
		if weekStr := c.Query("weekStartDate"); weekStr != "" {
			week, err := time.Parse("2006-01-02", weekStr)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "weekStartDate must be YYYY-MM-DD")
			}
			q = q.Where("week_start = ?", timesheet.WeekStart(week))
		}

		var snaps []models.BillingSnapshot
		if err := q.Order("week_start DESC, user_id ASC").Find(&snaps).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not list snapshots")
		}
		return c.JSON(snaps)
	}
}

// DELETE /api/billing/snapshots/:id
func DeleteSnapshotHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid snapshot id")
		}
		actor, err := actorFromCtx(c)
		if err != nil {
			return err
		}
		if err := SoftDeleteSnapshot(database.DB, uint(id), actor); err != nil {
			return toFiberError(err)
		}
		return c.JSON(fiber.Map{"message": "snapshot deleted"})
	}
}

// DELETE /api/billing/snapshots/:id/permanent
func HardDeleteSnapshotHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid snapshot id")
		}
		actor, err := actorFromCtx(c)
		if err != nil {
			return err
		}
		if err := HardDeleteSnapshot(database.DB, uint(id), actor); err != nil {
			return toFiberError(err)
		}
		return c.JSON(fiber.Map{"message": "snapshot permanently deleted"})
	}
}
