package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/errs"
	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/models"
	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/timesheet"

	"gorm.io/gorm"
)

type BreakdownRow struct {
	PeriodStart   time.Time `json:"period_start"`
	PeriodEnd     time.Time `json:"period_end"`
	Label         string    `json:"label"`
	WorkedHours   float64   `json:"worked_hours"`
	BillableHours float64   `json:"billable_hours"`
	Amount        float64   `json:"amount"`
}

type BreakdownResult struct {
	ProjectID   uint            `json:"project_id"`
	UserID      uint            `json:"user_id"`
	Granularity ViewGranularity `json:"granularity"`
	Periods     []BreakdownRow  `json:"periods"`
	Totals      BreakdownRow    `json:"totals"`
	Error       string          `json:"error,omitempty"`
}

// Breakdown drills one (project, user) pair into period sub-totals, always
// one level finer than the caller's view: a monthly view breaks into weeks, a
// timeline view into months. A weekly view has nothing finer to offer and is
// rejected. Per-week merging matches the aggregation engine cell for cell, so
// the trailing totals row equals the single-call aggregate for the same tuple.
func Breakdown(ctx context.Context, db *gorm.DB, projectID, userID uint, start, end time.Time, view ViewGranularity) (BreakdownResult, error) {
	var granularity ViewGranularity
	switch view {
	case ViewMonthly:
		granularity = ViewWeekly
	case ViewTimeline:
		granularity = ViewMonthly
	case ViewWeekly:
		return BreakdownResult{}, errs.Validationf("already at weekly granularity, nothing finer to break down into")
	default:
		return BreakdownResult{}, errs.Validationf("invalid view %q", string(view))
	}

	res := BreakdownResult{ProjectID: projectID, UserID: userID, Granularity: granularity}
	db = db.WithContext(ctx)

	var project models.Project
	if err := db.First(&project, projectID).Error; err != nil {
		res.Error = fmt.Sprintf("billing breakdown degraded: project %d not found", projectID)
		return res, nil
	}
	var user models.User
	if err := db.First(&user, userID).Error; err != nil {
		res.Error = fmt.Sprintf("billing breakdown degraded: user %d not found", userID)
		return res, nil
	}
	rate := resolveRate(nil, &project, user)

	var entries []models.TimeEntry
	if err := db.
		Where("deleted_at IS NULL AND project_id = ? AND user_id = ?", projectID, userID).
		Where("category IN ?", []models.EntryCategory{models.CategoryProject, models.CategoryTraining}).
		Where("date >= ? AND date <= ?", start, end).
		Where("timesheet_id IN (?)", nonDraftTimesheets(db)).
		Find(&entries).Error; err != nil {
		res.Error = fmt.Sprintf("billing breakdown degraded: could not load entries: %v", err)
		return res, nil
	}

	type weekCell struct {
		timesheetID uint
		worked      float64
		billable    float64
	}
	weeks := make(map[time.Time]*weekCell)
	for _, e := range entries {
		wk := timesheet.WeekStart(e.Date)
		cl, ok := weeks[wk]
		if !ok {
			cl = &weekCell{timesheetID: e.TimesheetID}
			weeks[wk] = cl
		}
		cl.worked += e.Hours
		cl.billable += e.BillableHours
	}

	weekLow := timesheet.WeekStart(start)

	var adjRows []models.BillingAdjustment
	if err := db.Model(&models.BillingAdjustment{}).
		Joins("JOIN timesheets ON timesheets.id = billing_adjustments.timesheet_id").
		Where("billing_adjustments.deleted_at IS NULL").
		Where("billing_adjustments.scope = ? AND billing_adjustments.project_id = ? AND billing_adjustments.user_id = ?",
			models.ScopeProject, projectID, userID).
		Where("timesheets.status <> ?", models.StatusDraft).
		Where("timesheets.week_start_date >= ? AND timesheets.week_start_date <= ?", weekLow, end).
		Find(&adjRows).Error; err != nil {
		res.Error = fmt.Sprintf("billing breakdown degraded: could not load adjustments: %v", err)
		return res, nil
	}
	adjByTimesheet := make(map[uint]models.BillingAdjustment, len(adjRows))
	for _, a := range adjRows {
		adjByTimesheet[a.TimesheetID] = a
		// Zero-entry weeks with a live adjustment still produce a period row.
		var ts models.Timesheet
		if err := db.First(&ts, a.TimesheetID).Error; err != nil {
			continue
		}
		wk := StartOfDay(ts.WeekStartDate)
		if _, ok := weeks[wk]; !ok {
			weeks[wk] = &weekCell{timesheetID: a.TimesheetID}
		}
	}

	var reviewRows []models.TimesheetReview
	if err := db.
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Where("week_start_date >= ? AND week_start_date <= ?", weekLow, end).
		Find(&reviewRows).Error; err != nil {
		res.Error = fmt.Sprintf("billing breakdown degraded: could not load reviews: %v", err)
		return res, nil
	}
	reviewsByWeek := make(map[time.Time]models.TimesheetReview, len(reviewRows))
	for _, r := range reviewRows {
		wk := StartOfDay(r.WeekStartDate)
		reviewsByWeek[wk] = r
		if _, ok := weeks[wk]; ok {
			continue
		}
		// Verified weeks whose entries are gone still produce a period row.
		var ts models.Timesheet
		if err := db.
			Where("user_id = ? AND week_start_date = ? AND status <> ?", userID, wk, models.StatusDraft).
			First(&ts).Error; err != nil {
			continue
		}
		weeks[wk] = &weekCell{timesheetID: ts.ID}
	}

	var periods []Period
	if granularity == ViewWeekly {
		periods = weeklyPeriods(start, end)
	} else {
		periods = monthlyPeriods(start, end)
	}
	rows := make([]BreakdownRow, len(periods))
	for i, p := range periods {
		rows[i] = BreakdownRow{PeriodStart: p.Start, PeriodEnd: p.End, Label: p.Label}
	}

	for wk, cl := range weeks {
		var adjPtr *models.BillingAdjustment
		if a, ok := adjByTimesheet[cl.timesheetID]; ok {
			adjPtr = &a
		}
		var verPtr *VerificationInfo
		if r, ok := reviewsByWeek[wk]; ok {
			v := verificationFromReview(r)
			verPtr = &v
		}
		effective := EffectiveBillable(cl.worked, cl.billable, adjPtr, verPtr)

		idx := periodIndex(periods, wk)
		if idx < 0 {
			continue
		}
		rows[idx].WorkedHours += cl.worked
		rows[idx].BillableHours += effective
		rows[idx].Amount += effective * rate
	}

	res.Periods = rows
	res.Totals = BreakdownRow{Label: "Total"}
	for _, r := range rows {
		res.Totals.WorkedHours += r.WorkedHours
		res.Totals.BillableHours += r.BillableHours
		res.Totals.Amount += r.Amount
	}

	return res, nil
}
