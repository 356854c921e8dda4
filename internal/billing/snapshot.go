package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/audit"
	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/errs"
	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// snapshotProjectDetail is one line of the opaque detail payload.
type snapshotProjectDetail struct {
	ProjectID     uint    `json:"project_id"`
	WorkedHours   float64 `json:"worked_hours"`
	BillableHours float64 `json:"billable_hours"`
}

type snapshotDetails struct {
	Projects                 []snapshotProjectDetail `json:"projects"`
	TimesheetAdjustmentHours float64                 `json:"timesheet_adjustment_hours"`
	HoursByCategory          map[string]float64      `json:"hours_by_category"`
}

// timesheetTotals computes one timesheet's billing figures from current
// state, under the same precedence order the aggregation engine applies.
func timesheetTotals(db *gorm.DB, ts models.Timesheet) (totalHours, billableHours float64, details snapshotDetails, err error) {
	var entries []models.TimeEntry
	if err = db.
		Where("timesheet_id = ? AND deleted_at IS NULL", ts.ID).
		Find(&entries).Error; err != nil {
		return 0, 0, details, fmt.Errorf("could not load entries: %w", err)
	}

	details.HoursByCategory = make(map[string]float64)

	type projAgg struct {
		worked   float64
		billable float64
	}
	byProject := make(map[uint]*projAgg)
	for _, e := range entries {
		totalHours += e.Hours
		details.HoursByCategory[string(e.Category)] += e.Hours
		if e.ProjectID == nil {
			continue
		}
		pa, ok := byProject[*e.ProjectID]
		if !ok {
			pa = &projAgg{}
			byProject[*e.ProjectID] = pa
		}
		pa.worked += e.Hours
		pa.billable += e.BillableHours
	}

	var adjRows []models.BillingAdjustment
	if err = db.
		Where("timesheet_id = ? AND deleted_at IS NULL", ts.ID).
		Find(&adjRows).Error; err != nil {
		return 0, 0, details, fmt.Errorf("could not load adjustments: %w", err)
	}
	projAdjustments := make(map[uint]models.BillingAdjustment)
	var timesheetDelta float64
	for _, a := range adjRows {
		if a.Scope == models.ScopeTimesheet {
			timesheetDelta += a.AdjustmentHours
			continue
		}
		if a.ProjectID != nil {
			projAdjustments[*a.ProjectID] = a
			if _, ok := byProject[*a.ProjectID]; !ok {
				byProject[*a.ProjectID] = &projAgg{}
			}
		}
	}

	var reviewRows []models.TimesheetReview
	if err = db.
		Where("user_id = ? AND week_start_date = ?", ts.UserID, ts.WeekStartDate).
		Find(&reviewRows).Error; err != nil {
		return 0, 0, details, fmt.Errorf("could not load reviews: %w", err)
	}
	reviewsByProject := make(map[uint]models.TimesheetReview, len(reviewRows))
	for _, r := range reviewRows {
		reviewsByProject[r.ProjectID] = r
	}

	for pid, pa := range byProject {
		var adjPtr *models.BillingAdjustment
		if a, ok := projAdjustments[pid]; ok {
			adjPtr = &a
		}
		var verPtr *VerificationInfo
		if r, ok := reviewsByProject[pid]; ok {
			v := verificationFromReview(r)
			verPtr = &v
		}
		effective := EffectiveBillable(pa.worked, pa.billable, adjPtr, verPtr)
		billableHours += effective
		details.Projects = append(details.Projects, snapshotProjectDetail{
			ProjectID:     pid,
			WorkedHours:   pa.worked,
			BillableHours: effective,
		})
	}

	billableHours += timesheetDelta
	if billableHours < 0 {
		billableHours = 0
	}
	details.TimesheetAdjustmentHours = timesheetDelta

	return totalHours, billableHours, details, nil
}

// GenerateWeeklySnapshots materializes one billing snapshot per non-draft
// timesheet of the given week. Regeneration upserts on (timesheet, week),
// reviving a soft-deleted row; hard-deleted rows stay dead. One timesheet's
// failure is logged and skipped, it never aborts the rest of the week.
func GenerateWeeklySnapshots(db *gorm.DB, weekStart time.Time, actor Actor) ([]models.BillingSnapshot, error) {
	weekStart = StartOfDay(weekStart)
	batchID := uuid.NewString()

	var sheets []models.Timesheet
	if err := db.
		Where("week_start_date = ? AND status <> ?", weekStart, models.StatusDraft).
		Find(&sheets).Error; err != nil {
		return nil, fmt.Errorf("could not list timesheets for week %s: %w", weekStart.Format("2006-01-02"), err)
	}

	var out []models.BillingSnapshot
	for _, ts := range sheets {
		snap, err := generateOne(db, ts, weekStart, batchID, actor)
		if err != nil {
			log.Printf("snapshot generation skipped timesheet %d: %v", ts.ID, err)
			continue
		}
		out = append(out, *snap)
	}

	_ = audit.WriteLog(audit.LogOptions{
		UserID:      actor.ID,
		UserName:    actor.Name,
		EntityType:  "billing_snapshot",
		Action:      models.AuditActionGenerate,
		Description: fmt.Sprintf("Generated %d snapshot(s) for week %s (batch %s)", len(out), weekStart.Format("2006-01-02"), batchID),
	})

	return out, nil
}

func generateOne(db *gorm.DB, ts models.Timesheet, weekStart time.Time, batchID string, actor Actor) (*models.BillingSnapshot, error) {
	var user models.User
	if err := db.First(&user, ts.UserID).Error; err != nil {
		return nil, fmt.Errorf("user %d not found", ts.UserID)
	}

	totalHours, billableHours, details, err := timesheetTotals(db, ts)
	if err != nil {
		return nil, err
	}

	detailsJSON, _ := json.Marshal(details)
	rate := user.HourlyRate

	var snap models.BillingSnapshot
	err = db.Where("timesheet_id = ? AND week_start = ?", ts.ID, weekStart).First(&snap).Error
	switch {
	case err == nil:
		if snap.IsHardDeleted {
			return nil, fmt.Errorf("snapshot %d is hard-deleted, not regenerating", snap.ID)
		}
		snap.TotalHours = totalHours
		snap.BillableHours = billableHours
		snap.HourlyRate = rate
		snap.TotalAmount = totalHours * rate
		snap.BillableAmount = billableHours * rate
		snap.Details = string(detailsJSON)
		snap.BatchID = batchID
		snap.GeneratedBy = actor.ID
		snap.DeletedAt = nil
		snap.DeletedBy = nil
		if err := db.Save(&snap).Error; err != nil {
			return nil, fmt.Errorf("could not update snapshot: %w", err)
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		snap = models.BillingSnapshot{
			TimesheetID:    ts.ID,
			UserID:         ts.UserID,
			WeekStart:      weekStart,
			TotalHours:     totalHours,
			BillableHours:  billableHours,
			HourlyRate:     rate,
			TotalAmount:    totalHours * rate,
			BillableAmount: billableHours * rate,
			Details:        string(detailsJSON),
			BatchID:        batchID,
			GeneratedBy:    actor.ID,
		}
		if err := db.Create(&snap).Error; err != nil {
			return nil, fmt.Errorf("could not create snapshot: %w", err)
		}
	default:
		return nil, fmt.Errorf("could not look up snapshot: %w", err)
	}

	return &snap, nil
}

// SoftDeleteSnapshot flags the snapshot invisible to default reads.
// Reversible by regeneration.
func SoftDeleteSnapshot(db *gorm.DB, id uint, actor Actor) error {
	var snap models.BillingSnapshot
	if err := db.Where("id = ? AND deleted_at IS NULL AND is_hard_deleted = ?", id, false).First(&snap).Error; err != nil {
		return errs.NotFoundf("snapshot %d not found", id)
	}

	before := snap
	now := time.Now()
	snap.DeletedAt = &now
	snap.DeletedBy = &actor.ID
	if err := db.Save(&snap).Error; err != nil {
		return fmt.Errorf("could not delete snapshot: %w", err)
	}

	_ = audit.WriteLog(audit.LogOptions{
		UserID:      actor.ID,
		UserName:    actor.Name,
		EntityType:  "billing_snapshot",
		EntityID:    snap.ID,
		Action:      models.AuditActionDelete,
		Description: fmt.Sprintf("Snapshot %d for timesheet %d soft-deleted", snap.ID, snap.TimesheetID),
		Before:      before,
	})

	return nil
}

// HardDeleteSnapshot is the irreversible second stage. The row is retained
// for referential history but can never be read back or regenerated.
func HardDeleteSnapshot(db *gorm.DB, id uint, actor Actor) error {
	var snap models.BillingSnapshot
	if err := db.Where("id = ? AND is_hard_deleted = ?", id, false).First(&snap).Error; err != nil {
		return errs.NotFoundf("snapshot %d not found", id)
	}

	before := snap
	now := time.Now()
	snap.IsHardDeleted = true
	snap.HardDeletedAt = &now
	snap.HardDeletedBy = &actor.ID
	if snap.DeletedAt == nil {
		snap.DeletedAt = &now
		snap.DeletedBy = &actor.ID
	}
	if err := db.Save(&snap).Error; err != nil {
		return fmt.Errorf("could not hard-delete snapshot: %w", err)
	}

	_ = audit.WriteLog(audit.LogOptions{
		UserID:      actor.ID,
		UserName:    actor.Name,
		EntityType:  "billing_snapshot",
		EntityID:    snap.ID,
		Action:      models.AuditActionDelete,
		Description: fmt.Sprintf("Snapshot %d for timesheet %d permanently deleted", snap.ID, snap.TimesheetID),
		Before:      before,
	})

	return nil
}
