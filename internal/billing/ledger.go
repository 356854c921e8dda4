package billing

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/audit"
	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/errs"
	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/models"

	"gorm.io/gorm"
)

// upsertRetries bounds the read-modify-retry loop when a concurrent writer
// claims the same scope key between lookup and insert.
const upsertRetries = 3

// UpsertAdjustmentInput is the ledger write contract. WorkedHours is the
// caller's snapshot of total worked hours for the scope; Delta is the signed
// correction that persists across later recomputations.
type UpsertAdjustmentInput struct {
	TimesheetID uint
	UserID      uint
	Scope       models.AdjustmentScope
	ProjectID   *uint
	TaskID      *uint
	PeriodStart time.Time
	PeriodEnd   time.Time
	WorkedHours float64
	Delta       float64
	Reason      string
}

type Actor struct {
	ID   uint
	Name string
}

func derivedTotal(worked, delta float64) float64 {
	total := worked + delta
	if total < 0 {
		return 0
	}
	return total
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint")
}

// UpsertAdjustment creates or updates the single live adjustment for the
// (timesheet, scope, project) key. Project scope requires a project target;
// timesheet scope silently clears any project/task target. Writes against a
// locked project are rejected. The storage-level unique index on scope_key
// backs the at-most-one invariant; a duplicate-key insert is retried as an
// update and surfaces as a conflict only once retries are exhausted.
func UpsertAdjustment(db *gorm.DB, in UpsertAdjustmentInput, actor Actor) (*models.BillingAdjustment, error) {
	switch in.Scope {
	case models.ScopeProject:
		if in.ProjectID == nil || *in.ProjectID == 0 {
			return nil, errs.Validationf("project-scope adjustments require a project")
		}
	case models.ScopeTimesheet:
		in.ProjectID = nil
		in.TaskID = nil
	default:
		return nil, errs.Validationf("invalid adjustment scope %q", string(in.Scope))
	}

	if in.PeriodEnd.Before(in.PeriodStart) {
		return nil, errs.Validationf("period end cannot be before period start")
	}
	if in.WorkedHours < 0 {
		return nil, errs.Validationf("worked hours cannot be negative")
	}

	var ts models.Timesheet
	if err := db.First(&ts, in.TimesheetID).Error; err != nil {
		return nil, errs.NotFoundf("timesheet %d not found", in.TimesheetID)
	}

	if in.Scope == models.ScopeProject {
		var project models.Project
		if err := db.First(&project, *in.ProjectID).Error; err != nil {
			return nil, errs.NotFoundf("project %d not found", *in.ProjectID)
		}
		if IsProjectLocked(project, time.Now()) {
			return nil, errs.Authorizationf("project %q has ended and is locked for adjustments", project.Name)
		}
		if in.TaskID != nil && *in.TaskID != 0 {
			var task models.Task
			if err := db.Where("id = ? AND project_id = ?", *in.TaskID, *in.ProjectID).First(&task).Error; err != nil {
				return nil, errs.NotFoundf("task %d not found on project %d", *in.TaskID, *in.ProjectID)
			}
		}
	}

	key := models.AdjustmentScopeKey(in.TimesheetID, in.Scope, in.ProjectID)

	// Switching a correction to timesheet scope supersedes the per-project
	// rows on the same timesheet; leaving them live would keep their deltas
	// stacking under the whole-timesheet figure on the project axis.
	if in.Scope == models.ScopeTimesheet {
		converted, err := claimTimesheetScope(db, in, key, actor)
		if err != nil {
			return nil, err
		}
		if converted != nil {
			return converted, nil
		}
	}

	for attempt := 0; attempt < upsertRetries; attempt++ {
		var existing models.BillingAdjustment
		err := db.Where("scope_key = ? AND deleted_at IS NULL", key).First(&existing).Error

		if err == nil {
			before := existing

			existing.UserID = in.UserID
			existing.ProjectID = in.ProjectID
			existing.TaskID = in.TaskID
			existing.PeriodStart = in.PeriodStart
			existing.PeriodEnd = in.PeriodEnd
			existing.TotalWorkedHours = in.WorkedHours
			existing.AdjustmentHours = in.Delta
			existing.TotalBillableHours = derivedTotal(in.WorkedHours, in.Delta)
			existing.Reason = in.Reason
			existing.UpdatedBy = actor.ID
			// Legacy mirror fields keep their create-time values.

			if err := db.Save(&existing).Error; err != nil {
				return nil, fmt.Errorf("could not update adjustment: %w", err)
			}

			_ = audit.WriteLog(audit.LogOptions{
				UserID:      actor.ID,
				UserName:    actor.Name,
				EntityType:  "billing_adjustment",
				EntityID:    existing.ID,
				Action:      models.AuditActionUpdate,
				Description: fmt.Sprintf("Adjustment on timesheet %d (%s scope) set to %+.2fh", in.TimesheetID, in.Scope, in.Delta),
				Before:      before,
				After:       existing,
			})

			return &existing, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("could not look up adjustment: %w", err)
		}

		adj := models.BillingAdjustment{
			TimesheetID:           in.TimesheetID,
			UserID:                in.UserID,
			Scope:                 in.Scope,
			ProjectID:             in.ProjectID,
			TaskID:                in.TaskID,
			PeriodStart:           in.PeriodStart,
			PeriodEnd:             in.PeriodEnd,
			TotalWorkedHours:      in.WorkedHours,
			AdjustmentHours:       in.Delta,
			TotalBillableHours:    derivedTotal(in.WorkedHours, in.Delta),
			OriginalBillableHours: in.WorkedHours,
			AdjustedBillableHours: derivedTotal(in.WorkedHours, in.Delta),
			Reason:                in.Reason,
			ScopeKey:              key,
			CreatedBy:             actor.ID,
			UpdatedBy:             actor.ID,
		}

		err = db.Create(&adj).Error
		if err == nil {
			_ = audit.WriteLog(audit.LogOptions{
				UserID:      actor.ID,
				UserName:    actor.Name,
				EntityType:  "billing_adjustment",
				EntityID:    adj.ID,
				Action:      models.AuditActionCreate,
				Description: fmt.Sprintf("Adjustment on timesheet %d (%s scope) created with %+.2fh", in.TimesheetID, in.Scope, in.Delta),
				After:       adj,
			})
			return &adj, nil
		}
		if !isDuplicateKey(err) {
			return nil, fmt.Errorf("could not create adjustment: %w", err)
		}
		// Lost the race: someone inserted the key first. Retry as an update.
	}

	return nil, errs.Conflictf("concurrent adjustment writes on the same scope, please retry")
}

// claimTimesheetScope handles the project-to-timesheet scope transition. When
// the timesheet slot is free, the newest live project-scope row is converted
// in place (scope key rewritten, project/task cleared) so the correction keeps
// its identity; any other project-scope rows are retired. Returns nil when
// there was nothing to convert and the regular upsert loop should run.
func claimTimesheetScope(db *gorm.DB, in UpsertAdjustmentInput, key string, actor Actor) (*models.BillingAdjustment, error) {
	var projRows []models.BillingAdjustment
	if err := db.
		Where("timesheet_id = ? AND scope = ? AND deleted_at IS NULL", in.TimesheetID, models.ScopeProject).
		Order("updated_at DESC, id DESC").
		Find(&projRows).Error; err != nil {
		return nil, fmt.Errorf("could not look up adjustments: %w", err)
	}
	if len(projRows) == 0 {
		return nil, nil
	}

	var slot models.BillingAdjustment
	slotTaken := db.Where("scope_key = ? AND deleted_at IS NULL", key).First(&slot).Error == nil

	remaining := projRows
	var converted *models.BillingAdjustment
	if !slotTaken {
		row := projRows[0]
		remaining = projRows[1:]
		before := row

		row.UserID = in.UserID
		row.Scope = models.ScopeTimesheet
		row.ProjectID = nil
		row.TaskID = nil
		row.PeriodStart = in.PeriodStart
		row.PeriodEnd = in.PeriodEnd
		row.TotalWorkedHours = in.WorkedHours
		row.AdjustmentHours = in.Delta
		row.TotalBillableHours = derivedTotal(in.WorkedHours, in.Delta)
		row.Reason = in.Reason
		row.ScopeKey = key
		row.UpdatedBy = actor.ID

		if err := db.Save(&row).Error; err != nil {
			return nil, fmt.Errorf("could not convert adjustment: %w", err)
		}

		_ = audit.WriteLog(audit.LogOptions{
			UserID:      actor.ID,
			UserName:    actor.Name,
			EntityType:  "billing_adjustment",
			EntityID:    row.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Adjustment on timesheet %d switched to timesheet scope with %+.2fh", in.TimesheetID, in.Delta),
			Before:      before,
			After:       row,
		})

		converted = &row
	}

	now := time.Now()
	for i := range remaining {
		row := &remaining[i]
		before := *row
		row.DeletedAt = &now
		row.DeletedBy = &actor.ID
		row.ScopeKey = fmt.Sprintf("%s#%d", row.ScopeKey, row.ID)

		if err := db.Save(row).Error; err != nil {
			return nil, fmt.Errorf("could not retire adjustment: %w", err)
		}

		_ = audit.WriteLog(audit.LogOptions{
			UserID:      actor.ID,
			UserName:    actor.Name,
			EntityType:  "billing_adjustment",
			EntityID:    row.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("Project-scope adjustment on timesheet %d superseded by the timesheet-scope correction", in.TimesheetID),
			Before:      before,
		})
	}

	return converted, nil
}

// SoftDeleteAdjustment retires the live adjustment. The scope key is rewritten
// so a successor can claim the slot while this row survives as history.
func SoftDeleteAdjustment(db *gorm.DB, id uint, actor Actor) error {
	var adj models.BillingAdjustment
	if err := db.Where("id = ? AND deleted_at IS NULL", id).First(&adj).Error; err != nil {
		return errs.NotFoundf("adjustment %d not found", id)
	}

	before := adj
	now := time.Now()
	adj.DeletedAt = &now
	adj.DeletedBy = &actor.ID
	adj.ScopeKey = fmt.Sprintf("%s#%d", adj.ScopeKey, adj.ID)

	if err := db.Save(&adj).Error; err != nil {
		return fmt.Errorf("could not delete adjustment: %w", err)
	}

	_ = audit.WriteLog(audit.LogOptions{
		UserID:      actor.ID,
		UserName:    actor.Name,
		EntityType:  "billing_adjustment",
		EntityID:    adj.ID,
		Action:      models.AuditActionDelete,
		Description: fmt.Sprintf("Adjustment on timesheet %d (%s scope) removed", adj.TimesheetID, adj.Scope),
		Before:      before,
	})

	return nil
}
