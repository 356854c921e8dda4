package models

import (
	"fmt"
	"time"
)

type AdjustmentScope string

const (
	ScopeProject   AdjustmentScope = "project"
	ScopeTimesheet AdjustmentScope = "timesheet"
)

// BillingAdjustment is a persistent manual correction on billable hours. At
// most one live (non-deleted) adjustment may exist per (timesheet, scope,
// project-or-none) key; the serialized ScopeKey column backs that with a
// unique index, since composite indexes over a nullable project_id would let
// two NULL rows coexist.
type BillingAdjustment struct {
	ID          uint `gorm:"primaryKey"`
	TimesheetID uint `gorm:"index;not null"`
	Timesheet   Timesheet
	UserID      uint            `gorm:"index;not null"`
	Scope       AdjustmentScope `gorm:"size:20;not null"`
	ProjectID   *uint           `gorm:"index"` // required iff scope=project
	TaskID      *uint

	PeriodStart time.Time `gorm:"not null"`
	PeriodEnd   time.Time `gorm:"not null"`

	// Snapshot of worked hours at write time; the delta is reapplied against
	// fresher worked-hour sums on later reads, it is never re-derived.
	TotalWorkedHours   float64 `gorm:"not null"`
	AdjustmentHours    float64 `gorm:"not null"` // signed delta
	TotalBillableHours float64 `gorm:"not null"` // max(0, worked + delta)

	// Legacy mirrors for pre-rework readers, written once on create.
	OriginalBillableHours float64
	AdjustedBillableHours float64

	Reason   string `gorm:"size:255"`
	ScopeKey string `gorm:"size:64;uniqueIndex;not null"`

	CreatedBy uint
	UpdatedBy uint
	DeletedAt *time.Time `gorm:"index"`
	DeletedBy *uint

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AdjustmentScopeKey serializes the at-most-one key for the live adjustment
// slot of a (timesheet, scope, project) tuple.
func AdjustmentScopeKey(timesheetID uint, scope AdjustmentScope, projectID *uint) string {
	pid := uint(0)
	if scope == ScopeProject && projectID != nil {
		pid = *projectID
	}
	return fmt.Sprintf("%d|%s|%d", timesheetID, scope, pid)
}
