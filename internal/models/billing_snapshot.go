package models

import "time"

// BillingSnapshot is an immutable point-in-time rollup for one
// (timesheet, week). Regeneration upserts the live row for the key;
// everything else about the record only ever changes through its two-stage
// delete lifecycle.
type BillingSnapshot struct {
	ID          uint `gorm:"primaryKey"`
	TimesheetID uint `gorm:"not null;uniqueIndex:idx_snapshots_timesheet_week"`
	Timesheet   Timesheet
	UserID      uint      `gorm:"index;not null"`
	WeekStart   time.Time `gorm:"not null;uniqueIndex:idx_snapshots_timesheet_week"`

	TotalHours     float64 `gorm:"not null"`
	BillableHours  float64 `gorm:"not null"`
	HourlyRate     float64 `gorm:"not null"`
	TotalAmount    float64 `gorm:"not null"`
	BillableAmount float64 `gorm:"not null"`

	// Opaque per-row detail payload for downstream renderers.
	Details string `gorm:"type:jsonb"`

	// Generation run that produced or last refreshed this row.
	BatchID     string `gorm:"size:36;index"`
	GeneratedBy uint

	// Stage one: invisible to default reads, reversible.
	DeletedAt *time.Time `gorm:"index"`
	DeletedBy *uint

	// Stage two: permanent, separately audited.
	IsHardDeleted bool `gorm:"default:false"`
	HardDeletedAt *time.Time
	HardDeletedBy *uint

	CreatedAt time.Time
	UpdatedAt time.Time
}
