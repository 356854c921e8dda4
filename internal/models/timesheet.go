package models

import "time"

type TimesheetStatus string

const (
	StatusDraft     TimesheetStatus = "draft"
	StatusSubmitted TimesheetStatus = "submitted"
	StatusApproved  TimesheetStatus = "approved"
	StatusRejected  TimesheetStatus = "rejected"
	StatusReopened  TimesheetStatus = "reopened"
)

// Timesheet is one user-week container for time entries. The approval state
// machine lives outside this service; the status is consumed here as a read
// filter (draft weeks are excluded from billing) and as the editability
// predicate for entry writes.
type Timesheet struct {
	ID            uint `gorm:"primaryKey"`
	UserID        uint `gorm:"uniqueIndex:idx_timesheets_user_week;not null"`
	User          User
	WeekStartDate time.Time       `gorm:"uniqueIndex:idx_timesheets_user_week;not null"` // Monday
	Status        TimesheetStatus `gorm:"size:20;not null;default:draft"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Editable reports whether entries under this timesheet may still be written.
func (t Timesheet) Editable() bool {
	switch t.Status {
	case StatusDraft, StatusRejected, StatusReopened:
		return true
	}
	return false
}
