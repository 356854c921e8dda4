package models

import "time"

type EntryCategory string

const (
	CategoryProject       EntryCategory = "project"
	CategoryTraining      EntryCategory = "training"
	CategoryLeave         EntryCategory = "leave"
	CategoryHoliday       EntryCategory = "holiday"
	CategoryMiscellaneous EntryCategory = "miscellaneous"
)

type LeaveSession string

const (
	SessionMorning   LeaveSession = "morning"
	SessionAfternoon LeaveSession = "afternoon"
	SessionFullDay   LeaveSession = "full_day"
)

// TimeEntry is one logged slice of a day. The category-specific companion
// columns are nullable; which of them must be set is enforced by the
// classifier in internal/timesheet before anything reaches this table.
type TimeEntry struct {
	ID          uint `gorm:"primaryKey"`
	TimesheetID uint `gorm:"index;not null"`
	Timesheet   Timesheet
	UserID      uint          `gorm:"index;not null"` // denormalized from the timesheet
	Category    EntryCategory `gorm:"size:20;index;not null"`
	Date        time.Time     `gorm:"index;not null"`

	// project / training
	ProjectID       *uint `gorm:"index"`
	TaskID          *uint
	TaskDescription string `gorm:"size:255"`

	// leave
	LeaveSession LeaveSession `gorm:"size:20"`

	// holiday
	HolidayName string `gorm:"size:150"`

	// miscellaneous
	ActivityDescription string `gorm:"size:255"`

	Hours         float64 `gorm:"not null"`
	IsBillable    bool    `gorm:"not null"`
	BillableHours float64 `gorm:"not null"` // normalized: override, else hours when billable, else 0
	HourlyRate    *float64

	DeletedAt *time.Time `gorm:"index"`
	DeletedBy *uint

	CreatedAt time.Time
	UpdatedAt time.Time
}
