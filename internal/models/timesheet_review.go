package models

import "time"

// TimesheetReview is the verification record written by the team-review
// workflow: an independently confirmed hours baseline for one resource on one
// project-week. When present it outranks raw entry sums in aggregation.
type TimesheetReview struct {
	ID            uint `gorm:"primaryKey"`
	ProjectID     uint `gorm:"not null;uniqueIndex:idx_reviews_project_user_week"`
	UserID        uint `gorm:"not null;uniqueIndex:idx_reviews_project_user_week"`
	WeekStartDate time.Time `gorm:"not null;uniqueIndex:idx_reviews_project_user_week"`

	VerifiedWorkedHours   float64 `gorm:"not null"`
	ManagerAdjustment     float64 `gorm:"not null"`
	VerifiedBillableHours float64 `gorm:"not null"`

	VerifiedBy uint
	VerifiedAt time.Time `gorm:"not null"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
