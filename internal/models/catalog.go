package models

import "time"

type Client struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"size:150;uniqueIndex;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Project struct {
	ID       uint   `gorm:"primaryKey"`
	ClientID uint   `gorm:"index;not null"`
	Client   Client
	Name     string `gorm:"size:150;not null"`

	// EndDate past "today" makes the project read-only for adjustment writes.
	StartDate *time.Time
	EndDate   *time.Time

	// Optional rate override; falls back to the user's rate when nil.
	HourlyRate *float64

	CreatedAt time.Time
	UpdatedAt time.Time
}

type Task struct {
	ID        uint `gorm:"primaryKey"`
	ProjectID uint `gorm:"index;not null"`
	Project   Project
	Name      string `gorm:"size:150;not null"`

	// Optional rate override; takes precedence over project and user rates.
	HourlyRate *float64

	CreatedAt time.Time
	UpdatedAt time.Time
}
