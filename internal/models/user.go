package models

import "time"

type UserRole string

const (
	RoleAdmin      UserRole = "admin"
	RoleManagement UserRole = "management"
	RoleLead       UserRole = "lead"
	RoleEmployee   UserRole = "employee"
)

type User struct {
	ID           uint     `gorm:"primaryKey"`
	Name         string   `gorm:"size:100;not null"`
	Email        string   `gorm:"size:100;uniqueIndex;not null"`
	PasswordHash string   `gorm:"size:255;not null"`
	Role         UserRole `gorm:"size:20;not null"`
	HourlyRate   float64  `gorm:"default:0"` // default billing rate, overridable per project/task
	IsActive     bool     `gorm:"default:true"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
