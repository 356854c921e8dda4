package billing_test

import (
	"testing"
	"time"

	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/database"
	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a fresh in-memory database and points the global handle at
// it, so audit writes land somewhere during tests.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("could not open test database: %v", err)
	}
	// The in-memory database exists per connection; keep the pool at one so
	// every session (including concurrent ones) sees the same schema.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("could not reach the connection pool: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := database.Migrate(db); err != nil {
		t.Fatalf("could not migrate test database: %v", err)
	}
	database.DB = db
	return db
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func seedUser(t *testing.T, db *gorm.DB, name string, role models.UserRole, rate float64) models.User {
	t.Helper()
	u := models.User{
		Name:         name,
		Email:        name + "@example.com",
		PasswordHash: "x",
		Role:         role,
		HourlyRate:   rate,
		IsActive:     true,
	}
	if err := db.Create(&u).Error; err != nil {
		t.Fatalf("could not seed user %s: %v", name, err)
	}
	return u
}

func seedProject(t *testing.T, db *gorm.DB, clientName, projectName string, endDate *time.Time) models.Project {
	t.Helper()
	c := models.Client{Name: clientName}
	if err := db.Create(&c).Error; err != nil {
		t.Fatalf("could not seed client %s: %v", clientName, err)
	}
	p := models.Project{ClientID: c.ID, Name: projectName, EndDate: endDate}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("could not seed project %s: %v", projectName, err)
	}
	return p
}

func seedTimesheet(t *testing.T, db *gorm.DB, userID uint, weekStart time.Time, status models.TimesheetStatus) models.Timesheet {
	t.Helper()
	ts := models.Timesheet{UserID: userID, WeekStartDate: weekStart, Status: status}
	if err := db.Create(&ts).Error; err != nil {
		t.Fatalf("could not seed timesheet: %v", err)
	}
	return ts
}

func seedProjectEntry(t *testing.T, db *gorm.DB, ts models.Timesheet, projectID uint, date time.Time, hours, billable float64) models.TimeEntry {
	t.Helper()
	e := models.TimeEntry{
		TimesheetID:     ts.ID,
		UserID:          ts.UserID,
		Category:        models.CategoryProject,
		Date:            date,
		ProjectID:       &projectID,
		TaskDescription: "work",
		Hours:           hours,
		IsBillable:      billable > 0,
		BillableHours:   billable,
	}
	if err := db.Create(&e).Error; err != nil {
		t.Fatalf("could not seed entry: %v", err)
	}
	return e
}
