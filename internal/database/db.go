package database

import (
	"log"

	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/config"
	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

func Init(cfg *config.Config) {
	var err error

	DB, err = gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		log.Fatalf("could not connect to database: %v", err)
	}

	if err := Migrate(DB); err != nil {
		log.Fatalf("AutoMigrate failed: %v", err)
	}

	log.Println("Database connected, migration complete.")
}

// Migrate creates/updates the schema. Split out so tests can run it against
// an in-memory database.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Client{},
		&models.Project{},
		&models.Task{},
		&models.Timesheet{},
		&models.TimeEntry{},
		&models.BillingAdjustment{},
		&models.TimesheetReview{},
		&models.BillingSnapshot{},
		&models.AuditLog{},
	)
}
