package billing

import (
	"time"

	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/models"
)

// StartOfDay truncates t to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// IsProjectLocked reports whether the project is read-only for adjustment
// writes: its end date is set and lies before the reference day. The check is
// advisory, recomputed from project dates on every call; it is not a mutex.
func IsProjectLocked(p models.Project, referenceDate time.Time) bool {
	if p.EndDate == nil {
		return false
	}
	return p.EndDate.Before(StartOfDay(referenceDate))
}
