package billing_test

import (
	"testing"
	"time"

	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/billing"
	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/models"
)

func TestIsProjectLocked(t *testing.T) {
	ref := time.Date(2026, time.May, 15, 10, 30, 0, 0, time.UTC)

	past := day(2026, time.May, 10)
	today := day(2026, time.May, 15)
	future := day(2026, time.June, 1)

	tests := []struct {
		name    string
		endDate *time.Time
		want    bool
	}{
		{"open-ended project never locks", nil, false},
		{"ended in the past", &past, true},
		{"ends today stays open", &today, false},
		{"ends in the future", &future, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := models.Project{EndDate: tt.endDate}
			if got := billing.IsProjectLocked(p, ref); got != tt.want {
				t.Errorf("IsProjectLocked = %v, want %v", got, tt.want)
			}
		})
	}
}
