package billing

import (
	"fmt"
	"time"

	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/timesheet"
)

type ViewGranularity string

const (
	ViewWeekly   ViewGranularity = "weekly"
	ViewMonthly  ViewGranularity = "monthly"
	ViewTimeline ViewGranularity = "timeline"
)

// Period is one bucket of a breakdown: a week or a calendar month.
type Period struct {
	Start time.Time
	End   time.Time
	Label string
}

func monthStartOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// weeklyPeriods returns the Monday-to-Sunday weeks covering [start, end].
func weeklyPeriods(start, end time.Time) []Period {
	var out []Period
	cur := timesheet.WeekStart(start)
	for !cur.After(end) {
		weekEnd := cur.AddDate(0, 0, 6)
		_, wk := cur.ISOWeek()
		out = append(out, Period{
			Start: cur,
			End:   weekEnd,
			Label: fmt.Sprintf("W%02d %s - %s", wk, cur.Format("Jan 02"), weekEnd.Format("Jan 02, 2006")),
		})
		cur = cur.AddDate(0, 0, 7)
	}
	return out
}

// monthlyPeriods returns the calendar months covering [start, end].
func monthlyPeriods(start, end time.Time) []Period {
	var out []Period
	cur := monthStartOf(start)
	for !cur.After(end) {
		monthEnd := cur.AddDate(0, 1, -1)
		out = append(out, Period{
			Start: cur,
			End:   monthEnd,
			Label: cur.Format("January 2006"),
		})
		cur = cur.AddDate(0, 1, 0)
	}
	return out
}

// periodIndex finds the bucket containing day, or -1.
func periodIndex(periods []Period, day time.Time) int {
	for i, p := range periods {
		if !day.Before(p.Start) && !day.After(p.End) {
			return i
		}
	}
	return -1
}
