package timesheet

import (
	"time"

	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/errs"
	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/models"
)

// EntryInput is the raw wire shape of a time entry before classification.
type EntryInput struct {
	Category      models.EntryCategory `json:"category"`
	Date          time.Time            `json:"date"`
	Hours         float64              `json:"hours"`
	IsBillable    bool                 `json:"is_billable"`
	BillableHours *float64             `json:"billable_hours"` // optional override
	HourlyRate    *float64             `json:"hourly_rate"`

	ProjectID       *uint  `json:"project_id"`
	TaskID          *uint  `json:"task_id"`
	TaskDescription string `json:"task_description"`

	LeaveSession models.LeaveSession `json:"leave_session"`

	HolidayName string `json:"holiday_name"`

	ActivityDescription string `json:"activity_description"`
}

// EntryPayload is the category-specific part of a normalized entry. One
// variant per category; each variant's required fields are carried by its
// struct rather than re-checked by branching at every consumer.
type EntryPayload interface {
	entryPayload()
}

// ProjectWork covers both the project and training categories: a project
// reference plus exactly one task discriminator (an existing task or a
// free-text description).
type ProjectWork struct {
	ProjectID       uint
	TaskID          *uint
	TaskDescription string
}

type Leave struct {
	Session models.LeaveSession
}

type Holiday struct {
	Name string
}

type Miscellaneous struct {
	Activity string
}

func (ProjectWork) entryPayload()   {}
func (Leave) entryPayload()         {}
func (Holiday) entryPayload()       {}
func (Miscellaneous) entryPayload() {}

// NormalizedEntry is a classified, validated entry ready to persist.
type NormalizedEntry struct {
	Category      models.EntryCategory
	Payload       EntryPayload
	Date          time.Time
	Hours         float64
	IsBillable    bool
	BillableHours float64
	HourlyRate    *float64
}

// Normalize classifies and validates a raw entry. It has no side effects;
// persistence is the caller's job. Called explicitly before every write,
// never hidden behind a storage hook.
func Normalize(in EntryInput) (NormalizedEntry, error) {
	out := NormalizedEntry{
		Category:   in.Category,
		Date:       in.Date,
		Hours:      in.Hours,
		IsBillable: in.IsBillable,
		HourlyRate: in.HourlyRate,
	}

	if in.Date.IsZero() {
		return NormalizedEntry{}, errs.Validationf("date is required")
	}

	switch in.Category {
	case models.CategoryProject, models.CategoryTraining:
		if in.ProjectID == nil || *in.ProjectID == 0 {
			return NormalizedEntry{}, errs.Validationf("%s entries require a project", in.Category)
		}
		hasTask := in.TaskID != nil && *in.TaskID != 0
		hasDesc := in.TaskDescription != ""
		if hasTask == hasDesc {
			return NormalizedEntry{}, errs.Validationf("%s entries require exactly one of task or task description", in.Category)
		}
		out.Payload = ProjectWork{
			ProjectID:       *in.ProjectID,
			TaskID:          in.TaskID,
			TaskDescription: in.TaskDescription,
		}

	case models.CategoryLeave:
		// Hours are overwritten from the session, not merely defaulted.
		switch in.LeaveSession {
		case models.SessionMorning, models.SessionAfternoon:
			out.Hours = 4
		case models.SessionFullDay:
			out.Hours = 8
		default:
			return NormalizedEntry{}, errs.Validationf("leave entries require a session (morning, afternoon or full_day)")
		}
		out.IsBillable = false
		out.Payload = Leave{Session: in.LeaveSession}

	case models.CategoryHoliday:
		if in.HolidayName == "" {
			return NormalizedEntry{}, errs.Validationf("holiday entries require a holiday name")
		}
		out.IsBillable = false
		out.Payload = Holiday{Name: in.HolidayName}

	case models.CategoryMiscellaneous:
		if in.ActivityDescription == "" {
			return NormalizedEntry{}, errs.Validationf("miscellaneous entries require an activity description")
		}
		out.IsBillable = false
		out.Payload = Miscellaneous{Activity: in.ActivityDescription}

	default:
		return NormalizedEntry{}, errs.Validationf("invalid entry category %q", string(in.Category))
	}

	if out.Hours <= 0 || out.Hours > 24 {
		return NormalizedEntry{}, errs.Validationf("hours must be within (0, 24]")
	}
	if in.HourlyRate != nil && *in.HourlyRate < 0 {
		return NormalizedEntry{}, errs.Validationf("hourly rate cannot be negative")
	}

	// Billable-hours default: explicit override wins, else raw hours when
	// billable, else zero.
	switch {
	case !out.IsBillable:
		out.BillableHours = 0
	case in.BillableHours != nil:
		if *in.BillableHours < 0 || *in.BillableHours > out.Hours {
			return NormalizedEntry{}, errs.Validationf("billable hours override must be within [0, hours]")
		}
		out.BillableHours = *in.BillableHours
	default:
		out.BillableHours = out.Hours
	}

	return out, nil
}

// Record flattens a normalized entry onto its storage row.
func (n NormalizedEntry) Record(timesheetID, userID uint) models.TimeEntry {
	row := models.TimeEntry{
		TimesheetID:   timesheetID,
		UserID:        userID,
		Category:      n.Category,
		Date:          n.Date,
		Hours:         n.Hours,
		IsBillable:    n.IsBillable,
		BillableHours: n.BillableHours,
		HourlyRate:    n.HourlyRate,
	}

	switch p := n.Payload.(type) {
	case ProjectWork:
		pid := p.ProjectID
		row.ProjectID = &pid
		row.TaskID = p.TaskID
		row.TaskDescription = p.TaskDescription
	case Leave:
		row.LeaveSession = p.Session
	case Holiday:
		row.HolidayName = p.Name
	case Miscellaneous:
		row.ActivityDescription = p.Activity
	}

	return row
}
