package billing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/models"
	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/timesheet"

	"gorm.io/gorm"
)

type GroupBy string

const (
	GroupByProject GroupBy = "project"
	GroupByTask    GroupBy = "task"
	GroupByUser    GroupBy = "user"
)

type AggregateParams struct {
	StartDate  time.Time
	EndDate    time.Time
	View       ViewGranularity
	GroupBy    GroupBy
	ProjectIDs []uint
	ClientIDs  []uint
	Roles      []models.UserRole
	Search     string
}

// UserBillingRecord is one resource row. As a child of a project/task row the
// Projects slice stays empty; on the user axis it carries the per-project
// children instead.
type UserBillingRecord struct {
	UserID           uint            `json:"user_id"`
	UserName         string          `json:"user_name"`
	Role             models.UserRole `json:"role"`
	WorkedHours      float64         `json:"worked_hours"`
	BillableHours    float64         `json:"billable_hours"`
	NonBillableHours float64         `json:"non_billable_hours"`
	Cost             float64         `json:"cost"`

	VerifiedWorkedHours   *float64   `json:"verified_worked_hours,omitempty"`
	ManagerAdjustment     *float64   `json:"manager_adjustment,omitempty"`
	VerifiedBillableHours *float64   `json:"verified_billable_hours,omitempty"`
	VerifiedAt            *time.Time `json:"verified_at,omitempty"`

	Projects []ProjectBillingRecord `json:"projects,omitempty"`
}

type ProjectBillingRecord struct {
	ProjectID        uint    `json:"project_id"`
	ProjectName      string  `json:"project_name"`
	ClientID         uint    `json:"client_id"`
	ClientName       string  `json:"client_name"`
	Locked           bool    `json:"locked"`
	WorkedHours      float64 `json:"worked_hours"`
	BillableHours    float64 `json:"billable_hours"`
	NonBillableHours float64 `json:"non_billable_hours"`
	Cost             float64 `json:"cost"`

	Resources []UserBillingRecord `json:"resources,omitempty"`
}

type TaskBillingRecord struct {
	TaskID           uint    `json:"task_id"` // 0 for free-text task descriptions
	TaskName         string  `json:"task_name"`
	ProjectID        uint    `json:"project_id"`
	ProjectName      string  `json:"project_name"`
	WorkedHours      float64 `json:"worked_hours"`
	BillableHours    float64 `json:"billable_hours"`
	NonBillableHours float64 `json:"non_billable_hours"`
	Cost             float64 `json:"cost"`

	Resources []UserBillingRecord `json:"resources"`
}

type AggregationSummary struct {
	TotalWorkedHours      float64 `json:"total_worked_hours"`
	TotalBillableHours    float64 `json:"total_billable_hours"`
	TotalNonBillableHours float64 `json:"total_non_billable_hours"`
	TotalCost             float64 `json:"total_cost"`

	// Timesheet-scope corrections apply to whole-timesheet totals, never to a
	// single project row.
	TimesheetAdjustmentHours float64 `json:"timesheet_adjustment_hours"`
	AdjustedBillableHours    float64 `json:"adjusted_billable_hours"`
}

type AggregationResult struct {
	View      ViewGranularity `json:"view"`
	GroupBy   GroupBy         `json:"group_by"`
	StartDate time.Time       `json:"start_date"`
	EndDate   time.Time       `json:"end_date"`

	Projects []ProjectBillingRecord `json:"projects,omitempty"`
	Tasks    []TaskBillingRecord    `json:"tasks,omitempty"`
	Users    []UserBillingRecord    `json:"users,omitempty"`

	Summary AggregationSummary `json:"summary"`

	// Read paths degrade instead of failing: on a storage error or timeout
	// the rows are empty and this explains why.
	Error string `json:"error,omitempty"`
}

// cellKey identifies the merge granularity: one resource on one project in
// one timesheet week. Adjustments key on (timesheet, project), verification
// on (project, user, week); both land exactly on a cell.
type cellKey struct {
	TimesheetID uint
	UserID      uint
	ProjectID   uint
	WeekStart   time.Time
}

type cell struct {
	worked   float64
	billable float64
	byTask   map[uint]*taskAgg // task id 0 collects free-text work
}

type taskAgg struct {
	worked   float64
	billable float64
}

type reviewKey struct {
	ProjectID uint
	UserID    uint
	WeekStart time.Time
}

func nonDraftTimesheets(db *gorm.DB) *gorm.DB {
	return db.Model(&models.Timesheet{}).Select("id").Where("status <> ?", models.StatusDraft)
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// resolveTimelineRange expands the range to the union span of the selected
// projects' start/end dates, falling back to the current calendar month when
// no project carries dates.
func resolveTimelineRange(projects map[uint]models.Project, now time.Time) (time.Time, time.Time) {
	var start, end time.Time
	for _, p := range projects {
		if p.StartDate != nil && (start.IsZero() || p.StartDate.Before(start)) {
			start = *p.StartDate
		}
		if p.EndDate != nil && (end.IsZero() || p.EndDate.After(end)) {
			end = *p.EndDate
		}
	}
	if start.IsZero() || end.IsZero() || end.Before(start) {
		monthStart := monthStartOf(now)
		return monthStart, monthStart.AddDate(0, 1, -1)
	}
	return StartOfDay(start), StartOfDay(end)
}

func degraded(res AggregationResult, format string, args ...any) AggregationResult {
	res.Projects = nil
	res.Tasks = nil
	res.Users = nil
	res.Summary = AggregationSummary{}
	res.Error = fmt.Sprintf(format, args...)
	return res
}

// Aggregate computes hierarchical billing rows for the range, view and
// filters. It never returns a hard error: dashboards reading it keep working
// on partial data-source failure.
func Aggregate(ctx context.Context, db *gorm.DB, p AggregateParams) AggregationResult {
	if p.GroupBy == "" {
		p.GroupBy = GroupByProject
	}
	res := AggregationResult{
		View:      p.View,
		GroupBy:   p.GroupBy,
		StartDate: p.StartDate,
		EndDate:   p.EndDate,
	}

	db = db.WithContext(ctx)

	// 1) catalog: projects under the project/client filters
	projQ := db.Model(&models.Project{}).Preload("Client")
	if len(p.ProjectIDs) > 0 {
		projQ = projQ.Where("id IN ?", p.ProjectIDs)
	}
	if len(p.ClientIDs) > 0 {
		projQ = projQ.Where("client_id IN ?", p.ClientIDs)
	}
	var projectRows []models.Project
	if err := projQ.Find(&projectRows).Error; err != nil {
		return degraded(res, "billing aggregation degraded: could not load projects: %v", err)
	}
	projects := make(map[uint]models.Project, len(projectRows))
	projectIDs := make([]uint, 0, len(projectRows))
	for _, pr := range projectRows {
		projects[pr.ID] = pr
		projectIDs = append(projectIDs, pr.ID)
	}

	if p.View == ViewTimeline {
		res.StartDate, res.EndDate = resolveTimelineRange(projects, time.Now())
	}
	if res.StartDate.IsZero() || res.EndDate.IsZero() || res.EndDate.Before(res.StartDate) {
		return degraded(res, "billing aggregation degraded: invalid date range")
	}

	// 2) user directory, role-filtered
	userQ := db.Model(&models.User{}).Where("is_active = ?", true)
	if len(p.Roles) > 0 {
		userQ = userQ.Where("role IN ?", p.Roles)
	}
	var userRows []models.User
	if err := userQ.Find(&userRows).Error; err != nil {
		return degraded(res, "billing aggregation degraded: could not load users: %v", err)
	}
	users := make(map[uint]models.User, len(userRows))
	for _, u := range userRows {
		users[u.ID] = u
	}

	// 3) raw entry sums into (timesheet, user, project, week) cells
	var entries []models.TimeEntry
	entryQ := db.
		Where("deleted_at IS NULL AND project_id IS NOT NULL").
		Where("category IN ?", []models.EntryCategory{models.CategoryProject, models.CategoryTraining}).
		Where("date >= ? AND date <= ?", res.StartDate, res.EndDate).
		Where("project_id IN ?", projectIDs).
		Where("timesheet_id IN (?)", nonDraftTimesheets(db))
	if err := entryQ.Find(&entries).Error; err != nil {
		return degraded(res, "billing aggregation degraded: could not load entries: %v", err)
	}
	if ctx.Err() != nil {
		return degraded(res, "billing aggregation timed out: %v", ctx.Err())
	}

	include := func(projectID, userID uint) bool {
		pr, ok := projects[projectID]
		if !ok {
			return false
		}
		u, ok := users[userID]
		if !ok {
			return false
		}
		if p.Search != "" && !containsFold(pr.Name, p.Search) && !containsFold(u.Name, p.Search) {
			return false
		}
		return true
	}

	cells := make(map[cellKey]*cell)
	cellAt := func(key cellKey) *cell {
		cl, ok := cells[key]
		if !ok {
			cl = &cell{byTask: make(map[uint]*taskAgg)}
			cells[key] = cl
		}
		return cl
	}

	for _, e := range entries {
		if !include(*e.ProjectID, e.UserID) {
			continue
		}
		key := cellKey{
			TimesheetID: e.TimesheetID,
			UserID:      e.UserID,
			ProjectID:   *e.ProjectID,
			WeekStart:   timesheet.WeekStart(e.Date),
		}
		cl := cellAt(key)
		cl.worked += e.Hours
		cl.billable += e.BillableHours

		taskID := uint(0)
		if e.TaskID != nil {
			taskID = *e.TaskID
		}
		ta, ok := cl.byTask[taskID]
		if !ok {
			ta = &taskAgg{}
			cl.byTask[taskID] = ta
		}
		ta.worked += e.Hours
		ta.billable += e.BillableHours
	}

	// 4) live adjustments for the touched weeks
	weekLow := timesheet.WeekStart(res.StartDate)
	var adjRows []models.BillingAdjustment
	adjQ := db.Model(&models.BillingAdjustment{}).
		Joins("JOIN timesheets ON timesheets.id = billing_adjustments.timesheet_id").
		Where("billing_adjustments.deleted_at IS NULL").
		Where("timesheets.status <> ?", models.StatusDraft).
		Where("timesheets.week_start_date >= ? AND timesheets.week_start_date <= ?", weekLow, res.EndDate)
	if err := adjQ.Find(&adjRows).Error; err != nil {
		return degraded(res, "billing aggregation degraded: could not load adjustments: %v", err)
	}

	type adjKey struct {
		TimesheetID uint
		ProjectID   uint
	}
	adjustments := make(map[adjKey]models.BillingAdjustment)
	var timesheetDeltas float64

	tsWeeks := make(map[uint]time.Time) // timesheet id -> week start, for zero-entry cells
	for _, a := range adjRows {
		if a.Scope == models.ScopeTimesheet {
			if _, ok := users[a.UserID]; ok {
				timesheetDeltas += a.AdjustmentHours
			}
			continue
		}
		if a.ProjectID == nil || !include(*a.ProjectID, a.UserID) {
			continue
		}
		adjustments[adjKey{a.TimesheetID, *a.ProjectID}] = a

		// An adjustment can outlive its entries; make sure its cell exists so
		// the delta still surfaces.
		week, ok := tsWeeks[a.TimesheetID]
		if !ok {
			var ts models.Timesheet
			if err := db.First(&ts, a.TimesheetID).Error; err != nil {
				continue
			}
			week = ts.WeekStartDate
			tsWeeks[a.TimesheetID] = week
		}
		cellAt(cellKey{a.TimesheetID, a.UserID, *a.ProjectID, week})
	}

	// 5) verification baselines
	var reviewRows []models.TimesheetReview
	if err := db.
		Where("week_start_date >= ? AND week_start_date <= ?", weekLow, res.EndDate).
		Find(&reviewRows).Error; err != nil {
		return degraded(res, "billing aggregation degraded: could not load reviews: %v", err)
	}
	reviews := make(map[reviewKey]models.TimesheetReview, len(reviewRows))
	type userWeek struct {
		UserID    uint
		WeekStart time.Time
	}
	reviewSheets := make(map[userWeek]uint)
	for _, r := range reviewRows {
		wk := StartOfDay(r.WeekStartDate)
		reviews[reviewKey{r.ProjectID, r.UserID, wk}] = r
		if !include(r.ProjectID, r.UserID) {
			continue
		}

		// A verified baseline outlives its entries the same way an adjustment
		// does; make sure its cell exists so it still surfaces.
		uw := userWeek{r.UserID, wk}
		tsID, ok := reviewSheets[uw]
		if !ok {
			var ts models.Timesheet
			if err := db.
				Where("user_id = ? AND week_start_date = ? AND status <> ?", r.UserID, wk, models.StatusDraft).
				First(&ts).Error; err != nil {
				continue
			}
			tsID = ts.ID
			reviewSheets[uw] = tsID
		}
		cellAt(cellKey{tsID, r.UserID, r.ProjectID, wk})
	}
	if ctx.Err() != nil {
		return degraded(res, "billing aggregation timed out: %v", ctx.Err())
	}

	// 6) merge every cell under the precedence order and fold into rows
	taskNames := make(map[uint]models.Task)
	if p.GroupBy == GroupByTask {
		var taskRows []models.Task
		if err := db.Where("project_id IN ?", projectIDs).Find(&taskRows).Error; err != nil {
			return degraded(res, "billing aggregation degraded: could not load tasks: %v", err)
		}
		for _, t := range taskRows {
			taskNames[t.ID] = t
		}
	}

	type resourceTotals struct {
		rec UserBillingRecord
	}
	projectRecs := make(map[uint]*ProjectBillingRecord)
	projectResources := make(map[uint]map[uint]*resourceTotals)
	taskRecs := make(map[[2]uint]*TaskBillingRecord)
	taskResources := make(map[[2]uint]map[uint]*resourceTotals)

	for key, cl := range cells {
		pr := projects[key.ProjectID]
		u := users[key.UserID]

		var adjPtr *models.BillingAdjustment
		if a, ok := adjustments[adjKey{key.TimesheetID, key.ProjectID}]; ok {
			adjPtr = &a
		}
		var verPtr *VerificationInfo
		var revPtr *models.TimesheetReview
		if r, ok := reviews[reviewKey{key.ProjectID, key.UserID, key.WeekStart}]; ok {
			v := verificationFromReview(r)
			verPtr = &v
			revPtr = &r
		}

		effective := EffectiveBillable(cl.worked, cl.billable, adjPtr, verPtr)
		nonBillable := cl.worked - effective
		if nonBillable < 0 {
			nonBillable = 0
		}
		rate := resolveRate(nil, &pr, u)
		cost := effective * rate

		// project rows (also the children of the user axis)
		rec, ok := projectRecs[key.ProjectID]
		if !ok {
			rec = &ProjectBillingRecord{
				ProjectID:   pr.ID,
				ProjectName: pr.Name,
				ClientID:    pr.ClientID,
				ClientName:  pr.Client.Name,
				Locked:      IsProjectLocked(pr, time.Now()),
			}
			projectRecs[key.ProjectID] = rec
			projectResources[key.ProjectID] = make(map[uint]*resourceTotals)
		}
		rt, ok := projectResources[key.ProjectID][key.UserID]
		if !ok {
			rt = &resourceTotals{rec: UserBillingRecord{UserID: u.ID, UserName: u.Name, Role: u.Role}}
			projectResources[key.ProjectID][key.UserID] = rt
		}
		rt.rec.WorkedHours += cl.worked
		rt.rec.BillableHours += effective
		rt.rec.NonBillableHours += nonBillable
		rt.rec.Cost += cost
		addVerification(&rt.rec, revPtr)

		if p.GroupBy == GroupByTask {
			// Raw task buckets carry their own sums; the cell-level correction
			// (adjustment or verification delta) lands on the adjusted task,
			// or on the free-text bucket when untargeted.
			correction := effective - cl.billable
			correctionTask := uint(0)
			if adjPtr != nil && adjPtr.TaskID != nil {
				correctionTask = *adjPtr.TaskID
			}
			for taskID, ta := range cl.byTask {
				tKey := [2]uint{key.ProjectID, taskID}
				tr, ok := taskRecs[tKey]
				if !ok {
					name := pr.Name + " (ad-hoc)"
					if t, found := taskNames[taskID]; found {
						name = t.Name
					}
					tr = &TaskBillingRecord{
						TaskID:      taskID,
						TaskName:    name,
						ProjectID:   pr.ID,
						ProjectName: pr.Name,
					}
					taskRecs[tKey] = tr
					taskResources[tKey] = make(map[uint]*resourceTotals)
				}
				trt, ok := taskResources[tKey][key.UserID]
				if !ok {
					trt = &resourceTotals{rec: UserBillingRecord{UserID: u.ID, UserName: u.Name, Role: u.Role}}
					taskResources[tKey][key.UserID] = trt
				}
				taskBillable := ta.billable
				if taskID == correctionTask {
					taskBillable += correction
					if taskBillable < 0 {
						taskBillable = 0
					}
				}
				taskNonBillable := ta.worked - taskBillable
				if taskNonBillable < 0 {
					taskNonBillable = 0
				}
				var taskPtr *models.Task
				if t, found := taskNames[taskID]; found {
					taskPtr = &t
				}
				taskRate := resolveRate(taskPtr, &pr, u)
				trt.rec.WorkedHours += ta.worked
				trt.rec.BillableHours += taskBillable
				trt.rec.NonBillableHours += taskNonBillable
				trt.rec.Cost += taskBillable * taskRate
				addVerification(&trt.rec, revPtr)
			}
			// A zero-entry cell (adjustment without surviving entries) has no
			// task buckets; surface it on the correction bucket.
			if len(cl.byTask) == 0 && effective != 0 {
				tKey := [2]uint{key.ProjectID, correctionTask}
				tr, ok := taskRecs[tKey]
				if !ok {
					name := pr.Name + " (ad-hoc)"
					if t, found := taskNames[correctionTask]; found {
						name = t.Name
					}
					tr = &TaskBillingRecord{TaskID: correctionTask, TaskName: name, ProjectID: pr.ID, ProjectName: pr.Name}
					taskRecs[tKey] = tr
					taskResources[tKey] = make(map[uint]*resourceTotals)
				}
				trt, ok := taskResources[tKey][key.UserID]
				if !ok {
					trt = &resourceTotals{rec: UserBillingRecord{UserID: u.ID, UserName: u.Name, Role: u.Role}}
					taskResources[tKey][key.UserID] = trt
				}
				trt.rec.BillableHours += effective
				trt.rec.Cost += effective * rate
			}
		}
	}

	// 7) assemble children, roll parents up as straight sums
	switch p.GroupBy {
	case GroupByTask:
		for tKey, tr := range taskRecs {
			for _, rt := range taskResources[tKey] {
				tr.Resources = append(tr.Resources, rt.rec)
			}
			sort.Slice(tr.Resources, func(i, j int) bool { return tr.Resources[i].UserName < tr.Resources[j].UserName })
			for _, r := range tr.Resources {
				tr.WorkedHours += r.WorkedHours
				tr.BillableHours += r.BillableHours
				tr.NonBillableHours += r.NonBillableHours
				tr.Cost += r.Cost
			}
			res.Tasks = append(res.Tasks, *tr)
		}
		sort.Slice(res.Tasks, func(i, j int) bool {
			if res.Tasks[i].ProjectName != res.Tasks[j].ProjectName {
				return res.Tasks[i].ProjectName < res.Tasks[j].ProjectName
			}
			return res.Tasks[i].TaskName < res.Tasks[j].TaskName
		})
		for _, t := range res.Tasks {
			res.Summary.TotalWorkedHours += t.WorkedHours
			res.Summary.TotalBillableHours += t.BillableHours
			res.Summary.TotalNonBillableHours += t.NonBillableHours
			res.Summary.TotalCost += t.Cost
		}

	case GroupByUser:
		userRecs := make(map[uint]*UserBillingRecord)
		for pid, rec := range projectRecs {
			for uid, rt := range projectResources[pid] {
				ur, ok := userRecs[uid]
				if !ok {
					u := users[uid]
					ur = &UserBillingRecord{UserID: u.ID, UserName: u.Name, Role: u.Role}
					userRecs[uid] = ur
				}
				child := ProjectBillingRecord{
					ProjectID:        rec.ProjectID,
					ProjectName:      rec.ProjectName,
					ClientID:         rec.ClientID,
					ClientName:       rec.ClientName,
					Locked:           rec.Locked,
					WorkedHours:      rt.rec.WorkedHours,
					BillableHours:    rt.rec.BillableHours,
					NonBillableHours: rt.rec.NonBillableHours,
					Cost:             rt.rec.Cost,
				}
				ur.Projects = append(ur.Projects, child)
				ur.WorkedHours += child.WorkedHours
				ur.BillableHours += child.BillableHours
				ur.NonBillableHours += child.NonBillableHours
				ur.Cost += child.Cost
			}
		}
		for _, ur := range userRecs {
			sort.Slice(ur.Projects, func(i, j int) bool { return ur.Projects[i].ProjectName < ur.Projects[j].ProjectName })
			res.Users = append(res.Users, *ur)
		}
		sort.Slice(res.Users, func(i, j int) bool { return res.Users[i].UserName < res.Users[j].UserName })
		for _, u := range res.Users {
			res.Summary.TotalWorkedHours += u.WorkedHours
			res.Summary.TotalBillableHours += u.BillableHours
			res.Summary.TotalNonBillableHours += u.NonBillableHours
			res.Summary.TotalCost += u.Cost
		}

	default: // project axis
		for pid, rec := range projectRecs {
			for _, rt := range projectResources[pid] {
				rec.Resources = append(rec.Resources, rt.rec)
			}
			sort.Slice(rec.Resources, func(i, j int) bool { return rec.Resources[i].UserName < rec.Resources[j].UserName })
			for _, r := range rec.Resources {
				rec.WorkedHours += r.WorkedHours
				rec.BillableHours += r.BillableHours
				rec.NonBillableHours += r.NonBillableHours
				rec.Cost += r.Cost
			}
			res.Projects = append(res.Projects, *rec)
		}
		sort.Slice(res.Projects, func(i, j int) bool { return res.Projects[i].ProjectName < res.Projects[j].ProjectName })
		for _, pr := range res.Projects {
			res.Summary.TotalWorkedHours += pr.WorkedHours
			res.Summary.TotalBillableHours += pr.BillableHours
			res.Summary.TotalNonBillableHours += pr.NonBillableHours
			res.Summary.TotalCost += pr.Cost
		}
	}

	res.Summary.TimesheetAdjustmentHours = timesheetDeltas
	adjusted := res.Summary.TotalBillableHours + timesheetDeltas
	if adjusted < 0 {
		adjusted = 0
	}
	res.Summary.AdjustedBillableHours = adjusted

	return res
}

// resolveRate picks the hourly rate: task override, then project override,
// then the user's directory rate.
func resolveRate(task *models.Task, project *models.Project, user models.User) float64 {
	if task != nil && task.HourlyRate != nil {
		return *task.HourlyRate
	}
	if project != nil && project.HourlyRate != nil {
		return *project.HourlyRate
	}
	return user.HourlyRate
}

// addVerification accumulates a review's figures onto a resource row.
func addVerification(rec *UserBillingRecord, r *models.TimesheetReview) {
	if rec == nil || r == nil {
		return
	}
	addTo := func(dst **float64, v float64) {
		if *dst == nil {
			zero := 0.0
			*dst = &zero
		}
		**dst += v
	}
	addTo(&rec.VerifiedWorkedHours, r.VerifiedWorkedHours)
	addTo(&rec.ManagerAdjustment, r.ManagerAdjustment)
	addTo(&rec.VerifiedBillableHours, r.VerifiedBillableHours)
	if rec.VerifiedAt == nil || r.VerifiedAt.After(*rec.VerifiedAt) {
		at := r.VerifiedAt
		rec.VerifiedAt = &at
	}
}
