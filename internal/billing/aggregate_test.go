package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/billing"
	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/models"
)

func TestAggregateProjectAxis(t *testing.T) {
	db := newTestDB(t)
	actor := billing.Actor{ID: 1, Name: "manager"}

	alice := seedUser(t, db, "alice", models.RoleEmployee, 50)
	bob := seedUser(t, db, "bob", models.RoleLead, 80)
	project := seedProject(t, db, "Acme", "Platform", nil)

	week := day(2026, time.January, 5)
	tsAlice := seedTimesheet(t, db, alice.ID, week, models.StatusApproved)
	tsBob := seedTimesheet(t, db, bob.ID, week, models.StatusApproved)

	seedProjectEntry(t, db, tsAlice, project.ID, week, 40, 40)
	seedProjectEntry(t, db, tsBob, project.ID, week.AddDate(0, 0, 1), 35, 35)

	// Alice's hours get a -5 correction; Bob's week has a verified baseline
	// of 32 billable hours.
	if _, err := billing.UpsertAdjustment(db, billing.UpsertAdjustmentInput{
		TimesheetID: tsAlice.ID,
		UserID:      alice.ID,
		Scope:       models.ScopeProject,
		ProjectID:   &project.ID,
		PeriodStart: week,
		PeriodEnd:   week.AddDate(0, 0, 6),
		WorkedHours: 40,
		Delta:       -5,
	}, actor); err != nil {
		t.Fatalf("adjustment: %v", err)
	}
	review := models.TimesheetReview{
		ProjectID:             project.ID,
		UserID:                bob.ID,
		WeekStartDate:         week,
		VerifiedWorkedHours:   35,
		ManagerAdjustment:     -3,
		VerifiedBillableHours: 32,
		VerifiedBy:            actor.ID,
		VerifiedAt:            time.Now(),
	}
	if err := db.Create(&review).Error; err != nil {
		t.Fatalf("review: %v", err)
	}

	res := billing.Aggregate(context.Background(), db, billing.AggregateParams{
		StartDate: week,
		EndDate:   week.AddDate(0, 0, 6),
		View:      billing.ViewWeekly,
		GroupBy:   billing.GroupByProject,
	})
	if res.Error != "" {
		t.Fatalf("unexpected degrade: %s", res.Error)
	}
	if len(res.Projects) != 1 {
		t.Fatalf("projects = %d, want 1", len(res.Projects))
	}

	pr := res.Projects[0]
	if pr.WorkedHours != 75 {
		t.Errorf("project worked = %v, want 75", pr.WorkedHours)
	}
	// 40 - 5 for alice, verified 32 for bob
	if pr.BillableHours != 67 {
		t.Errorf("project billable = %v, want 67", pr.BillableHours)
	}
	if len(pr.Resources) != 2 {
		t.Fatalf("resources = %d, want 2", len(pr.Resources))
	}

	// Parent rows are straight sums of their children.
	var worked, billable, cost float64
	for _, r := range pr.Resources {
		worked += r.WorkedHours
		billable += r.BillableHours
		cost += r.Cost
	}
	if worked != pr.WorkedHours || billable != pr.BillableHours || cost != pr.Cost {
		t.Errorf("parent (%v, %v, %v) != sum of children (%v, %v, %v)",
			pr.WorkedHours, pr.BillableHours, pr.Cost, worked, billable, cost)
	}

	// Resources sort by name: alice first.
	if pr.Resources[0].UserName != "alice" || pr.Resources[1].UserName != "bob" {
		t.Fatalf("unexpected resource order: %s, %s", pr.Resources[0].UserName, pr.Resources[1].UserName)
	}
	if pr.Resources[0].BillableHours != 35 {
		t.Errorf("alice billable = %v, want 35", pr.Resources[0].BillableHours)
	}
	if pr.Resources[0].Cost != 35*50 {
		t.Errorf("alice cost = %v, want %v", pr.Resources[0].Cost, 35*50)
	}
	if pr.Resources[1].BillableHours != 32 {
		t.Errorf("bob billable = %v, want 32", pr.Resources[1].BillableHours)
	}
	if pr.Resources[1].VerifiedBillableHours == nil || *pr.Resources[1].VerifiedBillableHours != 32 {
		t.Errorf("bob verification figures missing from the row")
	}

	if res.Summary.TotalWorkedHours != 75 || res.Summary.TotalBillableHours != 67 {
		t.Errorf("summary = (%v, %v), want (75, 67)", res.Summary.TotalWorkedHours, res.Summary.TotalBillableHours)
	}
}

func TestAggregateReappliesStoredDeltaToFreshSums(t *testing.T) {
	db := newTestDB(t)
	actor := billing.Actor{ID: 1, Name: "manager"}

	user := seedUser(t, db, "alice", models.RoleEmployee, 50)
	project := seedProject(t, db, "Acme", "Platform", nil)
	week := day(2026, time.January, 5)
	ts := seedTimesheet(t, db, user.ID, week, models.StatusApproved)
	seedProjectEntry(t, db, ts, project.ID, week, 40, 40)

	if _, err := billing.UpsertAdjustment(db, billing.UpsertAdjustmentInput{
		TimesheetID: ts.ID,
		UserID:      user.ID,
		Scope:       models.ScopeProject,
		ProjectID:   &project.ID,
		PeriodStart: week,
		PeriodEnd:   week.AddDate(0, 0, 6),
		WorkedHours: 40,
		Delta:       -5,
	}, actor); err != nil {
		t.Fatalf("adjustment: %v", err)
	}

	params := billing.AggregateParams{
		StartDate: week,
		EndDate:   week.AddDate(0, 0, 6),
		View:      billing.ViewWeekly,
		GroupBy:   billing.GroupByProject,
	}
	res := billing.Aggregate(context.Background(), db, params)
	if res.Projects[0].BillableHours != 35 {
		t.Fatalf("billable = %v, want 35", res.Projects[0].BillableHours)
	}

	// More hours land after the correction was written; the stored delta is
	// reapplied against the fresh worked sum, not frozen at write time.
	seedProjectEntry(t, db, ts, project.ID, week.AddDate(0, 0, 2), 20, 20)
	res = billing.Aggregate(context.Background(), db, params)
	if res.Projects[0].WorkedHours != 60 {
		t.Errorf("worked = %v, want 60", res.Projects[0].WorkedHours)
	}
	if res.Projects[0].BillableHours != 55 {
		t.Errorf("billable = %v, want 55 (60 worked - 5 delta)", res.Projects[0].BillableHours)
	}
}

func TestAggregateSurfacesReviewOnlyWeeks(t *testing.T) {
	db := newTestDB(t)

	user := seedUser(t, db, "alice", models.RoleEmployee, 50)
	project := seedProject(t, db, "Acme", "Platform", nil)
	week := day(2026, time.January, 5)
	ts := seedTimesheet(t, db, user.ID, week, models.StatusApproved)

	// All of the week's entries are gone; only the verified baseline remains.
	entry := seedProjectEntry(t, db, ts, project.ID, week, 35, 35)
	now := time.Now()
	entry.DeletedAt = &now
	if err := db.Save(&entry).Error; err != nil {
		t.Fatalf("soft delete entry: %v", err)
	}
	review := models.TimesheetReview{
		ProjectID:             project.ID,
		UserID:                user.ID,
		WeekStartDate:         week,
		VerifiedWorkedHours:   35,
		VerifiedBillableHours: 32,
		VerifiedAt:            now,
	}
	if err := db.Create(&review).Error; err != nil {
		t.Fatalf("review: %v", err)
	}

	res := billing.Aggregate(context.Background(), db, billing.AggregateParams{
		StartDate: week,
		EndDate:   week.AddDate(0, 0, 6),
		View:      billing.ViewWeekly,
		GroupBy:   billing.GroupByProject,
	})
	if res.Error != "" {
		t.Fatalf("unexpected degrade: %s", res.Error)
	}
	if len(res.Projects) != 1 {
		t.Fatalf("projects = %d, want the verified week to surface", len(res.Projects))
	}
	if res.Projects[0].BillableHours != 32 {
		t.Errorf("billable = %v, want the verified 32", res.Projects[0].BillableHours)
	}
	if res.Summary.TotalBillableHours != 32 {
		t.Errorf("summary billable = %v, want 32", res.Summary.TotalBillableHours)
	}
}

func TestAggregateExcludesDraftsAndDeletedEntries(t *testing.T) {
	db := newTestDB(t)

	user := seedUser(t, db, "alice", models.RoleEmployee, 50)
	project := seedProject(t, db, "Acme", "Platform", nil)

	week := day(2026, time.January, 5)
	draft := seedTimesheet(t, db, user.ID, week, models.StatusDraft)
	seedProjectEntry(t, db, draft, project.ID, week, 8, 8)

	nextWeek := week.AddDate(0, 0, 7)
	approved := seedTimesheet(t, db, user.ID, nextWeek, models.StatusApproved)
	seedProjectEntry(t, db, approved, project.ID, nextWeek, 8, 8)
	gone := seedProjectEntry(t, db, approved, project.ID, nextWeek.AddDate(0, 0, 1), 6, 6)
	now := time.Now()
	gone.DeletedAt = &now
	if err := db.Save(&gone).Error; err != nil {
		t.Fatalf("soft delete entry: %v", err)
	}

	res := billing.Aggregate(context.Background(), db, billing.AggregateParams{
		StartDate: week,
		EndDate:   nextWeek.AddDate(0, 0, 6),
		View:      billing.ViewWeekly,
		GroupBy:   billing.GroupByProject,
	})
	if res.Error != "" {
		t.Fatalf("unexpected degrade: %s", res.Error)
	}
	if res.Summary.TotalWorkedHours != 8 {
		t.Errorf("total worked = %v, want 8 (draft week and deleted entry excluded)", res.Summary.TotalWorkedHours)
	}
}

func TestAggregateTimesheetScopeOnlyTouchesSummary(t *testing.T) {
	db := newTestDB(t)
	actor := billing.Actor{ID: 1, Name: "manager"}

	user := seedUser(t, db, "alice", models.RoleEmployee, 50)
	project := seedProject(t, db, "Acme", "Platform", nil)
	week := day(2026, time.January, 5)
	ts := seedTimesheet(t, db, user.ID, week, models.StatusApproved)
	seedProjectEntry(t, db, ts, project.ID, week, 40, 40)

	if _, err := billing.UpsertAdjustment(db, billing.UpsertAdjustmentInput{
		TimesheetID: ts.ID,
		UserID:      user.ID,
		Scope:       models.ScopeTimesheet,
		PeriodStart: week,
		PeriodEnd:   week.AddDate(0, 0, 6),
		WorkedHours: 40,
		Delta:       -3,
	}, actor); err != nil {
		t.Fatalf("adjustment: %v", err)
	}

	res := billing.Aggregate(context.Background(), db, billing.AggregateParams{
		StartDate: week,
		EndDate:   week.AddDate(0, 0, 6),
		View:      billing.ViewWeekly,
		GroupBy:   billing.GroupByProject,
	})
	if res.Error != "" {
		t.Fatalf("unexpected degrade: %s", res.Error)
	}

	// Project rows keep their raw figures; the whole-timesheet correction
	// shows up only on the summary.
	if res.Projects[0].BillableHours != 40 {
		t.Errorf("project billable = %v, want 40", res.Projects[0].BillableHours)
	}
	if res.Summary.TimesheetAdjustmentHours != -3 {
		t.Errorf("timesheet adjustment = %v, want -3", res.Summary.TimesheetAdjustmentHours)
	}
	if res.Summary.AdjustedBillableHours != 37 {
		t.Errorf("adjusted billable = %v, want 37", res.Summary.AdjustedBillableHours)
	}
}

func TestAggregateFilters(t *testing.T) {
	db := newTestDB(t)

	alice := seedUser(t, db, "alice", models.RoleEmployee, 50)
	bob := seedUser(t, db, "bob", models.RoleLead, 80)
	acme := seedProject(t, db, "Acme", "Platform", nil)
	globex := seedProject(t, db, "Globex", "Mobile", nil)

	week := day(2026, time.January, 5)
	tsAlice := seedTimesheet(t, db, alice.ID, week, models.StatusApproved)
	tsBob := seedTimesheet(t, db, bob.ID, week, models.StatusApproved)
	seedProjectEntry(t, db, tsAlice, acme.ID, week, 8, 8)
	seedProjectEntry(t, db, tsBob, globex.ID, week, 6, 6)

	base := billing.AggregateParams{
		StartDate: week,
		EndDate:   week.AddDate(0, 0, 6),
		View:      billing.ViewWeekly,
		GroupBy:   billing.GroupByProject,
	}

	byRole := base
	byRole.Roles = []models.UserRole{models.RoleLead}
	res := billing.Aggregate(context.Background(), db, byRole)
	if len(res.Projects) != 1 || res.Projects[0].ProjectName != "Mobile" {
		t.Errorf("role filter: got %d project(s), want only Mobile", len(res.Projects))
	}

	byProject := base
	byProject.ProjectIDs = []uint{acme.ID}
	res = billing.Aggregate(context.Background(), db, byProject)
	if len(res.Projects) != 1 || res.Projects[0].ProjectID != acme.ID {
		t.Errorf("project filter: got %d project(s), want only Platform", len(res.Projects))
	}

	bySearch := base
	bySearch.Search = "ALICE"
	res = billing.Aggregate(context.Background(), db, bySearch)
	if res.Summary.TotalWorkedHours != 8 {
		t.Errorf("search filter: total worked = %v, want 8", res.Summary.TotalWorkedHours)
	}
}

func TestAggregateUserAxisChildrenSumUp(t *testing.T) {
	db := newTestDB(t)

	alice := seedUser(t, db, "alice", models.RoleEmployee, 50)
	acme := seedProject(t, db, "Acme", "Platform", nil)
	globex := seedProject(t, db, "Globex", "Mobile", nil)

	week := day(2026, time.January, 5)
	ts := seedTimesheet(t, db, alice.ID, week, models.StatusApproved)
	seedProjectEntry(t, db, ts, acme.ID, week, 20, 20)
	seedProjectEntry(t, db, ts, globex.ID, week.AddDate(0, 0, 2), 15, 10)

	res := billing.Aggregate(context.Background(), db, billing.AggregateParams{
		StartDate: week,
		EndDate:   week.AddDate(0, 0, 6),
		View:      billing.ViewWeekly,
		GroupBy:   billing.GroupByUser,
	})
	if res.Error != "" {
		t.Fatalf("unexpected degrade: %s", res.Error)
	}
	if len(res.Users) != 1 {
		t.Fatalf("users = %d, want 1", len(res.Users))
	}

	u := res.Users[0]
	if len(u.Projects) != 2 {
		t.Fatalf("user projects = %d, want 2", len(u.Projects))
	}
	var worked, billable float64
	for _, p := range u.Projects {
		worked += p.WorkedHours
		billable += p.BillableHours
	}
	if worked != u.WorkedHours || billable != u.BillableHours {
		t.Errorf("user row (%v, %v) != sum of project children (%v, %v)",
			u.WorkedHours, u.BillableHours, worked, billable)
	}
	if u.WorkedHours != 35 || u.BillableHours != 30 {
		t.Errorf("user totals = (%v, %v), want (35, 30)", u.WorkedHours, u.BillableHours)
	}
}

func TestAggregateDegradesInsteadOfFailing(t *testing.T) {
	db := newTestDB(t)

	user := seedUser(t, db, "alice", models.RoleEmployee, 50)
	project := seedProject(t, db, "Acme", "Platform", nil)
	week := day(2026, time.January, 5)
	ts := seedTimesheet(t, db, user.ID, week, models.StatusApproved)
	seedProjectEntry(t, db, ts, project.ID, week, 8, 8)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := billing.Aggregate(ctx, db, billing.AggregateParams{
		StartDate: week,
		EndDate:   week.AddDate(0, 0, 6),
		View:      billing.ViewWeekly,
		GroupBy:   billing.GroupByProject,
	})
	if res.Error == "" {
		t.Fatal("expected a degrade explanation on a dead context")
	}
	if len(res.Projects) != 0 || res.Summary.TotalWorkedHours != 0 {
		t.Error("degraded result must be empty, not partial")
	}
}
