package billing_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/billing"
	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/errs"
	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/models"
)

func TestUpsertAdjustmentCreatesThenUpdates(t *testing.T) {
	db := newTestDB(t)
	actor := billing.Actor{ID: 1, Name: "manager"}

	user := seedUser(t, db, "alice", models.RoleEmployee, 50)
	project := seedProject(t, db, "Acme", "Platform", nil)
	week := day(2026, time.January, 5)
	ts := seedTimesheet(t, db, user.ID, week, models.StatusApproved)

	in := billing.UpsertAdjustmentInput{
		TimesheetID: ts.ID,
		UserID:      user.ID,
		Scope:       models.ScopeProject,
		ProjectID:   &project.ID,
		PeriodStart: week,
		PeriodEnd:   week.AddDate(0, 0, 6),
		WorkedHours: 40,
		Delta:       -5,
		Reason:      "client dispute",
	}

	created, err := billing.UpsertAdjustment(db, in, actor)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.AdjustmentHours != -5 {
		t.Errorf("delta = %v, want -5", created.AdjustmentHours)
	}
	if created.TotalBillableHours != 35 {
		t.Errorf("total billable = %v, want 35", created.TotalBillableHours)
	}
	if created.OriginalBillableHours != 40 || created.AdjustedBillableHours != 35 {
		t.Errorf("legacy mirrors = (%v, %v), want (40, 35)", created.OriginalBillableHours, created.AdjustedBillableHours)
	}

	// A second write on the same scope replaces the correction in place.
	in.Delta = -8
	in.WorkedHours = 38
	updated, err := billing.UpsertAdjustment(db, in, actor)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ID != created.ID {
		t.Errorf("update created a second row: id %d vs %d", updated.ID, created.ID)
	}
	if updated.TotalBillableHours != 30 {
		t.Errorf("total billable = %v, want 30", updated.TotalBillableHours)
	}
	// Legacy mirrors stay at their create-time values.
	if updated.OriginalBillableHours != 40 || updated.AdjustedBillableHours != 35 {
		t.Errorf("legacy mirrors changed on update: (%v, %v)", updated.OriginalBillableHours, updated.AdjustedBillableHours)
	}

	var count int64
	db.Model(&models.BillingAdjustment{}).Where("deleted_at IS NULL").Count(&count)
	if count != 1 {
		t.Errorf("live adjustments = %d, want 1", count)
	}
}

func TestUpsertAdjustmentScopeValidation(t *testing.T) {
	db := newTestDB(t)
	actor := billing.Actor{ID: 1, Name: "manager"}

	user := seedUser(t, db, "bob", models.RoleEmployee, 40)
	project := seedProject(t, db, "Globex", "Mobile", nil)
	week := day(2026, time.February, 2)
	ts := seedTimesheet(t, db, user.ID, week, models.StatusApproved)

	base := billing.UpsertAdjustmentInput{
		TimesheetID: ts.ID,
		UserID:      user.ID,
		PeriodStart: week,
		PeriodEnd:   week.AddDate(0, 0, 6),
		WorkedHours: 40,
		Delta:       2,
	}

	noProject := base
	noProject.Scope = models.ScopeProject
	if _, err := billing.UpsertAdjustment(db, noProject, actor); errs.KindOf(err) != errs.KindValidation {
		t.Errorf("project scope without project: err = %v, want validation error", err)
	}

	// Timesheet scope drops any project/task target instead of failing.
	taskID := uint(99)
	tsScope := base
	tsScope.Scope = models.ScopeTimesheet
	tsScope.ProjectID = &project.ID
	tsScope.TaskID = &taskID
	adj, err := billing.UpsertAdjustment(db, tsScope, actor)
	if err != nil {
		t.Fatalf("timesheet scope: %v", err)
	}
	if adj.ProjectID != nil || adj.TaskID != nil {
		t.Errorf("timesheet scope kept targets: project %v, task %v", adj.ProjectID, adj.TaskID)
	}

	bad := base
	bad.Scope = "weekly"
	if _, err := billing.UpsertAdjustment(db, bad, actor); errs.KindOf(err) != errs.KindValidation {
		t.Errorf("invalid scope: err = %v, want validation error", err)
	}
}

func TestUpsertAdjustmentScopeSwitchRetargetsProjectRow(t *testing.T) {
	db := newTestDB(t)
	actor := billing.Actor{ID: 1, Name: "manager"}

	user := seedUser(t, db, "alice", models.RoleEmployee, 50)
	project := seedProject(t, db, "Acme", "Platform", nil)
	week := day(2026, time.January, 5)
	ts := seedTimesheet(t, db, user.ID, week, models.StatusApproved)
	seedProjectEntry(t, db, ts, project.ID, week, 40, 40)

	in := billing.UpsertAdjustmentInput{
		TimesheetID: ts.ID,
		UserID:      user.ID,
		Scope:       models.ScopeProject,
		ProjectID:   &project.ID,
		PeriodStart: week,
		PeriodEnd:   week.AddDate(0, 0, 6),
		WorkedHours: 40,
		Delta:       -5,
	}
	created, err := billing.UpsertAdjustment(db, in, actor)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// The same correction saved again with timesheet scope re-targets the
	// existing row instead of leaving the project-scope one live underneath.
	in.Scope = models.ScopeTimesheet
	in.ProjectID = nil
	switched, err := billing.UpsertAdjustment(db, in, actor)
	if err != nil {
		t.Fatalf("scope switch: %v", err)
	}
	if switched.ID != created.ID {
		t.Errorf("scope switch created a second row: id %d vs %d", switched.ID, created.ID)
	}
	if switched.Scope != models.ScopeTimesheet || switched.ProjectID != nil || switched.TaskID != nil {
		t.Errorf("switched row still carries project targets: %+v", switched)
	}

	var live int64
	db.Model(&models.BillingAdjustment{}).Where("deleted_at IS NULL").Count(&live)
	if live != 1 {
		t.Fatalf("live adjustments after scope switch = %d, want 1", live)
	}

	// The project axis goes back to the raw sum; the delta survives only on
	// the whole-timesheet totals.
	res := billing.Aggregate(context.Background(), db, billing.AggregateParams{
		StartDate: week,
		EndDate:   week.AddDate(0, 0, 6),
		View:      billing.ViewWeekly,
		GroupBy:   billing.GroupByProject,
	})
	if res.Error != "" {
		t.Fatalf("unexpected degrade: %s", res.Error)
	}
	if res.Projects[0].BillableHours != 40 {
		t.Errorf("project billable after scope switch = %v, want 40", res.Projects[0].BillableHours)
	}
	if res.Summary.TimesheetAdjustmentHours != -5 || res.Summary.AdjustedBillableHours != 35 {
		t.Errorf("summary = (%v, %v), want (-5, 35)",
			res.Summary.TimesheetAdjustmentHours, res.Summary.AdjustedBillableHours)
	}
}

func TestUpsertAdjustmentScopeSwitchSupersedesAllProjectRows(t *testing.T) {
	db := newTestDB(t)
	actor := billing.Actor{ID: 1, Name: "manager"}

	user := seedUser(t, db, "alice", models.RoleEmployee, 50)
	acme := seedProject(t, db, "Acme", "Platform", nil)
	globex := seedProject(t, db, "Globex", "Mobile", nil)
	week := day(2026, time.February, 2)
	ts := seedTimesheet(t, db, user.ID, week, models.StatusApproved)

	in := billing.UpsertAdjustmentInput{
		TimesheetID: ts.ID,
		UserID:      user.ID,
		Scope:       models.ScopeProject,
		ProjectID:   &acme.ID,
		PeriodStart: week,
		PeriodEnd:   week.AddDate(0, 0, 6),
		WorkedHours: 20,
		Delta:       -2,
	}
	if _, err := billing.UpsertAdjustment(db, in, actor); err != nil {
		t.Fatalf("first project row: %v", err)
	}
	in.ProjectID = &globex.ID
	if _, err := billing.UpsertAdjustment(db, in, actor); err != nil {
		t.Fatalf("second project row: %v", err)
	}

	in.Scope = models.ScopeTimesheet
	in.ProjectID = nil
	switched, err := billing.UpsertAdjustment(db, in, actor)
	if err != nil {
		t.Fatalf("scope switch: %v", err)
	}

	var live []models.BillingAdjustment
	db.Where("deleted_at IS NULL").Find(&live)
	if len(live) != 1 || live[0].ID != switched.ID {
		t.Fatalf("live adjustments = %d, want only the timesheet-scope row", len(live))
	}

	// The superseded row keeps its history with the key slot released.
	var retired []models.BillingAdjustment
	db.Where("deleted_at IS NOT NULL AND timesheet_id = ?", ts.ID).Find(&retired)
	if len(retired) != 1 {
		t.Fatalf("retired adjustments = %d, want 1", len(retired))
	}
	if retired[0].ScopeKey == models.AdjustmentScopeKey(ts.ID, models.ScopeProject, retired[0].ProjectID) {
		t.Error("retired row still claims its live scope key")
	}
}

func TestUpsertAdjustmentConcurrentWritersKeepOneRow(t *testing.T) {
	db := newTestDB(t)

	user := seedUser(t, db, "alice", models.RoleEmployee, 50)
	project := seedProject(t, db, "Acme", "Platform", nil)
	week := day(2026, time.March, 2)
	ts := seedTimesheet(t, db, user.ID, week, models.StatusApproved)

	const writers = 6
	errCh := make(chan error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(delta float64) {
			defer wg.Done()
			_, err := billing.UpsertAdjustment(db, billing.UpsertAdjustmentInput{
				TimesheetID: ts.ID,
				UserID:      user.ID,
				Scope:       models.ScopeProject,
				ProjectID:   &project.ID,
				PeriodStart: week,
				PeriodEnd:   week.AddDate(0, 0, 6),
				WorkedHours: 40,
				Delta:       delta,
			}, billing.Actor{ID: 1, Name: "manager"})
			errCh <- err
		}(float64(-i))
	}
	wg.Wait()
	close(errCh)

	var succeeded int
	for err := range errCh {
		switch {
		case err == nil:
			succeeded++
		case errs.KindOf(err) == errs.KindConflict:
			// Losing every retry is a legal outcome for an individual writer.
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded == 0 {
		t.Error("no writer got through")
	}

	var live int64
	db.Model(&models.BillingAdjustment{}).Where("deleted_at IS NULL").Count(&live)
	if live != 1 {
		t.Errorf("live adjustments after concurrent writes = %d, want 1", live)
	}
}

func TestUpsertAdjustmentGivesUpAfterRetries(t *testing.T) {
	db := newTestDB(t)
	actor := billing.Actor{ID: 1, Name: "manager"}

	user := seedUser(t, db, "alice", models.RoleEmployee, 50)
	project := seedProject(t, db, "Acme", "Platform", nil)
	week := day(2026, time.March, 9)
	ts := seedTimesheet(t, db, user.ID, week, models.StatusApproved)

	// A row that holds the key while being invisible to the live lookup makes
	// every insert attempt collide, which is what an unresolvable race looks
	// like from inside the loop.
	now := time.Now()
	wedge := models.BillingAdjustment{
		TimesheetID: ts.ID,
		UserID:      user.ID,
		Scope:       models.ScopeProject,
		ProjectID:   &project.ID,
		PeriodStart: week,
		PeriodEnd:   week.AddDate(0, 0, 6),
		ScopeKey:    models.AdjustmentScopeKey(ts.ID, models.ScopeProject, &project.ID),
		DeletedAt:   &now,
	}
	if err := db.Create(&wedge).Error; err != nil {
		t.Fatalf("seed conflicting row: %v", err)
	}

	_, err := billing.UpsertAdjustment(db, billing.UpsertAdjustmentInput{
		TimesheetID: ts.ID,
		UserID:      user.ID,
		Scope:       models.ScopeProject,
		ProjectID:   &project.ID,
		PeriodStart: week,
		PeriodEnd:   week.AddDate(0, 0, 6),
		WorkedHours: 40,
		Delta:       -5,
	}, actor)
	if errs.KindOf(err) != errs.KindConflict {
		t.Errorf("exhausted retries: err = %v, want conflict error", err)
	}
}

func TestUpsertAdjustmentLockedProject(t *testing.T) {
	db := newTestDB(t)
	actor := billing.Actor{ID: 1, Name: "manager"}

	user := seedUser(t, db, "carol", models.RoleEmployee, 60)
	ended := day(2025, time.June, 30)
	project := seedProject(t, db, "Initech", "Legacy", &ended)
	week := day(2025, time.June, 23)
	ts := seedTimesheet(t, db, user.ID, week, models.StatusApproved)

	_, err := billing.UpsertAdjustment(db, billing.UpsertAdjustmentInput{
		TimesheetID: ts.ID,
		UserID:      user.ID,
		Scope:       models.ScopeProject,
		ProjectID:   &project.ID,
		PeriodStart: week,
		PeriodEnd:   week.AddDate(0, 0, 6),
		WorkedHours: 40,
		Delta:       -2,
	}, actor)
	if errs.KindOf(err) != errs.KindAuthorization {
		t.Errorf("locked project write: err = %v, want authorization error", err)
	}
}

func TestUpsertAdjustmentDerivedTotalFloorsAtZero(t *testing.T) {
	db := newTestDB(t)
	actor := billing.Actor{ID: 1, Name: "manager"}

	user := seedUser(t, db, "dave", models.RoleEmployee, 45)
	project := seedProject(t, db, "Umbrella", "Research", nil)
	week := day(2026, time.March, 2)
	ts := seedTimesheet(t, db, user.ID, week, models.StatusApproved)

	adj, err := billing.UpsertAdjustment(db, billing.UpsertAdjustmentInput{
		TimesheetID: ts.ID,
		UserID:      user.ID,
		Scope:       models.ScopeProject,
		ProjectID:   &project.ID,
		PeriodStart: week,
		PeriodEnd:   week.AddDate(0, 0, 6),
		WorkedHours: 10,
		Delta:       -25,
	}, actor)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if adj.TotalBillableHours != 0 {
		t.Errorf("total billable = %v, want 0", adj.TotalBillableHours)
	}
	if adj.AdjustmentHours != -25 {
		t.Errorf("delta = %v, want -25 preserved verbatim", adj.AdjustmentHours)
	}
}

func TestSoftDeleteAdjustmentFreesTheSlot(t *testing.T) {
	db := newTestDB(t)
	actor := billing.Actor{ID: 1, Name: "manager"}

	user := seedUser(t, db, "erin", models.RoleEmployee, 55)
	project := seedProject(t, db, "Hooli", "Compression", nil)
	week := day(2026, time.April, 6)
	ts := seedTimesheet(t, db, user.ID, week, models.StatusApproved)

	in := billing.UpsertAdjustmentInput{
		TimesheetID: ts.ID,
		UserID:      user.ID,
		Scope:       models.ScopeProject,
		ProjectID:   &project.ID,
		PeriodStart: week,
		PeriodEnd:   week.AddDate(0, 0, 6),
		WorkedHours: 32,
		Delta:       4,
	}

	first, err := billing.UpsertAdjustment(db, in, actor)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := billing.SoftDeleteAdjustment(db, first.ID, actor); err != nil {
		t.Fatalf("delete: %v", err)
	}

	// The retired row keeps its history but no longer holds the unique slot.
	var dead models.BillingAdjustment
	if err := db.First(&dead, first.ID).Error; err != nil {
		t.Fatalf("deleted row gone from storage: %v", err)
	}
	if dead.DeletedAt == nil {
		t.Error("deleted row has no deletion timestamp")
	}
	liveKey := models.AdjustmentScopeKey(ts.ID, models.ScopeProject, &project.ID)
	if dead.ScopeKey == liveKey {
		t.Error("deleted row still claims the live scope key")
	}

	second, err := billing.UpsertAdjustment(db, in, actor)
	if err != nil {
		t.Fatalf("re-create after delete: %v", err)
	}
	if second.ID == first.ID {
		t.Error("expected a fresh row after soft delete")
	}
	if second.ScopeKey != liveKey {
		t.Errorf("successor scope key = %q, want %q", second.ScopeKey, liveKey)
	}

	if err := billing.SoftDeleteAdjustment(db, first.ID, actor); errs.KindOf(err) != errs.KindNotFound {
		t.Errorf("double delete: err = %v, want not-found error", err)
	}
}
