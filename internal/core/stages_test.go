package core

import (
	"errors"
	"testing"
	"time"

	"renobot/internal/database"
)

func setupProject(t *testing.T) (*StageService, *ProjectService, database.User, *database.Project) {
	t.Helper()
	db := testDB(t)
	projects := NewProjectService(db)
	stages := NewStageService(db)
	owner := testUser(t, db, 100, "Анна")
	project, err := projects.Create(owner.ID, ProjectInput{
		Name:           "Test",
		RenovationType: database.RenovationStandard,
		TotalBudget:    1000000,
	})
	if err != nil {
		t.Fatal(err)
	}
	return stages, projects, owner, project
}

func TestStageService_Launch(t *testing.T) {
	stages, projects, owner, project := setupProject(t)

	// Not ready: first stage has no dates
	if _, err := stages.Launch(project.ID, owner.ID); !errors.Is(err, ErrNotReady) {
		t.Fatalf("launch without dates: err = %v, expected ErrNotReady", err)
	}

	list, _ := stages.List(project.ID)
	first := list[0]
	start, _ := ParseDate("01.03.2026")
	end, _ := ParseDate("15.03.2026")
	if err := stages.SetDates(first.ID, &start, &end, owner.ID); err != nil {
		t.Fatal(err)
	}

	launched, err := stages.Launch(project.ID, owner.ID)
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if launched.ID != first.ID {
		t.Errorf("launched stage = %d, expected first stage %d", launched.ID, first.ID)
	}

	got, _ := stages.Get(first.ID)
	if got.Status != database.StageInProgress {
		t.Errorf("first stage status = %q, expected in_progress", got.Status)
	}
	fresh, _ := projects.Get(project.ID)
	if !fresh.IsLaunched {
		t.Error("project launched marker not set")
	}

	// Second launch is rejected, never duplicates the transition
	if _, err := stages.Launch(project.ID, owner.ID); !errors.Is(err, ErrAlreadyLaunched) {
		t.Errorf("second launch: err = %v, expected ErrAlreadyLaunched", err)
	}
}

func TestStageService_PaymentLifecycle(t *testing.T) {
	stages, _, owner, project := setupProject(t)
	list, _ := stages.List(project.ID)
	stage := list[0]

	before := countChangeLogs(t, stages.db, project.ID)

	steps := []database.PaymentStatus{
		database.PaymentInProgress,
		database.PaymentVerified,
		database.PaymentPaid,
		database.PaymentClosed,
	}
	for _, step := range steps {
		if err := stages.AdvancePayment(stage.ID, step, owner.ID); err != nil {
			t.Fatalf("AdvancePayment(%s): %v", step, err)
		}
	}

	if got := countChangeLogs(t, stages.db, project.ID) - before; got != 4 {
		t.Errorf("changelog rows = %d, expected 4", got)
	}

	var logs []database.ChangeLog
	stages.db.Where("project_id = ? AND field_name = ?", project.ID, "payment_status").
		Order("id").Find(&logs)
	wantOrder := []string{"in_progress", "verified", "paid", "closed"}
	for i, l := range logs {
		if l.NewValue != wantOrder[i] {
			t.Errorf("log %d new_value = %q, expected %q", i, l.NewValue, wantOrder[i])
		}
	}

	// Terminal state: no further transitions
	if err := stages.AdvancePayment(stage.ID, database.PaymentRecorded, owner.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("transition from closed: err = %v, expected ErrInvalidTransition", err)
	}
}

func TestStageService_PaymentNoSkipNoRollback(t *testing.T) {
	stages, _, owner, project := setupProject(t)
	list, _ := stages.List(project.ID)
	stage := list[0]

	// Skipping a step is rejected
	if err := stages.AdvancePayment(stage.ID, database.PaymentVerified, owner.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("skip: err = %v, expected ErrInvalidTransition", err)
	}

	if err := stages.AdvancePayment(stage.ID, database.PaymentInProgress, owner.ID); err != nil {
		t.Fatal(err)
	}
	// Rolling back is rejected
	if err := stages.AdvancePayment(stage.ID, database.PaymentRecorded, owner.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("rollback: err = %v, expected ErrInvalidTransition", err)
	}
}

func TestStageService_SetStatusLogsChange(t *testing.T) {
	stages, _, owner, project := setupProject(t)
	list, _ := stages.List(project.ID)
	stage := list[1]

	before := countChangeLogs(t, stages.db, project.ID)
	if err := stages.SetStatus(stage.ID, database.StageDelayed, owner.ID); err != nil {
		t.Fatal(err)
	}
	if got := countChangeLogs(t, stages.db, project.ID) - before; got != 1 {
		t.Errorf("changelog rows = %d, expected 1", got)
	}

	// Same status again writes nothing
	if err := stages.SetStatus(stage.ID, database.StageDelayed, owner.ID); err != nil {
		t.Fatal(err)
	}
	if got := countChangeLogs(t, stages.db, project.ID) - before; got != 1 {
		t.Errorf("no-op transition added a changelog row")
	}
}

func TestStageService_EditFields(t *testing.T) {
	stages, _, owner, project := setupProject(t)
	list, _ := stages.List(project.ID)
	stage := list[0]

	before := countChangeLogs(t, stages.db, project.ID)
	if err := stages.SetResponsible(stage.ID, "@petrov", owner.ID); err != nil {
		t.Fatal(err)
	}
	if err := stages.SetBudget(stage.ID, 150000, owner.ID); err != nil {
		t.Fatal(err)
	}

	got, _ := stages.Get(stage.ID)
	if got.ResponsibleContact != "@petrov" {
		t.Errorf("responsible = %q", got.ResponsibleContact)
	}
	if got.Budget != 150000 {
		t.Errorf("budget = %v", got.Budget)
	}
	if logs := countChangeLogs(t, stages.db, project.ID) - before; logs != 2 {
		t.Errorf("changelog rows = %d, expected 2", logs)
	}
}

func TestStageService_AddSubStages(t *testing.T) {
	stages, _, _, project := setupProject(t)
	list, _ := stages.List(project.ID)
	stage := list[0]

	created, err := stages.AddSubStages(stage.ID, []string{"Убрать плитку", "Поднять пол"})
	if err != nil {
		t.Fatalf("AddSubStages: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("created = %d, expected 2", len(created))
	}
	if created[0].SortOrder != 1 || created[1].SortOrder != 2 {
		t.Errorf("orders = %d, %d", created[0].SortOrder, created[1].SortOrder)
	}

	more, err := stages.AddSubStages(stage.ID, []string{"Вывоз мусора"})
	if err != nil {
		t.Fatal(err)
	}
	if more[0].SortOrder != 3 {
		t.Errorf("appended order = %d, expected 3", more[0].SortOrder)
	}
}

func TestStageService_AssignedTo(t *testing.T) {
	stages, _, owner, project := setupProject(t)
	list, _ := stages.List(project.ID)

	worker := testUser(t, stages.db, 200, "Пётр Мастеров")
	worker.Username = "petrov"
	stages.db.Save(&worker)

	stages.SetResponsible(list[0].ID, "@petrov", owner.ID)
	stages.SetResponsible(list[1].ID, "Пётр Мастеров", owner.ID)
	stages.SetResponsible(list[2].ID, "@someoneelse", owner.ID)

	mine, err := stages.AssignedTo(project.ID, &worker)
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 2 {
		t.Fatalf("assigned stages = %d, expected 2", len(mine))
	}
	if mine[0].ID != list[0].ID || mine[1].ID != list[1].ID {
		t.Errorf("assigned = %d, %d, expected stages %d and %d", mine[0].ID, mine[1].ID, list[0].ID, list[1].ID)
	}

	// No username and no matching name: nothing assigned
	ghost := database.User{}
	if got, _ := stages.AssignedTo(project.ID, &ghost); len(got) != 0 {
		t.Errorf("contactless user got %d stages", len(got))
	}
}

func TestStageService_NextStage(t *testing.T) {
	stages, _, owner, project := setupProject(t)
	list, _ := stages.List(project.ID)

	// Before launch: no current, next is the first planned stage
	current, next, err := stages.NextStage(project.ID)
	if err != nil {
		t.Fatal(err)
	}
	if current != nil {
		t.Errorf("current = %+v, expected nil", current)
	}
	if next == nil || next.ID != list[0].ID {
		t.Errorf("next = %+v, expected first stage", next)
	}

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	stages.SetDates(list[0].ID, &start, &end, owner.ID)
	stages.Launch(project.ID, owner.ID)

	current, next, err = stages.NextStage(project.ID)
	if err != nil {
		t.Fatal(err)
	}
	if current == nil || current.ID != list[0].ID {
		t.Errorf("current = %+v, expected first stage", current)
	}
	if next == nil || next.ID != list[1].ID {
		t.Errorf("next = %+v, expected second stage", next)
	}
}
