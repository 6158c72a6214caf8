package core

import (
	"testing"
	"time"

	"renobot/internal/database"
)

func setupReport(t *testing.T) (*ReportService, *StageService, database.User, *database.Project) {
	t.Helper()
	db := testDB(t)
	projects := NewProjectService(db)
	stages := NewStageService(db)
	roles := NewRoleService(db)
	budget := NewBudgetService(db, roles)
	reports := NewReportService(db, budget, 3)
	owner := testUser(t, db, 100, "Анна")
	project, err := projects.Create(owner.ID, ProjectInput{
		Name:           "Test",
		RenovationType: database.RenovationStandard,
		TotalBudget:    1000000,
	})
	if err != nil {
		t.Fatal(err)
	}
	return reports, stages, owner, project
}

func TestReportService_Counts(t *testing.T) {
	reports, stages, owner, project := setupReport(t)
	list, _ := stages.List(project.ID)

	stages.SetStatus(list[0].ID, database.StageCompleted, owner.ID)
	stages.SetStatus(list[1].ID, database.StageInProgress, owner.ID)
	stages.SetStatus(list[2].ID, database.StageDelayed, owner.ID)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	report, err := reports.Build(project.ID, now)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if report.Counts.Total != 13 {
		t.Errorf("total = %d, expected 13", report.Counts.Total)
	}
	if report.Counts.Completed != 1 || report.Counts.InProgress != 1 || report.Counts.Delayed != 1 || report.Counts.Planned != 10 {
		t.Errorf("counts = %+v", report.Counts)
	}
	if len(report.Current) != 1 || report.Current[0].ID != list[1].ID {
		t.Errorf("current = %+v", report.Current)
	}
	wantPct := 1.0 / 13 * 100
	if report.ProgressPct < wantPct-0.01 || report.ProgressPct > wantPct+0.01 {
		t.Errorf("progress = %v, expected ~%v", report.ProgressPct, wantPct)
	}
}

func TestReportService_Overdue(t *testing.T) {
	reports, stages, owner, project := setupReport(t)
	list, _ := stages.List(project.ID)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	end := now.AddDate(0, 0, -5)
	stages.SetDates(list[0].ID, nil, &end, owner.ID)
	stages.SetStatus(list[0].ID, database.StageInProgress, owner.ID)

	report, err := reports.Build(project.ID, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Overdue) != 1 {
		t.Fatalf("overdue = %d, expected 1", len(report.Overdue))
	}
	if report.Overdue[0].DaysOverdue != 5 {
		t.Errorf("days overdue = %d, expected 5", report.Overdue[0].DaysOverdue)
	}

	// A planned stage past its dates is a scheduling gap, not overdue work
	stages.SetDates(list[1].ID, nil, &end, owner.ID)
	report, _ = reports.Build(project.ID, now)
	if len(report.Overdue) != 1 {
		t.Errorf("planned stage counted as overdue")
	}
}

func TestReportService_Upcoming(t *testing.T) {
	reports, stages, owner, project := setupReport(t)
	list, _ := stages.List(project.ID)

	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	soon := now.AddDate(0, 0, 3)
	far := now.AddDate(0, 0, 20)
	stages.SetDates(list[0].ID, &soon, nil, owner.ID)
	stages.SetDates(list[1].ID, &far, nil, owner.ID)

	report, err := reports.Build(project.ID, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Upcoming) != 1 {
		t.Fatalf("upcoming = %d, expected 1", len(report.Upcoming))
	}
	if report.Upcoming[0].Stage.ID != list[0].ID || report.Upcoming[0].DaysUntil != 3 {
		t.Errorf("upcoming = %+v", report.Upcoming[0])
	}
}

func TestReportService_PaymentRisk(t *testing.T) {
	reports, stages, owner, project := setupReport(t)
	list, _ := stages.List(project.ID)

	if err := stages.AdvancePayment(list[0].ID, database.PaymentInProgress, owner.ID); err != nil {
		t.Fatal(err)
	}

	// Inside the grace period: no risk
	report, _ := reports.Build(project.ID, time.Now().UTC().AddDate(0, 0, 1))
	if len(report.PaymentRisks) != 0 {
		t.Errorf("risk inside grace period: %+v", report.PaymentRisks)
	}

	// Past the grace period of 3 days
	report, _ = reports.Build(project.ID, time.Now().UTC().AddDate(0, 0, 5))
	if len(report.PaymentRisks) != 1 {
		t.Fatalf("risks = %d, expected 1", len(report.PaymentRisks))
	}
	if report.PaymentRisks[0].DaysOpen < 4 {
		t.Errorf("days open = %d", report.PaymentRisks[0].DaysOpen)
	}
}

func TestDueSoon(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	end := now.AddDate(0, 0, 1)
	stage := database.Stage{EndDate: &end, Status: database.StageInProgress}
	if !DueSoon(stage, now, 1) {
		t.Error("stage ending tomorrow should be due soon")
	}
	done := stage
	done.Status = database.StageCompleted
	if DueSoon(done, now, 1) {
		t.Error("completed stage is never due soon")
	}
	if DueSoon(database.Stage{Status: database.StageInProgress}, now, 1) {
		t.Error("stage without end date is never due soon")
	}
}

func TestParseQuickCommand(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"бюджет", "budget"},
		{"Бюджет", "budget"},
		{"  Статус  ", "status"},
		{"next stage", "nextstage"},
		{"мой этап", "mystage"},
		{"отчёт", "report"},
		{"отчет", "report"},
		{"привет", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ParseQuickCommand(tt.in); got != tt.want {
			t.Errorf("ParseQuickCommand(%q) = %q, expected %q", tt.in, got, tt.want)
		}
	}
}
