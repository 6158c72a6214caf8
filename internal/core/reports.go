package core

import (
	"strings"
	"time"

	"gorm.io/gorm"

	"renobot/internal/database"
)

// StatusLabels maps stage statuses to display names.
var StatusLabels = map[database.StageStatus]string{
	database.StagePlanned:    "📋 Запланирован",
	database.StageInProgress: "🔨 В работе",
	database.StageCompleted:  "✅ Завершён",
	database.StageDelayed:    "⚠️ Задержка",
}

// PaymentLabels maps payment statuses to display names.
var PaymentLabels = map[database.PaymentStatus]string{
	database.PaymentRecorded:   "📝 Записано",
	database.PaymentInProgress: "🔄 В процессе",
	database.PaymentVerified:   "✅ Проверено",
	database.PaymentPaid:       "💸 Оплачено",
	database.PaymentClosed:     "🔒 Закрыто",
}

// StageCounts tallies stages by work status.
type StageCounts struct {
	Total      int
	Planned    int
	InProgress int
	Completed  int
	Delayed    int
}

// OverdueStage is a stage past its end date and not completed.
type OverdueStage struct {
	Stage       database.Stage
	DaysOverdue int
}

// UpcomingStage is a planned stage starting within a week.
type UpcomingStage struct {
	Stage     database.Stage
	DaysUntil int
}

// PaymentRisk flags a stage whose payment has sat unclosed past the
// grace period.
type PaymentRisk struct {
	Stage    database.Stage
	DaysOpen int
}

// Report is the composed project report consumed by formatters.
type Report struct {
	Project      database.Project
	GeneratedAt  time.Time
	Counts       StageCounts
	ProgressPct  float64
	Current      []database.Stage
	Overdue      []OverdueStage
	Upcoming     []UpcomingStage
	PaymentRisks []PaymentRisk
	Budget       *BudgetSummary
}

type ReportService struct {
	db               *gorm.DB
	budget           *BudgetService
	paymentGraceDays int
}

func NewReportService(db *gorm.DB, budget *BudgetService, paymentGraceDays int) *ReportService {
	return &ReportService{db: db, budget: budget, paymentGraceDays: paymentGraceDays}
}

// Build composes stage counts, budget summary, and warnings for a
// project, relative to now.
func (s *ReportService) Build(projectID uint, now time.Time) (*Report, error) {
	var project database.Project
	if err := s.db.First(&project, projectID).Error; err != nil {
		return nil, err
	}

	var stages []database.Stage
	if err := s.db.Where("project_id = ?", projectID).Order("sort_order").Find(&stages).Error; err != nil {
		return nil, err
	}

	budget, err := s.budget.Summary(projectID)
	if err != nil {
		return nil, err
	}

	report := Report{
		Project:     project,
		GeneratedAt: now,
		Budget:      budget,
	}

	for _, stage := range stages {
		report.Counts.Total++
		switch stage.Status {
		case database.StageCompleted:
			report.Counts.Completed++
		case database.StageInProgress:
			report.Counts.InProgress++
			report.Current = append(report.Current, stage)
		case database.StageDelayed:
			report.Counts.Delayed++
		default:
			report.Counts.Planned++
			if stage.StartDate != nil {
				days := daysUntil(now, *stage.StartDate)
				if days >= 0 && days <= 7 {
					report.Upcoming = append(report.Upcoming, UpcomingStage{Stage: stage, DaysUntil: days})
				}
			}
		}

		if IsOverdue(stage, now) {
			report.Overdue = append(report.Overdue, OverdueStage{
				Stage:       stage,
				DaysOverdue: daysUntil(*stage.EndDate, now),
			})
		}

		if risk, days := paymentRisk(stage, now, s.paymentGraceDays); risk {
			report.PaymentRisks = append(report.PaymentRisks, PaymentRisk{Stage: stage, DaysOpen: days})
		}
	}

	if report.Counts.Total > 0 {
		report.ProgressPct = float64(report.Counts.Completed) / float64(report.Counts.Total) * 100
	}
	return &report, nil
}

// IsOverdue reports whether a stage is past its end date and not done.
func IsOverdue(stage database.Stage, now time.Time) bool {
	return stage.EndDate != nil &&
		stage.EndDate.Before(now) &&
		stage.Status != database.StageCompleted &&
		stage.Status != database.StagePlanned
}

// DueSoon reports whether an unfinished stage ends within `days` days.
func DueSoon(stage database.Stage, now time.Time, days int) bool {
	if stage.EndDate == nil || stage.Status == database.StageCompleted {
		return false
	}
	left := daysUntil(now, *stage.EndDate)
	return left >= 0 && left <= days
}

func paymentRisk(stage database.Stage, now time.Time, graceDays int) (bool, int) {
	if stage.PaymentStatus == database.PaymentClosed || stage.PaymentStatus == database.PaymentRecorded {
		return false, 0
	}
	if stage.PaymentChangedAt == nil {
		return false, 0
	}
	days := daysUntil(*stage.PaymentChangedAt, now)
	return days > graceDays, days
}

func daysUntil(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

// QuickCommands maps plain-text keywords (Russian and English) to the
// slash command they shortcut.
var QuickCommands = map[string]string{
	"бюджет":         "budget",
	"budget":         "budget",
	"этапы":          "stages",
	"stages":         "stages",
	"расходы":        "expenses",
	"expenses":       "expenses",
	"отчёт":          "report",
	"отчет":          "report",
	"report":         "report",
	"следующий этап": "nextstage",
	"next stage":     "nextstage",
	"статус":         "status",
	"status":         "status",
	"дедлайн":        "deadline",
	"deadline":       "deadline",
	"мой этап":       "mystage",
	"my stage":       "mystage",
	"команда":        "team",
	"team":           "team",
}

// ParseQuickCommand maps free text to a command key, or "" if no match.
func ParseQuickCommand(text string) string {
	return QuickCommands[strings.ToLower(strings.TrimSpace(text))]
}
