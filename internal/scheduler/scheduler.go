package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"renobot/internal/config"
	"renobot/internal/core"
	"renobot/internal/database"
	"renobot/pkg/logger"
)

// Reminder kinds, also the first component of the dedup key.
const (
	KindDeadlineSoon  = "deadline_soon"
	KindStageOverdue  = "stage_overdue"
	KindBudgetWarning = "budget_warning"
	KindBudgetOver    = "budget_over"
	KindFurnitureLead = "furniture_lead"
)

// furnitureLeadDays is how far ahead of a furniture installation date
// production should already be running. Custom items take 4-6 weeks to
// make, so 45 days leaves room to order.
const furnitureLeadDays = 45

// NotifyFunc delivers one reminder text to a chat.
type NotifyFunc func(chatID int64, text string)

// Scheduler periodically scans active projects and sends reminders:
// approaching and missed deadlines, budget thresholds, and furniture
// production lead times. Every reminder is recorded with a dedup key,
// so rescans and restarts never repeat an alert.
type Scheduler struct {
	db     *gorm.DB
	budget *core.BudgetService
	cron   *cron.Cron
	notify NotifyFunc
	cfg    config.SchedulerConfig
}

func New(db *gorm.DB, budget *core.BudgetService, cfg config.SchedulerConfig, notify NotifyFunc) *Scheduler {
	return &Scheduler{
		db:     db,
		budget: budget,
		cron:   cron.New(),
		notify: notify,
		cfg:    cfg,
	}
}

// Start schedules the periodic scan and runs one immediately.
func (s *Scheduler) Start() error {
	if !s.cfg.Enabled {
		logger.Info().Msg("scheduler disabled")
		return nil
	}

	spec := fmt.Sprintf("@every %dm", s.cfg.IntervalMinutes)
	if _, err := s.cron.AddFunc(spec, func() { s.Scan(time.Now().UTC()) }); err != nil {
		return fmt.Errorf("schedule scan: %w", err)
	}
	s.cron.Start()

	go s.Scan(time.Now().UTC())
	logger.Info().Int("interval_min", s.cfg.IntervalMinutes).Msg("scheduler started")
	return nil
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// Scan checks every active project once. Safe to call concurrently
// with itself: the dedup key constraint arbitrates.
func (s *Scheduler) Scan(now time.Time) {
	var projects []database.Project
	if err := s.db.Where("is_active = ?", true).Find(&projects).Error; err != nil {
		logger.Error().Err(err).Msg("reminder scan: load projects")
		return
	}

	for _, project := range projects {
		if err := s.scanProject(&project, now); err != nil {
			logger.Error().Err(err).Uint("project_id", project.ID).Msg("reminder scan failed")
		}
	}
}

func (s *Scheduler) scanProject(project *database.Project, now time.Time) error {
	var stages []database.Stage
	if err := s.db.Where("project_id = ?", project.ID).Order("sort_order").Find(&stages).Error; err != nil {
		return err
	}

	for _, stage := range stages {
		s.checkDeadline(project, stage, now)
		s.checkOverdue(project, stage, now)
		s.checkFurnitureLead(project, stage, now)
	}
	return s.checkBudget(project, now)
}

func (s *Scheduler) checkDeadline(project *database.Project, stage database.Stage, now time.Time) {
	if !core.DueSoon(stage, now, 1) || stage.Status != database.StageInProgress {
		return
	}
	key := dedupKey(KindDeadlineSoon, stage.ID, stage.EndDate.Format(core.DateFormat))
	text := fmt.Sprintf("⏰ Завтра дедлайн этапа «%s» (до %s).", stage.Name, core.FormatDate(stage.EndDate))
	s.remind(project, stage.ID, KindDeadlineSoon, key, text, now)
}

func (s *Scheduler) checkOverdue(project *database.Project, stage database.Stage, now time.Time) {
	if !core.IsOverdue(stage, now) {
		return
	}
	// One reminder per stage per day it stays overdue
	key := dedupKey(KindStageOverdue, stage.ID, now.Format(core.DateFormat))
	text := fmt.Sprintf("🔴 Этап «%s» просрочен: дедлайн был %s.", stage.Name, core.FormatDate(stage.EndDate))
	s.remind(project, stage.ID, KindStageOverdue, key, text, now)
}

func (s *Scheduler) checkFurnitureLead(project *database.Project, stage database.Stage, now time.Time) {
	// Parallel custom-item stages are named "Item → Substage"; the
	// installation step is the one that needs production started early.
	if !stage.IsParallel || stage.StartDate == nil || stage.Status != database.StagePlanned {
		return
	}
	if !strings.HasSuffix(stage.Name, "Монтаж") {
		return
	}
	days := int(stage.StartDate.Sub(now).Hours() / 24)
	if days < 0 || days > furnitureLeadDays {
		return
	}
	key := dedupKey(KindFurnitureLead, stage.ID, stage.StartDate.Format(core.DateFormat))
	text := fmt.Sprintf("🪑 До монтажа «%s» осталось %d дн. Производство мебели занимает 4–6 недель — пора размещать заказ.", stage.Name, days)
	s.remind(project, stage.ID, KindFurnitureLead, key, text, now)
}

func (s *Scheduler) checkBudget(project *database.Project, now time.Time) error {
	summary, err := s.budget.Summary(project.ID)
	if err != nil {
		return err
	}

	if summary.Overspent() {
		key := dedupKey(KindBudgetOver, project.ID, "")
		text := fmt.Sprintf("🚨 Бюджет проекта «%s» превышен: потрачено %.0f из %.0f.", project.Name, summary.TotalSpent, summary.TotalBudget)
		s.remind(project, 0, KindBudgetOver, key, text, now)
		return nil
	}
	if summary.NearLimit() {
		key := dedupKey(KindBudgetWarning, project.ID, "")
		text := fmt.Sprintf("⚠️ Использовано %.0f%% бюджета проекта «%s». Осталось %.0f.", summary.UsagePct, project.Name, summary.Remaining)
		s.remind(project, 0, KindBudgetWarning, key, text, now)
	}
	return nil
}

// remind sends the text unless this dedup key has fired before. The
// marker row is written first; a duplicate key means another scan got
// there already.
func (s *Scheduler) remind(project *database.Project, stageID uint, kind, key, text string, now time.Time) {
	reminder := database.Reminder{
		ProjectID: project.ID,
		StageID:   stageID,
		Kind:      kind,
		DedupKey:  key,
		SentAt:    now,
	}
	if err := s.db.Create(&reminder).Error; err != nil {
		if isDuplicateKey(err) {
			return
		}
		logger.Error().Err(err).Str("key", key).Msg("reminder marker write failed")
		return
	}

	chatID := s.recipientChat(project)
	if chatID == 0 {
		return
	}
	if s.notify != nil {
		s.notify(chatID, text)
	}
	logger.Info().Uint("project_id", project.ID).Str("kind", kind).Msg("reminder sent")
}

// recipientChat prefers the linked group chat, falling back to the
// owner's private chat. Telegram forbids unsolicited DMs, so the
// fallback only applies when the owner has started the bot.
func (s *Scheduler) recipientChat(project *database.Project) int64 {
	if project.TelegramChatID != nil {
		return *project.TelegramChatID
	}

	var member database.ProjectMember
	err := s.db.Where("project_id = ? AND role = ?", project.ID, database.RoleOwner).
		First(&member).Error
	if err != nil {
		return 0
	}
	var owner database.User
	if err := s.db.First(&owner, member.UserID).Error; err != nil {
		return 0
	}
	if !owner.IsBotStarted {
		return 0
	}
	return owner.TelegramID
}

func dedupKey(kind string, id uint, suffix string) string {
	if suffix == "" {
		return fmt.Sprintf("%s:%d", kind, id)
	}
	return fmt.Sprintf("%s:%d:%s", kind, id, suffix)
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") || strings.Contains(msg, "duplicate key")
}
