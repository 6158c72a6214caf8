package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"renobot/internal/core"
	"renobot/internal/database"
	"renobot/internal/states"
	"renobot/pkg/logger"
)

func (b *Bot) showStages(ctx context.Context, message *tgbotapi.Message, user *database.User, project *database.Project) {
	stages, err := b.stages.List(project.ID)
	if err != nil {
		logger.Error().Err(err).Msg("stage list failed")
		return
	}
	msg := tgbotapi.NewMessage(message.Chat.ID, formatStageList(stages))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = stageListKeyboard(stages)
	b.send(msg)
}

func (b *Bot) handleLaunch(ctx context.Context, message *tgbotapi.Message, user *database.User, project *database.Project) {
	ok, err := b.roles.Can(project.ID, user.ID, core.ActionLaunchProject)
	if err != nil {
		logger.Error().Err(err).Msg("permission check failed")
		return
	}
	if !ok {
		b.sendText(message.Chat.ID, "⛔ Запускать ремонт может только владелец проекта.")
		return
	}

	stage, err := b.stages.Launch(project.ID, user.ID)
	switch {
	case errors.Is(err, core.ErrAlreadyLaunched):
		b.sendText(message.Chat.ID, "Ремонт уже запущен. Текущее состояние: /status")
	case errors.Is(err, core.ErrNotReady):
		b.sendText(message.Chat.ID, "Сначала проставьте первому этапу даты начала и окончания — откройте его в /stages.")
	case err != nil:
		logger.Error().Err(err).Msg("launch failed")
		b.sendText(message.Chat.ID, "❌ Не получилось запустить ремонт.")
	default:
		b.sendText(message.Chat.ID, fmt.Sprintf("🚀 Ремонт запущен! Первый этап «%s» в работе, дедлайн %s.",
			stage.Name, core.FormatDate(stage.EndDate)))
	}
}

func (b *Bot) showNextStage(ctx context.Context, message *tgbotapi.Message, user *database.User, project *database.Project) {
	current, next, err := b.stages.NextStage(project.ID)
	if err != nil {
		logger.Error().Err(err).Msg("next stage failed")
		return
	}

	text := ""
	if current != nil {
		text += fmt.Sprintf("🔨 Сейчас: %s (до %s)\n", current.Name, core.FormatDate(current.EndDate))
	}
	if next != nil {
		text += fmt.Sprintf("➡️ Дальше: %s", next.Name)
		if next.IsCheckpoint {
			text += " 🔍 (контрольная точка — нужна приёмка)"
		}
	}
	if text == "" {
		text = "Все этапы завершены 🎉"
	}
	b.sendText(message.Chat.ID, text)
}

func (b *Bot) showMyStages(ctx context.Context, message *tgbotapi.Message, user *database.User, project *database.Project) {
	stages, err := b.stages.AssignedTo(project.ID, user)
	if err != nil {
		logger.Error().Err(err).Msg("assigned stages failed")
		return
	}
	if len(stages) == 0 {
		b.sendText(message.Chat.ID, fmt.Sprintf("В проекте «%s» за вами не закреплено ни одного этапа.", project.Name))
		return
	}

	now := time.Now().UTC()
	text := fmt.Sprintf("🔨 Ваши этапы в «%s»:\n\n", project.Name)
	for _, s := range stages {
		text += fmt.Sprintf("%s %s", core.StatusLabels[s.Status], s.Name)
		if s.EndDate != nil {
			text += " — до " + core.FormatDate(s.EndDate)
		}
		if core.IsOverdue(s, now) {
			text += " 🔴 просрочен"
		}
		text += "\n"
	}
	b.sendText(message.Chat.ID, text)
}

func (b *Bot) showStatus(ctx context.Context, message *tgbotapi.Message, user *database.User, project *database.Project) {
	report, err := b.reports.Build(project.ID, time.Now().UTC())
	if err != nil {
		logger.Error().Err(err).Msg("status build failed")
		return
	}

	text := fmt.Sprintf("📊 «%s»: %.0f%% готово\n", project.Name, report.ProgressPct)
	for _, s := range report.Current {
		text += fmt.Sprintf("🔨 %s (до %s)\n", s.Name, core.FormatDate(s.EndDate))
	}
	if len(report.Overdue) > 0 {
		text += fmt.Sprintf("🔴 Просрочено этапов: %d\n", len(report.Overdue))
	}
	if report.Budget != nil {
		text += fmt.Sprintf("💰 Остаток бюджета: %s", formatAmount(report.Budget.Remaining))
	}
	b.sendText(message.Chat.ID, text)
}

func (b *Bot) showDeadlines(ctx context.Context, message *tgbotapi.Message, user *database.User, project *database.Project) {
	report, err := b.reports.Build(project.ID, time.Now().UTC())
	if err != nil {
		logger.Error().Err(err).Msg("deadline build failed")
		return
	}

	text := "📅 Дедлайны\n\n"
	empty := true
	for _, s := range report.Current {
		if s.EndDate != nil {
			text += fmt.Sprintf("🔨 %s — до %s\n", s.Name, core.FormatDate(s.EndDate))
			empty = false
		}
	}
	for _, o := range report.Overdue {
		text += fmt.Sprintf("🔴 %s — просрочен на %d дн.\n", o.Stage.Name, o.DaysOverdue)
		empty = false
	}
	for _, u := range report.Upcoming {
		text += fmt.Sprintf("📋 %s — старт через %d дн.\n", u.Stage.Name, u.DaysUntil)
		empty = false
	}
	if empty {
		text += "Ближайших дедлайнов нет."
	}
	b.sendText(message.Chat.ID, text)
}

func (b *Bot) showReport(ctx context.Context, message *tgbotapi.Message, user *database.User, project *database.Project) {
	ok, err := b.roles.Can(project.ID, user.ID, core.ActionViewReports)
	if err != nil {
		logger.Error().Err(err).Msg("permission check failed")
		return
	}
	if !ok {
		b.sendText(message.Chat.ID, "⛔ Ваша роль не позволяет смотреть отчёты.")
		return
	}

	report, err := b.reports.Build(project.ID, time.Now().UTC())
	if err != nil {
		logger.Error().Err(err).Msg("report build failed")
		b.sendText(message.Chat.ID, "❌ Не получилось собрать отчёт.")
		return
	}
	b.sendHTML(message.Chat.ID, formatReport(report))
}

func (b *Bot) handleStageCallback(ctx context.Context, message *tgbotapi.Message, user *database.User, parts []string) {
	if len(parts) < 2 {
		return
	}
	stageID, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return
	}

	if _, err := b.stages.Get(uint(stageID)); err != nil {
		b.sendText(message.Chat.ID, "Этап не найден.")
		return
	}
	b.showStageDetail(message.Chat.ID, uint(stageID))
}

func (b *Bot) handleStatusCallback(ctx context.Context, message *tgbotapi.Message, user *database.User, parts []string) {
	if len(parts) < 3 {
		return
	}
	stageID, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return
	}
	status := database.StageStatus(parts[2])

	stage, err := b.stages.Get(uint(stageID))
	if err != nil {
		return
	}
	ok, err := b.roles.Can(stage.ProjectID, user.ID, core.ActionUpdateStatus)
	if err != nil || !ok {
		b.sendText(message.Chat.ID, "⛔ Ваша роль не позволяет менять статус этапа.")
		return
	}

	if err := b.stages.SetStatus(uint(stageID), status, user.ID); err != nil {
		logger.Error().Err(err).Msg("status update failed")
		b.sendText(message.Chat.ID, "❌ Не получилось обновить статус.")
		return
	}
	if err := b.cache.InvalidateProject(ctx, stage.ProjectID); err != nil {
		logger.Warn().Err(err).Msg("cache invalidation failed")
	}

	text := fmt.Sprintf("Статус «%s»: %s", stage.Name, core.StatusLabels[status])
	if status == database.StageCompleted && stage.IsCheckpoint {
		text += "\n🔍 Это контрольная точка — проведите приёмку работ перед следующим этапом."
	}
	b.sendText(message.Chat.ID, text)
}

// Single-field stage edits. Each prompt collects one value and returns
// to the stage detail view.
const (
	stepStageDates       = "stageedit:dates"
	stepStageResponsible = "stageedit:responsible"
	stepStageBudget      = "stageedit:budget"
	stepStageSubStages   = "stageedit:substages"
)

var stageEditPrompts = map[string]string{
	stepStageDates:       "Сроки этапа «%s»?\nВведите две даты: начало и конец, например:\n01.03.2026 15.03.2026",
	stepStageResponsible: "Кто отвечает за этап «%s»? Введите имя или @username.",
	stepStageBudget:      "Бюджет этапа «%s»? Введите сумму, например: 150 000.",
	stepStageSubStages:   "Подэтапы для «%s»? Введите по одному в строке:\nГрунтовка\nШтукатурка\nШпаклёвка",
}

func (b *Bot) startStageEdit(message *tgbotapi.Message, fromID int64, user *database.User, parts []string, step string) {
	if len(parts) < 2 {
		return
	}
	stageID, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return
	}
	stage, err := b.stages.Get(uint(stageID))
	if err != nil {
		return
	}
	ok, err := b.roles.Can(stage.ProjectID, user.ID, core.ActionEditStage)
	if err != nil || !ok {
		b.sendText(message.Chat.ID, "⛔ Ваша роль не позволяет редактировать этапы.")
		return
	}

	b.states.Set(fromID, message.Chat.ID, &states.UserState{
		Step: step,
		Data: map[string]interface{}{"stage_id": uint(stageID)},
	})
	b.askWithCancel(message.Chat.ID, fmt.Sprintf(stageEditPrompts[step], stage.Name))
}

func (b *Bot) handleStageEditInput(ctx context.Context, message *tgbotapi.Message, user *database.User, state *states.UserState) {
	stageID, _ := state.Data["stage_id"].(uint)
	text := strings.TrimSpace(message.Text)

	switch state.Step {
	case stepStageDates:
		fields := strings.Fields(strings.ReplaceAll(text, "-", " "))
		if len(fields) != 2 {
			b.sendText(message.Chat.ID, "Нужны две даты через пробел: 01.03.2026 15.03.2026")
			return
		}
		start, ok1 := core.ParseDate(fields[0])
		end, ok2 := core.ParseDate(fields[1])
		if !ok1 || !ok2 {
			b.sendText(message.Chat.ID, "Не понял даты. Формат: ДД.ММ.ГГГГ, например 01.03.2026 15.03.2026")
			return
		}
		if end.Before(start) {
			b.sendText(message.Chat.ID, "Дата окончания раньше даты начала. Попробуйте ещё раз.")
			return
		}
		if err := b.stages.SetDates(stageID, &start, &end, user.ID); err != nil {
			logger.Error().Err(err).Msg("dates update failed")
			b.sendText(message.Chat.ID, "❌ Не получилось сохранить даты.")
			return
		}

	case stepStageResponsible:
		if text == "" {
			b.sendText(message.Chat.ID, "Введите имя или @username ответственного.")
			return
		}
		if err := b.stages.SetResponsible(stageID, text, user.ID); err != nil {
			logger.Error().Err(err).Msg("responsible update failed")
			b.sendText(message.Chat.ID, "❌ Не получилось сохранить ответственного.")
			return
		}

	case stepStageBudget:
		amount, ok := core.ParseAmount(text)
		if !ok {
			b.sendText(message.Chat.ID, "Не понял сумму. Введите число, например: 150 000.")
			return
		}
		if err := b.stages.SetBudget(stageID, amount, user.ID); err != nil {
			logger.Error().Err(err).Msg("stage budget update failed")
			b.sendText(message.Chat.ID, "❌ Не получилось сохранить бюджет этапа.")
			return
		}

	case stepStageSubStages:
		var names []string
		for _, line := range strings.Split(text, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				names = append(names, line)
			}
		}
		if len(names) == 0 {
			b.sendText(message.Chat.ID, "Введите хотя бы один подэтап, по одному в строке.")
			return
		}
		if _, err := b.stages.AddSubStages(stageID, names); err != nil {
			logger.Error().Err(err).Msg("substage add failed")
			b.sendText(message.Chat.ID, "❌ Не получилось добавить подэтапы.")
			return
		}

	default:
		return
	}

	b.states.Clear(message.From.ID, message.Chat.ID)
	b.showStageDetail(message.Chat.ID, stageID)
}

func (b *Bot) showStageDetail(chatID int64, stageID uint) {
	stage, err := b.stages.Get(stageID)
	if err != nil {
		return
	}
	msg := tgbotapi.NewMessage(chatID, formatStageDetail(stage))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = stageDetailKeyboard(stage)
	b.send(msg)
}

func (b *Bot) handlePaymentCallback(ctx context.Context, message *tgbotapi.Message, user *database.User, parts []string) {
	if len(parts) < 3 {
		return
	}
	stageID, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return
	}
	target := database.PaymentStatus(parts[2])

	stage, err := b.stages.Get(uint(stageID))
	if err != nil {
		return
	}
	ok, err := b.roles.Can(stage.ProjectID, user.ID, core.ActionEditBudget)
	if err != nil || !ok {
		b.sendText(message.Chat.ID, "⛔ Ваша роль не позволяет менять статус оплаты.")
		return
	}

	if err := b.stages.AdvancePayment(uint(stageID), target, user.ID); err != nil {
		if errors.Is(err, core.ErrInvalidTransition) {
			b.sendText(message.Chat.ID, "Оплата движется только вперёд по шагам: записано → в процессе → проверено → оплачено → закрыто.")
			return
		}
		logger.Error().Err(err).Msg("payment advance failed")
		b.sendText(message.Chat.ID, "❌ Не получилось обновить оплату.")
		return
	}
	b.sendText(message.Chat.ID, fmt.Sprintf("Оплата «%s»: %s", stage.Name, core.PaymentLabels[target]))
}
