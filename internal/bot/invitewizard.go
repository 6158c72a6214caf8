package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"gorm.io/gorm"

	"renobot/internal/core"
	"renobot/internal/database"
	"renobot/internal/states"
	"renobot/pkg/logger"
)

const (
	stepInviteRole      = "invite:role"
	stepInviteUsername  = "invite:username"
	stepInviteSpecialty = "invite:specialty"
	stepInviteConfirm   = "invite:confirm"
)

func (b *Bot) startInviteWizard(ctx context.Context, message *tgbotapi.Message, user *database.User, project *database.Project) {
	ok, err := b.roles.Can(project.ID, user.ID, core.ActionInviteMember)
	if err != nil {
		logger.Error().Err(err).Msg("permission check failed")
		return
	}
	if !ok {
		b.sendText(message.Chat.ID, "⛔ Приглашать участников могут владелец и прораб.")
		return
	}

	b.states.Set(message.From.ID, message.Chat.ID, &states.UserState{
		Step: stepInviteRole,
		Data: map[string]interface{}{"project_id": project.ID},
	})
	msg := tgbotapi.NewMessage(message.Chat.ID, "👥 Какую роль дать участнику?")
	msg.ReplyMarkup = roleKeyboard()
	b.send(msg)
}

func (b *Bot) handleInviteCallback(ctx context.Context, message *tgbotapi.Message, fromID int64, user *database.User, parts []string) {
	state := b.states.Get(fromID, message.Chat.ID)
	if state == nil || len(parts) < 2 {
		return
	}

	if parts[1] == "confirm" && state.Step == stepInviteConfirm {
		b.confirmInvite(ctx, message, fromID, state)
		return
	}
	if parts[1] == "edit" && state.Step == stepInviteConfirm {
		// Start over from the role, dropping collected answers
		projectID := state.Data["project_id"]
		state.Step = stepInviteRole
		state.Data = map[string]interface{}{"project_id": projectID}
		msg := tgbotapi.NewMessage(message.Chat.ID, "Хорошо, заново. Какую роль дать участнику?")
		msg.ReplyMarkup = roleKeyboard()
		b.send(msg)
		return
	}
	if state.Step != stepInviteRole || len(parts) < 3 || parts[1] != "role" {
		return
	}

	role := database.Role(parts[2])
	assignable := false
	for _, r := range core.AssignableRoles {
		if r == role {
			assignable = true
			break
		}
	}
	if !assignable {
		return
	}

	state.Data["role"] = string(role)
	if role == database.RoleTradesperson {
		state.Step = stepInviteSpecialty
		b.askWithCancel(message.Chat.ID, "Специальность мастера? (например: электрик, плиточник)")
		return
	}
	state.Step = stepInviteUsername
	b.askWithCancel(message.Chat.ID, "Telegram-username участника (например, @ivan)? Участник должен хотя бы раз написать мне в личку.")
}

func (b *Bot) handleInviteInput(ctx context.Context, message *tgbotapi.Message, user *database.User, state *states.UserState) {
	text := strings.TrimSpace(message.Text)
	chatID := message.Chat.ID

	switch state.Step {
	case stepInviteSpecialty:
		state.Data["specialty"] = text
		state.Step = stepInviteUsername
		b.askWithCancel(chatID, "Telegram-username участника (например, @ivan)?")

	case stepInviteUsername:
		username := strings.TrimPrefix(text, "@")
		if username == "" {
			b.sendText(chatID, "Введите username, например: @ivan")
			return
		}

		var invited database.User
		err := b.db.Where("username = ?", username).First(&invited).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			b.sendText(chatID, fmt.Sprintf("Не нашёл @%s. Попросите участника сначала написать мне в личку (/start) и повторите /invite.", username))
			return
		}
		if err != nil {
			logger.Error().Err(err).Msg("invited user lookup failed")
			return
		}

		state.Data["invited_id"] = invited.ID
		state.Data["username"] = username
		state.Step = stepInviteConfirm

		role := database.Role(stringData(state, "role"))
		text := fmt.Sprintf("Добавить @%s в проект как %s?", username, core.RoleLabels[role])
		if specialty := stringData(state, "specialty"); specialty != "" {
			text = fmt.Sprintf("Добавить @%s в проект как %s (%s)?", username, core.RoleLabels[role], specialty)
		}
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("✅ Добавить", "inv:confirm"),
				tgbotapi.NewInlineKeyboardButtonData("✏️ Заново", "inv:edit"),
			),
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("❌ Отмена", "cancel"),
			),
		)
		b.send(msg)

	case stepInviteRole, stepInviteConfirm:
		b.sendText(chatID, "Выберите вариант кнопкой выше или /cancel.")
	}
}

func (b *Bot) confirmInvite(ctx context.Context, message *tgbotapi.Message, fromID int64, state *states.UserState) {
	projectID, _ := state.Data["project_id"].(uint)
	invitedID, _ := state.Data["invited_id"].(uint)
	username := stringData(state, "username")
	role := database.Role(stringData(state, "role"))
	specialty := stringData(state, "specialty")

	if err := b.roles.Assign(projectID, invitedID, role, specialty); err != nil {
		logger.Error().Err(err).Msg("role assignment failed")
		b.sendText(message.Chat.ID, "❌ Не получилось добавить участника.")
		return
	}
	b.states.Clear(fromID, message.Chat.ID)

	b.sendText(message.Chat.ID, fmt.Sprintf("✅ @%s добавлен(а) в проект как %s.", username, core.RoleLabels[role]))

	var invited database.User
	if err := b.db.First(&invited, invitedID).Error; err == nil && invited.IsBotStarted {
		if project, err := b.projects.Get(projectID); err == nil {
			b.sendText(invited.TelegramID, fmt.Sprintf("Вас добавили в проект «%s» как %s.", project.Name, core.RoleLabels[role]))
		}
	}
}

func (b *Bot) showTeam(ctx context.Context, message *tgbotapi.Message, user *database.User, project *database.Project) {
	team, err := b.roles.Team(project.ID)
	if err != nil {
		logger.Error().Err(err).Msg("team load failed")
		return
	}
	b.sendHTML(message.Chat.ID, formatTeam(team))
}

func (b *Bot) showMyRole(ctx context.Context, message *tgbotapi.Message, user *database.User, project *database.Project) {
	role, err := b.roles.RoleOf(project.ID, user.ID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			b.sendText(message.Chat.ID, "Вы не участник этого проекта.")
			return
		}
		logger.Error().Err(err).Msg("role lookup failed")
		return
	}
	b.sendText(message.Chat.ID, fmt.Sprintf("Ваша роль в проекте «%s»: %s", project.Name, core.RoleLabels[role]))
}
