package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"renobot/internal/core"
	"renobot/internal/database"
	"renobot/pkg/logger"
)

// handleStart greets in private, and in a group tries the deep-link
// payload (proj_N) that /newproject hands out.
func (b *Bot) handleStart(ctx context.Context, message *tgbotapi.Message, user *database.User) {
	payload := message.CommandArguments()

	if projectID, ok := core.ParseDeepLink(payload); ok && isGroup(message.Chat) {
		b.linkProject(message, user, projectID)
		return
	}

	if isGroup(message.Chat) {
		b.sendText(message.Chat.ID, "Привет! Привяжите группу к проекту командой /link — и я буду вести ремонт здесь.")
		return
	}

	b.sendHTML(message.Chat.ID,
		fmt.Sprintf("Привет, %s! 👋\n\nЯ помогаю вести ремонт: этапы, бюджет, команда, напоминания.\n\nНачните с проекта: /newproject\nВсе команды: /help", esc(user.FullName)))
}

// handleLink binds the current group to a resolved project.
func (b *Bot) handleLink(ctx context.Context, message *tgbotapi.Message, user *database.User, project *database.Project) {
	if !isGroup(message.Chat) {
		b.sendText(message.Chat.ID, "Эта команда работает в группе. Добавьте меня в группу проекта и вызовите /link там.")
		return
	}
	b.linkProject(message, user, project.ID)
}

func (b *Bot) linkProject(message *tgbotapi.Message, user *database.User, projectID uint) {
	role, err := b.roles.RoleOf(projectID, user.ID)
	if err != nil || role != database.RoleOwner {
		b.sendText(message.Chat.ID, "⛔ Привязать группу может только владелец проекта.")
		return
	}

	err = b.projects.LinkChat(projectID, message.Chat.ID)
	switch {
	case errors.Is(err, core.ErrAlreadyLinked):
		b.sendText(message.Chat.ID, "Не получилось: "+err.Error())
	case errors.Is(err, core.ErrNotFound):
		b.sendText(message.Chat.ID, "Проект не найден.")
	case err != nil:
		logger.Error().Err(err).Msg("chat link failed")
		b.sendText(message.Chat.ID, "❌ Не получилось привязать группу.")
	default:
		project, err := b.projects.Get(projectID)
		if err != nil {
			return
		}
		b.sendText(message.Chat.ID,
			fmt.Sprintf("✅ Группа привязана к проекту «%s».\n\nТеперь все команды здесь работают с этим проектом, а сообщения попадают в его память — спрашивайте /ask.", project.Name))
	}
}

// handleProjects lists the user's projects with deep links.
func (b *Bot) handleProjects(message *tgbotapi.Message, user *database.User) {
	res, err := b.resolver.Resolve(false, message.Chat.ID, user.ID)
	if err != nil {
		logger.Error().Err(err).Msg("project list failed")
		return
	}
	if res.Outcome == core.NoProjects {
		b.sendText(message.Chat.ID, "У вас пока нет проектов. Создайте первый: /newproject")
		return
	}

	projects := res.Choices
	if res.Outcome == core.ResolvedProject {
		projects = []database.Project{*res.Project}
	}

	text := "🏠 <b>Ваши проекты</b>\n"
	for _, p := range projects {
		mark := "📋"
		if p.IsLaunched {
			mark = "🚀"
		}
		text += fmt.Sprintf("\n%s <b>%s</b>", mark, esc(p.Name))
		if p.TelegramChatID == nil {
			text += fmt.Sprintf("\n  Привязать группу: %s", core.DeepLink(b.Username(), p.ID))
		}
	}
	b.sendHTML(message.Chat.ID, text)
}

func (b *Bot) showProjectCard(chatID int64, project *database.Project) {
	b.sendHTML(chatID, formatProjectCard(project))
}

// ingestGroupMessage stores group chatter as project memory and embeds
// it when the AI is configured. Storage never depends on the AI.
func (b *Bot) ingestGroupMessage(ctx context.Context, message *tgbotapi.Message, user *database.User) {
	if message.Text == "" {
		return
	}
	project, err := b.resolver.ProjectByChat(message.Chat.ID)
	if err != nil {
		return // unlinked group, nothing to remember
	}

	msg := database.Message{
		ProjectID: project.ID,
		UserID:    user.ID,
		ChatID:    message.Chat.ID,
		Type:      database.MessageText,
		RawText:   message.Text,
	}
	if err := b.db.Create(&msg).Error; err != nil {
		logger.Error().Err(err).Msg("message store failed")
		return
	}

	if b.aiClient.Configured() {
		go func() {
			if err := b.embeddings.EmbedMessage(context.Background(), &msg); err != nil {
				logger.Warn().Err(err).Uint("message_id", msg.ID).Msg("embedding failed, /backfill will retry")
			}
		}()
	}
}
