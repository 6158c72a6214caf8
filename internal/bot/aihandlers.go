package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"renobot/internal/ai"
	"renobot/internal/core"
	"renobot/internal/database"
	"renobot/internal/states"
	"renobot/pkg/logger"
)

const (
	stepAskQuestion = "ask:question"
	stepParseText   = "parse:text"
)

func (b *Bot) handleAsk(ctx context.Context, message *tgbotapi.Message, user *database.User, project *database.Project) {
	if !b.aiClient.Configured() {
		b.sendText(message.Chat.ID, "Ассистент не настроен: нет ключа API.")
		return
	}

	question := strings.TrimSpace(message.CommandArguments())
	if question == "" {
		b.states.Set(message.From.ID, message.Chat.ID, &states.UserState{
			Step: stepAskQuestion,
			Data: map[string]interface{}{"project_id": project.ID},
		})
		b.askWithCancel(message.Chat.ID, "Что спросить про проект? Например: «Сколько потратили на плитку?»")
		return
	}
	b.answerQuestion(ctx, message.Chat.ID, user, project.ID, question)
}

func (b *Bot) handleAskInput(ctx context.Context, message *tgbotapi.Message, user *database.User, state *states.UserState) {
	projectID, _ := state.Data["project_id"].(uint)
	b.states.Clear(message.From.ID, message.Chat.ID)
	b.answerQuestion(ctx, message.Chat.ID, user, projectID, strings.TrimSpace(message.Text))
}

func (b *Bot) answerQuestion(ctx context.Context, chatID int64, user *database.User, projectID uint, question string) {
	if question == "" {
		return
	}

	limited, err := b.cache.CheckRateLimit(ctx, user.TelegramID, askRateLimit, time.Hour)
	if err != nil {
		logger.Warn().Err(err).Msg("rate limit check failed")
	}
	if limited {
		b.sendText(chatID, "Слишком много вопросов подряд. Подождите немного.")
		return
	}

	b.send(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))

	answer, err := b.assistant.Ask(ctx, projectID, question)
	if err != nil {
		if errors.Is(err, ai.ErrUnavailable) {
			b.sendText(chatID, "Ассистент не настроен: нет ключа API.")
			return
		}
		logger.Error().Err(err).Msg("ask failed")
		b.sendText(chatID, "❌ Не получилось ответить, попробуйте позже.")
		return
	}
	b.sendText(chatID, answer)
}

func (b *Bot) handleParse(ctx context.Context, message *tgbotapi.Message, user *database.User, project *database.Project) {
	if !b.aiClient.Configured() {
		b.sendText(message.Chat.ID, "Разбор описаний не настроен: нет ключа API.")
		return
	}
	ok, err := b.roles.Can(project.ID, user.ID, core.ActionEditStage)
	if err != nil || !ok {
		b.sendText(message.Chat.ID, "⛔ Ваша роль не позволяет добавлять этапы.")
		return
	}

	text := strings.TrimSpace(message.CommandArguments())
	if text == "" {
		b.states.Set(message.From.ID, message.Chat.ID, &states.UserState{
			Step: stepParseText,
			Data: map[string]interface{}{"project_id": project.ID},
		})
		b.askWithCancel(message.Chat.ID, "Опишите работы свободным текстом — я превращу их в этап с чек-листом.\nНапример: «плитка в ванной недели на две: подготовка дня три, потом укладка, в конце затирка».")
		return
	}
	b.parseIntoStage(ctx, message.Chat.ID, user, project.ID, text)
}

func (b *Bot) handleParseInput(ctx context.Context, message *tgbotapi.Message, user *database.User, state *states.UserState) {
	projectID, _ := state.Data["project_id"].(uint)
	b.states.Clear(message.From.ID, message.Chat.ID)
	b.parseIntoStage(ctx, message.Chat.ID, user, projectID, strings.TrimSpace(message.Text))
}

func (b *Bot) parseIntoStage(ctx context.Context, chatID int64, user *database.User, projectID uint, text string) {
	if text == "" {
		return
	}
	b.send(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))

	parsed, err := b.parser.Parse(ctx, text)
	if err != nil {
		logger.Error().Err(err).Msg("stage parse failed")
		b.sendText(chatID, "❌ Не смог разобрать описание. Попробуйте сформулировать иначе.")
		return
	}

	start := time.Now().UTC().Truncate(24 * time.Hour)
	subs := ai.LayoutSubStages(0, parsed, start)
	stage, err := b.stages.CreateWithSubStages(projectID, parsed.Name, parsed.EstimatedBudget, subs, user.ID)
	if err != nil {
		logger.Error().Err(err).Msg("parsed stage save failed")
		b.sendText(chatID, "❌ Не получилось сохранить этап.")
		return
	}

	reply := fmt.Sprintf("✅ Добавил этап «%s» (~%d дн.)", stage.Name, parsed.TotalDays)
	if parsed.EstimatedBudget > 0 {
		reply += fmt.Sprintf(", оценка бюджета %s", formatAmount(parsed.EstimatedBudget))
	}
	if len(parsed.SubStages) > 0 {
		reply += "\n\nЧек-лист:"
		for _, sub := range subs {
			reply += fmt.Sprintf("\n◻️ %s (%s – %s)", sub.Name, core.FormatDate(sub.StartDate), core.FormatDate(sub.EndDate))
		}
	}
	b.sendText(chatID, reply)
}

func (b *Bot) handleBackfill(ctx context.Context, message *tgbotapi.Message, user *database.User, project *database.Project) {
	if !b.aiClient.Configured() {
		b.sendText(message.Chat.ID, "Эмбеддинги не настроены: нет ключа API.")
		return
	}

	b.send(tgbotapi.NewChatAction(message.Chat.ID, tgbotapi.ChatTyping))

	// Retry voice/photo messages whose transcription failed at ingest,
	// then embed everything that still has no vector.
	transcribed := b.retryTranscriptions(ctx, project.ID)

	n, err := b.embeddings.Backfill(ctx, project.ID)
	if err != nil {
		logger.Error().Err(err).Msg("backfill failed")
		b.sendText(message.Chat.ID, fmt.Sprintf("Обработано %d сообщений, потом произошла ошибка. Запустите /backfill ещё раз.", n))
		return
	}
	if n == 0 && transcribed == 0 {
		b.sendText(message.Chat.ID, "Все сообщения проекта уже проиндексированы.")
		return
	}
	reply := fmt.Sprintf("✅ Проиндексировано сообщений: %d.", n)
	if transcribed > 0 {
		reply += fmt.Sprintf(" Распознано отложенных голосовых и фото: %d.", transcribed)
	}
	b.sendText(message.Chat.ID, reply)
}

func (b *Bot) retryTranscriptions(ctx context.Context, projectID uint) int {
	pending, err := b.embeddings.PendingTranscriptions(projectID)
	if err != nil {
		logger.Error().Err(err).Msg("pending transcription lookup failed")
		return 0
	}
	done := 0
	for i := range pending {
		if _, err := b.transcribeStored(ctx, &pending[i]); err != nil {
			logger.Warn().Err(err).Uint("message_id", pending[i].ID).Msg("transcription retry failed")
			continue
		}
		done++
	}
	return done
}

// handleMedia stores voice and photo messages as project memory. The
// row is written before any AI call, so nothing is lost when the AI is
// down; transcription fills in later via /backfill.
func (b *Bot) handleMedia(ctx context.Context, message *tgbotapi.Message, user *database.User) {
	project, err := b.resolver.ProjectByChat(message.Chat.ID)
	if err != nil {
		if isGroup(message.Chat) {
			return
		}
		// In private chat fall back to the single-project case
		res, rerr := b.resolver.Resolve(false, message.Chat.ID, user.ID)
		if rerr != nil {
			logger.Error().Err(rerr).Msg("media project resolution failed")
			return
		}
		switch res.Outcome {
		case core.ResolvedProject:
			project = res.Project
		case core.PickProject:
			b.sendText(message.Chat.ID, "У вас несколько проектов — отправьте голосовое или фото в группу нужного проекта, чтобы я знал, куда его записать.")
			return
		default:
			b.sendText(message.Chat.ID, "Сначала создайте проект: /newproject")
			return
		}
	}

	msg := database.Message{
		ProjectID: project.ID,
		UserID:    user.ID,
		ChatID:    message.Chat.ID,
		RawText:   message.Caption,
	}

	var fileID string
	if message.Voice != nil {
		msg.Type = database.MessageVoice
		fileID = message.Voice.FileID
	} else {
		msg.Type = database.MessagePhoto
		// The last size is the largest
		fileID = message.Photo[len(message.Photo)-1].FileID
	}
	msg.FileRef = fileID

	if err := b.db.Create(&msg).Error; err != nil {
		logger.Error().Err(err).Msg("media message store failed")
		return
	}

	if !b.aiClient.Configured() {
		return
	}

	go b.transcribeMedia(context.Background(), message, &msg)
}

func (b *Bot) transcribeMedia(ctx context.Context, message *tgbotapi.Message, msg *database.Message) {
	text, err := b.transcribeStored(ctx, msg)
	if err != nil {
		logger.Warn().Err(err).Uint("message_id", msg.ID).Msg("transcription failed, /backfill will retry")
		return
	}

	if msg.Type == database.MessageVoice {
		reply := tgbotapi.NewMessage(message.Chat.ID, "🎙 Записал: "+text)
		reply.ReplyToMessageID = message.MessageID
		b.send(reply)
	}
}

// transcribeStored runs speech-to-text or vision over a stored media
// row and indexes the result. Works off the row alone, so /backfill can
// retry messages whose ingest-time transcription failed.
func (b *Bot) transcribeStored(ctx context.Context, msg *database.Message) (string, error) {
	url, err := b.api.GetFileDirectURL(msg.FileRef)
	if err != nil {
		return "", fmt.Errorf("file url: %w", err)
	}

	var text string
	if msg.Type == database.MessageVoice {
		audio, err := download(url)
		if err != nil {
			return "", fmt.Errorf("voice download: %w", err)
		}
		text, err = b.aiClient.Transcribe(ctx, "voice.ogg", audio)
		if err != nil {
			return "", fmt.Errorf("transcription: %w", err)
		}
	} else {
		text, err = b.aiClient.DescribeImage(ctx, url, msg.RawText)
		if err != nil {
			return "", fmt.Errorf("image description: %w", err)
		}
	}

	if err := b.db.Model(msg).Update("transcribed_text", text).Error; err != nil {
		return "", fmt.Errorf("transcription store: %w", err)
	}
	msg.TranscribedText = text
	if err := b.embeddings.EmbedMessage(ctx, msg); err != nil {
		logger.Warn().Err(err).Uint("message_id", msg.ID).Msg("media embedding failed, /backfill will retry")
	}
	return text, nil
}

func download(url string) ([]byte, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
