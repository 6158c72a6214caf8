package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"gorm.io/gorm"

	"renobot/internal/ai"
	"renobot/internal/cache"
	"renobot/internal/config"
	"renobot/internal/core"
	"renobot/internal/database"
	"renobot/internal/states"
	"renobot/pkg/logger"
)

const askRateLimit = 20 // questions per user per hour

// sender is the outbound slice of the Telegram API, separate from the
// polling client so handler tests can capture replies.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot ties the Telegram transport to the domain services.
type Bot struct {
	api    *tgbotapi.BotAPI
	out    sender
	db     *gorm.DB
	states *states.Store

	resolver *core.Resolver
	projects *core.ProjectService
	stages   *core.StageService
	budget   *core.BudgetService
	roles    *core.RoleService
	reports  *core.ReportService

	aiClient   *ai.Client
	assistant  *ai.Assistant
	parser     *ai.Parser
	embeddings *ai.EmbeddingService
	cache      *cache.Cache
}

type Deps struct {
	DB         *gorm.DB
	Resolver   *core.Resolver
	Projects   *core.ProjectService
	Stages     *core.StageService
	Budget     *core.BudgetService
	Roles      *core.RoleService
	Reports    *core.ReportService
	AIClient   *ai.Client
	Assistant  *ai.Assistant
	Parser     *ai.Parser
	Embeddings *ai.EmbeddingService
	Cache      *cache.Cache
}

func New(cfg config.TelegramConfig, deps Deps) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, err
	}
	api.Debug = cfg.Debug

	logger.Info().Str("username", api.Self.UserName).Msg("telegram authorized")

	return &Bot{
		api:        api,
		out:        api,
		db:         deps.DB,
		states:     states.NewStore(),
		resolver:   deps.Resolver,
		projects:   deps.Projects,
		stages:     deps.Stages,
		budget:     deps.Budget,
		roles:      deps.Roles,
		reports:    deps.Reports,
		aiClient:   deps.AIClient,
		assistant:  deps.Assistant,
		parser:     deps.Parser,
		embeddings: deps.Embeddings,
		cache:      deps.Cache,
	}, nil
}

// Username returns the bot's own username, used for deep links.
func (b *Bot) Username() string {
	return b.api.Self.UserName
}

// Notify sends a plain reminder text to a chat. Used by the scheduler.
func (b *Bot) Notify(chatID int64, text string) {
	b.sendText(chatID, text)
}

// Run consumes the long-polling update channel until ctx is done.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = []string{tgbotapi.UpdateTypeMessage, tgbotapi.UpdateTypeCallbackQuery}

	updates := b.api.GetUpdatesChan(u)
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("update handler panicked")
		}
	}()

	if update.Message != nil {
		b.handleMessage(ctx, update.Message)
	} else if update.CallbackQuery != nil {
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	user, err := b.ensureUser(message.From, message.Chat.Type == "private")
	if err != nil {
		logger.Error().Err(err).Msg("user upsert failed")
		return
	}

	if message.Voice != nil || len(message.Photo) > 0 {
		b.handleMedia(ctx, message, user)
		return
	}

	// Everything said in a linked group feeds the project's memory
	if isGroup(message.Chat) && !message.IsCommand() {
		b.ingestGroupMessage(ctx, message, user)
	}

	if message.IsCommand() {
		b.handleCommand(ctx, message, user)
		return
	}

	if state := b.states.Get(message.From.ID, message.Chat.ID); state != nil {
		b.handleWizardInput(ctx, message, user, state)
		return
	}

	// Plain text like "бюджет" or "статус" works as a shortcut
	if cmd := core.ParseQuickCommand(message.Text); cmd != "" {
		b.dispatchCommand(ctx, cmd, message, user)
		return
	}

	if !isGroup(message.Chat) {
		b.sendText(message.Chat.ID, "Не понял. Посмотрите /help или спросите через /ask.")
	}
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message, user *database.User) {
	// A new command always abandons an unfinished wizard
	b.states.Clear(message.From.ID, message.Chat.ID)
	b.dispatchCommand(ctx, message.Command(), message, user)
}

func (b *Bot) dispatchCommand(ctx context.Context, command string, message *tgbotapi.Message, user *database.User) {
	switch command {
	case "start":
		b.handleStart(ctx, message, user)
	case "help":
		b.sendHTML(message.Chat.ID, helpText)
	case "newproject":
		b.startProjectWizard(message, user)
	case "projects":
		b.handleProjects(message, user)
	case "stages":
		b.withProject(ctx, "stages", message, user, b.showStages)
	case "launch":
		b.withProject(ctx, "launch", message, user, b.handleLaunch)
	case "nextstage":
		b.withProject(ctx, "nextstage", message, user, b.showNextStage)
	case "mystage":
		b.withProject(ctx, "mystage", message, user, b.showMyStages)
	case "budget":
		b.withProject(ctx, "budget", message, user, b.showBudget)
	case "expenses":
		b.withProject(ctx, "expenses", message, user, b.startExpenseWizard)
	case "report":
		b.withProject(ctx, "report", message, user, b.showReport)
	case "status":
		b.withProject(ctx, "status", message, user, b.showStatus)
	case "deadline":
		b.withProject(ctx, "deadline", message, user, b.showDeadlines)
	case "team":
		b.withProject(ctx, "team", message, user, b.showTeam)
	case "invite":
		b.withProject(ctx, "invite", message, user, b.startInviteWizard)
	case "myrole":
		b.withProject(ctx, "myrole", message, user, b.showMyRole)
	case "link":
		b.withProject(ctx, "link", message, user, b.handleLink)
	case "ask":
		b.withProject(ctx, "ask", message, user, b.handleAsk)
	case "parse":
		b.withProject(ctx, "parse", message, user, b.handleParse)
	case "backfill":
		b.withProject(ctx, "backfill", message, user, b.handleBackfill)
	case "cancel":
		b.states.Clear(message.From.ID, message.Chat.ID)
		b.sendText(message.Chat.ID, "Действие отменено.")
	default:
		if !isGroup(message.Chat) {
			b.sendText(message.Chat.ID, "Неизвестная команда. Посмотрите /help.")
		}
	}
}

// projectHandler runs a command once its target project is known.
type projectHandler func(ctx context.Context, message *tgbotapi.Message, user *database.User, project *database.Project)

// withProject resolves which project a command targets, asking the user
// to pick when it is ambiguous.
func (b *Bot) withProject(ctx context.Context, intent string, message *tgbotapi.Message, user *database.User, handler projectHandler) {
	res, err := b.resolver.Resolve(isGroup(message.Chat), message.Chat.ID, user.ID)
	if err != nil {
		logger.Error().Err(err).Str("intent", intent).Msg("project resolution failed")
		b.sendText(message.Chat.ID, "Что-то пошло не так, попробуйте ещё раз.")
		return
	}

	switch res.Outcome {
	case core.ResolvedProject:
		handler(ctx, message, user, res.Project)
	case core.NoProjects:
		b.sendText(message.Chat.ID, "У вас пока нет проектов. Создайте первый: /newproject")
	case core.GroupNotLinked:
		b.sendText(message.Chat.ID, "Эта группа не привязана к проекту. Владелец может привязать её командой /link.")
	case core.PickProject:
		b.states.Set(message.From.ID, message.Chat.ID, &states.UserState{Intent: intent})
		msg := tgbotapi.NewMessage(message.Chat.ID, "Какой проект?")
		msg.ReplyMarkup = projectPickKeyboard(res.Choices)
		b.send(msg)
	}
}

func (b *Bot) handleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	b.out.Request(tgbotapi.NewCallback(callback.ID, ""))

	user, err := b.ensureUser(callback.From, callback.Message.Chat.Type == "private")
	if err != nil {
		logger.Error().Err(err).Msg("user upsert failed")
		return
	}

	parts := strings.Split(callback.Data, ":")
	action := parts[0]
	message := callback.Message

	switch action {
	case "pick":
		b.handleProjectPicked(ctx, callback, user, parts)
	case "np":
		b.handleProjectWizardCallback(ctx, message, callback.From.ID, user, parts)
	case "exp":
		b.handleExpenseCallback(ctx, message, callback.From.ID, user, parts)
	case "inv":
		b.handleInviteCallback(ctx, message, callback.From.ID, user, parts)
	case "stage":
		b.handleStageCallback(ctx, message, user, parts)
	case "pay":
		b.handlePaymentCallback(ctx, message, user, parts)
	case "st":
		b.handleStatusCallback(ctx, message, user, parts)
	case "dates":
		b.startStageEdit(message, callback.From.ID, user, parts, stepStageDates)
	case "resp":
		b.startStageEdit(message, callback.From.ID, user, parts, stepStageResponsible)
	case "sbud":
		b.startStageEdit(message, callback.From.ID, user, parts, stepStageBudget)
	case "subs":
		b.startStageEdit(message, callback.From.ID, user, parts, stepStageSubStages)
	case "confirm":
		b.handleConfirmCallback(ctx, message, user, parts)
	case "cancel":
		b.states.Clear(callback.From.ID, message.Chat.ID)
		b.sendText(message.Chat.ID, "Действие отменено.")
	default:
		logger.Warn().Str("data", callback.Data).Msg("unknown callback")
	}
}

// handleProjectPicked resumes the intent stored before the picker.
func (b *Bot) handleProjectPicked(ctx context.Context, callback *tgbotapi.CallbackQuery, user *database.User, parts []string) {
	if len(parts) < 2 {
		return
	}
	projectID, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return
	}
	project, err := b.projects.Get(uint(projectID))
	if err != nil {
		b.sendText(callback.Message.Chat.ID, "Проект не найден.")
		return
	}

	state := b.states.Get(callback.From.ID, callback.Message.Chat.ID)
	b.states.Clear(callback.From.ID, callback.Message.Chat.ID)
	intent := ""
	if state != nil {
		intent = state.Intent
	}

	// Wizards started from here must key their state to the person who
	// pressed the button, not to the bot's own message.
	message := callback.Message
	message.From = callback.From
	switch intent {
	case "stages":
		b.showStages(ctx, message, user, project)
	case "launch":
		b.handleLaunch(ctx, message, user, project)
	case "nextstage":
		b.showNextStage(ctx, message, user, project)
	case "mystage":
		b.showMyStages(ctx, message, user, project)
	case "budget":
		b.showBudget(ctx, message, user, project)
	case "expenses":
		b.startExpenseWizard(ctx, message, user, project)
	case "report":
		b.showReport(ctx, message, user, project)
	case "status":
		b.showStatus(ctx, message, user, project)
	case "deadline":
		b.showDeadlines(ctx, message, user, project)
	case "team":
		b.showTeam(ctx, message, user, project)
	case "invite":
		b.startInviteWizard(ctx, message, user, project)
	case "myrole":
		b.showMyRole(ctx, message, user, project)
	case "link":
		b.handleLink(ctx, message, user, project)
	case "ask":
		b.handleAsk(ctx, message, user, project)
	case "parse":
		b.handleParse(ctx, message, user, project)
	case "backfill":
		b.handleBackfill(ctx, message, user, project)
	default:
		b.showProjectCard(message.Chat.ID, project)
	}
}

// handleWizardInput routes free text to the active wizard by step prefix.
func (b *Bot) handleWizardInput(ctx context.Context, message *tgbotapi.Message, user *database.User, state *states.UserState) {
	switch {
	case strings.HasPrefix(state.Step, "newproject:"):
		b.handleProjectWizardInput(ctx, message, user, state)
	case strings.HasPrefix(state.Step, "expense:"):
		b.handleExpenseInput(ctx, message, user, state)
	case strings.HasPrefix(state.Step, "invite:"):
		b.handleInviteInput(ctx, message, user, state)
	case strings.HasPrefix(state.Step, "stageedit:"):
		b.handleStageEditInput(ctx, message, user, state)
	case strings.HasPrefix(state.Step, "ask:"):
		b.handleAskInput(ctx, message, user, state)
	case strings.HasPrefix(state.Step, "parse:"):
		b.handleParseInput(ctx, message, user, state)
	default:
		b.states.Clear(message.From.ID, message.Chat.ID)
	}
}

// ensureUser upserts the Telegram account into the users table.
// IsBotStarted flips on the first private-chat contact and gates
// whether we may DM the user.
func (b *Bot) ensureUser(from *tgbotapi.User, privateChat bool) (*database.User, error) {
	if from == nil {
		return nil, gorm.ErrRecordNotFound
	}

	fullName := strings.TrimSpace(from.FirstName + " " + from.LastName)

	var user database.User
	err := b.db.Where("telegram_id = ?", from.ID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = database.User{
			TelegramID:   from.ID,
			FullName:     fullName,
			Username:     from.UserName,
			IsBotStarted: privateChat,
		}
		return &user, b.db.Create(&user).Error
	}
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if user.FullName != fullName && fullName != "" {
		updates["full_name"] = fullName
	}
	if user.Username != from.UserName {
		updates["username"] = from.UserName
	}
	if privateChat && !user.IsBotStarted {
		updates["is_bot_started"] = true
	}
	if len(updates) > 0 {
		if err := b.db.Model(&user).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	return &user, nil
}

func isGroup(chat *tgbotapi.Chat) bool {
	return chat.IsGroup() || chat.IsSuperGroup()
}

func (b *Bot) send(msg tgbotapi.Chattable) {
	if _, err := b.out.Send(msg); err != nil {
		logger.Error().Err(err).Msg("send failed")
	}
}

func (b *Bot) sendText(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) sendHTML(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	b.send(msg)
}
