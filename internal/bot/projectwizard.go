package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"renobot/internal/core"
	"renobot/internal/database"
	"renobot/internal/states"
	"renobot/pkg/logger"
)

// Project wizard steps. Text inputs move the state forward; type,
// coordinator and custom items come in as callbacks.
const (
	stepProjectName    = "newproject:name"
	stepProjectAddress = "newproject:address"
	stepProjectArea    = "newproject:area"
	stepProjectType    = "newproject:type"
	stepProjectBudget  = "newproject:budget"
	stepProjectCoord   = "newproject:coordinator"
	stepCoordContact   = "newproject:coordinator_contact"
	stepCoOwner        = "newproject:co_owner"
	stepCustomItems    = "newproject:custom_items"
	stepProjectConfirm = "newproject:confirm"
)

func (b *Bot) startProjectWizard(message *tgbotapi.Message, user *database.User) {
	if isGroup(message.Chat) {
		b.sendText(message.Chat.ID, "Создавать проект лучше в личном чате со мной.")
		return
	}

	b.states.Set(message.From.ID, message.Chat.ID, &states.UserState{Step: stepProjectName})
	msg := tgbotapi.NewMessage(message.Chat.ID, "🏠 Создаём проект ремонта.\n\nКак назовём проект? Например: «Квартира на Абая».")
	msg.ReplyMarkup = cancelKeyboard()
	b.send(msg)
}

func (b *Bot) handleProjectWizardInput(ctx context.Context, message *tgbotapi.Message, user *database.User, state *states.UserState) {
	text := strings.TrimSpace(message.Text)
	chatID := message.Chat.ID

	switch state.Step {
	case stepProjectName:
		if text == "" {
			b.sendText(chatID, "Название не может быть пустым. Попробуйте ещё раз.")
			return
		}
		state.Data["name"] = text
		state.Step = stepProjectAddress
		b.askWithCancel(chatID, "Адрес объекта? (или «-», чтобы пропустить)")

	case stepProjectAddress:
		if text != "-" {
			state.Data["address"] = text
		}
		state.Step = stepProjectArea
		b.askWithCancel(chatID, "Площадь в м²? (или «-», чтобы пропустить)")

	case stepProjectArea:
		if text != "-" {
			area, ok := core.ParseAmount(text)
			if !ok {
				b.sendText(chatID, "Не понял площадь. Введите число, например: 52.5")
				return
			}
			state.Data["area"] = area
		}
		state.Step = stepProjectType
		msg := tgbotapi.NewMessage(chatID, "Какой ремонт?")
		msg.ReplyMarkup = renovationTypeKeyboard()
		b.send(msg)

	case stepProjectBudget:
		budget, ok := core.ParseAmount(text)
		if !ok {
			b.sendText(chatID, "Не понял сумму. Введите число, например: 1500000 или 1 500 000.")
			return
		}
		state.Data["budget"] = budget
		state.Step = stepProjectCoord
		msg := tgbotapi.NewMessage(chatID, "Кто будет координировать ремонт?")
		msg.ReplyMarkup = coordinatorKeyboard()
		b.send(msg)

	case stepCoordContact:
		state.Data["coordinator_contact"] = text
		state.Step = stepCoOwner
		b.askWithCancel(chatID, "Контакт совладельца? (или «-», если его нет)")

	case stepCoOwner:
		if text != "-" {
			state.Data["co_owner"] = text
		}
		b.showCustomItemsStep(chatID, state)

	default:
		// Waiting for a callback; remind what we expect
		b.sendText(chatID, "Выберите вариант кнопкой выше или /cancel.")
	}
}

func (b *Bot) handleProjectWizardCallback(ctx context.Context, message *tgbotapi.Message, fromID int64, user *database.User, parts []string) {
	state := b.states.Get(fromID, message.Chat.ID)
	if state == nil || len(parts) < 2 {
		return
	}
	chatID := message.Chat.ID

	switch parts[1] {
	case "type":
		if state.Step != stepProjectType || len(parts) < 3 {
			return
		}
		state.Data["type"] = parts[2]
		state.Step = stepProjectBudget
		b.askWithCancel(chatID, "Общий бюджет ремонта? Например: 1 500 000.")

	case "coord":
		if state.Step != stepProjectCoord || len(parts) < 3 {
			return
		}
		state.Data["coordinator"] = parts[2]
		if parts[2] == string(database.CoordinatorSelf) {
			state.Step = stepCoOwner
			b.askWithCancel(chatID, "Контакт совладельца? (или «-», если его нет)")
			return
		}
		state.Step = stepCoordContact
		b.askWithCancel(chatID, "Контакт координатора (телефон или @username)?")

	case "item":
		if state.Step != stepCustomItems || len(parts) < 3 {
			return
		}
		selected := selectedItems(state)
		selected[parts[2]] = !selected[parts[2]]
		state.Data["items"] = selected
		edit := tgbotapi.NewEditMessageReplyMarkup(chatID, message.MessageID, customItemsKeyboard(selected))
		if _, err := b.out.Request(edit); err != nil {
			logger.Error().Err(err).Msg("keyboard edit failed")
		}

	case "items_done":
		if state.Step != stepCustomItems {
			return
		}
		state.Step = stepProjectConfirm
		msg := tgbotapi.NewMessage(chatID, b.projectSummary(state))
		msg.ParseMode = tgbotapi.ModeHTML
		msg.ReplyMarkup = confirmProjectKeyboard()
		b.send(msg)

	case "confirm":
		if state.Step != stepProjectConfirm {
			return
		}
		b.createProjectFromState(chatID, fromID, user, state)

	case "edit":
		if state.Step != stepProjectConfirm {
			return
		}
		// Start over from the name, dropping collected answers
		state.Step = stepProjectName
		state.Data = make(map[string]interface{})
		b.askWithCancel(chatID, "Хорошо, начнём заново. Как назовём проект?")
	}
}

func (b *Bot) showCustomItemsStep(chatID int64, state *states.UserState) {
	state.Step = stepCustomItems
	msg := tgbotapi.NewMessage(chatID, "Что заказываете на заказ? Отметьте всё нужное и нажмите «Готово».")
	msg.ReplyMarkup = customItemsKeyboard(selectedItems(state))
	b.send(msg)
}

func selectedItems(state *states.UserState) map[string]bool {
	if m, ok := state.Data["items"].(map[string]bool); ok {
		return m
	}
	return make(map[string]bool)
}

func (b *Bot) projectSummary(state *states.UserState) string {
	var sb strings.Builder
	sb.WriteString("Проверьте данные проекта:\n\n")
	fmt.Fprintf(&sb, "🏠 <b>%s</b>\n", esc(stringData(state, "name")))
	if addr := stringData(state, "address"); addr != "" {
		fmt.Fprintf(&sb, "📍 %s\n", esc(addr))
	}
	if area, ok := state.Data["area"].(float64); ok {
		fmt.Fprintf(&sb, "📐 %.1f м²\n", area)
	}
	fmt.Fprintf(&sb, "🔧 %s\n", renovationLabels[database.RenovationType(stringData(state, "type"))])
	if budget, ok := state.Data["budget"].(float64); ok {
		fmt.Fprintf(&sb, "💰 %s\n", formatAmount(budget))
	}
	if contact := stringData(state, "coordinator_contact"); contact != "" {
		fmt.Fprintf(&sb, "👷 Координатор: %s\n", esc(contact))
	}
	if co := stringData(state, "co_owner"); co != "" {
		fmt.Fprintf(&sb, "👥 Совладелец: %s\n", esc(co))
	}

	var items []string
	for key, on := range selectedItems(state) {
		if on {
			items = append(items, core.CustomItemLabels[key])
		}
	}
	if len(items) > 0 {
		fmt.Fprintf(&sb, "🪑 На заказ: %s\n", strings.Join(items, ", "))
	}
	return sb.String()
}

func (b *Bot) createProjectFromState(chatID, fromID int64, user *database.User, state *states.UserState) {
	input := core.ProjectInput{
		Name:               stringData(state, "name"),
		Address:            stringData(state, "address"),
		RenovationType:     database.RenovationType(stringData(state, "type")),
		CoordinatorType:    database.CoordinatorType(stringData(state, "coordinator")),
		CoordinatorContact: stringData(state, "coordinator_contact"),
		CoOwnerContact:     stringData(state, "co_owner"),
	}
	if area, ok := state.Data["area"].(float64); ok {
		input.AreaSqm = area
	}
	if budget, ok := state.Data["budget"].(float64); ok {
		input.TotalBudget = budget
	}
	for _, key := range core.CustomItemKeys {
		if selectedItems(state)[key] {
			input.CustomItems = append(input.CustomItems, key)
		}
	}

	project, err := b.projects.Create(user.ID, input)
	if err != nil {
		logger.Error().Err(err).Msg("project creation failed")
		b.sendText(chatID, "❌ Не получилось создать проект. Попробуйте позже.")
		return
	}
	b.states.Clear(fromID, chatID)

	text := fmt.Sprintf("✅ Проект «%s» создан!\n\n", project.Name) +
		"Я подготовил стандартные этапы ремонта — /stages.\n" +
		"Когда проставите даты первому этапу, запускайте: /launch.\n\n" +
		"Чтобы вести проект в группе с командой, добавьте меня туда по ссылке:\n" +
		core.DeepLink(b.Username(), project.ID)
	b.sendText(chatID, text)
}

func stringData(state *states.UserState, key string) string {
	if s, ok := state.Data[key].(string); ok {
		return s
	}
	return ""
}

func (b *Bot) askWithCancel(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = cancelKeyboard()
	b.send(msg)
}
