package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"renobot/internal/core"
	"renobot/internal/database"
	"renobot/internal/states"
	"renobot/pkg/logger"
)

const (
	stepExpenseType     = "expense:type"
	stepExpenseCategory = "expense:category"
	stepExpenseDesc     = "expense:description"
	stepExpenseWork     = "expense:work_cost"
	stepExpenseMaterial = "expense:material_cost"
	stepExpensePrepay   = "expense:prepayment"
	stepExpenseConfirm  = "expense:confirm"
)

func (b *Bot) startExpenseWizard(ctx context.Context, message *tgbotapi.Message, user *database.User, project *database.Project) {
	ok, err := b.roles.Can(project.ID, user.ID, core.ActionEditBudget)
	if err != nil {
		logger.Error().Err(err).Msg("permission check failed")
		return
	}
	if !ok {
		b.sendText(message.Chat.ID, "⛔ Ваша роль не позволяет добавлять расходы.")
		return
	}

	b.states.Set(message.From.ID, message.Chat.ID, &states.UserState{
		Step: stepExpenseType,
		Data: map[string]interface{}{"project_id": project.ID},
	})
	msg := tgbotapi.NewMessage(message.Chat.ID, "💸 Добавляем расход. Что оплачивали?")
	msg.ReplyMarkup = expenseTypeKeyboard()
	b.send(msg)
}

func (b *Bot) handleExpenseCallback(ctx context.Context, message *tgbotapi.Message, fromID int64, user *database.User, parts []string) {
	state := b.states.Get(fromID, message.Chat.ID)
	if state == nil || len(parts) < 2 {
		return
	}

	switch {
	case parts[1] == "type" && state.Step == stepExpenseType && len(parts) >= 3:
		state.Data["expense_type"] = parts[2]
		state.Step = stepExpenseCategory
		msg := tgbotapi.NewMessage(message.Chat.ID, "Выберите категорию:")
		msg.ReplyMarkup = categoryKeyboard()
		b.send(msg)

	case parts[1] == "cat" && state.Step == stepExpenseCategory && len(parts) >= 3:
		state.Data["category"] = parts[2]
		state.Step = stepExpenseDesc
		b.askWithCancel(message.Chat.ID, fmt.Sprintf("Категория: %s\n\nЧто купили или какую работу оплатили?", core.CategoryLabel(parts[2])))

	case parts[1] == "save" && state.Step == stepExpenseConfirm:
		if stringData(state, "expense_type") == "prepayment" {
			b.savePrepayment(ctx, message.Chat.ID, fromID, user, state)
			return
		}
		b.saveExpense(ctx, message.Chat.ID, fromID, user, state)

	case parts[1] == "edit" && state.Step == stepExpenseConfirm:
		// Start over from the type, dropping collected answers
		projectID := state.Data["project_id"]
		state.Step = stepExpenseType
		state.Data = map[string]interface{}{"project_id": projectID}
		msg := tgbotapi.NewMessage(message.Chat.ID, "Хорошо, заново. Что оплачивали?")
		msg.ReplyMarkup = expenseTypeKeyboard()
		b.send(msg)
	}
}

func (b *Bot) handleExpenseInput(ctx context.Context, message *tgbotapi.Message, user *database.User, state *states.UserState) {
	text := strings.TrimSpace(message.Text)
	chatID := message.Chat.ID

	expenseType := stringData(state, "expense_type")

	switch state.Step {
	case stepExpenseDesc:
		state.Data["description"] = text
		switch expenseType {
		case "material":
			state.Data["work_cost"] = 0.0
			state.Step = stepExpenseMaterial
			b.askWithCancel(chatID, "Стоимость материалов? Например: 12 000.")
		case "prepayment":
			state.Step = stepExpensePrepay
			b.askWithCancel(chatID, "Сумма предоплаты? Например: 50 000.")
		default:
			state.Step = stepExpenseWork
			b.askWithCancel(chatID, "Стоимость работ? Например: 45 000.")
		}

	case stepExpenseWork:
		amount, ok := core.ParseAmount(text)
		if !ok {
			b.sendText(chatID, "Не понял сумму. Введите число, например: 45 000.")
			return
		}
		state.Data["work_cost"] = amount
		if expenseType == "work" {
			state.Data["material_cost"] = 0.0
			b.showExpenseConfirm(chatID, state)
			return
		}
		state.Step = stepExpenseMaterial
		b.askWithCancel(chatID, "Стоимость материалов? (число или 0)")

	case stepExpenseMaterial:
		amount, ok := core.ParseAmount(text)
		if !ok {
			b.sendText(chatID, "Не понял сумму. Введите число, например: 12 000.")
			return
		}
		state.Data["material_cost"] = amount
		b.showExpenseConfirm(chatID, state)

	case stepExpensePrepay:
		amount, ok := core.ParseAmount(text)
		if !ok {
			b.sendText(chatID, "Не понял сумму. Введите число, например: 50 000.")
			return
		}
		state.Data["prepayment"] = amount
		b.showExpenseConfirm(chatID, state)

	case stepExpenseType, stepExpenseCategory, stepExpenseConfirm:
		b.sendText(chatID, "Выберите вариант кнопкой выше или /cancel.")
	}
}

// showExpenseConfirm is the wizard's terminal state: nothing is written
// until the user presses save.
func (b *Bot) showExpenseConfirm(chatID int64, state *states.UserState) {
	state.Step = stepExpenseConfirm

	var sb strings.Builder
	sb.WriteString("Проверьте расход:\n\n")
	fmt.Fprintf(&sb, "%s\n", core.CategoryLabel(stringData(state, "category")))
	if desc := stringData(state, "description"); desc != "" {
		fmt.Fprintf(&sb, "📝 %s\n", desc)
	}
	if state.Data["expense_type"] == "prepayment" {
		amount, _ := state.Data["prepayment"].(float64)
		fmt.Fprintf(&sb, "💵 Предоплата: %s\n", formatAmount(amount))
	} else {
		work, _ := state.Data["work_cost"].(float64)
		material, _ := state.Data["material_cost"].(float64)
		if work > 0 {
			fmt.Fprintf(&sb, "🔨 Работы: %s\n", formatAmount(work))
		}
		if material > 0 {
			fmt.Fprintf(&sb, "🧱 Материалы: %s\n", formatAmount(material))
		}
		fmt.Fprintf(&sb, "Итого: %s\n", formatAmount(work+material))
	}

	msg := tgbotapi.NewMessage(chatID, sb.String())
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Сохранить", "exp:save"),
			tgbotapi.NewInlineKeyboardButtonData("✏️ Заново", "exp:edit"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ Отмена", "cancel"),
		),
	)
	b.send(msg)
}

func (b *Bot) saveExpense(ctx context.Context, chatID, fromID int64, user *database.User, state *states.UserState) {
	projectID, _ := state.Data["project_id"].(uint)
	workCost, _ := state.Data["work_cost"].(float64)
	materialCost, _ := state.Data["material_cost"].(float64)
	category, _ := state.Data["category"].(string)
	description, _ := state.Data["description"].(string)

	item, err := b.budget.AddExpense(projectID, user.ID, category, description, workCost, materialCost)
	if err != nil {
		logger.Error().Err(err).Msg("expense save failed")
		b.sendText(chatID, "❌ Не получилось сохранить расход. Попробуйте позже.")
		return
	}
	b.states.Clear(fromID, chatID)

	// Spending changed, cached answers about the budget are stale now
	if err := b.cache.InvalidateProject(ctx, projectID); err != nil {
		logger.Warn().Err(err).Msg("cache invalidation failed")
	}

	summary, err := b.budget.Summary(projectID)
	if err != nil {
		logger.Error().Err(err).Msg("budget summary failed")
		return
	}

	text := fmt.Sprintf("✅ Расход записан: %s — %s\n\nОстаток бюджета: %s",
		core.CategoryLabel(item.Category),
		formatAmount(item.WorkCost+item.MaterialCost),
		formatAmount(summary.Remaining))
	if summary.Overspent() {
		text += "\n🚨 Бюджет превышен!"
	} else if summary.NearLimit() {
		text += "\n⚠️ Использовано больше 90% бюджета."
	}

	msg := tgbotapi.NewMessage(chatID, text)
	// The owner confirms amounts; show the button only to them
	if role, err := b.roles.RoleOf(projectID, user.ID); err == nil && core.RoleAllows(role, core.ActionConfirmBudget) {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("✅ Подтвердить сумму", fmt.Sprintf("confirm:%d", item.ID)),
			),
		)
	}
	b.send(msg)
}

func (b *Bot) savePrepayment(ctx context.Context, chatID, fromID int64, user *database.User, state *states.UserState) {
	projectID, _ := state.Data["project_id"].(uint)
	amount, _ := state.Data["prepayment"].(float64)
	category, _ := state.Data["category"].(string)
	description, _ := state.Data["description"].(string)

	item, err := b.budget.AddPrepayment(projectID, user.ID, category, description, amount)
	if err != nil {
		logger.Error().Err(err).Msg("prepayment save failed")
		b.sendText(chatID, "❌ Не получилось сохранить предоплату. Попробуйте позже.")
		return
	}
	b.states.Clear(fromID, chatID)

	if err := b.cache.InvalidateProject(ctx, projectID); err != nil {
		logger.Warn().Err(err).Msg("cache invalidation failed")
	}
	b.sendText(chatID, fmt.Sprintf("✅ Предоплата записана: %s — %s",
		core.CategoryLabel(item.Category), formatAmount(item.Prepayment)))
}

func (b *Bot) handleConfirmCallback(ctx context.Context, message *tgbotapi.Message, user *database.User, parts []string) {
	if len(parts) < 2 {
		return
	}
	itemID, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return
	}

	if err := b.budget.Confirm(uint(itemID), user.ID); err != nil {
		if errors.Is(err, core.ErrPermissionDenied) {
			b.sendText(message.Chat.ID, "⛔ Подтверждать суммы может только владелец проекта.")
			return
		}
		logger.Error().Err(err).Msg("expense confirm failed")
		b.sendText(message.Chat.ID, "❌ Не получилось подтвердить сумму.")
		return
	}
	b.sendText(message.Chat.ID, "✅ Сумма подтверждена.")
}

func (b *Bot) showBudget(ctx context.Context, message *tgbotapi.Message, user *database.User, project *database.Project) {
	ok, err := b.roles.Can(project.ID, user.ID, core.ActionViewBudget)
	if err != nil {
		logger.Error().Err(err).Msg("permission check failed")
		return
	}
	if !ok {
		b.sendText(message.Chat.ID, "⛔ Ваша роль не позволяет смотреть бюджет.")
		return
	}

	summary, err := b.budget.Summary(project.ID)
	if err != nil {
		logger.Error().Err(err).Msg("budget summary failed")
		b.sendText(message.Chat.ID, "❌ Не получилось собрать бюджет.")
		return
	}
	b.sendHTML(message.Chat.ID, formatBudget(summary))
}
