package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"renobot/internal/core"
	"renobot/internal/database"
)

func cancelKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ Отмена", "cancel"),
		),
	)
}

func projectPickKeyboard(projects []database.Project) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, p := range projects {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(p.Name, fmt.Sprintf("pick:%d", p.ID)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func renovationTypeKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Косметический", "np:type:cosmetic"),
			tgbotapi.NewInlineKeyboardButtonData("Стандартный", "np:type:standard"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Капитальный", "np:type:major"),
			tgbotapi.NewInlineKeyboardButtonData("Дизайнерский", "np:type:designer"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ Отмена", "cancel"),
		),
	)
}

func coordinatorKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Сам(а)", "np:coord:self"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("👷 Прораб", "np:coord:foreman"),
			tgbotapi.NewInlineKeyboardButtonData("🎨 Дизайнер", "np:coord:designer"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ Отмена", "cancel"),
		),
	)
}

// customItemsKeyboard is a multi-select: chosen items get a check mark
// and stay toggleable until "Готово".
func customItemsKeyboard(selected map[string]bool) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, key := range core.CustomItemKeys {
		label := core.CustomItemLabels[key]
		if selected[key] {
			label = "✅ " + label
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, "np:item:"+key),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("➡️ Готово", "np:items_done"),
		tgbotapi.NewInlineKeyboardButtonData("❌ Отмена", "cancel"),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func confirmProjectKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Создать", "np:confirm"),
			tgbotapi.NewInlineKeyboardButtonData("✏️ Заново", "np:edit"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ Отмена", "cancel"),
		),
	)
}

func expenseTypeKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔨 Работа", "exp:type:work"),
			tgbotapi.NewInlineKeyboardButtonData("🧱 Материалы", "exp:type:material"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔨+🧱 Работа и материалы", "exp:type:both"),
			tgbotapi.NewInlineKeyboardButtonData("💵 Предоплата", "exp:type:prepayment"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ Отмена", "cancel"),
		),
	)
}

func categoryKeyboard() tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, key := range core.CategoryKeys {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(core.CategoryLabel(key), "exp:cat:"+key))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("❌ Отмена", "cancel"),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func roleKeyboard() tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, role := range core.AssignableRoles {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(core.RoleLabels[role], "inv:role:"+string(role)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("❌ Отмена", "cancel"),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func stageListKeyboard(stages []database.Stage) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, s := range stages {
		if s.IsParallel {
			continue
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("%d. %s", s.SortOrder, s.Name),
				fmt.Sprintf("stage:%d", s.ID),
			),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func stageDetailKeyboard(stage *database.Stage) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton

	var statusRow []tgbotapi.InlineKeyboardButton
	for _, status := range []database.StageStatus{database.StageInProgress, database.StageCompleted, database.StageDelayed} {
		if status == stage.Status {
			continue
		}
		statusRow = append(statusRow, tgbotapi.NewInlineKeyboardButtonData(
			core.StatusLabels[status],
			fmt.Sprintf("st:%d:%s", stage.ID, status),
		))
	}
	rows = append(rows, statusRow)

	if next, ok := core.NextPaymentStatus(stage.PaymentStatus); ok {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				"💳 Оплата → "+core.PaymentLabels[next],
				fmt.Sprintf("pay:%d:%s", stage.ID, next),
			),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("📅 Задать даты", fmt.Sprintf("dates:%d", stage.ID)),
		tgbotapi.NewInlineKeyboardButtonData("👤 Ответственный", fmt.Sprintf("resp:%d", stage.ID)),
	))
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("💰 Бюджет этапа", fmt.Sprintf("sbud:%d", stage.ID)),
		tgbotapi.NewInlineKeyboardButtonData("📋 Подэтапы", fmt.Sprintf("subs:%d", stage.ID)),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
