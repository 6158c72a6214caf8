package bot

import (
	"fmt"
	"html"
	"strings"

	"renobot/internal/core"
	"renobot/internal/database"
)

const helpText = `🏠 <b>Ремонт-ассистент</b>

<b>Проекты</b>
/newproject — создать проект ремонта
/projects — список проектов
/link — привязать группу к проекту
/launch — запустить ремонт

<b>Этапы</b>
/stages — этапы и статусы
/nextstage — текущий и следующий этап
/mystage — этапы, закреплённые за вами
/status — краткий статус
/deadline — ближайшие дедлайны

<b>Бюджет</b>
/budget — сводка бюджета
/expenses — добавить расход

<b>Команда</b>
/team — участники проекта
/invite — пригласить участника
/myrole — моя роль

<b>Ассистент</b>
/ask — вопрос по проекту
/parse — разобрать описание работ в план
/report — полный отчёт

/cancel — прервать текущее действие

Можно писать и просто текстом: «бюджет», «статус», «этапы».`

func esc(s string) string {
	return html.EscapeString(s)
}

func formatAmount(v float64) string {
	// Thousands separated by thin spaces, kopecks dropped
	s := fmt.Sprintf("%.0f", v)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	out := strings.Join(parts, " ")
	if neg {
		out = "-" + out
	}
	return out
}

var renovationLabels = map[database.RenovationType]string{
	database.RenovationCosmetic: "Косметический",
	database.RenovationStandard: "Стандартный",
	database.RenovationMajor:    "Капитальный",
	database.RenovationDesigner: "Дизайнерский",
}

func formatProjectCard(p *database.Project) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🏠 <b>%s</b>\n", esc(p.Name))
	if p.Address != "" {
		fmt.Fprintf(&sb, "📍 %s\n", esc(p.Address))
	}
	if p.AreaSqm > 0 {
		fmt.Fprintf(&sb, "📐 %.1f м²\n", p.AreaSqm)
	}
	fmt.Fprintf(&sb, "🔧 %s ремонт\n", renovationLabels[p.RenovationType])
	fmt.Fprintf(&sb, "💰 Бюджет: %s\n", formatAmount(p.TotalBudget))
	if p.IsLaunched {
		sb.WriteString("🚀 Ремонт запущен\n")
	} else {
		sb.WriteString("📋 Ремонт ещё не запущен — /launch\n")
	}
	return sb.String()
}

func formatStageList(stages []database.Stage) string {
	var sb strings.Builder
	sb.WriteString("📋 <b>Этапы ремонта</b>\n\n")
	for _, s := range stages {
		if s.IsParallel {
			continue
		}
		fmt.Fprintf(&sb, "%d. %s — %s\n", s.SortOrder, esc(s.Name), core.StatusLabels[s.Status])
		if s.StartDate != nil || s.EndDate != nil {
			fmt.Fprintf(&sb, "   📅 %s – %s\n", core.FormatDate(s.StartDate), core.FormatDate(s.EndDate))
		}
	}

	var parallel []database.Stage
	for _, s := range stages {
		if s.IsParallel {
			parallel = append(parallel, s)
		}
	}
	if len(parallel) > 0 {
		sb.WriteString("\n🪑 <b>Параллельно (мебель и двери)</b>\n")
		for _, s := range parallel {
			fmt.Fprintf(&sb, "• %s — %s\n", esc(s.Name), core.StatusLabels[s.Status])
		}
	}
	return sb.String()
}

func formatStageDetail(stage *database.Stage) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🔹 <b>%s</b>\n\n", esc(stage.Name))
	fmt.Fprintf(&sb, "Статус: %s\n", core.StatusLabels[stage.Status])
	fmt.Fprintf(&sb, "Оплата: %s\n", core.PaymentLabels[stage.PaymentStatus])
	fmt.Fprintf(&sb, "Сроки: %s – %s\n", core.FormatDate(stage.StartDate), core.FormatDate(stage.EndDate))
	if stage.Budget > 0 {
		fmt.Fprintf(&sb, "Бюджет этапа: %s\n", formatAmount(stage.Budget))
	}
	if stage.ResponsibleContact != "" {
		fmt.Fprintf(&sb, "Ответственный: %s\n", esc(stage.ResponsibleContact))
	}
	if stage.IsCheckpoint {
		sb.WriteString("🔍 Контрольная точка: рекомендуется приёмка работ\n")
	}
	if len(stage.SubStages) > 0 {
		sb.WriteString("\nЧек-лист:\n")
		for _, sub := range stage.SubStages {
			mark := "◻️"
			if sub.Status == database.StageCompleted {
				mark = "✅"
			}
			fmt.Fprintf(&sb, "%s %s\n", mark, esc(sub.Name))
		}
	}
	return sb.String()
}

func formatBudget(summary *core.BudgetSummary) string {
	var sb strings.Builder
	sb.WriteString("💰 <b>Бюджет</b>\n\n")
	fmt.Fprintf(&sb, "Всего: %s\n", formatAmount(summary.TotalBudget))
	fmt.Fprintf(&sb, "Потрачено: %s (работы %s + материалы %s)\n",
		formatAmount(summary.TotalSpent), formatAmount(summary.TotalWork), formatAmount(summary.TotalMater))
	if summary.TotalPrepaid > 0 {
		fmt.Fprintf(&sb, "Предоплаты: %s\n", formatAmount(summary.TotalPrepaid))
	}
	fmt.Fprintf(&sb, "Остаток: %s\n", formatAmount(summary.Remaining))
	if summary.TotalBudget > 0 {
		fmt.Fprintf(&sb, "Использовано: %.0f%%\n", summary.UsagePct)
	}
	if summary.Overspent() {
		sb.WriteString("\n🚨 Бюджет превышен!\n")
	} else if summary.NearLimit() {
		sb.WriteString("\n⚠️ Использовано больше 90% бюджета.\n")
	}

	if len(summary.Categories) > 0 {
		sb.WriteString("\nПо категориям:\n")
		for _, c := range summary.Categories {
			fmt.Fprintf(&sb, "%s: %s\n", core.CategoryLabel(c.Category), formatAmount(c.Total))
		}
	}
	return sb.String()
}

func formatReport(report *core.Report) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 <b>Отчёт по проекту «%s»</b>\n\n", esc(report.Project.Name))
	fmt.Fprintf(&sb, "Прогресс: %.0f%% (%d из %d этапов завершено)\n",
		report.ProgressPct, report.Counts.Completed, report.Counts.Total)

	if len(report.Current) > 0 {
		sb.WriteString("\n🔨 В работе:\n")
		for _, s := range report.Current {
			fmt.Fprintf(&sb, "• %s (до %s)\n", esc(s.Name), core.FormatDate(s.EndDate))
		}
	}
	if len(report.Overdue) > 0 {
		sb.WriteString("\n🔴 Просрочено:\n")
		for _, o := range report.Overdue {
			fmt.Fprintf(&sb, "• %s — на %d дн.\n", esc(o.Stage.Name), o.DaysOverdue)
		}
	}
	if len(report.Upcoming) > 0 {
		sb.WriteString("\n📅 Скоро начнутся:\n")
		for _, u := range report.Upcoming {
			fmt.Fprintf(&sb, "• %s — через %d дн.\n", esc(u.Stage.Name), u.DaysUntil)
		}
	}
	if len(report.PaymentRisks) > 0 {
		sb.WriteString("\n💸 Зависшие оплаты:\n")
		for _, r := range report.PaymentRisks {
			fmt.Fprintf(&sb, "• %s — %s уже %d дн.\n",
				esc(r.Stage.Name), core.PaymentLabels[r.Stage.PaymentStatus], r.DaysOpen)
		}
	}

	if report.Budget != nil {
		fmt.Fprintf(&sb, "\n💰 Бюджет: потрачено %s из %s, остаток %s\n",
			formatAmount(report.Budget.TotalSpent),
			formatAmount(report.Budget.TotalBudget),
			formatAmount(report.Budget.Remaining))
	}
	return sb.String()
}

func formatTeam(team []core.TeamMember) string {
	var sb strings.Builder
	sb.WriteString("👥 <b>Команда проекта</b>\n\n")
	for _, m := range team {
		name := m.User.FullName
		if name == "" {
			name = "@" + m.User.Username
		}
		fmt.Fprintf(&sb, "%s — %s", core.RoleLabels[m.Role], esc(name))
		if m.User.Username != "" && m.User.FullName != "" {
			fmt.Fprintf(&sb, " (@%s)", esc(m.User.Username))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
