package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"renobot/internal/cache"
	"renobot/internal/core"
	"renobot/internal/database"
	"renobot/pkg/logger"
)

const (
	answerTTL     = 5 * time.Minute
	similarTopK   = 5
	maxSnippetLen = 300
)

type chatter interface {
	Chat(ctx context.Context, system, user string) (string, error)
}

const askSystemPrompt = `Ты ассистент по ремонту квартиры. Отвечай на вопросы владельца проекта,
опираясь только на данные проекта и сообщения чата ниже. Если данных не хватает, честно скажи об этом.
Отвечай кратко, по-русски.`

// Assistant answers free-form questions about a project: it snapshots
// the project's state, pulls in the chat messages most similar to the
// question, and asks the chat model over that context.
type Assistant struct {
	db         *gorm.DB
	chat       chatter
	embeddings *EmbeddingService
	answers    *cache.Cache
}

func NewAssistant(db *gorm.DB, chat chatter, embeddings *EmbeddingService, answers *cache.Cache) *Assistant {
	return &Assistant{db: db, chat: chat, embeddings: embeddings, answers: answers}
}

// Ask answers a question about a project. Answers are cached briefly;
// the snapshot makes most questions answerable even with an empty
// message history.
func (a *Assistant) Ask(ctx context.Context, projectID uint, question string) (string, error) {
	if answer, err := a.answers.GetAnswer(ctx, projectID, question); err == nil {
		logger.Debug().Uint("project_id", projectID).Msg("answer served from cache")
		return answer, nil
	}

	snapshot, err := a.BuildProjectContext(projectID)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(snapshot)

	similar, err := a.embeddings.SearchSimilar(ctx, projectID, question, similarTopK)
	if err != nil {
		// Degrade to the snapshot alone rather than failing the question.
		logger.Warn().Err(err).Msg("similarity search failed, answering from snapshot only")
	}
	if len(similar) > 0 {
		sb.WriteString("\nПохожие сообщения из чата проекта:\n")
		for _, sm := range similar {
			sb.WriteString("- ")
			sb.WriteString(truncate(embeddableText(&sm.Message), maxSnippetLen))
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\nВопрос: ")
	sb.WriteString(question)

	answer, err := a.chat.Chat(ctx, askSystemPrompt, sb.String())
	if err != nil {
		return "", err
	}

	if err := a.answers.SetAnswer(ctx, projectID, question, answer, answerTTL); err != nil {
		logger.Warn().Err(err).Msg("answer cache write failed")
	}
	return answer, nil
}

// BuildProjectContext renders a compact text snapshot of a project:
// header, stages with statuses and dates, and budget totals.
func (a *Assistant) BuildProjectContext(projectID uint) (string, error) {
	var project database.Project
	if err := a.db.First(&project, projectID).Error; err != nil {
		return "", fmt.Errorf("project snapshot: %w", err)
	}

	var stages []database.Stage
	if err := a.db.Where("project_id = ?", projectID).Order("sort_order").Find(&stages).Error; err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Проект: %s\n", project.Name)
	if project.Address != "" {
		fmt.Fprintf(&sb, "Адрес: %s\n", project.Address)
	}
	if project.AreaSqm > 0 {
		fmt.Fprintf(&sb, "Площадь: %.1f м²\n", project.AreaSqm)
	}
	fmt.Fprintf(&sb, "Бюджет: %.0f\n", project.TotalBudget)

	sb.WriteString("Этапы:\n")
	for _, stage := range stages {
		fmt.Fprintf(&sb, "- %s: %s, оплата %s", stage.Name,
			string(stage.Status), string(stage.PaymentStatus))
		if stage.StartDate != nil || stage.EndDate != nil {
			fmt.Fprintf(&sb, ", %s – %s", core.FormatDate(stage.StartDate), core.FormatDate(stage.EndDate))
		}
		sb.WriteString("\n")
	}

	var spent float64
	a.db.Model(&database.BudgetItem{}).Where("project_id = ?", projectID).
		Select("COALESCE(SUM(work_cost + material_cost), 0)").Scan(&spent)
	fmt.Fprintf(&sb, "Потрачено: %.0f, остаток: %.0f\n", spent, project.TotalBudget-spent)

	return sb.String(), nil
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
