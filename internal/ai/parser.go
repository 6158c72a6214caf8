package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"renobot/internal/database"
)

// jsonChatter is the slice of Client the parser needs.
type jsonChatter interface {
	ChatJSON(ctx context.Context, system, user string) (string, error)
}

// ParsedSubStage is one checklist item extracted from free text.
type ParsedSubStage struct {
	Name string `json:"name"`
	Days int    `json:"days"`
}

// ParsedStage is the structured plan extracted from a free-text
// description like "кладём плитку две недели, сначала подготовка…".
type ParsedStage struct {
	Name            string           `json:"name"`
	TotalDays       int              `json:"total_days"`
	SubStages       []ParsedSubStage `json:"sub_stages"`
	EstimatedBudget float64          `json:"estimated_budget"`
}

const parseSystemPrompt = `Ты помощник прораба. Из свободного описания работ по ремонту извлеки структуру:
{"name": "название этапа", "total_days": число_дней, "sub_stages": [{"name": "подэтап", "days": число_дней}], "estimated_budget": сумма_или_0}
Отвечай строго одним JSON-объектом. Если длительность подэтапа не указана, ставь 1. Если бюджет не назван, ставь 0.`

// Parser turns free-text work descriptions into stage plans.
type Parser struct {
	chat jsonChatter
}

func NewParser(chat jsonChatter) *Parser {
	return &Parser{chat: chat}
}

// Parse extracts a stage plan from text and validates it.
func (p *Parser) Parse(ctx context.Context, text string) (*ParsedStage, error) {
	raw, err := p.chat.ChatJSON(ctx, parseSystemPrompt, text)
	if err != nil {
		return nil, err
	}

	var parsed ParsedStage
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("parse stage plan: %w", err)
	}

	if err := validateParsed(&parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}

func validateParsed(p *ParsedStage) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return fmt.Errorf("parse stage plan: empty stage name")
	}
	if p.TotalDays < 0 || p.EstimatedBudget < 0 {
		return fmt.Errorf("parse stage plan: negative duration or budget")
	}
	for i := range p.SubStages {
		p.SubStages[i].Name = strings.TrimSpace(p.SubStages[i].Name)
		if p.SubStages[i].Name == "" {
			return fmt.Errorf("parse stage plan: empty sub-stage name")
		}
		if p.SubStages[i].Days <= 0 {
			p.SubStages[i].Days = 1
		}
	}
	if p.TotalDays == 0 {
		for _, s := range p.SubStages {
			p.TotalDays += s.Days
		}
		if p.TotalDays == 0 {
			p.TotalDays = 1
		}
	}
	return nil
}

// LayoutSubStages converts a parsed plan into sub-stage rows laid out
// sequentially from start, each item beginning the day after the
// previous one ends.
func LayoutSubStages(stageID uint, parsed *ParsedStage, start time.Time) []database.SubStage {
	subs := make([]database.SubStage, 0, len(parsed.SubStages))
	cursor := start
	for i, ps := range parsed.SubStages {
		end := cursor.AddDate(0, 0, ps.Days-1)
		s, e := cursor, end
		subs = append(subs, database.SubStage{
			StageID:   stageID,
			Name:      ps.Name,
			SortOrder: i + 1,
			Status:    database.StagePlanned,
			StartDate: &s,
			EndDate:   &e,
		})
		cursor = end.AddDate(0, 0, 1)
	}
	return subs
}

// stripCodeFence removes a markdown ```json fence if the model added
// one despite JSON mode.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
