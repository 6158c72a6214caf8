package ai

import (
	"context"
	"testing"
	"time"
)

type fakeChat struct {
	response string
	err      error
}

func (f *fakeChat) ChatJSON(_ context.Context, _, _ string) (string, error) {
	return f.response, f.err
}

func TestParser_Parse(t *testing.T) {
	chat := &fakeChat{response: `{
		"name": "Плитка в ванной",
		"total_days": 14,
		"sub_stages": [
			{"name": "Подготовка", "days": 3},
			{"name": "Укладка", "days": 0},
			{"name": "Затирка", "days": 2}
		],
		"estimated_budget": 120000
	}`}
	parser := NewParser(chat)

	parsed, err := parser.Parse(context.Background(), "кладём плитку в ванной, недели две")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.Name != "Плитка в ванной" {
		t.Errorf("name = %q", parsed.Name)
	}
	if parsed.TotalDays != 14 {
		t.Errorf("total days = %d", parsed.TotalDays)
	}
	// Unspecified durations default to one day
	if parsed.SubStages[1].Days != 1 {
		t.Errorf("sub-stage days = %d, expected default 1", parsed.SubStages[1].Days)
	}
	if parsed.EstimatedBudget != 120000 {
		t.Errorf("budget = %v", parsed.EstimatedBudget)
	}
}

func TestParser_ParseCodeFence(t *testing.T) {
	chat := &fakeChat{response: "```json\n{\"name\": \"Демонтаж\", \"total_days\": 5, \"sub_stages\": [], \"estimated_budget\": 0}\n```"}
	parsed, err := NewParser(chat).Parse(context.Background(), "снести старую плитку")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.Name != "Демонтаж" || parsed.TotalDays != 5 {
		t.Errorf("parsed = %+v", parsed)
	}
}

func TestParser_ParseRejectsBadPlans(t *testing.T) {
	cases := map[string]string{
		"empty name":     `{"name": "", "total_days": 5, "sub_stages": [], "estimated_budget": 0}`,
		"negative days":  `{"name": "X", "total_days": -2, "sub_stages": [], "estimated_budget": 0}`,
		"empty substage": `{"name": "X", "total_days": 5, "sub_stages": [{"name": "  ", "days": 1}], "estimated_budget": 0}`,
		"not json":       `это не JSON`,
	}
	for label, response := range cases {
		if _, err := NewParser(&fakeChat{response: response}).Parse(context.Background(), "x"); err == nil {
			t.Errorf("%s: expected error", label)
		}
	}
}

func TestParser_TotalDaysFromSubStages(t *testing.T) {
	chat := &fakeChat{response: `{"name": "X", "total_days": 0, "sub_stages": [{"name": "A", "days": 2}, {"name": "B", "days": 3}], "estimated_budget": 0}`}
	parsed, err := NewParser(chat).Parse(context.Background(), "x")
	if err != nil {
		t.Fatal(err)
	}
	if parsed.TotalDays != 5 {
		t.Errorf("total days = %d, expected sum of sub-stages 5", parsed.TotalDays)
	}
}

func TestLayoutSubStages(t *testing.T) {
	parsed := &ParsedStage{
		Name: "Плитка",
		SubStages: []ParsedSubStage{
			{Name: "Подготовка", Days: 3},
			{Name: "Укладка", Days: 7},
			{Name: "Затирка", Days: 1},
		},
	}
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	subs := LayoutSubStages(42, parsed, start)
	if len(subs) != 3 {
		t.Fatalf("subs = %d", len(subs))
	}

	// Sequential: each begins the day after the previous ends
	wantStarts := []string{"01.03.2026", "04.03.2026", "11.03.2026"}
	wantEnds := []string{"03.03.2026", "10.03.2026", "11.03.2026"}
	for i, sub := range subs {
		if sub.StageID != 42 || sub.SortOrder != i+1 {
			t.Errorf("sub %d: stage=%d order=%d", i, sub.StageID, sub.SortOrder)
		}
		if got := sub.StartDate.Format("02.01.2006"); got != wantStarts[i] {
			t.Errorf("sub %d start = %s, expected %s", i, got, wantStarts[i])
		}
		if got := sub.EndDate.Format("02.01.2006"); got != wantEnds[i] {
			t.Errorf("sub %d end = %s, expected %s", i, got, wantEnds[i])
		}
	}
}
