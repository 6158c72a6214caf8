package bot

import (
	"strings"
	"testing"
	"time"

	"renobot/internal/core"
	"renobot/internal/database"
)

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{500, "500"},
		{45000, "45 000"},
		{1500000, "1 500 000"},
		{-100000, "-100 000"},
		{955000.4, "955 000"},
	}
	for _, tt := range tests {
		if got := formatAmount(tt.in); got != tt.want {
			t.Errorf("formatAmount(%v) = %q, expected %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatStageList(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	stages := []database.Stage{
		{Name: "Демонтаж", SortOrder: 1, Status: database.StageCompleted, StartDate: &start},
		{Name: "Электрика", SortOrder: 2, Status: database.StageInProgress},
		{Name: "Кухня → Замер", SortOrder: 100, Status: database.StagePlanned, IsParallel: true},
	}

	out := formatStageList(stages)
	if !strings.Contains(out, "Демонтаж") || !strings.Contains(out, "01.03.2026") {
		t.Errorf("missing main stage data:\n%s", out)
	}
	// Parallel stages render in their own section
	mainPart := out[:strings.Index(out, "Параллельно")]
	if strings.Contains(mainPart, "Кухня") {
		t.Errorf("parallel stage listed among main stages:\n%s", out)
	}
	if !strings.Contains(out, "Кухня → Замер") {
		t.Errorf("parallel stage missing:\n%s", out)
	}
}

func TestFormatStageDetail_Checkpoint(t *testing.T) {
	stage := &database.Stage{
		Name:         "Электрика",
		Status:       database.StageInProgress,
		IsCheckpoint: true,
		SubStages: []database.SubStage{
			{Name: "Разводка", Status: database.StageCompleted},
			{Name: "Щиток", Status: database.StagePlanned},
		},
	}
	out := formatStageDetail(stage)
	if !strings.Contains(out, "Контрольная точка") {
		t.Errorf("checkpoint note missing:\n%s", out)
	}
	if !strings.Contains(out, "✅ Разводка") || !strings.Contains(out, "◻️ Щиток") {
		t.Errorf("checklist marks wrong:\n%s", out)
	}
}

func TestFormatBudgetWarnings(t *testing.T) {
	summary := &core.BudgetSummary{
		TotalBudget: 1000000,
		TotalSpent:  950000,
		Remaining:   50000,
		UsagePct:    95,
	}
	out := formatBudget(summary)
	if !strings.Contains(out, "90%") {
		t.Errorf("near-limit warning missing:\n%s", out)
	}

	summary.TotalSpent = 1100000
	summary.Remaining = -100000
	summary.UsagePct = 110
	out = formatBudget(summary)
	if !strings.Contains(out, "превышен") {
		t.Errorf("overspend warning missing:\n%s", out)
	}
}

func TestFormatProjectCardEscapesHTML(t *testing.T) {
	p := &database.Project{Name: "Квартира <на Абая>", RenovationType: database.RenovationStandard}
	out := formatProjectCard(p)
	if strings.Contains(out, "<на") {
		t.Errorf("unescaped HTML in output:\n%s", out)
	}
	if !strings.Contains(out, "&lt;на Абая&gt;") {
		t.Errorf("escaped name missing:\n%s", out)
	}
}

func TestCustomItemsKeyboardMarksSelection(t *testing.T) {
	kb := customItemsKeyboard(map[string]bool{"kitchen": true})
	found := false
	for _, row := range kb.InlineKeyboard {
		for _, btn := range row {
			if btn.CallbackData != nil && *btn.CallbackData == "np:item:kitchen" {
				found = true
				if !strings.HasPrefix(btn.Text, "✅") {
					t.Errorf("selected item not marked: %q", btn.Text)
				}
			}
		}
	}
	if !found {
		t.Fatal("kitchen button missing")
	}
}

func TestStageDetailKeyboard_PaymentButton(t *testing.T) {
	stage := &database.Stage{ID: 7, Status: database.StageInProgress, PaymentStatus: database.PaymentVerified}
	kb := stageDetailKeyboard(stage)

	var payData string
	for _, row := range kb.InlineKeyboard {
		for _, btn := range row {
			if btn.CallbackData != nil && strings.HasPrefix(*btn.CallbackData, "pay:") {
				payData = *btn.CallbackData
			}
		}
	}
	if payData != "pay:7:paid" {
		t.Errorf("payment callback = %q, expected the single next step pay:7:paid", payData)
	}

	// Terminal payment state offers no button
	stage.PaymentStatus = database.PaymentClosed
	kb = stageDetailKeyboard(stage)
	for _, row := range kb.InlineKeyboard {
		for _, btn := range row {
			if btn.CallbackData != nil && strings.HasPrefix(*btn.CallbackData, "pay:") {
				t.Error("closed payment still offers a transition")
			}
		}
	}
}
