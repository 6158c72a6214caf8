package ai

import (
	"context"
	"strings"
	"testing"

	"renobot/internal/database"
)

type recordingChat struct {
	lastUser string
	answer   string
}

func (r *recordingChat) Chat(_ context.Context, _, user string) (string, error) {
	r.lastUser = user
	return r.answer, nil
}

func TestAssistant_BuildProjectContext(t *testing.T) {
	db := testDB(t)
	project := database.Project{Name: "Квартира на Абая", Address: "ул. Абая 10", AreaSqm: 52.5, TotalBudget: 1000000, IsActive: true}
	db.Create(&project)
	db.Create(&database.Stage{ProjectID: project.ID, Name: "Демонтаж", SortOrder: 1, Status: database.StageCompleted, PaymentStatus: database.PaymentClosed})
	db.Create(&database.Stage{ProjectID: project.ID, Name: "Электрика", SortOrder: 2, Status: database.StageInProgress, PaymentStatus: database.PaymentRecorded})
	db.Create(&database.BudgetItem{ProjectID: project.ID, Category: "walls", WorkCost: 45000})

	assistant := NewAssistant(db, &recordingChat{}, NewEmbeddingService(db, &fakeEmbedder{}), nil)
	snapshot, err := assistant.BuildProjectContext(project.ID)
	if err != nil {
		t.Fatalf("BuildProjectContext: %v", err)
	}

	for _, want := range []string{
		"Квартира на Абая",
		"ул. Абая 10",
		"Демонтаж",
		"Электрика",
		"in_progress",
		"остаток: 955000",
	} {
		if !strings.Contains(snapshot, want) {
			t.Errorf("snapshot missing %q:\n%s", want, snapshot)
		}
	}
}

func TestAssistant_AskIncludesSimilarMessages(t *testing.T) {
	db := testDB(t)
	project := database.Project{Name: "Test", TotalBudget: 500000, IsActive: true}
	db.Create(&project)

	embeddings := NewEmbeddingService(db, &fakeEmbedder{})
	msg := database.Message{ProjectID: project.ID, UserID: 1, ChatID: 1, Type: database.MessageText, RawText: "плитку привезут в четверг"}
	db.Create(&msg)
	if err := embeddings.EmbedMessage(context.Background(), &msg); err != nil {
		t.Fatal(err)
	}

	chat := &recordingChat{answer: "Плитку привезут в четверг."}
	assistant := NewAssistant(db, chat, embeddings, nil)

	answer, err := assistant.Ask(context.Background(), project.ID, "когда привезут плитку?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if answer != "Плитку привезут в четверг." {
		t.Errorf("answer = %q", answer)
	}
	if !strings.Contains(chat.lastUser, "плитку привезут в четверг") {
		t.Errorf("prompt missing the similar message:\n%s", chat.lastUser)
	}
	if !strings.Contains(chat.lastUser, "когда привезут плитку?") {
		t.Errorf("prompt missing the question:\n%s", chat.lastUser)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("короткий текст", 100); got != "короткий текст" {
		t.Errorf("truncate short = %q", got)
	}
	long := strings.Repeat("д", 400)
	got := truncate(long, 300)
	if len([]rune(got)) != 301 || !strings.HasSuffix(got, "…") {
		t.Errorf("truncate long: %d runes", len([]rune(got)))
	}
}
