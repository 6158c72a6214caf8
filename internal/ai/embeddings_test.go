package ai

import (
	"context"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	glogger "gorm.io/gorm/logger"

	"renobot/internal/database"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: glogger.Default.LogMode(glogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// fakeEmbedder maps keywords to fixed unit vectors so similarity is
// deterministic.
type fakeEmbedder struct {
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls++
	switch {
	case strings.Contains(text, "плитк"):
		return []float32{1, 0, 0}, nil
	case strings.Contains(text, "бюджет"):
		return []float32{0, 1, 0}, nil
	default:
		return []float32{0, 0, 1}, nil
	}
}

func seedMessage(t *testing.T, db *gorm.DB, projectID uint, text string) database.Message {
	t.Helper()
	msg := database.Message{ProjectID: projectID, UserID: 1, ChatID: 1, Type: database.MessageText, RawText: text}
	if err := db.Create(&msg).Error; err != nil {
		t.Fatal(err)
	}
	return msg
}

func TestEmbeddingService_Backfill(t *testing.T) {
	db := testDB(t)
	embedder := &fakeEmbedder{}
	svc := NewEmbeddingService(db, embedder)

	seedMessage(t, db, 1, "купили плитку")
	seedMessage(t, db, 1, "обсудили бюджет")
	seedMessage(t, db, 1, "")
	seedMessage(t, db, 2, "другой проект")

	n, err := svc.Backfill(context.Background(), 1)
	if err != nil {
		t.Fatalf("Backfill: %v", err)
	}
	if n != 2 {
		t.Errorf("embedded = %d, expected 2 (empty text and other project skipped)", n)
	}

	// Rerun embeds nothing new
	embedder.calls = 0
	n, err = svc.Backfill(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 || embedder.calls != 0 {
		t.Errorf("rerun embedded %d with %d API calls, expected 0/0", n, embedder.calls)
	}
}

func TestEmbeddingService_SearchSimilar(t *testing.T) {
	db := testDB(t)
	svc := NewEmbeddingService(db, &fakeEmbedder{})

	tile := seedMessage(t, db, 1, "выбрали плитку для ванной")
	seedMessage(t, db, 1, "согласовали бюджет на месяц")
	seedMessage(t, db, 1, "просто болтали")
	if _, err := svc.Backfill(context.Background(), 1); err != nil {
		t.Fatal(err)
	}

	results, err := svc.SearchSimilar(context.Background(), 1, "какая плитка", 2)
	if err != nil {
		t.Fatalf("SearchSimilar: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, expected topK=2", len(results))
	}
	if results[0].Message.ID != tile.ID {
		t.Errorf("best match = %q, expected tile message", results[0].Message.RawText)
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("scores not descending: %v, %v", results[0].Score, results[1].Score)
	}
}

func TestEmbeddingService_VoiceUsesTranscription(t *testing.T) {
	db := testDB(t)
	svc := NewEmbeddingService(db, &fakeEmbedder{})

	msg := database.Message{
		ProjectID:       1,
		UserID:          1,
		ChatID:          1,
		Type:            database.MessageVoice,
		FileRef:         "voice-file-id",
		TranscribedText: "привезли плитку",
	}
	if err := db.Create(&msg).Error; err != nil {
		t.Fatal(err)
	}
	if err := svc.EmbedMessage(context.Background(), &msg); err != nil {
		t.Fatalf("EmbedMessage: %v", err)
	}

	results, err := svc.SearchSimilar(context.Background(), 1, "плитка", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Message.ID != msg.ID {
		t.Errorf("voice message not found via its transcription")
	}
}

func TestEmbeddingService_PendingTranscriptions(t *testing.T) {
	db := testDB(t)
	svc := NewEmbeddingService(db, &fakeEmbedder{})

	// Voice whose transcription failed at ingest: the file ref is there,
	// the text is not
	failed := database.Message{
		ProjectID: 1, UserID: 1, ChatID: 1,
		Type: database.MessageVoice, FileRef: "voice-1",
	}
	db.Create(&failed)
	// Already transcribed voice and plain text are not pending
	db.Create(&database.Message{
		ProjectID: 1, UserID: 1, ChatID: 1,
		Type: database.MessageVoice, FileRef: "voice-2", TranscribedText: "смета по плитке",
	})
	db.Create(&database.Message{
		ProjectID: 1, UserID: 1, ChatID: 1,
		Type: database.MessageText, RawText: "привет",
	})
	// Other projects stay untouched
	db.Create(&database.Message{
		ProjectID: 2, UserID: 1, ChatID: 2,
		Type: database.MessagePhoto, FileRef: "photo-1",
	})

	pending, err := svc.PendingTranscriptions(1)
	if err != nil {
		t.Fatalf("PendingTranscriptions: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != failed.ID {
		t.Fatalf("pending = %+v, expected only the untranscribed voice", pending)
	}

	// Once the transcription lands the row drops out
	db.Model(&failed).Update("transcribed_text", "плитку привезли")
	pending, _ = svc.PendingTranscriptions(1)
	if len(pending) != 0 {
		t.Errorf("transcribed message still pending")
	}
}

func TestCosineSimilarity(t *testing.T) {
	if s, ok := cosineSimilarity([]float32{1, 0}, []float32{1, 0}); !ok || s < 0.999 {
		t.Errorf("identical vectors: %v, %v", s, ok)
	}
	if s, ok := cosineSimilarity([]float32{1, 0}, []float32{0, 1}); !ok || s > 0.001 {
		t.Errorf("orthogonal vectors: %v, %v", s, ok)
	}
	if _, ok := cosineSimilarity([]float32{1, 0}, []float32{1}); ok {
		t.Error("dimension mismatch should fail")
	}
	if _, ok := cosineSimilarity([]float32{0, 0}, []float32{1, 0}); ok {
		t.Error("zero vector should fail")
	}
}
