package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"renobot/internal/database"
	"renobot/pkg/logger"
)

type embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingService stores and searches message vectors. Vectors live
// as JSON arrays on the message rows; similarity is computed in
// process over one project's messages, which stay small enough for
// that to be cheap.
type EmbeddingService struct {
	db     *gorm.DB
	client embedder
}

func NewEmbeddingService(db *gorm.DB, client embedder) *EmbeddingService {
	return &EmbeddingService{db: db, client: client}
}

// EmbedMessage computes and stores the vector for one message. The
// message row is kept even when embedding fails; /backfill picks it
// up later.
func (s *EmbeddingService) EmbedMessage(ctx context.Context, msg *database.Message) error {
	text := embeddableText(msg)
	if text == "" {
		return nil
	}
	vec, err := s.client.Embed(ctx, text)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(vec)
	if err != nil {
		return err
	}
	return s.db.Model(msg).Update("embedding", datatypes.JSON(encoded)).Error
}

// Backfill embeds every message of a project that has none yet.
// Idempotent: already-embedded rows are skipped, so reruns only pick
// up what previous runs missed. Returns how many were embedded.
func (s *EmbeddingService) Backfill(ctx context.Context, projectID uint) (int, error) {
	var messages []database.Message
	err := s.db.Where("project_id = ? AND embedding IS NULL AND is_from_bot = ?", projectID, false).
		Order("id").Find(&messages).Error
	if err != nil {
		return 0, err
	}

	embedded := 0
	for i := range messages {
		if embeddableText(&messages[i]) == "" {
			continue
		}
		if err := s.EmbedMessage(ctx, &messages[i]); err != nil {
			return embedded, fmt.Errorf("backfill message %d: %w", messages[i].ID, err)
		}
		embedded++
	}

	logger.Info().Uint("project_id", projectID).Int("embedded", embedded).Msg("backfill complete")
	return embedded, nil
}

// PendingTranscriptions lists a project's voice and photo messages
// whose transcription never arrived, so /backfill can retry them — the
// file reference is stored at ingest even when the AI is down.
func (s *EmbeddingService) PendingTranscriptions(projectID uint) ([]database.Message, error) {
	var messages []database.Message
	err := s.db.Where(
		"project_id = ? AND file_ref <> '' AND (transcribed_text = '' OR transcribed_text IS NULL)",
		projectID,
	).Order("id").Find(&messages).Error
	return messages, err
}

// ScoredMessage is a message with its similarity to a query.
type ScoredMessage struct {
	Message database.Message
	Score   float64
}

// SearchSimilar returns a project's topK messages most similar to the
// query text, best first.
func (s *EmbeddingService) SearchSimilar(ctx context.Context, projectID uint, query string, topK int) ([]ScoredMessage, error) {
	queryVec, err := s.client.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	var messages []database.Message
	err = s.db.Where("project_id = ? AND embedding IS NOT NULL", projectID).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	scored := make([]ScoredMessage, 0, len(messages))
	for _, msg := range messages {
		var vec []float32
		if err := json.Unmarshal(msg.Embedding, &vec); err != nil {
			logger.Warn().Uint("message_id", msg.ID).Err(err).Msg("bad embedding, skipping")
			continue
		}
		score, ok := cosineSimilarity(queryVec, vec)
		if !ok {
			continue
		}
		scored = append(scored, ScoredMessage{Message: msg, Score: score})
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// embeddableText picks the text worth embedding: the transcription for
// voice and photos, the raw text otherwise.
func embeddableText(msg *database.Message) string {
	if msg.TranscribedText != "" {
		return msg.TranscribedText
	}
	return msg.RawText
}

func cosineSimilarity(a, b []float32) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), true
}
