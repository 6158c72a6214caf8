package ai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"

	"renobot/internal/config"
	"renobot/pkg/logger"
)

// ErrUnavailable is returned when no API key is configured. Callers
// degrade gracefully: messages are still stored, answers are not.
var ErrUnavailable = errors.New("ai not configured")

// Client wraps the OpenAI-compatible API for chat, embeddings, speech
// and vision. All methods honor the configured request timeout.
type Client struct {
	api *openai.Client
	cfg config.OpenAIConfig
}

func NewClient(cfg config.OpenAIConfig) *Client {
	if cfg.APIKey == "" {
		return &Client{cfg: cfg}
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &Client{
		api: openai.NewClientWithConfig(clientConfig),
		cfg: cfg,
	}
}

// Configured reports whether the client can make API calls.
func (c *Client) Configured() bool {
	return c != nil && c.api != nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(c.cfg.TimeoutSeconds)*time.Second)
}

// Chat sends a system+user prompt pair and returns the completion text.
func (c *Client) Chat(ctx context.Context, system, user string) (string, error) {
	if !c.Configured() {
		return "", ErrUnavailable
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.ChatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

// ChatJSON is Chat with JSON response format forced, for structured
// extraction.
func (c *Client) ChatJSON(ctx context.Context, system, user string) (string, error) {
	if !c.Configured() {
		return "", ErrUnavailable
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.ChatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

// Embed returns the embedding vector for a text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if !c.Configured() {
		return nil, ErrUnavailable
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model:      openai.EmbeddingModel(c.cfg.EmbeddingModel),
		Input:      []string{text},
		Dimensions: c.cfg.EmbeddingDims,
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("embeddings: empty response")
	}
	return resp.Data[0].Embedding, nil
}

// Transcribe converts a downloaded voice message to text.
func (c *Client) Transcribe(ctx context.Context, filename string, audio []byte) (string, error) {
	if !c.Configured() {
		return "", ErrUnavailable
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: filename,
		Reader:   bytes.NewReader(audio),
	})
	if err != nil {
		return "", fmt.Errorf("transcription: %w", err)
	}
	return resp.Text, nil
}

// DescribeImage summarizes a renovation photo via the vision model.
// The caption, when present, steers the description.
func (c *Client) DescribeImage(ctx context.Context, imageURL, caption string) (string, error) {
	if !c.Configured() {
		return "", ErrUnavailable
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	prompt := "Опиши, что на фото с ремонта: какие работы видны, их состояние, заметные проблемы. Кратко, по-русски."
	if caption != "" {
		prompt += " Подпись к фото: " + caption
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.ChatModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: prompt},
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: imageURL},
					},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("image description: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("image description: empty response")
	}

	logger.Debug().Int("caption_len", len(caption)).Msg("image described")
	return resp.Choices[0].Message.Content, nil
}
