// Package classify categorizes inbound prospect replies with the OpenAI API.
//
// The classifier is optional: when no API key is configured the reply
// ingestion endpoint requires a caller-provided category instead.
package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/salesloop/salesloop/internal/models"
)

// ErrNoChoicesReturned indicates the API responded without any completion.
var ErrNoChoicesReturned = errors.New("no choices returned")

const systemPrompt = `You are an assistant that classifies replies to sales outreach emails.
Classify the reply into exactly one category:
interested, not_interested, meeting_request, proposal_request, out_of_office, unsubscribe, other.
Respond with JSON only, in the form:
{"category": "...", "confidence": 0.0, "reasoning": "..."}
where confidence is between 0 and 1.`

// chatService defines the minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

type openaiChatService struct {
	client openai.Client
}

func (s *openaiChatService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// Opts holds classifier configuration.
type Opts struct {
	APIKey string
	Model  openai.ChatModel
}

// Option defines a configuration option for the classifier.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the completion model.
func WithModel(model openai.ChatModel) Option {
	return func(o *Opts) { o.Model = model }
}

// Classifier categorizes reply text.
type Classifier struct {
	chat  chatService
	model openai.ChatModel
}

// NewClassifier creates a classifier, falling back to the OPENAI_API_KEY
// environment variable when no key option is given.
func NewClassifier(opts ...Option) (*Classifier, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key not set")
	}
	if cfg.Model == "" {
		cfg.Model = openai.ChatModelGPT4oMini
	}
	client := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	return &Classifier{chat: &openaiChatService{client: client}, model: cfg.Model}, nil
}

// Result is a classified reply.
type Result struct {
	Category   models.ReplyCategory
	Confidence float64
	Reasoning  string
}

type completionPayload struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// ClassifyReply categorizes one reply body. A completion the model did not
// format as expected degrades to ReplyOther rather than failing the ingest.
func (c *Classifier) ClassifyReply(ctx context.Context, body string) (*Result, error) {
	resp, err := c.chat.Create(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(body),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("classification request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrNoChoicesReturned
	}
	content := resp.Choices[0].Message.Content

	var payload completionPayload
	if err := json.Unmarshal([]byte(extractJSON(content)), &payload); err != nil {
		slog.Warn("Classifier.ClassifyReply: unparseable completion, using other", "content", content)
		return &Result{Category: models.ReplyOther, Reasoning: content}, nil
	}
	category := models.ReplyCategory(payload.Category)
	if !models.IsValidReplyCategory(category) {
		slog.Warn("Classifier.ClassifyReply: unknown category, using other", "category", payload.Category)
		category = models.ReplyOther
	}
	if payload.Confidence < 0 {
		payload.Confidence = 0
	}
	if payload.Confidence > 1 {
		payload.Confidence = 1
	}
	return &Result{Category: category, Confidence: payload.Confidence, Reasoning: payload.Reasoning}, nil
}

// extractJSON trims code fences and surrounding prose around a JSON object.
func extractJSON(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		return content[start : end+1]
	}
	return content
}
