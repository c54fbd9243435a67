package expander

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
)

// DefaultGeminiURL is Gemini's OpenAI-compatible endpoint.
const DefaultGeminiURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

// DefaultGeminiModel is the model used when none is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiConfig configures the Gemini expander.
type GeminiConfig struct {
	URL        string
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

// Gemini expands topics with a Gemini chat model.
type Gemini struct {
	client openai.Client
	model  string
}

// NewGemini creates a Gemini expander. SDK-level retries are disabled; a
// failed call is reported to the caller as-is.
func NewGemini(cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.URL == "" {
		cfg.URL = DefaultGeminiURL
	}
	if !strings.HasSuffix(cfg.URL, "/") {
		cfg.URL += "/"
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.URL),
		option.WithMaxRetries(0),
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &Gemini{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
	}, nil
}

// Expand asks the model for item names related to topic.
func (g *Gemini) Expand(ctx context.Context, topic, colors string) ([]string, error) {
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userMessage(topic, colors)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("gemini: empty response")
	}
	return ParseItems(resp.Choices[0].Message.Content)
}
