package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"github.com/timmy/slidewise/internal/prompts"
)

// ErrAPIKeyNotSet is returned when a provider is built without credentials.
var ErrAPIKeyNotSet = errors.New("provider API key is not set")

// OpenAISDKService explains slides with the official openai-go client.
type OpenAISDKService struct {
	client    openai.Client
	model     string
	maxTokens int
	timeout   time.Duration
}

// NewOpenAISDKService creates an explainer backed by openai-go.
// Retries of 429 and 5xx responses are delegated to the SDK.
func NewOpenAISDKService(cfg *LLMConfig) (*OpenAISDKService, error) {
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.RetryCount),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")+"/"))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &OpenAISDKService{
		client:    openai.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
		timeout:   timeout,
	}, nil
}

// GetModel returns the model name being used.
func (s *OpenAISDKService) GetModel() string {
	return s.model
}

// Explain asks the model to explain one slide.
func (s *OpenAISDKService) Explain(ctx context.Context, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(s.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(prompts.SlideExplanationSystemPrompt),
			openai.UserMessage(prompts.SlideExplanation(text)),
		},
		MaxTokens: openai.Int(int64(s.maxTokens)),
	}

	completion, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("OpenAI API returned error: HTTP %d: %w", apiErr.StatusCode, err)
		}
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}

	if len(completion.Choices) == 0 {
		return "", errors.New("no completion choices returned")
	}

	return strings.TrimSpace(completion.Choices[0].Message.Content), nil
}

// NewExplainer builds the provider selected by client ("resty" or "sdk").
func NewExplainer(client string, cfg *LLMConfig) (Explainer, error) {
	switch client {
	case "", "resty":
		if cfg.APIKey == "" {
			return nil, ErrAPIKeyNotSet
		}
		return NewLLMService(cfg), nil
	case "sdk":
		return NewOpenAISDKService(cfg)
	default:
		return nil, fmt.Errorf("unknown provider client %q", client)
	}
}

var (
	_ Explainer = (*LLMService)(nil)
	_ Explainer = (*OpenAISDKService)(nil)
)
