package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/slidewise/internal/prompts"
)

// Explainer turns the text of one slide into an explanation.
type Explainer interface {
	Explain(ctx context.Context, text string) (string, error)
}

// Default provider settings.
const (
	DefaultModel     = "gpt-3.5-turbo"
	DefaultMaxTokens = 200
	DefaultBaseURL   = "https://api.openai.com/v1"
)

// LLMService explains slides through an OpenAI-compatible chat completions endpoint.
type LLMService struct {
	client    *resty.Client
	model     string
	maxTokens int
	endpoint  string
}

// LLMConfig holds configuration for LLM service.
type LLMConfig struct {
	Model      string
	APIKey     string
	BaseURL    string
	MaxTokens  int
	Timeout    time.Duration
	RetryCount int
}

// NewLLMService creates a new LLM service.
// Parameters:
//   - cfg: model, credentials, endpoint and retry settings.
//
// Returns:
//   - *LLMService: initialized chat completions client wrapper.
func NewLLMService(cfg *LLMConfig) *LLMService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(timeout)

	// Rate limits and upstream hiccups are retried; client errors are not.
	client.SetRetryCount(cfg.RetryCount)
	client.SetRetryWaitTime(500 * time.Millisecond)
	client.SetRetryMaxWaitTime(5 * time.Second)
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		if err != nil {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}
		return r.StatusCode() == 429 || r.StatusCode() >= 500
	})

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	return &LLMService{
		client:    client,
		model:     model,
		maxTokens: maxTokens,
		endpoint:  baseURL + "/chat/completions",
	}
}

// GetModel returns the model name being used.
func (s *LLMService) GetModel() string {
	return s.model
}

// OpenAI-compatible Chat Completion API request/response structures
type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Explain asks the model to explain one slide.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - text: slide text extracted by the document source.
//
// Returns:
//   - string: the explanation.
//   - error: non-nil if the API request fails or returns no choices.
func (s *LLMService) Explain(ctx context.Context, text string) (string, error) {
	req := chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "system", Content: prompts.SlideExplanationSystemPrompt},
			{Role: "user", Content: prompts.SlideExplanation(text)},
		},
		MaxTokens: s.maxTokens,
	}

	var resp chatResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		SetError(&resp).
		Post(s.endpoint)

	if err != nil {
		return "", fmt.Errorf("failed to call LLM API: %w", err)
	}

	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		errorMsg := fmt.Sprintf("HTTP %d", httpResp.StatusCode())
		if resp.Error != nil {
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), resp.Error.Message)
		} else if body := strings.TrimSpace(string(httpResp.Body())); body != "" {
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), body)
		}
		return "", fmt.Errorf("LLM API returned error: %s", errorMsg)
	}

	if resp.Error != nil {
		return "", fmt.Errorf("LLM API error: %s", resp.Error.Message)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from LLM API: no choices in response (status: %d)", httpResp.StatusCode())
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
