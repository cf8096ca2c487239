package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/slidewise/internal/prompts"
)

const completionBody = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-3.5-turbo",
  "choices": [
    {"index": 0, "message": {"role": "assistant", "content": "  A slide about vectors.  "}, "finish_reason": "stop"}
  ]
}`

// chatServer records the decoded request and replies with status and body.
func chatServer(t *testing.T, status int, body string, got *chatRequest, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if got != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(got))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLLMServiceExplain(t *testing.T) {
	var req chatRequest
	srv := chatServer(t, http.StatusOK, completionBody, &req, nil)

	svc := NewLLMService(&LLMConfig{APIKey: "test-key", BaseURL: srv.URL + "/", Model: "gpt-4o-mini", MaxTokens: 50})
	out, err := svc.Explain(context.Background(), "Vectors and scalars")
	require.NoError(t, err)
	assert.Equal(t, "A slide about vectors.", out)

	assert.Equal(t, "gpt-4o-mini", req.Model)
	assert.Equal(t, 50, req.MaxTokens)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, prompts.SlideExplanation("Vectors and scalars"), req.Messages[1].Content)
}

func TestLLMServiceDefaults(t *testing.T) {
	svc := NewLLMService(&LLMConfig{APIKey: "k"})
	assert.Equal(t, DefaultModel, svc.GetModel())
	assert.Equal(t, DefaultMaxTokens, svc.maxTokens)
	assert.Equal(t, DefaultBaseURL+"/chat/completions", svc.endpoint)
}

func TestLLMServiceErrors(t *testing.T) {
	testCases := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"api error body", http.StatusUnauthorized, `{"error":{"message":"bad key","type":"auth"}}`, "HTTP 401: bad key"},
		{"plain body", http.StatusBadRequest, `nope`, "HTTP 400: nope"},
		{"no choices", http.StatusOK, `{"choices":[]}`, "no choices"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := chatServer(t, tc.status, tc.body, nil, nil)
			svc := NewLLMService(&LLMConfig{APIKey: "test-key", BaseURL: srv.URL})
			_, err := svc.Explain(context.Background(), "x")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLLMServiceRetriesServerErrors(t *testing.T) {
	var hits int32
	srv := chatServer(t, http.StatusServiceUnavailable, `{"error":{"message":"overloaded"}}`, nil, &hits)

	svc := NewLLMService(&LLMConfig{APIKey: "test-key", BaseURL: srv.URL, RetryCount: 2})
	svc.client.SetRetryWaitTime(time.Millisecond).SetRetryMaxWaitTime(5 * time.Millisecond)

	_, err := svc.Explain(context.Background(), "x")
	require.Error(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt32(&hits))
}

func TestLLMServiceDoesNotRetryClientErrors(t *testing.T) {
	var hits int32
	srv := chatServer(t, http.StatusBadRequest, `{"error":{"message":"bad"}}`, nil, &hits)

	svc := NewLLMService(&LLMConfig{APIKey: "test-key", BaseURL: srv.URL, RetryCount: 2})
	_, err := svc.Explain(context.Background(), "x")
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestOpenAISDKServiceExplain(t *testing.T) {
	var req chatRequest
	srv := chatServer(t, http.StatusOK, completionBody, &req, nil)

	svc, err := NewOpenAISDKService(&LLMConfig{APIKey: "test-key", BaseURL: srv.URL, MaxTokens: 80})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, svc.GetModel())

	out, err := svc.Explain(context.Background(), "Vectors and scalars")
	require.NoError(t, err)
	assert.Equal(t, "A slide about vectors.", out)
	assert.Equal(t, DefaultModel, req.Model)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "user", req.Messages[1].Role)
}

func TestOpenAISDKServiceAPIError(t *testing.T) {
	srv := chatServer(t, http.StatusUnauthorized, `{"error":{"message":"bad key","type":"auth"}}`, nil, nil)

	svc, err := NewOpenAISDKService(&LLMConfig{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = svc.Explain(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 401")
}

func TestNewExplainer(t *testing.T) {
	cfg := &LLMConfig{APIKey: "k"}

	e, err := NewExplainer("", cfg)
	require.NoError(t, err)
	assert.IsType(t, &LLMService{}, e)

	e, err = NewExplainer("sdk", cfg)
	require.NoError(t, err)
	assert.IsType(t, &OpenAISDKService{}, e)

	_, err = NewExplainer("grpc", cfg)
	assert.Error(t, err)

	_, err = NewExplainer("resty", &LLMConfig{})
	assert.ErrorIs(t, err, ErrAPIKeyNotSet)
	_, err = NewExplainer("sdk", &LLMConfig{})
	assert.ErrorIs(t, err, ErrAPIKeyNotSet)
}
