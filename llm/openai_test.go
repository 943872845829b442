package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordedLLMRequest struct {
	provider         string
	model            string
	status           string
	promptTokens     int
	completionTokens int
}

type fakeLLMRecorder struct {
	requests []recordedLLMRequest
}

func (f *fakeLLMRecorder) RecordLLMRequest(provider, model, status string, _ time.Duration, promptTokens, completionTokens int) {
	f.requests = append(f.requests, recordedLLMRequest{
		provider:         provider,
		model:            model,
		status:           status,
		promptTokens:     promptTokens,
		completionTokens: completionTokens,
	})
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultOpenAIConfig()
	cfg.BaseURL = srv.URL
	cfg.APIKey = "test-key"
	return NewOpenAIClient(cfg, zap.NewNop())
}

func TestCompletionRecordsUsage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "cmpl-1",
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "hello"}}],
			"usage": {"prompt_tokens": 120, "completion_tokens": 45, "total_tokens": 165}
		}`))
	})
	recorder := &fakeLLMRecorder{}
	client.SetMetrics(recorder)

	resp, err := client.Completion(context.Background(), &ChatRequest{
		Messages: []Message{NewUserMessage("hi")},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)

	require.Len(t, recorder.requests, 1)
	assert.Equal(t, recordedLLMRequest{
		provider:         "openai",
		model:            "gpt-4o-mini",
		status:           "ok",
		promptTokens:     120,
		completionTokens: 45,
	}, recorder.requests[0])
}

func TestCompletionRecordsUpstreamFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "rate limited"}}`, http.StatusTooManyRequests)
	})
	recorder := &fakeLLMRecorder{}
	client.SetMetrics(recorder)

	_, err := client.Completion(context.Background(), &ChatRequest{
		Messages: []Message{NewUserMessage("hi")},
	})
	require.Error(t, err)

	require.Len(t, recorder.requests, 1)
	assert.Equal(t, "error", recorder.requests[0].status)
	assert.Zero(t, recorder.requests[0].promptTokens)
}

func TestStreamRecordsRequest(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(
			"data: {\"choices\": [{\"delta\": {\"content\": \"hi\"}}]}\n\n" +
				"data: [DONE]\n\n"))
	})
	recorder := &fakeLLMRecorder{}
	client.SetMetrics(recorder)

	ch, err := client.Stream(context.Background(), &ChatRequest{
		Messages: []Message{NewUserMessage("hi")},
	})
	require.NoError(t, err)
	for range ch {
	}

	require.Len(t, recorder.requests, 1)
	assert.Equal(t, "ok", recorder.requests[0].status)
}
