package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/paperflow/agent"
)

type fakeAgent struct {
	resp      *agent.Response
	err       error
	events    []agent.Event
	lastQuery string
	lastSess  string
}

func (f *fakeAgent) Ask(_ context.Context, query, sessionID string) (*agent.Response, error) {
	f.lastQuery = query
	f.lastSess = sessionID
	return f.resp, f.err
}

func (f *fakeAgent) AskStream(_ context.Context, query, sessionID string, emit agent.Emitter) error {
	f.lastQuery = query
	f.lastSess = sessionID
	for _, event := range f.events {
		emit(event)
	}
	emit(agent.Event{Type: agent.EventDone})
	return f.err
}

func postJSON(t *testing.T, handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ask", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestHandleAsk_Success(t *testing.T) {
	fake := &fakeAgent{resp: &agent.Response{
		Answer:     "RRF merges rankings.",
		SessionID:  "s1",
		TurnNumber: 0,
		Provider:   "openai",
	}}
	h := NewAskHandler(fake, zap.NewNop())

	rec := postJSON(t, h.HandleAsk, `{"query": "what is RRF?", "session_id": "s1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.True(t, envelope.Success)
	assert.Equal(t, "what is RRF?", fake.lastQuery)
	assert.Equal(t, "s1", fake.lastSess)

	data := envelope.Data.(map[string]any)
	assert.Equal(t, "RRF merges rankings.", data["answer"])
}

func TestHandleAsk_GeneratesSessionID(t *testing.T) {
	fake := &fakeAgent{resp: &agent.Response{Answer: "ok"}}
	h := NewAskHandler(fake, zap.NewNop())

	rec := postJSON(t, h.HandleAsk, `{"query": "what is RRF?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, fake.lastSess)
}

func TestHandleAsk_Validation(t *testing.T) {
	h := NewAskHandler(&fakeAgent{}, zap.NewNop())

	cases := []struct {
		name   string
		body   string
		status int
	}{
		{"empty query", `{"query": "  "}`, http.StatusBadRequest},
		{"malformed json", `{"query": `, http.StatusBadRequest},
		{"unknown field", `{"query": "q", "bogus": 1}`, http.StatusBadRequest},
		{"oversized query", `{"query": "` + strings.Repeat("a", 4001) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postJSON(t, h.HandleAsk, tc.body)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestHandleAsk_AgentError(t *testing.T) {
	h := NewAskHandler(&fakeAgent{err: errors.New("llm unavailable")}, zap.NewNop())

	rec := postJSON(t, h.HandleAsk, `{"query": "q"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var envelope Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.False(t, envelope.Success)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "internal_error", envelope.Error.Code)
}

func TestHandleAskStream_SSEFormat(t *testing.T) {
	fake := &fakeAgent{events: []agent.Event{
		{Type: agent.EventStatus, Data: agent.StatusData{Step: "guardrail", Message: "Validating query scope"}},
		{Type: agent.EventContent, Data: agent.ContentData{Token: "RRF "}},
		{Type: agent.EventContent, Data: agent.ContentData{Token: "merges."}},
	}}
	h := NewAskHandler(fake, zap.NewNop())

	rec := postJSON(t, h.HandleAskStream, `{"query": "what is RRF?", "session_id": "s1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "event: status\n")
	assert.Contains(t, body, `"step":"guardrail"`)
	assert.Contains(t, body, `"token":"RRF "`)
	assert.True(t, strings.HasSuffix(body, "event: done\ndata: null\n\n"))
	assert.Equal(t, 1, strings.Count(body, "event: done\n"))
}

func TestHandleAskStream_RejectsEmptyQuery(t *testing.T) {
	h := NewAskHandler(&fakeAgent{}, zap.NewNop())
	rec := postJSON(t, h.HandleAskStream, `{"query": ""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
