package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/paperflow/store"
)

type fakeConversationStore struct {
	conversations []store.Conversation
	turns         []store.ConversationTurn
	deleted       []string
}

func (f *fakeConversationStore) List(_ context.Context, limit, offset int) ([]store.Conversation, error) {
	return f.conversations, nil
}

func (f *fakeConversationStore) GetBySessionID(_ context.Context, sessionID string) (*store.Conversation, error) {
	for i := range f.conversations {
		if f.conversations[i].SessionID == sessionID {
			return &f.conversations[i], nil
		}
	}
	return nil, nil
}

func (f *fakeConversationStore) GetHistory(_ context.Context, sessionID string, limit int) ([]store.ConversationTurn, error) {
	return f.turns, nil
}

func (f *fakeConversationStore) Delete(_ context.Context, sessionID string) (bool, error) {
	for _, conv := range f.conversations {
		if conv.SessionID == sessionID {
			f.deleted = append(f.deleted, sessionID)
			return true, nil
		}
	}
	return false, nil
}

func conversationMux(h *ConversationHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/conversations", h.HandleList)
	mux.HandleFunc("GET /api/v1/conversations/{session_id}", h.HandleGet)
	mux.HandleFunc("DELETE /api/v1/conversations/{session_id}", h.HandleDelete)
	return mux
}

func TestConversations_List(t *testing.T) {
	fake := &fakeConversationStore{conversations: []store.Conversation{
		{SessionID: "s1"},
		{SessionID: "s2"},
	}}
	mux := conversationMux(NewConversationHandler(fake, zap.NewNop()))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/conversations?limit=10", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	data := envelope.Data.(map[string]any)
	assert.Equal(t, float64(2), data["count"])
}

func TestConversations_GetWithHistory(t *testing.T) {
	score := 88
	fake := &fakeConversationStore{
		conversations: []store.Conversation{{SessionID: "s1"}},
		turns: []store.ConversationTurn{
			{TurnNumber: 0, UserQuery: "what is RRF?", AgentResponse: "Rank fusion.", GuardrailScore: &score, Provider: "openai"},
			{TurnNumber: 1, UserQuery: "and dense retrieval?", AgentResponse: "Embedding search."},
		},
	}
	mux := conversationMux(NewConversationHandler(fake, zap.NewNop()))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/conversations/s1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	data := envelope.Data.(map[string]any)
	assert.Equal(t, "s1", data["session_id"])

	turns := data["turns"].([]any)
	require.Len(t, turns, 2)
	first := turns[0].(map[string]any)
	assert.Equal(t, "what is RRF?", first["user_query"])
	assert.Equal(t, float64(88), first["guardrail_score"])
}

func TestConversations_GetNotFound(t *testing.T) {
	mux := conversationMux(NewConversationHandler(&fakeConversationStore{}, zap.NewNop()))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/conversations/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConversations_Delete(t *testing.T) {
	fake := &fakeConversationStore{conversations: []store.Conversation{{SessionID: "s1"}}}
	mux := conversationMux(NewConversationHandler(fake, zap.NewNop()))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/conversations/s1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"s1"}, fake.deleted)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/conversations/other", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
