package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/paperflow/store"
)

// ConversationStore is the slice of the conversation repository the handler
// needs.
type ConversationStore interface {
	List(ctx context.Context, limit, offset int) ([]store.Conversation, error)
	GetBySessionID(ctx context.Context, sessionID string) (*store.Conversation, error)
	GetHistory(ctx context.Context, sessionID string, limit int) ([]store.ConversationTurn, error)
	Delete(ctx context.Context, sessionID string) (bool, error)
}

// ConversationSummary is one conversation in a listing.
type ConversationSummary struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TurnView is one turn of a conversation's history.
type TurnView struct {
	TurnNumber        int            `json:"turn_number"`
	UserQuery         string         `json:"user_query"`
	AgentResponse     string         `json:"agent_response"`
	GuardrailScore    *int           `json:"guardrail_score,omitempty"`
	RetrievalAttempts int            `json:"retrieval_attempts"`
	RewrittenQuery    *string        `json:"rewritten_query,omitempty"`
	Sources           store.JSONList `json:"sources,omitempty"`
	ReasoningSteps    []string       `json:"reasoning_steps,omitempty"`
	Provider          string         `json:"provider,omitempty"`
	Model             string         `json:"model,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}

// ConversationHandler serves conversation listing, history, and deletion.
type ConversationHandler struct {
	conversations ConversationStore
	logger        *zap.Logger
}

// NewConversationHandler creates the conversation handler.
func NewConversationHandler(conversations ConversationStore, logger *zap.Logger) *ConversationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationHandler{conversations: conversations, logger: logger}
}

// HandleList serves GET /api/v1/conversations.
func (h *ConversationHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	convs, err := h.conversations.List(r.Context(), limit, offset)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	summaries := make([]ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		summaries = append(summaries, ConversationSummary{
			SessionID: conv.SessionID,
			CreatedAt: conv.CreatedAt,
			UpdatedAt: conv.UpdatedAt,
		})
	}
	WriteSuccess(w, map[string]any{"conversations": summaries, "count": len(summaries)})
}

// HandleGet serves GET /api/v1/conversations/{session_id}: the conversation
// plus its full turn history.
func (h *ConversationHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	if sessionID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, "invalid_request", "session_id is required")
		return
	}

	conv, err := h.conversations.GetBySessionID(r.Context(), sessionID)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	if conv == nil {
		WriteErrorMessage(w, http.StatusNotFound, "not_found", "conversation not found")
		return
	}

	limit := queryInt(r, "limit", 100)
	turns, err := h.conversations.GetHistory(r.Context(), sessionID, limit)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	views := make([]TurnView, 0, len(turns))
	for _, turn := range turns {
		views = append(views, TurnView{
			TurnNumber:        turn.TurnNumber,
			UserQuery:         turn.UserQuery,
			AgentResponse:     turn.AgentResponse,
			GuardrailScore:    turn.GuardrailScore,
			RetrievalAttempts: turn.RetrievalAttempts,
			RewrittenQuery:    turn.RewrittenQuery,
			Sources:           turn.Sources,
			ReasoningSteps:    turn.ReasoningSteps,
			Provider:          turn.Provider,
			Model:             turn.Model,
			CreatedAt:         turn.CreatedAt,
		})
	}
	WriteSuccess(w, map[string]any{
		"session_id": conv.SessionID,
		"created_at": conv.CreatedAt,
		"updated_at": conv.UpdatedAt,
		"turns":      views,
	})
}

// HandleDelete serves DELETE /api/v1/conversations/{session_id}.
func (h *ConversationHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	if sessionID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, "invalid_request", "session_id is required")
		return
	}

	deleted, err := h.conversations.Delete(r.Context(), sessionID)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	if !deleted {
		WriteErrorMessage(w, http.StatusNotFound, "not_found", "conversation not found")
		return
	}
	WriteSuccess(w, map[string]any{"deleted": true, "session_id": sessionID})
}
