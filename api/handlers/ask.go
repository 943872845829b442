package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/paperflow/agent"
)

const maxQueryLength = 4000

// AgentService is the slice of the agent the ask handlers need.
type AgentService interface {
	Ask(ctx context.Context, query, sessionID string) (*agent.Response, error)
	AskStream(ctx context.Context, query, sessionID string, emit agent.Emitter) error
}

// AskRequest is the body of POST /api/v1/ask and /api/v1/ask/stream. An
// empty session_id starts a new conversation.
type AskRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
}

// AskHandler serves agent question answering.
type AskHandler struct {
	agent  AgentService
	logger *zap.Logger
}

// NewAskHandler creates the ask handler.
func NewAskHandler(agentService AgentService, logger *zap.Logger) *AskHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AskHandler{agent: agentService, logger: logger}
}

func (h *AskHandler) parseRequest(w http.ResponseWriter, r *http.Request) (*AskRequest, bool) {
	var req AskRequest
	if !DecodeJSONBody(w, r, &req) {
		return nil, false
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		WriteErrorMessage(w, http.StatusBadRequest, "invalid_request", "query is required")
		return nil, false
	}
	if len(req.Query) > maxQueryLength {
		WriteErrorMessage(w, http.StatusRequestEntityTooLarge, "invalid_request", "query exceeds maximum length")
		return nil, false
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	return &req, true
}

// HandleAsk answers a question synchronously.
func (h *AskHandler) HandleAsk(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseRequest(w, r)
	if !ok {
		return
	}

	resp, err := h.agent.Ask(r.Context(), req.Query, req.SessionID)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, resp)
}

// HandleAskStream answers a question over SSE. Events mirror the agent's
// stream one to one: status, content, sources, metadata, error, done.
func (h *AskHandler) HandleAskStream(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseRequest(w, r)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		WriteErrorMessage(w, http.StatusInternalServerError, "internal_error", "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	err := h.agent.AskStream(r.Context(), req.Query, req.SessionID, func(event agent.Event) {
		writeSSEEvent(w, event)
		flusher.Flush()
	})
	if err != nil {
		// The error already went out as an SSE error event; the stream is
		// closed by the done event that follows it.
		h.logger.Error("streaming ask failed",
			zap.String("session_id", req.SessionID),
			zap.Error(err),
		)
	}
}

func writeSSEEvent(w http.ResponseWriter, event agent.Event) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		payload = []byte(`{"error":"event serialization failed"}`)
	}
	_, _ = w.Write([]byte("event: " + string(event.Type) + "\n"))
	_, _ = w.Write([]byte("data: "))
	_, _ = w.Write(payload)
	_, _ = w.Write([]byte("\n\n"))
}
