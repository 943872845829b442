package agent

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/paperflow/agent/tools"
	"github.com/BaSui01/paperflow/config"
	"github.com/BaSui01/paperflow/internal/cache"
	"github.com/BaSui01/paperflow/internal/metrics"
	"github.com/BaSui01/paperflow/llm"
	"github.com/BaSui01/paperflow/store"
)

// Source is one cited chunk in an answer. Every source listed here passed
// document grading.
type Source struct {
	ArxivID           string   `json:"arxiv_id"`
	Title             string   `json:"title"`
	Authors           []string `json:"authors,omitempty"`
	SectionName       string   `json:"section_name,omitempty"`
	ChunkText         string   `json:"chunk_text"`
	Score             float64  `json:"score"`
	PDFURL            string   `json:"pdf_url,omitempty"`
	PublishedDate     string   `json:"published_date,omitempty"`
	WasGradedRelevant bool     `json:"was_graded_relevant"`
}

// Response is one completed agent turn.
type Response struct {
	Answer            string   `json:"answer"`
	Sources           []Source `json:"sources"`
	SessionID         string   `json:"session_id"`
	TurnNumber        int      `json:"turn_number"`
	GuardrailScore    *int     `json:"guardrail_score,omitempty"`
	RewrittenQuery    *string  `json:"rewritten_query,omitempty"`
	RetrievalAttempts int      `json:"retrieval_attempts"`
	ReasoningSteps    []string `json:"reasoning_steps"`
	ExecutionTimeMs   int64    `json:"execution_time_ms"`
	Provider          string   `json:"provider"`
	Model             string   `json:"model"`
}

// Service runs agent turns end to end: history load, workflow, persistence.
type Service struct {
	workflow      *Workflow
	client        llm.Client
	conversations *store.ConversationRepository
	historyCache  *cache.HistoryCache
	formatter     *HistoryFormatter
	collector     *metrics.Collector
	cfg           config.AgentConfig
	logger        *zap.Logger
}

// NewService wires the agent service. historyCache and collector may be nil.
func NewService(
	client llm.Client,
	registry *tools.Registry,
	conversations *store.ConversationRepository,
	historyCache *cache.HistoryCache,
	collector *metrics.Collector,
	cfg config.AgentConfig,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	formatter := NewHistoryFormatter(cfg.HistoryTurns)
	workflow := NewWorkflow(client, registry, formatter, WorkflowConfig{
		GuardrailThreshold:   cfg.GuardrailThreshold,
		TopK:                 cfg.TopK,
		MaxIterations:        cfg.MaxIterations,
		MaxRetrievalAttempts: cfg.MaxRetrievalAttempts,
	}, collector, logger)
	return &Service{
		workflow:      workflow,
		client:        client,
		conversations: conversations,
		historyCache:  historyCache,
		formatter:     formatter,
		collector:     collector,
		cfg:           cfg,
		logger:        logger.With(zap.String("component", "agent_service")),
	}
}

// Ask runs one turn synchronously.
func (s *Service) Ask(ctx context.Context, query, sessionID string) (*Response, error) {
	return s.run(ctx, query, sessionID, nil)
}

// AskStream runs one turn while pushing events through emit. The stream
// always ends with exactly one done event; on failure an error event
// precedes it. The returned error mirrors the error event.
func (s *Service) AskStream(ctx context.Context, query, sessionID string, emit Emitter) (err error) {
	defer emit.done()

	resp, runErr := s.run(ctx, query, sessionID, emit)
	if runErr != nil {
		code := "agent_error"
		if ctx.Err() != nil {
			code = "cancelled"
		}
		emit.emit(Event{Type: EventError, Data: ErrorData{Error: runErr.Error(), Code: code}})
		return runErr
	}

	emit.emit(Event{Type: EventSources, Data: resp.Sources})
	emit.emit(Event{Type: EventMetadata, Data: map[string]any{
		"query":              query,
		"execution_time_ms":  resp.ExecutionTimeMs,
		"retrieval_attempts": resp.RetrievalAttempts,
		"rewritten_query":    resp.RewrittenQuery,
		"guardrail_score":    resp.GuardrailScore,
		"provider":           resp.Provider,
		"model":              resp.Model,
		"session_id":         resp.SessionID,
		"turn_number":        resp.TurnNumber,
		"reasoning_steps":    resp.ReasoningSteps,
	}})
	return nil
}

func (s *Service) run(ctx context.Context, query, sessionID string, emit Emitter) (*Response, error) {
	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}

	start := time.Now()
	history, err := s.loadHistory(ctx, sessionID)
	if err != nil {
		s.recordRun("failed", start, 0)
		return nil, fmt.Errorf("load history: %w", err)
	}

	state := newState(query, sessionID, history, s.cfg.MaxIterations, s.cfg.MaxRetrievalAttempts)
	if err := s.workflow.Run(ctx, state, emit); err != nil {
		s.recordRun("failed", start, state.Iteration)
		s.logger.Error("agent run failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return nil, err
	}

	resp := s.buildResponse(state, time.Since(start))
	resp.TurnNumber = s.persistTurn(ctx, state, resp)

	outcome := "completed"
	if state.GuardrailResult != nil && state.GuardrailResult.Score < s.cfg.GuardrailThreshold {
		outcome = "out_of_scope"
	}
	s.recordRun(outcome, start, state.Iteration)
	s.logger.Info("agent run finished",
		zap.String("session_id", sessionID),
		zap.String("outcome", outcome),
		zap.Int("iterations", state.Iteration),
		zap.Int("sources", len(resp.Sources)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return resp, nil
}

func (s *Service) recordRun(outcome string, start time.Time, iterations int) {
	if s.collector == nil {
		return
	}
	s.collector.RecordAgentRun(outcome, time.Since(start), iterations)
}

func (s *Service) buildResponse(state *State, elapsed time.Duration) *Response {
	chunks := state.RelevantChunks
	if len(chunks) > s.cfg.TopK {
		chunks = chunks[:s.cfg.TopK]
	}
	sources := make([]Source, 0, len(chunks))
	for _, chunk := range chunks {
		sources = append(sources, Source{
			ArxivID:           chunk.ArxivID,
			Title:             chunk.Title,
			Authors:           chunk.Authors,
			SectionName:       chunk.SectionName,
			ChunkText:         chunk.ChunkText,
			Score:             chunk.Score,
			PDFURL:            chunk.PDFURL,
			PublishedDate:     chunk.PublishedDate,
			WasGradedRelevant: true,
		})
	}

	resp := &Response{
		Answer:            state.Answer,
		Sources:           sources,
		SessionID:         state.SessionID,
		TurnNumber:        -1,
		RetrievalAttempts: state.RetrievalAttempts,
		ReasoningSteps:    state.ReasoningSteps,
		ExecutionTimeMs:   elapsed.Milliseconds(),
		Provider:          s.client.Name(),
		Model:             s.client.Model(),
	}
	if state.GuardrailResult != nil {
		score := state.GuardrailResult.Score
		resp.GuardrailScore = &score
	}
	if state.RewrittenQuery != "" {
		rewritten := state.RewrittenQuery
		resp.RewrittenQuery = &rewritten
	}
	return resp
}

// loadHistory returns the prior turns as alternating chat messages, via the
// cache when one is configured.
func (s *Service) loadHistory(ctx context.Context, sessionID string) ([]llm.Message, error) {
	limit := s.cfg.HistoryTurns
	if limit <= 0 {
		limit = defaultHistoryTurns
	}

	if s.historyCache != nil {
		if turns, ok := s.historyCache.Get(ctx, sessionID); ok {
			return HistoryMessages(turns), nil
		}
	}

	turns, err := s.conversations.GetHistory(ctx, sessionID, limit)
	if err != nil {
		return nil, err
	}
	if s.historyCache != nil && len(turns) > 0 {
		s.historyCache.Put(ctx, sessionID, turns)
	}
	return HistoryMessages(turns), nil
}

// persistTurn saves the completed turn and returns its number, or -1 when
// persistence failed. A lost turn record does not fail the answer.
func (s *Service) persistTurn(ctx context.Context, state *State, resp *Response) int {
	sourceList := make(store.JSONList, 0, len(resp.Sources))
	for _, src := range resp.Sources {
		sourceList = append(sourceList, map[string]any{
			"arxiv_id":            src.ArxivID,
			"title":               src.Title,
			"section_name":        src.SectionName,
			"score":               src.Score,
			"pdf_url":             src.PDFURL,
			"was_graded_relevant": src.WasGradedRelevant,
		})
	}

	data := store.TurnData{
		UserQuery:         state.OriginalQuery,
		AgentResponse:     state.Answer,
		GuardrailScore:    resp.GuardrailScore,
		RetrievalAttempts: state.RetrievalAttempts,
		RewrittenQuery:    resp.RewrittenQuery,
		Sources:           sourceList,
		ReasoningSteps:    store.StringSlice(state.ReasoningSteps),
		Provider:          resp.Provider,
		Model:             resp.Model,
	}

	// The answer is already produced; record it even if the request's
	// context has been cancelled or timed out.
	saveCtx := context.WithoutCancel(ctx)
	turn, err := s.conversations.SaveTurn(saveCtx, state.SessionID, data)
	if err != nil {
		s.logger.Error("turn persistence failed",
			zap.String("session_id", state.SessionID),
			zap.Error(err),
		)
		return -1
	}
	if s.historyCache != nil {
		s.historyCache.Invalidate(saveCtx, state.SessionID)
	}
	return turn.TurnNumber
}
