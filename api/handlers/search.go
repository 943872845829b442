package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/paperflow/search"
)

const maxSearchTopK = 50

// SearchService is the slice of the hybrid search service the handler needs.
type SearchService interface {
	Search(ctx context.Context, query string, topK int, mode search.Mode, minScore float64) ([]search.Result, error)
}

// SearchRequest is the body of POST /api/v1/search.
type SearchRequest struct {
	Query      string  `json:"query"`
	TopK       int     `json:"top_k,omitempty"`
	SearchMode string  `json:"search_mode,omitempty"`
	MinScore   float64 `json:"min_score,omitempty"`
}

// SearchResponse carries ranked results plus the resolved search parameters.
type SearchResponse struct {
	Query           string          `json:"query"`
	Total           int             `json:"total"`
	Results         []search.Result `json:"results"`
	SearchMode      string          `json:"search_mode"`
	ExecutionTimeMs float64         `json:"execution_time_ms"`
}

// SearchHandler serves direct retrieval queries, bypassing the agent.
type SearchHandler struct {
	searcher SearchService
	logger   *zap.Logger
}

// NewSearchHandler creates the search handler.
func NewSearchHandler(searcher SearchService, logger *zap.Logger) *SearchHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SearchHandler{searcher: searcher, logger: logger}
}

// HandleSearch serves POST /api/v1/search.
func (h *SearchHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !DecodeJSONBody(w, r, &req) {
		return
	}

	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		WriteErrorMessage(w, http.StatusBadRequest, "invalid_request", "query must not be empty")
		return
	}
	if req.TopK < 0 || req.TopK > maxSearchTopK {
		WriteErrorMessage(w, http.StatusBadRequest, "invalid_request", "top_k must be between 1 and 50")
		return
	}
	if req.TopK == 0 {
		req.TopK = 10
	}
	if req.MinScore < 0 || req.MinScore > 1 {
		WriteErrorMessage(w, http.StatusBadRequest, "invalid_request", "min_score must be between 0 and 1")
		return
	}
	mode := search.Mode(req.SearchMode)
	switch mode {
	case "":
		mode = search.ModeHybrid
	case search.ModeVector, search.ModeFulltext, search.ModeHybrid:
	default:
		WriteErrorMessage(w, http.StatusBadRequest, "invalid_request", "search_mode must be vector, fulltext, or hybrid")
		return
	}

	start := time.Now()
	results, err := h.searcher.Search(r.Context(), req.Query, req.TopK, mode, req.MinScore)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	if results == nil {
		results = []search.Result{}
	}

	WriteSuccess(w, SearchResponse{
		Query:           req.Query,
		Total:           len(results),
		Results:         results,
		SearchMode:      string(mode),
		ExecutionTimeMs: float64(time.Since(start).Microseconds()) / 1000,
	})
}
