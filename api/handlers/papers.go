package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/paperflow/ingest"
	"github.com/BaSui01/paperflow/store"
)

const maxIngestResults = 50

// PaperStore is the slice of the paper repository the handler needs.
type PaperStore interface {
	List(ctx context.Context, limit, offset int) ([]store.Paper, int64, error)
	GetByArxivID(ctx context.Context, arxivID string) (*store.Paper, error)
}

// IngestService triggers paper ingestion runs.
type IngestService interface {
	IngestQuery(ctx context.Context, query string, maxResults int) (*ingest.Result, error)
	IngestByID(ctx context.Context, arxivIDs []string) (*ingest.Result, error)
}

// PaperView is one paper in an API response.
type PaperView struct {
	ArxivID       string    `json:"arxiv_id"`
	Title         string    `json:"title"`
	Authors       []string  `json:"authors"`
	Abstract      string    `json:"abstract,omitempty"`
	Categories    []string  `json:"categories,omitempty"`
	PublishedDate time.Time `json:"published_date"`
	PDFURL        string    `json:"pdf_url,omitempty"`
	PDFProcessed  bool      `json:"pdf_processed"`
	ParserUsed    *string   `json:"parser_used,omitempty"`
}

// IngestRequest is the body of POST /api/v1/papers/ingest. Exactly one of
// query or arxiv_ids must be set.
type IngestRequest struct {
	Query      string   `json:"query,omitempty"`
	ArxivIDs   []string `json:"arxiv_ids,omitempty"`
	MaxResults int      `json:"max_results,omitempty"`
}

// PaperHandler serves paper listing, lookup, and ingestion.
type PaperHandler struct {
	papers   PaperStore
	ingester IngestService
	logger   *zap.Logger
}

// NewPaperHandler creates the paper handler. ingester may be nil, which
// disables the ingest endpoint.
func NewPaperHandler(papers PaperStore, ingester IngestService, logger *zap.Logger) *PaperHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaperHandler{papers: papers, ingester: ingester, logger: logger}
}

func paperView(paper *store.Paper) PaperView {
	return PaperView{
		ArxivID:       paper.ArxivID,
		Title:         paper.Title,
		Authors:       paper.Authors,
		Abstract:      paper.Abstract,
		Categories:    paper.Categories,
		PublishedDate: paper.PublishedDate,
		PDFURL:        paper.PDFURL,
		PDFProcessed:  paper.PDFProcessed,
		ParserUsed:    paper.ParserUsed,
	}
}

// HandleList serves GET /api/v1/papers.
func (h *PaperHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)

	papers, total, err := h.papers.List(r.Context(), limit, offset)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	views := make([]PaperView, 0, len(papers))
	for i := range papers {
		views = append(views, paperView(&papers[i]))
	}
	WriteSuccess(w, map[string]any{"papers": views, "total_count": total})
}

// HandleGet serves GET /api/v1/papers/{arxiv_id}.
func (h *PaperHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	arxivID := r.PathValue("arxiv_id")
	if arxivID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, "invalid_request", "arxiv_id is required")
		return
	}

	paper, err := h.papers.GetByArxivID(r.Context(), arxivID)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	if paper == nil {
		WriteErrorMessage(w, http.StatusNotFound, "not_found", "paper not found")
		return
	}
	WriteSuccess(w, paperView(paper))
}

// HandleIngest serves POST /api/v1/papers/ingest.
func (h *PaperHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	if h.ingester == nil {
		WriteErrorMessage(w, http.StatusServiceUnavailable, "ingest_disabled", "ingestion is not configured")
		return
	}

	var req IngestRequest
	if !DecodeJSONBody(w, r, &req) {
		return
	}
	req.Query = strings.TrimSpace(req.Query)

	hasQuery := req.Query != ""
	hasIDs := len(req.ArxivIDs) > 0
	if hasQuery == hasIDs {
		WriteErrorMessage(w, http.StatusBadRequest, "invalid_request", "provide exactly one of query or arxiv_ids")
		return
	}
	if req.MaxResults <= 0 || req.MaxResults > maxIngestResults {
		req.MaxResults = 10
	}

	var (
		result *ingest.Result
		err    error
	)
	if hasQuery {
		result, err = h.ingester.IngestQuery(r.Context(), req.Query, req.MaxResults)
	} else {
		result, err = h.ingester.IngestByID(r.Context(), req.ArxivIDs)
	}
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, result)
}
