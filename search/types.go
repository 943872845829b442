// Package search implements hybrid retrieval over the paper corpus: vector
// similarity, Postgres full-text, and Reciprocal Rank Fusion of the two.
package search

import (
	"context"
	"fmt"
)

// Mode selects the retrieval strategy.
type Mode string

const (
	ModeVector   Mode = "vector"
	ModeFulltext Mode = "fulltext"
	ModeHybrid   Mode = "hybrid"
)

// Result is one retrievable chunk with its paper metadata. Results are never
// mutated after creation except that hybrid mode overwrites Score once with
// the fused score.
type Result struct {
	ChunkID       string   `json:"chunk_id"`
	PaperID       string   `json:"paper_id"`
	ArxivID       string   `json:"arxiv_id"`
	Title         string   `json:"title"`
	Authors       []string `json:"authors"`
	ChunkText     string   `json:"chunk_text"`
	SectionName   string   `json:"section_name,omitempty"`
	PageNumber    int      `json:"page_number,omitempty"`
	Score         float64  `json:"score"`
	VectorScore   *float64 `json:"vector_score,omitempty"`
	TextScore     *float64 `json:"text_score,omitempty"`
	PublishedDate string   `json:"published_date,omitempty"`
	PDFURL        string   `json:"pdf_url,omitempty"`
}

// Repository is the storage boundary the service searches through.
type Repository interface {
	// VectorSearch returns chunks by cosine similarity, best first, filtered
	// to similarity >= minScore.
	VectorSearch(ctx context.Context, embedding []float64, topK int, minScore float64) ([]Result, error)

	// FulltextSearch returns chunks matching the query terms as an AND
	// conjunction, best text rank first. No matches is an empty slice, not an
	// error.
	FulltextSearch(ctx context.Context, query string, topK int) ([]Result, error)
}

// Error is the typed failure for any search call. Hybrid mode fails the whole
// call when either leg fails; partial results would corrupt fusion scoring.
type Error struct {
	Mode  Mode
	Stage string // "embed", "vector", "fulltext"
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("search failed: mode=%s stage=%s: %v", e.Mode, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
