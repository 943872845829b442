package tools

import (
	"context"
	"fmt"

	"github.com/BaSui01/paperflow/search"
)

// Searcher is the slice of the search service the retrieval tool needs.
type Searcher interface {
	Search(ctx context.Context, query string, topK int, mode search.Mode, minScore float64) ([]search.Result, error)
}

// RetrievedChunk is retrieve_chunks' per-chunk payload.
type RetrievedChunk struct {
	ChunkID       string   `json:"chunk_id"`
	ChunkText     string   `json:"chunk_text"`
	ArxivID       string   `json:"arxiv_id"`
	Title         string   `json:"title"`
	Authors       []string `json:"authors"`
	SectionName   string   `json:"section_name,omitempty"`
	Score         float64  `json:"score"`
	PDFURL        string   `json:"pdf_url"`
	PublishedDate string   `json:"published_date,omitempty"`
}

// RetrieveChunksTool searches the paper database in hybrid mode.
type RetrieveChunksTool struct {
	searcher    Searcher
	defaultTopK int
	minScore    float64
}

// NewRetrieveChunksTool creates the retrieval tool. defaultTopK should be
// twice the answer-time chunk budget so grading has headroom to discard.
func NewRetrieveChunksTool(searcher Searcher, defaultTopK int, minScore float64) *RetrieveChunksTool {
	if defaultTopK <= 0 {
		defaultTopK = 6
	}
	return &RetrieveChunksTool{searcher: searcher, defaultTopK: defaultTopK, minScore: minScore}
}

func (t *RetrieveChunksTool) Name() string { return "retrieve_chunks" }

func (t *RetrieveChunksTool) Description() string {
	return "Search the AI/ML research paper database for relevant document chunks. " +
		"Use this when you need information from academic papers about machine learning, " +
		"deep learning, transformers, neural networks, or related AI topics."
}

func (t *RetrieveChunksTool) ParametersSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Search query for finding relevant research paper chunks",
			},
			"top_k": map[string]any{
				"type":        "integer",
				"description": "Number of chunks to retrieve",
				"default":     t.defaultTopK,
			},
		},
		"required": []string{"query"},
	}
}

func (t *RetrieveChunksTool) Execute(ctx context.Context, args Args) (any, error) {
	query := args.String("query", "")
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	topK := args.Int("top_k", t.defaultTopK)

	results, err := t.searcher.Search(ctx, query, topK, search.ModeHybrid, t.minScore)
	if err != nil {
		return nil, err
	}

	chunks := make([]RetrievedChunk, 0, len(results))
	for _, r := range results {
		chunk := RetrievedChunk{
			ChunkID:       r.ChunkID,
			ChunkText:     r.ChunkText,
			ArxivID:       r.ArxivID,
			Title:         r.Title,
			Authors:       r.Authors,
			SectionName:   r.SectionName,
			Score:         r.Score,
			PDFURL:        r.PDFURL,
			PublishedDate: r.PublishedDate,
		}
		if chunk.PDFURL == "" {
			chunk.PDFURL = fmt.Sprintf("https://arxiv.org/pdf/%s.pdf", r.ArxivID)
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}
