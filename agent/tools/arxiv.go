package tools

import (
	"context"
	"fmt"

	"github.com/BaSui01/paperflow/arxiv"
	"github.com/BaSui01/paperflow/ingest"
)

// maxAgentIngest caps how many papers one tool call may pull in.
const maxAgentIngest = 10

// ArxivSearcher is the slice of the arXiv client the search tool needs.
type ArxivSearcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]arxiv.Paper, error)
}

// ArxivSearchTool searches arXiv without ingesting anything.
type ArxivSearchTool struct {
	client ArxivSearcher
}

func NewArxivSearchTool(client ArxivSearcher) *ArxivSearchTool {
	return &ArxivSearchTool{client: client}
}

func (t *ArxivSearchTool) Name() string { return "arxiv_search" }

func (t *ArxivSearchTool) Description() string {
	return "Search arXiv for papers matching a query. Returns metadata only without " +
		"downloading or processing. Use when user wants to find papers on arXiv " +
		"or explore what's available before deciding to ingest."
}

func (t *ArxivSearchTool) ParametersSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Search query for arXiv (e.g., 'transformer attention mechanism')",
			},
			"max_results": map[string]any{
				"type":        "integer",
				"description": "Maximum papers to return (1-10, default 5)",
				"default":     5,
			},
		},
		"required": []string{"query"},
	}
}

func (t *ArxivSearchTool) Execute(ctx context.Context, args Args) (any, error) {
	query := args.String("query", "")
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	maxResults := args.Int("max_results", 5)
	if maxResults < 1 {
		maxResults = 1
	}
	if maxResults > 10 {
		maxResults = 10
	}

	papers, err := t.client.Search(ctx, query, maxResults)
	if err != nil {
		return nil, err
	}

	results := make([]map[string]any, 0, len(papers))
	for _, p := range papers {
		abstract := truncate(p.Summary, 500)
		results = append(results, map[string]any{
			"arxiv_id":       p.ArxivID,
			"title":          p.Title,
			"authors":        p.Authors,
			"abstract":       abstract,
			"categories":     p.Categories,
			"published_date": p.Published.Format("2006-01-02"),
			"pdf_url":        p.PDFURL,
		})
	}
	return map[string]any{"count": len(results), "papers": results}, nil
}

// Ingester is the slice of the ingestion service the ingest tool needs.
type Ingester interface {
	IngestQuery(ctx context.Context, query string, maxResults int) (*ingest.Result, error)
	IngestByID(ctx context.Context, arxivIDs []string) (*ingest.Result, error)
}

// IngestPapersTool pulls papers from arXiv into the knowledge base.
type IngestPapersTool struct {
	ingester Ingester
}

func NewIngestPapersTool(ingester Ingester) *IngestPapersTool {
	return &IngestPapersTool{ingester: ingester}
}

func (t *IngestPapersTool) Name() string { return "ingest_papers" }

func (t *IngestPapersTool) Description() string {
	return "Ingest research papers from arXiv into the knowledge base. " +
		"Use when the user asks to add, import, or download papers. " +
		"Provide either a search query OR specific arXiv IDs (not both). " +
		"Limited to 10 papers per call."
}

func (t *IngestPapersTool) ParametersSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "arXiv search query (mutually exclusive with arxiv_ids)",
			},
			"arxiv_ids": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "List of arXiv IDs to ingest (mutually exclusive with query)",
			},
			"max_results": map[string]any{
				"type":        "integer",
				"description": "Maximum papers to ingest (1-10)",
				"default":     5,
			},
		},
		"required": []string{},
	}
}

func (t *IngestPapersTool) Execute(ctx context.Context, args Args) (any, error) {
	query := args.String("query", "")
	arxivIDs := args.StringSlice("arxiv_ids")

	switch {
	case query == "" && len(arxivIDs) == 0:
		return nil, fmt.Errorf("either query or arxiv_ids is required")
	case query != "" && len(arxivIDs) > 0:
		return nil, fmt.Errorf("query and arxiv_ids are mutually exclusive")
	}

	var (
		result *ingest.Result
		err    error
	)
	if query != "" {
		maxResults := args.Int("max_results", 5)
		if maxResults < 1 {
			maxResults = 1
		}
		if maxResults > maxAgentIngest {
			maxResults = maxAgentIngest
		}
		result, err = t.ingester.IngestQuery(ctx, query, maxResults)
	} else {
		if len(arxivIDs) > maxAgentIngest {
			arxivIDs = arxivIDs[:maxAgentIngest]
		}
		result, err = t.ingester.IngestByID(ctx, arxivIDs)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}
