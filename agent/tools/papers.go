package tools

import (
	"context"
	"fmt"

	"github.com/BaSui01/paperflow/llm"
	"github.com/BaSui01/paperflow/store"
)

// PaperStore is the slice of the paper repository the knowledge-base tools
// need.
type PaperStore interface {
	GetByArxivID(ctx context.Context, arxivID string) (*store.Paper, error)
	List(ctx context.Context, limit, offset int) ([]store.Paper, int64, error)
}

// PaperSummary is list_papers' per-paper payload.
type PaperSummary struct {
	ArxivID       string   `json:"arxiv_id"`
	Title         string   `json:"title"`
	Authors       []string `json:"authors"`
	Categories    []string `json:"categories"`
	PublishedDate string   `json:"published_date"`
	PDFProcessed  bool     `json:"pdf_processed"`
}

// ListPapersTool lists papers stored in the knowledge base.
type ListPapersTool struct {
	papers PaperStore
}

func NewListPapersTool(papers PaperStore) *ListPapersTool {
	return &ListPapersTool{papers: papers}
}

func (t *ListPapersTool) Name() string { return "list_papers" }

func (t *ListPapersTool) Description() string {
	return "List research papers stored in the knowledge base. " +
		"Use when user asks what papers are available or wants to browse. " +
		"Returns metadata only - use retrieve_chunks for content search."
}

func (t *ListPapersTool) ParametersSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"limit": map[string]any{
				"type":        "integer",
				"description": "Max papers to return (default 20, max 50)",
				"default":     20,
			},
			"offset": map[string]any{
				"type":        "integer",
				"description": "Number of papers to skip, for paging",
				"default":     0,
			},
		},
		"required": []string{},
	}
}

func (t *ListPapersTool) Execute(ctx context.Context, args Args) (any, error) {
	limit := args.Int("limit", 20)
	if limit > 50 {
		limit = 50
	}
	offset := args.Int("offset", 0)

	papers, total, err := t.papers.List(ctx, limit, offset)
	if err != nil {
		return nil, err
	}

	summaries := make([]PaperSummary, 0, len(papers))
	for _, p := range papers {
		summaries = append(summaries, PaperSummary{
			ArxivID:       p.ArxivID,
			Title:         p.Title,
			Authors:       p.Authors,
			Categories:    p.Categories,
			PublishedDate: p.PublishedDate.Format("2006-01-02"),
			PDFProcessed:  p.PDFProcessed,
		})
	}
	return map[string]any{
		"total_count": total,
		"returned":    len(summaries),
		"papers":      summaries,
	}, nil
}

const summaryPrompt = `Summarize this research paper abstract in 2-3 sentences. Focus on:
- The main problem or question addressed
- The key approach or method
- The primary findings or contributions

Title: %s
Abstract: %s

Provide only the summary, no preamble.`

// SummarizePaperTool generates a short LLM summary of a stored paper.
type SummarizePaperTool struct {
	papers PaperStore
	client llm.Client
}

func NewSummarizePaperTool(papers PaperStore, client llm.Client) *SummarizePaperTool {
	return &SummarizePaperTool{papers: papers, client: client}
}

func (t *SummarizePaperTool) Name() string { return "summarize_paper" }

func (t *SummarizePaperTool) Description() string {
	return "Generate a concise 2-3 sentence summary of a paper's abstract. " +
		"Use when user wants a quick overview of what a paper is about. " +
		"Only works for papers in the knowledge base."
}

func (t *SummarizePaperTool) ParametersSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"arxiv_id": map[string]any{
				"type":        "string",
				"description": "arXiv ID of the paper to summarize (e.g., '2301.00001')",
			},
		},
		"required": []string{"arxiv_id"},
	}
}

func (t *SummarizePaperTool) Execute(ctx context.Context, args Args) (any, error) {
	arxivID := args.String("arxiv_id", "")
	if arxivID == "" {
		return nil, fmt.Errorf("arxiv_id is required")
	}

	paper, err := t.papers.GetByArxivID(ctx, arxivID)
	if err != nil {
		return nil, err
	}
	if paper == nil {
		return nil, fmt.Errorf("paper %s not found in knowledge base", arxivID)
	}

	resp, err := t.client.Completion(ctx, &llm.ChatRequest{
		Messages: []llm.Message{
			llm.NewUserMessage(fmt.Sprintf(summaryPrompt, paper.Title, paper.Abstract)),
		},
		Temperature: 0.3,
		MaxTokens:   200,
	})
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"arxiv_id": paper.ArxivID,
		"title":    paper.Title,
		"summary":  resp.Content,
	}, nil
}

// ExploreCitationsTool returns the references of a processed paper.
type ExploreCitationsTool struct {
	papers PaperStore
}

func NewExploreCitationsTool(papers PaperStore) *ExploreCitationsTool {
	return &ExploreCitationsTool{papers: papers}
}

func (t *ExploreCitationsTool) Name() string { return "explore_citations" }

func (t *ExploreCitationsTool) Description() string {
	return "Get the list of references cited by a paper in the knowledge base. " +
		"Use when user wants to explore related work or find papers cited by a specific paper. " +
		"Only works for papers that have been ingested and processed."
}

func (t *ExploreCitationsTool) ParametersSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"arxiv_id": map[string]any{
				"type":        "string",
				"description": "arXiv ID of the paper (e.g., '2301.00001')",
			},
		},
		"required": []string{"arxiv_id"},
	}
}

func (t *ExploreCitationsTool) Execute(ctx context.Context, args Args) (any, error) {
	arxivID := args.String("arxiv_id", "")
	if arxivID == "" {
		return nil, fmt.Errorf("arxiv_id is required")
	}

	paper, err := t.papers.GetByArxivID(ctx, arxivID)
	if err != nil {
		return nil, err
	}
	if paper == nil {
		return nil, fmt.Errorf("paper %s not found in knowledge base", arxivID)
	}
	if !paper.PDFProcessed {
		return nil, fmt.Errorf("paper %s has not been processed yet", arxivID)
	}

	references := []string(paper.References)
	if references == nil {
		references = []string{}
	}
	return map[string]any{
		"arxiv_id":        paper.ArxivID,
		"title":           paper.Title,
		"reference_count": len(references),
		"references":      references,
	}, nil
}
