package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/paperflow/llm"
	"github.com/BaSui01/paperflow/store"
)

type fakePaperStore struct {
	papers   map[string]*store.Paper
	listed   []store.Paper
	gotLimit int
}

func (f *fakePaperStore) GetByArxivID(_ context.Context, arxivID string) (*store.Paper, error) {
	return f.papers[arxivID], nil
}

func (f *fakePaperStore) List(_ context.Context, limit, _ int) ([]store.Paper, int64, error) {
	f.gotLimit = limit
	return f.listed, int64(len(f.listed)), nil
}

type fakeLLM struct {
	content string
	gotReq  *llm.ChatRequest
}

func (f *fakeLLM) Completion(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	f.gotReq = req
	return &llm.ChatResponse{Content: f.content, Model: "fake-model"}, nil
}

func (f *fakeLLM) Stream(context.Context, *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk)
	close(ch)
	return ch, nil
}

func (f *fakeLLM) Name() string  { return "fake" }
func (f *fakeLLM) Model() string { return "fake-model" }

func testPaper(processed bool) *store.Paper {
	return &store.Paper{
		ArxivID:       "2301.00001",
		Title:         "Dense Retrieval Revisited",
		Authors:       store.StringSlice{"A. Researcher"},
		Abstract:      "We revisit dense retrieval.",
		Categories:    store.StringSlice{"cs.IR"},
		PublishedDate: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		References:    store.StringSlice{"ref one", "ref two"},
		PDFProcessed:  processed,
	}
}

func TestListPapersClampsLimit(t *testing.T) {
	papers := &fakePaperStore{listed: []store.Paper{*testPaper(true)}}
	tool := NewListPapersTool(papers)

	data, err := tool.Execute(context.Background(), Args{"limit": float64(200)})
	require.NoError(t, err)
	assert.Equal(t, 50, papers.gotLimit)

	payload, ok := data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(1), payload["total_count"])
	assert.Equal(t, 1, payload["returned"])
	summaries, ok := payload["papers"].([]PaperSummary)
	require.True(t, ok)
	assert.Equal(t, "2301.00001", summaries[0].ArxivID)
	assert.Equal(t, "2023-01-01", summaries[0].PublishedDate)
}

func TestSummarizePaperBuildsPrompt(t *testing.T) {
	papers := &fakePaperStore{papers: map[string]*store.Paper{"2301.00001": testPaper(true)}}
	client := &fakeLLM{content: "A two sentence summary."}
	tool := NewSummarizePaperTool(papers, client)

	data, err := tool.Execute(context.Background(), Args{"arxiv_id": "2301.00001"})
	require.NoError(t, err)

	require.NotNil(t, client.gotReq)
	require.Len(t, client.gotReq.Messages, 1)
	assert.Contains(t, client.gotReq.Messages[0].Content, "Dense Retrieval Revisited")
	assert.Contains(t, client.gotReq.Messages[0].Content, "We revisit dense retrieval.")
	assert.Equal(t, 200, client.gotReq.MaxTokens)

	payload := data.(map[string]any)
	assert.Equal(t, "A two sentence summary.", payload["summary"])
}

func TestSummarizePaperUnknownPaper(t *testing.T) {
	tool := NewSummarizePaperTool(&fakePaperStore{papers: map[string]*store.Paper{}}, &fakeLLM{})

	_, err := tool.Execute(context.Background(), Args{"arxiv_id": "9999.99999"})
	assert.ErrorContains(t, err, "not found")
}

func TestExploreCitations(t *testing.T) {
	papers := &fakePaperStore{papers: map[string]*store.Paper{"2301.00001": testPaper(true)}}
	tool := NewExploreCitationsTool(papers)

	data, err := tool.Execute(context.Background(), Args{"arxiv_id": "2301.00001"})
	require.NoError(t, err)

	payload := data.(map[string]any)
	assert.Equal(t, 2, payload["reference_count"])
	assert.Equal(t, []string{"ref one", "ref two"}, payload["references"])
}

func TestExploreCitationsUnprocessedPaper(t *testing.T) {
	papers := &fakePaperStore{papers: map[string]*store.Paper{"2301.00001": testPaper(false)}}
	tool := NewExploreCitationsTool(papers)

	_, err := tool.Execute(context.Background(), Args{"arxiv_id": "2301.00001"})
	assert.ErrorContains(t, err, "not been processed")
}

func TestWebSearchParsesInstantAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "mixture of experts", r.URL.Query().Get("q"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		w.Write([]byte(`{
			"Heading": "Mixture of experts",
			"Abstract": "A machine learning technique.",
			"AbstractURL": "https://example.org/moe",
			"AbstractSource": "Wikipedia",
			"RelatedTopics": [
				{"Text": "Sparse gating networks", "FirstURL": "https://example.org/gating"},
				{"Text": "", "FirstURL": "https://example.org/empty"},
				{"Text": "Switch transformers", "FirstURL": "https://example.org/switch"}
			]
		}`))
	}))
	defer srv.Close()

	tool := NewWebSearchTool(WithSearchAPI(srv.URL + "/"))
	data, err := tool.Execute(context.Background(), Args{"query": "mixture of experts", "max_results": float64(2)})
	require.NoError(t, err)

	results, ok := data.([]WebResult)
	require.True(t, ok)
	require.Len(t, results, 2)
	assert.Equal(t, "Mixture of experts", results[0].Title)
	assert.Equal(t, "Wikipedia", results[0].Source)
	assert.Equal(t, "Sparse gating networks", results[1].Title)
}

func TestWebSearchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	tool := NewWebSearchTool(WithSearchAPI(srv.URL + "/"))
	_, err := tool.Execute(context.Background(), Args{"query": "anything"})
	assert.ErrorContains(t, err, "HTTP 502")
}

func TestIngestPapersArgValidation(t *testing.T) {
	tool := NewIngestPapersTool(nil)

	_, err := tool.Execute(context.Background(), Args{})
	assert.ErrorContains(t, err, "either query or arxiv_ids")

	_, err = tool.Execute(context.Background(), Args{
		"query":     "moe",
		"arxiv_ids": []any{"2301.00001"},
	})
	assert.ErrorContains(t, err, "mutually exclusive")
}
