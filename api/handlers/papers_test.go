package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/paperflow/ingest"
	"github.com/BaSui01/paperflow/store"
)

type fakePaperStore struct {
	papers []store.Paper
}

func (f *fakePaperStore) List(_ context.Context, limit, offset int) ([]store.Paper, int64, error) {
	return f.papers, int64(len(f.papers)), nil
}

func (f *fakePaperStore) GetByArxivID(_ context.Context, arxivID string) (*store.Paper, error) {
	for i := range f.papers {
		if f.papers[i].ArxivID == arxivID {
			return &f.papers[i], nil
		}
	}
	return nil, nil
}

type fakeIngester struct {
	result    *ingest.Result
	err       error
	lastQuery string
	lastIDs   []string
}

func (f *fakeIngester) IngestQuery(_ context.Context, query string, maxResults int) (*ingest.Result, error) {
	f.lastQuery = query
	return f.result, f.err
}

func (f *fakeIngester) IngestByID(_ context.Context, arxivIDs []string) (*ingest.Result, error) {
	f.lastIDs = arxivIDs
	return f.result, f.err
}

func paperMux(h *PaperHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/papers", h.HandleList)
	mux.HandleFunc("GET /api/v1/papers/{arxiv_id}", h.HandleGet)
	mux.HandleFunc("POST /api/v1/papers/ingest", h.HandleIngest)
	return mux
}

func TestPapers_List(t *testing.T) {
	fake := &fakePaperStore{papers: []store.Paper{
		{ArxivID: "2301.00001", Title: "Dense Retrieval Revisited", Authors: store.StringSlice{"A. Author"}},
		{ArxivID: "2301.00002", Title: "Rank Fusion for Question Answering"},
	}}
	mux := paperMux(NewPaperHandler(fake, nil, zap.NewNop()))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/papers?limit=10", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	data := envelope.Data.(map[string]any)
	assert.Equal(t, float64(2), data["total_count"])
	papers := data["papers"].([]any)
	require.Len(t, papers, 2)
	assert.Equal(t, "Dense Retrieval Revisited", papers[0].(map[string]any)["title"])
}

func TestPapers_GetNotFound(t *testing.T) {
	mux := paperMux(NewPaperHandler(&fakePaperStore{}, nil, zap.NewNop()))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/papers/2301.99999", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPapers_IngestByQuery(t *testing.T) {
	ingester := &fakeIngester{result: &ingest.Result{PapersFetched: 2, PapersProcessed: 2, ChunksCreated: 6}}
	mux := paperMux(NewPaperHandler(&fakePaperStore{}, ingester, zap.NewNop()))

	body := `{"query": "retrieval augmented generation", "max_results": 2}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/papers/ingest", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "retrieval augmented generation", ingester.lastQuery)

	var envelope Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	data := envelope.Data.(map[string]any)
	assert.Equal(t, float64(6), data["chunks_created"])
}

func TestPapers_IngestValidation(t *testing.T) {
	mux := paperMux(NewPaperHandler(&fakePaperStore{}, &fakeIngester{}, zap.NewNop()))

	cases := []string{
		`{}`,
		`{"query": "q", "arxiv_ids": ["2301.00001"]}`,
	}
	for _, body := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/papers/ingest", strings.NewReader(body))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestPapers_IngestDisabled(t *testing.T) {
	mux := paperMux(NewPaperHandler(&fakePaperStore{}, nil, zap.NewNop()))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/papers/ingest", strings.NewReader(`{"query": "q"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPapers_IngestFailure(t *testing.T) {
	ingester := &fakeIngester{err: errors.New("arxiv unreachable")}
	mux := paperMux(NewPaperHandler(&fakePaperStore{}, ingester, zap.NewNop()))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/papers/ingest", strings.NewReader(`{"arxiv_ids": ["2301.00001"]}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
