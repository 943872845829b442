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

	"github.com/BaSui01/paperflow/search"
)

type fakeSearcher struct {
	results []search.Result
	err     error

	gotQuery    string
	gotTopK     int
	gotMode     search.Mode
	gotMinScore float64
}

func (f *fakeSearcher) Search(_ context.Context, query string, topK int, mode search.Mode, minScore float64) ([]search.Result, error) {
	f.gotQuery = query
	f.gotTopK = topK
	f.gotMode = mode
	f.gotMinScore = minScore
	return f.results, f.err
}

func searchMux(h *SearchHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/search", h.HandleSearch)
	return mux
}

func postSearch(t *testing.T, mux *http.ServeMux, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	mux.ServeHTTP(rec, req)
	return rec
}

func TestSearch_Success(t *testing.T) {
	fake := &fakeSearcher{results: []search.Result{
		{ChunkID: "c1", ArxivID: "2301.00001", Title: "Dense Retrieval Revisited", Score: 0.031},
		{ChunkID: "c2", ArxivID: "2301.00002", Title: "Rank Fusion for Question Answering", Score: 0.027},
	}}
	mux := searchMux(NewSearchHandler(fake, zap.NewNop()))

	rec := postSearch(t, mux, `{"query": "reciprocal rank fusion", "top_k": 5, "min_score": 0.2}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	data := envelope.Data.(map[string]any)
	assert.Equal(t, float64(2), data["total"])
	assert.Equal(t, "hybrid", data["search_mode"])
	results := data["results"].([]any)
	require.Len(t, results, 2)
	assert.Equal(t, "c1", results[0].(map[string]any)["chunk_id"])

	assert.Equal(t, "reciprocal rank fusion", fake.gotQuery)
	assert.Equal(t, 5, fake.gotTopK)
	assert.Equal(t, search.ModeHybrid, fake.gotMode)
	assert.Equal(t, 0.2, fake.gotMinScore)
}

func TestSearch_ModeAndTopKDefaults(t *testing.T) {
	fake := &fakeSearcher{}
	mux := searchMux(NewSearchHandler(fake, zap.NewNop()))

	rec := postSearch(t, mux, `{"query": "attention"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, fake.gotTopK)
	assert.Equal(t, search.ModeHybrid, fake.gotMode)

	var envelope Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	data := envelope.Data.(map[string]any)
	assert.Equal(t, []any{}, data["results"])
}

func TestSearch_ExplicitMode(t *testing.T) {
	fake := &fakeSearcher{}
	mux := searchMux(NewSearchHandler(fake, zap.NewNop()))

	rec := postSearch(t, mux, `{"query": "attention", "search_mode": "fulltext"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, search.ModeFulltext, fake.gotMode)
}

func TestSearch_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty query", `{"query": "   "}`},
		{"top_k too large", `{"query": "q", "top_k": 51}`},
		{"negative top_k", `{"query": "q", "top_k": -1}`},
		{"min_score out of range", `{"query": "q", "min_score": 1.5}`},
		{"unknown mode", `{"query": "q", "search_mode": "fuzzy"}`},
		{"malformed body", `{"query": `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeSearcher{}
			mux := searchMux(NewSearchHandler(fake, zap.NewNop()))

			rec := postSearch(t, mux, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, fake.gotQuery)
		})
	}
}

func TestSearch_ServiceError(t *testing.T) {
	fake := &fakeSearcher{err: errors.New("connection refused")}
	mux := searchMux(NewSearchHandler(fake, zap.NewNop()))

	rec := postSearch(t, mux, `{"query": "attention"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var envelope Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.False(t, envelope.Success)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "internal_error", envelope.Error.Code)
}
