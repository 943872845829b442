package embedding

import (
	"context"
	"encoding/json"
)

// JinaProvider embeds text via the Jina AI API.
type JinaProvider struct {
	baseProvider
}

// NewJinaProvider creates a Jina embedding provider.
func NewJinaProvider(cfg Config) *JinaProvider {
	if cfg.Name == "" {
		cfg.Name = "jina"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.jina.ai"
	}
	if cfg.Model == "" {
		cfg.Model = "jina-embeddings-v3"
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = 1024
	}
	if cfg.MaxBatch == 0 {
		cfg.MaxBatch = 2048
	}
	return &JinaProvider{baseProvider: newBaseProvider(cfg)}
}

type jinaEmbedRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
	Task  string   `json:"task,omitempty"`
}

type jinaEmbedResponse struct {
	Model string `json:"model"`
	Data  []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Usage struct {
		TotalTokens  int `json:"total_tokens"`
		PromptTokens int `json:"prompt_tokens"`
	} `json:"usage"`
}

// Embed generates embeddings for the request inputs.
func (p *JinaProvider) Embed(ctx context.Context, req *Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	body := jinaEmbedRequest{Input: req.Input, Model: model}
	switch req.InputType {
	case InputTypeQuery:
		body.Task = "retrieval.query"
	case InputTypeDocument:
		body.Task = "retrieval.passage"
	}

	raw, err := p.doRequest(ctx, "/v1/embeddings", body)
	if err != nil {
		return nil, err
	}

	var jr jinaEmbedResponse
	if err := json.Unmarshal(raw, &jr); err != nil {
		return nil, err
	}

	embeddings := make([]Data, len(jr.Data))
	for i, d := range jr.Data {
		embeddings[i] = Data{Index: d.Index, Embedding: d.Embedding}
	}
	return &Response{
		Provider:   p.Name(),
		Model:      jr.Model,
		Embeddings: embeddings,
		Usage:      Usage{PromptTokens: jr.Usage.PromptTokens, TotalTokens: jr.Usage.TotalTokens},
	}, nil
}

// EmbedQuery embeds a single query string.
func (p *JinaProvider) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	return p.embedQuery(ctx, query, p.Embed)
}

// EmbedDocuments embeds multiple documents.
func (p *JinaProvider) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	return p.embedDocuments(ctx, documents, p.Embed)
}
