package embedding

import (
	"context"
	"encoding/json"
)

// OpenAIProvider embeds text via the OpenAI embeddings API (or any
// compatible gateway).
type OpenAIProvider struct {
	baseProvider
}

// NewOpenAIProvider creates an OpenAI-compatible embedding provider.
func NewOpenAIProvider(cfg Config) *OpenAIProvider {
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = 1536
	}
	if cfg.MaxBatch == 0 {
		cfg.MaxBatch = 2048
	}
	return &OpenAIProvider{baseProvider: newBaseProvider(cfg)}
}

type openAIEmbedRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type openAIEmbedResponse struct {
	Model string `json:"model"`
	Data  []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// Embed generates embeddings for the request inputs.
func (p *OpenAIProvider) Embed(ctx context.Context, req *Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	raw, err := p.doRequest(ctx, "/v1/embeddings", openAIEmbedRequest{Input: req.Input, Model: model})
	if err != nil {
		return nil, err
	}

	var or openAIEmbedResponse
	if err := json.Unmarshal(raw, &or); err != nil {
		return nil, err
	}

	embeddings := make([]Data, len(or.Data))
	for i, d := range or.Data {
		embeddings[i] = Data{Index: d.Index, Embedding: d.Embedding}
	}
	return &Response{
		Provider:   p.Name(),
		Model:      or.Model,
		Embeddings: embeddings,
		Usage:      Usage{PromptTokens: or.Usage.PromptTokens, TotalTokens: or.Usage.TotalTokens},
	}, nil
}

// EmbedQuery embeds a single query string.
func (p *OpenAIProvider) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	return p.embedQuery(ctx, query, p.Embed)
}

// EmbedDocuments embeds multiple documents.
func (p *OpenAIProvider) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	return p.embedDocuments(ctx, documents, p.Embed)
}
