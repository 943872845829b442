// Package embedding provides the embedding provider interface and HTTP
// implementations for Jina and OpenAI-compatible APIs.
package embedding

import (
	"context"
	"time"
)

// Request asks a provider to embed one or more inputs.
type Request struct {
	Input     []string  `json:"input"`
	Model     string    `json:"model,omitempty"`
	InputType InputType `json:"input_type,omitempty"`
}

// InputType hints the provider about retrieval-side optimization.
type InputType string

const (
	InputTypeQuery    InputType = "query"
	InputTypeDocument InputType = "document"
)

// Response carries the embeddings for a Request, index-aligned with Input.
type Response struct {
	Provider   string  `json:"provider"`
	Model      string  `json:"model"`
	Embeddings []Data  `json:"embeddings"`
	Usage      Usage   `json:"usage"`
}

// Data is a single embedding result.
type Data struct {
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

// Usage reports token accounting for an embedding request.
type Usage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Provider is the unified embedding interface. Vectors are fixed-length per
// provider; Dimensions reports the length callers can rely on.
type Provider interface {
	Embed(ctx context.Context, req *Request) (*Response, error)

	// EmbedQuery embeds a single search query.
	EmbedQuery(ctx context.Context, query string) ([]float64, error)

	// EmbedDocuments embeds a batch of documents for indexing.
	EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error)

	Name() string
	Dimensions() int
	MaxBatchSize() int
}

// Config holds the shared configuration for HTTP providers.
type Config struct {
	Name       string        `yaml:"name" json:"name"`
	BaseURL    string        `yaml:"base_url" json:"base_url"`
	APIKey     string        `yaml:"api_key" json:"api_key"`
	Model      string        `yaml:"model" json:"model"`
	Dimensions int           `yaml:"dimensions" json:"dimensions"`
	MaxBatch   int           `yaml:"max_batch" json:"max_batch"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
}
