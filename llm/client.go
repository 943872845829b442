// Package llm provides the unified LLM client interface used by the agent
// workflow, plus an OpenAI-compatible HTTP implementation.
package llm

import "context"

// Client is the capability interface the workflow depends on. Completion and
// Stream produce free-text answers; structured calls go through
// llm/structured, which builds the ResponseFormat on the request.
type Client interface {
	// Completion performs a synchronous chat completion.
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Stream performs a streaming chat completion. The returned channel is
	// closed when the stream ends; it must be drained by a single consumer.
	Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error)

	// Name returns the provider identifier (e.g. "openai", "zai").
	Name() string

	// Model returns the default model this client targets.
	Model() string
}
