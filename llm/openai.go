package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// OpenAIConfig configures an OpenAI-compatible chat completions client.
// Z.AI and other OpenAI-compatible gateways only differ in BaseURL, default
// model, and provider name.
type OpenAIConfig struct {
	ProviderName string        `yaml:"provider_name" json:"provider_name"`
	APIKey       string        `yaml:"api_key" json:"api_key"`
	BaseURL      string        `yaml:"base_url" json:"base_url"`
	Model        string        `yaml:"model" json:"model"`
	EndpointPath string        `yaml:"endpoint_path" json:"endpoint_path"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`
}

// DefaultOpenAIConfig returns sensible defaults for the OpenAI API.
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		ProviderName: "openai",
		BaseURL:      "https://api.openai.com",
		Model:        "gpt-4o-mini",
		EndpointPath: "/v1/chat/completions",
		Timeout:      60 * time.Second,
	}
}

// MetricsRecorder receives per-request outcomes. A nil recorder disables
// recording.
type MetricsRecorder interface {
	RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int)
}

// OpenAIClient implements Client against any OpenAI-compatible endpoint.
type OpenAIClient struct {
	cfg     OpenAIConfig
	client  *http.Client
	metrics MetricsRecorder
	logger  *zap.Logger
}

// NewOpenAIClient creates a client from config.
func NewOpenAIClient(cfg OpenAIConfig, logger *zap.Logger) *OpenAIClient {
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/v1/chat/completions"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("component", "llm"), zap.String("provider", cfg.ProviderName)),
	}
}

func (c *OpenAIClient) Name() string  { return c.cfg.ProviderName }
func (c *OpenAIClient) Model() string { return c.cfg.Model }

// SetMetrics attaches a request recorder; call before serving traffic.
func (c *OpenAIClient) SetMetrics(m MetricsRecorder) {
	c.metrics = m
}

func (c *OpenAIClient) modelFor(req *ChatRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return c.cfg.Model
}

// Wire types for the OpenAI chat completions API.

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponseFormat struct {
	Type       string `json:"type"`
	JSONSchema *struct {
		Name   string          `json:"name"`
		Schema json.RawMessage `json:"schema"`
		Strict bool            `json:"strict"`
	} `json:"json_schema,omitempty"`
}

type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	Temperature    float32               `json:"temperature,omitempty"`
	TopP           float32               `json:"top_p,omitempty"`
	Stop           []string              `json:"stop,omitempty"`
	Stream         bool                  `json:"stream,omitempty"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Created int64  `json:"created"`
	Choices []struct {
		Index        int            `json:"index"`
		FinishReason string         `json:"finish_reason"`
		Message      *openAIMessage `json:"message,omitempty"`
		Delta        *openAIMessage `json:"delta,omitempty"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
}

func (c *OpenAIClient) buildBody(req *ChatRequest, stream bool) openAIRequest {
	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}
	msgs := make([]openAIMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openAIMessage{Role: string(m.Role), Content: m.Content})
	}
	body := openAIRequest{
		Model:       model,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.Stop,
		Stream:      stream,
	}
	if req.ResponseFormat != nil {
		rf := &openAIResponseFormat{Type: "json_schema"}
		rf.JSONSchema = &struct {
			Name   string          `json:"name"`
			Schema json.RawMessage `json:"schema"`
			Strict bool            `json:"strict"`
		}{Name: req.ResponseFormat.Name, Schema: req.ResponseFormat.Schema, Strict: req.ResponseFormat.Strict}
		body.ResponseFormat = rf
	}
	return body
}

func (c *OpenAIClient) do(ctx context.Context, body openAIRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.BaseURL, "/")+c.cfg.EndpointPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		code := ErrUpstreamError
		if ctx.Err() == context.DeadlineExceeded {
			code = ErrUpstreamTimeout
		}
		return nil, &Error{
			Code: code, Message: err.Error(),
			HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: c.Name(),
		}
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, mapHTTPError(resp.StatusCode, readErrorMessage(resp.Body), c.Name())
	}
	return resp, nil
}

// Completion performs a non-streaming chat completion.
func (c *OpenAIClient) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	start := time.Now()
	out, err := c.completion(ctx, req)
	if c.metrics != nil {
		if err != nil {
			c.metrics.RecordLLMRequest(c.Name(), c.modelFor(req), "error", time.Since(start), 0, 0)
		} else {
			c.metrics.RecordLLMRequest(c.Name(), c.modelFor(req), "ok", time.Since(start),
				out.Usage.PromptTokens, out.Usage.CompletionTokens)
		}
	}
	return out, err
}

func (c *OpenAIClient) completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	resp, err := c.do(ctx, c.buildBody(req, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var oa openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&oa); err != nil {
		return nil, &Error{
			Code: ErrUpstreamError, Message: err.Error(),
			HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: c.Name(),
		}
	}
	if len(oa.Choices) == 0 || oa.Choices[0].Message == nil {
		return nil, &Error{
			Code: ErrUpstreamError, Message: "empty completion response",
			HTTPStatus: http.StatusBadGateway, Provider: c.Name(),
		}
	}

	out := &ChatResponse{
		ID:       oa.ID,
		Provider: c.Name(),
		Model:    oa.Model,
		Content:  oa.Choices[0].Message.Content,
	}
	if oa.Usage != nil {
		out.Usage = ChatUsage{
			PromptTokens:     oa.Usage.PromptTokens,
			CompletionTokens: oa.Usage.CompletionTokens,
			TotalTokens:      oa.Usage.TotalTokens,
		}
	}
	if oa.Created != 0 {
		out.CreatedAt = time.Unix(oa.Created, 0)
	}
	return out, nil
}

// Stream performs a streaming chat completion via SSE. The recorded duration
// is time to first response; streamed token counts are not reported upstream.
func (c *OpenAIClient) Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error) {
	start := time.Now()
	resp, err := c.do(ctx, c.buildBody(req, true))
	if c.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		c.metrics.RecordLLMRequest(c.Name(), c.modelFor(req), status, time.Since(start), 0, 0)
	}
	if err != nil {
		return nil, err
	}
	return streamSSE(ctx, resp.Body, c.Name()), nil
}

// streamSSE parses an OpenAI-compatible SSE body into a chunk channel. The
// goroutine owns body and always closes both.
func streamSSE(ctx context.Context, body io.ReadCloser, provider string) <-chan StreamChunk {
	ch := make(chan StreamChunk)
	go func() {
		defer body.Close()
		defer close(ch)
		reader := bufio.NewReader(body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err != io.EOF {
					emit(ctx, ch, StreamChunk{Err: &Error{
						Code: ErrUpstreamError, Message: err.Error(),
						HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: provider,
					}})
				}
				return
			}
			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}

			var oa openAIResponse
			if err := json.Unmarshal([]byte(data), &oa); err != nil {
				emit(ctx, ch, StreamChunk{Err: &Error{
					Code: ErrUpstreamError, Message: err.Error(),
					HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: provider,
				}})
				return
			}
			for _, choice := range oa.Choices {
				chunk := StreamChunk{FinishReason: choice.FinishReason}
				if choice.Delta != nil {
					chunk.Delta = choice.Delta.Content
				}
				if oa.Usage != nil {
					chunk.Usage = &ChatUsage{
						PromptTokens:     oa.Usage.PromptTokens,
						CompletionTokens: oa.Usage.CompletionTokens,
						TotalTokens:      oa.Usage.TotalTokens,
					}
				}
				if !emit(ctx, ch, chunk) {
					return
				}
			}
		}
	}()
	return ch
}

func emit(ctx context.Context, ch chan<- StreamChunk, chunk StreamChunk) bool {
	select {
	case <-ctx.Done():
		return false
	case ch <- chunk:
		return true
	}
}

func readErrorMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return ""
	}
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &parsed) == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	return strings.TrimSpace(string(raw))
}

func mapHTTPError(status int, msg, provider string) *Error {
	e := &Error{Message: msg, HTTPStatus: status, Provider: provider}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Code = ErrUnauthorized
	case status == http.StatusTooManyRequests:
		e.Code = ErrRateLimited
		e.Retryable = true
	case status == http.StatusPaymentRequired:
		e.Code = ErrQuotaExceeded
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		e.Code = ErrInvalidRequest
	case status == http.StatusGatewayTimeout:
		e.Code = ErrUpstreamTimeout
		e.Retryable = true
	case status >= 500:
		e.Code = ErrUpstreamError
		e.Retryable = true
	default:
		e.Code = ErrUpstreamError
	}
	return e
}
