// Package tools implements the agent's capability interface: a registry of
// named tools the router can dispatch, each declaring a JSON schema and
// executing to a uniform result envelope.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

// Result is the uniform envelope every tool execution produces.
type Result struct {
	Success  bool   `json:"success"`
	Data     any    `json:"data,omitempty"`
	Error    string `json:"error,omitempty"`
	ToolName string `json:"tool_name"`
}

// Schema describes one tool to the LLM router.
type Schema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Args is the decoded JSON argument object for one tool call.
type Args map[string]any

// String returns the named string argument, or def when absent.
func (a Args) String(key, def string) string {
	if v, ok := a[key].(string); ok && v != "" {
		return v
	}
	return def
}

// Int returns the named integer argument, or def when absent. JSON numbers
// decode as float64, so both forms are accepted.
func (a Args) Int(key string, def int) int {
	switch v := a[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}

// StringSlice returns the named string-array argument, or nil when absent.
func (a Args) StringSlice(key string) []string {
	raw, ok := a[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Tool is one agent capability. Execute returns the tool's payload or an
// error; the registry converts either into a Result.
type Tool interface {
	Name() string
	Description() string
	ParametersSchema() map[string]any
	Execute(ctx context.Context, args Args) (any, error)
}

// MetricsRecorder receives per-execution outcomes. A nil recorder disables
// recording.
type MetricsRecorder interface {
	RecordToolExecution(tool, status string, duration time.Duration)
}

// Registry maps tool names to implementations and owns the execution
// boundary: unknown names, tool errors, panics, and timeouts all come back as
// failed Results, never as errors the workflow has to unwind from.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	timeout time.Duration
	metrics MetricsRecorder
	logger  *zap.Logger
}

// NewRegistry creates a registry. timeout bounds each execution; zero means
// 30 seconds.
func NewRegistry(timeout time.Duration, logger *zap.Logger) *Registry {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		tools:   make(map[string]Tool),
		timeout: timeout,
		logger:  logger.With(zap.String("component", "tool_registry")),
	}
}

// SetMetrics attaches an execution recorder; call before serving traffic.
func (r *Registry) SetMetrics(m MetricsRecorder) {
	r.metrics = m
}

// Register adds a tool. Duplicate names are an error.
func (r *Registry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := tool.Name()
	if name == "" {
		return fmt.Errorf("tool has empty name")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = tool
	r.logger.Info("tool registered", zap.String("tool", name))
	return nil
}

// MustRegister registers tools and panics on conflict; for wiring at startup.
func (r *Registry) MustRegister(tools ...Tool) {
	for _, tool := range tools {
		if err := r.Register(tool); err != nil {
			panic(err)
		}
	}
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Names lists registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schemas returns LLM-facing schemas for all tools, sorted by name.
func (r *Registry) Schemas() []Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	schemas := make([]Schema, 0, len(r.tools))
	for _, tool := range r.tools {
		schemas = append(schemas, Schema{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.ParametersSchema(),
		})
	}
	sort.Slice(schemas, func(i, j int) bool { return schemas[i].Name < schemas[j].Name })
	return schemas
}

// Execute runs the named tool. It never returns an error: unknown tools,
// panics, tool errors, and timeouts are all reported through the Result.
func (r *Registry) Execute(ctx context.Context, name string, args Args) Result {
	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return Result{Success: false, Error: fmt.Sprintf("tool %q not found", name), ToolName: name}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	data, err := r.executeSafe(ctx, tool, args)
	elapsed := time.Since(start)

	if r.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		r.metrics.RecordToolExecution(name, status, elapsed)
	}

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("tool execution timed out after %s: %w", r.timeout, err)
		}
		r.logger.Warn("tool execution failed",
			zap.String("tool", name),
			zap.Duration("duration", elapsed),
			zap.Error(err),
		)
		return Result{Success: false, Error: err.Error(), ToolName: name}
	}

	r.logger.Debug("tool executed",
		zap.String("tool", name),
		zap.Duration("duration", elapsed),
	)
	return Result{Success: true, Data: data, ToolName: name}
}

// truncate cuts s to at most limit bytes, backing up to the previous rune
// boundary so tool payloads never carry a split UTF-8 sequence.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit] + "..."
}

func (r *Registry) executeSafe(ctx context.Context, tool Tool, args Args) (data any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			data = nil
			err = fmt.Errorf("tool panicked: %v", rec)
		}
	}()
	return tool.Execute(ctx, args)
}
