// Package agent implements the retrieval-and-answer workflow: a guardrail,
// router, executor, grading, and generation state machine driven by
// schema-constrained LLM decisions.
package agent

import (
	"github.com/BaSui01/paperflow/agent/tools"
	"github.com/BaSui01/paperflow/llm"
)

// Status is the workflow run status.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// node identifies one state of the workflow state machine.
type node string

const (
	nodeGuardrail  node = "guardrail"
	nodeOutOfScope node = "out_of_scope"
	nodeRouter     node = "router"
	nodeExecutor   node = "executor"
	nodeGrading    node = "grade_documents"
	nodeGenerate   node = "generate"
)

// GuardrailScoring is the guardrail's structured verdict on a query.
type GuardrailScoring struct {
	Score     int    `json:"score" jsonschema:"description=Relevance score from 0 to 100,minimum=0,maximum=100"`
	Reasoning string `json:"reasoning" jsonschema:"description=Brief explanation in 1-2 sentences"`
	IsInScope bool   `json:"is_in_scope" jsonschema:"description=True if the score meets the threshold"`
}

// GradingResult is one chunk's structured relevance verdict.
type GradingResult struct {
	ChunkID    string `json:"-"`
	IsRelevant bool   `json:"is_relevant" jsonschema:"description=True if this chunk helps answer the query"`
	Reasoning  string `json:"reasoning" jsonschema:"description=Brief explanation in 1 sentence"`
}

// RouterAction tags the router's decision.
type RouterAction string

const (
	ActionExecuteTools RouterAction = "execute_tools"
	ActionGenerate     RouterAction = "generate"
)

// ToolCall is one tool invocation requested by the router. Arguments arrive
// as a JSON string because strict structured output cannot express free-form
// objects.
type ToolCall struct {
	ToolName     string `json:"tool_name" jsonschema:"description=Name of the tool to call"`
	ToolArgsJSON string `json:"tool_args_json" jsonschema:"description=Tool arguments as a JSON object string"`
}

// RouterDecision is the router's structured choice of next action.
type RouterDecision struct {
	Action    RouterAction `json:"action" jsonschema:"description=Next action,enum=execute_tools|generate"`
	Reasoning string       `json:"reasoning" jsonschema:"description=Why this action was chosen"`
	ToolCalls []ToolCall   `json:"tool_calls" jsonschema:"description=Tools to call when action is execute_tools; empty otherwise"`
}

// ToolExecution is one completed tool call. Immutable once appended to the
// state's tool history.
type ToolExecution struct {
	ToolName      string         `json:"tool_name"`
	ToolArgs      map[string]any `json:"tool_args,omitempty"`
	Success       bool           `json:"success"`
	ResultSummary string         `json:"result_summary,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// State is the mutable workflow state, constructed fresh per query and
// discarded after the run.
type State struct {
	SessionID string

	OriginalQuery  string
	RewrittenQuery string

	Status Status

	Iteration     int
	MaxIterations int

	RetrievalAttempts    int
	MaxRetrievalAttempts int

	GuardrailResult *GuardrailScoring
	RouterDecision  *RouterDecision

	ToolHistory []ToolExecution

	// RelevantChunks is always a subset of RetrievedChunks; grading filters,
	// never adds.
	RetrievedChunks []tools.RetrievedChunk
	RelevantChunks  []tools.RetrievedChunk
	GradingResults  []GradingResult

	ReasoningSteps []string
	Metadata       map[string]any

	History []llm.Message

	Answer string
}

// newState builds the initial state for one run.
func newState(query, sessionID string, history []llm.Message, maxIterations, maxRetrievalAttempts int) *State {
	return &State{
		SessionID:            sessionID,
		OriginalQuery:        query,
		Status:               StatusRunning,
		MaxIterations:        maxIterations,
		MaxRetrievalAttempts: maxRetrievalAttempts,
		Metadata:             make(map[string]any),
		History:              history,
	}
}

// addReasoning appends one entry to the human-readable decision trace.
func (s *State) addReasoning(step string) {
	s.ReasoningSteps = append(s.ReasoningSteps, step)
}

// activeQuery returns the rewritten query when one exists.
func (s *State) activeQuery() string {
	if s.RewrittenQuery != "" {
		return s.RewrittenQuery
	}
	return s.OriginalQuery
}
