package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/Menzorg/rugpt/roles"
)

type FinishReason string

const (
	FinishStop    FinishReason = "stop"
	FinishError   FinishReason = "error"
	FinishTimeout FinishReason = "timeout"
)

// ToolCallRecord captures one tool invocation made during a run.
type ToolCallRecord struct {
	Name      string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Result    string         `json:"result,omitempty"`
}

// Result is the unified outcome of one agent execution, produced fresh
// per invocation and never mutated after return. Ordinary LLM failures
// are encoded here, never raised across the executor boundary.
type Result struct {
	Content      string           `json:"content"`
	Model        string           `json:"model"`
	AgentKind    roles.AgentKind  `json:"agent_kind"`
	ToolCalls    []ToolCallRecord `json:"tool_calls,omitempty"`
	TokensUsed   int              `json:"tokens_used"`
	FinishReason FinishReason     `json:"finish_reason"`
	Error        string           `json:"error,omitempty"`
}

func errorResult(kind roles.AgentKind, model string, err error) *Result {
	reason := FinishError
	if errors.Is(err, context.DeadlineExceeded) {
		reason = FinishTimeout
	}
	return &Result{
		Content:      fmt.Sprintf("[Error: %v]", err),
		Model:        model,
		AgentKind:    kind,
		FinishReason: reason,
		Error:        err.Error(),
	}
}
