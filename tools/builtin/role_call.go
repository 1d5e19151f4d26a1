package builtin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Menzorg/rugpt/agent"
	"github.com/Menzorg/rugpt/llm"
	"github.com/Menzorg/rugpt/roles"
)

// maxDelegationDepth bounds nested role-to-role calls so two roles
// that delegate to each other cannot recurse without end.
const maxDelegationDepth = 2

// RoleExecutor is the slice of the agent executor role_call needs.
type RoleExecutor interface {
	Execute(ctx context.Context, role *roles.Role, messages []llm.Message, opts agent.Options) (*agent.Result, error)
}

// RoleCallTool delegates a question to another role of the same
// organization and returns that role's answer as the observation.
type RoleCallTool struct {
	Roles    roles.Store
	Executor RoleExecutor
}

func NewRoleCallTool(store roles.Store, exec RoleExecutor) *RoleCallTool {
	return &RoleCallTool{Roles: store, Executor: exec}
}

func (t *RoleCallTool) Name() string { return "role_call" }

func (t *RoleCallTool) Description() string {
	return "Ask another role of your organization a question and get its answer. Use the role's code, e.g. lawyer or accountant."
}

func (t *RoleCallTool) ParameterSchema() string {
	s := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"role_code": map[string]any{
				"type":        "string",
				"description": "Code of the role to consult.",
			},
			"message": map[string]any{
				"type":        "string",
				"description": "The question to ask that role.",
			},
		},
		"required": []string{"role_code", "message"},
	}
	b, _ := json.MarshalIndent(s, "", "  ")
	return string(b)
}

func (t *RoleCallTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	inv, ok := InvocationFrom(ctx)
	if !ok {
		return "", fmt.Errorf("role_call requires an invocation context")
	}
	if inv.Depth >= maxDelegationDepth {
		return "", fmt.Errorf("delegation depth limit reached (%d)", maxDelegationDepth)
	}

	code := paramString(params, "role_code")
	message := paramString(params, "message")
	if code == "" || message == "" {
		return "", fmt.Errorf("role_code and message are required")
	}

	target, err := t.Roles.GetByCode(ctx, inv.OrgID, code)
	if err != nil {
		if errors.Is(err, roles.ErrNotFound) {
			return "", fmt.Errorf("no role with code %q in this organization", code)
		}
		return "", err
	}
	if !target.IsActive {
		return "", fmt.Errorf("role %q is inactive", code)
	}
	if target.ID == inv.RoleID {
		return "", fmt.Errorf("a role cannot delegate to itself")
	}

	childCtx := WithInvocation(ctx, Invocation{
		RoleID: target.ID,
		OrgID:  inv.OrgID,
		UserID: inv.UserID,
		Depth:  inv.Depth + 1,
	})
	res, err := t.Executor.Execute(childCtx, target, []llm.Message{{Role: "user", Content: message}}, agent.Options{})
	if err != nil {
		return "", err
	}
	if res.FinishReason != agent.FinishStop {
		return "", fmt.Errorf("role %q failed to answer: %s", code, res.Error)
	}
	return res.Content, nil
}
