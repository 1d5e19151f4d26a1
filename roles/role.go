package roles

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("role not found")

// AgentKind selects the execution strategy for a role.
type AgentKind string

const (
	AgentSimple     AgentKind = "simple"
	AgentChain      AgentKind = "chain"
	AgentMultiAgent AgentKind = "multi_agent"
)

func ParseAgentKind(s string) (AgentKind, bool) {
	switch AgentKind(strings.TrimSpace(strings.ToLower(s))) {
	case AgentSimple:
		return AgentSimple, true
	case AgentChain:
		return AgentChain, true
	case AgentMultiAgent:
		return AgentMultiAgent, true
	default:
		return "", false
	}
}

// Role is an AI persona owned by an organization. Read-only to the
// execution core; immutable during a single execution.
type Role struct {
	ID          uuid.UUID
	OrgID       uuid.UUID
	Name        string
	Code        string
	Description string

	AgentKind AgentKind
	ModelName string
	ToolNames []string

	// PromptFile points at a file-backed system prompt; FallbackPrompt
	// is the inline text used when the file is absent or unset.
	PromptFile     string
	FallbackPrompt string

	// AgentConfig is opaque here. The chain and multi_agent strategies
	// decode it as an ordered step list or a graph description.
	AgentConfig json.RawMessage

	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*Role, error)
	GetByCode(ctx context.Context, orgID uuid.UUID, code string) (*Role, error)
}
