package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidAgentConfig marks a contract violation in a role's
// AgentConfig. Unlike LLM failures it is returned eagerly.
var ErrInvalidAgentConfig = errors.New("invalid agent config")

type chainStep struct {
	Instruction string `json:"instruction"`
	OutputKey   string `json:"output_key,omitempty"`
}

type chainConfig struct {
	Steps []chainStep `json:"steps"`
}

func decodeChainConfig(raw json.RawMessage) (*chainConfig, error) {
	if len(raw) == 0 {
		return &chainConfig{}, nil
	}
	var cfg chainConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAgentConfig, err)
	}
	return &cfg, nil
}

type graphNode struct {
	ID          string `json:"id"`
	Instruction string `json:"instruction"`
}

type graphEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
	// WhenContains makes the edge conditional: it is taken only when
	// the source node's output contains this text (case-insensitive).
	// Edges without a condition act as the default route.
	WhenContains string `json:"when_contains,omitempty"`
}

type graphConfig struct {
	Nodes []graphNode `json:"nodes"`
	Edges []graphEdge `json:"edges"`
	Entry string      `json:"entry"`
}

// graphEndNode is the designated terminal in graph edge targets.
const graphEndNode = "__end__"

type graphPayload struct {
	Graph graphConfig `json:"graph"`
}

func decodeGraphConfig(raw json.RawMessage) (*graphConfig, error) {
	if len(raw) == 0 {
		return &graphConfig{}, nil
	}
	var payload graphPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAgentConfig, err)
	}
	cfg := payload.Graph
	if len(cfg.Nodes) == 0 {
		return &cfg, nil
	}

	ids := make(map[string]bool, len(cfg.Nodes))
	for _, n := range cfg.Nodes {
		id := strings.TrimSpace(n.ID)
		if id == "" {
			return nil, fmt.Errorf("%w: graph node without id", ErrInvalidAgentConfig)
		}
		if ids[id] {
			return nil, fmt.Errorf("%w: duplicate graph node %q", ErrInvalidAgentConfig, id)
		}
		ids[id] = true
	}
	if !ids[cfg.Entry] {
		return nil, fmt.Errorf("%w: graph entry %q is not a node", ErrInvalidAgentConfig, cfg.Entry)
	}
	for _, e := range cfg.Edges {
		if !ids[e.From] {
			return nil, fmt.Errorf("%w: edge from unknown node %q", ErrInvalidAgentConfig, e.From)
		}
		if e.To != graphEndNode && !ids[e.To] {
			return nil, fmt.Errorf("%w: edge to unknown node %q", ErrInvalidAgentConfig, e.To)
		}
	}
	return &cfg, nil
}
