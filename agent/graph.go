package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Menzorg/rugpt/llm"
	"github.com/Menzorg/rugpt/roles"
)

// runGraph interprets the role's AgentConfig as a directed graph of
// named nodes over a shared state bag. Edges may be conditional and
// may form cycles; execution ends at the __end__ terminal or when the
// hop ceiling is hit.
func (e *Executor) runGraph(ctx context.Context, log *slog.Logger, role *roles.Role, model, systemPrompt string, history []llm.Message, opts Options) (*Result, error) {
	cfg, err := decodeGraphConfig(role.AgentConfig)
	if err != nil {
		return nil, err
	}
	if len(cfg.Nodes) == 0 || cfg.Entry == "" {
		log.Warn("graph_config_empty")
		return e.runSimple(ctx, log, model, systemPrompt, history, nil, opts), nil
	}

	nodes := make(map[string]graphNode, len(cfg.Nodes))
	for _, n := range cfg.Nodes {
		nodes[n.ID] = n
	}
	edgesFrom := make(map[string][]graphEdge, len(cfg.Edges))
	for _, edge := range cfg.Edges {
		edgesFrom[edge.From] = append(edgesFrom[edge.From], edge)
	}

	userMessages := make([]llm.Message, 0, len(history))
	for _, m := range history {
		if strings.EqualFold(m.Role, "user") {
			userMessages = append(userMessages, m)
		}
	}

	var (
		current       = cfg.Entry
		currentOutput string
		stepOutputs   = make(map[string]string, len(cfg.Nodes))
		tokensUsed    int
	)

	for hop := 0; ; hop++ {
		if hop >= e.maxGraphHops {
			log.Error("graph_hop_ceiling", "hops", hop, "node", current)
			r := errorResult(roles.AgentMultiAgent, model, fmt.Errorf("graph exceeded %d hops without reaching %s", e.maxGraphHops, graphEndNode))
			r.TokensUsed = tokensUsed
			return r, nil
		}

		node := nodes[current]
		history := make([]llm.Message, 0, len(userMessages)+1)
		history = append(history, userMessages...)
		history = append(history, llm.Message{Role: "user", Content: fmt.Sprintf(
			"%s\n\n--- Instruction: %s ---\nRespond based on the context and instruction above.",
			currentOutput, node.Instruction,
		)})
		messages := buildMessages(systemPrompt, history)

		res, err := e.client.Chat(ctx, llm.Request{
			Model:       model,
			Messages:    messages,
			Temperature: opts.Temperature,
			MaxTokens:   opts.MaxTokens,
		})
		if err != nil {
			log.Error("graph_node_error", "node", current, "hop", hop, "error", err.Error())
			r := errorResult(roles.AgentMultiAgent, model, fmt.Errorf("node %s: %w", current, err))
			r.TokensUsed = tokensUsed
			return r, nil
		}
		tokensUsed += res.Usage.TotalTokens
		currentOutput = res.Text
		stepOutputs[current] = currentOutput
		log.Info("graph_node_done", "node", current, "hop", hop)

		next, terminal := nextNode(edgesFrom[current], currentOutput)
		if terminal {
			break
		}
		current = next
	}

	return &Result{
		Content:      currentOutput,
		Model:        model,
		AgentKind:    roles.AgentMultiAgent,
		TokensUsed:   tokensUsed,
		FinishReason: FinishStop,
	}, nil
}

// nextNode picks the outgoing edge: conditional edges are checked in
// declaration order, the first unconditional edge is the default
// route. A node with no matching edge is terminal.
func nextNode(edges []graphEdge, output string) (string, bool) {
	lower := strings.ToLower(output)
	var fallback *graphEdge
	for i := range edges {
		edge := edges[i]
		if edge.WhenContains == "" {
			if fallback == nil {
				fallback = &edges[i]
			}
			continue
		}
		if strings.Contains(lower, strings.ToLower(edge.WhenContains)) {
			if edge.To == graphEndNode {
				return "", true
			}
			return edge.To, false
		}
	}
	if fallback == nil {
		return "", true
	}
	if fallback.To == graphEndNode {
		return "", true
	}
	return fallback.To, false
}
