package agent

import (
	"context"
	"log/slog"
	"strings"

	"github.com/Menzorg/rugpt/internal/metrics"
	"github.com/Menzorg/rugpt/llm"
	"github.com/Menzorg/rugpt/roles"
	"github.com/Menzorg/rugpt/tools"
)

type Option func(*Executor)

func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.log = l
		}
	}
}

func WithMaxToolRounds(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxToolRounds = n
		}
	}
}

func WithMaxGraphHops(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxGraphHops = n
		}
	}
}

// Options carry per-invocation sampling parameters.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// Executor routes a role to its execution strategy and produces a
// Result. Called synchronously by the chat-mention workflow and by the
// scheduler; same contract for both.
type Executor struct {
	client       llm.Client
	prompts      *roles.PromptCache
	registry     *tools.Registry
	defaultModel string

	maxToolRounds int
	maxGraphHops  int
	log           *slog.Logger
}

func NewExecutor(client llm.Client, prompts *roles.PromptCache, registry *tools.Registry, defaultModel string, opts ...Option) *Executor {
	e := &Executor{
		client:        client,
		prompts:       prompts,
		registry:      registry,
		defaultModel:  defaultModel,
		maxToolRounds: 8,
		maxGraphHops:  20,
		log:           slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Execute runs the role's agent over the conversation. LLM and tool
// failures are encoded in the Result; the returned error is reserved
// for contract violations (malformed chain/graph config).
func (e *Executor) Execute(ctx context.Context, role *roles.Role, messages []llm.Message, opts Options) (*Result, error) {
	model := strings.TrimSpace(role.ModelName)
	if model == "" {
		model = e.defaultModel
	}
	systemPrompt := e.prompts.Resolve(role)
	resolved := e.registry.Resolve(role.ToolNames)

	log := e.log.With("role", role.Code, "agent_kind", string(role.AgentKind), "model", model)
	log.Info("execute_start", "messages", len(messages), "tools", len(resolved))

	var (
		res *Result
		err error
	)
	switch role.AgentKind {
	case roles.AgentSimple:
		res = e.runSimple(ctx, log, model, systemPrompt, messages, resolved, opts)
	case roles.AgentChain:
		res, err = e.runChain(ctx, log, role, model, systemPrompt, messages, opts)
	case roles.AgentMultiAgent:
		res, err = e.runGraph(ctx, log, role, model, systemPrompt, messages, opts)
	default:
		log.Warn("unknown_agent_kind", "kind", string(role.AgentKind))
		res = e.runSimple(ctx, log, model, systemPrompt, messages, nil, opts)
	}
	if err != nil {
		return nil, err
	}

	metrics.RecordAgentRun(string(role.AgentKind), string(res.FinishReason))
	metrics.RecordLLMTokens(model, res.TokensUsed)
	if res.FinishReason == FinishStop {
		log.Info("execute_done", "tokens", res.TokensUsed, "tool_calls", len(res.ToolCalls))
	} else {
		log.Warn("execute_failed", "finish_reason", string(res.FinishReason), "error", res.Error)
	}
	return res, nil
}

// buildMessages prepends the system prompt and drops stray system
// messages from history.
func buildMessages(systemPrompt string, history []llm.Message) []llm.Message {
	out := make([]llm.Message, 0, len(history)+1)
	if strings.TrimSpace(systemPrompt) != "" {
		out = append(out, llm.Message{Role: "system", Content: systemPrompt})
	}
	for _, m := range history {
		if strings.EqualFold(strings.TrimSpace(m.Role), "system") {
			continue
		}
		if strings.TrimSpace(m.Content) == "" && len(m.ToolCalls) == 0 {
			continue
		}
		out = append(out, m)
	}
	return out
}

// lastUserContent extracts the user's question from history, matching
// how the chain and graph strategies seed their context.
func lastUserContent(history []llm.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if strings.EqualFold(history[i].Role, "user") {
			return history[i].Content
		}
	}
	return ""
}
