package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Menzorg/rugpt/llm"
	"github.com/Menzorg/rugpt/roles"
)

// runChain executes the ordered step list from the role's AgentConfig.
// Each step's output is folded into the next step's context; a failing
// step aborts the chain without executing later steps.
func (e *Executor) runChain(ctx context.Context, log *slog.Logger, role *roles.Role, model, systemPrompt string, history []llm.Message, opts Options) (*Result, error) {
	cfg, err := decodeChainConfig(role.AgentConfig)
	if err != nil {
		return nil, err
	}
	if len(cfg.Steps) == 0 {
		log.Warn("chain_steps_empty")
		return e.runSimple(ctx, log, model, systemPrompt, history, nil, opts), nil
	}

	accumulated := fmt.Sprintf("User question: %s\n", lastUserContent(history))
	var (
		lastOutput string
		tokensUsed int
	)

	for i, step := range cfg.Steps {
		outputKey := step.OutputKey
		if outputKey == "" {
			outputKey = fmt.Sprintf("step_%d", i+1)
		}

		messages := buildMessages(systemPrompt, []llm.Message{
			{Role: "user", Content: fmt.Sprintf(
				"%s\n--- Step %d/%d: %s ---\nRespond to the instruction above based on the context.",
				accumulated, i+1, len(cfg.Steps), step.Instruction,
			)},
		})

		res, err := e.client.Chat(ctx, llm.Request{
			Model:       model,
			Messages:    messages,
			Temperature: opts.Temperature,
			MaxTokens:   opts.MaxTokens,
		})
		if err != nil {
			log.Error("chain_step_error", "step", i+1, "steps", len(cfg.Steps), "error", err.Error())
			r := errorResult(roles.AgentChain, model, fmt.Errorf("step %d: %w", i+1, err))
			r.TokensUsed = tokensUsed
			return r, nil
		}
		tokensUsed += res.Usage.TotalTokens
		lastOutput = res.Text
		accumulated += fmt.Sprintf("\n[%s]: %s\n", outputKey, lastOutput)
		log.Info("chain_step_done", "step", i+1, "steps", len(cfg.Steps), "output_key", outputKey)
	}

	return &Result{
		Content:      lastOutput,
		Model:        model,
		AgentKind:    roles.AgentChain,
		TokensUsed:   tokensUsed,
		FinishReason: FinishStop,
	}, nil
}
