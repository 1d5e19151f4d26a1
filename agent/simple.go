package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Menzorg/rugpt/llm"
	"github.com/Menzorg/rugpt/roles"
	"github.com/Menzorg/rugpt/tools"
)

// runSimple is the simple strategy: a direct model call when the role
// has no resolved tools, a bounded tool-use loop otherwise.
func (e *Executor) runSimple(ctx context.Context, log *slog.Logger, model, systemPrompt string, history []llm.Message, resolved []tools.Tool, opts Options) *Result {
	messages := buildMessages(systemPrompt, history)

	if len(resolved) == 0 {
		res, err := e.client.Chat(ctx, llm.Request{
			Model:       model,
			Messages:    messages,
			Temperature: opts.Temperature,
			MaxTokens:   opts.MaxTokens,
		})
		if err != nil {
			log.Error("llm_call_error", "error", err.Error())
			return errorResult(roles.AgentSimple, model, err)
		}
		return &Result{
			Content:      res.Text,
			Model:        model,
			AgentKind:    roles.AgentSimple,
			TokensUsed:   res.Usage.TotalTokens,
			FinishReason: FinishStop,
		}
	}

	return e.runToolLoop(ctx, log, model, messages, resolved, opts)
}

func (e *Executor) runToolLoop(ctx context.Context, log *slog.Logger, model string, messages []llm.Message, resolved []tools.Tool, opts Options) *Result {
	byName := make(map[string]tools.Tool, len(resolved))
	for _, t := range resolved {
		byName[t.Name()] = t
	}
	descriptors := tools.Descriptors(resolved)

	var (
		records    []ToolCallRecord
		tokensUsed int
	)

	for round := 0; round < e.maxToolRounds; round++ {
		res, err := e.client.Chat(ctx, llm.Request{
			Model:       model,
			Messages:    messages,
			Tools:       descriptors,
			Temperature: opts.Temperature,
			MaxTokens:   opts.MaxTokens,
		})
		if err != nil {
			log.Error("llm_call_error", "round", round, "error", err.Error())
			r := errorResult(roles.AgentSimple, model, err)
			r.ToolCalls = records
			r.TokensUsed = tokensUsed
			return r
		}
		tokensUsed += res.Usage.TotalTokens

		if len(res.ToolCalls) == 0 {
			return &Result{
				Content:      res.Text,
				Model:        model,
				AgentKind:    roles.AgentSimple,
				ToolCalls:    records,
				TokensUsed:   tokensUsed,
				FinishReason: FinishStop,
			}
		}

		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   res.Text,
			ToolCalls: res.ToolCalls,
		})

		for _, tc := range res.ToolCalls {
			tool, ok := byName[tc.Name]
			if !ok {
				// The model called a name outside its resolved set.
				// That is a configuration problem for this role, not
				// something another round can repair.
				err := fmt.Errorf("tool %q is not resolved for this role", tc.Name)
				log.Error("tool_unresolved_call", "round", round, "tool", tc.Name)
				r := errorResult(roles.AgentSimple, model, err)
				r.ToolCalls = records
				r.TokensUsed = tokensUsed
				return r
			}

			start := time.Now()
			observation, toolErr := tool.Execute(ctx, tc.Params)
			if toolErr != nil {
				// Surfaced to the model as an observation, not aborted.
				observation = fmt.Sprintf("error: %s", toolErr.Error())
				log.Warn("tool_done", "round", round, "tool", tc.Name, "duration_ms", time.Since(start).Milliseconds(), "error", toolErr.Error())
			} else {
				log.Info("tool_done", "round", round, "tool", tc.Name, "duration_ms", time.Since(start).Milliseconds(), "observation_len", len(observation))
			}

			records = append(records, ToolCallRecord{
				Name:      tc.Name,
				Arguments: tc.Params,
				Result:    observation,
			})
			messages = append(messages, llm.Message{
				Role:     "tool",
				Content:  observation,
				ToolName: tc.Name,
			})
		}
	}

	// Round ceiling reached: force a conclusion without tools.
	log.Warn("tool_rounds_exhausted", "max_rounds", e.maxToolRounds)
	messages = append(messages, llm.Message{
		Role:    "user",
		Content: "Tool budget exhausted. Answer now with what you have; do not call any more tools.",
	})
	res, err := e.client.Chat(ctx, llm.Request{
		Model:       model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		r := errorResult(roles.AgentSimple, model, err)
		r.ToolCalls = records
		r.TokensUsed = tokensUsed
		return r
	}
	return &Result{
		Content:      res.Text,
		Model:        model,
		AgentKind:    roles.AgentSimple,
		ToolCalls:    records,
		TokensUsed:   tokensUsed + res.Usage.TotalTokens,
		FinishReason: FinishStop,
	}
}
