package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kryten-bot/kryten/pkg/kryten/llm"
)

// maxToolRounds bounds how many times the model may be invoked for one
// incoming message.
const maxToolRounds = 5

// ErrRoundBudget is returned when the model keeps requesting tools past
// the round limit.
var ErrRoundBudget = errors.New("tool round budget exhausted")

// ModelBackend is the model-facing surface the agent needs.
type ModelBackend interface {
	Invoke(ctx context.Context, system string, tools []llm.Tool, messages []llm.Message) (*llm.Response, error)
}

// AgentResult is the outcome of one agent run.
type AgentResult struct {
	// Reply is the final text, never empty.
	Reply string

	// Usage is the token total across all rounds of the run.
	Usage llm.Usage
}

// AgentRun drives the tool-calling loop for one incoming message: invoke
// the model, execute any requested tools, feed the results back, and
// repeat until the model stops asking. Intermediate tool turns are
// appended only to the local copy of messages, never to stored history.
func AgentRun(ctx context.Context, backend ModelBackend, tools *ToolExecutor, system string, messages []llm.Message, inv Invocation, logger *slog.Logger) (*AgentResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	catalog := tools.Catalog()

	var usage llm.Usage
	for round := 0; round < maxToolRounds; round++ {
		resp, err := backend.Invoke(ctx, system, catalog, messages)
		if err != nil {
			return nil, fmt.Errorf("model invocation: %w", err)
		}
		usage.Add(resp.Usage)

		if resp.StopReason == llm.StopToolUse {
			var results []llm.ContentBlock
			for _, use := range resp.ToolUses() {
				out := tools.Execute(ctx, use.Name, use.Input, inv)
				results = append(results, llm.ContentBlock{
					Type:      "tool_result",
					ToolUseID: use.ID,
					Content:   out,
				})
			}
			messages = append(messages,
				llm.Message{Role: "assistant", Content: resp.Content},
				llm.Message{Role: "user", Content: results},
			)
			continue
		}

		reply := resp.Text()
		if reply == "" {
			reply = "(Kryten had nothing to say, Sir.)"
		}
		logger.Debug("agent run complete",
			"rounds", round+1,
			"input_tokens", usage.InputTokens,
			"output_tokens", usage.OutputTokens)
		return &AgentResult{Reply: reply, Usage: usage}, nil
	}

	return &AgentResult{Usage: usage}, ErrRoundBudget
}
