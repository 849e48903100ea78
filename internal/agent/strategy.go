package agent

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/rahul/uipilot/internal/llm"
	"github.com/tmc/langchaingo/llms"
)

// strategy dispatches the tool calls of one model response.
type strategy func(ctx context.Context, h *Helper, status *StepStatus, resp []llm.ResponseMessage)

func strategyFor(kind Kind) (strategy, error) {
	switch kind {
	case KindDirection:
		return singleToolStrategy, nil
	case KindVerification:
		return multiToolStrategy, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidObjective, kind)
	}
}

// singleToolStrategy dispatches only the first tool call. Direction
// objectives must observe the screen after every action.
func singleToolStrategy(ctx context.Context, h *Helper, status *StepStatus, resp []llm.ResponseMessage) {
	reasoning, calls := splitResponse(resp)
	if len(calls) == 0 {
		handleNoToolCall(status, reasoning)
		return
	}
	if len(calls) > 1 {
		log.Printf("[Step %d] Ignoring %d extra tool calls", status.Step(), len(calls)-1)
	}
	h.HandleLLMResponse(ctx, status, calls[0], reasoning)
}

// multiToolStrategy dispatches every tool call in order. Calls that follow
// a terminal status report still run; the finished status ignores their
// history.
func multiToolStrategy(ctx context.Context, h *Helper, status *StepStatus, resp []llm.ResponseMessage) {
	reasoning, calls := splitResponse(resp)
	if len(calls) == 0 {
		handleNoToolCall(status, reasoning)
		return
	}
	for i, call := range calls {
		// The reasoning belongs to the turn, so it is recorded once.
		if i > 0 {
			reasoning = ""
		}
		h.HandleLLMResponse(ctx, status, call, reasoning)
	}
}

func handleNoToolCall(status *StepStatus, reasoning string) {
	log.Printf("[Step %d] Model answered without a tool call", status.Step())
	status.AddUncommittedNote(reasoning)
	status.setFlags(true, status.StatusUpdateDue())
}

func splitResponse(resp []llm.ResponseMessage) (string, []llms.ToolCall) {
	var text []string
	var calls []llms.ToolCall
	for _, m := range resp {
		if m.IsToolCall() {
			calls = append(calls, *m.ToolCall)
			continue
		}
		if t := strings.TrimSpace(m.Text); t != "" {
			text = append(text, t)
		}
	}
	return strings.Join(text, "\n"), calls
}
