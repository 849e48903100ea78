package agent

import "github.com/rahul/uipilot/internal/observability"

// EventLogger receives structured events from the agent loop.
// *observability.Logger satisfies it.
type EventLogger interface {
	ObjectiveStarted(runID, kind, prompt string)
	ObjectiveCompleted(runID, outcome string, steps int, explanation string)
	LLMTrace(runID string, step int, prompt any, response any)
	ToolCall(runID string, step int, tool, args string)
	ToolResult(runID string, step int, executed any, errMsg string)
	PolicyDenied(runID string, step int, tool, reason string)
}

var _ EventLogger = (*observability.Logger)(nil)

type nopEvents struct{}

func (nopEvents) ObjectiveStarted(string, string, string)        {}
func (nopEvents) ObjectiveCompleted(string, string, int, string) {}
func (nopEvents) LLMTrace(string, int, any, any)                 {}
func (nopEvents) ToolCall(string, int, string, string)           {}
func (nopEvents) ToolResult(string, int, any, string)            {}
func (nopEvents) PolicyDenied(string, int, string, string)       {}
