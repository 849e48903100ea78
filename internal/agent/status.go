package agent

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rahul/uipilot/internal/device"
)

// State is the lifecycle position of a StepStatus.
type State string

const (
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// HistoryPolicy bounds the history view sent to the model.
// A zero Limit or MaxAge disables that bound.
type HistoryPolicy struct {
	Limit  int
	MaxAge time.Duration
}

// ExecutedTool is a primitive tool that actually ran on the device.
type ExecutedTool struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

func executedFromAction(a device.Action) ExecutedTool {
	et := ExecutedTool{Name: string(a.Type)}
	data, err := json.Marshal(a)
	if err != nil {
		return et
	}
	var args map[string]any
	if json.Unmarshal(data, &args) == nil {
		delete(args, "type")
		if len(args) > 0 {
			et.Args = args
		}
	}
	return et
}

// ToolExecutionError carries the message of a failed call and, when known,
// the tool that failed.
type ToolExecutionError struct {
	Tool    *ExecutedTool `json:"tool,omitempty"`
	Message string        `json:"message"`
}

func (e *ToolExecutionError) Error() string {
	if e.Tool != nil {
		return e.Tool.Name + ": " + e.Message
	}
	return e.Message
}

// ToolExecutionResult is either success or a reported error.
type ToolExecutionResult struct {
	Err *ToolExecutionError `json:"error,omitempty"`
}

func Success() ToolExecutionResult {
	return ToolExecutionResult{}
}

func Failure(tool *ExecutedTool, message string) ToolExecutionResult {
	return ToolExecutionResult{Err: &ToolExecutionError{Tool: tool, Message: message}}
}

func (r ToolExecutionResult) OK() bool {
	return r.Err == nil
}

// ToolCallResolution is what one model tool call turned into.
type ToolCallResolution struct {
	Result   ToolExecutionResult
	Executed []ExecutedTool
}

// HistoryEntry is one turn of the agent loop.
type HistoryEntry struct {
	Step      int                 `json:"step"`
	Reasoning string              `json:"reasoning,omitempty"`
	Executed  []ExecutedTool      `json:"executed,omitempty"`
	Result    ToolExecutionResult `json:"result"`
	// Uncommitted marks a turn where the model answered without calling a tool.
	Uncommitted bool `json:"uncommitted,omitempty"`
	// Note is context added by the engine rather than the model.
	Note      string    `json:"note,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StepStatus tracks one objective through the agent loop. Completed and
// failed are terminal: once reached, only reads are honored.
type StepStatus struct {
	mu sync.RWMutex

	runID     string
	objective Objective
	createdAt time.Time
	policy    HistoryPolicy
	now       func() time.Time

	step        int
	state       State
	explanation string
	snapshot    device.Snapshot
	history     []HistoryEntry

	forceToolCall   bool
	statusUpdateDue bool
}

func NewStepStatus(runID string, obj Objective, policy HistoryPolicy) *StepStatus {
	return newStepStatus(runID, obj, policy, time.Now)
}

func newStepStatus(runID string, obj Objective, policy HistoryPolicy, now func() time.Time) *StepStatus {
	if now == nil {
		now = time.Now
	}
	return &StepStatus{
		runID:     runID,
		objective: obj,
		createdAt: now(),
		policy:    policy,
		now:       now,
		state:     StateInProgress,
	}
}

func (s *StepStatus) RunID() string        { return s.runID }
func (s *StepStatus) Objective() Objective { return s.objective }
func (s *StepStatus) CreatedAt() time.Time { return s.createdAt }

func (s *StepStatus) Step() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.step
}

func (s *StepStatus) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *StepStatus) Explanation() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.explanation
}

func (s *StepStatus) IsFinished() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.finished()
}

func (s *StepStatus) finished() bool {
	return s.state == StateCompleted || s.state == StateFailed
}

// PrepareNextStep advances the step counter and drops the previous step's
// snapshot. The force and status-due flags carry over: they describe what
// the next request must ask for. It is a no-op once finished.
func (s *StepStatus) PrepareNextStep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished() {
		return
	}
	s.step++
	s.snapshot = device.Snapshot{}
}

func (s *StepStatus) Snapshot() device.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

func (s *StepStatus) SetSnapshot(snap device.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished() {
		return
	}
	s.snapshot = snap
}

// ForceToolCall reports whether the next request must demand a tool call.
func (s *StepStatus) ForceToolCall() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.forceToolCall
}

// StatusUpdateDue reports whether an action just ran and the model should
// report the objective's status next.
func (s *StepStatus) StatusUpdateDue() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statusUpdateDue
}

func (s *StepStatus) setFlags(force, statusDue bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished() {
		return
	}
	s.forceToolCall = force
	s.statusUpdateDue = statusDue
}

// AddCompletedToolCallToChatHistory records a dispatched tool call.
func (s *StepStatus) AddCompletedToolCallToChatHistory(reasoning string, executed []ExecutedTool, result ToolExecutionResult) {
	s.append(HistoryEntry{
		Reasoning: reasoning,
		Executed:  executed,
		Result:    result,
	})
}

// AddUncommittedNote records a model turn that called no tool.
func (s *StepStatus) AddUncommittedNote(reasoning string) {
	if reasoning == "" {
		reasoning = "(empty response)"
	}
	s.append(HistoryEntry{
		Reasoning:   reasoning,
		Uncommitted: true,
		Result:      Failure(nil, "no tool was called"),
	})
}

// AddNote records engine-provided context for the model.
func (s *StepStatus) AddNote(note string) {
	s.append(HistoryEntry{Note: note, Result: Success()})
}

func (s *StepStatus) append(e HistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished() {
		return
	}
	e.Step = s.step
	e.Timestamp = s.now()
	s.history = append(s.history, e)
}

// restore seeds the history of a fresh status from a previous attempt.
// Entries are restamped so the age limit counts from the restore.
func (s *StepStatus) restore(entries []HistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, e := range entries {
		e.Timestamp = now
		s.history = append(s.history, e)
	}
}

func (s *StepStatus) MarkAsComplete(explanation string) {
	s.transition(StateCompleted, explanation)
}

func (s *StepStatus) MarkAsFailed(explanation string) {
	s.transition(StateFailed, explanation)
}

func (s *StepStatus) MarkAsInProgress(explanation string) {
	s.transition(StateInProgress, explanation)
}

func (s *StepStatus) transition(to State, explanation string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished() {
		return
	}
	s.state = to
	s.explanation = explanation
}

// History returns a copy of every recorded entry.
func (s *StepStatus) History() []HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}

// LimitedHistory returns the newest entries allowed by the history policy,
// oldest first. Calling it does not change the stored history.
func (s *StepStatus) LimitedHistory() []HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := 0
	if s.policy.Limit > 0 && len(s.history) > s.policy.Limit {
		start = len(s.history) - s.policy.Limit
	}
	if s.policy.MaxAge > 0 {
		cutoff := s.now().Add(-s.policy.MaxAge)
		for start < len(s.history) && s.history[start].Timestamp.Before(cutoff) {
			start++
		}
	}
	out := make([]HistoryEntry, len(s.history)-start)
	copy(out, s.history[start:])
	return out
}
