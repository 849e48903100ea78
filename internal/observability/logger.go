package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypeObjectiveStart    EventType = "objective_start"
	EventTypeObjectiveComplete EventType = "objective_complete"
	EventTypeLLM               EventType = "llm"
	EventTypeToolCall          EventType = "tool_call"
	EventTypeToolResult        EventType = "tool_result"
	EventTypePolicyCheck       EventType = "policy_check"
	EventTypeCost              EventType = "cost"
	EventTypeScenario          EventType = "scenario"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id,omitempty"`
	Step      int       `json:"step,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger handles structured logging.
type Logger struct {
	mu         sync.Mutex
	out        io.Writer
	llmLogPath string
	maxSize    int64
}

func NewLogger() *Logger {
	return &Logger{
		out:        os.Stdout,
		llmLogPath: filepath.Join("logs", "llm.jsonl"),
		maxSize:    10 * 1024 * 1024, // 10MB
	}
}

// NewLoggerTo writes events to out and LLM traces to llmLogPath.
// An empty llmLogPath disables the trace file.
func NewLoggerTo(out io.Writer, llmLogPath string) *Logger {
	l := NewLogger()
	l.out = out
	l.llmLogPath = llmLogPath
	return l
}

// Log emits a structured JSON event.
func (l *Logger) Log(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		data = []byte(fmt.Sprintf(`{"error": "failed to marshal event: %v"}`, err))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.out, string(data))

	if evt.Type == EventTypeLLM && l.llmLogPath != "" {
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	if err := os.MkdirAll(filepath.Dir(l.llmLogPath), 0755); err != nil {
		log.Printf("failed to create log directory: %v", err)
		return
	}

	info, err := os.Stat(l.llmLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.llmLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("failed to open log file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("failed to write to log file: %v", err)
	}
}

func (l *Logger) rotateLogs() {
	// keep one .old file
	oldPath := l.llmLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.llmLogPath, oldPath)
}

func (l *Logger) ObjectiveStarted(runID, kind, prompt string) {
	l.Log(Event{
		Type:  EventTypeObjectiveStart,
		RunID: runID,
		Data: map[string]string{
			"kind":   kind,
			"prompt": prompt,
		},
	})
}

func (l *Logger) ObjectiveCompleted(runID, outcome string, steps int, explanation string) {
	l.Log(Event{
		Type:  EventTypeObjectiveComplete,
		RunID: runID,
		Step:  steps,
		Data: map[string]string{
			"outcome":     outcome,
			"explanation": explanation,
		},
	})
}

func (l *Logger) LLMTrace(runID string, step int, prompt any, response any) {
	l.Log(Event{
		Type:  EventTypeLLM,
		RunID: runID,
		Step:  step,
		Data: map[string]any{
			"prompt":   prompt,
			"response": response,
		},
	})
}

func (l *Logger) ToolCall(runID string, step int, tool, args string) {
	l.Log(Event{
		Type:  EventTypeToolCall,
		RunID: runID,
		Step:  step,
		Data: map[string]string{
			"tool": tool,
			"args": args,
		},
	})
}

func (l *Logger) ToolResult(runID string, step int, executed any, errMsg string) {
	data := map[string]any{"executed": executed}
	if errMsg != "" {
		data["error"] = errMsg
	}
	l.Log(Event{
		Type:  EventTypeToolResult,
		RunID: runID,
		Step:  step,
		Data:  data,
	})
}

func (l *Logger) PolicyDenied(runID string, step int, tool, reason string) {
	l.Log(Event{
		Type:  EventTypePolicyCheck,
		RunID: runID,
		Step:  step,
		Data: map[string]string{
			"tool":   tool,
			"effect": "deny",
			"reason": reason,
		},
	})
}

func (l *Logger) LogCost(runID string, promptTokens, completionTokens int, model string) {
	l.Log(Event{
		Type:  EventTypeCost,
		RunID: runID,
		Data: map[string]any{
			"prompt_tokens":     promptTokens,
			"completion_tokens": completionTokens,
			"total_tokens":      promptTokens + completionTokens,
			"model":             model,
		},
	})
}

func (l *Logger) LogScenario(runID, scenario string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	data["scenario"] = scenario
	l.Log(Event{
		Type:  EventTypeScenario,
		RunID: runID,
		Data:  data,
	})
}
