package store

import (
	"encoding/json"
	"errors"
	"time"
)

var ErrRecordingNotFound = errors.New("recording not found")

// Recording is the persisted result of one objective run.
// History holds the agent's step history as JSON.
type Recording struct {
	ID          int64
	RunID       string
	Scenario    string
	StepIndex   int
	Kind        string
	Prompt      string
	Outcome     string
	Explanation string
	Steps       int
	History     json.RawMessage
	CreatedAt   time.Time
}

// Failed reports whether the recording did not end in completion.
func (r Recording) Failed() bool {
	return r.Outcome != "completed"
}
