package scenario

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rahul/uipilot/internal/agent"
	"github.com/rahul/uipilot/internal/device"
	"github.com/rahul/uipilot/internal/gateway"
	"github.com/rahul/uipilot/internal/observability"
	"github.com/rahul/uipilot/internal/store"
)

// Store persists recordings and the per-step action cache.
// *store.RecordingStore satisfies it.
type Store interface {
	SaveRecording(ctx context.Context, r store.Recording) (int64, error)
	SaveActions(ctx context.Context, scenario, stepKey string, actions []device.Action) error
	GetActions(ctx context.Context, scenario, stepKey string) ([]device.Action, bool, error)
	DeleteActions(ctx context.Context, scenario, stepKey string) error
}

// EventLogger receives one event per finished step and scenario.
type EventLogger interface {
	LogScenario(runID, scenario string, data map[string]any)
}

var _ Store = (*store.RecordingStore)(nil)
var _ EventLogger = (*observability.Logger)(nil)

// StepReport is the result of one scenario step.
type StepReport struct {
	Index       int
	Objective   agent.Objective
	Outcome     agent.Outcome
	Explanation string
	// Replayed is set when cached actions were executed without the model.
	Replayed bool
	// Recovered is set when a failed replay was handed to the model.
	Recovered   bool
	RecordingID int64
}

// Report summarizes a scenario run.
type Report struct {
	RunID    string
	Scenario string
	Steps    []StepReport
	Total    int
	Duration time.Duration
}

func (r Report) Passed() bool {
	if len(r.Steps) != r.Total {
		return false
	}
	for _, s := range r.Steps {
		if s.Outcome != agent.OutcomeCompleted {
			return false
		}
	}
	return true
}

// Summary is the notification text sent to gateways.
func (r Report) Summary() string {
	var b strings.Builder
	mark := "✅"
	if !r.Passed() {
		mark = "❌"
	}
	fmt.Fprintf(&b, "%s *%s* %d/%d steps in %s\nrun %s\n", mark, r.Scenario, r.completed(), r.Total, r.Duration.Round(time.Second), r.RunID)
	for _, s := range r.Steps {
		mode := "ai"
		switch {
		case s.Recovered:
			mode = "replay→ai"
		case s.Replayed:
			mode = "replay"
		}
		fmt.Fprintf(&b, "%d. [%s] %s (%s)", s.Index+1, s.Outcome, s.Objective.Prompt, mode)
		if s.Outcome != agent.OutcomeCompleted && s.Explanation != "" {
			fmt.Fprintf(&b, ": %s", s.Explanation)
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func (r Report) completed() int {
	n := 0
	for _, s := range r.Steps {
		if s.Outcome == agent.OutcomeCompleted {
			n++
		}
	}
	return n
}

// Runner executes scenarios step by step. Direction steps that completed
// before are replayed from the action cache; a failed replay falls back to
// the agent with the replayed history.
type Runner struct {
	Agent     *agent.Runner
	Device    device.Device
	Store     Store
	Notifiers []gateway.Notifier
	Events    EventLogger
	// NoCache disables replay and always runs the agent.
	NoCache bool
}

func NewRunner(agentRunner *agent.Runner, dev device.Device, st Store) *Runner {
	return &Runner{
		Agent:  agentRunner,
		Device: dev,
		Store:  st,
	}
}

// Run executes every step in order and stops at the first step that does
// not complete. A non-nil error means the run was aborted.
func (r *Runner) Run(ctx context.Context, sc *Scenario) (Report, error) {
	start := time.Now()
	report := Report{RunID: uuid.NewString(), Scenario: sc.Name, Total: len(sc.Steps)}
	log.Printf("[Scenario] %s: starting run %s with %d steps", sc.Name, report.RunID, len(sc.Steps))

	var runErr error
	for i, step := range sc.Steps {
		sr, err := r.runStep(ctx, sc, report.RunID, i, step)
		report.Steps = append(report.Steps, sr)
		r.logStep(report.RunID, sc.Name, sr)
		if err != nil {
			runErr = err
			break
		}
		if sr.Outcome != agent.OutcomeCompleted {
			break
		}
	}
	report.Duration = time.Since(start)

	observability.RecordResult(report.Passed())
	if r.Events != nil {
		r.Events.LogScenario(report.RunID, sc.Name, map[string]any{
			"passed":   report.Passed(),
			"steps":    len(report.Steps),
			"total":    report.Total,
			"duration": report.Duration.String(),
		})
	}
	// Reports still go out after Ctrl-C.
	r.notify(context.WithoutCancel(ctx), report)
	return report, runErr
}

func (r *Runner) runStep(ctx context.Context, sc *Scenario, runID string, index int, step Step) (StepReport, error) {
	obj, err := step.Objective()
	if err != nil {
		return StepReport{Index: index, Outcome: agent.OutcomeFailed, Explanation: err.Error()}, err
	}
	sr := StepReport{Index: index, Objective: obj}
	key := step.Key()
	// Recordings of a cancelled step are written after ctx is done.
	persist := context.WithoutCancel(ctx)

	var res agent.Result
	var runErr error

	cached, ok := r.cachedActions(ctx, sc.Name, key, obj)
	if ok {
		sr.Replayed = true
		failed, replayErr := r.replay(ctx, cached)
		if replayErr == nil {
			sr.Outcome = agent.OutcomeCompleted
			sr.Explanation = fmt.Sprintf("replayed %d cached actions", len(cached))
			rec := replayRecording(obj, agent.ReplayHistory(cached, -1, nil), sr.Outcome, sr.Explanation)
			rec.RunID, rec.Scenario, rec.StepIndex = runID, sc.Name, index
			sr.RecordingID, err = r.Store.SaveRecording(persist, rec)
			return sr, err
		}

		log.Printf("[Scenario] %s step %d: replay failed at action %d: %v; handing over to the agent", sc.Name, index+1, failed+1, replayErr)
		rec := replayRecording(obj, agent.ReplayHistory(cached, failed, replayErr), agent.OutcomeFailed, replayErr.Error())
		rec.RunID, rec.Scenario, rec.StepIndex = runID, sc.Name, index
		if _, err := r.Store.SaveRecording(persist, rec); err != nil {
			log.Printf("[Scenario] Failed to save replay recording: %v", err)
		}
		sr.Recovered = true
		res, runErr = r.Agent.Recover(ctx, rec)
	} else {
		res, runErr = r.Agent.Run(ctx, obj)
	}

	sr.Outcome = res.Outcome
	sr.Explanation = res.Explanation
	if sr.Outcome == "" {
		sr.Outcome = agent.OutcomeFailed
		if runErr != nil {
			sr.Explanation = runErr.Error()
		}
	}

	r.updateCache(persist, sc.Name, key, obj, res)

	rec, err := res.Recording(sc.Name, index)
	if err != nil {
		return sr, errors.Join(runErr, err)
	}
	rec.RunID = runID
	if rec.Kind == "" {
		rec.Kind, rec.Prompt = string(obj.Kind), obj.Prompt
	}
	rec.Outcome = string(sr.Outcome)
	rec.Explanation = sr.Explanation
	id, err := r.Store.SaveRecording(persist, rec)
	sr.RecordingID = id
	return sr, errors.Join(runErr, err)
}

func (r *Runner) cachedActions(ctx context.Context, scenario, key string, obj agent.Objective) ([]device.Action, bool) {
	if r.NoCache || obj.Kind != agent.KindDirection {
		return nil, false
	}
	actions, ok, err := r.Store.GetActions(ctx, scenario, key)
	if err != nil {
		log.Printf("[Scenario] Failed to read action cache: %v", err)
		return nil, false
	}
	return actions, ok && len(actions) > 0
}

// replay executes cached actions in order. On failure it returns the index
// of the failing action.
func (r *Runner) replay(ctx context.Context, actions []device.Action) (int, error) {
	for i, a := range actions {
		observability.SetStatus(observability.RoleReplay, fmt.Sprintf("action %d/%d", i+1, len(actions)))
		if err := r.Device.Execute(ctx, a); err != nil {
			observability.RecordToolExecution(string(a.Type), "replay_error")
			observability.SetStatus(observability.RoleIdle, "")
			return i, err
		}
		observability.RecordToolExecution(string(a.Type), "replay")
	}
	observability.SetStatus(observability.RoleIdle, "")
	return -1, nil
}

func (r *Runner) updateCache(ctx context.Context, scenario, key string, obj agent.Objective, res agent.Result) {
	// An interrupted run says nothing about whether the cached actions still work.
	if r.NoCache || obj.Kind != agent.KindDirection || res.Outcome == agent.OutcomeCancelled {
		return
	}
	var err error
	actions := res.ExecutedActions()
	switch {
	case res.Passed() && len(actions) > 0:
		err = r.Store.SaveActions(ctx, scenario, key, actions)
	case !res.Passed():
		err = r.Store.DeleteActions(ctx, scenario, key)
	}
	if err != nil {
		log.Printf("[Scenario] Failed to update action cache: %v", err)
	}
}

func (r *Runner) logStep(runID, scenario string, sr StepReport) {
	log.Printf("[Scenario] %s step %d (%s): %s", scenario, sr.Index+1, sr.Objective.Kind, sr.Outcome)
	if r.Events == nil {
		return
	}
	r.Events.LogScenario(runID, scenario, map[string]any{
		"step":        sr.Index + 1,
		"kind":        string(sr.Objective.Kind),
		"outcome":     string(sr.Outcome),
		"explanation": sr.Explanation,
		"replayed":    sr.Replayed,
		"recovered":   sr.Recovered,
	})
}

func (r *Runner) notify(ctx context.Context, report Report) {
	if len(r.Notifiers) == 0 {
		return
	}
	text := report.Summary()
	for _, n := range r.Notifiers {
		if err := n.Notify(ctx, text); err != nil {
			log.Printf("[Scenario] %s notification failed: %v", n.Name(), err)
		}
	}
}

func replayRecording(obj agent.Objective, history []agent.HistoryEntry, outcome agent.Outcome, explanation string) store.Recording {
	data, err := json.Marshal(history)
	if err != nil {
		data = []byte("[]")
	}
	return store.Recording{
		Kind:        string(obj.Kind),
		Prompt:      obj.Prompt,
		Outcome:     string(outcome),
		Explanation: explanation,
		History:     data,
	}
}
