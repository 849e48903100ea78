package agent

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/rahul/uipilot/internal/observability"
	"github.com/rahul/uipilot/internal/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultMaxSteps = 10

// CancelSource reports whether the user asked to stop the session.
type CancelSource interface {
	Cancelled() bool
}

// Result is the outcome of one objective.
type Result struct {
	RunID       string
	Outcome     Outcome
	Explanation string
	Steps       int
	Status      *StepStatus
}

// Passed reports whether the objective completed.
func (r Result) Passed() bool {
	return r.Outcome == OutcomeCompleted
}

// Runner drives the agent loop for one objective at a time.
type Runner struct {
	Helper   *Helper
	MaxSteps int
	History  HistoryPolicy
	// Cancel is checked before every step, in addition to the context.
	Cancel CancelSource
	Events EventLogger

	now func() time.Time
}

func NewRunner(helper *Helper) *Runner {
	return &Runner{
		Helper:   helper,
		MaxSteps: defaultMaxSteps,
		History:  HistoryPolicy{Limit: 10},
		Events:   helper.Events,
	}
}

// NewStatus creates the status for a new run of obj.
func (r *Runner) NewStatus(obj Objective) *StepStatus {
	return newStepStatus(uuid.NewString(), obj, r.History, r.now)
}

// Run executes obj from a fresh status.
func (r *Runner) Run(ctx context.Context, obj Objective) (Result, error) {
	return r.RunWithStatus(ctx, r.NewStatus(obj))
}

// Recover continues an objective whose earlier attempt did not complete.
// The recorded history is restored so the model sees what already happened.
func (r *Runner) Recover(ctx context.Context, rec store.Recording) (Result, error) {
	kind, err := ParseKind(rec.Kind)
	if err != nil {
		return Result{}, err
	}
	entries, err := DecodeHistory(rec.History)
	if err != nil {
		return Result{}, fmt.Errorf("failed to decode recording %d: %w", rec.ID, err)
	}

	runID := rec.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	status := newStepStatus(runID, Objective{Kind: kind, Prompt: rec.Prompt}, r.History, r.now)
	status.restore(entries)
	status.AddNote(fmt.Sprintf("A previous attempt at this objective ended with %s: %s. Continue from the current screen.",
		rec.Outcome, rec.Explanation))

	log.Printf("[Recover] Resuming %s objective from recording %d (%d history entries)", kind, rec.ID, len(entries))
	return r.RunWithStatus(ctx, status)
}

// RunWithStatus executes the loop on an existing status until it finishes,
// the step budget runs out, or the session is cancelled.
func (r *Runner) RunWithStatus(ctx context.Context, status *StepStatus) (Result, error) {
	obj := status.Objective()
	if err := obj.Validate(); err != nil {
		return Result{}, err
	}
	dispatch, err := strategyFor(obj.Kind)
	if err != nil {
		return Result{}, err
	}

	ctx, span := tracer.Start(ctx, "agent.Objective",
		trace.WithAttributes(
			attribute.String("run_id", status.RunID()),
			attribute.String("kind", string(obj.Kind)),
		),
	)
	defer span.End()

	events := r.events()
	events.ObjectiveStarted(status.RunID(), string(obj.Kind), obj.Prompt)
	role := observability.RoleAgent
	if obj.Kind == KindVerification {
		role = observability.RoleVerify
	}

	res, err := r.loop(ctx, status, dispatch, role)

	events.ObjectiveCompleted(status.RunID(), string(res.Outcome), res.Steps, res.Explanation)
	observability.RecordObjective(string(obj.Kind), string(res.Outcome), res.Steps)
	observability.SetStatus(observability.RoleIdle, "")
	span.SetAttributes(attribute.String("outcome", string(res.Outcome)), attribute.Int("steps", res.Steps))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else if res.Passed() {
		span.SetStatus(codes.Ok, "")
	}
	return res, err
}

func (r *Runner) loop(ctx context.Context, status *StepStatus, dispatch strategy, role observability.Role) (Result, error) {
	maxSteps := r.MaxSteps
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}
	// Cancellation is only honored between steps; a step in flight runs to
	// completion.
	work := context.WithoutCancel(ctx)

	for !status.IsFinished() {
		if cause := r.cancelled(ctx); cause != nil {
			status.MarkAsFailed("cancelled")
			log.Printf("[Step %d] Objective cancelled: %v", status.Step(), cause)
			return r.result(status, OutcomeCancelled, "cancelled"), fmt.Errorf("%w: %v", ErrCancelled, cause)
		}

		status.PrepareNextStep()
		observability.SetStatus(role, fmt.Sprintf("step %d/%d", status.Step(), maxSteps))

		req, err := r.Helper.BuildRequest(work, status)
		if err != nil {
			status.MarkAsFailed(err.Error())
			return r.result(status, OutcomeFailed, err.Error()), err
		}
		resp, err := r.Helper.Call(work, status, req)
		if err != nil {
			status.MarkAsFailed(err.Error())
			return r.result(status, OutcomeFailed, err.Error()), err
		}

		dispatch(work, r.Helper, status, resp)

		if !status.IsFinished() && status.Step() >= maxSteps {
			log.Printf("[Step %d] Reached the maximum number of steps", status.Step())
			return r.result(status, OutcomeMaxCallsReached, fmt.Sprintf("no status after %d steps", maxSteps)), nil
		}
	}

	if status.State() == StateCompleted {
		return r.result(status, OutcomeCompleted, status.Explanation()), nil
	}
	return r.result(status, OutcomeFailed, status.Explanation()), nil
}

func (r *Runner) cancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return context.Cause(ctx)
	}
	if r.Cancel != nil && r.Cancel.Cancelled() {
		return fmt.Errorf("cancel requested")
	}
	return nil
}

func (r *Runner) result(status *StepStatus, outcome Outcome, explanation string) Result {
	return Result{
		RunID:       status.RunID(),
		Outcome:     outcome,
		Explanation: explanation,
		Steps:       status.Step(),
		Status:      status,
	}
}

func (r *Runner) events() EventLogger {
	if r.Events == nil {
		return nopEvents{}
	}
	return r.Events
}
