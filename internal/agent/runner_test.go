package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rahul/uipilot/internal/device"
	"github.com/rahul/uipilot/internal/llm"
	"github.com/rahul/uipilot/internal/llm/llmtest"
	"github.com/rahul/uipilot/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunner_DirectionDispatchesOnlyFirstToolCall(t *testing.T) {
	env := newTestEnv(llmtest.NewScripted(
		llmtest.Reply(
			llmtest.Text("Both fields look relevant."),
			llmtest.Call("click", `{"selector":"#email"}`),
			llmtest.Call("click", `{"selector":"#password"}`),
			llmtest.Call("click", `{"selector":"#submit"}`),
		),
		llmtest.Reply(llmtest.Status("completed", "focused the email field")),
	))

	res, err := env.runner.Run(context.Background(), Direction("focus the email field"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Equal(t, []device.Action{{Type: device.ActionClick, Selector: "#email"}}, env.device.Executed())
}

func TestRunner_VerificationDispatchesAllToolCallsInOrder(t *testing.T) {
	env := newTestEnv(llmtest.NewScripted(
		llmtest.Reply(
			llmtest.Call("assert_visible", `{"selector":"#email"}`),
			llmtest.Call("assert_visible", `{"selector":"#password"}`),
			llmtest.Call("assert_visible", `{"selector":"#submit"}`),
			llmtest.Status("completed", "login form is shown"),
		),
	))

	res, err := env.runner.Run(context.Background(), Verification("the login form is shown"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Equal(t, 1, res.Steps)
	assert.Equal(t, []device.Action{
		{Type: device.ActionAssertVisible, Selector: "#email"},
		{Type: device.ActionAssertVisible, Selector: "#password"},
		{Type: device.ActionAssertVisible, Selector: "#submit"},
	}, env.device.Executed())
}

func TestRunner_VerificationRunsCallsAfterStatusReport(t *testing.T) {
	env := newTestEnv(llmtest.NewScripted(
		llmtest.Reply(
			llmtest.Status("completed", "form is shown"),
			llmtest.Call("assert_visible", `{"selector":"#email"}`),
		),
	))

	res, err := env.runner.Run(context.Background(), Verification("the login form is shown"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Equal(t, "form is shown", res.Explanation)
	assert.Equal(t, []device.Action{{Type: device.ActionAssertVisible, Selector: "#email"}}, env.device.Executed())
	// The status was already final when the assertion ran.
	assert.Len(t, res.Status.History(), 1)
}

func TestRunner_EmptyToolCallForcesToolChoice(t *testing.T) {
	for _, obj := range []Objective{Direction("log in"), Verification("the login form is shown")} {
		t.Run(string(obj.Kind), func(t *testing.T) {
			env := newTestEnv(llmtest.NewScripted(
				llmtest.Reply(llmtest.Text("I would click the login button now.")),
				llmtest.Reply(llmtest.Status("failed", "stopping")),
			))

			res, err := env.runner.Run(context.Background(), obj)
			require.NoError(t, err)
			assert.Equal(t, OutcomeFailed, res.Outcome)

			reqs := env.transport.Requests()
			require.Len(t, reqs, 2)
			assert.Equal(t, llm.ToolChoiceAuto, reqs[0].ToolChoice)
			assert.Equal(t, llm.ToolChoiceRequired, reqs[1].ToolChoice)

			history := res.Status.History()
			require.NotEmpty(t, history)
			assert.True(t, history[0].Uncommitted)
			assert.Equal(t, "I would click the login button now.", history[0].Reasoning)
			assert.Contains(t, requestText(reqs[1]), "I would click the login button now.")
		})
	}
}

func TestRunner_StopsAtMaxSteps(t *testing.T) {
	env := newTestEnv(llmtest.NewScripted())
	env.transport.Fallback = llmtest.Reply(llmtest.Call("scroll", `{"direction":"down"}`))
	env.runner.MaxSteps = 4

	res, err := env.runner.Run(context.Background(), Direction("find the footer"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeMaxCallsReached, res.Outcome)
	assert.Equal(t, 4, res.Steps)
	assert.Len(t, env.transport.Requests(), 4)
	assert.False(t, res.Status.IsFinished())
}

func TestRunner_StopsAtMaxStepsWithoutAnyToolCall(t *testing.T) {
	env := newTestEnv(llmtest.NewScripted())
	env.runner.MaxSteps = 3

	res, err := env.runner.Run(context.Background(), Verification("the cart is empty"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeMaxCallsReached, res.Outcome)
	assert.Len(t, env.transport.Requests(), 3)
}

func TestRunner_CancelledBeforeFirstStep(t *testing.T) {
	env := newTestEnv(llmtest.NewScripted(llmtest.Reply(llmtest.Status("completed", "done"))))
	env.runner.Cancel = &cancelAfter{after: 0}

	res, err := env.runner.Run(context.Background(), Direction("log in"))
	require.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, OutcomeCancelled, res.Outcome)
	assert.Empty(t, env.transport.Requests())
	assert.Equal(t, StateFailed, res.Status.State())
}

func TestRunner_CancelledBetweenSteps(t *testing.T) {
	env := newTestEnv(llmtest.NewScripted(
		llmtest.Reply(llmtest.Call("click", `{"selector":"#submit"}`)),
		llmtest.Reply(llmtest.Status("completed", "done")),
	))
	env.runner.Cancel = &cancelAfter{after: 1}

	res, err := env.runner.Run(context.Background(), Direction("log in"))
	require.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, OutcomeCancelled, res.Outcome)
	assert.Len(t, env.transport.Requests(), 1)
	assert.Len(t, env.device.Executed(), 1)
	assert.Equal(t, StateFailed, res.Status.State())
}

func TestRunner_ContextCancellation(t *testing.T) {
	env := newTestEnv(llmtest.NewScripted(llmtest.Reply(llmtest.Status("completed", "done"))))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := env.runner.Run(ctx, Direction("log in"))
	require.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, OutcomeCancelled, res.Outcome)
	assert.Empty(t, env.transport.Requests())
}

func TestRunner_RetryCeiling(t *testing.T) {
	transient := errors.New("429 too many requests")
	env := newTestEnv(llmtest.NewScripted(
		llmtest.Fail(transient),
		llmtest.Fail(transient),
		llmtest.Fail(transient),
		llmtest.Reply(llmtest.Status("completed", "never reached")),
	))

	res, err := env.runner.Run(context.Background(), Direction("log in"))
	require.ErrorIs(t, err, ErrLLMExhausted)
	assert.Contains(t, err.Error(), "429")
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Len(t, env.transport.Requests(), 3)

	require.Len(t, env.delays, 2)
	assert.Less(t, env.delays[0], env.delays[1])
	assert.Equal(t, StateFailed, res.Status.State())
}

func TestRunner_RetryRecoversBeforeCeiling(t *testing.T) {
	env := newTestEnv(llmtest.NewScripted(
		llmtest.Fail(errors.New("connection reset")),
		llmtest.Reply(llmtest.Status("completed", "done")),
	))

	res, err := env.runner.Run(context.Background(), Direction("log in"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Equal(t, 1, res.Steps)
	assert.Equal(t, []time.Duration{2 * time.Second}, env.delays)
}

func TestRunner_ToolErrorIsReportedAndLoopContinues(t *testing.T) {
	env := newTestEnv(llmtest.NewScripted(
		llmtest.Reply(llmtest.Call("click", `{"selector":"#missing"}`)),
		llmtest.Reply(llmtest.Status("failed", "button is missing")),
	))
	env.device.FailOn(device.ActionClick, device.ErrNoElement)

	res, err := env.runner.Run(context.Background(), Direction("press the missing button"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, "button is missing", res.Explanation)

	history := res.Status.History()
	require.Len(t, history, 2)
	require.NotNil(t, history[0].Result.Err)
	require.NotNil(t, history[0].Result.Err.Tool)
	assert.Equal(t, "click", history[0].Result.Err.Tool.Name)
	assert.Equal(t, "#missing", history[0].Result.Err.Tool.Args["selector"])

	reqs := env.transport.Requests()
	require.Len(t, reqs, 2)
	assert.Contains(t, requestText(reqs[1]), "Result: error")
	// A failed action does not demand a status report.
	assert.Equal(t, llm.ToolChoiceAuto, reqs[1].ToolChoice)
}

func TestRunner_SuccessfulActionRequiresStatusNext(t *testing.T) {
	env := newTestEnv(llmtest.NewScripted(
		llmtest.Reply(llmtest.Call("type_text", `{"selector":"#email","text":"qa@shop.test"}`)),
		llmtest.Reply(llmtest.Status("in_progress", "typed the email")),
		llmtest.Reply(llmtest.Status("completed", "done")),
	))

	res, err := env.runner.Run(context.Background(), Direction("enter the email"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Equal(t, 3, res.Steps)

	reqs := env.transport.Requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, llm.ToolChoiceRequired, reqs[1].ToolChoice)
	assert.Contains(t, requestText(reqs[1]), "call report_status now")
	assert.Equal(t, llm.ToolChoiceAuto, reqs[2].ToolChoice)
	assert.NotContains(t, requestText(reqs[2]), "call report_status now")
}

func TestRunner_InvalidObjective(t *testing.T) {
	env := newTestEnv(llmtest.NewScripted())

	_, err := env.runner.Run(context.Background(), Objective{Kind: KindDirection, Prompt: "  "})
	assert.ErrorIs(t, err, ErrInvalidObjective)

	_, err = env.runner.Run(context.Background(), Objective{Kind: "exploration", Prompt: "look around"})
	assert.ErrorIs(t, err, ErrInvalidObjective)
	assert.Empty(t, env.transport.Requests())
}

func TestRunner_RecoverReplaysHistory(t *testing.T) {
	prior := ReplayHistory([]device.Action{
		{Type: device.ActionTypeText, Selector: "#email", Text: "qa@shop.test"},
		{Type: device.ActionClick, Selector: "#old-submit"},
	}, 1, fmt.Errorf("no matching element: #old-submit"))
	data, err := json.Marshal(prior)
	require.NoError(t, err)

	env := newTestEnv(llmtest.NewScripted(
		llmtest.Reply(llmtest.Call("tap_element", `{"index":2}`)),
		llmtest.Reply(llmtest.Status("completed", "logged in")),
	))
	res, err := env.runner.Recover(context.Background(), store.Recording{
		ID:          7,
		RunID:       "run-1",
		Kind:        "direction",
		Prompt:      "log in",
		Outcome:     "failed",
		Explanation: "replay failed",
		History:     data,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Equal(t, "run-1", res.RunID)

	first := requestText(env.transport.Requests()[0])
	assert.Contains(t, first, "qa@shop.test")
	assert.Contains(t, first, "#old-submit")
	assert.Contains(t, first, "A previous attempt at this objective ended with failed")

	history := res.Status.History()
	require.Len(t, history, 5)
	assert.Equal(t, []device.Action{{Type: device.ActionClick, Selector: "#submit"}}, env.device.Executed())
}

func TestRunner_RecoverKeepsHistoryOlderThanMaxAge(t *testing.T) {
	prior := ReplayHistory([]device.Action{
		{Type: device.ActionTypeText, Selector: "#email", Text: "qa@shop.test"},
	}, -1, nil)
	for i := range prior {
		prior[i].Timestamp = time.Now().Add(-time.Hour)
	}
	data, err := json.Marshal(prior)
	require.NoError(t, err)

	env := newTestEnv(llmtest.NewScripted(
		llmtest.Reply(llmtest.Status("completed", "already logged in")),
	))
	env.runner.History = HistoryPolicy{Limit: 10, MaxAge: 15 * time.Minute}

	res, err := env.runner.Recover(context.Background(), store.Recording{
		ID:          3,
		RunID:       "run-old",
		Kind:        "direction",
		Prompt:      "log in",
		Outcome:     "failed",
		Explanation: "interrupted",
		History:     data,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Contains(t, requestText(env.transport.Requests()[0]), "qa@shop.test")
}

func TestRunner_RecoverRejectsBadRecording(t *testing.T) {
	env := newTestEnv(llmtest.NewScripted())

	_, err := env.runner.Recover(context.Background(), store.Recording{Kind: "direction", Prompt: "log in", History: []byte("{")})
	assert.Error(t, err)

	_, err = env.runner.Recover(context.Background(), store.Recording{Kind: "unknown", Prompt: "log in"})
	assert.ErrorIs(t, err, ErrInvalidObjective)
}
