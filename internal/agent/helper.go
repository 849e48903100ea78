package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/rahul/uipilot/internal/device"
	"github.com/rahul/uipilot/internal/governance"
	"github.com/rahul/uipilot/internal/llm"
	"github.com/rahul/uipilot/internal/observability"
	"github.com/rahul/uipilot/internal/tools"
	"github.com/tmc/langchaingo/llms"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("uipilot.agent")

// Helper builds requests, calls the model and applies its tool calls to
// the device.
type Helper struct {
	Transport llm.Transport
	Registry  *tools.Registry
	Device    device.Device
	Prompts   *PromptManager
	Policy    governance.PolicyEngine
	Events    EventLogger
	Retry     RetryPolicy
	// Vision attaches the screenshot to the final user turn.
	Vision bool
}

func NewHelper(transport llm.Transport, registry *tools.Registry, dev device.Device, prompts *PromptManager) *Helper {
	return &Helper{
		Transport: transport,
		Registry:  registry,
		Device:    dev,
		Prompts:   prompts,
		Policy:    governance.NewDefaultPolicyEngine(),
		Events:    nopEvents{},
		Retry:     DefaultRetryPolicy(),
	}
}

func (h *Helper) events() EventLogger {
	if h.Events == nil {
		return nopEvents{}
	}
	return h.Events
}

// BuildRequest refreshes the screen snapshot and assembles the request:
// system prompt, objective and reminder, limited history, then the screen.
func (h *Helper) BuildRequest(ctx context.Context, status *StepStatus) (llm.Request, error) {
	obj := status.Objective()

	// 1. Refresh the screen
	snap, err := h.Device.Snapshot(ctx)
	if err != nil {
		log.Printf("[Step %d] Snapshot failed: %v", status.Step(), err)
		snap = device.Snapshot{Platform: h.Device.Platform(), Text: fmt.Sprintf("(screen unavailable: %v)", err)}
	}
	status.SetSnapshot(snap)

	// 2. Prompts
	system, err := h.Prompts.System(h.Device.Platform())
	if err != nil {
		return llm.Request{}, err
	}
	objective, err := h.Prompts.Objective(obj)
	if err != nil {
		return llm.Request{}, err
	}
	reminder, err := h.Prompts.Reminder(obj.Kind, status.StatusUpdateDue())
	if err != nil {
		return llm.Request{}, err
	}

	messages := []llms.MessageContent{
		textMessage(llms.ChatMessageTypeSystem, system),
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(objective), llms.TextPart(reminder)},
		},
	}

	// 3. History
	for _, e := range status.LimitedHistory() {
		messages = append(messages, historyMessages(e)...)
	}

	// 4. Current screen
	screen := llms.MessageContent{
		Role:  llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextPart(fmt.Sprintf("Current screen (step %d):\n%s", status.Step(), snap.Render()))},
	}
	if h.Vision && len(snap.Screenshot) > 0 {
		screen.Parts = append(screen.Parts, llms.BinaryPart("image/png", snap.Screenshot))
	}
	messages = append(messages, screen)

	choice := llm.ToolChoiceAuto
	if status.ForceToolCall() {
		choice = llm.ToolChoiceRequired
	}

	return llm.Request{
		Messages:   messages,
		Tools:      h.Registry.Definitions(obj.Kind == KindVerification),
		ToolChoice: choice,
	}, nil
}

// Call sends the request with retries. When every attempt fails the error
// wraps ErrLLMExhausted.
func (h *Helper) Call(ctx context.Context, status *StepStatus, req llm.Request) ([]llm.ResponseMessage, error) {
	var resp []llm.ResponseMessage
	err := h.Retry.do(ctx, func(ctx context.Context, attempt int) error {
		ctx, span := tracer.Start(ctx, "llm.Call",
			trace.WithAttributes(
				attribute.String("run_id", status.RunID()),
				attribute.Int("step", status.Step()),
				attribute.Int("attempt", attempt),
				attribute.String("tool_choice", string(req.ToolChoice)),
			),
		)
		defer span.End()

		start := time.Now()
		out, err := h.Transport.Execute(ctx, req)
		observability.RecordLLMAttempt(err, time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			log.Printf("[Step %d] LLM attempt %d failed: %v", status.Step(), attempt, err)
			return err
		}
		span.SetStatus(codes.Ok, "")
		resp = out
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLLMExhausted, err)
	}

	h.events().LLMTrace(status.RunID(), status.Step(), traceMessages(req.Messages), resp)
	return resp, nil
}

// HandleLLMResponse resolves one tool call, executes it, and records what
// actually ran in the status history. Tool failures become error results.
func (h *Helper) HandleLLMResponse(ctx context.Context, status *StepStatus, call llms.ToolCall, reasoning string) ToolCallResolution {
	name, args := "", ""
	if call.FunctionCall != nil {
		name, args = call.FunctionCall.Name, call.FunctionCall.Arguments
	}
	runID, step := status.RunID(), status.Step()
	h.events().ToolCall(runID, step, name, args)
	log.Printf("[Step %d] Tool call %s with args: %s", step, name, args)

	var res ToolCallResolution
	var report *tools.StatusReport

	inv, err := h.Registry.Resolve(name, args)
	unparsed := err != nil
	if unparsed {
		res = ToolCallResolution{Result: Failure(nil, err.Error())}
	} else {
		switch inv := inv.(type) {
		case tools.StatusReport:
			report = &inv
			res = ToolCallResolution{
				Result: Success(),
				Executed: []ExecutedTool{{
					Name: inv.Tool,
					Args: map[string]any{"status": string(inv.Status), "explanation": inv.Explanation},
				}},
			}
		case tools.Primitive:
			res = h.execute(ctx, status, []device.Action{inv.Action})
		case tools.Delegation:
			actions, err := inv.Expand(status.Snapshot())
			if err != nil {
				res = ToolCallResolution{Result: Failure(nil, err.Error())}
				break
			}
			res = h.execute(ctx, status, actions)
		default:
			res = ToolCallResolution{Result: Failure(nil, fmt.Sprintf("unsupported invocation %T", inv))}
		}
	}

	errMsg := ""
	if !res.Result.OK() {
		errMsg = res.Result.Err.Error()
	}
	h.events().ToolResult(runID, step, res.Executed, errMsg)

	status.AddCompletedToolCallToChatHistory(reasoning, res.Executed, res.Result)

	switch {
	case report != nil:
		status.setFlags(false, false)
		switch report.Status {
		case tools.ReportCompleted:
			status.MarkAsComplete(report.Explanation)
		case tools.ReportFailed:
			status.MarkAsFailed(report.Explanation)
		case tools.ReportInProgress:
			status.MarkAsInProgress(report.Explanation)
		}
	case res.Result.OK() && len(res.Executed) > 0:
		status.setFlags(true, true)
	case unparsed:
		// Same recovery as a reply without any tool call.
		status.setFlags(true, status.StatusUpdateDue())
	}
	return res
}

// execute runs actions in order and stops at the first failure. Executed
// holds every action that reached the device.
func (h *Helper) execute(ctx context.Context, status *StepStatus, actions []device.Action) ToolCallResolution {
	readOnly := status.Objective().Kind == KindVerification
	executed := make([]ExecutedTool, 0, len(actions))

	for _, a := range actions {
		et := executedFromAction(a)
		if reason, denied := h.denied(ctx, status, a, et, readOnly); denied {
			observability.RecordToolExecution(et.Name, "denied")
			return ToolCallResolution{Result: Failure(&et, reason), Executed: executed}
		}

		err := h.Device.Execute(ctx, a)
		executed = append(executed, et)
		if err != nil {
			observability.RecordToolExecution(et.Name, "error")
			offending := et
			var ae *device.ActionError
			if errors.As(err, &ae) {
				offending = executedFromAction(ae.Action)
			}
			return ToolCallResolution{Result: Failure(&offending, err.Error()), Executed: executed}
		}
		observability.RecordToolExecution(et.Name, "success")
	}
	return ToolCallResolution{Result: Success(), Executed: executed}
}

func (h *Helper) denied(ctx context.Context, status *StepStatus, a device.Action, et ExecutedTool, readOnly bool) (string, bool) {
	if h.Policy == nil {
		return "", false
	}
	argJSON, _ := json.Marshal(et.Args)
	result, err := h.Policy.Evaluate(ctx, governance.Request{
		Tool:      et.Name,
		Arguments: string(argJSON),
		RunID:     status.RunID(),
		ReadOnly:  readOnly,
		Mutates:   a.Mutates(),
	})
	if err != nil {
		return fmt.Sprintf("policy evaluation failed: %v", err), true
	}
	if result.Denied() {
		h.events().PolicyDenied(status.RunID(), status.Step(), et.Name, result.Reason)
		return "denied by policy: " + result.Reason, true
	}
	return "", false
}

func textMessage(role llms.ChatMessageType, text string) llms.MessageContent {
	return llms.MessageContent{Role: role, Parts: []llms.ContentPart{llms.TextPart(text)}}
}

// historyMessages renders one entry as an assistant turn (when the model
// said or did something) followed by the observed result.
func historyMessages(e HistoryEntry) []llms.MessageContent {
	if e.Note != "" {
		return []llms.MessageContent{textMessage(llms.ChatMessageTypeHuman, e.Note)}
	}

	var ai strings.Builder
	ai.WriteString(e.Reasoning)
	for _, et := range e.Executed {
		if ai.Len() > 0 {
			ai.WriteString("\n")
		}
		args, _ := json.Marshal(et.Args)
		fmt.Fprintf(&ai, "Called %s %s", et.Name, args)
	}

	var out []llms.MessageContent
	if ai.Len() > 0 {
		out = append(out, textMessage(llms.ChatMessageTypeAI, ai.String()))
	}

	var result string
	switch {
	case e.Uncommitted:
		result = "No tool was called. You must call one of the provided tools."
	case e.Result.OK():
		result = "Result: success"
	default:
		result = "Result: error: " + e.Result.Err.Error()
	}
	return append(out, textMessage(llms.ChatMessageTypeHuman, result))
}

// traceMessages flattens a request for the trace log, leaving out image data.
func traceMessages(messages []llms.MessageContent) []map[string]string {
	out := make([]map[string]string, 0, len(messages))
	for _, m := range messages {
		var text []string
		for _, p := range m.Parts {
			switch part := p.(type) {
			case llms.TextContent:
				text = append(text, part.Text)
			case llms.BinaryContent:
				text = append(text, fmt.Sprintf("<%s, %d bytes>", part.MIMEType, len(part.Data)))
			}
		}
		out = append(out, map[string]string{"role": string(m.Role), "content": strings.Join(text, "\n")})
	}
	return out
}
