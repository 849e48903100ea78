package tools

import "fmt"

// StatusToolName is the well-known tool the model calls to end a step.
const StatusToolName = "report_status"

// StatusTool lets the model report whether the current objective is done.
type StatusTool struct{}

func (StatusTool) Name() string { return StatusToolName }

func (StatusTool) Description() string {
	return "Report the status of the current objective. Call with 'completed' once the objective is satisfied, 'failed' if it cannot be satisfied, or 'in_progress' if more actions are needed."
}

func (StatusTool) ReadOnly() bool { return true }

func (StatusTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"status": map[string]any{
				"type":        "string",
				"enum":        []string{string(ReportInProgress), string(ReportCompleted), string(ReportFailed)},
				"description": "The status of the current objective.",
			},
			"explanation": map[string]any{
				"type":        "string",
				"description": "Why the objective has this status, based on the current screen.",
			},
		},
		"required": []string{"status", "explanation"},
	}
}

func (StatusTool) Decode(args string) (Invocation, error) {
	var in struct {
		Status      string `json:"status"`
		Explanation string `json:"explanation"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}

	status := ReportedStatus(in.Status)
	switch status {
	case ReportInProgress, ReportCompleted, ReportFailed:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidArguments, in.Status)
	}
	return StatusReport{Tool: StatusToolName, Status: status, Explanation: in.Explanation}, nil
}
