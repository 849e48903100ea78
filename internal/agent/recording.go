package agent

import (
	"encoding/json"
	"reflect"
	"time"

	"github.com/rahul/uipilot/internal/device"
	"github.com/rahul/uipilot/internal/store"
)

// Recording converts a finished result into a stored recording.
func (r Result) Recording(scenario string, stepIndex int) (store.Recording, error) {
	rec := store.Recording{
		RunID:       r.RunID,
		Scenario:    scenario,
		StepIndex:   stepIndex,
		Outcome:     string(r.Outcome),
		Explanation: r.Explanation,
		Steps:       r.Steps,
	}
	if r.Status == nil {
		rec.History = json.RawMessage("[]")
		return rec, nil
	}
	obj := r.Status.Objective()
	rec.Kind = string(obj.Kind)
	rec.Prompt = obj.Prompt
	data, err := json.Marshal(r.Status.History())
	if err != nil {
		return store.Recording{}, err
	}
	rec.History = data
	return rec, nil
}

// DecodeHistory parses the history stored with a recording.
func DecodeHistory(data json.RawMessage) ([]HistoryEntry, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var entries []HistoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// ExecutedActions returns the device actions that ran successfully, in
// order. Status reports and failed actions are left out.
func (r Result) ExecutedActions() []device.Action {
	if r.Status == nil {
		return nil
	}
	var out []device.Action
	for _, e := range r.Status.History() {
		executed := e.Executed
		// A failed action is the last executed tool and matches the error.
		if n := len(executed); n > 0 && !e.Result.OK() && e.Result.Err.Tool != nil &&
			reflect.DeepEqual(executed[n-1], *e.Result.Err.Tool) {
			executed = executed[:n-1]
		}
		for _, et := range executed {
			if a, ok := et.Action(); ok {
				out = append(out, a)
			}
		}
	}
	return out
}

// Action rebuilds the device action of an executed primitive. It returns
// false for tools that are not device actions, such as status reports.
func (et ExecutedTool) Action() (device.Action, bool) {
	args := map[string]any{"type": et.Name}
	for k, v := range et.Args {
		args[k] = v
	}
	data, err := json.Marshal(args)
	if err != nil {
		return device.Action{}, false
	}
	var a device.Action
	if err := json.Unmarshal(data, &a); err != nil {
		return device.Action{}, false
	}
	if !isDeviceAction(a.Type) {
		return device.Action{}, false
	}
	return a, true
}

func isDeviceAction(t device.ActionType) bool {
	switch t {
	case device.ActionClick, device.ActionTypeText, device.ActionPressKey, device.ActionNavigate,
		device.ActionBack, device.ActionScroll, device.ActionWait, device.ActionAssertVisible,
		device.ActionAssertNotVisible, device.ActionTapPoint:
		return true
	default:
		return false
	}
}

// ReplayHistory builds history entries for actions replayed outside the
// agent loop. failed is the index of the action that failed, or -1.
func ReplayHistory(actions []device.Action, failed int, failure error) []HistoryEntry {
	entries := make([]HistoryEntry, 0, len(actions))
	for i, a := range actions {
		et := executedFromAction(a)
		e := HistoryEntry{
			Reasoning: "Replayed from a previous successful run.",
			Executed:  []ExecutedTool{et},
			Result:    Success(),
			Timestamp: time.Now(),
		}
		if i == failed {
			msg := "replay failed"
			if failure != nil {
				msg = failure.Error()
			}
			e.Result = Failure(&et, msg)
			entries = append(entries, e)
			break
		}
		entries = append(entries, e)
	}
	return entries
}
