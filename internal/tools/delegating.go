package tools

import (
	"fmt"

	"github.com/rahul/uipilot/internal/device"
)

var indexProp = map[string]any{
	"type":        "integer",
	"description": "Index of the element as listed under ELEMENTS in the current screen.",
}

// TapElementTool clicks an element chosen by its index in the screen listing.
type TapElementTool struct{}

func (TapElementTool) Name() string   { return "tap_element" }
func (TapElementTool) ReadOnly() bool { return false }

func (TapElementTool) Description() string {
	return "Click the element with the given index from the ELEMENTS list of the current screen."
}

func (TapElementTool) Parameters() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"index": indexProp},
		"required":   []string{"index"},
	}
}

func (t TapElementTool) Decode(args string) (Invocation, error) {
	var in struct {
		Index *int `json:"index"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	if in.Index == nil {
		return nil, fmt.Errorf("%w: index is required", ErrInvalidArguments)
	}
	index := *in.Index
	return Delegation{
		Tool: t.Name(),
		Expand: func(snap device.Snapshot) ([]device.Action, error) {
			el, ok := snap.FindElement(index)
			if !ok {
				return nil, fmt.Errorf("%w: index %d", device.ErrNoElement, index)
			}
			return []device.Action{{Type: device.ActionClick, Selector: el.Selector}}, nil
		},
	}, nil
}

// ClickTextTool clicks the element whose visible text best matches a query.
type ClickTextTool struct{}

func (ClickTextTool) Name() string   { return "click_text" }
func (ClickTextTool) ReadOnly() bool { return false }

func (ClickTextTool) Description() string {
	return "Click the element whose visible text matches the given text. Exact matches are preferred over partial ones."
}

func (ClickTextTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{"type": "string", "description": "Visible text of the element."},
		},
		"required": []string{"text"},
	}
}

func (t ClickTextTool) Decode(args string) (Invocation, error) {
	var in struct {
		Text string `json:"text"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	if in.Text == "" {
		return nil, fmt.Errorf("%w: text is required", ErrInvalidArguments)
	}
	return Delegation{
		Tool: t.Name(),
		Expand: func(snap device.Snapshot) ([]device.Action, error) {
			matches := snap.MatchText(in.Text)
			if len(matches) == 0 {
				return nil, fmt.Errorf("%w: text %q", device.ErrNoElement, in.Text)
			}
			return []device.Action{{Type: device.ActionClick, Selector: matches[0].Selector}}, nil
		},
	}, nil
}

// FillFormTool types into several inputs and optionally clicks a submit element.
type FillFormTool struct{}

func (FillFormTool) Name() string   { return "fill_form" }
func (FillFormTool) ReadOnly() bool { return false }

func (FillFormTool) Description() string {
	return "Fill several inputs at once, identified by their ELEMENTS index, then optionally click a submit element."
}

func (FillFormTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"fields": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"index": indexProp,
						"text":  map[string]any{"type": "string", "description": "Text to type."},
					},
					"required": []string{"index", "text"},
				},
			},
			"submit_index": map[string]any{
				"type":        "integer",
				"description": "Index of the element to click after filling, if any.",
			},
		},
		"required": []string{"fields"},
	}
}

type formField struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

func (t FillFormTool) Decode(args string) (Invocation, error) {
	var in struct {
		Fields      []formField `json:"fields"`
		SubmitIndex *int        `json:"submit_index"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	if len(in.Fields) == 0 && in.SubmitIndex == nil {
		return nil, fmt.Errorf("%w: fields are required", ErrInvalidArguments)
	}
	return Delegation{
		Tool: t.Name(),
		Expand: func(snap device.Snapshot) ([]device.Action, error) {
			actions := make([]device.Action, 0, len(in.Fields)+1)
			for _, f := range in.Fields {
				el, ok := snap.FindElement(f.Index)
				if !ok {
					return nil, fmt.Errorf("%w: index %d", device.ErrNoElement, f.Index)
				}
				actions = append(actions, device.Action{Type: device.ActionTypeText, Selector: el.Selector, Text: f.Text})
			}
			if in.SubmitIndex != nil {
				el, ok := snap.FindElement(*in.SubmitIndex)
				if !ok {
					return nil, fmt.Errorf("%w: index %d", device.ErrNoElement, *in.SubmitIndex)
				}
				actions = append(actions, device.Action{Type: device.ActionClick, Selector: el.Selector})
			}
			return actions, nil
		},
	}, nil
}
