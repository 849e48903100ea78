package tools

import (
	"fmt"

	"github.com/rahul/uipilot/internal/device"
)

// ActionTool exposes one primitive device action to the model.
type ActionTool struct {
	Action     device.ActionType
	Desc       string
	Properties map[string]any
	Required   []string
}

func (t ActionTool) Name() string        { return string(t.Action) }
func (t ActionTool) Description() string { return t.Desc }

func (t ActionTool) ReadOnly() bool {
	return !device.Action{Type: t.Action}.Mutates()
}

func (t ActionTool) Parameters() map[string]any {
	props := t.Properties
	if props == nil {
		props = map[string]any{}
	}
	required := t.Required
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func (t ActionTool) Decode(args string) (Invocation, error) {
	var a device.Action
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	// the tool name is authoritative for the action type
	a.Type = t.Action
	for _, field := range t.Required {
		if !hasField(a, field) {
			return nil, fmt.Errorf("%w: %s is required", ErrInvalidArguments, field)
		}
	}
	return Primitive{Tool: t.Name(), Action: a}, nil
}

func hasField(a device.Action, field string) bool {
	switch field {
	case "selector":
		return a.Selector != ""
	case "text":
		return a.Text != ""
	case "url":
		return a.URL != ""
	case "key":
		return a.Key != ""
	case "direction":
		return a.Direction != ""
	default:
		return true
	}
}

func prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}

func primitiveTools(platform string) []ActionTool {
	selector := prop("string", "CSS selector of the target element, e.g. [data-uipilot-index=\"3\"].")
	timeout := prop("integer", "How long to wait in milliseconds.")
	direction := map[string]any{"type": "string", "enum": []string{"up", "down"}, "description": "Scroll direction."}

	if platform == "desktop" {
		return []ActionTool{
			{
				Action:     device.ActionTapPoint,
				Desc:       "Click the screen at the given pixel coordinates.",
				Properties: map[string]any{"x": prop("integer", "X coordinate."), "y": prop("integer", "Y coordinate.")},
				Required:   []string{"x", "y"},
			},
			{
				Action:     device.ActionTypeText,
				Desc:       "Type text into the focused window.",
				Properties: map[string]any{"text": prop("string", "Text to type.")},
				Required:   []string{"text"},
			},
			{
				Action:     device.ActionPressKey,
				Desc:       "Press a key or key combination, e.g. 'Return' or 'ctrl+s'.",
				Properties: map[string]any{"key": prop("string", "Key name.")},
				Required:   []string{"key"},
			},
			{
				Action:     device.ActionScroll,
				Desc:       "Scroll the focused window.",
				Properties: map[string]any{"direction": direction},
			},
			{
				Action:     device.ActionWait,
				Desc:       "Wait before looking at the screen again.",
				Properties: map[string]any{"timeout_ms": timeout},
			},
		}
	}

	return []ActionTool{
		{
			Action:     device.ActionClick,
			Desc:       "Click the element matching a CSS selector.",
			Properties: map[string]any{"selector": selector},
			Required:   []string{"selector"},
		},
		{
			Action:     device.ActionTypeText,
			Desc:       "Type text into the input matching a CSS selector.",
			Properties: map[string]any{"selector": selector, "text": prop("string", "Text to type.")},
			Required:   []string{"selector", "text"},
		},
		{
			Action:     device.ActionPressKey,
			Desc:       "Press a keyboard key, e.g. 'Enter' or 'Tab'.",
			Properties: map[string]any{"key": prop("string", "Key to press.")},
			Required:   []string{"key"},
		},
		{
			Action:     device.ActionNavigate,
			Desc:       "Open a URL in the current tab.",
			Properties: map[string]any{"url": prop("string", "Absolute URL.")},
			Required:   []string{"url"},
		},
		{
			Action: device.ActionBack,
			Desc:   "Go back to the previous page.",
		},
		{
			Action:     device.ActionScroll,
			Desc:       "Scroll the page, or scroll an element into view when a selector is given.",
			Properties: map[string]any{"selector": selector, "direction": direction},
		},
		{
			Action:     device.ActionWait,
			Desc:       "Wait for an element to become visible, or for a fixed time when no selector is given.",
			Properties: map[string]any{"selector": selector, "timeout_ms": timeout},
		},
		{
			Action:     device.ActionAssertVisible,
			Desc:       "Assert that the element matching a CSS selector is visible.",
			Properties: map[string]any{"selector": selector, "timeout_ms": timeout},
			Required:   []string{"selector"},
		},
		{
			Action:     device.ActionAssertNotVisible,
			Desc:       "Assert that no visible element matches a CSS selector.",
			Properties: map[string]any{"selector": selector},
			Required:   []string{"selector"},
		},
	}
}
