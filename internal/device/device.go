package device

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNoElement is returned when a selector or query matches nothing on screen.
	ErrNoElement = errors.New("no matching element")
	// ErrUnsupportedAction is returned when a backend cannot perform an action type.
	ErrUnsupportedAction = errors.New("action not supported by device")
)

// ActionType names a primitive UI action.
type ActionType string

const (
	ActionClick            ActionType = "click"
	ActionTypeText         ActionType = "type_text"
	ActionPressKey         ActionType = "press_key"
	ActionNavigate         ActionType = "navigate"
	ActionBack             ActionType = "back"
	ActionScroll           ActionType = "scroll"
	ActionWait             ActionType = "wait"
	ActionAssertVisible    ActionType = "assert_visible"
	ActionAssertNotVisible ActionType = "assert_not_visible"
	ActionTapPoint         ActionType = "tap_point"
)

// Action is one primitive instruction for a device backend.
// Type is the discriminator; the remaining fields are set per type.
type Action struct {
	Type      ActionType `json:"type"`
	Selector  string     `json:"selector,omitempty"`
	Text      string     `json:"text,omitempty"`
	URL       string     `json:"url,omitempty"`
	Key       string     `json:"key,omitempty"`
	X         int        `json:"x,omitempty"`
	Y         int        `json:"y,omitempty"`
	Direction string     `json:"direction,omitempty"`
	TimeoutMs int        `json:"timeout_ms,omitempty"`
}

// Mutates reports whether the action can change application state.
func (a Action) Mutates() bool {
	switch a.Type {
	case ActionClick, ActionTypeText, ActionPressKey, ActionNavigate, ActionBack, ActionTapPoint:
		return true
	case ActionScroll, ActionWait, ActionAssertVisible, ActionAssertNotVisible:
		return false
	default:
		return true
	}
}

func (a Action) String() string {
	switch {
	case a.Selector != "" && a.Text != "":
		return fmt.Sprintf("%s(%s, %q)", a.Type, a.Selector, a.Text)
	case a.Selector != "":
		return fmt.Sprintf("%s(%s)", a.Type, a.Selector)
	case a.URL != "":
		return fmt.Sprintf("%s(%s)", a.Type, a.URL)
	case a.Key != "":
		return fmt.Sprintf("%s(%s)", a.Type, a.Key)
	case a.Type == ActionTapPoint:
		return fmt.Sprintf("%s(%d,%d)", a.Type, a.X, a.Y)
	default:
		return string(a.Type)
	}
}

// ActionError reports a failed primitive action together with the action itself.
type ActionError struct {
	Action Action
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Action, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// Element is one interactable node of the current screen.
type Element struct {
	Index    int    `json:"index"`
	Tag      string `json:"tag"`
	Role     string `json:"role,omitempty"`
	Text     string `json:"text,omitempty"`
	Selector string `json:"selector"`
}

// Snapshot is the observable state of the device at one point in time.
type Snapshot struct {
	Platform   string
	URL        string
	Title      string
	Text       string
	Elements   []Element
	Screenshot []byte
}

// Device executes primitive actions and reports the screen state.
type Device interface {
	Platform() string
	Execute(ctx context.Context, action Action) error
	Snapshot(ctx context.Context) (Snapshot, error)
}

func actionErr(a Action, err error) error {
	if err == nil {
		return nil
	}
	return &ActionError{Action: a, Err: err}
}
