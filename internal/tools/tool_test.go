package tools

import (
	"testing"

	"github.com/rahul/uipilot/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var loginScreen = device.Snapshot{
	Elements: []device.Element{
		{Index: 0, Tag: "input", Text: "Email", Selector: "#email"},
		{Index: 1, Tag: "input", Text: "Password", Selector: "#password"},
		{Index: 2, Tag: "button", Text: "Log in", Selector: "#submit"},
	},
}

func TestRegistry_ResolveUnregistered(t *testing.T) {
	r := NewRegistry()
	_, err := r.Resolve("teleport", "{}")
	assert.ErrorIs(t, err, ErrToolUnregistered)
}

func TestRegistry_DefinitionsKeepOrderAndFilterReadOnly(t *testing.T) {
	r := NewDefaultRegistry("web")

	all := r.Definitions(false)
	require.NotEmpty(t, all)
	assert.Equal(t, "click", all[0].Function.Name)
	assert.Equal(t, StatusToolName, all[len(all)-1].Function.Name)

	var readOnly []string
	for _, d := range r.Definitions(true) {
		readOnly = append(readOnly, d.Function.Name)
	}
	assert.ElementsMatch(t, []string{"scroll", "wait", "assert_visible", "assert_not_visible", StatusToolName}, readOnly)
}

func TestRegistry_DesktopHasNoDelegatingTools(t *testing.T) {
	r := NewDefaultRegistry("desktop")
	assert.Nil(t, r.Get("tap_element"))
	assert.NotNil(t, r.Get("tap_point"))
	assert.NotNil(t, r.Get(StatusToolName))
}

func TestStatusTool_Decode(t *testing.T) {
	r := NewDefaultRegistry("web")

	for _, status := range []ReportedStatus{ReportInProgress, ReportCompleted, ReportFailed} {
		inv, err := r.Resolve(StatusToolName, `{"status":"`+string(status)+`","explanation":"seen"}`)
		require.NoError(t, err)
		report, ok := inv.(StatusReport)
		require.True(t, ok)
		assert.Equal(t, status, report.Status)
		assert.Equal(t, "seen", report.Explanation)
	}

	_, err := r.Resolve(StatusToolName, `{"status":"done"}`)
	assert.ErrorIs(t, err, ErrInvalidArguments)
}

func TestActionTool_DecodeForcesType(t *testing.T) {
	r := NewDefaultRegistry("web")

	inv, err := r.Resolve("click", `{"type":"navigate","selector":"#go"}`)
	require.NoError(t, err)
	p, ok := inv.(Primitive)
	require.True(t, ok)
	assert.Equal(t, device.Action{Type: device.ActionClick, Selector: "#go"}, p.Action)
}

func TestActionTool_DecodeValidation(t *testing.T) {
	r := NewDefaultRegistry("web")

	_, err := r.Resolve("click", `{}`)
	assert.ErrorIs(t, err, ErrInvalidArguments)

	_, err = r.Resolve("type_text", `not json`)
	assert.ErrorIs(t, err, ErrInvalidArguments)

	inv, err := r.Resolve("back", "")
	require.NoError(t, err)
	assert.Equal(t, "back", inv.ToolName())
}

func TestTapElement_Expand(t *testing.T) {
	inv, err := TapElementTool{}.Decode(`{"index":2}`)
	require.NoError(t, err)

	d := inv.(Delegation)
	actions, err := d.Expand(loginScreen)
	require.NoError(t, err)
	assert.Equal(t, []device.Action{{Type: device.ActionClick, Selector: "#submit"}}, actions)

	inv, err = TapElementTool{}.Decode(`{"index":7}`)
	require.NoError(t, err)
	_, err = inv.(Delegation).Expand(loginScreen)
	assert.ErrorIs(t, err, device.ErrNoElement)

	_, err = TapElementTool{}.Decode(`{}`)
	assert.ErrorIs(t, err, ErrInvalidArguments)
}

func TestClickText_Expand(t *testing.T) {
	inv, err := ClickTextTool{}.Decode(`{"text":"log in"}`)
	require.NoError(t, err)

	actions, err := inv.(Delegation).Expand(loginScreen)
	require.NoError(t, err)
	assert.Equal(t, []device.Action{{Type: device.ActionClick, Selector: "#submit"}}, actions)

	inv, err = ClickTextTool{}.Decode(`{"text":"sign up"}`)
	require.NoError(t, err)
	_, err = inv.(Delegation).Expand(loginScreen)
	assert.ErrorIs(t, err, device.ErrNoElement)
}

func TestFillForm_ExpandsToSeveralActions(t *testing.T) {
	inv, err := FillFormTool{}.Decode(`{"fields":[{"index":0,"text":"a@b.c"},{"index":1,"text":"secret"}],"submit_index":2}`)
	require.NoError(t, err)

	actions, err := inv.(Delegation).Expand(loginScreen)
	require.NoError(t, err)
	assert.Equal(t, []device.Action{
		{Type: device.ActionTypeText, Selector: "#email", Text: "a@b.c"},
		{Type: device.ActionTypeText, Selector: "#password", Text: "secret"},
		{Type: device.ActionClick, Selector: "#submit"},
	}, actions)
}

func TestFillForm_EmptyFormIsInvalid(t *testing.T) {
	_, err := FillFormTool{}.Decode(`{"fields":[]}`)
	assert.ErrorIs(t, err, ErrInvalidArguments)
}
