package device

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot() Snapshot {
	return Snapshot{
		Platform: "web",
		URL:      "https://example.test/login",
		Title:    "Sign in",
		Text:     "Welcome back",
		Elements: []Element{
			{Index: 0, Tag: "input", Text: "Email", Selector: `[data-uipilot-index="0"]`},
			{Index: 1, Tag: "button", Text: "Log in with Google", Selector: `[data-uipilot-index="1"]`},
			{Index: 2, Tag: "button", Role: "button", Text: "Log in", Selector: `[data-uipilot-index="2"]`},
		},
	}
}

func TestSnapshot_Render(t *testing.T) {
	out := sampleSnapshot().Render()

	assert.Contains(t, out, "TITLE: Sign in")
	assert.Contains(t, out, "URL: https://example.test/login")
	assert.Contains(t, out, `[2] button[button] "Log in"`)
	assert.Contains(t, out, "-- CONTENT --\nWelcome back")
	assert.Less(t, strings.Index(out, "-- ELEMENTS --"), strings.Index(out, "-- CONTENT --"))
}

func TestSnapshot_RenderEmpty(t *testing.T) {
	assert.Equal(t, "(empty screen)", Snapshot{}.Render())
}

func TestSnapshot_MatchTextPrefersExact(t *testing.T) {
	matches := sampleSnapshot().MatchText("log in")
	require.Len(t, matches, 2)
	assert.Equal(t, 2, matches[0].Index)
	assert.Equal(t, 1, matches[1].Index)

	assert.Empty(t, sampleSnapshot().MatchText("   "))
	assert.Empty(t, sampleSnapshot().MatchText("checkout"))
}

func TestSnapshot_FindElement(t *testing.T) {
	el, ok := sampleSnapshot().FindElement(1)
	require.True(t, ok)
	assert.Equal(t, "button", el.Tag)

	_, ok = sampleSnapshot().FindElement(9)
	assert.False(t, ok)
}

func TestAction_Mutates(t *testing.T) {
	assert.True(t, Action{Type: ActionClick}.Mutates())
	assert.True(t, Action{Type: ActionNavigate}.Mutates())
	assert.False(t, Action{Type: ActionAssertVisible}.Mutates())
	assert.False(t, Action{Type: ActionScroll}.Mutates())
	assert.True(t, Action{Type: "unknown"}.Mutates())
}

func TestActionError_Unwrap(t *testing.T) {
	err := actionErr(Action{Type: ActionClick, Selector: "#go"}, ErrNoElement)

	var ae *ActionError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, ActionClick, ae.Action.Type)
	assert.ErrorIs(t, err, ErrNoElement)
	assert.Contains(t, err.Error(), "click(#go)")
	assert.NoError(t, actionErr(Action{}, nil))
}

func TestReadableText_StripsMarkup(t *testing.T) {
	html := `<html><head><title>Orders</title><script>var x = 1;</script></head>
<body><article><h1>Your orders</h1><p>Order   <b>42</b> has shipped and is on its way to you.</p>
<p>Track the parcel from the order page to see the delivery estimate.</p></article></body></html>`

	_, text := ReadableText(html, "https://shop.test/orders")

	assert.Contains(t, text, "shipped")
	assert.NotContains(t, text, "<b>")
	assert.NotContains(t, text, "var x")
}

func TestTruncateText_KeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "short", truncateText("short", 10))

	// "é" is two bytes; a cut at byte 3 would split the second one.
	out := truncateText("éé tail", 3)
	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, "é\n... (truncated)", out)

	long := strings.Repeat("日本", maxPageText)
	out = truncateText(long, maxPageText)
	assert.True(t, utf8.ValidString(out))
	assert.True(t, strings.HasSuffix(out, "... (truncated)"))
}

func TestDesktop_ExecuteBuildsXdotoolArgs(t *testing.T) {
	var calls [][]string
	d := NewDesktop("", false)
	d.run = func(_ context.Context, name string, args ...string) ([]byte, error) {
		calls = append(calls, append([]string{name}, args...))
		return nil, nil
	}

	require.NoError(t, d.Execute(context.Background(), Action{Type: ActionTapPoint, X: 10, Y: 20}))
	require.NoError(t, d.Execute(context.Background(), Action{Type: ActionPressKey, Key: "Return"}))

	assert.Equal(t, [][]string{
		{"xdotool", "mousemove", "10", "20", "click", "1"},
		{"xdotool", "key", "Return"},
	}, calls)
}

func TestDesktop_ExecuteRejectsUnsupported(t *testing.T) {
	d := NewDesktop("", false)
	d.run = func(context.Context, string, ...string) ([]byte, error) {
		t.Fatal("runner should not be called")
		return nil, nil
	}

	err := d.Execute(context.Background(), Action{Type: ActionNavigate, URL: "https://x.test"})
	assert.ErrorIs(t, err, ErrUnsupportedAction)
}

func TestDesktop_SnapshotReadsWindowTitle(t *testing.T) {
	d := NewDesktop("", false)
	d.run = func(_ context.Context, name string, args ...string) ([]byte, error) {
		return []byte("Calculator\n"), nil
	}

	snap, err := d.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "desktop", snap.Platform)
	assert.Equal(t, "Calculator", snap.Title)
}
