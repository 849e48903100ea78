package agent

import (
	"context"
	"strings"
	"time"

	"github.com/rahul/uipilot/internal/device"
	"github.com/rahul/uipilot/internal/device/devicetest"
	"github.com/rahul/uipilot/internal/llm"
	"github.com/rahul/uipilot/internal/llm/llmtest"
	"github.com/rahul/uipilot/internal/tools"
	"github.com/tmc/langchaingo/llms"
)

var loginScreen = device.Snapshot{
	Platform: "web",
	URL:      "https://shop.test/login",
	Title:    "Login",
	Elements: []device.Element{
		{Index: 0, Tag: "input", Text: "Email", Selector: "#email"},
		{Index: 1, Tag: "input", Text: "Password", Selector: "#password"},
		{Index: 2, Tag: "button", Text: "Log in", Selector: "#submit"},
	},
}

type testEnv struct {
	device    *devicetest.Fake
	transport *llmtest.Scripted
	helper    *Helper
	runner    *Runner
	delays    []time.Duration
}

func newTestEnv(transport *llmtest.Scripted) *testEnv {
	env := &testEnv{
		device:    devicetest.New(loginScreen),
		transport: transport,
	}
	env.helper = NewHelper(transport, tools.NewDefaultRegistry("web"), env.device, NewPromptManager(""))
	env.helper.Retry = RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Increment:   time.Second,
		Sleep: func(_ context.Context, d time.Duration) error {
			env.delays = append(env.delays, d)
			return nil
		},
	}
	env.runner = NewRunner(env.helper)
	return env
}

func messageText(m llms.MessageContent) string {
	var parts []string
	for _, p := range m.Parts {
		if t, ok := p.(llms.TextContent); ok {
			parts = append(parts, t.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func requestText(req llm.Request) string {
	var all []string
	for _, m := range req.Messages {
		all = append(all, messageText(m))
	}
	return strings.Join(all, "\n")
}

type cancelAfter struct {
	checks int
	after  int
}

func (c *cancelAfter) Cancelled() bool {
	c.checks++
	return c.checks > c.after
}
