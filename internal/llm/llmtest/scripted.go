// Package llmtest provides a deterministic llm.Transport for tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/rahul/uipilot/internal/llm"
	"github.com/rahul/uipilot/internal/tools"
	"github.com/tmc/langchaingo/llms"
)

// Response configures one model turn in a scripted sequence.
type Response struct {
	Messages []llm.ResponseMessage
	Err      error
}

// Scripted replays responses in order and records every request. Once the
// script is exhausted it keeps returning Fallback.
type Scripted struct {
	mu        sync.Mutex
	index     int
	responses []Response
	requests  []llm.Request

	Fallback Response
}

func NewScripted(responses ...Response) *Scripted {
	cloned := make([]Response, len(responses))
	copy(cloned, responses)
	return &Scripted{
		responses: cloned,
		Fallback:  Reply(Text("I am not sure what to do.")),
	}
}

var _ llm.Transport = (*Scripted)(nil)

func (s *Scripted) Execute(_ context.Context, req llm.Request) ([]llm.ResponseMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
	current := s.Fallback
	if s.index < len(s.responses) {
		current = s.responses[s.index]
		s.index++
	}
	if current.Err != nil {
		return nil, current.Err
	}
	return append([]llm.ResponseMessage(nil), current.Messages...), nil
}

// Requests returns every request received so far.
func (s *Scripted) Requests() []llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Request(nil), s.requests...)
}

func Reply(msgs ...llm.ResponseMessage) Response {
	return Response{Messages: msgs}
}

func Fail(err error) Response {
	return Response{Err: err}
}

func Text(text string) llm.ResponseMessage {
	return llm.ResponseMessage{Text: text}
}

func Call(name, args string) llm.ResponseMessage {
	return llm.ResponseMessage{ToolCall: &llms.ToolCall{
		ID:           "call_" + name,
		Type:         "function",
		FunctionCall: &llms.FunctionCall{Name: name, Arguments: args},
	}}
}

// Status is a report_status call.
func Status(status, explanation string) llm.ResponseMessage {
	return Call(tools.StatusToolName, `{"status":"`+status+`","explanation":"`+explanation+`"}`)
}
