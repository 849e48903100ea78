package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
)

// ErrEmptyResponse is returned when the provider answers without any choice.
var ErrEmptyResponse = errors.New("llm returned no choices")

// ToolChoice controls whether the model may answer without calling a tool.
type ToolChoice string

const (
	ToolChoiceAuto     ToolChoice = "auto"
	ToolChoiceRequired ToolChoice = "required"
)

// Request is one chat completion request.
type Request struct {
	Messages   []llms.MessageContent
	Tools      []llms.Tool
	ToolChoice ToolChoice
}

// ResponseMessage is either assistant text or a single tool call.
type ResponseMessage struct {
	Text     string
	ToolCall *llms.ToolCall
}

// IsToolCall reports whether the message carries a tool call.
func (m ResponseMessage) IsToolCall() bool {
	return m.ToolCall != nil && m.ToolCall.FunctionCall != nil
}

// Usage is the token accounting of one call, when the provider reports it.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Transport sends a request to a model provider.
type Transport interface {
	Execute(ctx context.Context, req Request) ([]ResponseMessage, error)
}

// UsageFunc receives token usage after each successful call.
type UsageFunc func(model string, usage Usage)

// ModelTransport adapts a langchaingo model to Transport.
type ModelTransport struct {
	Model     llms.Model
	ModelName string
	// Vision marks models that accept image parts.
	Vision  bool
	OnUsage UsageFunc
}

func NewModelTransport(model llms.Model, name string, vision bool) *ModelTransport {
	return &ModelTransport{Model: model, ModelName: name, Vision: vision}
}

func (t *ModelTransport) Execute(ctx context.Context, req Request) ([]ResponseMessage, error) {
	opts := []llms.CallOption{}
	if len(req.Tools) > 0 {
		opts = append(opts, llms.WithTools(req.Tools))
		if req.ToolChoice != "" {
			opts = append(opts, llms.WithToolChoice(string(req.ToolChoice)))
		}
	}

	messages := req.Messages
	if !t.Vision {
		messages = withoutImages(messages)
	}

	resp, err := t.Model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	choice := resp.Choices[0]
	if t.OnUsage != nil {
		t.OnUsage(t.ModelName, usageFrom(choice.GenerationInfo))
	}

	var out []ResponseMessage
	if choice.Content != "" {
		out = append(out, ResponseMessage{Text: choice.Content})
	}
	for i := range choice.ToolCalls {
		tc := choice.ToolCalls[i]
		if tc.FunctionCall == nil {
			continue
		}
		out = append(out, ResponseMessage{ToolCall: &tc})
	}
	// Older providers report a single function call instead of tool calls.
	if len(choice.ToolCalls) == 0 && choice.FuncCall != nil {
		out = append(out, ResponseMessage{ToolCall: &llms.ToolCall{
			ID:           fmt.Sprintf("call_%s", choice.FuncCall.Name),
			Type:         "function",
			FunctionCall: choice.FuncCall,
		}})
	}
	return out, nil
}

// withoutImages drops binary parts, which text-only models reject.
func withoutImages(messages []llms.MessageContent) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		parts := make([]llms.ContentPart, 0, len(m.Parts))
		for _, p := range m.Parts {
			if _, ok := p.(llms.BinaryContent); ok {
				continue
			}
			parts = append(parts, p)
		}
		out = append(out, llms.MessageContent{Role: m.Role, Parts: parts})
	}
	return out
}

func usageFrom(info map[string]any) Usage {
	return Usage{
		PromptTokens:     intValue(info["PromptTokens"]),
		CompletionTokens: intValue(info["CompletionTokens"]),
	}
}

func intValue(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
