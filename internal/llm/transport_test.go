package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type stubModel struct {
	resp     *llms.ContentResponse
	err      error
	opts     llms.CallOptions
	messages []llms.MessageContent
}

func (m *stubModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	for _, opt := range options {
		opt(&m.opts)
	}
	return m.resp, m.err
}

func (m *stubModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestModelTransport_SplitsTextAndToolCalls(t *testing.T) {
	model := &stubModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		Content: "The login button is visible.",
		ToolCalls: []llms.ToolCall{
			{ID: "1", Type: "function", FunctionCall: &llms.FunctionCall{Name: "click", Arguments: `{"selector":"#a"}`}},
			{ID: "2", Type: "function", FunctionCall: &llms.FunctionCall{Name: "report_status", Arguments: `{}`}},
		},
		GenerationInfo: map[string]any{"PromptTokens": 120, "CompletionTokens": 8},
	}}}}

	var usage Usage
	tr := NewModelTransport(model, "gpt-test", false)
	tr.OnUsage = func(name string, u Usage) {
		assert.Equal(t, "gpt-test", name)
		usage = u
	}

	out, err := tr.Execute(context.Background(), Request{
		Tools:      []llms.Tool{{Type: "function", Function: &llms.FunctionDefinition{Name: "click"}}},
		ToolChoice: ToolChoiceRequired,
	})
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.False(t, out[0].IsToolCall())
	assert.Equal(t, "The login button is visible.", out[0].Text)
	assert.Equal(t, "click", out[1].ToolCall.FunctionCall.Name)
	assert.Equal(t, "report_status", out[2].ToolCall.FunctionCall.Name)

	assert.Equal(t, "required", model.opts.ToolChoice)
	assert.Len(t, model.opts.Tools, 1)
	assert.Equal(t, Usage{PromptTokens: 120, CompletionTokens: 8}, usage)
}

func TestModelTransport_NoToolsNoToolChoice(t *testing.T) {
	model := &stubModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "hi"}}}}
	tr := NewModelTransport(model, "m", false)

	_, err := tr.Execute(context.Background(), Request{ToolChoice: ToolChoiceRequired})
	require.NoError(t, err)
	assert.Nil(t, model.opts.ToolChoice)
}

func TestModelTransport_ImagesOnlyReachVisionModels(t *testing.T) {
	req := Request{Messages: []llms.MessageContent{{
		Role:  llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextPart("Current screen"), llms.BinaryPart("image/png", []byte{0x89, 'P', 'N', 'G'})},
	}}}

	textOnly := &stubModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "ok"}}}}
	_, err := NewModelTransport(textOnly, "m", false).Execute(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, textOnly.messages, 1)
	assert.Equal(t, []llms.ContentPart{llms.TextPart("Current screen")}, textOnly.messages[0].Parts)
	// The caller's request is left untouched.
	assert.Len(t, req.Messages[0].Parts, 2)

	vision := &stubModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "ok"}}}}
	_, err = NewModelTransport(vision, "m", true).Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, vision.messages[0].Parts, 2)
}

func TestModelTransport_Errors(t *testing.T) {
	boom := errors.New("rate limited")
	_, err := NewModelTransport(&stubModel{err: boom}, "m", false).Execute(context.Background(), Request{})
	assert.ErrorIs(t, err, boom)

	_, err = NewModelTransport(&stubModel{resp: &llms.ContentResponse{}}, "m", false).Execute(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestNewModel_UnknownProvider(t *testing.T) {
	_, err := NewModel(ProviderSettings{Name: "carrier-pigeon"})
	assert.Error(t, err)
}
