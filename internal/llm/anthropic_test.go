package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type fakeModel struct {
	resp     *llms.ContentResponse
	err      error
	messages []llms.MessageContent
	opts     llms.CallOptions
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	for _, opt := range options {
		opt(&f.opts)
	}
	return f.resp, f.err
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestCompleteSendsSystemAndHumanParts(t *testing.T) {
	t.Parallel()

	model := &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		Content:        `{"ok": true}`,
		GenerationInfo: map[string]any{"InputTokens": 12, "OutputTokens": 3},
	}}}}
	provider := NewModelProvider(model, time.Second)

	resp, err := provider.Complete(context.Background(), &LLMRequest{
		SystemPrompt: "system",
		Prompt:       "hello",
		MaxTokens:    100,
		Temperature:  0.1,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"ok": true}`, resp.Content)
	assert.Equal(t, 12, resp.Usage.InputTokens)
	assert.Equal(t, 3, resp.Usage.OutputTokens)

	require.Len(t, model.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[1].Role)
	assert.Equal(t, 100, model.opts.MaxTokens)
	assert.InDelta(t, 0.1, model.opts.Temperature, 1e-9)
}

func TestCompleteWithoutSystemPrompt(t *testing.T) {
	t.Parallel()

	model := &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "hi"}}}}
	provider := NewModelProvider(model, 0)

	resp, err := provider.Complete(context.Background(), &LLMRequest{Prompt: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Content)
	assert.Len(t, model.messages, 1)
	assert.Zero(t, resp.Usage.InputTokens)
}

func TestCompleteErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")
	_, err := NewModelProvider(&fakeModel{err: boom}, time.Second).
		Complete(context.Background(), &LLMRequest{Prompt: "x"})
	require.ErrorIs(t, err, boom)

	_, err = NewModelProvider(&fakeModel{resp: &llms.ContentResponse{}}, time.Second).
		Complete(context.Background(), &LLMRequest{Prompt: "x"})
	require.ErrorIs(t, err, ErrEmptyResponse)
}
