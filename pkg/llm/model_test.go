package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vikiflow-Dev-Design/chat-app-sub001/pkg/config"
)

type stubModel struct {
	calls int
	err   error
}

func (s *stubModel) Name() string { return "stub" }

func (s *stubModel) Complete(ctx context.Context, req Request) (*Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &Result{Text: "ok"}, nil
}

func TestNewModelUnsupportedProvider(t *testing.T) {
	_, err := NewModel(config.ModelConfig{Provider: "llama-at-home", APIKey: "k"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported model provider")
}

func TestNewModelRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewModel(config.ModelConfig{Provider: "openai"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key")
}

func TestNewModelProviderDefaults(t *testing.T) {
	m, err := NewModel(config.ModelConfig{Provider: "openai", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-4o-mini", m.Name())

	m, err = NewModel(config.ModelConfig{Provider: "Anthropic", APIKey: "k", ModelID: "claude-haiku-4-5"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic/claude-haiku-4-5", m.Name())
}

func TestNewModelReadsKeyFromEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "env-key")
	_, err := NewModel(config.ModelConfig{Provider: "anthropic"})
	require.NoError(t, err)
}

func TestWithRateLimitZeroIsPassthrough(t *testing.T) {
	inner := &stubModel{}
	m := withRateLimit(inner, 0)
	assert.Same(t, Model(inner), m)
}

func TestLimitedModelDelegates(t *testing.T) {
	inner := &stubModel{}
	m := withRateLimit(inner, 600)
	res, err := m.Complete(context.Background(), Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Text)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, "stub", m.Name())
}

func TestLimitedModelPropagatesErrors(t *testing.T) {
	inner := &stubModel{err: fmt.Errorf("%w: 503", ErrUnavailable)}
	m := withRateLimit(inner, 600)
	_, err := m.Complete(context.Background(), Request{Prompt: "hi"})
	assert.True(t, IsUnavailable(err))
}

func TestLimitedModelCancelledContext(t *testing.T) {
	inner := &stubModel{}
	// Burst of 1 at a very slow refill; the second call must wait and then
	// fail when the context expires.
	m := withRateLimit(inner, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := m.Complete(ctx, Request{Prompt: "one"})
	require.NoError(t, err)
	_, err = m.Complete(ctx, Request{Prompt: "two"})
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
	assert.Equal(t, 1, inner.calls)
}

func TestIsUnavailable(t *testing.T) {
	assert.True(t, IsUnavailable(ErrUnavailable))
	assert.True(t, IsUnavailable(fmt.Errorf("%w: wrapped", ErrUnavailable)))
	assert.False(t, IsUnavailable(errors.New("other")))
	assert.False(t, IsUnavailable(nil))
}

func TestNormalizeMaxTokens(t *testing.T) {
	assert.Equal(t, 1024, normalizeMaxTokens(0))
	assert.Equal(t, 1024, normalizeMaxTokens(-5))
	assert.Equal(t, 300, normalizeMaxTokens(300))
}
