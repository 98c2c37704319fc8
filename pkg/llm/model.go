package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Vikiflow-Dev-Design/chat-app-sub001/pkg/config"
)

// ErrUnavailable wraps any transport or provider failure so callers can branch
// on a typed check instead of string parsing.
var ErrUnavailable = errors.New("model unavailable")

// IsUnavailable reports whether err came from a failed model call.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// Tool declares a structured-output function schema the model may call.
// Parameters holds JSON-schema property definitions keyed by argument name.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Required    []string
}

// ToolCall is a structured call emitted by the model. Arguments is the raw
// JSON payload; decoding belongs to the caller's parse boundary.
type ToolCall struct {
	Name      string
	Arguments string
}

// Request is a single-turn completion. When Tool is set the model may answer
// with a structured call instead of (or alongside) free text; temperature is
// independent per request so classification and persona chat can diverge.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
	Tool        *Tool
}

// Result carries whichever shapes the model produced. Text and ToolCall can
// both be empty when the provider returns a degenerate response; callers must
// treat that the same as any other unrecognized output.
type Result struct {
	Text     string
	ToolCall *ToolCall
}

// Model is the language-model collaborator. Implementations must be safe for
// concurrent use and must not retry internally.
type Model interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Result, error)
}

// providerInfo holds defaults for each supported chat provider.
type providerInfo struct {
	BaseURL      string
	DefaultModel string
	KeyEnv       string
}

// chatProviders maps provider names to their configuration defaults. Default
// model choices favor cheap, fast models: classification and grounded
// answering are high-volume, low-token calls.
var chatProviders = map[string]providerInfo{
	"openai": {
		BaseURL:      "https://api.openai.com/v1",
		DefaultModel: "gpt-4o-mini",
		KeyEnv:       "OPENAI_API_KEY",
	},
	"anthropic": {
		DefaultModel: "claude-sonnet-4-5",
		KeyEnv:       "ANTHROPIC_API_KEY",
	},
}

// NewModel constructs a Model from config, applying provider defaults and the
// client-side rate limit. An unsupported or unconfigured provider is a
// construction error rather than a silent nil: every answer path needs a model.
func NewModel(cfg config.ModelConfig) (Model, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	info, supported := chatProviders[provider]
	if !supported {
		return nil, fmt.Errorf("unsupported model provider: %q", cfg.Provider)
	}

	modelID := strings.TrimSpace(cfg.ModelID)
	if modelID == "" {
		modelID = info.DefaultModel
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv(info.KeyEnv))
	}
	if apiKey == "" {
		return nil, fmt.Errorf("model provider %q requires an api key (set CHATRAG_API_KEY or %s)", provider, info.KeyEnv)
	}
	apiBase := strings.TrimSpace(cfg.APIBase)
	if apiBase == "" {
		apiBase = info.BaseURL
	}
	timeout := 60 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	var m Model
	switch provider {
	case "openai":
		m = newOpenAIModel(modelID, apiKey, apiBase, timeout)
	case "anthropic":
		m = newAnthropicModel(modelID, apiKey, apiBase, timeout)
	}
	return withRateLimit(m, cfg.RequestsPerMinute), nil
}

// limitedModel gates Complete calls through a token bucket so a burst of
// tenant queries cannot stampede the provider.
type limitedModel struct {
	inner Model
	lim   *rate.Limiter
}

func withRateLimit(m Model, rpm int) Model {
	if rpm <= 0 {
		return m
	}
	burst := rpm / 10
	if burst < 1 {
		burst = 1
	}
	return &limitedModel{inner: m, lim: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst)}
}

func (l *limitedModel) Name() string { return l.inner.Name() }

func (l *limitedModel) Complete(ctx context.Context, req Request) (*Result, error) {
	if err := l.lim.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return l.inner.Complete(ctx, req)
}

func normalizeMaxTokens(n int) int {
	if n <= 0 {
		return 1024
	}
	return n
}
