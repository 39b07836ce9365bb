package brain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/antoniostano/aria/internal/prompt"
)

// DeltaHandler receives streaming text fragments of the reply.
type DeltaHandler func(delta string) error

// Invoker completes an assembled prompt into a reply. Callers own the
// precondition that the message sequence already satisfies the alternation
// invariant; an invoker never inspects or repairs it.
type Invoker interface {
	Complete(ctx context.Context, messages []prompt.Message, onDelta DeltaHandler) (string, error)
}

// Config controls invoker construction.
type Config struct {
	Mode    string
	Model   string
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewInvoker builds the configured backend: "openai" requires an API key,
// "mock" is the deterministic local responder, "auto" prefers openai with a
// mock fallback when a key is present.
func NewInvoker(cfg Config) (Invoker, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.APIKey) != "" {
			return NewFallbackInvoker(NewOpenAIInvoker(cfg), NewMockInvoker()), nil
		}
		return NewMockInvoker(), nil
	case "openai":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, errors.New("brain API key is required for openai mode")
		}
		return NewOpenAIInvoker(cfg), nil
	case "mock":
		return NewMockInvoker(), nil
	default:
		return nil, fmt.Errorf("unsupported brain mode %q", cfg.Mode)
	}
}
