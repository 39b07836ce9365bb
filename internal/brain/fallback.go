package brain

import (
	"context"
	"errors"
	"fmt"

	"github.com/antoniostano/aria/internal/prompt"
)

// FallbackInvoker attempts a primary invoker first and falls back on error.
// Cancellation is never masked by the fallback.
type FallbackInvoker struct {
	primary  Invoker
	fallback Invoker
}

func NewFallbackInvoker(primary, fallback Invoker) *FallbackInvoker {
	return &FallbackInvoker{primary: primary, fallback: fallback}
}

func (inv *FallbackInvoker) Complete(ctx context.Context, messages []prompt.Message, onDelta DeltaHandler) (string, error) {
	if inv.primary == nil {
		if inv.fallback != nil {
			return inv.fallback.Complete(ctx, messages, onDelta)
		}
		return "", fmt.Errorf("fallback invoker misconfigured")
	}

	text, err := inv.primary.Complete(ctx, messages, onDelta)
	if err == nil {
		return text, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "", err
	}
	if inv.fallback == nil {
		return "", err
	}

	fallbackText, fallbackErr := inv.fallback.Complete(ctx, messages, onDelta)
	if fallbackErr != nil {
		return "", fmt.Errorf("primary invoker error: %w; fallback invoker error: %v", err, fallbackErr)
	}
	return fallbackText, nil
}
