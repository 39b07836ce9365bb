package brain

import (
	"context"
	"fmt"
	"strings"

	"github.com/antoniostano/aria/internal/prompt"
)

// MockInvoker provides deterministic local replies when no model backend is
// configured.
type MockInvoker struct{}

func NewMockInvoker() *MockInvoker { return &MockInvoker{} }

func (inv *MockInvoker) Complete(ctx context.Context, messages []prompt.Message, onDelta DeltaHandler) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	text := buildMockReply(messages)
	if onDelta != nil && text != "" {
		if err := onDelta(text); err != nil {
			return "", err
		}
	}
	return text, nil
}

func buildMockReply(messages []prompt.Message) string {
	utterance := ""
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == prompt.RoleUser {
			utterance = strings.TrimSpace(messages[i].Content)
			break
		}
	}
	if utterance == "" {
		return "I am listening."
	}

	if len(messages) > 0 && strings.Contains(messages[0].Content, prompt.Disclosure) {
		return fmt.Sprintf("I don't have any memory of earlier conversations, but I'm here now. You said: %s", utterance)
	}
	return fmt.Sprintf("I hear you: %s", utterance)
}
