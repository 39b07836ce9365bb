package prompt

import (
	"fmt"
	"strings"
)

type state int

const (
	stateInit state = iota
	stateSystemConsolidated
	stateTurnsAppended
	stateFinalized
)

// Assembler builds an AssembledPrompt through a fixed state machine:
// INIT -> SYSTEM_CONSOLIDATED -> TURNS_APPENDED -> FINALIZED. Out-of-order
// transitions are programming errors and fail loudly.
type Assembler struct {
	state    state
	messages []Message
	maxChars int
}

func NewAssembler(maxChars int) *Assembler {
	return &Assembler{maxChars: maxChars}
}

// ConsolidateSystem concatenates all system-level context into exactly one
// leading system message. No system content may be introduced after this
// transition; a second system message anywhere in the sequence breaks the
// alternation contract of the model backend.
func (a *Assembler) ConsolidateSystem(parts ...string) error {
	if a.state != stateInit {
		return fmt.Errorf("%w: ConsolidateSystem called in state %d", ErrStructural, a.state)
	}
	var kept []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, strings.TrimRight(p, "\n"))
		}
	}
	a.messages = append(a.messages, Message{
		Role:    RoleSystem,
		Content: strings.Join(kept, "\n\n"),
	})
	a.state = stateSystemConsolidated
	return nil
}

// AppendTurns appends the stored conversation log in its given chronological
// order. Consecutive same-role turns (edits, retries) are merged into one
// message by content concatenation; a turn is never dropped and no
// placeholder text is ever fabricated to restore alternation.
func (a *Assembler) AppendTurns(turns []Turn) error {
	if a.state != stateSystemConsolidated {
		return fmt.Errorf("%w: AppendTurns called in state %d", ErrStructural, a.state)
	}
	for _, t := range turns {
		if t.Role != RoleUser && t.Role != RoleAssistant {
			return fmt.Errorf("%w: turn role %q is not user or assistant", ErrStructural, t.Role)
		}
		a.appendOrMerge(Message{Role: t.Role, Content: t.Content})
	}
	a.state = stateTurnsAppended
	return nil
}

// Finalize appends the current utterance as the terminal user message and
// validates the whole sequence. A validation failure is a defect, not a
// recoverable condition: the partial sequence is discarded, never patched.
func (a *Assembler) Finalize(utterance string) ([]Message, error) {
	if a.state != stateTurnsAppended {
		return nil, fmt.Errorf("%w: Finalize called in state %d", ErrStructural, a.state)
	}
	a.appendOrMerge(Message{Role: RoleUser, Content: utterance})
	a.state = stateFinalized

	if err := Validate(a.messages, a.maxChars); err != nil {
		return nil, err
	}
	return a.messages, nil
}

func (a *Assembler) appendOrMerge(msg Message) {
	if last := len(a.messages) - 1; last >= 0 && a.messages[last].Role == msg.Role && msg.Role != RoleSystem {
		a.messages[last].Content = a.messages[last].Content + "\n" + msg.Content
		return
	}
	a.messages = append(a.messages, msg)
}

// Validate checks the role-alternation invariant: one leading system message,
// strictly alternating user/assistant afterwards, terminal user message, and
// total serialized length within budget.
func Validate(messages []Message, maxChars int) error {
	if len(messages) < 2 {
		return fmt.Errorf("%w: sequence has %d messages, need system plus at least one user turn", ErrStructural, len(messages))
	}
	if messages[0].Role != RoleSystem {
		return fmt.Errorf("%w: first message role is %q, want system", ErrStructural, messages[0].Role)
	}

	total := len([]rune(messages[0].Content))
	for i := 1; i < len(messages); i++ {
		role := messages[i].Role
		if role != RoleUser && role != RoleAssistant {
			return fmt.Errorf("%w: message %d has role %q inside the turn sequence", ErrStructural, i, role)
		}
		if i > 1 && role == messages[i-1].Role {
			return fmt.Errorf("%w: messages %d and %d share role %q", ErrStructural, i-1, i, role)
		}
		total += len([]rune(messages[i].Content))
	}
	if messages[len(messages)-1].Role != RoleUser {
		return fmt.Errorf("%w: last message role is %q, want user", ErrStructural, messages[len(messages)-1].Role)
	}
	if maxChars > 0 && total > maxChars {
		return fmt.Errorf("%w: serialized length %d exceeds budget %d", ErrStructural, total, maxChars)
	}
	return nil
}
