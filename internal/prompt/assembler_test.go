package prompt

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

func buildPrompt(t *testing.T, turns []Turn, utterance string) []Message {
	t.Helper()
	a := NewAssembler(24000)
	if err := a.ConsolidateSystem("persona description", "narrative digest"); err != nil {
		t.Fatalf("ConsolidateSystem() error = %v", err)
	}
	if err := a.AppendTurns(turns); err != nil {
		t.Fatalf("AppendTurns() error = %v", err)
	}
	msgs, err := a.Finalize(utterance)
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	return msgs
}

func TestAssembledPromptInvariant(t *testing.T) {
	now := time.Now().UTC()
	turns := []Turn{
		{Role: RoleUser, Content: "hi", Timestamp: now.Add(-3 * time.Minute)},
		{Role: RoleAssistant, Content: "hello!", Timestamp: now.Add(-2 * time.Minute)},
		{Role: RoleUser, Content: "how are you?", Timestamp: now.Add(-1 * time.Minute)},
		{Role: RoleAssistant, Content: "doing well", Timestamp: now},
	}
	msgs := buildPrompt(t, turns, "tell me something")

	if msgs[0].Role != RoleSystem {
		t.Fatalf("msgs[0].Role = %q, want system", msgs[0].Role)
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Role == RoleSystem {
			t.Fatalf("system role at position %d", i)
		}
		if i > 1 && msgs[i].Role == msgs[i-1].Role {
			t.Fatalf("roles %d and %d both %q", i-1, i, msgs[i].Role)
		}
	}
	if msgs[len(msgs)-1].Role != RoleUser {
		t.Fatalf("last role = %q, want user", msgs[len(msgs)-1].Role)
	}
}

func TestConsecutiveUserTurnsMerge(t *testing.T) {
	now := time.Now().UTC()
	turns := []Turn{
		{Role: RoleUser, Content: "first thought", Timestamp: now.Add(-2 * time.Minute)},
		{Role: RoleUser, Content: "second thought", Timestamp: now.Add(-1 * time.Minute)},
		{Role: RoleAssistant, Content: "got it", Timestamp: now},
	}
	msgs := buildPrompt(t, turns, "and now?")

	// system + merged user + assistant + terminal user
	if len(msgs) != 4 {
		t.Fatalf("len(msgs) = %d, want 4: %+v", len(msgs), msgs)
	}
	merged := msgs[1]
	if merged.Role != RoleUser {
		t.Fatalf("msgs[1].Role = %q, want user", merged.Role)
	}
	if !strings.Contains(merged.Content, "first thought") || !strings.Contains(merged.Content, "second thought") {
		t.Fatalf("merged content dropped a turn: %q", merged.Content)
	}
}

func TestTerminalUtteranceMergesWithTrailingUserTurn(t *testing.T) {
	now := time.Now().UTC()
	turns := []Turn{
		{Role: RoleUser, Content: "are you there?", Timestamp: now},
	}
	msgs := buildPrompt(t, turns, "hello?")

	if len(msgs) != 2 {
		t.Fatalf("len(msgs) = %d, want 2: %+v", len(msgs), msgs)
	}
	if !strings.Contains(msgs[1].Content, "are you there?") || !strings.Contains(msgs[1].Content, "hello?") {
		t.Fatalf("terminal merge dropped content: %q", msgs[1].Content)
	}
}

func TestSingleSystemMessage(t *testing.T) {
	msgs := buildPrompt(t, nil, "hi")
	systemCount := 0
	for _, m := range msgs {
		if m.Role == RoleSystem {
			systemCount++
		}
	}
	if systemCount != 1 {
		t.Fatalf("system message count = %d, want 1", systemCount)
	}
	if !strings.Contains(msgs[0].Content, "persona description") || !strings.Contains(msgs[0].Content, "narrative digest") {
		t.Fatalf("system consolidation lost a part: %q", msgs[0].Content)
	}
}

func TestAssemblyIdempotence(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	turns := []Turn{
		{Role: RoleUser, Content: "hi", Timestamp: now.Add(-time.Minute)},
		{Role: RoleAssistant, Content: "hey", Timestamp: now},
	}
	first := buildPrompt(t, turns, "same input")
	second := buildPrompt(t, turns, "same input")
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("identical inputs produced different prompts:\n%+v\n%+v", first, second)
	}
}

func TestOutOfOrderTransitionsFail(t *testing.T) {
	a := NewAssembler(0)
	if err := a.AppendTurns(nil); !errors.Is(err, ErrStructural) {
		t.Fatalf("AppendTurns before ConsolidateSystem error = %v, want ErrStructural", err)
	}

	a = NewAssembler(0)
	if _, err := a.Finalize("x"); !errors.Is(err, ErrStructural) {
		t.Fatalf("Finalize before ConsolidateSystem error = %v, want ErrStructural", err)
	}

	a = NewAssembler(0)
	if err := a.ConsolidateSystem("s"); err != nil {
		t.Fatalf("ConsolidateSystem() error = %v", err)
	}
	if err := a.ConsolidateSystem("again"); !errors.Is(err, ErrStructural) {
		t.Fatalf("second ConsolidateSystem error = %v, want ErrStructural", err)
	}
}

func TestValidateRejectsBrokenSequences(t *testing.T) {
	cases := []struct {
		name string
		msgs []Message
	}{
		{"empty", nil},
		{"no system first", []Message{{Role: RoleUser, Content: "x"}, {Role: RoleAssistant, Content: "y"}}},
		{"ends on assistant", []Message{{Role: RoleSystem, Content: "s"}, {Role: RoleUser, Content: "u"}, {Role: RoleAssistant, Content: "a"}}},
		{"mid-sequence system", []Message{{Role: RoleSystem, Content: "s"}, {Role: RoleUser, Content: "u"}, {Role: RoleSystem, Content: "s2"}, {Role: RoleUser, Content: "u2"}}},
		{"same role twice", []Message{{Role: RoleSystem, Content: "s"}, {Role: RoleUser, Content: "u"}, {Role: RoleUser, Content: "u2"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := Validate(tc.msgs, 0); !errors.Is(err, ErrStructural) {
				t.Fatalf("Validate() error = %v, want ErrStructural", err)
			}
		})
	}
}

func TestValidateEnforcesBudget(t *testing.T) {
	msgs := []Message{
		{Role: RoleSystem, Content: strings.Repeat("s", 50)},
		{Role: RoleUser, Content: strings.Repeat("u", 60)},
	}
	if err := Validate(msgs, 100); !errors.Is(err, ErrStructural) {
		t.Fatalf("Validate() over budget error = %v, want ErrStructural", err)
	}
	if err := Validate(msgs, 200); err != nil {
		t.Fatalf("Validate() under budget error = %v", err)
	}
}

func TestFinalizeNeverRepairs(t *testing.T) {
	a := NewAssembler(10)
	if err := a.ConsolidateSystem(strings.Repeat("long system content ", 10)); err != nil {
		t.Fatalf("ConsolidateSystem() error = %v", err)
	}
	if err := a.AppendTurns(nil); err != nil {
		t.Fatalf("AppendTurns() error = %v", err)
	}
	msgs, err := a.Finalize("hello")
	if !errors.Is(err, ErrStructural) {
		t.Fatalf("Finalize() error = %v, want ErrStructural", err)
	}
	if msgs != nil {
		t.Fatalf("Finalize() returned a sequence alongside a structural error")
	}
}
