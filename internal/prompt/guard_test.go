package prompt

import (
	"strings"
	"testing"
	"time"

	"github.com/antoniostano/aria/internal/memory"
	"github.com/antoniostano/aria/internal/narrative"
)

func TestDisclosurePresentOnEmptyNarrative(t *testing.T) {
	var empty narrative.Narrative
	if got := MaybeDisclosure(empty, 80); got != Disclosure {
		t.Fatalf("MaybeDisclosure(empty) = %q, want the disclosure", got)
	}
}

func TestDisclosureAbsentAboveThreshold(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	b := narrative.NewBuilder(narrative.Config{
		RecentWindow:      24 * time.Hour,
		RecentMaxEntries:  10,
		RecentMaxChars:    600,
		SummaryMaxEntries: 5,
		SummaryMaxChars:   200,
	})
	records := []memory.Record{
		{ID: "r1", OwnerUserID: "u1", PersonaID: "p1", Role: memory.RoleUser,
			Content:   "we talked for a while about the trip to Lisbon and the museums you wanted to see",
			Timestamp: now.Add(-2 * time.Hour)},
	}
	n := b.Build(records, nil, now)

	if n.RenderedLen() < 80 {
		t.Fatalf("test narrative too short to exercise the absent case: %d", n.RenderedLen())
	}
	if got := MaybeDisclosure(n, 80); got != "" {
		t.Fatalf("MaybeDisclosure(rich narrative) = %q, want empty", got)
	}
}

func TestDisclosureThresholdIsBinary(t *testing.T) {
	var empty narrative.Narrative
	a := NewAssembler(24000)
	if err := a.ConsolidateSystem("persona", empty.Render(), MaybeDisclosure(empty, 80)); err != nil {
		t.Fatalf("ConsolidateSystem() error = %v", err)
	}
	if err := a.AppendTurns(nil); err != nil {
		t.Fatalf("AppendTurns() error = %v", err)
	}
	msgs, err := a.Finalize("What did we talk about yesterday?")
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if !strings.Contains(msgs[0].Content, Disclosure) {
		t.Fatalf("system message missing disclosure with empty context")
	}
}
