package narrative

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/antoniostano/aria/internal/facts"
	"github.com/antoniostano/aria/internal/memory"
)

func testConfig() Config {
	return Config{
		RecentWindow:      24 * time.Hour,
		RecentMaxEntries:  10,
		RecentMaxChars:    600,
		SummaryMaxEntries: 5,
		SummaryMaxChars:   200,
	}
}

func record(id, content string, age time.Duration, now time.Time) memory.Record {
	return memory.Record{
		ID:          id,
		OwnerUserID: "u1",
		PersonaID:   "p1",
		Role:        memory.RoleUser,
		Content:     content,
		Timestamp:   now.Add(-age),
	}
}

func TestBuildTiersTwelveRecords(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	b := NewBuilder(testConfig())

	var records []memory.Record
	// 4 recent (under the 24h window), 8 older.
	for i := 0; i < 4; i++ {
		records = append(records, record(
			fmt.Sprintf("recent-%d", i),
			fmt.Sprintf("recent topic number %d with distinct wording", i),
			time.Duration(4-i)*time.Hour, now))
	}
	for i := 0; i < 8; i++ {
		records = append(records, record(
			fmt.Sprintf("older-%d", i),
			fmt.Sprintf("older discussion number %d about something unique", i),
			time.Duration(10-i)*24*time.Hour, now))
	}

	n := b.Build(records, nil, now)

	if len(n.Recent) != 4 {
		t.Fatalf("len(Recent) = %d, want 4", len(n.Recent))
	}
	if len(n.OlderSummaries) != 5 {
		t.Fatalf("len(OlderSummaries) = %d, want 5 (8 capped)", len(n.OlderSummaries))
	}
	for i := 1; i < len(n.Recent); i++ {
		if n.Recent[i].Timestamp.Before(n.Recent[i-1].Timestamp) {
			t.Fatalf("Recent tier not chronological at %d", i)
		}
	}
	for i := 1; i < len(n.OlderSummaries); i++ {
		if n.OlderSummaries[i].Timestamp.Before(n.OlderSummaries[i-1].Timestamp) {
			t.Fatalf("Older tier not chronological at %d", i)
		}
	}
}

func TestBuildBoundaryAgeGoesToOlder(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	cfg := testConfig()
	b := NewBuilder(cfg)

	boundary := record("boundary", "exactly at the window edge", cfg.RecentWindow, now)
	n := b.Build([]memory.Record{boundary}, nil, now)

	if len(n.Recent) != 0 {
		t.Fatalf("record at exactly the window age placed in Recent")
	}
	if len(n.OlderSummaries) != 1 {
		t.Fatalf("record at exactly the window age missing from Older")
	}
}

func TestBuildJustInsideWindowIsRecent(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	cfg := testConfig()
	b := NewBuilder(cfg)

	inside := record("inside", "one second inside the window", cfg.RecentWindow-time.Second, now)
	n := b.Build([]memory.Record{inside}, nil, now)

	if len(n.Recent) != 1 || len(n.OlderSummaries) != 0 {
		t.Fatalf("record inside the window tiered as recent=%d older=%d, want 1/0",
			len(n.Recent), len(n.OlderSummaries))
	}
}

func TestBuildCollapsesNearDuplicates(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	b := NewBuilder(testConfig())

	records := []memory.Record{
		record("first", "I had pasta for dinner tonight", 2*time.Hour, now),
		record("dup", "I had pasta for dinner tonight!", 1*time.Hour, now),
		record("other", "tomorrow I fly to Lisbon for a conference", 3*time.Hour, now),
	}
	n := b.Build(records, nil, now)

	if len(n.Recent) != 2 {
		t.Fatalf("len(Recent) = %d, want 2 after duplicate collapse", len(n.Recent))
	}
	// The earliest of the duplicate cluster survives.
	if n.Recent[1].Content != "I had pasta for dinner tonight" {
		t.Fatalf("duplicate collapse kept %q, want the earlier record", n.Recent[1].Content)
	}
}

func TestEveryTieredRecordAppearsInRender(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	b := NewBuilder(testConfig())

	records := []memory.Record{
		record("r1", "we argued about espresso versus moka", 2*time.Hour, now),
		record("r2", "planning a birthday party for my sister", 5*time.Hour, now),
		record("o1", "a long chat about my new job and my boss", 3*24*time.Hour, now),
		record("o2", "feeling anxious about the flight home", 5*24*time.Hour, now),
	}
	n := b.Build(records, nil, now)
	rendered := n.Render()

	if got := len(n.Recent) + len(n.OlderSummaries); got != len(records) {
		t.Fatalf("tiered %d of %d records", got, len(records))
	}
	for _, e := range n.Recent {
		if !strings.Contains(rendered, e.Content) {
			t.Fatalf("recent entry %q absent from rendered narrative", e.Content)
		}
	}
	for _, s := range n.OlderSummaries {
		if !strings.Contains(rendered, s.Content) {
			t.Fatalf("older summary %q absent from rendered narrative", s.Content)
		}
	}
}

func TestRecentTruncationSinglePoint(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	cfg := testConfig()
	cfg.RecentMaxChars = 40
	b := NewBuilder(cfg)

	long := strings.Repeat("a very wordy turn ", 20)
	n := b.Build([]memory.Record{record("long", long, time.Hour, now)}, nil, now)

	if len(n.Recent) != 1 {
		t.Fatalf("len(Recent) = %d, want 1", len(n.Recent))
	}
	if got := len([]rune(n.Recent[0].Content)); got > 40 {
		t.Fatalf("recent entry length = %d, want <= 40", got)
	}
	// Render must carry the truncated entry through untouched.
	if !strings.Contains(n.Render(), n.Recent[0].Content) {
		t.Fatalf("rendered narrative re-truncated the recent entry")
	}
}

func TestSummaryRespectsBudgetAndCategory(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	cfg := testConfig()
	cfg.SummaryMaxChars = 80
	b := NewBuilder(cfg)

	content := "My boss moved the project deadline again and the whole office is scrambling to keep the client happy before the quarterly review"
	n := b.Build([]memory.Record{record("o1", content, 48*time.Hour, now)}, nil, now)

	if len(n.OlderSummaries) != 1 {
		t.Fatalf("len(OlderSummaries) = %d, want 1", len(n.OlderSummaries))
	}
	s := n.OlderSummaries[0]
	if s.Category != "work" {
		t.Fatalf("Category = %q, want %q", s.Category, "work")
	}
	if total := len([]rune(s.Category)) + 3 + len([]rune(s.Content)); total > 80 {
		t.Fatalf("summary total length = %d, want <= 80", total)
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	b := NewBuilder(testConfig())

	records := []memory.Record{
		record("r1", "short recent note", time.Hour, now),
		record("o1", "an older note about hiking plans", 72*time.Hour, now),
	}
	factRecords := []facts.Record{{Subject: "u1", Predicate: "name", Object: "Marco", Confidence: 0.95}}

	first := b.Build(records, factRecords, now).Render()
	for i := 0; i < 5; i++ {
		again := b.Build(records, factRecords, now).Render()
		if again != first {
			t.Fatalf("Render() not byte-identical across identical builds")
		}
	}
}

func TestEmptyNarrative(t *testing.T) {
	n := NewBuilder(testConfig()).Build(nil, nil, time.Now().UTC())
	if !n.Empty() {
		t.Fatalf("Empty() = false for empty inputs")
	}
	if n.Render() != "" {
		t.Fatalf("Render() = %q, want empty", n.Render())
	}
	if n.RenderedLen() != 0 {
		t.Fatalf("RenderedLen() = %d, want 0", n.RenderedLen())
	}
}
