package narrative

import (
	"sort"
	"strings"
	"time"

	"github.com/antoniostano/aria/internal/facts"
	"github.com/antoniostano/aria/internal/memory"
)

// Entry is a recent-tier record carried verbatim (truncated at most once).
type Entry struct {
	Role      string
	Content   string
	Timestamp time.Time
}

// Summary is an older-tier record compressed to a category-labeled excerpt.
type Summary struct {
	Category  string
	Content   string
	Timestamp time.Time
}

// Narrative is the textual digest of retrieved and derived memory prepared
// for inclusion in a prompt.
type Narrative struct {
	Facts          []facts.Record
	Recent         []Entry
	OlderSummaries []Summary
}

// Config carries the tier thresholds and budgets.
type Config struct {
	RecentWindow      time.Duration
	RecentMaxEntries  int
	RecentMaxChars    int
	SummaryMaxEntries int
	SummaryMaxChars   int
}

// Builder partitions retrieved records into recency tiers under fixed
// character budgets.
type Builder struct {
	cfg Config
}

func NewBuilder(cfg Config) *Builder {
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = 24 * time.Hour
	}
	if cfg.RecentMaxEntries <= 0 {
		cfg.RecentMaxEntries = 10
	}
	if cfg.RecentMaxChars <= 0 {
		cfg.RecentMaxChars = 600
	}
	if cfg.SummaryMaxEntries <= 0 {
		cfg.SummaryMaxEntries = 5
	}
	if cfg.SummaryMaxChars <= 0 {
		cfg.SummaryMaxChars = 200
	}
	return &Builder{cfg: cfg}
}

// Build transforms a ranked record list into a tiered narrative. Tier
// assignment is a pure function of (now - timestamp) against the recency
// window: strictly younger records are carried verbatim, records exactly at
// or beyond the window boundary are summarized. Chronological order is
// preserved within each tier; relevance ranking never reorders a tier.
func (b *Builder) Build(records []memory.Record, factRecords []facts.Record, now time.Time) Narrative {
	n := Narrative{Facts: factRecords}

	deduped := collapseNearDuplicates(records)
	sort.SliceStable(deduped, func(i, j int) bool {
		return deduped[i].Timestamp.Before(deduped[j].Timestamp)
	})

	var recent, older []memory.Record
	for _, r := range deduped {
		if now.Sub(r.Timestamp) < b.cfg.RecentWindow {
			recent = append(recent, r)
		} else {
			older = append(older, r)
		}
	}

	// When a tier overflows its entry limit, keep the newest entries; the
	// chronological order of what remains is untouched.
	if len(recent) > b.cfg.RecentMaxEntries {
		recent = recent[len(recent)-b.cfg.RecentMaxEntries:]
	}
	if len(older) > b.cfg.SummaryMaxEntries {
		older = older[len(older)-b.cfg.SummaryMaxEntries:]
	}

	for _, r := range recent {
		n.Recent = append(n.Recent, Entry{
			Role:      r.Role,
			Content:   truncate(r.Content, b.cfg.RecentMaxChars),
			Timestamp: r.Timestamp,
		})
	}
	for _, r := range older {
		n.OlderSummaries = append(n.OlderSummaries, summarize(r, b.cfg.SummaryMaxChars))
	}

	return n
}

// Empty reports whether the narrative carries no memory-derived content.
func (n Narrative) Empty() bool {
	return len(n.Facts) == 0 && len(n.Recent) == 0 && len(n.OlderSummaries) == 0
}

// Render produces the deterministic digest text included in the system
// message. Every tiered entry appears; no additional truncation happens here.
func (n Narrative) Render() string {
	var sb strings.Builder

	if len(n.Facts) > 0 {
		sb.WriteString("Known facts about the user:\n")
		for _, f := range n.Facts {
			sb.WriteString("- ")
			sb.WriteString(f.Predicate)
			sb.WriteString(": ")
			sb.WriteString(f.Object)
			sb.WriteString("\n")
		}
	}

	if len(n.Recent) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("Recent conversation:\n")
		for _, e := range n.Recent {
			sb.WriteString("- [")
			sb.WriteString(e.Role)
			sb.WriteString("] ")
			sb.WriteString(e.Content)
			sb.WriteString("\n")
		}
	}

	if len(n.OlderSummaries) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("Earlier conversation summaries:\n")
		for _, s := range n.OlderSummaries {
			sb.WriteString("- (")
			sb.WriteString(s.Category)
			sb.WriteString(") ")
			sb.WriteString(s.Content)
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

// RenderedLen is the rendered digest length in runes, the quantity the
// anti-hallucination guard thresholds on.
func (n Narrative) RenderedLen() int {
	return len([]rune(n.Render()))
}

// collapseNearDuplicates drops records whose normalized token sets overlap
// almost entirely with an earlier record, keeping the earliest of each
// cluster.
func collapseNearDuplicates(records []memory.Record) []memory.Record {
	const threshold = 0.90

	byAge := make([]memory.Record, len(records))
	copy(byAge, records)
	sort.SliceStable(byAge, func(i, j int) bool {
		return byAge[i].Timestamp.Before(byAge[j].Timestamp)
	})

	var kept []memory.Record
	var keptTokens []map[string]struct{}
	for _, r := range byAge {
		tokens := tokenSet(r.Content)
		dup := false
		for _, seen := range keptTokens {
			if jaccard(tokens, seen) >= threshold {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		kept = append(kept, r)
		keptTokens = append(keptTokens, tokens)
	}
	return kept
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		tok = strings.Trim(tok, ".,!?;:\"'")
		if tok != "" {
			set[tok] = struct{}{}
		}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// truncate cuts s to at most max runes, marking the cut with an ellipsis.
// This is the single truncation point for the recent tier.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 1 {
		return string(runes[:max])
	}
	return string(runes[:max-1]) + "…"
}
