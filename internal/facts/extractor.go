package facts

import (
	"regexp"
	"sort"
	"strings"
)

// Record is a durable (subject, predicate, object) datum extracted from an
// utterance without any model involvement. PersonaID scopes the fact to the
// conversation's persona; Extract leaves it empty and the caller fills it in
// before persisting.
type Record struct {
	Subject        string  `json:"subject"`
	PersonaID      string  `json:"persona_id"`
	Predicate      string  `json:"predicate"`
	Object         string  `json:"object"`
	Confidence     float64 `json:"confidence"`
	SourceMemoryID string  `json:"source_memory_id"`
}

type pattern struct {
	re         *regexp.Regexp
	predicate  string
	confidence float64
}

// The pattern set is fixed and applied once per utterance, so extraction is a
// bounded linear scan. Order matters only for tie-breaks between equal
// confidences on the same predicate.
var patterns = []pattern{
	{regexp.MustCompile(`(?i)\bmy name is ([a-z][a-z' -]{1,40})`), "name", 0.95},
	{regexp.MustCompile(`(?i)\bcall me ([a-z][a-z' -]{1,40})`), "name", 0.80},
	{regexp.MustCompile(`(?i)\bi live in ([a-z][a-z' -]{1,60})`), "location", 0.90},
	{regexp.MustCompile(`(?i)\bi(?:'m| am) from ([a-z][a-z' -]{1,60})`), "location", 0.75},
	{regexp.MustCompile(`(?i)\bi work as an? ([a-z][a-z' -]{1,50})`), "occupation", 0.90},
	{regexp.MustCompile(`(?i)\bi(?:'m| am) an? ([a-z][a-z' -]{1,50}) by trade`), "occupation", 0.85},
	{regexp.MustCompile(`(?i)\bi work at ([a-z0-9][a-z0-9&.' -]{1,60})`), "employer", 0.85},
	{regexp.MustCompile(`(?i)\bmy birthday is (?:on )?([a-z0-9][a-z0-9 ,/-]{2,30})`), "birthday", 0.90},
	{regexp.MustCompile(`(?i)\bi(?:'m| am) (\d{1,3}) years old\b`), "age", 0.90},
	{regexp.MustCompile(`(?i)\bmy favorite ([a-z ]{2,30}) is ([a-z0-9][a-z0-9' -]{1,60})`), "favorite", 0.85},
	{regexp.MustCompile(`(?i)\bi really (?:like|love|enjoy) ([a-z0-9][a-z0-9' -]{1,60})`), "likes", 0.70},
	{regexp.MustCompile(`(?i)\bi(?:'m| am) allergic to ([a-z][a-z' -]{1,50})`), "allergy", 0.95},
	{regexp.MustCompile(`(?i)\bmy (wife|husband|partner|girlfriend|boyfriend|daughter|son|mother|father|sister|brother)(?:'s name)? is (?:called )?([a-z][a-z' -]{1,40})`), "family", 0.85},
	{regexp.MustCompile(`(?i)\bmy (dog|cat|pet)(?:'s name)? is (?:called )?([a-z][a-z' -]{1,40})`), "pet", 0.80},
}

// Extract runs the fixed pattern set over the utterance and returns zero or
// more fact records attributed to ownerUserID. Overlapping matches for the
// same (subject, predicate) keep only the highest-confidence one; equal
// confidences resolve to the earliest match, so extraction is deterministic
// and never raises.
func Extract(utterance, ownerUserID, sourceMemoryID string) []Record {
	text := strings.TrimSpace(utterance)
	if text == "" {
		return nil
	}

	type key struct {
		subject   string
		predicate string
	}
	best := make(map[key]Record)
	order := make(map[key]int)
	seq := 0

	for _, p := range patterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}

		predicate := p.predicate
		object := ""
		switch len(m) {
		case 2:
			object = m[1]
		case 3:
			// Two-group patterns qualify the predicate with the first group
			// ("favorite color", "family wife").
			predicate = p.predicate + ":" + normalize(m[1])
			object = m[2]
		default:
			continue
		}

		object = strings.TrimRight(strings.TrimSpace(object), ".,!? ")
		if object == "" {
			continue
		}

		k := key{subject: ownerUserID, predicate: predicate}
		rec := Record{
			Subject:        ownerUserID,
			Predicate:      predicate,
			Object:         object,
			Confidence:     p.confidence,
			SourceMemoryID: sourceMemoryID,
		}
		if existing, ok := best[k]; !ok || rec.Confidence > existing.Confidence {
			if !ok {
				order[k] = seq
				seq++
			}
			best[k] = rec
		}
	}

	out := make([]Record, 0, len(best))
	for _, rec := range best {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return order[key{out[i].Subject, out[i].Predicate}] < order[key{out[j].Subject, out[j].Predicate}]
	})
	return out
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
