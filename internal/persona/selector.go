package persona

import (
	"sort"
	"strings"
)

// RenderedSection is a knowledge section that matched the utterance and
// survived the budget, converted to prompt-ready text.
type RenderedSection struct {
	SectionType SectionType
	Priority    int
	Text        string
}

// SelectSections picks the sections whose trigger keywords appear in the
// utterance and renders them under maxSections. A section with no keyword hit
// is omitted entirely, never emitted as an empty block. When matched sections
// compete for budget the order is priority descending, then the fixed type
// precedence (relationship > trigger > speech_pattern > flow), then stable
// input order.
func SelectSections(sections []KnowledgeSection, utterance string, maxSections int) []RenderedSection {
	words := utteranceWords(utterance)

	type candidate struct {
		section KnowledgeSection
		index   int
	}
	var matched []candidate
	for i, s := range sections {
		if matchesKeywords(s.TriggerKeywords, words) {
			matched = append(matched, candidate{section: s, index: i})
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i].section, matched[j].section
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if typePrecedence[a.SectionType] != typePrecedence[b.SectionType] {
			return typePrecedence[a.SectionType] < typePrecedence[b.SectionType]
		}
		return matched[i].index < matched[j].index
	})

	if maxSections > 0 && len(matched) > maxSections {
		matched = matched[:maxSections]
	}

	out := make([]RenderedSection, 0, len(matched))
	for _, c := range matched {
		text := RenderSection(c.section)
		if text == "" {
			continue
		}
		out = append(out, RenderedSection{
			SectionType: c.section.SectionType,
			Priority:    c.section.Priority,
			Text:        text,
		})
	}
	return out
}

func utteranceWords(utterance string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(utterance)) {
		w = strings.Trim(w, ".,!?;:\"'()")
		if w != "" {
			words[w] = struct{}{}
		}
	}
	return words
}

func matchesKeywords(keywords []string, words map[string]struct{}) bool {
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if strings.ContainsRune(k, ' ') {
			// Multi-word keyword: every word must be present.
			all := true
			for _, part := range strings.Fields(k) {
				if _, ok := words[part]; !ok {
					all = false
					break
				}
			}
			if all {
				return true
			}
			continue
		}
		if _, ok := words[k]; ok {
			return true
		}
	}
	return false
}
