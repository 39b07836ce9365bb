package persona

import (
	"fmt"
	"strings"
)

// sectionRenderer is the closed set of per-type rendering variants. Each
// variant owns the formatting rules for its section type; a section is never
// echoed as its raw stored structure.
type sectionRenderer interface {
	render(s KnowledgeSection) string
}

var renderers = map[SectionType]sectionRenderer{
	SectionRelationship:  relationshipRenderer{},
	SectionTrigger:       triggerRenderer{},
	SectionSpeechPattern: speechPatternRenderer{},
	SectionFlow:          flowRenderer{},
}

type relationshipRenderer struct{}

func (relationshipRenderer) render(s KnowledgeSection) string {
	return fmt.Sprintf("- Relationship context (importance %d): %s", s.Priority, oneLine(s.Content))
}

type triggerRenderer struct{}

func (triggerRenderer) render(s KnowledgeSection) string {
	return fmt.Sprintf("- When the user mentions %s (importance %d): %s",
		keywordList(s.TriggerKeywords), s.Priority, oneLine(s.Content))
}

type speechPatternRenderer struct{}

func (speechPatternRenderer) render(s KnowledgeSection) string {
	return fmt.Sprintf("- Speech pattern (importance %d): %s", s.Priority, oneLine(s.Content))
}

type flowRenderer struct{}

func (flowRenderer) render(s KnowledgeSection) string {
	return fmt.Sprintf("- Conversation flow (importance %d): %s", s.Priority, oneLine(s.Content))
}

// RenderSection dispatches to the section type's renderer. Unknown types
// return empty rather than leaking raw content into the prompt.
func RenderSection(s KnowledgeSection) string {
	r, ok := renderers[s.SectionType]
	if !ok {
		return ""
	}
	return r.render(s)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func keywordList(keywords []string) string {
	if len(keywords) == 0 {
		return "anything"
	}
	quoted := make([]string, 0, len(keywords))
	for _, k := range keywords {
		quoted = append(quoted, fmt.Sprintf("%q", k))
	}
	return strings.Join(quoted, ", ")
}
