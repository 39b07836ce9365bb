package persona

import (
	"context"
	"errors"
)

// SectionType identifies a knowledge section variant.
type SectionType string

const (
	SectionRelationship  SectionType = "relationship"
	SectionTrigger       SectionType = "trigger"
	SectionSpeechPattern SectionType = "speech_pattern"
	SectionFlow          SectionType = "flow"
)

// typePrecedence is the fixed tie-break order when sections with equal
// priority compete for budget. Cross-references between sections also resolve
// by this order, never by graph traversal.
var typePrecedence = map[SectionType]int{
	SectionRelationship:  0,
	SectionTrigger:       1,
	SectionSpeechPattern: 2,
	SectionFlow:          3,
}

var ErrNotFound = errors.New("persona not found")

// Descriptor is a configured character identity.
type Descriptor struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Greeting    string `json:"greeting"`
}

// KnowledgeSection is one stored unit of persona knowledge, gated on trigger
// keywords and rendered through its type's renderer variant.
type KnowledgeSection struct {
	SectionType     SectionType `json:"section_type"`
	PersonaID       string      `json:"persona_id"`
	TriggerKeywords []string    `json:"trigger_keywords"`
	Content         string      `json:"content"`
	Priority        int         `json:"priority"`
}

// Store provides persona descriptors and knowledge sections. Implementations
// may be unavailable at process start; callers bind through LazyBinding.
type Store interface {
	GetPersona(ctx context.Context, id string) (Descriptor, error)
	GetKnowledgeSections(ctx context.Context, personaID string, sectionType SectionType) ([]KnowledgeSection, error)
	ListPersonas(ctx context.Context) ([]Descriptor, error)
	Close() error
}
