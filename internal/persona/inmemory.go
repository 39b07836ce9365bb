package persona

import (
	"context"
	"sync"
)

// InMemoryStore is a seeded in-process persona store for local/dev use.
type InMemoryStore struct {
	mu       sync.RWMutex
	personas map[string]Descriptor
	sections map[string][]KnowledgeSection
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		personas: make(map[string]Descriptor),
		sections: make(map[string][]KnowledgeSection),
	}
}

// NewSeededStore returns an in-memory store preloaded with the default
// companion personas, mirroring what a provisioned relational store carries.
func NewSeededStore() *InMemoryStore {
	s := NewInMemoryStore()
	s.PutPersona(Descriptor{
		ID:          "warm",
		Name:        "Aria",
		Description: "Aria is a warm, attentive companion. She listens closely, remembers what matters to the user, and answers in a gentle conversational tone.",
		Greeting:    "Hey, it's good to hear from you. What's on your mind?",
	})
	s.PutSections("warm", []KnowledgeSection{
		{
			SectionType:     SectionRelationship,
			PersonaID:       "warm",
			TriggerKeywords: []string{"family", "friend", "friends", "partner", "relationship"},
			Content:         "Treat the user's close relationships with care; recall names they have shared before asking again.",
			Priority:        8,
		},
		{
			SectionType:     SectionTrigger,
			PersonaID:       "warm",
			TriggerKeywords: []string{"stressed", "anxious", "overwhelmed", "tired"},
			Content:         "Slow down, acknowledge the feeling first, and keep suggestions small and concrete.",
			Priority:        9,
		},
		{
			SectionType:     SectionSpeechPattern,
			PersonaID:       "warm",
			TriggerKeywords: []string{"hello", "hey", "hi", "morning", "evening"},
			Content:         "Open casually, no lists or headings, keep replies under a few sentences unless asked for detail.",
			Priority:        5,
		},
		{
			SectionType:     SectionFlow,
			PersonaID:       "warm",
			TriggerKeywords: []string{"plan", "plans", "weekend", "tomorrow"},
			Content:         "When plans come up, ask one clarifying question before proposing anything.",
			Priority:        4,
		},
	})
	s.PutPersona(Descriptor{
		ID:          "coach",
		Name:        "Dante",
		Description: "Dante is a direct, energetic coach. He keeps the user accountable and pushes toward stated goals without being harsh.",
		Greeting:    "Alright, where are we on your goals today?",
	})
	s.PutSections("coach", []KnowledgeSection{
		{
			SectionType:     SectionTrigger,
			PersonaID:       "coach",
			TriggerKeywords: []string{"goal", "goals", "procrastinating", "deadline"},
			Content:         "Restate the user's own goal back to them, then ask for the next smallest step.",
			Priority:        9,
		},
		{
			SectionType:     SectionSpeechPattern,
			PersonaID:       "coach",
			TriggerKeywords: []string{"workout", "gym", "run", "training"},
			Content:         "Short sentences, concrete numbers, always end with a question.",
			Priority:        6,
		},
	})
	return s
}

func (s *InMemoryStore) PutPersona(d Descriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.personas[d.ID] = d
}

func (s *InMemoryStore) PutSections(personaID string, sections []KnowledgeSection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sections[personaID] = append(s.sections[personaID], sections...)
}

func (s *InMemoryStore) GetPersona(_ context.Context, id string) (Descriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.personas[id]
	if !ok {
		return Descriptor{}, ErrNotFound
	}
	return d, nil
}

func (s *InMemoryStore) GetKnowledgeSections(_ context.Context, personaID string, sectionType SectionType) ([]KnowledgeSection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.sections[personaID]
	if sectionType == "" {
		out := make([]KnowledgeSection, len(all))
		copy(out, all)
		return out, nil
	}
	var out []KnowledgeSection
	for _, sec := range all {
		if sec.SectionType == sectionType {
			out = append(out, sec)
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListPersonas(_ context.Context) ([]Descriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Descriptor, 0, len(s.personas))
	for _, d := range s.personas {
		out = append(out, d)
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
