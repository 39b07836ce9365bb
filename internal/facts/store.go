package facts

import (
	"context"
	"sort"
	"sync"
)

// Store persists extracted facts. One record exists per (subject, persona,
// predicate): a later statement about the same predicate replaces the earlier
// one, because the conversation log is chronological and the user's most
// recent statement is the current truth.
type Store interface {
	Upsert(ctx context.Context, records ...Record) error
	List(ctx context.Context, ownerUserID, personaID string) ([]Record, error)
	Close() error
}

// InMemoryStore is the in-process fact store for local/dev use.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[factKey]Record
}

type factKey struct {
	subject   string
	personaID string
	predicate string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[factKey]Record)}
}

func (s *InMemoryStore) Upsert(_ context.Context, records ...Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		if r.Subject == "" || r.Predicate == "" || r.Object == "" {
			continue
		}
		s.records[factKey{r.Subject, r.PersonaID, r.Predicate}] = r
	}
	return nil
}

func (s *InMemoryStore) List(_ context.Context, ownerUserID, personaID string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for k, r := range s.records {
		if k.subject != ownerUserID || k.personaID != personaID {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Predicate < out[j].Predicate
	})
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
