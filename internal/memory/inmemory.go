package memory

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is an in-process store with brute-force cosine search for
// local/dev use.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Upsert(_ context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}
	for _, existing := range s.records {
		if existing.ID == record.ID {
			return nil
		}
	}
	s.records = append(s.records, record)
	return nil
}

func (s *InMemoryStore) Search(_ context.Context, query SearchQuery) ([]Record, error) {
	if query.TopK <= 0 {
		query.TopK = 10
	}
	if len(query.Embedding) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		record Record
		score  float64
	}
	candidates := make([]scored, 0, len(s.records))
	for _, r := range s.records {
		if r.OwnerUserID != query.OwnerUserID || r.PersonaID != query.PersonaID {
			continue
		}
		if len(r.Embedding) == 0 {
			continue
		}
		score := cosineSimilarity(query.Embedding, r.Embedding)
		if score < query.MinScore {
			continue
		}
		candidates = append(candidates, scored{record: r, score: score})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > query.TopK {
		candidates = candidates[:query.TopK]
	}

	out := make([]Record, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.record)
	}
	return out, nil
}

// Len reports the number of stored records.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *InMemoryStore) Close() error { return nil }

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
