package memory

import (
	"context"
	"time"
)

// Roles attached to stored memory records.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// Record stores a single conversational turn owned by one (user, persona)
// pair. Records are append-only: this service never updates or deletes them.
type Record struct {
	ID          string    `json:"id"`
	OwnerUserID string    `json:"owner_user_id"`
	PersonaID   string    `json:"persona_id"`
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	PIIRedacted bool      `json:"pii_redacted"`
	Embedding   []float32 `json:"-"`
	Timestamp   time.Time `json:"timestamp"`
}

// SearchQuery selects records by similarity within one (user, persona) scope.
// Records belonging to another persona are never returned, even for the same
// owner.
type SearchQuery struct {
	Embedding   []float32
	OwnerUserID string
	PersonaID   string
	TopK        int
	MinScore    float64
}

// Store persists and retrieves conversational memory.
type Store interface {
	Upsert(ctx context.Context, record Record) error
	Search(ctx context.Context, query SearchQuery) ([]Record, error)
	Close() error
}
