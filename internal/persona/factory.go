package persona

import (
	"context"
	"strings"
)

// NewStore creates a postgres-backed store when configured, otherwise the
// seeded in-memory store.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewSeededStore(), nil
	}
	return NewPostgresStore(ctx, databaseURL)
}
