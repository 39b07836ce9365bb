package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

// PostgresStore persists conversational memory in PostgreSQL with pgvector
// similarity search.
type PostgresStore struct {
	pool *pgxpool.Pool
	dim  int
}

func NewPostgresStore(ctx context.Context, databaseURL string, embeddingDim int) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool, embeddingDim); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool, dim: embeddingDim}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool, embeddingDim int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector;`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS memory_records (
			id TEXT PRIMARY KEY,
			owner_user_id TEXT NOT NULL,
			persona_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			pii_redacted BOOLEAN NOT NULL DEFAULT FALSE,
			embedding vector(%d),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`, embeddingDim),
		`CREATE INDEX IF NOT EXISTS idx_memory_records_scope_created ON memory_records (owner_user_id, persona_id, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Upsert(ctx context.Context, record Record) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	var embedding any
	if len(record.Embedding) > 0 {
		embedding = pgvector.NewVector(record.Embedding)
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO memory_records (id, owner_user_id, persona_id, role, content, pii_redacted, embedding, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO NOTHING`,
		record.ID,
		record.OwnerUserID,
		record.PersonaID,
		record.Role,
		record.Content,
		record.PIIRedacted,
		embedding,
		record.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("upsert memory record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Search(ctx context.Context, query SearchQuery) ([]Record, error) {
	if query.TopK <= 0 {
		query.TopK = 10
	}
	if len(query.Embedding) == 0 {
		return nil, nil
	}

	vector := pgvector.NewVector(query.Embedding)
	rows, err := s.pool.Query(ctx,
		`SELECT id, owner_user_id, persona_id, role, content, pii_redacted, created_at
		 FROM memory_records
		 WHERE owner_user_id = $1 AND persona_id = $2
		   AND embedding IS NOT NULL
		   AND 1 - (embedding <=> $3) >= $4
		 ORDER BY embedding <=> $3
		 LIMIT $5`,
		query.OwnerUserID,
		query.PersonaID,
		vector,
		query.MinScore,
		query.TopK,
	)
	if err != nil {
		return nil, fmt.Errorf("query memory records: %w", err)
	}
	defer rows.Close()

	items := make([]Record, 0, query.TopK)
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.OwnerUserID, &r.PersonaID, &r.Role, &r.Content, &r.PIIRedacted, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan memory record: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memory records: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
