package facts

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists fact records in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initFactSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initFactSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS fact_records (
			subject TEXT NOT NULL,
			persona_id TEXT NOT NULL,
			predicate TEXT NOT NULL,
			object TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			source_memory_id TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (subject, persona_id, predicate)
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init fact schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Upsert(ctx context.Context, records ...Record) error {
	for _, r := range records {
		if r.Subject == "" || r.Predicate == "" || r.Object == "" {
			continue
		}
		_, err := s.pool.Exec(ctx,
			`INSERT INTO fact_records (subject, persona_id, predicate, object, confidence, source_memory_id, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, now())
			 ON CONFLICT (subject, persona_id, predicate)
			 DO UPDATE SET object = EXCLUDED.object,
			               confidence = EXCLUDED.confidence,
			               source_memory_id = EXCLUDED.source_memory_id,
			               updated_at = now()`,
			r.Subject,
			r.PersonaID,
			r.Predicate,
			r.Object,
			r.Confidence,
			r.SourceMemoryID,
		)
		if err != nil {
			return fmt.Errorf("upsert fact record: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, ownerUserID, personaID string) ([]Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT subject, persona_id, predicate, object, confidence, source_memory_id
		 FROM fact_records
		 WHERE subject = $1 AND persona_id = $2
		 ORDER BY predicate`,
		ownerUserID,
		personaID,
	)
	if err != nil {
		return nil, fmt.Errorf("list fact records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Subject, &r.PersonaID, &r.Predicate, &r.Object, &r.Confidence, &r.SourceMemoryID); err != nil {
			return nil, fmt.Errorf("scan fact record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
