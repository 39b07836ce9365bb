package persona

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore serves persona descriptors and knowledge sections from
// PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initPersonaSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initPersonaSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS personas (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL,
			greeting TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS persona_knowledge_sections (
			id SERIAL PRIMARY KEY,
			persona_id TEXT NOT NULL REFERENCES personas (id),
			section_type TEXT NOT NULL,
			trigger_keywords TEXT[] NOT NULL DEFAULT '{}',
			content TEXT NOT NULL,
			priority INT NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_persona_sections_persona ON persona_knowledge_sections (persona_id, section_type);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init persona schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) GetPersona(ctx context.Context, id string) (Descriptor, error) {
	var d Descriptor
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, description, greeting FROM personas WHERE id = $1`, id,
	).Scan(&d.ID, &d.Name, &d.Description, &d.Greeting)
	if errors.Is(err, pgx.ErrNoRows) {
		return Descriptor{}, ErrNotFound
	}
	if err != nil {
		return Descriptor{}, fmt.Errorf("query persona: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) GetKnowledgeSections(ctx context.Context, personaID string, sectionType SectionType) ([]KnowledgeSection, error) {
	query := `SELECT persona_id, section_type, trigger_keywords, content, priority
		 FROM persona_knowledge_sections WHERE persona_id = $1`
	args := []any{personaID}
	if sectionType != "" {
		query += ` AND section_type = $2`
		args = append(args, string(sectionType))
	}
	query += ` ORDER BY priority DESC, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query knowledge sections: %w", err)
	}
	defer rows.Close()

	var out []KnowledgeSection
	for rows.Next() {
		var sec KnowledgeSection
		var sectionTypeRaw string
		if err := rows.Scan(&sec.PersonaID, &sectionTypeRaw, &sec.TriggerKeywords, &sec.Content, &sec.Priority); err != nil {
			return nil, fmt.Errorf("scan knowledge section: %w", err)
		}
		sec.SectionType = SectionType(sectionTypeRaw)
		out = append(out, sec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate knowledge sections: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListPersonas(ctx context.Context) ([]Descriptor, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, description, greeting FROM personas ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list personas: %w", err)
	}
	defer rows.Close()

	var out []Descriptor
	for rows.Next() {
		var d Descriptor
		if err := rows.Scan(&d.ID, &d.Name, &d.Description, &d.Greeting); err != nil {
			return nil, fmt.Errorf("scan persona: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate personas: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
