package postgres

import (
	"context"
	"fmt"
)

// schemaSQL returns the DDL for the documents and chunks tables. A positive
// dimension pins the vector column width; zero leaves it unconstrained.
func schemaSQL(dimension int) []string {
	vectorType := "vector"
	if dimension > 0 {
		vectorType = fmt.Sprintf("vector(%d)", dimension)
	}

	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS documents (
			id                UUID PRIMARY KEY,
			status            TEXT NOT NULL,
			title             TEXT NOT NULL DEFAULT '',
			authors           JSONB NOT NULL DEFAULT '[]',
			abstract          TEXT NOT NULL DEFAULT '',
			page_count        INTEGER NOT NULL DEFAULT 0,
			table_of_contents JSONB NOT NULL DEFAULT '[]',
			file_key          TEXT NOT NULL,
			file_name         TEXT NOT NULL DEFAULT '',
			file_digest       TEXT NOT NULL DEFAULT '',
			error_message     TEXT NOT NULL DEFAULT '',
			metadata          JSONB NOT NULL DEFAULT '{}',
			created_at        TIMESTAMPTZ NOT NULL,
			updated_at        TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS documents_status_idx ON documents (status)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			id                  UUID PRIMARY KEY,
			document_id         UUID NOT NULL REFERENCES documents (id) ON DELETE CASCADE,
			position_index      INTEGER NOT NULL,
			content             TEXT NOT NULL,
			content_hash        TEXT NOT NULL,
			page_number         INTEGER,
			embedding           %s NOT NULL,
			embedding_model     TEXT NOT NULL,
			embedding_dimension INTEGER NOT NULL,
			created_at          TIMESTAMPTZ NOT NULL,
			UNIQUE (document_id, position_index)
		)`, vectorType),
	}
}

// Migrate creates the tables and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schemaSQL(s.dimension) {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	s.logger.Info("schema migrated", "dimension", s.dimension)
	return nil
}
