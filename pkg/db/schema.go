package db

import (
	"context"
	"fmt"
)

// schemaStatements returns the DDL for the given dialect. Column names are the
// same on every SQL backend; only the timestamp type differs.
func schemaStatements(d dialect) []string {
	tsType := "TIMESTAMPTZ"
	if d == dialectSQLite {
		// Fixed-width UTC text sorts chronologically.
		tsType = "TEXT"
	}

	return []string{
		`CREATE TABLE IF NOT EXISTS projects (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS competitors (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE
)`,
		`CREATE TABLE IF NOT EXISTS targets (
  id TEXT PRIMARY KEY,
  url TEXT NOT NULL,
  page_type TEXT NOT NULL DEFAULT '',
  competitor_id TEXT NOT NULL REFERENCES competitors(id) ON DELETE CASCADE
)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS snapshots (
  id TEXT PRIMARY KEY,
  target_id TEXT NOT NULL REFERENCES targets(id) ON DELETE CASCADE,
  content TEXT,
  status TEXT NOT NULL CHECK (status IN ('Success', 'Failed')),
  created_at %s NOT NULL
)`, tsType),
		`CREATE INDEX IF NOT EXISTS snapshots_target_status_created_idx
  ON snapshots (target_id, status, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS changes (
  id TEXT PRIMARY KEY,
  snapshot_id TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
  diff_content TEXT NOT NULL
)`,
	}
}

// Migrate creates the schema if it does not exist yet.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements(s.dialect) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
