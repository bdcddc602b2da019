package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// migration is one forward schema step
type migration struct {
	Version     int
	Description string
	Up          string
}

// migrations must stay sorted by version; never edit an applied entry
var migrations = []migration{
	{
		Version:     1,
		Description: "curated items table",
		Up: `
CREATE TABLE IF NOT EXISTS curated_items (
    id TEXT PRIMARY KEY,
    chain TEXT NOT NULL,
    position INTEGER NOT NULL,
    discovered_at TEXT NOT NULL,
    body TEXT NOT NULL
);`,
	},
	{
		Version:     2,
		Description: "score column and indexes",
		Up: `
ALTER TABLE curated_items ADD COLUMN score INTEGER;
CREATE INDEX IF NOT EXISTS idx_curated_items_discovered_at ON curated_items(discovered_at);
CREATE INDEX IF NOT EXISTS idx_curated_items_score ON curated_items(score);`,
	},
}

func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("failed to create version table: %w", err)
	}

	current, err := schemaVersion(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := apply(ctx, db, m); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", m.Version, err)
		}
	}
	return nil
}

func schemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	return version, err
}

func apply(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, m.Up); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_version (version, description, applied_at) VALUES (?, ?, ?)`,
		m.Version, m.Description, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return tx.Commit()
}
