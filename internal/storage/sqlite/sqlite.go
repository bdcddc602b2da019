// Package sqlite implements a storage.Persister on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/rs/zerolog"

	"github.com/tracgallery/gallery/internal/logging"
	"github.com/tracgallery/gallery/internal/storage"
	"github.com/tracgallery/gallery/internal/types"
)

// FileName is the default database file name under the data directory
const FileName = "curated-nfts.db"

const memoryDSN = "file::memory:"

// Persister stores each item as a JSON body keyed by id. Save replaces the
// table contents inside one transaction.
type Persister struct {
	db       *sql.DB
	inMemory bool
}

var _ storage.Persister = (*Persister)(nil)

// New opens (or creates) the database at path and applies migrations.
//
// An existing file that cannot be opened or migrated is moved aside to
// <path>.corrupt-<timestamp> and a fresh database is created in its place.
// If that also fails the persister runs on an in-memory database so the
// daemon still starts with an empty collection.
func New(ctx context.Context, path string, logger *zerolog.Logger) (*Persister, error) {
	log := logging.Component(logger, "sqlite")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := open(ctx, fileDSN(path))
	if err == nil {
		return &Persister{db: db}, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	if _, statErr := os.Stat(path); statErr == nil {
		moved, mvErr := quarantine(path, time.Now())
		if mvErr != nil {
			log.Warn().Err(mvErr).Str("path", path).Msg("failed to move unreadable database aside")
		} else {
			log.Warn().Err(err).Str("path", path).Str("moved_to", moved).Msg("unreadable database moved aside, starting empty")
			if db, err = open(ctx, fileDSN(path)); err == nil {
				return &Persister{db: db}, nil
			}
		}
	}

	log.Warn().Err(err).Str("path", path).Msg("database unavailable, curated items will not persist")
	db, memErr := open(ctx, memoryDSN)
	if memErr != nil {
		return nil, errors.Join(err, memErr)
	}
	return &Persister{db: db, inMemory: true}, nil
}

// InMemory reports whether the persister fell back to a non-persistent database
func (p *Persister) InMemory() bool {
	return p.inMemory
}

func fileDSN(path string) string {
	return "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
}

func open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// single writer; the store serializes mutations anyway. A single
	// connection also keeps an in-memory database alive.
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(0)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return db, nil
}

// quarantine renames path and its WAL sidecars, returning the new main file name
func quarantine(path string, now time.Time) (string, error) {
	moved := fmt.Sprintf("%s.corrupt-%s", path, now.UTC().Format("20060102T150405Z"))
	if err := os.Rename(path, moved); err != nil {
		return "", err
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Rename(path+suffix, moved+suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return moved, err
		}
	}
	return moved, nil
}

// Load returns rows in insertion order. Rows whose body no longer parses are skipped.
func (p *Persister) Load(ctx context.Context) ([]*types.CuratedItem, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, body FROM curated_items ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var items []*types.CuratedItem
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		var item types.CuratedItem
		if err := json.Unmarshal([]byte(body), &item); err != nil {
			continue
		}
		item.ID = id
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate items: %w", err)
	}
	return items, nil
}

// Save replaces all rows with items
func (p *Persister) Save(ctx context.Context, items []*types.CuratedItem) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM curated_items`); err != nil {
		return fmt.Errorf("failed to clear items: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO curated_items (id, chain, position, score, discovered_at, body)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, item := range items {
		body, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to marshal item %s: %w", item.ID, err)
		}
		var score sql.NullInt64
		if item.Score != nil {
			score = sql.NullInt64{Int64: int64(*item.Score), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, item.ID, string(item.Chain), i, score,
			item.DiscoveredAt.UTC().Format(time.RFC3339Nano), string(body)); err != nil {
			return fmt.Errorf("failed to insert item %s: %w", item.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Close closes the database
func (p *Persister) Close() error {
	return p.db.Close()
}
