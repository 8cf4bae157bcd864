// Package sqlite implements the store.Store interface backed by a local
// SQLite file. It is the default store: the kiosk keeps its derived state on
// disk and reads it back after a restart.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"path/filepath"
	"strings"

	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "modernc.org/sqlite"

	"github.com/alfredjeanlab/paywatch/internal/model"
	"github.com/alfredjeanlab/paywatch/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements store.Store backed by a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// Compile-time check that SQLiteStore implements store.Store.
var _ store.Store = (*SQLiteStore)(nil)

// Open opens (creating if needed) the SQLite database at path and applies
// any pending migrations.
func Open(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}
	return store.Migrate(migrationsFS, "migrations", "sqlite", driver)
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) GetState(ctx context.Context, sourceID string) (*model.DerivedState, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+store.Columns+` FROM derived_states WHERE source_id = ?`, sourceID)
	st, err := store.ScanState(row)
	return st, store.Fault("get state", err)
}

func (s *SQLiteStore) PutState(ctx context.Context, st *model.DerivedState) error {
	r, err := store.EncodeRow(st)
	if err != nil {
		return store.Fault("put state", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO derived_states (`+store.Columns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_id) DO UPDATE SET
			has_active = excluded.has_active,
			latest_event = excluded.latest_event,
			latest_matching_event = excluded.latest_matching_event,
			active_snapshot = excluded.active_snapshot,
			updated_at_ms = excluded.updated_at_ms`,
		r.SourceID, r.HasActive, r.LatestEvent, r.LatestMatchingEvent, r.ActiveSnapshot, r.UpdatedAtMs,
	)
	return store.Fault("put state", err)
}

func (s *SQLiteStore) ListStates(ctx context.Context) ([]*model.DerivedState, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+store.Columns+` FROM derived_states ORDER BY source_id`)
	if err != nil {
		return nil, store.Fault("list states", err)
	}
	defer rows.Close()

	states, err := store.ScanStates(rows)
	return states, store.Fault("list states", err)
}
