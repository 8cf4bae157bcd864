// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/paywatch/internal/model"
	"github.com/alfredjeanlab/paywatch/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// connectTimeout bounds the initial ping so serve fails fast on a bad URL.
const connectTimeout = 10 * time.Second

// New opens the database at databaseURL, checks it is reachable and
// applies pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: "paywatch_schema_migrations"})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create migration db driver: %w", err)
	}
	if err := store.Migrate(migrationsFS, "migrations", "postgres", driver); err != nil {
		db.Close()
		return nil, err
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) GetState(ctx context.Context, sourceID string) (*model.DerivedState, error) {
	st, err := queryGetState(ctx, s.db, sourceID)
	return st, store.Fault("get state", err)
}

func (s *PostgresStore) PutState(ctx context.Context, st *model.DerivedState) error {
	return store.Fault("put state", queryPutState(ctx, s.db, st))
}

func (s *PostgresStore) ListStates(ctx context.Context) ([]*model.DerivedState, error) {
	states, err := queryListStates(ctx, s.db)
	return states, store.Fault("list states", err)
}
