package postgres

import (
	"context"
	"database/sql"

	"github.com/alfredjeanlab/paywatch/internal/model"
	"github.com/alfredjeanlab/paywatch/internal/store"
)

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryGetState(ctx context.Context, db executor, sourceID string) (*model.DerivedState, error) {
	row := db.QueryRowContext(ctx, `SELECT `+store.Columns+` FROM derived_states WHERE source_id = $1`, sourceID)
	return store.ScanState(row)
}

func queryPutState(ctx context.Context, db executor, st *model.DerivedState) error {
	r, err := store.EncodeRow(st)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO derived_states (`+store.Columns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (source_id) DO UPDATE SET
			has_active = EXCLUDED.has_active,
			latest_event = EXCLUDED.latest_event,
			latest_matching_event = EXCLUDED.latest_matching_event,
			active_snapshot = EXCLUDED.active_snapshot,
			updated_at_ms = EXCLUDED.updated_at_ms`,
		r.SourceID, r.HasActive, r.LatestEvent, r.LatestMatchingEvent, r.ActiveSnapshot, r.UpdatedAtMs,
	)
	return err
}

func queryListStates(ctx context.Context, db executor) ([]*model.DerivedState, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+store.Columns+` FROM derived_states ORDER BY source_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return store.ScanStates(rows)
}
