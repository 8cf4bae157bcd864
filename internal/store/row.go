package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alfredjeanlab/paywatch/internal/model"
)

// Columns is the column list of the derived_states table, in scan order.
const Columns = `source_id, has_active, latest_event, latest_matching_event, active_snapshot, updated_at_ms`

// Row is the storage form of a DerivedState. Events and the snapshot are
// JSON text; absent events are NULL.
type Row struct {
	SourceID            string
	HasActive           bool
	LatestEvent         sql.NullString
	LatestMatchingEvent sql.NullString
	ActiveSnapshot      string
	UpdatedAtMs         int64
}

// Scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type Scannable interface {
	Scan(dest ...any) error
}

// EncodeRow converts a state into its storage form. A nil state or one
// without a source id is rejected.
func EncodeRow(s *model.DerivedState) (Row, error) {
	if s == nil {
		return Row{}, errors.New("encode state: nil state")
	}
	if s.SourceID == "" {
		return Row{}, errors.New("encode state: empty source id")
	}
	r := Row{SourceID: s.SourceID, HasActive: s.HasActive, UpdatedAtMs: s.UpdatedAtMs}
	var err error
	if r.LatestEvent, err = encodeEvent(s.LatestEvent); err != nil {
		return Row{}, fmt.Errorf("encode latest event: %w", err)
	}
	if r.LatestMatchingEvent, err = encodeEvent(s.LatestMatchingEvent); err != nil {
		return Row{}, fmt.Errorf("encode latest matching event: %w", err)
	}
	snapshot := s.ActiveSnapshot
	if snapshot == nil {
		snapshot = []model.Event{}
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return Row{}, fmt.Errorf("encode active snapshot: %w", err)
	}
	r.ActiveSnapshot = string(data)
	return r, nil
}

func encodeEvent(ev *model.Event) (sql.NullString, error) {
	if ev == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// DecodeRow converts a storage row back into a state. Undecodable JSON yields
// an error wrapping model.ErrMalformed.
func DecodeRow(r Row) (*model.DerivedState, error) {
	s := &model.DerivedState{SourceID: r.SourceID, HasActive: r.HasActive, UpdatedAtMs: r.UpdatedAtMs}
	var err error
	if s.LatestEvent, err = decodeEvent(r.LatestEvent); err != nil {
		return nil, fmt.Errorf("source %s: latest event: %w", r.SourceID, err)
	}
	if s.LatestMatchingEvent, err = decodeEvent(r.LatestMatchingEvent); err != nil {
		return nil, fmt.Errorf("source %s: latest matching event: %w", r.SourceID, err)
	}
	if s.ActiveSnapshot, err = model.ParseEvents([]byte(r.ActiveSnapshot)); err != nil {
		return nil, fmt.Errorf("source %s: active snapshot: %w", r.SourceID, err)
	}
	return s, nil
}

func decodeEvent(ns sql.NullString) (*model.Event, error) {
	if !ns.Valid {
		return nil, nil
	}
	ev, err := model.ParseEvent([]byte(ns.String))
	if err == model.ErrAbsent {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// ScanState scans one row (columns in Columns order) and decodes it.
// sql.ErrNoRows becomes ErrNotFound.
func ScanState(row Scannable) (*model.DerivedState, error) {
	var r Row
	err := row.Scan(&r.SourceID, &r.HasActive, &r.LatestEvent, &r.LatestMatchingEvent, &r.ActiveSnapshot, &r.UpdatedAtMs)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return DecodeRow(r)
}

// ScanStates scans every remaining row of rows. A row whose stored JSON does
// not decode is logged and skipped so one damaged source does not hide the
// others; any other error stops the scan.
func ScanStates(rows *sql.Rows) ([]*model.DerivedState, error) {
	var states []*model.DerivedState
	for rows.Next() {
		st, err := ScanState(rows)
		if errors.Is(err, model.ErrMalformed) {
			slog.Warn("store: skipping malformed state row", "error", err)
			continue
		}
		if err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	return states, rows.Err()
}
