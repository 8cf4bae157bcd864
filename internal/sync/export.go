package sync

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/alfredjeanlab/paywatch/internal/model"
	"github.com/alfredjeanlab/paywatch/internal/store"
)

const exportVersion = "1"

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version    string    `json:"version"`
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	StateCount int       `json:"state_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Lister is the part of store.Store that ExportJSONL needs.
type Lister interface {
	ListStates(ctx context.Context) ([]*model.DerivedState, error)
}

// ExportJSONL writes every persisted derived state as JSONL to w, sorted by
// source id and preceded by a header line.
func ExportJSONL(ctx context.Context, s Lister, w io.Writer) error {
	states, err := s.ListStates(ctx)
	if err != nil {
		return fmt.Errorf("list states: %w", err)
	}
	sort.Slice(states, func(i, j int) bool {
		return states[i].SourceID < states[j].SourceID
	})

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:    exportVersion,
		Type:       "header",
		Timestamp:  time.Now().UTC(),
		StateCount: len(states),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, st := range states {
		data, err := json.Marshal(st.Normalize())
		if err != nil {
			return fmt.Errorf("marshal state %s: %w", st.SourceID, err)
		}
		if err := enc.Encode(record{Type: "state", Data: data}); err != nil {
			return fmt.Errorf("encode state %s: %w", st.SourceID, err)
		}
	}
	return nil
}

// ImportJSONL reads an export produced by ExportJSONL and writes every state
// back with PutState. Unknown record types are skipped. It returns the
// number of states written.
func ImportJSONL(ctx context.Context, st store.Store, r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	n, line := 0, 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec struct {
			Type    string          `json:"type"`
			Version string          `json:"version"`
			Data    json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(raw, &rec); err != nil {
			return n, fmt.Errorf("line %d: %w: %v", line, model.ErrMalformed, err)
		}
		switch rec.Type {
		case "header":
			if rec.Version != exportVersion {
				return n, fmt.Errorf("line %d: unsupported export version %q", line, rec.Version)
			}
		case "state":
			var ds model.DerivedState
			if err := json.Unmarshal(rec.Data, &ds); err != nil {
				return n, fmt.Errorf("line %d: %w: %v", line, model.ErrMalformed, err)
			}
			if ds.SourceID == "" {
				return n, fmt.Errorf("line %d: %w: state without sourceId", line, model.ErrMalformed)
			}
			if err := st.PutState(ctx, ds.Normalize()); err != nil {
				return n, fmt.Errorf("line %d: put state %s: %w", line, ds.SourceID, err)
			}
			n++
		}
	}
	if err := scanner.Err(); err != nil {
		return n, fmt.Errorf("reading export: %w", err)
	}
	return n, nil
}
