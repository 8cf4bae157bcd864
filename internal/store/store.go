package store

import (
	"context"
	"errors"

	"github.com/alfredjeanlab/paywatch/internal/model"
)

// ErrNotFound is returned by GetState when no state has been persisted for a source.
var ErrNotFound = errors.New("state not found")

// Store defines the persistence interface for derived source state.
// Writes are last-write-wins; each PutState replaces the whole record for
// its source atomically.
type Store interface {
	// GetState returns the persisted state for a source. It returns
	// ErrNotFound when nothing was persisted, an error wrapping
	// model.ErrMalformed when the record cannot be decoded, and an *Error for
	// any other storage fault.
	GetState(ctx context.Context, sourceID string) (*model.DerivedState, error)
	PutState(ctx context.Context, state *model.DerivedState) error
	// ListStates returns every persisted state ordered by source id.
	ListStates(ctx context.Context) ([]*model.DerivedState, error)

	// Lifecycle
	Close() error
}

// Error is a storage fault: the backend could not be read or written.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return "store " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Fault wraps err as a storage fault for op. Sentinels ErrNotFound and
// model.ErrMalformed pass through unchanged, as does nil.
func Fault(op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, model.ErrMalformed) {
		return err
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Op: op, Err: err}
}

// IsFault reports whether err is a storage fault.
func IsFault(err error) bool {
	var se *Error
	return errors.As(err, &se)
}
