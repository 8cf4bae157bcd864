// Package query is the synchronous read side: it answers from persisted
// derived state and never fails just because a source has no state yet.
//
// Absent and malformed records read as defaults (false, zero, empty, nil);
// malformed records are logged. Only a storage fault is returned as an
// error, alongside the same defaults.
package query

import (
	"context"
	"errors"
	"log/slog"

	"github.com/alfredjeanlab/paywatch/internal/model"
	"github.com/alfredjeanlab/paywatch/internal/store"
)

// Authorizer reports whether monitoring is currently authorized.
type Authorizer interface {
	Authorized() bool
}

// Summary is the answer to GetState.
type Summary struct {
	Authorized  bool  `json:"authorized"`
	HasActive   bool  `json:"hasActive"`
	UpdatedAtMs int64 `json:"updatedAtMs"`
}

// Service answers read queries.
type Service struct {
	store  store.Store
	authz  Authorizer
	logger *slog.Logger
}

// New creates a query service. logger may be nil.
func New(st store.Store, authz Authorizer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, authz: authz, logger: logger}
}

// IsMonitoringAuthorized reports the collaborator's authorization flag.
func (s *Service) IsMonitoringAuthorized(_ context.Context) bool {
	return s.authz != nil && s.authz.Authorized()
}

// GetState returns the authorization flag plus the source's activity summary.
func (s *Service) GetState(ctx context.Context, sourceID string) (Summary, error) {
	sum := Summary{Authorized: s.IsMonitoringAuthorized(ctx)}
	st, err := s.load(ctx, sourceID)
	sum.HasActive = st.HasActive
	sum.UpdatedAtMs = st.UpdatedAtMs
	return sum, err
}

// GetLatestEvent returns the most recent active event, or nil.
func (s *Service) GetLatestEvent(ctx context.Context, sourceID string) (*model.Event, error) {
	st, err := s.load(ctx, sourceID)
	return st.LatestEvent, err
}

// GetLatestMatchingEvent returns the most recent matching event, or nil.
func (s *Service) GetLatestMatchingEvent(ctx context.Context, sourceID string) (*model.Event, error) {
	st, err := s.load(ctx, sourceID)
	return st.LatestMatchingEvent, err
}

// GetActiveSnapshot returns the active events newest first. Never nil.
func (s *Service) GetActiveSnapshot(ctx context.Context, sourceID string) ([]model.Event, error) {
	st, err := s.load(ctx, sourceID)
	return st.ActiveSnapshot, err
}

// GetDerivedState returns the full persisted record, or the empty state.
func (s *Service) GetDerivedState(ctx context.Context, sourceID string) (*model.DerivedState, error) {
	return s.load(ctx, sourceID)
}

// load never returns a nil state.
func (s *Service) load(ctx context.Context, sourceID string) (*model.DerivedState, error) {
	st, err := s.store.GetState(ctx, sourceID)
	switch {
	case err == nil && st != nil:
		return st.Normalize(), nil
	case err == nil:
		return model.EmptyState(sourceID), nil
	case errors.Is(err, store.ErrNotFound):
		return model.EmptyState(sourceID), nil
	case errors.Is(err, model.ErrMalformed):
		s.logger.Warn("malformed derived state", "source_id", sourceID, "error", err)
		return model.EmptyState(sourceID), nil
	default:
		return model.EmptyState(sourceID), err
	}
}
