// Package ingest accepts posted and removed signals from the device-side
// collaborator, drops signals for unwatched sources, keeps the active-set
// mirror current and hands the signal to the aggregator.
package ingest

import (
	"context"
	"log/slog"
	"sync"

	"github.com/alfredjeanlab/paywatch/internal/model"
)

// Request is the body of a posted or removed signal. Active, when non-nil,
// is the collaborator's complete active set for the event's source and
// replaces the mirror before recomputation. An empty, non-nil Active means
// nothing is active.
type Request struct {
	Event  model.Event   `json:"event"`
	Active []model.Event `json:"active"`
}

// Result is the outcome of one signal.
type Result struct {
	Ignored bool                `json:"ignored,omitempty"`
	State   *model.DerivedState `json:"state,omitempty"`
}

// Aggregator is the recompute step. *aggregator.Aggregator implements it.
type Aggregator interface {
	OnEventPosted(ctx context.Context, ev model.Event) (*model.DerivedState, error)
	OnEventRemoved(ctx context.Context, ev model.Event) (*model.DerivedState, error)
}

// Mirror is the active-set table. *activeset.Tracker implements it.
type Mirror interface {
	Post(ev model.Event)
	Remove(sourceID, key string) bool
	Replace(sourceID string, events []model.Event)
}

// Watchlist reports which sources are watched. *classify.Registry
// implements it.
type Watchlist interface {
	Watched(sourceID string) bool
}

// Ingestor serializes signals per source. Signals for different sources
// run concurrently.
type Ingestor struct {
	agg     Aggregator
	mirror  Mirror
	watched Watchlist
	logger  *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an ingestor. logger may be nil.
func New(agg Aggregator, mirror Mirror, watched Watchlist, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		agg:     agg,
		mirror:  mirror,
		watched: watched,
		logger:  logger,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Posted handles a newly posted event.
func (i *Ingestor) Posted(ctx context.Context, req Request) (Result, error) {
	if err := req.Event.Validate(); err != nil {
		return Result{}, err
	}
	ev := req.Event
	if !i.watched.Watched(ev.SourceID) {
		i.logger.Debug("ignoring event for unwatched source", "source_id", ev.SourceID, "key", ev.Key)
		return Result{Ignored: true}, nil
	}

	unlock := i.lock(ev.SourceID)
	defer unlock()

	if req.Active != nil {
		i.mirror.Replace(ev.SourceID, req.Active)
	}
	i.mirror.Post(ev)

	s, err := i.agg.OnEventPosted(ctx, ev)
	return Result{State: s}, err
}

// Removed handles the removal of an event.
func (i *Ingestor) Removed(ctx context.Context, req Request) (Result, error) {
	if err := req.Event.Validate(); err != nil {
		return Result{}, err
	}
	ev := req.Event
	if !i.watched.Watched(ev.SourceID) {
		i.logger.Debug("ignoring removal for unwatched source", "source_id", ev.SourceID, "key", ev.Key)
		return Result{Ignored: true}, nil
	}

	unlock := i.lock(ev.SourceID)
	defer unlock()

	if req.Active != nil {
		i.mirror.Replace(ev.SourceID, req.Active)
	}
	i.mirror.Remove(ev.SourceID, ev.Key)

	s, err := i.agg.OnEventRemoved(ctx, ev)
	return Result{State: s}, err
}

// Lock serializes work on sourceID with ingest. Callers outside this
// package, such as the expiry reaper, use it before recomputing.
func (i *Ingestor) Lock(sourceID string) (unlock func()) {
	return i.lock(sourceID)
}

func (i *Ingestor) lock(sourceID string) func() {
	i.mu.Lock()
	l, ok := i.locks[sourceID]
	if !ok {
		l = &sync.Mutex{}
		i.locks[sourceID] = l
	}
	i.mu.Unlock()

	l.Lock()
	return l.Unlock
}
