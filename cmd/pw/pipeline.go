package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/paywatch/internal/activeset"
	"github.com/alfredjeanlab/paywatch/internal/aggregator"
	"github.com/alfredjeanlab/paywatch/internal/classify"
	"github.com/alfredjeanlab/paywatch/internal/config"
	"github.com/alfredjeanlab/paywatch/internal/ingest"
	"github.com/alfredjeanlab/paywatch/internal/model"
	"github.com/alfredjeanlab/paywatch/internal/store"
)

// pipeline is the stateful core of serve: the active-set mirror, the
// aggregator and the ingestor, plus the start-up, expiry and reload paths
// that recompute outside a request. Every recompute runs under the same
// per-source lock the ingestor takes.
type pipeline struct {
	store    store.Store
	registry *classify.Registry
	tracker  *activeset.Tracker
	agg      *aggregator.Aggregator
	ing      *ingest.Ingestor
	logger   *slog.Logger
}

func newPipeline(st store.Store, registry *classify.Registry, notifier aggregator.Notifier, logger *slog.Logger, opts ...aggregator.Option) *pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	tracker := activeset.New()
	agg := aggregator.New(tracker, st, notifier, registry,
		append([]aggregator.Option{aggregator.WithLogger(logger)}, opts...)...)
	return &pipeline{
		store:    st,
		registry: registry,
		tracker:  tracker,
		agg:      agg,
		ing:      ingest.New(agg, tracker, registry, logger),
		logger:   logger,
	}
}

// start rebuilds the mirror of each watched source from its persisted
// snapshot, then recomputes it. A source whose state cannot be read is left
// untouched so a store outage does not overwrite it with an empty state.
func (p *pipeline) start(ctx context.Context) error {
	var errs []error
	for _, id := range p.registry.Sources() {
		if err := p.restore(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *pipeline) restore(ctx context.Context, sourceID string) error {
	unlock := p.ing.Lock(sourceID)
	defer unlock()

	s, err := p.store.GetState(ctx, sourceID)
	switch {
	case err == nil:
		p.tracker.Replace(sourceID, oldestFirst(s.ActiveSnapshot))
		p.logger.Debug("restored active set", "source_id", sourceID, "count", len(s.ActiveSnapshot))
	case errors.Is(err, store.ErrNotFound):
	case errors.Is(err, model.ErrMalformed):
		p.logger.Warn("discarding malformed persisted state", "source_id", sourceID, "error", err)
	default:
		return fmt.Errorf("restore %s: %w", sourceID, err)
	}

	_, err = p.agg.Recompute(ctx, sourceID)
	return err
}

// oldestFirst reverses a newest-first snapshot into delivery order.
func oldestFirst(snapshot []model.Event) []model.Event {
	out := make([]model.Event, len(snapshot))
	for i, ev := range snapshot {
		out[len(snapshot)-1-i] = ev
	}
	return out
}

// recompute refreshes one source under its ingest lock.
func (p *pipeline) recompute(ctx context.Context, sourceID string) error {
	unlock := p.ing.Lock(sourceID)
	defer unlock()
	_, err := p.agg.Recompute(ctx, sourceID)
	return err
}

func (p *pipeline) recomputeAll(ctx context.Context) error {
	var errs []error
	for _, id := range p.registry.Sources() {
		if err := p.recompute(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// startReaper expires mirrored events unseen for ttl and recomputes the
// sources that lost any. Call stopReaper on shutdown.
func (p *pipeline) startReaper(ctx context.Context, ttl, interval time.Duration) {
	p.tracker.StartReaper(&activeset.ReaperConfig{
		TTL:           ttl,
		SweepInterval: interval,
		OnExpire: func(sourceID string) {
			if err := p.recompute(ctx, sourceID); err != nil {
				p.logger.Warn("recompute after expiry failed", "source_id", sourceID, "error", err)
			}
		},
	})
}

func (p *pipeline) stopReaper() {
	p.tracker.Stop()
}

// reload installs the sources file at path and reclassifies every source.
func (p *pipeline) reload(ctx context.Context, applier *config.Applier, path, primary string) error {
	if err := applier.Apply(path, primary); err != nil {
		return err
	}
	p.logger.Info("sources reloaded", "primary", p.registry.Primary(), "sources", p.registry.Sources())
	return p.recomputeAll(ctx)
}
