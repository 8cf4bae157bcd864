// Package aggregator recomputes a source's derived state from its full
// active set on every signal, persists it, and notifies the broadcaster.
//
// There is no incremental bookkeeping: posts and removals may race, repeat,
// or go missing across restarts, so each signal rebuilds the whole record
// from the collaborator's authoritative active set.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alfredjeanlab/paywatch/internal/classify"
	"github.com/alfredjeanlab/paywatch/internal/model"
	"github.com/alfredjeanlab/paywatch/internal/store"
)

const tracerName = "github.com/alfredjeanlab/paywatch/internal/aggregator"

// ActiveSource returns the complete set of currently active events for a
// source, in delivery order.
type ActiveSource interface {
	Active(ctx context.Context, sourceID string) ([]model.Event, error)
}

// Notifier receives the aggregator's side effects.
type Notifier interface {
	NotifyState(ctx context.Context, s *model.DerivedState)
	NotifyPosted(ctx context.Context, ev model.Event)
}

// Classifiers resolves the classifier and role of each source.
// *classify.Registry implements it.
type Classifiers interface {
	For(sourceID string) classify.Classifier
	Primary() string
	Sources() []string
}

// Aggregator runs the recompute, persist, notify step.
type Aggregator struct {
	active      ActiveSource
	store       store.Store
	notifier    Notifier
	classifiers Classifiers

	now    func() time.Time
	logger *slog.Logger
	tracer trace.Tracer
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock overrides the wall clock used for UpdatedAtMs.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithTracerProvider sets the tracer provider used for recompute spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(a *Aggregator) {
		if tp != nil {
			a.tracer = tp.Tracer(tracerName)
		}
	}
}

// New creates an aggregator.
func New(active ActiveSource, st store.Store, notifier Notifier, classifiers Classifiers, opts ...Option) *Aggregator {
	a := &Aggregator{
		active:      active,
		store:       st,
		notifier:    notifier,
		classifiers: classifiers,
		now:         time.Now,
		logger:      slog.Default(),
		tracer:      otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// OnEventPosted recomputes ev's source. When the source is the primary
// source a "posted" notification carrying ev follows the "state" one.
func (a *Aggregator) OnEventPosted(ctx context.Context, ev model.Event) (*model.DerivedState, error) {
	s, err := a.Recompute(ctx, ev.SourceID)
	if s != nil && ev.SourceID == a.classifiers.Primary() {
		a.notifier.NotifyPosted(ctx, ev)
	}
	return s, err
}

// OnEventRemoved recomputes ev's source.
func (a *Aggregator) OnEventRemoved(ctx context.Context, ev model.Event) (*model.DerivedState, error) {
	return a.Recompute(ctx, ev.SourceID)
}

// Recompute rebuilds, persists and announces the state of sourceID. A
// storage failure is returned, wrapped, together with the computed state;
// the "state" notification is sent regardless.
func (a *Aggregator) Recompute(ctx context.Context, sourceID string) (*model.DerivedState, error) {
	ctx, span := a.tracer.Start(ctx, "aggregator.recompute",
		trace.WithAttributes(attribute.String("source_id", sourceID)))
	defer span.End()

	active, err := a.active.Active(ctx, sourceID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read active set")
		return nil, fmt.Errorf("read active set for %s: %w", sourceID, err)
	}

	s := Compute(sourceID, active, a.classifiers.For(sourceID), a.now().UnixMilli())
	span.SetAttributes(
		attribute.Int("active.count", len(s.ActiveSnapshot)),
		attribute.Bool("has_matching", s.LatestMatchingEvent != nil),
	)

	var persistErr error
	if err := a.store.PutState(ctx, s); err != nil {
		persistErr = fmt.Errorf("persist state for %s: %w", sourceID, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist state")
		a.logger.Warn("persist derived state failed", "source_id", sourceID, "error", err)
	}

	a.notifier.NotifyState(ctx, s)
	return s, persistErr
}

// RecomputeAll recomputes every watched source. Errors are joined; a
// failure on one source does not stop the others.
func (a *Aggregator) RecomputeAll(ctx context.Context) error {
	var errs []error
	for _, id := range a.classifiers.Sources() {
		if _, err := a.Recompute(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
