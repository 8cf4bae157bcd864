// Package activeset mirrors the collaborator's table of currently active
// events, per watched source.
//
// The device-side listener is the authority on what is active. It reports
// every post and removal, and may attach the full active list to a signal;
// the Tracker keeps the last known table so the aggregator can recompute
// from the whole set instead of patching deltas. Every post gets a delivery
// sequence number, which is the tie-break when two events share a
// timestamp.
//
// A background reaper drops events that have not been re-reported within a
// TTL, covering removals the collaborator failed to deliver.
package activeset

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alfredjeanlab/paywatch/internal/model"
)

// ReaperConfig configures the background expiry reaper.
type ReaperConfig struct {
	// TTL is how long an event may go without being re-reported before it
	// is dropped from the table.
	// Default: 24 hours.
	TTL time.Duration

	// SweepInterval is how often the reaper scans for expired events.
	// Default: 60 seconds.
	SweepInterval time.Duration

	// OnExpire is called once per source that lost events in a sweep.
	// Called outside the lock, so it may recompute synchronously.
	OnExpire func(sourceID string)
}

// Tracker holds the active events of every source.
type Tracker struct {
	mu      sync.RWMutex
	sources map[string]map[string]*entry
	seq     uint64
	now     func() time.Time

	reaperStop chan struct{}
	reaperDone chan struct{}
}

type entry struct {
	ev       model.Event
	seq      uint64
	lastSeen time.Time
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{
		sources: make(map[string]map[string]*entry),
		now:     time.Now,
	}
}

// Post records ev as active, replacing any previous event with the same key.
// The event becomes the most recently delivered one.
func (t *Tracker) Post(ev model.Event) {
	if ev.SourceID == "" || ev.Key == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	t.table(ev.SourceID)[ev.Key] = &entry{ev: ev, seq: t.seq, lastSeen: t.now()}
}

// Remove drops the event with key from sourceID. It reports whether an
// event was removed.
func (t *Tracker) Remove(sourceID, key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	tbl, ok := t.sources[sourceID]
	if !ok {
		return false
	}
	if _, ok := tbl[key]; !ok {
		return false
	}
	delete(tbl, key)
	return true
}

// Replace installs events as the complete active set of sourceID. Events
// that are unchanged keep their delivery position; new or changed events are
// sequenced in the order given. Events for other sources are ignored.
func (t *Tracker) Replace(sourceID string, events []model.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	old := t.sources[sourceID]
	next := make(map[string]*entry, len(events))
	for _, ev := range events {
		if ev.SourceID != sourceID || ev.Key == "" {
			continue
		}
		if prev, ok := old[ev.Key]; ok && prev.ev.Equal(ev) {
			next[ev.Key] = &entry{ev: ev, seq: prev.seq, lastSeen: now}
			continue
		}
		t.seq++
		next[ev.Key] = &entry{ev: ev, seq: t.seq, lastSeen: now}
	}
	t.sources[sourceID] = next
}

// Active returns the active events of sourceID in delivery order, oldest
// delivery first. The result is never nil.
func (t *Tracker) Active(_ context.Context, sourceID string) ([]model.Event, error) {
	t.mu.RLock()
	tbl := t.sources[sourceID]
	entries := make([]*entry, 0, len(tbl))
	for _, e := range tbl {
		entries = append(entries, e)
	}
	t.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	events := make([]model.Event, len(entries))
	for i, e := range entries {
		events[i] = e.ev
	}
	return events, nil
}

// Len returns the number of active events for sourceID.
func (t *Tracker) Len(sourceID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sources[sourceID])
}

func (t *Tracker) table(sourceID string) map[string]*entry {
	tbl, ok := t.sources[sourceID]
	if !ok {
		tbl = make(map[string]*entry)
		t.sources[sourceID] = tbl
	}
	return tbl
}

// StartReaper launches a background goroutine that periodically drops
// expired events. Call Stop() to shut it down.
func (t *Tracker) StartReaper(cfg *ReaperConfig) {
	if cfg == nil {
		cfg = &ReaperConfig{}
	}
	if cfg.TTL == 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 60 * time.Second
	}

	t.reaperStop = make(chan struct{})
	t.reaperDone = make(chan struct{})

	go t.reapLoop(cfg)
	slog.Info("activeset: reaper started",
		"ttl", cfg.TTL,
		"sweep_interval", cfg.SweepInterval)
}

// Stop shuts down the reaper goroutine.
func (t *Tracker) Stop() {
	if t.reaperStop != nil {
		close(t.reaperStop)
		<-t.reaperDone
		t.reaperStop = nil
		t.reaperDone = nil
	}
}

func (t *Tracker) reapLoop(cfg *ReaperConfig) {
	defer close(t.reaperDone)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.reaperStop:
			return
		case <-ticker.C:
			t.sweep(cfg)
		}
	}
}

func (t *Tracker) sweep(cfg *ReaperConfig) {
	now := t.now()
	expired := make(map[string]int)

	t.mu.Lock()
	for sourceID, tbl := range t.sources {
		for key, e := range tbl {
			if now.Sub(e.lastSeen) > cfg.TTL {
				delete(tbl, key)
				expired[sourceID]++
			}
		}
	}
	t.mu.Unlock()

	sourceIDs := make([]string, 0, len(expired))
	for id := range expired {
		sourceIDs = append(sourceIDs, id)
	}
	sort.Strings(sourceIDs)
	for _, id := range sourceIDs {
		slog.Info("activeset: reaper expired events",
			"source_id", id,
			"count", expired[id],
			"ttl", cfg.TTL)
		if cfg.OnExpire != nil {
			cfg.OnExpire(id)
		}
	}
}
