// Package broadcast pushes derived-state changes to at most one live
// subscriber and, best-effort, to other processes over the event bus.
//
// There is no buffering: a notification raised while nobody is registered
// is dropped, and a newly registered subscriber sees only what happens after
// it registered.
package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alfredjeanlab/paywatch/internal/events"
	"github.com/alfredjeanlab/paywatch/internal/idgen"
	"github.com/alfredjeanlab/paywatch/internal/model"
)

// Subscriber receives notifications. Deliver is called outside the
// broadcaster's lock, one notification at a time per notifying goroutine.
type Subscriber interface {
	Deliver(n Notification)
}

// Replacer is implemented by subscribers that want to know when a newer
// registration displaced them.
type Replacer interface {
	Replaced()
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(n Notification)

func (f SubscriberFunc) Deliver(n Notification) { f(n) }

// Handle identifies one registration. The zero Handle matches nothing.
type Handle struct {
	id string
}

// ID returns the handle's identifier.
func (h Handle) ID() string { return h.id }

// Broadcaster holds the single subscriber slot.
type Broadcaster struct {
	mu     sync.Mutex
	sub    Subscriber
	handle Handle
	seq    uint64

	pub    events.Publisher
	logger *slog.Logger
}

// New creates a broadcaster. pub may be nil to disable cross-process
// publishing.
func New(pub events.Publisher, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{pub: pub, logger: logger}
}

// Register installs s as the subscriber, replacing any previous one, and
// returns the handle for the new registration.
func (b *Broadcaster) Register(s Subscriber) Handle {
	b.mu.Lock()
	b.seq++
	id, err := idgen.Subscription()
	if err != nil {
		id = fmt.Sprintf("%s%d", idgen.SubscriptionPrefix, b.seq)
	}
	prev := b.sub
	b.sub = s
	b.handle = Handle{id: id}
	h := b.handle
	b.mu.Unlock()

	if prev != nil {
		b.logger.Info("subscriber replaced", "handle", h.id)
		if r, ok := prev.(Replacer); ok {
			r.Replaced()
		}
	}
	return h
}

// Unregister clears the subscriber if h is the current registration. A
// stale handle is a no-op. It reports whether the subscriber was cleared.
func (b *Broadcaster) Unregister(h Handle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if h.id == "" || h != b.handle {
		return false
	}
	b.sub = nil
	b.handle = Handle{}
	return true
}

// Subscribed reports whether a subscriber is registered.
func (b *Broadcaster) Subscribed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sub != nil
}

// NotifyState pushes a "state" notification for s.
func (b *Broadcaster) NotifyState(ctx context.Context, s *model.DerivedState) {
	p := s.Payload()
	b.notify(ctx, events.TopicState, Notification{Kind: KindState, State: &p})
}

// NotifyPosted pushes a "posted" notification carrying ev.
func (b *Broadcaster) NotifyPosted(ctx context.Context, ev model.Event) {
	b.notify(ctx, events.TopicPosted, Notification{Kind: KindPosted, Posted: &model.PostedPayload{SourceID: ev.SourceID, Event: ev}})
}

func (b *Broadcaster) notify(ctx context.Context, topic string, n Notification) {
	b.mu.Lock()
	sub := b.sub
	b.mu.Unlock()

	if sub != nil {
		sub.Deliver(n)
	}

	if b.pub == nil {
		return
	}
	if err := b.pub.Publish(ctx, topic, n.Envelope()); err != nil {
		b.logger.Warn("publish notification failed",
			"topic", topic,
			"source_id", n.SourceID(),
			"error", err)
	}
}
