package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ErrQueueFull is returned by AsyncPublisher.Publish when the event was
// dropped because the queue is full.
var ErrQueueFull = errors.New("publish queue full")

// ErrClosed is returned by AsyncPublisher.Publish after Close.
var ErrClosed = errors.New("publisher closed")

// DefaultQueueSize is the AsyncPublisher queue length used when size <= 0.
const DefaultQueueSize = 256

type queued struct {
	topic string
	event any
}

// AsyncPublisher forwards events to another Publisher from a single
// background goroutine. Publish never blocks: when the queue is full the
// event is dropped and ErrQueueFull returned.
type AsyncPublisher struct {
	next   Publisher
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan queued
	done   chan struct{}

	dropped atomic.Uint64
}

// NewAsyncPublisher starts the forwarding goroutine. Close stops it after
// draining the queue and then closes next.
func NewAsyncPublisher(next Publisher, size int, logger *slog.Logger) *AsyncPublisher {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &AsyncPublisher{
		next:   next,
		logger: logger,
		queue:  make(chan queued, size),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *AsyncPublisher) run() {
	defer close(p.done)
	for m := range p.queue {
		if err := p.next.Publish(context.Background(), m.topic, m.event); err != nil {
			p.logger.Warn("async publish failed", "topic", m.topic, "error", err)
		}
	}
}

func (p *AsyncPublisher) Publish(_ context.Context, topic string, event any) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.queue <- queued{topic: topic, event: event}:
		return nil
	default:
		p.dropped.Add(1)
		return ErrQueueFull
	}
}

// Dropped returns the number of events dropped because the queue was full.
func (p *AsyncPublisher) Dropped() uint64 {
	return p.dropped.Load()
}

func (p *AsyncPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	return p.next.Close()
}
