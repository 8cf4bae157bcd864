package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/alfredjeanlab/paywatch/internal/events"
)

// Consumer feeds Requests published on the ingest subjects into an
// Ingestor. It lets a device bridge push signals over NATS instead of HTTP.
type Consumer struct {
	sub    events.Subscriber
	ing    *Ingestor
	logger *slog.Logger
}

// NewConsumer creates a consumer. logger may be nil.
func NewConsumer(sub events.Subscriber, ing *Ingestor, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{sub: sub, ing: ing, logger: logger}
}

// Run subscribes to the ingest subjects and processes messages until ctx is
// done. Bad payloads and failed signals are logged and skipped.
func (c *Consumer) Run(ctx context.Context) error {
	posted, cancelPosted, err := c.sub.Subscribe(events.TopicIngestPosted)
	if err != nil {
		return fmt.Errorf("subscribe posted: %w", err)
	}
	defer cancelPosted()
	removed, cancelRemoved, err := c.sub.Subscribe(events.TopicIngestRemoved)
	if err != nil {
		return fmt.Errorf("subscribe removed: %w", err)
	}
	defer cancelRemoved()

	for {
		select {
		case <-ctx.Done():
			return nil
		case data, ok := <-posted:
			if !ok {
				return nil
			}
			c.handle(ctx, events.TopicIngestPosted, data, c.ing.Posted)
		case data, ok := <-removed:
			if !ok {
				return nil
			}
			c.handle(ctx, events.TopicIngestRemoved, data, c.ing.Removed)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, topic string, data []byte, fn func(context.Context, Request) (Result, error)) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		c.logger.Warn("dropping malformed ingest message", "topic", topic, "error", err)
		return
	}
	if _, err := fn(ctx, req); err != nil {
		c.logger.Warn("ingest failed", "topic", topic, "source_id", req.Event.SourceID, "error", err)
	}
}
