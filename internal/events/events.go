// Package events carries paywatch notifications and ingest requests over
// NATS. Without a broker the serve command uses NoopPublisher and the
// in-process broadcaster only.
package events

import "context"

// Outbound notification subjects.
const (
	TopicState  = "paywatch.state"
	TopicPosted = "paywatch.posted"

	// TopicNotifications matches every outbound notification subject but not
	// the ingest subjects below it.
	TopicNotifications = "paywatch.*"
)

// Inbound ingest subjects. Payloads are the same JSON bodies accepted by
// POST /v1/events/posted and /v1/events/removed.
const (
	TopicIngestPosted  = "paywatch.ingest.posted"
	TopicIngestRemoved = "paywatch.ingest.removed"
)

// Publisher sends a JSON-encodable payload to a subject.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// Subscriber hands out raw payloads per subject. cancel unsubscribes and
// closes the channel.
type Subscriber interface {
	Subscribe(topic string) (payloads <-chan []byte, cancel func(), err error)
	Close() error
}

// NoopPublisher discards everything. It stands in when PAYWATCH_NATS_URL is
// unset.
type NoopPublisher struct{}

func (*NoopPublisher) Publish(context.Context, string, any) error { return nil }

func (*NoopPublisher) Close() error { return nil }
