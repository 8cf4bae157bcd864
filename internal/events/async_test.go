package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

// blockingPublisher blocks every Publish until release is closed.
type blockingPublisher struct {
	release chan struct{}

	mu     sync.Mutex
	topics []string
	closed bool
}

func (b *blockingPublisher) Publish(_ context.Context, topic string, _ any) error {
	<-b.release
	b.mu.Lock()
	b.topics = append(b.topics, topic)
	b.mu.Unlock()
	return nil
}

func (b *blockingPublisher) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

func TestAsyncPublisher_ImplementsPublisher(t *testing.T) {
	var _ Publisher = (*AsyncPublisher)(nil)
}

func TestAsyncPublisher_NeverBlocks(t *testing.T) {
	next := &blockingPublisher{release: make(chan struct{})}
	pub := NewAsyncPublisher(next, 2, nil)

	start := time.Now()
	var full int
	for i := 0; i < 20; i++ {
		if err := pub.Publish(context.Background(), TopicState, i); errors.Is(err, ErrQueueFull) {
			full++
		}
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Publish blocked for %v", elapsed)
	}
	if full == 0 {
		t.Error("no publish reported ErrQueueFull")
	}
	if pub.Dropped() != uint64(full) {
		t.Errorf("Dropped() = %d, want %d", pub.Dropped(), full)
	}

	close(next.release)
	if err := pub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	next.mu.Lock()
	defer next.mu.Unlock()
	if !next.closed {
		t.Error("Close did not close the wrapped publisher")
	}
	if len(next.topics)+full != 20 {
		t.Errorf("delivered %d + dropped %d != 20", len(next.topics), full)
	}
}

func TestAsyncPublisher_PublishAfterClose(t *testing.T) {
	pub := NewAsyncPublisher(&NoopPublisher{}, 0, nil)
	if err := pub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := pub.Publish(context.Background(), TopicState, 1); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish after Close = %v, want ErrClosed", err)
	}
	if err := pub.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}

func TestAsyncPublisher_DeliversToNATS(t *testing.T) {
	url := startTestNATS(t)

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connecting subscriber: %v", err)
	}
	defer nc.Close()
	ch := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe(TopicState, ch)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer sub.Unsubscribe() //nolint:errcheck
	nc.Flush()

	natsPub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	pub := NewAsyncPublisher(natsPub, 8, nil)
	defer pub.Close()

	if err := pub.Publish(context.Background(), TopicState, map[string]string{"sourceId": "src"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-ch:
		if string(msg.Data) != `{"sourceId":"src"}` {
			t.Errorf("got %s", msg.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for async publish")
	}
}

func TestAsyncPublisher_BrokerDown(t *testing.T) {
	url := startTestNATS(t)
	natsPub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	natsPub.conn.Close()

	pub := NewAsyncPublisher(natsPub, 4, nil)
	defer pub.Close()
	// Failures surface only in the background goroutine's log.
	if err := pub.Publish(context.Background(), TopicState, 1); err != nil {
		t.Errorf("Publish with broker down = %v, want nil", err)
	}
}
