package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/alfredjeanlab/paywatch/internal/broadcast"
)

const (
	// sseKeepaliveInterval is how often keepalive comments are sent to
	// prevent connection timeouts.
	sseKeepaliveInterval = 15 * time.Second

	sseBufferSize = 64
)

// sseEvent is a single notification ready to be written to the stream.
type sseEvent struct {
	ID   uint64
	Kind broadcast.Kind
	Data []byte // JSON-encoded envelope
}

// sseStream is the broadcaster subscriber behind one SSE connection. It is
// closed when another stream registers in its place.
type sseStream struct {
	srv   *Server
	kinds []broadcast.Kind // empty = all
	ch    chan *sseEvent
	done  chan struct{}
	once  sync.Once
}

func newSSEStream(srv *Server, kinds []broadcast.Kind) *sseStream {
	return &sseStream{
		srv:   srv,
		kinds: kinds,
		ch:    make(chan *sseEvent, sseBufferSize),
		done:  make(chan struct{}),
	}
}

// Deliver implements broadcast.Subscriber. It never blocks.
func (c *sseStream) Deliver(n broadcast.Notification) {
	if !c.matches(n.Kind) {
		return
	}
	data, err := json.Marshal(n)
	if err != nil {
		c.srv.logger.Warn("failed to marshal notification for sse", "kind", n.Kind, "error", err)
		return
	}
	evt := &sseEvent{ID: c.srv.sseSeq.Add(1), Kind: n.Kind, Data: data}
	select {
	case c.ch <- evt:
	default:
		c.srv.logger.Warn("sse client too slow, dropping notification", "kind", n.Kind, "source_id", n.SourceID())
	}
}

// Replaced implements broadcast.Replacer.
func (c *sseStream) Replaced() {
	c.once.Do(func() { close(c.done) })
}

func (c *sseStream) matches(k broadcast.Kind) bool {
	if len(c.kinds) == 0 {
		return true
	}
	for _, want := range c.kinds {
		if want == k {
			return true
		}
	}
	return false
}

// handleEventStream handles GET /v1/events/stream (SSE endpoint). The
// connection becomes the broadcaster's single subscriber; an earlier stream
// is ended.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Optional filter: ?types=state,posted
	var kinds []broadcast.Kind
	if q := r.URL.Query().Get("types"); q != "" {
		for _, t := range strings.Split(q, ",") {
			switch k := broadcast.Kind(strings.TrimSpace(t)); k {
			case broadcast.KindState, broadcast.KindPosted:
				kinds = append(kinds, k)
			case "":
			default:
				writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown notification type %q", k))
				return
			}
		}
	}

	stream := newSSEStream(s, kinds)
	handle := s.bcast.Register(stream)
	defer s.bcast.Unregister(handle)
	s.logger.Info("sse subscriber registered", "handle", handle.ID())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stream.done:
			s.logger.Info("sse subscriber replaced", "handle", handle.ID())
			return
		case evt := <-stream.ch:
			writeSSEEvent(w, evt)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprintf(w, ":keepalive\n\n")
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes a single SSE event to the writer.
func writeSSEEvent(w http.ResponseWriter, evt *sseEvent) {
	fmt.Fprintf(w, "id:%d\n", evt.ID)
	fmt.Fprintf(w, "event:%s\n", evt.Kind)
	fmt.Fprintf(w, "data:%s\n\n", evt.Data)
}
