package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alfredjeanlab/garden/internal/events"
)

const (
	// sseRingBufferSize is how many replayable events are kept for clients
	// reconnecting with Last-Event-ID.
	sseRingBufferSize = 512

	// sseKeepaliveInterval is how often an idle stream gets a comment line
	// so proxies do not time it out.
	sseKeepaliveInterval = 15 * time.Second

	// sseClientBuffer is the per-client queue length. A client that falls
	// further behind loses events.
	sseClientBuffer = 64
)

// sseEvent is one event on the stream. IDs increase across replayable and
// transient events alike.
type sseEvent struct {
	ID    uint64
	Topic string
	Data  []byte // JSON
}

// replayLog is a fixed-size ring of the most recent replayable events.
type replayLog struct {
	mu    sync.RWMutex
	buf   []sseEvent
	next  int
	count int
}

func newReplayLog(size int) *replayLog {
	return &replayLog{buf: make([]sseEvent, size)}
}

func (l *replayLog) push(e sseEvent) {
	l.mu.Lock()
	l.buf[l.next] = e
	l.next = (l.next + 1) % len(l.buf)
	l.count = min(l.count+1, len(l.buf))
	l.mu.Unlock()
}

// since returns the retained events with ID > id, oldest first.
func (l *replayLog) since(id uint64) []*sseEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []*sseEvent
	oldest := (l.next - l.count + len(l.buf)) % len(l.buf)
	for i := 0; i < l.count; i++ {
		e := l.buf[(oldest+i)%len(l.buf)]
		if e.ID > id {
			out = append(out, &e)
		}
	}
	return out
}

// sseHub fans events out to stream clients. Only replayable events go into
// the replay log; overlay frames are live-only.
type sseHub struct {
	mu      sync.RWMutex
	clients map[*sseClient]struct{}
	seq     atomic.Uint64
	count   atomic.Int64
	log     *replayLog
}

// sseClient is one open stream.
type sseClient struct {
	topics  []string // NATS-style patterns; empty matches everything
	ch      chan *sseEvent
	dropped atomic.Int64
}

func newSSEHub() *sseHub {
	return &sseHub{
		clients: make(map[*sseClient]struct{}),
		log:     newReplayLog(sseRingBufferSize),
	}
}

// broadcast records a replayable event and sends it to matching clients.
func (h *sseHub) broadcast(topic string, payload []byte) {
	e := sseEvent{ID: h.seq.Add(1), Topic: topic, Data: payload}
	h.log.push(e)
	h.fanOut(&e)
}

// broadcastTransient sends an event to matching clients without recording it.
func (h *sseHub) broadcastTransient(topic string, payload []byte) {
	h.fanOut(&sseEvent{ID: h.seq.Add(1), Topic: topic, Data: payload})
}

// fanOut never blocks: a client whose queue is full has the event counted
// as dropped instead.
func (h *sseHub) fanOut(e *sseEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.matchesTopic(e.Topic) {
			continue
		}
		select {
		case c.ch <- e:
		default:
			c.dropped.Add(1)
		}
	}
}

func (h *sseHub) hasClients() bool {
	return h.count.Load() > 0
}

func (h *sseHub) subscribe(topics []string) *sseClient {
	c := &sseClient{topics: topics, ch: make(chan *sseEvent, sseClientBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.count.Add(1)
	return c
}

// unsubscribe is idempotent.
func (h *sseHub) unsubscribe(c *sseClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		h.count.Add(-1)
	}
}

func (h *sseHub) eventsSince(lastID uint64) []*sseEvent {
	return h.log.since(lastID)
}

func (c *sseClient) matchesTopic(topic string) bool {
	if len(c.topics) == 0 {
		return true
	}
	for _, p := range c.topics {
		if events.MatchTopic(p, topic) {
			return true
		}
	}
	return false
}

// sseWriter writes the text/event-stream framing and flushes after each
// write.
type sseWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

func (sw sseWriter) event(e *sseEvent) {
	fmt.Fprintf(sw.w, "id:%d\nevent:%s\ndata:%s\n\n", e.ID, e.Topic, e.Data)
	sw.f.Flush()
}

func (sw sseWriter) comment(text string) {
	fmt.Fprintf(sw.w, ":%s\n\n", text)
	sw.f.Flush()
}

// streamTopics parses the comma-separated ?topics= filter.
func streamTopics(r *http.Request) []string {
	var topics []string
	for _, t := range strings.Split(r.URL.Query().Get("topics"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	return topics
}

// handleEventStream handles GET /v1/events/stream.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	client := s.sseHub.subscribe(streamTopics(r))
	defer s.sseHub.unsubscribe(client)

	s.metrics.StreamClients.Inc()
	defer s.metrics.StreamClients.Dec()
	defer s.presence.StreamOpened(viewerName(r), r.RemoteAddr)()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sw := sseWriter{w: w, f: flusher}
	if lastID, err := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64); err == nil {
		for _, e := range s.sseHub.eventsSince(lastID) {
			if client.matchesTopic(e.Topic) {
				sw.event(e)
			}
		}
	}

	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	var reported int64
	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-client.ch:
			if d := client.dropped.Load(); d > reported {
				sw.comment(fmt.Sprintf("dropped %d", d-reported))
				reported = d
			}
			sw.event(e)
		case <-keepalive.C:
			sw.comment("keepalive")
		}
	}
}
