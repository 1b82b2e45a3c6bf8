// Package server exposes a scene over HTTP: JSON and SVG views, viewport
// commands, node activation, an SSE event stream and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alfredjeanlab/garden/internal/events"
	"github.com/alfredjeanlab/garden/internal/model"
	"github.com/alfredjeanlab/garden/internal/overlay"
	"github.com/alfredjeanlab/garden/internal/presence"
	"github.com/alfredjeanlab/garden/internal/scene"
	"github.com/alfredjeanlab/garden/internal/source"
	"github.com/alfredjeanlab/garden/internal/telemetry"
	"github.com/alfredjeanlab/garden/internal/viewport"
)

// DefaultOverlayRate caps overlay frames fanned out to stream clients.
const DefaultOverlayRate = 30

// ErrNoSource is returned by Sync when no snapshot source is configured.
var ErrNoSource = errors.New("no snapshot source configured")

// Options configures a Server. Zero values select defaults.
type Options struct {
	Source    source.Source
	Publisher events.Publisher
	Metrics   *telemetry.Metrics
	Presence  *presence.Tracker
	AuthToken string

	// OverlayRate is the maximum overlay frames per second sent to stream
	// clients. Frames over the limit are dropped; the next one carries the
	// latest positions anyway.
	OverlayRate float64
}

// Server serves one scene.
type Server struct {
	scene     *scene.Scene
	source    source.Source
	publisher events.Publisher
	metrics   *telemetry.Metrics
	presence  *presence.Tracker
	authToken string

	sseHub         *sseHub
	overlayLimiter *rate.Limiter

	// syncMu serializes fetches from the source so concurrent refreshes do
	// not load out of order.
	syncMu sync.Mutex
}

// New creates a server. Call Bind on the scene config before creating the
// scene, then Attach the scene.
func New(opts Options) *Server {
	if opts.Publisher == nil {
		opts.Publisher = &events.NoopPublisher{}
	}
	if opts.Metrics == nil {
		opts.Metrics = telemetry.New()
	}
	if opts.Presence == nil {
		opts.Presence = presence.New()
	}
	if opts.OverlayRate <= 0 {
		opts.OverlayRate = DefaultOverlayRate
	}
	burst := int(opts.OverlayRate)
	if burst < 1 {
		burst = 1
	}
	return &Server{
		source:         opts.Source,
		publisher:      opts.Publisher,
		metrics:        opts.Metrics,
		presence:       opts.Presence,
		authToken:      opts.AuthToken,
		sseHub:         newSSEHub(),
		overlayLimiter: rate.NewLimiter(rate.Limit(opts.OverlayRate), burst),
	}
}

// Bind installs the server's scene callbacks on cfg, chaining any that are
// already set.
func (s *Server) Bind(cfg *scene.Config) {
	prevActivated := cfg.OnNodeActivated
	cfg.OnNodeActivated = func(id string) {
		s.nodeActivated(id)
		if prevActivated != nil {
			prevActivated(id)
		}
	}
	prevOverlay := cfg.OnOverlayFrame
	cfg.OnOverlayFrame = func(f *overlay.Frame) {
		s.overlayFrame(f)
		if prevOverlay != nil {
			prevOverlay(f)
		}
	}
	prevSettled := cfg.OnSettled
	cfg.OnSettled = func(gen uint64, steps int) {
		s.metrics.LayoutSteps.Observe(float64(steps))
		s.publish(context.Background(), events.TopicLayoutSettled, events.LayoutSettled{Generation: gen, Steps: steps})
		if prevSettled != nil {
			prevSettled(gen, steps)
		}
	}
	prevViewport := cfg.OnViewport
	cfg.OnViewport = func(t viewport.Transform) {
		s.metrics.ViewportChanges.Inc()
		s.publish(context.Background(), events.TopicViewportChanged, events.ViewportChanged{Transform: t})
		if prevViewport != nil {
			prevViewport(t)
		}
	}
}

// Attach sets the scene the server operates on.
func (s *Server) Attach(sc *scene.Scene) {
	s.scene = sc
}

// Scene returns the attached scene.
func (s *Server) Scene() *scene.Scene { return s.scene }

// Presence returns the viewer roster.
func (s *Server) Presence() *presence.Tracker { return s.presence }

// LoadSnapshot replaces the scene's node set. origin labels the snapshot in
// events and metrics.
func (s *Server) LoadSnapshot(ctx context.Context, contacts []model.Contact, origin string) (uint64, error) {
	gen, err := s.scene.Load(ctx, contacts)
	if err != nil {
		return 0, err
	}
	s.metrics.SnapshotsLoaded.WithLabelValues(origin).Inc()
	s.metrics.ObserveStats(s.scene.Stats())
	s.publish(ctx, events.TopicSnapshotLoaded, events.SnapshotLoaded{
		Generation: gen,
		Nodes:      len(contacts),
		Source:     origin,
	})
	return gen, nil
}

// Sync fetches a fresh snapshot from the configured source and loads it. On
// failure the current scene stays loaded.
func (s *Server) Sync(ctx context.Context) (uint64, error) {
	if s.source == nil {
		return 0, ErrNoSource
	}
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	start := time.Now()
	contacts, err := s.source.Fetch(ctx)
	if err != nil {
		s.metrics.SourceErrors.WithLabelValues(s.source.Name()).Inc()
		slog.Warn("server: snapshot fetch failed", "source", s.source.Name(), "error", err)
		return 0, err
	}
	gen, err := s.LoadSnapshot(ctx, contacts, s.source.Name())
	if err != nil {
		s.metrics.SourceErrors.WithLabelValues(s.source.Name()).Inc()
		return 0, err
	}
	slog.Info("server: snapshot synced",
		"source", s.source.Name(),
		"generation", gen,
		"nodes", len(contacts),
		"duration", time.Since(start))
	return gen, nil
}

// publish sends an event to the event bus and to stream clients. Both are
// best-effort; failures are logged but do not block the caller.
func (s *Server) publish(ctx context.Context, topic string, event any) {
	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		slog.Warn("server: failed to publish event", "topic", topic, "error", err)
	}
	s.broadcastEvent(topic, event, true)
}

func (s *Server) nodeActivated(id string) {
	s.metrics.Activations.Inc()
	ev := events.NodeActivated{ID: id}
	for _, n := range s.scene.Nodes(model.Filter{}) {
		if n.ID == id {
			ev.Name = n.Name
			ev.Health = n.Health
			break
		}
	}
	s.publish(context.Background(), events.TopicNodeActivated, ev)
}

// overlayFrame runs on the synchronizer goroutine. It must not call into
// the scene.
func (s *Server) overlayFrame(f *overlay.Frame) {
	s.metrics.OverlayFrames.Inc()
	if !s.sseHub.hasClients() || !s.overlayLimiter.Allow() {
		return
	}
	s.broadcastEvent(events.TopicOverlayFrame, f, false)
}

// broadcastEvent fans an event out to SSE clients. Replayable events are
// kept for Last-Event-ID reconnection.
func (s *Server) broadcastEvent(topic string, event any, replayable bool) {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Warn("server: failed to marshal event for SSE broadcast", "topic", topic, "error", err)
		return
	}
	if replayable {
		s.sseHub.broadcast(topic, payload)
	} else {
		s.sseHub.broadcastTransient(topic, payload)
	}
}
