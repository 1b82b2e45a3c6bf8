// Package scene owns the single relationship node set and coordinates the
// layout, viewport, overlay and render components around it.
//
// All scene state is guarded by one mutex. Layout positions are published
// as immutable frames, so the overlay synchronizer and readers of the frame
// never take that mutex.
package scene

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alfredjeanlab/garden/internal/health"
	"github.com/alfredjeanlab/garden/internal/layout"
	"github.com/alfredjeanlab/garden/internal/model"
	"github.com/alfredjeanlab/garden/internal/normalize"
	"github.com/alfredjeanlab/garden/internal/overlay"
	"github.com/alfredjeanlab/garden/internal/render"
	"github.com/alfredjeanlab/garden/internal/viewport"
)

// DefaultFrameInterval is the relaxation cadence in RelaxBackground mode.
const DefaultFrameInterval = 16 * time.Millisecond

var (
	// ErrUnknownNode is returned when activating an id that is not in the scene.
	ErrUnknownNode = errors.New("scene: unknown node")
	// ErrClosed is returned by operations on a closed scene.
	ErrClosed = errors.New("scene: closed")
)

// RelaxMode selects who drives relaxation.
type RelaxMode int

const (
	// RelaxBackground steps relaxation on a goroutine once per frame interval.
	RelaxBackground RelaxMode = iota
	// RelaxManual leaves stepping to the caller via Step or Settle.
	RelaxManual
)

// Config configures a Scene. Zero values select defaults.
type Config struct {
	Normalizer *normalize.Normalizer
	Classifier *health.Classifier
	Layout     *layout.Config
	Viewport   *viewport.Config
	Render     render.Options

	Relax         RelaxMode
	FrameInterval time.Duration
	SyncInterval  time.Duration

	// OnNodeActivated is called, outside the scene lock, when a node is
	// selected.
	OnNodeActivated func(id string)

	// OnOverlayFrame receives every changed overlay frame. It runs on the
	// synchronizer goroutine and must not call back into the Scene.
	OnOverlayFrame func(*overlay.Frame)

	// OnLoaded is called after a snapshot has been published.
	OnLoaded func(generation uint64, nodes int)

	// OnSettled is called when relaxation of a generation terminates.
	OnSettled func(generation uint64, steps int)

	// OnViewport is called after every viewport command that changed the
	// transform.
	OnViewport func(viewport.Transform)
}

// Scene is the live relationship map.
type Scene struct {
	cfg      Config
	layout   layout.Config
	store    *layout.Store
	view     *viewport.Tracker
	syncer   *overlay.Synchronizer
	renderer *render.Renderer

	// radii is read by the synchronizer goroutine without the scene lock.
	radii atomic.Pointer[map[string]float64]

	base       context.Context
	cancelBase context.CancelFunc
	wg         sync.WaitGroup

	mu          sync.Mutex
	closed      bool
	gen         uint64
	nodes       []*model.Node
	index       map[string]int
	sim         *layout.Simulation
	cancelRelax context.CancelFunc
	sub         *overlay.Subscription
}

// Origin is the layout-space position of the anchor.
var Origin = model.Point{}

// New creates an empty scene.
func New(cfg Config) (*Scene, error) {
	if cfg.Normalizer == nil {
		cfg.Normalizer = normalize.New()
	}
	if cfg.Classifier == nil {
		cfg.Classifier = health.Default()
	}
	lc := layout.DefaultConfig()
	if cfg.Layout != nil {
		lc = *cfg.Layout
	}
	if err := lc.Validate(); err != nil {
		return nil, fmt.Errorf("layout config: %w", err)
	}
	vc := viewport.DefaultConfig()
	if cfg.Viewport != nil {
		vc = *cfg.Viewport
	}
	view, err := viewport.New(vc, Origin)
	if err != nil {
		return nil, err
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = DefaultFrameInterval
	}

	s := &Scene{
		cfg:      cfg,
		layout:   lc,
		store:    layout.NewStore(Origin),
		view:     view,
		renderer: render.New(cfg.Render),
		index:    make(map[string]int),
	}
	empty := map[string]float64{}
	s.radii.Store(&empty)
	s.syncer = overlay.New(s.store, view, overlay.Options{
		Interval: cfg.SyncInterval,
		Radius:   s.radius,
	})
	s.base, s.cancelBase = context.WithCancel(context.Background())
	return s, nil
}

// Load replaces the node set with a new snapshot and restarts layout. Any
// relaxation still running for the previous snapshot is discarded. It
// returns the new generation.
func (s *Scene) Load(ctx context.Context, contacts []model.Contact) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := model.ValidateSnapshot(contacts); err != nil {
		return 0, err
	}

	metrics := s.cfg.Normalizer.NormalizeAll(contacts)
	nodes := make([]*model.Node, len(contacts))
	items := make([]layout.Item, len(contacts))
	radii := make(map[string]float64, len(contacts))
	for i, c := range contacts {
		m := metrics[i]
		n := &model.Node{
			ID:        c.ID,
			Name:      c.Name,
			Category:  c.Category,
			Recency:   m.Recency,
			Frequency: m.Frequency,
			Health:    s.cfg.Classifier.Classify(m.Recency, m.Frequency),
			Size:      render.NodeSize(m.Frequency, m.SizeHint),
		}
		nodes[i] = n
		items[i] = layout.Item{ID: n.ID, Category: n.Category, Recency: n.Recency}
		radii[n.ID] = n.Size / 2
	}
	placements := layout.Place(s.layout, Origin, items)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrClosed
	}
	if s.cancelRelax != nil {
		s.cancelRelax()
		s.cancelRelax = nil
	}
	wasEmpty := len(s.nodes) == 0

	s.gen++
	gen := s.gen
	s.nodes = nodes
	s.index = make(map[string]int, len(nodes))
	for i, n := range nodes {
		s.index[n.ID] = i
	}
	s.sim = nil
	if len(nodes) > 0 {
		s.sim = layout.NewSimulation(s.layout, Origin, items, placements)
	}
	s.radii.Store(&radii)
	s.store.Publish(layout.NewFrame(gen, 0, len(nodes) == 0, Origin, placements))

	switch {
	case wasEmpty && len(nodes) > 0:
		s.startSyncLocked()
	case !wasEmpty && len(nodes) == 0:
		s.stopSyncLocked()
	}

	if s.sim != nil && s.cfg.Relax == RelaxBackground {
		rctx, cancel := context.WithCancel(s.base)
		s.cancelRelax = cancel
		s.wg.Add(1)
		go s.relax(rctx, gen)
	}
	s.mu.Unlock()

	slog.Info("scene: snapshot loaded", "generation", gen, "nodes", len(nodes))
	if s.cfg.OnLoaded != nil {
		s.cfg.OnLoaded(gen, len(nodes))
	}
	return gen, nil
}

// Step advances relaxation by one tick and reports whether more steps are
// needed. It is intended for RelaxManual mode.
func (s *Scene) Step() bool {
	s.mu.Lock()
	gen, more, steps, settled := s.stepLocked()
	s.mu.Unlock()
	if settled {
		s.settled(gen, steps)
	}
	return more
}

// Settle runs relaxation to completion and returns the total number of
// steps taken for the current generation.
func (s *Scene) Settle() int {
	for s.Step() {
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sim == nil {
		return 0
	}
	return s.sim.Steps()
}

func (s *Scene) stepLocked() (gen uint64, more bool, steps int, settled bool) {
	if s.sim == nil || s.sim.Done() {
		return s.gen, false, 0, false
	}
	more = s.sim.Step()
	s.store.Publish(layout.NewFrame(s.gen, s.sim.Steps(), !more, Origin, s.sim.Placements()))
	return s.gen, more, s.sim.Steps(), !more
}

func (s *Scene) relax(ctx context.Context, gen uint64) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			return
		}
		_, more, steps, settled := s.stepLocked()
		s.mu.Unlock()

		if settled {
			s.settled(gen, steps)
		}
		if !more {
			return
		}
	}
}

func (s *Scene) settled(gen uint64, steps int) {
	slog.Debug("scene: layout settled", "generation", gen, "steps", steps)
	if s.cfg.OnSettled != nil {
		s.cfg.OnSettled(gen, steps)
	}
}

func (s *Scene) startSyncLocked() {
	if s.sub != nil {
		return
	}
	sub, err := s.syncer.Subscribe(s.cfg.OnOverlayFrame)
	if err != nil {
		slog.Warn("scene: overlay subscribe failed", "error", err)
		return
	}
	s.sub = sub
}

func (s *Scene) stopSyncLocked() {
	if s.sub == nil {
		return
	}
	s.sub.Cancel()
	s.sub = nil
}

func (s *Scene) radius(id string) float64 {
	return (*s.radii.Load())[id]
}

// Close stops every repeating task owned by the scene. It is idempotent.
func (s *Scene) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cancelBase()
	s.cancelRelax = nil
	s.stopSyncLocked()
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// Generation returns the current snapshot generation.
func (s *Scene) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// SyncActive reports whether the overlay synchronizer is running.
func (s *Scene) SyncActive() bool {
	return s.syncer.Active()
}

// Relaxing reports whether the current generation is still relaxing.
func (s *Scene) Relaxing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sim != nil && !s.sim.Done()
}

// Frame returns the latest published layout frame.
func (s *Scene) Frame() *layout.Frame {
	return s.store.Load()
}

// Viewport returns the viewport tracker.
func (s *Scene) Viewport() *viewport.Tracker {
	return s.view
}

// Renderer returns the scene's renderer.
func (s *Scene) Renderer() *render.Renderer {
	return s.renderer
}

// Nodes returns copies of the nodes matching filter, in snapshot order,
// with positions taken from the latest layout frame.
func (s *Scene) Nodes(filter model.Filter) []*model.Node {
	s.mu.Lock()
	nodes := s.nodes
	s.mu.Unlock()

	frame := s.store.Load()
	out := make([]*model.Node, 0, len(nodes))
	for _, n := range nodes {
		if !filter.IsZero() && !filter.Match(n) {
			continue
		}
		out = append(out, positioned(n, frame))
	}
	return out
}

// edges returns one anchor edge per node.
func (s *Scene) edges(nodes []*model.Node) []*model.Edge {
	out := make([]*model.Edge, len(nodes))
	for i, n := range nodes {
		out[i] = &model.Edge{
			Source:     model.AnchorID,
			Target:     n.ID,
			Thickness:  render.EdgeWidth(n.Frequency),
			Opacity:    render.EdgeOpacity(n.Frequency),
			RestLength: s.layout.RestLength(n.Recency),
		}
	}
	return out
}

// Stats returns counts over the whole node set.
func (s *Scene) Stats() *model.Stats {
	s.mu.Lock()
	nodes := s.nodes
	s.mu.Unlock()
	return model.ComputeStats(nodes)
}

// Response builds the structural view of the scene. Stats always cover the
// whole node set; filter narrows nodes and edges only.
func (s *Scene) Response(filter model.Filter) *model.SceneResponse {
	s.mu.Lock()
	gen, all := s.gen, s.nodes
	s.mu.Unlock()

	frame := s.store.Load()
	resp := &model.SceneResponse{
		Generation: gen,
		Anchor:     model.Anchor{ID: model.AnchorID, Position: frame.Anchor},
		Nodes:      make([]*model.Node, 0, len(all)),
		Stats:      model.ComputeStats(all),
	}
	var kept []*model.Node
	for _, n := range all {
		if !filter.IsZero() && !filter.Match(n) {
			continue
		}
		kept = append(kept, n)
		resp.Nodes = append(resp.Nodes, positioned(n, frame))
	}
	resp.Edges = s.edges(kept)
	return resp
}

func positioned(n *model.Node, frame *layout.Frame) *model.Node {
	c := *n
	if p, ok := frame.Lookup(n.ID); ok && p.Placed {
		c.Position = p.Point()
		c.Placed = true
		c.Rotation = render.Rotation(p.Angle)
	}
	return &c
}

// Overlay returns the latest synchronized overlay frame, running a pass if
// none exists yet or the latest one is behind the layout or viewport.
func (s *Scene) Overlay() *overlay.Frame {
	f := s.syncer.Latest()
	src := s.store.Load()
	if f == nil || f.Generation != src.Generation || f.Step != src.Step || f.ViewportVersion != s.view.Version() {
		f = s.syncer.SyncOnce()
	}
	return f
}

// Structural builds the structural render layer.
func (s *Scene) Structural() render.StructuralLayer {
	return s.renderer.Structural(s.store.Load(), s.Nodes(model.Filter{}), s.view.Transform())
}

// OverlayLayer builds the overlay render layer from the latest synchronized
// frame.
func (s *Scene) OverlayLayer() render.OverlayLayer {
	return s.renderer.Overlay(s.Overlay(), s.Nodes(model.Filter{}))
}

// WriteSVG writes the composed map.
func (s *Scene) WriteSVG(w io.Writer) error {
	vc := s.view.Config()
	nodes := s.Nodes(model.Filter{})
	structural := s.renderer.Structural(s.store.Load(), nodes, s.view.Transform())
	ov := s.renderer.Overlay(s.syncer.SyncOnce(), nodes)
	return render.WriteSVG(w, structural, ov, vc.Width, vc.Height)
}
