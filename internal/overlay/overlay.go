// Package overlay keeps the interactive hit-target layer aligned with the
// structural layer.
//
// The Synchronizer re-reads the latest layout frame and viewport transform
// on a fixed cadence and republishes them as screen-space hit targets. It
// never touches the layout's mutable state: it only loads immutable frames,
// so it needs no lock shared with the layout side.
package overlay

import (
	"errors"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alfredjeanlab/garden/internal/idgen"
	"github.com/alfredjeanlab/garden/internal/layout"
	"github.com/alfredjeanlab/garden/internal/model"
	"github.com/alfredjeanlab/garden/internal/viewport"
)

// Interval bounds.
const (
	DefaultInterval = 16 * time.Millisecond
	MinInterval     = 4 * time.Millisecond
	MaxInterval     = time.Second

	// DefaultRadius is the hit radius, in layout units, for nodes without a
	// radius function.
	DefaultRadius = 22.0
)

// ErrAlreadySubscribed is returned by Subscribe while another subscription
// is active.
var ErrAlreadySubscribed = errors.New("overlay: already subscribed")

// Positions supplies the authoritative layout frame.
type Positions interface {
	Load() *layout.Frame
}

// Viewport supplies the current transform together with its version.
type Viewport interface {
	Snapshot() (viewport.Transform, uint64)
}

// Target is one interactive node in screen space.
type Target struct {
	ID     string      `json:"id"`
	X      float64     `json:"x"`
	Y      float64     `json:"y"`
	Radius float64     `json:"radius"`
	Layout model.Point `json:"layout"`
}

// Frame is one synchronization pass. Frames are immutable once published.
type Frame struct {
	Seq             uint64             `json:"seq"`
	Generation      uint64             `json:"generation"`
	Step            int                `json:"step"`
	ViewportVersion uint64             `json:"viewport_version"`
	Transform       viewport.Transform `json:"transform"`
	Anchor          model.Point        `json:"anchor"`
	Targets         []Target           `json:"targets"`
	Skipped         int                `json:"skipped"`
	At              time.Time          `json:"at"`

	source *layout.Frame
}

// Lookup returns the target for id.
func (f *Frame) Lookup(id string) (Target, bool) {
	if f == nil {
		return Target{}, false
	}
	for _, t := range f.Targets {
		if t.ID == id {
			return t, true
		}
	}
	return Target{}, false
}

// HitTest returns the topmost target containing the screen point. Targets
// later in the frame are drawn above earlier ones.
func (f *Frame) HitTest(x, y float64) (Target, bool) {
	if f == nil {
		return Target{}, false
	}
	for i := len(f.Targets) - 1; i >= 0; i-- {
		t := f.Targets[i]
		if math.Hypot(x-t.X, y-t.Y) <= t.Radius {
			return t, true
		}
	}
	return Target{}, false
}

// Options configures a Synchronizer.
type Options struct {
	// Interval between passes. Zero means DefaultInterval; other values are
	// clamped to [MinInterval, MaxInterval].
	Interval time.Duration

	// Radius returns the hit radius for a node in layout units. Nil means
	// DefaultRadius for every node.
	Radius func(id string) float64
}

// Synchronizer republishes layout positions as overlay frames.
type Synchronizer struct {
	positions Positions
	view      Viewport
	interval  time.Duration
	radius    func(id string) float64

	seq    atomic.Uint64
	latest atomic.Pointer[Frame]

	mu  sync.Mutex
	sub *Subscription
}

// New creates a synchronizer. No work runs until Subscribe is called.
func New(positions Positions, view Viewport, opts Options) *Synchronizer {
	return &Synchronizer{
		positions: positions,
		view:      view,
		interval:  ClampInterval(opts.Interval),
		radius:    opts.Radius,
	}
}

// ClampInterval applies the default and bounds to d.
func ClampInterval(d time.Duration) time.Duration {
	switch {
	case d == 0:
		return DefaultInterval
	case d < MinInterval:
		return MinInterval
	case d > MaxInterval:
		return MaxInterval
	}
	return d
}

// Interval returns the effective cadence.
func (s *Synchronizer) Interval() time.Duration {
	return s.interval
}

// SyncOnce performs exactly one pass and returns the published frame.
// Nodes without a valid position are skipped for this pass.
func (s *Synchronizer) SyncOnce() *Frame {
	src := s.positions.Load()
	tf, version := s.view.Snapshot()
	f := &Frame{
		Seq:             s.seq.Add(1),
		ViewportVersion: version,
		Transform:       tf,
		At:              time.Now(),
		source:          src,
	}
	if src != nil {
		f.Generation = src.Generation
		f.Step = src.Step
		f.Anchor = tf.Apply(src.Anchor)
		f.Targets = make([]Target, 0, len(src.Placements))
		for _, p := range src.Placements {
			if !p.Placed || !finite(p.X) || !finite(p.Y) {
				f.Skipped++
				continue
			}
			lp := p.Point()
			sp := tf.Apply(lp)
			f.Targets = append(f.Targets, Target{
				ID:     p.ID,
				X:      sp.X,
				Y:      sp.Y,
				Radius: s.radiusFor(p.ID) * tf.Scale,
				Layout: lp,
			})
		}
	}
	s.latest.Store(f)
	return f
}

// Latest returns the most recent frame, or nil before the first pass.
func (s *Synchronizer) Latest() *Frame {
	return s.latest.Load()
}

// HitTest resolves a screen point against the latest frame.
func (s *Synchronizer) HitTest(x, y float64) (Target, bool) {
	return s.Latest().HitTest(x, y)
}

// Active reports whether a subscription is running.
func (s *Synchronizer) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sub != nil
}

// Subscribe starts the repeating pass and delivers each frame that differs
// from the previous one to fn. Only one subscription may be active at a
// time. fn runs on the synchronizer's goroutine and must not block for long.
func (s *Synchronizer) Subscribe(fn func(*Frame)) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil {
		return nil, ErrAlreadySubscribed
	}
	sub := &Subscription{
		ID:   idgen.MustSubscription(),
		s:    s,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	s.sub = sub
	go sub.loop(fn)
	slog.Debug("overlay: subscription started", "id", sub.ID, "interval", s.interval)
	return sub, nil
}

func (s *Synchronizer) radiusFor(id string) float64 {
	if s.radius == nil {
		return DefaultRadius
	}
	r := s.radius(id)
	if !finite(r) || r <= 0 {
		return DefaultRadius
	}
	return r
}

// Subscription is the handle for a running synchronizer loop.
type Subscription struct {
	ID string

	s    *Synchronizer
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// Cancel stops the loop and waits for it to exit. It is safe to call more
// than once and from multiple goroutines, but not from inside the
// subscriber callback.
func (sub *Subscription) Cancel() {
	sub.once.Do(func() {
		close(sub.stop)
		<-sub.done

		sub.s.mu.Lock()
		if sub.s.sub == sub {
			sub.s.sub = nil
		}
		sub.s.mu.Unlock()
		slog.Debug("overlay: subscription cancelled", "id", sub.ID)
	})
}

// Done is closed once the loop has exited.
func (sub *Subscription) Done() <-chan struct{} {
	return sub.done
}

func (sub *Subscription) loop(fn func(*Frame)) {
	defer close(sub.done)

	ticker := time.NewTicker(sub.s.interval)
	defer ticker.Stop()

	var last *Frame
	deliver := func() {
		f := sub.s.SyncOnce()
		if last != nil && last.source == f.source && last.ViewportVersion == f.ViewportVersion {
			return
		}
		last = f
		if fn != nil {
			fn(f)
		}
	}

	deliver()
	for {
		select {
		case <-sub.stop:
			return
		case <-ticker.C:
			deliver()
		}
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
