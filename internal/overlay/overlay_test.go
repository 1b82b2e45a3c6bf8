package overlay

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/alfredjeanlab/garden/internal/layout"
	"github.com/alfredjeanlab/garden/internal/model"
	"github.com/alfredjeanlab/garden/internal/viewport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var anchor = model.Point{X: 0, Y: 0}

func fixture(t *testing.T, placements []layout.Placement) (*layout.Store, *viewport.Tracker, *Synchronizer) {
	t.Helper()
	store := layout.NewStore(anchor)
	store.Publish(layout.NewFrame(1, 0, false, anchor, placements))
	vp, err := viewport.New(viewport.DefaultConfig(), anchor)
	if err != nil {
		t.Fatalf("viewport.New: %v", err)
	}
	return store, vp, New(store, vp, Options{Interval: MinInterval})
}

func placed(id string, x, y float64) layout.Placement {
	return layout.Placement{ID: id, X: x, Y: y, Placed: true}
}

func TestSyncOnce_MatchesStructuralPositions(t *testing.T) {
	ps := []layout.Placement{placed("a", 10, 20), placed("b", -100, 40), placed("c", 200, -150)}
	store, vp, s := fixture(t, ps)
	vp.ZoomIn()
	vp.Pan(13, -7)

	f := s.SyncOnce()
	tf := vp.Transform()
	if len(f.Targets) != len(ps) {
		t.Fatalf("expected %d targets, got %d", len(ps), len(f.Targets))
	}
	for _, p := range store.Load().Placements {
		target, ok := f.Lookup(p.ID)
		if !ok {
			t.Fatalf("target %s missing", p.ID)
		}
		want := tf.Apply(p.Point())
		if math.Abs(target.X-want.X) > 1e-9 || math.Abs(target.Y-want.Y) > 1e-9 {
			t.Errorf("%s: expected screen position %v, got (%v, %v)", p.ID, want, target.X, target.Y)
		}
		if target.Layout != p.Point() {
			t.Errorf("%s: expected layout position %v, got %v", p.ID, p.Point(), target.Layout)
		}
	}
	if f.Generation != 1 {
		t.Errorf("expected generation 1, got %d", f.Generation)
	}
}

func TestSyncOnce_SkipsUnplacedNodes(t *testing.T) {
	ps := []layout.Placement{
		placed("a", 1, 1),
		{ID: "pending"},
		placed("nan", math.NaN(), 4),
		placed("b", 2, 2),
	}
	_, _, s := fixture(t, ps)
	f := s.SyncOnce()
	if len(f.Targets) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(f.Targets))
	}
	if f.Skipped != 2 {
		t.Errorf("expected 2 skipped, got %d", f.Skipped)
	}
	if _, ok := f.Lookup("pending"); ok {
		t.Error("expected unplaced node to be skipped")
	}
}

func TestSyncOnce_EmptyFrame(t *testing.T) {
	_, _, s := fixture(t, nil)
	f := s.SyncOnce()
	if len(f.Targets) != 0 || f.Skipped != 0 {
		t.Fatalf("expected empty frame, got %+v", f)
	}
	if _, ok := f.HitTest(480, 360); ok {
		t.Error("expected no hit on an empty frame")
	}
}

func TestHitTest_Topmost(t *testing.T) {
	ps := []layout.Placement{placed("below", 0, 0), placed("above", 5, 0)}
	_, vp, s := fixture(t, ps)
	s.SyncOnce()
	c := vp.Config().Center()

	got, ok := s.HitTest(c.X+2, c.Y)
	if !ok || got.ID != "above" {
		t.Errorf("expected topmost target 'above', got %+v (hit=%v)", got, ok)
	}
	if _, ok := s.HitTest(c.X+500, c.Y+500); ok {
		t.Error("expected miss far from every target")
	}
}

func TestHitTest_RadiusScalesWithZoom(t *testing.T) {
	store := layout.NewStore(anchor)
	store.Publish(layout.NewFrame(1, 0, true, anchor, []layout.Placement{placed("a", 0, 0)}))
	vp, _ := viewport.New(viewport.DefaultConfig(), anchor)
	s := New(store, vp, Options{Radius: func(string) float64 { return 10 }})

	vp.ZoomAt(480, 360, 2)
	f := s.SyncOnce()
	if got := f.Targets[0].Radius; got != 20 {
		t.Fatalf("expected radius 20 at scale 2, got %v", got)
	}
}

func TestClampInterval(t *testing.T) {
	for _, tc := range []struct {
		in, want time.Duration
	}{
		{0, DefaultInterval},
		{time.Millisecond, MinInterval},
		{time.Minute, MaxInterval},
		{50 * time.Millisecond, 50 * time.Millisecond},
	} {
		if got := ClampInterval(tc.in); got != tc.want {
			t.Errorf("ClampInterval(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestSubscribe_SingleSubscriber(t *testing.T) {
	_, _, s := fixture(t, []layout.Placement{placed("a", 0, 0)})
	sub, err := s.Subscribe(nil)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Cancel()

	if _, err := s.Subscribe(nil); !errors.Is(err, ErrAlreadySubscribed) {
		t.Fatalf("expected ErrAlreadySubscribed, got %v", err)
	}
	if !s.Active() {
		t.Error("expected synchronizer to be active")
	}
}

func TestSubscribe_DeliversChanges(t *testing.T) {
	store, vp, s := fixture(t, []layout.Placement{placed("a", 0, 0)})

	var mu sync.Mutex
	var frames []*Frame
	got := make(chan struct{}, 16)
	sub, err := s.Subscribe(func(f *Frame) {
		mu.Lock()
		frames = append(frames, f)
		mu.Unlock()
		select {
		case got <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Cancel()

	wait := func() {
		t.Helper()
		select {
		case <-got:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for a frame")
		}
	}
	wait()

	store.Publish(layout.NewFrame(1, 1, false, anchor, []layout.Placement{placed("a", 30, 40)}))
	wait()
	vp.Pan(10, 0)
	wait()

	sub.Cancel()
	mu.Lock()
	defer mu.Unlock()
	last := frames[len(frames)-1]
	target, ok := last.Lookup("a")
	if !ok {
		t.Fatal("expected target a in last frame")
	}
	want := vp.Transform().Apply(model.Point{X: 30, Y: 40})
	if math.Abs(target.X-want.X) > 1e-9 || math.Abs(target.Y-want.Y) > 1e-9 {
		t.Errorf("expected last frame to reflect pan and step: want %v, got (%v, %v)", want, target.X, target.Y)
	}
}

func TestCancel_IdempotentAndStops(t *testing.T) {
	_, _, s := fixture(t, []layout.Placement{placed("a", 0, 0)})
	sub, err := s.Subscribe(nil)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	sub.Cancel()
	sub.Cancel()

	select {
	case <-sub.Done():
	default:
		t.Fatal("expected loop to have exited after Cancel")
	}
	if s.Active() {
		t.Error("expected synchronizer inactive after Cancel")
	}

	// A fresh subscription is allowed once the old one is gone.
	sub2, err := s.Subscribe(nil)
	if err != nil {
		t.Fatalf("expected resubscribe to succeed, got %v", err)
	}
	sub2.Cancel()
}

func TestCancel_Concurrent(t *testing.T) {
	_, _, s := fixture(t, []layout.Placement{placed("a", 0, 0)})
	sub, err := s.Subscribe(nil)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub.Cancel()
		}()
	}
	wg.Wait()
	if s.Active() {
		t.Error("expected synchronizer inactive")
	}
}

// steppingView advances on every read, so a frame built from two separate
// reads would pair a transform with the wrong version.
type steppingView struct {
	mu sync.Mutex
	v  uint64
}

func (sv *steppingView) Snapshot() (viewport.Transform, uint64) {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	sv.v++
	return viewport.Transform{Scale: float64(sv.v)}, sv.v
}

func TestSyncOnce_TransformMatchesVersion(t *testing.T) {
	store := layout.NewStore(anchor)
	store.Publish(layout.NewFrame(1, 0, false, anchor, []layout.Placement{placed("a", 1, 1)}))
	s := New(store, &steppingView{}, Options{Interval: MinInterval})
	for i := 0; i < 5; i++ {
		f := s.SyncOnce()
		if f.Transform.Scale != float64(f.ViewportVersion) {
			t.Fatalf("frame %d: transform scale %v does not belong to version %d", i, f.Transform.Scale, f.ViewportVersion)
		}
	}
}
