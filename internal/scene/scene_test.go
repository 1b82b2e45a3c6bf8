package scene

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/alfredjeanlab/garden/internal/model"
	"github.com/alfredjeanlab/garden/internal/viewport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newScene(t *testing.T, cfg Config) *Scene {
	t.Helper()
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func abc() []model.Contact {
	return []model.Contact{
		{ID: "A", Name: "Ada", Category: "family", Recency: model.Float(0.1), Frequency: model.Float(0.9)},
		{ID: "B", Name: "Ben", Category: "friends", Recency: model.Float(0.5), Frequency: model.Float(0.5)},
		{ID: "C", Name: "Cy", Category: "work", Recency: model.Float(0.95), Frequency: model.Float(0.05)},
	}
}

func many(prefix string, n int) []model.Contact {
	out := make([]model.Contact, n)
	for i := range out {
		out[i] = model.Contact{
			ID:               fmt.Sprintf("%s%d", prefix, i),
			Name:             fmt.Sprintf("%s %d", prefix, i),
			Category:         []string{"family", "friends", "work", "club"}[i%4],
			DaysSinceContact: model.Float(float64(i * 3 % 100)),
			MessagesPerDay:   model.Float(float64(i%6) * 0.7),
		}
	}
	return out
}

func byID(nodes []*model.Node) map[string]*model.Node {
	m := make(map[string]*model.Node, len(nodes))
	for _, n := range nodes {
		m[n.ID] = n
	}
	return m
}

func distance(p model.Point) float64 {
	return math.Hypot(p.X-Origin.X, p.Y-Origin.Y)
}

func TestLoad_EndToEnd(t *testing.T) {
	s := newScene(t, Config{Relax: RelaxManual})
	if _, err := s.Load(context.Background(), abc()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	s.Settle()

	nodes := byID(s.Nodes(model.Filter{}))
	a, b, c := nodes["A"], nodes["B"], nodes["C"]
	if a.Health != model.HealthHealthy {
		t.Errorf("A: expected healthy, got %s", a.Health)
	}
	if c.Health != model.HealthWilted {
		t.Errorf("C: expected wilted, got %s", c.Health)
	}
	if !(b.Health.Ordinal() > a.Health.Ordinal() && b.Health.Ordinal() < c.Health.Ordinal()) {
		t.Errorf("B: expected health strictly between A and C, got %s", b.Health)
	}

	da, db, dc := distance(a.Position), distance(b.Position), distance(c.Position)
	if !(da < db && db < dc) {
		t.Errorf("expected distance(A) < distance(B) < distance(C), got %v %v %v", da, db, dc)
	}

	edges := make(map[string]*model.Edge)
	for _, e := range s.Response(model.Filter{}).Edges {
		if e.Source != model.AnchorID {
			t.Errorf("expected every edge to start at the anchor, got %s", e.Source)
		}
		edges[e.Target] = e
	}
	if len(edges) != 3 {
		t.Fatalf("expected one edge per node, got %d", len(edges))
	}
	if !(edges["A"].Thickness > edges["C"].Thickness) {
		t.Errorf("expected thickness(A) > thickness(C), got %v and %v", edges["A"].Thickness, edges["C"].Thickness)
	}
}

func TestLoad_EmptySnapshot(t *testing.T) {
	s := newScene(t, Config{Relax: RelaxManual})
	if _, err := s.Load(context.Background(), nil); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n := len(s.Nodes(model.Filter{})); n != 0 {
		t.Errorf("expected no nodes, got %d", n)
	}
	if n := len(s.Response(model.Filter{}).Edges); n != 0 {
		t.Errorf("expected no edges, got %d", n)
	}
	if s.SyncActive() {
		t.Error("expected no active synchronizer task")
	}
	if s.Step() {
		t.Error("expected Step on an empty scene to be a no-op")
	}
	if layer := s.OverlayLayer(); len(layer.Nodes) != 0 {
		t.Errorf("expected empty overlay layer, got %d nodes", len(layer.Nodes))
	}
	var buf bytes.Buffer
	if err := s.WriteSVG(&buf); err != nil {
		t.Fatalf("WriteSVG: %v", err)
	}
}

func TestSyncLifecycle(t *testing.T) {
	s := newScene(t, Config{Relax: RelaxManual})
	ctx := context.Background()

	if s.SyncActive() {
		t.Fatal("expected synchronizer idle before any snapshot")
	}
	if _, err := s.Load(ctx, abc()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !s.SyncActive() {
		t.Fatal("expected synchronizer to start on empty -> non-empty")
	}
	if _, err := s.Load(ctx, many("n", 5)); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !s.SyncActive() {
		t.Fatal("expected synchronizer to keep running across non-empty reloads")
	}
	if _, err := s.Load(ctx, []model.Contact{}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.SyncActive() {
		t.Fatal("expected synchronizer to stop on non-empty -> empty")
	}
	if _, err := s.Load(ctx, abc()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if s.SyncActive() {
		t.Fatal("expected synchronizer to stop on Close")
	}
}

func TestLoad_MidRelaxationReplacesGeneration(t *testing.T) {
	settled := make(chan uint64, 4)
	s := newScene(t, Config{
		Relax:         RelaxBackground,
		FrameInterval: time.Millisecond,
		OnSettled:     func(gen uint64, _ int) { settled <- gen },
	})
	ctx := context.Background()

	if _, err := s.Load(ctx, many("old", 40)); err != nil {
		t.Fatalf("Load: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	gen, err := s.Load(ctx, many("new", 30))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	deadline := time.After(10 * time.Second)
	for {
		select {
		case g := <-settled:
			if g != gen {
				continue
			}
		case <-deadline:
			t.Fatal("timed out waiting for the new generation to settle")
		}
		break
	}

	f := s.Frame()
	if f.Generation != gen {
		t.Fatalf("expected frame generation %d, got %d", gen, f.Generation)
	}
	if f.Len() != 30 {
		t.Fatalf("expected 30 placements, got %d", f.Len())
	}
	for _, p := range f.Placements {
		if !strings.HasPrefix(p.ID, "new") {
			t.Fatalf("found placement %s from the discarded snapshot", p.ID)
		}
	}
	if s.Relaxing() {
		t.Error("expected relaxation to be finished")
	}
}

func TestAnchorInvariant(t *testing.T) {
	s := newScene(t, Config{Relax: RelaxManual})
	if _, err := s.Load(context.Background(), many("n", 25)); err != nil {
		t.Fatalf("Load: %v", err)
	}
	for s.Step() {
		if got := s.Frame().Anchor; got != Origin {
			t.Fatalf("anchor moved to %v", got)
		}
	}
	s.ZoomIn()
	s.Pan(40, -30)
	s.ZoomOut()
	if got := s.Response(model.Filter{}).Anchor.Position; got != Origin {
		t.Fatalf("anchor moved to %v after viewport changes", got)
	}
	s.ResetToFit()
	if p := s.Viewport().Transform().Apply(Origin); p != s.Viewport().Config().Center() {
		t.Errorf("expected anchor centred after reset, got %v", p)
	}
}

func TestOverlayMatchesStructural(t *testing.T) {
	s := newScene(t, Config{Relax: RelaxManual})
	if _, err := s.Load(context.Background(), many("n", 12)); err != nil {
		t.Fatalf("Load: %v", err)
	}
	for i := 0; i < 10; i++ {
		s.Step()
	}
	s.ZoomAt(100, 100, 1.3)

	tf := s.Viewport().Transform()
	ov := s.Overlay()
	for _, p := range s.Frame().Placements {
		target, ok := ov.Lookup(p.ID)
		if !ok {
			t.Fatalf("overlay missing %s", p.ID)
		}
		want := tf.Apply(p.Point())
		if math.Abs(target.X-want.X) > 1e-9 || math.Abs(target.Y-want.Y) > 1e-9 {
			t.Errorf("%s: overlay at (%v, %v), structural at %v", p.ID, target.X, target.Y, want)
		}
	}
}

func TestActivate(t *testing.T) {
	var mu sync.Mutex
	var activated []string
	s := newScene(t, Config{
		Relax: RelaxManual,
		OnNodeActivated: func(id string) {
			mu.Lock()
			activated = append(activated, id)
			mu.Unlock()
		},
	})
	if _, err := s.Load(context.Background(), abc()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	s.Settle()

	if err := s.Activate("B"); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if err := s.Activate("nobody"); !errors.Is(err, ErrUnknownNode) {
		t.Fatalf("expected ErrUnknownNode, got %v", err)
	}

	target, ok := s.Overlay().Lookup("C")
	if !ok {
		t.Fatal("expected overlay target for C")
	}
	id, err := s.ActivateAt(target.X, target.Y)
	if err != nil {
		t.Fatalf("ActivateAt: %v", err)
	}
	if id != "C" {
		t.Errorf("expected C under the pointer, got %s", id)
	}
	if _, err := s.ActivateAt(-5000, -5000); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("expected ErrUnknownNode for empty space, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if strings.Join(activated, ",") != "B,C" {
		t.Errorf("expected activations B,C, got %v", activated)
	}
}

func TestLoad_InvalidSnapshotKeepsScene(t *testing.T) {
	s := newScene(t, Config{Relax: RelaxManual})
	gen, err := s.Load(context.Background(), abc())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	_, err = s.Load(context.Background(), []model.Contact{{ID: "x"}, {ID: "x"}})
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *model.ValidationError, got %v", err)
	}
	if s.Generation() != gen {
		t.Errorf("expected generation to stay %d, got %d", gen, s.Generation())
	}
	if n := len(s.Nodes(model.Filter{})); n != 3 {
		t.Errorf("expected previous 3 nodes to remain, got %d", n)
	}
}

func TestLoad_CancelledContext(t *testing.T) {
	s := newScene(t, Config{Relax: RelaxManual})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Load(ctx, abc()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestResponse_FilterKeepsFullStats(t *testing.T) {
	s := newScene(t, Config{Relax: RelaxManual})
	if _, err := s.Load(context.Background(), abc()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	resp := s.Response(model.Filter{Health: []model.Health{model.HealthHealthy}})
	if len(resp.Nodes) != 1 || resp.Nodes[0].ID != "A" {
		t.Fatalf("expected only A, got %d nodes", len(resp.Nodes))
	}
	if len(resp.Edges) != 1 || resp.Edges[0].Target != "A" {
		t.Fatalf("expected only A's edge, got %d edges", len(resp.Edges))
	}
	if resp.Stats.Total != 3 {
		t.Errorf("expected stats over all 3 nodes, got %d", resp.Stats.Total)
	}
	if !resp.Nodes[0].Placed {
		t.Error("expected node to carry its placed position")
	}
}

func TestViewportCallback(t *testing.T) {
	var calls int
	s := newScene(t, Config{Relax: RelaxManual, OnViewport: func(viewport.Transform) { calls++ }})
	for i := 0; i < 50; i++ {
		s.ZoomIn()
	}
	if got := s.Viewport().Transform().Scale; got != 2 {
		t.Fatalf("expected scale 2, got %v", got)
	}
	// 1.2^4 > 2, so only four commands change the transform.
	if calls != 4 {
		t.Errorf("expected 4 viewport notifications, got %d", calls)
	}
}

func TestViewportCallback_ConcurrentCommands(t *testing.T) {
	var calls atomic.Int32
	s := newScene(t, Config{Relax: RelaxManual, OnViewport: func(viewport.Transform) { calls.Add(1) }})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				s.ZoomIn()
			}
		}()
	}
	wg.Wait()
	if got := calls.Load(); got != 4 {
		t.Errorf("expected exactly 4 notifications for 4 effective zooms, got %d", got)
	}
}

func TestClose(t *testing.T) {
	s, err := New(Config{FrameInterval: time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.Load(context.Background(), many("n", 50)); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := s.Load(context.Background(), abc()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := s.Activate("n1"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestWriteSVG(t *testing.T) {
	s := newScene(t, Config{Relax: RelaxManual})
	if _, err := s.Load(context.Background(), abc()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	s.Settle()
	var buf bytes.Buffer
	if err := s.WriteSVG(&buf); err != nil {
		t.Fatalf("WriteSVG: %v", err)
	}
	out := buf.String()
	if got := strings.Count(out, `<g class="node `); got != 3 {
		t.Errorf("expected 3 node groups, got %d", got)
	}
	for _, v := range []string{"leaf", "wilted-leaf"} {
		if !strings.Contains(out, `class="node `+v+`"`) {
			t.Errorf("expected a %s node", v)
		}
	}
}
