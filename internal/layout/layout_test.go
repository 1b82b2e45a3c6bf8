package layout

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/alfredjeanlab/garden/internal/model"
)

var origin = model.Point{X: 480, Y: 360}

func mixedItems(n int) []Item {
	cats := []string{"family", "friends", "work", "school", "", "Family"}
	items := make([]Item, n)
	for i := range items {
		items[i] = Item{
			ID:       fmt.Sprintf("c%03d", i),
			Category: cats[i%len(cats)],
			Recency:  float64((i*37)%101) / 100,
		}
	}
	return items
}

func dist(p Placement, anchor model.Point) float64 {
	return math.Hypot(p.X-anchor.X, p.Y-anchor.Y)
}

func TestPlace_Deterministic(t *testing.T) {
	items := mixedItems(40)
	a := Place(DefaultConfig(), origin, items)
	b := Place(DefaultConfig(), origin, items)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("placement not deterministic (-first +second):\n%s", diff)
	}
}

func TestPlace_Empty(t *testing.T) {
	if got := Place(DefaultConfig(), origin, nil); len(got) != 0 {
		t.Fatalf("expected no placements, got %d", len(got))
	}
}

func TestPlace_RecencyOrdersDistance(t *testing.T) {
	items := []Item{
		{ID: "a", Category: "friends", Recency: 0.2},
		{ID: "b", Category: "friends", Recency: 0.6},
	}
	got := Place(DefaultConfig(), origin, items)
	if !(got[0].Distance <= got[1].Distance) {
		t.Fatalf("expected distance(a) <= distance(b), got %v > %v", got[0].Distance, got[1].Distance)
	}
	if math.Abs(dist(got[0], origin)-80-0.2*240) > 1e-9 {
		t.Errorf("expected radius lerp(80, 320, 0.2), got %v", dist(got[0], origin))
	}
}

func TestPlace_CategoryDoesNotAffectRadius(t *testing.T) {
	cfg := DefaultConfig()
	for _, cat := range []string{"family", "friends", "work", "neighbours", ""} {
		p := Place(cfg, origin, []Item{{ID: "x", Category: cat, Recency: 0.3}})
		if math.Abs(p[0].Distance-cfg.RestLength(0.3)) > 1e-9 {
			t.Errorf("category %q: expected distance %v, got %v", cat, cfg.RestLength(0.3), p[0].Distance)
		}
	}
}

func TestPlace_SingleMemberOnBaseDirection(t *testing.T) {
	for cat, want := range map[string]float64{
		"family":  FamilyAngle,
		"friends": FriendsAngle,
		"work":    WorkAngle,
		"club":    OtherAngle,
	} {
		p := Place(DefaultConfig(), origin, []Item{{ID: "x", Category: cat, Recency: 0.5}})
		if math.Abs(p[0].Angle-want) > 1e-9 {
			t.Errorf("category %q: expected angle %v, got %v", cat, want, p[0].Angle)
		}
	}
}

func TestPlace_LargeCategoryGetsDistinctAngles(t *testing.T) {
	cfg := DefaultConfig()
	items := make([]Item, 12)
	for i := range items {
		items[i] = Item{ID: fmt.Sprintf("f%d", i), Category: "family", Recency: 0.5}
	}
	got := Place(cfg, origin, items)

	seen := make(map[float64]string)
	for _, p := range got {
		key := math.Round(p.Angle*1e6) / 1e6
		if other, dup := seen[key]; dup {
			t.Fatalf("nodes %s and %s share angle %v", other, p.ID, p.Angle)
		}
		seen[key] = p.ID
		if math.Abs(normalizeAngle(p.Angle-FamilyAngle)) > cfg.FanSpread/2 {
			t.Errorf("node %s: angle %v outside the family fan", p.ID, p.Angle)
		}
	}
}

func TestPlace_FanIsSymmetric(t *testing.T) {
	items := []Item{
		{ID: "a", Category: "work", Recency: 0.5},
		{ID: "b", Category: "work", Recency: 0.5},
		{ID: "c", Category: "work", Recency: 0.5},
	}
	got := Place(DefaultConfig(), origin, items)
	if math.Abs(got[1].Angle-WorkAngle) > 1e-9 {
		t.Errorf("expected middle member on the base direction, got %v", got[1].Angle)
	}
	left := normalizeAngle(got[0].Angle - WorkAngle)
	right := normalizeAngle(got[2].Angle - WorkAngle)
	if math.Abs(left+right) > 1e-9 || left >= 0 {
		t.Errorf("expected outer members symmetric about %v, got offsets %v and %v", WorkAngle, left, right)
	}
}

func TestPlace_Even(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Grouping = GroupEven
	items := mixedItems(8)
	got := Place(cfg, origin, items)
	for i := 1; i < len(got); i++ {
		delta := normalizeAngle(got[i].Angle - got[i-1].Angle)
		if math.Abs(delta-45) > 1e-9 {
			t.Errorf("node %d: expected 45 degree spacing, got %v", i, delta)
		}
	}
}

func assertOrdered(t *testing.T, cfg Config, s *Simulation) {
	t.Helper()
	ps := s.Placements()
	idx := make([]int, len(ps))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return s.recency[idx[a]] < s.recency[idx[b]] })
	for k := 1; k < len(idx); k++ {
		lo, hi := idx[k-1], idx[k]
		if s.recency[lo] == s.recency[hi] {
			continue
		}
		if ps[hi].Distance < ps[lo].Distance+cfg.OrderGap-1e-9 {
			t.Fatalf("step %d: %s (recency %v) at %v is not outside %s (recency %v) at %v",
				s.Steps(), ps[hi].ID, s.recency[hi], ps[hi].Distance, ps[lo].ID, s.recency[lo], ps[lo].Distance)
		}
	}
}

func TestSimulation_OrderingHoldsEveryStep(t *testing.T) {
	cfg := DefaultConfig()
	items := mixedItems(60)
	s := NewSimulation(cfg, origin, items, Place(cfg, origin, items))
	for s.Step() {
		assertOrdered(t, cfg, s)
	}
	assertOrdered(t, cfg, s)
}

func TestSimulation_TerminatesFor200Nodes(t *testing.T) {
	cfg := DefaultConfig()
	items := mixedItems(200)
	s := NewSimulation(cfg, origin, items, Place(cfg, origin, items))
	steps := s.Run()
	if steps > cfg.MaxIterations {
		t.Fatalf("expected at most %d steps, got %d", cfg.MaxIterations, steps)
	}
	if !s.Done() {
		t.Fatal("expected simulation to be done")
	}
	if s.Step() {
		t.Fatal("expected Step after done to report false")
	}
	for _, p := range s.Placements() {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			t.Fatalf("node %s has non-finite position (%v, %v)", p.ID, p.X, p.Y)
		}
	}
}

func TestSimulation_Converges(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxIterations = 5000
	items := mixedItems(20)
	s := NewSimulation(cfg, origin, items, Place(cfg, origin, items))
	if steps := s.Run(); steps >= cfg.MaxIterations {
		t.Fatalf("expected velocity to fall under the threshold before %d steps", cfg.MaxIterations)
	}
}

func TestSimulation_AnchorNeverMoves(t *testing.T) {
	cfg := DefaultConfig()
	items := mixedItems(30)
	store := NewStore(origin)
	s := NewSimulation(cfg, origin, items, Place(cfg, origin, items))
	for s.Step() {
		store.Publish(NewFrame(1, s.Steps(), false, s.anchor, s.Placements()))
		if got := store.Load().Anchor; got != origin {
			t.Fatalf("step %d: anchor moved to %v", s.Steps(), got)
		}
	}
	if s.anchor != origin {
		t.Fatalf("anchor moved to %v", s.anchor)
	}
}

func TestSimulation_SeparatesCoincidentNodes(t *testing.T) {
	cfg := DefaultConfig()
	items := []Item{{ID: "a", Recency: 0.5}, {ID: "b", Recency: 0.5}}
	same := Placement{X: origin.X + 200, Y: origin.Y, Placed: true}
	s := NewSimulation(cfg, origin, items, []Placement{same, same})
	s.Step()
	ps := s.Placements()
	if ps[0].X == ps[1].X && ps[0].Y == ps[1].Y {
		t.Fatal("expected coincident nodes to separate")
	}
	for _, p := range ps {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) {
			t.Fatalf("node %s has NaN position", p.ID)
		}
	}
}

func TestSimulation_Empty(t *testing.T) {
	s := NewSimulation(DefaultConfig(), origin, nil, nil)
	if s.Step() {
		t.Fatal("expected empty simulation to be done immediately")
	}
	if got := s.Run(); got != 0 {
		t.Fatalf("expected 0 steps, got %d", got)
	}
}

func TestIsotonic(t *testing.T) {
	for _, tc := range []struct {
		in, want []float64
	}{
		{[]float64{1, 2, 3}, []float64{1, 2, 3}},
		{[]float64{3, 1}, []float64{2, 2}},
		{[]float64{1, 5, 3, 4}, []float64{1, 4, 4, 4}},
		{[]float64{4, 3, 2, 1}, []float64{2.5, 2.5, 2.5, 2.5}},
		{nil, []float64{}},
	} {
		got := isotonic(tc.in)
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Errorf("isotonic(%v) (-want +got):\n%s", tc.in, diff)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("expected default config to be valid, got %v", err)
	}

	cfg := DefaultConfig()
	cfg.MinDistance = 400
	cfg.Damping = 1
	cfg.Grouping = "spiral"
	err := cfg.Validate()
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *model.ValidationError, got %v", err)
	}
	fields := make(map[string]bool)
	for _, fe := range ve.Errors {
		fields[fe.Field] = true
	}
	for _, want := range []string{"max_distance", "damping", "grouping"} {
		if !fields[want] {
			t.Errorf("expected error on %s, got %v", want, ve.Errors)
		}
	}
}

func TestParseGrouping(t *testing.T) {
	if g, err := ParseGrouping(" Even "); err != nil || g != GroupEven {
		t.Errorf("expected even, got %q (%v)", g, err)
	}
	if _, err := ParseGrouping("spiral"); err == nil {
		t.Error("expected error for unknown grouping")
	}
}

func TestStore(t *testing.T) {
	s := NewStore(origin)
	if f := s.Load(); f == nil || f.Len() != 0 || f.Generation != 0 {
		t.Fatalf("expected empty initial frame, got %+v", f)
	}

	ps := []Placement{{ID: "a", X: 1, Y: 2, Placed: true}}
	s.Publish(NewFrame(3, 7, false, origin, ps))
	ps[0].X = 99 // the frame must not alias the caller's slice

	f := s.Load()
	if f.Generation != 3 || f.Step != 7 {
		t.Errorf("expected generation 3 step 7, got %d/%d", f.Generation, f.Step)
	}
	p, ok := f.Lookup("a")
	if !ok || p.X != 1 {
		t.Errorf("expected placement a at x=1, got %+v (found=%v)", p, ok)
	}
	if _, ok := f.Lookup("missing"); ok {
		t.Error("expected missing id not to be found")
	}
}
