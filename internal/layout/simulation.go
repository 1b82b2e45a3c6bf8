package layout

import (
	"math"
	"sort"

	"github.com/alfredjeanlab/garden/internal/model"
)

// goldenAngle separates coincident nodes along distinct, reproducible
// directions.
const goldenAngle = math.Pi * (3 - 2.23606797749979)

const minDistSq = 1e-6

// Simulation relaxes a placed node set. The anchor is fixed and is not a
// body: it neither moves nor takes part in repulsion.
//
// A Simulation is not safe for concurrent use.
type Simulation struct {
	cfg    Config
	anchor model.Point

	ids     []string
	recency []float64
	rest    []float64
	x, y    []float64
	vx, vy  []float64

	// Scratch buffers reused across steps.
	fx, fy []float64
	order  []int
	dist   []float64

	alpha float64
	steps int
	done  bool
}

// NewSimulation starts a relaxation from the given placements. items and
// initial must be parallel slices, as produced by Place.
func NewSimulation(cfg Config, anchor model.Point, items []Item, initial []Placement) *Simulation {
	n := len(items)
	s := &Simulation{
		cfg:     cfg,
		anchor:  anchor,
		ids:     make([]string, n),
		recency: make([]float64, n),
		rest:    make([]float64, n),
		x:       make([]float64, n),
		y:       make([]float64, n),
		vx:      make([]float64, n),
		vy:      make([]float64, n),
		fx:      make([]float64, n),
		fy:      make([]float64, n),
		order:   make([]int, n),
		dist:    make([]float64, n),
		alpha:   1,
		done:    n == 0,
	}
	for i, it := range items {
		s.ids[i] = it.ID
		r := it.Recency
		if math.IsNaN(r) {
			r = 1
		}
		s.recency[i] = r
		s.rest[i] = cfg.RestLength(r)
		if i < len(initial) && initial[i].Placed {
			s.x[i], s.y[i] = initial[i].X, initial[i].Y
		} else {
			p := at(anchor, it.ID, goldenAngle*float64(i)*180/math.Pi, s.rest[i])
			s.x[i], s.y[i] = p.X, p.Y
		}
	}
	return s
}

// Done reports whether relaxation has terminated.
func (s *Simulation) Done() bool { return s.done }

// Steps returns the number of steps taken so far.
func (s *Simulation) Steps() int { return s.steps }

// Len returns the number of bodies.
func (s *Simulation) Len() int { return len(s.ids) }

// Step advances the simulation by one tick and reports whether another
// step is needed. It is a no-op once the simulation is done.
func (s *Simulation) Step() bool {
	if s.done {
		return false
	}
	n := len(s.ids)
	cfg := s.cfg

	for i := 0; i < n; i++ {
		s.fx[i], s.fy[i] = 0, 0
	}

	// Pairwise repulsion, inverse-square and capped.
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dx := s.x[i] - s.x[j]
			dy := s.y[i] - s.y[j]
			d2 := dx*dx + dy*dy
			if d2 < minDistSq {
				theta := goldenAngle * float64(i*n+j)
				dx, dy, d2 = math.Cos(theta), math.Sin(theta), 1
			}
			d := math.Sqrt(d2)
			f := math.Min(cfg.Repulsion/d2, cfg.RepulsionCap)
			ux, uy := dx/d, dy/d
			s.fx[i] += f * ux
			s.fy[i] += f * uy
			s.fx[j] -= f * ux
			s.fy[j] -= f * uy
		}
	}

	for i := 0; i < n; i++ {
		dx := s.x[i] - s.anchor.X
		dy := s.y[i] - s.anchor.Y

		// Weak uniform pull toward the anchor.
		s.fx[i] -= cfg.Gravity * dx
		s.fy[i] -= cfg.Gravity * dy

		// Edge spring toward the recency rest length.
		d := math.Hypot(dx, dy)
		ux, uy := s.radial(i, dx, dy, d)
		stretch := s.rest[i] - d
		s.fx[i] += cfg.Spring * stretch * ux
		s.fy[i] += cfg.Spring * stretch * uy
	}

	prevX := append([]float64(nil), s.x...)
	prevY := append([]float64(nil), s.y...)

	for i := 0; i < n; i++ {
		s.vx[i] = (s.vx[i] + s.fx[i]*s.alpha) * cfg.Damping
		s.vy[i] = (s.vy[i] + s.fy[i]*s.alpha) * cfg.Damping
		s.x[i] += s.vx[i]
		s.y[i] += s.vy[i]
	}

	s.enforceOrdering()

	maxSpeed := 0.0
	for i := 0; i < n; i++ {
		if v := math.Hypot(s.x[i]-prevX[i], s.y[i]-prevY[i]); v > maxSpeed {
			maxSpeed = v
		}
	}

	s.alpha *= cfg.AlphaDecay
	s.steps++
	if s.steps >= cfg.MaxIterations || maxSpeed < cfg.VelocityThreshold {
		s.done = true
	}
	return !s.done
}

// Run steps until done and returns the number of steps taken.
func (s *Simulation) Run() int {
	for s.Step() {
	}
	return s.steps
}

// Placements returns a copy of the current positions.
func (s *Simulation) Placements() []Placement {
	out := make([]Placement, len(s.ids))
	for i, id := range s.ids {
		dx := s.x[i] - s.anchor.X
		dy := s.y[i] - s.anchor.Y
		out[i] = Placement{
			ID:       id,
			X:        s.x[i],
			Y:        s.y[i],
			Angle:    math.Atan2(dy, dx) * 180 / math.Pi,
			Distance: math.Hypot(dx, dy),
			Placed:   true,
		}
	}
	return out
}

// radial returns the unit vector from the anchor toward node i. A node
// sitting on the anchor gets a fixed per-index direction.
func (s *Simulation) radial(i int, dx, dy, d float64) (float64, float64) {
	if d*d < minDistSq {
		theta := goldenAngle * float64(i+1)
		return math.Cos(theta), math.Sin(theta)
	}
	return dx / d, dy / d
}

// enforceOrdering projects anchor distances onto the closest sequence that
// is non-decreasing in recency (pool adjacent violators) and moves each
// node radially onto its projected distance. Nodes of strictly greater
// recency are kept at least OrderGap further out.
func (s *Simulation) enforceOrdering() {
	n := len(s.ids)
	if n < 2 {
		return
	}
	for i := 0; i < n; i++ {
		s.order[i] = i
		s.dist[i] = math.Hypot(s.x[i]-s.anchor.X, s.y[i]-s.anchor.Y)
	}
	// Equal recency is unconstrained, so ties are ordered by their current
	// distance and never violate each other.
	sort.SliceStable(s.order, func(a, b int) bool {
		i, j := s.order[a], s.order[b]
		if s.recency[i] != s.recency[j] {
			return s.recency[i] < s.recency[j]
		}
		return s.dist[i] < s.dist[j]
	})

	// Shift by rank so the gap constraint becomes plain monotonicity.
	shift := make([]float64, n)
	vals := make([]float64, n)
	rank := 0
	for k, idx := range s.order {
		if k > 0 && s.recency[idx] != s.recency[s.order[k-1]] {
			rank++
		}
		shift[k] = float64(rank) * s.cfg.OrderGap
		vals[k] = s.dist[idx] - shift[k]
	}

	fitted := isotonic(vals)

	for k, idx := range s.order {
		target := fitted[k] + shift[k]
		if target < 0 {
			target = 0
		}
		d := s.dist[idx]
		if math.Abs(target-d) < 1e-12 {
			continue
		}
		dx, dy := s.x[idx]-s.anchor.X, s.y[idx]-s.anchor.Y
		ux, uy := s.radial(idx, dx, dy, d)
		s.x[idx] = s.anchor.X + ux*target
		s.y[idx] = s.anchor.Y + uy*target
	}
}

// isotonic returns the least-squares non-decreasing fit of v with unit
// weights.
func isotonic(v []float64) []float64 {
	type block struct {
		sum   float64
		count int
	}
	blocks := make([]block, 0, len(v))
	for _, x := range v {
		blocks = append(blocks, block{sum: x, count: 1})
		for len(blocks) > 1 {
			last := blocks[len(blocks)-1]
			prev := blocks[len(blocks)-2]
			if prev.sum/float64(prev.count) <= last.sum/float64(last.count) {
				break
			}
			blocks = blocks[:len(blocks)-2]
			blocks = append(blocks, block{sum: prev.sum + last.sum, count: prev.count + last.count})
		}
	}
	out := make([]float64, 0, len(v))
	for _, b := range blocks {
		mean := b.sum / float64(b.count)
		for i := 0; i < b.count; i++ {
			out = append(out, mean)
		}
	}
	return out
}
