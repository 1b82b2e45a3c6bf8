package layout

import (
	"sync/atomic"

	"github.com/alfredjeanlab/garden/internal/model"
)

// Frame is an immutable snapshot of every node position at one point of a
// layout generation. Callers must not modify a Frame after publishing it.
type Frame struct {
	Generation uint64      `json:"generation"`
	Step       int         `json:"step"`
	Settled    bool        `json:"settled"`
	Anchor     model.Point `json:"anchor"`
	Placements []Placement `json:"placements"`

	index map[string]int
}

// NewFrame builds a frame, copying placements.
func NewFrame(generation uint64, step int, settled bool, anchor model.Point, placements []Placement) *Frame {
	f := &Frame{
		Generation: generation,
		Step:       step,
		Settled:    settled,
		Anchor:     anchor,
		Placements: append([]Placement(nil), placements...),
		index:      make(map[string]int, len(placements)),
	}
	for i, p := range f.Placements {
		f.index[p.ID] = i
	}
	return f
}

// Len returns the number of placements in the frame.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Placements)
}

// Lookup returns the placement for id.
func (f *Frame) Lookup(id string) (Placement, bool) {
	if f == nil {
		return Placement{}, false
	}
	i, ok := f.index[id]
	if !ok {
		return Placement{}, false
	}
	return f.Placements[i], true
}

// Store owns the authoritative positions. The layout side publishes whole
// frames; readers load the latest one without locking.
type Store struct {
	cur atomic.Pointer[Frame]
}

// NewStore creates a store holding an empty frame at anchor.
func NewStore(anchor model.Point) *Store {
	s := &Store{}
	s.cur.Store(NewFrame(0, 0, true, anchor, nil))
	return s
}

// Publish replaces the current frame.
func (s *Store) Publish(f *Frame) {
	s.cur.Store(f)
}

// Load returns the latest frame. It never returns nil.
func (s *Store) Load() *Frame {
	return s.cur.Load()
}
