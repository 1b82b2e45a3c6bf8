// Package render turns the scene into drawable layers: a structural layer
// with the anchor and edges, and an overlay layer with one visual per node.
package render

import (
	"github.com/alfredjeanlab/garden/internal/layout"
	"github.com/alfredjeanlab/garden/internal/model"
	"github.com/alfredjeanlab/garden/internal/normalize"
	"github.com/alfredjeanlab/garden/internal/overlay"
	"github.com/alfredjeanlab/garden/internal/viewport"
)

// Fixed visual ranges.
const (
	MinNodeSize   = 18.0
	MaxNodeSize   = 44.0
	MinEdgeWidth  = 1.0
	MaxEdgeWidth  = 6.0
	MinEdgeAlpha  = 0.25
	MaxEdgeAlpha  = 0.9
	AnchorRadius  = 28.0
	WiltedDroop   = 35.0
	DormantAlpha  = 0.85
	WiltedOpacity = 0.7
)

// NodeSize maps frequency to a pixel size. A size hint in [0,1] takes its
// place when present.
func NodeSize(frequency float64, sizeHint *float64) float64 {
	t := frequency
	if sizeHint != nil {
		t = *sizeHint
	}
	return normalize.Lerp(MinNodeSize, MaxNodeSize, t)
}

// EdgeWidth maps frequency to an edge stroke width.
func EdgeWidth(frequency float64) float64 {
	return normalize.Lerp(MinEdgeWidth, MaxEdgeWidth, frequency)
}

// EdgeOpacity maps frequency to an edge opacity.
func EdgeOpacity(frequency float64) float64 {
	return normalize.Lerp(MinEdgeAlpha, MaxEdgeAlpha, frequency)
}

// Rotation turns a placement angle into a node rotation so the leaf points
// away from the anchor.
func Rotation(angle float64) float64 {
	return angle + 90
}

// Options are the externally supplied presentation settings.
type Options struct {
	Palette       Palette
	ReducedMotion bool
}

// Renderer builds drawable layers. It only reads the scene.
type Renderer struct {
	opts Options
}

// New creates a renderer. A zero palette selects the garden palette.
func New(opts Options) *Renderer {
	if opts.Palette.Health == nil {
		opts.Palette = DefaultPalette()
	}
	return &Renderer{opts: opts}
}

// Options returns the renderer's presentation settings.
func (r *Renderer) Options() Options {
	return r.opts
}

// AnchorVisual is the anchor as drawn, in layout space.
type AnchorVisual struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Radius float64 `json:"radius"`
	Color  string  `json:"color"`
}

// EdgeVisual is one anchor-to-node edge, in layout space.
type EdgeVisual struct {
	Target    string  `json:"target"`
	X1        float64 `json:"x1"`
	Y1        float64 `json:"y1"`
	X2        float64 `json:"x2"`
	Y2        float64 `json:"y2"`
	Thickness float64 `json:"thickness"`
	Opacity   float64 `json:"opacity"`
	Color     string  `json:"color"`
}

// StructuralLayer holds the anchor and edges. Coordinates are in layout
// space; Transform maps them to the screen.
type StructuralLayer struct {
	Transform  viewport.Transform `json:"transform"`
	Background string             `json:"background"`
	Anchor     AnchorVisual       `json:"anchor"`
	Edges      []EdgeVisual       `json:"edges"`
}

// NodeVisual is one node as drawn, in screen space.
type NodeVisual struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Health    model.Health `json:"health"`
	Variant   Variant      `json:"variant"`
	X         float64      `json:"x"`
	Y         float64      `json:"y"`
	Size      float64      `json:"size"`
	Rotation  float64      `json:"rotation"`
	Color     string       `json:"color"`
	Accent    string       `json:"accent,omitempty"`
	Opacity   float64      `json:"opacity"`
	Animation Animation    `json:"animation"`
}

// OverlayLayer holds the interactive node visuals.
type OverlayLayer struct {
	Seq     uint64       `json:"seq"`
	Scale   float64      `json:"scale"`
	Nodes   []NodeVisual `json:"nodes"`
	Skipped int          `json:"skipped"`
}

// Structural builds the structural layer from the layout frame. Edges are
// drawn for every placed node; unplaced nodes have no edge yet.
func (r *Renderer) Structural(frame *layout.Frame, nodes []*model.Node, tf viewport.Transform) StructuralLayer {
	p := r.opts.Palette
	layer := StructuralLayer{
		Transform:  tf,
		Background: p.Background,
		Edges:      make([]EdgeVisual, 0, len(nodes)),
	}
	if frame == nil {
		return layer
	}
	layer.Anchor = AnchorVisual{X: frame.Anchor.X, Y: frame.Anchor.Y, Radius: AnchorRadius, Color: p.Anchor}
	for _, n := range nodes {
		pl, ok := frame.Lookup(n.ID)
		if !ok || !pl.Placed {
			continue
		}
		layer.Edges = append(layer.Edges, EdgeVisual{
			Target:    n.ID,
			X1:        frame.Anchor.X,
			Y1:        frame.Anchor.Y,
			X2:        pl.X,
			Y2:        pl.Y,
			Thickness: EdgeWidth(n.Frequency),
			Opacity:   EdgeOpacity(n.Frequency),
			Color:     p.Edge,
		})
	}
	return layer
}

// Overlay builds the overlay layer from a synchronized frame. Only nodes the
// synchronizer has a target for are drawn, at the target's position.
func (r *Renderer) Overlay(frame *overlay.Frame, nodes []*model.Node) OverlayLayer {
	layer := OverlayLayer{Scale: 1}
	if frame == nil {
		return layer
	}
	layer.Seq = frame.Seq
	layer.Scale = frame.Transform.Scale
	layer.Skipped = frame.Skipped
	layer.Nodes = make([]NodeVisual, 0, len(frame.Targets))
	for _, n := range nodes {
		t, ok := frame.Lookup(n.ID)
		if !ok {
			continue
		}
		layer.Nodes = append(layer.Nodes, r.Visual(n, t.X, t.Y, frame.Transform.Scale))
	}
	return layer
}

// Visual computes a node's appearance at screen position (x, y).
func (r *Renderer) Visual(n *model.Node, x, y, scale float64) NodeVisual {
	p := r.opts.Palette
	v := NodeVisual{
		ID:        n.ID,
		Name:      n.Name,
		Health:    n.Health,
		Variant:   VariantFor(n.Health),
		X:         x,
		Y:         y,
		Size:      n.Size * scale,
		Rotation:  n.Rotation,
		Color:     p.Color(n.Health),
		Opacity:   1,
		Animation: AnimationFor(n.ID, r.opts.ReducedMotion),
	}
	switch v.Variant {
	case VariantLeaf:
	case VariantLeafIndicator:
		v.Accent = p.Indicator
	case VariantClosedBud:
		v.Opacity = DormantAlpha
	case VariantWiltedLeaf:
		v.Rotation += WiltedDroop
		v.Opacity = WiltedOpacity
	}
	return v
}
