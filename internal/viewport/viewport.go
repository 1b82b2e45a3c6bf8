// Package viewport tracks the pan/zoom transform shared by every rendering
// layer.
package viewport

import (
	"fmt"
	"math"
	"sync"

	"github.com/alfredjeanlab/garden/internal/model"
)

// Defaults for the logical viewport.
const (
	DefaultWidth      = 960.0
	DefaultHeight     = 720.0
	DefaultZoomFactor = 1.2
	DefaultMinZoom    = 0.5
	DefaultMaxZoom    = 2.0
)

// Transform maps layout space to screen space:
//
//	screen = layout*Scale + (X, Y)
type Transform struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Scale float64 `json:"scale"`
}

// Identity is the transform that leaves coordinates unchanged.
var Identity = Transform{Scale: 1}

// Apply maps a layout point to screen space.
func (t Transform) Apply(p model.Point) model.Point {
	return model.Point{X: p.X*t.Scale + t.X, Y: p.Y*t.Scale + t.Y}
}

// Invert maps a screen point back to layout space.
func (t Transform) Invert(p model.Point) model.Point {
	return model.Point{X: (p.X - t.X) / t.Scale, Y: (p.Y - t.Y) / t.Scale}
}

// Config holds the viewport parameters.
type Config struct {
	Width      float64 `toml:"width" json:"width"`
	Height     float64 `toml:"height" json:"height"`
	ZoomFactor float64 `toml:"zoom_factor" json:"zoom_factor"`
	MinZoom    float64 `toml:"min_zoom" json:"min_zoom"`
	MaxZoom    float64 `toml:"max_zoom" json:"max_zoom"`
}

// DefaultConfig returns the built-in viewport parameters.
func DefaultConfig() Config {
	return Config{
		Width:      DefaultWidth,
		Height:     DefaultHeight,
		ZoomFactor: DefaultZoomFactor,
		MinZoom:    DefaultMinZoom,
		MaxZoom:    DefaultMaxZoom,
	}
}

// Validate checks the config. The zoom range must contain 1 so that
// ResetToFit always lands inside it.
func (c Config) Validate() error {
	ve := &model.ValidationError{}
	if !positive(c.Width) {
		ve.Add("width", fmt.Sprintf("must be a positive number, got %g", c.Width))
	}
	if !positive(c.Height) {
		ve.Add("height", fmt.Sprintf("must be a positive number, got %g", c.Height))
	}
	if !positive(c.ZoomFactor) || c.ZoomFactor <= 1 {
		ve.Add("zoom_factor", fmt.Sprintf("must be greater than 1, got %g", c.ZoomFactor))
	}
	if !positive(c.MinZoom) || c.MinZoom > 1 {
		ve.Add("min_zoom", fmt.Sprintf("must be in (0,1], got %g", c.MinZoom))
	}
	if !positive(c.MaxZoom) || c.MaxZoom < 1 {
		ve.Add("max_zoom", fmt.Sprintf("must be at least 1, got %g", c.MaxZoom))
	}
	if ve.HasErrors() {
		return ve
	}
	return nil
}

// Center returns the logical centre of the viewport.
func (c Config) Center() model.Point {
	return model.Point{X: c.Width / 2, Y: c.Height / 2}
}

// Tracker owns the transform. All methods are safe for concurrent use.
// Commands with out-of-range or non-finite arguments are clamped or
// ignored; they never fail. Each command returns the resulting transform
// and whether that command changed it.
type Tracker struct {
	mu      sync.RWMutex
	cfg     Config
	anchor  model.Point
	t       Transform
	version uint64
}

// New creates a tracker fitted to anchor.
func New(cfg Config, anchor model.Point) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("viewport config: %w", err)
	}
	tr := &Tracker{cfg: cfg, anchor: anchor}
	tr.t = tr.fitted()
	return tr, nil
}

// Transform returns the current transform.
func (tr *Tracker) Transform() Transform {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return tr.t
}

// Version increases on every change to the transform.
func (tr *Tracker) Version() uint64 {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return tr.version
}

// Snapshot returns the transform and the version it belongs to.
func (tr *Tracker) Snapshot() (Transform, uint64) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return tr.t, tr.version
}

// Config returns the tracker's current config.
func (tr *Tracker) Config() Config {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return tr.cfg
}

// ZoomIn multiplies the scale by the zoom factor about the viewport centre.
func (tr *Tracker) ZoomIn() (Transform, bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	v := tr.version
	c := tr.cfg.Center()
	tr.zoomAt(c.X, c.Y, tr.cfg.ZoomFactor)
	return tr.t, tr.version != v
}

// ZoomOut divides the scale by the zoom factor about the viewport centre.
func (tr *Tracker) ZoomOut() (Transform, bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	v := tr.version
	c := tr.cfg.Center()
	tr.zoomAt(c.X, c.Y, 1/tr.cfg.ZoomFactor)
	return tr.t, tr.version != v
}

// ZoomAt scales by factor keeping the screen point (px, py) fixed.
func (tr *Tracker) ZoomAt(px, py, factor float64) (Transform, bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	v := tr.version
	if finite(px) && finite(py) && positive(factor) {
		tr.zoomAt(px, py, factor)
	}
	return tr.t, tr.version != v
}

// Pan translates by (dx, dy) screen units.
func (tr *Tracker) Pan(dx, dy float64) (Transform, bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	v := tr.version
	if finite(dx) && finite(dy) && (dx != 0 || dy != 0) {
		tr.set(Transform{X: tr.t.X + dx, Y: tr.t.Y + dy, Scale: tr.t.Scale})
	}
	return tr.t, tr.version != v
}

// ResetToFit centres the anchor at scale exactly 1. It is idempotent.
func (tr *Tracker) ResetToFit() (Transform, bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	v := tr.version
	tr.set(tr.fitted())
	return tr.t, tr.version != v
}

// SetAnchor records the anchor position used by ResetToFit. It does not
// change the current transform.
func (tr *Tracker) SetAnchor(p model.Point) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.anchor = p
}

// Resize changes the logical viewport size, keeping the layout point at the
// old centre at the new centre.
func (tr *Tracker) Resize(width, height float64) (Transform, bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if !positive(width) || !positive(height) {
		return tr.t, false
	}
	v := tr.version
	oldCenter := tr.t.Invert(tr.cfg.Center())
	tr.cfg.Width, tr.cfg.Height = width, height
	c := tr.cfg.Center()
	tr.set(Transform{
		X:     c.X - oldCenter.X*tr.t.Scale,
		Y:     c.Y - oldCenter.Y*tr.t.Scale,
		Scale: tr.t.Scale,
	})
	return tr.t, tr.version != v
}

func (tr *Tracker) zoomAt(px, py, factor float64) {
	scale := tr.clamp(tr.t.Scale * factor)
	if scale == tr.t.Scale {
		return
	}
	// Keep the layout point under (px, py) fixed.
	lx := (px - tr.t.X) / tr.t.Scale
	ly := (py - tr.t.Y) / tr.t.Scale
	tr.set(Transform{X: px - lx*scale, Y: py - ly*scale, Scale: scale})
}

func (tr *Tracker) fitted() Transform {
	c := tr.cfg.Center()
	return Transform{X: c.X - tr.anchor.X, Y: c.Y - tr.anchor.Y, Scale: 1}
}

func (tr *Tracker) set(t Transform) {
	if t == tr.t {
		return
	}
	tr.t = t
	tr.version++
}

func (tr *Tracker) clamp(s float64) float64 {
	return math.Max(tr.cfg.MinZoom, math.Min(tr.cfg.MaxZoom, s))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func positive(v float64) bool {
	return finite(v) && v > 0
}
