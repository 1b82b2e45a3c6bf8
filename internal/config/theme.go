package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/alfredjeanlab/garden/internal/health"
	"github.com/alfredjeanlab/garden/internal/layout"
	"github.com/alfredjeanlab/garden/internal/normalize"
	"github.com/alfredjeanlab/garden/internal/render"
	"github.com/alfredjeanlab/garden/internal/scene"
	"github.com/alfredjeanlab/garden/internal/viewport"
)

// Theme is an optional TOML file that overrides presentation and layout
// parameters. Unset fields keep their defaults.
//
//	[palette]
//	name = "colorblind"
//	[palette.colors]
//	healthy = "#2e7d32"
//
//	[motion]
//	reduced = true
//
//	[layout]
//	grouping = "even"
//	max_distance = 360
type Theme struct {
	Palette  PaletteTheme  `toml:"palette"`
	Motion   MotionTheme   `toml:"motion"`
	Layout   LayoutTheme   `toml:"layout"`
	Viewport ViewportTheme `toml:"viewport"`
	Health   HealthTheme   `toml:"health"`
}

type PaletteTheme struct {
	Name   string            `toml:"name"`
	Colors map[string]string `toml:"colors"`
}

type MotionTheme struct {
	Reduced *bool `toml:"reduced"`
}

type LayoutTheme struct {
	Grouping          string   `toml:"grouping"`
	MinDistance       *float64 `toml:"min_distance"`
	MaxDistance       *float64 `toml:"max_distance"`
	FanSpread         *float64 `toml:"fan_spread"`
	MaxIterations     *int     `toml:"max_iterations"`
	VelocityThreshold *float64 `toml:"velocity_threshold"`
}

type ViewportTheme struct {
	Width      *float64 `toml:"width"`
	Height     *float64 `toml:"height"`
	ZoomFactor *float64 `toml:"zoom_factor"`
	MinZoom    *float64 `toml:"min_zoom"`
	MaxZoom    *float64 `toml:"max_zoom"`
}

type HealthTheme struct {
	RecencyWeight *float64 `toml:"recency_weight"`
	Healthy       *float64 `toml:"healthy"`
	Attention     *float64 `toml:"attention"`
	Dormant       *float64 `toml:"dormant"`
}

// LoadTheme decodes a theme file. Unknown keys are rejected so that typos
// do not silently fall back to defaults.
func LoadTheme(path string) (*Theme, error) {
	var t Theme
	md, err := toml.DecodeFile(path, &t)
	if err != nil {
		return nil, fmt.Errorf("theme %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("theme %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return &t, nil
}

// ApplyLayout overlays the theme onto c.
func (t *Theme) ApplyLayout(c *layout.Config) error {
	l := t.Layout
	if l.Grouping != "" {
		g, err := layout.ParseGrouping(l.Grouping)
		if err != nil {
			return err
		}
		c.Grouping = g
	}
	setFloat(&c.MinDistance, l.MinDistance)
	setFloat(&c.MaxDistance, l.MaxDistance)
	setFloat(&c.FanSpread, l.FanSpread)
	setFloat(&c.VelocityThreshold, l.VelocityThreshold)
	if l.MaxIterations != nil {
		c.MaxIterations = *l.MaxIterations
	}
	return nil
}

// ApplyViewport overlays the theme onto c.
func (t *Theme) ApplyViewport(c *viewport.Config) {
	v := t.Viewport
	setFloat(&c.Width, v.Width)
	setFloat(&c.Height, v.Height)
	setFloat(&c.ZoomFactor, v.ZoomFactor)
	setFloat(&c.MinZoom, v.MinZoom)
	setFloat(&c.MaxZoom, v.MaxZoom)
}

// ApplyHealth overlays the theme onto p.
func (t *Theme) ApplyHealth(p *health.Policy) {
	h := t.Health
	setFloat(&p.RecencyWeight, h.RecencyWeight)
	setFloat(&p.Healthy, h.Healthy)
	setFloat(&p.Attention, h.Attention)
	setFloat(&p.Dormant, h.Dormant)
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

// RenderOptions resolves the palette and motion settings. The theme's
// palette name wins over paletteName; colour overrides apply on top.
func RenderOptions(paletteName string, reducedMotion bool, t *Theme) (render.Options, error) {
	name := paletteName
	if t != nil && t.Palette.Name != "" {
		name = t.Palette.Name
	}
	p, err := render.LookupPalette(name)
	if err != nil {
		return render.Options{}, err
	}
	if t != nil && len(t.Palette.Colors) > 0 {
		if p, err = p.Override(t.Palette.Colors); err != nil {
			return render.Options{}, fmt.Errorf("palette colors: %w", err)
		}
	}
	if t != nil && t.Motion.Reduced != nil {
		reducedMotion = *t.Motion.Reduced
	}
	return render.Options{Palette: p, ReducedMotion: reducedMotion}, nil
}

// SceneConfig builds a scene configuration from the environment settings
// and an optional theme.
func (c *Config) SceneConfig(t *Theme) (scene.Config, error) {
	lc := layout.DefaultConfig()
	vc := viewport.DefaultConfig()
	policy := health.DefaultPolicy()
	if t != nil {
		if err := t.ApplyLayout(&lc); err != nil {
			return scene.Config{}, err
		}
		t.ApplyViewport(&vc)
		t.ApplyHealth(&policy)
	}
	classifier, err := health.New(policy)
	if err != nil {
		return scene.Config{}, err
	}
	ro, err := RenderOptions(c.Palette, c.ReducedMotion, t)
	if err != nil {
		return scene.Config{}, err
	}
	return scene.Config{
		Normalizer: &normalize.Normalizer{
			RecencyHorizonDays: c.RecencyHorizonDays,
			FrequencyCeiling:   c.FrequencyCeiling,
			Epsilon:            normalize.DefaultEpsilon,
		},
		Classifier:    classifier,
		Layout:        &lc,
		Viewport:      &vc,
		Render:        ro,
		FrameInterval: c.FrameInterval,
		SyncInterval:  c.SyncInterval,
	}, nil
}
