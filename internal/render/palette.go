package render

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/alfredjeanlab/garden/internal/model"
)

// Built-in palette names.
const (
	PaletteGarden     = "garden"
	PaletteColorblind = "colorblind"
	PaletteMonochrome = "monochrome"
)

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// Palette maps health states and scene elements to colours. A palette is
// presentation only; swapping it never changes classification or layout.
type Palette struct {
	Name       string                  `json:"name"`
	Health     map[model.Health]string `json:"health"`
	Anchor     string                  `json:"anchor"`
	Edge       string                  `json:"edge"`
	Indicator  string                  `json:"indicator"`
	Background string                  `json:"background"`
}

var palettes = map[string]Palette{
	PaletteGarden: {
		Name: PaletteGarden,
		Health: map[model.Health]string{
			model.HealthHealthy:   "#4caf50",
			model.HealthAttention: "#cddc39",
			model.HealthDormant:   "#8d6e63",
			model.HealthWilted:    "#a1887f",
		},
		Anchor:     "#795548",
		Edge:       "#6d8b3a",
		Indicator:  "#ff9800",
		Background: "#f5f1e8",
	},
	// Okabe-Ito colours, distinguishable under the common colour vision
	// deficiencies.
	PaletteColorblind: {
		Name: PaletteColorblind,
		Health: map[model.Health]string{
			model.HealthHealthy:   "#0072b2",
			model.HealthAttention: "#e69f00",
			model.HealthDormant:   "#cc79a7",
			model.HealthWilted:    "#d55e00",
		},
		Anchor:     "#000000",
		Edge:       "#56b4e9",
		Indicator:  "#f0e442",
		Background: "#ffffff",
	},
	PaletteMonochrome: {
		Name: PaletteMonochrome,
		Health: map[model.Health]string{
			model.HealthHealthy:   "#222222",
			model.HealthAttention: "#555555",
			model.HealthDormant:   "#888888",
			model.HealthWilted:    "#bbbbbb",
		},
		Anchor:     "#000000",
		Edge:       "#777777",
		Indicator:  "#000000",
		Background: "#ffffff",
	},
}

// PaletteNames lists the built-in palettes in sorted order.
func PaletteNames() []string {
	names := make([]string, 0, len(palettes))
	for n := range palettes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// LookupPalette returns a copy of a built-in palette. The empty name selects
// the garden palette.
func LookupPalette(name string) (Palette, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = PaletteGarden
	}
	p, ok := palettes[key]
	if !ok {
		return Palette{}, fmt.Errorf("unknown palette %q (want one of %s)", name, strings.Join(PaletteNames(), ", "))
	}
	return p.clone(), nil
}

// DefaultPalette returns the garden palette.
func DefaultPalette() Palette {
	return palettes[PaletteGarden].clone()
}

// Override returns a copy of p with the given colours replaced. Keys are
// health states or one of anchor, edge, indicator and background.
func (p Palette) Override(colors map[string]string) (Palette, error) {
	out := p.clone()
	ve := &model.ValidationError{}
	keys := make([]string, 0, len(colors))
	for k := range colors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		c := strings.TrimSpace(colors[k])
		if !hexColor.MatchString(c) {
			ve.Add("colors."+k, fmt.Sprintf("invalid colour %q", colors[k]))
			continue
		}
		switch key := strings.ToLower(k); key {
		case "anchor":
			out.Anchor = c
		case "edge":
			out.Edge = c
		case "indicator":
			out.Indicator = c
		case "background":
			out.Background = c
		default:
			h, err := model.ParseHealth(key)
			if err != nil {
				ve.Add("colors."+k, "unknown colour key")
				continue
			}
			out.Health[h] = c
		}
	}
	if ve.HasErrors() {
		return Palette{}, ve
	}
	return out, nil
}

// Color returns the colour for a health state.
func (p Palette) Color(h model.Health) string {
	if c, ok := p.Health[h]; ok {
		return c
	}
	return p.Health[model.HealthWilted]
}

func (p Palette) clone() Palette {
	out := p
	out.Health = make(map[model.Health]string, len(p.Health))
	for k, v := range p.Health {
		out.Health[k] = v
	}
	return out
}
