// Package layout places relationship nodes around the anchor and relaxes
// them into a readable, overlap-free arrangement.
package layout

import (
	"fmt"
	"math"
	"strings"

	"github.com/alfredjeanlab/garden/internal/model"
)

// Grouping selects how nodes are distributed angularly at placement.
type Grouping string

const (
	// GroupByCategory fans each category around its base direction.
	GroupByCategory Grouping = "category"
	// GroupEven spreads all nodes evenly around the anchor.
	GroupEven Grouping = "even"
)

// Base directions, in degrees. Zero points right and angles grow clockwise
// in screen space, so -90 is straight up.
const (
	FamilyAngle  = -90.0
	FriendsAngle = 30.0
	WorkAngle    = 150.0
	OtherAngle   = 90.0
)

// Config holds the placement and relaxation parameters.
type Config struct {
	MinDistance float64  `toml:"min_distance"`
	MaxDistance float64  `toml:"max_distance"`
	FanSpread   float64  `toml:"fan_spread"`
	Grouping    Grouping `toml:"grouping"`

	MaxIterations     int     `toml:"max_iterations"`
	VelocityThreshold float64 `toml:"velocity_threshold"`

	Repulsion    float64 `toml:"repulsion"`
	RepulsionCap float64 `toml:"repulsion_cap"`
	Gravity      float64 `toml:"gravity"`
	Spring       float64 `toml:"spring"`
	Damping      float64 `toml:"damping"`
	AlphaDecay   float64 `toml:"alpha_decay"`

	// OrderGap is the minimum radial gap kept between nodes of strictly
	// different recency.
	OrderGap float64 `toml:"order_gap"`
}

// DefaultConfig returns the built-in layout parameters.
func DefaultConfig() Config {
	return Config{
		MinDistance:       80,
		MaxDistance:       320,
		FanSpread:         100,
		Grouping:          GroupByCategory,
		MaxIterations:     300,
		VelocityThreshold: 0.05,
		Repulsion:         2500,
		RepulsionCap:      40,
		Gravity:           0.01,
		Spring:            0.08,
		Damping:           0.6,
		AlphaDecay:        0.98,
		OrderGap:          0.5,
	}
}

// Validate reports every parameter that would make placement or relaxation
// ill-defined.
func (c Config) Validate() error {
	ve := &model.ValidationError{}
	positive := func(name string, v float64) {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			ve.Add(name, fmt.Sprintf("must be a positive number, got %g", v))
		}
	}
	nonNegative := func(name string, v float64) {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			ve.Add(name, fmt.Sprintf("must not be negative, got %g", v))
		}
	}

	positive("min_distance", c.MinDistance)
	positive("max_distance", c.MaxDistance)
	if c.MaxDistance < c.MinDistance {
		ve.Add("max_distance", fmt.Sprintf("must be at least min_distance (%g), got %g", c.MinDistance, c.MaxDistance))
	}
	if math.IsNaN(c.FanSpread) || c.FanSpread < 0 || c.FanSpread > 360 {
		ve.Add("fan_spread", fmt.Sprintf("must be in [0,360], got %g", c.FanSpread))
	}
	switch c.Grouping {
	case GroupByCategory, GroupEven:
	default:
		ve.Add("grouping", fmt.Sprintf("unknown grouping %q", c.Grouping))
	}
	if c.MaxIterations <= 0 {
		ve.Add("max_iterations", fmt.Sprintf("must be positive, got %d", c.MaxIterations))
	}
	positive("velocity_threshold", c.VelocityThreshold)
	nonNegative("repulsion", c.Repulsion)
	nonNegative("repulsion_cap", c.RepulsionCap)
	nonNegative("gravity", c.Gravity)
	nonNegative("spring", c.Spring)
	nonNegative("order_gap", c.OrderGap)
	if math.IsNaN(c.Damping) || c.Damping <= 0 || c.Damping >= 1 {
		ve.Add("damping", fmt.Sprintf("must be in (0,1), got %g", c.Damping))
	}
	if math.IsNaN(c.AlphaDecay) || c.AlphaDecay <= 0 || c.AlphaDecay >= 1 {
		ve.Add("alpha_decay", fmt.Sprintf("must be in (0,1), got %g", c.AlphaDecay))
	}

	if ve.HasErrors() {
		return ve
	}
	return nil
}

// ParseGrouping converts s to a Grouping.
func ParseGrouping(s string) (Grouping, error) {
	g := Grouping(strings.ToLower(strings.TrimSpace(s)))
	switch g {
	case GroupByCategory, GroupEven:
		return g, nil
	}
	return "", fmt.Errorf("invalid grouping %q", s)
}

// BaseAngle returns the fan direction for a category. Categories other than
// family, friends and work share one direction.
func BaseAngle(category string) float64 {
	switch groupKey(category) {
	case "family":
		return FamilyAngle
	case "friends":
		return FriendsAngle
	case "work":
		return WorkAngle
	}
	return OtherAngle
}

func groupKey(category string) string {
	switch k := strings.ToLower(strings.TrimSpace(category)); k {
	case "family", "friends", "work":
		return k
	}
	return "other"
}

// RestLength is the target anchor distance for a node of the given recency.
func (c Config) RestLength(recency float64) float64 {
	if math.IsNaN(recency) {
		recency = 1
	}
	t := math.Max(0, math.Min(1, recency))
	return c.MinDistance + (c.MaxDistance-c.MinDistance)*t
}
