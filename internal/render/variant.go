package render

import (
	"hash/fnv"
	"time"

	"github.com/alfredjeanlab/garden/internal/model"
)

// Variant is the visual form of a node.
type Variant string

const (
	VariantLeaf          Variant = "leaf"
	VariantLeafIndicator Variant = "leaf-indicator"
	VariantClosedBud     Variant = "closed-bud"
	VariantWiltedLeaf    Variant = "wilted-leaf"
)

// VariantFor selects the visual form for a health state. A value outside
// the four states renders as the worst one.
func VariantFor(h model.Health) Variant {
	switch h {
	case model.HealthHealthy:
		return VariantLeaf
	case model.HealthAttention:
		return VariantLeafIndicator
	case model.HealthDormant:
		return VariantClosedBud
	case model.HealthWilted:
		return VariantWiltedLeaf
	}
	return VariantWiltedLeaf
}

// Sway ranges.
const (
	MinSway   = 2.0
	MaxSway   = 6.0
	MinPeriod = 3 * time.Second
	MaxPeriod = 6 * time.Second
)

// Animation describes a node's idle sway. It depends only on the node id,
// so it is the same on every render.
type Animation struct {
	Amplitude float64       `json:"amplitude"`
	Period    time.Duration `json:"period"`
	Phase     float64       `json:"phase"`
}

// Static reports whether the animation does nothing.
func (a Animation) Static() bool {
	return a.Amplitude == 0 || a.Period == 0
}

// AnimationFor derives the idle animation for a node id. Reduced motion
// yields a static, zero-duration animation.
func AnimationFor(id string, reducedMotion bool) Animation {
	if reducedMotion {
		return Animation{}
	}
	h := fnv.New64a()
	h.Write([]byte(id))
	sum := h.Sum64()

	unit := func(shift uint) float64 {
		return float64((sum>>shift)&0xffff) / 0xffff
	}
	return Animation{
		Amplitude: MinSway + (MaxSway-MinSway)*unit(0),
		Period:    MinPeriod + time.Duration(float64(MaxPeriod-MinPeriod)*unit(16)),
		Phase:     unit(32),
	}
}
