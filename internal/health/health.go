// Package health classifies a relationship from its normalized recency and
// frequency into one of the four ordered health states.
package health

import (
	"fmt"
	"math"

	"github.com/alfredjeanlab/garden/internal/model"
)

// Default policy constants.
const (
	DefaultRecencyWeight      = 0.6
	DefaultHealthyThreshold   = 0.70
	DefaultAttentionThreshold = 0.45
	DefaultDormantThreshold   = 0.20
)

// Policy tunes the classifier. A score is computed as
//
//	score = RecencyWeight*(1-recency) + (1-RecencyWeight)*frequency
//
// and compared against the thresholds from best to worst.
type Policy struct {
	RecencyWeight float64 `toml:"recency_weight" json:"recency_weight"`
	Healthy       float64 `toml:"healthy" json:"healthy"`
	Attention     float64 `toml:"attention" json:"attention"`
	Dormant       float64 `toml:"dormant" json:"dormant"`
}

// DefaultPolicy returns the built-in policy.
func DefaultPolicy() Policy {
	return Policy{
		RecencyWeight: DefaultRecencyWeight,
		Healthy:       DefaultHealthyThreshold,
		Attention:     DefaultAttentionThreshold,
		Dormant:       DefaultDormantThreshold,
	}
}

// Validate checks that the weight lies in [0,1] and the thresholds are
// finite and strictly descending within (0,1], so that a perfect score is
// always healthy and a zero score always wilted.
func (p Policy) Validate() error {
	ve := &model.ValidationError{}
	if math.IsNaN(p.RecencyWeight) || p.RecencyWeight < 0 || p.RecencyWeight > 1 {
		ve.Add("recency_weight", fmt.Sprintf("must be in [0,1], got %g", p.RecencyWeight))
	}
	for _, f := range []struct {
		name string
		v    float64
	}{{"healthy", p.Healthy}, {"attention", p.Attention}, {"dormant", p.Dormant}} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			ve.Add(f.name, "must be finite")
		}
	}
	if p.Healthy > 1 {
		ve.Add("healthy", fmt.Sprintf("must be at most 1, got %g", p.Healthy))
	}
	if !(p.Dormant > 0) {
		ve.Add("dormant", fmt.Sprintf("must be above 0, got %g", p.Dormant))
	}
	if !(p.Healthy > p.Attention) {
		ve.Add("attention", fmt.Sprintf("must be below healthy (%g), got %g", p.Healthy, p.Attention))
	}
	if !(p.Attention > p.Dormant) {
		ve.Add("dormant", fmt.Sprintf("must be below attention (%g), got %g", p.Attention, p.Dormant))
	}
	if ve.HasErrors() {
		return ve
	}
	return nil
}

// Classifier maps (recency, frequency) to a health state. It is safe for
// concurrent use; it holds no mutable state.
type Classifier struct {
	policy Policy
}

// New creates a classifier with the given policy.
func New(p Policy) (*Classifier, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("health policy: %w", err)
	}
	return &Classifier{policy: p}, nil
}

// Default returns a classifier using DefaultPolicy.
func Default() *Classifier {
	return &Classifier{policy: DefaultPolicy()}
}

// Policy returns the classifier's policy.
func (c *Classifier) Policy() Policy {
	return c.policy
}

// Score returns the weighted score in [0,1]. Inputs are clamped; NaN is
// treated as the worst value for that input (recency 1, frequency 0).
func (c *Classifier) Score(recency, frequency float64) float64 {
	r := clamp(recency, 1)
	f := clamp(frequency, 0)
	w := c.policy.RecencyWeight
	return w*(1-r) + (1-w)*f
}

// Classify returns exactly one of the four health states.
func (c *Classifier) Classify(recency, frequency float64) model.Health {
	s := c.Score(recency, frequency)
	switch {
	case s >= c.policy.Healthy:
		return model.HealthHealthy
	case s >= c.policy.Attention:
		return model.HealthAttention
	case s >= c.policy.Dormant:
		return model.HealthDormant
	default:
		return model.HealthWilted
	}
}

// Classify uses the default policy.
func Classify(recency, frequency float64) model.Health {
	return Default().Classify(recency, frequency)
}

func clamp(v, ifNaN float64) float64 {
	if math.IsNaN(v) {
		return ifNaN
	}
	return math.Max(0, math.Min(1, v))
}
