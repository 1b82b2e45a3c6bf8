// Package normalize turns raw, possibly-missing per-contact metrics into the
// two bounded scalars the rest of the engine works with: recency in [0,1]
// (0 = contacted just now) and frequency in [0,1] (0 = least frequent).
//
// Normalization is pure and total. Every input, including NaN, infinities
// and entirely absent metrics, resolves to a value inside [0,1].
package normalize

import (
	"math"

	"github.com/alfredjeanlab/garden/internal/model"
)

const (
	// DefaultRecencyHorizonDays is the staleness at which recency saturates at 1.
	DefaultRecencyHorizonDays = 90.0

	// DefaultFrequencyCeiling is the messages-per-day rate at which frequency saturates at 1.
	DefaultFrequencyCeiling = 5.0

	// DefaultEpsilon guards relative normalization against an all-zero snapshot.
	DefaultEpsilon = 1e-9

	// MissingRecency is used when neither a precomputed nor a raw recency is present.
	MissingRecency = 0.5

	// MissingFrequency is used when no frequency signal is present at all.
	MissingFrequency = 0.0
)

// Metrics is the normalized form of a contact's communication signals.
type Metrics struct {
	Recency   float64 `json:"recency"`
	Frequency float64 `json:"frequency"`

	// SizeHint is the clamped display-size override, if the contact carried one.
	SizeHint *float64 `json:"size_hint,omitempty"`
}

// Normalizer holds the policy constants for normalization. The zero value is
// not useful; use New or fill every field.
type Normalizer struct {
	RecencyHorizonDays float64
	FrequencyCeiling   float64
	Epsilon            float64
}

// New returns a Normalizer with the default policy.
func New() *Normalizer {
	return &Normalizer{
		RecencyHorizonDays: DefaultRecencyHorizonDays,
		FrequencyCeiling:   DefaultFrequencyCeiling,
		Epsilon:            DefaultEpsilon,
	}
}

// Normalize resolves a single contact. maxIntensity is the largest intensity
// observed across the snapshot and is used only when the contact has no
// absolute frequency signal; pass 0 when normalizing a contact in isolation.
func (n *Normalizer) Normalize(c model.Contact, maxIntensity float64) Metrics {
	m := Metrics{
		Recency:   n.recency(c),
		Frequency: n.frequency(c, maxIntensity),
	}
	if v, ok := finite(c.SizeHint); ok {
		h := Clamp01(v)
		m.SizeHint = &h
	}
	return m
}

// NormalizeAll resolves every contact of a snapshot. The set maximum for the
// relative intensity fallback is computed once across the whole snapshot.
func (n *Normalizer) NormalizeAll(contacts []model.Contact) []Metrics {
	maxIntensity := MaxIntensity(contacts)
	out := make([]Metrics, len(contacts))
	for i, c := range contacts {
		out[i] = n.Normalize(c, maxIntensity)
	}
	return out
}

// Recency maps days since last contact onto [0,1]. Values at or beyond the
// horizon clamp to 1; they are never extrapolated.
func (n *Normalizer) Recency(days float64) float64 {
	if math.IsNaN(days) {
		return MissingRecency
	}
	return Clamp01(days / n.horizon())
}

// Frequency maps messages per day onto [0,1] against the ceiling.
func (n *Normalizer) Frequency(perDay float64) float64 {
	if math.IsNaN(perDay) {
		return MissingFrequency
	}
	return Clamp01(perDay / n.ceiling())
}

// Relative maps a comparative signal onto [0,1] by dividing by the set
// maximum. The divisor is floored at epsilon so an all-zero set yields zeros
// rather than a division by zero.
func (n *Normalizer) Relative(v, setMax float64) float64 {
	if math.IsNaN(v) || math.IsNaN(setMax) {
		return MissingFrequency
	}
	eps := n.Epsilon
	if eps <= 0 {
		eps = DefaultEpsilon
	}
	return Clamp01(v / math.Max(setMax, eps))
}

func (n *Normalizer) recency(c model.Contact) float64 {
	if v, ok := finite(c.Recency); ok {
		return Clamp01(v)
	}
	if v, ok := finiteOrPosInf(c.DaysSinceContact); ok {
		return n.Recency(v)
	}
	return MissingRecency
}

func (n *Normalizer) frequency(c model.Contact, maxIntensity float64) float64 {
	if v, ok := finite(c.Frequency); ok {
		return Clamp01(v)
	}
	if v, ok := finiteOrPosInf(c.MessagesPerDay); ok {
		return n.Frequency(v)
	}
	if v, ok := finite(c.Intensity); ok {
		return n.Relative(v, maxIntensity)
	}
	return MissingFrequency
}

func (n *Normalizer) horizon() float64 {
	if n.RecencyHorizonDays > 0 && !math.IsInf(n.RecencyHorizonDays, 0) {
		return n.RecencyHorizonDays
	}
	return DefaultRecencyHorizonDays
}

func (n *Normalizer) ceiling() float64 {
	if n.FrequencyCeiling > 0 && !math.IsInf(n.FrequencyCeiling, 0) {
		return n.FrequencyCeiling
	}
	return DefaultFrequencyCeiling
}

// MaxIntensity returns the largest finite, non-negative intensity in the
// snapshot, or 0 when none is present.
func MaxIntensity(contacts []model.Contact) float64 {
	best := 0.0
	for _, c := range contacts {
		if v, ok := finite(c.Intensity); ok && v > best {
			best = v
		}
	}
	return best
}

// Clamp01 clamps v into [0,1]. NaN clamps to 0.
func Clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v <= 0:
		return 0
	case v >= 1:
		return 1
	}
	return v
}

// Lerp linearly interpolates between lo and hi by t, with t clamped to [0,1].
func Lerp(lo, hi, t float64) float64 {
	return lo + (hi-lo)*Clamp01(t)
}

func finite(p *float64) (float64, bool) {
	if p == nil || math.IsNaN(*p) || math.IsInf(*p, 0) {
		return 0, false
	}
	return *p, true
}

// finiteOrPosInf accepts +Inf for raw counters: "infinitely long ago" is a
// meaningful saturation value, unlike NaN.
func finiteOrPosInf(p *float64) (float64, bool) {
	if p == nil || math.IsNaN(*p) || math.IsInf(*p, -1) {
		return 0, false
	}
	return *p, true
}
