package model

import "fmt"

// Health is the derived condition of a relationship. The four states are
// ordered from best to worst.
type Health string

const (
	HealthHealthy   Health = "healthy"
	HealthAttention Health = "attention"
	HealthDormant   Health = "dormant"
	HealthWilted    Health = "wilted"
)

// HealthStates lists every health state from best to worst.
var HealthStates = []Health{HealthHealthy, HealthAttention, HealthDormant, HealthWilted}

// String returns the string representation of the health state.
func (h Health) String() string {
	return string(h)
}

// IsValid checks whether the health state is one of the four known values.
func (h Health) IsValid() bool {
	switch h {
	case HealthHealthy, HealthAttention, HealthDormant, HealthWilted:
		return true
	}
	return false
}

// Ordinal returns 0 for healthy through 3 for wilted, or -1 for an unknown value.
func (h Health) Ordinal() int {
	switch h {
	case HealthHealthy:
		return 0
	case HealthAttention:
		return 1
	case HealthDormant:
		return 2
	case HealthWilted:
		return 3
	}
	return -1
}

// Worse reports whether h is strictly worse than other.
func (h Health) Worse(other Health) bool {
	return h.Ordinal() > other.Ordinal()
}

// ParseHealth converts s to a Health, rejecting anything outside the closed set.
func ParseHealth(s string) (Health, error) {
	h := Health(s)
	if !h.IsValid() {
		return "", fmt.Errorf("invalid health %q", s)
	}
	return h, nil
}
