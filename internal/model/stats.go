package model

// Stats holds aggregate node counts by derived health and by category.
type Stats struct {
	Total      int            `json:"total"`
	ByHealth   map[Health]int `json:"by_health"`
	ByCategory map[string]int `json:"by_category"`
}

// ComputeStats counts nodes by health and category. Every health state is
// present in ByHealth, even when its count is zero.
func ComputeStats(nodes []*Node) *Stats {
	s := &Stats{
		ByHealth:   make(map[Health]int, len(HealthStates)),
		ByCategory: make(map[string]int),
	}
	for _, h := range HealthStates {
		s.ByHealth[h] = 0
	}
	for _, n := range nodes {
		s.Total++
		if n.Health.IsValid() {
			s.ByHealth[n.Health]++
		}
		if n.Category != "" {
			s.ByCategory[n.Category]++
		}
	}
	return s
}
