package model

import "strings"

// Filter narrows the visible node set. Filtering is a read-side projection
// and never affects classification or layout.
type Filter struct {
	Category []string `json:"category,omitempty"`
	Health   []Health `json:"health,omitempty"`
	Search   string   `json:"search,omitempty"` // case-insensitive substring of name
}

// IsZero reports whether the filter matches everything.
func (f Filter) IsZero() bool {
	return len(f.Category) == 0 && len(f.Health) == 0 && strings.TrimSpace(f.Search) == ""
}

// Match reports whether n passes every criterion of the filter.
func (f Filter) Match(n *Node) bool {
	if n == nil {
		return false
	}
	if len(f.Category) > 0 && !containsFold(f.Category, n.Category) {
		return false
	}
	if len(f.Health) > 0 {
		found := false
		for _, h := range f.Health {
			if h == n.Health {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		if !strings.Contains(strings.ToLower(n.Name), q) {
			return false
		}
	}
	return true
}

// Apply returns the nodes matching the filter, preserving order.
func (f Filter) Apply(nodes []*Node) []*Node {
	out := make([]*Node, 0, len(nodes))
	for _, n := range nodes {
		if f.Match(n) {
			out = append(out, n)
		}
	}
	return out
}

func containsFold(values []string, s string) bool {
	for _, v := range values {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
