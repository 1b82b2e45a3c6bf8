package model

import "testing"

func TestHealth_IsValid(t *testing.T) {
	for _, tc := range []struct {
		health Health
		want   bool
	}{
		{HealthHealthy, true},
		{HealthAttention, true},
		{HealthDormant, true},
		{HealthWilted, true},
		{Health(""), false},
		{Health("at_risk"), false},
		{Health("Healthy"), false},
	} {
		if got := tc.health.IsValid(); got != tc.want {
			t.Errorf("Health(%q).IsValid() = %v, want %v", tc.health, got, tc.want)
		}
	}
}

func TestHealth_OrdinalFollowsDeclarationOrder(t *testing.T) {
	for i, h := range HealthStates {
		if got := h.Ordinal(); got != i {
			t.Errorf("%s.Ordinal() = %d, want %d", h, got, i)
		}
	}
	if got := Health("bogus").Ordinal(); got != -1 {
		t.Errorf("expected -1 for unknown health, got %d", got)
	}
	if !HealthWilted.Worse(HealthHealthy) {
		t.Error("expected wilted to be worse than healthy")
	}
	if HealthAttention.Worse(HealthAttention) {
		t.Error("expected a state not to be worse than itself")
	}
}

func TestParseHealth(t *testing.T) {
	for _, tc := range []struct {
		in      string
		want    Health
		wantErr bool
	}{
		{"healthy", HealthHealthy, false},
		{"wilted", HealthWilted, false},
		{"at_risk", "", true},
		{"", "", true},
	} {
		got, err := ParseHealth(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseHealth(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseHealth(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestComputeStats(t *testing.T) {
	nodes := []*Node{
		{ID: "a", Category: "family", Health: HealthHealthy},
		{ID: "b", Category: "family", Health: HealthWilted},
		{ID: "c", Category: "work", Health: HealthHealthy},
		{ID: "d", Health: HealthDormant},
	}
	s := ComputeStats(nodes)
	if s.Total != 4 {
		t.Errorf("expected total 4, got %d", s.Total)
	}
	if s.ByHealth[HealthHealthy] != 2 {
		t.Errorf("expected 2 healthy, got %d", s.ByHealth[HealthHealthy])
	}
	if n, ok := s.ByHealth[HealthAttention]; !ok || n != 0 {
		t.Errorf("expected attention present with 0, got %d (present=%v)", n, ok)
	}
	if s.ByCategory["family"] != 2 || s.ByCategory["work"] != 1 {
		t.Errorf("unexpected category counts: %v", s.ByCategory)
	}
	if _, ok := s.ByCategory[""]; ok {
		t.Error("expected uncategorized nodes not to create an empty category bucket")
	}
}

func TestComputeStats_Empty(t *testing.T) {
	s := ComputeStats(nil)
	if s.Total != 0 {
		t.Errorf("expected total 0, got %d", s.Total)
	}
	if len(s.ByHealth) != len(HealthStates) {
		t.Errorf("expected all %d health buckets, got %d", len(HealthStates), len(s.ByHealth))
	}
}
