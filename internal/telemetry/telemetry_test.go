package telemetry

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alfredjeanlab/garden/internal/model"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("reading metrics: %v", err)
	}
	return string(body)
}

func TestObserveStats(t *testing.T) {
	m := New()
	m.ObserveStats(&model.Stats{
		Total:    5,
		ByHealth: map[model.Health]int{model.HealthHealthy: 3, model.HealthWilted: 2},
	})
	out := scrape(t, m)
	for _, want := range []string{
		"garden_snapshot_nodes 5",
		`garden_nodes_by_health{health="healthy"} 3`,
		`garden_nodes_by_health{health="dormant"} 0`,
		`garden_nodes_by_health{health="wilted"} 2`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected metrics output to contain %q", want)
		}
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.SnapshotsLoaded.WithLabelValues("file").Inc()
	m.Activations.Inc()

	out := scrape(t, m)
	for _, want := range []string{
		`garden_snapshots_loaded_total{source="file"} 1`,
		"garden_activations_total 1",
		"go_goroutines",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected metrics output to contain %q", want)
		}
	}
}

func TestNew_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.Activations.Inc()
	if out := scrape(t, b); !strings.Contains(out, "garden_activations_total 0") {
		t.Error("expected the second registry to be unaffected")
	}
}
