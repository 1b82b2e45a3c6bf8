// Package telemetry holds the Prometheus instruments for a garden server.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alfredjeanlab/garden/internal/model"
)

// Metrics groups every instrument. The zero value is not usable; call New.
type Metrics struct {
	gatherer prometheus.Gatherer

	SnapshotsLoaded *prometheus.CounterVec
	SnapshotNodes   prometheus.Gauge
	NodesByHealth   *prometheus.GaugeVec
	LayoutSteps     prometheus.Histogram
	OverlayFrames   prometheus.Counter
	Activations     prometheus.Counter
	ViewportChanges prometheus.Counter
	SourceErrors    *prometheus.CounterVec
	Exports         *prometheus.CounterVec
	StreamClients   prometheus.Gauge
}

// New registers the instruments on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWith(reg, reg)
}

// NewWith registers the instruments on reg and serves them from g.
func NewWith(reg prometheus.Registerer, g prometheus.Gatherer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: g,

		SnapshotsLoaded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "garden_snapshots_loaded_total",
			Help: "Snapshots loaded into the scene by source",
		}, []string{"source"}),

		SnapshotNodes: f.NewGauge(prometheus.GaugeOpts{
			Name: "garden_snapshot_nodes",
			Help: "Nodes in the current snapshot",
		}),

		NodesByHealth: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "garden_nodes_by_health",
			Help: "Nodes in the current snapshot by derived health",
		}, []string{"health"}),

		LayoutSteps: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "garden_layout_steps",
			Help:    "Relaxation steps until a generation settled",
			Buckets: []float64{10, 25, 50, 100, 200, 300},
		}),

		OverlayFrames: f.NewCounter(prometheus.CounterOpts{
			Name: "garden_overlay_frames_total",
			Help: "Overlay frames delivered by the synchronizer",
		}),

		Activations: f.NewCounter(prometheus.CounterOpts{
			Name: "garden_activations_total",
			Help: "Node activations",
		}),

		ViewportChanges: f.NewCounter(prometheus.CounterOpts{
			Name: "garden_viewport_changes_total",
			Help: "Viewport commands that changed the transform",
		}),

		SourceErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "garden_source_errors_total",
			Help: "Snapshot fetch failures by source",
		}, []string{"source"}),

		Exports: f.NewCounterVec(prometheus.CounterOpts{
			Name: "garden_exports_total",
			Help: "Map exports by destination and result",
		}, []string{"destination", "result"}),

		StreamClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "garden_stream_clients",
			Help: "Connected event stream clients",
		}),
	}
}

// ObserveStats records the per-health node counts of the current snapshot.
func (m *Metrics) ObserveStats(s *model.Stats) {
	m.SnapshotNodes.Set(float64(s.Total))
	for _, h := range model.HealthStates {
		m.NodesByHealth.WithLabelValues(string(h)).Set(float64(s.ByHealth[h]))
	}
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
