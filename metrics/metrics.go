// Package metrics holds the Prometheus collectors of an exploration session.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Rebuild scopes.
const (
	ScopeLocal  = "local"
	ScopeWindow = "window"
)

// Metrics holds the collectors of one session.
//
// Every session registers on its own registry so concurrent sessions never share counters.
type Metrics struct {
	Registry *prometheus.Registry

	StatesTotal     prometheus.Gauge
	VirtualStates   prometheus.Gauge
	Transitions     *prometheus.GaugeVec
	Snapshots       prometheus.Counter
	Interactions    prometheus.Counter
	Ambiguities     prometheus.Counter
	Refinements     prometheus.Counter
	Abandoned       prometheus.Counter
	Rebuilds        *prometheus.CounterVec
	RebuildDuration prometheus.Histogram
	RemovedStates   prometheus.Counter
	PurgedPaths     prometheus.Counter
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.NewRegistry())
}

// NewWithRegistry creates the collectors on the provided registry.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		StatesTotal: f.NewGauge(prometheus.GaugeOpts{
			Name: "dstg_abstract_states",
			Help: "Number of non virtual abstract states",
		}),
		VirtualStates: f.NewGauge(prometheus.GaugeOpts{
			Name: "dstg_virtual_abstract_states",
			Help: "Number of virtual abstract states",
		}),
		Transitions: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dstg_abstract_transitions",
			Help: "Number of abstract transitions by kind",
		}, []string{"kind"}),
		Snapshots: f.NewCounter(prometheus.CounterOpts{
			Name: "dstg_snapshots_recorded_total",
			Help: "Total number of concrete snapshots recorded",
		}),
		Interactions: f.NewCounter(prometheus.CounterOpts{
			Name: "dstg_interactions_recorded_total",
			Help: "Total number of interactions recorded",
		}),
		Ambiguities: f.NewCounter(prometheus.CounterOpts{
			Name: "dstg_ambiguities_detected_total",
			Help: "Total number of inconsistent transitions detected by validation",
		}),
		Refinements: f.NewCounter(prometheus.CounterOpts{
			Name: "dstg_refinements_total",
			Help: "Total number of accepted precision increases",
		}),
		Abandoned: f.NewCounter(prometheus.CounterOpts{
			Name: "dstg_abandoned_ambiguities_total",
			Help: "Total number of ambiguities accepted as unavoidable",
		}),
		Rebuilds: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dstg_rebuilds_total",
			Help: "Total number of rebuilds by scope",
		}, []string{"scope"}),
		RebuildDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "dstg_rebuild_duration_seconds",
			Help:    "Duration of rebuilds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		RemovedStates: f.NewCounter(prometheus.CounterOpts{
			Name: "dstg_removed_states_total",
			Help: "Total number of abstract states removed by rebuilds",
		}),
		PurgedPaths: f.NewCounter(prometheus.CounterOpts{
			Name: "dstg_purged_paths_total",
			Help: "Total number of cached paths purged after rebuilds",
		}),
	}
}

// ObserveRebuild records a finished rebuild of the provided scope.
func (m *Metrics) ObserveRebuild(scope string, start time.Time, removed int) {
	m.Rebuilds.WithLabelValues(scope).Inc()
	m.RebuildDuration.Observe(time.Since(start).Seconds())
	m.RemovedStates.Add(float64(removed))
}

// SetGraphSize updates the size gauges.
func (m *Metrics) SetGraphSize(states, virtual, explicit, implicit int) {
	m.StatesTotal.Set(float64(states))
	m.VirtualStates.Set(float64(virtual))
	m.Transitions.WithLabelValues("explicit").Set(float64(explicit))
	m.Transitions.WithLabelValues("implicit").Set(float64(implicit))
}
