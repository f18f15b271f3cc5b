package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "cre"

// Metrics holds the Prometheus counters, histograms, and gauges for an extraction run.
type Metrics struct {
	RegionsProcessed prometheus.Counter
	RegionsEmpty     prometheus.Counter
	RegionsFailed    prometheus.Counter
	RegionDuration   prometheus.Histogram
	CellsAggregated  prometheus.Counter
	PipelineRunning  prometheus.Gauge

	// Boundary service metrics.
	BoundaryRequests    *prometheus.CounterVec   // labels: method={levels,geometry}, outcome={success,error}
	BoundaryCache       *prometheus.CounterVec   // labels: tier={memory,redis}, result={hit,miss}
	BoundaryAPIDuration *prometheus.HistogramVec // labels: method={levels,geometry}

	// Result publication.
	MessagesProduced prometheus.Counter
}

// NewRegistry creates a registry holding the Go runtime and process
// collectors plus a freshly registered set of run metrics.
func NewRegistry() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := newMetrics()
	reg.MustRegister(m.collectors()...)
	return reg, m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RegionsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "regions_processed_total",
			Help:      "Regions merged into the output tables.",
		}),
		RegionsEmpty: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "regions_empty_total",
			Help:      "Regions whose bounding box covered no grid cell.",
		}),
		RegionsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "regions_failed_total",
			Help:      "Regions skipped after an aggregation error.",
		}),
		RegionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "region_aggregation_duration_seconds",
			Help:      "Time spent clipping and averaging one region.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15},
		}),
		CellsAggregated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cells_aggregated_total",
			Help:      "Grid cells inside region bounding boxes.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while an extraction is in flight, 0 otherwise.",
		}),
		BoundaryRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "boundary_requests_total",
			Help:      "Boundary service requests by method and outcome.",
		}, []string{"method", "outcome"}),
		BoundaryCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "boundary_cache_total",
			Help:      "Boundary cache lookups by tier and result.",
		}, []string{"tier", "result"}),
		BoundaryAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "boundary_api_duration_seconds",
			Help:      "Boundary service request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"method"}),
		MessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_produced_total",
			Help:      "Region series published to the result topic.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RegionsProcessed,
		m.RegionsEmpty,
		m.RegionsFailed,
		m.RegionDuration,
		m.CellsAggregated,
		m.PipelineRunning,
		m.BoundaryRequests,
		m.BoundaryCache,
		m.BoundaryAPIDuration,
		m.MessagesProduced,
	}
}

// Register adds the metrics to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
