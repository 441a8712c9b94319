// Package metrics exposes the Prometheus gauges/counters/histograms the
// operator API surfaces at /metrics: fleet composition, mission
// throughput, and HTTP request latency. Every other component
// (autoscaler, alerting, cross-region) keeps its own metrics close to
// its own package; this package is only for the cross-cutting surface
// the operator API mounts.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FleetSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleet_uav_count",
			Help: "Number of UAVs known to the fleet inventory, by status",
		},
		[]string{"status"},
	)

	MissionsByState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleet_missions_by_state",
			Help: "Number of missions currently in each lifecycle state",
		},
		[]string{"state"},
	)

	MissionDispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_mission_dispatch_total",
			Help: "Total mission dispatch attempts, by outcome",
		},
		[]string{"outcome"},
	)

	MissionDispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleet_mission_dispatch_duration_seconds",
			Help:    "Time taken to admit and dispatch a mission",
			Buckets: prometheus.DefBuckets,
		},
	)

	TelemetryIngestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_telemetry_ingest_total",
			Help: "Total telemetry reports ingested, by outcome",
		},
		[]string{"outcome"},
	)

	ViewerConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleet_viewer_connections",
			Help: "Current number of connected viewer websocket subscribers",
		},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleet_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds, by route and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method", "status"},
	)
)

// RecordMissionDispatch records the outcome and duration of one
// admit-and-dispatch attempt.
func RecordMissionDispatch(outcome string, seconds float64) {
	MissionDispatchTotal.WithLabelValues(outcome).Inc()
	MissionDispatchDuration.Observe(seconds)
}

// RecordTelemetryIngest records the outcome of one telemetry ingest call.
func RecordTelemetryIngest(outcome string) {
	TelemetryIngestTotal.WithLabelValues(outcome).Inc()
}
