// Package metrics defines the Prometheus collectors exported at /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Poll outcomes.
const (
	OutcomeApplied = "applied"
	OutcomeEmpty   = "empty"
	OutcomeFailed  = "failed"
	OutcomePanic   = "panic"
)

var (
	// Poll loop
	PollCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vatscope_poll_cycles_total",
			Help: "Poll cycles by outcome (applied, empty, failed, panic)",
		},
		[]string{"outcome"},
	)

	PollTicksDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vatscope_poll_ticks_dropped_total",
			Help: "Timer ticks dropped because a cycle was already in flight",
		},
	)

	PollCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vatscope_poll_cycle_duration_seconds",
			Help:    "Duration of fetch, reconcile and rebuild",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8},
		},
	)

	// Feed requests
	FeedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vatscope_feed_requests_total",
			Help: "Individual feed requests by result",
		},
		[]string{"result"},
	)

	// Display state
	DisplayedPilots = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vatscope_displayed_pilots",
			Help: "Pilots currently held in the displayed set",
		},
	)

	ReconcileOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vatscope_reconcile_operations_total",
			Help: "Marker operations issued by the reconciler",
		},
		[]string{"op"},
	)

	ZonesDrawn = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vatscope_zones_drawn",
			Help: "Coverage zones drawn in the last rebuild by tier",
		},
		[]string{"tier"},
	)

	RouteProjections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vatscope_route_projections_total",
			Help: "Route projections by outcome",
		},
		[]string{"outcome"},
	)

	// Airports
	AirportLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vatscope_airport_lookups_total",
			Help: "Airport coordinate lookups by source and result",
		},
		[]string{"source", "result"},
	)

	AirportBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vatscope_airport_breaker_state",
			Help: "Airport API circuit state (0=closed, 1=half-open, 2=open)",
		},
	)

	// Websocket / visitors
	WebsocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vatscope_websocket_clients",
			Help: "Connected websocket clients",
		},
	)

	// HTTP API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vatscope_api_requests_total",
			Help: "HTTP API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vatscope_api_request_duration_seconds",
			Help:    "HTTP API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordPollCycle records the outcome and duration of one poll cycle.
func RecordPollCycle(outcome string, duration time.Duration) {
	PollCycles.WithLabelValues(outcome).Inc()
	PollCycleDuration.Observe(duration.Seconds())
}

// RecordFeedRequest counts one feed request.
func RecordFeedRequest(err error) {
	if err != nil {
		FeedRequests.WithLabelValues("error").Inc()
		return
	}
	FeedRequests.WithLabelValues("ok").Inc()
}

// RecordReconcile counts marker operations of one reconciliation.
func RecordReconcile(created, updated, removed, displayed int) {
	ReconcileOps.WithLabelValues("create").Add(float64(created))
	ReconcileOps.WithLabelValues("update").Add(float64(updated))
	ReconcileOps.WithLabelValues("remove").Add(float64(removed))
	DisplayedPilots.Set(float64(displayed))
}

// RecordAirportLookup counts a lookup against source (cache, database, api).
func RecordAirportLookup(source string, err error) {
	result := "hit"
	if err != nil {
		result = "miss"
	}
	AirportLookups.WithLabelValues(source, result).Inc()
}

// RecordAPIRequest records one HTTP API request.
func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
