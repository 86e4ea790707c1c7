// Package observability holds the Prometheus collectors of the service.
// Collectors register with the default registry, which /metrics serves.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ecopool"

var (
	MatchSearchesTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "match_searches_total", Help: "Trip searches served"})
	MatchResultsTotal  = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "match_results_total", Help: "Trips returned by searches"})
	MatchLatency       = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "match_latency_seconds", Help: "Trip search latency seconds"})

	RequestTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "request_transitions_total", Help: "Trip request state changes"},
		[]string{"status"},
	)
	RideTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "ride_transitions_total", Help: "Ride state changes"},
		[]string{"status"},
	)
	CO2SavedKgTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "co2_saved_kg_total", Help: "Kg of CO2 saved by completed rides"})

	LedgerPostingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "ledger_postings_total", Help: "Ledger entries written"},
		[]string{"currency", "kind"},
	)
	RedemptionsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "redemptions_total", Help: "Vouchers issued"})
	DonationsTotal   = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "donations_total", Help: "Donations recorded"})

	SideEffectFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "side_effect_failures_total", Help: "Best-effort event or live position writes that failed"},
		[]string{"sink"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
