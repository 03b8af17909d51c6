// Package metrics holds the prometheus instruments and the /metrics handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts HTTP requests by method, route and status
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aptcast_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	// RequestDurationSeconds observes HTTP request latency
	RequestDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aptcast_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
	}, []string{"method", "route"})

	// LoadsTotal counts dataset loads by source and outcome
	LoadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aptcast_loads_total",
		Help: "Total dataset loads by source (file, remote) and outcome",
	}, []string{"source", "outcome"})

	// CacheHitsTotal counts dataset cache hits by source
	CacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aptcast_cache_hits_total",
		Help: "Total dataset cache hits",
	}, []string{"source"})

	// ForecastsTotal counts forecast runs by outcome
	ForecastsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aptcast_forecasts_total",
		Help: "Total forecast runs by outcome (ok, refused, error)",
	}, []string{"outcome"})

	// RemoteFetchSeconds observes MOLIT call latency
	RemoteFetchSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "aptcast_remote_fetch_duration_seconds",
		Help:    "MOLIT fetch duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDurationSeconds,
		LoadsTotal,
		CacheHitsTotal,
		ForecastsTotal,
		RemoteFetchSeconds,
	)
}

// Handler serves the prometheus scrape endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}
