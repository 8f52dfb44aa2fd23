// Package metrics exposes Prometheus instruments for the tender pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OK     = "ok"
	Failed = "failed"
)

var (
	// RefreshRuns counts refresh orchestrator runs by outcome.
	RefreshRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tender_refresh_runs_total",
		Help: "Refresh orchestrator runs by outcome.",
	}, []string{"outcome"})

	// RefreshPublishes counts downstream publishes by target (cache, stats) and outcome.
	RefreshPublishes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tender_refresh_publishes_total",
		Help: "Refresh publishes by target and outcome.",
	}, []string{"target", "outcome"})

	// RefreshTenders is the number of tenders fetched by the last successful run.
	RefreshTenders = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tender_refresh_last_fetched",
		Help: "Tenders fetched by the last successful refresh.",
	})

	// CacheWrites counts global cache replacements by source.
	CacheWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tender_cache_writes_total",
		Help: "Global tender cache replacements by source.",
	}, []string{"source"})

	// QueryDuration observes tender query handling time.
	QueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tender_query_duration_seconds",
		Help:    "Time spent answering tender queries.",
		Buckets: prometheus.DefBuckets,
	})

	// EmailsSent counts relayed emails by kind and outcome.
	EmailsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tender_emails_total",
		Help: "Transactional emails by kind and outcome.",
	}, []string{"kind", "outcome"})
)

// Outcome maps an error to an outcome label.
func Outcome(err error) string {
	if err != nil {
		return Failed
	}
	return OK
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
