// Package metrics holds the prometheus collectors shared by the catalog,
// search and recommendation components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CatalogQueries counts catalog store calls by operation and outcome
	// (ok, error, skipped).
	CatalogQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osusume_catalog_queries_total",
			Help: "Catalog store queries by operation and outcome",
		},
		[]string{"op", "outcome"},
	)

	// CatalogQueryDuration tracks query latency by operation.
	CatalogQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "osusume_catalog_query_duration_seconds",
			Help:    "Catalog store query latency",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5},
		},
		[]string{"op"},
	)

	// Recommendations counts recommendation runs by outcome
	// (ok, empty, unavailable, inference_failed, resolve_failed).
	Recommendations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osusume_recommendations_total",
			Help: "Recommendation runs by outcome",
		},
		[]string{"outcome"},
	)

	// ModelStatus is 0 idle, 1 ready, 2 unavailable.
	ModelStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "osusume_model_status",
		Help: "Ranking model state: 0 idle, 1 ready, 2 unavailable",
	})

	// Superseded counts search/recommendation runs dropped because newer
	// input arrived before they finished.
	Superseded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osusume_superseded_runs_total",
			Help: "Runs discarded because newer input superseded them",
		},
		[]string{"kind"},
	)

	// SessionEvents counts events pushed to subscribers by event type.
	SessionEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osusume_session_events_total",
			Help: "Browse session events published to the sync hub",
		},
		[]string{"type"},
	)

	// ActiveSessions is the number of live browse sessions.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "osusume_active_sessions",
		Help: "Live browse sessions",
	})
)
