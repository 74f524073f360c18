package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dispatch", Name: "matches_total",
		Help: "Successful driver matches",
	})
	MatchFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dispatch", Name: "match_failures_total",
		Help: "Match attempts that timed out with no driver",
	})
	MatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "dispatch", Name: "match_latency_seconds",
		Help:    "Time from match request to first driver found",
		Buckets: prometheus.DefBuckets,
	})

	LocationUpdatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dispatch", Name: "location_updates_total",
		Help: "Driver location pings accepted into the geo index",
	})
	LocationUpdatesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dispatch", Name: "location_updates_dropped_total",
		Help: "Driver location pings dropped by debouncing",
	})

	TripTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dispatch", Name: "trip_transitions_total",
		Help: "Trip state transitions applied",
	}, []string{"to_state"})
	TripTransitionRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dispatch", Name: "trip_transition_rejections_total",
		Help: "Trip transitions rejected by guards",
	}, []string{"reason"})

	ActiveSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dispatch", Name: "ws_active_connections",
		Help: "Connected websocket sessions",
	})
)
