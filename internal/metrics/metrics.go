// Package metrics exposes Prometheus collectors for the trading core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TicksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_ticks_processed_total",
		Help: "Total number of price ticks emitted by the feed",
	}, []string{"symbol"})

	TickFetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_tick_fetch_failures_total",
		Help: "Total number of failed market data fetches (no tick this cycle)",
	}, []string{"symbol"})

	EvaluationsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_evaluations_started_total",
		Help: "Total number of trigger evaluations started",
	}, []string{"mode"})

	EvaluationsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_evaluations_dropped_total",
		Help: "Total number of ticks dropped because an evaluation was in flight",
	})

	ActiveEvaluations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_active_evaluations",
		Help: "Number of evaluations currently in flight across all agents",
	})

	DecisionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_decision_failures_total",
		Help: "Total number of decision backend failures or timeouts",
	})

	OrdersSimulated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_orders_simulated_total",
		Help: "Total number of simulated orders by terminal status",
	}, []string{"status"})

	SimulatedLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arena_simulated_latency_seconds",
		Help:    "Synthetic exchange round-trip latency applied by the simulator",
		Buckets: prometheus.ExponentialBuckets(0.025, 2, 6),
	})
)
