// Package metrics holds the orchestrator's Prometheus instrumentation,
// grounded on longregen-alicia/internal/adapters/metrics/prometheus.go's
// promauto-registered package-level var pattern.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	IterationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orchestrator_iterations_total",
		Help: "Total iterations processed by the pipeline, by terminal outcome",
	}, []string{"termination_reason"})

	ValidationRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orchestrator_validation_retries_total",
		Help: "Total Stage-1 validation retries across all iterations",
	})

	RunsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "orchestrator_runs_active",
		Help: "Number of optimization runs currently executing",
	})

	RunsCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orchestrator_runs_completed_total",
		Help: "Total runs reaching a terminal status, by status",
	}, []string{"status"})

	RPCRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "orchestrator_rpc_request_duration_seconds",
		Help:    "RPC Client call latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "code"})

	BacktestWaitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "orchestrator_backtest_wait_duration_seconds",
		Help:    "Time spent in Stage 3 polling a single backtest job to completion",
		Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
	})

	BestSharpe = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "orchestrator_best_sharpe",
		Help: "Best Sharpe ratio observed so far, per run",
	}, []string{"run_id"})
)
