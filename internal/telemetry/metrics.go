package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики Conductor. Регистрируются в default registry,
// экспортируются через promhttp на /metrics.
var (
	// DispatchAttempts — количество попыток dispatch по агентам.
	DispatchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conductor_dispatch_attempts_total",
		Help: "Total dispatch attempts per agent",
	}, []string{"agent"})

	// DispatchFailures — неудачные попытки по агентам и причине
	// (transport, status, agent).
	DispatchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conductor_dispatch_failures_total",
		Help: "Failed dispatch attempts per agent and failure reason",
	}, []string{"agent", "reason"})

	// StepFallbacks — количество замещённых (fallback) результатов.
	StepFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conductor_step_fallbacks_total",
		Help: "Steps that exhausted retries and were substituted with a fallback result",
	}, []string{"agent"})

	// RunsTotal — завершённые runs по терминальному статусу.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conductor_runs_total",
		Help: "Finished runs per terminal status",
	}, []string{"status"})

	// StepDuration — длительность шага (все попытки вместе).
	StepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "conductor_step_duration_seconds",
		Help:    "Step execution duration including retries and backoff",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"agent"})

	// ProgressEvents — записанные progress-события.
	ProgressEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conductor_progress_events_total",
		Help: "Total progress events recorded",
	})
)
