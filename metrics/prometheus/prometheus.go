// Package prometheus provides a Prometheus implementation of the metrics interface.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"approvalflow/circuit"
	"approvalflow/metrics"
)

// PrometheusMetrics implements the Metrics interface using Prometheus.
type PrometheusMetrics struct {
	// Request lifecycle metrics
	requestCreatedTotal      *prometheus.CounterVec
	requestCreateFailedTotal *prometheus.CounterVec
	createAttempts           *prometheus.HistogramVec

	// Decision metrics
	decisionProcessedTotal *prometheus.CounterVec
	decisionDuration       *prometheus.HistogramVec
	decisionRejectedTotal  *prometheus.CounterVec
	requestApprovedTotal   *prometheus.CounterVec
	requestReturnedTotal   *prometheus.CounterVec

	// Budget metrics
	budgetRevisedTotal *prometheus.CounterVec

	// Notification metrics
	notifySentTotal   *prometheus.CounterVec
	notifyFailedTotal *prometheus.CounterVec

	// Circuit breaker metrics
	circuitState *prometheus.GaugeVec

	// Reminder metrics
	remindScannedTotal prometheus.Counter
	remindSentTotal    *prometheus.CounterVec

	// Lock metrics
	lockAcquiredTotal   prometheus.Counter
	lockFailedTotal     *prometheus.CounterVec
	lockAcquireDuration prometheus.Histogram
}

var _ metrics.Metrics = (*PrometheusMetrics)(nil)

// Config holds configuration for PrometheusMetrics.
type Config struct {
	// Namespace is the prefix for all metrics (e.g., "approvalflow")
	Namespace string
	// Subsystem is an optional subsystem name
	Subsystem string
	// Registry is the Prometheus registry to use. If nil, the default registry is used.
	Registry prometheus.Registerer
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Namespace: "approvalflow",
		Subsystem: "",
		Registry:  prometheus.DefaultRegisterer,
	}
}

// New creates a new PrometheusMetrics instance with the given configuration.
func New(cfg Config) *PrometheusMetrics {
	if cfg.Registry == nil {
		cfg.Registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(cfg.Registry)

	return &PrometheusMetrics{
		requestCreatedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "request_created_total",
			Help:      "Total number of approval requests created",
		}, []string{"kind"}),

		requestCreateFailedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "request_create_failed_total",
			Help:      "Total number of request creation failures",
		}, []string{"kind", "reason"}),

		createAttempts: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "create_attempts",
			Help:      "Number of insert attempts per created request",
			Buckets:   prometheus.LinearBuckets(1, 1, 8),
		}, []string{"kind"}),

		decisionProcessedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "decision_processed_total",
			Help:      "Total number of approval decisions processed",
		}, []string{"action", "stage"}),

		decisionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "decision_duration_seconds",
			Help:      "Decision processing duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		}, []string{"action", "stage"}),

		decisionRejectedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "decision_rejected_total",
			Help:      "Total number of decisions rejected by validation",
		}, []string{"action", "reason"}),

		requestApprovedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "request_approved_total",
			Help:      "Total number of requests reaching final approval",
		}, []string{"kind"}),

		requestReturnedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "request_returned_total",
			Help:      "Total number of requests returned for revision",
		}, []string{"stage"}),

		budgetRevisedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "budget_revised_total",
			Help:      "Total number of budget revisions saved",
		}, []string{"kind"}),

		notifySentTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "notify_sent_total",
			Help:      "Total number of notifications delivered",
		}, []string{"stage"}),

		notifyFailedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "notify_failed_total",
			Help:      "Total number of notification delivery failures",
		}, []string{"stage", "reason"}),

		circuitState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "circuit_state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"target"}),

		remindScannedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "remind_scanned_total",
			Help:      "Total number of stale pending requests scanned",
		}),

		remindSentTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "remind_sent_total",
			Help:      "Total number of reminder notifications sent",
		}, []string{"stage"}),

		lockAcquiredTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "lock_acquired_total",
			Help:      "Total number of locks acquired",
		}),

		lockFailedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "lock_failed_total",
			Help:      "Total number of lock acquisition failures",
		}, []string{"reason"}),

		lockAcquireDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "lock_acquire_duration_seconds",
			Help:      "Lock acquisition duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
	}
}

func (p *PrometheusMetrics) RequestCreated(kind string) {
	p.requestCreatedTotal.WithLabelValues(kind).Inc()
}

func (p *PrometheusMetrics) RequestCreateFailed(kind string, reason string) {
	p.requestCreateFailedTotal.WithLabelValues(kind, reason).Inc()
}

func (p *PrometheusMetrics) CreateAttempts(kind string, attempts int) {
	p.createAttempts.WithLabelValues(kind).Observe(float64(attempts))
}

func (p *PrometheusMetrics) DecisionProcessed(action, stage string, duration time.Duration) {
	p.decisionProcessedTotal.WithLabelValues(action, stage).Inc()
	p.decisionDuration.WithLabelValues(action, stage).Observe(duration.Seconds())
}

func (p *PrometheusMetrics) DecisionRejected(action string, reason string) {
	p.decisionRejectedTotal.WithLabelValues(action, reason).Inc()
}

func (p *PrometheusMetrics) RequestApproved(kind string) {
	p.requestApprovedTotal.WithLabelValues(kind).Inc()
}

func (p *PrometheusMetrics) RequestReturned(stage string) {
	p.requestReturnedTotal.WithLabelValues(stage).Inc()
}

func (p *PrometheusMetrics) BudgetRevised(kind string) {
	p.budgetRevisedTotal.WithLabelValues(kind).Inc()
}

func (p *PrometheusMetrics) NotifySent(stage string) {
	p.notifySentTotal.WithLabelValues(stage).Inc()
}

func (p *PrometheusMetrics) NotifyFailed(stage string, reason string) {
	p.notifyFailedTotal.WithLabelValues(stage, reason).Inc()
}

func (p *PrometheusMetrics) CircuitStateChanged(target string, state circuit.State) {
	p.circuitState.WithLabelValues(target).Set(float64(state))
}

func (p *PrometheusMetrics) RemindScanned(count int) {
	p.remindScannedTotal.Add(float64(count))
}

func (p *PrometheusMetrics) RemindSent(stage string) {
	p.remindSentTotal.WithLabelValues(stage).Inc()
}

func (p *PrometheusMetrics) LockAcquired(duration time.Duration) {
	p.lockAcquiredTotal.Inc()
	p.lockAcquireDuration.Observe(duration.Seconds())
}

func (p *PrometheusMetrics) LockFailed(reason string) {
	p.lockFailedTotal.WithLabelValues(reason).Inc()
}
