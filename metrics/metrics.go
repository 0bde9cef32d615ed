// Package metrics provides the metrics interface for the approval engine.
package metrics

import (
	"time"

	"approvalflow/circuit"
)

// Metrics defines the interface for collecting observability metrics.
// Implementations can use Prometheus, StatsD, or other metrics backends.
type Metrics interface {
	// Request lifecycle metrics
	RequestCreated(kind string)
	RequestCreateFailed(kind string, reason string)
	CreateAttempts(kind string, attempts int)

	// Decision metrics
	DecisionProcessed(action string, stage string, duration time.Duration)
	DecisionRejected(action string, reason string)
	RequestApproved(kind string)
	RequestReturned(stage string)

	// Budget metrics
	BudgetRevised(kind string)

	// Notification metrics
	NotifySent(stage string)
	NotifyFailed(stage string, reason string)

	// Circuit breaker metrics
	CircuitStateChanged(target string, state circuit.State)

	// Reminder metrics
	RemindScanned(count int)
	RemindSent(stage string)

	// Lock metrics
	LockAcquired(duration time.Duration)
	LockFailed(reason string)
}

// NoopMetrics is a no-op implementation of Metrics for testing or when metrics are disabled.
type NoopMetrics struct{}

var _ Metrics = (*NoopMetrics)(nil)

func (n *NoopMetrics) RequestCreated(kind string)                                      {}
func (n *NoopMetrics) RequestCreateFailed(kind string, reason string)                  {}
func (n *NoopMetrics) CreateAttempts(kind string, attempts int)                        {}
func (n *NoopMetrics) DecisionProcessed(action, stage string, d time.Duration)         {}
func (n *NoopMetrics) DecisionRejected(action string, reason string)                   {}
func (n *NoopMetrics) RequestApproved(kind string)                                     {}
func (n *NoopMetrics) RequestReturned(stage string)                                    {}
func (n *NoopMetrics) BudgetRevised(kind string)                                       {}
func (n *NoopMetrics) NotifySent(stage string)                                         {}
func (n *NoopMetrics) NotifyFailed(stage string, reason string)                        {}
func (n *NoopMetrics) CircuitStateChanged(target string, state circuit.State)          {}
func (n *NoopMetrics) RemindScanned(count int)                                         {}
func (n *NoopMetrics) RemindSent(stage string)                                         {}
func (n *NoopMetrics) LockAcquired(duration time.Duration)                             {}
func (n *NoopMetrics) LockFailed(reason string)                                        {}
