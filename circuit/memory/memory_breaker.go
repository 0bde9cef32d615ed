// Package memory provides an in-process implementation of circuit.Breaker.
package memory

import (
	"context"
	"sync"
	"time"

	"approvalflow/circuit"
)

// MemoryBreaker is an in-memory implementation of the Breaker interface.
type MemoryBreaker struct {
	mu            sync.RWMutex
	breakers      map[string]*memoryCircuitBreaker
	defaultConfig circuit.BreakerConfig
}

// NewMemoryBreaker creates a MemoryBreaker with default configuration.
func NewMemoryBreaker() *MemoryBreaker {
	return NewMemoryBreakerWithConfig(circuit.DefaultBreakerConfig())
}

// NewMemoryBreakerWithConfig creates a MemoryBreaker with a custom default.
func NewMemoryBreakerWithConfig(config circuit.BreakerConfig) *MemoryBreaker {
	return &MemoryBreaker{
		breakers:      make(map[string]*memoryCircuitBreaker),
		defaultConfig: config,
	}
}

// Get returns the circuit breaker for the target with default config.
func (m *MemoryBreaker) Get(target string) circuit.CircuitBreaker {
	return m.GetWithConfig(target, m.defaultConfig)
}

// GetWithConfig returns the circuit breaker for the target with custom config.
func (m *MemoryBreaker) GetWithConfig(target string, config circuit.BreakerConfig) circuit.CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cb, exists := m.breakers[target]; exists {
		return cb
	}

	cb := &memoryCircuitBreaker{target: target, config: config, state: circuit.StateClosed}
	m.breakers[target] = cb
	return cb
}

// memoryCircuitBreaker is an in-memory CircuitBreaker.
type memoryCircuitBreaker struct {
	mu     sync.RWMutex
	target string
	config circuit.BreakerConfig
	state  circuit.State
	counts circuit.BreakerCounts

	openedAt         time.Time
	halfOpenRequests int
}

// Execute runs fn under circuit breaker protection.
func (cb *memoryCircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	err := fn()
	cb.afterRequest(err == nil)
	return err
}

func (cb *memoryCircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case circuit.StateClosed:
		cb.counts.Requests++
		return nil

	case circuit.StateOpen:
		if time.Since(cb.openedAt) >= cb.config.Timeout {
			cb.state = circuit.StateHalfOpen
			cb.halfOpenRequests = 1
			cb.counts.Requests++
			return nil
		}
		return circuit.ErrOpen

	case circuit.StateHalfOpen:
		if cb.halfOpenRequests >= cb.config.HalfOpenMaxReqs {
			return circuit.ErrOpen
		}
		cb.counts.Requests++
		cb.halfOpenRequests++
		return nil

	default:
		return circuit.ErrOpen
	}
}

func (cb *memoryCircuitBreaker) afterRequest(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if success {
		cb.counts.TotalSuccesses++
		cb.counts.ConsecutiveSuccesses++
		cb.counts.ConsecutiveFailures = 0

		if cb.state == circuit.StateHalfOpen &&
			cb.counts.ConsecutiveSuccesses >= int64(cb.config.HalfOpenMaxReqs) {
			cb.state = circuit.StateClosed
			cb.halfOpenRequests = 0
		}
		return
	}

	cb.counts.TotalFailures++
	cb.counts.ConsecutiveFailures++
	cb.counts.ConsecutiveSuccesses = 0

	switch cb.state {
	case circuit.StateClosed:
		if cb.counts.ConsecutiveFailures >= int64(cb.config.Threshold) {
			cb.state = circuit.StateOpen
			cb.openedAt = time.Now()
		}
	case circuit.StateHalfOpen:
		// Any failure half-open reopens the circuit
		cb.state = circuit.StateOpen
		cb.openedAt = time.Now()
		cb.halfOpenRequests = 0
	}
}

// State returns the current state.
func (cb *memoryCircuitBreaker) State() circuit.State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Reset manually resets the breaker to closed.
func (cb *memoryCircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = circuit.StateClosed
	cb.counts = circuit.BreakerCounts{}
	cb.halfOpenRequests = 0
}

// Counts returns the current statistics.
func (cb *memoryCircuitBreaker) Counts() circuit.BreakerCounts {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.counts
}

var _ circuit.Breaker = (*MemoryBreaker)(nil)
var _ circuit.CircuitBreaker = (*memoryCircuitBreaker)(nil)
