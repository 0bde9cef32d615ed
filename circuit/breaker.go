// Package circuit provides the circuit breaker interface used to shield
// the engine from failing notification targets.
package circuit

import (
	"context"
	"errors"
	"time"
)

// ErrOpen indicates the circuit is open and the call was not attempted.
var ErrOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state.
type State int

const (
	// StateClosed is the normal state where calls are allowed
	StateClosed State = iota
	// StateOpen is the state where calls are blocked
	StateOpen
	// StateHalfOpen is the state where limited calls probe for recovery
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// BreakerConfig holds the configuration for a circuit breaker.
type BreakerConfig struct {
	// Threshold is the number of consecutive failures before opening
	Threshold int
	// Timeout is the wait before transitioning from open to half-open
	Timeout time.Duration
	// HalfOpenMaxReqs is the maximum number of calls allowed half-open
	HalfOpenMaxReqs int
}

// DefaultBreakerConfig returns the default circuit breaker configuration.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Threshold:       5,
		Timeout:         30 * time.Second,
		HalfOpenMaxReqs: 3,
	}
}

// BreakerCounts holds the statistics for a circuit breaker.
type BreakerCounts struct {
	Requests             int64
	TotalSuccesses       int64
	TotalFailures        int64
	ConsecutiveSuccesses int64
	ConsecutiveFailures  int64
}

// Breaker manages one circuit breaker per named target.
type Breaker interface {
	// Get returns the circuit breaker for the target with default config
	Get(target string) CircuitBreaker
	// GetWithConfig returns the circuit breaker for the target with custom config
	GetWithConfig(target string, config BreakerConfig) CircuitBreaker
}

// CircuitBreaker is a single circuit breaker.
type CircuitBreaker interface {
	// Execute runs fn under circuit breaker protection
	Execute(ctx context.Context, fn func() error) error
	// State returns the current state
	State() State
	// Reset manually resets the breaker to closed
	Reset()
	// Counts returns the current statistics
	Counts() BreakerCounts
}
