package approvalflow

import (
	"time"

	"approvalflow/circuit"
)

// Config holds the configuration for the approval engine.
type Config struct {
	// Create retry configuration
	MaxCreateAttempts  int           // Maximum insert attempts on number collision, default 8
	CollisionJitterMax time.Duration // Random delay ceiling for the first retries, default 200ms
	CreateBaseBackoff  time.Duration // Base interval for exponential backoff, default 1s
	CreateBackoffJitter time.Duration // Random addition on top of exponential backoff, default 300ms

	// Lock configuration
	LockTTL time.Duration // Advisory decision lock TTL, default 30s

	// Circuit breaker configuration for notification delivery
	CircuitThreshold    int           // Consecutive failure threshold, default 5
	CircuitTimeout      time.Duration // Recovery time before half-open, default 30s
	CircuitHalfOpenReqs int           // Half-open state max requests, default 3

	// Reminder configuration
	RemindInterval time.Duration // Stale pending scan interval, default 1h
	StaleThreshold time.Duration // Age after which a pending request is reminded, default 48h

	// Timeout configuration
	StoreTimeout time.Duration // Single store operation timeout, default 5s
}

// DefaultConfig returns the default configuration for the approval engine.
func DefaultConfig() Config {
	return Config{
		MaxCreateAttempts:   8,
		CollisionJitterMax:  200 * time.Millisecond,
		CreateBaseBackoff:   1 * time.Second,
		CreateBackoffJitter: 300 * time.Millisecond,
		LockTTL:             30 * time.Second,
		CircuitThreshold:    5,
		CircuitTimeout:      30 * time.Second,
		CircuitHalfOpenReqs: 3,
		RemindInterval:      1 * time.Hour,
		StaleThreshold:      48 * time.Hour,
		StoreTimeout:        5 * time.Second,
	}
}

// Option is a function that modifies the Config.
type Option func(*Config)

// WithMaxCreateAttempts sets the maximum insert attempts on number collision.
func WithMaxCreateAttempts(attempts int) Option {
	return func(c *Config) {
		c.MaxCreateAttempts = attempts
	}
}

// WithCollisionJitterMax sets the random delay ceiling for the first retries.
func WithCollisionJitterMax(max time.Duration) Option {
	return func(c *Config) {
		c.CollisionJitterMax = max
	}
}

// WithCreateBaseBackoff sets the base interval for exponential backoff.
func WithCreateBaseBackoff(base time.Duration) Option {
	return func(c *Config) {
		c.CreateBaseBackoff = base
	}
}

// WithCreateBackoffJitter sets the random addition on top of exponential backoff.
func WithCreateBackoffJitter(jitter time.Duration) Option {
	return func(c *Config) {
		c.CreateBackoffJitter = jitter
	}
}

// WithLockTTL sets the advisory decision lock TTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(c *Config) {
		c.LockTTL = ttl
	}
}

// WithCircuitThreshold sets the circuit breaker failure threshold.
func WithCircuitThreshold(threshold int) Option {
	return func(c *Config) {
		c.CircuitThreshold = threshold
	}
}

// WithCircuitTimeout sets the circuit breaker recovery timeout.
func WithCircuitTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.CircuitTimeout = timeout
	}
}

// WithCircuitHalfOpenReqs sets the maximum requests in half-open state.
func WithCircuitHalfOpenReqs(reqs int) Option {
	return func(c *Config) {
		c.CircuitHalfOpenReqs = reqs
	}
}

// WithRemindInterval sets the stale pending scan interval.
func WithRemindInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.RemindInterval = interval
	}
}

// WithStaleThreshold sets the age after which a pending request is reminded.
func WithStaleThreshold(threshold time.Duration) Option {
	return func(c *Config) {
		c.StaleThreshold = threshold
	}
}

// WithStoreTimeout sets the single store operation timeout.
func WithStoreTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.StoreTimeout = timeout
	}
}

// WithConfig applies a complete Config, overriding all values.
func WithConfig(cfg Config) Option {
	return func(c *Config) {
		*c = cfg
	}
}

// ApplyOptions applies the given options to a default config and returns the result.
func ApplyOptions(opts ...Option) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// ToBreakerConfig converts the circuit breaker settings to a BreakerConfig.
func (c *Config) ToBreakerConfig() circuit.BreakerConfig {
	return circuit.BreakerConfig{
		Threshold:       c.CircuitThreshold,
		Timeout:         c.CircuitTimeout,
		HalfOpenMaxReqs: c.CircuitHalfOpenReqs,
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.MaxCreateAttempts <= 0 {
		return ErrInvalidConfig
	}
	if c.CollisionJitterMax < 0 {
		return ErrInvalidConfig
	}
	if c.CreateBaseBackoff <= 0 {
		return ErrInvalidConfig
	}
	if c.CreateBackoffJitter < 0 {
		return ErrInvalidConfig
	}
	if c.LockTTL <= 0 {
		return ErrInvalidConfig
	}
	if c.CircuitThreshold <= 0 {
		return ErrInvalidConfig
	}
	if c.CircuitTimeout <= 0 {
		return ErrInvalidConfig
	}
	if c.CircuitHalfOpenReqs <= 0 {
		return ErrInvalidConfig
	}
	if c.RemindInterval <= 0 {
		return ErrInvalidConfig
	}
	if c.StaleThreshold <= 0 {
		return ErrInvalidConfig
	}
	if c.StoreTimeout <= 0 {
		return ErrInvalidConfig
	}
	return nil
}
