package notify

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"approvalflow/circuit"
)

// Logger is the logging interface used by the dispatcher.
type Logger interface {
	Printf(format string, v ...any)
}

// FailureHandler is invoked when a delivery attempt fails.
type FailureHandler func(n Notification, err error)

// DispatcherConfig controls dispatcher behavior.
type DispatcherConfig struct {
	// SendTimeout bounds each delivery attempt.
	SendTimeout time.Duration

	// MaxConcurrent limits parallel deliveries per Dispatch call.
	MaxConcurrent int
}

// DefaultDispatcherConfig returns the default dispatcher configuration.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		SendTimeout:   5 * time.Second,
		MaxConcurrent: 8,
	}
}

// Validate checks the configuration for obvious mistakes.
func (c DispatcherConfig) Validate() error {
	if c.SendTimeout <= 0 {
		return fmt.Errorf("send timeout must be positive, got %v", c.SendTimeout)
	}
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("max concurrent must be positive, got %d", c.MaxConcurrent)
	}
	return nil
}

// Dispatcher fans notifications out to a Notifier concurrently.
// Delivery is fire and forget from the caller's perspective: failures
// are reported through the failure handler, never returned.
type Dispatcher struct {
	notifier  Notifier
	breaker   circuit.Breaker
	config    DispatcherConfig
	logger    Logger
	onFailure FailureHandler

	wg sync.WaitGroup
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithBreaker protects deliveries with a per-recipient circuit breaker.
func WithBreaker(b circuit.Breaker) DispatcherOption {
	return func(d *Dispatcher) { d.breaker = b }
}

// WithDispatcherConfig overrides the default configuration.
func WithDispatcherConfig(c DispatcherConfig) DispatcherOption {
	return func(d *Dispatcher) { d.config = c }
}

// WithLogger sets the dispatcher logger.
func WithLogger(l Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

// WithFailureHandler sets the callback invoked on delivery failure.
func WithFailureHandler(fn FailureHandler) DispatcherOption {
	return func(d *Dispatcher) { d.onFailure = fn }
}

// NewDispatcher creates a Dispatcher around the given notifier.
func NewDispatcher(notifier Notifier, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		notifier: notifier,
		config:   DefaultDispatcherConfig(),
		logger:   log.New(os.Stderr, "[notify] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch delivers all notifications concurrently and returns immediately.
// Failures go to the failure handler and the log.
func (d *Dispatcher) Dispatch(ctx context.Context, notifications []Notification) {
	if len(notifications) == 0 {
		return
	}

	sem := make(chan struct{}, d.config.MaxConcurrent)
	for _, n := range notifications {
		n := n
		d.wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer d.wg.Done()
			defer func() { <-sem }()
			d.deliver(ctx, n)
		}()
	}
}

// DispatchWait delivers all notifications concurrently and blocks until
// every attempt has completed. Used by tests and shutdown paths.
func (d *Dispatcher) DispatchWait(ctx context.Context, notifications []Notification) {
	d.Dispatch(ctx, notifications)
	d.wg.Wait()
}

// Wait blocks until all in-flight deliveries complete.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, n Notification) {
	sendCtx, cancel := context.WithTimeout(ctx, d.config.SendTimeout)
	defer cancel()

	var err error
	if d.breaker != nil {
		cb := d.breaker.Get(n.UserID)
		err = cb.Execute(sendCtx, func() error {
			return d.notifier.Send(sendCtx, n)
		})
	} else {
		err = d.notifier.Send(sendCtx, n)
	}

	if err != nil {
		d.logger.Printf("delivery to %s for request %s failed: %v", n.UserID, n.RequestID, err)
		if d.onFailure != nil {
			d.onFailure(n, err)
		}
	}
}
