package approvalflow

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"approvalflow/event"
	"approvalflow/metrics"
)

// CreateResult holds the outcome of an idempotent creation.
type CreateResult struct {
	// Request is the created record including the store-assigned number.
	Request *Request

	// Attempts is the number of insert attempts made.
	Attempts int
}

// IdempotentCreator submits new requests to the store, tolerating
// request-number collision races without duplicating or losing the
// submission. The store assigns the request number atomically; the
// creator always submits without one and retries only when the insert
// failed on a number collision.
//
// Transport failures are never retried automatically. The outcome of
// the prior attempt is unknown and a blind retry risks double
// submission, so those surface as ErrOutcomeUnknown for the caller to
// resolve.
type IdempotentCreator struct {
	store   Store
	config  Config
	events  event.EventBus
	metrics metrics.Metrics

	// sleep and jitter are injectable so retry schedules can be
	// tested without real timers.
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(max time.Duration) time.Duration
}

// CreatorOption configures an IdempotentCreator.
type CreatorOption func(*IdempotentCreator)

// WithCreatorConfig sets the configuration.
func WithCreatorConfig(cfg Config) CreatorOption {
	return func(c *IdempotentCreator) {
		c.config = cfg
	}
}

// WithCreatorEvents sets the event bus.
func WithCreatorEvents(bus event.EventBus) CreatorOption {
	return func(c *IdempotentCreator) {
		c.events = bus
	}
}

// WithCreatorMetrics sets the metrics collector.
func WithCreatorMetrics(m metrics.Metrics) CreatorOption {
	return func(c *IdempotentCreator) {
		c.metrics = m
	}
}

// NewIdempotentCreator creates an IdempotentCreator around the store.
func NewIdempotentCreator(store Store, opts ...CreatorOption) *IdempotentCreator {
	c := &IdempotentCreator{
		store:   store,
		config:  DefaultConfig(),
		events:  &event.NoOpEventBus{},
		metrics: &metrics.NoopMetrics{},
		sleep:   sleepContext,
		jitter:  randomDuration,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Create inserts the request, retrying number collisions with backoff.
// On success the returned request carries the assigned request number.
func (c *IdempotentCreator) Create(ctx context.Context, req *Request) (*CreateResult, error) {
	var lastErr error

	for attempt := 1; attempt <= c.config.MaxCreateAttempts; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx, c.backoffFor(attempt)); err != nil {
				return nil, err
			}
		}

		created, err := c.store.Insert(ctx, req)
		if err == nil {
			c.metrics.RequestCreated(created.Kind)
			c.metrics.CreateAttempts(created.Kind, attempt)
			c.publishCreated(ctx, created)
			return &CreateResult{Request: created, Attempts: attempt}, nil
		}

		switch StoreCodeOf(err) {
		case CodeDuplicateNumber:
			// Benign race on the number sequence, retry
			lastErr = err

		case CodeTimeout:
			c.metrics.RequestCreateFailed(req.Kind, "outcome_unknown")
			return nil, fmt.Errorf("%w: %v", ErrOutcomeUnknown, err)

		default:
			// Foreign key and other validation failures will not
			// succeed on retry
			c.metrics.RequestCreateFailed(req.Kind, string(StoreCodeOf(err)))
			return nil, err
		}
	}

	c.metrics.RequestCreateFailed(req.Kind, "max_attempts")
	c.events.Publish(ctx, event.NewEvent(event.EventAlertCritical).
		WithActor(req.RequesterID).
		WithData("message", fmt.Sprintf("request creation exhausted %d attempts", c.config.MaxCreateAttempts)).
		WithError(lastErr))
	return nil, fmt.Errorf("%w: %v", ErrMaxAttemptsExceeded, lastErr)
}

// backoffFor computes the delay before the given attempt. The first
// retries use pure jitter since the number sequence is atomic and the
// next attempt is very likely to succeed. Later retries switch to
// exponential backoff to avoid a retry storm when the collisions are
// systemic rather than transient.
func (c *IdempotentCreator) backoffFor(attempt int) time.Duration {
	if attempt <= 3 {
		return c.jitter(c.config.CollisionJitterMax)
	}

	backoff := c.config.CreateBaseBackoff
	for i := 0; i < attempt-2; i++ {
		backoff *= 2
	}
	return backoff + c.jitter(c.config.CreateBackoffJitter)
}

func (c *IdempotentCreator) publishCreated(ctx context.Context, req *Request) {
	ev := event.NewEvent(event.EventRequestCreated).
		WithRequest(req.ID, req.RequestNumber).
		WithActor(req.RequesterID).
		WithData("status", string(req.Status))
	c.events.Publish(ctx, ev)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func randomDuration(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}
