package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"approvalflow/circuit"
	circuitmem "approvalflow/circuit/memory"
)

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

func notificationFor(userID string) Notification {
	return Notification{
		UserID:        userID,
		RequestID:     "r-1",
		RequestNumber: "TR-00001",
		Stage:         "hr",
		Message:       "request TR-00001 awaits hr approval",
	}
}

// ============================================================
// Delivery
// ============================================================

func TestDispatchDeliversAll(t *testing.T) {
	notifier := NewMemoryNotifier()
	d := NewDispatcher(notifier)

	var batch []Notification
	for i := 0; i < 20; i++ {
		batch = append(batch, notificationFor(fmt.Sprintf("u-%d", i)))
	}
	d.DispatchWait(context.Background(), batch)

	if got := len(notifier.Sent()); got != 20 {
		t.Fatalf("delivered = %d, want 20", got)
	}
}

func TestDispatchEmptyBatch(t *testing.T) {
	d := NewDispatcher(NewMemoryNotifier())
	d.DispatchWait(context.Background(), nil)
	d.Wait()
}

func TestDispatchRespectsConcurrencyLimit(t *testing.T) {
	var mu sync.Mutex
	inFlight, peak := 0, 0

	notifier := NotifierFunc(func(_ context.Context, _ Notification) error {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return nil
	})

	cfg := DefaultDispatcherConfig()
	cfg.MaxConcurrent = 3
	d := NewDispatcher(notifier, WithDispatcherConfig(cfg))

	var batch []Notification
	for i := 0; i < 12; i++ {
		batch = append(batch, notificationFor(fmt.Sprintf("u-%d", i)))
	}
	d.DispatchWait(context.Background(), batch)

	if peak > 3 {
		t.Fatalf("peak concurrency = %d, want <= 3", peak)
	}
}

// ============================================================
// Failures
// ============================================================

func TestDispatchFailureHandler(t *testing.T) {
	notifier := NewMemoryNotifier()
	notifier.FailFor("u-down", errors.New("mailbox full"))

	var mu sync.Mutex
	var failed []Notification
	d := NewDispatcher(notifier,
		WithLogger(nopLogger{}),
		WithFailureHandler(func(n Notification, _ error) {
			mu.Lock()
			failed = append(failed, n)
			mu.Unlock()
		}),
	)

	d.DispatchWait(context.Background(), []Notification{
		notificationFor("u-ok"),
		notificationFor("u-down"),
	})

	if got := len(notifier.SentTo("u-ok")); got != 1 {
		t.Fatalf("healthy recipient deliveries = %d, want 1", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(failed) != 1 || failed[0].UserID != "u-down" {
		t.Fatalf("failures = %+v", failed)
	}
}

func TestDispatchBreakerIsolatesRecipient(t *testing.T) {
	notifier := NewMemoryNotifier()
	notifier.FailFor("u-down", errors.New("gateway unavailable"))

	breaker := circuitmem.NewMemoryBreaker()
	var mu sync.Mutex
	var errs []error
	d := NewDispatcher(notifier,
		WithBreaker(breaker),
		WithLogger(nopLogger{}),
		WithFailureHandler(func(_ Notification, err error) {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}),
	)

	// Enough consecutive failures to trip the recipient's breaker, one
	// by one so the counter is deterministic.
	threshold := circuit.DefaultBreakerConfig().Threshold
	for i := 0; i < threshold+2; i++ {
		d.DispatchWait(context.Background(), []Notification{notificationFor("u-down")})
	}

	if state := breaker.Get("u-down").State(); state != circuit.StateOpen {
		t.Fatalf("breaker state = %s, want %s", state, circuit.StateOpen)
	}

	mu.Lock()
	var open int
	for _, err := range errs {
		if errors.Is(err, circuit.ErrOpen) {
			open++
		}
	}
	mu.Unlock()
	if open == 0 {
		t.Fatalf("no delivery short-circuited after the breaker opened")
	}

	// The open breaker is per recipient; others still deliver.
	d.DispatchWait(context.Background(), []Notification{notificationFor("u-ok")})
	if got := len(notifier.SentTo("u-ok")); got != 1 {
		t.Fatalf("healthy recipient deliveries = %d, want 1", got)
	}
}

// ============================================================
// Configuration
// ============================================================

func TestDispatcherConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*DispatcherConfig)
		wantErr bool
	}{
		{"defaults", func(*DispatcherConfig) {}, false},
		{"zero timeout", func(c *DispatcherConfig) { c.SendTimeout = 0 }, true},
		{"negative timeout", func(c *DispatcherConfig) { c.SendTimeout = -time.Second }, true},
		{"zero concurrency", func(c *DispatcherConfig) { c.MaxConcurrent = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultDispatcherConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
