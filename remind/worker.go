// Package remind provides the reminder worker for stale pending requests.
//
// A request can sit at one stage for days when the approver misses the
// original notification. The worker periodically scans for pending
// requests whose last update is older than a threshold and re-sends the
// notification to the stage owner.
package remind

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"approvalflow"
	"approvalflow/event"
	"approvalflow/lock"
	"approvalflow/metrics"
	"approvalflow/notify"
)

// Config holds the configuration for the reminder worker.
type Config struct {
	// ScanInterval is the interval between reminder scans.
	ScanInterval time.Duration
	// StaleThreshold is the age after which a pending request is reminded.
	StaleThreshold time.Duration
	// LockTTL is the TTL for per-request scan locks.
	LockTTL time.Duration
}

// DefaultConfig returns the default configuration for the reminder worker.
func DefaultConfig() Config {
	return Config{
		ScanInterval:   1 * time.Hour,
		StaleThreshold: 48 * time.Hour,
		LockTTL:        30 * time.Second,
	}
}

// Logger defines the logging interface.
type Logger interface {
	Printf(format string, v ...any)
}

type defaultLogger struct{}

func (l *defaultLogger) Printf(format string, v ...any) {
	log.Printf("[RemindWorker] "+format, v...)
}

// Worker periodically scans for stale pending requests and re-notifies
// the stage owner. Multiple instances coordinate through per-request
// advisory locks so each reminder is sent once per scan.
type Worker struct {
	store      approvalflow.Store
	locker     lock.Locker
	dispatcher *notify.Dispatcher
	events     event.EventBus
	metrics    metrics.Metrics
	config     Config
	logger     Logger

	// State
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex

	// Stats
	scannedCount int64
	sentCount    int64
	skippedCount int64
	statsMu      sync.RWMutex
}

// WorkerOption is a function that configures the Worker.
type WorkerOption func(*Worker)

// WithStore sets the store for the worker.
func WithStore(s approvalflow.Store) WorkerOption {
	return func(w *Worker) {
		w.store = s
	}
}

// WithLocker sets the locker for the worker.
func WithLocker(l lock.Locker) WorkerOption {
	return func(w *Worker) {
		w.locker = l
	}
}

// WithDispatcher sets the notification dispatcher for the worker.
func WithDispatcher(d *notify.Dispatcher) WorkerOption {
	return func(w *Worker) {
		w.dispatcher = d
	}
}

// WithEventBus sets the event bus for the worker.
func WithEventBus(e event.EventBus) WorkerOption {
	return func(w *Worker) {
		w.events = e
	}
}

// WithMetrics sets the metrics collector for the worker.
func WithMetrics(m metrics.Metrics) WorkerOption {
	return func(w *Worker) {
		w.metrics = m
	}
}

// WithConfig sets the configuration for the worker.
func WithConfig(cfg Config) WorkerOption {
	return func(w *Worker) {
		w.config = cfg
	}
}

// WithLogger sets the logger for the worker.
func WithLogger(l Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = l
	}
}

// NewWorker creates a new reminder worker with the given options.
func NewWorker(opts ...WorkerOption) *Worker {
	w := &Worker{
		config:  DefaultConfig(),
		logger:  &defaultLogger{},
		metrics: &metrics.NoopMetrics{},
		stopCh:  make(chan struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Start starts the reminder worker. It runs in the background and
// periodically scans for stale pending requests.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("reminder worker already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)

	w.logger.Printf("started with interval=%v, staleThreshold=%v", w.config.ScanInterval, w.config.StaleThreshold)
	return nil
}

// Stop stops the reminder worker gracefully.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	w.wg.Wait()
	w.logger.Printf("stopped")
}

// IsRunning returns true if the worker is running.
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// run is the main loop of the reminder worker.
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.ScanInterval)
	defer ticker.Stop()

	// Run initial scan immediately
	w.ScanOnce(ctx)

	for {
		select {
		case <-ticker.C:
			w.ScanOnce(ctx)
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// ScanOnce performs a single reminder scan. Exposed for tests and
// operator-triggered scans.
func (w *Worker) ScanOnce(ctx context.Context) {
	w.publishEvent(ctx, event.NewEvent(event.EventRemindScan))

	stale, err := w.store.ListPendingOlderThan(ctx, w.config.StaleThreshold)
	if err != nil {
		w.logger.Printf("failed to list stale pending requests: %v", err)
		return
	}

	w.incrementScanned(int64(len(stale)))
	w.metrics.RemindScanned(len(stale))

	for _, req := range stale {
		w.remind(ctx, req)
	}
}

// remind re-notifies the owner of the request's current stage.
func (w *Worker) remind(ctx context.Context, req *approvalflow.Request) {
	if w.locker != nil {
		handle, err := w.locker.Acquire(ctx, "remind:"+req.ID, w.config.LockTTL)
		if err != nil {
			// Another instance is reminding this request
			w.incrementSkipped()
			return
		}
		defer handle.Release(ctx)
	}

	// Reload to make sure the request is still pending at the same stage
	current, err := w.store.Get(ctx, req.ID)
	if err != nil {
		w.logger.Printf("failed to reload request %s: %v", req.ID, err)
		return
	}

	stage, ok := current.CurrentStage()
	if !ok {
		w.incrementSkipped()
		return
	}

	if w.dispatcher != nil {
		role, _ := approvalflow.RoleForStage(stage)
		w.dispatcher.Dispatch(ctx, []notify.Notification{{
			UserID:        string(role),
			RequestID:     current.ID,
			RequestNumber: current.RequestNumber,
			Stage:         string(stage),
			Message: fmt.Sprintf("request %s has been awaiting %s approval since %s",
				current.RequestNumber, stage, current.UpdatedAt.Format(time.RFC3339)),
		}})
	}

	w.incrementSent()
	w.metrics.RemindSent(string(stage))
	w.publishEvent(ctx, event.NewEvent(event.EventRemindSent).
		WithRequest(current.ID, current.RequestNumber).
		WithStage(string(stage)))
	w.logger.Printf("reminded %s for request %s (pending since %v)", stage, current.ID, current.UpdatedAt)
}

// publishEvent publishes an event to the event bus.
func (w *Worker) publishEvent(ctx context.Context, e event.Event) {
	if w.events != nil {
		w.events.Publish(ctx, e)
	}
}

// Stats returns the worker counters: scanned, sent, skipped.
func (w *Worker) Stats() (scanned, sent, skipped int64) {
	w.statsMu.RLock()
	defer w.statsMu.RUnlock()
	return w.scannedCount, w.sentCount, w.skippedCount
}

func (w *Worker) incrementScanned(n int64) {
	w.statsMu.Lock()
	w.scannedCount += n
	w.statsMu.Unlock()
}

func (w *Worker) incrementSent() {
	w.statsMu.Lock()
	w.sentCount++
	w.statsMu.Unlock()
}

func (w *Worker) incrementSkipped() {
	w.statsMu.Lock()
	w.skippedCount++
	w.statsMu.Unlock()
}
