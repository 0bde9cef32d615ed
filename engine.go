package approvalflow

import (
	"context"

	"approvalflow/event"
	"approvalflow/lock"
	"approvalflow/metrics"
	"approvalflow/notify"
	"approvalflow/tracing"
)

// Engine is the main entry point for the approval workflow engine.
// It composes the idempotent creator and the decision processor over a
// shared store, event bus, and notification dispatcher.
type Engine struct {
	creator   *IdempotentCreator
	processor *ApprovalActionProcessor

	// Dependencies
	store      Store
	locker     lock.Locker
	dispatcher *notify.Dispatcher
	events     event.EventBus
	metrics    metrics.Metrics
	tracer     tracing.Tracer
	logger     Logger

	// Configuration
	config Config
}

// EngineOption is a function that configures the Engine.
type EngineOption func(*Engine)

// WithEngineStore sets the store for the engine.
func WithEngineStore(s Store) EngineOption {
	return func(e *Engine) {
		e.store = s
	}
}

// WithEngineLocker sets the advisory locker for the engine.
func WithEngineLocker(l lock.Locker) EngineOption {
	return func(e *Engine) {
		e.locker = l
	}
}

// WithEngineDispatcher sets the notification dispatcher for the engine.
func WithEngineDispatcher(d *notify.Dispatcher) EngineOption {
	return func(e *Engine) {
		e.dispatcher = d
	}
}

// WithEngineEventBus sets the event bus for the engine.
func WithEngineEventBus(bus event.EventBus) EngineOption {
	return func(e *Engine) {
		e.events = bus
	}
}

// WithEngineMetrics sets the metrics collector for the engine.
func WithEngineMetrics(m metrics.Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithEngineTracer sets the tracer for the engine.
func WithEngineTracer(t tracing.Tracer) EngineOption {
	return func(e *Engine) {
		e.tracer = t
	}
}

// WithEngineLogger sets the logger for the engine.
func WithEngineLogger(l Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithEngineConfig sets the configuration for the engine.
func WithEngineConfig(cfg Config) EngineOption {
	return func(e *Engine) {
		e.config = cfg
	}
}

// NewEngine creates a new Engine with the given options.
// The engine must be configured with at least a store before use.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		events:  &event.NoOpEventBus{},
		metrics: &metrics.NoopMetrics{},
		tracer:  &tracing.NoopTracer{},
		config:  DefaultConfig(),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.creator = NewIdempotentCreator(e.store,
		WithCreatorConfig(e.config),
		WithCreatorEvents(e.events),
		WithCreatorMetrics(e.metrics),
	)

	processorOpts := []ProcessorOption{
		WithProcessorConfig(e.config),
		WithProcessorEvents(e.events),
		WithProcessorMetrics(e.metrics),
	}
	if e.locker != nil {
		processorOpts = append(processorOpts, WithProcessorLocker(e.locker))
	}
	if e.dispatcher != nil {
		processorOpts = append(processorOpts, WithProcessorDispatcher(e.dispatcher))
	}
	if e.logger != nil {
		processorOpts = append(processorOpts, WithProcessorLogger(e.logger))
	}
	e.processor = NewApprovalActionProcessor(e.store, processorOpts...)

	return e
}

// NewRequest creates a request builder for the given kind.
func (e *Engine) NewRequest(kind string) *RequestBuilder {
	return NewRequest(kind)
}

// Submit persists a built request, retrying number collisions.
func (e *Engine) Submit(ctx context.Context, req *Request) (*CreateResult, error) {
	ctx, span := e.tracer.StartSubmit(ctx, req.Kind)
	defer span.End()

	result, err := e.creator.Create(ctx, req)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	return result, nil
}

// Decide processes one operator decision.
func (e *Engine) Decide(ctx context.Context, d Decision) (*Request, error) {
	stage := ""
	if s, ok := StageForRole(d.Role); ok {
		stage = string(s)
	}
	ctx, span := e.tracer.StartDecision(ctx, d.RequestID, string(d.Action), stage)
	defer span.End()

	updated, err := e.processor.Decide(ctx, d)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	return updated, nil
}

// Resubmit returns a revised request to the approval flow.
func (e *Engine) Resubmit(ctx context.Context, requestID, actorID string) (*Request, error) {
	return e.processor.Resubmit(ctx, requestID, actorID)
}

// Cancel withdraws an in-flight request.
func (e *Engine) Cancel(ctx context.Context, requestID, actorID string) (*Request, error) {
	return e.processor.Cancel(ctx, requestID, actorID)
}

// Get retrieves a request by ID.
func (e *Engine) Get(ctx context.Context, id string) (*Request, error) {
	return e.store.Get(ctx, id)
}

// List lists requests matching the filter.
func (e *Engine) List(ctx context.Context, filter *Filter) ([]*Request, int64, error) {
	return e.store.List(ctx, filter)
}

// History retrieves a request's audit trail, oldest first.
func (e *Engine) History(ctx context.Context, requestID string) ([]*HistoryEntry, error) {
	return e.store.History(ctx, requestID)
}

// Progress renders a request's stage progress table.
func (e *Engine) Progress(ctx context.Context, requestID string) ([]StageProgress, error) {
	req, err := e.store.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return Progress(req), nil
}

// Subscribe subscribes a handler to a specific event type.
func (e *Engine) Subscribe(eventType event.EventType, handler event.EventHandler) error {
	return e.events.Subscribe(eventType, handler)
}

// SubscribeAll subscribes a handler to all events.
func (e *Engine) SubscribeAll(handler event.EventHandler) error {
	return e.events.SubscribeAll(handler)
}

// Store exposes the underlying store for supporting services.
func (e *Engine) Store() Store {
	return e.store
}
