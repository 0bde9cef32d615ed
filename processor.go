package approvalflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"approvalflow/event"
	"approvalflow/lock"
	"approvalflow/metrics"
	"approvalflow/notify"
)

// Logger is the minimal logging interface used by the engine.
type Logger interface {
	Printf(format string, v ...any)
}

// ApprovalActionProcessor orchestrates a single approval decision:
// it validates preconditions, computes the transition through the
// lifecycle state machine, persists it through a guarded update, and
// fires the resulting notifications.
//
// The status transition is the source of truth. History and
// notifications are best effort after the update commits; their
// failures are logged and published but never roll back the
// transition.
type ApprovalActionProcessor struct {
	store      Store
	config     Config
	locker     lock.Locker
	dispatcher *notify.Dispatcher
	events     event.EventBus
	metrics    metrics.Metrics
	logger     Logger

	now func() time.Time
}

// ProcessorOption configures an ApprovalActionProcessor.
type ProcessorOption func(*ApprovalActionProcessor)

// WithProcessorConfig sets the configuration.
func WithProcessorConfig(cfg Config) ProcessorOption {
	return func(p *ApprovalActionProcessor) {
		p.config = cfg
	}
}

// WithProcessorLocker sets the advisory locker.
func WithProcessorLocker(l lock.Locker) ProcessorOption {
	return func(p *ApprovalActionProcessor) {
		p.locker = l
	}
}

// WithProcessorDispatcher sets the notification dispatcher.
func WithProcessorDispatcher(d *notify.Dispatcher) ProcessorOption {
	return func(p *ApprovalActionProcessor) {
		p.dispatcher = d
	}
}

// WithProcessorEvents sets the event bus.
func WithProcessorEvents(bus event.EventBus) ProcessorOption {
	return func(p *ApprovalActionProcessor) {
		p.events = bus
	}
}

// WithProcessorMetrics sets the metrics collector.
func WithProcessorMetrics(m metrics.Metrics) ProcessorOption {
	return func(p *ApprovalActionProcessor) {
		p.metrics = m
	}
}

// WithProcessorLogger sets the logger.
func WithProcessorLogger(l Logger) ProcessorOption {
	return func(p *ApprovalActionProcessor) {
		p.logger = l
	}
}

// NewApprovalActionProcessor creates a processor around the store.
func NewApprovalActionProcessor(store Store, opts ...ProcessorOption) *ApprovalActionProcessor {
	p := &ApprovalActionProcessor{
		store:   store,
		config:  DefaultConfig(),
		events:  &event.NoOpEventBus{},
		metrics: &metrics.NoopMetrics{},
		logger:  log.New(os.Stderr, "[approvalflow] ", log.LstdFlags),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Decide processes one operator decision against a request. On success
// it returns the updated record.
func (p *ApprovalActionProcessor) Decide(ctx context.Context, d Decision) (*Request, error) {
	start := p.now()

	if err := p.checkPreconditions(d); err != nil {
		p.metrics.DecisionRejected(string(d.Action), "precondition")
		return nil, err
	}

	release, err := p.acquireLock(ctx, d.RequestID)
	if err != nil {
		return nil, err
	}
	defer release()

	req, err := p.store.Get(ctx, d.RequestID)
	if err != nil {
		return nil, err
	}

	transition, err := ApplyDecision(req, d, p.now())
	if err != nil {
		p.metrics.DecisionRejected(string(d.Action), "transition")
		return nil, err
	}

	updated, err := p.commit(ctx, req, transition)
	if err != nil {
		return nil, err
	}

	stage := string(transition.History.ActorRole)
	if s, ok := StageForStatus(transition.PreviousStatus); ok {
		stage = string(s)
	}
	p.metrics.DecisionProcessed(string(d.Action), stage, p.now().Sub(start))

	switch {
	case transition.NewStatus == StatusApproved:
		p.metrics.RequestApproved(updated.Kind)
		p.publish(ctx, event.EventRequestApproved, updated, d.ActorID, stage)
	case transition.NewStatus == StatusRejected:
		p.publish(ctx, event.EventRequestRejected, updated, d.ActorID, stage)
	case transition.NewStatus == StatusReturned:
		p.metrics.RequestReturned(stage)
		p.publish(ctx, event.EventRequestReturned, updated, d.ActorID, stage)
	default:
		p.publish(ctx, event.EventRequestAdvanced, updated, d.ActorID, stage)
	}
	if transition.Patch.Budget != nil {
		p.publish(ctx, event.EventBudgetRevised, updated, d.ActorID, stage)
		p.metrics.BudgetRevised(updated.Kind)
	}

	p.notifyTargets(ctx, updated, d.ActorName, transition.Notify)
	return updated, nil
}

// Resubmit returns a revised request to the approval flow after it was
// sent back to the requester.
func (p *ApprovalActionProcessor) Resubmit(ctx context.Context, requestID, actorID string) (*Request, error) {
	release, err := p.acquireLock(ctx, requestID)
	if err != nil {
		return nil, err
	}
	defer release()

	req, err := p.store.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}

	transition, err := ApplyResubmit(req, actorID, p.now())
	if err != nil {
		return nil, err
	}

	updated, err := p.commit(ctx, req, transition)
	if err != nil {
		return nil, err
	}

	p.publish(ctx, event.EventRequestResubmitted, updated, actorID, "")
	p.notifyTargets(ctx, updated, req.RequesterName, transition.Notify)
	return updated, nil
}

// Cancel withdraws an in-flight request.
func (p *ApprovalActionProcessor) Cancel(ctx context.Context, requestID, actorID string) (*Request, error) {
	release, err := p.acquireLock(ctx, requestID)
	if err != nil {
		return nil, err
	}
	defer release()

	req, err := p.store.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}

	transition, err := ApplyCancel(req, actorID, p.now())
	if err != nil {
		return nil, err
	}

	updated, err := p.commit(ctx, req, transition)
	if err != nil {
		return nil, err
	}

	p.publish(ctx, event.EventRequestCancelled, updated, actorID, "")
	return updated, nil
}

// checkPreconditions fails fast on inputs that must never reach the
// store: a missing signature or reason, or a return attempted by a role
// that is not permitted to return.
func (p *ApprovalActionProcessor) checkPreconditions(d Decision) error {
	switch d.Action {
	case ActionApprove:
		if d.Signature == "" {
			return NewValidationError("signature", "required to approve")
		}
	case ActionReject:
		if d.Reason == "" {
			return NewValidationError("reason", "required to reject")
		}
	case ActionReturn:
		if d.Reason == "" {
			return NewValidationError("reason", "required to return")
		}
		if !CanReturn(d.Role) {
			return fmt.Errorf("%w: role %s", ErrReturnNotPermitted, d.Role)
		}
	default:
		return fmt.Errorf("%w: action %q", ErrInvalidTransition, d.Action)
	}
	return nil
}

// acquireLock takes the advisory per-request lock when a locker is
// configured. A held lock means another decision is in flight; that is
// surfaced as a conflict. Lock infrastructure failures are logged and
// ignored since the guarded update still protects correctness.
func (p *ApprovalActionProcessor) acquireLock(ctx context.Context, requestID string) (func(), error) {
	if p.locker == nil {
		return func() {}, nil
	}

	start := p.now()
	handle, err := p.locker.Acquire(ctx, requestID, p.config.LockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			p.metrics.LockFailed("held")
			return nil, fmt.Errorf("%w: %v", ErrStaleStatus, err)
		}
		p.metrics.LockFailed("error")
		p.logger.Printf("advisory lock for %s unavailable: %v", requestID, err)
		p.events.Publish(ctx, event.NewEvent(event.EventAlertWarning).
			WithRequest(requestID, "").
			WithData("message", "advisory lock unavailable").
			WithError(err))
		return func() {}, nil
	}

	p.metrics.LockAcquired(p.now().Sub(start))
	return func() {
		if err := handle.Release(context.WithoutCancel(ctx)); err != nil {
			p.logger.Printf("release lock for %s: %v", requestID, err)
		}
	}, nil
}

// commit applies the guarded update and appends the history entry.
func (p *ApprovalActionProcessor) commit(ctx context.Context, req *Request, transition *Transition) (*Request, error) {
	updated, err := p.store.Update(ctx, req.ID, transition.PreviousStatus, transition.Patch)
	if err != nil {
		if StoreCodeOf(err) == CodeConflict {
			return nil, fmt.Errorf("%w: %v", ErrStaleStatus, err)
		}
		return nil, err
	}

	entry := transition.History
	if err := p.store.InsertHistory(ctx, &entry); err != nil {
		// The transition is already committed; the audit gap is
		// surfaced but must not fail the decision.
		p.logger.Printf("history append for %s failed: %v", req.ID, err)
	}

	return updated, nil
}

func (p *ApprovalActionProcessor) notifyTargets(ctx context.Context, req *Request, actorName string, targets []NotifyTarget) {
	if p.dispatcher == nil || len(targets) == 0 {
		return
	}

	notifications := make([]notify.Notification, 0, len(targets))
	for _, t := range targets {
		n := notify.Notification{
			RequestID:     req.ID,
			RequestNumber: req.RequestNumber,
			ActorName:     actorName,
		}
		switch {
		case t.Requester:
			n.UserID = req.RequesterID
			n.Message = fmt.Sprintf("request %s is now %s", req.RequestNumber, req.Status)
		case t.UserID != "":
			n.UserID = t.UserID
			n.Stage = string(t.Stage)
			n.Message = fmt.Sprintf("request %s awaits your %s approval", req.RequestNumber, t.Stage)
		default:
			// No individual assignee, address the stage's role group
			role, _ := RoleForStage(t.Stage)
			n.UserID = string(role)
			n.Stage = string(t.Stage)
			n.Message = fmt.Sprintf("request %s awaits %s approval", req.RequestNumber, t.Stage)
		}
		notifications = append(notifications, n)
	}

	// Delivery outlives the request context; the transition is already
	// committed.
	p.dispatcher.Dispatch(context.WithoutCancel(ctx), notifications)
	for _, n := range notifications {
		p.metrics.NotifySent(n.Stage)
	}
}

func (p *ApprovalActionProcessor) publish(ctx context.Context, eventType event.EventType, req *Request, actorID, stage string) {
	ev := event.NewEvent(eventType).
		WithRequest(req.ID, req.RequestNumber).
		WithStage(stage).
		WithActor(actorID).
		WithData("status", string(req.Status))
	p.events.Publish(ctx, ev)
}
