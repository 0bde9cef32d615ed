package approvalflow_test

import (
	"context"
	"sync"
	"testing"

	"approvalflow"
	"approvalflow/event"
	lockmem "approvalflow/lock/memory"
	"approvalflow/notify"
	storemem "approvalflow/store/memory"
)

type engineFixture struct {
	engine     *approvalflow.Engine
	store      *storemem.MemoryStore
	notifier   *notify.MemoryNotifier
	dispatcher *notify.Dispatcher
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	store := storemem.NewMemoryStore()
	notifier := notify.NewMemoryNotifier()
	dispatcher := notify.NewDispatcher(notifier)

	engine := approvalflow.NewEngine(
		approvalflow.WithEngineStore(store),
		approvalflow.WithEngineLocker(lockmem.NewMemoryLocker()),
		approvalflow.WithEngineDispatcher(dispatcher),
		approvalflow.WithEngineEventBus(event.NewMemoryEventBus()),
	)

	t.Cleanup(dispatcher.Wait)

	return &engineFixture{engine: engine, store: store, notifier: notifier, dispatcher: dispatcher}
}

func (f *engineFixture) submit(t *testing.T, b *approvalflow.RequestBuilder) *approvalflow.Request {
	t.Helper()

	req, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	result, err := f.engine.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return result.Request
}

func (f *engineFixture) approve(t *testing.T, requestID string, role approvalflow.Role, actorID string) *approvalflow.Request {
	t.Helper()

	updated, err := f.engine.Decide(context.Background(), approvalflow.Decision{
		RequestID: requestID,
		Action:    approvalflow.ActionApprove,
		Role:      role,
		ActorID:   actorID,
		ActorName: "Approver " + actorID,
		Signature: "sig-" + actorID,
	})
	if err != nil {
		t.Fatalf("approve as %s: %v", role, err)
	}
	return updated
}

// ============================================================
// Full lifecycle
// ============================================================

func TestEngineFullApprovalChain(t *testing.T) {
	f := newEngineFixture(t)

	req := f.submit(t, f.engine.NewRequest("trip").
		WithRequester("u-100", "Mara Lindt").
		WithDepartment("dept-sales", true).
		WithExpense("Accommodation", 30000, "conference hotel").
		WithExpense("Transportation", 25000, "flights"))

	if req.RequestNumber != "TR-00001" {
		t.Fatalf("RequestNumber = %q, want TR-00001", req.RequestNumber)
	}
	if req.Status != approvalflow.StatusPendingHead {
		t.Fatalf("Status = %s, want pending_head", req.Status)
	}

	chain := []struct {
		role    approvalflow.Role
		actorID string
	}{
		{approvalflow.RoleHead, "u-head"},
		{approvalflow.RoleParentHead, "u-parent"},
		{approvalflow.RoleAdmin, "u-admin"},
		{approvalflow.RoleComptroller, "u-comp"},
		{approvalflow.RoleHR, "u-hr"},
		{approvalflow.RoleVP, "u-vp"},
		{approvalflow.RolePresident, "u-pres"},
	}
	var last *approvalflow.Request
	for _, step := range chain {
		last = f.approve(t, req.ID, step.role, step.actorID)
	}

	if last.Status != approvalflow.StatusApproved {
		t.Fatalf("final status = %s, want approved", last.Status)
	}
	if len(last.Approvals) != 7 {
		t.Fatalf("approvals = %d, want 7", len(last.Approvals))
	}

	history, err := f.engine.History(context.Background(), req.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 7 {
		t.Fatalf("history entries = %d, want 7", len(history))
	}
	if history[0].ActorRole != approvalflow.RoleHead || history[6].NewStatus != approvalflow.StatusApproved {
		t.Fatalf("history = first %+v, last %+v", history[0], history[6])
	}

	progress, err := f.engine.Progress(context.Background(), req.ID)
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if len(progress) != 7 {
		t.Fatalf("progress rows = %d, want 7", len(progress))
	}
	for _, row := range progress {
		if row.State != approvalflow.StagePassed {
			t.Fatalf("stage %s state = %s, want passed", row.Stage, row.State)
		}
	}
}

func TestEngineNotifiesAlongTheChain(t *testing.T) {
	f := newEngineFixture(t)

	req := f.submit(t, f.engine.NewRequest("seminar").
		WithRequester("u-200", "Joris Bakker").
		WithDepartment("dept-eng", false).
		AsHead())

	// Short chain: admin, hr, vp
	f.approve(t, req.ID, approvalflow.RoleAdmin, "u-admin")
	f.approve(t, req.ID, approvalflow.RoleHR, "u-hr")
	final := f.approve(t, req.ID, approvalflow.RoleVP, "u-vp")

	if final.Status != approvalflow.StatusApproved {
		t.Fatalf("final status = %s, want approved", final.Status)
	}

	f.dispatcher.Wait()

	if got := f.notifier.SentTo(string(approvalflow.RoleHR)); len(got) != 1 {
		t.Fatalf("hr notifications = %d, want 1", len(got))
	}
	if got := f.notifier.SentTo(string(approvalflow.RoleVP)); len(got) != 1 {
		t.Fatalf("vp notifications = %d, want 1", len(got))
	}
	requester := f.notifier.SentTo("u-200")
	if len(requester) != 1 || requester[0].RequestNumber != req.RequestNumber {
		t.Fatalf("requester notifications = %+v", requester)
	}
}

// ============================================================
// Return, resubmit, cancel
// ============================================================

func TestEngineReturnAndResubmit(t *testing.T) {
	f := newEngineFixture(t)

	req := f.submit(t, f.engine.NewRequest("trip").
		WithRequester("u-100", "Mara Lindt").
		WithDepartment("dept-sales", true).
		WithExpense("Accommodation", 9000, "hotel"))

	f.approve(t, req.ID, approvalflow.RoleHead, "u-head")
	f.approve(t, req.ID, approvalflow.RoleParentHead, "u-parent")
	f.approve(t, req.ID, approvalflow.RoleAdmin, "u-admin")

	returned, err := f.engine.Decide(context.Background(), approvalflow.Decision{
		RequestID: req.ID,
		Action:    approvalflow.ActionReturn,
		Role:      approvalflow.RoleComptroller,
		ActorID:   "u-comp",
		Reason:    "breakdown missing transport costs",
	})
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	if returned.Status != approvalflow.StatusReturned || returned.ReturnInfo == nil {
		t.Fatalf("returned = %s, info %+v", returned.Status, returned.ReturnInfo)
	}

	resumed, err := f.engine.Resubmit(context.Background(), req.ID, "u-100")
	if err != nil {
		t.Fatalf("Resubmit: %v", err)
	}
	if resumed.Status != approvalflow.StatusPendingComptroller {
		t.Fatalf("resumed status = %s, want pending_comptroller", resumed.Status)
	}
	if resumed.ReturnInfo != nil {
		t.Fatal("ReturnInfo should be cleared on resubmit")
	}
	if len(resumed.Approvals) != 3 {
		t.Fatalf("approvals after resubmit = %d, want 3", len(resumed.Approvals))
	}
}

func TestEngineReject(t *testing.T) {
	f := newEngineFixture(t)

	req := f.submit(t, f.engine.NewRequest("trip").
		WithRequester("u-100", "Mara Lindt").
		WithDepartment("dept-sales", true).
		WithExpense("Accommodation", 9000, "hotel"))

	f.approve(t, req.ID, approvalflow.RoleHead, "u-head")

	rejected, err := f.engine.Decide(context.Background(), approvalflow.Decision{
		RequestID: req.ID,
		Action:    approvalflow.ActionReject,
		Role:      approvalflow.RoleParentHead,
		ActorID:   "u-parent",
		Reason:    "no travel budget this quarter",
	})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != approvalflow.StatusRejected || rejected.Rejection == nil {
		t.Fatalf("rejected = %s, record %+v", rejected.Status, rejected.Rejection)
	}

	// Terminal; further decisions fail
	_, err = f.engine.Decide(context.Background(), approvalflow.Decision{
		RequestID: req.ID,
		Action:    approvalflow.ActionApprove,
		Role:      approvalflow.RoleAdmin,
		ActorID:   "u-admin",
		Signature: "sig-admin",
	})
	if err == nil {
		t.Fatal("expected error deciding on rejected request")
	}
}

func TestEngineCancel(t *testing.T) {
	f := newEngineFixture(t)

	req := f.submit(t, f.engine.NewRequest("trip").
		WithRequester("u-100", "Mara Lindt").
		WithDepartment("dept-sales", true).
		WithExpense("Accommodation", 9000, "hotel"))

	cancelled, err := f.engine.Cancel(context.Background(), req.ID, "u-100")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != approvalflow.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", cancelled.Status)
	}

	if _, err := f.engine.Resubmit(context.Background(), req.ID, "u-100"); err == nil {
		t.Fatal("expected error resubmitting cancelled request")
	}
}

// ============================================================
// Queries and events
// ============================================================

func TestEngineListAndGet(t *testing.T) {
	f := newEngineFixture(t)

	a := f.submit(t, f.engine.NewRequest("trip").
		WithRequester("u-1", "A").
		WithDepartment("dept-1", false).
		WithExpense("Transportation", 400, "train"))
	f.submit(t, f.engine.NewRequest("seminar").
		WithRequester("u-2", "B").
		WithDepartment("dept-2", false))

	got, err := f.engine.Get(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.RequestNumber != a.RequestNumber {
		t.Fatalf("Get number = %q, want %q", got.RequestNumber, a.RequestNumber)
	}

	trips, total, err := f.engine.List(context.Background(), approvalflow.NewFilter().WithKind("trip"))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 || len(trips) != 1 || trips[0].ID != a.ID {
		t.Fatalf("List = %d rows, total %d", len(trips), total)
	}

	if _, err := f.engine.Get(context.Background(), "no-such-id"); !approvalflow.IsNotFound(err) {
		t.Fatalf("Get missing = %v, want not found", err)
	}
}

func TestEngineSubscribe(t *testing.T) {
	f := newEngineFixture(t)

	var mu sync.Mutex
	var seen []event.EventType
	err := f.engine.SubscribeAll(func(ctx context.Context, e event.Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, e.Type)
		return nil
	})
	if err != nil {
		t.Fatalf("SubscribeAll: %v", err)
	}

	req := f.submit(t, f.engine.NewRequest("seminar").
		WithRequester("u-200", "Joris Bakker").
		WithDepartment("dept-eng", false).
		AsHead())
	f.approve(t, req.ID, approvalflow.RoleAdmin, "u-admin")

	mu.Lock()
	defer mu.Unlock()
	want := []event.EventType{event.EventRequestCreated, event.EventRequestAdvanced}
	if len(seen) != len(want) {
		t.Fatalf("events = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("event[%d] = %s, want %s", i, seen[i], want[i])
		}
	}
}
