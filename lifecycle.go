package approvalflow

import (
	"fmt"
	"time"
)

// Decision is a single operator decision on a request.
type Decision struct {
	RequestID string
	Action    Action
	Role      Role
	ActorID   string
	ActorName string

	// Signature is required for approve.
	Signature string
	// Reason is required for reject and return.
	Reason string
	// Comments are optional free text carried into the stage record.
	Comments string
	// NextApproverID optionally routes the next-stage notification to a
	// specific individual. Routing metadata only; it plays no part in the
	// legality check.
	NextApproverID string

	// Budget carries a reconciled expense revision. Only honored on a
	// comptroller approval; ignored for every other decision.
	Budget *BudgetRevision
}

// NotifyTarget names one recipient of a transition notification.
// Either Stage is set (notify the owners of that stage, optionally a
// specific user) or Requester is true.
type NotifyTarget struct {
	Stage     Stage
	UserID    string
	Requester bool
}

// Transition is the computed outcome of a legal decision: the store patch,
// the audit entry, and the notification targets. All side effects are
// returned as data for the caller to execute; nothing is performed here.
type Transition struct {
	PreviousStatus RequestStatus
	NewStatus      RequestStatus
	Patch          *Patch
	History        HistoryEntry
	Notify         []NotifyTarget
}

// ApplyDecision computes the transition for a decision against the
// request's current status. It is pure: the request is not mutated and
// no external state is consulted.
//
// Role capability for return is policy external to the state machine and
// is enforced by the processor, not here.
func ApplyDecision(req *Request, d Decision, now time.Time) (*Transition, error) {
	status := NormalizeStatus(req.Status)

	if IsTerminal(status) {
		return nil, fmt.Errorf("%w: request %s is %s", ErrRequestTerminal, req.ID, status)
	}

	switch d.Action {
	case ActionApprove:
		return applyApprove(req, d, status, now)
	case ActionReject:
		return applyReject(req, d, status, now)
	case ActionReturn:
		return applyReturn(req, d, status, now)
	default:
		return nil, fmt.Errorf("%w: action %q at status %s", ErrInvalidTransition, d.Action, status)
	}
}

func applyApprove(req *Request, d Decision, status RequestStatus, now time.Time) (*Transition, error) {
	if d.Signature == "" {
		return nil, NewValidationError("signature", "required to approve")
	}

	stage, ok := StageForRole(d.Role)
	if !ok {
		return nil, fmt.Errorf("%w: role %q owns no stage", ErrInvalidTransition, d.Role)
	}
	if !RequiresStage(req.PolicyInput(), stage) {
		return nil, fmt.Errorf("%w: %s", ErrStageNotRequired, stage)
	}

	current, ok := StageForStatus(status)
	if !ok || current != stage {
		return nil, fmt.Errorf("%w: %s cannot approve at status %s", ErrInvalidTransition, d.Role, status)
	}
	if _, filled := req.Approvals[stage]; filled {
		return nil, fmt.Errorf("%w: stage %s already approved", ErrInvalidTransition, stage)
	}

	newStatus := StatusApproved
	var notify []NotifyTarget
	if next, ok := NextStage(req.PolicyInput(), stage); ok {
		pending, ok := PendingStatusFor(next)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownStage, next)
		}
		newStatus = pending
		notify = append(notify, NotifyTarget{Stage: next, UserID: d.NextApproverID})
	} else {
		notify = append(notify, NotifyTarget{Requester: true})
	}

	patch := &Patch{
		Status: newStatus,
		Approval: &StageApproval{
			Stage: stage,
			Record: ApprovalRecord{
				ApprovedBy: d.ActorID,
				ApprovedAt: now,
				Comments:   d.Comments,
				Signature:  d.Signature,
			},
		},
	}
	if stage == StageComptroller && d.Budget != nil {
		patch.Budget = d.Budget
	}

	return &Transition{
		PreviousStatus: status,
		NewStatus:      newStatus,
		Patch:          patch,
		History:        newHistoryEntry(req.ID, d, status, newStatus, now),
		Notify:         notify,
	}, nil
}

func applyReject(req *Request, d Decision, status RequestStatus, now time.Time) (*Transition, error) {
	if d.Reason == "" {
		return nil, NewValidationError("reason", "required to reject")
	}

	stage, ok := StageForStatus(status)
	if !ok {
		return nil, fmt.Errorf("%w: cannot reject at status %s", ErrInvalidTransition, status)
	}

	return &Transition{
		PreviousStatus: status,
		NewStatus:      StatusRejected,
		Patch: &Patch{
			Status: StatusRejected,
			Rejection: &RejectionRecord{
				Stage:  stage,
				By:     d.ActorID,
				At:     now,
				Reason: d.Reason,
			},
		},
		History: newHistoryEntry(req.ID, d, status, StatusRejected, now),
		Notify:  []NotifyTarget{{Requester: true}},
	}, nil
}

func applyReturn(req *Request, d Decision, status RequestStatus, now time.Time) (*Transition, error) {
	if d.Reason == "" {
		return nil, NewValidationError("reason", "required to return")
	}

	stage, ok := StageForStatus(status)
	if !ok {
		return nil, fmt.Errorf("%w: cannot return at status %s", ErrInvalidTransition, status)
	}

	return &Transition{
		PreviousStatus: status,
		NewStatus:      StatusReturned,
		Patch: &Patch{
			Status: StatusReturned,
			ReturnInfo: &ReturnRecord{
				Stage:    stage,
				By:       d.ActorID,
				At:       now,
				Reason:   d.Reason,
				Comments: d.Comments,
			},
		},
		History: newHistoryEntry(req.ID, d, status, StatusReturned, now),
		Notify:  []NotifyTarget{{Requester: true}},
	}, nil
}

// ApplyResubmit computes the transition for a requester resubmitting a
// returned request. The request resumes at the stage it was returned
// from, preserving upstream approvals. If a revision made that stage no
// longer required (a budget edit can drop the comptroller or president),
// the request resumes at the next required stage after it, or completes
// as approved when every remaining stage is either passed or no longer
// required.
func ApplyResubmit(req *Request, actorID string, now time.Time) (*Transition, error) {
	if NormalizeStatus(req.Status) != StatusReturned || req.ReturnInfo == nil {
		return nil, fmt.Errorf("%w: request %s is %s", ErrNotReturned, req.ID, req.Status)
	}

	resume := req.ReturnInfo.Stage
	newStatus := StatusApproved
	var notify []NotifyTarget

	in := req.PolicyInput()
	if stage, ok := resumeStage(in, resume); ok {
		pending, ok := PendingStatusFor(stage)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownStage, stage)
		}
		newStatus = pending
		notify = append(notify, NotifyTarget{Stage: stage})
	}

	d := Decision{RequestID: req.ID, Action: ActionResubmit, Role: RoleRequester, ActorID: actorID}
	return &Transition{
		PreviousStatus: StatusReturned,
		NewStatus:      newStatus,
		Patch: &Patch{
			Status:      newStatus,
			ClearReturn: true,
		},
		History: newHistoryEntry(req.ID, d, StatusReturned, newStatus, now),
		Notify:  notify,
	}, nil
}

// resumeStage picks the stage a resubmitted request resumes at: the
// returned-from stage if still required, otherwise the first required
// stage at or after its canonical position.
func resumeStage(in PolicyInput, returnedFrom Stage) (Stage, bool) {
	from := stageIndex(returnedFrom)
	for _, stage := range RequiredStages(in) {
		if stageIndex(stage) >= from {
			return stage, true
		}
	}
	return "", false
}

// ApplyCancel computes the transition for a requester withdrawing an
// in-flight request. Legal from draft, any pending status, or returned.
func ApplyCancel(req *Request, actorID string, now time.Time) (*Transition, error) {
	status := NormalizeStatus(req.Status)
	if IsTerminal(status) {
		return nil, fmt.Errorf("%w: request %s is %s", ErrRequestTerminal, req.ID, status)
	}

	d := Decision{RequestID: req.ID, Action: ActionCancel, Role: RoleRequester, ActorID: actorID}
	return &Transition{
		PreviousStatus: status,
		NewStatus:      StatusCancelled,
		Patch:          &Patch{Status: StatusCancelled},
		History:        newHistoryEntry(req.ID, d, status, StatusCancelled, now),
	}, nil
}

func newHistoryEntry(requestID string, d Decision, prev, next RequestStatus, now time.Time) HistoryEntry {
	comments := d.Comments
	if comments == "" {
		comments = d.Reason
	}
	return HistoryEntry{
		RequestID:      requestID,
		Action:         d.Action,
		ActorID:        d.ActorID,
		ActorRole:      d.Role,
		PreviousStatus: prev,
		NewStatus:      next,
		Comments:       comments,
		CreatedAt:      now,
	}
}
