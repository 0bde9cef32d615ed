package approvalflow

// Stage is one named approval role in the fixed sequence.
type Stage string

const (
	// StageHead is the requester's department head review
	StageHead Stage = "head"
	// StageParentHead is the parent department head review
	StageParentHead Stage = "parent_head"
	// StageAdmin is the administrative office review
	StageAdmin Stage = "admin"
	// StageComptroller is the budget review
	StageComptroller Stage = "comptroller"
	// StageHR is the human resources review
	StageHR Stage = "hr"
	// StageVP is the vice president review
	StageVP Stage = "vp"
	// StagePresident is the president review
	StagePresident Stage = "president"
)

// CanonicalStageOrder is the full ordered stage sequence before any
// per-request removals are applied.
var CanonicalStageOrder = []Stage{
	StageHead,
	StageParentHead,
	StageAdmin,
	StageComptroller,
	StageHR,
	StageVP,
	StagePresident,
}

// RequestStatus represents the status of a request.
type RequestStatus string

const (
	// StatusDraft indicates the request has not yet been submitted
	StatusDraft RequestStatus = "draft"
	// StatusPendingHead indicates the request awaits department head review
	StatusPendingHead RequestStatus = "pending_head"
	// StatusPendingParentHead indicates the request awaits parent department head review
	StatusPendingParentHead RequestStatus = "pending_parent_head"
	// StatusPendingAdmin indicates the request awaits administrative review
	StatusPendingAdmin RequestStatus = "pending_admin"
	// StatusPendingComptroller indicates the request awaits budget review
	StatusPendingComptroller RequestStatus = "pending_comptroller"
	// StatusPendingHR indicates the request awaits human resources review
	StatusPendingHR RequestStatus = "pending_hr"
	// StatusPendingVP indicates the request awaits vice president review
	StatusPendingVP RequestStatus = "pending_vp"
	// StatusPendingPresident indicates the request awaits president review
	StatusPendingPresident RequestStatus = "pending_president"
	// StatusPendingExec is a legacy status written by older clients.
	// It is normalized to StatusPendingVP on read and never written.
	StatusPendingExec RequestStatus = "pending_exec"
	// StatusApproved indicates every required stage approved the request
	StatusApproved RequestStatus = "approved"
	// StatusRejected indicates a stage rejected the request
	StatusRejected RequestStatus = "rejected"
	// StatusReturned indicates the request was sent back to the requester for revision
	StatusReturned RequestStatus = "returned"
	// StatusCancelled indicates the requester withdrew the request
	StatusCancelled RequestStatus = "cancelled"
)

// Action is a decision taken on a request.
type Action string

const (
	// ActionApprove advances the request to the next required stage
	ActionApprove Action = "approve"
	// ActionReject terminates the request
	ActionReject Action = "reject"
	// ActionReturn sends the request back to the requester for revision
	ActionReturn Action = "return"
	// ActionResubmit puts a returned request back at the stage it was returned from
	ActionResubmit Action = "resubmit"
	// ActionCancel withdraws an in-flight request
	ActionCancel Action = "cancel"
)

// Role identifies an actor acting on a request.
type Role string

const (
	RoleRequester   Role = "requester"
	RoleHead        Role = "head"
	RoleParentHead  Role = "parent_head"
	RoleAdmin       Role = "admin"
	RoleComptroller Role = "comptroller"
	RoleHR          Role = "hr"
	RoleVP          Role = "vp"
	RolePresident   Role = "president"
)

// stagePendingStatus maps each stage to its pending status.
var stagePendingStatus = map[Stage]RequestStatus{
	StageHead:        StatusPendingHead,
	StageParentHead:  StatusPendingParentHead,
	StageAdmin:       StatusPendingAdmin,
	StageComptroller: StatusPendingComptroller,
	StageHR:          StatusPendingHR,
	StageVP:          StatusPendingVP,
	StagePresident:   StatusPendingPresident,
}

// pendingStatusStage is the inverse of stagePendingStatus.
var pendingStatusStage = map[RequestStatus]Stage{
	StatusPendingHead:        StageHead,
	StatusPendingParentHead:  StageParentHead,
	StatusPendingAdmin:       StageAdmin,
	StatusPendingComptroller: StageComptroller,
	StatusPendingHR:          StageHR,
	StatusPendingVP:          StageVP,
	StatusPendingPresident:   StagePresident,
}

// stageRole maps each stage to the role that owns it.
var stageRole = map[Stage]Role{
	StageHead:        RoleHead,
	StageParentHead:  RoleParentHead,
	StageAdmin:       RoleAdmin,
	StageComptroller: RoleComptroller,
	StageHR:          RoleHR,
	StageVP:          RoleVP,
	StagePresident:   RolePresident,
}

// returnCapableRoles are the only roles permitted to return a request
// to its sender. Enforced by the processor, not by the state machine.
var returnCapableRoles = map[Role]bool{
	RoleComptroller: true,
	RoleHR:          true,
	RoleVP:          true,
	RolePresident:   true,
}

// PendingStatusFor returns the pending status owned by the given stage.
func PendingStatusFor(stage Stage) (RequestStatus, bool) {
	s, ok := stagePendingStatus[stage]
	return s, ok
}

// StageForStatus returns the stage owning the given pending status,
// or false if the status is not a pending status.
func StageForStatus(status RequestStatus) (Stage, bool) {
	stage, ok := pendingStatusStage[NormalizeStatus(status)]
	return stage, ok
}

// RoleForStage returns the role that owns the given stage.
func RoleForStage(stage Stage) (Role, bool) {
	r, ok := stageRole[stage]
	return r, ok
}

// StageForRole returns the stage owned by the given role, or false for
// roles that own no stage (the requester).
func StageForRole(role Role) (Stage, bool) {
	for stage, r := range stageRole {
		if r == role {
			return stage, true
		}
	}
	return "", false
}

// CanReturn returns true if the role is permitted to return requests.
func CanReturn(role Role) bool {
	return returnCapableRoles[role]
}

// NormalizeStatus maps legacy status values onto the current enumeration.
// Records written by older clients used pending_exec for the VP review.
func NormalizeStatus(status RequestStatus) RequestStatus {
	if status == StatusPendingExec {
		return StatusPendingVP
	}
	return status
}

// IsPending returns true if the status is a pending review status.
func IsPending(status RequestStatus) bool {
	_, ok := pendingStatusStage[NormalizeStatus(status)]
	return ok
}

// IsTerminal returns true if the status is terminal (no further transitions).
func IsTerminal(status RequestStatus) bool {
	switch NormalizeStatus(status) {
	case StatusApproved, StatusRejected, StatusCancelled:
		return true
	default:
		return false
	}
}

// stageIndex returns the position of the stage in the canonical order,
// or -1 for unknown stages.
func stageIndex(stage Stage) int {
	for i, s := range CanonicalStageOrder {
		if s == stage {
			return i
		}
	}
	return -1
}

// ValidateTransition checks whether a status transition is legal.
// Pending-to-pending moves must advance in canonical stage order; a
// returned request may resume at any pending stage.
func ValidateTransition(from, to RequestStatus) bool {
	from = NormalizeStatus(from)
	to = NormalizeStatus(to)

	if IsTerminal(from) {
		return false
	}
	if from == to {
		return false
	}

	switch from {
	case StatusDraft:
		return IsPending(to) || to == StatusCancelled
	case StatusReturned:
		return IsPending(to) || to == StatusCancelled
	}

	fromStage, ok := pendingStatusStage[from]
	if !ok {
		return false
	}

	switch to {
	case StatusApproved, StatusRejected, StatusReturned, StatusCancelled:
		return true
	}

	toStage, ok := pendingStatusStage[to]
	if !ok {
		return false
	}
	return stageIndex(toStage) > stageIndex(fromStage)
}
