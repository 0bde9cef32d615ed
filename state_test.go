package approvalflow

import (
	"testing"

	"pgregory.net/rapid"
)

// ============================================================================
// Unit Tests for state.go
// Tests ValidateTransition, NormalizeStatus, IsPending, IsTerminal,
// and the stage/status/role mappings
// ============================================================================

// All pending statuses in canonical stage order
var allPendingStatuses = []RequestStatus{
	StatusPendingHead,
	StatusPendingParentHead,
	StatusPendingAdmin,
	StatusPendingComptroller,
	StatusPendingHR,
	StatusPendingVP,
	StatusPendingPresident,
}

var allStatuses = append(append([]RequestStatus{StatusDraft}, allPendingStatuses...),
	StatusApproved, StatusRejected, StatusReturned, StatusCancelled)

func TestValidateTransition_ValidTransitions(t *testing.T) {
	validTransitions := []struct {
		from RequestStatus
		to   RequestStatus
	}{
		// From draft
		{StatusDraft, StatusPendingHead},
		{StatusDraft, StatusPendingAdmin},
		{StatusDraft, StatusCancelled},
		// Pending advances in canonical order
		{StatusPendingHead, StatusPendingParentHead},
		{StatusPendingHead, StatusPendingAdmin},
		{StatusPendingAdmin, StatusPendingComptroller},
		{StatusPendingComptroller, StatusPendingHR},
		{StatusPendingHR, StatusPendingVP},
		{StatusPendingVP, StatusPendingPresident},
		// Skipped stages are legal advances
		{StatusPendingHead, StatusPendingHR},
		// Pending to terminal or returned
		{StatusPendingHead, StatusApproved},
		{StatusPendingVP, StatusRejected},
		{StatusPendingComptroller, StatusReturned},
		{StatusPendingHR, StatusCancelled},
		// Returned resumes anywhere pending
		{StatusReturned, StatusPendingHead},
		{StatusReturned, StatusPendingPresident},
		{StatusReturned, StatusCancelled},
		// Legacy alias advances like pending_vp
		{StatusPendingExec, StatusPendingPresident},
		{StatusPendingHR, StatusPendingExec},
	}

	for _, tt := range validTransitions {
		if !ValidateTransition(tt.from, tt.to) {
			t.Errorf("transition from %s to %s should be valid", tt.from, tt.to)
		}
	}
}

func TestValidateTransition_InvalidTransitions(t *testing.T) {
	invalidTransitions := []struct {
		from RequestStatus
		to   RequestStatus
	}{
		// Backwards moves
		{StatusPendingAdmin, StatusPendingHead},
		{StatusPendingPresident, StatusPendingVP},
		// Self transition
		{StatusPendingHead, StatusPendingHead},
		{StatusPendingExec, StatusPendingVP},
		// Out of terminal states
		{StatusApproved, StatusPendingHead},
		{StatusRejected, StatusReturned},
		{StatusCancelled, StatusPendingAdmin},
		// Draft cannot go terminal except cancelled
		{StatusDraft, StatusApproved},
		{StatusDraft, StatusRejected},
	}

	for _, tt := range invalidTransitions {
		if ValidateTransition(tt.from, tt.to) {
			t.Errorf("transition from %s to %s should be invalid", tt.from, tt.to)
		}
	}
}

func TestNormalizeStatus(t *testing.T) {
	if got := NormalizeStatus(StatusPendingExec); got != StatusPendingVP {
		t.Errorf("NormalizeStatus(pending_exec) = %s, want %s", got, StatusPendingVP)
	}
	for _, status := range allStatuses {
		if got := NormalizeStatus(status); got != status {
			t.Errorf("NormalizeStatus(%s) = %s, want unchanged", status, got)
		}
	}
}

func TestStageStatusRoundTrip(t *testing.T) {
	for _, stage := range CanonicalStageOrder {
		status, ok := PendingStatusFor(stage)
		if !ok {
			t.Fatalf("PendingStatusFor(%s) not found", stage)
		}
		back, ok := StageForStatus(status)
		if !ok || back != stage {
			t.Errorf("StageForStatus(%s) = (%s, %v), want %s", status, back, ok, stage)
		}
	}
}

func TestStageRoleRoundTrip(t *testing.T) {
	for _, stage := range CanonicalStageOrder {
		role, ok := RoleForStage(stage)
		if !ok {
			t.Fatalf("RoleForStage(%s) not found", stage)
		}
		back, ok := StageForRole(role)
		if !ok || back != stage {
			t.Errorf("StageForRole(%s) = (%s, %v), want %s", role, back, ok, stage)
		}
	}

	if _, ok := StageForRole(RoleRequester); ok {
		t.Error("requester should own no stage")
	}
}

func TestCanReturn(t *testing.T) {
	canReturn := []Role{RoleComptroller, RoleHR, RoleVP, RolePresident}
	cannotReturn := []Role{RoleRequester, RoleHead, RoleParentHead, RoleAdmin}

	for _, role := range canReturn {
		if !CanReturn(role) {
			t.Errorf("CanReturn(%s) = false, want true", role)
		}
	}
	for _, role := range cannotReturn {
		if CanReturn(role) {
			t.Errorf("CanReturn(%s) = true, want false", role)
		}
	}
}

func TestIsPendingAndIsTerminal(t *testing.T) {
	for _, status := range allPendingStatuses {
		if !IsPending(status) {
			t.Errorf("IsPending(%s) = false, want true", status)
		}
		if IsTerminal(status) {
			t.Errorf("IsTerminal(%s) = true, want false", status)
		}
	}
	if !IsPending(StatusPendingExec) {
		t.Error("legacy pending_exec should count as pending")
	}

	for _, status := range []RequestStatus{StatusApproved, StatusRejected, StatusCancelled} {
		if !IsTerminal(status) {
			t.Errorf("IsTerminal(%s) = false, want true", status)
		}
	}
	for _, status := range []RequestStatus{StatusDraft, StatusReturned} {
		if IsTerminal(status) {
			t.Errorf("IsTerminal(%s) = true, want false", status)
		}
	}
}

// ============================================================================
// Property-Based Tests
// ============================================================================

func TestValidateTransition_Properties(t *testing.T) {
	statusGen := rapid.SampledFrom(append(allStatuses, StatusPendingExec))

	rapid.Check(t, func(t *rapid.T) {
		from := statusGen.Draw(t, "from")
		to := statusGen.Draw(t, "to")

		valid := ValidateTransition(from, to)

		// Terminal states never transition
		if IsTerminal(from) && valid {
			t.Fatalf("transition out of terminal %s accepted", from)
		}

		// A normalized self transition is never valid
		if NormalizeStatus(from) == NormalizeStatus(to) && valid {
			t.Fatalf("self transition %s -> %s accepted", from, to)
		}

		// Pending-to-pending moves never go backwards
		if valid {
			fromStage, fromPending := StageForStatus(from)
			toStage, toPending := StageForStatus(to)
			if fromPending && toPending && stageIndex(toStage) <= stageIndex(fromStage) {
				t.Fatalf("backwards transition %s -> %s accepted", from, to)
			}
		}
	})
}
