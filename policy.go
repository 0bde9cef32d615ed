package approvalflow

// PresidentThreshold is the total budget above which the president stage
// is required, in currency units.
const PresidentThreshold = 50000.0

// PolicyInput holds the request attributes that drive stage selection.
type PolicyInput struct {
	// RequesterIsHead is true when the requester is their own department head
	RequesterIsHead bool
	// HasParentDepartment is true when the requester's department has a parent
	HasParentDepartment bool
	// HasBudget is true when the request carries any budget
	HasBudget bool
	// TotalBudget is the request's total budget in currency units
	TotalBudget float64
}

// RequiredStages computes the ordered stage list for a request.
// The function is pure: creation, transition, and progress display all
// consume it identically, so the stage table never disagrees with itself.
//
// Starting from the canonical order, head is removed for head requesters
// (their own request skips head review), parent_head when no parent
// department exists, comptroller when there is no budget, and president
// when the total does not exceed the threshold.
func RequiredStages(in PolicyInput) []Stage {
	stages := make([]Stage, 0, len(CanonicalStageOrder))
	for _, stage := range CanonicalStageOrder {
		switch stage {
		case StageHead:
			if in.RequesterIsHead {
				continue
			}
		case StageParentHead:
			if !in.HasParentDepartment {
				continue
			}
		case StageComptroller:
			if !in.HasBudget {
				continue
			}
		case StagePresident:
			if in.TotalBudget <= PresidentThreshold {
				continue
			}
		}
		stages = append(stages, stage)
	}
	return stages
}

// InitialStatus returns the status a freshly submitted request enters.
// An empty stage list is an error, never an auto-approval; with the fixed
// stage set admin, hr, and vp always survive removal, so this only fires
// on a corrupted stage table.
func InitialStatus(in PolicyInput) (RequestStatus, error) {
	stages := RequiredStages(in)
	if len(stages) == 0 {
		return "", ErrNoStagesRequired
	}
	status, ok := PendingStatusFor(stages[0])
	if !ok {
		return "", ErrUnknownStage
	}
	return status, nil
}

// NextStage returns the stage following current in the request's required
// stage list, or false when current is the last required stage.
func NextStage(in PolicyInput, current Stage) (Stage, bool) {
	stages := RequiredStages(in)
	for i, stage := range stages {
		if stage == current && i+1 < len(stages) {
			return stages[i+1], true
		}
	}
	return "", false
}

// RequiresStage returns true if the given stage appears in the request's
// required stage list.
func RequiresStage(in PolicyInput, stage Stage) bool {
	for _, s := range RequiredStages(in) {
		if s == stage {
			return true
		}
	}
	return false
}
