package approvalflow

import "time"

// StageState describes where one stage sits in a request's flow.
type StageState string

const (
	// StagePassed means the stage's approval slot is filled.
	StagePassed StageState = "passed"
	// StageCurrent means the request is pending at this stage.
	StageCurrent StageState = "current"
	// StageWaiting means the stage is required but not reached yet.
	StageWaiting StageState = "waiting"
	// StageStopped means the flow ended at this stage by rejection or
	// return.
	StageStopped StageState = "stopped"
)

// StageProgress is one row of the progress table shown for a request.
type StageProgress struct {
	Stage      Stage
	Role       Role
	State      StageState
	ApprovedBy string
	ApprovedAt time.Time
	Comments   string
}

// Progress renders the request's required stages with the state each
// one is in. The same policy drives creation, transitions, and this
// view, so the rows always agree with what the state machine will
// accept next.
func Progress(req *Request) []StageProgress {
	status := NormalizeStatus(req.Status)
	current, pending := StageForStatus(status)

	var stoppedAt Stage
	hasStop := false
	switch status {
	case StatusRejected:
		if req.Rejection != nil {
			stoppedAt = req.Rejection.Stage
			hasStop = true
		}
	case StatusReturned:
		if req.ReturnInfo != nil {
			stoppedAt = req.ReturnInfo.Stage
			hasStop = true
		}
	}

	required := req.RequiredStages()
	rows := make([]StageProgress, 0, len(required))
	for _, stage := range required {
		role, _ := RoleForStage(stage)
		row := StageProgress{Stage: stage, Role: role, State: StageWaiting}

		if rec, ok := req.Approvals[stage]; ok && rec != nil {
			row.State = StagePassed
			row.ApprovedBy = rec.ApprovedBy
			row.ApprovedAt = rec.ApprovedAt
			row.Comments = rec.Comments
		} else if pending && stage == current {
			row.State = StageCurrent
		} else if hasStop && stage == stoppedAt {
			row.State = StageStopped
		}

		rows = append(rows, row)
	}
	return rows
}
