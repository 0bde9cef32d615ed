package approvalflow

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ExpenseItem is one line of a request's expense breakdown.
type ExpenseItem struct {
	Category    string  `json:"category"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
}

// ApprovalRecord is a filled approval slot for one stage.
type ApprovalRecord struct {
	ApprovedBy string    `json:"approved_by"`
	ApprovedAt time.Time `json:"approved_at"`
	Comments   string    `json:"comments"`
	Signature  string    `json:"signature"`
}

// RejectionRecord is set at most once and is terminal.
type RejectionRecord struct {
	Stage  Stage     `json:"stage"`
	By     string    `json:"by"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason"`
}

// ReturnRecord is set when a request is sent back to the requester.
// Stage records where the request was returned from, so resubmission
// resumes there rather than restarting the chain.
type ReturnRecord struct {
	Stage    Stage     `json:"stage"`
	By       string    `json:"by"`
	At       time.Time `json:"at"`
	Reason   string    `json:"reason"`
	Comments string    `json:"comments"`
}

// HistoryEntry is one immutable line of a request's audit trail.
type HistoryEntry struct {
	ID             int64
	RequestID      string
	Action         Action
	ActorID        string
	ActorRole      Role
	PreviousStatus RequestStatus
	NewStatus      RequestStatus
	Comments       string
	CreatedAt      time.Time
}

// Request is the unit of work flowing through the approval chain.
type Request struct {
	// ID is the opaque unique identifier, assigned at build time, immutable.
	ID string
	// RequestNumber is the human-readable sequential identifier. Empty until
	// the store's numbering mechanism assigns it; immutable once set.
	RequestNumber string
	// Kind distinguishes request families (e.g. "trip", "seminar").
	Kind string
	Status RequestStatus

	RequesterID   string
	RequesterName string
	DepartmentID  string

	RequesterIsHead     bool
	HasParentDepartment bool
	HasBudget           bool
	TotalBudget         float64

	ExpenseBreakdown []ExpenseItem
	Approvals        map[Stage]*ApprovalRecord
	Rejection        *RejectionRecord
	ReturnInfo       *ReturnRecord

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PolicyInput returns the attributes that drive stage selection.
func (r *Request) PolicyInput() PolicyInput {
	return PolicyInput{
		RequesterIsHead:     r.RequesterIsHead,
		HasParentDepartment: r.HasParentDepartment,
		HasBudget:           r.HasBudget,
		TotalBudget:         r.TotalBudget,
	}
}

// CurrentStage returns the stage owning the request's pending status,
// or false when the request is not pending.
func (r *Request) CurrentStage() (Stage, bool) {
	return StageForStatus(r.Status)
}

// RequiredStages returns the ordered stage list for this request.
func (r *Request) RequiredStages() []Stage {
	return RequiredStages(r.PolicyInput())
}

// SumBreakdown returns the sum of the itemized expense amounts. It can be
// lower than TotalBudget when part of the budget is tracked outside the
// itemized list.
func (r *Request) SumBreakdown() float64 {
	var sum float64
	for _, item := range r.ExpenseBreakdown {
		sum += item.Amount
	}
	return sum
}

// Clone returns a deep copy of the request.
func (r *Request) Clone() *Request {
	clone := *r
	clone.ExpenseBreakdown = make([]ExpenseItem, len(r.ExpenseBreakdown))
	copy(clone.ExpenseBreakdown, r.ExpenseBreakdown)
	clone.Approvals = make(map[Stage]*ApprovalRecord, len(r.Approvals))
	for stage, rec := range r.Approvals {
		c := *rec
		clone.Approvals[stage] = &c
	}
	if r.Rejection != nil {
		c := *r.Rejection
		clone.Rejection = &c
	}
	if r.ReturnInfo != nil {
		c := *r.ReturnInfo
		clone.ReturnInfo = &c
	}
	return &clone
}

// RequestBuilder provides a fluent API for assembling a new request.
type RequestBuilder struct {
	req    *Request
	errors []error
}

// NewRequest creates a request builder of the given kind. The request ID
// is generated up front so retried submissions reuse it.
func NewRequest(kind string) *RequestBuilder {
	now := time.Now()
	return &RequestBuilder{
		req: &Request{
			ID:        uuid.New().String(),
			Kind:      kind,
			Status:    StatusDraft,
			Approvals: make(map[Stage]*ApprovalRecord),
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

// NewRequestWithID creates a request builder with a specific ID.
// This is useful when the caller needs the ID before building.
func NewRequestWithID(id, kind string) *RequestBuilder {
	b := NewRequest(kind)
	b.req.ID = id
	return b
}

// WithRequester sets the requesting user.
func (b *RequestBuilder) WithRequester(id, name string) *RequestBuilder {
	b.req.RequesterID = id
	b.req.RequesterName = name
	return b
}

// WithDepartment sets the requester's department and whether it has a parent.
func (b *RequestBuilder) WithDepartment(id string, hasParent bool) *RequestBuilder {
	b.req.DepartmentID = id
	b.req.HasParentDepartment = hasParent
	return b
}

// AsHead marks the requester as their own department head.
func (b *RequestBuilder) AsHead() *RequestBuilder {
	b.req.RequesterIsHead = true
	return b
}

// WithExpense appends one expense line and grows the total budget.
func (b *RequestBuilder) WithExpense(category string, amount float64, description string) *RequestBuilder {
	if amount < 0 {
		b.errors = append(b.errors, fmt.Errorf("%w: %s", ErrNegativeAmount, category))
		return b
	}
	b.req.ExpenseBreakdown = append(b.req.ExpenseBreakdown, ExpenseItem{
		Category:    category,
		Amount:      amount,
		Description: description,
	})
	b.req.TotalBudget += amount
	return b
}

// WithUntrackedBudget adds an amount to the total that is not represented
// by a named breakdown item (e.g. a registration fee).
func (b *RequestBuilder) WithUntrackedBudget(amount float64) *RequestBuilder {
	if amount < 0 {
		b.errors = append(b.errors, fmt.Errorf("%w: untracked budget", ErrNegativeAmount))
		return b
	}
	b.req.TotalBudget += amount
	return b
}

// Build validates the request, derives the budget flag and the initial
// status from the stage policy, and returns the request.
func (b *RequestBuilder) Build() (*Request, error) {
	if len(b.errors) > 0 {
		return nil, b.errors[0]
	}
	if b.req.Kind == "" {
		return nil, NewValidationError("kind", "cannot be empty")
	}
	if b.req.RequesterID == "" {
		return nil, NewValidationError("requesterId", "cannot be empty")
	}
	if b.req.DepartmentID == "" {
		return nil, NewValidationError("departmentId", "cannot be empty")
	}

	b.req.HasBudget = b.req.TotalBudget > 0 || len(b.req.ExpenseBreakdown) > 0

	status, err := InitialStatus(b.req.PolicyInput())
	if err != nil {
		return nil, err
	}
	b.req.Status = status

	return b.req, nil
}
