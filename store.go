package approvalflow

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Store defines the persistence interface for requests and their history.
// Implementations live under store/mysql and store/memory.
//
// The store owns request numbering: Insert is called with an empty
// RequestNumber and the store's atomic numbering mechanism assigns one.
// Update is guarded by the expected prior status; an update against a
// request that has already transitioned fails with CodeConflict instead
// of overwriting.
type Store interface {
	// Insert persists a new request and assigns its request number.
	Insert(ctx context.Context, req *Request) (*Request, error)

	// Update applies a patch to a request iff its current status equals
	// expectedPriorStatus, and returns the updated record.
	Update(ctx context.Context, id string, expectedPriorStatus RequestStatus, patch *Patch) (*Request, error)

	// Get retrieves a request by its ID.
	Get(ctx context.Context, id string) (*Request, error)

	// List lists requests matching the filter, plus the unpaginated total.
	List(ctx context.Context, filter *Filter) ([]*Request, int64, error)

	// InsertHistory appends one immutable history entry. History is the
	// audit trail; it is never edited or deleted.
	InsertHistory(ctx context.Context, entry *HistoryEntry) error

	// History retrieves a request's history, oldest first.
	History(ctx context.Context, requestID string) ([]*HistoryEntry, error)

	// ListPendingOlderThan retrieves requests sitting in any pending
	// status whose last update is older than the given duration.
	ListPendingOlderThan(ctx context.Context, olderThan time.Duration) ([]*Request, error)
}

// Patch describes the mutation applied by one transition. Only the fields
// a legal transition may touch are representable; request number, policy
// attributes, and existing approval slots are immutable through Update.
type Patch struct {
	// Status is the new status. Always set.
	Status RequestStatus

	// Approval fills one stage's approval slot.
	Approval *StageApproval

	// Rejection sets the terminal rejection record.
	Rejection *RejectionRecord

	// ReturnInfo sets the return record.
	ReturnInfo *ReturnRecord

	// ClearReturn clears the return record on resubmission.
	ClearReturn bool

	// Budget replaces the expense breakdown and total with a reconciled
	// revision. Only the comptroller stage produces one.
	Budget *BudgetRevision
}

// StageApproval pairs an approval record with the stage slot it fills.
type StageApproval struct {
	Stage  Stage
	Record ApprovalRecord
}

// Filter defines filters for listing requests.
type Filter struct {
	Status      []RequestStatus
	Kind        string
	RequesterID string
	StartTime   time.Time
	EndTime     time.Time
	Limit       int
	Offset      int
}

// NewFilter creates a Filter with default pagination.
func NewFilter() *Filter {
	return &Filter{Limit: 100}
}

// WithStatus adds status filters.
func (f *Filter) WithStatus(status ...RequestStatus) *Filter {
	f.Status = append(f.Status, status...)
	return f
}

// WithKind sets the request kind filter.
func (f *Filter) WithKind(kind string) *Filter {
	f.Kind = kind
	return f
}

// WithRequester sets the requester filter.
func (f *Filter) WithRequester(requesterID string) *Filter {
	f.RequesterID = requesterID
	return f
}

// WithTimeRange sets the creation time range filter.
func (f *Filter) WithTimeRange(start, end time.Time) *Filter {
	f.StartTime = start
	f.EndTime = end
	return f
}

// WithPagination sets pagination parameters.
func (f *Filter) WithPagination(limit, offset int) *Filter {
	f.Limit = limit
	f.Offset = offset
	return f
}

// StoreErrorCode classifies store failures. The creator and processor
// branch on the code, never on backend-specific error text.
type StoreErrorCode string

const (
	// CodeDuplicateNumber is a uniqueness violation on the request number
	// column: a benign race with a concurrent submission, safe to retry.
	CodeDuplicateNumber StoreErrorCode = "duplicate_number"

	// CodeForeignKey is a referential violation (bad department or user
	// reference): a non-retryable data problem.
	CodeForeignKey StoreErrorCode = "foreign_key"

	// CodeConflict means the guarded update found a different status than
	// expected: the record transitioned under the caller.
	CodeConflict StoreErrorCode = "conflict"

	// CodeTimeout is a transport timeout or abort: the true outcome is
	// unknown and blind retry risks double-submission.
	CodeTimeout StoreErrorCode = "timeout"

	// CodeNotFound means the request does not exist.
	CodeNotFound StoreErrorCode = "not_found"

	// CodeInternal is any other store failure.
	CodeInternal StoreErrorCode = "internal"
)

// StoreError wraps a backend failure with a stable classification code.
type StoreError struct {
	Code StoreErrorCode
	Op   string
	Err  error
}

func (e *StoreError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("store: %s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("store: %s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a StoreError with the given code.
func NewStoreError(code StoreErrorCode, op string, err error) *StoreError {
	return &StoreError{Code: code, Op: op, Err: err}
}

// StoreCodeOf extracts the classification code from an error chain,
// defaulting to CodeInternal for unclassified errors.
func StoreCodeOf(err error) StoreErrorCode {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeInternal
}

// IsDuplicateNumber reports a request-number uniqueness violation.
func IsDuplicateNumber(err error) bool {
	return StoreCodeOf(err) == CodeDuplicateNumber
}

// IsForeignKey reports a referential violation.
func IsForeignKey(err error) bool {
	return StoreCodeOf(err) == CodeForeignKey
}

// IsConflict reports a guarded-update status mismatch.
func IsConflict(err error) bool {
	return StoreCodeOf(err) == CodeConflict
}

// IsTimeout reports an unknown-outcome transport failure.
func IsTimeout(err error) bool {
	return StoreCodeOf(err) == CodeTimeout
}

// IsNotFound reports a missing request.
func IsNotFound(err error) bool {
	return StoreCodeOf(err) == CodeNotFound
}
