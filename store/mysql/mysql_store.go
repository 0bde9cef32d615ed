// Package mysql provides a MySQL implementation of the Store interface.
//
// Request numbers are assigned by the database: an insert trigger
// reserves the next value from the approval_sequences table and writes
// it as "TR-" plus a zero-padded counter. Concurrent inserts can race
// on the unique request_number index; callers classify that as
// CodeDuplicateNumber and retry.
package mysql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"approvalflow"
)

// MySQLStore implements the Store interface using MySQL.
type MySQLStore struct {
	db *sql.DB
}

// New creates a new MySQLStore with the given database connection.
func New(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

// Ensure MySQLStore implements the Store interface.
var _ approvalflow.Store = (*MySQLStore)(nil)

const requestColumns = `id, request_number, kind, status, requester_id, requester_name,
		department_id, requester_is_head, has_parent_department, has_budget, total_budget,
		expense_breakdown, approvals, rejection, return_info, created_at, updated_at`

// ============================================================================
// Request Operations
// ============================================================================

// Insert persists a new request. The request_number column is filled by
// the numbering trigger; the committed row is read back so the caller
// sees the assigned number.
func (s *MySQLStore) Insert(ctx context.Context, req *approvalflow.Request) (*approvalflow.Request, error) {
	query := `
		INSERT INTO approval_requests (
			id, kind, status, requester_id, requester_name, department_id,
			requester_is_head, has_parent_department, has_budget, total_budget,
			expense_breakdown, approvals, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	breakdown, err := json.Marshal(req.ExpenseBreakdown)
	if err != nil {
		return nil, fmt.Errorf("marshal expense_breakdown: %w", err)
	}
	approvals, err := json.Marshal(req.Approvals)
	if err != nil {
		return nil, fmt.Errorf("marshal approvals: %w", err)
	}

	now := time.Now()
	_, err = s.db.ExecContext(ctx, query,
		req.ID, req.Kind, req.Status, req.RequesterID, req.RequesterName, req.DepartmentID,
		req.RequesterIsHead, req.HasParentDepartment, req.HasBudget, req.TotalBudget,
		breakdown, approvals, now, now,
	)
	if err != nil {
		return nil, classify("insert", err)
	}

	return s.Get(ctx, req.ID)
}

// Update applies a patch under a row lock, guarded by the expected
// prior status. A request that already transitioned fails with
// CodeConflict and the row is untouched.
func (s *MySQLStore) Update(ctx context.Context, id string, expectedPriorStatus approvalflow.RequestStatus, patch *approvalflow.Patch) (*approvalflow.Request, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify("update", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`SELECT %s FROM approval_requests WHERE id = ? FOR UPDATE`, requestColumns)
	current, err := scanRequest(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, wrapScan("update", err)
	}

	if approvalflow.NormalizeStatus(current.Status) != approvalflow.NormalizeStatus(expectedPriorStatus) {
		return nil, approvalflow.NewStoreError(approvalflow.CodeConflict, "update",
			fmt.Errorf("request %s is %s, expected %s", id, current.Status, expectedPriorStatus))
	}

	applyPatch(current, patch)
	current.UpdatedAt = time.Now()

	breakdown, err := json.Marshal(current.ExpenseBreakdown)
	if err != nil {
		return nil, fmt.Errorf("marshal expense_breakdown: %w", err)
	}
	approvals, err := json.Marshal(current.Approvals)
	if err != nil {
		return nil, fmt.Errorf("marshal approvals: %w", err)
	}
	rejection, err := marshalNullable(current.Rejection)
	if err != nil {
		return nil, fmt.Errorf("marshal rejection: %w", err)
	}
	returnInfo, err := marshalNullable(current.ReturnInfo)
	if err != nil {
		return nil, fmt.Errorf("marshal return_info: %w", err)
	}

	updateQuery := `
		UPDATE approval_requests SET
			status = ?, total_budget = ?, expense_breakdown = ?, approvals = ?,
			rejection = ?, return_info = ?, updated_at = ?
		WHERE id = ?
	`
	if _, err := tx.ExecContext(ctx, updateQuery,
		current.Status, current.TotalBudget, breakdown, approvals,
		rejection, returnInfo, current.UpdatedAt, id,
	); err != nil {
		return nil, classify("update", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, classify("update", err)
	}

	return current, nil
}

// Get retrieves a request by its ID.
func (s *MySQLStore) Get(ctx context.Context, id string) (*approvalflow.Request, error) {
	query := fmt.Sprintf(`SELECT %s FROM approval_requests WHERE id = ?`, requestColumns)
	req, err := scanRequest(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, wrapScan("get", err)
	}
	return req, nil
}

// List lists requests matching the filter with pagination.
func (s *MySQLStore) List(ctx context.Context, filter *approvalflow.Filter) ([]*approvalflow.Request, int64, error) {
	var conditions []string
	var args []interface{}

	if filter == nil {
		filter = approvalflow.NewFilter()
	}

	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			placeholders[i] = "?"
			args = append(args, status)
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, filter.Kind)
	}
	if filter.RequesterID != "" {
		conditions = append(conditions, "requester_id = ?")
		args = append(args, filter.RequesterID)
	}
	if !filter.StartTime.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.StartTime)
	}
	if !filter.EndTime.IsZero() {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, filter.EndTime)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM approval_requests %s", whereClause)
	var total int64
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, classify("list", err)
	}

	query := fmt.Sprintf(`
		SELECT %s FROM approval_requests
		%s
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, requestColumns, whereClause)

	args = append(args, filter.Limit, filter.Offset)
	requests, err := s.queryRequests(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}

	return requests, total, nil
}

// ============================================================================
// History Operations
// ============================================================================

// InsertHistory appends one history entry. History rows are append-only.
func (s *MySQLStore) InsertHistory(ctx context.Context, entry *approvalflow.HistoryEntry) error {
	query := `
		INSERT INTO approval_history (
			request_id, action, actor_id, actor_role,
			previous_status, new_status, comments, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		entry.RequestID, entry.Action, entry.ActorID, entry.ActorRole,
		entry.PreviousStatus, entry.NewStatus, entry.Comments, entry.CreatedAt,
	)
	if err != nil {
		return classify("insert history", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	entry.ID = id

	return nil
}

// History retrieves a request's history, oldest first.
func (s *MySQLStore) History(ctx context.Context, requestID string) ([]*approvalflow.HistoryEntry, error) {
	query := `
		SELECT id, request_id, action, actor_id, actor_role,
			previous_status, new_status, comments, created_at
		FROM approval_history
		WHERE request_id = ?
		ORDER BY id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, requestID)
	if err != nil {
		return nil, classify("history", err)
	}
	defer rows.Close()

	var entries []*approvalflow.HistoryEntry
	for rows.Next() {
		entry := &approvalflow.HistoryEntry{}
		err := rows.Scan(
			&entry.ID, &entry.RequestID, &entry.Action, &entry.ActorID, &entry.ActorRole,
			&entry.PreviousStatus, &entry.NewStatus, &entry.Comments, &entry.CreatedAt,
		)
		if err != nil {
			return nil, classify("scan history", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, classify("iterate history", err)
	}

	return entries, nil
}

// ============================================================================
// Reminder Queries
// ============================================================================

// ListPendingOlderThan retrieves requests sitting in a pending status
// whose last update is older than the given duration.
func (s *MySQLStore) ListPendingOlderThan(ctx context.Context, olderThan time.Duration) ([]*approvalflow.Request, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM approval_requests
		WHERE status LIKE 'pending_%%' AND updated_at < ?
		ORDER BY updated_at ASC
	`, requestColumns)

	threshold := time.Now().Add(-olderThan)
	return s.queryRequests(ctx, query, threshold)
}

// ============================================================================
// Helper Functions
// ============================================================================

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRequest(row rowScanner) (*approvalflow.Request, error) {
	req := &approvalflow.Request{}
	var requestNumber sql.NullString
	var breakdown, approvals []byte
	var rejection, returnInfo sql.NullString

	err := row.Scan(
		&req.ID, &requestNumber, &req.Kind, &req.Status, &req.RequesterID, &req.RequesterName,
		&req.DepartmentID, &req.RequesterIsHead, &req.HasParentDepartment, &req.HasBudget, &req.TotalBudget,
		&breakdown, &approvals, &rejection, &returnInfo, &req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	req.RequestNumber = requestNumber.String
	if len(breakdown) > 0 {
		if err := json.Unmarshal(breakdown, &req.ExpenseBreakdown); err != nil {
			return nil, fmt.Errorf("unmarshal expense_breakdown: %w", err)
		}
	}
	if len(approvals) > 0 {
		if err := json.Unmarshal(approvals, &req.Approvals); err != nil {
			return nil, fmt.Errorf("unmarshal approvals: %w", err)
		}
	}
	if rejection.Valid && rejection.String != "" {
		req.Rejection = &approvalflow.RejectionRecord{}
		if err := json.Unmarshal([]byte(rejection.String), req.Rejection); err != nil {
			return nil, fmt.Errorf("unmarshal rejection: %w", err)
		}
	}
	if returnInfo.Valid && returnInfo.String != "" {
		req.ReturnInfo = &approvalflow.ReturnRecord{}
		if err := json.Unmarshal([]byte(returnInfo.String), req.ReturnInfo); err != nil {
			return nil, fmt.Errorf("unmarshal return_info: %w", err)
		}
	}

	return req, nil
}

func (s *MySQLStore) queryRequests(ctx context.Context, query string, args ...interface{}) ([]*approvalflow.Request, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("query requests", err)
	}
	defer rows.Close()

	var requests []*approvalflow.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, classify("scan request", err)
		}
		requests = append(requests, req)
	}

	if err := rows.Err(); err != nil {
		return nil, classify("iterate requests", err)
	}

	return requests, nil
}

func applyPatch(req *approvalflow.Request, patch *approvalflow.Patch) {
	req.Status = patch.Status
	if patch.Approval != nil {
		if req.Approvals == nil {
			req.Approvals = make(map[approvalflow.Stage]*approvalflow.ApprovalRecord)
		}
		rec := patch.Approval.Record
		req.Approvals[patch.Approval.Stage] = &rec
	}
	if patch.Rejection != nil {
		rej := *patch.Rejection
		req.Rejection = &rej
	}
	if patch.ReturnInfo != nil {
		ret := *patch.ReturnInfo
		req.ReturnInfo = &ret
	}
	if patch.ClearReturn {
		req.ReturnInfo = nil
	}
	if patch.Budget != nil {
		req.ExpenseBreakdown = make([]approvalflow.ExpenseItem, len(patch.Budget.Breakdown))
		copy(req.ExpenseBreakdown, patch.Budget.Breakdown)
		req.TotalBudget = patch.Budget.Total
	}
}

func marshalNullable(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case *approvalflow.RejectionRecord:
		if t == nil {
			return nil, nil
		}
	case *approvalflow.ReturnRecord:
		if t == nil {
			return nil, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func wrapScan(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return approvalflow.NewStoreError(approvalflow.CodeNotFound, op, approvalflow.ErrRequestNotFound)
	}
	return classify(op, err)
}

// classify maps a driver error to a stable store error code. The
// request-number unique index (error 1062 naming the index) marks the
// benign numbering race; foreign keys (1452) mark validation failures;
// connection and deadline errors mark unknown-outcome transport
// failures.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 1062:
			if strings.Contains(mysqlErr.Message, "request_number") {
				return approvalflow.NewStoreError(approvalflow.CodeDuplicateNumber, op, err)
			}
			return approvalflow.NewStoreError(approvalflow.CodeConflict, op, err)
		case 1452:
			return approvalflow.NewStoreError(approvalflow.CodeForeignKey, op, err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return approvalflow.NewStoreError(approvalflow.CodeTimeout, op, err)
	}

	return approvalflow.NewStoreError(approvalflow.CodeInternal, op, err)
}
