// Package memory provides an in-memory Store for tests and local use.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"approvalflow"
)

// MemoryStore is an in-memory implementation of the Store interface.
// Request numbers are assigned from a process-local sequence, which
// mirrors the database-side numbering of the MySQL store.
type MemoryStore struct {
	mu       sync.RWMutex
	requests map[string]*approvalflow.Request
	history  map[string][]*approvalflow.HistoryEntry
	seq      int64
	histSeq  int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests: make(map[string]*approvalflow.Request),
		history:  make(map[string][]*approvalflow.HistoryEntry),
	}
}

var _ approvalflow.Store = (*MemoryStore)(nil)

// Insert persists a new request and assigns its request number.
func (s *MemoryStore) Insert(ctx context.Context, req *approvalflow.Request) (*approvalflow.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.requests[req.ID]; exists {
		return nil, approvalflow.NewStoreError(approvalflow.CodeConflict, "insert",
			fmt.Errorf("request %s already exists", req.ID))
	}

	s.seq++
	stored := req.Clone()
	stored.RequestNumber = fmt.Sprintf("TR-%05d", s.seq)
	now := time.Now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	s.requests[stored.ID] = stored
	return stored.Clone(), nil
}

// Update applies a patch iff the current status matches.
func (s *MemoryStore) Update(ctx context.Context, id string, expectedPriorStatus approvalflow.RequestStatus, patch *approvalflow.Patch) (*approvalflow.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.requests[id]
	if !ok {
		return nil, approvalflow.NewStoreError(approvalflow.CodeNotFound, "update",
			fmt.Errorf("request %s: %w", id, approvalflow.ErrRequestNotFound))
	}
	if approvalflow.NormalizeStatus(stored.Status) != approvalflow.NormalizeStatus(expectedPriorStatus) {
		return nil, approvalflow.NewStoreError(approvalflow.CodeConflict, "update",
			fmt.Errorf("request %s is %s, expected %s", id, stored.Status, expectedPriorStatus))
	}

	stored.Status = patch.Status
	if patch.Approval != nil {
		if stored.Approvals == nil {
			stored.Approvals = make(map[approvalflow.Stage]*approvalflow.ApprovalRecord)
		}
		rec := patch.Approval.Record
		stored.Approvals[patch.Approval.Stage] = &rec
	}
	if patch.Rejection != nil {
		rej := *patch.Rejection
		stored.Rejection = &rej
	}
	if patch.ReturnInfo != nil {
		ret := *patch.ReturnInfo
		stored.ReturnInfo = &ret
	}
	if patch.ClearReturn {
		stored.ReturnInfo = nil
	}
	if patch.Budget != nil {
		stored.ExpenseBreakdown = cloneItems(patch.Budget.Breakdown)
		stored.TotalBudget = patch.Budget.Total
	}
	stored.UpdatedAt = time.Now()

	return stored.Clone(), nil
}

// Get retrieves a request by ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (*approvalflow.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.requests[id]
	if !ok {
		return nil, approvalflow.NewStoreError(approvalflow.CodeNotFound, "get",
			fmt.Errorf("request %s: %w", id, approvalflow.ErrRequestNotFound))
	}
	return stored.Clone(), nil
}

// List lists requests matching the filter, newest first.
func (s *MemoryStore) List(ctx context.Context, filter *approvalflow.Filter) ([]*approvalflow.Request, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*approvalflow.Request
	for _, req := range s.requests {
		if matches(req, filter) {
			matched = append(matched, req)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	if filter != nil {
		if filter.Offset > 0 {
			if filter.Offset >= len(matched) {
				matched = nil
			} else {
				matched = matched[filter.Offset:]
			}
		}
		if filter.Limit > 0 && len(matched) > filter.Limit {
			matched = matched[:filter.Limit]
		}
	}

	out := make([]*approvalflow.Request, len(matched))
	for i, req := range matched {
		out[i] = req.Clone()
	}
	return out, total, nil
}

// InsertHistory appends one history entry.
func (s *MemoryStore) InsertHistory(ctx context.Context, entry *approvalflow.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.histSeq++
	stored := *entry
	stored.ID = s.histSeq
	s.history[entry.RequestID] = append(s.history[entry.RequestID], &stored)
	return nil
}

// History retrieves a request's history, oldest first.
func (s *MemoryStore) History(ctx context.Context, requestID string) ([]*approvalflow.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.history[requestID]
	out := make([]*approvalflow.HistoryEntry, len(entries))
	for i, e := range entries {
		copied := *e
		out[i] = &copied
	}
	return out, nil
}

// ListPendingOlderThan retrieves pending requests not updated recently.
func (s *MemoryStore) ListPendingOlderThan(ctx context.Context, olderThan time.Duration) ([]*approvalflow.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().Add(-olderThan)
	var out []*approvalflow.Request
	for _, req := range s.requests {
		if approvalflow.IsPending(req.Status) && req.UpdatedAt.Before(cutoff) {
			out = append(out, req.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	return out, nil
}

func matches(req *approvalflow.Request, filter *approvalflow.Filter) bool {
	if filter == nil {
		return true
	}
	if len(filter.Status) > 0 {
		found := false
		for _, st := range filter.Status {
			if approvalflow.NormalizeStatus(req.Status) == approvalflow.NormalizeStatus(st) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.Kind != "" && req.Kind != filter.Kind {
		return false
	}
	if filter.RequesterID != "" && req.RequesterID != filter.RequesterID {
		return false
	}
	if !filter.StartTime.IsZero() && req.CreatedAt.Before(filter.StartTime) {
		return false
	}
	if !filter.EndTime.IsZero() && req.CreatedAt.After(filter.EndTime) {
		return false
	}
	return true
}

func cloneItems(items []approvalflow.ExpenseItem) []approvalflow.ExpenseItem {
	out := make([]approvalflow.ExpenseItem, len(items))
	copy(out, items)
	return out
}
