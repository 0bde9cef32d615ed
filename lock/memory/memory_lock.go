// Package memory implements lock.Locker in process memory.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"approvalflow/lock"
)

var _ lock.Locker = (*MemoryLocker)(nil)
var _ lock.Handle = (*memoryHandle)(nil)

// MemoryLocker is an in-process Locker. Suitable for single-instance
// deployments and tests.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	token     string
	expiresAt time.Time
}

// NewMemoryLocker creates an empty MemoryLocker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*entry)}
}

// Acquire acquires the lock for key. Expired locks are reclaimed.
func (l *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (lock.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if e, held := l.locks[key]; held && now.Before(e.expiresAt) {
		return nil, fmt.Errorf("lock acquisition failed for %s: %w", key, lock.ErrNotAcquired)
	}

	token := fmt.Sprintf("%d", now.UnixNano())
	l.locks[key] = &entry{token: token, expiresAt: now.Add(ttl)}

	return &memoryHandle{locker: l, key: key, token: token}, nil
}

type memoryHandle struct {
	locker *MemoryLocker
	key    string
	token  string

	mu       sync.Mutex
	released bool
}

// Extend extends the TTL if the lock is still held by this handle.
func (h *memoryHandle) Extend(ctx context.Context, ttl time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return fmt.Errorf("lock already released")
	}

	h.locker.mu.Lock()
	defer h.locker.mu.Unlock()

	e, held := h.locker.locks[h.key]
	if !held || e.token != h.token {
		return fmt.Errorf("lock not held or expired")
	}
	e.expiresAt = time.Now().Add(ttl)
	return nil
}

// Release releases the lock if this handle still owns it.
func (h *memoryHandle) Release(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil
	}
	h.released = true

	h.locker.mu.Lock()
	defer h.locker.mu.Unlock()

	if e, held := h.locker.locks[h.key]; held && e.token == h.token {
		delete(h.locker.locks, h.key)
	}
	return nil
}

// Key returns the locked key.
func (h *memoryHandle) Key() string {
	return h.key
}
