package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"approvalflow/lock"
)

// ============================================================================
// Test Helpers
// ============================================================================

// mockRedisClient is a minimal mock for testing lock behavior
type mockRedisClient struct {
	redis.Cmdable
	mu         sync.Mutex
	locks      map[string]string // key -> token
	setNXCalls []setNXCall
}

type setNXCall struct {
	key   string
	value string
	ttl   time.Duration
}

func newMockRedisClient() *mockRedisClient {
	return &mockRedisClient{
		locks: make(map[string]string),
	}
}

// SetNX implements the SetNX command for testing
func (m *mockRedisClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.setNXCalls = append(m.setNXCalls, setNXCall{key: key, value: value.(string), ttl: expiration})

	cmd := redis.NewBoolCmd(ctx)
	if _, exists := m.locks[key]; exists {
		cmd.SetVal(false) // Lock already held
	} else {
		m.locks[key] = value.(string)
		cmd.SetVal(true)
	}
	return cmd
}

// EvalSha implements the EvalSha command. Scripts are dispatched by
// hash: the extend script keeps the lock, the release script deletes it.
func (m *mockRedisClient) EvalSha(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	m.mu.Lock()
	defer m.mu.Unlock()

	cmd := redis.NewCmd(ctx)
	if len(keys) == 0 || len(args) == 0 {
		cmd.SetVal(int64(0))
		return cmd
	}

	key := keys[0]
	token, _ := args[0].(string)

	storedToken, exists := m.locks[key]
	if !exists || storedToken != token {
		cmd.SetVal(int64(0))
		return cmd
	}

	if sha1 == releaseScript.Hash() {
		delete(m.locks, key)
	}
	cmd.SetVal(int64(1))
	return cmd
}

// ============================================================================
// Acquisition and release
// ============================================================================

func TestRedisLocker_Acquire(t *testing.T) {
	mock := newMockRedisClient()
	locker := NewRedisLocker(mock)

	handle, err := locker.Acquire(context.Background(), "decide:req-1", 30*time.Second)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if handle.Key() != "decide:req-1" {
		t.Errorf("expected key 'decide:req-1', got '%s'", handle.Key())
	}

	if len(mock.setNXCalls) != 1 {
		t.Fatalf("expected 1 SetNX call, got %d", len(mock.setNXCalls))
	}
	call := mock.setNXCalls[0]
	if call.key != "approvalflow:lock:decide:req-1" {
		t.Errorf("expected key 'approvalflow:lock:decide:req-1', got '%s'", call.key)
	}
	if call.ttl != 30*time.Second {
		t.Errorf("expected TTL 30s, got %v", call.ttl)
	}
	if call.value == "" {
		t.Error("expected a non-empty holder token")
	}
}

func TestRedisLocker_Acquire_EmptyKey(t *testing.T) {
	locker := NewRedisLocker(newMockRedisClient())

	if _, err := locker.Acquire(context.Background(), "", 30*time.Second); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestRedisLocker_Acquire_AlreadyLocked(t *testing.T) {
	mock := newMockRedisClient()
	mock.locks["approvalflow:lock:decide:req-1"] = "other-token"

	locker := NewRedisLocker(mock)

	_, err := locker.Acquire(context.Background(), "decide:req-1", 30*time.Second)
	if !errors.Is(err, lock.ErrNotAcquired) {
		t.Fatalf("expected ErrNotAcquired, got %v", err)
	}
}

func TestRedisLocker_WithPrefix(t *testing.T) {
	mock := newMockRedisClient()
	locker := NewRedisLocker(mock, WithPrefix("custom:prefix:"))

	if _, err := locker.Acquire(context.Background(), "key1", 30*time.Second); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if mock.setNXCalls[0].key != "custom:prefix:key1" {
		t.Errorf("expected key 'custom:prefix:key1', got '%s'", mock.setNXCalls[0].key)
	}
}

func TestRedisHandle_Release(t *testing.T) {
	mock := newMockRedisClient()
	locker := NewRedisLocker(mock)

	handle, err := locker.Acquire(context.Background(), "decide:req-1", 30*time.Second)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	if err := handle.Release(context.Background()); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, exists := mock.locks["approvalflow:lock:decide:req-1"]; exists {
		t.Error("lock should be deleted after release")
	}

	// Second acquirer succeeds now
	if _, err := locker.Acquire(context.Background(), "decide:req-1", 30*time.Second); err != nil {
		t.Fatalf("re-acquire after release failed: %v", err)
	}
}

func TestRedisHandle_Release_Idempotent(t *testing.T) {
	mock := newMockRedisClient()
	locker := NewRedisLocker(mock)

	handle, err := locker.Acquire(context.Background(), "decide:req-1", 30*time.Second)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	if err := handle.Release(context.Background()); err != nil {
		t.Fatalf("first Release failed: %v", err)
	}
	if err := handle.Release(context.Background()); err != nil {
		t.Fatalf("second Release failed: %v", err)
	}
}

func TestRedisHandle_Release_NotOwner(t *testing.T) {
	mock := newMockRedisClient()
	locker := NewRedisLocker(mock)

	handle, err := locker.Acquire(context.Background(), "decide:req-1", 30*time.Second)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	// Lock expired and was reclaimed by another holder
	mock.mu.Lock()
	mock.locks["approvalflow:lock:decide:req-1"] = "other-token"
	mock.mu.Unlock()

	if err := handle.Release(context.Background()); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	mock.mu.Lock()
	defer mock.mu.Unlock()
	if mock.locks["approvalflow:lock:decide:req-1"] != "other-token" {
		t.Error("release must not delete a lock held by someone else")
	}
}

// ============================================================================
// Extension
// ============================================================================

func TestRedisHandle_Extend(t *testing.T) {
	mock := newMockRedisClient()
	locker := NewRedisLocker(mock)

	handle, err := locker.Acquire(context.Background(), "remind:req-1", 10*time.Second)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	if err := handle.Extend(context.Background(), 30*time.Second); err != nil {
		t.Fatalf("Extend failed: %v", err)
	}
	if _, exists := mock.locks["approvalflow:lock:remind:req-1"]; !exists {
		t.Error("extend must not delete the lock")
	}
}

func TestRedisHandle_Extend_AfterLoss(t *testing.T) {
	mock := newMockRedisClient()
	locker := NewRedisLocker(mock)

	handle, err := locker.Acquire(context.Background(), "remind:req-1", 10*time.Second)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	mock.mu.Lock()
	mock.locks["approvalflow:lock:remind:req-1"] = "other-token"
	mock.mu.Unlock()

	if err := handle.Extend(context.Background(), 30*time.Second); err == nil {
		t.Fatal("expected error extending a lost lock")
	}
}

func TestRedisHandle_Extend_AfterRelease(t *testing.T) {
	mock := newMockRedisClient()
	locker := NewRedisLocker(mock)

	handle, err := locker.Acquire(context.Background(), "remind:req-1", 10*time.Second)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := handle.Release(context.Background()); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	if err := handle.Extend(context.Background(), 30*time.Second); err == nil {
		t.Fatal("expected error extending a released lock")
	}
}
