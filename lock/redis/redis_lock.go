// Package redis implements lock.Locker backed by Redis.
package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"approvalflow/lock"

	"github.com/redis/go-redis/v9"
)

var _ lock.Locker = (*RedisLocker)(nil)
var _ lock.Handle = (*redisHandle)(nil)

// RedisLocker implements advisory locking using Redis SET NX.
type RedisLocker struct {
	client redis.Cmdable
	prefix string
}

// Option is a functional option for configuring RedisLocker.
type Option func(*RedisLocker)

// WithPrefix sets the key prefix for locks.
func WithPrefix(prefix string) Option {
	return func(l *RedisLocker) {
		l.prefix = prefix
	}
}

// NewRedisLocker creates a Redis-based locker.
func NewRedisLocker(client redis.Cmdable, opts ...Option) *RedisLocker {
	l := &RedisLocker{
		client: client,
		prefix: "approvalflow:lock:",
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire acquires the lock for key using SET NX with expiration.
// A random token identifies the holder so that only the owner can
// extend or release the lock.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (lock.Handle, error) {
	if key == "" {
		return nil, errors.New("empty lock key")
	}

	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate lock token: %w", err)
	}

	lockKey := l.prefix + key
	ok, err := l.client.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lock acquisition failed for %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("lock acquisition failed for %s: %w", key, lock.ErrNotAcquired)
	}

	return &redisHandle{
		client:  l.client,
		lockKey: lockKey,
		key:     key,
		token:   token,
	}, nil
}

type redisHandle struct {
	client  redis.Cmdable
	lockKey string
	key     string
	token   string

	mu       sync.Mutex
	released bool
}

// extendScript extends the lock only if we still hold it.
var extendScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// releaseScript deletes the lock only if we hold it.
var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// Extend extends the TTL of the held lock.
func (h *redisHandle) Extend(ctx context.Context, ttl time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return errors.New("lock already released")
	}

	result, err := extendScript.Run(ctx, h.client, []string{h.lockKey}, h.token, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to extend lock %s: %w", h.key, err)
	}
	if result == 0 {
		return errors.New("lock not held or expired")
	}
	return nil
}

// Release releases the lock if we still own it.
func (h *redisHandle) Release(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return nil
	}
	h.released = true

	_, err := releaseScript.Run(ctx, h.client, []string{h.lockKey}, h.token).Result()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", h.key, err)
	}
	return nil
}

// Key returns the locked key.
func (h *redisHandle) Key() string {
	return h.key
}

func generateToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
