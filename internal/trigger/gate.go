package trigger

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Gate is the on/off switch for the automated trigger. Backed by redis in
// production so every instance sees the same state; an in-memory fallback
// covers tests and redis outages.
type Gate interface {
	Enabled(ctx context.Context) (bool, error)
	SetEnabled(ctx context.Context, enabled bool) error
}

// Locker provides a best-effort mutual-exclusion lock per session, closing
// the window where two triggers race on the same session before the
// executing status lands.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

const gateKey = "pledgedesk:auto_trigger:enabled"

type redisGate struct {
	client *redis.Client
}

// NewRedisGate creates a redis-backed trigger gate
func NewRedisGate(client *redis.Client) Gate {
	return &redisGate{client: client}
}

func (g *redisGate) Enabled(ctx context.Context) (bool, error) {
	value, err := g.client.Get(ctx, gateKey).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return value == "1", nil
}

func (g *redisGate) SetEnabled(ctx context.Context, enabled bool) error {
	value := "0"
	if enabled {
		value = "1"
	}
	return g.client.Set(ctx, gateKey, value, 0).Err()
}

type redisLocker struct {
	client *redis.Client
}

// NewRedisLocker creates a redis-backed session lock using SETNX
func NewRedisLocker(client *redis.Client) Locker {
	return &redisLocker{client: client}
}

func (l *redisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, key, "1", ttl).Result()
}

func (l *redisLocker) Release(ctx context.Context, key string) error {
	return l.client.Del(ctx, key).Err()
}

// memoryGate is the single-process fallback when redis is unavailable.
type memoryGate struct {
	mu      sync.Mutex
	enabled bool
}

// NewMemoryGate creates an in-process trigger gate
func NewMemoryGate(enabled bool) Gate {
	return &memoryGate{enabled: enabled}
}

func (g *memoryGate) Enabled(ctx context.Context) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.enabled, nil
}

func (g *memoryGate) SetEnabled(ctx context.Context, enabled bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.enabled = enabled
	return nil
}

type memoryLocker struct {
	mu    sync.Mutex
	locks map[string]time.Time
}

// NewMemoryLocker creates an in-process session lock
func NewMemoryLocker() Locker {
	return &memoryLocker{locks: make(map[string]time.Time)}
}

func (l *memoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if expiry, held := l.locks[key]; held && time.Now().Before(expiry) {
		return false, nil
	}
	l.locks[key] = time.Now().Add(ttl)
	return true, nil
}

func (l *memoryLocker) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.locks, key)
	return nil
}
