// Package ratelimit provides per-user fixed-window limiters for the
// chat-completion client.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/izukowska/10xcards/internal/llm"
)

type Config struct {
	Backend  string // none | memory | redis
	Requests int    // allowed per window
	Window   time.Duration
	Prefix   string // redis key prefix
}

// New returns the configured limiter, or nil for the "none" backend.
func New(cfg Config, redisClient *redis.Client) (llm.RateLimiter, error) {
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemory(cfg.Requests, cfg.Window), nil
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("ratelimit: redis backend needs a client")
		}
		return NewRedis(redisClient, cfg.Prefix, cfg.Requests, cfg.Window), nil
	default:
		return nil, fmt.Errorf("ratelimit: unknown backend %q", cfg.Backend)
	}
}

type window struct {
	start time.Time
	count int
}

// sweepFloor bounds how often the sweeper takes the lock.
const sweepFloor = time.Minute

// Memory counts requests per user in fixed windows aligned to the first
// request of each window. Safe for concurrent use. A background sweeper
// drops elapsed windows; Close stops it.
//
// CheckLimit followed by RecordRequest can overshoot the limit by the
// number of concurrent callers. Allow checks and records under one lock.
type Memory struct {
	limit  int
	period time.Duration
	now    func() time.Time

	mu    sync.Mutex
	users map[string]*window

	stopSweep chan struct{}
	closeOnce sync.Once
}

func NewMemory(limit int, period time.Duration) *Memory {
	m := &Memory{
		limit:     limit,
		period:    period,
		now:       time.Now,
		users:     make(map[string]*window),
		stopSweep: make(chan struct{}),
	}
	go m.sweepLoop(max(period, sweepFloor))
	return m
}

// CheckLimit reports whether userID may send another request. Unseen users
// and elapsed windows count as zero and are not stored.
func (m *Memory) CheckLimit(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w := m.live(userID)
	return w == nil || w.count < m.limit, nil
}

func (m *Memory) RecordRequest(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current(userID).count++
	return nil
}

// Allow records the request only when it fits in the current window.
func (m *Memory) Allow(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if w := m.live(userID); w != nil && w.count >= m.limit {
		return false, nil
	}
	m.current(userID).count++
	return true, nil
}

// live returns the open window for userID, or nil. Caller must hold mu.
func (m *Memory) live(userID string) *window {
	w, ok := m.users[userID]
	if !ok || m.now().Sub(w.start) >= m.period {
		return nil
	}
	return w
}

// current returns the live window for userID, starting a new one when the
// previous window elapsed. Caller must hold mu.
func (m *Memory) current(userID string) *window {
	w := m.live(userID)
	if w == nil {
		w = &window{start: m.now()}
		m.users[userID] = w
	}
	return w
}

func (m *Memory) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stopSweep:
			return
		}
	}
}

// sweep deletes every elapsed window.
func (m *Memory) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for id, w := range m.users {
		if now.Sub(w.start) >= m.period {
			delete(m.users, id)
		}
	}
}

// Len returns the number of tracked users.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

func (m *Memory) Close() error {
	m.closeOnce.Do(func() { close(m.stopSweep) })
	return nil
}

// Redis shares counters across replicas with INCR + EXPIRE. The key expires
// with the window, so a missing key means a fresh window.
//
// As with Memory, CheckLimit followed by RecordRequest can overshoot under
// concurrency. Allow uses the INCR result and cannot.
type Redis struct {
	client *redis.Client
	prefix string
	limit  int
	period time.Duration
}

func NewRedis(client *redis.Client, prefix string, limit int, period time.Duration) *Redis {
	return &Redis{client: client, prefix: prefix, limit: limit, period: period}
}

func (r *Redis) key(userID string) string {
	if r.prefix == "" {
		return "ratelimit:" + userID
	}
	return r.prefix + ":ratelimit:" + userID
}

func (r *Redis) CheckLimit(ctx context.Context, userID string) (bool, error) {
	n, err := r.client.Get(ctx, r.key(userID)).Int()
	if errors.Is(err, redis.Nil) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get failed: %w", err)
	}
	return n < r.limit, nil
}

func (r *Redis) RecordRequest(ctx context.Context, userID string) error {
	key := r.key(userID)

	pipe := r.client.TxPipeline()
	pipe.Incr(ctx, key)
	// NX keeps the expiry of an open window.
	pipe.ExpireNX(ctx, key, r.period)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis incr failed: %w", err)
	}
	return nil
}

// Allow increments the window counter and admits the request when the new
// count is within the limit. Denied requests still count.
func (r *Redis) Allow(ctx context.Context, userID string) (bool, error) {
	key := r.key(userID)

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, r.period)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis incr failed: %w", err)
	}
	return incr.Val() <= int64(r.limit), nil
}
