package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	redisBreakerDuration = 30 * time.Second
	redisDialTimeout     = 2 * time.Second
)

var errNoRedisAddr = errors.New("rate limit redis: missing address")

// SettingsProvider supplies the current limiter settings.
type SettingsProvider func() SettingsConfig

// RedisClientFactory constructs a Redis client for the given options.
type RedisClientFactory func(options *redis.Options) *redis.Client

// Manager throttles clients per scope. Counters live in Redis when configured so every
// replica shares one budget; while Redis is failing, each process counts in memory.
type Manager struct {
	settings SettingsProvider
	nowFn    func() time.Time
	dial     RedisClientFactory
	memory   *MemoryLimiter
	breaker  breaker

	mu        sync.Mutex
	shared    *RedisLimiter
	sharedFor redis.Options
}

// NewManager constructs a Manager with default dependencies when nil.
func NewManager(provider SettingsProvider, nowFn func() time.Time, newRedisClient RedisClientFactory) *Manager {
	if provider == nil {
		provider = StaticSettings(SettingsConfig{})
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if newRedisClient == nil {
		newRedisClient = redis.NewClient
	}
	return &Manager{
		settings: provider,
		nowFn:    nowFn,
		dial:     newRedisClient,
		memory:   NewMemoryLimiter(),
	}
}

// AllowClient checks clientIP against the limit configured for scope.
func (m *Manager) AllowClient(ctx context.Context, scope Scope, clientIP string) (Result, error) {
	if m == nil {
		return Result{Allowed: true}, nil
	}
	cfg := m.settings()
	return m.allow(ctx, cfg, KeyForClient(scope, clientIP), cfg.LimitFor(scope))
}

// Allow counts one hit on key against a per-second limit. A non-positive limit or empty key always passes.
func (m *Manager) Allow(ctx context.Context, key string, limit int) (Result, error) {
	if m == nil {
		return Result{Allowed: true}, nil
	}
	return m.allow(ctx, m.settings(), key, limit)
}

func (m *Manager) allow(ctx context.Context, cfg SettingsConfig, key string, limit int) (Result, error) {
	if limit <= 0 || key == "" {
		return Result{Allowed: true}, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	now := m.nowFn()
	if cfg.RedisEnabled && !m.breaker.open(now) {
		result, errShared := m.allowShared(ctx, cfg, key, limit, now)
		if errShared == nil {
			return result, nil
		}
		m.breaker.trip(errShared, now)
	}
	return m.memory.Allow(ctx, key, limit, now)
}

func (m *Manager) allowShared(ctx context.Context, cfg SettingsConfig, key string, limit int, now time.Time) (Result, error) {
	limiter, errConnect := m.sharedLimiter(ctx, cfg)
	if errConnect != nil {
		return Result{}, errConnect
	}
	return limiter.Allow(ctx, key, limit, now)
}

// sharedLimiter returns the Redis limiter for cfg, reconnecting when the connection settings changed.
func (m *Manager) sharedLimiter(ctx context.Context, cfg SettingsConfig) (*RedisLimiter, error) {
	opts := redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: max(cfg.RedisDB, 0)}
	if opts.Addr == "" {
		return nil, errNoRedisAddr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shared != nil && m.shared.prefix == cfg.RedisPrefix &&
		m.sharedFor.Addr == opts.Addr && m.sharedFor.Password == opts.Password && m.sharedFor.DB == opts.DB {
		return m.shared, nil
	}
	m.closeSharedLocked()

	client := m.dial(&opts)
	pingCtx, cancel := context.WithTimeout(ctx, redisDialTimeout)
	defer cancel()
	if errPing := client.Ping(pingCtx).Err(); errPing != nil {
		_ = client.Close()
		return nil, errPing
	}
	m.shared = NewRedisLimiter(client, cfg.RedisPrefix)
	m.sharedFor = opts
	return m.shared, nil
}

// Close releases the Redis client, if one was opened.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeSharedLocked()
}

func (m *Manager) closeSharedLocked() error {
	if m.shared == nil {
		return nil
	}
	errClose := m.shared.client.Close()
	m.shared = nil
	m.sharedFor = redis.Options{}
	return errClose
}

func (m *Manager) isBreakerActive(now time.Time) bool {
	return m.breaker.open(now)
}

// breaker keeps requests off Redis for redisBreakerDuration after a failure.
type breaker struct {
	mu    sync.Mutex
	until time.Time
}

func (b *breaker) open(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return now.Before(b.until)
}

func (b *breaker) trip(err error, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if now.Before(b.until) {
		return
	}
	b.until = now.Add(redisBreakerDuration)
	log.WithError(err).WithField("retry_at", b.until).Warn("rate limit: redis unavailable, counting in memory")
}
