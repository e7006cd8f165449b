// Package cache provides Redis-based caching for market snapshots and
// analysis timers, with an in-process fallback when Redis is unavailable.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"metaapi-trading-bot/config"
)

// ErrMiss is returned when a key is not cached
var ErrMiss = errors.New("cache miss")

// Key prefixes for different cache types
const (
	PrefixMarketSnapshot = "market:snapshot:%s"
	PrefixLastAnalysis   = "analysis:last:%s:%s" // strategy, commodity
)

type memEntry struct {
	value     string
	expiresAt time.Time
}

// CacheService provides Redis-based caching with graceful degradation.
// Writes always land in the local map too, so reads keep working while
// Redis is down or disabled.
type CacheService struct {
	client       *redis.Client
	config       config.RedisConfig
	logger       zerolog.Logger
	mu           sync.RWMutex
	healthy      bool
	failureCount int
	lastCheck    time.Time
	local        map[string]memEntry
	now          func() time.Time

	// Circuit breaker settings
	maxFailures   int
	checkInterval time.Duration
}

// NewCacheService creates a CacheService. When Redis is disabled or the
// first ping fails the service starts in local-only mode.
func NewCacheService(ctx context.Context, cfg config.RedisConfig, logger zerolog.Logger) *CacheService {
	cs := NewMemoryCache()
	cs.config = cfg
	cs.logger = logger.With().Str("component", "Cache").Logger()

	if !cfg.Enabled {
		cs.logger.Info().Msg("Redis disabled, using in-process cache")
		return cs
	}

	cs.client = redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 1,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := cs.client.Ping(pingCtx).Err(); err != nil {
		cs.logger.Warn().Err(err).Str("address", cfg.Address).Msg("Initial Redis connection failed, running degraded")
		cs.lastCheck = cs.now()
		return cs
	}

	cs.healthy = true
	cs.lastCheck = cs.now()
	cs.logger.Info().Str("address", cfg.Address).Msg("Redis connected")
	return cs
}

// NewMemoryCache creates a cache without Redis
func NewMemoryCache() *CacheService {
	return &CacheService{
		logger:        zerolog.Nop(),
		local:         make(map[string]memEntry),
		now:           time.Now,
		maxFailures:   3,
		checkInterval: 30 * time.Second,
	}
}

// IsHealthy returns whether Redis is currently available
func (cs *CacheService) IsHealthy() bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.client != nil && cs.healthy
}

// recordFailure tracks a Redis operation failure for circuit breaker
func (cs *CacheService) recordFailure(err error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.failureCount++
	if cs.failureCount >= cs.maxFailures {
		if cs.healthy {
			cs.logger.Warn().Err(err).Int("failures", cs.failureCount).Msg("Redis marked unhealthy")
		}
		cs.healthy = false
		cs.lastCheck = cs.now()
	}
}

// recordSuccess resets the failure counter on successful operation
func (cs *CacheService) recordSuccess() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if !cs.healthy {
		cs.logger.Info().Msg("Redis recovered")
	}
	cs.healthy = true
	cs.failureCount = 0
	cs.lastCheck = cs.now()
}

// checkHealth pings Redis again once the check interval has passed
func (cs *CacheService) checkHealth(ctx context.Context) {
	if cs.client == nil {
		return
	}
	cs.mu.RLock()
	shouldCheck := !cs.healthy && cs.now().Sub(cs.lastCheck) >= cs.checkInterval
	cs.mu.RUnlock()

	if !shouldCheck {
		return
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := cs.client.Ping(pingCtx).Err(); err == nil {
		cs.recordSuccess()
		return
	}
	cs.mu.Lock()
	cs.lastCheck = cs.now()
	cs.mu.Unlock()
}

func (cs *CacheService) getLocal(key string) (string, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	e, ok := cs.local[key]
	if !ok {
		return "", false
	}
	if !e.expiresAt.IsZero() && cs.now().After(e.expiresAt) {
		return "", false
	}
	return e.value, true
}

func (cs *CacheService) setLocal(key, value string, ttl time.Duration) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	e := memEntry{value: value}
	if ttl > 0 {
		e.expiresAt = cs.now().Add(ttl)
	}
	cs.local[key] = e
}

// Get retrieves a value, preferring Redis and falling back to the local copy
func (cs *CacheService) Get(ctx context.Context, key string) (string, error) {
	cs.checkHealth(ctx)

	if cs.IsHealthy() {
		result, err := cs.client.Get(ctx, key).Result()
		switch {
		case err == nil:
			cs.recordSuccess()
			return result, nil
		case errors.Is(err, redis.Nil):
			return "", ErrMiss
		default:
			cs.recordFailure(err)
		}
	}

	if v, ok := cs.getLocal(key); ok {
		return v, nil
	}
	return "", ErrMiss
}

// Set stores a value with TTL. A Redis failure is returned but the local copy is kept.
func (cs *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	var data string
	switch v := value.(type) {
	case string:
		data = v
	case []byte:
		data = string(v)
	default:
		jsonData, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to marshal value: %w", err)
		}
		data = string(jsonData)
	}

	cs.setLocal(key, data, ttl)

	cs.checkHealth(ctx)
	if !cs.IsHealthy() {
		return nil
	}

	if err := cs.client.Set(ctx, key, data, ttl).Err(); err != nil {
		cs.recordFailure(err)
		return fmt.Errorf("redis set failed: %w", err)
	}

	cs.recordSuccess()
	return nil
}

// Delete removes a key from both tiers
func (cs *CacheService) Delete(ctx context.Context, key string) error {
	cs.mu.Lock()
	delete(cs.local, key)
	cs.mu.Unlock()

	if !cs.IsHealthy() {
		return nil
	}
	if err := cs.client.Del(ctx, key).Err(); err != nil {
		cs.recordFailure(err)
		return fmt.Errorf("redis delete failed: %w", err)
	}
	cs.recordSuccess()
	return nil
}

// GetJSON retrieves and unmarshals a JSON value from cache
func (cs *CacheService) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := cs.Get(ctx, key)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return fmt.Errorf("failed to unmarshal cached value: %w", err)
	}

	return nil
}

// SetJSON marshals and stores a JSON value in cache
func (cs *CacheService) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return cs.Set(ctx, key, value, ttl)
}

// Close closes the Redis connection
func (cs *CacheService) Close() error {
	if cs.client != nil {
		return cs.client.Close()
	}
	return nil
}

// Stats returns cache statistics for monitoring
type Stats struct {
	RedisEnabled bool   `json:"redis_enabled"`
	Healthy      bool   `json:"healthy"`
	FailureCount int    `json:"failure_count"`
	Address      string `json:"address"`
	LocalKeys    int    `json:"local_keys"`
}

// GetStats returns current cache statistics
func (cs *CacheService) GetStats() Stats {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	return Stats{
		RedisEnabled: cs.client != nil,
		Healthy:      cs.healthy,
		FailureCount: cs.failureCount,
		Address:      cs.config.Address,
		LocalKeys:    len(cs.local),
	}
}

// MarketSnapshotKey generates a cache key for a commodity's latest snapshot
func MarketSnapshotKey(commodity string) string {
	return fmt.Sprintf(PrefixMarketSnapshot, commodity)
}

// LastAnalysisKey generates a cache key for a strategy's last analysis of a commodity
func LastAnalysisKey(strategy, commodity string) string {
	return fmt.Sprintf(PrefixLastAnalysis, strategy, commodity)
}
