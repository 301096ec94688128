// Package cache provides Redis-based caching for forecast and strategy
// envelopes with graceful degradation: when Redis is unavailable the caller
// computes cold and the service recovers in the background.
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

	"stock-prediction-api/config"
)

// ErrMiss is returned when a key is absent or the cache is degraded
var ErrMiss = errors.New("cache miss")

// Key prefixes per cached surface
const (
	prefixForecast = "forecast:%s:%s:%d:%s:%s" // symbol, period, horizon, model, feature-set version
	prefixStrategy = "strategy:%s:%s:%s:%s"    // name, symbol, period, feature-set version
)

// Service wraps the Redis client with a small failure-count circuit breaker
type Service struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger

	mu           sync.RWMutex
	healthy      bool
	failureCount int
	lastCheck    time.Time

	maxFailures   int
	checkInterval time.Duration
}

// New creates a cache service. A failed initial connection returns the
// service in degraded mode, not an error.
func New(cfg config.RedisConfig, logger zerolog.Logger) (*Service, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("redis is not enabled in configuration")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	s := &Service{
		client:        client,
		ttl:           time.Duration(cfg.CacheTTL) * time.Second,
		logger:        logger.With().Str("component", "cache").Logger(),
		maxFailures:   3,
		checkInterval: 30 * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("initial redis connection failed, starting degraded")
		return s, nil
	}

	s.healthy = true
	s.lastCheck = time.Now()
	s.logger.Info().Str("address", cfg.Address).Msg("redis connected")
	return s, nil
}

// ForecastKey builds the forecast cache key; version is the feature-set
// version so feature changes invalidate naturally.
func ForecastKey(symbol, period string, horizon int, model, version string) string {
	return fmt.Sprintf(prefixForecast, symbol, period, horizon, model, version)
}

// StrategyKey builds the strategy cache key
func StrategyKey(name, symbol, period, version string) string {
	return fmt.Sprintf(prefixStrategy, name, symbol, period, version)
}

// Get unmarshals the cached value at key into dst; ErrMiss when absent or
// the breaker is open.
func (s *Service) Get(ctx context.Context, key string, dst interface{}) error {
	if !s.IsHealthy() {
		s.checkHealth()
		return ErrMiss
	}

	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return ErrMiss
	}
	if err != nil {
		s.recordFailure()
		return ErrMiss
	}
	s.recordSuccess()

	if err := json.Unmarshal(data, dst); err != nil {
		// A corrupt entry behaves like a miss and gets overwritten
		return ErrMiss
	}
	return nil
}

// Set stores value at key with the configured TTL; failures only trip the
// breaker, the caller's result is already computed.
func (s *Service) Set(ctx context.Context, key string, value interface{}) {
	if !s.IsHealthy() {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache marshal failed")
		return
	}
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		s.recordFailure()
		return
	}
	s.recordSuccess()
}

// IsHealthy reports whether Redis is currently usable
func (s *Service) IsHealthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.healthy
}

// Close releases the Redis client
func (s *Service) Close() error {
	return s.client.Close()
}

func (s *Service) recordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failureCount++
	if s.failureCount >= s.maxFailures && s.healthy {
		s.logger.Warn().Int("failures", s.failureCount).Msg("circuit breaker open, redis marked unhealthy")
		s.healthy = false
	}
}

func (s *Service) recordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.healthy {
		s.logger.Info().Msg("circuit breaker closed, redis recovered")
	}
	s.healthy = true
	s.failureCount = 0
	s.lastCheck = time.Now()
}

// checkHealth pings in the background once the recheck interval has passed
func (s *Service) checkHealth() {
	s.mu.RLock()
	due := !s.healthy && time.Since(s.lastCheck) >= s.checkInterval
	s.mu.RUnlock()
	if !due {
		return
	}

	s.mu.Lock()
	s.lastCheck = time.Now()
	s.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.client.Ping(ctx).Err(); err == nil {
			s.recordSuccess()
		}
	}()
}
