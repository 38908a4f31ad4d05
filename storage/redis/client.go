// Package redis provides the gate node's Redis integration: sliding-window
// submission limiting per caller key and a circuit breaker guarding the
// receipt archive. Neither touches contract state; Redis going away degrades
// the edge, never the replicated core.
package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection configuration
type Config struct {
	// Sentinel configuration
	MasterName    string
	SentinelAddrs []string

	// Standalone configuration (fallback)
	Addr     string
	Password string
	DB       int

	// Pool configuration
	PoolSize     int
	MinIdleConns int

	// Timeouts
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns a default configuration for local development
func DefaultConfig() *Config {
	return &Config{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     100,
		MinIdleConns: 10,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Client wraps the Redis client with limiter and breaker capabilities
type Client struct {
	rdb            redis.UniversalClient
	rateLimiter    *RateLimiter
	circuitBreaker *CircuitBreaker
	mu             sync.RWMutex
}

// NewClient creates a new Redis client, preferring Sentinel when configured
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	var rdb redis.UniversalClient

	if len(cfg.SentinelAddrs) > 0 && cfg.MasterName != "" {
		rdb = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    cfg.MasterName,
			SentinelAddrs: cfg.SentinelAddrs,
			Password:      cfg.Password,
			DB:            cfg.DB,
			PoolSize:      cfg.PoolSize,
			MinIdleConns:  cfg.MinIdleConns,
			ReadTimeout:   cfg.ReadTimeout,
			WriteTimeout:  cfg.WriteTimeout,
		})
	} else {
		rdb = redis.NewClient(&redis.Options{
			Addr:         cfg.Addr,
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		})
	}

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{
		rdb:            rdb,
		rateLimiter:    NewRateLimiter(rdb),
		circuitBreaker: NewCircuitBreaker(rdb),
	}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Redis returns the underlying Redis client
func (c *Client) Redis() redis.UniversalClient {
	return c.rdb
}

// RateLimiter returns the submission limiter instance
func (c *Client) RateLimiter() *RateLimiter {
	return c.rateLimiter
}

// CircuitBreaker returns the circuit breaker instance
func (c *Client) CircuitBreaker() *CircuitBreaker {
	return c.circuitBreaker
}
