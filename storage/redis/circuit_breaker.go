package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// State is the position of one circuit
type State int

const (
	// StateClosed: calls flow through and failures are counted
	StateClosed State = iota
	// StateOpen: calls are rejected without touching the backend
	StateOpen
	// StateHalfOpen: probe calls are let through to test recovery
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreakerConfig defines the trip and recovery parameters of a circuit
type CircuitBreakerConfig struct {
	// Name identifies this circuit (e.g., "receipt-archive")
	Name string
	// FailureThreshold is the failure count inside FailureWindow that opens
	// the circuit
	FailureThreshold int64
	// SuccessThreshold is the probe-success count that closes a half-open
	// circuit
	SuccessThreshold int64
	// Timeout is how long the circuit stays open before probing
	Timeout time.Duration
	// FailureWindow is the sliding window failures are counted over
	FailureWindow time.Duration
}

// DefaultCircuitBreakerConfig returns sensible defaults
func DefaultCircuitBreakerConfig(name string) *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 3,
		Timeout:          30 * time.Second,
		FailureWindow:    60 * time.Second,
	}
}

// CircuitState is the circuit record persisted in Redis. Keeping it there
// rather than in-process means every node replica sees the same circuit:
// if the archive database is down for one, probes are not multiplied by
// the replica count.
type CircuitState struct {
	State           State     `json:"state"`
	Failures        int64     `json:"failures"`
	Successes       int64     `json:"successes"`
	LastFailure     time.Time `json:"last_failure"`
	LastStateChange time.Time `json:"last_state_change"`
}

// CircuitBreaker is a Redis-backed circuit breaker. The gate node wraps
// the receipt archive path in one: when Postgres starts failing, receipts
// are shed fast instead of piling timeouts into the post-commit pipeline.
type CircuitBreaker struct {
	rdb    redis.UniversalClient
	mu     sync.Mutex
	prefix string
}

// ErrCircuitOpen is returned when the circuit is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

const failuresSuffix = ":failures"

// NewCircuitBreaker creates a new distributed circuit breaker
func NewCircuitBreaker(rdb redis.UniversalClient) *CircuitBreaker {
	return &CircuitBreaker{
		rdb:    rdb,
		prefix: "qugate:circuit:",
	}
}

// GetState loads a circuit, applying the open-to-half-open transition if
// its open timeout has elapsed. Unknown circuits start closed.
func (cb *CircuitBreaker) GetState(ctx context.Context, cfg *CircuitBreakerConfig) (*CircuitState, error) {
	state, err := cb.load(ctx, cfg.Name)
	if err != nil {
		return nil, err
	}

	if state.State == StateOpen && time.Since(state.LastStateChange) >= cfg.Timeout {
		state.State = StateHalfOpen
		state.Successes = 0
		state.LastStateChange = time.Now()
		if err := cb.save(ctx, cfg.Name, state); err != nil {
			return nil, err
		}
	}

	return state, nil
}

// Allow reports whether a call may proceed. Half-open lets probes through;
// whether they close or reopen the circuit is decided by RecordSuccess and
// RecordFailure.
func (cb *CircuitBreaker) Allow(ctx context.Context, cfg *CircuitBreakerConfig) error {
	state, err := cb.GetState(ctx, cfg)
	if err != nil {
		return err
	}
	if state.State == StateOpen {
		return ErrCircuitOpen
	}
	return nil
}

// RecordSuccess counts a successful call. Only half-open circuits care;
// enough successes close the circuit and clear its counters.
func (cb *CircuitBreaker) RecordSuccess(ctx context.Context, cfg *CircuitBreakerConfig) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	state, err := cb.GetState(ctx, cfg)
	if err != nil {
		return err
	}
	if state.State != StateHalfOpen {
		return nil
	}

	state.Successes++
	if state.Successes >= cfg.SuccessThreshold {
		*state = CircuitState{State: StateClosed, LastStateChange: time.Now()}
	}
	return cb.save(ctx, cfg.Name, state)
}

// RecordFailure counts a failed call. A half-open circuit reopens on any
// failure; a closed one opens once the window count crosses the threshold.
func (cb *CircuitBreaker) RecordFailure(ctx context.Context, cfg *CircuitBreakerConfig) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	state, err := cb.GetState(ctx, cfg)
	if err != nil {
		return err
	}

	now := time.Now()
	state.LastFailure = now
	state.Failures++

	windowed, err := cb.countFailure(ctx, cfg)
	if err != nil {
		return err
	}

	switch {
	case state.State == StateHalfOpen:
		state.State = StateOpen
		state.Successes = 0
		state.LastStateChange = now
	case state.State == StateClosed && windowed >= cfg.FailureThreshold:
		state.State = StateOpen
		state.LastStateChange = now
	}

	return cb.save(ctx, cfg.Name, state)
}

// Reset deletes a circuit, returning it to closed
func (cb *CircuitBreaker) Reset(ctx context.Context, cfg *CircuitBreakerConfig) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	pipe := cb.rdb.Pipeline()
	pipe.Del(ctx, cb.prefix+cfg.Name)
	pipe.Del(ctx, cb.prefix+cfg.Name+failuresSuffix)
	_, err := pipe.Exec(ctx)
	return err
}

// GetAllCircuits scans for every known circuit and returns their states
func (cb *CircuitBreaker) GetAllCircuits(ctx context.Context) (map[string]*CircuitState, error) {
	circuits := make(map[string]*CircuitState)

	iter := cb.rdb.Scan(ctx, 0, cb.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if strings.HasSuffix(key, failuresSuffix) {
			continue
		}

		data, err := cb.rdb.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}
		var state CircuitState
		if err := json.Unmarshal(data, &state); err != nil {
			continue
		}
		circuits[strings.TrimPrefix(key, cb.prefix)] = &state
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}

	return circuits, nil
}

func (cb *CircuitBreaker) load(ctx context.Context, name string) (*CircuitState, error) {
	data, err := cb.rdb.Get(ctx, cb.prefix+name).Bytes()
	if errors.Is(err, redis.Nil) {
		return &CircuitState{State: StateClosed, LastStateChange: time.Now()}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get circuit state: %w", err)
	}

	var state CircuitState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal circuit state: %w", err)
	}
	return &state, nil
}

func (cb *CircuitBreaker) save(ctx context.Context, name string, state *CircuitState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal circuit state: %w", err)
	}
	return cb.rdb.Set(ctx, cb.prefix+name, data, 24*time.Hour).Err()
}

// countFailure records a failure timestamp and returns the number of
// failures still inside the sliding window
func (cb *CircuitBreaker) countFailure(ctx context.Context, cfg *CircuitBreakerConfig) (int64, error) {
	key := cb.prefix + cfg.Name + failuresSuffix
	now := time.Now()
	windowStart := now.Add(-cfg.FailureWindow).UnixMilli()

	pipe := cb.rdb.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", windowStart))
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})
	countCmd := pipe.ZCard(ctx, key)
	pipe.PExpire(ctx, key, cfg.FailureWindow)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to record failure: %w", err)
	}
	return countCmd.Val(), nil
}
