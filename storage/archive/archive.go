// Package archive wires the receipt archive behind a circuit breaker.
// Archiving is best-effort by construction: the contract state is the source
// of truth and the chain can be rebuilt from a replay, so a failing database
// sheds load instead of backing up the post-commit pipeline.
package archive

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/qugate/gate-node/executor"
	"github.com/qugate/gate-node/storage/postgres"
	"github.com/qugate/gate-node/storage/redis"
)

// CircuitName identifies the archive circuit in Redis.
const CircuitName = "receipt-archive"

// GuardedArchive is a receipt sink that stores receipts in Postgres,
// short-circuiting when the database is unhealthy.
type GuardedArchive struct {
	pg      *postgres.Client
	breaker *redis.CircuitBreaker
	cfg     *redis.CircuitBreakerConfig
	timeout time.Duration
}

// New creates a guarded archive. The breaker may be nil, in which case every
// receipt goes straight to Postgres.
func New(pg *postgres.Client, breaker *redis.CircuitBreaker) *GuardedArchive {
	return &GuardedArchive{
		pg:      pg,
		breaker: breaker,
		cfg:     redis.DefaultCircuitBreakerConfig(CircuitName),
		timeout: 5 * time.Second,
	}
}

// Sink returns the pipeline sink function.
func (a *GuardedArchive) Sink() executor.Sink {
	return func(r executor.Receipt) {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		a.store(ctx, r)
	}
}

func (a *GuardedArchive) store(ctx context.Context, r executor.Receipt) {
	if a.breaker != nil {
		if err := a.breaker.Allow(ctx, a.cfg); err != nil {
			if errors.Is(err, redis.ErrCircuitOpen) {
				log.Printf("receipt archive: circuit open, dropping ordinal %d", r.Ordinal)
			} else {
				log.Printf("receipt archive: breaker check failed: %v", err)
			}
			return
		}
	}

	_, err := a.pg.InsertReceipt(ctx, r)
	if a.breaker != nil {
		if err != nil {
			if berr := a.breaker.RecordFailure(ctx, a.cfg); berr != nil {
				log.Printf("receipt archive: failed to record breaker failure: %v", berr)
			}
		} else if berr := a.breaker.RecordSuccess(ctx, a.cfg); berr != nil {
			log.Printf("receipt archive: failed to record breaker success: %v", berr)
		}
	}
	if err != nil {
		log.Printf("receipt archive: failed to store ordinal %d: %v", r.Ordinal, err)
	}
}
