// Package epoch provides the background worker that advances the node's
// epoch clock. The rollover itself is an ordinary contract transition and
// runs through the executor, so every replica applying the same call
// sequence sweeps the same gates; only the scheduling here is node-local.
package epoch

import (
	"context"
	"log"
	"time"

	"github.com/qugate/gate-node/executor"
	"github.com/qugate/gate-node/websocket"
)

// Worker advances epochs on a fixed interval and publishes node stats
type Worker struct {
	exec     *executor.Executor
	pipeline *executor.Pipeline
	hub      *websocket.Hub

	epochInterval time.Duration
	statsInterval time.Duration
	autoAdvance   bool
}

// Config configures the epoch worker
type Config struct {
	// EpochInterval is the wall-clock length of one epoch
	EpochInterval time.Duration
	// StatsInterval is how often node stats are pushed to websocket clients
	StatsInterval time.Duration
	// AutoAdvance enables the epoch ticker. Disabled, epochs only advance
	// through the admin endpoint.
	AutoAdvance bool
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		EpochInterval: 10 * time.Minute,
		StatsInterval: 15 * time.Second,
		AutoAdvance:   true,
	}
}

// NewWorker creates a new epoch worker. The hub is optional.
func NewWorker(exec *executor.Executor, pipeline *executor.Pipeline, hub *websocket.Hub, cfg *Config) *Worker {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Worker{
		exec:          exec,
		pipeline:      pipeline,
		hub:           hub,
		epochInterval: cfg.EpochInterval,
		statsInterval: cfg.StatsInterval,
		autoAdvance:   cfg.AutoAdvance,
	}
}

// Start runs the worker loop until the context is cancelled
func (w *Worker) Start(ctx context.Context) {
	log.Printf("⏱️  Starting epoch worker (epoch: %v, auto-advance: %v)", w.epochInterval, w.autoAdvance)

	epochTicker := time.NewTicker(w.epochInterval)
	defer epochTicker.Stop()

	statsTicker := time.NewTicker(w.statsInterval)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("⏱️  Epoch worker stopped")
			return
		case <-epochTicker.C:
			if w.autoAdvance {
				w.advance()
			}
		case <-statsTicker.C:
			w.publishStats()
		}
	}
}

// advance ends the current epoch and fans the sweep receipt out
func (w *Worker) advance() {
	receipt := w.exec.EndEpoch()

	log.Printf("⏱️  Epoch %d ended: %d expiry refunds, %d burned", receipt.Epoch, len(receipt.Transfers), receipt.Burned)

	if w.pipeline != nil {
		w.pipeline.Publish(receipt)
	}
	if w.hub != nil {
		w.hub.BroadcastEpochEnd(w.exec.Epoch())
	}
}

// publishStats pushes the current counters to websocket clients
func (w *Worker) publishStats() {
	if w.hub == nil || w.hub.ClientCount() == 0 {
		return
	}

	count := w.exec.GetCount()
	fees := w.exec.GetFees()

	w.hub.BroadcastNodeStats(&websocket.NodeStats{
		TotalGates:  count.TotalGates,
		ActiveGates: count.ActiveGates,
		TotalBurned: count.TotalBurned,
		CurrentFee:  fees.CurrentFee,
		Epoch:       w.exec.Epoch(),
	})
}
