package executor

import (
	"sync"
	"sync/atomic"

	"github.com/gammazero/workerpool"
)

// Sink consumes a committed receipt. Sinks run off the commit path on the
// pipeline's worker pool; a slow archive or a full websocket buffer can never
// stall the next call.
type Sink func(Receipt)

// Pipeline fans committed receipts out to registered sinks over a bounded
// worker pool, keeping goroutine count under control during bursts.
type Pipeline struct {
	wp    *workerpool.WorkerPool
	sinks []Sink

	submitted atomic.Int64
	delivered atomic.Int64

	mu      sync.RWMutex
	stopped bool
}

// NewPipeline creates a pipeline with the given worker bound.
func NewPipeline(maxWorkers int) *Pipeline {
	if maxWorkers <= 0 {
		maxWorkers = 8
	}
	return &Pipeline{wp: workerpool.New(maxWorkers)}
}

// AddSink registers a receipt consumer. Must be called before Publish.
func (p *Pipeline) AddSink(s Sink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sinks = append(p.sinks, s)
}

// Publish hands a receipt to every sink. Returns false if the pipeline has
// been stopped.
func (p *Pipeline) Publish(r Receipt) bool {
	p.mu.RLock()
	if p.stopped {
		p.mu.RUnlock()
		return false
	}
	sinks := p.sinks
	p.mu.RUnlock()

	p.submitted.Add(1)
	p.wp.Submit(func() {
		for _, s := range sinks {
			s(r)
		}
		p.delivered.Add(1)
	})
	return true
}

// Stop drains pending receipts and shuts the pool down.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()

	p.wp.StopWait()
}

// PipelineStats reports delivery counters.
type PipelineStats struct {
	Submitted int64 `json:"submitted"`
	Delivered int64 `json:"delivered"`
	Pending   int64 `json:"pending"`
}

// Stats returns current delivery counters.
func (p *Pipeline) Stats() PipelineStats {
	submitted := p.submitted.Load()
	delivered := p.delivered.Load()
	return PipelineStats{
		Submitted: submitted,
		Delivered: delivered,
		Pending:   submitted - delivered,
	}
}
