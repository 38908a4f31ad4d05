// Package consumers provides the JetStream consumers of the gate node.
// The call feed is the node's one mutating ingress: it pulls submitted calls
// off the work queue in stream order and commits them through the executor.
package consumers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/qugate/gate-node/contract"
	"github.com/qugate/gate-node/executor"
	natsClient "github.com/qugate/gate-node/messaging/nats"
)

// CallFeed consumes the GATE_CALLS work queue and executes each call.
// It runs exactly one worker: the stream's delivery order is the contract's
// total call order, and parallel fetches would destroy it.
type CallFeed struct {
	nats     *natsClient.Client
	exec     *executor.Executor
	pipeline *executor.Pipeline
	consumer jetstream.Consumer

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	batchSize int
}

// CallFeedConfig configures the call feed consumer
type CallFeedConfig struct {
	BatchSize int           // Messages per fetch
	AckWait   time.Duration // Redelivery window for unacked calls
}

// DefaultCallFeedConfig returns sensible defaults
func DefaultCallFeedConfig() *CallFeedConfig {
	return &CallFeedConfig{
		BatchSize: 64,
		AckWait:   30 * time.Second,
	}
}

// NewCallFeed creates the call feed consumer
func NewCallFeed(
	ctx context.Context,
	nats *natsClient.Client,
	exec *executor.Executor,
	pipeline *executor.Pipeline,
	cfg *CallFeedConfig,
) (*CallFeed, error) {
	if cfg == nil {
		cfg = DefaultCallFeedConfig()
	}

	consumerCfg := natsClient.DefaultConsumerConfig(
		natsClient.GateCallsStream,
		"call-feed-consumer",
	)
	consumerCfg.FilterSubject = "gate.calls.>"
	consumerCfg.AckWait = cfg.AckWait
	// One in-flight batch; ordering depends on it.
	consumerCfg.MaxAckPending = cfg.BatchSize

	consumer, err := nats.CreateWorkQueueConsumer(ctx, consumerCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	feedCtx, cancel := context.WithCancel(ctx)

	return &CallFeed{
		nats:      nats,
		exec:      exec,
		pipeline:  pipeline,
		consumer:  consumer,
		ctx:       feedCtx,
		cancel:    cancel,
		batchSize: cfg.BatchSize,
	}, nil
}

// Start begins consuming the call feed
func (f *CallFeed) Start() {
	log.Println("Starting CallFeed (single ordered worker)")
	f.wg.Add(1)
	go f.worker()
}

// Stop gracefully stops the consumer
func (f *CallFeed) Stop() {
	log.Println("Stopping CallFeed...")
	f.cancel()
	f.wg.Wait()
	log.Println("CallFeed stopped")
}

func (f *CallFeed) worker() {
	defer f.wg.Done()

	for {
		select {
		case <-f.ctx.Done():
			return
		default:
			msgs, err := f.consumer.Fetch(f.batchSize, jetstream.FetchMaxWait(time.Second))
			if err != nil {
				if f.ctx.Err() != nil {
					return
				}
				// Timeout is expected when no calls are pending
				continue
			}

			for msg := range msgs.Messages() {
				if err := f.processMessage(msg); err != nil {
					log.Printf("CallFeed: dropping malformed submission: %v", err)
					// Redelivery cannot fix a bad envelope; ack and move on
					msg.Ack()
					continue
				}
				msg.Ack()
			}

			if msgs.Error() != nil && f.ctx.Err() == nil {
				log.Printf("CallFeed: fetch error: %v", msgs.Error())
			}
		}
	}
}

// processMessage commits one submitted call. Only envelope-level failures
// return an error; a call the contract rejects still commits (as a refund or
// burn) and yields a receipt like any other.
func (f *CallFeed) processMessage(msg jetstream.Msg) error {
	var env natsClient.CallEnvelope
	if err := json.Unmarshal(msg.Data(), &env); err != nil {
		return fmt.Errorf("failed to unmarshal envelope: %w", err)
	}

	call, err := CallFromEnvelope(&env)
	if err != nil {
		return err
	}

	receipt, err := f.exec.Execute(call)
	if err != nil {
		// Malformed payload: the executor refunded the attached value and
		// the receipt records that. Still worth surfacing downstream.
		log.Printf("CallFeed: call %s rejected at decode: %v", env.CallID, err)
	}

	if f.pipeline != nil {
		f.pipeline.Publish(receipt)
	}
	return nil
}

// CallFromEnvelope converts a wire envelope into an executor call.
func CallFromEnvelope(env *natsClient.CallEnvelope) (executor.Call, error) {
	proc, err := ParseProcedure(env.Procedure)
	if err != nil {
		return executor.Call{}, err
	}
	caller, err := contract.ParsePublicKey(env.Caller)
	if err != nil {
		return executor.Call{}, fmt.Errorf("envelope %s: %w", env.CallID, err)
	}
	payload, err := env.DecodePayload()
	if err != nil {
		return executor.Call{}, fmt.Errorf("envelope %s: %w", env.CallID, err)
	}
	return executor.Call{
		ID:        env.CallID,
		Procedure: proc,
		Caller:    caller,
		Attached:  env.Attached,
		Payload:   payload,
	}, nil
}

// ParseProcedure maps an envelope procedure name to its identifier.
func ParseProcedure(name string) (executor.Procedure, error) {
	switch name {
	case "CREATE":
		return executor.ProcCreate, nil
	case "SEND":
		return executor.ProcSend, nil
	case "CLOSE":
		return executor.ProcClose, nil
	case "UPDATE":
		return executor.ProcUpdate, nil
	default:
		return 0, fmt.Errorf("unknown procedure %q", name)
	}
}
