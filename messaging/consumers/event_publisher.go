package consumers

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/qugate/gate-node/contract"
	"github.com/qugate/gate-node/executor"
	natsClient "github.com/qugate/gate-node/messaging/nats"
)

// EventPublisher is a receipt sink that turns committed receipts into
// GATE_EVENTS messages. It runs on the post-commit pipeline; a publish
// failure is logged and dropped, never retried into the commit path.
type EventPublisher struct {
	nats    *natsClient.Client
	timeout time.Duration
}

// NewEventPublisher creates the publisher sink.
func NewEventPublisher(nats *natsClient.Client) *EventPublisher {
	return &EventPublisher{nats: nats, timeout: 5 * time.Second}
}

// Sink returns the pipeline sink function.
func (p *EventPublisher) Sink() executor.Sink {
	return func(r executor.Receipt) {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()

		event := EventFromReceipt(r)
		if err := p.nats.PublishGateEvent(ctx, event); err != nil {
			log.Printf("EventPublisher: failed to publish ordinal %d: %v", r.Ordinal, err)
		}
	}
}

// EventFromReceipt classifies a receipt into its event type.
func EventFromReceipt(r executor.Receipt) *natsClient.GateEvent {
	eventType := "GATE_REJECTED"
	switch {
	case r.Procedure == executor.ProcEndEpoch:
		eventType = "EPOCH_END"
	case r.Status == contract.StatusDustAmount:
		eventType = "DUST_BURNED"
	case r.Status.OK() && r.Procedure == executor.ProcCreate:
		eventType = "GATE_CREATED"
	case r.Status.OK() && r.Procedure == executor.ProcSend:
		eventType = "GATE_FORWARDED"
	case r.Status.OK() && r.Procedure == executor.ProcClose:
		eventType = "GATE_CLOSED"
	case r.Status.OK() && r.Procedure == executor.ProcUpdate:
		eventType = "GATE_UPDATED"
	}

	return &natsClient.GateEvent{
		EventID:    uuid.New().String(),
		EventType:  eventType,
		CallID:     r.CallID,
		Ordinal:    r.Ordinal,
		GateID:     r.GateID,
		Caller:     r.Caller.String(),
		Attached:   r.Attached,
		Status:     r.Status.String(),
		StatusCode: int64(r.Status),
		Burned:     r.Burned,
		Epoch:      r.Epoch,
		Timestamp:  time.Now().UTC(),
	}
}
