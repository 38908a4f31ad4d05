// Package nats provides NATS JetStream integration for the gate node.
// Call submissions ride a work-queue stream so each call is executed exactly
// once, in stream order; committed gate events go out on a replayable stream.
package nats

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Stream and subject constants
const (
	GateCallsStream   = "GATE_CALLS"
	GateCallsSubject  = "gate.calls"
	GateEventsStream  = "GATE_EVENTS"
	GateEventsSubject = "gate.events"
)

// Config holds NATS connection configuration
type Config struct {
	// Connection URLs (comma-separated for cluster)
	URLs string

	// Authentication
	Token    string
	User     string
	Password string

	// Reconnection
	MaxReconnects   int
	ReconnectWait   time.Duration
	ReconnectJitter time.Duration
}

// DefaultConfig returns development defaults
func DefaultConfig() *Config {
	return &Config{
		URLs:            "nats://localhost:4222",
		MaxReconnects:   -1, // Unlimited
		ReconnectWait:   2 * time.Second,
		ReconnectJitter: 500 * time.Millisecond,
	}
}

// Client wraps a NATS connection with JetStream support
type Client struct {
	nc  *nats.Conn
	js  jetstream.JetStream
	mu  sync.RWMutex
	cfg *Config
}

// NewClient creates a new NATS client with JetStream
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(cfg.ReconnectJitter, cfg.ReconnectJitter*2),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				fmt.Printf("NATS disconnected: %v\n", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			fmt.Printf("NATS reconnected to %s\n", nc.ConnectedUrl())
		}),
	}

	// Authentication
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	} else if cfg.User != "" && cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}

	nc, err := nats.Connect(cfg.URLs, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &Client{
		nc:  nc,
		js:  js,
		cfg: cfg,
	}, nil
}

// Close drains the NATS connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nc != nil {
		c.nc.Drain()
	}
}

// JetStream returns the JetStream context
func (c *Client) JetStream() jetstream.JetStream {
	return c.js
}

// Connection returns the underlying NATS connection
func (c *Client) Connection() *nats.Conn {
	return c.nc
}

// SetupStreams initializes the call feed and event streams
func (c *Client) SetupStreams(ctx context.Context) error {
	// Call feed: work queue so every submitted call is delivered once.
	// Stream order is the total call order the contract commits in.
	_, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        GateCallsStream,
		Description: "Submitted gate procedure calls awaiting execution",
		Subjects:    []string{"gate.calls.>"},
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      24 * time.Hour,
		MaxBytes:    1024 * 1024 * 1024, // 1GB
		MaxMsgs:     1000000,
		Discard:     jetstream.DiscardOld,
		Replicas:    1, // Increase for HA
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create call stream: %w", err)
	}

	// Event stream: committed outcomes, kept for replay by downstream
	// consumers (archive, websocket hub, auditors).
	_, err = c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        GateEventsStream,
		Description: "Committed gate call outcomes",
		Subjects:    []string{"gate.events.>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		MaxBytes:    512 * 1024 * 1024, // 512MB
		MaxMsgs:     1000000,
		Discard:     jetstream.DiscardOld,
		Replicas:    1,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create event stream: %w", err)
	}

	return nil
}

// CallEnvelope is the JSON envelope a submitted call travels in. Payload is
// the base64 of the procedure's fixed-size wire encoding.
type CallEnvelope struct {
	CallID    string    `json:"call_id"`
	Procedure string    `json:"procedure"` // "CREATE", "SEND", "CLOSE", "UPDATE"
	Caller    string    `json:"caller"`    // hex public key
	Attached  uint64    `json:"attached"`
	Payload   string    `json:"payload"`
	Submitted time.Time `json:"submitted"`
}

// EncodePayload encodes a wire payload for the envelope.
func EncodePayload(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodePayload decodes the envelope payload back to wire bytes.
func (e *CallEnvelope) DecodePayload() ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	return b, nil
}

// PublishCall publishes a call submission onto the work queue
func (c *Client) PublishCall(ctx context.Context, env *CallEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	subject := fmt.Sprintf("gate.calls.%s", env.Procedure)
	_, err = c.js.Publish(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("failed to publish call: %w", err)
	}

	return nil
}

// GateEvent is the committed outcome of one call, published for observers.
type GateEvent struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"` // "GATE_CREATED", "GATE_FORWARDED", "GATE_CLOSED", "GATE_UPDATED", "GATE_REJECTED", "DUST_BURNED", "EPOCH_END"
	CallID     string    `json:"call_id,omitempty"`
	Ordinal    uint64    `json:"ordinal"`
	GateID     uint64    `json:"gate_id,omitempty"`
	Caller     string    `json:"caller,omitempty"`
	Attached   uint64    `json:"attached,omitempty"`
	Status     string    `json:"status"`
	StatusCode int64     `json:"status_code"`
	Burned     uint64    `json:"burned,omitempty"`
	Epoch      uint16    `json:"epoch"`
	Timestamp  time.Time `json:"timestamp"`
}

// PublishGateEvent publishes a committed outcome
func (c *Client) PublishGateEvent(ctx context.Context, event *GateEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := fmt.Sprintf("gate.events.%s", event.EventType)
	_, err = c.js.Publish(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// ConsumerConfig configures a work queue consumer
type ConsumerConfig struct {
	StreamName    string
	ConsumerName  string
	FilterSubject string
	MaxDeliver    int
	AckWait       time.Duration
	MaxAckPending int
}

// DefaultConsumerConfig returns sensible consumer defaults
func DefaultConsumerConfig(stream, name string) *ConsumerConfig {
	return &ConsumerConfig{
		StreamName:    stream,
		ConsumerName:  name,
		MaxDeliver:    3,
		AckWait:       30 * time.Second,
		MaxAckPending: 1000,
	}
}

// CreateWorkQueueConsumer creates a durable work queue consumer
func (c *Client) CreateWorkQueueConsumer(ctx context.Context, cfg *ConsumerConfig) (jetstream.Consumer, error) {
	consumerCfg := jetstream.ConsumerConfig{
		Durable:       cfg.ConsumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    cfg.MaxDeliver,
		AckWait:       cfg.AckWait,
		MaxAckPending: cfg.MaxAckPending,
	}

	if cfg.FilterSubject != "" {
		consumerCfg.FilterSubject = cfg.FilterSubject
	}

	consumer, err := c.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, consumerCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	return consumer, nil
}
