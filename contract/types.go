// Package contract implements the QuGate forwarding contract: a deterministic,
// tick-driven state machine that accepts value transfers and re-routes them to
// one or more recipients according to a programmable forwarding mode.
//
// Every node replaying the same ordered call sequence must arrive at
// byte-identical state, so the package uses no wall-clock time, no floating
// point and no external entropy. Procedures never return Go errors to the
// caller; every outcome is a status code and the attached value is always
// either forwarded, refunded or burned.
package contract

import (
	"encoding/hex"
	"fmt"
)

// Capacity and policy constants, matching the deployed contract parameters.
const (
	// MaxRecipients bounds both the recipient list and the sender whitelist.
	MaxRecipients = 8

	// MaxRatio is the largest weight allowed for a single recipient.
	MaxRatio = 10000

	DefaultMaxGates     = 4096
	DefaultCreationFee  = 1000
	DefaultMinSend      = 10
	DefaultExpiryEpochs = 50

	// FeeEscalationStep: the creation fee grows by one baseFee for every
	// this many active gates (spam pressure valve).
	FeeEscalationStep = 1024
)

// PublicKey is a 32-byte ledger identity. The zero key is never a valid
// forwarding target.
type PublicKey [32]byte

// IsZero reports whether the key is the all-zero key.
func (k PublicKey) IsZero() bool {
	return k == PublicKey{}
}

// String returns the hex encoding of the key.
func (k PublicKey) String() string {
	return hex.EncodeToString(k[:])
}

// ParsePublicKey decodes a 64-character hex string into a PublicKey.
func ParsePublicKey(s string) (PublicKey, error) {
	var k PublicKey
	b, err := hex.DecodeString(s)
	if err != nil {
		return k, fmt.Errorf("invalid public key: %w", err)
	}
	if len(b) != len(k) {
		return k, fmt.Errorf("invalid public key length: %d", len(b))
	}
	copy(k[:], b)
	return k, nil
}

// Mode selects the forwarding algorithm a gate executes on SEND.
type Mode uint8

const (
	ModeSplit Mode = iota
	ModeRoundRobin
	ModeThreshold
	ModeRandom
	ModeConditional
)

// Valid reports whether m is one of the five defined modes.
func (m Mode) Valid() bool {
	return m <= ModeConditional
}

func (m Mode) String() string {
	switch m {
	case ModeSplit:
		return "SPLIT"
	case ModeRoundRobin:
		return "ROUND_ROBIN"
	case ModeThreshold:
		return "THRESHOLD"
	case ModeRandom:
		return "RANDOM"
	case ModeConditional:
		return "CONDITIONAL"
	default:
		return fmt.Sprintf("MODE(%d)", uint8(m))
	}
}

// ratioWeighted reports whether the mode interprets ratios as weights.
// ROUND_ROBIN ignores ratios entirely; THRESHOLD only uses recipients[0].
func (m Mode) ratioWeighted() bool {
	return m == ModeSplit || m == ModeRandom || m == ModeConditional
}

// Status is the outcome of a procedure call. Zero is success; negative
// values are rejections. Rejections never leave partial state behind:
// the attached value is refunded or burned and the record is untouched.
type Status int64

const (
	StatusOK                    Status = 0
	StatusInvalidGateID         Status = -1
	StatusGateNotActive         Status = -2
	StatusUnauthorized          Status = -3
	StatusInvalidMode           Status = -4
	StatusInvalidRecipientCount Status = -5
	StatusInvalidRatio          Status = -6
	StatusInsufficientFee       Status = -7
	StatusNoFreeSlots           Status = -8
	StatusDustAmount            Status = -9
	StatusInvalidThreshold      Status = -10
	StatusInvalidSenderCount    Status = -11
	StatusConditionalRejected   Status = -12
	// StatusMalformedPayload is stamped by the hosting executor when a
	// payload cannot be decoded; such calls never reach the contract.
	StatusMalformedPayload Status = -13
)

// OK reports whether the call succeeded.
func (s Status) OK() bool { return s == StatusOK }

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusInvalidGateID:
		return "INVALID_GATE_ID"
	case StatusGateNotActive:
		return "GATE_NOT_ACTIVE"
	case StatusUnauthorized:
		return "UNAUTHORIZED"
	case StatusInvalidMode:
		return "INVALID_MODE"
	case StatusInvalidRecipientCount:
		return "INVALID_RECIPIENT_COUNT"
	case StatusInvalidRatio:
		return "INVALID_RATIO"
	case StatusInsufficientFee:
		return "INSUFFICIENT_FEE"
	case StatusNoFreeSlots:
		return "NO_FREE_SLOTS"
	case StatusDustAmount:
		return "DUST_AMOUNT"
	case StatusInvalidThreshold:
		return "INVALID_THRESHOLD"
	case StatusInvalidSenderCount:
		return "INVALID_SENDER_COUNT"
	case StatusConditionalRejected:
		return "CONDITIONAL_REJECTED"
	case StatusMalformedPayload:
		return "MALFORMED_PAYLOAD"
	default:
		return fmt.Sprintf("STATUS(%d)", int64(s))
	}
}

// Gate is one routing record. Records live in a fixed-capacity array keyed
// by a 1-based id; closed slots are recycled through the free list and fully
// reinitialized on reuse.
//
// CurrentBalance is mode-dependent: the unflushed balance for THRESHOLD, the
// next-recipient cursor for ROUND_ROBIN, the rolling draw state for RANDOM,
// and zero for SPLIT/CONDITIONAL. The typed accessors in modes.go are the
// only readers.
type Gate struct {
	ID     uint64
	Mode   Mode
	Active bool
	Owner  PublicKey

	RecipientCount uint8
	Recipients     [MaxRecipients]PublicKey
	Ratios         [MaxRecipients]uint64
	Threshold      uint64

	AllowedSenderCount uint8
	AllowedSenders     [MaxRecipients]PublicKey

	TotalReceived  uint64
	TotalForwarded uint64
	CurrentBalance uint64

	CreatedEpoch      uint16
	LastActivityEpoch uint16
}

// CallContext carries the already-authenticated inputs of one call: who is
// calling, how much value rides on the call, and where the ledger clock
// stands. The surrounding ledger supplies all of these.
type CallContext struct {
	Caller   PublicKey
	Attached uint64
	Epoch    uint16
	Tick     uint64
}

// Config holds the contract's global parameters. All values are queryable
// via GET_FEES / GET_COUNT; none are implementer secrets.
type Config struct {
	MaxGates     uint64
	BaseFee      uint64
	MinSend      uint64
	ExpiryEpochs uint64
}

// DefaultConfig returns the deployed contract defaults.
func DefaultConfig() Config {
	return Config{
		MaxGates:     DefaultMaxGates,
		BaseFee:      DefaultCreationFee,
		MinSend:      DefaultMinSend,
		ExpiryEpochs: DefaultExpiryEpochs,
	}
}

// Ledger is the surrounding ledger's value mover. The contract only ever
// emits "credit this key" and "burn this amount"; debiting the caller
// happened before the call was delivered.
type Ledger interface {
	// Transfer credits amount to the given key.
	Transfer(to PublicKey, amount uint64)
	// Burn permanently removes amount from circulation.
	Burn(amount uint64)
}

// CreateInput is the CREATE procedure input.
type CreateInput struct {
	Mode               Mode
	RecipientCount     uint8
	Recipients         [MaxRecipients]PublicKey
	Ratios             [MaxRecipients]uint64
	Threshold          uint64
	AllowedSenders     [MaxRecipients]PublicKey
	AllowedSenderCount uint8
}

// CreateOutput reports the assigned gate id and the fee actually burned.
type CreateOutput struct {
	Status  Status
	GateID  uint64
	FeePaid uint64
}

// SendInput is the SEND procedure input.
type SendInput struct {
	GateID uint64
}

// SendOutput is the SEND procedure result.
type SendOutput struct {
	Status Status
}

// CloseInput is the CLOSE procedure input.
type CloseInput struct {
	GateID uint64
}

// CloseOutput is the CLOSE procedure result.
type CloseOutput struct {
	Status Status
}

// UpdateInput is the UPDATE procedure input. There is no mode field: the
// mode is immutable after creation.
type UpdateInput struct {
	GateID             uint64
	RecipientCount     uint8
	Recipients         [MaxRecipients]PublicKey
	Ratios             [MaxRecipients]uint64
	Threshold          uint64
	AllowedSenders     [MaxRecipients]PublicKey
	AllowedSenderCount uint8
}

// UpdateOutput is the UPDATE procedure result.
type UpdateOutput struct {
	Status Status
}

// GateInfo is the GET_GATE query snapshot. It mirrors the fixed 400-byte
// wire record (see codec.go).
type GateInfo struct {
	Mode              Mode
	RecipientCount    uint8
	Active            bool
	Owner             PublicKey
	TotalReceived     uint64
	TotalForwarded    uint64
	CurrentBalance    uint64
	Threshold         uint64
	CreatedEpoch      uint16
	LastActivityEpoch uint16
	Recipients        [MaxRecipients]PublicKey
	Ratios            [MaxRecipients]uint64
}

// CountInfo is the GET_COUNT query result.
type CountInfo struct {
	TotalGates  uint64 // highest id ever issued
	ActiveGates uint64
	TotalBurned uint64
}

// FeeInfo is the GET_FEES query result. CurrentFee already includes the
// escalation multiplier for the present number of active gates.
type FeeInfo struct {
	BaseFee      uint64
	CurrentFee   uint64
	MinSend      uint64
	ExpiryEpochs uint64
}
