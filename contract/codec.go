package contract

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Wire codec for procedure inputs and query outputs. All integers are
// little-endian and every layout is fixed-size; field order and padding are
// part of the protocol and must not change.
//
//	CREATE input   600 B: mode(1) recipientCount(1) pad(6) recipients(256)
//	                      ratios(64) threshold(8) allowedSenders(256)
//	                      allowedSenderCount(1) pad(7)
//	UPDATE input   608 B: gateId(8) recipientCount(1) pad(7) recipients(256)
//	                      ratios(64) threshold(8) allowedSenders(256)
//	                      allowedSenderCount(1) pad(7)
//	SEND/CLOSE in    8 B: gateId(8)
//	GET_GATE out   400 B: mode(1) recipientCount(1) active(1) pad(5)
//	                      owner(32) totalReceived(8) totalForwarded(8)
//	                      currentBalance(8) threshold(8) createdEpoch(2)
//	                      lastActivityEpoch(2) pad(4) recipients(256)
//	                      ratios(64)
//	GET_COUNT out   24 B: totalGates(8) activeGates(8) totalBurned(8)
//	GET_FEES out    32 B: baseFee(8) currentFee(8) minSend(8) expiryEpochs(8)

const (
	CreateInputSize = 600
	UpdateInputSize = 608
	GateIDInputSize = 8
	GateInfoSize    = 400
	CountInfoSize   = 24
	FeeInfoSize     = 32
)

// ErrShortBuffer is returned when a wire buffer has the wrong length.
var ErrShortBuffer = errors.New("wire buffer has wrong length")

func putKeys(dst []byte, keys *[MaxRecipients]PublicKey) {
	for i := 0; i < MaxRecipients; i++ {
		copy(dst[i*32:], keys[i][:])
	}
}

func getKeys(src []byte, keys *[MaxRecipients]PublicKey) {
	for i := 0; i < MaxRecipients; i++ {
		copy(keys[i][:], src[i*32:(i+1)*32])
	}
}

func putRatios(dst []byte, ratios *[MaxRecipients]uint64) {
	for i := 0; i < MaxRecipients; i++ {
		binary.LittleEndian.PutUint64(dst[i*8:], ratios[i])
	}
}

func getRatios(src []byte, ratios *[MaxRecipients]uint64) {
	for i := 0; i < MaxRecipients; i++ {
		ratios[i] = binary.LittleEndian.Uint64(src[i*8:])
	}
}

// MarshalCreateInput encodes a CREATE input into its 600-byte layout.
func MarshalCreateInput(in CreateInput) []byte {
	b := make([]byte, CreateInputSize)
	b[0] = byte(in.Mode)
	b[1] = in.RecipientCount
	putKeys(b[8:264], &in.Recipients)
	putRatios(b[264:328], &in.Ratios)
	binary.LittleEndian.PutUint64(b[328:336], in.Threshold)
	putKeys(b[336:592], &in.AllowedSenders)
	b[592] = in.AllowedSenderCount
	return b
}

// UnmarshalCreateInput decodes a 600-byte CREATE input.
func UnmarshalCreateInput(b []byte) (CreateInput, error) {
	var in CreateInput
	if len(b) != CreateInputSize {
		return in, fmt.Errorf("create input: %w (got %d)", ErrShortBuffer, len(b))
	}
	in.Mode = Mode(b[0])
	in.RecipientCount = b[1]
	getKeys(b[8:264], &in.Recipients)
	getRatios(b[264:328], &in.Ratios)
	in.Threshold = binary.LittleEndian.Uint64(b[328:336])
	getKeys(b[336:592], &in.AllowedSenders)
	in.AllowedSenderCount = b[592]
	return in, nil
}

// MarshalUpdateInput encodes an UPDATE input into its 608-byte layout.
func MarshalUpdateInput(in UpdateInput) []byte {
	b := make([]byte, UpdateInputSize)
	binary.LittleEndian.PutUint64(b[0:8], in.GateID)
	b[8] = in.RecipientCount
	putKeys(b[16:272], &in.Recipients)
	putRatios(b[272:336], &in.Ratios)
	binary.LittleEndian.PutUint64(b[336:344], in.Threshold)
	putKeys(b[344:600], &in.AllowedSenders)
	b[600] = in.AllowedSenderCount
	return b
}

// UnmarshalUpdateInput decodes a 608-byte UPDATE input.
func UnmarshalUpdateInput(b []byte) (UpdateInput, error) {
	var in UpdateInput
	if len(b) != UpdateInputSize {
		return in, fmt.Errorf("update input: %w (got %d)", ErrShortBuffer, len(b))
	}
	in.GateID = binary.LittleEndian.Uint64(b[0:8])
	in.RecipientCount = b[8]
	getKeys(b[16:272], &in.Recipients)
	getRatios(b[272:336], &in.Ratios)
	in.Threshold = binary.LittleEndian.Uint64(b[336:344])
	getKeys(b[344:600], &in.AllowedSenders)
	in.AllowedSenderCount = b[600]
	return in, nil
}

// MarshalGateID encodes a SEND/CLOSE input.
func MarshalGateID(id uint64) []byte {
	b := make([]byte, GateIDInputSize)
	binary.LittleEndian.PutUint64(b, id)
	return b
}

// UnmarshalGateID decodes a SEND/CLOSE input.
func UnmarshalGateID(b []byte) (uint64, error) {
	if len(b) != GateIDInputSize {
		return 0, fmt.Errorf("gate id input: %w (got %d)", ErrShortBuffer, len(b))
	}
	return binary.LittleEndian.Uint64(b), nil
}

// MarshalGateInfo encodes a GET_GATE snapshot into its fixed 400-byte record.
func MarshalGateInfo(info GateInfo) []byte {
	b := make([]byte, GateInfoSize)
	b[0] = byte(info.Mode)
	b[1] = info.RecipientCount
	if info.Active {
		b[2] = 1
	}
	copy(b[8:40], info.Owner[:])
	binary.LittleEndian.PutUint64(b[40:48], info.TotalReceived)
	binary.LittleEndian.PutUint64(b[48:56], info.TotalForwarded)
	binary.LittleEndian.PutUint64(b[56:64], info.CurrentBalance)
	binary.LittleEndian.PutUint64(b[64:72], info.Threshold)
	binary.LittleEndian.PutUint16(b[72:74], info.CreatedEpoch)
	binary.LittleEndian.PutUint16(b[74:76], info.LastActivityEpoch)
	putKeys(b[80:336], &info.Recipients)
	putRatios(b[336:400], &info.Ratios)
	return b
}

// UnmarshalGateInfo decodes a 400-byte gate record.
func UnmarshalGateInfo(b []byte) (GateInfo, error) {
	var info GateInfo
	if len(b) != GateInfoSize {
		return info, fmt.Errorf("gate record: %w (got %d)", ErrShortBuffer, len(b))
	}
	info.Mode = Mode(b[0])
	info.RecipientCount = b[1]
	info.Active = b[2] == 1
	copy(info.Owner[:], b[8:40])
	info.TotalReceived = binary.LittleEndian.Uint64(b[40:48])
	info.TotalForwarded = binary.LittleEndian.Uint64(b[48:56])
	info.CurrentBalance = binary.LittleEndian.Uint64(b[56:64])
	info.Threshold = binary.LittleEndian.Uint64(b[64:72])
	info.CreatedEpoch = binary.LittleEndian.Uint16(b[72:74])
	info.LastActivityEpoch = binary.LittleEndian.Uint16(b[74:76])
	getKeys(b[80:336], &info.Recipients)
	getRatios(b[336:400], &info.Ratios)
	return info, nil
}

// MarshalCountInfo encodes a GET_COUNT result.
func MarshalCountInfo(info CountInfo) []byte {
	b := make([]byte, CountInfoSize)
	binary.LittleEndian.PutUint64(b[0:8], info.TotalGates)
	binary.LittleEndian.PutUint64(b[8:16], info.ActiveGates)
	binary.LittleEndian.PutUint64(b[16:24], info.TotalBurned)
	return b
}

// MarshalFeeInfo encodes a GET_FEES result.
func MarshalFeeInfo(info FeeInfo) []byte {
	b := make([]byte, FeeInfoSize)
	binary.LittleEndian.PutUint64(b[0:8], info.BaseFee)
	binary.LittleEndian.PutUint64(b[8:16], info.CurrentFee)
	binary.LittleEndian.PutUint64(b[16:24], info.MinSend)
	binary.LittleEndian.PutUint64(b[24:32], info.ExpiryEpochs)
	return b
}
