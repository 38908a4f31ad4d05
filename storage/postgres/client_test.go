package postgres

import (
	"encoding/json"
	"testing"
)

func TestComputeReceiptHash(t *testing.T) {
	entry := ArchivedReceipt{
		Ordinal:      7,
		CallID:       "c-7",
		Procedure:    "SEND",
		Caller:       "ab",
		GateID:       3,
		Status:       0,
		Attached:     500,
		Transfers:    json.RawMessage(`[{"to":"b1","amount":500}]`),
		PreviousHash: "prev",
	}

	h1 := ComputeReceiptHash(&entry)
	h2 := ComputeReceiptHash(&entry)
	if h1 != h2 {
		t.Fatalf("hash is not deterministic")
	}
	if len(h1) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(h1))
	}

	// Any field change must break the link.
	tampered := entry
	tampered.Attached = 501
	if ComputeReceiptHash(&tampered) == h1 {
		t.Errorf("amount tampering kept the hash")
	}

	relinked := entry
	relinked.PreviousHash = "other"
	if ComputeReceiptHash(&relinked) == h1 {
		t.Errorf("re-chaining kept the hash")
	}

	// CreatedAt is storage metadata, not chain content.
	timestamped := entry
	timestamped.CreatedAt = "2026-01-01T00:00:00Z"
	if ComputeReceiptHash(&timestamped) != h1 {
		t.Errorf("timestamp participates in the hash")
	}
}
