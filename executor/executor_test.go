package executor

import (
	"sync"
	"testing"

	"github.com/qugate/gate-node/contract"
)

func testKey(b byte) contract.PublicKey {
	var k contract.PublicKey
	k[0] = b
	return k
}

func createPayload(recipient contract.PublicKey) []byte {
	in := contract.CreateInput{Mode: contract.ModeSplit, RecipientCount: 1}
	in.Recipients[0] = recipient
	in.Ratios[0] = 1
	return contract.MarshalCreateInput(in)
}

func TestExecuteAssignsOrdinals(t *testing.T) {
	e := New(contract.DefaultConfig())
	owner := testKey(1)

	r1, err := e.Execute(Call{ID: "a", Procedure: ProcCreate, Caller: owner, Attached: 1000, Payload: createPayload(testKey(2))})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	r2, err := e.Execute(Call{ID: "b", Procedure: ProcSend, Caller: owner, Attached: 100, Payload: contract.MarshalGateID(r1.GateID)})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if r1.Ordinal != 1 || r2.Ordinal != 2 {
		t.Errorf("ordinals = %d,%d, want 1,2", r1.Ordinal, r2.Ordinal)
	}
	if !r1.Status.OK() || r1.GateID != 1 || r1.FeePaid != 1000 {
		t.Errorf("create receipt = %+v", r1)
	}
	if len(r2.Transfers) != 1 || r2.Transfers[0].Amount != 100 {
		t.Errorf("send transfers = %v, want one transfer of 100", r2.Transfers)
	}
}

func TestExecuteRefundsMalformedPayload(t *testing.T) {
	e := New(contract.DefaultConfig())
	caller := testKey(9)

	r, err := e.Execute(Call{ID: "bad", Procedure: ProcCreate, Caller: caller, Attached: 1500, Payload: []byte{1, 2, 3}})
	if err == nil {
		t.Fatalf("expected decode error")
	}
	if r.Status != contract.StatusMalformedPayload {
		t.Errorf("status = %v, want MALFORMED_PAYLOAD", r.Status)
	}
	if len(r.Transfers) != 1 || r.Transfers[0].To != caller || r.Transfers[0].Amount != 1500 {
		t.Errorf("refund transfers = %v, want 1500 back to caller", r.Transfers)
	}
	if e.GetCount().TotalGates != 0 {
		t.Errorf("malformed call reached the contract")
	}
}

func TestExecuteUnknownProcedure(t *testing.T) {
	e := New(contract.DefaultConfig())
	caller := testKey(3)

	r, err := e.Execute(Call{ID: "x", Procedure: 99, Caller: caller, Attached: 42})
	if err == nil {
		t.Fatalf("expected error for unknown procedure")
	}
	if r.Status != contract.StatusMalformedPayload {
		t.Errorf("status = %v, want MALFORMED_PAYLOAD", r.Status)
	}
	if len(r.Transfers) != 1 || r.Transfers[0].Amount != 42 {
		t.Errorf("attached value not refunded: %v", r.Transfers)
	}
}

func TestReceiptTransfersAreStable(t *testing.T) {
	e := New(contract.DefaultConfig())
	owner := testKey(1)

	r1, _ := e.Execute(Call{ID: "a", Procedure: ProcCreate, Caller: owner, Attached: 1000, Payload: createPayload(testKey(2))})
	send, _ := e.Execute(Call{ID: "b", Procedure: ProcSend, Caller: owner, Attached: 200, Payload: contract.MarshalGateID(r1.GateID)})
	before := send.Transfers[0]

	// Another committed call resets the journal; the earlier receipt must
	// keep its own copy.
	e.Execute(Call{ID: "c", Procedure: ProcSend, Caller: owner, Attached: 300, Payload: contract.MarshalGateID(r1.GateID)})
	if send.Transfers[0] != before {
		t.Errorf("receipt transfers mutated by a later call")
	}
}

func TestEndEpochAdvancesClockAndSweeps(t *testing.T) {
	e := New(contract.Config{MaxGates: 8, BaseFee: 1000, MinSend: 10, ExpiryEpochs: 1})
	owner := testKey(1)

	e.Execute(Call{ID: "a", Procedure: ProcCreate, Caller: owner, Attached: 1000, Payload: createPayload(testKey(2))})

	r := e.EndEpoch()
	if r.Procedure != ProcEndEpoch || r.Epoch != 2 {
		t.Fatalf("epoch receipt = %+v", r)
	}
	if e.Epoch() != 2 {
		t.Errorf("Epoch() = %d, want 2", e.Epoch())
	}
	// ExpiryEpochs=1 and no activity since epoch 1: swept at the rollover.
	if e.GetGate(1).Active {
		t.Errorf("idle gate survived a 1-epoch expiry horizon")
	}
}

func TestExecuteIsSerializedUnderConcurrency(t *testing.T) {
	e := New(contract.DefaultConfig())
	owner := testKey(1)
	r, _ := e.Execute(Call{ID: "g", Procedure: ProcCreate, Caller: owner, Attached: 1000, Payload: createPayload(testKey(2))})

	const n = 64
	var wg sync.WaitGroup
	ordinals := make([]uint64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rc, err := e.Execute(Call{ID: "s", Procedure: ProcSend, Caller: owner, Attached: 100, Payload: contract.MarshalGateID(r.GateID)})
			if err != nil {
				t.Errorf("send: %v", err)
			}
			ordinals[i] = rc.Ordinal
		}(i)
	}
	wg.Wait()

	seen := make(map[uint64]bool, n)
	for _, o := range ordinals {
		if seen[o] {
			t.Fatalf("ordinal %d assigned twice", o)
		}
		seen[o] = true
	}
	if got := e.GetGate(r.GateID).TotalReceived; got != n*100 {
		t.Errorf("total received = %d, want %d", got, n*100)
	}
}

func TestPipelineDeliversToAllSinks(t *testing.T) {
	p := NewPipeline(4)
	defer p.Stop()

	var mu sync.Mutex
	var gotA, gotB []uint64
	p.AddSink(func(r Receipt) {
		mu.Lock()
		gotA = append(gotA, r.Ordinal)
		mu.Unlock()
	})
	p.AddSink(func(r Receipt) {
		mu.Lock()
		gotB = append(gotB, r.Ordinal)
		mu.Unlock()
	})

	for i := uint64(1); i <= 10; i++ {
		if !p.Publish(Receipt{Ordinal: i}) {
			t.Fatalf("publish %d failed", i)
		}
	}
	p.Stop()

	if len(gotA) != 10 || len(gotB) != 10 {
		t.Errorf("deliveries = %d/%d, want 10/10", len(gotA), len(gotB))
	}
	stats := p.Stats()
	if stats.Pending != 0 || stats.Submitted != 10 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestPipelineRejectsAfterStop(t *testing.T) {
	p := NewPipeline(1)
	p.Stop()
	if p.Publish(Receipt{Ordinal: 1}) {
		t.Errorf("publish succeeded on a stopped pipeline")
	}
}
