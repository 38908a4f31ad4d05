package contract_test

import (
	"testing"

	"github.com/qugate/gate-node/contract"
	"github.com/qugate/gate-node/ledger"
)

func key(b byte) contract.PublicKey {
	var k contract.PublicKey
	k[0] = b
	return k
}

var (
	owner    = key(0xA1)
	alice    = key(0xB1)
	bob      = key(0xB2)
	carol    = key(0xB3)
	stranger = key(0xEE)
)

func newContract() (*contract.Contract, *ledger.Journal) {
	j := ledger.NewJournal()
	return contract.New(contract.DefaultConfig(), j), j
}

func ctx(caller contract.PublicKey, attached uint64) contract.CallContext {
	return contract.CallContext{Caller: caller, Attached: attached, Epoch: 1}
}

// createSplit registers a SPLIT gate with the given recipients and ratios,
// paying exactly the base creation fee, and fails the test on rejection.
func createSplit(t *testing.T, c *contract.Contract, recipients []contract.PublicKey, ratios []uint64) uint64 {
	t.Helper()
	in := contract.CreateInput{
		Mode:           contract.ModeSplit,
		RecipientCount: uint8(len(recipients)),
	}
	for i := range recipients {
		in.Recipients[i] = recipients[i]
		in.Ratios[i] = ratios[i]
	}
	out := c.CreateGate(ctx(owner, c.GetFees().CurrentFee), in)
	if !out.Status.OK() {
		t.Fatalf("create split gate: %v", out.Status)
	}
	return out.GateID
}

func TestCreateGate(t *testing.T) {
	t.Run("success burns fee and refunds overpayment", func(t *testing.T) {
		c, j := newContract()
		in := contract.CreateInput{Mode: contract.ModeSplit, RecipientCount: 2}
		in.Recipients[0], in.Recipients[1] = alice, bob
		in.Ratios[0], in.Ratios[1] = 1, 1

		out := c.CreateGate(ctx(owner, 1500), in)
		if !out.Status.OK() {
			t.Fatalf("status = %v", out.Status)
		}
		if out.GateID != 1 {
			t.Errorf("gate id = %d, want 1", out.GateID)
		}
		if out.FeePaid != 1000 {
			t.Errorf("fee paid = %d, want 1000", out.FeePaid)
		}
		if j.Burned() != 1000 {
			t.Errorf("burned = %d, want 1000", j.Burned())
		}
		if got := j.TotalTo(owner); got != 500 {
			t.Errorf("overpayment refund = %d, want 500", got)
		}
	})

	t.Run("insufficient fee refunds everything", func(t *testing.T) {
		c, j := newContract()
		in := contract.CreateInput{Mode: contract.ModeSplit, RecipientCount: 1}
		in.Recipients[0] = alice
		in.Ratios[0] = 1

		out := c.CreateGate(ctx(owner, 999), in)
		if out.Status != contract.StatusInsufficientFee {
			t.Fatalf("status = %v, want INSUFFICIENT_FEE", out.Status)
		}
		if j.Burned() != 0 {
			t.Errorf("burned = %d, want 0", j.Burned())
		}
		if got := j.TotalTo(owner); got != 999 {
			t.Errorf("refund = %d, want 999", got)
		}
		if c.GetCount().TotalGates != 0 {
			t.Errorf("gate was allocated despite rejection")
		}
	})

	t.Run("shape rejections", func(t *testing.T) {
		cases := []struct {
			name string
			in   contract.CreateInput
			want contract.Status
		}{
			{
				name: "unknown mode",
				in:   contract.CreateInput{Mode: 9, RecipientCount: 1},
				want: contract.StatusInvalidMode,
			},
			{
				name: "zero recipients",
				in:   contract.CreateInput{Mode: contract.ModeSplit},
				want: contract.StatusInvalidRecipientCount,
			},
			{
				name: "too many senders",
				in: contract.CreateInput{
					Mode: contract.ModeConditional, RecipientCount: 1,
					AllowedSenderCount: 9,
				},
				want: contract.StatusInvalidSenderCount,
			},
			{
				name: "ratio above cap",
				in:   contract.CreateInput{Mode: contract.ModeSplit, RecipientCount: 1},
				want: contract.StatusInvalidRatio,
			},
			{
				name: "zero ratio sum",
				in:   contract.CreateInput{Mode: contract.ModeRandom, RecipientCount: 2},
				want: contract.StatusInvalidRatio,
			},
			{
				name: "threshold of zero",
				in:   contract.CreateInput{Mode: contract.ModeThreshold, RecipientCount: 1},
				want: contract.StatusInvalidThreshold,
			},
		}
		cases[3].in.Ratios[0] = contract.MaxRatio + 1
		cases[4].in.Ratios[0], cases[4].in.Ratios[1] = 0, 0
		cases[0].in.Ratios[0] = 1
		cases[2].in.Ratios[0] = 1
		cases[5].in.Recipients[0] = alice

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				c, j := newContract()
				out := c.CreateGate(ctx(owner, 2000), tc.in)
				if out.Status != tc.want {
					t.Errorf("status = %v, want %v", out.Status, tc.want)
				}
				if got := j.TotalTo(owner); got != 2000 {
					t.Errorf("refund = %d, want full 2000", got)
				}
			})
		}
	})

	t.Run("round robin ignores ratios", func(t *testing.T) {
		c, _ := newContract()
		in := contract.CreateInput{Mode: contract.ModeRoundRobin, RecipientCount: 2}
		in.Recipients[0], in.Recipients[1] = alice, bob
		// All-zero ratios are fine here.
		out := c.CreateGate(ctx(owner, 1000), in)
		if !out.Status.OK() {
			t.Fatalf("status = %v", out.Status)
		}
	})
}

func TestSplitForwarding(t *testing.T) {
	t.Run("60/40", func(t *testing.T) {
		c, j := newContract()
		id := createSplit(t, c, []contract.PublicKey{alice, bob}, []uint64{60, 40})

		j.Reset()
		out := c.SendToGate(ctx(stranger, 10000), contract.SendInput{GateID: id})
		if !out.Status.OK() {
			t.Fatalf("send: %v", out.Status)
		}
		if got := j.TotalTo(alice); got != 6000 {
			t.Errorf("alice got %d, want 6000", got)
		}
		if got := j.TotalTo(bob); got != 4000 {
			t.Errorf("bob got %d, want 4000", got)
		}

		info := c.GetGate(id)
		if info.TotalReceived != 10000 || info.TotalForwarded != 10000 {
			t.Errorf("counters = %d/%d, want 10000/10000", info.TotalReceived, info.TotalForwarded)
		}
	})

	t.Run("rounding remainder goes to first recipient", func(t *testing.T) {
		c, j := newContract()
		id := createSplit(t, c, []contract.PublicKey{alice, bob, carol}, []uint64{1, 1, 1})

		j.Reset()
		c.SendToGate(ctx(stranger, 100), contract.SendInput{GateID: id})
		if got := j.TotalTo(alice); got != 34 {
			t.Errorf("first recipient got %d, want 34 (33 + remainder)", got)
		}
		if j.TotalTo(bob) != 33 || j.TotalTo(carol) != 33 {
			t.Errorf("others got %d/%d, want 33/33", j.TotalTo(bob), j.TotalTo(carol))
		}
		if j.TotalOut() != 100 {
			t.Errorf("total out = %d, want exactly 100", j.TotalOut())
		}
	})

	t.Run("zero weight recipient receives nothing", func(t *testing.T) {
		c, j := newContract()
		id := createSplit(t, c, []contract.PublicKey{alice, bob}, []uint64{100, 0})

		j.Reset()
		c.SendToGate(ctx(stranger, 5000), contract.SendInput{GateID: id})
		if got := j.TotalTo(bob); got != 0 {
			t.Errorf("zero-weight recipient got %d", got)
		}
		if got := j.TotalTo(alice); got != 5000 {
			t.Errorf("alice got %d, want 5000", got)
		}
	})
}

func TestRoundRobinForwarding(t *testing.T) {
	c, j := newContract()
	in := contract.CreateInput{Mode: contract.ModeRoundRobin, RecipientCount: 3}
	in.Recipients[0], in.Recipients[1], in.Recipients[2] = alice, bob, carol
	out := c.CreateGate(ctx(owner, 1000), in)
	if !out.Status.OK() {
		t.Fatalf("create: %v", out.Status)
	}

	want := []contract.PublicKey{alice, bob, carol, alice}
	for i, rcpt := range want {
		j.Reset()
		c.SendToGate(ctx(stranger, 100), contract.SendInput{GateID: out.GateID})
		if got := j.TotalTo(rcpt); got != 100 {
			t.Fatalf("send %d: recipient %x got %d, want full 100", i, rcpt[0], got)
		}
	}

	info := c.GetGate(out.GateID)
	if info.CurrentBalance != 1 {
		t.Errorf("cursor = %d after 4 sends over 3 recipients, want 1", info.CurrentBalance)
	}
}

func TestThresholdForwarding(t *testing.T) {
	c, j := newContract()
	in := contract.CreateInput{Mode: contract.ModeThreshold, RecipientCount: 1, Threshold: 10000}
	in.Recipients[0] = alice
	out := c.CreateGate(ctx(owner, 1000), in)
	if !out.Status.OK() {
		t.Fatalf("create: %v", out.Status)
	}
	id := out.GateID

	j.Reset()
	c.SendToGate(ctx(stranger, 6000), contract.SendInput{GateID: id})
	if got := j.TotalTo(alice); got != 0 {
		t.Fatalf("flushed %d below threshold", got)
	}
	if info := c.GetGate(id); info.CurrentBalance != 6000 {
		t.Fatalf("accumulated = %d, want 6000", info.CurrentBalance)
	}

	c.SendToGate(ctx(stranger, 9000), contract.SendInput{GateID: id})
	if got := j.TotalTo(alice); got != 15000 {
		t.Errorf("flush = %d, want the entire 15000", got)
	}
	info := c.GetGate(id)
	if info.CurrentBalance != 0 {
		t.Errorf("balance after flush = %d, want 0", info.CurrentBalance)
	}
	if info.TotalForwarded != 15000 {
		t.Errorf("total forwarded = %d, want 15000", info.TotalForwarded)
	}
}

func TestConditionalForwarding(t *testing.T) {
	newConditional := func(t *testing.T) (*contract.Contract, *ledger.Journal, uint64) {
		t.Helper()
		c, j := newContract()
		in := contract.CreateInput{
			Mode:               contract.ModeConditional,
			RecipientCount:     2,
			AllowedSenderCount: 1,
		}
		in.Recipients[0], in.Recipients[1] = alice, bob
		in.Ratios[0], in.Ratios[1] = 50, 50
		in.AllowedSenders[0] = carol
		out := c.CreateGate(ctx(owner, 1000), in)
		if !out.Status.OK() {
			t.Fatalf("create: %v", out.Status)
		}
		return c, j, out.GateID
	}

	t.Run("whitelisted sender splits", func(t *testing.T) {
		c, j, id := newConditional(t)
		j.Reset()
		out := c.SendToGate(ctx(carol, 1000), contract.SendInput{GateID: id})
		if !out.Status.OK() {
			t.Fatalf("send: %v", out.Status)
		}
		if j.TotalTo(alice) != 500 || j.TotalTo(bob) != 500 {
			t.Errorf("split = %d/%d, want 500/500", j.TotalTo(alice), j.TotalTo(bob))
		}
	})

	t.Run("unlisted sender bounces with no trace", func(t *testing.T) {
		c, j, id := newConditional(t)
		j.Reset()
		out := c.SendToGate(ctx(stranger, 1000), contract.SendInput{GateID: id})
		if out.Status != contract.StatusConditionalRejected {
			t.Fatalf("status = %v, want CONDITIONAL_REJECTED", out.Status)
		}
		if got := j.TotalTo(stranger); got != 1000 {
			t.Errorf("refund = %d, want full 1000", got)
		}
		info := c.GetGate(id)
		if info.TotalReceived != 0 || info.TotalForwarded != 0 {
			t.Errorf("rejected send mutated counters: %d/%d", info.TotalReceived, info.TotalForwarded)
		}
	})
}

func TestRandomForwarding(t *testing.T) {
	makeRandom := func(t *testing.T) (*contract.Contract, *ledger.Journal, uint64) {
		t.Helper()
		c, j := newContract()
		in := contract.CreateInput{Mode: contract.ModeRandom, RecipientCount: 3}
		in.Recipients[0], in.Recipients[1], in.Recipients[2] = alice, bob, carol
		in.Ratios[0], in.Ratios[1], in.Ratios[2] = 70, 30, 0
		out := c.CreateGate(ctx(owner, 1000), in)
		if !out.Status.OK() {
			t.Fatalf("create: %v", out.Status)
		}
		return c, j, out.GateID
	}

	t.Run("replicas draw identically", func(t *testing.T) {
		c1, j1, id1 := makeRandom(t)
		c2, j2, id2 := makeRandom(t)

		for i := 0; i < 32; i++ {
			amt := uint64(100 + i*13)
			j1.Reset()
			j2.Reset()
			c1.SendToGate(ctx(stranger, amt), contract.SendInput{GateID: id1})
			c2.SendToGate(ctx(stranger, amt), contract.SendInput{GateID: id2})

			e1, e2 := j1.Entries(), j2.Entries()
			if len(e1) != 1 || len(e2) != 1 {
				t.Fatalf("send %d: entry counts %d/%d, want 1/1", i, len(e1), len(e2))
			}
			if e1[0] != e2[0] {
				t.Fatalf("send %d: replicas diverged: %x vs %x", i, e1[0].To[0], e2[0].To[0])
			}
		}
	})

	t.Run("zero weight recipient is never drawn", func(t *testing.T) {
		c, j, id := makeRandom(t)
		for i := 0; i < 64; i++ {
			j.Reset()
			c.SendToGate(ctx(stranger, 100), contract.SendInput{GateID: id})
			if got := j.TotalTo(carol); got != 0 {
				t.Fatalf("send %d: zero-weight recipient drawn (%d)", i, got)
			}
		}
	})

	t.Run("whole amount goes to one recipient", func(t *testing.T) {
		c, j, id := makeRandom(t)
		j.Reset()
		c.SendToGate(ctx(stranger, 777), contract.SendInput{GateID: id})
		if len(j.Entries()) != 1 || j.TotalOut() != 777 {
			t.Errorf("entries = %d, out = %d; want 1 transfer of 777", len(j.Entries()), j.TotalOut())
		}
	})
}

func TestSendRejections(t *testing.T) {
	t.Run("dust burns even on a bad gate id", func(t *testing.T) {
		c, j := newContract()
		out := c.SendToGate(ctx(stranger, 9), contract.SendInput{GateID: 999})
		if out.Status != contract.StatusDustAmount {
			t.Fatalf("status = %v, want DUST_AMOUNT", out.Status)
		}
		if j.Burned() != 9 {
			t.Errorf("burned = %d, want 9", j.Burned())
		}
		if c.GetCount().TotalBurned != 9 {
			t.Errorf("TotalBurned = %d, want 9", c.GetCount().TotalBurned)
		}
	})

	t.Run("unknown gate refunds", func(t *testing.T) {
		c, j := newContract()
		out := c.SendToGate(ctx(stranger, 500), contract.SendInput{GateID: 42})
		if out.Status != contract.StatusInvalidGateID {
			t.Fatalf("status = %v, want INVALID_GATE_ID", out.Status)
		}
		if got := j.TotalTo(stranger); got != 500 {
			t.Errorf("refund = %d, want 500", got)
		}
	})

	t.Run("closed gate refunds", func(t *testing.T) {
		c, j := newContract()
		id := createSplit(t, c, []contract.PublicKey{alice}, []uint64{1})
		c.CloseGate(ctx(owner, 0), contract.CloseInput{GateID: id})

		j.Reset()
		out := c.SendToGate(ctx(stranger, 500), contract.SendInput{GateID: id})
		if out.Status != contract.StatusGateNotActive {
			t.Fatalf("status = %v, want GATE_NOT_ACTIVE", out.Status)
		}
		if got := j.TotalTo(stranger); got != 500 {
			t.Errorf("refund = %d, want 500", got)
		}
	})
}

func TestCloseGate(t *testing.T) {
	t.Run("only the owner may close", func(t *testing.T) {
		c, _ := newContract()
		id := createSplit(t, c, []contract.PublicKey{alice}, []uint64{1})
		out := c.CloseGate(ctx(stranger, 0), contract.CloseInput{GateID: id})
		if out.Status != contract.StatusUnauthorized {
			t.Fatalf("status = %v, want UNAUTHORIZED", out.Status)
		}
		if !c.GetGate(id).Active {
			t.Errorf("gate closed by a stranger")
		}
	})

	t.Run("threshold balance is refunded to the owner", func(t *testing.T) {
		c, j := newContract()
		in := contract.CreateInput{Mode: contract.ModeThreshold, RecipientCount: 1, Threshold: 10000}
		in.Recipients[0] = alice
		id := c.CreateGate(ctx(owner, 1000), in).GateID
		c.SendToGate(ctx(stranger, 4000), contract.SendInput{GateID: id})

		j.Reset()
		out := c.CloseGate(ctx(owner, 0), contract.CloseInput{GateID: id})
		if !out.Status.OK() {
			t.Fatalf("close: %v", out.Status)
		}
		if got := j.TotalTo(owner); got != 4000 {
			t.Errorf("owner refund = %d, want the accumulated 4000", got)
		}
	})

	t.Run("round robin cursor is not value", func(t *testing.T) {
		c, j := newContract()
		in := contract.CreateInput{Mode: contract.ModeRoundRobin, RecipientCount: 2}
		in.Recipients[0], in.Recipients[1] = alice, bob
		id := c.CreateGate(ctx(owner, 1000), in).GateID
		c.SendToGate(ctx(stranger, 100), contract.SendInput{GateID: id})

		j.Reset()
		c.CloseGate(ctx(owner, 0), contract.CloseInput{GateID: id})
		if got := j.TotalTo(owner); got != 0 {
			t.Errorf("cursor paid out as value: %d", got)
		}
	})

	t.Run("double close is rejected and attached value returned", func(t *testing.T) {
		c, j := newContract()
		id := createSplit(t, c, []contract.PublicKey{alice}, []uint64{1})
		c.CloseGate(ctx(owner, 0), contract.CloseInput{GateID: id})

		j.Reset()
		out := c.CloseGate(ctx(owner, 77), contract.CloseInput{GateID: id})
		if out.Status != contract.StatusGateNotActive {
			t.Fatalf("status = %v, want GATE_NOT_ACTIVE", out.Status)
		}
		if got := j.TotalTo(owner); got != 77 {
			t.Errorf("attached refund = %d, want 77", got)
		}
	})
}

func TestUpdateGate(t *testing.T) {
	t.Run("replaces routing and zero-fills the tail", func(t *testing.T) {
		c, _ := newContract()
		id := createSplit(t, c, []contract.PublicKey{alice, bob, carol}, []uint64{1, 1, 1})

		up := contract.UpdateInput{GateID: id, RecipientCount: 1}
		up.Recipients[0] = bob
		up.Ratios[0] = 100
		out := c.UpdateGate(ctx(owner, 0), up)
		if !out.Status.OK() {
			t.Fatalf("update: %v", out.Status)
		}

		info := c.GetGate(id)
		if info.RecipientCount != 1 || info.Recipients[0] != bob {
			t.Errorf("recipients not replaced")
		}
		if !info.Recipients[1].IsZero() || info.Ratios[1] != 0 {
			t.Errorf("stale tail survived the update")
		}
	})

	t.Run("mode stays fixed and shape is checked against it", func(t *testing.T) {
		c, _ := newContract()
		in := contract.CreateInput{Mode: contract.ModeThreshold, RecipientCount: 1, Threshold: 500}
		in.Recipients[0] = alice
		id := c.CreateGate(ctx(owner, 1000), in).GateID

		up := contract.UpdateInput{GateID: id, RecipientCount: 1} // threshold 0
		up.Recipients[0] = bob
		out := c.UpdateGate(ctx(owner, 0), up)
		if out.Status != contract.StatusInvalidThreshold {
			t.Errorf("status = %v, want INVALID_THRESHOLD", out.Status)
		}
	})

	t.Run("non-owner is rejected", func(t *testing.T) {
		c, _ := newContract()
		id := createSplit(t, c, []contract.PublicKey{alice}, []uint64{1})
		up := contract.UpdateInput{GateID: id, RecipientCount: 1}
		up.Recipients[0] = bob
		up.Ratios[0] = 1
		if out := c.UpdateGate(ctx(stranger, 0), up); out.Status != contract.StatusUnauthorized {
			t.Errorf("status = %v, want UNAUTHORIZED", out.Status)
		}
	})

	t.Run("shrinking recipients cannot strand the cursor", func(t *testing.T) {
		c, j := newContract()
		in := contract.CreateInput{Mode: contract.ModeRoundRobin, RecipientCount: 3}
		in.Recipients[0], in.Recipients[1], in.Recipients[2] = alice, bob, carol
		id := c.CreateGate(ctx(owner, 1000), in).GateID

		// Advance the cursor to 2, then shrink to one recipient.
		c.SendToGate(ctx(stranger, 100), contract.SendInput{GateID: id})
		c.SendToGate(ctx(stranger, 100), contract.SendInput{GateID: id})

		up := contract.UpdateInput{GateID: id, RecipientCount: 1}
		up.Recipients[0] = alice
		if out := c.UpdateGate(ctx(owner, 0), up); !out.Status.OK() {
			t.Fatalf("update: %v", out.Status)
		}

		j.Reset()
		if out := c.SendToGate(ctx(stranger, 100), contract.SendInput{GateID: id}); !out.Status.OK() {
			t.Fatalf("send after shrink: %v", out.Status)
		}
		if got := j.TotalTo(alice); got != 100 {
			t.Errorf("post-shrink send went astray: alice got %d", got)
		}
	})
}

func TestFreeListReuse(t *testing.T) {
	c, _ := newContract()
	id1 := createSplit(t, c, []contract.PublicKey{alice}, []uint64{1})
	id2 := createSplit(t, c, []contract.PublicKey{alice}, []uint64{1})
	id3 := createSplit(t, c, []contract.PublicKey{alice}, []uint64{1})
	if id1 != 1 || id2 != 2 || id3 != 3 {
		t.Fatalf("ids = %d,%d,%d, want 1,2,3", id1, id2, id3)
	}

	c.CloseGate(ctx(owner, 0), contract.CloseInput{GateID: id1})
	c.CloseGate(ctx(owner, 0), contract.CloseInput{GateID: id2})

	// Most recently freed slot is reused first.
	reused := createSplit(t, c, []contract.PublicKey{bob}, []uint64{7})
	if reused != id2 {
		t.Fatalf("reused id = %d, want %d", reused, id2)
	}

	info := c.GetGate(reused)
	if info.TotalReceived != 0 || info.Recipients[0] != bob || info.Ratios[0] != 7 {
		t.Errorf("reused slot carries stale state: %+v", info)
	}

	count := c.GetCount()
	if count.TotalGates != 3 {
		t.Errorf("TotalGates = %d, want 3 (high-water mark)", count.TotalGates)
	}
	if count.ActiveGates != 2 {
		t.Errorf("ActiveGates = %d, want 2", count.ActiveGates)
	}
}

func TestCapacityExhausted(t *testing.T) {
	cfg := contract.Config{MaxGates: 2, BaseFee: 1000, MinSend: 10, ExpiryEpochs: 50}
	j := ledger.NewJournal()
	c := contract.New(cfg, j)

	createSplit(t, c, []contract.PublicKey{alice}, []uint64{1})
	createSplit(t, c, []contract.PublicKey{alice}, []uint64{1})

	j.Reset()
	in := contract.CreateInput{Mode: contract.ModeSplit, RecipientCount: 1}
	in.Recipients[0] = alice
	in.Ratios[0] = 1
	out := c.CreateGate(ctx(owner, 1000), in)
	if out.Status != contract.StatusNoFreeSlots {
		t.Fatalf("status = %v, want NO_FREE_SLOTS", out.Status)
	}
	if got := j.TotalTo(owner); got != 1000 {
		t.Errorf("refund = %d, want 1000", got)
	}
}

func TestEscalatingFee(t *testing.T) {
	c, _ := newContract()
	if fee := c.GetFees().CurrentFee; fee != 1000 {
		t.Fatalf("fee at 0 active = %d, want 1000", fee)
	}

	in := contract.CreateInput{Mode: contract.ModeSplit, RecipientCount: 1}
	in.Recipients[0] = alice
	in.Ratios[0] = 1
	for i := 0; i < contract.FeeEscalationStep; i++ {
		if out := c.CreateGate(ctx(owner, 1000), in); !out.Status.OK() {
			t.Fatalf("create %d: %v", i, out.Status)
		}
	}

	if fee := c.GetFees().CurrentFee; fee != 2000 {
		t.Errorf("fee at %d active = %d, want 2000", contract.FeeEscalationStep, fee)
	}

	// Base fee no longer clears the bar.
	out := c.CreateGate(ctx(owner, 1000), in)
	if out.Status != contract.StatusInsufficientFee {
		t.Errorf("status = %v, want INSUFFICIENT_FEE at escalated tier", out.Status)
	}
	out = c.CreateGate(ctx(owner, 2000), in)
	if !out.Status.OK() || out.FeePaid != 2000 {
		t.Errorf("escalated create: status %v fee %d, want OK/2000", out.Status, out.FeePaid)
	}

	// Dropping below the step restores the base fee.
	c.CloseGate(ctx(owner, 0), contract.CloseInput{GateID: out.GateID})
	c.CloseGate(ctx(owner, 0), contract.CloseInput{GateID: 1})
	if fee := c.GetFees().CurrentFee; fee != 1000 {
		t.Errorf("fee after closes = %d, want 1000", fee)
	}
}

func TestGateExpiry(t *testing.T) {
	c, j := newContract()
	in := contract.CreateInput{Mode: contract.ModeThreshold, RecipientCount: 1, Threshold: 10000}
	in.Recipients[0] = alice
	idle := c.CreateGate(contract.CallContext{Caller: owner, Attached: 1000, Epoch: 1}, in).GateID
	busy := createSplit(t, c, []contract.PublicKey{alice}, []uint64{1})

	c.SendToGate(contract.CallContext{Caller: stranger, Attached: 500, Epoch: 1}, contract.SendInput{GateID: idle})

	// Keep one gate alive past the horizon.
	c.SendToGate(contract.CallContext{Caller: stranger, Attached: 100, Epoch: 50}, contract.SendInput{GateID: busy})

	j.Reset()
	c.EndEpoch(51)

	if c.GetGate(idle).Active {
		t.Errorf("idle gate survived the expiry sweep")
	}
	if !c.GetGate(busy).Active {
		t.Errorf("recently active gate was swept")
	}
	if got := j.TotalTo(owner); got != 500 {
		t.Errorf("expiry refund = %d, want the accumulated 500", got)
	}
}

func TestValueConservation(t *testing.T) {
	c, j := newContract()
	var attachedTotal uint64

	call := func(attached uint64, run func(cc contract.CallContext)) {
		attachedTotal += attached
		run(contract.CallContext{Caller: stranger, Attached: attached, Epoch: 1})
	}

	in := contract.CreateInput{Mode: contract.ModeSplit, RecipientCount: 2}
	in.Recipients[0], in.Recipients[1] = alice, bob
	in.Ratios[0], in.Ratios[1] = 3, 7
	var id uint64
	call(1200, func(cc contract.CallContext) { id = c.CreateGate(cc, in).GateID })
	call(997, func(cc contract.CallContext) { c.SendToGate(cc, contract.SendInput{GateID: id}) })
	call(5, func(cc contract.CallContext) { c.SendToGate(cc, contract.SendInput{GateID: id}) })
	call(300, func(cc contract.CallContext) { c.SendToGate(cc, contract.SendInput{GateID: 99}) })
	call(44, func(cc contract.CallContext) { c.CloseGate(cc, contract.CloseInput{GateID: id}) })

	if out := j.TotalOut() + j.Burned(); out != attachedTotal {
		t.Errorf("conservation broken: out+burned = %d, attached = %d", out, attachedTotal)
	}
}

func TestQueries(t *testing.T) {
	t.Run("unknown gate yields a zero snapshot", func(t *testing.T) {
		c, _ := newContract()
		info := c.GetGate(12345)
		if info.Active || info.TotalReceived != 0 || !info.Owner.IsZero() {
			t.Errorf("non-zero snapshot for unknown id: %+v", info)
		}
	})

	t.Run("fee info mirrors config", func(t *testing.T) {
		c, _ := newContract()
		fees := c.GetFees()
		if fees.BaseFee != 1000 || fees.MinSend != 10 || fees.ExpiryEpochs != 50 {
			t.Errorf("fee info = %+v", fees)
		}
	})
}
