// Package executor is the single writer in front of the contract. Calls may
// arrive from NATS, from the HTTP API in local mode, or from a replay; the
// executor serializes them, stamps each with its ordinal in the total order,
// decodes the wire payload and commits exactly one state transition per call.
//
// Every committed call yields a Receipt carrying the full list of value
// movements the call produced. Receipts are handed to the post-commit
// pipeline (see pipeline.go) for archiving and broadcast; the pipeline never
// touches contract state.
package executor

import (
	"errors"
	"fmt"
	"sync"

	"github.com/qugate/gate-node/contract"
	"github.com/qugate/gate-node/ledger"
	"github.com/qugate/gate-node/snapshot"
)

// Procedure identifies a state-mutating contract entry point.
type Procedure uint8

const (
	ProcCreate Procedure = iota + 1
	ProcSend
	ProcClose
	ProcUpdate
	ProcEndEpoch
)

func (p Procedure) String() string {
	switch p {
	case ProcCreate:
		return "CREATE"
	case ProcSend:
		return "SEND"
	case ProcClose:
		return "CLOSE"
	case ProcUpdate:
		return "UPDATE"
	case ProcEndEpoch:
		return "END_EPOCH"
	default:
		return fmt.Sprintf("PROC(%d)", uint8(p))
	}
}

// Call is one submitted procedure invocation. Payload holds the fixed-size
// wire encoding for the procedure (see the contract codec).
type Call struct {
	ID        string
	Procedure Procedure
	Caller    contract.PublicKey
	Attached  uint64
	Payload   []byte
}

// Receipt is the committed outcome of one call: the assigned ordinal, the
// contract's status, and every transfer and burn the call emitted. Transfers
// is a private copy and stays valid after the next call commits.
type Receipt struct {
	Ordinal   uint64
	CallID    string
	Procedure Procedure
	Caller    contract.PublicKey
	Attached  uint64
	Epoch     uint16
	Tick      uint64

	Status  contract.Status
	GateID  uint64
	FeePaid uint64

	Transfers []ledger.Entry
	Burned    uint64
}

// Executor owns the contract instance and its journal. All access, mutating
// or not, goes through its mutex.
type Executor struct {
	mu       sync.Mutex
	contract *contract.Contract
	journal  *ledger.Journal

	ordinal uint64
	epoch   uint16
	tick    uint64
}

// New wires an executor around a fresh contract instance.
func New(cfg contract.Config) *Executor {
	j := ledger.NewJournal()
	return &Executor{
		contract: contract.New(cfg, j),
		journal:  j,
		epoch:    1,
	}
}

// Execute commits one call and returns its receipt. A payload that does not
// decode never reaches the contract: the attached value is refunded to the
// caller and an error is returned alongside the (refund-only) receipt.
func (e *Executor) Execute(call Call) (Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.ordinal++
	e.tick++
	e.journal.Reset()

	r := Receipt{
		Ordinal:   e.ordinal,
		CallID:    call.ID,
		Procedure: call.Procedure,
		Caller:    call.Caller,
		Attached:  call.Attached,
		Epoch:     e.epoch,
		Tick:      e.tick,
	}

	ctx := contract.CallContext{
		Caller:   call.Caller,
		Attached: call.Attached,
		Epoch:    e.epoch,
		Tick:     e.tick,
	}

	var decodeErr error
	switch call.Procedure {
	case ProcCreate:
		in, err := contract.UnmarshalCreateInput(call.Payload)
		if err != nil {
			decodeErr = err
			break
		}
		out := e.contract.CreateGate(ctx, in)
		r.Status, r.GateID, r.FeePaid = out.Status, out.GateID, out.FeePaid
	case ProcSend:
		id, err := contract.UnmarshalGateID(call.Payload)
		if err != nil {
			decodeErr = err
			break
		}
		out := e.contract.SendToGate(ctx, contract.SendInput{GateID: id})
		r.Status, r.GateID = out.Status, id
	case ProcClose:
		id, err := contract.UnmarshalGateID(call.Payload)
		if err != nil {
			decodeErr = err
			break
		}
		out := e.contract.CloseGate(ctx, contract.CloseInput{GateID: id})
		r.Status, r.GateID = out.Status, id
	case ProcUpdate:
		in, err := contract.UnmarshalUpdateInput(call.Payload)
		if err != nil {
			decodeErr = err
			break
		}
		out := e.contract.UpdateGate(ctx, in)
		r.Status, r.GateID = out.Status, in.GateID
	default:
		decodeErr = fmt.Errorf("unknown procedure %d", call.Procedure)
	}

	if decodeErr != nil {
		r.Status = contract.StatusMalformedPayload
		if call.Attached > 0 {
			e.journal.Transfer(call.Caller, call.Attached)
		}
		r.Transfers = snapshotEntries(e.journal)
		r.Burned = e.journal.Burned()
		return r, fmt.Errorf("call %s rejected: %w", call.ID, decodeErr)
	}

	r.Transfers = snapshotEntries(e.journal)
	r.Burned = e.journal.Burned()
	return r, nil
}

// EndEpoch advances the ledger clock and runs the expiry sweep. The returned
// receipt carries any expiry refunds the sweep produced.
func (e *Executor) EndEpoch() Receipt {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.ordinal++
	e.journal.Reset()
	e.contract.EndEpoch(e.epoch + 1)
	e.epoch++
	e.tick = 0

	return Receipt{
		Ordinal:   e.ordinal,
		Procedure: ProcEndEpoch,
		Epoch:     e.epoch,
		Status:    contract.StatusOK,
		Transfers: snapshotEntries(e.journal),
		Burned:    e.journal.Burned(),
	}
}

// Epoch returns the current epoch number.
func (e *Executor) Epoch() uint16 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.epoch
}

// GetGate serves a read-only gate snapshot.
func (e *Executor) GetGate(id uint64) contract.GateInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.contract.GetGate(id)
}

// GetCount serves the aggregate counters.
func (e *Executor) GetCount() contract.CountInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.contract.GetCount()
}

// GetFees serves the fee parameters.
func (e *Executor) GetFees() contract.FeeInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.contract.GetFees()
}

// Load replaces the contract with state restored from a snapshot. Refused
// once any call has committed; restore and replay do not mix.
func (e *Executor) Load(snap *snapshot.Snapshot) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ordinal != 0 {
		return errors.New("cannot load a snapshot over committed calls")
	}

	c, err := snap.Restore(e.journal)
	if err != nil {
		return err
	}

	e.contract = c
	e.epoch = snap.Epoch
	e.tick = 0
	return nil
}

// Freeze runs fn with the contract frozen: no call can commit while fn runs.
// Used by the snapshot exporter to capture a consistent state image.
func (e *Executor) Freeze(fn func(c *contract.Contract, epoch uint16)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.contract, e.epoch)
}

func snapshotEntries(j *ledger.Journal) []ledger.Entry {
	src := j.Entries()
	if len(src) == 0 {
		return nil
	}
	out := make([]ledger.Entry, len(src))
	copy(out, src)
	return out
}
