// Package ledger provides the value-movement journal backing contract
// execution. Every transfer and burn a call emits is recorded in order, so
// the executor can attach the exact movement list to each receipt and tests
// can assert conservation without a real settlement layer.
package ledger

import "github.com/qugate/gate-node/contract"

// Entry is a single outbound transfer recorded by the journal. Burns are
// tracked separately and never appear as entries.
type Entry struct {
	To     contract.PublicKey
	Amount uint64
}

// Journal is an in-memory ledger recorder. It implements contract.Ledger.
// It is not safe for concurrent use; the executor serializes all access.
type Journal struct {
	entries []Entry
	burned  uint64
}

// NewJournal returns an empty journal.
func NewJournal() *Journal {
	return &Journal{}
}

// Transfer records an outbound payment.
func (j *Journal) Transfer(to contract.PublicKey, amount uint64) {
	j.entries = append(j.entries, Entry{To: to, Amount: amount})
}

// Burn records value removed from circulation.
func (j *Journal) Burn(amount uint64) {
	j.burned += amount
}

// Reset clears the journal between calls.
func (j *Journal) Reset() {
	j.entries = j.entries[:0]
	j.burned = 0
}

// Entries returns the transfers recorded since the last Reset, in emission
// order. The returned slice is owned by the journal; callers must copy it if
// they keep it past the next Reset.
func (j *Journal) Entries() []Entry {
	return j.entries
}

// Burned returns the amount burned since the last Reset.
func (j *Journal) Burned() uint64 {
	return j.burned
}

// TotalTo sums every transfer to a single destination since the last Reset.
func (j *Journal) TotalTo(to contract.PublicKey) uint64 {
	var sum uint64
	for _, e := range j.entries {
		if e.To == to {
			sum += e.Amount
		}
	}
	return sum
}

// TotalOut sums every transfer since the last Reset.
func (j *Journal) TotalOut() uint64 {
	var sum uint64
	for _, e := range j.entries {
		sum += e.Amount
	}
	return sum
}
