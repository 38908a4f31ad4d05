package contract

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// RANDOM mode must pick the same recipient on every replica, so the draw is
// derived purely from on-record state: the rolling seed, the gate id and the
// post-credit totalReceived. No tick or host entropy enters the mix, which
// means a replay of the call log alone reproduces every draw.

// nextDrawState hashes the current draw inputs into the next rolling state.
func nextDrawState(seed, gateID, totalReceived uint64) uint64 {
	var b [24]byte
	binary.LittleEndian.PutUint64(b[0:8], seed)
	binary.LittleEndian.PutUint64(b[8:16], gateID)
	binary.LittleEndian.PutUint64(b[16:24], totalReceived)
	return xxhash.Sum64(b[:])
}

// weightedIndex maps a draw onto a recipient index, weighted by ratios.
// The draw lands in [0, sum) and the index is found by walking the
// cumulative weights; zero-weight recipients are never selected.
// The caller guarantees sum > 0.
func weightedIndex(draw uint64, ratios *[MaxRecipients]uint64, count uint8, sum uint64) int {
	r := draw % sum
	var cum uint64
	for i := uint8(0); i < count; i++ {
		cum += ratios[i]
		if r < cum {
			return int(i)
		}
	}
	// Unreachable when sum == Σ ratios; guard for safety.
	return int(count) - 1
}
