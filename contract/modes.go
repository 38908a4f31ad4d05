package contract

import "math/bits"

// Mode engine: routes an amount that has already cleared the dust check and
// (for CONDITIONAL) the whitelist. Every path below preserves conservation:
// the value credited to recipients plus any amount retained in the record
// equals the amount added to TotalReceived. Individual transfers of zero are
// legal no-ops and are simply skipped.

// ratioSum returns the sum of the live ratio slots.
func ratioSum(ratios *[MaxRecipients]uint64, count uint8) uint64 {
	var sum uint64
	for i := uint8(0); i < count; i++ {
		sum += ratios[i]
	}
	return sum
}

// share computes floor(amount * ratio / sum) without intermediate overflow.
func share(amount, ratio, sum uint64) uint64 {
	hi, lo := bits.Mul64(amount, ratio)
	q, _ := bits.Div64(hi, lo, sum)
	return q
}

// forward applies the gate's mode to an incoming amount, emitting transfers
// on the ledger and updating the gate's counters and accumulator.
func forward(g *Gate, amount uint64, led Ledger) {
	g.TotalReceived += amount

	switch g.Mode {
	case ModeSplit, ModeConditional:
		// CONDITIONAL is SPLIT gated by sender identity; the whitelist
		// was checked before we got here.
		forwardSplit(g, amount, led)
	case ModeRoundRobin:
		forwardRoundRobin(g, amount, led)
	case ModeThreshold:
		forwardThreshold(g, amount, led)
	case ModeRandom:
		forwardRandom(g, amount, led)
	}
}

// forwardSplit pays each recipient its floor share and gives the rounding
// remainder to recipients[0], so exactly the full amount leaves the gate.
func forwardSplit(g *Gate, amount uint64, led Ledger) {
	sum := ratioSum(&g.Ratios, g.RecipientCount)

	var shares [MaxRecipients]uint64
	var distributed uint64
	for i := uint8(0); i < g.RecipientCount; i++ {
		shares[i] = share(amount, g.Ratios[i], sum)
		distributed += shares[i]
	}
	shares[0] += amount - distributed

	for i := uint8(0); i < g.RecipientCount; i++ {
		if shares[i] > 0 {
			led.Transfer(g.Recipients[i], shares[i])
		}
	}
	g.TotalForwarded += amount
}

// forwardRoundRobin sends the whole amount to the recipient under the
// cursor, then advances it. The cursor lives in CurrentBalance and is
// reduced modulo the live recipient count on every send, so a shrinking
// UPDATE can never leave it pointing past the end.
func forwardRoundRobin(g *Gate, amount uint64, led Ledger) {
	cursor := g.CurrentBalance % uint64(g.RecipientCount)
	if amount > 0 {
		led.Transfer(g.Recipients[cursor], amount)
	}
	g.TotalForwarded += amount
	g.CurrentBalance = (cursor + 1) % uint64(g.RecipientCount)
}

// forwardThreshold accumulates until the trigger level is reached, then
// flushes the entire balance to recipients[0].
func forwardThreshold(g *Gate, amount uint64, led Ledger) {
	g.CurrentBalance += amount
	if g.CurrentBalance < g.Threshold {
		return
	}
	if g.CurrentBalance > 0 {
		led.Transfer(g.Recipients[0], g.CurrentBalance)
	}
	g.TotalForwarded += g.CurrentBalance
	g.CurrentBalance = 0
}

// forwardRandom sends the whole amount to a ratio-weighted pseudo-random
// recipient. CurrentBalance holds the rolling draw state.
func forwardRandom(g *Gate, amount uint64, led Ledger) {
	sum := ratioSum(&g.Ratios, g.RecipientCount)
	draw := nextDrawState(g.CurrentBalance, g.ID, g.TotalReceived)
	idx := weightedIndex(draw, &g.Ratios, g.RecipientCount, sum)
	if amount > 0 {
		led.Transfer(g.Recipients[idx], amount)
	}
	g.TotalForwarded += amount
	g.CurrentBalance = draw
}

// pendingBalance returns the value physically held by the gate: only
// THRESHOLD retains un-forwarded funds; every other mode repurposes
// CurrentBalance as cursor or seed, which must never be paid out.
func (g *Gate) pendingBalance() uint64 {
	if g.Mode == ModeThreshold {
		return g.CurrentBalance
	}
	return 0
}
