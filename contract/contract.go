package contract

// Contract is the call dispatcher: it validates each incoming procedure
// call, routes it through the fee policy, access control, store and mode
// engine, and performs every value movement through the Ledger.
//
// The dispatcher holds no locks: calls arrive one at a time in the total
// order fixed by the surrounding ledger's consensus, and each call's state
// transition completes before the next begins. The executor package is the
// single writer that enforces this.
type Contract struct {
	cfg    Config
	fees   FeeSchedule
	store  *Store
	burned uint64
	ledger Ledger
}

// New creates a contract instance with the given parameters and ledger.
func New(cfg Config, led Ledger) *Contract {
	if cfg.MaxGates == 0 {
		cfg = DefaultConfig()
	}
	return &Contract{
		cfg: cfg,
		fees: FeeSchedule{
			BaseFee:      cfg.BaseFee,
			MinSend:      cfg.MinSend,
			ExpiryEpochs: cfg.ExpiryEpochs,
		},
		store:  NewStore(cfg.MaxGates),
		ledger: led,
	}
}

// refund returns attached value to the caller; zero-value refunds move
// nothing.
func (c *Contract) refund(to PublicKey, amount uint64) {
	if amount > 0 {
		c.ledger.Transfer(to, amount)
	}
}

// burn removes value from circulation and tracks the running total.
func (c *Contract) burn(amount uint64) {
	if amount > 0 {
		c.ledger.Burn(amount)
		c.burned += amount
	}
}

// validateShape checks the recipient/ratio/threshold/whitelist shape for a
// gate of the given mode. Shared by CREATE and UPDATE; returns StatusOK
// when the shape is acceptable.
func validateShape(mode Mode, recipientCount uint8, ratios *[MaxRecipients]uint64,
	threshold uint64, allowedSenderCount uint8) Status {

	if recipientCount == 0 || recipientCount > MaxRecipients {
		return StatusInvalidRecipientCount
	}
	if allowedSenderCount > MaxRecipients {
		return StatusInvalidSenderCount
	}
	if mode.ratioWeighted() {
		var sum uint64
		for i := uint8(0); i < recipientCount; i++ {
			if ratios[i] > MaxRatio {
				return StatusInvalidRatio
			}
			sum += ratios[i]
		}
		if sum == 0 {
			return StatusInvalidRatio
		}
	}
	if mode == ModeThreshold && threshold == 0 {
		return StatusInvalidThreshold
	}
	return StatusOK
}

// CreateGate registers a new gate. Shape is validated before any fee is
// committed; an invalid call refunds the full attached amount. On success
// exactly the current (escalated) creation fee is burned and any
// overpayment is refunded. Underpayment is refunded in full: a short fee is
// treated as a mistake, not as spam.
func (c *Contract) CreateGate(ctx CallContext, in CreateInput) CreateOutput {
	out := CreateOutput{Status: StatusOK}

	if !in.Mode.Valid() {
		c.refund(ctx.Caller, ctx.Attached)
		out.Status = StatusInvalidMode
		return out
	}
	if st := validateShape(in.Mode, in.RecipientCount, &in.Ratios, in.Threshold, in.AllowedSenderCount); !st.OK() {
		c.refund(ctx.Caller, ctx.Attached)
		out.Status = st
		return out
	}

	fee := c.fees.CurrentFee(c.store.ActiveCount())
	if ctx.Attached < fee {
		c.refund(ctx.Caller, ctx.Attached)
		out.Status = StatusInsufficientFee
		return out
	}

	id, ok := c.store.Allocate()
	if !ok {
		c.refund(ctx.Caller, ctx.Attached)
		out.Status = StatusNoFreeSlots
		return out
	}

	// Reused slots carry the previous record until this full overwrite;
	// nothing may leak across reuse.
	g := c.store.Get(id)
	*g = Gate{
		ID:                 id,
		Mode:               in.Mode,
		Active:             true,
		Owner:              ctx.Caller,
		RecipientCount:     in.RecipientCount,
		Threshold:          in.Threshold,
		AllowedSenderCount: in.AllowedSenderCount,
		CreatedEpoch:       ctx.Epoch,
		LastActivityEpoch:  ctx.Epoch,
	}
	for i := uint8(0); i < in.RecipientCount; i++ {
		g.Recipients[i] = in.Recipients[i]
		g.Ratios[i] = in.Ratios[i]
	}
	for i := uint8(0); i < in.AllowedSenderCount; i++ {
		g.AllowedSenders[i] = in.AllowedSenders[i]
	}

	c.burn(fee)
	c.refund(ctx.Caller, ctx.Attached-fee)

	out.GateID = id
	out.FeePaid = fee
	return out
}

// SendToGate routes the attached amount through the gate. The dust check
// runs before the gate lookup: sub-minimum amounts are burned even when the
// gate id is bad. Larger amounts aimed at an unknown or closed gate are
// refunded in full.
func (c *Contract) SendToGate(ctx CallContext, in SendInput) SendOutput {
	amount := ctx.Attached

	if c.fees.IsDust(amount) {
		c.burn(amount)
		return SendOutput{Status: StatusDustAmount}
	}

	g := c.store.Get(in.GateID)
	if g == nil {
		c.refund(ctx.Caller, amount)
		return SendOutput{Status: StatusInvalidGateID}
	}
	if !g.Active {
		c.refund(ctx.Caller, amount)
		return SendOutput{Status: StatusGateNotActive}
	}

	// Whitelist check precedes every counter mutation: a rejected sender
	// leaves the record exactly as it found it.
	if g.Mode == ModeConditional && !g.senderAllowed(ctx.Caller) {
		c.refund(ctx.Caller, amount)
		return SendOutput{Status: StatusConditionalRejected}
	}

	g.LastActivityEpoch = ctx.Epoch
	forward(g, amount, c.ledger)
	return SendOutput{Status: StatusOK}
}

// CloseGate deactivates a gate. Only the owner may close; a THRESHOLD
// gate's unflushed balance is refunded to the owner first. Closing an
// already-closed gate is rejected idempotently. Any value attached to the
// call itself is always returned.
func (c *Contract) CloseGate(ctx CallContext, in CloseInput) CloseOutput {
	defer c.refund(ctx.Caller, ctx.Attached)

	g := c.store.Get(in.GateID)
	if g == nil {
		return CloseOutput{Status: StatusInvalidGateID}
	}
	if !g.ownedBy(ctx.Caller) {
		return CloseOutput{Status: StatusUnauthorized}
	}
	if !g.Active {
		return CloseOutput{Status: StatusGateNotActive}
	}

	c.closeGate(g)
	return CloseOutput{Status: StatusOK}
}

// closeGate retires an active gate: pending value goes back to the owner,
// the slot joins the free list. Shared by CLOSE and the expiry sweep.
func (c *Contract) closeGate(g *Gate) {
	if bal := g.pendingBalance(); bal > 0 {
		c.ledger.Transfer(g.Owner, bal)
		g.CurrentBalance = 0
	}
	c.store.Release(g.ID)
}

// UpdateGate replaces a gate's recipients, ratios, threshold and whitelist.
// The mode and owner are immutable; shape rules are enforced against the
// gate's existing mode. Attached value is refunded regardless of outcome.
func (c *Contract) UpdateGate(ctx CallContext, in UpdateInput) UpdateOutput {
	defer c.refund(ctx.Caller, ctx.Attached)

	g := c.store.Get(in.GateID)
	if g == nil {
		return UpdateOutput{Status: StatusInvalidGateID}
	}
	if !g.ownedBy(ctx.Caller) {
		return UpdateOutput{Status: StatusUnauthorized}
	}
	if !g.Active {
		return UpdateOutput{Status: StatusGateNotActive}
	}
	if st := validateShape(g.Mode, in.RecipientCount, &in.Ratios, in.Threshold, in.AllowedSenderCount); !st.OK() {
		return UpdateOutput{Status: st}
	}

	g.RecipientCount = in.RecipientCount
	g.Threshold = in.Threshold
	g.AllowedSenderCount = in.AllowedSenderCount
	for i := 0; i < MaxRecipients; i++ {
		if i < int(in.RecipientCount) {
			g.Recipients[i] = in.Recipients[i]
			g.Ratios[i] = in.Ratios[i]
		} else {
			g.Recipients[i] = PublicKey{}
			g.Ratios[i] = 0
		}
		if i < int(in.AllowedSenderCount) {
			g.AllowedSenders[i] = in.AllowedSenders[i]
		} else {
			g.AllowedSenders[i] = PublicKey{}
		}
	}
	g.LastActivityEpoch = ctx.Epoch

	return UpdateOutput{Status: StatusOK}
}

// EndEpoch sweeps for expired gates: any active gate with no activity for
// ExpiryEpochs epochs is auto-closed with the same balance-refund rule as
// CLOSE. A zero ExpiryEpochs disables expiry.
func (c *Contract) EndEpoch(epoch uint16) {
	if c.cfg.ExpiryEpochs == 0 {
		return
	}
	for id := uint64(1); id <= c.store.TotalIssued(); id++ {
		g := c.store.Get(id)
		if !g.Active {
			continue
		}
		if uint64(epoch-g.LastActivityEpoch) >= c.cfg.ExpiryEpochs {
			c.closeGate(g)
		}
	}
}

// GetGate returns a snapshot of the gate record. Unknown ids yield a zero
// snapshot with Active=false, mirroring the wire behavior.
func (c *Contract) GetGate(id uint64) GateInfo {
	g := c.store.Get(id)
	if g == nil {
		return GateInfo{}
	}
	return GateInfo{
		Mode:              g.Mode,
		RecipientCount:    g.RecipientCount,
		Active:            g.Active,
		Owner:             g.Owner,
		TotalReceived:     g.TotalReceived,
		TotalForwarded:    g.TotalForwarded,
		CurrentBalance:    g.CurrentBalance,
		Threshold:         g.Threshold,
		CreatedEpoch:      g.CreatedEpoch,
		LastActivityEpoch: g.LastActivityEpoch,
		Recipients:        g.Recipients,
		Ratios:            g.Ratios,
	}
}

// GetCount returns the aggregate gate counters.
func (c *Contract) GetCount() CountInfo {
	return CountInfo{
		TotalGates:  c.store.TotalIssued(),
		ActiveGates: c.store.ActiveCount(),
		TotalBurned: c.burned,
	}
}

// GetFees returns the fee parameters, with CurrentFee already escalated for
// the present active-gate count.
func (c *Contract) GetFees() FeeInfo {
	return FeeInfo{
		BaseFee:      c.fees.BaseFee,
		CurrentFee:   c.fees.CurrentFee(c.store.ActiveCount()),
		MinSend:      c.fees.MinSend,
		ExpiryEpochs: c.fees.ExpiryEpochs,
	}
}

// FreeIDs exposes the free list for state snapshots; its order is part of
// replicated state.
func (c *Contract) FreeIDs() []uint64 {
	return c.store.FreeIDs()
}
