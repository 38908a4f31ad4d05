package contract

// ownedBy reports whether the caller may mutate the gate (CLOSE/UPDATE).
func (g *Gate) ownedBy(caller PublicKey) bool {
	return g.Owner == caller
}

// senderAllowed reports whether the caller may route value through a
// CONDITIONAL gate. Only the first AllowedSenderCount whitelist slots are
// live; the zero-filled tail never matches a real caller.
func (g *Gate) senderAllowed(caller PublicKey) bool {
	for i := uint8(0); i < g.AllowedSenderCount; i++ {
		if g.AllowedSenders[i] == caller {
			return true
		}
	}
	return false
}
