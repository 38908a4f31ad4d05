package contract

// FeeSchedule computes the charge/refund/burn decisions for value-bearing
// calls. All parameters are public and queryable via GET_FEES.
type FeeSchedule struct {
	BaseFee      uint64
	MinSend      uint64
	ExpiryEpochs uint64
}

// CurrentFee returns the creation fee for the given number of active gates.
// The fee climbs by one BaseFee per FeeEscalationStep active gates, so a
// fuller table prices out bulk gate squatting.
func (f FeeSchedule) CurrentFee(activeGates uint64) uint64 {
	return f.BaseFee * (1 + activeGates/FeeEscalationStep)
}

// IsDust reports whether a SEND amount is below the minimum and must be
// burned. Zero-value sends fall under this whenever MinSend >= 1: they are
// dust-burned (a burn of zero moves nothing), never silently accepted.
func (f FeeSchedule) IsDust(amount uint64) bool {
	return amount < f.MinSend
}
