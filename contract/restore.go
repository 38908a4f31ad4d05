package contract

import "fmt"

// State export/restore hooks for the snapshot layer. A state image is the
// full record table (whitelists included, unlike the GET_GATE wire record),
// the free-list order and the burn counter; together with the config these
// reproduce the contract byte for byte.

// Config returns the contract's parameters.
func (c *Contract) Config() Config {
	return c.cfg
}

// ExportGates passes a copy of every issued record to fn, in id order.
// Inactive records are included: their slots and counters are state.
func (c *Contract) ExportGates(fn func(g Gate)) {
	for id := uint64(1); id <= c.store.TotalIssued(); id++ {
		fn(*c.store.Get(id))
	}
}

// Restore rebuilds a contract from an exported state image. gates[i] must be
// the record for id i+1; freeIDs must list exactly the inactive records in
// their free-list order.
func Restore(cfg Config, led Ledger, gates []Gate, freeIDs []uint64, burned uint64) (*Contract, error) {
	if cfg.MaxGates == 0 {
		cfg = DefaultConfig()
	}
	if uint64(len(gates)) > cfg.MaxGates {
		return nil, fmt.Errorf("state image holds %d records, capacity is %d", len(gates), cfg.MaxGates)
	}

	c := New(cfg, led)
	c.burned = burned
	c.store.nextID = uint64(len(gates))

	inactive := 0
	for i, g := range gates {
		if g.ID != uint64(i+1) {
			return nil, fmt.Errorf("record %d carries id %d", i+1, g.ID)
		}
		c.store.records[i] = g
		if g.Active {
			c.store.active++
		} else {
			inactive++
		}
	}

	if len(freeIDs) != inactive {
		return nil, fmt.Errorf("free list holds %d ids, %d records are inactive", len(freeIDs), inactive)
	}
	for _, id := range freeIDs {
		g := c.store.Get(id)
		if g == nil || g.Active {
			return nil, fmt.Errorf("free list names id %d, which is not an inactive record", id)
		}
		c.store.free.PushBack(id)
	}
	return c, nil
}
