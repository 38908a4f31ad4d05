package contract

import "github.com/gammazero/deque"

// Store is the fixed-capacity gate record table. Slot i holds the record for
// gate id i+1; ids are 1-based so the zero value of a wire field can never
// name a real gate. The full array is allocated up front: steady-state
// execution performs no heap allocation, which keeps replay timing and
// memory layout identical across replicas.
//
// Closed gates land on a LIFO free list and their slot is handed out again
// by the next Allocate. The historical counters of a closed record stay
// readable until the slot is reused, at which point the record is fully
// reinitialized.
type Store struct {
	records []Gate
	free    deque.Deque[uint64]
	nextID  uint64 // highest id ever issued
	active  uint64
}

// NewStore creates a store with the given capacity.
func NewStore(capacity uint64) *Store {
	return &Store{
		records: make([]Gate, capacity),
	}
}

// Capacity returns the fixed record table size.
func (s *Store) Capacity() uint64 {
	return uint64(len(s.records))
}

// TotalIssued returns the highest gate id ever assigned.
func (s *Store) TotalIssued() uint64 {
	return s.nextID
}

// ActiveCount returns the number of currently active gates.
func (s *Store) ActiveCount() uint64 {
	return s.active
}

// Full reports whether Allocate would fail.
func (s *Store) Full() bool {
	return s.free.Len() == 0 && s.nextID >= uint64(len(s.records))
}

// Allocate hands out a gate id: the most recently freed id if the free list
// is non-empty, otherwise the next fresh id. Returns false when the table is
// full. The returned slot still holds the previous record; the caller must
// overwrite it completely before use.
func (s *Store) Allocate() (uint64, bool) {
	if s.free.Len() > 0 {
		id := s.free.PopBack()
		s.active++
		return id, true
	}
	if s.nextID >= uint64(len(s.records)) {
		return 0, false
	}
	s.nextID++
	s.active++
	return s.nextID, true
}

// Get returns the record for id, or nil when id has never been issued.
// Closed records are returned too; callers distinguish via Gate.Active.
func (s *Store) Get(id uint64) *Gate {
	if id == 0 || id > s.nextID {
		return nil
	}
	return &s.records[id-1]
}

// Release marks the gate closed and pushes its id onto the free list.
// The record's counters are left intact as a historical trace.
func (s *Store) Release(id uint64) {
	g := s.Get(id)
	if g == nil || !g.Active {
		return
	}
	g.Active = false
	s.active--
	s.free.PushBack(id)
}

// FreeIDs returns the ids currently awaiting reuse, oldest first. The order
// is part of replicated state: it determines future id assignment.
func (s *Store) FreeIDs() []uint64 {
	ids := make([]uint64, s.free.Len())
	for i := 0; i < s.free.Len(); i++ {
		ids[i] = s.free.At(i)
	}
	return ids
}
