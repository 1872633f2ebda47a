package reuse

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// instance is one materialized store value. A pointer to it is published
// atomically so the fast path never observes a partially written entry.
type instance struct {
	value any
}

// slot holds the single-flight state for one service in one scope.
type slot struct {
	val atomic.Pointer[instance]
	mu  sync.Mutex
}

// store maps slot ids to lazily created values. Every scope owns exactly one
// store, sized at build time to the descriptor count so that slot access is a
// stable O(1) array index and distinct slots never contend.
type store struct {
	slots []slot
}

func newStore(size int) *store {
	return &store{slots: make([]slot, size)}
}

// get returns the published value for id, if any.
func (s *store) get(id int) (any, bool) {
	if id < 0 || id >= len(s.slots) {
		return nil, false
	}
	if inst := s.slots[id].val.Load(); inst != nil {
		return inst.value, true
	}
	return nil, false
}

// getOrCreate returns the value for id, running materialize under the slot
// lock when no value is published yet. Exactly one materialize call succeeds
// per published value; concurrent callers for the same unseen slot serialize
// on the slot lock and observe the first success. A materialize failure
// publishes nothing, so the slot stays absent and later callers retry. The
// second result reports whether this call created the value.
func (s *store) getOrCreate(id int, materialize func() (any, error)) (any, bool, error) {
	if id < 0 || id >= len(s.slots) {
		return nil, false, fmt.Errorf("invalid slot id %d (store size %d)", id, len(s.slots))
	}

	// Slice length is fixed after creation, so the entry pointer is stable.
	entry := &s.slots[id]

	// Fast path: already created.
	if inst := entry.val.Load(); inst != nil {
		return inst.value, false, nil
	}

	// Slow path: create under the slot lock.
	entry.mu.Lock()
	defer entry.mu.Unlock()

	// Double check after acquiring the lock.
	if inst := entry.val.Load(); inst != nil {
		return inst.value, false, nil
	}

	value, err := materialize()
	if err != nil {
		return nil, false, err
	}

	entry.val.Store(&instance{value: value})
	return value, true, nil
}

// clear unpublishes every slot to release references after disposal. Values
// themselves are released by the owning scope's disposal sweep, never here.
func (s *store) clear() {
	for i := range s.slots {
		s.slots[i].val.Store(nil)
	}
}
