package reuse

import (
	"context"
	"sync"
	"time"
)

// disposalTimeout bounds context-aware disposal during a close sweep.
// Close() takes no context and the scope's own context is already cancelled
// by the time the sweep runs, so each sweep gets a fresh deadline.
const disposalTimeout = 30 * time.Second

// weakHandle is the non-owning reference stored for WeaklyReferenced
// registrations. It has exactly two states, present and absent; clearing it
// makes the disposal sweep skip the entry instead of failing.
type weakHandle struct {
	mu      sync.Mutex
	value   any
	present bool
}

func newWeakHandle(value any) *weakHandle {
	return &weakHandle{value: value, present: true}
}

func (h *weakHandle) get() (any, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.value, h.present
}

func (h *weakHandle) clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.value = nil
	h.present = false
}

// trackedRef is one entry in a scope's disposal list: either a strong owning
// reference or a weak handle that may have gone absent by sweep time.
type trackedRef struct {
	value any
	weak  *weakHandle
}

// resolve returns the referenced value, reporting absence for cleared weak
// handles.
func (r trackedRef) resolve() (any, bool) {
	if r.weak != nil {
		return r.weak.get()
	}
	return r.value, true
}

// disposalList records tracked references in registration order. Appends
// happen throughout the scope's life; the list is read exactly once, in
// reverse, when the scope closes.
type disposalList struct {
	mu   sync.Mutex
	refs []trackedRef
}

func (l *disposalList) append(ref trackedRef) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refs = append(l.refs, ref)
}

// drain removes and returns all tracked references.
func (l *disposalList) drain() []trackedRef {
	l.mu.Lock()
	refs := l.refs
	l.refs = nil
	l.mu.Unlock()
	return refs
}

func (l *disposalList) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.refs)
}

// disposeAll releases refs in reverse registration order. The sweep never
// stops early; individual failures are collected and returned together.
// observe, when non-nil, is invoked per released value with its disposal
// result.
func disposeAll(ctx context.Context, refs []trackedRef, observe func(instance any, err error)) []error {
	var errs []error
	for i := len(refs) - 1; i >= 0; i-- {
		value, ok := refs[i].resolve()
		if !ok {
			continue
		}

		err := disposeValue(ctx, value)
		if observe != nil {
			observe(value, err)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
