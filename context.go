package reuse

import (
	"context"
	"sync/atomic"
)

// AmbientRootName is the name assigned to the first scope pushed into an
// ambient context without an explicit name. ScopedTo(AmbientRootName) binds
// a registration to that outermost ambient scope.
const AmbientRootName = "ambient:root"

// ScopeContext is a pluggable strategy for tracking the current scope when
// no explicit scope receiver is in play. A provider is given at most one
// ScopeContext at build time and never changes it afterward.
type ScopeContext interface {
	// Current returns the current scope, nil when none.
	Current() *Scope

	// SetCurrent atomically replaces the current scope with the result of
	// transform, which receives the previous current, and returns the new
	// current. Concurrent independent flows are safe; a single flow
	// mutating its own current concurrently is unsupported.
	SetCurrent(transform func(*Scope) *Scope) *Scope

	// RootName returns the name given to the first unnamed scope pushed
	// into this context.
	RootName() any
}

// ambientContext is the container-bound ScopeContext: one process-wide slot
// shared by every goroutine resolving through the provider it is attached
// to.
type ambientContext struct {
	current atomic.Pointer[Scope]
}

// NewAmbientContext returns a container-bound ScopeContext. Attach it with
// ProviderOptions.ScopeContext; afterwards OpenScope pushes the new scope as
// current and Close restores its parent, so provider-level resolutions see
// the innermost open scope.
func NewAmbientContext() ScopeContext {
	return &ambientContext{}
}

func (c *ambientContext) Current() *Scope {
	return c.current.Load()
}

func (c *ambientContext) SetCurrent(transform func(*Scope) *Scope) *Scope {
	for {
		old := c.current.Load()
		next := transform(old)
		if c.current.CompareAndSwap(old, next) {
			return next
		}
	}
}

func (c *ambientContext) RootName() any {
	return AmbientRootName
}

// scopeContextKey is the key for storing the current scope in context.
type scopeContextKey struct{}

// ContextWithScope returns a context carrying scope. Every scope already
// embeds itself into its own Context(), so this is only needed to thread a
// scope through code passing plain contexts.
func ContextWithScope(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, scope)
}

// ScopeFromContext returns the scope carried by ctx.
func ScopeFromContext(ctx context.Context) (*Scope, error) {
	scope, ok := ctx.Value(scopeContextKey{}).(*Scope)
	if !ok || scope == nil {
		return nil, ErrScopeNotInContext
	}

	if scope.IsDisposed() {
		return nil, ErrScopeDisposed
	}

	return scope, nil
}
