package reuse

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"

	"github.com/google/uuid"
)

// Scope is one node of the scope tree. It owns an instance store for the
// services cached at its level, tracks their disposables, and releases them
// in reverse creation order when closed.
//
// In web applications a scope is typically opened per HTTP request so that
// request-bound services are created once per request and disposed at its
// end.
//
// Example:
//
//	scope, err := provider.OpenScope(ctx)
//	if err != nil {
//	    return err
//	}
//	defer scope.Close()
//
//	service, err := reuse.Resolve[*MyService](scope)
type Scope struct {
	id   string
	name any

	parent   *Scope
	provider *Provider

	store       *store
	disposables disposalList
	disposed    int32

	ctx    context.Context
	cancel context.CancelFunc
}

// newScope creates a scope without registering it anywhere. Callers decide
// whether it becomes provider-tracked (OpenScope) or stays private to one
// resolution (chain links).
func newScope(provider *Provider, parent *Scope, ctx context.Context, name any) *Scope {
	if ctx == nil {
		ctx = context.Background()
	}

	s := &Scope{
		id:       uuid.NewString(),
		name:     name,
		parent:   parent,
		provider: provider,
		store:    newStore(provider.slotCount),
	}

	// The scope rides its own context so constructors taking a
	// context.Context can recover it with ScopeFromContext.
	s.ctx, s.cancel = context.WithCancel(ContextWithScope(ctx, s))

	return s
}

// ID returns the unique ID of this scope.
func (s *Scope) ID() string {
	return s.id
}

// Name returns the name given at OpenScope, nil when unnamed. ScopedTo
// lookups match against it.
func (s *Scope) Name() any {
	return s.name
}

// Parent returns the parent scope, nil for the provider's root scope.
func (s *Scope) Parent() *Scope {
	return s.parent
}

// Context returns the context associated with this scope. It is cancelled
// when the scope closes.
func (s *Scope) Context() context.Context {
	return s.ctx
}

// IsDisposed reports whether Close has been called.
func (s *Scope) IsDisposed() bool {
	return atomic.LoadInt32(&s.disposed) != 0
}

// Get resolves a service by type against this scope.
func (s *Scope) Get(serviceType reflect.Type) (any, error) {
	if s.IsDisposed() {
		return nil, ErrScopeDisposed
	}

	return s.provider.resolveService(s, serviceType, nil)
}

// GetKeyed resolves a keyed service by type and key against this scope.
func (s *Scope) GetKeyed(serviceType reflect.Type, serviceKey any) (any, error) {
	if s.IsDisposed() {
		return nil, ErrScopeDisposed
	}

	if serviceKey == nil {
		return nil, ErrServiceKeyNil
	}

	return s.provider.resolveService(s, serviceType, serviceKey)
}

// OpenScope opens a child scope. The child derives a cancellable context
// from ctx and closes itself when that context is cancelled.
func (s *Scope) OpenScope(ctx context.Context, opts ...ScopeOption) (*Scope, error) {
	if s.IsDisposed() {
		return nil, ErrScopeDisposed
	}

	return s.provider.openScope(ctx, s, opts...)
}

// Track registers a caller-supplied value for disposal when this scope
// closes. Values implementing neither disposal interface are ignored.
// Tracking on a closed scope disposes the value immediately and returns
// ErrScopeDisposed.
func (s *Scope) Track(value any) error {
	return s.track(value, false, false)
}

// track appends value to the disposal list. preventDisposal skips tracking
// entirely; weaklyReferenced stores a clearable non-owning handle instead of
// a strong reference.
func (s *Scope) track(value any, preventDisposal, weaklyReferenced bool) error {
	if s.IsDisposed() {
		if err := disposeNow(value); err != nil {
			return errors.Join(ErrScopeDisposed, err)
		}
		return ErrScopeDisposed
	}

	if value == nil || preventDisposal || !valueIsDisposable(value) {
		return nil
	}

	ref := trackedRef{value: value}
	if weaklyReferenced {
		ref = trackedRef{weak: newWeakHandle(value)}
	}
	s.disposables.append(ref)

	// Close may have drained the list between the disposed check and the
	// append, orphaning this entry. Drain again so the value is still
	// released exactly once.
	if s.IsDisposed() {
		ctx, cancelCtx := context.WithTimeout(context.Background(), disposalTimeout)
		defer cancelCtx()

		errs := disposeAll(ctx, s.disposables.drain(), s.provider.observeDispose())
		if len(errs) > 0 {
			return errors.Join(append([]error{ErrScopeDisposed}, errs...)...)
		}
		return ErrScopeDisposed
	}

	return nil
}

// getOrAdd returns the cached value for slotID or materializes it
// single-flight via factory, tracking the result for disposal. The bool
// result reports whether this call created the value.
func (s *Scope) getOrAdd(slotID int, factory func() (any, error), preventDisposal, weaklyReferenced bool) (any, bool, error) {
	if s.IsDisposed() {
		return nil, false, ErrScopeDisposed
	}

	return s.store.getOrCreate(slotID, func() (any, error) {
		value, err := factory()
		if err != nil {
			return nil, err
		}

		// Disposal may have landed while the factory ran. track both
		// releases the fresh value and reports the error in that window.
		if err := s.track(value, preventDisposal, weaklyReferenced); err != nil {
			return nil, err
		}

		return value, nil
	})
}

// Close disposes the scope: it cancels the scope context, removes the scope
// from provider bookkeeping, restores the ambient current to the parent, and
// releases tracked disposables in reverse registration order. Individual
// disposal failures do not stop the sweep; they are aggregated into a
// DisposalError. Close is idempotent.
func (s *Scope) Close() error {
	if !atomic.CompareAndSwapInt32(&s.disposed, 0, 1) {
		return nil
	}

	s.cancel()

	s.provider.forgetScope(s.id)

	if sc := s.provider.ambient(); sc != nil {
		sc.SetCurrent(func(current *Scope) *Scope {
			if current == s {
				return s.parent
			}
			return current
		})
	}

	ctx, cancelCtx := context.WithTimeout(context.Background(), disposalTimeout)
	defer cancelCtx()

	errs := disposeAll(ctx, s.disposables.drain(), s.provider.observeDispose())
	s.store.clear()

	if len(errs) > 0 {
		return DisposalError{Context: "scope", Errors: errs}
	}

	return nil
}

// disposeNow releases one value against a fresh disposal deadline. Used
// outside close sweeps, where no shared deadline exists yet.
func disposeNow(value any) error {
	if !valueIsDisposable(value) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), disposalTimeout)
	defer cancel()

	return disposeValue(ctx, value)
}

// ========================================
// Scope Options
// ========================================

type scopeOptions struct {
	name any
}

// ScopeOption configures a scope opened with OpenScope.
type ScopeOption interface {
	applyScopeOption(*scopeOptions)
}

type namedScopeOption struct {
	name any
}

func (o namedScopeOption) applyScopeOption(opts *scopeOptions) {
	opts.name = o.name
}

// Named assigns a name to the opened scope so ScopedTo(name) registrations
// can bind to it. Names must be comparable, like context keys.
func Named(name any) ScopeOption {
	return namedScopeOption{name: name}
}
