package reuse

import (
	"errors"
	"reflect"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/scopekit/reuse/internal/reflection"
)

// resolveService is the single entry point for every resolution: provider
// and scope Get/GetKeyed calls, deferred closures, and eager singleton
// creation all funnel through here. It validates the root's lifespan edges,
// runs the resolution, finishes the resolution scope chain, and feeds the
// observation callbacks.
func (p *Provider) resolveService(receiver *Scope, serviceType reflect.Type, serviceKey any) (any, error) {
	if serviceType == nil {
		return nil, ErrServiceTypeNil
	}
	if p.isDisposed() {
		return nil, ErrProviderDisposed
	}
	if receiver == nil {
		receiver = p.root
	}

	start := time.Now()
	value, err := p.resolveRoot(receiver, serviceType, serviceKey)
	elapsed := time.Since(start)
	atomic.AddInt64(&p.stats.resolutionNanos, int64(elapsed))

	if err != nil {
		atomic.AddInt64(&p.stats.resolutionFailures, 1)
		if p.options.OnServiceError != nil {
			p.options.OnServiceError(serviceType, err)
		}
		return nil, err
	}

	atomic.AddInt64(&p.stats.resolutions, 1)
	if p.options.OnServiceResolved != nil {
		p.options.OnServiceResolved(serviceType, value, elapsed)
	}
	return value, nil
}

func (p *Provider) resolveRoot(receiver *Scope, serviceType reflect.Type, serviceKey any) (any, error) {
	if err := p.planFor(TypeKey{Type: serviceType, Key: serviceKey}); err != nil {
		return nil, err
	}

	rs := &resolution{
		provider: p,
		receiver: receiver,
		rootType: serviceType,
		rootKey:  serviceKey,
	}

	value, err := rs.resolve(serviceType, serviceKey)

	// Links that tracked disposables are handed to their chain parents so
	// the values die with the scope tree; empty links are dropped.
	if finishErr := finishLinks(rs.links, receiver); finishErr != nil {
		err = errors.Join(err, finishErr)
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// resolution carries the state of one top-level resolve call: the receiver
// scope, the construction stack, and the resolution scope chain. A
// resolution belongs to a single goroutine; deferred closures start fresh
// resolutions when invoked.
type resolution struct {
	provider *Provider
	receiver *Scope

	rootType reflect.Type
	rootKey  any

	// frames is the construction stack, innermost node last.
	frames []*frame

	// link is the current chain link; links records every link opened
	// during this call for the finishing pass.
	link  *chainLink
	links []*chainLink
}

// frame is one node under construction: its descriptor, its effective reuse
// with Parent already substituted, and the scope caching the value, nil for
// Transient.
type frame struct {
	descriptor *Descriptor
	reuse      Reuse
	scope      *Scope
}

func (rs *resolution) resolve(serviceType reflect.Type, serviceKey any) (any, error) {
	d := rs.provider.registry[TypeKey{Type: serviceType, Key: serviceKey}]
	if d == nil {
		return nil, ResolutionError{
			ServiceType: serviceType,
			ServiceKey:  serviceKey,
			Cause:       ErrServiceNotFound,
			Available:   rs.provider.available,
		}
	}
	return rs.resolveDescriptor(d)
}

func (rs *resolution) resolveDescriptor(d *Descriptor) (any, error) {
	eff := rs.effectiveReuse(d)

	if d.OpensResolutionScope {
		prev := rs.link
		rs.link = rs.openLink(d)
		defer func() { rs.link = prev }()
	}

	target, err := rs.cacheScope(eff)
	if err != nil {
		return nil, err
	}

	if target == nil {
		value, err := rs.construct(d, eff, nil)
		if err != nil {
			return nil, err
		}
		if err := rs.applyTransientPolicy(d, value); err != nil {
			return nil, err
		}
		return value, nil
	}

	value, _, err := target.getOrAdd(d.SlotID, func() (any, error) {
		return rs.construct(d, eff, target)
	}, d.PreventDisposal, d.WeaklyReferenced)
	if err != nil {
		return nil, err
	}
	return value, nil
}

// effectiveReuse substitutes Parent with the nearest non-Transient
// ancestor's effective reuse, Transient when the whole ancestry is
// Transient. Default was already replaced at build time.
func (rs *resolution) effectiveReuse(d *Descriptor) Reuse {
	if d.Reuse.Kind() != KindParent {
		return d.Reuse
	}
	for i := len(rs.frames) - 1; i >= 0; i-- {
		if fr := rs.frames[i]; fr.reuse.Kind() != KindTransient {
			return fr.reuse
		}
	}
	return Transient
}

// cacheScope maps an effective reuse to the scope that caches the value,
// nil for Transient. A missing scope fails with the exact reason; nothing is
// silently substituted.
func (rs *resolution) cacheScope(r Reuse) (*Scope, error) {
	switch r.Kind() {
	case KindTransient:
		return nil, nil

	case KindSingleton:
		return rs.provider.root, nil

	case KindScoped:
		current := rs.currentScope()
		if current == nil {
			return nil, ErrNoCurrentScope
		}
		return current, nil

	case KindScopedTo:
		for s := rs.currentScope(); s != nil; s = s.parent {
			if s.name == r.ScopeName() {
				return s, nil
			}
		}
		return nil, ScopeNameNotFoundError{Name: r.ScopeName()}

	case KindResolutionScope:
		if rs.receiver == nil {
			return nil, ErrNoResolutionScope
		}
		return rs.currentLink().scope, nil

	case KindResolutionScopeOf:
		if rs.receiver == nil {
			return nil, ErrNoResolutionScope
		}
		if match := rs.currentLink().findMatch(r); match != nil {
			return match.scope, nil
		}
		return nil, NoMatchingResolutionScopeError{Marker: r.Marker(), Key: r.Key(), Outermost: r.Outermost()}

	default:
		return nil, ReuseError{Value: r.Kind()}
	}
}

// currentScope selects the scope Scoped reuse and scope-name walks start
// from: the explicit receiver when the call ran on a non-root scope, else
// the ambient current, else the implicit scope opened at build time.
func (rs *resolution) currentScope() *Scope {
	if rs.receiver != nil && rs.receiver != rs.provider.root {
		return rs.receiver
	}
	if sc := rs.provider.ambient(); sc != nil {
		if current := sc.Current(); current != nil {
			return current
		}
	}
	return rs.provider.implicit
}

// currentLink returns the current chain link, allocating the root link on
// first need. The root link parents on the receiver scope and carries the
// root request's tag so InResolutionScopeOf can bind to it.
func (rs *resolution) currentLink() *chainLink {
	if rs.link == nil {
		rs.link = newChainLink(nil, rs.receiver, rs.rootType, rs.rootKey)
		rs.links = append(rs.links, rs.link)
	}
	return rs.link
}

// openLink appends a child link for a service registered with
// OpensResolutionScope. The root link is materialized first so every link's
// chain reaches the root tag.
func (rs *resolution) openLink(d *Descriptor) *chainLink {
	parent := rs.currentLink()
	link := newChainLink(parent, parent.scope, d.Type, d.Key)
	rs.links = append(rs.links, link)
	return link
}

// construct pushes a frame and invokes the constructor. Failures surface as
// ConstructorInvocationError, panics as ConstructorPanicError; only the
// originating frame reports the panic, outer frames see an ordinary
// parameter resolution failure.
func (rs *resolution) construct(d *Descriptor, eff Reuse, target *Scope) (value any, err error) {
	fr := &frame{descriptor: d, reuse: eff, scope: target}
	rs.frames = append(rs.frames, fr)
	defer func() {
		rs.frames = rs.frames[:len(rs.frames)-1]
		if r := recover(); r != nil {
			value = nil
			err = ConstructorPanicError{
				Constructor: d.ConstructorType,
				Panic:       r,
				Stack:       debug.Stack(),
			}
		}
	}()

	value, err = rs.provider.invoker.Invoke(d.info, &dependencyAdapter{resolution: rs, frame: fr})
	if err != nil {
		params := make([]reflect.Type, len(d.info.Parameters))
		for i, p := range d.info.Parameters {
			params[i] = p.Type
		}
		return nil, ConstructorInvocationError{
			Constructor: d.ConstructorType,
			Parameters:  params,
			Cause:       err,
		}
	}

	atomic.AddInt64(&rs.provider.stats.instancesCreated, 1)
	return value, nil
}

// applyTransientPolicy runs after a Transient construction produced its
// value. Nothing owns a transient, so a disposable one is either rejected,
// handed over untracked, or assigned an owner, per the provider policy.
func (rs *resolution) applyTransientPolicy(d *Descriptor, value any) error {
	if d.PreventDisposal || !valueIsDisposable(value) {
		return nil
	}

	switch rs.provider.options.DisposableTransients {
	case AllowDisposableTransient:
		return nil

	case TrackDisposableTransient:
		return rs.trackingScope().track(value, false, d.WeaklyReferenced)

	default:
		policyErr := DisposableTransientError{ServiceType: d.Type}
		// The caller never sees the value, so release it before failing.
		if closeErr := disposeNow(value); closeErr != nil {
			return errors.Join(policyErr, closeErr)
		}
		return policyErr
	}
}

// trackingScope picks the owner for a tracked disposable transient: the
// nearest non-Transient frame still on the construction stack, else the
// current scope, else the provider root.
func (rs *resolution) trackingScope() *Scope {
	for i := len(rs.frames) - 1; i >= 0; i-- {
		if s := rs.frames[i].scope; s != nil {
			return s
		}
	}
	if current := rs.currentScope(); current != nil {
		return current
	}
	return rs.provider.root
}

// dependencyAdapter feeds constructor parameters from the running
// resolution. It also serves the built-in injections: context.Context
// resolves to the injection scope's context and *Scope to the injection
// scope itself.
type dependencyAdapter struct {
	resolution *resolution
	frame      *frame
}

var _ reflection.DependencyResolver = (*dependencyAdapter)(nil)

func (a *dependencyAdapter) Resolve(t reflect.Type) (any, error) {
	switch t {
	case ctxType:
		return a.injectionScope().Context(), nil
	case scopeType:
		return a.injectionScope(), nil
	}
	return a.resolution.resolve(t, nil)
}

// ResolveDeferred returns a closure resolving t as a fresh top-level call
// against the scope that owned the consumer. The deferred edge is invisible
// to cycle and lifespan analysis; whatever is current when the closure runs
// decides scope-sensitive reuses.
func (a *dependencyAdapter) ResolveDeferred(t reflect.Type) func() (any, error) {
	p := a.resolution.provider
	captured := a.injectionScope()
	return func() (any, error) {
		if captured.IsDisposed() {
			return nil, ErrScopeDisposed
		}
		return p.resolveService(captured, t, nil)
	}
}

// injectionScope is the scope a constructor observes: the frame's cache
// scope, else the current chain link's scope, else the current scope, else
// the receiver.
func (a *dependencyAdapter) injectionScope() *Scope {
	if a.frame.scope != nil {
		return a.frame.scope
	}
	if link := a.resolution.link; link != nil {
		return link.scope
	}
	if current := a.resolution.currentScope(); current != nil {
		return current
	}
	return a.resolution.receiver
}

// planFor validates the lifespan edges reachable from root once per
// provider, memoizing the verdict. Registrations are immutable after build,
// so the verdict never changes.
func (p *Provider) planFor(root TypeKey) error {
	if p.options.DisableLifespanCheck {
		return nil
	}
	if cached, ok := p.plans.Load(root); ok {
		if cached == nil {
			return nil
		}
		return cached.(error)
	}

	err := p.checkLifespans(root)
	p.plans.Store(root, err)
	return err
}

// checkLifespans walks the hard-edge graph from root carrying the reuse a
// Parent dependency would inherit at that point. An edge with both ends in
// the Scoped/Singleton families requires the dependency to live at least as
// long as its consumer. Deferred edges and the resolution family are
// exempt; missing registrations are reported by resolution, not here.
func (p *Provider) checkLifespans(root TypeKey) error {
	type visitKey struct {
		node      TypeKey
		inherited Kind
	}
	visited := make(map[visitKey]bool)

	var visit func(key TypeKey, inherited Reuse) error
	visit = func(key TypeKey, inherited Reuse) error {
		vk := visitKey{node: key, inherited: inherited.Kind()}
		if visited[vk] {
			return nil
		}
		visited[vk] = true

		d := p.registry[key]
		if d == nil {
			return nil
		}

		eff := d.Reuse
		if eff.Kind() == KindParent {
			eff = inherited
		}

		next := inherited
		if eff.Kind() != KindTransient {
			next = eff
		}

		for _, dep := range d.GetDependencies() {
			if dep.Deferred {
				continue
			}

			depKey := TypeKey{Type: dep.Type}
			dd := p.registry[depKey]
			if dd == nil {
				continue
			}

			depEff := dd.Reuse
			if depEff.Kind() == KindParent {
				depEff = next
			}

			if lifespanChecked(eff) && lifespanChecked(depEff) && depEff.Lifespan() < eff.Lifespan() {
				return LifespanMismatchError{
					ServiceType:     d.Type,
					ServiceReuse:    eff,
					DependencyType:  dd.Type,
					DependencyReuse: depEff,
				}
			}

			if err := visit(depKey, next); err != nil {
				return err
			}
		}
		return nil
	}

	return visit(root, Transient)
}

// lifespanChecked reports whether a reuse participates in the captive
// dependency check.
func lifespanChecked(r Reuse) bool {
	switch r.Kind() {
	case KindSingleton, KindScoped, KindScopedTo:
		return true
	default:
		return false
	}
}
