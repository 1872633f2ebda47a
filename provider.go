package reuse

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/scopekit/reuse/internal/graph"
	"github.com/scopekit/reuse/internal/reflection"
)

// Provider is the built, immutable registration set plus the scope tree
// caching its instances. It owns exactly one root scope for singletons;
// every other scope is opened through OpenScope and disposed by Close, its
// context, or the provider's own Close.
//
// A Provider is safe for concurrent use.
//
// Example:
//
//	collection := reuse.NewCollection()
//	collection.AddSingleton(NewLogger)
//	collection.AddScoped(NewRequestState)
//
//	provider, err := collection.Build()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	logger, err := reuse.Resolve[*Logger](provider)
type Provider struct {
	id      string
	options ProviderOptions

	// registry maps every registration view, primary and As alias alike, to
	// its descriptor. Immutable after build.
	registry map[TypeKey]*Descriptor

	// ordered holds the distinct descriptors in slot order.
	ordered   []*Descriptor
	slotCount int

	// available lists registered service types for not-found suggestions.
	available []reflect.Type

	analyzer *reflection.Analyzer
	invoker  *reflection.ConstructorInvoker
	graph    *graph.DependencyGraph

	root     *Scope
	implicit *Scope

	scopesMu sync.Mutex
	scopes   map[string]*Scope

	// plans memoizes the per-root lifespan verdicts.
	plans sync.Map

	disposed int32
	stats    providerStats
}

type providerStats struct {
	resolutions        int64
	resolutionFailures int64
	instancesCreated   int64
	scopesOpened       int64
	scopesClosed       int64
	disposals          int64
	disposalFailures   int64
	resolutionNanos    int64
}

// newProvider builds a provider from the collection's live descriptors:
// clone and finalize reuses, assign store slots, check the graph, create the
// root scope, and run the optional build-time validation.
func newProvider(descriptors []*Descriptor, options *ProviderOptions) (*Provider, error) {
	opts := ProviderOptions{}
	if options != nil {
		opts = *options
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	analyzer := reflection.New()
	p := &Provider{
		id:       uuid.NewString(),
		options:  opts,
		registry: make(map[TypeKey]*Descriptor, len(descriptors)),
		analyzer: analyzer,
		invoker:  reflection.NewConstructorInvoker(analyzer),
		graph:    graph.NewDependencyGraph(),
		scopes:   make(map[string]*Scope),
	}

	defaultReuse := opts.DefaultReuse
	if defaultReuse.Kind() == KindDefault {
		defaultReuse = Transient
	}

	for _, original := range descriptors {
		d := original.clone()
		if d.Reuse.Kind() == KindDefault {
			d.Reuse = defaultReuse
		}

		// Default substitution can hand a reuse the registration could not
		// have taken explicitly, an instance made Transient for example.
		if err := d.Validate(); err != nil {
			return nil, BuildError{Phase: "validation", Details: "invalid registration", Cause: err}
		}

		d.SlotID = len(p.ordered)
		p.ordered = append(p.ordered, d)
		for _, view := range descriptorViews(d) {
			p.registry[view] = d
		}
	}
	p.slotCount = len(p.ordered)
	p.available = availableTypes(p.ordered, p.registry)

	// Cycle detection sees one node per registration view, so cycles routed
	// through an As interface binding are caught too.
	for _, d := range p.ordered {
		for _, view := range descriptorViews(d) {
			if p.registry[view] != d {
				continue
			}
			if err := p.graph.AddProvider(viewNode{view: view, descriptor: d}); err != nil {
				return nil, BuildError{Phase: "graph", Details: "failed to add registration", Cause: err}
			}
		}
	}
	if err := p.graph.DetectCycles(); err != nil {
		return nil, err
	}

	if opts.DisposableTransients == DisallowDisposableTransient {
		for _, d := range p.ordered {
			if d.Reuse.Kind() == KindTransient && !d.PreventDisposal && typeIsDisposable(d.Type) {
				return nil, DisposableTransientError{ServiceType: d.Type}
			}
		}
	}

	p.root = newScope(p, nil, context.Background(), nil)

	if opts.ImplicitOpenRootScope {
		implicit, err := p.openScope(context.Background(), p.root)
		if err != nil {
			_ = p.Close()
			return nil, BuildError{Phase: "scope", Details: "failed to open implicit root scope", Cause: err}
		}
		p.implicit = implicit
	}

	if opts.ValidateOnBuild {
		buildCtx := context.Background()
		if opts.BuildTimeout > 0 {
			var cancel context.CancelFunc
			buildCtx, cancel = context.WithTimeout(buildCtx, opts.BuildTimeout)
			defer cancel()
		}
		if err := p.validate(buildCtx); err != nil {
			_ = p.Close()
			return nil, err
		}
	}

	return p, nil
}

// validate checks that every hard and deferred edge has a registration,
// verifies the lifespan edges of every root, and eagerly creates all
// singletons in dependency order.
func (p *Provider) validate(ctx context.Context) error {
	for _, d := range p.ordered {
		for _, dep := range d.GetDependencies() {
			if _, ok := p.registry[TypeKey{Type: dep.Type}]; !ok {
				return ValidationError{
					ServiceType: d.Type,
					Cause: ResolutionError{
						ServiceType: dep.Type,
						Cause:       ErrServiceNotFound,
						Available:   p.available,
					},
				}
			}
		}
	}

	for _, d := range p.ordered {
		if err := p.planFor(TypeKey{Type: d.Type, Key: d.Key}); err != nil {
			return err
		}
	}

	return p.createSingletons(ctx)
}

// createSingletons materializes every singleton at build time, dependencies
// before consumers.
func (p *Provider) createSingletons(ctx context.Context) error {
	order, err := p.graph.TopologicalSort()
	if err != nil {
		return BuildError{Phase: "singleton-creation", Details: "dependency ordering failed", Cause: err}
	}

	for _, node := range order {
		select {
		case <-ctx.Done():
			return TimeoutError{Timeout: p.options.BuildTimeout}
		default:
		}

		key := TypeKey{Type: node.Key.Type, Key: node.Key.Key}
		d := p.registry[key]
		if d == nil || d.Reuse.Kind() != KindSingleton {
			continue
		}
		if _, err := p.resolveService(p.root, key.Type, key.Key); err != nil {
			return BuildError{
				Phase:   "singleton-creation",
				Details: fmt.Sprintf("failed to create %s", formatType(key.Type)),
				Cause:   err,
			}
		}
	}
	return nil
}

// ID returns the unique ID of this provider.
func (p *Provider) ID() string {
	return p.id
}

// Get resolves a service by type against the root scope. With an ambient
// context or implicit root scope configured, Scoped services fall back to
// the scope current there; otherwise they fail with ErrNoCurrentScope.
func (p *Provider) Get(serviceType reflect.Type) (any, error) {
	return p.resolveService(p.root, serviceType, nil)
}

// GetKeyed resolves a keyed service by type and key.
func (p *Provider) GetKeyed(serviceType reflect.Type, serviceKey any) (any, error) {
	if serviceKey == nil {
		return nil, ErrServiceKeyNil
	}
	return p.resolveService(p.root, serviceType, serviceKey)
}

// OpenScope opens a scope under the root, or under the ambient current
// scope when a ScopeContext is configured and has one. The scope closes
// when Close is called on it, when ctx is cancelled, or when the provider
// closes, whichever happens first.
func (p *Provider) OpenScope(ctx context.Context, opts ...ScopeOption) (*Scope, error) {
	parent := p.root
	if sc := p.ambient(); sc != nil {
		if current := sc.Current(); current != nil && !current.IsDisposed() {
			parent = current
		}
	}
	return p.openScope(ctx, parent, opts...)
}

// openScope creates, tracks, and publishes a child of parent. Scope.OpenScope
// funnels here with the receiver as parent.
func (p *Provider) openScope(ctx context.Context, parent *Scope, opts ...ScopeOption) (*Scope, error) {
	if p.isDisposed() {
		return nil, ErrProviderDisposed
	}
	if parent != nil && parent.IsDisposed() {
		return nil, ErrScopeDisposed
	}

	options := &scopeOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt.applyScopeOption(options)
		}
	}

	name := options.name
	sc := p.ambient()
	if sc != nil && name == nil && sc.Current() == nil {
		name = sc.RootName()
	}

	s := newScope(p, parent, ctx, name)

	p.scopesMu.Lock()
	if p.scopes == nil {
		// The provider closed while the scope was being created.
		p.scopesMu.Unlock()
		_ = s.Close()
		return nil, ErrProviderDisposed
	}
	p.scopes[s.id] = s
	p.scopesMu.Unlock()
	atomic.AddInt64(&p.stats.scopesOpened, 1)

	if sc != nil {
		sc.SetCurrent(func(*Scope) *Scope { return s })
	}

	// Auto-close on context cancellation. Close cancels the scope context,
	// so explicit closes settle this goroutine through idempotent Close.
	go func() {
		<-s.ctx.Done()
		_ = s.Close()
	}()

	return s, nil
}

// forgetScope removes a closed scope from provider bookkeeping.
func (p *Provider) forgetScope(id string) {
	p.scopesMu.Lock()
	_, tracked := p.scopes[id]
	if tracked {
		delete(p.scopes, id)
	}
	p.scopesMu.Unlock()

	if tracked {
		atomic.AddInt64(&p.stats.scopesClosed, 1)
	}
}

// ambient returns the configured ScopeContext, nil when none.
func (p *Provider) ambient() ScopeContext {
	return p.options.ScopeContext
}

// observeDispose returns the per-disposal observer: it keeps the disposal
// counters and forwards to the OnDispose callback.
func (p *Provider) observeDispose() func(instance any, err error) {
	return func(instance any, err error) {
		atomic.AddInt64(&p.stats.disposals, 1)
		if err != nil {
			atomic.AddInt64(&p.stats.disposalFailures, 1)
		}
		if p.options.OnDispose != nil {
			p.options.OnDispose(instance, err)
		}
	}
}

// IsDisposed reports whether Close has been called.
func (p *Provider) IsDisposed() bool {
	return p.isDisposed()
}

func (p *Provider) isDisposed() bool {
	return atomic.LoadInt32(&p.disposed) != 0
}

// Close disposes the provider: every tracked scope first, then the root
// scope with its singletons, in reverse creation order within each scope.
// Close is idempotent; resolutions in flight finish or observe
// ErrProviderDisposed.
func (p *Provider) Close() error {
	if !atomic.CompareAndSwapInt32(&p.disposed, 0, 1) {
		return nil
	}

	var errs []error

	p.scopesMu.Lock()
	scopes := make([]*Scope, 0, len(p.scopes))
	for _, s := range p.scopes {
		scopes = append(scopes, s)
	}
	p.scopesMu.Unlock()

	for _, s := range scopes {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("scope %s: %w", s.ID(), err))
		}
	}

	p.scopesMu.Lock()
	p.scopes = nil
	p.scopesMu.Unlock()

	if p.root != nil {
		if err := p.root.Close(); err != nil {
			errs = append(errs, fmt.Errorf("root scope: %w", err))
		}
	}

	if len(errs) > 0 {
		return DisposalError{Context: "provider", Errors: errs}
	}
	return nil
}

// Stats returns a snapshot of the provider counters.
func (p *Provider) Stats() Stats {
	resolutions := atomic.LoadInt64(&p.stats.resolutions)
	failures := atomic.LoadInt64(&p.stats.resolutionFailures)
	total := time.Duration(atomic.LoadInt64(&p.stats.resolutionNanos))

	s := Stats{
		RegisteredServices:  len(p.ordered),
		Resolutions:         resolutions,
		ResolutionFailures:  failures,
		InstancesCreated:    atomic.LoadInt64(&p.stats.instancesCreated),
		ScopesOpened:        atomic.LoadInt64(&p.stats.scopesOpened),
		ScopesClosed:        atomic.LoadInt64(&p.stats.scopesClosed),
		Disposals:           atomic.LoadInt64(&p.stats.disposals),
		DisposalFailures:    atomic.LoadInt64(&p.stats.disposalFailures),
		TotalResolutionTime: total,
	}
	if n := resolutions + failures; n > 0 {
		s.AverageResolutionTime = total / time.Duration(n)
	}
	return s
}

// viewNode projects a descriptor onto one of its registration views for the
// dependency graph.
type viewNode struct {
	view       TypeKey
	descriptor *Descriptor
}

func (n viewNode) GetType() reflect.Type {
	return n.view.Type
}

func (n viewNode) GetKey() any {
	return n.view.Key
}

func (n viewNode) GetDependencies() []*reflection.Dependency {
	return n.descriptor.GetDependencies()
}

// availableTypes lists the service types reachable through live views, in
// registration order, for not-found suggestions.
func availableTypes(ordered []*Descriptor, registry map[TypeKey]*Descriptor) []reflect.Type {
	seen := make(map[reflect.Type]bool, len(registry))
	types := make([]reflect.Type, 0, len(registry))
	for _, d := range ordered {
		for _, view := range descriptorViews(d) {
			if registry[view] != d || seen[view.Type] {
				continue
			}
			seen[view.Type] = true
			types = append(types, view.Type)
		}
	}
	return types
}

// Resolver is the common resolution surface of *Provider and *Scope.
type Resolver interface {
	Get(serviceType reflect.Type) (any, error)
	GetKeyed(serviceType reflect.Type, serviceKey any) (any, error)
}

var (
	_ Resolver = (*Provider)(nil)
	_ Resolver = (*Scope)(nil)
)

// Resolve resolves a service of type T from a provider or scope.
//
// Example:
//
//	logger, err := reuse.Resolve[*Logger](provider)
func Resolve[T any](r Resolver) (T, error) {
	var zero T

	if r == nil {
		return zero, ErrProviderNil
	}

	serviceType := reflect.TypeOf((*T)(nil)).Elem()
	service, err := r.Get(serviceType)
	if err != nil {
		return zero, err
	}

	result, ok := service.(T)
	if !ok {
		return zero, TypeMismatchError{
			Expected: serviceType,
			Actual:   reflect.TypeOf(service),
			Context:  "type assertion",
		}
	}

	return result, nil
}

// MustResolve resolves a service of type T and panics on failure. This is
// useful for application initialization where missing services are fatal.
//
// Example:
//
//	logger := reuse.MustResolve[*Logger](provider)
func MustResolve[T any](r Resolver) T {
	service, err := Resolve[T](r)
	if err != nil {
		panic(fmt.Sprintf("failed to resolve service: %v", err))
	}
	return service
}

// ResolveKeyed resolves a keyed service of type T.
//
// Example:
//
//	primary, err := reuse.ResolveKeyed[*Database](provider, "primary")
func ResolveKeyed[T any](r Resolver, serviceKey any) (T, error) {
	var zero T

	if r == nil {
		return zero, ErrProviderNil
	}

	serviceType := reflect.TypeOf((*T)(nil)).Elem()
	service, err := r.GetKeyed(serviceType, serviceKey)
	if err != nil {
		return zero, err
	}

	result, ok := service.(T)
	if !ok {
		return zero, TypeMismatchError{
			Expected: serviceType,
			Actual:   reflect.TypeOf(service),
			Context:  "type assertion",
		}
	}

	return result, nil
}

// MustResolveKeyed resolves a keyed service of type T and panics on failure.
func MustResolveKeyed[T any](r Resolver, serviceKey any) T {
	service, err := ResolveKeyed[T](r, serviceKey)
	if err != nil {
		panic(fmt.Sprintf("failed to resolve keyed service: %v", err))
	}
	return service
}
