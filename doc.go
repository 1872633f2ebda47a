// Package reuse is a lifetime and caching engine for constructed services.
// It decides where a constructed value lives, who else observes the same
// value, and when it is released, through a scope tree with per-scope
// instance stores and a closed set of reuse strategies.
//
// # Overview
//
// reuse provides:
//   - A scope tree rooted at the provider, one instance store per scope
//   - Reuse strategies: Transient, Singleton, Scoped, ScopedTo(name),
//     InResolutionScope, InResolutionScopeOf, and Parent
//   - Single-flight materialization: one constructor call per slot per scope
//   - Resolution scope chains for per-call and per-sub-graph sharing
//   - Captive-dependency (lifespan) checking with a per-edge escape hatch
//   - Disposal tracking with reverse-creation-order release
//   - Constructor injection with automatic wiring, no struct tags
//
// # Basic Usage
//
// Create a collection, register services with their reuse, build a provider,
// and resolve:
//
//	collection := reuse.NewCollection()
//	collection.AddSingleton(NewLogger)
//	collection.AddScoped(NewUserService)
//
//	provider, err := collection.Build()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	userService, err := reuse.Resolve[*UserService](provider)
//
// # Reuse Strategies
//
// Every registration carries a reuse that picks the caching scope:
//
//   - Transient: a new instance per resolution, cached nowhere
//   - Singleton: one instance in the provider's root scope
//   - Scoped: one instance per current scope
//   - ScopedTo(name): one instance per nearest enclosing scope with that name
//   - InResolutionScope: one instance per top-level resolve call
//   - InResolutionScopeOf: one instance per marked ancestor's sub-graph
//   - Parent: inherit the consuming service's effective reuse
//
// # Scopes
//
// Scopes form a tree under the provider's root scope. In a web application
// a scope is opened per request; everything Scoped is then created once per
// request and disposed when the scope closes:
//
//	scope, err := provider.OpenScope(ctx, reuse.Named("request"))
//	if err != nil {
//	    return err
//	}
//	defer scope.Close()
//
//	svc, err := reuse.Resolve[*RequestHandler](scope)
//
// Closing a scope releases its tracked disposables in reverse creation
// order. Values implementing Disposable or DisposableWithContext are
// tracked automatically; PreventDisposal and WeaklyReferenced adjust that
// per registration.
//
// # Dependency Injection
//
// Services declare dependencies through constructor parameters:
//
//	func NewUserService(db *Database, logger *Logger) *UserService {
//	    return &UserService{db: db, logger: logger}
//	}
//
// Constructors may also take context.Context or *reuse.Scope, satisfied by
// the engine, and func() T or func() (T, error) parameters, which defer the
// dependency's resolution to the first call of the injected closure.
//
// # Lifespan Checking
//
// A longer-lived service resolving a shorter-lived dependency would capture
// it beyond its scope. The engine rejects such edges with
// LifespanMismatchError before constructing anything; deferred closure
// parameters exempt exactly their own edge, and
// ProviderOptions.DisableLifespanCheck turns the check off globally.
//
// # Ambient Scope Context
//
// A ScopeContext given at build time tracks the current scope without
// explicit receivers: OpenScope pushes the new scope, Close restores its
// parent, and provider-level resolutions of Scoped services use whatever is
// current. NewAmbientContext returns the container-bound implementation;
// ContextWithScope and ScopeFromContext thread scopes through ordinary
// context plumbing instead.
//
// # Modules
//
// Group related registrations with the module system:
//
//	var StorageModule = reuse.NewModule("storage",
//	    reuse.AddSingleton(NewPool),
//	    reuse.AddScoped(NewTx),
//	)
//
//	collection.AddModules(StorageModule)
package reuse
