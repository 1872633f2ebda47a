package reuse

import (
	"fmt"
)

// ModuleOption applies one piece of a module to a collection.
type ModuleOption func(Collection) error

// NewModule groups registrations under a name so related services can be
// registered together and reused across providers. Errors from any inner
// option are wrapped in a ModuleError carrying the module name.
//
// Example:
//
//	var DatabaseModule = reuse.NewModule("database",
//	    reuse.AddSingleton(NewConnectionPool),
//	    reuse.AddScoped(NewTransaction),
//	)
//
//	collection.AddModules(DatabaseModule)
func NewModule(name string, options ...ModuleOption) ModuleOption {
	return func(c Collection) error {
		for _, option := range options {
			if option == nil {
				continue
			}
			if err := option(c); err != nil {
				return ModuleError{Module: name, Cause: err}
			}
		}
		return nil
	}
}

// AddSingleton registers a singleton service within a module.
func AddSingleton(constructor any, opts ...AddOption) ModuleOption {
	return func(c Collection) error {
		return c.AddSingleton(constructor, opts...)
	}
}

// AddScoped registers a scoped service within a module.
func AddScoped(constructor any, opts ...AddOption) ModuleOption {
	return func(c Collection) error {
		return c.AddScoped(constructor, opts...)
	}
}

// AddTransient registers a transient service within a module.
func AddTransient(constructor any, opts ...AddOption) ModuleOption {
	return func(c Collection) error {
		return c.AddTransient(constructor, opts...)
	}
}

// Add registers a service with an explicit reuse within a module.
func Add(constructor any, r Reuse, opts ...AddOption) ModuleOption {
	return func(c Collection) error {
		return c.Add(constructor, r, opts...)
	}
}

// AddOption configures a single registration.
type AddOption interface {
	applyAddOption(*addOptions)
}

// addOptions collects the applied registration options.
type addOptions struct {
	key                  any
	keySet               bool
	as                   []any
	reuse                *Reuse
	preventDisposal      bool
	weaklyReferenced     bool
	opensResolutionScope bool
}

// Validate checks option consistency before the descriptor is created.
func (o *addOptions) Validate() error {
	if o.keySet && o.key == nil {
		return ValidationError{Cause: ErrServiceKeyNil}
	}
	if o.reuse != nil && !o.reuse.Kind().IsValid() {
		return ValidationError{Cause: ReuseError{Value: o.reuse.Kind()}}
	}
	return nil
}

// Key registers the service under a key so several registrations of the same
// type can coexist. Keys must be comparable; resolve keyed services with
// GetKeyed or ResolveKeyed.
//
// Example:
//
//	collection.AddSingleton(NewPrimaryDB, reuse.Key("primary"))
//	collection.AddSingleton(NewReplicaDB, reuse.Key("replica"))
func Key(key any) AddOption {
	return keyOption{key: key}
}

type keyOption struct {
	key any
}

func (o keyOption) applyAddOption(opts *addOptions) {
	opts.key = o.key
	opts.keySet = true
}

func (o keyOption) String() string {
	return fmt.Sprintf("Key(%v)", o.key)
}

// As additionally registers the service under the given interface types.
// Each argument must be a pointer to an interface, written (*Iface)(nil).
// Every interface resolves to the same underlying registration, so a cached
// instance is shared across all of them.
//
// Example:
//
//	collection.AddSingleton(NewPostgresStore, reuse.As((*UserStore)(nil), (*OrderStore)(nil)))
func As(interfaces ...any) AddOption {
	return asOption{targets: interfaces}
}

type asOption struct {
	targets []any
}

func (o asOption) applyAddOption(opts *addOptions) {
	opts.as = append(opts.as, o.targets...)
}

func (o asOption) String() string {
	return fmt.Sprintf("As(%d interfaces)", len(o.targets))
}

// WithReuse overrides the reuse implied by the registration method, so the
// lifetime-named helpers can register the full range of strategies:
//
//	collection.AddScoped(NewSession, reuse.WithReuse(reuse.ScopedTo("request")))
func WithReuse(r Reuse) AddOption {
	return reuseOption{reuse: r}
}

type reuseOption struct {
	reuse Reuse
}

func (o reuseOption) applyAddOption(opts *addOptions) {
	r := o.reuse
	opts.reuse = &r
}

// PreventDisposal excludes values produced by this registration from disposal
// tracking. The owning scope caches the value but never calls Close on it.
func PreventDisposal() AddOption {
	return preventDisposalOption{}
}

type preventDisposalOption struct{}

func (preventDisposalOption) applyAddOption(opts *addOptions) {
	opts.preventDisposal = true
}

// WeaklyReferenced tracks values produced by this registration through a
// non-owning handle. A value released through the handle before its scope
// closes is skipped by the disposal sweep.
func WeaklyReferenced() AddOption {
	return weaklyReferencedOption{}
}

type weaklyReferencedOption struct{}

func (weaklyReferencedOption) applyAddOption(opts *addOptions) {
	opts.weaklyReferenced = true
}

// OpensResolutionScope makes construction of this service open a child link
// in the resolution scope chain. Dependencies reused with InResolutionScope
// or InResolutionScopeOf inside this service's sub-graph cache in that link,
// so sibling sub-graphs under one resolve call stay isolated.
func OpensResolutionScope() AddOption {
	return opensResolutionScopeOption{}
}

type opensResolutionScopeOption struct{}

func (opensResolutionScopeOption) applyAddOption(opts *addOptions) {
	opts.opensResolutionScope = true
}
