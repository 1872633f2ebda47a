package testutil

import (
	"testing"

	"github.com/scopekit/reuse"
	"github.com/stretchr/testify/require"
)

// CollectionBuilder provides a fluent interface for building test service collections
type CollectionBuilder struct {
	t          *testing.T
	collection reuse.Collection
}

// NewCollectionBuilder creates a new CollectionBuilder
func NewCollectionBuilder(t *testing.T) *CollectionBuilder {
	return &CollectionBuilder{
		t:          t,
		collection: reuse.NewCollection(),
	}
}

// WithSingleton adds a singleton service to the collection
func (b *CollectionBuilder) WithSingleton(constructor any, opts ...reuse.AddOption) *CollectionBuilder {
	require.NoError(b.t, b.collection.AddSingleton(constructor, opts...))
	return b
}

// WithScoped adds a scoped service to the collection
func (b *CollectionBuilder) WithScoped(constructor any, opts ...reuse.AddOption) *CollectionBuilder {
	require.NoError(b.t, b.collection.AddScoped(constructor, opts...))
	return b
}

// WithTransient adds a transient service to the collection
func (b *CollectionBuilder) WithTransient(constructor any, opts ...reuse.AddOption) *CollectionBuilder {
	require.NoError(b.t, b.collection.AddTransient(constructor, opts...))
	return b
}

// WithReuse adds a service with an explicit reuse to the collection
func (b *CollectionBuilder) WithReuse(constructor any, r reuse.Reuse, opts ...reuse.AddOption) *CollectionBuilder {
	require.NoError(b.t, b.collection.Add(constructor, r, opts...))
	return b
}

// WithModule adds a module to the collection
func (b *CollectionBuilder) WithModule(module reuse.ModuleOption) *CollectionBuilder {
	require.NoError(b.t, b.collection.AddModules(module))
	return b
}

// Build returns the built service collection
func (b *CollectionBuilder) Build() reuse.Collection {
	return b.collection
}

// BuildProvider builds a Provider from the collection and closes it when the
// test finishes
func (b *CollectionBuilder) BuildProvider(opts ...*reuse.ProviderOptions) *reuse.Provider {
	var providerOpts *reuse.ProviderOptions
	if len(opts) > 0 {
		providerOpts = opts[0]
	}

	provider, err := b.collection.BuildWithOptions(providerOpts)
	require.NoError(b.t, err, "failed to build provider")

	b.t.Cleanup(func() {
		if !provider.IsDisposed() {
			require.NoError(b.t, provider.Close())
		}
	})

	return provider
}

// ProviderBuilder provides a fluent interface for building test providers with options
type ProviderBuilder struct {
	t          *testing.T
	collection reuse.Collection
	options    *reuse.ProviderOptions
}

// NewProviderBuilder creates a new ProviderBuilder
func NewProviderBuilder(t *testing.T) *ProviderBuilder {
	return &ProviderBuilder{
		t:          t,
		collection: reuse.NewCollection(),
		options:    &reuse.ProviderOptions{},
	}
}

// WithCollection sets the service collection
func (b *ProviderBuilder) WithCollection(collection reuse.Collection) *ProviderBuilder {
	b.collection = collection
	return b
}

// WithValidation enables validation on build
func (b *ProviderBuilder) WithValidation() *ProviderBuilder {
	b.options.ValidateOnBuild = true
	return b
}

// WithDefaultReuse sets the reuse substituted for Default registrations
func (b *ProviderBuilder) WithDefaultReuse(r reuse.Reuse) *ProviderBuilder {
	b.options.DefaultReuse = r
	return b
}

// WithoutLifespanCheck disables captive dependency checking
func (b *ProviderBuilder) WithoutLifespanCheck() *ProviderBuilder {
	b.options.DisableLifespanCheck = true
	return b
}

// WithDisposableTransients sets the disposable transient policy
func (b *ProviderBuilder) WithDisposableTransients(policy reuse.DisposableTransientPolicy) *ProviderBuilder {
	b.options.DisposableTransients = policy
	return b
}

// WithImplicitRootScope opens a current scope as part of the build
func (b *ProviderBuilder) WithImplicitRootScope() *ProviderBuilder {
	b.options.ImplicitOpenRootScope = true
	return b
}

// WithScopeContext sets the ambient scope context
func (b *ProviderBuilder) WithScopeContext(sc reuse.ScopeContext) *ProviderBuilder {
	b.options.ScopeContext = sc
	return b
}

// WithOptions sets custom provider options
func (b *ProviderBuilder) WithOptions(opts *reuse.ProviderOptions) *ProviderBuilder {
	b.options = opts
	return b
}

// Build creates the Provider
func (b *ProviderBuilder) Build() (*reuse.Provider, error) {
	provider, err := b.collection.BuildWithOptions(b.options)
	if err != nil {
		return nil, err
	}

	b.t.Cleanup(func() {
		if !provider.IsDisposed() {
			require.NoError(b.t, provider.Close())
		}
	})

	return provider, nil
}

// MustBuild creates the Provider and fails the test on error
func (b *ProviderBuilder) MustBuild() *reuse.Provider {
	provider, err := b.Build()
	require.NoError(b.t, err, "failed to build provider")
	return provider
}
