package reuse_test

import (
	"context"
	"testing"

	"github.com/scopekit/reuse"
	"github.com/scopekit/reuse/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captiveDep struct {
	ID string
}

type captorService struct {
	Dep *captiveDep
}

type lazyCaptor struct {
	Fetch func() *captiveDep
}

func newCaptiveDep() *captiveDep                      { return &captiveDep{ID: "dep"} }
func newCaptorService(dep *captiveDep) *captorService { return &captorService{Dep: dep} }
func newLazyCaptor(fetch func() *captiveDep) *lazyCaptor {
	return &lazyCaptor{Fetch: fetch}
}

func TestLifespanCheck_SingletonOverScoped(t *testing.T) {
	t.Parallel()

	provider := testutil.NewCollectionBuilder(t).
		WithScoped(newCaptiveDep).
		WithSingleton(newCaptorService).
		BuildProvider()

	// The check runs on plain resolution, not just under ValidateOnBuild.
	_, err := reuse.Resolve[*captorService](provider)
	require.Error(t, err)

	mismatch := testutil.AssertLifespanMismatch(t, err)
	assert.Equal(t, "*reuse_test.captorService", mismatch.ServiceType.String())
	assert.Equal(t, "*reuse_test.captiveDep", mismatch.DependencyType.String())
	assert.Equal(t, reuse.KindSingleton, mismatch.ServiceReuse.Kind())
	assert.Equal(t, reuse.KindScoped, mismatch.DependencyReuse.Kind())
	assert.Greater(t, mismatch.ServiceReuse.Lifespan(), mismatch.DependencyReuse.Lifespan())
}

func TestLifespanCheck_SingletonOverScopedTo(t *testing.T) {
	t.Parallel()

	provider := testutil.NewCollectionBuilder(t).
		WithReuse(newCaptiveDep, reuse.ScopedTo("request")).
		WithSingleton(newCaptorService).
		BuildProvider()

	_, err := reuse.Resolve[*captorService](provider)
	require.Error(t, err)

	mismatch := testutil.AssertLifespanMismatch(t, err)
	assert.Equal(t, reuse.KindScopedTo, mismatch.DependencyReuse.Kind())
}

func TestLifespanCheck_AllowedEdges(t *testing.T) {
	t.Run("scoped may depend on singleton", func(t *testing.T) {
		t.Parallel()

		provider := testutil.NewCollectionBuilder(t).
			WithSingleton(newCaptiveDep).
			WithScoped(newCaptorService).
			BuildProvider()

		scope, err := provider.OpenScope(context.Background())
		require.NoError(t, err)
		defer scope.Close()

		svc := testutil.AssertResolvable[*captorService](t, scope)
		assert.NotNil(t, svc.Dep)
	})

	t.Run("equal lifespans pass", func(t *testing.T) {
		t.Parallel()

		provider := testutil.NewCollectionBuilder(t).
			WithReuse(newCaptiveDep, reuse.ScopedTo("request")).
			WithScoped(newCaptorService).
			BuildProvider()

		scope, err := provider.OpenScope(context.Background(), reuse.Named("request"))
		require.NoError(t, err)
		defer scope.Close()

		testutil.AssertResolvable[*captorService](t, scope)
	})

	t.Run("transient consumers are not checked", func(t *testing.T) {
		t.Parallel()

		// A transient holds nothing alive beyond the call, so a scoped
		// dependency under it is not captive.
		provider := testutil.NewCollectionBuilder(t).
			WithScoped(newCaptiveDep).
			WithTransient(newCaptorService).
			BuildProvider()

		scope, err := provider.OpenScope(context.Background())
		require.NoError(t, err)
		defer scope.Close()

		testutil.AssertResolvable[*captorService](t, scope)
	})

	t.Run("resolution scoped dependencies are exempt", func(t *testing.T) {
		t.Parallel()

		// An InResolutionScope value is created fresh inside each resolve
		// call, so even a singleton consumer gets its own.
		provider := testutil.NewCollectionBuilder(t).
			WithReuse(newCaptiveDep, reuse.InResolutionScope).
			WithSingleton(newCaptorService).
			BuildProvider()

		svc := testutil.AssertResolvable[*captorService](t, provider)
		assert.NotNil(t, svc.Dep)
	})

	t.Run("parent reuse never mismatches", func(t *testing.T) {
		t.Parallel()

		// Parent inherits the consumer's reuse on every edge, so the two
		// lifespans are equal wherever the dependency lands.
		provider := testutil.NewCollectionBuilder(t).
			WithReuse(newCaptiveDep, reuse.Parent).
			WithSingleton(newCaptorService).
			BuildProvider()

		svc := testutil.AssertResolvable[*captorService](t, provider)
		assert.NotNil(t, svc.Dep)
	})
}

func TestLifespanCheck_DeferredEdgesExempt(t *testing.T) {
	t.Parallel()

	// The deferred function re-enters resolution when invoked, against the
	// scope current at that moment, so the singleton holds no captive.
	provider := testutil.NewCollectionBuilder(t).
		WithScoped(newCaptiveDep).
		WithSingleton(newLazyCaptor).
		BuildProvider()

	captor := testutil.AssertResolvable[*lazyCaptor](t, provider)
	assert.NotNil(t, captor.Fetch)
}

func TestLifespanCheck_Disabled(t *testing.T) {
	t.Parallel()

	collection := reuse.NewCollection()
	require.NoError(t, collection.AddScoped(newCaptiveDep))
	require.NoError(t, collection.AddSingleton(newCaptorService))

	provider, err := collection.BuildWithOptions(&reuse.ProviderOptions{
		DisableLifespanCheck: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { provider.Close() })

	scope, err := provider.OpenScope(context.Background())
	require.NoError(t, err)

	// The captive is now permitted: the singleton caches the instance the
	// first resolving scope supplied, and keeps it after that scope dies.
	svc := testutil.AssertResolvable[*captorService](t, scope)
	require.NotNil(t, svc.Dep)
	require.NoError(t, scope.Close())

	other, err := provider.OpenScope(context.Background())
	require.NoError(t, err)
	defer other.Close()

	again := testutil.AssertResolvable[*captorService](t, other)
	assert.Same(t, svc.Dep, again.Dep, "the captured dependency outlives its scope")
}

func TestLifespanCheck_ValidateOnBuildSurfacesEarly(t *testing.T) {
	t.Parallel()

	collection := reuse.NewCollection()
	require.NoError(t, collection.AddScoped(newCaptiveDep))
	require.NoError(t, collection.AddSingleton(newCaptorService))

	_, err := collection.BuildWithOptions(&reuse.ProviderOptions{
		ValidateOnBuild: true,
	})
	require.Error(t, err)

	var mismatch reuse.LifespanMismatchError
	assert.ErrorAs(t, err, &mismatch)
}
