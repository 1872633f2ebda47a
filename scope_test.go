package reuse_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/scopekit/reuse"
	"github.com/scopekit/reuse/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScope_Open(t *testing.T) {
	t.Run("opens scope with context values", func(t *testing.T) {
		t.Parallel()

		provider := testutil.CreateProviderWithBasicServices(t)
		type testKeyType struct{}
		var testKey = testKeyType{}
		ctx := context.WithValue(context.Background(), testKey, "test-value")

		scope, err := provider.OpenScope(ctx)
		require.NoError(t, err)
		assert.NotNil(t, scope)
		assert.False(t, scope.IsDisposed())
		assert.NotEmpty(t, scope.ID())
		assert.Nil(t, scope.Name())

		scopeCtx := scope.Context()
		assert.Equal(t, "test-value", scopeCtx.Value(testKey))

		t.Cleanup(func() {
			require.NoError(t, scope.Close())
		})
	})

	t.Run("scope context carries the scope", func(t *testing.T) {
		t.Parallel()

		provider := testutil.CreateProviderWithBasicServices(t)

		scope, err := provider.OpenScope(context.Background())
		require.NoError(t, err)
		defer scope.Close()

		fromCtx, err := reuse.ScopeFromContext(scope.Context())
		require.NoError(t, err)
		assert.Same(t, scope, fromCtx)
	})

	t.Run("nested scopes form a chain", func(t *testing.T) {
		t.Parallel()

		provider := testutil.CreateProviderWithBasicServices(t)

		scope1, err := provider.OpenScope(context.Background())
		require.NoError(t, err)
		scope2, err := scope1.OpenScope(context.Background())
		require.NoError(t, err)
		scope3, err := scope2.OpenScope(context.Background())
		require.NoError(t, err)

		assert.Equal(t, scope1.ID(), scope2.Parent().ID())
		assert.Equal(t, scope2.ID(), scope3.Parent().ID())
		assert.NotNil(t, scope1.Parent(), "a provider-opened scope hangs off the root scope")

		require.NoError(t, scope3.Close())
		require.NoError(t, scope2.Close())
		require.NoError(t, scope1.Close())
	})

	t.Run("named scope", func(t *testing.T) {
		t.Parallel()

		provider := testutil.CreateProviderWithBasicServices(t)

		scope, err := provider.OpenScope(context.Background(), reuse.Named("session"))
		require.NoError(t, err)
		defer scope.Close()

		assert.Equal(t, "session", scope.Name())
	})

	t.Run("distinct scopes get distinct ids", func(t *testing.T) {
		t.Parallel()

		provider := testutil.CreateProviderWithBasicServices(t)

		scope1, err := provider.OpenScope(context.Background())
		require.NoError(t, err)
		defer scope1.Close()
		scope2, err := provider.OpenScope(context.Background())
		require.NoError(t, err)
		defer scope2.Close()

		assert.NotEqual(t, scope1.ID(), scope2.ID())
	})
}

func TestScope_Close(t *testing.T) {
	t.Run("close is idempotent", func(t *testing.T) {
		t.Parallel()

		provider := testutil.CreateProviderWithBasicServices(t)

		scope, err := provider.OpenScope(context.Background())
		require.NoError(t, err)

		require.NoError(t, scope.Close())
		assert.True(t, scope.IsDisposed())
		require.NoError(t, scope.Close(), "second close must be a no-op")
	})

	t.Run("close cancels the scope context", func(t *testing.T) {
		t.Parallel()

		provider := testutil.CreateProviderWithBasicServices(t)

		scope, err := provider.OpenScope(context.Background())
		require.NoError(t, err)

		ctx := scope.Context()
		require.NoError(t, scope.Close())

		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
			t.Fatal("scope context not cancelled by close")
		}
	})

	t.Run("operations fail after close", func(t *testing.T) {
		t.Parallel()

		provider := testutil.CreateProviderWithBasicServices(t)

		scope, err := provider.OpenScope(context.Background())
		require.NoError(t, err)
		require.NoError(t, scope.Close())

		testutil.AssertScopeDisposed(t, scope)
	})

	t.Run("context cancellation closes the scope", func(t *testing.T) {
		t.Parallel()

		provider := testutil.CreateProviderWithBasicServices(t)

		ctx, cancel := context.WithCancel(context.Background())
		scope, err := provider.OpenScope(ctx)
		require.NoError(t, err)

		cancel()

		require.Eventually(t, scope.IsDisposed, time.Second, 5*time.Millisecond,
			"scope should close itself when its context is cancelled")
	})

	t.Run("closing a child leaves the parent usable", func(t *testing.T) {
		t.Parallel()

		provider := testutil.CreateProviderWithBasicServices(t)

		parent, err := provider.OpenScope(context.Background())
		require.NoError(t, err)
		defer parent.Close()

		child, err := parent.OpenScope(context.Background())
		require.NoError(t, err)
		require.NoError(t, child.Close())

		assert.False(t, parent.IsDisposed())
		testutil.AssertResolvable[testutil.TestLogger](t, parent)
	})
}

func TestScope_Track(t *testing.T) {
	t.Run("tracked values are closed with the scope", func(t *testing.T) {
		t.Parallel()

		provider := testutil.CreateProviderWithBasicServices(t)

		scope, err := provider.OpenScope(context.Background())
		require.NoError(t, err)

		d := testutil.NewTestDisposable()
		require.NoError(t, scope.Track(d))
		assert.False(t, d.IsDisposed())

		require.NoError(t, scope.Close())
		assert.True(t, d.IsDisposed())
	})

	t.Run("tracked values close in reverse order", func(t *testing.T) {
		t.Parallel()

		provider := testutil.CreateProviderWithBasicServices(t)

		scope, err := provider.OpenScope(context.Background())
		require.NoError(t, err)

		recorder := testutil.NewCloseRecorder()
		require.NoError(t, scope.Track(testutil.NewLabeledDisposable("a", recorder)))
		require.NoError(t, scope.Track(testutil.NewLabeledDisposable("b", recorder)))
		require.NoError(t, scope.Track(testutil.NewLabeledDisposable("c", recorder)))

		require.NoError(t, scope.Close())
		assert.Equal(t, []string{"c", "b", "a"}, recorder.Order())
	})

	t.Run("tracking on a closed scope disposes immediately", func(t *testing.T) {
		t.Parallel()

		provider := testutil.CreateProviderWithBasicServices(t)

		scope, err := provider.OpenScope(context.Background())
		require.NoError(t, err)
		require.NoError(t, scope.Close())

		d := testutil.NewTestDisposable()
		err = scope.Track(d)
		assert.ErrorIs(t, err, reuse.ErrScopeDisposed)
		assert.True(t, d.IsDisposed(), "late-tracked value must not leak unclosed")
	})

	t.Run("non-disposable values are accepted and ignored", func(t *testing.T) {
		t.Parallel()

		provider := testutil.CreateProviderWithBasicServices(t)

		scope, err := provider.OpenScope(context.Background())
		require.NoError(t, err)

		require.NoError(t, scope.Track("not disposable"))
		require.NoError(t, scope.Close())
	})

	t.Run("disposal failures surface as a DisposalError", func(t *testing.T) {
		t.Parallel()

		provider := testutil.CreateProviderWithBasicServices(t)

		scope, err := provider.OpenScope(context.Background())
		require.NoError(t, err)

		require.NoError(t, scope.Track(testutil.NewTestDisposableWithError(testutil.ErrDisposal)))
		require.NoError(t, scope.Track(testutil.NewTestDisposable()))

		err = scope.Close()
		require.Error(t, err)

		var disposalErr reuse.DisposalError
		require.ErrorAs(t, err, &disposalErr)
		assert.Equal(t, "scope", disposalErr.Context)
		assert.ErrorIs(t, err, testutil.ErrDisposal)
	})

	t.Run("context-aware disposables get a context", func(t *testing.T) {
		t.Parallel()

		provider := testutil.CreateProviderWithBasicServices(t)

		scope, err := provider.OpenScope(context.Background())
		require.NoError(t, err)

		d := testutil.NewTestContextDisposable()
		require.NoError(t, scope.Track(d))

		require.NoError(t, scope.Close())
		assert.True(t, d.IsDisposed())
		assert.True(t, d.WasDisposedWithContext())
	})
}

// Table-driven tests for scope scenarios
func TestScope_Scenarios(t *testing.T) {
	type requestState struct {
		ID        string
		Timestamp time.Time
	}

	scenarios := []testutil.TestScenario{
		{
			Name: "web request simulation",
			Setup: func(t *testing.T) *reuse.Provider {
				return testutil.NewCollectionBuilder(t).
					WithSingleton(testutil.NewTestLogger).
					WithScoped(func() *requestState {
						return &requestState{
							ID:        "req-" + time.Now().Format("150405.000000"),
							Timestamp: time.Now(),
						}
					}).
					BuildProvider()
			},
			Validate: func(t *testing.T, provider *reuse.Provider) {
				// Simulate multiple concurrent requests.
				var wg sync.WaitGroup

				type requestIDKeyType struct{}
				var requestIDKey = requestIDKeyType{}

				for i := 0; i < 5; i++ {
					wg.Add(1)
					go func(reqNum int) {
						defer wg.Done()

						ctx := context.WithValue(context.Background(), requestIDKey, reqNum)
						scope, err := provider.OpenScope(ctx)
						if !assert.NoError(t, err) {
							return
						}
						defer scope.Close()

						// Services in the same request share an instance.
						svc1 := testutil.AssertResolvable[*requestState](t, scope)
						svc2 := testutil.AssertResolvable[*requestState](t, scope)

						assert.Equal(t, svc1.ID, svc2.ID)
					}(i)
				}
				wg.Wait()
			},
		},
		{
			Name: "background job with scoped resources",
			Setup: func(t *testing.T) *reuse.Provider {
				return testutil.CreateProviderWithCompleteServices(t)
			},
			Validate: func(t *testing.T, provider *reuse.Provider) {
				jobCtx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer cancel()

				scope, err := provider.OpenScope(jobCtx)
				require.NoError(t, err)
				defer scope.Close()

				service := testutil.AssertResolvable[*testutil.TestServiceWithDeps](t, scope)
				require.NotNil(t, service)

				service.Logger.Log("Job started")
				time.Sleep(10 * time.Millisecond)
				service.Logger.Log("Job completed")
			},
		},
	}

	testutil.RunTestScenarios(t, scenarios)
}

func TestScope_ConcurrentResolutions(t *testing.T) {
	t.Parallel()

	counter := testutil.NewInstanceCounter()
	provider := testutil.NewCollectionBuilder(t).
		WithScoped(func() *testutil.TestService {
			counter.Next()
			return testutil.NewTestService()
		}).
		BuildProvider()

	scope, err := provider.OpenScope(context.Background())
	require.NoError(t, err)
	defer scope.Close()

	const goroutines = 20
	var wg sync.WaitGroup
	results := make([]*testutil.TestService, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			svc, err := reuse.Resolve[*testutil.TestService](scope)
			assert.NoError(t, err)
			results[idx] = svc
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), counter.Count(), "concurrent resolutions must share one instance")
	for i := 1; i < goroutines; i++ {
		assert.Same(t, results[0], results[i])
	}
}
