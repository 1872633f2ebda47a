package testutil

import (
	"context"
	"reflect"
	"testing"

	"github.com/scopekit/reuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertResolvable checks if a service can be resolved. The resolver may be a
// provider or a scope.
func AssertResolvable[T any](t *testing.T, r reuse.Resolver) T {
	t.Helper()
	service, err := reuse.Resolve[T](r)
	require.NoError(t, err, "failed to resolve service of type %T", *new(T))
	require.NotNil(t, service, "resolved service is nil")
	return service
}

// AssertKeyedResolvable checks if a keyed service can be resolved
func AssertKeyedResolvable[T any](t *testing.T, r reuse.Resolver, key any) T {
	t.Helper()
	service, err := reuse.ResolveKeyed[T](r, key)
	require.NoError(t, err, "failed to resolve keyed service of type %T with key %v", *new(T), key)
	require.NotNil(t, service, "resolved keyed service is nil")
	return service
}

// AssertNotFound checks if a service resolution fails with ErrServiceNotFound
func AssertNotFound[T any](t *testing.T, r reuse.Resolver) {
	t.Helper()
	_, err := reuse.Resolve[T](r)
	assert.Error(t, err)
	assert.ErrorIs(t, err, reuse.ErrServiceNotFound, "expected service not found error, got: %v", err)
}

// AssertKeyedNotFound checks if a keyed service resolution fails with ErrServiceNotFound
func AssertKeyedNotFound[T any](t *testing.T, r reuse.Resolver, key any) {
	t.Helper()
	_, err := reuse.ResolveKeyed[T](r, key)
	assert.Error(t, err)
	assert.ErrorIs(t, err, reuse.ErrServiceNotFound, "expected keyed service not found error, got: %v", err)
}

// AssertSameInstance verifies two services are the same instance
func AssertSameInstance(t *testing.T, expected, actual any, msgAndArgs ...any) {
	t.Helper()
	assert.Same(t, expected, actual, msgAndArgs...)
}

// AssertDifferentInstances verifies two services are different instances
func AssertDifferentInstances(t *testing.T, first, second any, msgAndArgs ...any) {
	t.Helper()
	assert.NotSame(t, first, second, msgAndArgs...)
}

// AssertProviderDisposed checks if operations on a disposed provider fail correctly
func AssertProviderDisposed(t *testing.T, provider *reuse.Provider) {
	t.Helper()
	assert.True(t, provider.IsDisposed(), "provider should be disposed")

	_, err := provider.Get(reflect.TypeOf((*TestService)(nil)))
	assert.ErrorIs(t, err, reuse.ErrProviderDisposed)

	_, err = provider.GetKeyed(reflect.TypeOf((*TestService)(nil)), "key")
	assert.ErrorIs(t, err, reuse.ErrProviderDisposed)

	_, err = provider.OpenScope(context.Background())
	assert.ErrorIs(t, err, reuse.ErrProviderDisposed)
}

// AssertScopeDisposed checks if operations on a disposed scope fail correctly
func AssertScopeDisposed(t *testing.T, scope *reuse.Scope) {
	t.Helper()
	assert.True(t, scope.IsDisposed(), "scope should be disposed")

	_, err := scope.Get(reflect.TypeOf((*TestService)(nil)))
	assert.ErrorIs(t, err, reuse.ErrScopeDisposed)

	_, err = scope.OpenScope(context.Background())
	assert.ErrorIs(t, err, reuse.ErrScopeDisposed)
}

// AssertErrorType checks if an error is of a specific type and returns it
func AssertErrorType[T error](t *testing.T, err error, msgAndArgs ...any) T {
	t.Helper()
	var target T
	assert.ErrorAs(t, err, &target, msgAndArgs...)
	return target
}

// AssertLifespanMismatch checks if an error reports a captive dependency
func AssertLifespanMismatch(t *testing.T, err error) reuse.LifespanMismatchError {
	t.Helper()
	require.Error(t, err)
	var mismatch reuse.LifespanMismatchError
	require.ErrorAs(t, err, &mismatch, "expected lifespan mismatch error, got: %v", err)
	return mismatch
}

// AssertCircularDependency checks if an error is a circular dependency error
func AssertCircularDependency(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	var circular reuse.CircularDependencyError
	assert.ErrorAs(t, err, &circular, "expected circular dependency error, got: %v", err)
}

// RequireNoError is a helper that uses require.NoError
func RequireNoError(t *testing.T, err error, msgAndArgs ...any) {
	t.Helper()
	require.NoError(t, err, msgAndArgs...)
}

// RequireError is a helper that uses require.Error
func RequireError(t *testing.T, err error, msgAndArgs ...any) {
	t.Helper()
	require.Error(t, err, msgAndArgs...)
}
