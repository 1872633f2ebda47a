package reuse

import (
	"fmt"
	"reflect"
	"time"
)

// DisposableTransientPolicy controls how the provider treats Transient
// registrations that produce Disposable values. Nothing owns a transient, so
// somebody has to decide who closes it.
type DisposableTransientPolicy int

const (
	// DisallowDisposableTransient rejects disposable transients. When the
	// declared service type implements Disposable the rejection happens at
	// Build; when only the runtime value does, at first resolve.
	DisallowDisposableTransient DisposableTransientPolicy = iota

	// AllowDisposableTransient hands the value to the caller untracked.
	// The caller owns Close.
	AllowDisposableTransient

	// TrackDisposableTransient registers the value for disposal with the
	// nearest non-Transient scope in the construction chain, falling back
	// to the current scope and then the root scope.
	TrackDisposableTransient
)

// String returns the policy name.
func (p DisposableTransientPolicy) String() string {
	switch p {
	case DisallowDisposableTransient:
		return "DisallowDisposableTransient"
	case AllowDisposableTransient:
		return "AllowDisposableTransient"
	case TrackDisposableTransient:
		return "TrackDisposableTransient"
	default:
		return fmt.Sprintf("DisposableTransientPolicy(%d)", int(p))
	}
}

// IsValid reports whether p is a defined policy value.
func (p DisposableTransientPolicy) IsValid() bool {
	switch p {
	case DisallowDisposableTransient, AllowDisposableTransient, TrackDisposableTransient:
		return true
	default:
		return false
	}
}

// ProviderOptions configures provider construction. The zero value is a
// working configuration: no timeout, no ambient context, Transient default
// reuse, lifespan checking on, disposable transients disallowed.
type ProviderOptions struct {
	// BuildTimeout bounds the whole Build call, including eager singleton
	// creation under ValidateOnBuild. Zero means no timeout.
	BuildTimeout time.Duration

	// ScopeContext supplies the ambient current-scope slot. When set, opened
	// scopes are pushed on open and popped on close, and Scoped resolutions
	// made directly on the provider fall back to the ambient current scope.
	// When nil, no ambient tracking happens.
	ScopeContext ScopeContext

	// DefaultReuse replaces the Default reuse on registrations that did not
	// pick one. The zero value keeps the engine default, Transient.
	DefaultReuse Reuse

	// DisableLifespanCheck turns off captive-dependency checking, allowing
	// longer-lived services to depend on shorter-lived ones.
	DisableLifespanCheck bool

	// DisposableTransients selects the disposable-transient policy.
	DisposableTransients DisposableTransientPolicy

	// ImplicitOpenRootScope opens one scope under the root at build time.
	// Scoped services resolved directly on the provider cache there instead
	// of failing with ErrNoCurrentScope.
	ImplicitOpenRootScope bool

	// ValidateOnBuild verifies at Build that every dependency is registered
	// and every lifespan edge is sound, then eagerly creates all singletons.
	// Without it, validation is deferred to first resolve of each root.
	ValidateOnBuild bool

	// OnServiceResolved observes each successful top-level resolution.
	OnServiceResolved func(serviceType reflect.Type, instance any, duration time.Duration)

	// OnServiceError observes each failed top-level resolution.
	OnServiceError func(serviceType reflect.Type, err error)

	// OnDispose observes each disposal attempt during scope close. err is
	// nil when the value closed cleanly.
	OnDispose func(instance any, err error)
}

// Validate checks the options for values the provider cannot honor.
func (o *ProviderOptions) Validate() error {
	if o == nil {
		return nil
	}
	if !o.DisposableTransients.IsValid() {
		return BuildError{
			Phase:   "options",
			Details: "invalid disposable transient policy",
			Cause:   fmt.Errorf("unknown policy value %d", int(o.DisposableTransients)),
		}
	}
	if !o.DefaultReuse.Kind().IsValid() {
		return BuildError{
			Phase:   "options",
			Details: "invalid default reuse",
			Cause:   ReuseError{Value: o.DefaultReuse.Kind()},
		}
	}
	if o.DefaultReuse.Kind() == KindParent {
		return BuildError{
			Phase:   "options",
			Details: "invalid default reuse",
			Cause:   fmt.Errorf("Parent cannot be the default reuse; it only has meaning on a dependency edge"),
		}
	}
	if o.BuildTimeout < 0 {
		return BuildError{
			Phase:   "options",
			Details: "invalid build timeout",
			Cause:   fmt.Errorf("timeout must not be negative, got %v", o.BuildTimeout),
		}
	}
	return nil
}

// Stats is a point-in-time snapshot of provider counters.
type Stats struct {
	// RegisteredServices is the number of distinct registrations the
	// provider was built with.
	RegisteredServices int

	// Resolutions counts successful top-level resolutions.
	Resolutions int64

	// ResolutionFailures counts failed top-level resolutions.
	ResolutionFailures int64

	// InstancesCreated counts constructor invocations that produced a value,
	// cached or not. Resolutions minus InstancesCreated approximates cache
	// hits.
	InstancesCreated int64

	// ScopesOpened and ScopesClosed count scopes opened through OpenScope.
	ScopesOpened int64
	ScopesClosed int64

	// Disposals counts disposal attempts during close sweeps;
	// DisposalFailures counts the ones that returned an error.
	Disposals        int64
	DisposalFailures int64

	// TotalResolutionTime is the summed wall time of top-level resolutions.
	// AverageResolutionTime is TotalResolutionTime over all resolutions,
	// successful or not.
	TotalResolutionTime   time.Duration
	AverageResolutionTime time.Duration
}
