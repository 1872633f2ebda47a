package reuse

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Kind identifies one variant of the closed Reuse set. The engine switches
// exhaustively over Kind at every decision point; there is no way to add
// variants from outside the package.
type Kind int

const (
	// KindDefault is the zero value. Registrations carrying it receive the
	// provider's DefaultReuse during graph construction, or Transient when
	// no default is configured.
	KindDefault Kind = iota

	// KindTransient never caches. A new instance is created every time the
	// service is resolved.
	KindTransient

	// KindSingleton caches in the provider's root scope. One instance is
	// created and shared until the provider is closed.
	KindSingleton

	// KindScoped caches in the current scope. One instance is created per
	// scope and shared within that scope.
	KindScoped

	// KindScopedTo caches in the nearest enclosing scope with a matching
	// name, walking parent links from the current scope.
	KindScopedTo

	// KindResolutionScope caches in the current link of the resolution
	// scope chain, shared only within one top-level resolve call.
	KindResolutionScope

	// KindResolutionScopeOf caches in the chain link opened by a matching
	// ancestor service, shared within that ancestor's sub-graph.
	KindResolutionScopeOf

	// KindParent is a marker replaced during graph construction by the
	// consuming service's effective reuse.
	KindParent
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindDefault:
		return "Default"
	case KindTransient:
		return "Transient"
	case KindSingleton:
		return "Singleton"
	case KindScoped:
		return "Scoped"
	case KindScopedTo:
		return "ScopedTo"
	case KindResolutionScope:
		return "ResolutionScope"
	case KindResolutionScopeOf:
		return "ResolutionScopeOf"
	case KindParent:
		return "Parent"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// IsValid checks if the kind is a known variant.
func (k Kind) IsValid() bool {
	return k >= KindDefault && k <= KindParent
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "Default", "default":
		*k = KindDefault
	case "Transient", "transient":
		*k = KindTransient
	case "Singleton", "singleton":
		*k = KindSingleton
	case "Scoped", "scoped":
		*k = KindScoped
	case "ScopedTo", "scopedTo", "scopedto":
		*k = KindScopedTo
	case "ResolutionScope", "resolutionScope", "resolutionscope":
		*k = KindResolutionScope
	case "ResolutionScopeOf", "resolutionScopeOf", "resolutionscopeof":
		*k = KindResolutionScopeOf
	case "Parent", "parent":
		*k = KindParent
	default:
		return ReuseError{Value: string(text)}
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	return k.UnmarshalText([]byte(s))
}

// Lifespan levels used for the captive-dependency check. The numbers only
// order relative lifetimes and never measure real time. The resolution scope
// family shares level 0 with Transient but is exempt from the check entirely.
const (
	LifespanTransient  = 0
	LifespanResolution = 0
	LifespanScoped     = 100
	LifespanSingleton  = 1000
)

// Reuse selects the scope that caches a constructed service. It is a closed
// sum: values are built only from the package variables and constructors
// below, and the zero value means Default.
//
// Example:
//
//	collection.Add(NewSession, reuse.ScopedTo("request"))
//	collection.Add(NewUnit, reuse.InResolutionScopeOf[*Workflow](nil, false))
type Reuse struct {
	kind      Kind
	name      any
	marker    reflect.Type
	key       any
	outermost bool
}

var (
	// Default defers the choice to the provider's DefaultReuse.
	Default = Reuse{}

	// Transient constructs a fresh instance on every resolution.
	Transient = Reuse{kind: KindTransient}

	// Singleton shares one instance for the provider's lifetime.
	Singleton = Reuse{kind: KindSingleton}

	// Scoped shares one instance per current scope.
	Scoped = Reuse{kind: KindScoped}

	// InResolutionScope shares one instance within a top-level resolve call.
	InResolutionScope = Reuse{kind: KindResolutionScope}

	// Parent inherits the consuming service's effective reuse. When every
	// consumer up to the root is Transient, or the dependency sits behind a
	// deferred factory boundary, it degrades to Transient.
	Parent = Reuse{kind: KindParent}
)

// ScopedTo shares one instance per nearest enclosing scope named name. The
// lookup walks parent links from the current scope, inclusive of the current
// scope itself, and fails with ScopeNameNotFoundError past the root. Names
// must be comparable, like context keys.
func ScopedTo(name any) Reuse {
	return Reuse{kind: KindScopedTo, name: name}
}

// InResolutionScopeOf shares one instance within the sub-graph of the nearest
// ancestor service assignable to T during the current resolve call. A non-nil
// key additionally requires the ancestor's service key to match. With
// outermost set, the farthest matching ancestor wins instead of the nearest.
// No match fails resolution with NoMatchingResolutionScopeError; there is no
// silent fallback.
func InResolutionScopeOf[T any](key any, outermost bool) Reuse {
	return InResolutionScopeOfType(reflect.TypeOf((*T)(nil)).Elem(), key, outermost)
}

// InResolutionScopeOfType is the non-generic form of InResolutionScopeOf for
// callers holding a reflect.Type.
func InResolutionScopeOfType(marker reflect.Type, key any, outermost bool) Reuse {
	return Reuse{kind: KindResolutionScopeOf, marker: marker, key: key, outermost: outermost}
}

// Kind returns the variant of this reuse.
func (r Reuse) Kind() Kind {
	return r.kind
}

// ScopeName returns the target scope name for ScopedTo, nil otherwise.
func (r Reuse) ScopeName() any {
	return r.name
}

// Marker returns the ancestor marker type for InResolutionScopeOf, nil
// otherwise.
func (r Reuse) Marker() reflect.Type {
	return r.marker
}

// Key returns the ancestor service key for InResolutionScopeOf, nil
// otherwise.
func (r Reuse) Key() any {
	return r.key
}

// Outermost reports whether InResolutionScopeOf selects the farthest
// matching ancestor instead of the nearest.
func (r Reuse) Outermost() bool {
	return r.outermost
}

// Lifespan returns the relative lifetime level used by the
// captive-dependency check. Default and Parent report 0; both are replaced
// by a concrete variant before any check runs.
func (r Reuse) Lifespan() int {
	switch r.kind {
	case KindSingleton:
		return LifespanSingleton
	case KindScoped, KindScopedTo:
		return LifespanScoped
	case KindResolutionScope, KindResolutionScopeOf:
		return LifespanResolution
	default:
		return LifespanTransient
	}
}

// String returns a readable form for error messages and logs.
func (r Reuse) String() string {
	switch r.kind {
	case KindScopedTo:
		return fmt.Sprintf("ScopedTo(%v)", r.name)
	case KindResolutionScopeOf:
		if r.key != nil && r.outermost {
			return fmt.Sprintf("InResolutionScopeOf(%s, key=%v, outermost)", formatType(r.marker), r.key)
		}
		if r.key != nil {
			return fmt.Sprintf("InResolutionScopeOf(%s, key=%v)", formatType(r.marker), r.key)
		}
		if r.outermost {
			return fmt.Sprintf("InResolutionScopeOf(%s, outermost)", formatType(r.marker))
		}
		return fmt.Sprintf("InResolutionScopeOf(%s)", formatType(r.marker))
	default:
		return r.kind.String()
	}
}

// matchesLink reports whether a chain link tagged with the given service
// type and key satisfies this InResolutionScopeOf variant. The marker
// matches on type identity or, for interface markers, on implementation.
func (r Reuse) matchesLink(boundType reflect.Type, boundKey any) bool {
	if r.marker == nil || boundType == nil {
		return false
	}

	if boundType != r.marker {
		if r.marker.Kind() != reflect.Interface || !boundType.Implements(r.marker) {
			return false
		}
	}

	if r.key != nil && boundKey != r.key {
		return false
	}

	return true
}
