package reuse

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/scopekit/reuse/internal/graph"
)

// ========================================
// Core Error Values (Sentinel Errors)
// ========================================
// These are base errors that should be wrapped in typed errors when returned.
// Never return these directly to users - always wrap them with context.

var (
	// Service resolution errors.
	ErrServiceNotFound = errors.New("service not found")
	ErrServiceKeyNil   = errors.New("service key cannot be nil")
	ErrServiceTypeNil  = errors.New("service type cannot be nil")

	// Scope selection errors.
	ErrNoCurrentScope    = errors.New("no current scope")
	ErrNoResolutionScope = errors.New("no resolution scope in flight")

	// Lifecycle errors.
	ErrProviderNil       = errors.New("provider cannot be nil")
	ErrProviderDisposed  = errors.New("provider has been disposed")
	ErrScopeDisposed     = errors.New("scope has been disposed")
	ErrScopeNotInContext = errors.New("no scope in context")

	// Registration errors.
	ErrConstructorNil            = errors.New("constructor cannot be nil")
	ErrDescriptorNil             = errors.New("descriptor cannot be nil")
	ErrResolutionReuseOnInstance = errors.New("resolution-scoped reuse cannot apply to a pre-built instance")
)

var (
	_ error = ReuseError{}
	_ error = LifespanMismatchError{}
	_ error = ScopeNameNotFoundError{}
	_ error = NoMatchingResolutionScopeError{}
	_ error = DisposableTransientError{}
	_ error = ResolutionError{}
	_ error = TimeoutError{}
	_ error = RegistrationError{}
	_ error = ValidationError{}
	_ error = ModuleError{}
	_ error = TypeMismatchError{}
	_ error = ConstructorInvocationError{}
	_ error = ConstructorPanicError{}
	_ error = BuildError{}
	_ error = DisposalError{}
	_ error = CircularDependencyError{}
)

// ========================================
// Typed Errors for Rich Context
// ========================================
// Always use these typed errors instead of fmt.Errorf() or errors.New()
// for domain-specific errors. Wrap sentinel errors with these types.

// ReuseError indicates an invalid or unrecognized reuse value.
type ReuseError struct {
	Value any
}

func (e ReuseError) Error() string {
	return fmt.Sprintf("invalid reuse: %v", e.Value)
}

// LifespanMismatchError indicates a captive dependency: a service whose reuse
// outlives the reuse of something it depends on. For example, a Singleton
// service cannot depend on a Scoped service.
type LifespanMismatchError struct {
	ServiceType     reflect.Type
	ServiceReuse    Reuse
	DependencyType  reflect.Type
	DependencyReuse Reuse
}

func (e LifespanMismatchError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("captive dependency: %s (%s, lifespan %d) cannot depend on %s (%s, lifespan %d)\n\n",
		formatType(e.ServiceType), e.ServiceReuse, e.ServiceReuse.Lifespan(),
		formatType(e.DependencyType), e.DependencyReuse, e.DependencyReuse.Lifespan()))

	b.WriteString("The consumer lives longer than the scope that caches its dependency.\n")
	b.WriteString("It would capture the instance from whichever scope resolves it first and\n")
	b.WriteString("keep using it after that scope is closed and its instance disposed.\n\n")

	b.WriteString("To resolve this:\n")
	b.WriteString(fmt.Sprintf("  • Change %s to %s reuse\n", formatType(e.ServiceType), e.DependencyReuse))
	b.WriteString(fmt.Sprintf("  • Change %s to %s reuse\n", formatType(e.DependencyType), e.ServiceReuse))
	b.WriteString(fmt.Sprintf("  • Take a func() %s parameter to defer the resolution to call time\n", formatType(e.DependencyType)))
	b.WriteString("  • Set ProviderOptions.DisableLifespanCheck if the capture is intentional\n")

	return b.String()
}

// ScopeNameNotFoundError indicates that ScopedTo(name) found no scope with
// the requested name between the current scope and the root.
type ScopeNameNotFoundError struct {
	Name any
}

func (e ScopeNameNotFoundError) Error() string {
	return fmt.Sprintf("no scope named %v in the current scope chain (open one with OpenScope(ctx, reuse.Named(%v)))", e.Name, e.Name)
}

// NoMatchingResolutionScopeError indicates that InResolutionScopeOf found no
// chain link bound to a matching ancestor service in the current resolution.
type NoMatchingResolutionScopeError struct {
	Marker    reflect.Type
	Key       any
	Outermost bool
}

func (e NoMatchingResolutionScopeError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("no resolution scope bound to %s", formatType(e.Marker)))
	if e.Key != nil {
		b.WriteString(fmt.Sprintf(" (key: %v)", e.Key))
	}
	if e.Outermost {
		b.WriteString(" (outermost)")
	}
	b.WriteString(" in the current resolution: the matching ancestor must be registered with OpensResolutionScope()")
	return b.String()
}

// DisposableTransientError indicates a transient registration producing a
// disposable value while the provider disallows disposable transients.
type DisposableTransientError struct {
	ServiceType reflect.Type
}

func (e DisposableTransientError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("transient service %s is disposable but would never be disposed\n\n", formatType(e.ServiceType)))

	b.WriteString("Transient instances are not cached in any scope, so no scope closure\n")
	b.WriteString("would ever release them.\n\n")

	b.WriteString("To resolve this:\n")
	b.WriteString(fmt.Sprintf("  • Change %s to Scoped or Singleton reuse\n", formatType(e.ServiceType)))
	b.WriteString("  • Set ProviderOptions.DisposableTransients to AllowDisposableTransient and dispose it yourself\n")
	b.WriteString("  • Set ProviderOptions.DisposableTransients to TrackDisposableTransient to track it on the consuming scope\n")
	b.WriteString("  • Register it with PreventDisposal() if it should never be disposed\n")

	return b.String()
}

// Type alias for the graph package type so callers only import this package.
type CircularDependencyError = graph.CircularDependencyError

// ResolutionError wraps errors that occur during service resolution.
type ResolutionError struct {
	ServiceType reflect.Type
	ServiceKey  any // nil for non-keyed services
	Cause       error
	Available   []reflect.Type // Types that ARE registered (optional, for suggestions)
}

func (e ResolutionError) Error() string {
	var b strings.Builder

	notFound := e.Cause == nil || errors.Is(e.Cause, ErrServiceNotFound)

	switch {
	case notFound && e.ServiceKey != nil:
		b.WriteString(fmt.Sprintf("service not found: %s (key: %v)", formatType(e.ServiceType), e.ServiceKey))
	case notFound:
		b.WriteString(fmt.Sprintf("service not found: %s", formatType(e.ServiceType)))
	case e.ServiceKey != nil:
		b.WriteString(fmt.Sprintf("failed to resolve %s (key: %v): %v", formatType(e.ServiceType), e.ServiceKey, e.Cause))
	default:
		b.WriteString(fmt.Sprintf("failed to resolve %s: %v", formatType(e.ServiceType), e.Cause))
	}

	// Suggest similar types if available
	if notFound && len(e.Available) > 0 {
		similar := findSimilarTypes(e.ServiceType, e.Available)
		if len(similar) > 0 {
			b.WriteString("\n\nDid you mean one of these?\n")
			for _, t := range similar {
				b.WriteString(fmt.Sprintf("  • %s\n", formatType(t)))
			}
		}
	}

	if notFound {
		b.WriteString("\nMake sure the service is registered with the correct reuse and type.")
	}

	return b.String()
}

func (e ResolutionError) Unwrap() error {
	return e.Cause
}

// findSimilarTypes finds types with similar names using a simple substring/prefix match
func findSimilarTypes(target reflect.Type, available []reflect.Type) []reflect.Type {
	if target == nil || len(available) == 0 {
		return nil
	}

	targetName := target.String()
	targetShortName := target.Name()
	if targetShortName == "" {
		targetShortName = targetName
	}

	var similar []reflect.Type
	for _, t := range available {
		if t == nil || t == target {
			continue
		}

		typeName := t.String()
		typeShortName := t.Name()
		if typeShortName == "" {
			typeShortName = typeName
		}

		// Same short name across packages, or one name contains the other.
		if targetShortName == typeShortName ||
			strings.Contains(strings.ToLower(typeName), strings.ToLower(targetShortName)) ||
			strings.Contains(strings.ToLower(targetName), strings.ToLower(typeShortName)) {
			similar = append(similar, t)
		}

		if len(similar) >= 5 {
			break
		}
	}

	return similar
}

// TimeoutError indicates a build or resolution deadline expired.
type TimeoutError struct {
	ServiceType reflect.Type // nil for a whole-build timeout
	Timeout     time.Duration
}

func (e TimeoutError) Error() string {
	if e.ServiceType == nil {
		return fmt.Sprintf("build timed out after %v", e.Timeout)
	}
	return fmt.Sprintf("resolution of %s timed out after %v", formatType(e.ServiceType), e.Timeout)
}

func (e TimeoutError) Is(target error) bool {
	return errors.Is(target, context.DeadlineExceeded)
}

// RegistrationError wraps errors during service registration.
type RegistrationError struct {
	ServiceType reflect.Type
	Operation   string // "register", "create-descriptor", "validate-descriptor", etc.
	Cause       error
}

func (e RegistrationError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Operation, formatType(e.ServiceType), e.Cause)
}

func (e RegistrationError) Unwrap() error {
	return e.Cause
}

// ValidationError indicates a validation failure.
type ValidationError struct {
	ServiceType reflect.Type
	Cause       error
}

func (e ValidationError) Error() string {
	if e.ServiceType != nil {
		return fmt.Sprintf("%s: %v", formatType(e.ServiceType), e.Cause)
	}
	return e.Cause.Error()
}

func (e ValidationError) Unwrap() error {
	return e.Cause
}

// ModuleError wraps errors from module registration.
type ModuleError struct {
	Module string
	Cause  error
}

func (e ModuleError) Error() string {
	return fmt.Sprintf("module %q: %v", e.Module, e.Cause)
}

func (e ModuleError) Unwrap() error {
	return e.Cause
}

// TypeMismatchError indicates a type assertion or conversion failed.
type TypeMismatchError struct {
	Expected reflect.Type
	Actual   reflect.Type
	Context  string // "interface implementation", "type assertion", etc.
}

func (e TypeMismatchError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Context, formatType(e.Expected), formatType(e.Actual))
}

// ConstructorInvocationError for constructor call failures
type ConstructorInvocationError struct {
	Constructor reflect.Type
	Parameters  []reflect.Type
	Cause       error
}

func (e ConstructorInvocationError) Error() string {
	paramStrs := make([]string, len(e.Parameters))
	for i, p := range e.Parameters {
		paramStrs[i] = formatType(p)
	}
	return fmt.Sprintf("failed to invoke %s with parameters [%s]: %v",
		formatType(e.Constructor), strings.Join(paramStrs, ", "), e.Cause)
}

func (e ConstructorInvocationError) Unwrap() error {
	return e.Cause
}

// ConstructorPanicError indicates a constructor panicked during invocation.
// It captures the panic value and stack trace for debugging.
type ConstructorPanicError struct {
	Constructor reflect.Type
	Panic       any
	Stack       []byte
}

func (e ConstructorPanicError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("constructor %s panicked: %v\n", formatType(e.Constructor), e.Panic))

	b.WriteString("\nConstructors should be pure dependency wiring - avoid operations that can panic.\n")
	b.WriteString("Critical operations that can fail belong in application initialization, not constructors.\n")

	b.WriteString("\nTo resolve this:\n")
	b.WriteString("  • Check for nil pointer dereferences in your constructor\n")
	b.WriteString("  • Move panic-prone initialization to a separate Init() method\n")
	b.WriteString("  • Add nil checks for dependencies before using them\n")

	if len(e.Stack) > 0 {
		b.WriteString("\nStack trace:\n")
		b.Write(e.Stack)
	}

	return b.String()
}

// BuildError wraps errors that occur during provider building
type BuildError struct {
	Phase   string // "validation", "graph", "lifespan-check", "singleton-creation", etc.
	Details string
	Cause   error
}

func (e BuildError) Error() string {
	return fmt.Sprintf("build failed during %s phase: %s: %v", e.Phase, e.Details, e.Cause)
}

func (e BuildError) Unwrap() error {
	return e.Cause
}

// DisposalError aggregates disposal errors from one close sweep.
type DisposalError struct {
	Context string // "provider", "scope", "resolution scope"
	Errors  []error
}

func (e DisposalError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("%s disposal failed: %v", e.Context, e.Errors[0])
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s disposal failed with %d errors:", e.Context, len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("\n  %d. %v", i+1, err))
	}
	return sb.String()
}

func (e DisposalError) Unwrap() []error {
	return e.Errors
}

// formatType formats a reflect.Type for error messages.
func formatType(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}

	switch t.Kind() {
	case reflect.Pointer:
		elem := t.Elem()
		if elem.PkgPath() != "" && elem.Name() != "" {
			return "*" + elem.Name()
		}
		return t.String()
	case reflect.Slice:
		elem := t.Elem()
		if elem.PkgPath() != "" && elem.Name() != "" {
			return "[]" + elem.Name()
		}
		return t.String()
	case reflect.Map:
		key := t.Key()
		elem := t.Elem()
		keyStr := key.Name()
		if keyStr == "" {
			keyStr = key.String()
		}
		elemStr := elem.Name()
		if elemStr == "" {
			elemStr = elem.String()
		}
		return "map[" + keyStr + "]" + elemStr
	case reflect.Interface, reflect.Struct:
		if t.Name() != "" {
			return t.Name()
		}
		return t.String()
	case reflect.Func:
		return t.String()
	default:
		if t.Name() != "" {
			return t.Name()
		}
		return t.String()
	}
}
