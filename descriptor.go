package reuse

import (
	"context"
	"fmt"
	"reflect"

	"github.com/scopekit/reuse/internal/reflection"
)

var (
	ctxType   = reflect.TypeOf((*context.Context)(nil)).Elem()
	scopeType = reflect.TypeOf((*Scope)(nil))
	errorType = reflect.TypeOf((*error)(nil)).Elem()
)

// Descriptor represents one registered service.
type Descriptor struct {
	// Type is the service type this descriptor produces.
	Type reflect.Type

	// Key is optional - for keyed services.
	Key any

	// Reuse selects the caching scope. Default and Parent are replaced with
	// concrete variants when the provider is built.
	Reuse Reuse

	// SlotID indexes every scope's instance store. Assigned sequentially at
	// build time, -1 before that.
	SlotID int

	// Constructor is the reflected function value, or the instance value
	// for instance registrations.
	Constructor reflect.Value

	// ConstructorType is the type of the constructor function.
	ConstructorType reflect.Type

	// Dependencies are the analyzed constructor edges, including deferred
	// edges and built-in injections.
	Dependencies []*reflection.Dependency

	// As lists additional interface types this service is registered under.
	// All of them share this descriptor's slot, so one instance serves every
	// interface.
	As []reflect.Type

	// IsInstance indicates this descriptor holds a pre-built value.
	IsInstance bool

	// Instance is the pre-built value when IsInstance is true.
	Instance any

	// PreventDisposal excludes produced values from disposal tracking.
	PreventDisposal bool

	// WeaklyReferenced tracks produced values through a non-owning handle.
	WeaklyReferenced bool

	// OpensResolutionScope makes construction of this service open a child
	// link in the resolution scope chain for its dependency sub-graph.
	OpensResolutionScope bool

	info *reflection.ConstructorInfo
}

// newDescriptor creates a descriptor from a constructor or instance.
func newDescriptor(service any, r Reuse, analyzer *reflection.Analyzer, opts ...AddOption) (*Descriptor, error) {
	if service == nil {
		return nil, ValidationError{Cause: ErrConstructorNil}
	}

	options := &addOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt.applyAddOption(options)
		}
	}
	if err := options.Validate(); err != nil {
		return nil, err
	}
	if options.reuse != nil {
		r = *options.reuse
	}

	constructorValue := reflect.ValueOf(service)
	if !constructorValue.IsValid() || (constructorValue.Kind() == reflect.Pointer && constructorValue.IsNil()) {
		return nil, ValidationError{Cause: ErrConstructorNil}
	}
	constructorType := constructorValue.Type()
	isInstance := constructorType.Kind() != reflect.Func

	if analyzer == nil {
		analyzer = reflection.New()
	}

	info, err := analyzer.Analyze(service)
	if err != nil {
		return nil, RegistrationError{Operation: "analyze", Cause: err}
	}

	descriptor := &Descriptor{
		Key:                  options.key,
		Reuse:                r,
		SlotID:               -1,
		Constructor:          constructorValue,
		ConstructorType:      constructorType,
		Dependencies:         info.Dependencies(),
		IsInstance:           isInstance,
		PreventDisposal:      options.preventDisposal,
		WeaklyReferenced:     options.weaklyReferenced,
		OpensResolutionScope: options.opensResolutionScope,
		info:                 info,
	}

	if isInstance {
		descriptor.Instance = service
		descriptor.Type = constructorType

		// Instances are not constructed inside a resolve call, so they
		// default to Singleton and never take the resolution family.
		if r.Kind() == KindDefault {
			descriptor.Reuse = Singleton
		}
	} else {
		serviceType, err := analyzer.GetServiceType(service)
		if err != nil {
			return nil, RegistrationError{Operation: "determine-service-type", Cause: err}
		}
		descriptor.Type = serviceType
	}

	if err := descriptor.applyAs(options.as); err != nil {
		return nil, err
	}

	if err := descriptor.Validate(); err != nil {
		return nil, err
	}

	return descriptor, nil
}

// applyAs validates and records the As interface bindings. Each argument
// must be a pointer to an interface the service type implements, written
// (*Iface)(nil).
func (d *Descriptor) applyAs(targets []any) error {
	for _, target := range targets {
		if target == nil {
			return ValidationError{
				ServiceType: d.Type,
				Cause:       fmt.Errorf("As target cannot be nil; use a pointer like (*Iface)(nil)"),
			}
		}

		targetType := reflect.TypeOf(target)
		if targetType.Kind() != reflect.Pointer || targetType.Elem().Kind() != reflect.Interface {
			return ValidationError{
				ServiceType: d.Type,
				Cause:       fmt.Errorf("As target must be a pointer to an interface, got %s", formatType(targetType)),
			}
		}

		ifaceType := targetType.Elem()
		if !d.Type.Implements(ifaceType) {
			return TypeMismatchError{
				Expected: ifaceType,
				Actual:   d.Type,
				Context:  "interface implementation",
			}
		}

		d.As = append(d.As, ifaceType)
	}

	return nil
}

// GetType returns the service type this descriptor produces. Implements the
// graph package's Provider interface.
func (d *Descriptor) GetType() reflect.Type {
	return d.Type
}

// GetKey returns the optional key for keyed services, nil otherwise.
// Implements the graph package's Provider interface.
func (d *Descriptor) GetKey() any {
	return d.Key
}

// GetDependencies returns the service dependency edges: analyzed edges minus
// the built-in injections (context.Context and *Scope), which are satisfied
// by the engine rather than by registrations. Deferred edges stay in the
// list, flagged, so callers can skip them where laziness exempts them.
// Implements the graph package's Provider interface.
func (d *Descriptor) GetDependencies() []*reflection.Dependency {
	deps := make([]*reflection.Dependency, 0, len(d.Dependencies))
	for _, dep := range d.Dependencies {
		if dep.Type == ctxType || dep.Type == scopeType {
			continue
		}
		deps = append(deps, dep)
	}
	return deps
}

// Validate checks the descriptor's configuration: a usable constructor, a
// valid reuse, and parameter/return types the engine supports.
func (d *Descriptor) Validate() error {
	if d.Type == nil {
		return ValidationError{Cause: ErrDescriptorNil}
	}

	if !d.Constructor.IsValid() {
		return ValidationError{ServiceType: d.Type, Cause: ErrConstructorNil}
	}

	if !d.Reuse.Kind().IsValid() {
		return ValidationError{ServiceType: d.Type, Cause: ReuseError{Value: d.Reuse.Kind()}}
	}

	switch d.Reuse.Kind() {
	case KindScopedTo:
		if d.Reuse.ScopeName() == nil {
			return ValidationError{
				ServiceType: d.Type,
				Cause:       fmt.Errorf("ScopedTo requires a non-nil scope name"),
			}
		}
	case KindResolutionScopeOf:
		if d.Reuse.Marker() == nil {
			return ValidationError{
				ServiceType: d.Type,
				Cause:       fmt.Errorf("InResolutionScopeOf requires a non-nil marker type"),
			}
		}
	}

	if d.IsInstance {
		switch d.Reuse.Kind() {
		case KindResolutionScope, KindResolutionScopeOf:
			return ValidationError{ServiceType: d.Type, Cause: ErrResolutionReuseOnInstance}
		case KindTransient:
			return ValidationError{
				ServiceType: d.Type,
				Cause:       fmt.Errorf("a pre-built instance cannot be Transient; every resolution would return the same value"),
			}
		case KindParent:
			return ValidationError{
				ServiceType: d.Type,
				Cause:       fmt.Errorf("a pre-built instance cannot use Parent reuse; it is not constructed on a dependency edge"),
			}
		}
		return nil
	}

	if err := d.validateReturnTypes(); err != nil {
		return err
	}

	return d.validateParameterTypes()
}

// validateReturnTypes enforces the (T) or (T, error) constructor shape and
// rejects service types the engine cannot manage.
func (d *Descriptor) validateReturnTypes() error {
	numOut := d.ConstructorType.NumOut()

	serviceReturns := 0
	for i := 0; i < numOut; i++ {
		outType := d.ConstructorType.Out(i)

		if outType.Implements(errorType) && i == numOut-1 {
			continue
		}
		serviceReturns++

		switch outType.Kind() {
		case reflect.Chan:
			return ValidationError{
				ServiceType: d.Type,
				Cause:       fmt.Errorf("constructor return type at index %d is a channel type, which is not supported as a service type", i),
			}
		case reflect.UnsafePointer:
			return ValidationError{
				ServiceType: d.Type,
				Cause:       fmt.Errorf("constructor return type at index %d is an unsafe pointer, which is not supported as a service type", i),
			}
		}
	}

	if serviceReturns == 0 {
		return ValidationError{
			ServiceType: d.Type,
			Cause:       fmt.Errorf("constructor must return a service value"),
		}
	}
	if serviceReturns > 1 {
		return ValidationError{
			ServiceType: d.Type,
			Cause:       fmt.Errorf("constructor must return exactly one service value, optionally with a trailing error; got %d", serviceReturns),
		}
	}

	return nil
}

// validateParameterTypes rejects dependency types the engine cannot resolve.
func (d *Descriptor) validateParameterTypes() error {
	for _, dep := range d.Dependencies {
		if dep == nil || dep.Type == nil {
			continue
		}

		switch dep.Type.Kind() {
		case reflect.Chan:
			return ValidationError{
				ServiceType: d.Type,
				Cause:       fmt.Errorf("channel type %s is not supported as a dependency; use an interface or struct instead", dep.Type),
			}
		case reflect.UnsafePointer:
			return ValidationError{
				ServiceType: d.Type,
				Cause:       fmt.Errorf("unsafe pointer is not supported as a dependency"),
			}
		}
	}

	return nil
}

// clone returns a copy safe to mutate at build time. Descriptors in a
// collection stay untouched so one collection can build several providers.
func (d *Descriptor) clone() *Descriptor {
	copied := *d
	return &copied
}
