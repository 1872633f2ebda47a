package reuse

import (
	"reflect"

	"github.com/scopekit/reuse/internal/reflection"
)

// TypeKey identifies a registration view: a service type plus an optional
// comparable key.
type TypeKey struct {
	Type reflect.Type
	Key  any
}

// Collection accumulates service registrations and builds providers.
//
// Collection follows a builder pattern where services are registered with
// their reuse strategies, then built into a Provider.
//
// Collection is NOT thread-safe. It should be configured in a single
// goroutine before building. Building does not freeze the collection, and
// one collection can build any number of independent providers.
//
// Example:
//
//	collection := reuse.NewCollection()
//	collection.AddSingleton(NewLogger)
//	collection.AddScoped(NewDatabase)
//
//	provider, err := collection.Build()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
type Collection interface {
	// Build creates a Provider from the registered services using default
	// options.
	Build() (*Provider, error)

	// BuildWithOptions creates a Provider with custom options. A nil
	// options value behaves like Build.
	BuildWithOptions(options *ProviderOptions) (*Provider, error)

	// AddModules applies one or more module configurations to the
	// collection, stopping at the first error.
	AddModules(modules ...ModuleOption) error

	// AddSingleton registers a service cached in the provider's root scope.
	// A non-function argument is registered as a pre-built instance.
	AddSingleton(constructor any, opts ...AddOption) error

	// AddScoped registers a service cached once per current scope.
	AddScoped(constructor any, opts ...AddOption) error

	// AddTransient registers a service constructed on every resolution.
	AddTransient(constructor any, opts ...AddOption) error

	// Add registers a service with an explicit reuse.
	Add(constructor any, r Reuse, opts ...AddOption) error

	// Contains checks if a service type is registered.
	Contains(serviceType reflect.Type) bool

	// ContainsKeyed checks if a keyed service is registered.
	ContainsKeyed(serviceType reflect.Type, serviceKey any) bool

	// Remove drops the registration currently serving serviceType together
	// with all of its views, and reports whether anything was removed.
	Remove(serviceType reflect.Type) bool

	// RemoveKeyed drops the registration serving serviceType under
	// serviceKey together with all of its views.
	RemoveKeyed(serviceType reflect.Type, serviceKey any) bool

	// ToSlice returns the live registrations in registration order. This is
	// useful for inspection and debugging.
	ToSlice() []*Descriptor

	// Count returns the number of live registrations.
	Count() int
}

// NewCollection creates an empty service collection.
func NewCollection() Collection {
	return &collection{
		services: make(map[TypeKey]*Descriptor),
		analyzer: reflection.New(),
	}
}

type collection struct {
	// ordered preserves registration order. Replaced descriptors stay in
	// the slice and are filtered out by reachability through services.
	ordered  []*Descriptor
	services map[TypeKey]*Descriptor
	analyzer *reflection.Analyzer
}

func (c *collection) AddSingleton(constructor any, opts ...AddOption) error {
	return c.Add(constructor, Singleton, opts...)
}

func (c *collection) AddScoped(constructor any, opts ...AddOption) error {
	return c.Add(constructor, Scoped, opts...)
}

func (c *collection) AddTransient(constructor any, opts ...AddOption) error {
	return c.Add(constructor, Transient, opts...)
}

func (c *collection) Add(constructor any, r Reuse, opts ...AddOption) error {
	descriptor, err := newDescriptor(constructor, r, c.analyzer, opts...)
	if err != nil {
		return err
	}

	c.ordered = append(c.ordered, descriptor)
	for _, view := range descriptorViews(descriptor) {
		c.services[view] = descriptor
	}
	return nil
}

func (c *collection) AddModules(modules ...ModuleOption) error {
	for _, module := range modules {
		if module == nil {
			continue
		}
		if err := module(c); err != nil {
			return err
		}
	}
	return nil
}

func (c *collection) Contains(serviceType reflect.Type) bool {
	return c.ContainsKeyed(serviceType, nil)
}

func (c *collection) ContainsKeyed(serviceType reflect.Type, serviceKey any) bool {
	if serviceType == nil {
		return false
	}
	_, ok := c.services[TypeKey{Type: serviceType, Key: serviceKey}]
	return ok
}

func (c *collection) Remove(serviceType reflect.Type) bool {
	return c.RemoveKeyed(serviceType, nil)
}

func (c *collection) RemoveKeyed(serviceType reflect.Type, serviceKey any) bool {
	if serviceType == nil {
		return false
	}
	descriptor, ok := c.services[TypeKey{Type: serviceType, Key: serviceKey}]
	if !ok {
		return false
	}

	for view, d := range c.services {
		if d == descriptor {
			delete(c.services, view)
		}
	}
	for i, d := range c.ordered {
		if d == descriptor {
			c.ordered = append(c.ordered[:i], c.ordered[i+1:]...)
			break
		}
	}
	return true
}

func (c *collection) ToSlice() []*Descriptor {
	live := c.liveSet()
	out := make([]*Descriptor, 0, len(live))
	for _, d := range c.ordered {
		if live[d] {
			out = append(out, d)
		}
	}
	return out
}

func (c *collection) Count() int {
	return len(c.liveSet())
}

func (c *collection) Build() (*Provider, error) {
	return c.BuildWithOptions(nil)
}

func (c *collection) BuildWithOptions(options *ProviderOptions) (*Provider, error) {
	return newProvider(c.ToSlice(), options)
}

// liveSet returns the descriptors still reachable through at least one view.
// A registration shadowed on every view by later registrations is no longer
// live.
func (c *collection) liveSet() map[*Descriptor]bool {
	live := make(map[*Descriptor]bool, len(c.services))
	for _, d := range c.services {
		live[d] = true
	}
	return live
}

// descriptorViews lists every TypeKey a descriptor is resolvable under: its
// primary type plus each As interface, all sharing the descriptor's key.
func descriptorViews(d *Descriptor) []TypeKey {
	views := make([]TypeKey, 0, 1+len(d.As))
	views = append(views, TypeKey{Type: d.Type, Key: d.Key})
	for _, iface := range d.As {
		views = append(views, TypeKey{Type: iface, Key: d.Key})
	}
	return views
}
