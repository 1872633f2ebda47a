package reuse

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type descService struct {
	Value string
}

func newDescService() *descService {
	return &descService{Value: "svc"}
}

func (s *descService) Describe() string {
	return s.Value
}

type descDep struct {
	Name string
}

func newDescDep() *descDep {
	return &descDep{Name: "dep"}
}

type descDescriber interface {
	Describe() string
}

type descStringer interface {
	Stringify() string
}

func TestNewDescriptor(t *testing.T) {
	t.Run("rejects nil service", func(t *testing.T) {
		d, err := newDescriptor(nil, Singleton, nil)

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrConstructorNil)
		assert.Nil(t, d)
	})

	t.Run("analyzes a constructor", func(t *testing.T) {
		d, err := newDescriptor(newDescService, Scoped, nil)

		require.NoError(t, err)
		assert.Equal(t, reflect.TypeOf(&descService{}), d.Type)
		assert.Equal(t, reflect.TypeOf(newDescService), d.ConstructorType)
		assert.Equal(t, KindScoped, d.Reuse.Kind())
		assert.Equal(t, -1, d.SlotID, "slot is assigned at build time, not registration time")
		assert.False(t, d.IsInstance)
		assert.Nil(t, d.Instance)
		assert.Equal(t, d.Type, d.GetType())
		assert.Nil(t, d.GetKey())
	})

	t.Run("accepts a trailing error return", func(t *testing.T) {
		d, err := newDescriptor(func() (*descService, error) {
			return &descService{}, nil
		}, Transient, nil)

		require.NoError(t, err)
		assert.Equal(t, reflect.TypeOf(&descService{}), d.Type)
		assert.Equal(t, KindTransient, d.Reuse.Kind())
	})

	t.Run("records constructor dependencies", func(t *testing.T) {
		d, err := newDescriptor(func(dep *descDep) *descService {
			return &descService{Value: dep.Name}
		}, Singleton, nil)

		require.NoError(t, err)
		require.Len(t, d.Dependencies, 1)
		assert.Equal(t, reflect.TypeOf(&descDep{}), d.Dependencies[0].Type)
		assert.Equal(t, 0, d.Dependencies[0].Index)
		assert.False(t, d.Dependencies[0].Deferred)
	})

	t.Run("records deferred dependencies", func(t *testing.T) {
		d, err := newDescriptor(func(get func() *descDep) *descService {
			return &descService{Value: get().Name}
		}, Singleton, nil)

		require.NoError(t, err)
		require.Len(t, d.Dependencies, 1)
		assert.Equal(t, reflect.TypeOf(&descDep{}), d.Dependencies[0].Type)
		assert.True(t, d.Dependencies[0].Deferred, "func() T parameters resolve lazily")
	})

	t.Run("instance defaults to Singleton", func(t *testing.T) {
		instance := &descService{Value: "prebuilt"}
		d, err := newDescriptor(instance, Default, nil)

		require.NoError(t, err)
		assert.True(t, d.IsInstance)
		assert.Same(t, instance, d.Instance)
		assert.Equal(t, reflect.TypeOf(instance), d.Type)
		assert.Equal(t, KindSingleton, d.Reuse.Kind())
	})

	t.Run("instance keeps an explicit reuse", func(t *testing.T) {
		d, err := newDescriptor(&descService{}, Scoped, nil)

		require.NoError(t, err)
		assert.True(t, d.IsInstance)
		assert.Equal(t, KindScoped, d.Reuse.Kind())
	})

	t.Run("applies the Key option", func(t *testing.T) {
		d, err := newDescriptor(newDescService, Singleton, nil, Key("primary"))

		require.NoError(t, err)
		assert.Equal(t, "primary", d.Key)
		assert.Equal(t, "primary", d.GetKey())
	})

	t.Run("rejects a nil key", func(t *testing.T) {
		_, err := newDescriptor(newDescService, Singleton, nil, Key(nil))

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrServiceKeyNil)
	})

	t.Run("WithReuse overrides the registration reuse", func(t *testing.T) {
		d, err := newDescriptor(newDescService, Scoped, nil, WithReuse(Transient))

		require.NoError(t, err)
		assert.Equal(t, KindTransient, d.Reuse.Kind())
	})

	t.Run("rejects a constructor with no service return", func(t *testing.T) {
		_, err := newDescriptor(func() error { return nil }, Singleton, nil)

		require.Error(t, err)
		var regErr RegistrationError
		require.ErrorAs(t, err, &regErr)
		assert.Equal(t, "determine-service-type", regErr.Operation)
	})
}

func TestDescriptorAs(t *testing.T) {
	t.Run("binds an implemented interface", func(t *testing.T) {
		d, err := newDescriptor(newDescService, Singleton, nil, As((*descDescriber)(nil)))

		require.NoError(t, err)
		require.Len(t, d.As, 1)
		assert.Equal(t, reflect.TypeOf((*descDescriber)(nil)).Elem(), d.As[0])
	})

	t.Run("binds an interface on an instance", func(t *testing.T) {
		d, err := newDescriptor(&descService{Value: "pre"}, Singleton, nil, As((*descDescriber)(nil)))

		require.NoError(t, err)
		require.Len(t, d.As, 1)
		assert.Equal(t, reflect.TypeOf((*descDescriber)(nil)).Elem(), d.As[0])
	})

	t.Run("rejects a nil target", func(t *testing.T) {
		_, err := newDescriptor(newDescService, Singleton, nil, As(nil))

		require.Error(t, err)
		assert.ErrorContains(t, err, "As target cannot be nil")
	})

	t.Run("rejects a non-pointer target", func(t *testing.T) {
		_, err := newDescriptor(newDescService, Singleton, nil, As(42))

		require.Error(t, err)
		assert.ErrorContains(t, err, "must be a pointer to an interface")
	})

	t.Run("rejects a pointer to a non-interface", func(t *testing.T) {
		_, err := newDescriptor(newDescService, Singleton, nil, As(&descService{}))

		require.Error(t, err)
		assert.ErrorContains(t, err, "must be a pointer to an interface")
	})

	t.Run("rejects an unimplemented interface", func(t *testing.T) {
		_, err := newDescriptor(newDescService, Singleton, nil, As((*descStringer)(nil)))

		require.Error(t, err)
		var mismatch TypeMismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, reflect.TypeOf((*descStringer)(nil)).Elem(), mismatch.Expected)
		assert.Equal(t, reflect.TypeOf(&descService{}), mismatch.Actual)
		assert.Equal(t, "interface implementation", mismatch.Context)
	})
}

func TestDescriptorValidate(t *testing.T) {
	t.Run("rejects a descriptor without a type", func(t *testing.T) {
		err := (&Descriptor{}).Validate()

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDescriptorNil)
	})

	t.Run("rejects a Transient instance", func(t *testing.T) {
		_, err := newDescriptor(&descService{}, Transient, nil)

		require.Error(t, err)
		assert.ErrorContains(t, err, "cannot be Transient")
	})

	t.Run("rejects a Parent instance", func(t *testing.T) {
		_, err := newDescriptor(&descService{}, Parent, nil)

		require.Error(t, err)
		assert.ErrorContains(t, err, "cannot use Parent reuse")
	})

	t.Run("rejects resolution reuse on an instance", func(t *testing.T) {
		_, err := newDescriptor(&descService{}, InResolutionScope, nil)

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrResolutionReuseOnInstance)

		_, err = newDescriptor(&descService{}, InResolutionScopeOf[*descDep](nil, false), nil)

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrResolutionReuseOnInstance)
	})

	t.Run("rejects ScopedTo without a scope name", func(t *testing.T) {
		_, err := newDescriptor(newDescService, ScopedTo(nil), nil)

		require.Error(t, err)
		assert.ErrorContains(t, err, "non-nil scope name")
	})

	t.Run("rejects InResolutionScopeOf without a marker", func(t *testing.T) {
		_, err := newDescriptor(newDescService, InResolutionScopeOfType(nil, nil, false), nil)

		require.Error(t, err)
		assert.ErrorContains(t, err, "non-nil marker type")
	})

	t.Run("rejects multiple service returns", func(t *testing.T) {
		_, err := newDescriptor(func() (*descService, *descDep) {
			return &descService{}, &descDep{}
		}, Singleton, nil)

		require.Error(t, err)
		assert.ErrorContains(t, err, "exactly one service value")
	})

	t.Run("rejects a channel service type", func(t *testing.T) {
		_, err := newDescriptor(func() chan int { return make(chan int) }, Singleton, nil)

		require.Error(t, err)
		assert.ErrorContains(t, err, "not supported as a service type")
	})

	t.Run("rejects a channel dependency", func(t *testing.T) {
		_, err := newDescriptor(func(ch chan int) *descService {
			return &descService{}
		}, Singleton, nil)

		require.Error(t, err)
		assert.ErrorContains(t, err, "not supported as a dependency")
	})
}

func TestDescriptorGetDependencies(t *testing.T) {
	t.Run("filters context and scope parameters", func(t *testing.T) {
		d, err := newDescriptor(func(ctx context.Context, s *Scope, dep *descDep) *descService {
			return &descService{Value: dep.Name}
		}, Scoped, nil)

		require.NoError(t, err)
		assert.Len(t, d.Dependencies, 3, "raw dependencies keep every parameter")

		deps := d.GetDependencies()
		require.Len(t, deps, 1, "graph edges exclude context.Context and *Scope")
		assert.Equal(t, reflect.TypeOf(&descDep{}), deps[0].Type)
	})

	t.Run("keeps service dependencies intact", func(t *testing.T) {
		d, err := newDescriptor(newDescDep, Singleton, nil)
		require.NoError(t, err)
		assert.Empty(t, d.GetDependencies())

		d, err = newDescriptor(func(dep *descDep) *descService {
			return &descService{Value: dep.Name}
		}, Singleton, nil)

		require.NoError(t, err)
		deps := d.GetDependencies()
		require.Len(t, deps, 1)
		assert.Equal(t, reflect.TypeOf(&descDep{}), deps[0].Type)
	})
}

func TestDescriptorClone(t *testing.T) {
	original, err := newDescriptor(newDescService, Scoped, nil, Key("orig"))
	require.NoError(t, err)

	copied := original.clone()

	require.NotSame(t, original, copied)
	assert.Equal(t, original.Type, copied.Type)
	assert.Equal(t, original.Key, copied.Key)
	assert.Equal(t, original.Reuse.Kind(), copied.Reuse.Kind())

	copied.SlotID = 7
	assert.Equal(t, -1, original.SlotID, "mutating the clone leaves the original untouched")
}
