package reflection

import (
	"fmt"
	"reflect"
)

// DependencyResolver resolves constructor dependencies during invocation.
// Implemented by the resolution engine.
type DependencyResolver interface {
	// Resolve returns the value for a dependency type.
	Resolve(t reflect.Type) (any, error)

	// ResolveDeferred returns a closure that resolves t on first call,
	// after the current resolution has completed.
	ResolveDeferred(t reflect.Type) func() (any, error)
}

// ConstructorInvoker invokes constructors with resolved dependencies.
type ConstructorInvoker struct {
	analyzer *Analyzer
}

// NewConstructorInvoker creates a new constructor invoker.
func NewConstructorInvoker(analyzer *Analyzer) *ConstructorInvoker {
	return &ConstructorInvoker{analyzer: analyzer}
}

// Invoke calls a constructor with resolved dependencies and returns its
// primary (first non-error) result. A non-nil trailing error return aborts
// with that error. Pre-built instances are returned as-is.
func (ci *ConstructorInvoker) Invoke(info *ConstructorInfo, resolver DependencyResolver) (any, error) {
	if info == nil {
		return nil, fmt.Errorf("constructor info cannot be nil")
	}

	if !info.IsFunc {
		return info.InstanceValue, nil
	}

	args, err := ci.buildArguments(info, resolver)
	if err != nil {
		return nil, err
	}

	results := info.Value.Call(args)

	if info.HasErrorReturn && len(results) > 0 {
		last := results[len(results)-1]
		if !last.IsNil() {
			if callErr, ok := last.Interface().(error); ok {
				return nil, callErr
			}
		}
	}

	for i, ret := range info.Returns {
		if !ret.IsError {
			return results[i].Interface(), nil
		}
	}

	return nil, fmt.Errorf("constructor returned no service value")
}

// buildArguments resolves the argument list for a constructor. Deferred
// parameters get lazy closures; everything else resolves immediately.
func (ci *ConstructorInvoker) buildArguments(info *ConstructorInfo, resolver DependencyResolver) ([]reflect.Value, error) {
	args := make([]reflect.Value, len(info.Parameters))

	for i, param := range info.Parameters {
		if param.Deferred {
			args[i] = makeDeferredArg(param, resolver)
			continue
		}

		value, err := resolver.Resolve(param.Type)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve parameter %d (%s): %w", i, param.Type, err)
		}

		arg := reflect.New(param.Type).Elem()
		if value != nil {
			arg.Set(reflect.ValueOf(value))
		}
		args[i] = arg
	}

	return args, nil
}

// makeDeferredArg builds the typed lazy closure for one deferred parameter.
// The func() (T, error) shape surfaces resolution failures as its error
// result; the plain func() T shape has no error channel and panics instead.
func makeDeferredArg(param ParameterInfo, resolver DependencyResolver) reflect.Value {
	resolve := resolver.ResolveDeferred(param.DeferredType)

	return reflect.MakeFunc(param.Type, func([]reflect.Value) []reflect.Value {
		value, err := resolve()

		out := reflect.New(param.DeferredType).Elem()
		if err == nil && value != nil {
			out.Set(reflect.ValueOf(value))
		}

		if !param.DeferredHasError {
			if err != nil {
				panic(err)
			}
			return []reflect.Value{out}
		}

		outErr := reflect.New(errType).Elem()
		if err != nil {
			outErr.Set(reflect.ValueOf(err))
		}

		return []reflect.Value{out, outErr}
	})
}
