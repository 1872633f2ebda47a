package reflection

import (
	"fmt"
	"reflect"
	"sync"
)

var errType = reflect.TypeOf((*error)(nil)).Elem()

// Analyzer performs reflection-based analysis of constructors and instances.
// It caches analysis results per constructor function pointer.
type Analyzer struct {
	mu    sync.RWMutex
	cache map[uintptr]*ConstructorInfo
}

// ConstructorInfo contains analyzed information about a constructor function
// or a pre-built instance.
type ConstructorInfo struct {
	Type           reflect.Type
	Value          reflect.Value
	IsFunc         bool // True if this is a function constructor
	InstanceValue  any  // The actual value when IsFunc is false
	Parameters     []ParameterInfo
	Returns        []ReturnInfo
	HasErrorReturn bool // Returns error as last value

	// Cached for performance
	dependencies []*Dependency
}

// ParameterInfo describes one constructor parameter.
type ParameterInfo struct {
	Type  reflect.Type
	Index int

	// Deferred parameters have shape func() T or func() (T, error). They
	// receive a lazy resolver closure instead of a resolved value.
	Deferred         bool
	DeferredType     reflect.Type // T for deferred parameters
	DeferredHasError bool         // true for the func() (T, error) shape
}

// ReturnInfo describes one constructor return value.
type ReturnInfo struct {
	Type    reflect.Type
	Index   int
	IsError bool
}

// Dependency represents a single dependency edge of a constructor.
type Dependency struct {
	// Type of the dependency; the deferred target for deferred edges.
	Type reflect.Type

	// Index is the parameter position.
	Index int

	// Deferred marks a lazily resolved func() T edge.
	Deferred bool
}

// New creates a new Analyzer.
func New() *Analyzer {
	return &Analyzer{
		cache: make(map[uintptr]*ConstructorInfo),
	}
}

// Analyze analyzes a constructor and extracts dependency information.
// Non-function values are treated as pre-built instances with no
// dependencies.
func (a *Analyzer) Analyze(constructor any) (*ConstructorInfo, error) {
	if constructor == nil {
		return nil, fmt.Errorf("constructor cannot be nil")
	}

	val := reflect.ValueOf(constructor)

	// Check for nil function values (typed nil)
	if !val.IsValid() || (val.Kind() == reflect.Func && val.IsNil()) {
		return nil, fmt.Errorf("constructor cannot be nil")
	}

	typ := reflect.TypeOf(constructor)

	// Instances are not cached: distinct instances of one type would share a
	// cache key.
	if typ.Kind() != reflect.Func {
		info := &ConstructorInfo{
			Type:          typ,
			Value:         val,
			InstanceValue: constructor,
			Parameters:    []ParameterInfo{},
			dependencies:  []*Dependency{},
		}
		return info, nil
	}

	// Functions are cached by function pointer, so different functions with
	// the same signature stay separate.
	cacheKey := val.Pointer()

	a.mu.RLock()
	if cached, ok := a.cache[cacheKey]; ok {
		a.mu.RUnlock()
		return cached, nil
	}
	a.mu.RUnlock()

	info := &ConstructorInfo{
		Type:   typ,
		Value:  val,
		IsFunc: true,
	}

	a.analyzeParameters(info)
	a.analyzeReturns(info)
	info.dependencies = buildDependencies(info)

	a.mu.Lock()
	a.cache[cacheKey] = info
	a.mu.Unlock()

	return info, nil
}

// analyzeParameters records each parameter, detecting deferred edges.
func (a *Analyzer) analyzeParameters(info *ConstructorInfo) {
	fnType := info.Type

	info.Parameters = make([]ParameterInfo, fnType.NumIn())
	for i := 0; i < fnType.NumIn(); i++ {
		paramType := fnType.In(i)
		param := ParameterInfo{
			Type:  paramType,
			Index: i,
		}

		if target, hasErr, ok := DeferredTarget(paramType); ok {
			param.Deferred = true
			param.DeferredType = target
			param.DeferredHasError = hasErr
		}

		info.Parameters[i] = param
	}
}

// analyzeReturns records return values and flags a trailing error return.
func (a *Analyzer) analyzeReturns(info *ConstructorInfo) {
	fnType := info.Type

	info.Returns = make([]ReturnInfo, 0, fnType.NumOut())
	for i := 0; i < fnType.NumOut(); i++ {
		retType := fnType.Out(i)
		isError := retType.Implements(errType) && i == fnType.NumOut()-1

		if isError {
			info.HasErrorReturn = true
		}

		info.Returns = append(info.Returns, ReturnInfo{
			Type:    retType,
			Index:   i,
			IsError: isError,
		})
	}
}

// buildDependencies creates Dependency edges from ParameterInfo.
func buildDependencies(info *ConstructorInfo) []*Dependency {
	deps := make([]*Dependency, 0, len(info.Parameters))

	for _, param := range info.Parameters {
		dep := &Dependency{
			Type:  param.Type,
			Index: param.Index,
		}

		if param.Deferred {
			dep.Type = param.DeferredType
			dep.Deferred = true
		}

		deps = append(deps, dep)
	}

	return deps
}

// GetDependencies returns the analyzed dependency edges for a constructor.
func (a *Analyzer) GetDependencies(constructor any) ([]*Dependency, error) {
	info, err := a.Analyze(constructor)
	if err != nil {
		return nil, err
	}

	return info.dependencies, nil
}

// Dependencies returns the cached dependency edges of an analyzed
// constructor.
func (info *ConstructorInfo) Dependencies() []*Dependency {
	return info.dependencies
}

// GetServiceType determines the primary service type from a constructor or
// instance: the first non-error return, or the instance's own type.
func (a *Analyzer) GetServiceType(constructor any) (reflect.Type, error) {
	info, err := a.Analyze(constructor)
	if err != nil {
		return nil, err
	}

	if !info.IsFunc {
		return info.Type, nil
	}

	for _, ret := range info.Returns {
		if !ret.IsError {
			return ret.Type, nil
		}
	}

	return nil, fmt.Errorf("constructor has no non-error return value")
}

// Clear clears the analysis cache.
func (a *Analyzer) Clear() {
	a.mu.Lock()
	a.cache = make(map[uintptr]*ConstructorInfo)
	a.mu.Unlock()
}

// CacheSize returns the number of cached analyses.
func (a *Analyzer) CacheSize() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.cache)
}

// DeferredTarget reports whether t is a deferred-resolution shape, func() T
// or func() (T, error), and returns T and whether the error form is used.
// func() error is not a deferred shape.
func DeferredTarget(t reflect.Type) (target reflect.Type, hasError bool, ok bool) {
	if t == nil || t.Kind() != reflect.Func || t.NumIn() != 0 || t.IsVariadic() {
		return nil, false, false
	}

	switch t.NumOut() {
	case 1:
		if t.Out(0) == errType {
			return nil, false, false
		}
		return t.Out(0), false, true
	case 2:
		if t.Out(0) != errType && t.Out(1) == errType {
			return t.Out(0), true, true
		}
	}

	return nil, false, false
}
