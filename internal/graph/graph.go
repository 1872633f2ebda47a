package graph

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/scopekit/reuse/internal/reflection"
)

// Provider is the view of a service registration the graph needs.
type Provider interface {
	// GetType returns the service type this provider produces.
	GetType() reflect.Type

	// GetKey returns the optional key for keyed services.
	GetKey() any

	// GetDependencies returns the hard dependency edges. Deferred edges and
	// built-in injections are excluded by the caller; they cannot form
	// construction-time cycles.
	GetDependencies() []*reflection.Dependency
}

// NodeKey uniquely identifies a node in the graph.
type NodeKey struct {
	Type reflect.Type
	Key  any // for keyed services
}

// Node represents a service in the dependency graph.
type Node struct {
	Key          NodeKey
	Provider     Provider
	Dependencies []NodeKey
}

// DependencyGraph manages the dependency relationships between services. It
// provides cycle detection and topological sorting. Registering the same
// (type, key) again replaces the previous node.
type DependencyGraph struct {
	mu    sync.RWMutex
	nodes map[NodeKey]*Node
	edges map[NodeKey][]NodeKey
}

// NewDependencyGraph creates a new dependency graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		nodes: make(map[NodeKey]*Node),
		edges: make(map[NodeKey][]NodeKey),
	}
}

// AddProvider adds a provider to the graph. Cycle detection runs separately
// via DetectCycles so registration order never matters.
func (g *DependencyGraph) AddProvider(provider Provider) error {
	if provider == nil {
		return fmt.Errorf("provider cannot be nil")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	nodeKey := NodeKey{
		Type: provider.GetType(),
		Key:  provider.GetKey(),
	}

	providerDeps := provider.GetDependencies()
	dependencies := make([]NodeKey, 0, len(providerDeps))
	for _, dep := range providerDeps {
		if dep.Deferred {
			continue
		}
		dependencies = append(dependencies, NodeKey{Type: dep.Type})
	}

	g.nodes[nodeKey] = &Node{
		Key:          nodeKey,
		Provider:     provider,
		Dependencies: dependencies,
	}
	g.edges[nodeKey] = dependencies

	return nil
}

// RemoveProvider removes a provider from the graph. Edges into the removed
// node stay in place; they now point at a missing node, which resolution
// reports as not found.
func (g *DependencyGraph) RemoveProvider(serviceType reflect.Type, key any) {
	g.mu.Lock()
	defer g.mu.Unlock()

	nodeKey := NodeKey{Type: serviceType, Key: key}
	delete(g.nodes, nodeKey)
	delete(g.edges, nodeKey)
}

// TopologicalSort returns registered nodes in dependency order, dependencies
// before their consumers. Edges to unregistered nodes are ignored here;
// resolution reports those as not found.
func (g *DependencyGraph) TopologicalSort() ([]*Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	// In-degree counts only edges between registered nodes.
	inDegrees := make(map[NodeKey]int, len(g.nodes))
	for key := range g.nodes {
		inDegrees[key] = 0
	}
	for key := range g.nodes {
		for _, dep := range g.edges[key] {
			if _, registered := g.nodes[dep]; registered {
				inDegrees[key]++
			}
		}
	}

	queue := make([]NodeKey, 0, len(g.nodes))
	for key, degree := range inDegrees {
		if degree == 0 {
			queue = append(queue, key)
		}
	}

	result := make([]*Node, 0, len(g.nodes))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, g.nodes[current])

		// Releasing current unblocks the nodes that depend on it.
		for key := range g.nodes {
			for _, dep := range g.edges[key] {
				if dep != current {
					continue
				}
				inDegrees[key]--
				if inDegrees[key] == 0 {
					queue = append(queue, key)
				}
			}
		}
	}

	if len(result) != len(g.nodes) {
		return nil, fmt.Errorf("circular dependency detected: graph contains %d nodes but only %d could be sorted",
			len(g.nodes), len(result))
	}

	return result, nil
}

// DetectCycles checks the graph for cycles and returns a
// CircularDependencyError describing the first one found.
func (g *DependencyGraph) DetectCycles() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[NodeKey]int, len(g.nodes))

	// Depth-first search keeping the active path for error reporting.
	var path []NodeKey

	var visit func(key NodeKey) *CircularDependencyError
	visit = func(key NodeKey) *CircularDependencyError {
		state[key] = visiting
		path = append(path, key)

		for _, dep := range g.edges[key] {
			if _, registered := g.nodes[dep]; !registered {
				continue
			}

			switch state[dep] {
			case visiting:
				// Slice the active path down to the cycle itself.
				start := 0
				for i, k := range path {
					if k == dep {
						start = i
						break
					}
				}
				cycle := make([]NodeKey, len(path)-start)
				copy(cycle, path[start:])
				return &CircularDependencyError{Node: dep, Path: cycle}
			case unvisited:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}

		path = path[:len(path)-1]
		state[key] = done
		return nil
	}

	for key := range g.nodes {
		if state[key] == unvisited {
			if err := visit(key); err != nil {
				return *err
			}
		}
	}

	return nil
}

// GetDependencies returns the direct dependency keys of a service.
func (g *DependencyGraph) GetDependencies(serviceType reflect.Type, key any) []NodeKey {
	g.mu.RLock()
	defer g.mu.RUnlock()

	nodeKey := NodeKey{Type: serviceType, Key: key}
	if node, exists := g.nodes[nodeKey]; exists {
		result := make([]NodeKey, len(node.Dependencies))
		copy(result, node.Dependencies)
		return result
	}

	return nil
}

// GetDependents returns the keys of registered services that depend on the
// given service.
func (g *DependencyGraph) GetDependents(serviceType reflect.Type, key any) []NodeKey {
	g.mu.RLock()
	defer g.mu.RUnlock()

	nodeKey := NodeKey{Type: serviceType, Key: key}
	var result []NodeKey
	for from, tos := range g.edges {
		for _, to := range tos {
			if to == nodeKey {
				result = append(result, from)
				break
			}
		}
	}

	return result
}

// HasNode checks if a node exists in the graph.
func (g *DependencyGraph) HasNode(serviceType reflect.Type, key any) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	_, exists := g.nodes[NodeKey{Type: serviceType, Key: key}]
	return exists
}

// Size returns the number of nodes in the graph.
func (g *DependencyGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return len(g.nodes)
}

// IsAcyclic returns true if the graph has no cycles.
func (g *DependencyGraph) IsAcyclic() bool {
	return g.DetectCycles() == nil
}

// Clear removes all nodes and edges from the graph.
func (g *DependencyGraph) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.nodes = make(map[NodeKey]*Node)
	g.edges = make(map[NodeKey][]NodeKey)
}

// String returns a string representation of the node key.
func (k NodeKey) String() string {
	if k.Key != nil {
		return fmt.Sprintf("%v[%v]", k.Type, k.Key)
	}
	return fmt.Sprintf("%v", k.Type)
}

// String returns a string representation of the node.
func (n *Node) String() string {
	return fmt.Sprintf("Node{%s, deps:%d}", n.Key.String(), len(n.Dependencies))
}
