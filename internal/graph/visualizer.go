package graph

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// Visualizer renders the dependency graph for debugging.
type Visualizer struct {
	graph *DependencyGraph
}

// NewVisualizer creates a new graph visualizer.
func NewVisualizer(graph *DependencyGraph) *Visualizer {
	return &Visualizer{graph: graph}
}

// WriteDOT writes the graph in Graphviz DOT format.
func (v *Visualizer) WriteDOT(w io.Writer) error {
	v.graph.mu.RLock()
	defer v.graph.mu.RUnlock()

	if _, err := fmt.Fprintln(w, "digraph dependencies {"); err != nil {
		return err
	}
	fmt.Fprintln(w, "  rankdir=LR;")
	fmt.Fprintln(w, "  node [shape=box];")

	keys := v.sortedKeys()

	nodeIDs := make(map[NodeKey]string, len(keys))
	for i, key := range keys {
		nodeID := fmt.Sprintf("n%d", i)
		nodeIDs[key] = nodeID
		fmt.Fprintf(w, "  %s [label=%q];\n", nodeID, v.formatNodeLabel(key))
	}

	for _, from := range keys {
		for _, to := range v.graph.edges[from] {
			toID, registered := nodeIDs[to]
			if !registered {
				continue
			}
			fmt.Fprintf(w, "  %s -> %s;\n", nodeIDs[from], toID)
		}
	}

	_, err := fmt.Fprintln(w, "}")
	return err
}

// WriteAdjacencyList writes the graph as a sorted adjacency list.
func (v *Visualizer) WriteAdjacencyList(w io.Writer) error {
	v.graph.mu.RLock()
	defer v.graph.mu.RUnlock()

	for _, from := range v.sortedKeys() {
		tos := v.graph.edges[from]
		toStrs := make([]string, len(tos))
		for i, to := range tos {
			toStrs[i] = to.String()
		}

		if _, err := fmt.Fprintf(w, "%s -> [%s]\n", from.String(), strings.Join(toStrs, ", ")); err != nil {
			return err
		}
	}

	return nil
}

// sortedKeys returns node keys in a stable order for deterministic output.
// Callers hold the graph lock.
func (v *Visualizer) sortedKeys() []NodeKey {
	keys := make([]NodeKey, 0, len(v.graph.nodes))
	for key := range v.graph.nodes {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
	return keys
}

// formatNodeLabel shortens the type string for readability.
func (v *Visualizer) formatNodeLabel(key NodeKey) string {
	typeStr := fmt.Sprintf("%v", key.Type)
	if idx := strings.LastIndex(typeStr, "."); idx >= 0 {
		prefix := ""
		if strings.HasPrefix(typeStr, "*") {
			prefix = "*"
		}
		typeStr = prefix + typeStr[idx+1:]
	}

	if key.Key != nil {
		return fmt.Sprintf("%s [%v]", typeStr, key.Key)
	}
	return typeStr
}
