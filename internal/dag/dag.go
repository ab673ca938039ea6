// Package dag provides directed acyclic graph operations for the macro call
// graph. It supports cycle detection with path reconstruction and
// topological sorting.
package dag

import (
	"fmt"
	"sort"
)

// Graph represents a directed graph keyed by macro name.
type Graph struct {
	nodes   map[string]bool
	edges   map[string][]string // caller -> callees
	parents map[string][]string // callee -> callers
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:   make(map[string]bool),
		edges:   make(map[string][]string),
		parents: make(map[string][]string),
	}
}

// AddNode adds a node to the graph.
func (g *Graph) AddNode(id string) {
	if !g.nodes[id] {
		g.nodes[id] = true
		g.edges[id] = []string{}
		g.parents[id] = []string{}
	}
}

// AddEdge adds a directed edge from caller to callee. Self-loops are
// reported as errors; longer cycles are left for HasCycle.
func (g *Graph) AddEdge(fromID, toID string) error {
	if !g.nodes[fromID] {
		return fmt.Errorf("node %q does not exist", fromID)
	}
	if !g.nodes[toID] {
		return fmt.Errorf("node %q does not exist", toID)
	}
	if fromID == toID {
		return fmt.Errorf("self-loop detected: %s", fromID)
	}
	if !contains(g.edges[fromID], toID) {
		g.edges[fromID] = append(g.edges[fromID], toID)
	}
	if !contains(g.parents[toID], fromID) {
		g.parents[toID] = append(g.parents[toID], fromID)
	}
	return nil
}

// HasNode returns true if the node exists.
func (g *Graph) HasNode(id string) bool {
	return g.nodes[id]
}

// Callees returns the direct callees of a node.
func (g *Graph) Callees(id string) []string {
	return g.edges[id]
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// HasCycle returns true if the graph contains a cycle, along with the cycle
// path (first node repeated at both ends).
func (g *Graph) HasCycle() (bool, []string) {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	path := make(map[string]string)

	var cyclePath []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		recStack[id] = true

		for _, next := range g.edges[id] {
			if !visited[next] {
				path[next] = id
				if dfs(next) {
					return true
				}
			} else if recStack[next] {
				// Found a cycle, reconstruct the path.
				cyclePath = []string{next}
				for curr := id; curr != next; curr = path[curr] {
					cyclePath = append([]string{curr}, cyclePath...)
				}
				cyclePath = append([]string{next}, cyclePath...)
				return true
			}
		}

		recStack[id] = false
		return false
	}

	// Sort node IDs for deterministic cycle reports.
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if !visited[id] {
			if dfs(id) {
				return true, cyclePath
			}
		}
	}

	return false, nil
}

// TopologicalSort returns node IDs with callees before callers. Returns an
// error if the graph contains a cycle.
func (g *Graph) TopologicalSort() ([]string, error) {
	if hasCycle, cyclePath := g.HasCycle(); hasCycle {
		return nil, fmt.Errorf("cycle detected: %v", cyclePath)
	}

	visited := make(map[string]bool)
	var result []string

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, next := range g.edges[id] {
			visit(next)
		}
		result = append(result, id)
	}

	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		visit(id)
	}

	return result, nil
}

// contains checks if a slice contains a string.
func contains(slice []string, str string) bool {
	for _, s := range slice {
		if s == str {
			return true
		}
	}
	return false
}
