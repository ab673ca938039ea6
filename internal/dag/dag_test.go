package dag

import (
	"testing"
)

func TestGraph_AddNodeAndEdge(t *testing.T) {
	g := NewGraph()

	g.AddNode("a")
	g.AddNode("b")
	g.AddNode("c")

	if g.NodeCount() != 3 {
		t.Errorf("expected 3 nodes, got %d", g.NodeCount())
	}

	if err := g.AddEdge("a", "b"); err != nil {
		t.Errorf("failed to add edge: %v", err)
	}
	if err := g.AddEdge("b", "c"); err != nil {
		t.Errorf("failed to add edge: %v", err)
	}

	callees := g.Callees("a")
	if len(callees) != 1 || callees[0] != "b" {
		t.Errorf("expected a to call [b], got %v", callees)
	}
}

func TestGraph_AddEdge_InvalidNodes(t *testing.T) {
	g := NewGraph()
	g.AddNode("a")

	if err := g.AddEdge("a", "nonexistent"); err == nil {
		t.Error("expected error for nonexistent callee")
	}
	if err := g.AddEdge("nonexistent", "a"); err == nil {
		t.Error("expected error for nonexistent caller")
	}
}

func TestGraph_AddEdge_SelfLoop(t *testing.T) {
	g := NewGraph()
	g.AddNode("a")

	if err := g.AddEdge("a", "a"); err == nil {
		t.Error("expected error for self-loop")
	}
}

func TestGraph_HasCycle_NoCycle(t *testing.T) {
	g := NewGraph()
	g.AddNode("a")
	g.AddNode("b")
	g.AddNode("c")

	g.AddEdge("a", "b")
	g.AddEdge("b", "c")

	hasCycle, path := g.HasCycle()
	if hasCycle {
		t.Errorf("expected no cycle, but found: %v", path)
	}
}

func TestGraph_HasCycle_WithCycle(t *testing.T) {
	g := NewGraph()
	g.AddNode("a")
	g.AddNode("b")
	g.AddNode("c")

	g.AddEdge("a", "b")
	g.AddEdge("b", "c")
	g.AddEdge("c", "a")

	hasCycle, path := g.HasCycle()
	if !hasCycle {
		t.Fatal("expected a cycle")
	}
	if len(path) < 3 {
		t.Errorf("expected cycle path with at least 3 entries, got %v", path)
	}
	if path[0] != path[len(path)-1] {
		t.Errorf("expected cycle path to start and end at the same node, got %v", path)
	}
}

func TestGraph_TopologicalSort(t *testing.T) {
	g := NewGraph()
	g.AddNode("a")
	g.AddNode("b")
	g.AddNode("c")

	// a calls b, b calls c: callees must sort before callers.
	g.AddEdge("a", "b")
	g.AddEdge("b", "c")

	sorted, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("topological sort failed: %v", err)
	}

	pos := make(map[string]int)
	for i, id := range sorted {
		pos[id] = i
	}
	if pos["c"] > pos["b"] || pos["b"] > pos["a"] {
		t.Errorf("expected callee-first order, got %v", sorted)
	}
}

func TestGraph_TopologicalSort_Cycle(t *testing.T) {
	g := NewGraph()
	g.AddNode("a")
	g.AddNode("b")
	g.AddEdge("a", "b")
	g.AddEdge("b", "a")

	if _, err := g.TopologicalSort(); err == nil {
		t.Error("expected error for cyclic graph")
	}
}
