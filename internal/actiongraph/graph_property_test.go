package actiongraph

import (
	"testing"

	"pgregory.net/rapid"
)

// TestResolveIsTopologicallyValid generates random DAGs (by only ever
// wiring an edge from a later-named node back to an earlier one, which
// can never introduce a cycle) and checks that every node appears after
// all its prerequisites in the layer ordering Resolve produces.
func TestResolveIsTopologicallyValid(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 12).Draw(t, "n")

		g := New()
		nodes := make([]*Node, n)
		for i := 0; i < n; i++ {
			nodes[i] = g.AddAction(changeAction(string(rune('a' + i))))
		}

		for i := 1; i < n; i++ {
			edgeCount := rapid.IntRange(0, i).Draw(t, "edgeCount")
			prereqs := rapid.Permutation(indexRange(i)).Draw(t, "perm")
			for _, j := range prereqs[:edgeCount] {
				g.AddEdge(nodes[i], nodes[j])
			}
		}

		layers, err := g.Resolve()
		if err != nil {
			t.Fatalf("unexpected cycle in an acyclic-by-construction graph: %v", err)
		}

		layerOf := make(map[NodeID]int)
		for li, layer := range layers {
			for _, node := range layer.Nodes {
				layerOf[node.ID] = li
			}
		}
		if len(layerOf) != n {
			t.Fatalf("resolve dropped nodes: got %d, want %d", len(layerOf), n)
		}

		for i := 1; i < n; i++ {
			for _, predID := range g.Predecessors(nodes[i].ID) {
				if layerOf[predID] >= layerOf[nodes[i].ID] {
					t.Fatalf("prerequisite %s did not precede %s", predID, nodes[i].ID)
				}
			}
		}
	})
}

func indexRange(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
