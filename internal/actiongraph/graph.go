package actiongraph

import (
	"maps"
	"slices"

	"github.com/sourcepm/sourcepm/internal/pkgset"
)

// NodeID uniquely identifies a node by the package name it acts on. A
// package has at most one action per apply, so the name alone is a valid
// key.
type NodeID string

// Node is a single action plus its identity in the graph.
type Node struct {
	ID     NodeID
	Action Action
}

// Layer is a set of nodes with no dependency edges between them; nodes
// within a layer may be executed in any order, including concurrently.
type Layer struct {
	Nodes []*Node
}

// Graph is the DAG of package Actions produced by the solver. Edges point
// from a prerequisite action to the action that depends on it.
type Graph struct {
	nodes    map[NodeID]*Node
	edges    map[NodeID]map[NodeID]struct{} // node -> set of prerequisites
	inDegree map[NodeID]int
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{
		nodes:    make(map[NodeID]*Node),
		edges:    make(map[NodeID]map[NodeID]struct{}),
		inDegree: make(map[NodeID]int),
	}
}

// AddAction registers an action as a node, keyed by the package name it
// targets. Returns the created (or pre-existing) node.
func (g *Graph) AddAction(a Action) *Node {
	id := NodeID(a.Package().Name)
	if n, ok := g.nodes[id]; ok {
		return n
	}
	n := &Node{ID: id, Action: a}
	g.nodes[id] = n
	g.inDegree[id] = 0
	return n
}

// AddEdge records that `dependent` requires `prerequisite` to complete
// first. Both nodes must already have been added via AddAction.
func (g *Graph) AddEdge(dependent, prerequisite *Node) {
	if dependent == nil || prerequisite == nil {
		panic("actiongraph: AddEdge called with nil node")
	}
	if g.edges[dependent.ID] == nil {
		g.edges[dependent.ID] = make(map[NodeID]struct{})
	}
	if _, exists := g.edges[dependent.ID][prerequisite.ID]; !exists {
		g.edges[dependent.ID][prerequisite.ID] = struct{}{}
		g.inDegree[dependent.ID]++
	}
}

// IsEmpty reports whether the graph has no nodes; an empty solution means
// there is nothing to do.
func (g *Graph) IsEmpty() bool {
	return len(g.nodes) == 0
}

// Packages returns every package named across all nodes, used to compute
// preview statistics and to compare against the requested names for
// confirmation-skip.
func (g *Graph) Packages() []pkgset.Package {
	pkgs := make([]pkgset.Package, 0, len(g.nodes))
	for _, n := range g.nodes {
		pkgs = append(pkgs, n.Action.Package())
	}
	return pkgs
}

type nodeColor int

const (
	white nodeColor = iota
	gray
	black
)

// detectCycle runs a three-color DFS and returns a cycle path if one
// exists.
func (g *Graph) detectCycle() []NodeID {
	color := make(map[NodeID]nodeColor, len(g.nodes))
	parent := make(map[NodeID]NodeID, len(g.nodes))
	var cycle []NodeID

	var dfs func(node NodeID) bool
	dfs = func(node NodeID) bool {
		color[node] = gray
		for dep := range g.edges[node] {
			if color[dep] == gray {
				cycle = []NodeID{dep}
				for curr := node; curr != dep; curr = parent[curr] {
					cycle = append(cycle, curr)
				}
				cycle = append(cycle, dep)
				slices.Reverse(cycle)
				return true
			}
			if color[dep] == white {
				parent[dep] = node
				if dfs(dep) {
					return true
				}
			}
		}
		color[node] = black
		return false
	}

	for id := range g.nodes {
		if color[id] == white {
			if dfs(id) {
				return cycle
			}
		}
	}
	return nil
}

// Resolve returns the graph's nodes grouped into topologically sorted
// layers using Kahn's algorithm: each layer's nodes have had all their
// prerequisites resolved by the time the layer starts. Within a layer,
// nodes are sorted by package name for deterministic output.
func (g *Graph) Resolve() ([]Layer, error) {
	if cycle := g.detectCycle(); cycle != nil {
		return nil, &CycleError{Cycle: cycle}
	}

	inDegree := make(map[NodeID]int, len(g.inDegree))
	maps.Copy(inDegree, g.inDegree)

	dependents := make(map[NodeID][]NodeID, len(g.nodes))
	for dependent, prereqs := range g.edges {
		for prereq := range prereqs {
			dependents[prereq] = append(dependents[prereq], dependent)
		}
	}

	var layers []Layer
	queue := make([]NodeID, 0, len(g.nodes))
	for id, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, id)
		}
	}
	slices.Sort(queue)

	for len(queue) > 0 {
		layer := Layer{Nodes: make([]*Node, 0, len(queue))}
		var next []NodeID

		for _, id := range queue {
			layer.Nodes = append(layer.Nodes, g.nodes[id])
			for _, dependent := range dependents[id] {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}

		slices.SortFunc(layer.Nodes, func(a, b *Node) int {
			switch {
			case a.ID < b.ID:
				return -1
			case a.ID > b.ID:
				return 1
			default:
				return 0
			}
		})

		layers = append(layers, layer)
		slices.Sort(next)
		queue = next
	}

	return layers, nil
}

// Predecessors returns the direct prerequisite node IDs of a node.
func (g *Graph) Predecessors(id NodeID) []NodeID {
	prereqs := g.edges[id]
	if len(prereqs) == 0 {
		return nil
	}
	out := make([]NodeID, 0, len(prereqs))
	for p := range prereqs {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// Descendants returns every node reachable by following dependent edges
// forward from id (i.e. nodes that transitively require id), used to
// compute the cancellation closure.
func (g *Graph) Descendants(id NodeID) []NodeID {
	dependents := make(map[NodeID][]NodeID, len(g.nodes))
	for dependent, prereqs := range g.edges {
		for prereq := range prereqs {
			dependents[prereq] = append(dependents[prereq], dependent)
		}
	}

	seen := make(map[NodeID]bool)
	var walk func(NodeID)
	walk = func(cur NodeID) {
		for _, d := range dependents[cur] {
			if !seen[d] {
				seen[d] = true
				walk(d)
			}
		}
	}
	walk(id)

	out := make([]NodeID, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	slices.Sort(out)
	return out
}

// Node looks up a node by ID.
func (g *Graph) Node(id NodeID) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}
