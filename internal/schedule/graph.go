package schedule

import (
	"slices"

	"github.com/serval-engine/serval/internal/hashid"
)

// Edge is a "must finish before" relation between two tasks.
type Edge struct {
	From string
	To   string
}

type edgeIndex struct {
	from int
	to   int
}

// Graph is the conflict graph derived from a set of declarations.
//
// Nodes are kept in registration order and every edge points forward in
// that order, so the graph is acyclic by construction. A Graph is never
// mutated after BuildGraph returns and is safe for concurrent reads.
type Graph struct {
	nodes  []Declaration
	byName map[string]int

	edges    []edgeIndex
	outgoing [][]int
	incoming [][]int
	depth    []int
}

// BuildGraph derives the conflict graph for decls.
//
// An edge A -> B exists iff A is positioned before B and either one of
// them is a sync point, or they share a resource that at least one of
// them writes. Two readers of the same resource never conflict.
func BuildGraph(decls []Declaration) *Graph {
	nodes := slices.Clone(decls)
	slices.SortStableFunc(nodes, func(a, b Declaration) int { return a.Position - b.Position })

	g := &Graph{
		nodes:    nodes,
		byName:   make(map[string]int, len(nodes)),
		outgoing: make([][]int, len(nodes)),
		incoming: make([][]int, len(nodes)),
		depth:    make([]int, len(nodes)),
	}
	reads := make([]idSet, len(nodes))
	writes := make([]idSet, len(nodes))
	for i, d := range nodes {
		g.byName[d.Name] = i
		reads[i] = toSet(d.Reads)
		writes[i] = toSet(d.Writes)
	}

	for j := range nodes {
		for i := 0; i < j; i++ {
			if !conflicts(nodes[i], nodes[j], reads[i], writes[i], reads[j], writes[j]) {
				continue
			}
			g.edges = append(g.edges, edgeIndex{from: i, to: j})
			g.outgoing[i] = append(g.outgoing[i], j)
			g.incoming[j] = append(g.incoming[j], i)
			if d := g.depth[i] + 1; d > g.depth[j] {
				g.depth[j] = d
			}
		}
	}
	for i := range g.outgoing {
		slices.Sort(g.outgoing[i])
	}
	slices.SortFunc(g.edges, func(a, b edgeIndex) int {
		if a.from != b.from {
			return a.from - b.from
		}
		return a.to - b.to
	})
	return g
}

func conflicts(a, b Declaration, ar, aw, br, bw idSet) bool {
	if a.SyncPoint || b.SyncPoint {
		return true
	}
	for id := range aw {
		if _, ok := br[id]; ok {
			return true
		}
		if _, ok := bw[id]; ok {
			return true
		}
	}
	for id := range ar {
		if _, ok := bw[id]; ok {
			return true
		}
	}
	return false
}

func toSet(ids []hashid.Id) idSet {
	s := make(idSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Len returns the number of tasks.
func (g *Graph) Len() int { return len(g.nodes) }

// Declarations returns the tasks in registration order.
func (g *Graph) Declarations() []Declaration { return slices.Clone(g.nodes) }

// Declaration returns the named task.
func (g *Graph) Declaration(name string) (Declaration, bool) {
	i, ok := g.byName[name]
	if !ok {
		return Declaration{}, false
	}
	return g.nodes[i], true
}

// Order returns task names in registration order. It is always a valid
// topological order of the graph.
func (g *Graph) Order() []string {
	out := make([]string, len(g.nodes))
	for i, d := range g.nodes {
		out[i] = d.Name
	}
	return out
}

// Edges returns every edge, sorted by source then target position.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, Edge{From: g.nodes[e.from].Name, To: g.nodes[e.to].Name})
	}
	return out
}

// HasEdge reports whether from -> to is a direct edge.
func (g *Graph) HasEdge(from, to string) bool {
	i, ok := g.byName[from]
	if !ok {
		return false
	}
	j, ok := g.byName[to]
	if !ok {
		return false
	}
	_, found := slices.BinarySearch(g.outgoing[i], j)
	return found
}

// Predecessors returns the tasks with a direct edge into name.
func (g *Graph) Predecessors(name string) []string {
	i, ok := g.byName[name]
	if !ok {
		return nil
	}
	return g.names(g.incoming[i])
}

// Successors returns the tasks with a direct edge out of name.
func (g *Graph) Successors(name string) []string {
	i, ok := g.byName[name]
	if !ok {
		return nil
	}
	return g.names(g.outgoing[i])
}

// Reachable reports whether a path leads from one task to another.
func (g *Graph) Reachable(from, to string) bool {
	i, ok := g.byName[from]
	if !ok {
		return false
	}
	j, ok := g.byName[to]
	if !ok || j <= i {
		return false
	}
	seen := make([]bool, len(g.nodes))
	stack := []int{i}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, m := range g.outgoing[n] {
			if m == j {
				return true
			}
			// Edges only point forward; nothing past j can lead back to it.
			if m < j && !seen[m] {
				seen[m] = true
				stack = append(stack, m)
			}
		}
	}
	return false
}

// CanRunConcurrently reports whether no path joins a and b in either
// direction, so a dispatch may overlap them.
func (g *Graph) CanRunConcurrently(a, b string) bool {
	if a == b {
		return false
	}
	_, okA := g.byName[a]
	_, okB := g.byName[b]
	if !okA || !okB {
		return false
	}
	return !g.Reachable(a, b) && !g.Reachable(b, a)
}

// Depth returns the length of the longest path ending at name.
func (g *Graph) Depth(name string) (int, bool) {
	i, ok := g.byName[name]
	if !ok {
		return 0, false
	}
	return g.depth[i], true
}

// Levels groups tasks by depth. Tasks in one level never share an edge.
func (g *Graph) Levels() [][]string {
	if len(g.nodes) == 0 {
		return nil
	}
	maxDepth := slices.Max(g.depth)
	out := make([][]string, maxDepth+1)
	for i, d := range g.depth {
		out[d] = append(out[d], g.nodes[i].Name)
	}
	return out
}

func (g *Graph) names(idx []int) []string {
	out := make([]string, len(idx))
	for k, i := range idx {
		out[k] = g.nodes[i].Name
	}
	return out
}
