package toposort

import (
	"slices"
	"sort"
)

// IntGraph is a directed graph over dense integer node IDs.
type IntGraph struct {
	// edges[u] lists v for every edge u -> v, in insertion order.
	edges    [][]int
	inDegree []int
}

// NewIntGraph creates an empty IntGraph.
func NewIntGraph() *IntGraph {
	return &IntGraph{}
}

// Len returns the number of nodes.
func (g *IntGraph) Len() int {
	return len(g.edges)
}

// ensure grows the graph so that id is a valid node.
func (g *IntGraph) ensure(id int) {
	for len(g.edges) <= id {
		g.edges = append(g.edges, nil)
		g.inDegree = append(g.inDegree, 0)
	}
}

// AddEdge adds u -> v. Returns false if the edge already existed.
func (g *IntGraph) AddEdge(u, v int) bool {
	g.ensure(max(u, v))

	if slices.Contains(g.edges[u], v) {
		return false
	}

	g.edges[u] = append(g.edges[u], v)
	g.inDegree[v]++

	return true
}

// TopoSort orders nodes with Kahn's algorithm, always taking the lowest ready ID next.
// The second result is false if the graph has a cycle; the order then holds only the acyclic prefix.
func (g *IntGraph) TopoSort() ([]int, bool) {
	inDegree := slices.Clone(g.inDegree)

	ready := make([]int, 0)

	for id, degree := range inDegree {
		if degree == 0 {
			ready = append(ready, id)
		}
	}

	order := make([]int, 0, len(g.edges))

	for len(ready) > 0 {
		u := ready[0]
		ready = ready[1:]
		order = append(order, u)

		for _, v := range g.edges[u] {
			inDegree[v]--
			if inDegree[v] == 0 {
				insertSorted(&ready, v)
			}
		}
	}

	return order, len(order) == len(g.edges)
}

// FindCycle returns a cycle through start as start, ..., start, or nil if none exists.
func (g *IntGraph) FindCycle(start int) []int {
	if start < 0 || start >= len(g.edges) {
		return nil
	}

	parent := map[int]int{start: -1}
	queue := []int{start}

	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]

		for _, v := range g.edges[u] {
			if v == start {
				cycle := []int{start}
				for cur := u; cur != -1; cur = parent[cur] {
					cycle = append(cycle, cur)
				}

				slices.Reverse(cycle)

				return cycle
			}

			if _, seen := parent[v]; !seen {
				parent[v] = u
				queue = append(queue, v)
			}
		}
	}

	return nil
}

func insertSorted(s *[]int, v int) {
	i := sort.SearchInts(*s, v)
	*s = slices.Insert(*s, i, v)
}
