// Package toposort orders named nodes of a directed acyclic graph.
package toposort

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCycle is returned when the graph is not acyclic.
var ErrCycle = errors.New("graph has a cycle")

// Graph is a directed graph over string-named nodes.
// Ties between ready nodes are broken by first-seen order, so sorting is deterministic.
type Graph struct {
	symbols  *SymbolTable
	intGraph *IntGraph
}

// NewGraph creates an empty Graph.
func NewGraph() *Graph {
	return &Graph{
		symbols:  NewSymbolTable(),
		intGraph: NewIntGraph(),
	}
}

// AddNode adds name to the graph. Returns false if it already existed.
func (g *Graph) AddNode(name string) bool {
	if _, exists := g.symbols.Lookup(name); exists {
		return false
	}

	g.intGraph.ensure(g.symbols.Intern(name))

	return true
}

// AddEdge adds from -> to, creating both nodes if needed.
func (g *Graph) AddEdge(from, to string) {
	u := g.symbols.Intern(from)
	v := g.symbols.Intern(to)

	g.intGraph.AddEdge(u, v)
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return g.symbols.Len()
}

// Toposort returns the nodes ordered so that every edge points forward.
func (g *Graph) Toposort() ([]string, bool) {
	ids, ok := g.intGraph.TopoSort()

	return g.resolve(ids), ok
}

// Sort is Toposort returning ErrCycle, naming one offending cycle, on failure.
func (g *Graph) Sort() ([]string, error) {
	ids, ok := g.intGraph.TopoSort()
	if ok {
		return g.resolve(ids), nil
	}

	sorted := make(map[int]bool, len(ids))
	for _, id := range ids {
		sorted[id] = true
	}

	for id := range g.intGraph.Len() {
		if sorted[id] {
			continue
		}

		if cycle := g.FindCycle(g.symbols.Resolve(id)); len(cycle) > 0 {
			return nil, fmt.Errorf("%w: %s", ErrCycle, strings.Join(cycle, " -> "))
		}
	}

	return nil, ErrCycle
}

// FindCycle returns a cycle through seed, closing back on seed, or nil.
func (g *Graph) FindCycle(seed string) []string {
	id, exists := g.symbols.Lookup(seed)
	if !exists {
		return nil
	}

	return g.resolve(g.intGraph.FindCycle(id))
}

func (g *Graph) resolve(ids []int) []string {
	if ids == nil {
		return nil
	}

	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = g.symbols.Resolve(id)
	}

	return out
}
