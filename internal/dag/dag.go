// SPDX-License-Identifier: MPL-2.0

// Package dag provides the dependency graph used to validate profiles and to
// order package builds. Edges point from a prerequisite to the package that
// needs it, so a topological order is a valid build order.
package dag

import (
	"fmt"
	"slices"
	"strings"
)

type (
	// CycleError indicates that the graph contains a cycle. Cycle lists one
	// closed path, with the first node repeated at the end.
	CycleError struct {
		Cycle []string
	}

	// Graph is a directed graph keyed by package name.
	// An edge from A to B means A must be built before B.
	Graph struct {
		// out maps a node to the nodes that depend on it.
		out map[string][]string
		// in maps a node to its direct prerequisites.
		in map[string][]string
		// nodes keeps insertion order so every traversal is deterministic.
		nodes []string
		index map[string]int
	}
)

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Cycle, " -> "))
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{
		out:   make(map[string][]string),
		in:    make(map[string][]string),
		index: make(map[string]int),
	}
}

// AddNode adds a node to the graph. Adding an existing node is a no-op.
func (g *Graph) AddNode(name string) {
	if _, ok := g.index[name]; ok {
		return
	}
	g.index[name] = len(g.nodes)
	g.nodes = append(g.nodes, name)
}

// AddEdge records that "before" must be built before "after".
// Both nodes are added implicitly.
func (g *Graph) AddEdge(before, after string) {
	g.AddNode(before)
	g.AddNode(after)
	g.out[before] = append(g.out[before], after)
	g.in[after] = append(g.in[after], before)
}

// Has reports whether name is a node of the graph.
func (g *Graph) Has(name string) bool {
	_, ok := g.index[name]
	return ok
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []string {
	return slices.Clone(g.nodes)
}

// Prerequisites returns the direct prerequisites of name in insertion order.
func (g *Graph) Prerequisites(name string) []string {
	return g.sorted(g.in[name])
}

// TopologicalSort returns a build order using Kahn's algorithm.
// Among nodes whose prerequisites are satisfied, earlier-inserted nodes come
// first. Returns *CycleError if the graph contains a cycle.
func (g *Graph) TopologicalSort() ([]string, error) {
	if len(g.nodes) == 0 {
		return nil, nil
	}

	remaining := make(map[string]int, len(g.nodes))
	for _, node := range g.nodes {
		remaining[node] = len(g.in[node])
	}

	var ready []string
	for _, node := range g.nodes {
		if remaining[node] == 0 {
			ready = append(ready, node)
		}
	}

	order := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		node := ready[0]
		ready = ready[1:]
		order = append(order, node)

		var released []string
		for _, next := range g.out[node] {
			remaining[next]--
			if remaining[next] == 0 {
				released = append(released, next)
			}
		}
		// Keep the ready queue in insertion order, not discovery order.
		ready = g.sorted(append(ready, released...))
	}

	if len(order) != len(g.nodes) {
		return nil, &CycleError{Cycle: g.findCycle(remaining)}
	}
	return order, nil
}

// Closure returns name and every transitive prerequisite of it, in
// topological order. The graph must be acyclic.
func (g *Graph) Closure(name string) ([]string, error) {
	if !g.Has(name) {
		return nil, fmt.Errorf("unknown node %q", name)
	}
	order, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}

	want := map[string]bool{name: true}
	stack := []string{name}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, dep := range g.in[node] {
			if !want[dep] {
				want[dep] = true
				stack = append(stack, dep)
			}
		}
	}

	result := make([]string, 0, len(want))
	for _, node := range order {
		if want[node] {
			result = append(result, node)
		}
	}
	return result, nil
}

// findCycle walks prerequisite edges among the nodes Kahn could not release
// until it revisits one, and returns that closed path.
func (g *Graph) findCycle(remaining map[string]int) []string {
	var start string
	for _, node := range g.nodes {
		if remaining[node] > 0 {
			start = node
			break
		}
	}

	seen := make(map[string]int)
	var path []string
	node := start
	for {
		if at, ok := seen[node]; ok {
			cycle := slices.Clone(path[at:])
			slices.Reverse(cycle)
			return append(cycle, cycle[0])
		}
		seen[node] = len(path)
		path = append(path, node)

		// Every stuck node has at least one stuck prerequisite.
		for _, dep := range g.sorted(g.in[node]) {
			if remaining[dep] > 0 {
				node = dep
				break
			}
		}
	}
}

func (g *Graph) sorted(names []string) []string {
	out := slices.Clone(names)
	slices.SortFunc(out, func(a, b string) int { return g.index[a] - g.index[b] })
	return slices.Compact(out)
}
