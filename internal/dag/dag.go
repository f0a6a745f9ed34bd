// Package dag provides the dependency graph of the CTEs of one compiled
// statement: cycle detection, ordering and reachability. Nodes keep the
// order they were added in, so every walk is deterministic.
package dag

import (
	"fmt"
	"slices"
)

// Node represents a node in the graph.
type Node struct {
	// ID is the unique identifier (CTE name)
	ID string
	// Data holds arbitrary node data
	Data any
}

// Graph is a directed graph whose edges point from a dependency to its
// dependents.
type Graph struct {
	order   []string
	nodes   map[string]*Node
	edges   map[string][]string // parent -> children (dependents)
	parents map[string][]string // child -> parents (dependencies)
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:   make(map[string]*Node),
		edges:   make(map[string][]string),
		parents: make(map[string][]string),
	}
}

// AddNode adds a node, or replaces the data of an existing one.
func (g *Graph) AddNode(id string, data any) {
	if n, exists := g.nodes[id]; exists {
		n.Data = data
		return
	}
	g.order = append(g.order, id)
	g.nodes[id] = &Node{ID: id, Data: data}
}

// AddEdge records that child depends on parent.
func (g *Graph) AddEdge(parentID, childID string) error {
	if _, exists := g.nodes[parentID]; !exists {
		return fmt.Errorf("parent node %q does not exist", parentID)
	}
	if _, exists := g.nodes[childID]; !exists {
		return fmt.Errorf("child node %q does not exist", childID)
	}
	if parentID == childID {
		return fmt.Errorf("self-loop detected: %s", parentID)
	}

	if !slices.Contains(g.edges[parentID], childID) {
		g.edges[parentID] = append(g.edges[parentID], childID)
	}
	if !slices.Contains(g.parents[childID], parentID) {
		g.parents[childID] = append(g.parents[childID], parentID)
	}
	return nil
}

// Node returns a node by ID.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Parents returns the dependencies of a node in the order they were added.
func (g *Graph) Parents(id string) []string {
	return g.parents[id]
}

// Children returns the dependents of a node.
func (g *Graph) Children(id string) []string {
	return g.edges[id]
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, len(g.order))
	for i, id := range g.order {
		out[i] = g.nodes[id]
	}
	return out
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	return len(g.order)
}

// HasCycle reports whether the graph has a cycle and returns one, starting
// and ending at the same node.
func (g *Graph) HasCycle() (bool, []string) {
	const (
		unvisited = iota
		active
		done
	)
	state := make(map[string]int, len(g.order))
	var stack []string
	var cycle []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		state[id] = active
		stack = append(stack, id)
		for _, child := range g.edges[id] {
			switch state[child] {
			case active:
				start := slices.Index(stack, child)
				cycle = append(slices.Clone(stack[start:]), child)
				return true
			case unvisited:
				if dfs(child) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
		return false
	}

	for _, id := range g.order {
		if state[id] == unvisited && dfs(id) {
			return true, cycle
		}
	}
	return false, nil
}

// TopologicalSort returns the nodes with every dependency before its
// dependents. Among independent nodes insertion order is kept.
func (g *Graph) TopologicalSort() ([]*Node, error) {
	if hasCycle, path := g.HasCycle(); hasCycle {
		return nil, fmt.Errorf("cycle detected: %v", path)
	}

	visited := make(map[string]bool, len(g.order))
	result := make([]*Node, 0, len(g.order))
	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, p := range g.parents[id] {
			visit(p)
		}
		result = append(result, g.nodes[id])
	}
	for _, id := range g.order {
		visit(id)
	}
	return result, nil
}

// Upstream returns every node id depends on, directly or not, in insertion
// order.
func (g *Graph) Upstream(id string) []string {
	seen := make(map[string]bool)
	var mark func(string)
	mark = func(n string) {
		for _, p := range g.parents[n] {
			if !seen[p] {
				seen[p] = true
				mark(p)
			}
		}
	}
	mark(id)

	out := make([]string, 0, len(seen))
	for _, n := range g.order {
		if seen[n] {
			out = append(out, n)
		}
	}
	return out
}

// Leaves returns the nodes nothing depends on, in insertion order.
func (g *Graph) Leaves() []string {
	var leaves []string
	for _, id := range g.order {
		if len(g.edges[id]) == 0 {
			leaves = append(leaves, id)
		}
	}
	return leaves
}
