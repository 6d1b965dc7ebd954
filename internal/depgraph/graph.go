// Package depgraph orders named items by their dependencies. It is used to
// create tables after the tables their foreign keys reference, and to order
// revisions along their down_revision links.
package depgraph

import (
	"fmt"
	"sort"
	"strings"
)

// Node represents a node in the dependency graph
type Node struct {
	ID       string
	SortKey  string // ties between ready nodes are broken by SortKey, then ID
	InDegree int
	Visited  bool
}

// Graph represents a graph of dependencies
type Graph struct {
	nodes map[string]*Node
	edges map[string][]string // from -> to (dependencies)
}

// New creates a new dependency graph
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*Node),
		edges: make(map[string][]string),
	}
}

// AddNode adds a node to the graph. Adding an existing ID is a no-op.
func (g *Graph) AddNode(id, sortKey string) {
	if _, exists := g.nodes[id]; !exists {
		g.nodes[id] = &Node{
			ID:      id,
			SortKey: sortKey,
		}
		g.edges[id] = []string{}
	}
}

// Has reports whether id is a node of the graph
func (g *Graph) Has(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Len returns the number of nodes
func (g *Graph) Len() int {
	return len(g.nodes)
}

// AddEdge adds a dependency edge from 'from' to 'to' (from depends on to).
// This means 'to' is ordered before 'from'. Edges naming unknown nodes and
// self-edges are ignored.
func (g *Graph) AddEdge(from, to string) {
	if from == to {
		return
	}
	if _, exists := g.nodes[from]; !exists {
		return
	}
	if _, exists := g.nodes[to]; !exists {
		return
	}
	for _, existing := range g.edges[from] {
		if existing == to {
			return
		}
	}
	g.edges[from] = append(g.edges[from], to)
}

// Dependencies returns the IDs 'id' depends on
func (g *Graph) Dependencies(id string) []string {
	deps := append([]string(nil), g.edges[id]...)
	sort.Strings(deps)
	return deps
}

// DetectCycles detects cycles in the dependency graph using DFS
func (g *Graph) DetectCycles() ([]string, error) {
	for _, node := range g.nodes {
		node.Visited = false
	}

	// nodes on the current DFS path
	path := make(map[string]bool)
	cyclePath := []string{}

	var dfs func(nodeID string) bool
	dfs = func(nodeID string) bool {
		node := g.nodes[nodeID]
		if node.Visited {
			return false
		}
		if path[nodeID] {
			cyclePath = append(cyclePath, nodeID)
			return true
		}

		path[nodeID] = true
		for _, depID := range g.Dependencies(nodeID) {
			if dfs(depID) {
				cyclePath = append(cyclePath, nodeID)
				return true
			}
		}
		delete(path, nodeID)
		node.Visited = true
		return false
	}

	for _, nodeID := range g.sortedIDs() {
		if g.nodes[nodeID].Visited {
			continue
		}
		if dfs(nodeID) {
			for i, j := 0, len(cyclePath)-1; i < j; i, j = i+1, j-1 {
				cyclePath[i], cyclePath[j] = cyclePath[j], cyclePath[i]
			}
			return cyclePath, fmt.Errorf("circular dependency detected: %s", strings.Join(cyclePath, " -> "))
		}
	}

	return nil, nil
}

// TopologicalSort returns node IDs so that every node comes after the nodes
// it depends on, using Kahn's algorithm
func (g *Graph) TopologicalSort() ([]string, error) {
	if _, err := g.DetectCycles(); err != nil {
		return nil, err
	}

	// edges[from] = [to1, to2] means "from depends on to1 and to2", so the
	// in-degree of a node is the number of things it depends on
	reverseEdges := make(map[string][]string) // to -> from (dependents)
	for from, toList := range g.edges {
		for _, to := range toList {
			reverseEdges[to] = append(reverseEdges[to], from)
		}
	}
	for nodeID := range g.nodes {
		g.nodes[nodeID].InDegree = len(g.edges[nodeID])
	}

	queue := []string{}
	for nodeID, node := range g.nodes {
		if node.InDegree == 0 {
			queue = append(queue, nodeID)
		}
	}
	g.sortQueue(queue)

	sorted := make([]string, 0, len(g.nodes))
	processed := make(map[string]bool)

	for len(queue) > 0 {
		currentID := queue[0]
		queue = queue[1:]

		if processed[currentID] {
			continue
		}
		processed[currentID] = true
		sorted = append(sorted, currentID)

		for _, dependentID := range reverseEdges[currentID] {
			g.nodes[dependentID].InDegree--
			if g.nodes[dependentID].InDegree == 0 && !processed[dependentID] {
				queue = append(queue, dependentID)
			}
		}
		g.sortQueue(queue)
	}

	if len(sorted) < len(g.nodes) {
		var unprocessed []string
		for _, nodeID := range g.sortedIDs() {
			if !processed[nodeID] {
				unprocessed = append(unprocessed, nodeID)
			}
		}
		return nil, fmt.Errorf("not all nodes could be sorted (possible cycle): %s", strings.Join(unprocessed, ", "))
	}

	return sorted, nil
}

func (g *Graph) sortQueue(queue []string) {
	sort.Slice(queue, func(i, j int) bool {
		a, b := g.nodes[queue[i]], g.nodes[queue[j]]
		if a.SortKey != b.SortKey {
			return a.SortKey < b.SortKey
		}
		return a.ID < b.ID
	})
}

func (g *Graph) sortedIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	g.sortQueue(ids)
	return ids
}
