// Package graph implements the resource dependency graph: nodes keyed by
// resource key string, edges from referrer to referent, a DFS topological
// sort used by the planner to order effects, and a DSU-backed
// connectivity check. The graph is built once, synchronously, per resolve
// pass.
package graph

import (
	"fmt"
	"sync"
)

// Graph is a synchronous, in-memory dependency graph over resource keys.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]bool
	edges map[string][]string // referrer -> referents
	rev   map[string][]string // referent -> referrers

	dsu *unionFind
	idx map[string]int
}

func New() *Graph {
	return &Graph{
		nodes: make(map[string]bool),
		edges: make(map[string][]string),
		rev:   make(map[string][]string),
		dsu:   newUnionFind(64),
		idx:   make(map[string]int),
	}
}

func (g *Graph) AddNode(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.unsafeAddNode(key)
}

func (g *Graph) unsafeAddNode(key string) int {
	if i, ok := g.idx[key]; ok {
		return i
	}
	i := len(g.idx)
	g.idx[key] = i
	g.nodes[key] = true
	g.dsu.resize(i + 1)
	return i
}

// AddEdge records that `from` depends on `to` (from references to). Both
// ends are auto-vivified if not already present.
func (g *Graph) AddEdge(from, to string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fi := g.unsafeAddNode(from)
	ti := g.unsafeAddNode(to)
	for _, existing := range g.edges[from] {
		if existing == to {
			return
		}
	}
	g.edges[from] = append(g.edges[from], to)
	g.rev[to] = append(g.rev[to], from)
	g.dsu.union(fi, ti)
}

func (g *Graph) Nodes() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.nodes))
	for k := range g.nodes {
		out = append(out, k)
	}
	return out
}

// DependsOn returns the resources `key` directly references.
func (g *Graph) DependsOn(key string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, len(g.edges[key]))
	copy(out, g.edges[key])
	return out
}

// Connected reports whether a and b are in the same dependency island,
// using the DSU for O(1) amortized lookup (used by the interpreter to
// decide whether a mid-plan failure can affect an unrelated resource when
// reporting what was skipped).
func (g *Graph) Connected(a, b string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ai, aok := g.idx[a]
	bi, bok := g.idx[b]
	if !aok || !bok {
		return false
	}
	return g.dsu.connected(ai, bi)
}

// TopoSortReferentsFirst returns `keys` ordered so that every resource
// appears after everything it depends on (referents before referrers),
// the order Creates and Updates execute in. A stable secondary sort by
// key string makes the order deterministic.
func (g *Graph) TopoSortReferentsFirst(keys []string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	subset := make(map[string]bool, len(keys))
	for _, k := range keys {
		subset[k] = true
	}

	sorted := make([]string, 0, len(keys))
	visited := make(map[string]bool)
	tempMark := make(map[string]bool)
	var cycleErr error

	sortedInput := make([]string, len(keys))
	copy(sortedInput, keys)
	stableSort(sortedInput)

	var visit func(k string)
	visit = func(k string) {
		if cycleErr != nil {
			return
		}
		if tempMark[k] {
			cycleErr = fmt.Errorf("dependency cycle detected involving %s", k)
			return
		}
		if visited[k] {
			return
		}
		tempMark[k] = true

		deps := make([]string, len(g.edges[k]))
		copy(deps, g.edges[k])
		stableSort(deps)
		for _, dep := range deps {
			if subset[dep] {
				visit(dep)
				if cycleErr != nil {
					return
				}
			}
		}

		visited[k] = true
		tempMark[k] = false
		sorted = append(sorted, k)
	}

	for _, k := range sortedInput {
		if !visited[k] {
			visit(k)
			if cycleErr != nil {
				return nil, cycleErr
			}
		}
	}
	return sorted, nil
}

// TopoSortReferentsLast is the reverse of TopoSortReferentsFirst: every
// resource appears before everything it depends on. This is the Delete
// ordering (dependents deleted before their dependencies).
func (g *Graph) TopoSortReferentsLast(keys []string) ([]string, error) {
	forward, err := g.TopoSortReferentsFirst(keys)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(forward))
	for i, k := range forward {
		out[len(forward)-1-i] = k
	}
	return out, nil
}

func stableSort(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
