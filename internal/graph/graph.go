// Package graph holds the in-memory trust adjacency view. It is rebuilt
// incrementally from accepted trust edges; a version counter is bumped
// atomically with every structural change so score caches can invalidate.
package graph

import (
	"sync"

	"github.com/ozodon/fedmarket/internal/model"
)

// Edge is one outgoing adjacency entry
type Edge struct {
	Target string
	Weight float64
}

// Graph is a simple directed weighted graph: at most one active weight
// per ordered (source, target) pair.
type Graph struct {
	mu      sync.RWMutex
	adj     map[string]map[string]float64
	version uint64
}

// New returns an empty graph
func New() *Graph {
	return &Graph{adj: make(map[string]map[string]float64)}
}

// Rebuild replaces the adjacency with the given active edges in one
// structural change.
func (g *Graph) Rebuild(edges []model.TrustEdge) {
	adj := make(map[string]map[string]float64, len(edges))
	for _, e := range edges {
		out := adj[e.Source]
		if out == nil {
			out = make(map[string]float64)
			adj[e.Source] = out
		}
		out[e.Target] = e.Weight
	}

	g.mu.Lock()
	g.adj = adj
	g.version++
	g.mu.Unlock()
}

// Apply sets the current weight for the edge's pair. O(1) amortized.
func (g *Graph) Apply(e model.TrustEdge) {
	g.mu.Lock()
	out := g.adj[e.Source]
	if out == nil {
		out = make(map[string]float64)
		g.adj[e.Source] = out
	}
	out[e.Target] = e.Weight
	g.version++
	g.mu.Unlock()
}

// Remove drops the pair's active edge, if present
func (g *Graph) Remove(source, target string) {
	g.mu.Lock()
	if out := g.adj[source]; out != nil {
		if _, ok := out[target]; ok {
			delete(out, target)
			if len(out) == 0 {
				delete(g.adj, source)
			}
			g.version++
		}
	}
	g.mu.Unlock()
}

// Weight returns the current active weight for the pair
func (g *Graph) Weight(source, target string) (float64, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	w, ok := g.adj[source][target]
	return w, ok
}

// Neighbors returns the actor's outgoing edges
func (g *Graph) Neighbors(actor string) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := g.adj[actor]
	if len(out) == 0 {
		return nil
	}
	edges := make([]Edge, 0, len(out))
	for target, w := range out {
		edges = append(edges, Edge{Target: target, Weight: w})
	}
	return edges
}

// Version returns the current structural version
func (g *Graph) Version() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.version
}

// Snapshot is an immutable consistent view of the graph, identified by
// the version observed when it was taken. Traversals run against a
// snapshot so a concurrent edge write never tears a computation.
type Snapshot struct {
	Version uint64
	adj     map[string][]Edge
}

// Snapshot copies the adjacency under the read lock
func (g *Graph) Snapshot() *Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	adj := make(map[string][]Edge, len(g.adj))
	for source, out := range g.adj {
		edges := make([]Edge, 0, len(out))
		for target, w := range out {
			edges = append(edges, Edge{Target: target, Weight: w})
		}
		adj[source] = edges
	}
	return &Snapshot{Version: g.version, adj: adj}
}

// Neighbors returns the actor's outgoing edges within the snapshot
func (s *Snapshot) Neighbors(actor string) []Edge {
	return s.adj[actor]
}
