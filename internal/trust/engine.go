// Package trust computes bounded-depth, decayed trust scores over the
// web-of-trust graph.
package trust

import (
	"time"

	"github.com/ozodon/fedmarket/internal/cache"
	"github.com/ozodon/fedmarket/internal/graph"
)

// DefaultMaxDepth bounds traversal cost regardless of graph size or cyclicity
const DefaultMaxDepth = 4

// Engine derives trust scores from the graph. Score computation is
// read-only, so any number of traversals may run in parallel.
type Engine struct {
	graph    *graph.Graph
	cache    cache.ScoreCache
	maxDepth int
}

// NewEngine creates a score engine over the given graph. A nil cache
// disables caching; maxDepth <= 0 falls back to the default bound.
func NewEngine(g *graph.Graph, c cache.ScoreCache, maxDepth int) *Engine {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Engine{graph: g, cache: c, maxDepth: maxDepth}
}

// NewDefaultEngine wires a 30s TTL memory cache, suitable for tests and
// one-shot CLI queries.
func NewDefaultEngine(g *graph.Graph) *Engine {
	return NewEngine(g, cache.NewMemoryCache(30*time.Second, time.Minute), DefaultMaxDepth)
}

// Score returns the decayed trust from source to target in [0,1].
//
// Self-trust is maximal by definition. Otherwise the engine runs an
// iterative breadth-first expansion from source up to the depth bound:
// each path contributes the product of its edge weights, and the
// reported score is the maximum contribution over all paths reaching
// target. Max, not sum: many weak independent paths must not inflate
// trust. Relaxation runs at most maxDepth rounds, which guarantees
// termination on cyclic graphs. Unknown actors score 0, not an error.
func (e *Engine) Score(source, target string) float64 {
	if source == target {
		return 1.0
	}

	snap := e.graph.Snapshot()
	key := cache.ScoreKey(source, target, snap.Version)
	if e.cache != nil {
		if v, ok := e.cache.Get(key); ok {
			return v
		}
	}

	score := searchSnapshot(snap, source, target, e.maxDepth)
	if e.cache != nil {
		e.cache.Set(key, score)
	}
	return score
}

// searchSnapshot relaxes the graph level by level. best holds the
// strongest path product known for each reached node; a node re-enters
// the frontier whenever its best improves, so a stronger path found at
// the same depth still propagates to successors. Frontier entries carry
// the score frozen at the end of the round that queued them, which
// keeps every relaxation at round d on a path of at most d+1 edges.
// Each round only re-queues strict improvements and rounds are bounded
// by maxDepth, so cyclic graphs terminate.
func searchSnapshot(snap *graph.Snapshot, source, target string, maxDepth int) float64 {
	best := map[string]float64{source: 1.0}
	frontier := map[string]float64{source: 1.0}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		next := make(map[string]float64)
		for node, through := range frontier {
			for _, edge := range snap.Neighbors(node) {
				cand := through * edge.Weight
				if cand <= best[edge.Target] {
					continue
				}
				best[edge.Target] = cand
				next[edge.Target] = cand
			}
		}
		frontier = next
	}
	return best[target]
}

// MaxDepth reports the configured depth bound
func (e *Engine) MaxDepth() int {
	return e.maxDepth
}
