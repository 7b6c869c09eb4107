package graph

import (
	"testing"
	"time"

	"github.com/ozodon/fedmarket/internal/model"
)

func edge(source, target string, weight float64) model.TrustEdge {
	return model.TrustEdge{
		ID:         "urn:t:" + source + ":" + target,
		Source:     source,
		Target:     target,
		Weight:     weight,
		AssertedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestApplyAndWeight(t *testing.T) {
	g := New()
	g.Apply(edge("a", "b", 0.8))

	w, ok := g.Weight("a", "b")
	if !ok || w != 0.8 {
		t.Fatalf("Weight(a,b) = %v, %v; want 0.8, true", w, ok)
	}
	if _, ok := g.Weight("b", "a"); ok {
		t.Error("edges are directed; reverse pair must be absent")
	}

	// Re-applying the pair replaces the weight, it does not add an edge.
	g.Apply(edge("a", "b", 0.3))
	w, _ = g.Weight("a", "b")
	if w != 0.3 {
		t.Errorf("Weight(a,b) = %v after re-apply, want 0.3", w)
	}
	if n := len(g.Neighbors("a")); n != 1 {
		t.Errorf("Neighbors(a) has %d entries, want 1", n)
	}
}

func TestRemove(t *testing.T) {
	g := New()
	g.Apply(edge("a", "b", 0.8))
	g.Remove("a", "b")

	if _, ok := g.Weight("a", "b"); ok {
		t.Error("edge still present after Remove")
	}

	v := g.Version()
	g.Remove("a", "b") // absent pair
	if g.Version() != v {
		t.Error("removing an absent edge must not bump the version")
	}
}

func TestVersionBumps(t *testing.T) {
	g := New()
	v0 := g.Version()

	g.Apply(edge("a", "b", 0.8))
	v1 := g.Version()
	if v1 <= v0 {
		t.Errorf("version did not advance on Apply: %d -> %d", v0, v1)
	}

	g.Rebuild([]model.TrustEdge{edge("x", "y", 0.5)})
	if g.Version() <= v1 {
		t.Error("version did not advance on Rebuild")
	}
	if _, ok := g.Weight("a", "b"); ok {
		t.Error("Rebuild must replace the adjacency wholesale")
	}
}

func TestSnapshotIsolation(t *testing.T) {
	g := New()
	g.Apply(edge("a", "b", 0.8))

	snap := g.Snapshot()
	g.Apply(edge("a", "c", 0.9))

	if len(snap.Neighbors("a")) != 1 {
		t.Error("snapshot changed after a later write")
	}
	if snap.Version == g.Version() {
		t.Error("snapshot version must identify the state it was taken at")
	}
}
