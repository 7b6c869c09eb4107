package rank

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ozodon/fedmarket/internal/graph"
	"github.com/ozodon/fedmarket/internal/model"
	"github.com/ozodon/fedmarket/internal/store"
	"github.com/ozodon/fedmarket/internal/trust"
)

const (
	publicRoot = "https://hub.example/actors/root"
	trusted    = "https://hub.example/actors/trusted"
	untrusted  = "https://hub.example/actors/untrusted"
)

func newIndex(t *testing.T) (*Index, *store.Store) {
	t.Helper()
	s, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	g := graph.New()
	g.Apply(model.TrustEdge{Source: publicRoot, Target: trusted, Weight: 0.9})
	g.Apply(model.TrustEdge{Source: publicRoot, Target: untrusted, Weight: 0.1})

	return NewIndex(s, trust.NewDefaultEngine(g), 1.5, publicRoot, 20), s
}

func putOffer(t *testing.T, s *store.Store, id, actor, title string, price float64, tags ...string) {
	t.Helper()
	_, err := s.Put(context.Background(), model.Offer{
		ID: id, Actor: actor, Title: title, Price: price, Currency: "TON", Tags: tags,
	})
	require.NoError(t, err)
}

// Equal prices must order by seller trust: a trusted seller's offer ranks
// ahead because price * (1.5 - 0.9) < price * (1.5 - 0.1).
func TestSearchTrustBreaksPriceTie(t *testing.T) {
	x, s := newIndex(t)
	putOffer(t, s, "urn:o:1", untrusted, "Mug", 10)
	putOffer(t, s, "urn:o:2", trusted, "Mug", 10)

	got, err := x.Search(context.Background(), Query{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "urn:o:2", got[0].ID)
	require.InDelta(t, 6.0, got[0].RankScore, 1e-9)
	require.InDelta(t, 14.0, got[1].RankScore, 1e-9)
}

// High trust can offset a higher price in the ordering.
func TestSearchTrustOffsetsPrice(t *testing.T) {
	x, s := newIndex(t)
	putOffer(t, s, "urn:o:1", untrusted, "Bowl", 8)  // 8 * 1.4 = 11.2
	putOffer(t, s, "urn:o:2", trusted, "Bowl", 15)   // 15 * 0.6 = 9.0

	got, err := x.Search(context.Background(), Query{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "urn:o:2", got[0].ID)
}

func TestSearchViewerPerspective(t *testing.T) {
	x, s := newIndex(t)
	putOffer(t, s, "urn:o:1", trusted, "Mug", 10)

	// The anonymous view rides the public root's anchors.
	got, err := x.Search(context.Background(), Query{})
	require.NoError(t, err)
	require.InDelta(t, 0.9, got[0].TrustScore, 1e-9)

	// An explicit viewer with no outgoing edges sees zero trust.
	got, err = x.Search(context.Background(), Query{Viewer: "https://other.example/actors/carol"})
	require.NoError(t, err)
	require.InDelta(t, 0.0, got[0].TrustScore, 1e-9)
	require.InDelta(t, 15.0, got[0].RankScore, 1e-9)
}

func TestSearchFilters(t *testing.T) {
	x, s := newIndex(t)
	putOffer(t, s, "urn:o:1", trusted, "Ceramic mug", 10, "ceramics")
	putOffer(t, s, "urn:o:2", trusted, "Wool scarf", 25, "textile")

	got, err := x.Search(context.Background(), Query{Term: "scarf"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "urn:o:2", got[0].ID)

	got, err = x.Search(context.Background(), Query{Tag: "ceramics"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "urn:o:1", got[0].ID)

	min := 20.0
	got, err = x.Search(context.Background(), Query{MinPrice: &min})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "urn:o:2", got[0].ID)
}

// The limit cuts the ranked list, not the candidate set: a cheap
// low-trust offer (5 * 1.4 = 7.0) must not evict the better-ranked
// expensive one (10 * 0.6 = 6.0) at Limit 1.
func TestSearchLimitAppliesAfterRanking(t *testing.T) {
	x, s := newIndex(t)
	putOffer(t, s, "urn:o:cheap", untrusted, "Mug", 5)
	putOffer(t, s, "urn:o:premium", trusted, "Mug", 10)

	got, err := x.Search(context.Background(), Query{Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "urn:o:premium", got[0].ID)
}

func TestSearchLimitClamped(t *testing.T) {
	s, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	x := NewIndex(s, trust.NewDefaultEngine(graph.New()), 1.5, publicRoot, 3)
	for i := 0; i < 5; i++ {
		putOffer(t, s, "urn:o:"+string(rune('a'+i)), trusted, "Mug", float64(i+1))
	}

	got, err := x.Search(context.Background(), Query{Limit: 100})
	require.NoError(t, err)
	require.Len(t, got, 3, "limit is clamped to the configured maximum")
}

func TestSearchEmptyStore(t *testing.T) {
	x, _ := newIndex(t)
	got, err := x.Search(context.Background(), Query{Term: "anything"})
	require.NoError(t, err)
	require.Empty(t, got)
}
