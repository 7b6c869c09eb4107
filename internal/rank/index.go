// Package rank derives the trust-weighted, sortable view over offers
// used by search.
package rank

import (
	"context"
	"fmt"
	"sort"

	"github.com/ozodon/fedmarket/internal/model"
	"github.com/ozodon/fedmarket/internal/store"
	"github.com/ozodon/fedmarket/internal/trust"
)

// DefaultMultiplier is the constant in rank_score = price * (multiplier - trust)
const DefaultMultiplier = 1.5

// Query holds search filters. A zero Viewer means anonymous search: trust
// is evaluated from the hub's public root actor.
type Query struct {
	Term     string
	Tag      string
	MinPrice *float64
	MaxPrice *float64
	Limit    int
	Viewer   string
}

// RankedOffer pairs an offer with its computed ordering scores
type RankedOffer struct {
	model.Offer
	TrustScore float64 `json:"trust_score"`
	RankScore  float64 `json:"rank_score"`
}

// Index ranks stored offers by a composite of price and seller trust
type Index struct {
	store      *store.Store
	engine     *trust.Engine
	multiplier float64
	publicRoot string
	maxResults int
}

// NewIndex creates a ranking index. publicRoot is the actor representing
// the hub's declared trust anchors for anonymous viewers.
func NewIndex(s *store.Store, e *trust.Engine, multiplier float64, publicRoot string, maxResults int) *Index {
	if multiplier <= 0 {
		multiplier = DefaultMultiplier
	}
	if maxResults <= 0 {
		maxResults = 20
	}
	return &Index{store: s, engine: e, multiplier: multiplier, publicRoot: publicRoot, maxResults: maxResults}
}

// Search filters offers and orders them by ascending rank score:
// price * (multiplier - score(viewer, seller)). Higher trust can offset
// price in the ordering; ties break freshest first.
func (x *Index) Search(ctx context.Context, q Query) ([]RankedOffer, error) {
	limit := q.Limit
	if limit <= 0 || limit > x.maxResults {
		limit = x.maxResults
	}
	viewer := q.Viewer
	if viewer == "" {
		viewer = x.publicRoot
	}

	// Rank over every filter match; truncating earlier would let a cheap
	// low-trust offer evict a better-ranked expensive one.
	offers, err := x.store.MatchOffers(ctx, q.Term, q.Tag, q.MinPrice, q.MaxPrice, 0)
	if err != nil {
		return nil, fmt.Errorf("match offers: %w", err)
	}

	// One seller often lists several offers; score each actor once.
	scores := make(map[string]float64)
	ranked := make([]RankedOffer, 0, len(offers))
	for _, o := range offers {
		score, ok := scores[o.Actor]
		if !ok {
			score = x.engine.Score(viewer, o.Actor)
			scores[o.Actor] = score
		}
		ranked = append(ranked, RankedOffer{
			Offer:      o,
			TrustScore: score,
			RankScore:  o.Price * (x.multiplier - score),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].RankScore != ranked[j].RankScore {
			return ranked[i].RankScore < ranked[j].RankScore
		}
		return ranked[i].ReceivedAt.After(ranked[j].ReceivedAt)
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}
