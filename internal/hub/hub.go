// Package hub exposes the hub-local query surface consumed by the web
// layer: info counters, latest offers, tag stats, seller summaries.
package hub

import (
	"context"
	"fmt"

	"github.com/ozodon/fedmarket/internal/model"
	"github.com/ozodon/fedmarket/internal/store"
)

// Info describes this hub and its collection sizes
type Info struct {
	Name        string `json:"name"`
	ID          string `json:"id"`
	Description string `json:"description"`
	Offers      int    `json:"offers"`
	TrustEdges  int    `json:"trust_links"`
	Flags       int    `json:"flags"`
}

// SellerSummary pairs a seller's offers with their incoming-trust stats
type SellerSummary struct {
	Seller string        `json:"seller"`
	Score  float64       `json:"score"`
	Votes  int           `json:"votes"`
	Offers []model.Offer `json:"offers"`
}

// Service answers hub-local queries over the claim store
type Service struct {
	cfg   *model.Config
	store *store.Store
}

// NewService creates the query service
func NewService(cfg *model.Config, s *store.Store) *Service {
	return &Service{cfg: cfg, store: s}
}

// Info returns hub identity and counters
func (s *Service) Info(ctx context.Context) (Info, error) {
	offers, edges, flags, err := s.store.Counts(ctx)
	if err != nil {
		return Info{}, fmt.Errorf("count claims: %w", err)
	}
	return Info{
		Name:        s.cfg.Hub.Name,
		ID:          s.cfg.Hub.ID,
		Description: s.cfg.Hub.Description,
		Offers:      offers,
		TrustEdges:  edges,
		Flags:       flags,
	}, nil
}

// LatestOffers returns the freshest offers feed
func (s *Service) LatestOffers(ctx context.Context, limit int) ([]model.Offer, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.store.RecentOffers(ctx, limit)
}

// TopTags returns the most used offer tags
func (s *Service) TopTags(ctx context.Context, limit int) ([]store.TagCount, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.TopTags(ctx, limit)
}

// Seller summarizes one actor: incoming-trust average (neutral 0.5 when
// nobody has vouched) plus their listed offers.
func (s *Service) Seller(ctx context.Context, actor string) (SellerSummary, error) {
	score, votes, err := s.store.IncomingTrust(ctx, actor)
	if err != nil {
		return SellerSummary{}, fmt.Errorf("incoming trust: %w", err)
	}
	offers, err := s.store.OffersByActor(ctx, actor, 100)
	if err != nil {
		return SellerSummary{}, fmt.Errorf("seller offers: %w", err)
	}
	return SellerSummary{Seller: actor, Score: score, Votes: votes, Offers: offers}, nil
}
