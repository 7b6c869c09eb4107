// Package pipeline orchestrates ingestion: normalize an inbound claim,
// store it, update the trust graph or moderation state, and hand
// first-seen locally-originated claims to the replication propagator.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ozodon/fedmarket/internal/cache"
	"github.com/ozodon/fedmarket/internal/federation"
	"github.com/ozodon/fedmarket/internal/graph"
	"github.com/ozodon/fedmarket/internal/model"
	"github.com/ozodon/fedmarket/internal/moderation"
	"github.com/ozodon/fedmarket/internal/normalize"
	"github.com/ozodon/fedmarket/internal/rank"
	"github.com/ozodon/fedmarket/internal/store"
	"github.com/ozodon/fedmarket/internal/trust"
	"github.com/ozodon/fedmarket/internal/worker"
)

// IngestStatus summarizes what happened to one inbound claim
type IngestStatus string

const (
	StatusStored    IngestStatus = "stored"    // first-seen, accepted
	StatusDuplicate IngestStatus = "duplicate" // known id, identical content
	StatusIgnored   IngestStatus = "ignored"   // unrecognized activity type
	StatusDiscarded IngestStatus = "discarded" // replication loop, our own claim came back
	StatusRejected  IngestStatus = "rejected"  // validation or conflict failure
)

// IngestResult reports the outcome for one claim
type IngestResult struct {
	Status   IngestStatus       `json:"status"`
	Kind     model.ClaimKind    `json:"kind,omitempty"`
	ID       string             `json:"id,omitempty"`
	Decision model.FlagDecision `json:"decision,omitempty"`
}

// Pipeline wires the hub's components around the ingestion path
type Pipeline struct {
	cfg        *model.Config
	logger     *zap.Logger
	store      *store.Store
	graph      *graph.Graph
	engine     *trust.Engine
	gate       *moderation.Gate
	index      *rank.Index
	registry   *federation.Registry
	propagator *federation.Propagator

	replication sync.WaitGroup
}

// New opens the claim store, rebuilds the trust graph from the active
// edges, seeds the operator's trust anchors, and wires the components.
func New(cfg *model.Config, logger *zap.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	st, err := store.New(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	g := graph.New()
	edges, err := st.ActiveEdges(context.Background())
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("rebuild graph: %w", err)
	}
	g.Rebuild(edges)

	// Operator anchors vouch actors from the public root so anonymous
	// search still benefits from trust weighting. Graph-only: anchors
	// are configuration, not federated claims.
	for _, anchor := range cfg.Trust.Anchors {
		if anchor.Actor == "" || anchor.Weight <= 0 || anchor.Weight > 1 {
			continue
		}
		g.Apply(model.TrustEdge{Source: cfg.Trust.PublicRoot, Target: anchor.Actor, Weight: anchor.Weight})
	}

	scoreCache := cache.NewMemoryCache(cfg.Trust.CacheTTL, 2*cfg.Trust.CacheTTL)
	engine := trust.NewEngine(g, scoreCache, cfg.Trust.MaxDepth)
	registry := federation.NewRegistry(cfg.Replication.Peers)

	p := &Pipeline{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		graph:    g,
		engine:   engine,
		gate:     moderation.NewGate(st, engine, cfg.Moderation.Threshold),
		index:    rank.NewIndex(st, engine, cfg.Rank.Multiplier, cfg.Trust.PublicRoot, cfg.Rank.MaxResults),
		registry: registry,
	}
	p.propagator = federation.NewPropagator(
		cfg.Hub.ID, registry,
		cfg.Replication.Timeout, cfg.Replication.RatePerPeer, cfg.Replication.Burst,
		logger,
	)
	return p, nil
}

// Close waits for in-flight replication and releases the store. Claims
// already stored are durable regardless of replication outcome.
func (p *Pipeline) Close() error {
	p.replication.Wait()
	return p.store.Close()
}

// Ingest processes one raw federated activity. arrivedFrom is the peer
// domain for inbound replication, empty for local ingestion. Errors are
// local to the single claim: a batch of unrelated claims is unaffected.
func (p *Pipeline) Ingest(ctx context.Context, raw []byte, arrivedFrom string) (IngestResult, error) {
	claim, err := normalize.Normalize(raw)
	if err != nil {
		return IngestResult{Status: StatusRejected}, err
	}
	if claim == nil {
		// Unknown activity types are accepted-and-ignored to stay
		// forward compatible with the wider federation.
		return IngestResult{Status: StatusIgnored}, nil
	}

	// Only locally ingested claims take this hub's origin tag. Untagged
	// replication input stays untagged: it is stored, but its origin is
	// unknown, never ours.
	if arrivedFrom == "" {
		claim = withOrigin(claim, p.cfg.Hub.ID)
	}
	result := IngestResult{Kind: claim.Kind(), ID: claim.ClaimID()}

	// Loop prevention: our own claim coming back via replication has
	// completed a full circle and is dropped without re-propagating.
	if arrivedFrom != "" && claim.Origin() == p.cfg.Hub.ID {
		result.Status = StatusDiscarded
		return result, nil
	}

	putRes, err := p.store.Put(ctx, claim)
	if err != nil {
		if errors.Is(err, model.ErrConflict) {
			result.Status = StatusRejected
		}
		return result, err
	}
	if !putRes.Inserted {
		result.Status = StatusDuplicate
		return result, nil
	}
	result.Status = StatusStored

	switch c := claim.(type) {
	case model.TrustEdge:
		if putRes.EdgeActivated {
			p.graph.Apply(c)
		}
	case model.Tombstone:
		if putRes.RetractedEdge != nil {
			p.graph.Remove(putRes.RetractedEdge.Source, putRes.RetractedEdge.Target)
		}
	case model.Flag:
		decision, err := p.gate.Decide(ctx, c)
		if err != nil {
			return result, fmt.Errorf("moderation: %w", err)
		}
		result.Decision = decision
	}

	if p.shouldPropagate(claim, result) {
		// Replication never blocks ingestion and is detached from the
		// request context: a cancelled request must not unstick claims
		// that are already durable.
		p.replication.Add(1)
		go func() {
			defer p.replication.Done()
			p.propagator.Propagate(context.Background(), claim, arrivedFrom)
		}()
	}

	p.logger.Debug("ingested",
		zap.String("id", result.ID),
		zap.String("kind", string(result.Kind)),
		zap.String("status", string(result.Status)))
	return result, nil
}

// shouldPropagate applies the fan-out policy: first-seen claims that
// this hub originated, and for flags only accepted ones, so low-trust
// noise is never amplified across the federation.
func (p *Pipeline) shouldPropagate(claim model.Claim, result IngestResult) bool {
	if result.Status != StatusStored || claim.Origin() != p.cfg.Hub.ID {
		return false
	}
	if claim.Kind() == model.KindFlag {
		return result.Decision == model.DecisionAccepted
	}
	return true
}

// IngestBatch runs many raw activities through the pool. Outcomes carry
// the input index as Ref; per-claim failures never abort the batch.
func (p *Pipeline) IngestBatch(ctx context.Context, activities [][]byte, workers int) []worker.Outcome {
	pool := worker.NewPool(workers)
	pool.Start()
	for i, raw := range activities {
		i, raw := i, raw
		pool.Submit(func(ctx context.Context) worker.Outcome {
			_, err := p.Ingest(ctx, raw, "")
			return worker.Outcome{Ref: fmt.Sprintf("%d", i), Err: err}
		})
	}
	return pool.Wait()
}

// Store exposes the claim store to query surfaces
func (p *Pipeline) Store() *store.Store { return p.store }

// Engine exposes the trust score engine
func (p *Pipeline) Engine() *trust.Engine { return p.engine }

// Index exposes the ranking index
func (p *Pipeline) Index() *rank.Index { return p.index }

// Registry exposes the peer registry
func (p *Pipeline) Registry() *federation.Registry { return p.registry }

// withOrigin tags an untagged claim with the accepting hub's id
func withOrigin(claim model.Claim, hubID string) model.Claim {
	if claim.Origin() != "" {
		return claim
	}
	switch c := claim.(type) {
	case model.Offer:
		c.OriginHub = hubID
		return c
	case model.TrustEdge:
		c.OriginHub = hubID
		return c
	case model.Flag:
		c.OriginHub = hubID
		return c
	case model.Tombstone:
		c.OriginHub = hubID
		return c
	default:
		return claim
	}
}
