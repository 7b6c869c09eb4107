// Package moderation decides whether abuse reports are trusted enough to
// act on. A flag's decision is computed once and is terminal.
package moderation

import (
	"context"
	"errors"
	"fmt"

	"github.com/ozodon/fedmarket/internal/model"
	"github.com/ozodon/fedmarket/internal/store"
	"github.com/ozodon/fedmarket/internal/trust"
)

// DefaultThreshold is the minimum reporter trust for a flag to be accepted
const DefaultThreshold = 0.3

// Gate scores the reporter against the flagged party and accepts or
// rejects. Rejected flags stay stored for audit but never reach
// downstream moderation and never replicate.
type Gate struct {
	store     *store.Store
	engine    *trust.Engine
	threshold float64
}

// NewGate creates a moderation gate. A non-positive threshold falls back
// to the default.
func NewGate(s *store.Store, e *trust.Engine, threshold float64) *Gate {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Gate{store: s, engine: e, threshold: threshold}
}

// Decide resolves the flag's target to an actor, scores the reporter
// against it, and persists the terminal decision. Re-delivery of an
// already-decided flag returns the stored decision without re-deciding.
func (g *Gate) Decide(ctx context.Context, flag model.Flag) (model.FlagDecision, error) {
	stored, err := g.store.GetFlag(ctx, flag.ID)
	if err != nil {
		return model.DecisionPending, fmt.Errorf("load flag: %w", err)
	}
	if stored.Decision != model.DecisionPending {
		return stored.Decision, nil
	}

	subject, err := g.resolveSubject(ctx, stored.Target)
	if err != nil {
		return model.DecisionPending, err
	}

	decision := model.DecisionRejected
	if g.engine.Score(stored.Reporter, subject) >= g.threshold {
		decision = model.DecisionAccepted
	}

	if err := g.store.SetFlagDecision(ctx, stored.ID, decision); err != nil {
		return model.DecisionPending, err
	}
	return decision, nil
}

// resolveSubject maps the flag target to the actor being judged: the
// target itself, or the owner when the target is a stored offer id. A
// target that matches nothing is judged as the (unknown) actor it names,
// which scores zero.
func (g *Gate) resolveSubject(ctx context.Context, target string) (string, error) {
	offer, err := g.store.GetOffer(ctx, target)
	if err == nil {
		return offer.Actor, nil
	}
	if errors.Is(err, model.ErrNotFound) {
		return target, nil
	}
	return "", fmt.Errorf("resolve flag target: %w", err)
}

// Threshold reports the configured acceptance threshold
func (g *Gate) Threshold() float64 {
	return g.threshold
}
