package moderation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ozodon/fedmarket/internal/graph"
	"github.com/ozodon/fedmarket/internal/model"
	"github.com/ozodon/fedmarket/internal/store"
	"github.com/ozodon/fedmarket/internal/trust"
)

const (
	reporter = "https://hub-a.example/actors/alice"
	mallory  = "https://hub-b.example/actors/mallory"
)

func newGate(t *testing.T, reporterTrust float64) (*Gate, *store.Store, *graph.Graph) {
	t.Helper()
	s, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	g := graph.New()
	if reporterTrust > 0 {
		g.Apply(model.TrustEdge{Source: reporter, Target: mallory, Weight: reporterTrust})
	}
	return NewGate(s, trust.NewDefaultEngine(g), 0.3), s, g
}

func putFlag(t *testing.T, s *store.Store, target string) model.Flag {
	t.Helper()
	flag := model.Flag{
		ID:         "urn:f:1",
		Reporter:   reporter,
		Target:     target,
		Reason:     "counterfeit goods",
		AssertedAt: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
		Decision:   model.DecisionPending,
	}
	_, err := s.Put(context.Background(), flag)
	require.NoError(t, err)
	return flag
}

func TestDecideAcceptsTrustedReporter(t *testing.T) {
	gate, s, _ := newGate(t, 0.5)
	flag := putFlag(t, s, mallory)

	decision, err := gate.Decide(context.Background(), flag)
	require.NoError(t, err)
	require.Equal(t, model.DecisionAccepted, decision)

	stored, err := s.GetFlag(context.Background(), flag.ID)
	require.NoError(t, err)
	require.Equal(t, model.DecisionAccepted, stored.Decision)
}

func TestDecideRejectsUntrustedReporter(t *testing.T) {
	gate, s, _ := newGate(t, 0.2)
	flag := putFlag(t, s, mallory)

	decision, err := gate.Decide(context.Background(), flag)
	require.NoError(t, err)
	require.Equal(t, model.DecisionRejected, decision)
}

func TestDecideThresholdIsInclusive(t *testing.T) {
	gate, s, _ := newGate(t, 0.3)
	flag := putFlag(t, s, mallory)

	decision, err := gate.Decide(context.Background(), flag)
	require.NoError(t, err)
	require.Equal(t, model.DecisionAccepted, decision)
}

func TestDecideResolvesOfferToSeller(t *testing.T) {
	gate, s, _ := newGate(t, 0.5)

	offer := model.Offer{ID: "urn:o:9", Actor: mallory, Title: "Fake watch", Price: 50, Currency: "TON"}
	_, err := s.Put(context.Background(), offer)
	require.NoError(t, err)

	flag := putFlag(t, s, "urn:o:9")
	decision, err := gate.Decide(context.Background(), flag)
	require.NoError(t, err)
	require.Equal(t, model.DecisionAccepted, decision, "reporter trusts the offer's seller above threshold")
}

func TestDecideUnknownTargetScoresZero(t *testing.T) {
	gate, s, _ := newGate(t, 0.5)
	flag := putFlag(t, s, "https://nowhere.example/actors/ghost")

	decision, err := gate.Decide(context.Background(), flag)
	require.NoError(t, err)
	require.Equal(t, model.DecisionRejected, decision)
}

func TestDecideIsTerminal(t *testing.T) {
	gate, s, g := newGate(t, 0.5)
	flag := putFlag(t, s, mallory)

	decision, err := gate.Decide(context.Background(), flag)
	require.NoError(t, err)
	require.Equal(t, model.DecisionAccepted, decision)

	// Even if the reporter's standing collapses, the stored decision holds.
	g.Remove(reporter, mallory)
	decision, err = gate.Decide(context.Background(), flag)
	require.NoError(t, err)
	require.Equal(t, model.DecisionAccepted, decision)
}

func TestDecideUnknownFlag(t *testing.T) {
	gate, _, _ := newGate(t, 0.5)
	_, err := gate.Decide(context.Background(), model.Flag{ID: "urn:f:missing"})
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestThresholdFallback(t *testing.T) {
	gate := NewGate(nil, nil, 0)
	require.Equal(t, DefaultThreshold, gate.Threshold())
}
