package model

import (
	"encoding/json"
	"time"
)

// ClaimKind discriminates the canonical claim types a hub ingests
type ClaimKind string

const (
	KindOffer     ClaimKind = "offer"     // Marketplace product listing
	KindTrustEdge ClaimKind = "trust"     // Directed trust assertion between actors
	KindFlag      ClaimKind = "flag"      // Abuse report against an actor or offer
	KindTombstone ClaimKind = "tombstone" // Retraction of a previously accepted claim
)

// Claim is the closed union over everything the normalizer can produce.
// Implementations are value types; the pipeline owns their lifecycle.
type Claim interface {
	Kind() ClaimKind
	ClaimID() string
	ActorID() string
	Origin() string // hub that first accepted the claim; empty until tagged
	RawActivity() json.RawMessage
}

// Offer represents a marketplace product listing. Immutable once stored;
// re-delivery with the same id is a no-op.
type Offer struct {
	ID          string          `json:"id"`
	Actor       string          `json:"actor"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Image       string          `json:"image,omitempty"`
	Price       float64         `json:"price"`
	Currency    string          `json:"currency"`
	Tags        []string        `json:"tags,omitempty"`
	OriginHub   string          `json:"origin_hub,omitempty"`
	Raw         json.RawMessage `json:"raw,omitempty"`
	ReceivedAt  time.Time       `json:"received_at"`
}

func (o Offer) Kind() ClaimKind              { return KindOffer }
func (o Offer) ClaimID() string              { return o.ID }
func (o Offer) ActorID() string              { return o.Actor }
func (o Offer) Origin() string               { return o.OriginHub }
func (o Offer) RawActivity() json.RawMessage { return o.Raw }

// TrustEdge represents a directed trust assertion. One active weight per
// (source, target) pair; a newer asserted_at supersedes, the superseded
// edge stays in the append log for audit.
type TrustEdge struct {
	ID         string          `json:"id"`
	Source     string          `json:"source"`
	Target     string          `json:"target"`
	Weight     float64         `json:"weight"`
	AssertedAt time.Time       `json:"asserted_at"`
	Proof      string          `json:"proof,omitempty"`
	OriginHub  string          `json:"origin_hub,omitempty"`
	Raw        json.RawMessage `json:"raw,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
}

func (e TrustEdge) Kind() ClaimKind              { return KindTrustEdge }
func (e TrustEdge) ClaimID() string              { return e.ID }
func (e TrustEdge) ActorID() string              { return e.Source }
func (e TrustEdge) Origin() string               { return e.OriginHub }
func (e TrustEdge) RawActivity() json.RawMessage { return e.Raw }

// FlagDecision is the terminal moderation state of a flag
type FlagDecision string

const (
	DecisionPending  FlagDecision = "pending"
	DecisionAccepted FlagDecision = "accepted"
	DecisionRejected FlagDecision = "rejected"
)

// Flag represents an abuse report. Target is either an actor URI or an
// offer id; the moderation gate resolves which.
type Flag struct {
	ID         string          `json:"id"`
	Reporter   string          `json:"reporter"`
	Target     string          `json:"target"`
	Reason     string          `json:"reason"`
	AssertedAt time.Time       `json:"asserted_at"`
	Decision   FlagDecision    `json:"decision"`
	OriginHub  string          `json:"origin_hub,omitempty"`
	Raw        json.RawMessage `json:"raw,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
}

func (f Flag) Kind() ClaimKind              { return KindFlag }
func (f Flag) ClaimID() string              { return f.ID }
func (f Flag) ActorID() string              { return f.Reporter }
func (f Flag) Origin() string               { return f.OriginHub }
func (f Flag) RawActivity() json.RawMessage { return f.Raw }

// Tombstone retracts a previously accepted claim. It propagates like any
// other claim; the retracted id is excluded from queries afterwards.
type Tombstone struct {
	ID         string          `json:"id"`
	Actor      string          `json:"actor"`
	TargetID   string          `json:"target_id"`
	OriginHub  string          `json:"origin_hub,omitempty"`
	Raw        json.RawMessage `json:"raw,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
}

func (t Tombstone) Kind() ClaimKind              { return KindTombstone }
func (t Tombstone) ClaimID() string              { return t.ID }
func (t Tombstone) ActorID() string              { return t.Actor }
func (t Tombstone) Origin() string               { return t.OriginHub }
func (t Tombstone) RawActivity() json.RawMessage { return t.Raw }

// TrustScore is a derived value, cached with a short TTL, never stored durably
type TrustScore struct {
	Source     string    `json:"source"`
	Target     string    `json:"target"`
	Value      float64   `json:"score"`
	ComputedAt time.Time `json:"computed_at"`
}
