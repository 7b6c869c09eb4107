package normalize

import (
	"errors"
	"testing"

	"github.com/ozodon/fedmarket/internal/model"
)

const offerActivity = `{
	"type": "Offer",
	"id": "https://hub-a.example/offers/1",
	"actor": "https://hub-a.example/actors/alice",
	"object": {
		"type": "schema:Product",
		"id": "https://hub-a.example/offers/1",
		"schema:name": "Handmade mug",
		"schema:description": "Stoneware, 300ml",
		"schema:image": "https://hub-a.example/media/mug.jpg",
		"schema:offers": {"schema:price": 12.5, "schema:priceCurrency": "EUR"}
	},
	"tag": [
		{"type": "Hashtag", "name": "#ceramics"},
		{"type": "Hashtag", "name": "#handmade"},
		{"type": "Hashtag", "name": "#ceramics"}
	]
}`

func TestNormalizeOffer(t *testing.T) {
	claim, err := Normalize([]byte(offerActivity))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	offer, ok := claim.(model.Offer)
	if !ok {
		t.Fatalf("expected model.Offer, got %T", claim)
	}

	if offer.ID != "https://hub-a.example/offers/1" {
		t.Errorf("ID = %q", offer.ID)
	}
	if offer.Actor != "https://hub-a.example/actors/alice" {
		t.Errorf("Actor = %q", offer.Actor)
	}
	if offer.Title != "Handmade mug" {
		t.Errorf("Title = %q", offer.Title)
	}
	if offer.Price != 12.5 {
		t.Errorf("Price = %v", offer.Price)
	}
	if offer.Currency != "EUR" {
		t.Errorf("Currency = %q", offer.Currency)
	}
	if len(offer.Tags) != 2 || offer.Tags[0] != "ceramics" || offer.Tags[1] != "handmade" {
		t.Errorf("Tags = %v, want deduplicated [ceramics handmade]", offer.Tags)
	}
	if offer.Origin() != "" {
		t.Errorf("Origin = %q, want empty until the pipeline tags it", offer.Origin())
	}
}

func TestNormalizeOfferStringPriceAndDefaultCurrency(t *testing.T) {
	raw := `{
		"type": "Offer",
		"actor": "https://hub-a.example/actors/alice",
		"object": {
			"type": "Product",
			"id": "https://hub-a.example/offers/2",
			"schema:name": "Sticker pack",
			"schema:offers": {"schema:price": "3.25"}
		}
	}`
	claim, err := Normalize([]byte(raw))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	offer := claim.(model.Offer)
	if offer.Price != 3.25 {
		t.Errorf("Price = %v, want 3.25 parsed from string", offer.Price)
	}
	if offer.Currency != "TON" {
		t.Errorf("Currency = %q, want default TON", offer.Currency)
	}
}

func TestNormalizeOfferInvalid(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"missing actor", `{"type":"Offer","object":{"type":"schema:Product","id":"x","schema:name":"n","schema:offers":{"schema:price":1}}}`},
		{"relative actor", `{"type":"Offer","actor":"alice","object":{"type":"schema:Product","id":"x","schema:name":"n","schema:offers":{"schema:price":1}}}`},
		{"missing object", `{"type":"Offer","actor":"https://h.example/a"}`},
		{"wrong object type", `{"type":"Offer","actor":"https://h.example/a","object":{"type":"Note","id":"x","schema:name":"n","schema:offers":{"schema:price":1}}}`},
		{"missing id", `{"type":"Offer","actor":"https://h.example/a","object":{"type":"schema:Product","schema:name":"n","schema:offers":{"schema:price":1}}}`},
		{"missing name", `{"type":"Offer","actor":"https://h.example/a","object":{"type":"schema:Product","id":"x","schema:offers":{"schema:price":1}}}`},
		{"missing price block", `{"type":"Offer","actor":"https://h.example/a","object":{"type":"schema:Product","id":"x","schema:name":"n"}}`},
		{"negative price", `{"type":"Offer","actor":"https://h.example/a","object":{"type":"schema:Product","id":"x","schema:name":"n","schema:offers":{"schema:price":-1}}}`},
		{"non-numeric price", `{"type":"Offer","actor":"https://h.example/a","object":{"type":"schema:Product","id":"x","schema:name":"n","schema:offers":{"schema:price":"cheap"}}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Normalize([]byte(tc.raw))
			var verr *model.ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("Normalize() error = %v, want ValidationError", err)
			}
		})
	}
}

func TestNormalizeTrust(t *testing.T) {
	raw := `{
		"type": "fedmarket:Trust",
		"id": "https://hub-a.example/trust/9",
		"actor": "https://hub-a.example/actors/alice",
		"object": {
			"target": "https://hub-b.example/actors/bob",
			"weight": 0.8,
			"issued": "2026-03-01T10:00:00Z",
			"proof": "https://hub-a.example/proofs/9"
		}
	}`
	claim, err := Normalize([]byte(raw))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	edge, ok := claim.(model.TrustEdge)
	if !ok {
		t.Fatalf("expected model.TrustEdge, got %T", claim)
	}
	if edge.Source != "https://hub-a.example/actors/alice" {
		t.Errorf("Source = %q", edge.Source)
	}
	if edge.Target != "https://hub-b.example/actors/bob" {
		t.Errorf("Target = %q", edge.Target)
	}
	if edge.Weight != 0.8 {
		t.Errorf("Weight = %v", edge.Weight)
	}
	if edge.AssertedAt.IsZero() {
		t.Error("AssertedAt is zero")
	}
}

func TestNormalizeTrustSyntheticIDStable(t *testing.T) {
	raw := `{
		"type": "fedmarket:Trust",
		"actor": "https://hub-a.example/actors/alice",
		"object": {"target": "https://hub-b.example/actors/bob", "weight": 0.5, "issued": "2026-03-01T10:00:00Z"}
	}`
	first, err := Normalize([]byte(raw))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	second, err := Normalize([]byte(raw))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if first.ClaimID() == "" || first.ClaimID() != second.ClaimID() {
		t.Errorf("synthetic ids differ: %q vs %q", first.ClaimID(), second.ClaimID())
	}
}

func TestNormalizeTrustWeightBounds(t *testing.T) {
	for _, weight := range []string{"-0.1", "1.1"} {
		raw := `{
			"type": "fedmarket:Trust",
			"actor": "https://hub-a.example/actors/alice",
			"object": {"target": "https://hub-b.example/actors/bob", "weight": ` + weight + `, "issued": "2026-03-01T10:00:00Z"}
		}`
		var verr *model.ValidationError
		if _, err := Normalize([]byte(raw)); !errors.As(err, &verr) {
			t.Errorf("weight %s: error = %v, want ValidationError", weight, err)
		}
	}
}

func TestNormalizeFlag(t *testing.T) {
	raw := `{
		"type": "Flag",
		"id": "https://hub-a.example/flags/3",
		"actor": "https://hub-a.example/actors/alice",
		"object": "https://hub-b.example/actors/mallory",
		"content": "counterfeit goods",
		"published": "2026-03-02T08:00:00Z"
	}`
	claim, err := Normalize([]byte(raw))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	flag, ok := claim.(model.Flag)
	if !ok {
		t.Fatalf("expected model.Flag, got %T", claim)
	}
	if flag.Reporter != "https://hub-a.example/actors/alice" {
		t.Errorf("Reporter = %q", flag.Reporter)
	}
	if flag.Target != "https://hub-b.example/actors/mallory" {
		t.Errorf("Target = %q", flag.Target)
	}
	if flag.Reason != "counterfeit goods" {
		t.Errorf("Reason = %q", flag.Reason)
	}
	if flag.Decision != model.DecisionPending {
		t.Errorf("Decision = %q, want pending", flag.Decision)
	}
}

func TestNormalizeFlagMissingReason(t *testing.T) {
	raw := `{
		"type": "Flag",
		"actor": "https://hub-a.example/actors/alice",
		"object": "https://hub-b.example/actors/mallory",
		"published": "2026-03-02T08:00:00Z"
	}`
	var verr *model.ValidationError
	if _, err := Normalize([]byte(raw)); !errors.As(err, &verr) {
		t.Errorf("Normalize() error = %v, want ValidationError", err)
	}
}

func TestNormalizeRetract(t *testing.T) {
	raw := `{
		"type": "fedmarket:Retract",
		"actor": "https://hub-a.example/actors/alice",
		"object": {"id": "https://hub-a.example/trust/9"}
	}`
	claim, err := Normalize([]byte(raw))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	tomb, ok := claim.(model.Tombstone)
	if !ok {
		t.Fatalf("expected model.Tombstone, got %T", claim)
	}
	if tomb.TargetID != "https://hub-a.example/trust/9" {
		t.Errorf("TargetID = %q", tomb.TargetID)
	}
	if tomb.ClaimID() == "" {
		t.Error("expected synthetic claim id")
	}
}

func TestNormalizeUnknownType(t *testing.T) {
	claim, err := Normalize([]byte(`{"type": "Like", "actor": "https://h.example/a", "object": "x"}`))
	if err != nil {
		t.Fatalf("Normalize() error = %v, unknown types are not errors", err)
	}
	if claim != nil {
		t.Fatalf("claim = %v, want nil for unknown type", claim)
	}
}

func TestNormalizeMalformedJSON(t *testing.T) {
	var verr *model.ValidationError
	if _, err := Normalize([]byte(`{not json`)); !errors.As(err, &verr) {
		t.Errorf("Normalize() error = %v, want ValidationError", err)
	}
}

func TestNormalizeOriginPassthrough(t *testing.T) {
	raw := `{
		"type": "Flag",
		"actor": "https://hub-a.example/actors/alice",
		"object": "https://hub-b.example/actors/mallory",
		"content": "spam",
		"published": "2026-03-02T08:00:00Z",
		"fedmarket:originHub": "https://hub-a.example"
	}`
	claim, err := Normalize([]byte(raw))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if claim.Origin() != "https://hub-a.example" {
		t.Errorf("Origin = %q, want tag carried through", claim.Origin())
	}
}
