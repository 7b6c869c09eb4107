// Package normalize maps untrusted federated activity JSON into canonical
// claim values. Normalization is pure: it produces a claim or a
// ValidationError and performs no storage or propagation.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ozodon/fedmarket/internal/model"
)

// Activity type discriminators recognized by the hub. Anything else is
// accepted-and-ignored for forward compatibility with the federation.
const (
	TypeOffer   = "Offer"
	TypeTrust   = "fedmarket:Trust"
	TypeFlag    = "Flag"
	TypeRetract = "fedmarket:Retract"

	originHubKey    = "fedmarket:originHub"
	defaultCurrency = "TON"
)

// Normalize maps a raw activity into exactly one canonical claim.
// Unknown types return (nil, nil): not an error, not a claim.
func Normalize(raw []byte) (model.Claim, error) {
	var activity map[string]any
	if err := json.Unmarshal(raw, &activity); err != nil {
		return nil, model.Invalid("activity", "not a JSON object")
	}

	atype, _ := activity["type"].(string)
	switch atype {
	case TypeOffer:
		return normalizeOffer(activity, raw)
	case TypeTrust:
		return normalizeTrust(activity, raw)
	case TypeFlag:
		return normalizeFlag(activity, raw)
	case TypeRetract:
		return normalizeRetract(activity, raw)
	default:
		return nil, nil
	}
}

func normalizeOffer(activity map[string]any, raw []byte) (model.Claim, error) {
	actor, err := requireActor(activity, "actor")
	if err != nil {
		return nil, err
	}

	obj, _ := activity["object"].(map[string]any)
	if obj == nil {
		return nil, model.Invalid("object", "missing product object")
	}
	if otype, _ := obj["type"].(string); otype != "schema:Product" && otype != "Product" {
		return nil, model.Invalid("object.type", "expected schema:Product")
	}

	id := stringField(obj, "id")
	if id == "" {
		id = stringField(activity, "id")
	}
	if id == "" {
		return nil, model.Invalid("id", "missing offer id")
	}

	title := stringField(obj, "schema:name")
	if title == "" {
		return nil, model.Invalid("object.schema:name", "missing product name")
	}

	offers, _ := obj["schema:offers"].(map[string]any)
	if offers == nil {
		return nil, model.Invalid("object.schema:offers", "missing price block")
	}
	price, err := numericField(offers, "schema:price")
	if err != nil {
		return nil, err
	}
	if price < 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return nil, model.Invalid("object.schema:offers.schema:price", "price must be a finite value >= 0")
	}

	currency := stringField(offers, "schema:priceCurrency")
	if currency == "" {
		currency = defaultCurrency
	}

	return model.Offer{
		ID:          id,
		Actor:       actor,
		Title:       title,
		Description: stringField(obj, "schema:description"),
		Image:       stringField(obj, "schema:image"),
		Price:       price,
		Currency:    currency,
		Tags:        hashtags(activity),
		OriginHub:   stringField(activity, originHubKey),
		Raw:         json.RawMessage(raw),
	}, nil
}

func normalizeTrust(activity map[string]any, raw []byte) (model.Claim, error) {
	source, err := requireActor(activity, "actor")
	if err != nil {
		return nil, err
	}

	obj, _ := activity["object"].(map[string]any)
	if obj == nil {
		return nil, model.Invalid("object", "missing trust object")
	}

	target, ok := obj["target"].(string)
	if !ok || !isActorURI(target) {
		return nil, model.Invalid("object.target", "target must be a well-formed actor URI")
	}

	weight, err := numericField(obj, "weight")
	if err != nil {
		return nil, err
	}
	if weight < 0 || weight > 1 || math.IsNaN(weight) {
		return nil, model.Invalid("object.weight", "weight must be in [0,1]")
	}

	assertedAt := timestamp(obj, "issued")
	if assertedAt.IsZero() {
		assertedAt = timestamp(activity, "published")
	}
	if assertedAt.IsZero() {
		return nil, model.Invalid("object.issued", "missing assertion timestamp")
	}

	id := stringField(activity, "id")
	if id == "" {
		// Trust activities in the wild often omit ids; derive a stable one
		// so re-delivery dedups by claim id.
		id = syntheticID("trust", source, target, assertedAt.UTC().Format(time.RFC3339))
	}

	return model.TrustEdge{
		ID:         id,
		Source:     source,
		Target:     target,
		Weight:     weight,
		AssertedAt: assertedAt,
		Proof:      stringField(obj, "proof"),
		OriginHub:  stringField(activity, originHubKey),
		Raw:        json.RawMessage(raw),
	}, nil
}

func normalizeFlag(activity map[string]any, raw []byte) (model.Claim, error) {
	reporter, err := requireActor(activity, "actor")
	if err != nil {
		return nil, err
	}

	// Flag object is either a bare id string or an object carrying one.
	var target string
	switch obj := activity["object"].(type) {
	case string:
		target = obj
	case map[string]any:
		target = stringField(obj, "id")
	}
	if target == "" {
		return nil, model.Invalid("object", "missing flag target")
	}

	reason := stringField(activity, "content")
	if reason == "" {
		reason = stringField(activity, "reason")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, model.Invalid("content", "missing flag reason")
	}

	assertedAt := timestamp(activity, "published")
	if assertedAt.IsZero() {
		return nil, model.Invalid("published", "missing assertion timestamp")
	}

	id := stringField(activity, "id")
	if id == "" {
		id = syntheticID("flag", reporter, target, assertedAt.UTC().Format(time.RFC3339))
	}

	return model.Flag{
		ID:         id,
		Reporter:   reporter,
		Target:     target,
		Reason:     reason,
		AssertedAt: assertedAt,
		Decision:   model.DecisionPending,
		OriginHub:  stringField(activity, originHubKey),
		Raw:        json.RawMessage(raw),
	}, nil
}

func normalizeRetract(activity map[string]any, raw []byte) (model.Claim, error) {
	actor, err := requireActor(activity, "actor")
	if err != nil {
		return nil, err
	}

	var target string
	switch obj := activity["object"].(type) {
	case string:
		target = obj
	case map[string]any:
		target = stringField(obj, "id")
	}
	if target == "" {
		return nil, model.Invalid("object", "missing retraction target id")
	}

	id := stringField(activity, "id")
	if id == "" {
		id = syntheticID("retract", actor, target)
	}

	return model.Tombstone{
		ID:        id,
		Actor:     actor,
		TargetID:  target,
		OriginHub: stringField(activity, originHubKey),
		Raw:       json.RawMessage(raw),
	}, nil
}

// requireActor extracts a non-empty, well-formed actor URI
func requireActor(activity map[string]any, field string) (string, error) {
	actor, _ := activity[field].(string)
	if actor == "" {
		return "", model.Invalid(field, "missing actor")
	}
	if !isActorURI(actor) {
		return "", model.Invalid(field, "actor must be a well-formed URI")
	}
	return actor, nil
}

func isActorURI(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// numericField accepts JSON numbers and numeric strings; federated
// producers disagree on which to emit.
func numericField(m map[string]any, key string) (float64, error) {
	switch v := m[key].(type) {
	case float64:
		return v, nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, model.Invalid(key, "not a number")
		}
		return f, nil
	default:
		return 0, model.Invalid(key, "missing numeric value")
	}
}

func timestamp(m map[string]any, key string) time.Time {
	s, _ := m[key].(string)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05Z"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// hashtags collects tag names from the activity's Hashtag list,
// stripping the leading '#'.
func hashtags(activity map[string]any) []string {
	list, _ := activity["tag"].([]any)
	var tags []string
	seen := make(map[string]bool)
	for _, item := range list {
		tag, _ := item.(map[string]any)
		if tag == nil {
			continue
		}
		name := strings.TrimPrefix(stringField(tag, "name"), "#")
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		tags = append(tags, name)
	}
	return tags
}

func syntheticID(parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return fmt.Sprintf("urn:fedmarket:%s", hex.EncodeToString(hash[:16]))
}
