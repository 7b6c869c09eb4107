package federation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ozodon/fedmarket/internal/model"
)

// OriginHubKey tags outbound activities with the hub that first accepted them
const OriginHubKey = "fedmarket:originHub"

// Propagator fans accepted claims out to peer hubs. Deliveries run
// concurrently with a bounded per-peer timeout; one peer's failure never
// blocks delivery to the rest, and no delivery blocks ingestion.
type Propagator struct {
	hubID    string
	registry *Registry
	client   *http.Client
	timeout  time.Duration
	logger   *zap.Logger

	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
}

// NewPropagator creates a propagator for this hub. ratePerPeer bounds
// outbound requests per second per peer domain.
func NewPropagator(hubID string, registry *Registry, timeout time.Duration, ratePerPeer float64, burst int, logger *zap.Logger) *Propagator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if ratePerPeer <= 0 {
		ratePerPeer = 5
	}
	if burst <= 0 {
		burst = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Propagator{
		hubID:    hubID,
		registry: registry,
		client:   &http.Client{Timeout: timeout},
		timeout:  timeout,
		logger:   logger,
		limiters: make(map[string]*rate.Limiter),

		defaultRate:  rate.Limit(ratePerPeer),
		defaultBurst: burst,
	}
}

// Propagate forwards a first-seen claim to every known peer except the
// one it arrived from. Only claims this hub originated are forwarded;
// a claim carrying another hub's origin tag already made its hop.
// Per-peer errors are logged and isolated; the call never returns a
// delivery error.
func (p *Propagator) Propagate(ctx context.Context, claim model.Claim, arrivedFrom string) {
	if claim.Origin() != p.hubID {
		return
	}

	payload, err := outboundPayload(claim, p.hubID)
	if err != nil {
		p.logger.Warn("replication payload", zap.String("claim", claim.ClaimID()), zap.Error(err))
		return
	}

	targets := p.registry.Targets(arrivedFrom)
	if len(targets) == 0 {
		return
	}
	deliveryID := uuid.New().String()

	var g errgroup.Group
	for _, peer := range targets {
		peer := peer
		g.Go(func() error {
			if err := p.deliver(ctx, peer, payload); err != nil {
				p.registry.MarkFailure(peer.Domain)
				p.logger.Warn("replication failed",
					zap.String("delivery", deliveryID),
					zap.String("claim", claim.ClaimID()),
					zap.String("peer", peer.Domain),
					zap.Error(err))
				return nil // isolated: never fail the group
			}
			p.registry.MarkSuccess(peer.Domain)
			p.logger.Debug("replicated",
				zap.String("delivery", deliveryID),
				zap.String("claim", claim.ClaimID()),
				zap.String("peer", peer.Domain))
			return nil
		})
	}
	_ = g.Wait()
}

// deliver posts the activity to one peer inbox within the per-peer budget
func (p *Propagator) deliver(ctx context.Context, peer Peer, payload []byte) error {
	if err := p.limiter(peer.Domain).Wait(ctx); err != nil {
		return &model.PeerError{Peer: peer.Domain, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, peer.Inbox, bytes.NewReader(payload))
	if err != nil {
		return &model.PeerError{Peer: peer.Domain, Err: err}
	}
	req.Header.Set("Content-Type", "application/activity+json")

	resp, err := p.client.Do(req)
	if err != nil {
		return &model.PeerError{Peer: peer.Domain, Err: err}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &model.PeerError{Peer: peer.Domain, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	return nil
}

// limiter returns the per-domain rate limiter, creating it on first use
func (p *Propagator) limiter(domain string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.limiters[domain]; ok {
		return l
	}
	l := rate.NewLimiter(p.defaultRate, p.defaultBurst)
	p.limiters[domain] = l
	return l
}

// outboundPayload re-emits the original activity with the origin tag set,
// so receiving hubs can discard their own claims and stop loops.
func outboundPayload(claim model.Claim, hubID string) ([]byte, error) {
	raw := claim.RawActivity()
	if len(raw) == 0 {
		return nil, fmt.Errorf("claim %s has no raw activity", claim.ClaimID())
	}
	var activity map[string]any
	if err := json.Unmarshal(raw, &activity); err != nil {
		return nil, fmt.Errorf("decode raw activity: %w", err)
	}
	activity[OriginHubKey] = hubID
	return json.Marshal(activity)
}
