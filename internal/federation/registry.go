// Package federation forwards accepted claims to peer hubs: best-effort,
// eventually-consistent fan-out with de-duplication and loop prevention.
package federation

import (
	"sync"
	"time"

	"github.com/ozodon/fedmarket/internal/model"
)

// PeerStatus tracks delivery health for a peer
type PeerStatus int

const (
	PeerAlive PeerStatus = iota
	PeerSuspected
)

// suspectAfter is the consecutive-failure count before a peer is suspected
const suspectAfter = 3

// Peer is one replication target
type Peer struct {
	Domain   string
	Inbox    string
	Status   PeerStatus
	Failures int
	LastSeen time.Time
}

// Registry holds the known peer hub endpoints. Suspected peers stay in
// the registry and keep receiving deliveries; the status only informs
// logging and hub info.
type Registry struct {
	mu    sync.RWMutex
	peers map[string]*Peer
}

// NewRegistry builds a registry from configured peers; inactive entries
// are ignored.
func NewRegistry(peers []model.PeerConfig) *Registry {
	r := &Registry{peers: make(map[string]*Peer, len(peers))}
	for _, p := range peers {
		if !p.Active || p.Domain == "" {
			continue
		}
		r.peers[p.Domain] = &Peer{Domain: p.Domain, Inbox: p.Inbox}
	}
	return r
}

// Add registers a peer endpoint at runtime
func (r *Registry) Add(domain, inbox string) {
	r.mu.Lock()
	r.peers[domain] = &Peer{Domain: domain, Inbox: inbox}
	r.mu.Unlock()
}

// Remove drops a peer from the registry
func (r *Registry) Remove(domain string) {
	r.mu.Lock()
	delete(r.peers, domain)
	r.mu.Unlock()
}

// Targets returns every peer except the excluded domain (the peer a
// claim arrived from is never sent that claim back).
func (r *Registry) Targets(exclude string) []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Peer, 0, len(r.peers))
	for domain, p := range r.peers {
		if domain == exclude {
			continue
		}
		out = append(out, *p)
	}
	return out
}

// All returns every known peer
func (r *Registry) All() []Peer {
	return r.Targets("")
}

// MarkSuccess resets a peer's failure tracking
func (r *Registry) MarkSuccess(domain string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.peers[domain]; ok {
		p.Failures = 0
		p.Status = PeerAlive
		p.LastSeen = time.Now()
	}
}

// MarkFailure counts a delivery failure; repeated failures suspect the peer
func (r *Registry) MarkFailure(domain string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.peers[domain]; ok {
		p.Failures++
		if p.Failures >= suspectAfter {
			p.Status = PeerSuspected
		}
	}
}
