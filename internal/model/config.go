package model

import "time"

// Config is the full hub configuration. Values come from defaults, the
// YAML config file, FEDMARKET_* environment variables, and CLI flags,
// in ascending priority.
type Config struct {
	Hub         HubConfig         `yaml:"hub" mapstructure:"hub"`
	Storage     StorageConfig     `yaml:"storage" mapstructure:"storage"`
	Trust       TrustConfig       `yaml:"trust" mapstructure:"trust"`
	Moderation  ModerationConfig  `yaml:"moderation" mapstructure:"moderation"`
	Rank        RankConfig        `yaml:"rank" mapstructure:"rank"`
	Replication ReplicationConfig `yaml:"replication" mapstructure:"replication"`
}

// HubConfig identifies this hub within the federation
type HubConfig struct {
	ID          string `yaml:"id" mapstructure:"id"`
	Name        string `yaml:"name" mapstructure:"name"`
	Description string `yaml:"description" mapstructure:"description"`
}

// StorageConfig locates the claim store
type StorageConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// TrustConfig tunes the score engine. Anchors are actors the hub operator
// has explicitly vouched for; they seed the public root used when an
// anonymous search has no viewer identity.
type TrustConfig struct {
	MaxDepth   int            `yaml:"max_depth" mapstructure:"max_depth"`
	CacheTTL   time.Duration  `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	PublicRoot string         `yaml:"public_root" mapstructure:"public_root"`
	Anchors    []AnchorConfig `yaml:"anchors" mapstructure:"anchors"`
}

// AnchorConfig is a single operator-vouched actor
type AnchorConfig struct {
	Actor  string  `yaml:"actor" mapstructure:"actor"`
	Weight float64 `yaml:"weight" mapstructure:"weight"`
}

// ModerationConfig tunes the flag gate
type ModerationConfig struct {
	Threshold float64 `yaml:"threshold" mapstructure:"threshold"`
}

// RankConfig tunes search ordering. Multiplier is the constant in
// rank_score = price * (multiplier - trust).
type RankConfig struct {
	Multiplier float64 `yaml:"multiplier" mapstructure:"multiplier"`
	MaxResults int     `yaml:"max_results" mapstructure:"max_results"`
}

// ReplicationConfig lists peers and bounds outbound delivery
type ReplicationConfig struct {
	Peers       []PeerConfig  `yaml:"peers" mapstructure:"peers"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RatePerPeer float64       `yaml:"rate_per_peer" mapstructure:"rate_per_peer"`
	Burst       int           `yaml:"burst" mapstructure:"burst"`
}

// PeerConfig describes one replication target
type PeerConfig struct {
	Domain string `yaml:"domain" mapstructure:"domain"`
	Inbox  string `yaml:"inbox" mapstructure:"inbox"`
	Active bool   `yaml:"active" mapstructure:"active"`
}

// DefaultConfig returns the built-in defaults. The ranking multiplier,
// moderation threshold, and depth bound are deliberate configuration,
// not tuned constants.
func DefaultConfig() *Config {
	return &Config{
		Hub: HubConfig{
			ID:          "https://hub.fedmarket.local",
			Name:        "Fedmarket Node",
			Description: "A federated marketplace hub",
		},
		Storage: StorageConfig{
			Path: "fedmarket.db",
		},
		Trust: TrustConfig{
			MaxDepth:   4,
			CacheTTL:   30 * time.Second,
			PublicRoot: "https://hub.fedmarket.local/actors/root",
		},
		Moderation: ModerationConfig{
			Threshold: 0.3,
		},
		Rank: RankConfig{
			Multiplier: 1.5,
			MaxResults: 20,
		},
		Replication: ReplicationConfig{
			Timeout:     10 * time.Second,
			RatePerPeer: 5,
			Burst:       10,
		},
	}
}
