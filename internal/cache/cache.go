package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ScoreCache defines the interface for caching computed trust scores.
// Entries are keyed by (source, target, graph version), so any edge write
// invalidates every prior entry by construction.
type ScoreCache interface {
	Get(key string) (float64, bool)
	Set(key string, value float64)
	Flush()
}

// ScoreKey builds a cache key for a (source, target) pair at a graph version
func ScoreKey(source, target string, version uint64) string {
	hash := sha256.Sum256([]byte(source + "\x00" + target))
	return fmt.Sprintf("fedmarket:score:v%d:%s", version, hex.EncodeToString(hash[:]))
}
