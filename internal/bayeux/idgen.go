package bayeux

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator produces session ids of the form "<peer>/<n>" (spec §3), an
// incrementing counter per peer so ids stay predictable in the common
// case (see spec §8 scenario 1's "<peer>:<port>/0"). Collisions - which
// should never occur with a monotonic per-peer counter but are still
// possible across process restarts sharing peer/port pairs - fall back to
// a uuid-derived entropy suffix (spec §3 "plus entropy").
type IDGenerator struct {
	mu       sync.Mutex
	counters map[string]int
}

// NewIDGenerator returns an IDGenerator with no prior history.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{counters: make(map[string]int)}
}

// Generate returns the next deterministic id for peer.
func (g *IDGenerator) Generate(peer string) string {
	g.mu.Lock()
	n := g.counters[peer]
	g.counters[peer] = n + 1
	g.mu.Unlock()
	return fmt.Sprintf("%s/%d", peer, n)
}

// GenerateWithEntropy is the collision-retry path: it advances the
// counter as Generate does but appends a short random suffix so the
// result can never repeat a prior id for peer.
func (g *IDGenerator) GenerateWithEntropy(peer string) string {
	base := g.Generate(peer)
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return base + "-" + suffix
}
