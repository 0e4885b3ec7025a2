package bookings

import (
	"math/rand"
	"sync"
	"time"
)

const (
	idClockModulus = 1_000_000_000
	idSuffixRange  = 1000
)

// IDGenerator issues booking ids from the low digits of the millisecond clock
// followed by a random three-digit suffix. Ids are strictly increasing within a
// process and stay well inside the range a JSON number represents exactly.
type IDGenerator struct {
	mu   sync.Mutex
	now  func() time.Time
	last int64
}

func NewIDGenerator(now func() time.Time) *IDGenerator {
	if now == nil {
		now = time.Now
	}
	return &IDGenerator{now: now}
}

// Next returns a fresh id. taken reports ids already present in the ledger, which
// can happen after a restart; such candidates are skipped.
func (g *IDGenerator) Next(taken func(int64) bool) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	for {
		ms := g.now().UnixMilli() % idClockModulus
		candidate := ms*idSuffixRange + rand.Int63n(idSuffixRange)
		if candidate <= g.last {
			candidate = g.last + 1
		}
		g.last = candidate
		if taken == nil || !taken(candidate) {
			return candidate
		}
	}
}
