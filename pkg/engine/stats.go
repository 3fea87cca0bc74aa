package engine

import "sync"

// Snapshot is a point-in-time copy of the engine counters.
//
// Invariant: the sum of HitsByTier values plus Misses equals TotalLookups —
// every lookup resolves to exactly one classification.
type Snapshot struct {
	HitsByTier   map[Tier]uint64 `json:"hits_by_tier"`
	ErrorsByTier map[Tier]uint64 `json:"errors_by_tier"`
	Misses       uint64          `json:"misses"`
	TotalLookups uint64          `json:"total_lookups"`
	HitRatio     float64         `json:"hit_ratio"`
}

// stats holds the mutable engine counters. Counters only grow for the
// process lifetime; Reset is an explicit admin operation.
type stats struct {
	mu     sync.Mutex
	hits   map[Tier]uint64
	errors map[Tier]uint64
	misses uint64
	total  uint64
}

func newStats() *stats {
	return &stats{
		hits:   make(map[Tier]uint64),
		errors: make(map[Tier]uint64),
	}
}

// recordHit classifies one lookup as a hit at the given tier.
func (s *stats) recordHit(tier Tier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits[tier]++
	s.total++
	engineLookups.WithLabelValues(string(tier), "hit").Inc()
}

// recordMiss classifies one lookup as a miss (confirmed absence).
func (s *stats) recordMiss() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.misses++
	s.total++
	engineLookups.WithLabelValues("", "miss").Inc()
}

// recordError counts a tier-level failure. Errors are not a lookup
// classification: the lookup that observed the failure still resolves as a
// hit or miss at a later tier.
func (s *stats) recordError(tier Tier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors[tier]++
	engineTierErrors.WithLabelValues(string(tier)).Inc()
}

func (s *stats) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		HitsByTier:   make(map[Tier]uint64, len(s.hits)),
		ErrorsByTier: make(map[Tier]uint64, len(s.errors)),
		Misses:       s.misses,
		TotalLookups: s.total,
	}
	var hitsTotal uint64
	for tier, n := range s.hits {
		snap.HitsByTier[tier] = n
		hitsTotal += n
	}
	for tier, n := range s.errors {
		snap.ErrorsByTier[tier] = n
	}
	if s.total > 0 {
		snap.HitRatio = float64(hitsTotal) / float64(s.total)
	}
	return snap
}

func (s *stats) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits = make(map[Tier]uint64)
	s.errors = make(map[Tier]uint64)
	s.misses = 0
	s.total = 0
}
