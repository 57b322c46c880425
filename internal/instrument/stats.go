package instrument

import (
	"sync"
	"time"
)

// Operation labels used as statistics keys.
const (
	OpGet        = "get"
	OpSet        = "set"
	OpCall       = "call"
	OpFailedGet  = "failed_get"
	OpFailedSet  = "failed_set"
	OpFailedCall = "failed_call"
)

// StatEntry accumulates call counts and timings for one (target, operation)
// pair.
type StatEntry struct {
	Count uint64
	Last  time.Duration
	Total time.Duration
	Min   time.Duration
	Max   time.Duration
}

// Mean returns the average duration, or zero when nothing was recorded.
func (e StatEntry) Mean() time.Duration {
	if e.Count == 0 {
		return 0
	}
	return e.Total / time.Duration(e.Count)
}

type statKey struct {
	target string
	op     string
}

// Stats records per-device call statistics for feats and actions.
// All methods are safe for concurrent use.
type Stats struct {
	mu      sync.Mutex
	entries map[statKey]*StatEntry
}

// NewStats creates an empty statistics recorder.
func NewStats() *Stats {
	return &Stats{entries: make(map[statKey]*StatEntry)}
}

// Record adds one timed observation for a target/operation pair.
func (s *Stats) Record(target, op string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := statKey{target: target, op: op}
	e, ok := s.entries[key]
	if !ok {
		e = &StatEntry{Min: d, Max: d}
		s.entries[key] = e
	}
	e.Count++
	e.Last = d
	e.Total += d
	if d < e.Min {
		e.Min = d
	}
	if d > e.Max {
		e.Max = d
	}
}

// Get returns the entry for a target/operation pair; a zero entry when
// nothing was recorded.
func (s *Stats) Get(target, op string) StatEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[statKey{target: target, op: op}]; ok {
		return *e
	}
	return StatEntry{}
}

// Each calls fn for every recorded entry. The snapshot is taken under the
// lock; fn runs without it.
func (s *Stats) Each(fn func(target, op string, e StatEntry)) {
	s.mu.Lock()
	type pair struct {
		key   statKey
		entry StatEntry
	}
	snapshot := make([]pair, 0, len(s.entries))
	for k, e := range s.entries {
		snapshot = append(snapshot, pair{k, *e})
	}
	s.mu.Unlock()

	for _, p := range snapshot {
		fn(p.key.target, p.key.op, p.entry)
	}
}
