// Package series owns the per-instrument price series: append-only, strictly
// ascending in timestamp, deduplicated, and bounded to a recent window.
package series

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Point is one stored sample: a whole-second timestamp and a normalized
// price in [0,1].
type Point struct {
	TS    int64
	Value float64
}

// DefaultMaxPoints bounds each series to the most recent 500 points, matching
// the chart consumer's retention window.
const DefaultMaxPoints = 500

// reseedShrinkFactor triggers a full reseed when an incoming batch is shorter
// than the existing series by this factor. See Store.LoadBatch.
const reseedShrinkFactor = 2

type instrumentSeries struct {
	mu     sync.Mutex
	points []Point
}

// Store keeps one bounded series per instrument key. A series is created on
// first observation, mutated only through the Store, and dropped via Evict
// when its key is unsubscribed. Appends are check-then-act against the
// strict-ascending invariant, so each series carries its own lock; the store
// lock only guards the key map.
type Store struct {
	mu        sync.RWMutex
	series    map[string]*instrumentSeries
	maxPoints int
	logger    zerolog.Logger
}

// Options tune store retention.
type Options struct {
	// MaxPoints bounds each series to its most recent N points.
	// Zero selects DefaultMaxPoints.
	MaxPoints int
}

// NewStore constructs an empty store.
func NewStore(opts Options, logger zerolog.Logger) *Store {
	maxPoints := opts.MaxPoints
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}
	return &Store{
		series:    make(map[string]*instrumentSeries),
		maxPoints: maxPoints,
		logger:    logger.With().Str("component", "series_store").Logger(),
	}
}

func (s *Store) get(key string, create bool) *instrumentSeries {
	s.mu.RLock()
	ser := s.series[key]
	s.mu.RUnlock()
	if ser != nil || !create {
		return ser
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ser = s.series[key]; ser == nil {
		ser = &instrumentSeries{}
		s.series[key] = ser
	}
	return ser
}

// Append adds a point to the series for key, creating the series on first
// use. A point whose timestamp is not strictly greater than the current tail
// is rejected silently: Append returns false and the series is unchanged.
func (s *Store) Append(key string, pt Point) bool {
	ser := s.get(key, true)

	ser.mu.Lock()
	defer ser.mu.Unlock()

	if n := len(ser.points); n > 0 && pt.TS <= ser.points[n-1].TS {
		return false
	}
	ser.points = append(ser.points, pt)
	s.truncateLocked(ser)
	return true
}

// Latest returns the most recent point for key, if any.
func (s *Store) Latest(key string) (Point, bool) {
	ser := s.get(key, false)
	if ser == nil {
		return Point{}, false
	}

	ser.mu.Lock()
	defer ser.mu.Unlock()
	if len(ser.points) == 0 {
		return Point{}, false
	}
	return ser.points[len(ser.points)-1], true
}

// Snapshot returns a copy of the ordered series for key.
func (s *Store) Snapshot(key string) []Point {
	ser := s.get(key, false)
	if ser == nil {
		return nil
	}

	ser.mu.Lock()
	defer ser.mu.Unlock()
	out := make([]Point, len(ser.points))
	copy(out, ser.points)
	return out
}

// Len reports the number of points currently held for key.
func (s *Store) Len(key string) int {
	ser := s.get(key, false)
	if ser == nil {
		return 0
	}
	ser.mu.Lock()
	defer ser.mu.Unlock()
	return len(ser.points)
}

// Evict drops the series for key entirely.
func (s *Store) Evict(key string) {
	s.mu.Lock()
	delete(s.series, key)
	s.mu.Unlock()
}

// Reseed replaces the series for key with a full historical batch. The batch
// may arrive unsorted and with duplicate timestamps: it is sorted ascending
// (ties keep arrival order) and any same-or-earlier timestamp relative to its
// predecessor is nudged to predecessor+1, so the stored sequence is strictly
// ascending with no loss of point count. The nudge deliberately trades
// timestamp fidelity for visual continuity.
func (s *Store) Reseed(key string, batch []Point) {
	cleaned := CleanBatch(batch)

	ser := s.get(key, true)
	ser.mu.Lock()
	ser.points = cleaned
	s.truncateLocked(ser)
	ser.mu.Unlock()

	s.logger.Debug().Str("asset", key).Int("points", len(cleaned)).Msg("series reseeded")
}

// LoadBatch feeds a historical batch into the series for key. An empty series
// is always reseeded. A non-empty series is reseeded when the batch is less
// than half its current length; a shrunk history signals that a different
// instrument's data was loaded under the same consumer, so the old points are
// replaced rather than merged. Otherwise points are appended incrementally
// under the usual strict-ascending rule. Returns true when a reseed happened.
func (s *Store) LoadBatch(key string, batch []Point) bool {
	if len(batch) == 0 {
		return false
	}

	ser := s.get(key, true)
	ser.mu.Lock()
	existing := len(ser.points)
	ser.mu.Unlock()

	if existing == 0 || len(batch)*reseedShrinkFactor < existing {
		s.Reseed(key, batch)
		return true
	}

	appended := 0
	for _, pt := range batch {
		if s.Append(key, pt) {
			appended++
		}
	}
	s.logger.Debug().Str("asset", key).Int("appended", appended).Int("dropped", len(batch)-appended).Msg("incremental batch applied")
	return false
}

// truncateLocked enforces the retention bound. Caller holds ser.mu.
func (s *Store) truncateLocked(ser *instrumentSeries) {
	if over := len(ser.points) - s.maxPoints; over > 0 {
		ser.points = append(ser.points[:0], ser.points[over:]...)
	}
}

// CleanBatch normalizes a raw historical batch: points are sorted ascending
// by timestamp with ties kept in arrival order, then any timestamp that does
// not strictly exceed its predecessor is bumped to predecessor+1. Every input
// point survives; only colliding timestamps move.
func CleanBatch(batch []Point) []Point {
	if len(batch) == 0 {
		return nil
	}

	cleaned := make([]Point, len(batch))
	copy(cleaned, batch)
	sort.SliceStable(cleaned, func(i, j int) bool { return cleaned[i].TS < cleaned[j].TS })

	for i := 1; i < len(cleaned); i++ {
		if cleaned[i].TS <= cleaned[i-1].TS {
			cleaned[i].TS = cleaned[i-1].TS + 1
		}
	}
	return cleaned
}
