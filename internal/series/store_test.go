package series

import (
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
)

func newTestStore(maxPoints int) *Store {
	return NewStore(Options{MaxPoints: maxPoints}, zerolog.Nop())
}

func assertStrictlyAscending(t *testing.T, pts []Point) {
	t.Helper()
	for i := 1; i < len(pts); i++ {
		if pts[i].TS <= pts[i-1].TS {
			t.Fatalf("timestamps not strictly ascending at %d: %d <= %d", i, pts[i].TS, pts[i-1].TS)
		}
	}
}

func TestAppendRejectsNonAscending(t *testing.T) {
	s := newTestStore(0)

	if !s.Append("tok", Point{TS: 100, Value: 0.5}) {
		t.Fatal("first append should succeed")
	}
	if s.Append("tok", Point{TS: 100, Value: 0.6}) {
		t.Fatal("duplicate timestamp should be rejected")
	}
	if s.Append("tok", Point{TS: 99, Value: 0.6}) {
		t.Fatal("earlier timestamp should be rejected")
	}
	if !s.Append("tok", Point{TS: 101, Value: 0.6}) {
		t.Fatal("later timestamp should be accepted")
	}

	snap := s.Snapshot("tok")
	if len(snap) != 2 {
		t.Fatalf("expected 2 points, got %d", len(snap))
	}
	if snap[0].Value != 0.5 || snap[1].Value != 0.6 {
		t.Fatalf("unexpected snapshot contents: %#v", snap)
	}
}

func TestAppendRandomSequenceStaysAscending(t *testing.T) {
	s := newTestStore(0)
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 2000; i++ {
		pt := Point{TS: int64(rng.Intn(1000)), Value: rng.Float64()}
		s.Append("tok", pt)
		assertStrictlyAscending(t, s.Snapshot("tok"))
	}
}

func TestRetentionBound(t *testing.T) {
	s := newTestStore(5)

	for ts := int64(1); ts <= 12; ts++ {
		s.Append("tok", Point{TS: ts, Value: 0.5})
	}

	snap := s.Snapshot("tok")
	if len(snap) != 5 {
		t.Fatalf("expected retention bound of 5, got %d points", len(snap))
	}
	if snap[0].TS != 8 || snap[4].TS != 12 {
		t.Fatalf("expected points 8..12, got %d..%d", snap[0].TS, snap[4].TS)
	}
	assertStrictlyAscending(t, snap)
}

func TestLatest(t *testing.T) {
	s := newTestStore(0)

	if _, ok := s.Latest("tok"); ok {
		t.Fatal("Latest on unknown key should report absence")
	}

	s.Append("tok", Point{TS: 10, Value: 0.4})
	s.Append("tok", Point{TS: 11, Value: 0.6})

	latest, ok := s.Latest("tok")
	if !ok || latest.TS != 11 || latest.Value != 0.6 {
		t.Fatalf("unexpected latest point: %#v ok=%v", latest, ok)
	}
}

func TestReseedDedupNudge(t *testing.T) {
	s := newTestStore(0)

	batch := []Point{
		{TS: 10, Value: 0.1},
		{TS: 10, Value: 0.2},
		{TS: 12, Value: 0.3},
		{TS: 11, Value: 0.4},
	}
	s.Reseed("tok", batch)

	snap := s.Snapshot("tok")
	if len(snap) != 4 {
		t.Fatalf("expected all 4 points preserved, got %d", len(snap))
	}
	assertStrictlyAscending(t, snap)

	wantValues := []float64{0.1, 0.2, 0.4, 0.3}
	for i, want := range wantValues {
		if snap[i].Value != want {
			t.Fatalf("value order not preserved: index %d got %v want %v (%#v)", i, snap[i].Value, want, snap)
		}
	}
}

func TestReseedReplacesExistingPoints(t *testing.T) {
	s := newTestStore(0)
	s.Append("tok", Point{TS: 1, Value: 0.9})
	s.Append("tok", Point{TS: 2, Value: 0.9})

	s.Reseed("tok", []Point{{TS: 100, Value: 0.1}})

	snap := s.Snapshot("tok")
	if len(snap) != 1 || snap[0].TS != 100 {
		t.Fatalf("reseed should replace prior contents: %#v", snap)
	}
}

func TestLoadBatchReseedsEmptySeries(t *testing.T) {
	s := newTestStore(0)

	if !s.LoadBatch("tok", []Point{{TS: 5, Value: 0.5}, {TS: 6, Value: 0.6}}) {
		t.Fatal("empty series should always reseed")
	}
	if s.Len("tok") != 2 {
		t.Fatalf("expected 2 points, got %d", s.Len("tok"))
	}
}

func TestLoadBatchShrunkHistoryTriggersReseed(t *testing.T) {
	s := newTestStore(0)
	for ts := int64(1); ts <= 10; ts++ {
		s.Append("tok", Point{TS: ts, Value: 0.5})
	}

	// A batch shorter than half the series means a different instrument's
	// history landed on this consumer: replace, don't merge.
	if !s.LoadBatch("tok", []Point{{TS: 200, Value: 0.2}, {TS: 201, Value: 0.3}}) {
		t.Fatal("shrunk batch should trigger a reseed")
	}

	snap := s.Snapshot("tok")
	if len(snap) != 2 || snap[0].TS != 200 {
		t.Fatalf("expected replacement contents, got %#v", snap)
	}
}

func TestLoadBatchIncrementAppends(t *testing.T) {
	s := newTestStore(0)
	for ts := int64(1); ts <= 4; ts++ {
		s.Append("tok", Point{TS: ts, Value: 0.5})
	}

	// Same-size batch overlapping the tail: overlap rejected, new points kept.
	batch := []Point{{TS: 3, Value: 0.1}, {TS: 4, Value: 0.1}, {TS: 5, Value: 0.7}, {TS: 6, Value: 0.8}}
	if s.LoadBatch("tok", batch) {
		t.Fatal("same-size batch should append incrementally, not reseed")
	}

	snap := s.Snapshot("tok")
	if len(snap) != 6 {
		t.Fatalf("expected 6 points, got %d", len(snap))
	}
	if snap[2].Value != 0.5 {
		t.Fatal("overlapping points must not overwrite existing values")
	}
	assertStrictlyAscending(t, snap)
}

func TestEvict(t *testing.T) {
	s := newTestStore(0)
	s.Append("tok", Point{TS: 1, Value: 0.5})
	s.Evict("tok")

	if _, ok := s.Latest("tok"); ok {
		t.Fatal("evicted series should be gone")
	}
	if got := s.Snapshot("tok"); got != nil {
		t.Fatalf("expected nil snapshot after evict, got %#v", got)
	}
}

func TestCleanBatchEmpty(t *testing.T) {
	if got := CleanBatch(nil); got != nil {
		t.Fatalf("expected nil, got %#v", got)
	}
}
