package prediction

import (
	"math"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
)

func newTestWalker(seed int64) *Walker {
	return NewWalker(Options{Rand: rand.New(rand.NewSource(seed))}, zerolog.Nop())
}

func TestPredictionStaysBounded(t *testing.T) {
	w := newTestWalker(1)
	w.SetActual(50, true)

	for i := 0; i < 100; i++ {
		w.Tick()
		predicted, ok := w.Predicted()
		if !ok {
			t.Fatal("prediction should be present after SetActual")
		}
		if predicted < 40 || predicted > 60 {
			t.Fatalf("tick %d: predicted %v escaped [40,60]", i, predicted)
		}
	}
}

func TestNoActualNoPrediction(t *testing.T) {
	w := newTestWalker(2)

	if _, ok := w.Predicted(); ok {
		t.Fatal("prediction should be absent before any actual")
	}
	w.Tick()
	if _, ok := w.Predicted(); ok {
		t.Fatal("ticking without an actual should stay inert")
	}
}

func TestClearActualResets(t *testing.T) {
	w := newTestWalker(3)
	w.SetActual(50, true)
	if _, ok := w.Predicted(); !ok {
		t.Fatal("prediction should exist")
	}

	w.SetActual(0, false)
	if _, ok := w.Predicted(); ok {
		t.Fatal("prediction should be cleared")
	}

	// Re-seeding after a clear behaves like a fresh initialization.
	w.SetActual(20, true)
	predicted, ok := w.Predicted()
	if !ok {
		t.Fatal("prediction should return after a new actual")
	}
	if math.Abs(predicted-20) > 10 {
		t.Fatalf("fresh prediction %v further than 10 from actual 20", predicted)
	}
}

func TestSignificantJumpKeepsOffset(t *testing.T) {
	w := newTestWalker(4)
	w.SetActual(50, true)

	before, _ := w.Predicted()
	offsetBefore := before - 50

	w.SetActual(70, true)
	after, ok := w.Predicted()
	if !ok {
		t.Fatal("prediction should survive a jump")
	}
	offsetAfter := after - 70

	if math.Abs(offsetBefore-offsetAfter) > 1e-9 {
		t.Fatalf("offset should be kept across a jump: before %v after %v", offsetBefore, offsetAfter)
	}
}

func TestSmallChangeOnlyUpdatesReference(t *testing.T) {
	w := newTestWalker(5)
	w.SetActual(50, true)
	before, _ := w.Predicted()

	// Within the 5-point band the prediction is untouched until the next tick.
	w.SetActual(52, true)
	after, _ := w.Predicted()
	if before != after {
		t.Fatalf("small actual change should not recompute immediately: %v != %v", before, after)
	}

	w.Tick()
	ticked, _ := w.Predicted()
	if math.Abs(ticked-52) > 10 {
		t.Fatalf("post-tick prediction %v further than 10 from actual 52", ticked)
	}
}

func TestPredictionClampedToRange(t *testing.T) {
	w := newTestWalker(6)
	w.SetActual(99, true)

	for i := 0; i < 50; i++ {
		w.Tick()
		predicted, _ := w.Predicted()
		if predicted < 0 || predicted > 100 {
			t.Fatalf("predicted %v escaped [0,100]", predicted)
		}
	}
}
