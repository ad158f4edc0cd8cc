// Package prediction generates a synthetic model-prediction signal as a
// bounded random walk around the live price.
package prediction

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Options tune walker behaviour. Zero values select the reference defaults.
type Options struct {
	// TickInterval drives the periodic perturbation. Default 1s.
	TickInterval time.Duration
	// MaxOffset bounds the walk's deviation from the actual value. Default 10.
	MaxOffset float64
	// MaxStep bounds a single perturbation. Default 0.15.
	MaxStep float64
	// Rand supplies randomness; defaults to a time-seeded source. Injected
	// in tests for determinism.
	Rand *rand.Rand
}

// significantJump is the actual-value delta past which the walker re-clamps
// immediately instead of waiting for the next tick.
const significantJump = 5.0

// Walker tracks an actual value in [0,100] and derives a predicted value that
// stays within MaxOffset of it. The offset drifts by a small uniform step on
// every tick; an abrupt change in the actual keeps the offset (re-clamped,
// not resampled) so the prediction catches up visibly but without jumping.
type Walker struct {
	opts   Options
	logger zerolog.Logger

	mu          sync.Mutex
	rng         *rand.Rand
	offset      float64
	actual      float64
	predicted   float64
	initialized bool
}

// NewWalker constructs a walker with no actual value yet.
func NewWalker(opts Options, logger zerolog.Logger) *Walker {
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.MaxOffset <= 0 {
		opts.MaxOffset = 10
	}
	if opts.MaxStep <= 0 {
		opts.MaxStep = 0.15
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Walker{
		opts:   opts,
		rng:    rng,
		logger: logger.With().Str("component", "prediction_walker").Logger(),
	}
}

// SetActual feeds the latest actual value, or clears it with hasActual=false.
// Clearing resets the walk; the prediction becomes absent until the next
// actual arrives.
func (w *Walker) SetActual(actual float64, hasActual bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !hasActual {
		w.initialized = false
		w.offset = 0
		return
	}

	switch {
	case !w.initialized:
		w.offset = (w.rng.Float64() - 0.5) * 2 * w.opts.MaxOffset
		w.actual = actual
		w.recomputeLocked()
		w.initialized = true
	case math.Abs(actual-w.actual) > significantJump:
		// Keep the walk offset; re-clamping instead of resampling turns a
		// discontinuous jump into a bounded catch-up.
		w.actual = actual
		w.recomputeLocked()
	default:
		w.actual = actual
	}
}

// Tick perturbs the walk by one step. A walker without an actual value is
// inert.
func (w *Walker) Tick() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.initialized {
		return
	}
	w.offset += (w.rng.Float64() - 0.5) * 2 * w.opts.MaxStep
	w.recomputeLocked()
}

// recomputeLocked clamps the offset and refreshes the prediction.
// Caller holds w.mu.
func (w *Walker) recomputeLocked() {
	w.offset = math.Max(-w.opts.MaxOffset, math.Min(w.opts.MaxOffset, w.offset))
	w.predicted = math.Max(0, math.Min(100, w.actual+w.offset))
}

// Predicted returns the current prediction, absent until an actual is known.
func (w *Walker) Predicted() (float64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.initialized {
		return 0, false
	}
	return w.predicted, true
}

// Run ticks the walk until ctx is cancelled.
func (w *Walker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.opts.TickInterval)
	defer ticker.Stop()

	w.logger.Debug().Dur("interval", w.opts.TickInterval).Msg("prediction walker started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Tick()
		}
	}
}
