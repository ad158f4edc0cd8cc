// Package alerting evaluates user-defined one-shot threshold rules against
// the live normalized price and dispatches notifications when they fire.
package alerting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"polymarket-pro/internal/metrics"
)

// Direction tells which side of the threshold triggers a rule.
type Direction string

const (
	DirectionAbove Direction = "above"
	DirectionBelow Direction = "below"
)

// Rule is a one-shot price alert. Active flips to false exactly once, the
// first time the condition is observed true; a fired rule is never
// resurrected. Create a new rule to watch the same threshold again.
type Rule struct {
	ID        string
	Direction Direction
	Threshold float64
	Label     string
	Active    bool
	CreatedAt time.Time
}

// Callback receives every fired notification in-process.
type Callback func(Notification)

// Engine owns the rule collection. Evaluate is safe to call concurrently
// with rule creation and removal; each call works against a consistent
// snapshot of rule state.
type Engine struct {
	mu        sync.RWMutex
	rules     map[string]*Rule
	callbacks []Callback
	notifier  Notifier
	logger    zerolog.Logger
}

// NewEngine constructs an empty rule engine. notifier may be nil.
func NewEngine(notifier Notifier, logger zerolog.Logger) *Engine {
	return &Engine{
		rules:    make(map[string]*Rule),
		notifier: notifier,
		logger:   logger.With().Str("component", "alert_engine").Logger(),
	}
}

// Add registers a new active rule and returns it.
func (e *Engine) Add(direction Direction, threshold float64, label string) (Rule, error) {
	if direction != DirectionAbove && direction != DirectionBelow {
		return Rule{}, fmt.Errorf("invalid direction %q", direction)
	}
	if threshold < 0 || threshold > 1 {
		return Rule{}, fmt.Errorf("threshold %v outside [0,1]", threshold)
	}

	rule := &Rule{
		ID:        uuid.NewString(),
		Direction: direction,
		Threshold: threshold,
		Label:     label,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}

	e.mu.Lock()
	e.rules[rule.ID] = rule
	e.mu.Unlock()

	e.logger.Info().Str("rule_id", rule.ID).Str("direction", string(direction)).Float64("threshold", threshold).Msg("alert rule added")
	return *rule, nil
}

// Remove deletes a rule by ID. Removing an unknown ID is a no-op.
func (e *Engine) Remove(id string) {
	e.mu.Lock()
	delete(e.rules, id)
	e.mu.Unlock()
}

// Rules returns a snapshot of all rules, fired ones included.
func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Rule, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, *r)
	}
	return out
}

// OnAlert registers an in-process callback invoked for every firing.
func (e *Engine) OnAlert(cb Callback) {
	e.mu.Lock()
	e.callbacks = append(e.callbacks, cb)
	e.mu.Unlock()
}

// Evaluate checks every active rule against price, which must already be
// normalized to [0,1]. It is invoked once per new latest point, not on a
// timer. A hit deactivates the rule permanently and emits one notification.
func (e *Engine) Evaluate(ctx context.Context, price float64) {
	var fired []Notification

	e.mu.Lock()
	for _, r := range e.rules {
		if !r.Active {
			continue
		}
		hit := (r.Direction == DirectionAbove && price >= r.Threshold) ||
			(r.Direction == DirectionBelow && price <= r.Threshold)
		if !hit {
			continue
		}
		r.Active = false
		fired = append(fired, Notification{
			RuleID:    r.ID,
			Label:     r.Label,
			Direction: r.Direction,
			Threshold: r.Threshold,
			Price:     price,
			FiredAt:   time.Now().UTC(),
		})
	}
	callbacks := make([]Callback, len(e.callbacks))
	copy(callbacks, e.callbacks)
	e.mu.Unlock()

	for _, note := range fired {
		metrics.AlertsFiredTotal.Inc()
		e.logger.Info().Str("rule_id", note.RuleID).Str("direction", string(note.Direction)).
			Float64("threshold", note.Threshold).Float64("price", note.Price).Msg("alert fired")

		if e.notifier != nil {
			if err := e.notifier.Notify(ctx, note); err != nil {
				e.logger.Error().Err(err).Str("rule_id", note.RuleID).Msg("failed to dispatch alert")
			}
		}
		for _, cb := range callbacks {
			cb(note)
		}
	}
}
