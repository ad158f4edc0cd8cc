// Package service wires the feed, series store, alert engine, prediction
// walker, and spot poller into one long-running monitor.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"polymarket-pro/internal/alerting"
	"polymarket-pro/internal/config"
	"polymarket-pro/internal/feed"
	"polymarket-pro/internal/fetcher"
	"polymarket-pro/internal/prediction"
	"polymarket-pro/internal/scheduler"
	"polymarket-pro/internal/series"
)

// Monitor orchestrates the full price pipeline for a set of instruments.
// The first subscribed instrument is the primary: its prices drive alert
// evaluation and the prediction walker.
type Monitor struct {
	cfg      *config.Config
	logger   zerolog.Logger
	store    *series.Store
	feed     *feed.Manager
	engine   *alerting.Engine
	walker   *prediction.Walker
	resolver fetcher.MarketResolver
	spot     fetcher.SpotPriceFetcher

	primaryMu sync.RWMutex
	primary   string

	runMu  sync.RWMutex
	runCtx context.Context

	spotMu sync.RWMutex
	spotPx decimal.Decimal
	spotAt time.Time
}

// New constructs the monitor and its owned components. resolver and spot may
// be nil, disabling slug resolution and the spot poller respectively.
func New(cfg *config.Config, resolver fetcher.MarketResolver, history fetcher.HistoryFetcher, spot fetcher.SpotPriceFetcher, notifier alerting.Notifier, logger zerolog.Logger) *Monitor {
	m := &Monitor{
		cfg:      cfg,
		logger:   logger.With().Str("component", "monitor").Logger(),
		store:    series.NewStore(series.Options{MaxPoints: cfg.Series.MaxPoints}, logger),
		engine:   alerting.NewEngine(notifier, logger),
		resolver: resolver,
		spot:     spot,
	}

	if cfg.Prediction.Enabled {
		m.walker = prediction.NewWalker(prediction.Options{
			TickInterval: cfg.Prediction.TickInterval,
			MaxOffset:    cfg.Prediction.MaxOffset,
			MaxStep:      cfg.Prediction.MaxStep,
		}, logger)
	}

	m.feed = feed.NewManager(feed.Options{
		URL:            cfg.Feed.URL,
		ReconnectDelay: cfg.Feed.ReconnectDelay,
		PollInterval:   cfg.Feed.PollInterval,
		DialTimeout:    cfg.Feed.DialTimeout,
		ReadTimeout:    cfg.Feed.ReadTimeout,
		PingInterval:   cfg.Feed.PingInterval,
	}, m.store, history, m.handlePoint, logger)

	return m
}

// handlePoint runs on every accepted series point, on the feed's read path.
// Only the primary instrument feeds alerts and predictions. Rule evaluation
// dispatches notifications, so it runs on its own goroutine; a slow channel
// must never stall inbound frame processing.
func (m *Monitor) handlePoint(assetID string, pt series.Point) {
	if assetID != m.PrimaryKey() {
		return
	}
	go m.engine.Evaluate(m.evalCtx(), pt.Value)
	if m.walker != nil {
		m.walker.SetActual(pt.Value*100, true)
	}
}

// evalCtx returns the run context once Run has started, so notification
// dispatch is cancelled together with the monitor.
func (m *Monitor) evalCtx() context.Context {
	m.runMu.RLock()
	defer m.runMu.RUnlock()
	if m.runCtx != nil {
		return m.runCtx
	}
	return context.Background()
}

// Watch resolves the configured slugs, merges them with raw token IDs, and
// subscribes the result. The first key becomes the primary instrument.
func (m *Monitor) Watch(ctx context.Context) error {
	keys := append([]string(nil), m.cfg.Markets.TokenIDs...)

	for _, slug := range m.cfg.Markets.Slugs {
		if m.resolver == nil {
			return fmt.Errorf("market slug %q configured but no resolver available", slug)
		}
		market, err := m.resolver.ResolveBySlug(ctx, slug)
		if err != nil {
			return fmt.Errorf("resolve market %q: %w", slug, err)
		}
		m.logger.Info().Str("slug", slug).Str("token", market.TokenID).Str("question", market.Question).Msg("market resolved")
		keys = append(keys, market.TokenID)
	}

	if len(keys) == 0 {
		return fmt.Errorf("no instruments configured")
	}

	m.primaryMu.Lock()
	if m.primary == "" {
		m.primary = keys[0]
	}
	m.primaryMu.Unlock()

	m.feed.Subscribe(ctx, keys...)
	return nil
}

// Run blocks until ctx is cancelled, driving the feed loop, the prediction
// ticker, and the spot poller.
func (m *Monitor) Run(ctx context.Context) error {
	m.runMu.Lock()
	m.runCtx = ctx
	m.runMu.Unlock()

	var wg sync.WaitGroup

	if m.walker != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.walker.Run(ctx)
		}()
	}

	if m.spot != nil && m.cfg.Spot.Enabled {
		sched := scheduler.New(scheduler.Options{
			Interval:       m.cfg.Spot.PollInterval,
			RunImmediately: true,
		}, m.logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = sched.Run(ctx, m.pollSpot)
		}()
	}

	err := m.feed.Run(ctx)
	wg.Wait()
	return err
}

func (m *Monitor) pollSpot(ctx context.Context, at time.Time) error {
	px, err := m.spot.FetchSpot(ctx)
	if err != nil {
		return fmt.Errorf("fetch spot price: %w", err)
	}
	m.spotMu.Lock()
	m.spotPx = px
	m.spotAt = at
	m.spotMu.Unlock()
	m.logger.Debug().Str("price", px.String()).Msg("spot price updated")
	return nil
}

// PrimaryKey returns the instrument whose prices drive alerts and
// predictions, or empty before Watch succeeds.
func (m *Monitor) PrimaryKey() string {
	m.primaryMu.RLock()
	defer m.primaryMu.RUnlock()
	return m.primary
}

// Subscribe adds instruments at runtime.
func (m *Monitor) Subscribe(ctx context.Context, keys ...string) {
	m.primaryMu.Lock()
	if m.primary == "" && len(keys) > 0 {
		m.primary = keys[0]
	}
	m.primaryMu.Unlock()
	m.feed.Subscribe(ctx, keys...)
}

// Unsubscribe removes instruments and their series.
func (m *Monitor) Unsubscribe(keys ...string) {
	m.feed.Unsubscribe(keys...)

	var lostPrimary bool
	m.primaryMu.Lock()
	for _, k := range keys {
		if k == m.primary {
			m.primary = ""
			lostPrimary = true
		}
	}
	m.primaryMu.Unlock()

	if lostPrimary && m.walker != nil {
		m.walker.SetActual(0, false)
	}
}

// Keys returns the currently subscribed instruments.
func (m *Monitor) Keys() []string {
	return m.feed.Keys()
}

// LatestPoint returns the newest point for an instrument.
func (m *Monitor) LatestPoint(key string) (series.Point, bool) {
	return m.store.Latest(key)
}

// History returns a copy of an instrument's series.
func (m *Monitor) History(key string) []series.Point {
	return m.store.Snapshot(key)
}

// FeedState reports the push transport state.
func (m *Monitor) FeedState() feed.ConnState {
	return m.feed.State()
}

// AddAlert registers a one-shot alert rule.
func (m *Monitor) AddAlert(direction alerting.Direction, threshold float64, label string) (alerting.Rule, error) {
	return m.engine.Add(direction, threshold, label)
}

// RemoveAlert deletes a rule by ID.
func (m *Monitor) RemoveAlert(id string) {
	m.engine.Remove(id)
}

// AlertRules snapshots the registered rules.
func (m *Monitor) AlertRules() []alerting.Rule {
	return m.engine.Rules()
}

// OnAlert registers a callback invoked for every fired rule.
func (m *Monitor) OnAlert(cb alerting.Callback) {
	m.engine.OnAlert(cb)
}

// PredictedValue returns the walker's current 0-100 prediction.
func (m *Monitor) PredictedValue() (float64, bool) {
	if m.walker == nil {
		return 0, false
	}
	return m.walker.Predicted()
}

// SpotPrice returns the last polled reference price and its tick time.
func (m *Monitor) SpotPrice() (decimal.Decimal, time.Time, bool) {
	m.spotMu.RLock()
	defer m.spotMu.RUnlock()
	if m.spotAt.IsZero() {
		return decimal.Decimal{}, time.Time{}, false
	}
	return m.spotPx, m.spotAt, true
}
