package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"polymarket-pro/internal/alerting"
	"polymarket-pro/internal/config"
	"polymarket-pro/internal/fetcher"
	"polymarket-pro/internal/series"
)

func testConfig() *config.Config {
	return &config.Config{
		Feed: config.FeedConfig{
			URL:            "ws://127.0.0.1:0/ws/market",
			ReconnectDelay: 10 * time.Millisecond,
			PollInterval:   time.Hour,
		},
		Series: config.SeriesConfig{MaxPoints: 500},
		Prediction: config.PredictionConfig{
			Enabled:      true,
			TickInterval: time.Second,
			MaxOffset:    10,
			MaxStep:      0.15,
		},
	}
}

type stubResolver struct {
	markets map[string]fetcher.Market
	err     error
}

func (s *stubResolver) ResolveBySlug(ctx context.Context, slug string) (fetcher.Market, error) {
	if s.err != nil {
		return fetcher.Market{}, s.err
	}
	m, ok := s.markets[slug]
	if !ok {
		return fetcher.Market{}, errors.New("unknown slug")
	}
	return m, nil
}

type stubSpot struct {
	px decimal.Decimal
}

func (s *stubSpot) FetchSpot(ctx context.Context) (decimal.Decimal, error) {
	return s.px, nil
}

func TestWatchResolvesSlugsAndSetsPrimary(t *testing.T) {
	cfg := testConfig()
	cfg.Markets.Slugs = []string{"bitcoin-up-or-down"}
	cfg.Markets.TokenIDs = []string{"rawtok"}

	resolver := &stubResolver{markets: map[string]fetcher.Market{
		"bitcoin-up-or-down": {TokenID: "tok9", Question: "Bitcoin up or down?"},
	}}
	m := New(cfg, resolver, nil, nil, nil, zerolog.Nop())

	if err := m.Watch(context.Background()); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if got := m.PrimaryKey(); got != "rawtok" {
		t.Errorf("primary = %q, want rawtok (token IDs precede slugs)", got)
	}
	keys := m.Keys()
	if len(keys) != 2 {
		t.Fatalf("keys = %v, want 2 instruments", keys)
	}
}

func TestWatchFailsWithoutInstruments(t *testing.T) {
	m := New(testConfig(), nil, nil, nil, nil, zerolog.Nop())
	if err := m.Watch(context.Background()); err == nil {
		t.Fatal("Watch with no configured instruments must fail")
	}
}

func TestWatchPropagatesResolverError(t *testing.T) {
	cfg := testConfig()
	cfg.Markets.Slugs = []string{"nope"}
	m := New(cfg, &stubResolver{err: errors.New("boom")}, nil, nil, nil, zerolog.Nop())
	if err := m.Watch(context.Background()); err == nil {
		t.Fatal("Watch must propagate resolver failures")
	}
}

func TestHandlePointDrivesOnlyPrimary(t *testing.T) {
	m := New(testConfig(), nil, nil, nil, nil, zerolog.Nop())
	m.Subscribe(context.Background(), "tok1")

	fired := make(chan alerting.Notification, 1)
	m.OnAlert(func(n alerting.Notification) { fired <- n })
	if _, err := m.AddAlert(alerting.DirectionBelow, 0.65, "dip"); err != nil {
		t.Fatalf("AddAlert: %v", err)
	}

	m.handlePoint("other", series.Point{TS: 1, Value: 0.1})
	select {
	case n := <-fired:
		t.Fatalf("alert %+v fired for a non-primary instrument", n)
	case <-time.After(50 * time.Millisecond):
	}
	if _, ok := m.PredictedValue(); ok {
		t.Fatal("walker must stay uninitialized on non-primary points")
	}

	m.handlePoint("tok1", series.Point{TS: 2, Value: 0.6})
	select {
	case n := <-fired:
		if n.Price != 0.6 {
			t.Errorf("notification price = %v, want 0.6", n.Price)
		}
	case <-time.After(time.Second):
		t.Fatal("alert did not fire for the primary instrument")
	}

	pred, ok := m.PredictedValue()
	if !ok {
		t.Fatal("walker must initialize from the primary point")
	}
	if pred < 50 || pred > 70 {
		t.Errorf("prediction = %v, want within offset range of 60", pred)
	}
}

type blockingNotifier struct {
	release chan struct{}
	sent    chan alerting.Notification
}

func (n *blockingNotifier) Notify(ctx context.Context, note alerting.Notification) error {
	select {
	case <-n.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	n.sent <- note
	return nil
}

func TestHandlePointDoesNotBlockOnSlowNotifier(t *testing.T) {
	notifier := &blockingNotifier{release: make(chan struct{}), sent: make(chan alerting.Notification, 1)}
	m := New(testConfig(), nil, nil, nil, notifier, zerolog.Nop())
	m.Subscribe(context.Background(), "tok1")
	if _, err := m.AddAlert(alerting.DirectionBelow, 0.65, "dip"); err != nil {
		t.Fatalf("AddAlert: %v", err)
	}

	done := make(chan struct{})
	go func() {
		m.handlePoint("tok1", series.Point{TS: 1, Value: 0.6})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("handlePoint stalled behind notification dispatch")
	}

	close(notifier.release)
	select {
	case note := <-notifier.sent:
		if note.Price != 0.6 {
			t.Errorf("notification price = %v, want 0.6", note.Price)
		}
	case <-time.After(time.Second):
		t.Fatal("notification was never dispatched")
	}
}

func TestUnsubscribeClearsPrimary(t *testing.T) {
	m := New(testConfig(), nil, nil, nil, nil, zerolog.Nop())
	m.Subscribe(context.Background(), "tok1")
	m.handlePoint("tok1", series.Point{TS: 1, Value: 0.5})
	if _, ok := m.PredictedValue(); !ok {
		t.Fatal("walker must be live before unsubscribe")
	}

	m.Unsubscribe("tok1")
	if got := m.PrimaryKey(); got != "" {
		t.Errorf("primary = %q after unsubscribe, want empty", got)
	}
	if _, ok := m.PredictedValue(); ok {
		t.Error("walker must reset when the primary instrument is removed")
	}
}

func TestSpotPricePolling(t *testing.T) {
	m := New(testConfig(), nil, nil, &stubSpot{px: decimal.NewFromFloat(109250.5)}, nil, zerolog.Nop())

	if _, _, ok := m.SpotPrice(); ok {
		t.Fatal("SpotPrice must report absent before the first poll")
	}

	at := time.Now().UTC()
	if err := m.pollSpot(context.Background(), at); err != nil {
		t.Fatalf("pollSpot: %v", err)
	}

	px, ts, ok := m.SpotPrice()
	if !ok || !px.Equal(decimal.NewFromFloat(109250.5)) || !ts.Equal(at) {
		t.Fatalf("SpotPrice = (%v, %v, %v)", px, ts, ok)
	}
}
