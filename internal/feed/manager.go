// Package feed owns the push transport connection and the fallback poll
// loop, multiplexing all subscribed instrument keys over a single market
// channel and turning inbound events into normalized series points.
package feed

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"polymarket-pro/internal/fetcher"
	"polymarket-pro/internal/metrics"
	"polymarket-pro/internal/pricing"
	"polymarket-pro/internal/series"
)

// PointSink receives every point accepted by the store, in append order.
type PointSink func(assetID string, pt series.Point)

// Options tune manager behaviour. Zero durations select reference defaults.
type Options struct {
	// URL of the market-channel websocket endpoint.
	URL string
	// ReconnectDelay before retrying after an unintentional close. Default 3s.
	ReconnectDelay time.Duration
	// PollInterval of the fallback pull loop. Default 30s.
	PollInterval time.Duration
	// DialTimeout for the websocket handshake. Default 10s.
	DialTimeout time.Duration
	// ReadTimeout bounds silence on an open connection before it is treated
	// as dead. Default 60s.
	ReadTimeout time.Duration
	// PingInterval between keep-alive pings. Default 15s.
	PingInterval time.Duration
}

// Manager maintains zero-or-one active push connection, re-subscribing as
// the key set changes, and falls back to periodic pulls while push is down.
// It is the only component allowed to append to the series store.
type Manager struct {
	opts    Options
	logger  zerolog.Logger
	store   *series.Store
	history fetcher.HistoryFetcher
	onPoint PointSink

	mu          sync.Mutex
	state       ConnState
	keys        map[string]struct{}
	conn        *websocket.Conn
	intentional bool
	closed      bool

	// closedCh is closed exactly once by Close and ends Run even when the
	// run context is still alive.
	closedCh chan struct{}

	// kick wakes the connect loop when keys appear; resub asks an open
	// connection to re-send the subscription message.
	kick  chan struct{}
	resub chan struct{}
}

// NewManager constructs a manager. history may be nil, which disables both
// the initial reseed and the fallback poll. onPoint may be nil.
func NewManager(opts Options, store *series.Store, history fetcher.HistoryFetcher, onPoint PointSink, logger zerolog.Logger) *Manager {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 3 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 30 * time.Second
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 60 * time.Second
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 15 * time.Second
	}

	return &Manager{
		opts:     opts,
		logger:   logger.With().Str("component", "feed_manager").Logger(),
		store:    store,
		history:  history,
		onPoint:  onPoint,
		state:    StateDisconnected,
		keys:     make(map[string]struct{}),
		closedCh: make(chan struct{}),
		kick:     make(chan struct{}, 1),
		resub:    make(chan struct{}, 1),
	}
}

// State reports the current connection state.
func (m *Manager) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Keys returns the intended subscription set, sorted.
func (m *Manager) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keysLocked()
}

func (m *Manager) keysLocked() []string {
	out := make([]string, 0, len(m.keys))
	for k := range m.keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (m *Manager) subscribedTo(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.keys[key]
	return ok
}

// Subscribe adds keys to the intended set. Newly seen keys get a full
// historical reseed; an open connection re-sends its subscription message
// without reconnecting. ctx bounds the reseed fetches.
func (m *Manager) Subscribe(ctx context.Context, keys ...string) {
	var fresh []string

	m.mu.Lock()
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := m.keys[k]; !ok {
			m.keys[k] = struct{}{}
			fresh = append(fresh, k)
		}
	}
	connected := m.state == StateSubscribed
	m.mu.Unlock()

	if len(fresh) == 0 {
		return
	}

	m.logger.Info().Strs("assets", fresh).Msg("subscribed")
	for _, key := range fresh {
		go m.seedHistory(ctx, key)
	}

	if connected {
		m.signal(m.resub)
	} else {
		m.signal(m.kick)
	}
}

// Unsubscribe removes keys from the intended set and drops their series.
// Inbound messages for removed keys are discarded from this point on. When
// the set empties, the connection is closed intentionally and no reconnect
// is scheduled.
func (m *Manager) Unsubscribe(keys ...string) {
	m.mu.Lock()
	for _, k := range keys {
		delete(m.keys, k)
	}
	empty := len(m.keys) == 0
	conn := m.conn
	if empty && conn != nil {
		m.intentional = true
		m.state = StateClosing
	}
	m.mu.Unlock()

	for _, k := range keys {
		m.store.Evict(k)
	}
	m.logger.Info().Strs("assets", keys).Msg("unsubscribed")

	if empty {
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	m.signal(m.resub)
}

// Close tears the manager down permanently: the current socket is closed
// with the intentional mark set, and Run stops instead of re-dialing even
// while its context is still alive. Close is idempotent.
func (m *Manager) Close() {
	m.mu.Lock()
	m.intentional = true
	if !m.closed {
		m.closed = true
		close(m.closedCh)
	}
	if m.state != StateDisconnected {
		m.state = StateClosing
	}
	conn := m.conn
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Manager) signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Run drives the connect/reconnect loop and the fallback poll loop until ctx
// is cancelled or Close is called. It returns ctx.Err(), nil when Close ended
// the run.
func (m *Manager) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.pollLoop(ctx)
	}()

	for {
		if ctx.Err() != nil || m.isClosed() {
			break
		}

		if len(m.Keys()) == 0 {
			select {
			case <-ctx.Done():
			case <-m.closedCh:
			case <-m.kick:
			}
			continue
		}

		err := m.consume(ctx)

		m.mu.Lock()
		intentional := m.intentional
		m.intentional = false
		m.state = StateDisconnected
		m.conn = nil
		m.mu.Unlock()

		if ctx.Err() != nil || m.isClosed() {
			break
		}
		if intentional {
			m.logger.Debug().Msg("push transport closed intentionally")
			continue
		}

		metrics.ReconnectsTotal.Inc()
		m.logger.Warn().Err(err).Dur("delay", m.opts.ReconnectDelay).Msg("push transport lost, reconnect scheduled")
		select {
		case <-ctx.Done():
		case <-m.closedCh:
		case <-time.After(m.opts.ReconnectDelay):
		}
	}

	m.Close()
	wg.Wait()

	m.mu.Lock()
	m.state = StateDisconnected
	m.mu.Unlock()
	return ctx.Err()
}

// consume dials the endpoint, subscribes the current key set, and pumps
// inbound messages until the connection dies or ctx is cancelled.
func (m *Manager) consume(ctx context.Context) error {
	m.mu.Lock()
	m.state = StateConnecting
	m.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: m.opts.DialTimeout}
	conn, _, err := dialer.DialContext(ctx, m.opts.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	var writeMu sync.Mutex
	sendSubscribe := func() error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		return conn.WriteJSON(subscribeMessage{Type: "market", AssetIDs: m.Keys()})
	}

	if err := sendSubscribe(); err != nil {
		return err
	}

	m.mu.Lock()
	m.conn = conn
	m.state = StateSubscribed
	m.mu.Unlock()
	m.logger.Info().Str("url", m.opts.URL).Strs("assets", m.Keys()).Msg("push transport subscribed")

	done := make(chan struct{})
	defer close(done)

	// Companion goroutine: keep-alives, re-subscriptions, and teardown.
	// gorilla allows one concurrent reader and one writer, so all writes
	// happen here or behind writeMu.
	go func() {
		ticker := time.NewTicker(m.opts.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				m.mu.Lock()
				m.intentional = true
				m.state = StateClosing
				m.mu.Unlock()
				_ = conn.Close()
				return
			case <-done:
				return
			case <-m.resub:
				if err := sendSubscribe(); err != nil {
					m.logger.Warn().Err(err).Msg("re-subscription failed")
					_ = conn.Close()
					return
				}
				m.logger.Info().Strs("assets", m.Keys()).Msg("subscription updated")
			case <-ticker.C:
				writeMu.Lock()
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				err := conn.WriteMessage(websocket.PingMessage, nil)
				writeMu.Unlock()
				if err != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()

	conn.SetReadLimit(1 << 20)
	for {
		conn.SetReadDeadline(time.Now().Add(m.opts.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		m.handleFrame(message)
	}
}

// handleFrame dispatches one inbound frame. Malformed frames are dropped
// individually; the connection stays open.
func (m *Manager) handleFrame(data []byte) {
	events, isJSON := parseEvents(data)
	if !isJSON {
		return // keep-alive frame
	}
	if len(events) == 0 {
		metrics.DroppedFramesTotal.Inc()
		m.logger.Debug().Int("bytes", len(data)).Msg("dropped malformed frame")
		return
	}

	now := time.Now()
	for _, ev := range events {
		if !m.subscribedTo(ev.AssetID) {
			metrics.DroppedFramesTotal.Inc()
			continue
		}
		if ev.EventType == eventTypeBook {
			// Snapshots are informational only; price flows from
			// subsequent trade/quote events.
			m.logger.Debug().Str("asset", ev.AssetID).Int("bids", len(ev.Bids)).Int("asks", len(ev.Asks)).Msg("book snapshot received")
			continue
		}

		obs, ok := ev.observation(now)
		if !ok {
			metrics.DroppedFramesTotal.Inc()
			continue
		}
		m.apply(obs, "push")
	}
}

// apply normalizes an observation and appends it. A false append (stale or
// duplicate timestamp) drops the event without error.
func (m *Manager) apply(obs pricing.Observation, origin string) {
	pt := series.Point{TS: obs.TimestampSeconds, Value: pricing.NormalizeObservation(obs)}
	if !m.store.Append(obs.AssetID, pt) {
		return
	}
	metrics.ObservationsTotal.WithLabelValues(obs.AssetID, origin).Inc()
	if m.onPoint != nil {
		m.onPoint(obs.AssetID, pt)
	}
}

// pollLoop is the fallback pull path, live only while push is not
// subscribed. A failed fetch skips that key for the tick; nothing is reset.
func (m *Manager) pollLoop(ctx context.Context) {
	if m.history == nil {
		return
	}

	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.closedCh:
			return
		case <-ticker.C:
		}

		if m.State() == StateSubscribed {
			continue
		}

		for _, key := range m.Keys() {
			pt, err := m.history.FetchLatest(ctx, key)
			if err != nil {
				metrics.PollFetchesTotal.WithLabelValues("error").Inc()
				m.logger.Debug().Err(err).Str("asset", key).Msg("fallback fetch failed, skipping tick")
				continue
			}
			if ctx.Err() != nil || !m.subscribedTo(key) {
				// Completed after teardown or unsubscribe: discard.
				continue
			}
			metrics.PollFetchesTotal.WithLabelValues("ok").Inc()
			if m.store.Append(key, pt) {
				metrics.ObservationsTotal.WithLabelValues(key, "poll").Inc()
				if m.onPoint != nil {
					m.onPoint(key, pt)
				}
			}
		}
	}
}

// seedHistory performs the full historical reseed for a newly subscribed key.
func (m *Manager) seedHistory(ctx context.Context, key string) {
	if m.history == nil {
		return
	}

	batch, err := m.history.FetchHistory(ctx, key, fetcher.IntervalDay)
	if err != nil {
		m.logger.Warn().Err(err).Str("asset", key).Msg("history reseed failed; series will fill from live events")
		return
	}
	if ctx.Err() != nil || !m.subscribedTo(key) {
		return
	}

	m.store.LoadBatch(key, batch)
	if pt, ok := m.store.Latest(key); ok && m.onPoint != nil {
		m.onPoint(key, pt)
	}
}
