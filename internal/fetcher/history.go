package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"polymarket-pro/internal/pricing"
	"polymarket-pro/internal/series"
)

// Intervals accepted by the prices-history endpoint.
const (
	IntervalDay  = "1d"
	IntervalHour = "1h"
)

// HistoryOptions parameterise the CLOB history client.
type HistoryOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// History fetches price series from the Polymarket CLOB API.
type History struct {
	opts    HistoryOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewHistory constructs a history fetcher.
func NewHistory(opts HistoryOptions, logger zerolog.Logger) *History {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://clob.polymarket.com"
	}

	return &History{
		opts:    opts,
		logger:  logger.With().Str("component", "history_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

type historyResponse struct {
	History []historyPoint `json:"history"`
}

type historyPoint struct {
	T int64     `json:"t"`
	P flexFloat `json:"p"`
}

// FetchHistory retrieves the price series for tokenID over the given
// interval hint. Values are clamped and rounded the same way live
// observations are; ordering and duplicate timestamps are left to the
// store's reseed handling.
func (h *History) FetchHistory(ctx context.Context, tokenID, interval string) ([]series.Point, error) {
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return nil, errors.New("token id required")
	}
	if interval == "" {
		interval = IntervalDay
	}

	params := url.Values{}
	params.Set("market", tokenID)
	params.Set("interval", interval)

	endpoint := h.baseURL + "/prices-history?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(h.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "polymarket-pro/1.0")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("clob api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var decoded historyResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("decode prices-history: %w", err)
	}

	points := make([]series.Point, 0, len(decoded.History))
	for _, raw := range decoded.History {
		points = append(points, series.Point{
			TS:    raw.T,
			Value: pricing.Round3(pricing.Clamp01(float64(raw.P))),
		})
	}

	h.logger.Debug().Str("token_id", tokenID).Str("interval", interval).Int("points", len(points)).Msg("history fetched")
	return points, nil
}

// FetchLatest returns the most recent point of a short-interval history
// fetch, used by the fallback poll loop.
func (h *History) FetchLatest(ctx context.Context, tokenID string) (series.Point, error) {
	points, err := h.FetchHistory(ctx, tokenID, IntervalHour)
	if err != nil {
		return series.Point{}, err
	}
	if len(points) == 0 {
		return series.Point{}, errors.New("empty history")
	}

	latest := points[0]
	for _, pt := range points[1:] {
		if pt.TS > latest.TS {
			latest = pt
		}
	}
	return latest, nil
}

var _ HistoryFetcher = (*History)(nil)
