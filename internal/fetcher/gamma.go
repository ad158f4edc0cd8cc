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
)

// GammaOptions parameterise the slug/market resolution client.
type GammaOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Gamma resolves market slugs against the Polymarket Gamma API.
type Gamma struct {
	opts    GammaOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewGamma constructs a slug resolver.
func NewGamma(opts GammaOptions, logger zerolog.Logger) *Gamma {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://gamma-api.polymarket.com"
	}

	return &Gamma{
		opts:    opts,
		logger:  logger.With().Str("component", "gamma_resolver").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

type gammaMarket struct {
	ConditionID    string          `json:"conditionId"`
	ConditionIDAlt string          `json:"condition_id"`
	Question       string          `json:"question"`
	Title          string          `json:"title"`
	Slug           string          `json:"slug"`
	ClobTokenIDs   json.RawMessage `json:"clobTokenIds"`
	BestBid        *flexFloat      `json:"bestBid"`
	BestAsk        *flexFloat      `json:"bestAsk"`
	LastTradePrice *flexFloat      `json:"lastTradePrice"`
}

type gammaEvent struct {
	Title   string        `json:"title"`
	Slug    string        `json:"slug"`
	Markets []gammaMarket `json:"markets"`
}

// ResolveBySlug looks a slug up on the markets endpoint and falls back to the
// events endpoint, where the first market of the event is used. Full URLs are
// tolerated: the trailing path segment is taken as the slug.
func (g *Gamma) ResolveBySlug(ctx context.Context, slug string) (Market, error) {
	slug = normalizeSlug(slug)
	if slug == "" {
		return Market{}, errors.New("slug required")
	}

	markets, err := g.fetchMarkets(ctx, "/markets?slug="+url.QueryEscape(slug))
	if err != nil {
		return Market{}, err
	}
	if len(markets) == 0 {
		markets, err = g.fetchEventMarkets(ctx, "/events?slug="+url.QueryEscape(slug))
		if err != nil {
			return Market{}, err
		}
	}
	if len(markets) == 0 {
		return Market{}, fmt.Errorf("no market found for slug %q", slug)
	}

	resolved, err := toMarket(markets[0], slug)
	if err != nil {
		return Market{}, err
	}

	g.logger.Info().Str("slug", slug).Str("token_id", resolved.TokenID).Int("siblings", len(resolved.SiblingTokenIDs)).Msg("market resolved")
	return resolved, nil
}

func (g *Gamma) fetchMarkets(ctx context.Context, path string) ([]gammaMarket, error) {
	payload, err := g.getJSON(ctx, path)
	if err != nil {
		return nil, err
	}

	var markets []gammaMarket
	if err := json.Unmarshal(payload, &markets); err == nil {
		return markets, nil
	}

	var single gammaMarket
	if err := json.Unmarshal(payload, &single); err == nil && len(single.ClobTokenIDs) > 0 {
		return []gammaMarket{single}, nil
	}
	return nil, nil
}

func (g *Gamma) fetchEventMarkets(ctx context.Context, path string) ([]gammaMarket, error) {
	payload, err := g.getJSON(ctx, path)
	if err != nil {
		return nil, err
	}

	var events []gammaEvent
	if err := json.Unmarshal(payload, &events); err == nil {
		for _, ev := range events {
			if len(ev.Markets) > 0 {
				return ev.Markets, nil
			}
		}
		return nil, nil
	}

	var event gammaEvent
	if err := json.Unmarshal(payload, &event); err == nil {
		return event.Markets, nil
	}
	return nil, nil
}

func (g *Gamma) getJSON(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(g.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "polymarket-pro/1.0")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gamma api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	return payload, nil
}

func toMarket(m gammaMarket, fallbackSlug string) (Market, error) {
	tokenIDs := parseTokenIDs(m.ClobTokenIDs)
	if len(tokenIDs) == 0 {
		return Market{}, errors.New("market has no clobTokenIds; CLOB trading may not be enabled")
	}

	conditionID := m.ConditionID
	if conditionID == "" {
		conditionID = m.ConditionIDAlt
	}
	question := m.Question
	if question == "" {
		question = m.Title
	}
	slug := m.Slug
	if slug == "" {
		slug = fallbackSlug
	}

	resolved := Market{
		TokenID:         tokenIDs[0],
		SiblingTokenIDs: tokenIDs[1:],
		ConditionID:     conditionID,
		Question:        question,
		Slug:            slug,
	}
	if m.BestBid != nil {
		v := float64(*m.BestBid)
		resolved.BestBid = &v
	}
	if m.BestAsk != nil {
		v := float64(*m.BestAsk)
		resolved.BestAsk = &v
	}
	if m.LastTradePrice != nil {
		v := float64(*m.LastTradePrice)
		resolved.LastTradePrice = &v
	}
	return resolved, nil
}

// parseTokenIDs accepts clobTokenIds as a JSON array, a JSON-stringified
// array (the common Gamma shape), or a comma-separated string.
func parseTokenIDs(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var ids []string
	if err := json.Unmarshal(raw, &ids); err == nil {
		return trimNonEmpty(ids)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	if err := json.Unmarshal([]byte(s), &ids); err == nil {
		return trimNonEmpty(ids)
	}
	return trimNonEmpty(strings.Split(s, ","))
}

func trimNonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// normalizeSlug strips a full Polymarket URL down to its slug segment.
func normalizeSlug(input string) string {
	input = strings.TrimSpace(input)
	if !strings.Contains(input, "/") {
		return input
	}
	input = strings.TrimRight(input, "/")
	if idx := strings.LastIndex(input, "/"); idx >= 0 {
		input = input[idx+1:]
	}
	if idx := strings.IndexAny(input, "?#"); idx >= 0 {
		input = input[:idx]
	}
	return input
}

var _ MarketResolver = (*Gamma)(nil)
