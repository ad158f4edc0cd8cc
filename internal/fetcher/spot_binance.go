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
	"github.com/shopspring/decimal"
)

// BinanceSpotOptions parameterise the REST spot-price reference.
type BinanceSpotOptions struct {
	BaseURL   string
	Symbol    string
	Timeout   time.Duration
	UserAgent string
}

// BinanceSpot polls the Binance public ticker for a single current price.
type BinanceSpot struct {
	opts    BinanceSpotOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewBinanceSpot constructs a Binance spot fetcher.
func NewBinanceSpot(opts BinanceSpotOptions, logger zerolog.Logger) *BinanceSpot {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.binance.com"
	}

	return &BinanceSpot{
		opts:    opts,
		logger:  logger.With().Str("component", "binance_spot").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

type binanceTicker struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// FetchSpot retrieves the current ticker price for the configured symbol.
func (b *BinanceSpot) FetchSpot(ctx context.Context) (decimal.Decimal, error) {
	symbol := strings.ToUpper(strings.TrimSpace(b.opts.Symbol))
	if symbol == "" {
		return decimal.Decimal{}, errors.New("spot symbol not configured")
	}

	endpoint := b.baseURL + "/api/v3/ticker/price?symbol=" + url.QueryEscape(symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Decimal{}, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(b.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, fmt.Errorf("binance api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var ticker binanceTicker
	if err := json.Unmarshal(payload, &ticker); err != nil {
		return decimal.Decimal{}, fmt.Errorf("decode ticker: %w", err)
	}

	price, err := decimal.NewFromString(ticker.Price)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse ticker price: %w", err)
	}
	if price.IsZero() || price.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("ticker price out of range: %s", price)
	}
	return price, nil
}

var _ SpotPriceFetcher = (*BinanceSpot)(nil)
