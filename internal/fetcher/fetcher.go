package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"polymarket-pro/internal/series"
)

// Market is the resolved identity of one tradable outcome token.
type Market struct {
	// TokenID is the CLOB token for the primary (YES) outcome.
	TokenID string
	// SiblingTokenIDs lists the remaining outcome tokens of the same
	// market, empty for anything but multi-outcome events.
	SiblingTokenIDs []string
	ConditionID     string
	Question        string
	Slug            string

	// Optional current quote fields; absent fields stay nil.
	BestBid        *float64
	BestAsk        *float64
	LastTradePrice *float64
}

// MarketResolver turns a human-readable slug into token identity.
type MarketResolver interface {
	ResolveBySlug(ctx context.Context, slug string) (Market, error)
}

// HistoryFetcher retrieves historical price series for a token. Returned
// batches may be unsorted and may contain duplicate timestamps; the series
// store's reseed path is responsible for cleaning them.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, tokenID, interval string) ([]series.Point, error)
	FetchLatest(ctx context.Context, tokenID string) (series.Point, error)
}

// SpotPriceFetcher retrieves a single current reference price for the
// secondary asset (e.g. BTC/USDT), with no history requirement.
type SpotPriceFetcher interface {
	FetchSpot(ctx context.Context) (decimal.Decimal, error)
}

// flexFloat tolerates upstream payloads that deliver numbers as either JSON
// numbers or quoted strings.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	if len(data) > 1 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("parse numeric string %q: %w", s, err)
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}
