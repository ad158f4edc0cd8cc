package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestBinanceSpotSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/ticker/price" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("symbol"); got != "BTCUSDT" {
			t.Fatalf("unexpected symbol %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","price":"97123.45000000"}`))
	}))
	defer srv.Close()

	spot := NewBinanceSpot(BinanceSpotOptions{BaseURL: srv.URL, Symbol: "btcusdt", Timeout: time.Second}, noopLogger())
	price, err := spot.FetchSpot(context.Background())
	if err != nil {
		t.Fatalf("FetchSpot failed: %v", err)
	}
	if !price.Equal(decimal.RequireFromString("97123.45")) {
		t.Fatalf("unexpected price %s", price)
	}
}

func TestBinanceSpotMissingSymbol(t *testing.T) {
	spot := NewBinanceSpot(BinanceSpotOptions{BaseURL: "http://unused"}, noopLogger())
	if _, err := spot.FetchSpot(context.Background()); err == nil {
		t.Fatal("missing symbol should be an error")
	}
}

func TestBinanceSpotHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	spot := NewBinanceSpot(BinanceSpotOptions{BaseURL: srv.URL, Symbol: "BTCUSDT", Timeout: time.Second}, noopLogger())
	if _, err := spot.FetchSpot(context.Background()); err == nil {
		t.Fatal("HTTP 429 should be an error")
	}
}

func TestBinanceSpotRejectsZeroPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","price":"0"}`))
	}))
	defer srv.Close()

	spot := NewBinanceSpot(BinanceSpotOptions{BaseURL: srv.URL, Symbol: "BTCUSDT", Timeout: time.Second}, noopLogger())
	if _, err := spot.FetchSpot(context.Background()); err == nil {
		t.Fatal("zero price should be rejected")
	}
}

func TestChainlinkSpotMissingConfig(t *testing.T) {
	spot := NewChainlinkSpot(ChainlinkSpotOptions{}, noopLogger())
	if _, err := spot.FetchSpot(context.Background()); err == nil {
		t.Fatal("missing RPC URL should be an error")
	}

	spot = NewChainlinkSpot(ChainlinkSpotOptions{RPCURL: "http://localhost"}, noopLogger())
	if _, err := spot.FetchSpot(context.Background()); err == nil {
		t.Fatal("missing aggregator address should be an error")
	}
}
