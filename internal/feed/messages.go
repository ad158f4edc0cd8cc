package feed

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"polymarket-pro/internal/pricing"
)

// Inbound event kinds on the market channel. Only the fields this client
// reads are modeled; the full upstream schema is out of scope.
const (
	eventTypeBook      = "book"
	eventTypeQuote     = "price_change"
	eventTypeLastTrade = "last_trade_price"
)

type bookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type marketEvent struct {
	EventType string `json:"event_type"`
	AssetID   string `json:"asset_id"`
	// last_trade_price carries Price; price_change carries BestBid/BestAsk
	// and occasionally a trade price as well.
	Price     string      `json:"price,omitempty"`
	BestBid   string      `json:"best_bid,omitempty"`
	BestAsk   string      `json:"best_ask,omitempty"`
	Timestamp string      `json:"timestamp,omitempty"` // ms since epoch
	Bids      []bookLevel `json:"bids,omitempty"`
	Asks      []bookLevel `json:"asks,omitempty"`
}

type subscribeMessage struct {
	Type     string   `json:"type"`
	AssetIDs []string `json:"assets_ids"`
}

// parseEvents decodes an inbound frame, which may hold a single event or a
// batch. A nil slice with ok=false means the frame was not JSON at all;
// keep-alive frames (e.g. "PONG") land here and must be ignored, not logged
// as failures.
func parseEvents(data []byte) (events []marketEvent, ok bool) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || (trimmed[0] != '{' && trimmed[0] != '[') {
		return nil, false
	}

	if trimmed[0] == '[' {
		if err := json.Unmarshal([]byte(trimmed), &events); err != nil {
			return nil, true
		}
		return events, true
	}

	var one marketEvent
	if err := json.Unmarshal([]byte(trimmed), &one); err != nil {
		return nil, true
	}
	return []marketEvent{one}, true
}

// observation converts an event into a raw Observation, reporting ok=false
// for kinds that carry no price signal (snapshots, unknown types).
func (ev marketEvent) observation(now time.Time) (pricing.Observation, bool) {
	obs := pricing.Observation{
		AssetID:          ev.AssetID,
		TimestampSeconds: ev.timestampSeconds(now),
	}

	switch ev.EventType {
	case eventTypeLastTrade:
		price, err := strconv.ParseFloat(ev.Price, 64)
		if err != nil {
			return pricing.Observation{}, false
		}
		obs.LastTrade = &price
		return obs, true
	case eventTypeQuote:
		bid, bidErr := strconv.ParseFloat(ev.BestBid, 64)
		ask, askErr := strconv.ParseFloat(ev.BestAsk, 64)
		if bidErr != nil || askErr != nil {
			return pricing.Observation{}, false
		}
		obs.Bid = &bid
		obs.Ask = &ask
		if trade, err := strconv.ParseFloat(ev.Price, 64); err == nil {
			obs.LastTrade = &trade
		}
		return obs, true
	default:
		return pricing.Observation{}, false
	}
}

// timestampSeconds prefers the message-carried timestamp, converted to whole
// seconds, over the local clock.
func (ev marketEvent) timestampSeconds(now time.Time) int64 {
	if ev.Timestamp != "" {
		if ms, err := strconv.ParseInt(ev.Timestamp, 10, 64); err == nil && ms > 0 {
			// Anything past this magnitude is milliseconds.
			if ms > 1_000_000_000_000 {
				return ms / 1000
			}
			return ms
		}
	}
	return now.Unix()
}
