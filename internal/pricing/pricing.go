package pricing

import "math"

// Observation is one raw market data point as delivered by the transport
// layer. It is ephemeral: observations are normalized into series points and
// never stored directly.
type Observation struct {
	AssetID          string
	TimestampSeconds int64
	Bid              *float64
	Ask              *float64
	LastTrade        *float64
}

// maxTrustedSpread is the widest bid/ask spread for which the midpoint is
// preferred over the last trade.
const maxTrustedSpread = 0.10

// Normalize reduces a raw bid/ask/last-trade observation to a single price in
// [0,1]. It is the single source of truth for "current price" and is applied
// identically to pushed and polled observations. Rule, in order:
//  1. narrow spread (|ask-bid| <= 0.10): midpoint
//  2. last trade present: last trade
//  3. wide spread, no trade: midpoint anyway
//  4. no usable inputs: 0.5
func Normalize(bid, ask, lastTrade *float64) float64 {
	switch {
	case bid != nil && ask != nil && math.Abs(*ask-*bid) <= maxTrustedSpread:
		return Round3(Clamp01((*bid + *ask) / 2))
	case lastTrade != nil:
		return Round3(Clamp01(*lastTrade))
	case bid != nil && ask != nil:
		return Round3(Clamp01((*bid + *ask) / 2))
	default:
		return 0.5
	}
}

// NormalizeObservation applies Normalize to an Observation's raw fields.
func NormalizeObservation(obs Observation) float64 {
	return Normalize(obs.Bid, obs.Ask, obs.LastTrade)
}

// Clamp01 bounds a price to [0,1].
func Clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}

// Round3 rounds to 3 decimal places, matching stored point precision.
func Round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
