// Package signal turns a market snapshot into a directional trend and a
// strength used for position sizing.
package signal

import (
	"math"

	"phase-trade-bot-go/internal/market"
)

// Trend is the directional bias of the market.
type Trend string

const (
	None    Trend = "none"
	Bullish Trend = "bullish"
	Bearish Trend = "bearish"
)

// Direction maps a trend to the order side that follows it.
func (t Trend) Direction() (market.Direction, bool) {
	switch t {
	case Bullish:
		return market.Buy, true
	case Bearish:
		return market.Sell, true
	default:
		return "", false
	}
}

// Strength scales the lot size of the next entry.
type Strength string

const (
	Normal  Strength = "normal"
	Extreme Strength = "extreme"
)

// RSI bands the close must clear for a trend call.
const (
	BullishRSI = 55.0
	BearishRSI = 45.0
)

// Classify reads only the latest bar of snap. A move is extreme when momentum
// exceeds atr * strongMoveThreshold in the direction of the trend.
// Strength is meaningless when the trend is None.
func Classify(snap *market.Snapshot, strongMoveThreshold float64) (Trend, Strength) {
	closePrice := snap.Latest().Close
	ind := snap.Indicators
	limit := ind.ATR * strongMoveThreshold

	switch {
	case closePrice > ind.EMA && ind.RSI > BullishRSI:
		if ind.Momentum > limit {
			return Bullish, Extreme
		}
		return Bullish, Normal
	case closePrice < ind.EMA && ind.RSI < BearishRSI:
		if math.Abs(ind.Momentum) > limit {
			return Bearish, Extreme
		}
		return Bearish, Normal
	default:
		return None, Normal
	}
}
