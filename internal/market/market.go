// Package market holds the value types that flow from the venue to the
// signal engine: OHLC bars, ticks and per-tick snapshots.
package market

import (
	"fmt"
	"math"
	"time"

	"phase-trade-bot-go/internal/ta"
)

// Indicator periods applied to every snapshot.
const (
	EMAPeriod      = 21
	RSIPeriod      = 14
	ATRPeriod      = 14
	MomentumPeriod = 10
)

// MinBars is the fewest bars a snapshot can be built from.
const MinBars = EMAPeriod + 1

// Direction is the side of an order or position.
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

// Opposite returns the side that closes a position opened in d.
func (d Direction) Opposite() Direction {
	if d == Buy {
		return Sell
	}
	return Buy
}

// Bar is one OHLC candle.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Tick is the current top of book.
type Tick struct {
	Bid  float64
	Ask  float64
	Time time.Time
}

// Price returns the price an order in direction d fills at.
func (t Tick) Price(d Direction) float64 {
	if d == Buy {
		return t.Ask
	}
	return t.Bid
}

// Indicators are evaluated at the latest bar.
type Indicators struct {
	EMA      float64
	RSI      float64
	ATR      float64
	Momentum float64
}

// Snapshot is one fetched window of bars plus its indicators. It is used for
// a single decision and then discarded.
type Snapshot struct {
	Bars       []Bar
	Indicators Indicators
}

// Latest returns the most recent bar.
func (s *Snapshot) Latest() Bar {
	return s.Bars[len(s.Bars)-1]
}

// NewSnapshot computes indicators over bars, oldest first.
func NewSnapshot(bars []Bar) (*Snapshot, error) {
	if len(bars) < MinBars {
		return nil, fmt.Errorf("need at least %d bars, got %d", MinBars, len(bars))
	}

	closes := make([]float64, len(bars))
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
		highs[i] = b.High
		lows[i] = b.Low
	}

	inds := Indicators{
		EMA:      ta.EMA(closes, EMAPeriod),
		RSI:      ta.RSI(closes, RSIPeriod),
		ATR:      ta.ATR(highs, lows, closes, ATRPeriod),
		Momentum: ta.Momentum(closes, MomentumPeriod),
	}
	for name, v := range map[string]float64{"ema": inds.EMA, "rsi": inds.RSI, "atr": inds.ATR, "momentum": inds.Momentum} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("indicator %s is not computable", name)
		}
	}

	return &Snapshot{Bars: bars, Indicators: inds}, nil
}
