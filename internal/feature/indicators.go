// Package feature turns a raw market snapshot into the normalized
// indicator set the decision engine consumes.
package feature

import (
	"github.com/markcheno/go-talib"

	"anchorwatch/internal/market"
)

// EMA computes an exponential moving average with smoothing 2/(period+1),
// seeded from the first value so short histories still produce an output.
func EMA(values []float64, period int) (float64, bool) {
	if len(values) == 0 || period <= 0 {
		return 0, false
	}
	k := 2.0 / (float64(period) + 1)
	ema := values[0]
	for _, v := range values[1:] {
		ema = v*k + ema*(1-k)
	}
	return ema, true
}

// RSI over the trailing period bars. Returns 100 when there are no losses
// in the window. Needs period+1 closes for the first diff.
func RSI(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period+1 {
		return 0, false
	}
	start := len(closes) - period
	gains, losses := 0.0, 0.0
	for i := start; i < len(closes); i++ {
		diff := closes[i] - closes[i-1]
		if diff >= 0 {
			gains += diff
		} else {
			losses -= diff
		}
	}
	if losses == 0 {
		return 100, true
	}
	rs := gains / losses
	return 100 - 100/(1+rs), true
}

// rsiDeltaBars is how far back the short-term RSI delta looks.
const rsiDeltaBars = 3

// RSIDelta is RSI(now) minus RSI(rsiDeltaBars bars ago).
func RSIDelta(closes []float64, period int) (float64, bool) {
	cur, ok := RSI(closes, period)
	if !ok {
		return 0, false
	}
	if len(closes) < period+1+rsiDeltaBars {
		return 0, false
	}
	prev, ok := RSI(closes[:len(closes)-rsiDeltaBars], period)
	if !ok {
		return 0, false
	}
	return cur - prev, true
}

// ATR over the candles. With a full period of history talib's Wilder ATR
// is used; shorter histories fall back to the plain mean of true ranges so
// a young watch still gets a buffer estimate.
func ATR(candles []market.Candle, period int) (float64, bool) {
	if len(candles) < 2 {
		return 0, false
	}
	if period > 0 && len(candles) > period {
		highs := make([]float64, len(candles))
		lows := make([]float64, len(candles))
		closes := make([]float64, len(candles))
		for i, c := range candles {
			highs[i], lows[i], closes[i] = c.High, c.Low, c.Close
		}
		out := talib.Atr(highs, lows, closes, period)
		if v := out[len(out)-1]; v > 0 {
			return v, true
		}
	}
	sum := 0.0
	for i := 1; i < len(candles); i++ {
		sum += trueRange(candles[i], candles[i-1].Close)
	}
	return sum / float64(len(candles)-1), true
}

func trueRange(c market.Candle, prevClose float64) float64 {
	tr := c.High - c.Low
	if d := absf(c.High - prevClose); d > tr {
		tr = d
	}
	if d := absf(c.Low - prevClose); d > tr {
		tr = d
	}
	return tr
}

// VWAP is the volume-weighted typical price over the window.
func VWAP(candles []market.Candle) (float64, bool) {
	pv, vol := 0.0, 0.0
	for _, c := range candles {
		typical := (c.High + c.Low + c.Close) / 3
		pv += typical * c.Volume
		vol += c.Volume
	}
	if vol <= 0 {
		return 0, false
	}
	return pv / vol, true
}

// Pump-filter thresholds: a manipulation-like move is a 15m bar gaining
// more than +12% with a 6-period RSI above 70.
const (
	pumpBarChangePct = 12.0
	pumpRSIPeriod    = 6
	pumpRSILimit     = 70.0
)

// PumpFlag reports a manipulation-like move on the 15m timeframe.
func PumpFlag(candles15m []market.Candle) bool {
	if len(candles15m) == 0 {
		return false
	}
	last := candles15m[len(candles15m)-1]
	if last.Open <= 0 {
		return false
	}
	changePct := (last.Close - last.Open) / last.Open * 100
	if changePct <= pumpBarChangePct {
		return false
	}
	closes := make([]float64, len(candles15m))
	for i, c := range candles15m {
		closes[i] = c.Close
	}
	rsi, ok := RSI(closes, pumpRSIPeriod)
	return ok && rsi > pumpRSILimit
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
