package feature

import (
	"github.com/shopspring/decimal"

	"anchorwatch/internal/market"
)

// defaultFlowLookback is how many trailing 1m candles feed the taker-flow
// delta.
const defaultFlowLookback = 3

// TakerFlowDelta sums taker buy minus taker sell volume over the trailing
// lookback candles. Accumulated in decimal so long streaks of small prints
// do not drift. Unknown when no candle in the window carried volume.
func TakerFlowDelta(candles []market.Candle, lookback int) (float64, bool) {
	if lookback <= 0 {
		lookback = defaultFlowLookback
	}
	start := len(candles) - lookback
	if start < 0 {
		start = 0
	}
	window := candles[start:]
	if len(window) == 0 {
		return 0, false
	}

	delta := decimal.Zero
	sawVolume := false
	for _, c := range window {
		if c.Volume <= 0 && c.TakerBuyVolume <= 0 {
			continue
		}
		sawVolume = true
		buy := decimal.NewFromFloat(c.TakerBuyVolume)
		sell := decimal.NewFromFloat(c.TakerSellVolume)
		if c.TakerSellVolume == 0 && c.Volume > 0 {
			// Exchange klines report taker buy volume; the sell side is
			// the remainder.
			sell = decimal.NewFromFloat(c.Volume).Sub(buy)
		}
		delta = delta.Add(buy.Sub(sell))
	}
	if !sawVolume {
		return 0, false
	}
	out, _ := delta.Float64()
	return out, true
}
