package feature

import (
	"time"

	"anchorwatch/internal/depth"
	"anchorwatch/internal/market"
	"anchorwatch/internal/watcher"
)

// Intervals the extractor reads from the raw snapshot's kline map.
const (
	Interval1m  = "1m"
	Interval5m  = "5m"
	Interval15m = "15m"
)

const (
	emaFastPeriod = 20
	emaSlowPeriod = 50
	rsiPeriod     = 14
	atrPeriod     = 14

	// depthSampleLevels feeds the history buffer with top-5 notional.
	depthSampleLevels = 5

	defaultSlippageNotional = 5_000
)

// Config tunes the extractor.
type Config struct {
	// SlippageNotional is the quote notional walked through the book for
	// the slippage estimate.
	SlippageNotional float64

	// FlowLookback is the taker-flow window in 1m candles.
	FlowLookback int
}

func (c Config) withDefaults() Config {
	if c.SlippageNotional <= 0 {
		c.SlippageNotional = defaultSlippageNotional
	}
	if c.FlowLookback <= 0 {
		c.FlowLookback = defaultFlowLookback
	}
	return c
}

// Extractor builds watcher snapshots and owns the depth-history side
// effect: every extraction records the current book into the history
// before reading consume/refresh/dwell, so those signals always include
// the current sample.
type Extractor struct {
	hist *depth.History
	cfg  Config
}

func NewExtractor(hist *depth.History, cfg Config) *Extractor {
	return &Extractor{hist: hist, cfg: cfg.withDefaults()}
}

// History exposes the underlying buffer (for rehydration diagnostics).
func (x *Extractor) History() *depth.History {
	return x.hist
}

// Extract converts one raw snapshot into the normalized watcher view.
// anchorPrice is the entry's reversal anchor; dwell time is measured
// against it. Missing inputs degrade to unknown fields, never errors.
func (x *Extractor) Extract(raw market.RawSnapshot, anchorPrice float64) watcher.Snapshot {
	s := watcher.Snapshot{
		Symbol:   raw.Symbol,
		At:       time.UnixMilli(raw.At).UTC(),
		Mark:     raw.MarkPrice,
		TickSize: raw.TickSize,
	}

	k1 := raw.Klines[Interval1m]
	k5 := raw.Klines[Interval5m]
	k15 := raw.Klines[Interval15m]
	s.Candles1m = k1

	closes5 := closePrices(k5)
	closes15 := closePrices(k15)

	setIf(&s.EMA20x5m)(EMA(closes5, emaFastPeriod))
	setIf(&s.EMA50x5m)(EMA(closes5, emaSlowPeriod))
	setIf(&s.EMA20x15m)(EMA(closes15, emaFastPeriod))
	setIf(&s.EMA50x15m)(EMA(closes15, emaSlowPeriod))
	setIf(&s.RSI)(RSI(closes5, rsiPeriod))
	setIf(&s.RSIDelta)(RSIDelta(closes5, rsiPeriod))
	setIf(&s.ATR15m)(ATR(k15, atrPeriod))
	setIf(&s.VWAP)(VWAP(k1))
	s.PumpFlag = PumpFlag(k15)
	setIf(&s.TakerDelta)(TakerFlowDelta(k1, x.cfg.FlowLookback))

	book := raw.Book
	if spread, ok := SpreadBps(book); ok {
		s.SpreadBps = spread
	}
	setIf(&s.OBI5)(Imbalance(book, 5))
	setIf(&s.OBI20)(Imbalance(book, 20))

	mid, hasMid := book.Mid()
	if micro, ok := Microprice(book); ok {
		s.Microprice = watcher.Float(micro)
		if hasMid {
			s.MicropriceBias = MicropriceBias(micro, mid, raw.TickSize)
		}
	}

	ref := raw.MarkPrice
	if ref <= 0 && hasMid {
		ref = mid
	}
	if ref > 0 {
		if wall, ok := DetectWall(book.Bids, ref); ok {
			s.BidWallPrice = watcher.Float(wall.Price)
			s.BidWallDistBps = watcher.Float(wall.DistBps)
		}
		if wall, ok := DetectWall(book.Asks, ref); ok {
			s.AskWallPrice = watcher.Float(wall.Price)
			s.AskWallDistBps = watcher.Float(wall.DistBps)
		}
		setIf(&s.SlippageBps)(SlippageBps(book.Asks, x.cfg.SlippageNotional, ref))
	}

	// Record the current book into the history before reading any derived
	// signal; skipping this would compute them from stale samples.
	x.recordDepth(raw)

	setIf(&s.ConsumeBid3sPct)(x.hist.ConsumePct(raw.Symbol, depth.SideBid,
		depth.DefaultConsumeLookbackMs, depth.DefaultConsumeMinOffsetMs))
	setIf(&s.RefreshBid10sPct)(x.hist.RefreshPct(raw.Symbol, depth.SideBid,
		depth.DefaultRefreshWindowMs, depth.DefaultRefreshSlackMs))

	dwellRef := anchorPrice
	if dwellRef <= 0 && s.BidWallPrice != nil {
		dwellRef = *s.BidWallPrice
	}
	if dwellRef > 0 {
		setIf(&s.BidDwellMs)(x.hist.DwellMs(raw.Symbol, depth.SideBid, dwellRef, depth.DefaultDwellBandPct))
	}

	return s
}

func (x *Extractor) recordDepth(raw market.RawSnapshot) {
	bb, okB := raw.Book.BestBid()
	ba, okA := raw.Book.BestAsk()
	if !okB && !okA {
		return
	}
	sample := depth.Sample{
		At:          raw.At,
		BidNotional: market.SideNotional(raw.Book.Bids, depthSampleLevels),
		AskNotional: market.SideNotional(raw.Book.Asks, depthSampleLevels),
	}
	if okB {
		sample.BestBid = bb.Price
	}
	if okA {
		sample.BestAsk = ba.Price
	}
	x.hist.Record(raw.Symbol, sample)
}

func closePrices(candles []market.Candle) []float64 {
	if len(candles) == 0 {
		return nil
	}
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func setIf(dst **float64) func(float64, bool) {
	return func(v float64, ok bool) {
		if ok {
			*dst = watcher.Float(v)
		}
	}
}
