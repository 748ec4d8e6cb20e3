package feature

import (
	"testing"
	"time"

	"anchorwatch/internal/depth"
	"anchorwatch/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawSnapshot(atMs int64) market.RawSnapshot {
	mk := func(n int, intervalMs int64) []market.Candle {
		out := make([]market.Candle, n)
		for i := range out {
			open := atMs - int64(n-i)*intervalMs
			base := 100 + 0.01*float64(i)
			out[i] = market.Candle{
				OpenTime:  open,
				CloseTime: open + intervalMs,
				Open:      base, High: base + 0.5, Low: base - 0.5, Close: base + 0.1,
				Volume: 100, TakerBuyVolume: 60,
			}
		}
		return out
	}
	return market.RawSnapshot{
		Symbol:    "ETHUSDT",
		At:        atMs,
		MarkPrice: 100.5,
		TickSize:  0.01,
		Klines: map[string][]market.Candle{
			Interval1m:  mk(30, 60_000),
			Interval5m:  mk(60, 300_000),
			Interval15m: mk(60, 900_000),
		},
		Book: market.OrderBook{
			Bids: uniformBids(20, 100.4, 5),
			Asks: func() []market.PriceLevel {
				out := make([]market.PriceLevel, 20)
				for i := range out {
					out[i] = level(100.5+float64(i)*0.01, 5)
				}
				return out
			}(),
			UpdatedAt: atMs,
		},
	}
}

func TestExtract_PopulatesIndicators(t *testing.T) {
	x := NewExtractor(depth.NewHistory(), Config{})
	at := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC).UnixMilli()

	s := x.Extract(rawSnapshot(at), 100.4)

	assert.Equal(t, "ETHUSDT", s.Symbol)
	assert.Equal(t, at, s.At.UnixMilli())
	assert.Equal(t, 100.5, s.Mark)

	require.NotNil(t, s.EMA20x5m)
	require.NotNil(t, s.EMA50x5m)
	require.NotNil(t, s.EMA20x15m)
	require.NotNil(t, s.EMA50x15m)
	require.NotNil(t, s.RSI)
	require.NotNil(t, s.ATR15m)
	require.NotNil(t, s.VWAP)
	require.NotNil(t, s.OBI5)
	require.NotNil(t, s.OBI20)
	require.NotNil(t, s.Microprice)
	require.NotNil(t, s.TakerDelta)
	require.NotNil(t, s.SlippageBps)
	require.NotNil(t, s.BidWallPrice)
	require.NotNil(t, s.AskWallPrice)
	assert.Greater(t, s.SpreadBps, 0.0)
	assert.False(t, s.PumpFlag)
	assert.Len(t, s.Candles1m, 30)
}

func TestExtract_ColdStartDepthSignalsUnknown(t *testing.T) {
	x := NewExtractor(depth.NewHistory(), Config{})
	at := int64(1_700_000_000_000)

	s := x.Extract(rawSnapshot(at), 100.4)

	// First tick after (re)start: only one sample in the buffer, so the
	// consume/refresh baselines do not exist yet.
	assert.Nil(t, s.ConsumeBid3sPct)
	assert.Nil(t, s.RefreshBid10sPct)
	require.Len(t, x.History().Samples("ETHUSDT"), 1)
}

func TestExtract_DepthHistoryFeedsConsume(t *testing.T) {
	x := NewExtractor(depth.NewHistory(), Config{})
	at := int64(1_700_000_000_000)

	x.Extract(rawSnapshot(at), 100.4)

	// Second tick 2s later with half the bid depth gone.
	raw := rawSnapshot(at + 2_000)
	for i := range raw.Book.Bids {
		raw.Book.Bids[i].Quantity = 2.5
	}
	s := x.Extract(raw, 100.4)

	require.NotNil(t, s.ConsumeBid3sPct)
	assert.InDelta(t, 50.0, *s.ConsumeBid3sPct, 0.5)
	require.NotNil(t, s.BidDwellMs)
	assert.Equal(t, 2_000.0, *s.BidDwellMs)
}
