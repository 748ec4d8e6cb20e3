package feature

import (
	"testing"

	"anchorwatch/internal/market"
	"anchorwatch/internal/watcher"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func level(price, qty float64) market.PriceLevel {
	return market.PriceLevel{Price: price, Quantity: qty}
}

func TestImbalance(t *testing.T) {
	book := market.OrderBook{
		Bids: []market.PriceLevel{level(100, 3)},   // notional 300
		Asks: []market.PriceLevel{level(100.1, 1)}, // notional ~100
	}
	v, ok := Imbalance(book, 5)
	require.True(t, ok)
	assert.InDelta(t, 0.4996, v, 0.001)

	_, ok = Imbalance(market.OrderBook{Bids: book.Bids}, 5)
	assert.False(t, ok)
}

func TestMicroprice(t *testing.T) {
	book := market.OrderBook{
		Bids: []market.PriceLevel{level(100, 2)},
		Asks: []market.PriceLevel{level(101, 1)},
	}
	v, ok := Microprice(book)
	require.True(t, ok)
	// (100*1 + 101*2)/3
	assert.InDelta(t, 100.6667, v, 0.001)
}

func TestMicropriceBias(t *testing.T) {
	assert.Equal(t, watcher.BiasAsk, MicropriceBias(100.52, 100.50, 0.01))
	assert.Equal(t, watcher.BiasBid, MicropriceBias(100.48, 100.50, 0.01))
	// Inside the quarter-tick deadband: neutral.
	assert.Equal(t, watcher.BiasNone, MicropriceBias(100.501, 100.50, 0.01))
}

func TestSpreadBps(t *testing.T) {
	book := market.OrderBook{
		Bids: []market.PriceLevel{level(100, 1)},
		Asks: []market.PriceLevel{level(100.1, 1)},
	}
	v, ok := SpreadBps(book)
	require.True(t, ok)
	assert.InDelta(t, 10.0, v, 0.01)
}

func uniformBids(n int, topPrice, qty float64) []market.PriceLevel {
	out := make([]market.PriceLevel, n)
	for i := range out {
		out[i] = level(topPrice-float64(i)*0.01, qty)
	}
	return out
}

func TestDetectWall_FlagsHeavyWindow(t *testing.T) {
	bids := uniformBids(20, 100, 1)
	bids[7].Quantity = 60 // anomalous level

	wall, ok := DetectWall(bids, 100)
	require.True(t, ok)
	assert.False(t, wall.Soft)
	assert.InDelta(t, bids[7].Price, wall.Price, 1e-9)
	assert.Greater(t, wall.DistBps, 0.0)
}

func TestDetectWall_SoftFillOnUniformBook(t *testing.T) {
	// Perfectly uniform book: no window clears 5× the median, yet a wall
	// price is still reported via soft-fill.
	bids := uniformBids(20, 100, 1)
	wall, ok := DetectWall(bids, 100)
	require.True(t, ok)
	assert.True(t, wall.Soft)
	assert.Greater(t, wall.Price, 0.0)
}

func TestDetectWall_EmptyBook(t *testing.T) {
	_, ok := DetectWall(nil, 100)
	assert.False(t, ok)
}

func TestSlippageBps_WalksTheBook(t *testing.T) {
	asks := []market.PriceLevel{
		level(100, 10), // notional 1000
		level(101, 10),
	}
	v, ok := SlippageBps(asks, 1_500, 100)
	require.True(t, ok)
	assert.InDelta(t, 33.2, v, 0.2)
}

func TestSlippageBps_ThinBookIsUnknown(t *testing.T) {
	asks := []market.PriceLevel{level(100, 1)} // notional 100
	_, ok := SlippageBps(asks, 1_500, 100)
	assert.False(t, ok)
}
