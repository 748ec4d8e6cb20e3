package feature

import (
	"sort"

	"anchorwatch/internal/market"
	"anchorwatch/internal/watcher"
)

// Imbalance is (bidNotional − askNotional)/(bidNotional + askNotional)
// over the top n levels, clamped to [-1, 1]. Unknown when either side of
// the book is empty.
func Imbalance(book market.OrderBook, n int) (float64, bool) {
	if len(book.Bids) == 0 || len(book.Asks) == 0 {
		return 0, false
	}
	bid := market.SideNotional(book.Bids, n)
	ask := market.SideNotional(book.Asks, n)
	total := bid + ask
	if total <= 0 {
		return 0, false
	}
	v := (bid - ask) / total
	if v < -1 {
		v = -1
	}
	if v > 1 {
		v = 1
	}
	return v, true
}

// Microprice is the quantity-weighted best bid/ask midpoint.
func Microprice(book market.OrderBook) (float64, bool) {
	bb, okB := book.BestBid()
	ba, okA := book.BestAsk()
	if !okB || !okA {
		return 0, false
	}
	qty := bb.Quantity + ba.Quantity
	if qty <= 0 {
		return 0, false
	}
	return (bb.Price*ba.Quantity + ba.Price*bb.Quantity) / qty, true
}

// MicropriceBias labels which side of the mid the microprice leans toward.
// A quarter-tick deadband keeps a balanced book neutral.
func MicropriceBias(micro, mid, tickSize float64) watcher.MicroBias {
	deadband := tickSize / 4
	if deadband <= 0 {
		deadband = mid * 1e-6
	}
	switch {
	case micro > mid+deadband:
		return watcher.BiasAsk
	case micro < mid-deadband:
		return watcher.BiasBid
	default:
		return watcher.BiasNone
	}
}

// SpreadBps is the best bid/ask spread in basis points of the mid.
func SpreadBps(book market.OrderBook) (float64, bool) {
	bb, okB := book.BestBid()
	ba, okA := book.BestAsk()
	mid, okM := book.Mid()
	if !okB || !okA || !okM || mid <= 0 {
		return 0, false
	}
	return (ba.Price - bb.Price) / mid * 10_000, true
}

// Wall scan parameters: a 3-level rolling notional window over the top 20
// levels, flagged where the window exceeds 5× the median window.
const (
	wallScanLevels   = 20
	wallWindowLevels = 3
	wallMedianFactor = 5.0
)

// Wall is a detected liquidity concentration on one side of the book.
type Wall struct {
	Price    float64 // heaviest level inside the window
	Notional float64 // window notional
	DistBps  float64 // distance from the reference price
	Soft     bool    // soft-fill: no window cleared the median threshold
}

// DetectWall scans one book side (best-first) for an anomalously heavy
// 3-level window. When no window clears 5× the median it soft-fills with
// the single strongest window, so a non-empty book almost always yields a
// wall price; callers treating walls as signal should weigh Soft
// accordingly.
func DetectWall(levels []market.PriceLevel, referencePrice float64) (Wall, bool) {
	n := len(levels)
	if n > wallScanLevels {
		n = wallScanLevels
	}
	if n == 0 || referencePrice <= 0 {
		return Wall{}, false
	}
	window := wallWindowLevels
	if window > n {
		window = n
	}

	type candidate struct {
		start    int
		notional float64
	}
	var windows []candidate
	for i := 0; i+window <= n; i++ {
		sum := 0.0
		for j := i; j < i+window; j++ {
			sum += levels[j].Notional()
		}
		windows = append(windows, candidate{start: i, notional: sum})
	}
	if len(windows) == 0 {
		return Wall{}, false
	}

	notionals := make([]float64, len(windows))
	for i, w := range windows {
		notionals[i] = w.notional
	}
	sort.Float64s(notionals)
	median := notionals[len(notionals)/2]
	if len(notionals)%2 == 0 {
		median = (notionals[len(notionals)/2-1] + notionals[len(notionals)/2]) / 2
	}

	// Nearest window to the top of book that clears the threshold.
	pick := -1
	soft := false
	for _, w := range windows {
		if median > 0 && w.notional >= wallMedianFactor*median {
			pick = w.start
			break
		}
	}
	if pick < 0 {
		// Soft-fill: strongest window wins.
		soft = true
		best := windows[0]
		for _, w := range windows[1:] {
			if w.notional > best.notional {
				best = w
			}
		}
		pick = best.start
	}

	sum := 0.0
	heaviest := levels[pick]
	for j := pick; j < pick+window; j++ {
		sum += levels[j].Notional()
		if levels[j].Notional() > heaviest.Notional() {
			heaviest = levels[j]
		}
	}
	dist := heaviest.Price - referencePrice
	if dist < 0 {
		dist = -dist
	}
	return Wall{
		Price:    heaviest.Price,
		Notional: sum,
		DistBps:  dist / referencePrice * 10_000,
		Soft:     soft,
	}, true
}

// SlippageBps walks the book consuming notional quote units and returns
// the absolute bps deviation of the fill VWAP from referencePrice.
// Unknown when the book is too thin to fill the notional.
func SlippageBps(levels []market.PriceLevel, notional, referencePrice float64) (float64, bool) {
	if notional <= 0 || referencePrice <= 0 || len(levels) == 0 {
		return 0, false
	}
	remaining := notional
	cost, qty := 0.0, 0.0
	for _, l := range levels {
		if l.Price <= 0 || l.Quantity <= 0 {
			continue
		}
		avail := l.Notional()
		take := avail
		if take > remaining {
			take = remaining
		}
		cost += take
		qty += take / l.Price
		remaining -= take
		if remaining <= 0 {
			break
		}
	}
	if remaining > 0 || qty <= 0 {
		return 0, false
	}
	fill := cost / qty
	dev := fill - referencePrice
	if dev < 0 {
		dev = -dev
	}
	return dev / referencePrice * 10_000, true
}
