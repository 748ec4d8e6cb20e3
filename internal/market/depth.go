package market

// PriceLevel is a single resting bid or ask level.
type PriceLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// Notional returns price*quantity for the level.
func (l PriceLevel) Notional() float64 {
	return l.Price * l.Quantity
}

// OrderBook holds a top-of-book depth snapshot. Bids are sorted best-first
// (descending price), asks best-first (ascending price).
type OrderBook struct {
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	UpdatedAt int64        `json:"updated_at"`
}

func (b OrderBook) BestBid() (PriceLevel, bool) {
	if len(b.Bids) == 0 {
		return PriceLevel{}, false
	}
	return b.Bids[0], true
}

func (b OrderBook) BestAsk() (PriceLevel, bool) {
	if len(b.Asks) == 0 {
		return PriceLevel{}, false
	}
	return b.Asks[0], true
}

// Mid returns the midpoint of best bid/ask, false when either side is empty.
func (b OrderBook) Mid() (float64, bool) {
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	if !okB || !okA || bid.Price <= 0 || ask.Price <= 0 {
		return 0, false
	}
	return (bid.Price + ask.Price) / 2, true
}

// SideNotional sums price*quantity over the top n levels of one side.
func SideNotional(levels []PriceLevel, n int) float64 {
	if n > len(levels) {
		n = len(levels)
	}
	total := 0.0
	for i := 0; i < n; i++ {
		total += levels[i].Notional()
	}
	return total
}
