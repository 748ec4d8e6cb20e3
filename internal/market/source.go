package market

import "context"

// RawSnapshot is everything the feature extractor needs for one symbol at
// one instant. Assembled by a Source implementation in a single pass.
type RawSnapshot struct {
	Symbol    string              `json:"symbol"`
	At        int64               `json:"at"` // epoch ms
	MarkPrice float64             `json:"mark_price"`
	TickSize  float64             `json:"tick_size"`
	Klines    map[string][]Candle `json:"klines"` // keyed by interval: "1m","5m","15m"
	Book      OrderBook           `json:"book"`
}

type SourceStats struct {
	Fetches     int
	FetchErrors int
	LastError   string
}

// Source provides raw market data for one tick. Implementations own request
// shaping, rate limiting and retries; callers only see the assembled snapshot.
type Source interface {
	FetchSnapshot(ctx context.Context, symbol string) (RawSnapshot, error)

	Stats() SourceStats

	Close() error
}
