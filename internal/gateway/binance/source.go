package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"

	"anchorwatch/internal/market"
	"anchorwatch/internal/pkg/circuit"
	symbolpkg "anchorwatch/internal/pkg/symbol"
)

var snapshotIntervals = []string{"1m", "5m", "15m"}

// Source assembles watch-tick snapshots from Binance USDT-M futures REST
// endpoints. All calls share one rate limiter and one circuit breaker so a
// flapping upstream degrades every watch instead of burning the quota.
type Source struct {
	cfg     Config
	client  *futures.Client
	limiter *rate.Limiter
	breaker *circuit.Breaker

	tickMu    sync.Mutex
	tickSizes map[string]float64

	statsMu sync.Mutex
	stats   market.SourceStats
}

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	client := futures.NewClient("", "")
	client.BaseURL = final.RESTBaseURL
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if final.ProxyEnabled && final.RESTProxyURL != "" {
		proxyURL, err := url.Parse(final.RESTProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	client.HTTPClient = httpClient
	return &Source{
		cfg:       final,
		client:    client,
		limiter:   rate.NewLimiter(rate.Limit(final.RequestsPerSecond), final.Burst),
		breaker:   circuit.NewBreaker("binance-rest", final.BreakerThreshold, final.BreakerCooldown),
		tickSizes: make(map[string]float64),
	}, nil
}

func (s *Source) FetchSnapshot(ctx context.Context, symbol string) (market.RawSnapshot, error) {
	clean := symbolpkg.Normalize(symbol)
	if clean == "" {
		return market.RawSnapshot{}, fmt.Errorf("symbol is required")
	}
	if !s.breaker.Allow() {
		return market.RawSnapshot{}, fmt.Errorf("binance source circuit open for %s", clean)
	}

	snap, err := s.fetchSnapshot(ctx, clean)

	s.statsMu.Lock()
	s.stats.Fetches++
	if err != nil {
		s.stats.FetchErrors++
		s.stats.LastError = err.Error()
	}
	s.statsMu.Unlock()

	if err != nil {
		s.breaker.RecordFailure()
		return market.RawSnapshot{}, err
	}
	s.breaker.RecordSuccess()
	return snap, nil
}

func (s *Source) fetchSnapshot(ctx context.Context, symbol string) (market.RawSnapshot, error) {
	snap := market.RawSnapshot{
		Symbol: symbol,
		Klines: make(map[string][]market.Candle, len(snapshotIntervals)),
	}

	for _, interval := range snapshotIntervals {
		candles, err := s.fetchKlines(ctx, symbol, interval)
		if err != nil {
			return market.RawSnapshot{}, fmt.Errorf("klines %s %s: %w", symbol, interval, err)
		}
		snap.Klines[interval] = candles
	}

	book, bookAt, err := s.fetchDepth(ctx, symbol)
	if err != nil {
		return market.RawSnapshot{}, fmt.Errorf("depth %s: %w", symbol, err)
	}
	snap.Book = book
	snap.At = bookAt

	mark, err := s.fetchMarkPrice(ctx, symbol)
	if err != nil {
		return market.RawSnapshot{}, fmt.Errorf("mark price %s: %w", symbol, err)
	}
	snap.MarkPrice = mark

	tick, err := s.tickSize(ctx, symbol)
	if err != nil {
		return market.RawSnapshot{}, fmt.Errorf("tick size %s: %w", symbol, err)
	}
	snap.TickSize = tick

	if snap.At == 0 {
		snap.At = time.Now().UnixMilli()
	}
	// The kline endpoint returns the forming bar last; indicators only see
	// closed candles.
	for interval, candles := range snap.Klines {
		snap.Klines[interval] = market.DropUnclosed(candles, snap.At)
	}
	return snap, nil
}

func (s *Source) fetchKlines(ctx context.Context, symbol, interval string) ([]market.Candle, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	kls, err := s.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(s.cfg.KlineLimit).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]market.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, market.Candle{
			OpenTime:       kl.OpenTime,
			CloseTime:      kl.CloseTime,
			Open:           parseFloat(kl.Open),
			High:           parseFloat(kl.High),
			Low:            parseFloat(kl.Low),
			Close:          parseFloat(kl.Close),
			Volume:         parseFloat(kl.Volume),
			TakerBuyVolume: parseFloat(kl.TakerBuyBaseAssetVolume),
			Trades:         kl.TradeNum,
		})
	}
	return out, nil
}

func (s *Source) fetchDepth(ctx context.Context, symbol string) (market.OrderBook, int64, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return market.OrderBook{}, 0, err
	}
	resp, err := s.client.NewDepthService().
		Symbol(symbol).
		Limit(s.cfg.DepthLimit).
		Do(ctx)
	if err != nil {
		return market.OrderBook{}, 0, err
	}
	book := market.OrderBook{
		Bids: make([]market.PriceLevel, 0, len(resp.Bids)),
		Asks: make([]market.PriceLevel, 0, len(resp.Asks)),
	}
	for _, lvl := range resp.Bids {
		book.Bids = append(book.Bids, market.PriceLevel{
			Price:    parseFloat(lvl.Price),
			Quantity: parseFloat(lvl.Quantity),
		})
	}
	for _, lvl := range resp.Asks {
		book.Asks = append(book.Asks, market.PriceLevel{
			Price:    parseFloat(lvl.Price),
			Quantity: parseFloat(lvl.Quantity),
		})
	}
	return book, resp.Time, nil
}

func (s *Source) fetchMarkPrice(ctx context.Context, symbol string) (float64, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	idx, err := s.client.NewPremiumIndexService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, err
	}
	for _, pi := range idx {
		if pi == nil {
			continue
		}
		if strings.EqualFold(pi.Symbol, symbol) {
			return parseFloat(pi.MarkPrice), nil
		}
	}
	return 0, fmt.Errorf("premium index missing %s", symbol)
}

// tickSize resolves the PRICE_FILTER tick for a symbol. Exchange info is
// fetched once and cached for the process lifetime; ticks do not change
// outside of exchange maintenance windows.
func (s *Source) tickSize(ctx context.Context, symbol string) (float64, error) {
	s.tickMu.Lock()
	if tick, ok := s.tickSizes[symbol]; ok {
		s.tickMu.Unlock()
		return tick, nil
	}
	s.tickMu.Unlock()

	if err := s.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	info, err := s.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return 0, err
	}

	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	for _, sym := range info.Symbols {
		for _, f := range sym.Filters {
			if f["filterType"] != "PRICE_FILTER" {
				continue
			}
			raw, _ := f["tickSize"].(string)
			if tick := parseFloat(raw); tick > 0 {
				s.tickSizes[strings.ToUpper(sym.Symbol)] = tick
			}
		}
	}
	tick, ok := s.tickSizes[symbol]
	if !ok {
		return 0, fmt.Errorf("exchange info missing %s", symbol)
	}
	return tick, nil
}

func (s *Source) Stats() market.SourceStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

func (s *Source) Close() error {
	return nil
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}
