package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anchorwatch/internal/depth"
	"anchorwatch/internal/feature"
	"anchorwatch/internal/market"
	"anchorwatch/internal/sink"
	"anchorwatch/internal/watcher"
	"anchorwatch/internal/watcher/registry"
)

type fakeSource struct {
	snap market.RawSnapshot
	err  error
}

func (f *fakeSource) FetchSnapshot(_ context.Context, symbol string) (market.RawSnapshot, error) {
	if f.err != nil {
		return market.RawSnapshot{}, f.err
	}
	snap := f.snap
	snap.Symbol = symbol
	return snap, nil
}

func (f *fakeSource) Stats() market.SourceStats { return market.SourceStats{} }
func (f *fakeSource) Close() error              { return nil }

func tightBook() market.OrderBook {
	book := market.OrderBook{}
	for i := 0; i < 20; i++ {
		book.Bids = append(book.Bids, market.PriceLevel{Price: 100.00 - float64(i)*0.01, Quantity: 5})
		book.Asks = append(book.Asks, market.PriceLevel{Price: 100.01 + float64(i)*0.01, Quantity: 5})
	}
	return book
}

func wideBook() market.OrderBook {
	book := market.OrderBook{}
	for i := 0; i < 20; i++ {
		book.Bids = append(book.Bids, market.PriceLevel{Price: 100.00 - float64(i)*0.01, Quantity: 5})
		book.Asks = append(book.Asks, market.PriceLevel{Price: 101.00 + float64(i)*0.01, Quantity: 5})
	}
	return book
}

func rawSnap(at time.Time, book market.OrderBook) market.RawSnapshot {
	return market.RawSnapshot{
		At:        at.UnixMilli(),
		MarkPrice: 100.0,
		TickSize:  0.01,
		Klines:    map[string][]market.Candle{},
		Book:      book,
	}
}

func testService(t *testing.T, source market.Source) (*WatchService, *registry.Registry, *sink.MemorySink) {
	t.Helper()
	reg := registry.New(registry.NewMemoryStore())
	events := sink.NewMemorySink(64)
	extractor := feature.NewExtractor(depth.NewHistory(), feature.Config{})
	svc := NewWatchService(reg, source, extractor, events, LogExecutor{}, 2)
	return svc, reg, events
}

func scheduleTestWatch(t *testing.T, reg *registry.Registry, limits watcher.Limits) {
	t.Helper()
	require.NoError(t, reg.Schedule(registry.ScheduleRequest{
		Symbol: "BTCUSDT",
		Pilot:  watcher.Pilot{EntryPrice: 100, Size: 25, OpenedAt: time.Now()},
		Plan:   watcher.Plan{TargetSize: 100},
		Limits: limits,
	}))
	// Force the entry due immediately.
	require.NoError(t, reg.Update("BTCUSDT", func(e *watcher.Entry) {
		e.NextRunAt = time.Now().Add(-time.Second)
	}))
}

func testLimits() watcher.Limits {
	return watcher.Limits{
		TTLMinutes:             45,
		DebounceRequired:       2,
		PollIntervalSec:        10,
		MaxSpreadBps:           25,
		MaxSlippageBps:         50,
		RMFilterAction:         watcher.ActionHold,
		MaxTopUps:              2,
		CooldownSec:            90,
		ConsumeBidWallPct3s:    60,
		RefreshBidWallPct10s:   25,
		DwellMs:                1500,
		ReversalScoreThreshold: 0.6,
		Weights: watcher.ScoreWeights{
			Spring: 0.3, Absorb: 0.25, OrderFlow: 0.2, Structure: 0.15, VWAPReclaim: 0.1,
		},
		OBI5Min:            0.15,
		OBI20Min:           0.1,
		OBI20ContDownAbort: -0.25,
		VWAPReclaimBandATR: 0.25,
	}
}

func TestScanTickAppliesHoldResult(t *testing.T) {
	snapAt := time.Now().Add(-90 * time.Second).Truncate(time.Millisecond)
	source := &fakeSource{snap: rawSnap(snapAt, tightBook())}
	svc, reg, events := testService(t, source)
	scheduleTestWatch(t, reg, testLimits())

	svc.Scan(context.Background())

	entry, ok := reg.Get("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 1, entry.Checks)
	assert.Equal(t, watcher.StatusRunning, entry.Status)
	assert.True(t, entry.NextRunAt.After(time.Now()))

	recent, err := events.Recent("BTCUSDT", 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, sink.TypeDecision, recent[0].Type)
	assert.Equal(t, watcher.ActionHold, recent[0].Action)
	// The decision record carries the snapshot time, not the wall clock.
	assert.True(t, recent[0].At.Equal(snapAt))
}

func TestScanAbortEmitsLifecycleEvent(t *testing.T) {
	// Spread near 100bps against a 25bps cap with the filter set to abort.
	source := &fakeSource{snap: rawSnap(time.Now(), wideBook())}
	svc, reg, events := testService(t, source)
	limits := testLimits()
	limits.RMFilterAction = watcher.ActionAbort
	scheduleTestWatch(t, reg, limits)

	svc.Scan(context.Background())

	entry, ok := reg.Get("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, watcher.StateAborted, entry.State)
	assert.Equal(t, watcher.StatusCompleted, entry.Status)

	recent, err := events.Recent("BTCUSDT", 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, sink.TypeWatchAborted, recent[0].Type)
	assert.Equal(t, sink.TypeDecision, recent[1].Type)
	assert.Equal(t, watcher.ReasonRMFilter, recent[1].Reason)
}

func TestScanFetchFailureDefersTick(t *testing.T) {
	source := &fakeSource{err: errors.New("upstream down")}
	svc, reg, events := testService(t, source)
	scheduleTestWatch(t, reg, testLimits())

	svc.Scan(context.Background())

	entry, ok := reg.Get("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 0, entry.Checks)
	assert.True(t, entry.NextRunAt.After(time.Now().Add(5*time.Second)))

	recent, err := events.Recent("", 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestScanSkipsInFlightSymbol(t *testing.T) {
	source := &fakeSource{snap: rawSnap(time.Now(), tightBook())}
	svc, reg, _ := testService(t, source)
	scheduleTestWatch(t, reg, testLimits())

	release, ok := reg.TryAcquire("BTCUSDT")
	require.True(t, ok)
	defer release()

	svc.Scan(context.Background())

	entry, _ := reg.Get("BTCUSDT")
	assert.Equal(t, 0, entry.Checks)
}
