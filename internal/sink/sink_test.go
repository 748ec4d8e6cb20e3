package sink

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anchorwatch/internal/watcher"
)

func testEvent(symbol string, at time.Time) Event {
	return Event{
		ID:         fmt.Sprintf("id-%s-%d", symbol, at.UnixMilli()),
		Type:       TypeDecision,
		Symbol:     symbol,
		At:         at,
		Action:     watcher.ActionHold,
		Reason:     watcher.ReasonNone,
		Confidence: 0.5,
		State:      watcher.StateMonitoring,
		Telemetry:  map[string]any{"spread_bps": 4.2},
	}
}

func TestFileSinkAppendAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	s, err := NewFileSink(path)
	require.NoError(t, err)
	defer s.Close()

	t0 := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Append(testEvent("BTCUSDT", t0)))
	require.NoError(t, s.Append(testEvent("ETHUSDT", t0.Add(time.Second))))

	events, err := s.LoadAll()
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "BTCUSDT", events[0].Symbol)
	assert.Equal(t, "ETHUSDT", events[1].Symbol)
	assert.Equal(t, TypeDecision, events[0].Type)
	assert.InDelta(t, 4.2, events[0].Telemetry["spread_bps"].(float64), 1e-9)
}

func TestFileSinkSkipsTornLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	s, err := NewFileSink(path)
	require.NoError(t, err)

	t0 := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Append(testEvent("BTCUSDT", t0)))
	require.NoError(t, s.Close())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"id":"torn","type":"DECIS`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	s2, err := NewFileSink(path)
	require.NoError(t, err)
	defer s2.Close()
	events, err := s2.LoadAll()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "BTCUSDT", events[0].Symbol)
}

func TestMemorySinkRecentNewestFirst(t *testing.T) {
	s := NewMemorySink(4)
	t0 := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		sym := "BTCUSDT"
		if i%2 == 1 {
			sym = "ETHUSDT"
		}
		require.NoError(t, s.Append(testEvent(sym, t0.Add(time.Duration(i)*time.Second))))
	}

	// Ring of 4 holds ticks 2..5; newest first.
	all, err := s.Recent("", 10)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, t0.Add(5*time.Second), all[0].At)
	assert.Equal(t, t0.Add(2*time.Second), all[3].At)

	eth, err := s.Recent("ethusdt", 10)
	require.NoError(t, err)
	require.Len(t, eth, 2)
	for _, evt := range eth {
		assert.Equal(t, "ETHUSDT", evt.Symbol)
	}
}

func TestMultiSwallowsFailures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	file, err := NewFileSink(path)
	require.NoError(t, err)

	broken, err := NewFileSink(filepath.Join(t.TempDir(), "broken.jsonl"))
	require.NoError(t, err)
	require.NoError(t, broken.Close()) // appends will fail on the closed file

	multi := NewMulti(broken, file)
	require.NoError(t, multi.Append(testEvent("BTCUSDT", time.Now())))

	events, err := file.LoadAll()
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestNewDecisionMapsEligibleToTopUpSignal(t *testing.T) {
	entry := &watcher.Entry{Symbol: "BTCUSDT", State: watcher.StateEligible}
	evt := NewDecision(entry, watcher.Decision{
		Action: watcher.ActionEligible,
		Reason: watcher.ReasonSpring,
	}, time.Now())
	assert.Equal(t, TypeTopUpSignal, evt.Type)
	assert.NotEmpty(t, evt.ID)
	assert.Equal(t, watcher.StateEligible, evt.State)
}
