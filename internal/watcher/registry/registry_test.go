package registry

import (
	"errors"
	"testing"
	"time"

	"anchorwatch/internal/watcher"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func testRequest(symbol string) ScheduleRequest {
	return ScheduleRequest{
		Symbol: symbol,
		Pilot:  watcher.Pilot{EntryPrice: 100, Size: 50, OpenedAt: base},
		Plan:   watcher.Plan{TargetSize: 100},
		Limits: watcher.Limits{
			TTLMinutes:       30,
			PollIntervalSec:  10,
			JitterSec:        3,
			DebounceRequired: 2,
			MaxTopUps:        2,
			CooldownSec:      60,
			MinPilotSize:     10,
		},
	}
}

func newTestRegistry(t time.Time, store Store) *Registry {
	return New(store,
		WithClock(fixedClock(t)),
		WithRand(func() float64 { return 0.5 }),
	)
}

func TestSchedule_JitteredNextRun(t *testing.T) {
	store := NewMemoryStore()
	r := newTestRegistry(base, store)

	require.NoError(t, r.Schedule(testRequest("ETHUSDT")))

	e, ok := r.Get("ETHUSDT")
	require.True(t, ok)
	assert.Equal(t, watcher.StatusRunning, e.Status)
	assert.Equal(t, watcher.StateMonitoring, e.State)
	assert.Equal(t, base.Add(30*time.Minute), e.DeadlineAt)
	// uniform(7,13) with rand=0.5 → 10s
	assert.Equal(t, base.Add(10*time.Second), e.NextRunAt)
	assert.Equal(t, 1, store.Saves())
}

func TestSchedule_RejectsDustPilot(t *testing.T) {
	r := newTestRegistry(base, NewMemoryStore())
	req := testRequest("ETHUSDT")
	req.Pilot.Size = 5 // below MinPilotSize 10
	assert.Error(t, r.Schedule(req))
}

func TestSchedule_DisabledIsNoOp(t *testing.T) {
	store := NewMemoryStore()
	r := New(store, WithClock(fixedClock(base)), WithEnabled(false))
	require.NoError(t, r.Schedule(testRequest("ETHUSDT")))
	_, ok := r.Get("ETHUSDT")
	assert.False(t, ok)
	assert.Equal(t, 0, store.Saves())
}

func TestSetEnabled_ReopensScheduling(t *testing.T) {
	store := NewMemoryStore()
	r := New(store, WithClock(fixedClock(base)), WithEnabled(false))
	require.NoError(t, r.Schedule(testRequest("ETHUSDT")))
	_, ok := r.Get("ETHUSDT")
	assert.False(t, ok)

	r.SetEnabled(true)
	require.NoError(t, r.Schedule(testRequest("ETHUSDT")))
	_, ok = r.Get("ETHUSDT")
	assert.True(t, ok)
}

func TestGetDue_NeverReturnsFutureOrCompleted(t *testing.T) {
	store := NewMemoryStore()
	r := newTestRegistry(base, store)
	require.NoError(t, r.Schedule(testRequest("AAAUSDT")))
	require.NoError(t, r.Schedule(testRequest("BBBUSDT")))
	require.NoError(t, r.Schedule(testRequest("CCCUSDT")))

	// Nothing due yet: all NextRunAt are 10s out.
	assert.Empty(t, r.GetDue())

	// Force AAA due, retire BBB with its due time in the past.
	require.NoError(t, r.Update("AAAUSDT", func(e *watcher.Entry) {
		e.NextRunAt = base.Add(-time.Second)
	}))
	require.NoError(t, r.Update("BBBUSDT", func(e *watcher.Entry) {
		e.NextRunAt = base.Add(-time.Second)
	}))
	require.NoError(t, r.Complete("BBBUSDT"))

	due := r.GetDue()
	require.Len(t, due, 1)
	assert.Equal(t, "AAAUSDT", due[0].Symbol)

	for _, e := range due {
		assert.Equal(t, watcher.StatusRunning, e.Status)
		assert.False(t, e.NextRunAt.After(base))
	}
}

func TestApplyResult_DebounceBookkeeping(t *testing.T) {
	r := newTestRegistry(base, NewMemoryStore())
	require.NoError(t, r.Schedule(testRequest("ETHUSDT")))

	d := watcher.Decision{
		Action: watcher.ActionHold, Reason: watcher.ReasonSpring,
		Signal: true, Debounce: 1,
	}
	require.NoError(t, r.ApplyResult("ETHUSDT", d, base))

	e, _ := r.Get("ETHUSDT")
	assert.Equal(t, 1, e.Checks)
	assert.Equal(t, watcher.ActionEligible, e.LastResult)
	assert.Equal(t, 1, e.DebounceCounter)
	assert.Equal(t, watcher.StateConfirming, e.State)
	assert.True(t, e.NextRunAt.After(base))

	// Signal lost: counter resets, state back to monitoring.
	require.NoError(t, r.ApplyResult("ETHUSDT", watcher.Decision{
		Action: watcher.ActionHold, Reason: watcher.ReasonNone,
	}, base))
	e, _ = r.Get("ETHUSDT")
	assert.Equal(t, watcher.ActionHold, e.LastResult)
	assert.Equal(t, 0, e.DebounceCounter)
	assert.Equal(t, watcher.StateMonitoring, e.State)
}

func TestApplyResult_HoldStretchesNextPoll(t *testing.T) {
	r := newTestRegistry(base, NewMemoryStore())
	req := testRequest("ETHUSDT")
	req.Limits.CooldownMsOnHold = 5_000
	require.NoError(t, r.Schedule(req))

	require.NoError(t, r.ApplyResult("ETHUSDT", watcher.Decision{
		Action: watcher.ActionHold, Reason: watcher.ReasonNone,
	}, base))
	e, _ := r.Get("ETHUSDT")
	// 10s jittered interval + 5s hold cooldown.
	assert.Equal(t, base.Add(15*time.Second), e.NextRunAt)
}

func TestApplyResult_ExpiredRetiresEntry(t *testing.T) {
	r := newTestRegistry(base, NewMemoryStore())
	require.NoError(t, r.Schedule(testRequest("ETHUSDT")))

	require.NoError(t, r.ApplyResult("ETHUSDT", watcher.Decision{
		Action: watcher.ActionHold, Reason: watcher.ReasonTTLExpired,
	}, base))
	e, _ := r.Get("ETHUSDT")
	assert.Equal(t, watcher.StatusCompleted, e.Status)
	assert.Equal(t, watcher.StateExpired, e.State)
	assert.Empty(t, r.GetDue())
}

func TestRecordTopUp_CooldownAndBudget(t *testing.T) {
	r := newTestRegistry(base, NewMemoryStore())
	require.NoError(t, r.Schedule(testRequest("ETHUSDT")))

	require.NoError(t, r.RecordTopUp("ETHUSDT"))
	e, _ := r.Get("ETHUSDT")
	assert.Equal(t, 1, e.TopUpsEmitted)
	assert.Equal(t, base.Add(60*time.Second), e.CooldownUntil)
	assert.Equal(t, watcher.StatusRunning, e.Status)

	// Second top-up exhausts MaxTopUps=2 and retires the watch.
	require.NoError(t, r.RecordTopUp("ETHUSDT"))
	e, _ = r.Get("ETHUSDT")
	assert.Equal(t, 2, e.TopUpsEmitted)
	assert.Equal(t, watcher.StatusCompleted, e.Status)
}

func TestRehydrate_DropsStaleClampsFresh(t *testing.T) {
	store := NewMemoryStore()
	stale := watcher.Entry{
		Symbol: "STALE", Status: watcher.StatusRunning,
		DeadlineAt: base.Add(-10 * time.Minute),
		NextRunAt:  base.Add(-10 * time.Minute),
	}
	fresh := watcher.Entry{
		Symbol: "FRESH", Status: watcher.StatusRunning,
		DeadlineAt: base.Add(-2 * time.Minute),
		NextRunAt:  base.Add(-2 * time.Minute),
	}
	store.Seed([]watcher.Entry{stale, fresh})

	r := newTestRegistry(base, store)
	require.NoError(t, r.Rehydrate())

	_, ok := r.Get("STALE")
	assert.False(t, ok)

	e, ok := r.Get("FRESH")
	require.True(t, ok)
	assert.Equal(t, base.Add(2*time.Second), e.NextRunAt)
}

func TestPersistFailureKeepsRunning(t *testing.T) {
	store := NewMemoryStore()
	r := newTestRegistry(base, store)
	require.NoError(t, r.Schedule(testRequest("ETHUSDT")))

	store.FailSaves(errors.New("disk full"))
	// Mutations still succeed in memory.
	require.NoError(t, r.ApplyResult("ETHUSDT", watcher.Decision{
		Action: watcher.ActionHold, Reason: watcher.ReasonNone,
	}, base))
	e, _ := r.Get("ETHUSDT")
	assert.Equal(t, 1, e.Checks)

	// And the next mutation after recovery persists again.
	store.FailSaves(nil)
	before := store.Saves()
	require.NoError(t, r.Complete("ETHUSDT"))
	assert.Equal(t, before+1, store.Saves())
}

func TestTryAcquire_SingleFlightPerSymbol(t *testing.T) {
	r := newTestRegistry(base, NewMemoryStore())

	release, ok := r.TryAcquire("ETHUSDT")
	require.True(t, ok)

	_, ok = r.TryAcquire("ETHUSDT")
	assert.False(t, ok)

	// Other symbols are independent.
	release2, ok := r.TryAcquire("BTCUSDT")
	assert.True(t, ok)
	release2()

	release()
	_, ok = r.TryAcquire("ETHUSDT")
	assert.True(t, ok)
}

func TestRemove(t *testing.T) {
	r := newTestRegistry(base, NewMemoryStore())
	require.NoError(t, r.Schedule(testRequest("ETHUSDT")))
	require.NoError(t, r.Remove("ETHUSDT"))
	_, ok := r.Get("ETHUSDT")
	assert.False(t, ok)
	assert.Error(t, r.Remove("ETHUSDT"))
}
