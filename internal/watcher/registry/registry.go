// Package registry owns the durable set of active watch entries: creation
// with jittered due times, due-entry queries, per-tick bookkeeping, and
// crash-recovery rehydration.
package registry

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"anchorwatch/internal/logger"
	"anchorwatch/internal/watcher"
)

const (
	// rehydrateDropAfter drops entries whose deadline passed longer ago
	// than this before a restart.
	rehydrateDropAfter = 5 * time.Minute

	// rehydrateMinDelay spreads restarted entries at least this far into
	// the future so a restart does not stampede the exchange.
	rehydrateMinDelay = 2 * time.Second

	// retiredHorizon pushes completed entries effectively out of the due
	// scan while keeping them inspectable.
	retiredHorizon = 8760 * time.Hour
)

// ScheduleRequest carries everything needed to open a new watch.
type ScheduleRequest struct {
	Symbol string
	Pilot  watcher.Pilot
	Plan   watcher.Plan
	Limits watcher.Limits
}

type Option func(*Registry)

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithRand injects the jitter source for tests.
func WithRand(f func() float64) Option {
	return func(r *Registry) { r.randFn = f }
}

// WithEnabled toggles the whole subsystem. When false, Schedule is a no-op.
func WithEnabled(enabled bool) Option {
	return func(r *Registry) { r.enabled = enabled }
}

// Registry is the explicit service object owning the entry map. All
// mutation goes through its API and is persisted after every change.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*watcher.Entry
	store   Store
	now     func() time.Time
	randFn  func() float64
	enabled bool

	flightMu sync.Mutex
	inFlight map[string]bool
}

func New(store Store, opts ...Option) *Registry {
	r := &Registry{
		entries:  make(map[string]*watcher.Entry),
		store:    store,
		now:      time.Now,
		randFn:   rand.Float64,
		enabled:  true,
		inFlight: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetEnabled flips the subsystem kill switch at runtime. Disabling stops
// new schedules; entries already being watched keep running.
func (r *Registry) SetEnabled(enabled bool) {
	r.mu.Lock()
	changed := r.enabled != enabled
	r.enabled = enabled
	r.mu.Unlock()
	if changed {
		logger.Warnf("registry enabled=%v", enabled)
	}
}

// Schedule registers a new watch for the request's symbol, superseding any
// existing entry. No-op when the subsystem is disabled; an error when the
// pilot is below the minimum watchable size.
func (r *Registry) Schedule(req ScheduleRequest) error {
	r.mu.Lock()
	enabled := r.enabled
	r.mu.Unlock()
	if !enabled {
		logger.Debugf("registry disabled, ignoring schedule for %s", req.Symbol)
		return nil
	}
	if req.Symbol == "" {
		return fmt.Errorf("schedule: symbol is required")
	}
	if min := req.Limits.MinPilotSize; min > 0 && req.Pilot.Size < min {
		return fmt.Errorf("schedule %s: pilot size %.8g below minimum %.8g", req.Symbol, req.Pilot.Size, min)
	}

	now := r.now()
	ttl := time.Duration(req.Limits.TTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = 45 * time.Minute
	}
	entry := &watcher.Entry{
		Symbol:     req.Symbol,
		Pilot:      req.Pilot,
		Plan:       req.Plan,
		Limits:     req.Limits,
		Status:     watcher.StatusRunning,
		State:      watcher.StateMonitoring,
		StartedAt:  now,
		DeadlineAt: now.Add(ttl),
		NextRunAt:  now.Add(r.jitteredInterval(req.Limits)),
	}

	r.mu.Lock()
	r.entries[req.Symbol] = entry
	r.persistLocked()
	r.mu.Unlock()

	logger.Infof("watch scheduled symbol=%s anchor=%.8g deadline=%s next=%s",
		req.Symbol, req.Pilot.Anchor(), entry.DeadlineAt.Format(time.RFC3339), entry.NextRunAt.Format(time.RFC3339))
	return nil
}

// jitteredInterval is now + uniform(lo, hi) where lo = max(1, poll-jitter)
// and hi = poll+jitter, in seconds.
func (r *Registry) jitteredInterval(l watcher.Limits) time.Duration {
	poll := l.PollIntervalSec
	if poll <= 0 {
		poll = 10
	}
	jitter := l.JitterSec
	if jitter < 0 {
		jitter = 0
	}
	lo := poll - jitter
	if lo < 1 {
		lo = 1
	}
	hi := poll + jitter
	span := float64(hi - lo)
	sec := float64(lo) + r.randFn()*span
	return time.Duration(sec * float64(time.Second))
}

// GetDue returns copies of all running entries whose NextRunAt is not in
// the future. Completed entries never qualify.
func (r *Registry) GetDue() []watcher.Entry {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []watcher.Entry
	for _, e := range r.entries {
		if e.Status != watcher.StatusRunning {
			continue
		}
		if e.NextRunAt.After(now) {
			continue
		}
		due = append(due, *e)
	}
	return due
}

// Get returns a copy of the entry for symbol.
func (r *Registry) Get(symbol string) (watcher.Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[symbol]
	if !ok {
		return watcher.Entry{}, false
	}
	return *e, true
}

// List returns copies of all entries, running and completed.
func (r *Registry) List() []watcher.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]watcher.Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e)
	}
	return out
}

// Update applies a mutation to the entry under the registry lock and
// persists the result.
func (r *Registry) Update(symbol string, mutate func(*watcher.Entry)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[symbol]
	if !ok {
		return fmt.Errorf("update: no watch for %s", symbol)
	}
	mutate(e)
	r.persistLocked()
	return nil
}

// ApplyResult records one tick's outcome: counters, debounce state, the
// confirmation state machine, and the next due time. An expired or aborted
// decision retires the entry.
func (r *Registry) ApplyResult(symbol string, d watcher.Decision, tickAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[symbol]
	if !ok {
		return fmt.Errorf("apply: no watch for %s", symbol)
	}

	e.Checks++
	e.LastTickAt = tickAt
	if d.Signal {
		e.LastResult = watcher.ActionEligible
		e.DebounceCounter = d.Debounce
	} else {
		e.LastResult = d.Action
		e.DebounceCounter = 0
	}
	e.State = watcher.NextState(e.State, d)

	if e.State == watcher.StateExpired || e.State == watcher.StateAborted {
		r.retireLocked(e)
	} else {
		next := r.now().Add(r.jitteredInterval(e.Limits))
		if d.Action == watcher.ActionHold && e.Limits.CooldownMsOnHold > 0 {
			next = next.Add(time.Duration(e.Limits.CooldownMsOnHold) * time.Millisecond)
		}
		e.NextRunAt = next
	}
	r.persistLocked()
	return nil
}

// ObserveWalls stores the last-seen wall prices from a snapshot.
func (r *Registry) ObserveWalls(symbol string, s watcher.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[symbol]
	if !ok {
		return
	}
	at := s.At
	if s.BidWallPrice != nil {
		e.LastBidWallPrice = s.BidWallPrice
		e.LastBidWallAt = &at
	}
	if s.AskWallPrice != nil {
		e.LastAskWallPrice = s.AskWallPrice
		e.LastAskWallAt = &at
	}
}

// RecordTopUp bumps the emission counter, starts the cooldown, and retires
// the watch once the budget is spent.
func (r *Registry) RecordTopUp(symbol string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[symbol]
	if !ok {
		return fmt.Errorf("top-up: no watch for %s", symbol)
	}
	e.TopUpsEmitted++
	if e.Limits.CooldownSec > 0 {
		e.CooldownUntil = r.now().Add(time.Duration(e.Limits.CooldownSec) * time.Second)
	}
	if e.Limits.MaxTopUps > 0 && e.TopUpsEmitted >= e.Limits.MaxTopUps {
		r.retireLocked(e)
		logger.Infof("watch %s retired after %d top-ups", symbol, e.TopUpsEmitted)
	}
	r.persistLocked()
	return nil
}

// Complete marks the entry completed and pushes it out of the due scan. The
// entry is retained for inspection.
func (r *Registry) Complete(symbol string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[symbol]
	if !ok {
		return fmt.Errorf("complete: no watch for %s", symbol)
	}
	r.retireLocked(e)
	r.persistLocked()
	return nil
}

func (r *Registry) retireLocked(e *watcher.Entry) {
	e.Status = watcher.StatusCompleted
	e.NextRunAt = r.now().Add(retiredHorizon)
}

// Remove deletes the entry outright.
func (r *Registry) Remove(symbol string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[symbol]; !ok {
		return fmt.Errorf("remove: no watch for %s", symbol)
	}
	delete(r.entries, symbol)
	r.persistLocked()
	return nil
}

// Rehydrate reloads persisted entries after a restart. Entries whose
// deadline passed more than five minutes ago are dropped; the rest have
// their due time clamped at least two seconds into the future.
func (r *Registry) Rehydrate() error {
	entries, err := r.store.Load()
	if err != nil {
		return fmt.Errorf("rehydrate: %w", err)
	}
	now := r.now()
	kept, dropped := 0, 0

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range entries {
		if e.Symbol == "" {
			dropped++
			continue
		}
		if e.Status == watcher.StatusRunning && now.Sub(e.DeadlineAt) > rehydrateDropAfter {
			dropped++
			continue
		}
		entry := e
		if entry.Status == watcher.StatusRunning {
			floor := now.Add(rehydrateMinDelay)
			if entry.NextRunAt.Before(floor) {
				entry.NextRunAt = floor
			}
		}
		r.entries[entry.Symbol] = &entry
		kept++
	}
	r.persistLocked()
	logger.Infof("registry rehydrated: kept=%d dropped=%d", kept, dropped)
	return nil
}

// TryAcquire claims the per-symbol flight slot. It returns false when a
// tick for the symbol is already in progress; on success the returned
// release must be called exactly once.
func (r *Registry) TryAcquire(symbol string) (release func(), ok bool) {
	r.flightMu.Lock()
	defer r.flightMu.Unlock()
	if r.inFlight[symbol] {
		return nil, false
	}
	r.inFlight[symbol] = true
	return func() {
		r.flightMu.Lock()
		delete(r.inFlight, symbol)
		r.flightMu.Unlock()
	}, true
}

// persistLocked writes the full registry through the store. Failures are
// logged and swallowed: the in-memory state keeps running and the next
// mutation retries the write.
func (r *Registry) persistLocked() {
	if r.store == nil {
		return
	}
	snapshot := make([]watcher.Entry, 0, len(r.entries))
	for _, e := range r.entries {
		snapshot = append(snapshot, *e)
	}
	if err := r.store.Save(snapshot); err != nil {
		logger.Errorf("registry persist failed: %v", err)
	}
}
