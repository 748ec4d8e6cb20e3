package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"anchorwatch/internal/feature"
	"anchorwatch/internal/logger"
	"anchorwatch/internal/market"
	"anchorwatch/internal/scheduler"
	"anchorwatch/internal/sink"
	"anchorwatch/internal/watcher"
	"anchorwatch/internal/watcher/registry"
)

// scanInterval is how often the due scan runs. Entry pacing comes from the
// registry's jittered NextRunAt, so the scan just has to be fine-grained.
const scanInterval = time.Second

// WatchService runs the tick pipeline: due entries in, decisions and
// events out.
type WatchService struct {
	reg       *registry.Registry
	source    market.Source
	extractor *feature.Extractor
	events    sink.Sink
	executor  Executor

	maxConcurrent int
	nowFn         func() time.Time
}

func NewWatchService(reg *registry.Registry, source market.Source, extractor *feature.Extractor, events sink.Sink, executor Executor, maxConcurrent int) *WatchService {
	if executor == nil {
		executor = LogExecutor{}
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &WatchService{
		reg:           reg,
		source:        source,
		extractor:     extractor,
		events:        events,
		executor:      executor,
		maxConcurrent: maxConcurrent,
		nowFn:         time.Now,
	}
}

// Run blocks until ctx is cancelled.
func (s *WatchService) Run(ctx context.Context) error {
	sched := scheduler.NewPollScheduler(ctx, scanInterval)
	sched.RunImmediately = true
	sched.Start(func() { s.Scan(ctx) })
	return nil
}

// Scan processes every due entry once, bounded by maxConcurrent. Symbols
// with a tick already in flight are skipped; they stay due and the next
// scan picks them up.
func (s *WatchService) Scan(ctx context.Context) {
	due := s.reg.GetDue()
	if len(due) == 0 {
		return
	}
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(s.maxConcurrent)
	for _, entry := range due {
		entry := entry
		group.Go(func() error {
			s.tick(ctx, entry)
			return nil
		})
	}
	_ = group.Wait()
}

func (s *WatchService) tick(ctx context.Context, e watcher.Entry) {
	release, ok := s.reg.TryAcquire(e.Symbol)
	if !ok {
		return
	}
	defer release()

	raw, err := s.source.FetchSnapshot(ctx, e.Symbol)
	if err != nil {
		logger.Warnf("tick %s: snapshot fetch failed: %v", e.Symbol, err)
		s.deferTick(e)
		return
	}

	snap := s.extractor.Extract(raw, e.Pilot.Anchor())
	decision := watcher.Evaluate(e, snap)

	s.reg.ObserveWalls(e.Symbol, snap)
	if err := s.reg.ApplyResult(e.Symbol, decision, snap.At); err != nil {
		logger.Warnf("tick %s: apply result failed: %v", e.Symbol, err)
		return
	}

	s.emit(sink.NewDecision(&e, decision, snap.At))

	now := s.nowFn()

	after, _ := s.reg.Get(e.Symbol)
	switch after.State {
	case watcher.StateExpired:
		s.emit(sink.NewLifecycle(sink.TypeWatchExpired, &after, now))
	case watcher.StateAborted:
		s.emit(sink.NewLifecycle(sink.TypeWatchAborted, &after, now))
	}

	if decision.Action != watcher.ActionEligible {
		return
	}
	if err := s.executor.ExecuteTopUp(ctx, after, decision); err != nil {
		logger.Errorf("tick %s: executor failed: %v", e.Symbol, err)
		return
	}
	if err := s.reg.RecordTopUp(e.Symbol); err != nil {
		logger.Warnf("tick %s: record top-up failed: %v", e.Symbol, err)
		return
	}
	if done, _ := s.reg.Get(e.Symbol); done.Status == watcher.StatusCompleted {
		s.emit(sink.NewLifecycle(sink.TypeWatchCompleted, &done, now))
	}
}

// deferTick pushes a failed tick one poll interval out so a dead upstream
// does not busy-loop the symbol.
func (s *WatchService) deferTick(e watcher.Entry) {
	poll := e.Limits.PollIntervalSec
	if poll <= 0 {
		poll = 10
	}
	_ = s.reg.Update(e.Symbol, func(entry *watcher.Entry) {
		entry.NextRunAt = s.nowFn().Add(time.Duration(poll) * time.Second)
	})
}

func (s *WatchService) emit(evt sink.Event) {
	if s.events == nil {
		return
	}
	_ = s.events.Append(evt)
}
