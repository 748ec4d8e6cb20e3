// Package scheduler drives the watch loop: a fixed-interval scan that asks
// the registry for due entries. Per-entry pacing (poll interval, jitter,
// cooldown) lives in the registry; the scan only has to be frequent enough
// to not add noticeable latency on top of it.
package scheduler

import (
	"context"
	"time"

	"anchorwatch/internal/logger"
)

type PollScheduler struct {
	Interval       time.Duration
	RunImmediately bool

	ctx   context.Context
	nowFn func() time.Time
}

func NewPollScheduler(ctx context.Context, interval time.Duration) *PollScheduler {
	if ctx == nil {
		ctx = context.Background()
	}
	return &PollScheduler{
		Interval: interval,
		ctx:      ctx,
		nowFn:    time.Now,
	}
}

// Start runs task every Interval until the context is cancelled. Blocking;
// the task's own duration is not subtracted from the interval, so a slow
// scan stretches the cycle instead of overlapping it.
func (s *PollScheduler) Start(task func()) {
	if s == nil {
		return
	}
	if task == nil {
		logger.Warnf("PollScheduler: task is nil, exit")
		return
	}
	if s.Interval <= 0 {
		logger.Warnf("PollScheduler: invalid interval=%s, exit", s.Interval)
		return
	}
	if s.ctx == nil {
		s.ctx = context.Background()
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}

	logger.Infof("PollScheduler: started interval=%s run_immediately=%v", s.Interval, s.RunImmediately)

	if s.RunImmediately {
		task()
	}

	timer := time.NewTimer(s.Interval)
	defer timer.Stop()
	for {
		select {
		case <-s.ctx.Done():
			logger.Infof("PollScheduler: context cancelled, stopping")
			return
		case <-timer.C:
		}
		task()
		timer.Reset(s.Interval)
	}
}
