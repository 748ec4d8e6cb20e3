package app

import (
	"context"

	"anchorwatch/internal/logger"
	"anchorwatch/internal/watcher"
)

// Executor receives qualified top-up signals. Order placement is out of
// scope here; implementations bridge to whatever executes the trade.
type Executor interface {
	ExecuteTopUp(ctx context.Context, e watcher.Entry, d watcher.Decision) error
}

// LogExecutor records the signal and does nothing else. The default when
// no execution bridge is wired in.
type LogExecutor struct{}

func (LogExecutor) ExecuteTopUp(_ context.Context, e watcher.Entry, d watcher.Decision) error {
	logger.Infof("TOP_UP_ELIGIBLE symbol=%s reason=%s confidence=%.2f emitted=%d/%d reasoning=%s",
		e.Symbol, d.Reason, d.Confidence, e.TopUpsEmitted+1, e.Limits.MaxTopUps, d.Reasoning)
	return nil
}
