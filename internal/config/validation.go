package config

import (
	"fmt"
	"strings"
)

func validate(c *Config) error {
	if err := c.Watch.validate(); err != nil {
		return err
	}
	if err := c.Market.validate(); err != nil {
		return err
	}
	return nil
}

func (w *WatchConfig) validate() error {
	if w.DebounceRequired < 1 {
		return fmt.Errorf("watch.debounce_required must be >= 1")
	}
	if w.PollIntervalSec < 1 {
		return fmt.Errorf("watch.poll_interval_sec must be >= 1")
	}
	if w.JitterSec < 0 {
		return fmt.Errorf("watch.jitter_sec must be >= 0")
	}
	if w.TTLMinutes < 1 {
		return fmt.Errorf("watch.ttl_minutes must be >= 1")
	}
	if w.MaxTopUps < 0 {
		return fmt.Errorf("watch.max_top_ups must be >= 0")
	}
	switch strings.ToUpper(strings.TrimSpace(w.RMFilterAction)) {
	case "", "HOLD", "ABORT", "ABORT_TOPUP":
	default:
		return fmt.Errorf("watch.rm_filter_action must be HOLD or ABORT_TOPUP, got %q", w.RMFilterAction)
	}
	if w.ReversalScoreThreshold <= 0 || w.ReversalScoreThreshold > 1 {
		return fmt.Errorf("watch.reversal_score_threshold must be in (0, 1]")
	}
	sum := w.Weights.Spring + w.Weights.Absorb + w.Weights.OrderFlow +
		w.Weights.Structure + w.Weights.VWAPReclaim
	if sum <= 0 {
		return fmt.Errorf("watch.weights must have a positive sum")
	}
	return nil
}

func (m *MarketConfig) validate() error {
	if strings.TrimSpace(m.RESTBaseURL) == "" {
		return fmt.Errorf("market.rest_base_url cannot be empty")
	}
	if m.RequestsPerSecond <= 0 {
		return fmt.Errorf("market.requests_per_second must be > 0")
	}
	if m.DepthLimit < 20 {
		return fmt.Errorf("market.depth_limit must be >= 20 (wall detection reads the top 20 levels)")
	}
	return nil
}
