package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"anchorwatch/internal/watcher"
)

// Env vars that override watch.enabled. The kill switch must work without a
// config edit, so the disable flag always wins.
const (
	EnvDisabled = "ANCHORWATCH_DISABLED"
	EnvEnabled  = "ANCHORWATCH_ENABLED"
)

func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	setKeys := make(keySet)
	collectSettingsKeys(v.AllSettings(), setKeys)
	cfg.applyDefaults(setKeys)
	applyEnvOverrides(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if val, ok := envBool(EnvDisabled); ok && val {
		cfg.Watch.Enabled = false
		return
	}
	if val, ok := envBool(EnvEnabled); ok {
		cfg.Watch.Enabled = val
	}
}

func envBool(name string) (bool, bool) {
	raw, ok := os.LookupEnv(name)
	if !ok {
		return false, false
	}
	val, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, false
	}
	return val, true
}

// Limits resolves the default per-entry limits from the watch section.
// Schedule requests may override individual fields afterwards.
func (w WatchConfig) Limits() watcher.Limits {
	action := watcher.ActionHold
	if strings.EqualFold(strings.TrimSpace(w.RMFilterAction), string(watcher.ActionAbort)) ||
		strings.EqualFold(strings.TrimSpace(w.RMFilterAction), "ABORT") {
		action = watcher.ActionAbort
	}
	return watcher.Limits{
		TTLMinutes:       w.TTLMinutes,
		DebounceRequired: w.DebounceRequired,
		PollIntervalSec:  w.PollIntervalSec,
		JitterSec:        w.JitterSec,

		WallBandBps:    w.WallBandBps,
		MaxSpreadBps:   w.MaxSpreadBps,
		MaxSlippageBps: w.MaxSlippageBps,
		RMFilterAction: action,

		MaxTopUps:               w.MaxTopUps,
		CooldownSec:             w.CooldownSec,
		CooldownMsOnHold:        w.CooldownMsOnHold,
		GraceWindowMsAfterTouch: w.GraceWindowMsAfterTouch,
		MaxWatchDurationMs:      w.MaxWatchDurationMs,

		ConsumeBidWallPct3s:  w.ConsumeBidWallPct3s,
		RefreshBidWallPct10s: w.RefreshBidWallPct10s,
		DwellMs:              w.DwellMs,

		MildBiasEnabled:        w.MildBiasEnabled,
		ReversalScoreThreshold: w.ReversalScoreThreshold,
		Weights: watcher.ScoreWeights{
			Spring:      w.Weights.Spring,
			Absorb:      w.Weights.Absorb,
			OrderFlow:   w.Weights.OrderFlow,
			Structure:   w.Weights.Structure,
			VWAPReclaim: w.Weights.VWAPReclaim,
		},

		OBI5Min:                w.OBI5Min,
		OBI20Min:               w.OBI20Min,
		OBI20ContDownAbort:     w.OBI20ContDownAbort,
		MicropriceConfirmMinMs: w.MicropriceConfirmMinMs,
		VWAPReclaimBandATR:     w.VWAPReclaimBandATR,
		MinPilotSize:           w.MinPilotSize,
	}
}

func collectSettingsKeys(settings map[string]any, dest keySet) {
	if dest == nil || len(settings) == 0 {
		return
	}
	flattenConfigKeys("", settings, dest)
}

func flattenConfigKeys(prefix string, node any, dest keySet) {
	switch val := node.(type) {
	case map[string]any:
		for k, v := range val {
			next := strings.ToLower(strings.TrimSpace(k))
			if next == "" {
				continue
			}
			if prefix != "" {
				next = prefix + "." + next
			}
			flattenConfigKeys(next, v, dest)
		}
	case map[interface{}]interface{}:
		for k, v := range val {
			keyStr, ok := k.(string)
			if !ok {
				continue
			}
			next := strings.ToLower(strings.TrimSpace(keyStr))
			if next == "" {
				continue
			}
			if prefix != "" {
				next = prefix + "." + next
			}
			flattenConfigKeys(next, v, dest)
		}
	case []any:
		if prefix != "" {
			dest.mark(prefix)
		}
		for _, item := range val {
			flattenConfigKeys(prefix, item, dest)
		}
	default:
		if prefix != "" {
			dest.mark(prefix)
		}
	}
}
