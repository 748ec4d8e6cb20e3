package config

import "strings"

const (
	defaultAppEnv      = "dev"
	defaultAppLogLevel = "info"
	defaultAppHTTPAddr = ":9984"
	defaultAppLogPath  = "/data/logs/anchorwatch.log"
	defaultStatePath   = "/data/state/watches.json"

	defaultMarketREST        = "https://fapi.binance.com"
	defaultMarketHTTPTimeout = 15
	defaultMarketRPS         = 8.0
	defaultMarketBurst       = 16
	defaultBreakerThreshold  = 5
	defaultBreakerCooldown   = 30
	defaultKlineLimit        = 120
	defaultDepthLimit        = 20

	defaultMaxConcurrentTicks = 4

	defaultTTLMinutes       = 45
	defaultDebounceRequired = 2
	defaultPollIntervalSec  = 10
	defaultJitterSec        = 3

	defaultWallBandBps    = 25.0
	defaultMaxSpreadBps   = 25.0
	defaultMaxSlippageBps = 50.0

	defaultMaxTopUps        = 2
	defaultCooldownSec      = 90
	defaultGraceWindowMs    = 120000
	defaultConsumePct3s     = 60.0
	defaultRefreshPct10s    = 25.0
	defaultDwellMs          = 1500.0
	defaultScoreThreshold   = 0.6
	defaultOBI5Min          = 0.15
	defaultOBI20Min         = 0.1
	defaultOBI20ContAbort   = -0.25
	defaultMicropriceMs     = 1200.0
	defaultVWAPBandATR      = 0.25
	defaultMinPilotSize     = 10.0
	defaultSlippageNotional = 5000.0

	defaultEventsPath = "/data/live/events.jsonl"
)

func defaultWeights() ScoreWeightsConfig {
	return ScoreWeightsConfig{
		Spring:      0.30,
		Absorb:      0.25,
		OrderFlow:   0.20,
		Structure:   0.15,
		VWAPReclaim: 0.10,
	}
}

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.Watch.applyDefaults(keys)
	c.Sink.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		stringFieldDefault("app.state_path", &a.StatePath, defaultStatePath),
	)
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("market.rest_base_url", &m.RESTBaseURL, defaultMarketREST),
		intFieldDefault("market.http_timeout_seconds", &m.HTTPTimeoutSeconds, defaultMarketHTTPTimeout),
		floatFieldDefault("market.requests_per_second", &m.RequestsPerSecond, defaultMarketRPS),
		intFieldDefault("market.burst", &m.Burst, defaultMarketBurst),
		intFieldDefault("market.breaker_threshold", &m.BreakerThreshold, defaultBreakerThreshold),
		intFieldDefault("market.breaker_cooldown_seconds", &m.BreakerCooldownSeconds, defaultBreakerCooldown),
		intFieldDefault("market.kline_limit", &m.KlineLimit, defaultKlineLimit),
		intFieldDefault("market.depth_limit", &m.DepthLimit, defaultDepthLimit),
	)
}

func (w *WatchConfig) applyDefaults(keys keySet) {
	if w == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("watch.enabled", &w.Enabled, true),
		intFieldDefault("watch.max_concurrent_ticks", &w.MaxConcurrentTicks, defaultMaxConcurrentTicks),
		intFieldDefault("watch.ttl_minutes", &w.TTLMinutes, defaultTTLMinutes),
		intFieldDefault("watch.debounce_required", &w.DebounceRequired, defaultDebounceRequired),
		intFieldDefault("watch.poll_interval_sec", &w.PollIntervalSec, defaultPollIntervalSec),
		intFieldDefault("watch.jitter_sec", &w.JitterSec, defaultJitterSec),
		floatFieldDefault("watch.wall_band_bps", &w.WallBandBps, defaultWallBandBps),
		floatFieldDefault("watch.max_spread_bps", &w.MaxSpreadBps, defaultMaxSpreadBps),
		floatFieldDefault("watch.max_slippage_bps", &w.MaxSlippageBps, defaultMaxSlippageBps),
		stringFieldDefault("watch.rm_filter_action", &w.RMFilterAction, "HOLD"),
		intFieldDefault("watch.max_top_ups", &w.MaxTopUps, defaultMaxTopUps),
		intFieldDefault("watch.cooldown_sec", &w.CooldownSec, defaultCooldownSec),
		intFieldDefault("watch.grace_window_ms_after_touch", &w.GraceWindowMsAfterTouch, defaultGraceWindowMs),
		floatFieldDefault("watch.consume_bid_wall_pct_3s", &w.ConsumeBidWallPct3s, defaultConsumePct3s),
		floatFieldDefault("watch.refresh_bid_wall_pct_10s", &w.RefreshBidWallPct10s, defaultRefreshPct10s),
		floatFieldDefault("watch.dwell_ms", &w.DwellMs, defaultDwellMs),
		boolFieldDefault("watch.mild_bias_enabled", &w.MildBiasEnabled, true),
		floatFieldDefault("watch.reversal_score_threshold", &w.ReversalScoreThreshold, defaultScoreThreshold),
		floatFieldDefault("watch.obi5_min", &w.OBI5Min, defaultOBI5Min),
		floatFieldDefault("watch.obi20_min", &w.OBI20Min, defaultOBI20Min),
		fieldDefault{
			key:   "watch.obi20_cont_down_abort",
			need:  func() bool { return w.OBI20ContDownAbort == 0 },
			apply: func() { w.OBI20ContDownAbort = defaultOBI20ContAbort },
		},
		floatFieldDefault("watch.microprice_confirm_min_ms", &w.MicropriceConfirmMinMs, defaultMicropriceMs),
		floatFieldDefault("watch.vwap_reclaim_band_atr", &w.VWAPReclaimBandATR, defaultVWAPBandATR),
		floatFieldDefault("watch.min_pilot_size", &w.MinPilotSize, defaultMinPilotSize),
		floatFieldDefault("watch.slippage_notional_usd", &w.SlippageNotionalUSD, defaultSlippageNotional),
		fieldDefault{
			key:   "watch.weights",
			need:  func() bool { return w.Weights == (ScoreWeightsConfig{}) },
			apply: func() { w.Weights = defaultWeights() },
		},
	)
}

func (s *SinkConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("sink.events_path", &s.EventsPath, defaultEventsPath),
	)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
