package config

import "strings"

// Config is the root configuration document.
type Config struct {
	App    AppConfig    `yaml:"app"`
	Market MarketConfig `yaml:"market"`
	Watch  WatchConfig  `yaml:"watch"`
	Sink   SinkConfig   `yaml:"sink"`
}

type AppConfig struct {
	Env       string `yaml:"env"`
	LogLevel  string `yaml:"log_level"`
	HTTPAddr  string `yaml:"http_addr"`
	LogPath   string `yaml:"log_path"`
	StatePath string `yaml:"state_path"`
}

type MarketConfig struct {
	RESTBaseURL        string `yaml:"rest_base_url"`
	HTTPTimeoutSeconds int    `yaml:"http_timeout_seconds"`

	ProxyEnabled bool   `yaml:"proxy_enabled"`
	RESTProxyURL string `yaml:"rest_proxy_url"`

	RequestsPerSecond      float64 `yaml:"requests_per_second"`
	Burst                  int     `yaml:"burst"`
	BreakerThreshold       int     `yaml:"breaker_threshold"`
	BreakerCooldownSeconds int     `yaml:"breaker_cooldown_seconds"`

	KlineLimit int `yaml:"kline_limit"`
	DepthLimit int `yaml:"depth_limit"`
}

// ScoreWeightsConfig mirrors the weighted-score components.
type ScoreWeightsConfig struct {
	Spring      float64 `yaml:"spring"`
	Absorb      float64 `yaml:"absorb"`
	OrderFlow   float64 `yaml:"order_flow"`
	Structure   float64 `yaml:"structure"`
	VWAPReclaim float64 `yaml:"vwap_reclaim"`
}

// WatchConfig carries the kill switch plus the default limits stamped onto
// each entry at schedule time. Per-watch overrides arrive through the
// schedule request, not here.
type WatchConfig struct {
	Enabled            bool `yaml:"enabled"`
	MaxConcurrentTicks int  `yaml:"max_concurrent_ticks"`

	TTLMinutes       int `yaml:"ttl_minutes"`
	DebounceRequired int `yaml:"debounce_required"`
	PollIntervalSec  int `yaml:"poll_interval_sec"`
	JitterSec        int `yaml:"jitter_sec"`

	WallBandBps    float64 `yaml:"wall_band_bps"`
	MaxSpreadBps   float64 `yaml:"max_spread_bps"`
	MaxSlippageBps float64 `yaml:"max_slippage_bps"`
	RMFilterAction string  `yaml:"rm_filter_action"`

	MaxTopUps               int   `yaml:"max_top_ups"`
	CooldownSec             int   `yaml:"cooldown_sec"`
	CooldownMsOnHold        int   `yaml:"cooldown_ms_on_hold"`
	GraceWindowMsAfterTouch int   `yaml:"grace_window_ms_after_touch"`
	MaxWatchDurationMs      int64 `yaml:"max_watch_duration_ms"`

	ConsumeBidWallPct3s  float64 `yaml:"consume_bid_wall_pct_3s"`
	RefreshBidWallPct10s float64 `yaml:"refresh_bid_wall_pct_10s"`
	DwellMs              float64 `yaml:"dwell_ms"`

	MildBiasEnabled        bool               `yaml:"mild_bias_enabled"`
	ReversalScoreThreshold float64            `yaml:"reversal_score_threshold"`
	Weights                ScoreWeightsConfig `yaml:"weights"`

	OBI5Min                float64 `yaml:"obi5_min"`
	OBI20Min               float64 `yaml:"obi20_min"`
	OBI20ContDownAbort     float64 `yaml:"obi20_cont_down_abort"`
	MicropriceConfirmMinMs float64 `yaml:"microprice_confirm_min_ms"`
	VWAPReclaimBandATR     float64 `yaml:"vwap_reclaim_band_atr"`
	MinPilotSize           float64 `yaml:"min_pilot_size"`

	SlippageNotionalUSD float64 `yaml:"slippage_notional_usd"`
}

type SinkConfig struct {
	EventsPath string `yaml:"events_path"`
	DBPath     string `yaml:"db_path"`
}

// keySet records which config keys the operator actually set, so defaults
// never clobber an explicit zero.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault is one field's defaulting rule.
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
