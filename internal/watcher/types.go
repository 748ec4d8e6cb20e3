// Package watcher holds the top-up watch domain: entry state, the snapshot
// the feature extractor produces each tick, and the decision the engine
// emits from the two.
package watcher

import (
	"time"

	"anchorwatch/internal/market"
)

// Action is the per-tick outcome.
type Action string

const (
	ActionHold     Action = "HOLD"
	ActionEligible Action = "TOP_UP_ELIGIBLE"
	ActionAbort    Action = "ABORT_TOPUP"
)

// Reason is the closed enumeration of decision reason codes.
type Reason string

const (
	ReasonNone             Reason = "NONE"
	ReasonTTLExpired       Reason = "TTL_EXPIRED"
	ReasonRMFilter         Reason = "RM_FILTER"
	ReasonFlip             Reason = "FLIP"
	ReasonDeltaATR         Reason = "DELTA_ATR"
	ReasonWallExhausted    Reason = "WALL_EXHAUSTED"
	ReasonContinuationDown Reason = "CONTINUATION_DOWN"
	ReasonSpring           Reason = "SPRING"
	ReasonAbsorb           Reason = "ABSORB"
	ReasonReversalScore    Reason = "REVERSAL_SCORE"
)

// Status of a watch entry.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
)

// State is the per-entry confirmation state machine.
//
//	MONITORING  --qualifying signal--> CONFIRMING
//	CONFIRMING  --counter reaches debounce_required--> ELIGIBLE
//	CONFIRMING  --signal lost--> MONITORING
//	ELIGIBLE    --top-up emitted, cooldown starts--> MONITORING
//	any         --TTL / max duration--> EXPIRED
//	any         --abort decision--> ABORTED
type State string

const (
	StateMonitoring State = "MONITORING"
	StateConfirming State = "CONFIRMING"
	StateEligible   State = "ELIGIBLE"
	StateAborted    State = "ABORTED"
	StateExpired    State = "EXPIRED"
)

// Pilot is the anchor position being watched.
type Pilot struct {
	EntryPrice    float64   `json:"entry_price"`
	Size          float64   `json:"size"`
	StopLoss      float64   `json:"stop_loss,omitempty"`
	TakeProfits   []float64 `json:"take_profits,omitempty"`
	OpenedAt      time.Time `json:"opened_at"`
	AnchorSupport *float64  `json:"anchor_support,omitempty"`
}

// Anchor returns the reversal anchor: the recorded support level, falling
// back to the entry price when none was supplied.
func (p Pilot) Anchor() float64 {
	if p.AnchorSupport != nil && *p.AnchorSupport > 0 {
		return *p.AnchorSupport
	}
	return p.EntryPrice
}

// Plan is the target state if top-ups succeed.
type Plan struct {
	TargetSize float64 `json:"target_size"`
}

// ScoreWeights are the independently-gated components of the weighted
// reversal score.
type ScoreWeights struct {
	Spring      float64 `json:"spring"`
	Absorb      float64 `json:"absorb"`
	OrderFlow   float64 `json:"order_flow"`
	Structure   float64 `json:"structure"`
	VWAPReclaim float64 `json:"vwap_reclaim"`
}

// Limits is the per-entry configuration, resolved once at schedule time.
type Limits struct {
	TTLMinutes       int `json:"ttl_minutes"`
	DebounceRequired int `json:"debounce_required"`
	PollIntervalSec  int `json:"poll_interval_sec"`
	JitterSec        int `json:"jitter_sec"`

	WallBandBps    float64 `json:"wall_band_bps"`
	MaxSpreadBps   float64 `json:"max_spread_bps"`
	MaxSlippageBps float64 `json:"max_slippage_bps"`
	RMFilterAction Action  `json:"rm_filter_action"` // HOLD (default) or ABORT_TOPUP

	MaxTopUps               int   `json:"max_top_ups"`
	CooldownSec             int   `json:"cooldown_sec"`
	CooldownMsOnHold        int   `json:"cooldown_ms_on_hold"`
	GraceWindowMsAfterTouch int   `json:"grace_window_ms_after_touch"`
	MaxWatchDurationMs      int64 `json:"max_watch_duration_ms"`

	ConsumeBidWallPct3s  float64 `json:"consume_bid_wall_pct_3s"`
	RefreshBidWallPct10s float64 `json:"refresh_bid_wall_pct_10s"`
	DwellMs              float64 `json:"dwell_ms"`

	MildBiasEnabled        bool         `json:"mild_bias_enabled"`
	ReversalScoreThreshold float64      `json:"reversal_score_threshold"`
	Weights                ScoreWeights `json:"weights"`

	OBI5Min                float64 `json:"obi5_min"`
	OBI20Min               float64 `json:"obi20_min"`
	OBI20ContDownAbort     float64 `json:"obi20_cont_down_abort"`
	MicropriceConfirmMinMs float64 `json:"microprice_confirm_min_ms"`
	VWAPReclaimBandATR     float64 `json:"vwap_reclaim_band_atr"`
	MinPilotSize           float64 `json:"min_pilot_size"`
}

// Entry is a single watched position. Owned exclusively by the registry;
// the engine only reads it.
type Entry struct {
	Symbol string `json:"symbol"`
	Pilot  Pilot  `json:"pilot"`
	Plan   Plan   `json:"plan"`
	Limits Limits `json:"limits"`

	Status     Status    `json:"status"`
	State      State     `json:"state"`
	StartedAt  time.Time `json:"started_at"`
	DeadlineAt time.Time `json:"deadline_at"`
	NextRunAt  time.Time `json:"next_run_at"`
	LastTickAt time.Time `json:"last_tick_at,omitempty"`

	Checks          int    `json:"checks"`
	DebounceCounter int    `json:"debounce_counter"`
	LastResult      Action `json:"last_result,omitempty"`
	TopUpsEmitted   int    `json:"top_ups_emitted"`

	CooldownUntil time.Time `json:"cooldown_until,omitempty"`

	LastBidWallPrice *float64   `json:"last_bid_wall_price,omitempty"`
	LastBidWallAt    *time.Time `json:"last_bid_wall_at,omitempty"`
	LastAskWallPrice *float64   `json:"last_ask_wall_price,omitempty"`
	LastAskWallAt    *time.Time `json:"last_ask_wall_at,omitempty"`
}

// MicroBias labels which side of the mid the microprice leans toward.
type MicroBias string

const (
	BiasNone MicroBias = ""
	BiasBid  MicroBias = "bid" // microprice below mid, pressure down
	BiasAsk  MicroBias = "ask" // microprice above mid, pressure up
)

// Snapshot is the extracted per-tick view of one symbol. Nil pointers mean
// the signal could not be computed; gates treat that as non-qualifying.
type Snapshot struct {
	Symbol string    `json:"symbol"`
	At     time.Time `json:"at"`

	Mark     float64 `json:"mark"`
	TickSize float64 `json:"tick_size"`

	ATR15m    *float64 `json:"atr_15m,omitempty"`
	EMA20x5m  *float64 `json:"ema20_5m,omitempty"`
	EMA50x5m  *float64 `json:"ema50_5m,omitempty"`
	EMA20x15m *float64 `json:"ema20_15m,omitempty"`
	EMA50x15m *float64 `json:"ema50_15m,omitempty"`
	VWAP      *float64 `json:"vwap,omitempty"`
	RSI       *float64 `json:"rsi,omitempty"`
	RSIDelta  *float64 `json:"rsi_delta,omitempty"`

	Microprice     *float64  `json:"microprice,omitempty"`
	MicropriceBias MicroBias `json:"microprice_bias,omitempty"`
	OBI5           *float64  `json:"obi5,omitempty"`
	OBI20          *float64  `json:"obi20,omitempty"`

	BidWallPrice   *float64 `json:"bid_wall_price,omitempty"`
	BidWallDistBps *float64 `json:"bid_wall_dist_bps,omitempty"`
	AskWallPrice   *float64 `json:"ask_wall_price,omitempty"`
	AskWallDistBps *float64 `json:"ask_wall_dist_bps,omitempty"`

	ConsumeBid3sPct  *float64 `json:"consume_bid_3s_pct,omitempty"`
	RefreshBid10sPct *float64 `json:"refresh_bid_10s_pct,omitempty"`
	BidDwellMs       *float64 `json:"bid_dwell_ms,omitempty"`

	SpreadBps   float64  `json:"spread_bps"`
	SlippageBps *float64 `json:"slippage_bps,omitempty"`
	PumpFlag    bool     `json:"pump_flag"`

	TakerDelta *float64 `json:"taker_delta,omitempty"`

	Candles1m []market.Candle `json:"-"`
}

// Decision is the engine output for one tick. Signal reports whether a
// qualifying reversal signal was present this tick regardless of debounce;
// the registry uses it to advance the confirmation counter.
type Decision struct {
	Action     Action         `json:"action"`
	Reason     Reason         `json:"reason"`
	Reasoning  string         `json:"reasoning"`
	Confidence float64        `json:"confidence"`
	Telemetry  map[string]any `json:"telemetry,omitempty"`

	Signal   bool `json:"-"`
	Debounce int  `json:"-"`
}

// Float returns a pointer to v. Convenience for optional snapshot fields.
func Float(v float64) *float64 { return &v }
