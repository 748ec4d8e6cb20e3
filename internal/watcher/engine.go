package watcher

import (
	"fmt"
	"time"
)

// Wall-failure thresholds. A bid wall counts as exhausted when 3 s
// consumption reaches 80% and the 10 s refresh stays (or is unknown to
// stay) below 15%.
const (
	wallFailConsumePct = 80.0
	wallFailRefreshPct = 15.0

	// flipVWAPBandATR is the fixed band for the structural flip flag;
	// the softer VWAP-hold checks use the configured reclaim band.
	flipVWAPBandATR = 0.15

	// springOrderFlowOBIMin is the minimum 5-level imbalance that counts
	// as non-negative order flow for the spring detector.
	springOrderFlowOBIMin = 0.1

	// springLookbackCandles bounds how far back the wick touch may sit.
	springLookbackCandles = 6

	// fallbackBufferPct of mark, used when neither ATR nor tick size is
	// known.
	fallbackBufferPct = 0.0005
)

// Evaluate maps a watch entry and an extracted snapshot to a decision. It is
// a pure function: identical inputs yield identical outputs, and the entry
// is never mutated here. Debounce bookkeeping is applied afterwards by the
// registry from Decision.Signal / Decision.Debounce.
//
// Gates run in strict priority order; the first match wins.
func Evaluate(e Entry, s Snapshot) Decision {
	now := s.At

	// 1. TTL / max watch duration.
	if !now.Before(e.DeadlineAt) || maxDurationReached(e, now) {
		return holdDecision(e, s, ReasonTTLExpired, "watch TTL expired", 0)
	}

	// Cooldown after an emitted top-up blocks everything below.
	if !e.CooldownUntil.IsZero() && now.Before(e.CooldownUntil) {
		d := holdDecision(e, s, ReasonNone, "in post-top-up cooldown", 0)
		d.Telemetry["cooldown_remaining_ms"] = e.CooldownUntil.Sub(now).Milliseconds()
		return d
	}

	// Exhausted top-up budget: nothing left to decide.
	if e.Limits.MaxTopUps > 0 && e.TopUpsEmitted >= e.Limits.MaxTopUps {
		return holdDecision(e, s, ReasonNone, "top-up budget exhausted", 0)
	}

	// 2. Risk filter. Unknown slippage never trips the filter.
	if blocked, why := riskFilterBlocked(e.Limits, s); blocked {
		action := ActionHold
		if e.Limits.RMFilterAction == ActionAbort {
			action = ActionAbort
		}
		d := decision(e, s, action, ReasonRMFilter, why, 0)
		return d
	}

	anchor := e.Pilot.Anchor()
	buffer := signalBuffer(s)

	// 3. Structural bias flip.
	if flipped, why := biasFlipped(e.Limits, s); flipped {
		return holdDecision(e, s, ReasonFlip, why, 0)
	}

	// 4. Price at or below entry − ATR behaves like a stop: stand aside.
	if s.ATR15m != nil && *s.ATR15m > 0 && s.Mark <= e.Pilot.EntryPrice-*s.ATR15m {
		return holdDecision(e, s, ReasonDeltaATR,
			fmt.Sprintf("mark %.8g fell below entry-ATR %.8g", s.Mark, e.Pilot.EntryPrice-*s.ATR15m), 0)
	}

	// 5. Wall failure: the supporting wall near the anchor got eaten.
	if wallExhausted(e.Limits, s, anchor, buffer) {
		return holdDecision(e, s, ReasonWallExhausted, "bid wall near anchor consumed without refresh", 0)
	}

	// 6. Continuation down: heavy ask-side book plus bearish microprice and
	// negative taker flow while price sits on the level.
	if continuationDown(e.Limits, s) {
		return holdDecision(e, s, ReasonContinuationDown, "order flow confirms continuation down", 0)
	}

	// 7. Reversal detectors.
	spring := detectSpring(e, s, anchor, buffer)
	absorb := detectAbsorb(e, s, anchor, buffer)
	score, parts := reversalScore(e.Limits, s, anchor, buffer)
	scoreHit := e.Limits.ReversalScoreThreshold > 0 && score >= e.Limits.ReversalScoreThreshold

	var reason Reason
	var why string
	switch {
	case spring:
		reason, why = ReasonSpring, "spring reclaim above anchor with supportive flow"
	case absorb:
		reason, why = ReasonAbsorb, "bid wall absorbing sell pressure at anchor"
	case scoreHit:
		reason, why = ReasonReversalScore,
			fmt.Sprintf("weighted reversal score %.2f >= %.2f", score, e.Limits.ReversalScoreThreshold)
	default:
		d := holdDecision(e, s, ReasonNone, "awaiting further confirmation", 0)
		d.Telemetry["reversal_score"] = score
		d.Telemetry["score_parts"] = parts
		return d
	}

	// 8. Debounce: the signal must persist across consecutive ticks.
	counter := 1
	if e.LastResult == ActionEligible {
		counter = e.DebounceCounter + 1
	}
	required := e.Limits.DebounceRequired
	if required < 1 {
		required = 1
	}
	conf := signalConfidence(score, e.Limits.ReversalScoreThreshold)

	if counter < required {
		d := holdDecision(e, s, reason,
			fmt.Sprintf("%s (confirmation %d/%d)", why, counter, required),
			conf*float64(counter)/float64(required))
		d.Signal = true
		d.Debounce = counter
		d.Telemetry["reversal_score"] = score
		d.Telemetry["score_parts"] = parts
		d.Telemetry["debounce"] = counter
		d.Telemetry["debounce_required"] = required
		return d
	}

	d := decision(e, s, ActionEligible, reason, why, conf)
	d.Signal = true
	d.Debounce = counter
	d.Telemetry["reversal_score"] = score
	d.Telemetry["score_parts"] = parts
	d.Telemetry["debounce"] = counter
	d.Telemetry["debounce_required"] = required
	return d
}

func maxDurationReached(e Entry, now time.Time) bool {
	if e.Limits.MaxWatchDurationMs <= 0 {
		return false
	}
	return now.Sub(e.StartedAt).Milliseconds() >= e.Limits.MaxWatchDurationMs
}

// riskFilterBlocked applies the liquidity/manipulation gate. Spread is
// always known; slippage only blocks when actually computed.
func riskFilterBlocked(l Limits, s Snapshot) (bool, string) {
	if l.MaxSpreadBps > 0 && s.SpreadBps > l.MaxSpreadBps {
		return true, fmt.Sprintf("spread %.1f bps exceeds limit %.1f", s.SpreadBps, l.MaxSpreadBps)
	}
	if l.MaxSlippageBps > 0 && s.SlippageBps != nil && *s.SlippageBps > l.MaxSlippageBps {
		return true, fmt.Sprintf("slippage %.1f bps exceeds limit %.1f", *s.SlippageBps, l.MaxSlippageBps)
	}
	if s.PumpFlag {
		return true, "pump filter active"
	}
	return false, ""
}

// biasFlipped checks the trend/VWAP structure. The EMA pairs are required;
// the VWAP leg participates only when VWAP and ATR are known, so a missing
// indicator never fires the gate but a determinate EMA breakdown does.
func biasFlipped(l Limits, s Snapshot) (bool, string) {
	if s.EMA20x5m == nil || s.EMA50x5m == nil || s.EMA20x15m == nil || s.EMA50x15m == nil {
		return false, ""
	}
	up5 := *s.EMA20x5m >= *s.EMA50x5m
	up15 := *s.EMA20x15m >= *s.EMA50x15m

	flags := 0
	if !up15 {
		flags++
	}
	if !up5 {
		flags++
	}
	vwapKnown := s.VWAP != nil && s.ATR15m != nil && *s.ATR15m > 0
	if vwapKnown && s.Mark < *s.VWAP-flipVWAPBandATR**s.ATR15m {
		flags++
	}
	if flags >= 2 {
		return true, fmt.Sprintf("structural flip: %d bearish flags", flags)
	}
	if !up5 || !up15 {
		return true, "trend/VWAP conjunction failed"
	}
	if vwapKnown && !vwapHold(l, s) {
		return true, "trend/VWAP conjunction failed"
	}
	return false, ""
}

// vwapHold reports mark holding above VWAP minus the configured ATR band.
// False when VWAP or ATR is unknown.
func vwapHold(l Limits, s Snapshot) bool {
	if s.VWAP == nil || s.ATR15m == nil || *s.ATR15m <= 0 {
		return false
	}
	return s.Mark >= *s.VWAP-l.VWAPReclaimBandATR**s.ATR15m
}

func wallExhausted(l Limits, s Snapshot, anchor, buffer float64) bool {
	if s.BidWallPrice == nil || anchor <= 0 {
		return false
	}
	if distBps(*s.BidWallPrice, anchor) > l.WallBandBps {
		return false
	}
	if s.ConsumeBid3sPct == nil || *s.ConsumeBid3sPct < wallFailConsumePct {
		return false
	}
	refreshLow := s.RefreshBid10sPct == nil || *s.RefreshBid10sPct < wallFailRefreshPct
	if !refreshLow {
		return false
	}
	return s.Mark < anchor-buffer
}

func continuationDown(l Limits, s Snapshot) bool {
	if s.OBI20 == nil || *s.OBI20 > l.OBI20ContDownAbort {
		return false
	}
	if s.MicropriceBias != BiasBid {
		return false
	}
	if s.BidDwellMs == nil || *s.BidDwellMs < l.MicropriceConfirmMinMs {
		return false
	}
	return s.TakerDelta != nil && *s.TakerDelta < 0
}

// signalBuffer is the price tolerance used around the anchor:
// max(0.1·ATR15m, 2·tick), or 4·tick without ATR, or a fixed fraction of
// mark when neither is available.
func signalBuffer(s Snapshot) float64 {
	if s.ATR15m != nil && *s.ATR15m > 0 {
		b := 0.1 * *s.ATR15m
		if s.TickSize > 0 && 2*s.TickSize > b {
			b = 2 * s.TickSize
		}
		return b
	}
	if s.TickSize > 0 {
		return 4 * s.TickSize
	}
	return s.Mark * fallbackBufferPct
}

// springTouch finds the most recent 1m candle among the last
// springLookbackCandles whose wick reached at or below the touch price.
func springTouch(s Snapshot, touchPrice float64) (idx int, ok bool) {
	candles := s.Candles1m
	start := len(candles) - springLookbackCandles
	if start < 0 {
		start = 0
	}
	for i := len(candles) - 1; i >= start; i-- {
		if candles[i].Low <= touchPrice {
			return i, true
		}
	}
	return 0, false
}

func detectSpring(e Entry, s Snapshot, anchor, buffer float64) bool {
	if anchor <= 0 || len(s.Candles1m) < 2 {
		return false
	}
	touchIdx, touched := springTouch(s, anchor-buffer)
	if !touched {
		return false
	}
	if g := e.Limits.GraceWindowMsAfterTouch; g > 0 {
		age := s.At.UnixMilli() - s.Candles1m[touchIdx].CloseTime
		if age > int64(g) {
			return false
		}
	}
	reclaim := anchor + 0.5*buffer
	n := len(s.Candles1m)
	if s.Candles1m[n-1].Close < reclaim || s.Candles1m[n-2].Close < reclaim {
		return false
	}
	if !orderFlowNonNegative(s) {
		return false
	}
	return liquidityWithinLimits(e.Limits, s)
}

func orderFlowNonNegative(s Snapshot) bool {
	if s.OBI5 != nil && *s.OBI5 >= springOrderFlowOBIMin {
		return true
	}
	if s.MicropriceBias == BiasAsk {
		return true
	}
	return s.TakerDelta != nil && *s.TakerDelta > 0
}

// liquidityWithinLimits is the positive-side check: both spread and
// slippage must be known to be inside limits.
func liquidityWithinLimits(l Limits, s Snapshot) bool {
	if l.MaxSpreadBps > 0 && s.SpreadBps > l.MaxSpreadBps {
		return false
	}
	if l.MaxSlippageBps > 0 {
		if s.SlippageBps == nil || *s.SlippageBps > l.MaxSlippageBps {
			return false
		}
	}
	return true
}

func detectAbsorb(e Entry, s Snapshot, anchor, buffer float64) bool {
	l := e.Limits
	if anchor <= 0 || s.BidWallPrice == nil {
		return false
	}
	if distBps(*s.BidWallPrice, anchor) > l.WallBandBps {
		return false
	}
	consumeOK := s.ConsumeBid3sPct != nil && *s.ConsumeBid3sPct >= l.ConsumeBidWallPct3s &&
		s.Mark >= anchor-buffer
	refreshOK := s.RefreshBid10sPct != nil && *s.RefreshBid10sPct >= l.RefreshBidWallPct10s &&
		s.BidDwellMs != nil && *s.BidDwellMs >= l.DwellMs
	if !consumeOK && !refreshOK {
		return false
	}
	if !trendBiasHolds(l, s) {
		return false
	}
	if !vwapHold(l, s) {
		return false
	}
	return liquidityWithinLimits(l, s)
}

// trendBiasHolds: strict mode needs EMA20>=EMA50 on both timeframes, mild
// mode accepts either.
func trendBiasHolds(l Limits, s Snapshot) bool {
	up5 := s.EMA20x5m != nil && s.EMA50x5m != nil && *s.EMA20x5m >= *s.EMA50x5m
	up15 := s.EMA20x15m != nil && s.EMA50x15m != nil && *s.EMA20x15m >= *s.EMA50x15m
	if l.MildBiasEnabled {
		return up5 || up15
	}
	return up5 && up15
}

// reversalScore sums independently-gated weights. Each component that
// cannot be computed contributes nothing.
func reversalScore(l Limits, s Snapshot, anchor, buffer float64) (float64, map[string]float64) {
	parts := make(map[string]float64, 5)
	score := 0.0

	// Spring + reclaim, price action only.
	if anchor > 0 && len(s.Candles1m) >= 2 {
		if _, touched := springTouch(s, anchor-buffer); touched {
			n := len(s.Candles1m)
			reclaim := anchor + 0.5*buffer
			if s.Candles1m[n-1].Close >= reclaim && s.Candles1m[n-2].Close >= reclaim {
				parts["spring"] = l.Weights.Spring
				score += l.Weights.Spring
			}
		}
	}

	// Bid-wall absorption.
	if anchor > 0 && s.BidWallPrice != nil && distBps(*s.BidWallPrice, anchor) <= l.WallBandBps {
		consume := s.ConsumeBid3sPct != nil && *s.ConsumeBid3sPct >= l.ConsumeBidWallPct3s
		refresh := s.RefreshBid10sPct != nil && *s.RefreshBid10sPct >= l.RefreshBidWallPct10s
		if consume || refresh {
			parts["absorb"] = l.Weights.Absorb
			score += l.Weights.Absorb
		}
	}

	// Order-flow bias.
	obiOK := (s.OBI5 != nil && *s.OBI5 >= l.OBI5Min) || (s.OBI20 != nil && *s.OBI20 >= l.OBI20Min)
	if obiOK && s.MicropriceBias == BiasAsk {
		parts["order_flow"] = l.Weights.OrderFlow
		score += l.Weights.OrderFlow
	}

	// Structural bias.
	if trendBiasHolds(l, s) {
		parts["structure"] = l.Weights.Structure
		score += l.Weights.Structure
	}

	// VWAP reclaim.
	if vwapHold(l, s) {
		parts["vwap_reclaim"] = l.Weights.VWAPReclaim
		score += l.Weights.VWAPReclaim
	}

	return score, parts
}

// signalConfidence maps the weighted score into [0.5, 1.0] relative to the
// configured threshold, so a bare-threshold signal reports 0.75 and a full
// sweep reports closer to 1.
func signalConfidence(score, threshold float64) float64 {
	if threshold <= 0 {
		return 0.6
	}
	ratio := score / threshold
	if ratio > 2 {
		ratio = 2
	}
	if ratio < 0 {
		ratio = 0
	}
	return 0.5 + 0.25*ratio
}

func distBps(a, ref float64) float64 {
	if ref <= 0 {
		return 0
	}
	d := a - ref
	if d < 0 {
		d = -d
	}
	return d / ref * 10_000
}

func decision(e Entry, s Snapshot, action Action, reason Reason, why string, conf float64) Decision {
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return Decision{
		Action:     action,
		Reason:     reason,
		Reasoning:  why,
		Confidence: conf,
		Telemetry:  baseTelemetry(e, s),
	}
}

func holdDecision(e Entry, s Snapshot, reason Reason, why string, conf float64) Decision {
	return decision(e, s, ActionHold, reason, why, conf)
}

func baseTelemetry(e Entry, s Snapshot) map[string]any {
	t := map[string]any{
		"mark":       s.Mark,
		"anchor":     e.Pilot.Anchor(),
		"spread_bps": s.SpreadBps,
		"checks":     e.Checks,
	}
	putFloat(t, "atr_15m", s.ATR15m)
	putFloat(t, "slippage_bps", s.SlippageBps)
	putFloat(t, "obi5", s.OBI5)
	putFloat(t, "obi20", s.OBI20)
	putFloat(t, "consume_bid_3s_pct", s.ConsumeBid3sPct)
	putFloat(t, "refresh_bid_10s_pct", s.RefreshBid10sPct)
	putFloat(t, "bid_dwell_ms", s.BidDwellMs)
	putFloat(t, "taker_delta", s.TakerDelta)
	putFloat(t, "bid_wall_price", s.BidWallPrice)
	if s.MicropriceBias != BiasNone {
		t["microprice_bias"] = string(s.MicropriceBias)
	}
	return t
}

func putFloat(t map[string]any, key string, v *float64) {
	if v != nil {
		t[key] = *v
	}
}
