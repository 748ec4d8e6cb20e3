// Package depth keeps a short sliding window of order-book notional samples
// per symbol and derives consumption, refresh and dwell signals from it.
//
// The buffer is purely in-memory. After a restart it refills within the
// retention window; until then every signal reports unknown and callers must
// treat unknown as non-qualifying.
package depth

import (
	"sync"
)

type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
)

// Sample is one observation of top-of-book notional.
type Sample struct {
	At          int64   `json:"at"` // epoch ms
	BidNotional float64 `json:"bid_notional"`
	AskNotional float64 `json:"ask_notional"`
	BestBid     float64 `json:"best_bid"`
	BestAsk     float64 `json:"best_ask"`
}

func (s Sample) notional(side Side) float64 {
	if side == SideAsk {
		return s.AskNotional
	}
	return s.BidNotional
}

func (s Sample) bestPrice(side Side) float64 {
	if side == SideAsk {
		return s.BestAsk
	}
	return s.BestBid
}

const (
	// RetentionMs bounds how far back samples are kept.
	RetentionMs = 15_000

	// DefaultConsumeLookbackMs / DefaultConsumeMinOffsetMs frame the 3 s
	// consumption baseline.
	DefaultConsumeLookbackMs  = 3_000
	DefaultConsumeMinOffsetMs = 1_000

	// DefaultRefreshWindowMs / DefaultRefreshSlackMs frame the 10 s refresh
	// baseline.
	DefaultRefreshWindowMs = 10_000
	DefaultRefreshSlackMs  = 500

	// DefaultDwellBandPct is ±0.05% around the reference price.
	DefaultDwellBandPct = 0.0005

	ringCapacity = 256
)

// ring is a fixed-capacity time-ordered buffer. Eviction on insert is O(1):
// the head index advances past expired entries, and a full ring overwrites
// its oldest slot.
type ring struct {
	buf   [ringCapacity]Sample
	head  int
	count int
}

func (r *ring) push(s Sample) {
	// Evict by age first so head only ever moves forward.
	for r.count > 0 && s.At-r.buf[r.head].At > RetentionMs {
		r.head = (r.head + 1) % ringCapacity
		r.count--
	}
	if r.count == ringCapacity {
		r.head = (r.head + 1) % ringCapacity
		r.count--
	}
	r.buf[(r.head+r.count)%ringCapacity] = s
	r.count++
}

func (r *ring) at(i int) Sample {
	return r.buf[(r.head+i)%ringCapacity]
}

func (r *ring) latest() (Sample, bool) {
	if r.count == 0 {
		return Sample{}, false
	}
	return r.at(r.count - 1), true
}

// History holds per-symbol rings. Safe for concurrent use across symbols;
// ticks for the same symbol are expected to be single-flighted by the caller.
type History struct {
	mu    sync.RWMutex
	rings map[string]*ring
}

func NewHistory() *History {
	return &History{rings: make(map[string]*ring)}
}

// Record appends a sample and evicts anything older than the retention
// window. Out-of-order samples (older than the newest) are dropped.
func (h *History) Record(symbol string, s Sample) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.rings[symbol]
	if r == nil {
		r = &ring{}
		h.rings[symbol] = r
	}
	if last, ok := r.latest(); ok && s.At < last.At {
		return
	}
	r.push(s)
}

// Samples returns a copy of the retained window, oldest first.
func (h *History) Samples(symbol string) []Sample {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r := h.rings[symbol]
	if r == nil || r.count == 0 {
		return nil
	}
	out := make([]Sample, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.at(i)
	}
	return out
}

// ConsumePct reports how much of the side's notional was eaten between a
// baseline sample and the latest one, as a percentage in [0,100]. The
// baseline is the most recent sample whose age relative to the latest lies
// in [minOffsetMs, lookbackMs]. Returns false when no baseline qualifies or
// the baseline notional is non-positive.
func (h *History) ConsumePct(symbol string, side Side, lookbackMs, minOffsetMs int64) (float64, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r := h.rings[symbol]
	if r == nil {
		return 0, false
	}
	latest, ok := r.latest()
	if !ok {
		return 0, false
	}
	for i := r.count - 2; i >= 0; i-- {
		s := r.at(i)
		age := latest.At - s.At
		if age < minOffsetMs {
			continue
		}
		if age > lookbackMs {
			break
		}
		base := s.notional(side)
		if base <= 0 {
			return 0, false
		}
		pct := (base - latest.notional(side)) / base * 100
		return clampPct(pct), true
	}
	return 0, false
}

// RefreshPct is the symmetric growth measurement: how much the side's
// notional grew versus a baseline roughly windowMs old (± slackMs). Capped
// at 100. Returns false when no sample falls inside the window.
func (h *History) RefreshPct(symbol string, side Side, windowMs, slackMs int64) (float64, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r := h.rings[symbol]
	if r == nil {
		return 0, false
	}
	latest, ok := r.latest()
	if !ok {
		return 0, false
	}
	bestDiff := int64(-1)
	var base Sample
	for i := 0; i < r.count-1; i++ {
		s := r.at(i)
		age := latest.At - s.At
		if age < windowMs-slackMs || age > windowMs+slackMs {
			continue
		}
		diff := age - windowMs
		if diff < 0 {
			diff = -diff
		}
		if bestDiff < 0 || diff < bestDiff {
			bestDiff = diff
			base = s
		}
	}
	if bestDiff < 0 {
		return 0, false
	}
	b := base.notional(side)
	if b <= 0 {
		return 0, false
	}
	pct := (latest.notional(side) - b) / b * 100
	return clampPct(pct), true
}

// DwellMs sums elapsed time between consecutive samples while the side's
// best price stayed within ±bandPct of referencePrice. Returns false when
// fewer than two samples are retained or the reference is non-positive.
func (h *History) DwellMs(symbol string, side Side, referencePrice, bandPct float64) (float64, bool) {
	samples := h.Samples(symbol)
	return Dwell(samples, side, referencePrice, bandPct)
}

// Dwell is the pure form of DwellMs over an explicit sample window.
func Dwell(samples []Sample, side Side, referencePrice, bandPct float64) (float64, bool) {
	if len(samples) < 2 || referencePrice <= 0 {
		return 0, false
	}
	band := referencePrice * bandPct
	total := 0.0
	for i := 1; i < len(samples); i++ {
		prev, cur := samples[i-1], samples[i]
		pp, cp := prev.bestPrice(side), cur.bestPrice(side)
		if pp <= 0 || cp <= 0 {
			continue
		}
		if abs(pp-referencePrice) <= band && abs(cp-referencePrice) <= band {
			total += float64(cur.At - prev.At)
		}
	}
	return total, true
}

func clampPct(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
