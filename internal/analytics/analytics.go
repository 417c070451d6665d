// Package analytics implements component H: per-fill markout sampling and
// the rolling fee/rebate/adverse-fill statistics spec §4.8 describes. It has
// no direct teacher analogue — the reference bot never traded against a
// resolving market — so the sampling-horizon/aggregation shape is built
// fresh, in the teacher's idiom (small owned maps, explicit locking,
// decimal.Decimal for money) rather than borrowed from one file.
package analytics

import (
	"sort"
	"sync"
	"time"

	"github.com/betbot/aquoter/internal/domain"
	"github.com/shopspring/decimal"
)

// Horizons are the fixed sampling offsets from fill time, per spec §4.8.
var Horizons = []time.Duration{
	1 * time.Second,
	5 * time.Second,
	15 * time.Second,
	30 * time.Second,
	60 * time.Second,
}

// Markout is one horizon's sample for one fill.
type Markout struct {
	FillKey    string
	AssetID    string
	HorizonS   int
	Mid        domain.Price
	MarkoutBps decimal.Decimal
	CapturedAt time.Time
}

// pendingSample is a scheduled-but-not-yet-captured horizon for a fill.
type pendingSample struct {
	fillKey  string
	assetID  string
	fillPx   domain.Price
	sign     int
	dueAt    time.Time
	horizonS int
}

// MidSource narrows OrderbookManager to what markout sampling needs.
type MidSource interface {
	Mid(assetID string) (domain.Price, bool)
}

// Stats holds the running aggregate for one asset (or the engine-wide
// aggregate under AssetID=""). gross_fees_paid and rebates_received are
// tracked as first-class fields per original_source/rebates/strategy.py,
// not derived after the fact.
type Stats struct {
	AssetID          string
	FillCount        int
	Volume           decimal.Decimal
	GrossFeesPaid    decimal.Decimal
	RebatesReceived  decimal.Decimal
	markoutSum       map[int]decimal.Decimal
	markoutCount     map[int]int
	adverseAt5s      int
	sampledAt5s      int
}

func newStats(assetID string) *Stats {
	return &Stats{
		AssetID:      assetID,
		Volume:       decimal.Zero,
		markoutSum:   make(map[int]decimal.Decimal),
		markoutCount: make(map[int]int),
	}
}

// MeanMarkoutBps returns the running mean markout for a horizon in seconds.
func (s *Stats) MeanMarkoutBps(horizonS int) (decimal.Decimal, bool) {
	c, ok := s.markoutCount[horizonS]
	if !ok || c == 0 {
		return decimal.Zero, false
	}
	return s.markoutSum[horizonS].Div(decimal.NewFromInt(int64(c))), true
}

// AdverseFillRate is the fraction of fills whose 5s markout was negative.
func (s *Stats) AdverseFillRate() (float64, bool) {
	if s.sampledAt5s == 0 {
		return 0, false
	}
	return float64(s.adverseAt5s) / float64(s.sampledAt5s), true
}

// Tracker owns fee/rebate/markout bookkeeping for every fill observed.
// Sampling itself is driven by Tick, which the Orchestrator calls once per
// second per spec §4.9 ("every 1 s: tick markout samples") — the only
// background timer concern this component owns.
type Tracker struct {
	mu       sync.Mutex
	mid      MidSource
	pending  []pendingSample
	byAsset  map[string]*Stats
	global   *Stats
	captured []Markout
}

func NewTracker(mid MidSource) *Tracker {
	return &Tracker{
		mid:     mid,
		byAsset: make(map[string]*Stats),
		global:  newStats(""),
	}
}

func (t *Tracker) statsFor(assetID string) *Stats {
	s, ok := t.byAsset[assetID]
	if !ok {
		s = newStats(assetID)
		t.byAsset[assetID] = s
	}
	return s
}

// RecordFill registers a new fill: schedules five future markout samples
// and immediately updates count/volume/fee/rebate aggregates.
func (t *Tracker) RecordFill(f domain.Fill, feeIsRebate bool, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	sign := 1
	if f.Side == domain.SideSell {
		sign = -1
	}
	for _, h := range Horizons {
		t.pending = append(t.pending, pendingSample{
			fillKey:  f.Key(),
			assetID:  f.AssetID,
			fillPx:   f.Price,
			sign:     sign,
			dueAt:    now.Add(h),
			horizonS: int(h.Seconds()),
		})
	}

	asset := t.statsFor(f.AssetID)
	for _, s := range []*Stats{asset, t.global} {
		s.FillCount++
		s.Volume = s.Volume.Add(f.Size.Decimal())
		if feeIsRebate {
			s.RebatesReceived = s.RebatesReceived.Add(f.Fee.Decimal().Abs())
		} else {
			s.GrossFeesPaid = s.GrossFeesPaid.Add(f.Fee.Decimal().Abs())
		}
	}
}

// Tick captures every due sample against the current mid and drops it from
// the pending queue. Samples for an asset with no current mid (feed stale
// or asset untracked) are deferred, not dropped.
func (t *Tracker) Tick(now time.Time) []Markout {
	t.mu.Lock()
	defer t.mu.Unlock()

	remaining := t.pending[:0:0]
	var captured []Markout
	for _, p := range t.pending {
		if now.Before(p.dueAt) {
			remaining = append(remaining, p)
			continue
		}
		mid, ok := t.mid.Mid(p.assetID)
		if !ok {
			remaining = append(remaining, p)
			continue
		}
		bps := decimal.NewFromInt(10000).
			Mul(mid.Decimal().Sub(p.fillPx.Decimal())).
			Mul(decimal.NewFromInt(int64(p.sign))).
			Div(p.fillPx.Decimal())

		m := Markout{
			FillKey: p.fillKey, AssetID: p.assetID, HorizonS: p.horizonS,
			Mid: mid, MarkoutBps: bps, CapturedAt: now,
		}
		captured = append(captured, m)
		t.captured = append(t.captured, m)

		asset := t.statsFor(p.assetID)
		for _, s := range []*Stats{asset, t.global} {
			s.markoutSum[p.horizonS] = s.markoutSum[p.horizonS].Add(bps)
			s.markoutCount[p.horizonS]++
			if p.horizonS == 5 {
				s.sampledAt5s++
				if bps.IsNegative() {
					s.adverseAt5s++
				}
			}
		}
	}
	t.pending = remaining
	return captured
}

func (t *Tracker) StatsFor(assetID string) Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.byAsset[assetID]; ok {
		return *s
	}
	return *newStats(assetID)
}

func (t *Tracker) GlobalStats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *t.global
}

// Captured returns every markout recorded so far, oldest first, for
// internal/store to persist or cmd/aqreport to read back offline.
func (t *Tracker) Captured() []Markout {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Markout, len(t.captured))
	copy(out, t.captured)
	sort.Slice(out, func(i, j int) bool { return out[i].CapturedAt.Before(out[j].CapturedAt) })
	return out
}
