// Package momentum implements component D: a per-asset state machine that
// arms a cooldown when recent trade prices move too fast or a book update
// sweeps too much resting depth, so QuoteEngine can pull quotes rather than
// get run over by a directional move. Grounded on the teacher's
// window+threshold shape used for order-flow signals, generalized from a
// single trigger condition to the spec's two independent conditions.
package momentum

import (
	"sync"
	"time"

	"github.com/betbot/aquoter/internal/domain"
)

type Config struct {
	Window            time.Duration // W, default 500ms
	ThresholdTicks    int           // K, default 3
	SweepFraction     float64       // F, default 0.5
	SweepTopN         int
	CooldownDuration  time.Duration // default 2s
}

func DefaultConfig() Config {
	return Config{
		Window:           500 * time.Millisecond,
		ThresholdTicks:   3,
		SweepFraction:    0.5,
		SweepTopN:        5,
		CooldownDuration: 2 * time.Second,
	}
}

type tradeObservation struct {
	price domain.Price
	ts    time.Time
}

type assetState struct {
	trades        []tradeObservation
	cooldownUntil time.Time
}

// Detector tracks momentum/sweep state per asset.
type Detector struct {
	mu     sync.Mutex
	cfg    Config
	assets map[string]*assetState
}

func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg, assets: make(map[string]*assetState)}
}

func (d *Detector) state(assetID string) *assetState {
	st, ok := d.assets[assetID]
	if !ok {
		st = &assetState{}
		d.assets[assetID] = st
	}
	return st
}

// ObserveTrade records a last-trade-price tick and arms the cooldown if the
// rolling window shows a move of ≥ ThresholdTicks.
func (d *Detector) ObserveTrade(assetID string, price domain.Price, tick domain.Tick, ts time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	st := d.state(assetID)
	st.trades = append(st.trades, tradeObservation{price: price, ts: ts})
	cutoff := ts.Add(-d.cfg.Window)
	kept := st.trades[:0:0]
	for _, t := range st.trades {
		if !t.ts.Before(cutoff) {
			kept = append(kept, t)
		}
	}
	st.trades = kept

	if len(st.trades) < 2 {
		return
	}
	minP, maxP := st.trades[0].price, st.trades[0].price
	for _, t := range st.trades[1:] {
		if t.price.LessThan(minP) {
			minP = t.price
		}
		if t.price.GreaterThan(maxP) {
			maxP = t.price
		}
	}
	moveTicks := domain.TicksBetween(minP, maxP, tick)
	if moveTicks >= float64(d.cfg.ThresholdTicks) {
		st.cooldownUntil = ts.Add(d.cfg.CooldownDuration)
	}
}

// ObserveBookDelta compares total visible size on one side before/after an
// update and arms the cooldown if ≥ SweepFraction of top-N depth vanished
// in one shot.
func (d *Detector) ObserveBookDelta(assetID string, before, after []domain.PriceLevel, ts time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := d.cfg.SweepTopN
	beforeSum := sumTopN(before, n)
	afterSum := sumTopN(after, n)
	if beforeSum.IsZero() {
		return
	}
	removed := beforeSum.Sub(afterSum)
	if removed.IsNegative() {
		return
	}
	fraction, _ := removed.Decimal().Div(beforeSum.Decimal()).Float64()
	if fraction >= d.cfg.SweepFraction {
		d.state(assetID).cooldownUntil = ts.Add(d.cfg.CooldownDuration)
	}
}

func sumTopN(levels []domain.PriceLevel, n int) domain.Size {
	total := domain.ZeroSize
	for i, lvl := range levels {
		if i >= n {
			break
		}
		total = total.Add(lvl.Size)
	}
	return total
}

// InCooldown implements in_cooldown(asset, now).
func (d *Detector) InCooldown(assetID string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.assets[assetID]
	if !ok {
		return false
	}
	return now.Before(st.cooldownUntil)
}
