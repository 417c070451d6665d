package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TrackedPosition is the per-asset position record described in spec §3:
// a confirmed size from the last authoritative snapshot, plus the set of
// fills observed on the user stream but not yet folded into a snapshot.
//
// Longs only: confirmed_size is never negative in this core.
type TrackedPosition struct {
	AssetID       string
	ConfirmedSize Size
	ConfirmedAt   time.Time
	PendingFills  map[string]PendingFill

	// Cost-basis bookkeeping for RiskManager's realized/unrealized P&L.
	CostBasis  decimal.Decimal // sum of (price*size) for BUY fills contributing to ConfirmedSize
	AvgPrice   Price
	RealizedPL decimal.Decimal
}

func NewTrackedPosition(assetID string) *TrackedPosition {
	return &TrackedPosition{
		AssetID:      assetID,
		PendingFills: make(map[string]PendingFill),
	}
}

// PendingBuys sums the size of pending fills on the BUY side.
func (p *TrackedPosition) PendingBuys() Size {
	total := ZeroSize
	for _, f := range p.PendingFills {
		if f.Side == SideBuy {
			total = total.Add(f.Size)
		}
	}
	return total
}

// PendingSells sums the size of pending fills on the SELL side.
func (p *TrackedPosition) PendingSells() Size {
	total := ZeroSize
	for _, f := range p.PendingFills {
		if f.Side == SideSell {
			total = total.Add(f.Size)
		}
	}
	return total
}

// EffectiveSize is confirmed_size + pending_fill_buys - pending_fill_sells;
// used for P&L, display, and sell capacity (spec §3).
func (p *TrackedPosition) EffectiveSize() Size {
	return p.ConfirmedSize.Add(p.PendingBuys()).Sub(p.PendingSells())
}

// ApplyFill records a fill as pending and updates cost-basis bookkeeping
// so realized P&L stays current even before the next snapshot absorbs it.
func (p *TrackedPosition) ApplyFill(f Fill, now time.Time) {
	key := f.Key()
	p.PendingFills[key] = PendingFill{Fill: f, ObservedAt: now}

	if f.Side == SideBuy {
		p.CostBasis = p.CostBasis.Add(f.Price.Decimal().Mul(f.Size.Decimal()))
	} else {
		avg := p.AvgPrice.Decimal()
		p.RealizedPL = p.RealizedPL.Add(f.Price.Decimal().Sub(avg).Mul(f.Size.Decimal()))
		p.CostBasis = p.CostBasis.Sub(avg.Mul(f.Size.Decimal()))
	}
	p.recomputeAvgPrice()
}

func (p *TrackedPosition) recomputeAvgPrice() {
	eff := p.EffectiveSize()
	if eff.IsZero() || eff.IsNegative() {
		p.AvgPrice = Price{}
		return
	}
	p.AvgPrice = NewPrice(p.CostBasis.Div(eff.Decimal()))
}

// UnrealizedPnL uses effective_size * (mid - avg_entry) per spec §4.7.
func (p *TrackedPosition) UnrealizedPnL(mid Price) decimal.Decimal {
	eff := p.EffectiveSize()
	if eff.IsZero() {
		return decimal.Zero
	}
	return eff.Decimal().Mul(mid.Decimal().Sub(p.AvgPrice.Decimal()))
}

// RemovePendingFill deletes a pending fill by key, used once a fill has
// been absorbed by a snapshot or has aged out.
func (p *TrackedPosition) RemovePendingFill(key string) {
	delete(p.PendingFills, key)
}

// PendingByAgeAsc returns pending fills sorted oldest first, the order in
// which snapshot absorption (spec §4.3) consumes them.
func (p *TrackedPosition) PendingByAgeAsc() []PendingFill {
	out := make([]PendingFill, 0, len(p.PendingFills))
	for _, f := range p.PendingFills {
		out = append(out, f)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].ObservedAt.Before(out[j-1].ObservedAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
