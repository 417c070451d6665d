package domain

import (
	"github.com/shopspring/decimal"
)

// Price is a decimal value object with tick-aware rounding, replacing the
// reference bot's fixed 1e-4 "pips" representation with an exact-decimal
// one so a market's own tick size (0.1 / 0.01 / 0.001 / 0.0001) can be
// honored without loss.
type Price struct {
	d decimal.Decimal
}

func NewPrice(d decimal.Decimal) Price { return Price{d: d} }

func PriceFromFloat(f float64) Price { return Price{d: decimal.NewFromFloat(f)} }

func PriceFromString(s string) (Price, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Price{}, err
	}
	return Price{d: d}, nil
}

func (p Price) Decimal() decimal.Decimal { return p.d }

func (p Price) Float64() float64 { f, _ := p.d.Float64(); return f }

func (p Price) String() string { return p.d.String() }

func (p Price) Add(other Price) Price      { return Price{d: p.d.Add(other.d)} }
func (p Price) Sub(other Price) Price      { return Price{d: p.d.Sub(other.d)} }
func (p Price) GreaterThan(o Price) bool   { return p.d.GreaterThan(o.d) }
func (p Price) LessThan(o Price) bool      { return p.d.LessThan(o.d) }
func (p Price) GreaterOrEqual(o Price) bool { return p.d.GreaterThanOrEqual(o.d) }
func (p Price) LessOrEqual(o Price) bool   { return p.d.LessThanOrEqual(o.d) }
func (p Price) Equal(o Price) bool         { return p.d.Equal(o.d) }
func (p Price) IsZero() bool               { return p.d.IsZero() }

// AddTicks shifts the price by n ticks (n may be negative).
func (p Price) AddTicks(n int, tick Tick) Price {
	if n == 0 {
		return p
	}
	return Price{d: p.d.Add(tick.d.Mul(decimal.NewFromInt(int64(n))))}
}

// Clamp restricts p to [lo, hi].
func (p Price) Clamp(lo, hi Price) Price {
	if p.LessThan(lo) {
		return lo
	}
	if p.GreaterThan(hi) {
		return hi
	}
	return p
}

// RoundToTick rounds p to the nearest multiple of tick.
func (p Price) RoundToTick(tick Tick) Price {
	if tick.d.IsZero() {
		return p
	}
	units := p.d.DivRound(tick.d, 0)
	return Price{d: units.Mul(tick.d)}
}

// Tick is a market's minimum price increment, kept as a distinct type from
// Price so a tick-count computation (e.g. spread / tick) is never confused
// with a price value.
type Tick struct {
	d decimal.Decimal
}

func NewTick(d decimal.Decimal) Tick { return Tick{d: d} }

func TickFromFloat(f float64) Tick { return Tick{d: decimal.NewFromFloat(f)} }

func (t Tick) Decimal() decimal.Decimal { return t.d }

func (t Tick) Float64() float64 { f, _ := t.d.Float64(); return f }

// TicksBetween returns (b-a)/tick as a float, useful for spread-in-ticks
// comparisons that need fractional precision before rounding decisions.
func TicksBetween(a, b Price, t Tick) float64 {
	if t.d.IsZero() {
		return 0
	}
	diff := b.d.Sub(a.d)
	f, _ := diff.Div(t.d).Float64()
	return f
}

// Size is a non-negative decimal share count.
type Size struct {
	d decimal.Decimal
}

func NewSize(d decimal.Decimal) Size { return Size{d: d} }

func SizeFromFloat(f float64) Size { return Size{d: decimal.NewFromFloat(f)} }

func (s Size) Decimal() decimal.Decimal { return s.d }

func (s Size) Float64() float64 { f, _ := s.d.Float64(); return f }

func (s Size) Add(o Size) Size { return Size{d: s.d.Add(o.d)} }
func (s Size) Sub(o Size) Size { return Size{d: s.d.Sub(o.d)} }
func (s Size) Min(o Size) Size {
	if s.d.LessThan(o.d) {
		return s
	}
	return o
}
func (s Size) IsZero() bool             { return s.d.IsZero() }
func (s Size) IsNegative() bool         { return s.d.IsNegative() }
func (s Size) GreaterThan(o Size) bool  { return s.d.GreaterThan(o.d) }
func (s Size) LessThan(o Size) bool     { return s.d.LessThan(o.d) }
func (s Size) GreaterOrEqual(o Size) bool { return s.d.GreaterThanOrEqual(o.d) }
func (s Size) Equal(o Size) bool          { return s.d.Equal(o.d) }

var ZeroSize = Size{d: decimal.Zero}
