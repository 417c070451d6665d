package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPriceRoundToTick(t *testing.T) {
	tick := TickFromFloat(0.01)
	p := PriceFromFloat(0.4649)
	got := p.RoundToTick(tick)
	require.True(t, got.Equal(PriceFromFloat(0.46)), "got %s", got)
}

func TestPriceAddTicksAndClamp(t *testing.T) {
	tick := TickFromFloat(0.01)
	p := PriceFromFloat(0.50)
	got := p.AddTicks(-2, tick)
	require.True(t, got.Equal(PriceFromFloat(0.48)))

	clamped := PriceFromFloat(1.5).Clamp(tick.dToPrice(), PriceFromFloat(0.99))
	require.True(t, clamped.Equal(PriceFromFloat(0.99)))
}

// dToPrice is a tiny test-only helper turning a Tick into the Price with
// the same decimal value, used to build a "[t, 1-t]" clamp range.
func (t Tick) dToPrice() Price { return Price{d: t.d} }

func TestTicksBetween(t *testing.T) {
	tick := TickFromFloat(0.01)
	got := TicksBetween(PriceFromFloat(0.40), PriceFromFloat(0.46), tick)
	require.InDelta(t, 6.0, got, 1e-9)
}
