package momentum

import (
	"testing"
	"time"

	"github.com/betbot/aquoter/internal/domain"
	"github.com/stretchr/testify/require"
)

// S6 — Momentum halts quoting.
func TestPriceMomentumArmsCooldown(t *testing.T) {
	cfg := DefaultConfig()
	det := NewDetector(cfg)
	tick := domain.TickFromFloat(0.01)
	base := time.Now()

	det.ObserveTrade("a1", domain.PriceFromFloat(0.50), tick, base)
	require.False(t, det.InCooldown("a1", base))

	moved := base.Add(300 * time.Millisecond)
	det.ObserveTrade("a1", domain.PriceFromFloat(0.54), tick, moved)

	require.True(t, det.InCooldown("a1", moved))
	require.False(t, det.InCooldown("a1", moved.Add(3*time.Second)))
}

func TestDepthSweepArmsCooldown(t *testing.T) {
	det := NewDetector(DefaultConfig())
	before := []domain.PriceLevel{
		{Price: domain.PriceFromFloat(0.50), Size: domain.SizeFromFloat(100)},
		{Price: domain.PriceFromFloat(0.49), Size: domain.SizeFromFloat(100)},
	}
	after := []domain.PriceLevel{
		{Price: domain.PriceFromFloat(0.49), Size: domain.SizeFromFloat(80)},
	}
	now := time.Now()
	det.ObserveBookDelta("a1", before, after, now)
	require.True(t, det.InCooldown("a1", now))
}
