package inventory

import (
	"testing"
	"time"

	"github.com/betbot/aquoter/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// S4 — Conservative exposure blocks BUY.
func TestConservativeExposureBlocksBuy(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxPositionPerMarket = decimal.NewFromInt(100)
	mgr := NewManager(limits, nil, nil, nil)

	now := time.Now()
	mgr.SetPosition("a1", decimal.NewFromInt(80), now)
	mgr.OnFill(domain.Fill{OrderID: "o1", AssetID: "a1", Side: domain.SideBuy, Size: domain.SizeFromFloat(15), Price: domain.PriceFromFloat(0.5), Timestamp: now}, now)

	check := mgr.CheckLimits("a1", decimal.NewFromInt(10), decimal.Zero)
	require.False(t, check.CanBuy)

	check = mgr.CheckLimits("a1", decimal.Zero, decimal.NewFromInt(20))
	require.True(t, check.CanSell)
}

// S5 — Oldest-first absorption via ForceReconcile.
func TestForceReconcileAbsorbsOldestFirst(t *testing.T) {
	mgr := NewManager(DefaultLimits(), nil, nil, nil)
	base := time.Unix(0, 0)

	mgr.OnFill(domain.Fill{OrderID: "o1", AssetID: "a1", Side: domain.SideBuy, Size: domain.SizeFromFloat(20), Price: domain.PriceFromFloat(0.5), Timestamp: base}, base)
	mgr.OnFill(domain.Fill{OrderID: "o2", AssetID: "a1", Side: domain.SideBuy, Size: domain.SizeFromFloat(15), Price: domain.PriceFromFloat(0.5), Timestamp: base.Add(time.Second)}, base.Add(time.Second))
	mgr.OnFill(domain.Fill{OrderID: "o3", AssetID: "a1", Side: domain.SideBuy, Size: domain.SizeFromFloat(25), Price: domain.PriceFromFloat(0.5), Timestamp: base.Add(2 * time.Second)}, base.Add(2*time.Second))

	mgr.ForceReconcile("a1", decimal.NewFromInt(35), base.Add(3*time.Second))

	pos := mgr.Position("a1")
	require.True(t, pos.ConfirmedSize.Equal(domain.SizeFromFloat(35)))
	require.Len(t, pos.PendingFills, 1)
	_, kept := pos.PendingFills["o3:2000:25"]
	require.True(t, kept, "expected only the t=2s fill (o3) to remain: %+v", pos.PendingFills)
}

func TestAdjustedBuySizeShrinksToRoom(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxPositionPerMarket = decimal.NewFromInt(100)
	mgr := NewManager(limits, nil, nil, nil)
	mgr.SetPosition("a1", decimal.NewFromInt(95), time.Now())

	got := mgr.AdjustedBuySize("a1", decimal.NewFromInt(10))
	require.True(t, got.Equal(decimal.NewFromInt(5)))
}

func TestLiabilityAcrossPairBlocksBuy(t *testing.T) {
	pairs := domain.NewPairRegistry()
	pairs.Register("up", "down")

	limits := DefaultLimits()
	limits.MaxLiabilityPerMarket = decimal.NewFromInt(10)
	mgr := NewManager(limits, pairs, nil, nil)

	now := time.Now()
	mgr.OnFill(domain.Fill{OrderID: "o1", AssetID: "up", Side: domain.SideBuy, Size: domain.SizeFromFloat(50), Price: domain.PriceFromFloat(0.5), Timestamp: now}, now)
	mgr.ForceReconcile("up", decimal.NewFromInt(50), now)

	check := mgr.CheckLimits("up", decimal.NewFromInt(1), decimal.Zero)
	require.False(t, check.CanBuy)
}
