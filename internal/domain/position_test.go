package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// S5 — Oldest-first absorption ordering. See internal/inventory for the
// full reconciliation walk; this only checks the ordering primitive.
func TestPendingByAgeAsc(t *testing.T) {
	pos := NewTrackedPosition("asset-1")
	base := time.Unix(0, 0)

	pos.ApplyFill(Fill{OrderID: "o3", AssetID: "asset-1", Side: SideBuy, Price: PriceFromFloat(0.5), Size: SizeFromFloat(25), Timestamp: base.Add(2 * time.Second)}, base.Add(2*time.Second))
	pos.ApplyFill(Fill{OrderID: "o1", AssetID: "asset-1", Side: SideBuy, Price: PriceFromFloat(0.5), Size: SizeFromFloat(20), Timestamp: base}, base)
	pos.ApplyFill(Fill{OrderID: "o2", AssetID: "asset-1", Side: SideBuy, Price: PriceFromFloat(0.5), Size: SizeFromFloat(15), Timestamp: base.Add(time.Second)}, base.Add(time.Second))

	ordered := pos.PendingByAgeAsc()
	require.Len(t, ordered, 3)
	require.Equal(t, "o1", ordered[0].OrderID)
	require.Equal(t, "o2", ordered[1].OrderID)
	require.Equal(t, "o3", ordered[2].OrderID)
}

func TestEffectiveSizeTracksPendingFills(t *testing.T) {
	pos := NewTrackedPosition("asset-1")
	pos.ConfirmedSize = SizeFromFloat(80)
	now := time.Now()
	pos.ApplyFill(Fill{OrderID: "o1", Side: SideBuy, Price: PriceFromFloat(0.5), Size: SizeFromFloat(15), Timestamp: now}, now)
	require.True(t, pos.EffectiveSize().Equal(SizeFromFloat(95)))
}
