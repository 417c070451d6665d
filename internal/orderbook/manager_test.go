package orderbook

import (
	"testing"
	"time"

	"github.com/betbot/aquoter/internal/domain"
	"github.com/stretchr/testify/require"
)

type recordingGapNotifier struct {
	gaps   int
	stales int
}

func (r *recordingGapNotifier) NotifySequenceGap(assetID string, expected, got int64) { r.gaps++ }
func (r *recordingGapNotifier) NotifyFeedStale(assetID string, stale bool)            { r.stales++ }

func TestApplyBookSnapshotThenTopOfBook(t *testing.T) {
	mgr := NewManager(10*time.Second, nil)
	mgr.Apply(domain.MarketEvent{
		Kind:      domain.EventBookSnapshot,
		AssetID:   "a1",
		Timestamp: time.Now(),
		Book: &domain.BookSnapshot{
			Bids: []domain.PriceLevel{{Price: domain.PriceFromFloat(0.45), Size: domain.SizeFromFloat(100)}},
			Asks: []domain.PriceLevel{{Price: domain.PriceFromFloat(0.47), Size: domain.SizeFromFloat(80)}},
			Tick: domain.TickFromFloat(0.01),
		},
	})

	tob, ok := mgr.GetTopOfBook("a1")
	require.True(t, ok)
	require.False(t, tob.Stale)
	require.True(t, tob.BestBid.Equal(domain.PriceFromFloat(0.45)))
	require.True(t, tob.BestAsk.Equal(domain.PriceFromFloat(0.47)))
}

func TestSequenceGapNotifiesRiskManager(t *testing.T) {
	notifier := &recordingGapNotifier{}
	mgr := NewManager(10*time.Second, notifier)

	base := domain.MarketEvent{
		Kind:    domain.EventBookSnapshot,
		AssetID: "a1",
		Book:    &domain.BookSnapshot{Tick: domain.TickFromFloat(0.01)},
	}
	base.Sequence = 1
	mgr.Apply(base)

	base.Sequence = 5 // gap: expected 2, got 5
	mgr.Apply(base)

	require.Equal(t, 1, notifier.gaps)
}

func TestMarkAllStaleFlagsTrackedAssets(t *testing.T) {
	notifier := &recordingGapNotifier{}
	mgr := NewManager(10*time.Second, notifier)
	mgr.Apply(domain.MarketEvent{
		Kind:    domain.EventBookSnapshot,
		AssetID: "a1",
		Book:    &domain.BookSnapshot{Tick: domain.TickFromFloat(0.01)},
	})

	mgr.MarkAllStale()
	tob, ok := mgr.GetTopOfBook("a1")
	require.True(t, ok)
	require.True(t, tob.Stale)
	require.Equal(t, 1, notifier.stales)

	// a fresh snapshot clears staleness, matching the "require a fresh
	// book snapshot before serving stale assets" reconnect semantics.
	mgr.Apply(domain.MarketEvent{
		Kind:    domain.EventBookSnapshot,
		AssetID: "a1",
		Book:    &domain.BookSnapshot{Tick: domain.TickFromFloat(0.01)},
	})
	tob, _ = mgr.GetTopOfBook("a1")
	require.False(t, tob.Stale)
}

func TestPriceChangeInsertsAndRemovesLevels(t *testing.T) {
	mgr := NewManager(10*time.Second, nil)
	mgr.Apply(domain.MarketEvent{
		Kind:    domain.EventBookSnapshot,
		AssetID: "a1",
		Book: &domain.BookSnapshot{
			Bids: []domain.PriceLevel{{Price: domain.PriceFromFloat(0.45), Size: domain.SizeFromFloat(100)}},
			Tick: domain.TickFromFloat(0.01),
		},
	})

	mgr.Apply(domain.MarketEvent{
		Kind:    domain.EventPriceChange,
		AssetID: "a1",
		PriceChange: &domain.PriceChangeDelta{
			Side:  domain.SideBuy,
			Price: domain.PriceFromFloat(0.46),
			Size:  domain.SizeFromFloat(50),
		},
	})
	tob, _ := mgr.GetTopOfBook("a1")
	require.True(t, tob.BestBid.Equal(domain.PriceFromFloat(0.46)))

	mgr.Apply(domain.MarketEvent{
		Kind:    domain.EventPriceChange,
		AssetID: "a1",
		PriceChange: &domain.PriceChangeDelta{
			Side:  domain.SideBuy,
			Price: domain.PriceFromFloat(0.46),
			Size:  domain.ZeroSize,
		},
	})
	tob, _ = mgr.GetTopOfBook("a1")
	require.True(t, tob.BestBid.Equal(domain.PriceFromFloat(0.45)))
}
