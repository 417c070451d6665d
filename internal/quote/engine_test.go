package quote

import (
	"testing"
	"time"

	"github.com/betbot/aquoter/internal/domain"
	"github.com/betbot/aquoter/internal/orderbook"
	"github.com/stretchr/testify/require"
)

func tob(bid, ask float64) orderbook.TopOfBook {
	return orderbook.TopOfBook{
		BestBid: domain.PriceFromFloat(bid),
		BestAsk: domain.PriceFromFloat(ask),
		Tick:    domain.TickFromFloat(0.01),
	}
}

// S1 — Improve only when spread is wide (spread=1 tick < 4-tick threshold).
func TestS1NoImproveOnNarrowSpread(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ImproveWhenSpreadTicks = 4
	cfg.Coefficient = 0.1
	e := NewEngine(cfg)

	action := e.Decide("a1", tob(0.50, 0.51), domain.ZeroSize, cfg.OrderSize, RestingQuote{}, false, time.Now())
	require.Equal(t, ActionReplace, action.Kind)
	require.True(t, action.Bid.Equal(domain.PriceFromFloat(0.50)), "bid=%s", action.Bid)
	require.True(t, action.Ask.Equal(domain.PriceFromFloat(0.51)), "ask=%s", action.Ask)
}

// S2 — Improve when spread ≥ threshold.
func TestS2ImprovesWideSpread(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ImproveWhenSpreadTicks = 4
	cfg.Coefficient = 0.1
	e := NewEngine(cfg)

	action := e.Decide("a1", tob(0.40, 0.46), domain.ZeroSize, cfg.OrderSize, RestingQuote{}, false, time.Now())
	require.Equal(t, ActionReplace, action.Kind)
	require.True(t, action.Bid.Equal(domain.PriceFromFloat(0.41)), "bid=%s", action.Bid)
	require.True(t, action.Ask.Equal(domain.PriceFromFloat(0.45)), "ask=%s", action.Ask)
}

// S3 — Inventory skew shifts both sides down by skew·t.
func TestS3InventorySkew(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ImproveWhenSpreadTicks = 4
	cfg.Coefficient = 0.1
	e := NewEngine(cfg)

	action := e.Decide("a1", tob(0.40, 0.46), domain.SizeFromFloat(20), cfg.OrderSize, RestingQuote{}, false, time.Now())
	require.Equal(t, ActionReplace, action.Kind)
	require.True(t, action.Bid.Equal(domain.PriceFromFloat(0.39)), "bid=%s", action.Bid)
	require.True(t, action.Ask.Equal(domain.PriceFromFloat(0.43)), "ask=%s", action.Ask)
}

func TestCancelAllOnCooldownOrStaleBook(t *testing.T) {
	e := NewEngine(DefaultConfig())
	action := e.Decide("a1", tob(0.40, 0.46), domain.ZeroSize, domain.ZeroSize, RestingQuote{}, true, time.Now())
	require.Equal(t, ActionCancelAll, action.Kind)

	stale := tob(0.40, 0.46)
	stale.Stale = true
	action = e.Decide("a1", stale, domain.ZeroSize, domain.ZeroSize, RestingQuote{}, false, time.Now())
	require.Equal(t, ActionCancelAll, action.Kind)
}

func TestKeepWithinHysteresisThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RefreshThresholdTicks = 2
	e := NewEngine(cfg)

	resting := RestingQuote{Bid: domain.PriceFromFloat(0.50), Ask: domain.PriceFromFloat(0.51), Has: true}
	action := e.Decide("a1", tob(0.50, 0.51), domain.ZeroSize, cfg.OrderSize, resting, false, time.Now())
	require.Equal(t, ActionKeep, action.Kind)
}
