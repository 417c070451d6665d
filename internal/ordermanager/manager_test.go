package ordermanager

import (
	"context"
	"testing"
	"time"

	"github.com/betbot/aquoter/internal/domain"
	"github.com/betbot/aquoter/internal/quote"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeExchange struct {
	placed  []PlacementRequest
	fee     int
	feeErr  error
	results []PlacementResult
	placeErr error
}

func (f *fakeExchange) PlaceOrders(ctx context.Context, reqs []PlacementRequest) ([]PlacementResult, error) {
	f.placed = append(f.placed, reqs...)
	if f.placeErr != nil {
		return nil, f.placeErr
	}
	return f.results, nil
}
func (f *fakeExchange) CancelOrder(ctx context.Context, orderID string) error       { return nil }
func (f *fakeExchange) CancelAllForAsset(ctx context.Context, assetID string) error { return nil }
func (f *fakeExchange) FeeRateBps(ctx context.Context, assetID string) (int, error) {
	return f.fee, f.feeErr
}

type alwaysOpen struct{}

func (alwaysOpen) IsHalted(assetID string) bool                    { return false }
func (alwaysOpen) RecordError(assetID string, now time.Time) {}
func (alwaysOpen) RecordSuccess(assetID string)               {}

func TestReplaceCancelsThenPlacesBothSides(t *testing.T) {
	ex := &fakeExchange{fee: 10}
	mgr := NewManager(ex, alwaysOpen{}, false, time.Minute, 100, 0, nil)

	action := quote.Action{
		Kind: quote.ActionReplace, AssetID: "a1",
		Bid: domain.PriceFromFloat(0.45), Ask: domain.PriceFromFloat(0.47),
		SizeBid: domain.SizeFromFloat(100), SizeAsk: domain.SizeFromFloat(100),
	}
	err := mgr.ApplyAction(context.Background(), action, nil)
	require.NoError(t, err)
	require.Len(t, ex.placed, 2)
	require.Equal(t, domain.SideBuy, ex.placed[0].Side)
	require.Equal(t, domain.SideSell, ex.placed[1].Side)
	require.Equal(t, 10, ex.placed[0].FeeRateBps)
}

func TestDryRunNeverCallsExchange(t *testing.T) {
	ex := &fakeExchange{fee: 10}
	mgr := NewManager(ex, alwaysOpen{}, true, time.Minute, 100, 0, nil)

	action := quote.Action{Kind: quote.ActionReplace, AssetID: "a1", Bid: domain.PriceFromFloat(0.45), Ask: domain.PriceFromFloat(0.47), SizeBid: domain.SizeFromFloat(1), SizeAsk: domain.SizeFromFloat(1)}
	err := mgr.ApplyAction(context.Background(), action, nil)
	require.NoError(t, err)
	require.Empty(t, ex.placed)
}

func TestFeeFetchFailedSkipsAssetWithoutError(t *testing.T) {
	ex := &fakeExchange{feeErr: context.DeadlineExceeded}
	mgr := NewManager(ex, alwaysOpen{}, false, time.Minute, 100, 0, nil)

	action := quote.Action{Kind: quote.ActionReplace, AssetID: "a1", Bid: domain.PriceFromFloat(0.45), Ask: domain.PriceFromFloat(0.47)}
	err := mgr.ApplyAction(context.Background(), action, nil)
	require.NoError(t, err)
	require.Empty(t, ex.placed)
}

func TestPostOnlyCrossSurfacesAsExchangeRejected(t *testing.T) {
	ex := &fakeExchange{fee: 5, results: []PlacementResult{{Crossed: true}}}
	mgr := NewManager(ex, alwaysOpen{}, false, time.Minute, 100, 0, nil)

	action := quote.Action{Kind: quote.ActionReplace, AssetID: "a1", Bid: domain.PriceFromFloat(0.45), Ask: domain.PriceFromFloat(0.47)}
	err := mgr.ApplyAction(context.Background(), action, nil)
	require.Error(t, err)
}

type fakeReservations struct {
	reserved decimal.Decimal
}

func (f *fakeReservations) ReservePendingBuy(assetID string, size decimal.Decimal) {
	f.reserved = f.reserved.Add(size)
}

func (f *fakeReservations) ReleasePendingBuy(assetID string, size decimal.Decimal) {
	f.reserved = f.reserved.Sub(size)
}

func TestReserveIfBuyHoldsExposureUntilTerminal(t *testing.T) {
	res := &fakeReservations{}
	mgr := NewManager(&fakeExchange{}, alwaysOpen{}, false, time.Minute, 100, 0, res)

	req := PlacementRequest{AssetID: "a1", Side: domain.SideBuy, Size: domain.SizeFromFloat(100), ClientOrderID: "buy"}
	mgr.reserveIfBuy("a1", PlacementResult{ClientOrderID: "buy", OrderID: "o-buy", Accepted: true},
		map[string]PlacementRequest{"buy": req})
	require.True(t, res.reserved.Equal(decimal.NewFromInt(100)))

	mgr.ReleaseTerminal(&domain.Order{OrderID: "o-buy", Status: domain.OrderStatusFilled})
	require.True(t, res.reserved.IsZero())
}

func TestReserveIfBuySkipsSellsAndUnaccepted(t *testing.T) {
	res := &fakeReservations{}
	mgr := NewManager(&fakeExchange{}, alwaysOpen{}, false, time.Minute, 100, 0, res)

	sell := PlacementRequest{AssetID: "a1", Side: domain.SideSell, Size: domain.SizeFromFloat(100), ClientOrderID: "sell"}
	mgr.reserveIfBuy("a1", PlacementResult{ClientOrderID: "sell", OrderID: "o-sell", Accepted: true},
		map[string]PlacementRequest{"sell": sell})

	buy := PlacementRequest{AssetID: "a1", Side: domain.SideBuy, Size: domain.SizeFromFloat(100), ClientOrderID: "buy"}
	mgr.reserveIfBuy("a1", PlacementResult{ClientOrderID: "buy", OrderID: "o-buy", Accepted: false, Rejected: true},
		map[string]PlacementRequest{"buy": buy})

	require.True(t, res.reserved.IsZero())
}
