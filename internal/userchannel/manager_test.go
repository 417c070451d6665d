package userchannel

import (
	"testing"
	"time"

	"github.com/betbot/aquoter/internal/domain"
	"github.com/stretchr/testify/require"
)

type fakeSnapshotter struct {
	orders []*domain.Order
	err    error
}

func (f *fakeSnapshotter) OpenOrders() ([]*domain.Order, error) { return f.orders, f.err }

type fakeFault struct{ calls int }

func (f *fakeFault) NotifyUserChannelDisconnect() { f.calls++ }

func TestReconcileCancelsMissingAndInsertsUnknown(t *testing.T) {
	fault := &fakeFault{}
	local := &domain.Order{OrderID: "o1", AssetID: "a1", Status: domain.OrderStatusLive, RemainingSize: domain.SizeFromFloat(10)}
	snap := &domain.Order{OrderID: "o2", AssetID: "a1", Status: domain.OrderStatusLive, RemainingSize: domain.SizeFromFloat(5)}

	mgr := NewManager(&fakeSnapshotter{orders: []*domain.Order{snap}}, fault, time.Minute)
	mgr.orders["o1"] = local

	changed, err := mgr.Reconcile()
	require.NoError(t, err)
	require.Len(t, changed, 2)

	require.Equal(t, domain.OrderStatusCancelled, local.Status)
	_, stillLocal := mgr.orders["o1"]
	require.False(t, stillLocal)

	got, ok := mgr.orders["o2"]
	require.True(t, ok)
	require.Equal(t, snap, got)
}

func TestReconcileUpdatesRemainingSizeOnMismatch(t *testing.T) {
	local := &domain.Order{OrderID: "o1", AssetID: "a1", Status: domain.OrderStatusLive, RemainingSize: domain.SizeFromFloat(10)}
	snap := &domain.Order{OrderID: "o1", AssetID: "a1", Status: domain.OrderStatusLive, RemainingSize: domain.SizeFromFloat(4)}

	mgr := NewManager(&fakeSnapshotter{orders: []*domain.Order{snap}}, &fakeFault{}, time.Minute)
	mgr.orders["o1"] = local

	_, err := mgr.Reconcile()
	require.NoError(t, err)
	require.True(t, local.RemainingSize.Equal(domain.SizeFromFloat(4)))
}

func TestFillDeduplicationByTradeID(t *testing.T) {
	mgr := NewManager(&fakeSnapshotter{}, &fakeFault{}, time.Minute)
	var received int
	mgr.Subscribe(nil, func(f domain.Fill) { received++ })

	f := domain.Fill{TradeID: "t1", OrderID: "o1", AssetID: "a1", Size: domain.SizeFromFloat(5)}
	mgr.HandleFill(f)
	mgr.HandleFill(f)

	require.Equal(t, 1, received)
}

func TestDisconnectReportsHardFaultAndBlocksPlacement(t *testing.T) {
	fault := &fakeFault{}
	mgr := NewManager(&fakeSnapshotter{}, fault, time.Minute)
	mgr.OnDisconnect()

	require.Equal(t, 1, fault.calls)
	require.True(t, mgr.IsReconciling())

	_, _ = mgr.Reconcile()
	require.False(t, mgr.IsReconciling())
}
