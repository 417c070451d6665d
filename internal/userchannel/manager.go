// Package userchannel implements component B: the authenticated stream
// carrying the operator's own order updates and fills, and the
// authoritative open-order map keyed by order_id. Grounded on the
// teacher's pkg/orderbook.ActiveOrderBook (map + status-driven callbacks)
// generalized from Binance's terminal-status model to the exchange's
// LIVE/PARTIAL/FILLED/CANCELLED/EXPIRED/REJECTED set, and reconciliation
// modeled on the shape of an authoritative-snapshot sweep.
package userchannel

import (
	"sync"
	"time"

	"github.com/betbot/aquoter/internal/domain"
)

type OnOrderUpdate func(order *domain.Order)
type OnFill func(fill domain.Fill)

// HardFaultNotifier receives the disconnect-as-hard-fault report; RiskManager
// implements this in the wired orchestrator.
type HardFaultNotifier interface {
	NotifyUserChannelDisconnect()
}

// RestSnapshotter fetches the authoritative open-order snapshot used by
// reconciliation; implemented by internal/exchange's REST client.
type RestSnapshotter interface {
	OpenOrders() ([]*domain.Order, error)
}

// Manager maintains the local open-order map and drives periodic and
// gap-triggered reconciliation against a REST snapshot.
type Manager struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order

	seenTrades map[string]struct{}

	onOrderUpdate []OnOrderUpdate
	onFill        []OnFill

	fault      HardFaultNotifier
	snapshotter RestSnapshotter

	reconcileInterval time.Duration

	// reconciling gates order placement while a forced reconciliation is
	// in flight, per "until complete, OrderManager must not place new
	// orders".
	reconciling bool
}

func NewManager(snapshotter RestSnapshotter, fault HardFaultNotifier, reconcileInterval time.Duration) *Manager {
	return &Manager{
		orders:            make(map[string]*domain.Order),
		seenTrades:        make(map[string]struct{}),
		snapshotter:       snapshotter,
		fault:             fault,
		reconcileInterval: reconcileInterval,
	}
}

func (m *Manager) Subscribe(onOrderUpdate OnOrderUpdate, onFill OnFill) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if onOrderUpdate != nil {
		m.onOrderUpdate = append(m.onOrderUpdate, onOrderUpdate)
	}
	if onFill != nil {
		m.onFill = append(m.onFill, onFill)
	}
}

// IsReconciling reports whether OrderManager must withhold new placements.
func (m *Manager) IsReconciling() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reconciling
}

// OpenOrders returns a snapshot of the local order map for a given asset.
func (m *Manager) OpenOrders(assetID string) []*domain.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Order, 0)
	for _, o := range m.orders {
		if assetID == "" || o.AssetID == assetID {
			out = append(out, o)
		}
	}
	return out
}

// HandleOrderUpdate applies an authenticated-channel order update.
func (m *Manager) HandleOrderUpdate(order *domain.Order) {
	m.mu.Lock()
	if order.Status.IsTerminal() {
		delete(m.orders, order.OrderID)
	} else {
		m.orders[order.OrderID] = order
	}
	m.mu.Unlock()

	m.mu.RLock()
	cbs := append([]OnOrderUpdate(nil), m.onOrderUpdate...)
	m.mu.RUnlock()
	for _, cb := range cbs {
		cb(order)
	}
}

// HandleFill applies an authenticated-channel fill, deduplicating by
// trade_id (or its synthesized key when the venue omits one).
func (m *Manager) HandleFill(fill domain.Fill) {
	key := fill.Key()
	m.mu.Lock()
	if _, dup := m.seenTrades[key]; dup {
		m.mu.Unlock()
		return
	}
	m.seenTrades[key] = struct{}{}
	m.mu.Unlock()

	m.mu.RLock()
	cbs := append([]OnFill(nil), m.onFill...)
	m.mu.RUnlock()
	for _, cb := range cbs {
		cb(fill)
	}
}

// OnDisconnect reports the hard fault and begins the mandatory forced
// reconciliation before any further placements are permitted.
func (m *Manager) OnDisconnect() {
	if m.fault != nil {
		m.fault.NotifyUserChannelDisconnect()
	}
	m.mu.Lock()
	m.reconciling = true
	m.mu.Unlock()
}

// Reconcile pulls a fresh REST snapshot of open orders and applies the
// three-way diff described in spec §4.2:
//   - local orders absent from the snapshot and not already terminal are
//     marked CANCELLED (EXPIRED is left to the caller when the exchange's
//     error code says so — see ApplyTerminal);
//   - snapshot orders absent locally are inserted;
//   - remaining_size is taken from the snapshot when it differs.
func (m *Manager) Reconcile() ([]*domain.Order, error) {
	snapshot, err := m.snapshotter.OpenOrders()
	if err != nil {
		return nil, err
	}

	bySnapshot := make(map[string]*domain.Order, len(snapshot))
	for _, o := range snapshot {
		bySnapshot[o.OrderID] = o
	}

	var changed []*domain.Order

	m.mu.Lock()
	for id, local := range m.orders {
		if snap, ok := bySnapshot[id]; ok {
			if !snap.RemainingSize.Equal(local.RemainingSize) {
				local.RemainingSize = snap.RemainingSize
				local.UpdatedAt = snap.UpdatedAt
				changed = append(changed, local)
			}
			continue
		}
		if !local.Status.IsTerminal() {
			local.Status = domain.OrderStatusCancelled
			changed = append(changed, local)
		}
		delete(m.orders, id)
	}
	for id, snap := range bySnapshot {
		if _, exists := m.orders[id]; !exists {
			m.orders[id] = snap
			changed = append(changed, snap)
		}
	}
	m.reconciling = false
	m.mu.Unlock()

	m.mu.RLock()
	cbs := append([]OnOrderUpdate(nil), m.onOrderUpdate...)
	m.mu.RUnlock()
	for _, o := range changed {
		for _, cb := range cbs {
			cb(o)
		}
	}

	return changed, nil
}

// ApplyTerminal marks a locally-tracked order EXPIRED instead of CANCELLED
// when the exchange's error code says so; called by the exchange client's
// error decoder rather than the periodic Reconcile sweep.
func (m *Manager) ApplyTerminal(orderID string, status domain.OrderStatus) {
	m.mu.Lock()
	order, ok := m.orders[orderID]
	if ok {
		order.Status = status
		delete(m.orders, orderID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	m.mu.RLock()
	cbs := append([]OnOrderUpdate(nil), m.onOrderUpdate...)
	m.mu.RUnlock()
	for _, cb := range cbs {
		cb(order)
	}
}
