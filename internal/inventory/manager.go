// Package inventory implements component C: authoritative position
// tracking, snapshot reconciliation, and admission control against
// per-market and global exposure/liability limits. Grounded on the
// teacher's internal/domain/position.go AddFill/UnrealizedPnL pattern
// (now folded into internal/domain.TrackedPosition) and generalized to
// the pending-fill reconciliation walk spec §4.3 describes.
package inventory

import (
	"sync"
	"time"

	"github.com/betbot/aquoter/internal/domain"
	"github.com/betbot/aquoter/internal/obslog"
	"github.com/betbot/aquoter/internal/riskerr"
	"github.com/shopspring/decimal"
)

// LiveBuySource reports the sum of remaining_size across live/partial BUY
// orders resting on an asset, used to compute conservative_exposure.
// Implemented by internal/userchannel.Manager.
type LiveBuySource interface {
	OpenOrders(assetID string) []*domain.Order
}

// Limits is one market's configured caps, drawn from SPEC_FULL.md's
// config surface.
type Limits struct {
	MaxPositionPerMarket decimal.Decimal
	MaxLiabilityPerMarket decimal.Decimal
	MaxTotalLiability    decimal.Decimal
	ReconcileEpsilon     decimal.Decimal // ε; default small, e.g. 1e-6
	PendingFillTTL       time.Duration
}

func DefaultLimits() Limits {
	return Limits{
		MaxPositionPerMarket:  decimal.NewFromInt(100),
		MaxLiabilityPerMarket: decimal.NewFromInt(1000),
		MaxTotalLiability:     decimal.NewFromInt(10000),
		ReconcileEpsilon:      decimal.NewFromFloat(0.0001),
		PendingFillTTL:        30 * time.Second,
	}
}

// LimitCheck is the result of check_limits(asset).
type LimitCheck struct {
	CanBuy  bool
	CanSell bool
	Reasons []string
}

// Manager owns one TrackedPosition per asset and enforces admission
// control. RiskMultiplier is supplied by RiskManager per spec §4.7's
// WARNING-state position-limit shrink.
type Manager struct {
	mu         sync.Mutex
	positions  map[string]*domain.TrackedPosition
	limits     Limits
	pairs      *domain.PairRegistry
	liveBuys   LiveBuySource
	riskMultiplier func(assetID string) decimal.Decimal
	reservedPendingBuys map[string]decimal.Decimal
}

// NewManager wires riskMultiplier per spec §4.7's per-market position-limit
// shrink: pass a func returning RiskManager.PositionMultiplier(assetID), not
// a single global value, so a market-scoped WARNING/RECOVERING escalation
// (e.g. that market's own sequence gap) shrinks only that market's cap.
func NewManager(limits Limits, pairs *domain.PairRegistry, liveBuys LiveBuySource, riskMultiplier func(assetID string) decimal.Decimal) *Manager {
	if riskMultiplier == nil {
		riskMultiplier = func(string) decimal.Decimal { return decimal.NewFromInt(1) }
	}
	return &Manager{
		positions:           make(map[string]*domain.TrackedPosition),
		limits:              limits,
		pairs:               pairs,
		liveBuys:            liveBuys,
		riskMultiplier:      riskMultiplier,
		reservedPendingBuys: make(map[string]decimal.Decimal),
	}
}

func (m *Manager) position(assetID string) *domain.TrackedPosition {
	pos, ok := m.positions[assetID]
	if !ok {
		pos = domain.NewTrackedPosition(assetID)
		m.positions[assetID] = pos
	}
	return pos
}

// OnFill records a fill as a PendingFill under its key.
func (m *Manager) OnFill(f domain.Fill, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.position(f.AssetID).ApplyFill(f, now)
}

// SetPosition is the authoritative snapshot path used on ordinary
// (non-gap) position refreshes; it does not touch pending fills.
func (m *Manager) SetPosition(assetID string, snapshotSize decimal.Decimal, ts time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos := m.position(assetID)
	pos.ConfirmedSize = domain.NewSize(snapshotSize)
	pos.ConfirmedAt = ts
}

// ForceReconcile implements the §4.3 snapshot reconciliation walk: trust
// the snapshot, absorb pending fills oldest-first against the delta, and
// age out anything left past TTL.
func (m *Manager) ForceReconcile(assetID string, snapshotSize decimal.Decimal, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	log := obslog.Component("inventory")

	pos := m.position(assetID)
	oldConfirmed := pos.ConfirmedSize.Decimal()
	absorbed := snapshotSize.Sub(oldConfirmed)

	pos.ConfirmedSize = domain.NewSize(snapshotSize)
	pos.ConfirmedAt = now

	if absorbed.Abs().LessThan(m.limits.ReconcileEpsilon) {
		m.ageOutExpired(pos, now, log)
		return
	}

	remaining := absorbed
	for _, pf := range pos.PendingByAgeAsc() {
		delta := pf.Size.Decimal()
		if pf.Side == domain.SideSell {
			delta = delta.Neg()
		}
		sameSign := (delta.Sign() == remaining.Sign()) || delta.IsZero() || remaining.IsZero()
		if !sameSign {
			continue
		}
		if delta.Abs().LessThanOrEqual(remaining.Abs()) {
			remaining = remaining.Sub(delta)
			pos.RemovePendingFill(pf.Key())
		}
		// a fill whose absolute delta exceeds remaining absorption is kept.
	}

	m.ageOutExpired(pos, now, log)
}

func (m *Manager) ageOutExpired(pos *domain.TrackedPosition, now time.Time, log interface{ Warnf(string, ...any) }) {
	for _, pf := range pos.PendingByAgeAsc() {
		if pf.Age(now) > m.limits.PendingFillTTL {
			log.Warnf("aging out stale pending fill trade_id=%q asset=%s size=%s side=%s",
				pf.TradeID, pos.AssetID, pf.Size.Decimal().String(), pf.Side)
			pos.RemovePendingFill(pf.Key())
		}
	}
}

// conservativeExposure = confirmed_size + pending_fill_buys + Σ remaining
// size of live BUY orders.
func (m *Manager) conservativeExposure(assetID string) decimal.Decimal {
	pos := m.position(assetID)
	exposure := pos.ConfirmedSize.Decimal().Add(pos.PendingBuys().Decimal())
	if m.liveBuys != nil {
		for _, o := range m.liveBuys.OpenOrders(assetID) {
			if o.Side == domain.SideBuy && o.Status.IsOpen() {
				exposure = exposure.Add(o.RemainingSize.Decimal())
			}
		}
	}
	if r, ok := m.reservedPendingBuys[assetID]; ok {
		exposure = exposure.Add(r)
	}
	return exposure
}

// CheckLimits implements check_limits(asset) -> {can_buy, can_sell, reasons}.
func (m *Manager) CheckLimits(assetID string, desiredBuy, desiredSell decimal.Decimal) LimitCheck {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos := m.position(assetID)
	result := LimitCheck{CanBuy: true, CanSell: true}

	limitCap := m.limits.MaxPositionPerMarket.Mul(m.riskMultiplier(assetID))
	if m.conservativeExposure(assetID).Add(desiredBuy).GreaterThan(limitCap) {
		result.CanBuy = false
		result.Reasons = append(result.Reasons, "conservative_exposure_exceeds_max_position")
	}

	if pos.EffectiveSize().Decimal().LessThan(desiredSell) {
		result.CanSell = false
		result.Reasons = append(result.Reasons, "effective_size_below_desired_sell")
	}

	if liability, ok := m.liabilityForPair(assetID); ok && liability.GreaterThan(m.limits.MaxLiabilityPerMarket) {
		result.CanBuy = false
		result.Reasons = append(result.Reasons, "max_liability_per_market_exceeded")
	}

	if m.totalLiability().GreaterThan(m.limits.MaxTotalLiability) {
		result.CanBuy = false
		result.Reasons = append(result.Reasons, "max_total_liability_exceeded")
	}

	return result
}

// liabilityForPair sums worst-case loss (≈ avg entry price × size) over
// both assets of the pair containing assetID.
func (m *Manager) liabilityForPair(assetID string) (decimal.Decimal, bool) {
	if m.pairs == nil {
		return decimal.Zero, false
	}
	complement, ok := m.pairs.Pair(assetID)
	if !ok {
		return decimal.Zero, false
	}
	total := m.worstCaseLoss(assetID).Add(m.worstCaseLoss(complement))
	return total, true
}

func (m *Manager) worstCaseLoss(assetID string) decimal.Decimal {
	pos, ok := m.positions[assetID]
	if !ok {
		return decimal.Zero
	}
	size := pos.EffectiveSize().Decimal()
	if size.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return size.Mul(pos.AvgPrice.Decimal())
}

func (m *Manager) totalLiability() decimal.Decimal {
	total := decimal.Zero
	for id := range m.positions {
		total = total.Add(m.worstCaseLoss(id))
	}
	return total
}

// AdjustedBuySize implements adjusted_buy_size(asset, desired) -> size in
// [0, desired] shrinking desired to whatever room remains under the cap.
func (m *Manager) AdjustedBuySize(assetID string, desired decimal.Decimal) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	limitCap := m.limits.MaxPositionPerMarket.Mul(m.riskMultiplier(assetID))
	room := limitCap.Sub(m.conservativeExposure(assetID))
	if room.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	if room.LessThan(desired) {
		return room
	}
	return desired
}

// ReservePendingBuy / ReleasePendingBuy track the notional of open BUY
// orders not yet reflected as live orders in liveBuys (the brief gap
// between placement request and the order's echo on the user channel).
func (m *Manager) ReservePendingBuy(assetID string, size decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reservedPendingBuys[assetID] = m.reservedPendingBuys[assetID].Add(size)
}

func (m *Manager) ReleasePendingBuy(assetID string, size decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.reservedPendingBuys[assetID].Sub(size)
	if v.LessThan(decimal.Zero) {
		v = decimal.Zero
	}
	m.reservedPendingBuys[assetID] = v
}

// Position exposes the tracked position for read-only consumers
// (QuoteEngine, analytics, adminserver).
func (m *Manager) Position(assetID string) domain.TrackedPosition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.position(assetID)
}

// Snapshot returns a read-only copy of every tracked position, keyed by
// asset ID, for the admin surface's GET /inventory.
func (m *Manager) Snapshot() map[string]domain.TrackedPosition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]domain.TrackedPosition, len(m.positions))
	for assetID, pos := range m.positions {
		out[assetID] = *pos
	}
	return out
}

// UnknownAssetError implements the §4.3 UnknownAsset error kind for
// callers that require an asset to already be tracked.
func (m *Manager) RequireTracked(assetID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.positions[assetID]; !ok {
		return riskerr.New(riskerr.KindUnknownAsset, assetID)
	}
	return nil
}
