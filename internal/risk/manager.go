// Package risk implements component G: the per-market and global risk
// state machine (NORMAL/WARNING/HALTED/RECOVERING), position-limit
// multipliers, kill-switch cancellation, and drawdown tracking. The
// counters in counters.go are adapted from the teacher's atomic
// CircuitBreaker; this file generalizes their single on/off gate into the
// full four-state machine spec §4.7 describes.
package risk

import (
	"context"
	"sync"
	"time"

	"github.com/betbot/aquoter/internal/obslog"
	"github.com/betbot/aquoter/pkg/alert"
)

type State string

const (
	StateNormal     State = "NORMAL"
	StateWarning    State = "WARNING"
	StateHalted     State = "HALTED"
	StateRecovering State = "RECOVERING"
)

// Multiplier returns the position-limit multiplier InventoryManager applies
// for the given state.
func (s State) Multiplier() float64 {
	switch s {
	case StateNormal:
		return 1.0
	case StateWarning:
		return 0.5
	case StateRecovering:
		return 0.25
	case StateHalted:
		return 0.0
	default:
		return 1.0
	}
}

type Config struct {
	StaleFeedThreshold      time.Duration
	MaxConsecutiveErrorsWarn int
	MaxConsecutiveErrors    int
	MaxErrorsPerHour        int
	MaxDrawdownPerMarket    float64
	MaxDrawdownGlobal       float64
	MaxLossPerTrade         float64
	HaltCooldown            time.Duration // default 300s
	RecoveryInterval        time.Duration
	RequireManualReset      bool
	WsGapReconcileAttempts  int
}

func DefaultConfig() Config {
	return Config{
		StaleFeedThreshold:       10 * time.Second,
		MaxConsecutiveErrorsWarn: 3,
		MaxConsecutiveErrors:     10,
		MaxErrorsPerHour:         50,
		MaxDrawdownPerMarket:     500,
		MaxDrawdownGlobal:        2000,
		MaxLossPerTrade:          200,
		HaltCooldown:             300 * time.Second,
		RecoveryInterval:         120 * time.Second,
		WsGapReconcileAttempts:   3,
	}
}

// CancelAllFunc is invoked with the affected scope on entering HALTED; the
// empty string means "all markets".
type CancelAllFunc func(ctx context.Context, assetID string)

type marketRisk struct {
	state       State
	pnl         pnlTracker
	errs        errorCounter
	haltedAt    time.Time
	feedStale   bool
	gapPending  int
	lastFaultAt time.Time
}

// Manager owns per-market and one global risk state. Global HALTED
// dominates: IsHalted reports true for every asset while global is halted,
// even if the asset's own state is NORMAL.
type Manager struct {
	mu      sync.Mutex
	cfg     Config
	global  marketRisk
	markets map[string]*marketRisk

	cancelAll CancelAllFunc
	alerter   *alert.Manager
}

func NewManager(cfg Config, cancelAll CancelAllFunc, alerter *alert.Manager) *Manager {
	return &Manager{
		cfg:       cfg,
		global:    marketRisk{state: StateNormal},
		markets:   make(map[string]*marketRisk),
		cancelAll: cancelAll,
		alerter:   alerter,
	}
}

func (m *Manager) market(assetID string) *marketRisk {
	mk, ok := m.markets[assetID]
	if !ok {
		mk = &marketRisk{state: StateNormal}
		m.markets[assetID] = mk
	}
	return mk
}

// IsHalted reports whether placements for assetID must be withheld.
func (m *Manager) IsHalted(assetID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.global.state == StateHalted {
		return true
	}
	return m.market(assetID).state == StateHalted
}

// State returns the effective state for an asset (global takes priority
// when it is more severe).
func (m *Manager) State(assetID string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.effective(assetID)
}

func (m *Manager) effective(assetID string) State {
	g := m.global.state
	a := m.market(assetID).state
	if severity(g) > severity(a) {
		return g
	}
	return a
}

func severity(s State) int {
	switch s {
	case StateNormal:
		return 0
	case StateRecovering:
		return 1
	case StateWarning:
		return 2
	case StateHalted:
		return 3
	default:
		return 0
	}
}

func (m *Manager) PositionMultiplier(assetID string) float64 {
	return m.State(assetID).Multiplier()
}

// NotifySequenceGap and NotifyFeedStale implement orderbook.GapNotifier.
func (m *Manager) NotifySequenceGap(assetID string, expected, got int64) {
	m.mu.Lock()
	mk := m.market(assetID)
	mk.gapPending++
	pending := mk.gapPending
	m.mu.Unlock()

	if pending >= m.cfg.WsGapReconcileAttempts {
		m.escalate(assetID, StateHalted, "unresolved sequence gap after reconcile attempts")
	} else {
		m.escalate(assetID, StateWarning, "sequence gap pending reconcile")
	}
}

func (m *Manager) NotifyFeedStale(assetID string, stale bool) {
	m.mu.Lock()
	mk := m.market(assetID)
	mk.feedStale = stale
	m.mu.Unlock()
	if stale {
		m.escalate(assetID, StateWarning, "public feed disconnect/stale")
	}
}

// NotifyGapResolved clears the gap counter after a successful reconcile,
// letting the state machine consider RECOVERING on the next tick.
func (m *Manager) NotifyGapResolved(assetID string) {
	m.mu.Lock()
	m.market(assetID).gapPending = 0
	m.mu.Unlock()
}

// NotifyUserChannelDisconnect implements userchannel.HardFaultNotifier —
// per spec this is always a hard HALT, global scope.
func (m *Manager) NotifyUserChannelDisconnect() {
	m.escalate("", StateHalted, "authenticated user-channel disconnect")
}

// RecordError feeds OrderManager's error outcomes into the consecutive/
// hourly thresholds that drive WARNING/HALTED transitions.
func (m *Manager) RecordError(assetID string, now time.Time) {
	m.mu.Lock()
	mk := m.market(assetID)
	mk.errs.recordError(now)
	consecutive := mk.errs.consecutiveCount()
	hourly := mk.errs.hourlyCount(now)
	m.mu.Unlock()

	if int(consecutive) >= m.cfg.MaxConsecutiveErrors || hourly >= m.cfg.MaxErrorsPerHour {
		m.escalate(assetID, StateHalted, "consecutive/hourly error threshold breached")
		return
	}
	if int(consecutive) >= m.cfg.MaxConsecutiveErrorsWarn {
		m.escalate(assetID, StateWarning, "consecutive error warn threshold breached")
	}
}

func (m *Manager) RecordSuccess(assetID string) {
	m.mu.Lock()
	m.market(assetID).errs.recordSuccess()
	m.mu.Unlock()
}

// RecordTradeLoss checks the single-trade loss HALT trigger.
func (m *Manager) RecordTradeLoss(assetID string, lossAbs float64) {
	if lossAbs >= m.cfg.MaxLossPerTrade {
		m.escalate(assetID, StateHalted, "single trade loss exceeds max_loss_per_trade")
	}
}

// UpdatePnL feeds realized+unrealized P&L for drawdown tracking; call once
// per asset per tick, plus once for the aggregate under assetID="".
func (m *Manager) UpdatePnL(assetID string, pnl float64) {
	m.mu.Lock()
	mk := m.market(assetID)
	dd := mk.pnl.update(pnl)
	m.mu.Unlock()

	limit := m.cfg.MaxDrawdownPerMarket
	if assetID == "" {
		limit = m.cfg.MaxDrawdownGlobal
	}
	if dd >= limit {
		m.escalate(assetID, StateHalted, "drawdown threshold breached")
	}
}

func (m *Manager) escalate(assetID string, target State, reason string) {
	m.mu.Lock()
	var mk *marketRisk
	if assetID == "" {
		mk = &m.global
	} else {
		mk = m.market(assetID)
	}
	if severity(target) <= severity(mk.state) {
		m.mu.Unlock()
		return
	}
	prev := mk.state
	mk.state = target
	mk.lastFaultAt = time.Now()
	if target == StateHalted {
		mk.haltedAt = time.Now()
	}
	m.mu.Unlock()

	log := obslog.Component("risk")
	log.WithFields(map[string]interface{}{
		"asset": assetID, "from": prev, "to": target, "reason": reason,
	}).Warnf("risk state transition")

	if target == StateHalted {
		if m.cancelAll != nil {
			m.cancelAll(context.Background(), assetID)
		}
		if m.alerter != nil {
			m.alerter.SendCritical(reason, map[string]interface{}{"asset_id": assetID})
		}
	}
}

// Tick evaluates HALTED→RECOVERING and RECOVERING→NORMAL transitions;
// call once per orchestrator loop iteration.
func (m *Manager) Tick(assetID string, now time.Time) {
	m.mu.Lock()
	var mk *marketRisk
	if assetID == "" {
		mk = &m.global
	} else {
		mk = m.market(assetID)
	}
	state := mk.state
	haltedAt := mk.haltedAt
	feedStale := mk.feedStale
	gapPending := mk.gapPending
	lastFault := mk.lastFaultAt
	m.mu.Unlock()

	switch state {
	case StateHalted:
		if m.cfg.RequireManualReset {
			return
		}
		if now.Sub(haltedAt) < m.cfg.HaltCooldown {
			return
		}
		if feedStale || gapPending > 0 {
			return
		}
		m.transitionDown(assetID, StateRecovering)
	case StateRecovering:
		if now.Sub(lastFault) >= m.cfg.RecoveryInterval {
			m.transitionDown(assetID, StateNormal)
		}
	}
}

func (m *Manager) transitionDown(assetID string, target State) {
	m.mu.Lock()
	var mk *marketRisk
	if assetID == "" {
		mk = &m.global
	} else {
		mk = m.market(assetID)
	}
	prev := mk.state
	mk.state = target
	m.mu.Unlock()

	obslog.Component("risk").WithFields(map[string]interface{}{
		"asset": assetID, "from": prev, "to": target,
	}).Infof("risk state transition")
}

// ManualReset clears a HALTED state that require_manual_reset is holding.
func (m *Manager) ManualReset(assetID string) {
	m.transitionDown(assetID, StateRecovering)
}

// Halt forces the given scope (empty string for global) into HALTED, used
// by the admin surface's POST /risk/halt manual kill switch.
func (m *Manager) Halt(assetID, reason string) {
	m.escalate(assetID, StateHalted, reason)
}

// MarketSnapshot is one asset's risk state, for the admin surface's
// GET /risk.
type MarketSnapshot struct {
	AssetID    string
	State      State
	Multiplier float64
}

// Snapshot reports the global state plus every per-market state currently
// tracked.
func (m *Manager) Snapshot() (global MarketSnapshot, markets []MarketSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	global = MarketSnapshot{AssetID: "", State: m.global.state, Multiplier: m.global.state.Multiplier()}
	for assetID := range m.markets {
		eff := m.effective(assetID)
		markets = append(markets, MarketSnapshot{AssetID: assetID, State: eff, Multiplier: eff.Multiplier()})
	}
	return global, markets
}
