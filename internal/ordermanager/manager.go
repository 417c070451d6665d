// Package ordermanager implements component F: translates QuoteEngine
// output into exchange placement/cancellation calls, enforcing post-only,
// batching, dry-run, fee-rate caching, and rate limiting. Grounded on the
// teacher's pkg/cache.InMemoryCache (per-asset fee TTL cache) and
// pkg/ratelimit.TokenBucket (global/per-asset request throttling), wired
// into the exchange domain instead of Binance/Polymarket-specific
// endpoints.
package ordermanager

import (
	"context"
	"time"

	"github.com/betbot/aquoter/internal/domain"
	"github.com/betbot/aquoter/internal/obslog"
	"github.com/betbot/aquoter/internal/quote"
	"github.com/betbot/aquoter/internal/riskerr"
	"github.com/betbot/aquoter/pkg/cache"
	"github.com/betbot/aquoter/pkg/ratelimit"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const maxBatchSize = 15

// PlacementRequest is one side of a quote replacement, batched with others
// before being sent to the exchange.
type PlacementRequest struct {
	AssetID       string
	Side          domain.Side
	Price         domain.Price
	Size          domain.Size
	FeeRateBps    int
	ClientOrderID string
}

// ExchangeClient abstracts the signed REST surface; internal/exchange
// implements it using internal/exchange/{wire,signing} and go-resty.
type ExchangeClient interface {
	PlaceOrders(ctx context.Context, reqs []PlacementRequest) ([]PlacementResult, error)
	CancelOrder(ctx context.Context, orderID string) error
	CancelAllForAsset(ctx context.Context, assetID string) error
	FeeRateBps(ctx context.Context, assetID string) (int, error)
}

type PlacementResult struct {
	ClientOrderID string
	OrderID       string
	Accepted      bool
	Rejected      bool
	RejectReason  string
	Crossed       bool // PostOnlyCross
}

// RiskState narrows internal/risk.Manager to what placement gating and
// error/success reporting need. Implemented by *risk.Manager.
type RiskState interface {
	IsHalted(assetID string) bool
	RecordError(assetID string, now time.Time)
	RecordSuccess(assetID string)
}

// ReservationSink lets OrderManager reserve/release the pending-buy
// notional InventoryManager needs to close the placement-to-echo gap in
// conservative_exposure (spec §4.3). Implemented by internal/inventory.Manager.
type ReservationSink interface {
	ReservePendingBuy(assetID string, size decimal.Decimal)
	ReleasePendingBuy(assetID string, size decimal.Decimal)
}

// pendingReservation is the notional reserved for one accepted BUY order,
// kept until that order reaches a terminal status.
type pendingReservation struct {
	AssetID string
	Size    decimal.Decimal
}

type Manager struct {
	client  ExchangeClient
	risk    RiskState
	dryRun  bool

	feeCache *cache.InMemoryCache[string, int]
	feeTTL   time.Duration

	globalLimiter    ratelimit.RateLimiter
	assetLimiters    map[string]ratelimit.RateLimiter
	minAssetInterval time.Duration

	reservations        ReservationSink
	pendingReservations map[string]pendingReservation // keyed by order ID

	errKinds ErrorCounters
}

// ErrorCounters tracks the §4.6/§4.7 consecutive/hourly error counts that
// feed RiskManager's WARNING/HALTED transitions.
type ErrorCounters struct {
	Consecutive int
	LastHour    []time.Time
}

func NewManager(client ExchangeClient, risk RiskState, dryRun bool, feeTTL time.Duration, globalRefreshCapPerSec int, minAssetInterval time.Duration, reservations ReservationSink) *Manager {
	return &Manager{
		client:              client,
		risk:                risk,
		dryRun:              dryRun,
		feeCache:            cache.NewInMemoryCache[string, int](feeTTL),
		feeTTL:              feeTTL,
		globalLimiter:       ratelimit.NewTokenBucket(globalRefreshCapPerSec, globalRefreshCapPerSec, time.Second),
		assetLimiters:       make(map[string]ratelimit.RateLimiter),
		minAssetInterval:    minAssetInterval,
		reservations:        reservations,
		pendingReservations: make(map[string]pendingReservation),
	}
}

func (m *Manager) feeRate(ctx context.Context, assetID string) (int, error) {
	if bps, ok := m.feeCache.Get(assetID); ok {
		return bps, nil
	}
	bps, err := m.client.FeeRateBps(ctx, assetID)
	if err != nil {
		return 0, riskerr.Wrap(riskerr.KindFeeFetchFailed, err, "fetch fee rate").WithContext("asset_id", assetID)
	}
	m.feeCache.Set(assetID, bps, m.feeTTL)
	return bps, nil
}

// ApplyAction executes one QuoteEngine action: cancel, do nothing, or
// batch-place a replacement pair. Cancellations are always sent
// individually for immediacy, per §4.6; a cancel never releases the
// pending-buy reservation InventoryManager holds — only a terminal
// confirmation via UserChannelManager does that.
func (m *Manager) ApplyAction(ctx context.Context, action quote.Action, resting []*domain.Order) error {
	log := obslog.Component("ordermanager")

	if m.risk != nil && m.risk.IsHalted(action.AssetID) {
		return m.cancelAllQuiet(ctx, action.AssetID, resting)
	}

	switch action.Kind {
	case quote.ActionCancelAll:
		return m.cancelAllQuiet(ctx, action.AssetID, resting)
	case quote.ActionKeep:
		return nil
	case quote.ActionReplace:
		return m.replace(ctx, action, resting, log)
	default:
		return nil
	}
}

func (m *Manager) cancelAllQuiet(ctx context.Context, assetID string, resting []*domain.Order) error {
	for _, o := range resting {
		if o.AssetID != assetID || !o.Status.IsOpen() {
			continue
		}
		if m.dryRun {
			obslog.Component("ordermanager").Infof("dry-run cancel order_id=%s asset=%s", o.OrderID, assetID)
			continue
		}
		if err := m.client.CancelOrder(ctx, o.OrderID); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) replace(ctx context.Context, action quote.Action, resting []*domain.Order, log interface{ Warnf(string, ...any) }) error {
	if !m.rateOK(action.AssetID) {
		return nil
	}

	feeBps, err := m.feeRate(ctx, action.AssetID)
	if err != nil {
		log.Warnf("skipping asset %s this cycle: %v", action.AssetID, err)
		return nil
	}

	if err := m.cancelAllQuiet(ctx, action.AssetID, resting); err != nil {
		return err
	}

	reqs := []PlacementRequest{
		{
			AssetID:       action.AssetID,
			Side:          domain.SideBuy,
			Price:         action.Bid,
			Size:          action.SizeBid,
			FeeRateBps:    feeBps,
			ClientOrderID: uuid.NewString(),
		},
		{
			AssetID:       action.AssetID,
			Side:          domain.SideSell,
			Price:         action.Ask,
			Size:          action.SizeAsk,
			FeeRateBps:    feeBps,
			ClientOrderID: uuid.NewString(),
		},
	}

	if m.dryRun {
		obslog.Component("ordermanager").Infof("dry-run replace asset=%s bid=%s ask=%s", action.AssetID, action.Bid, action.Ask)
		return nil
	}

	byClientID := make(map[string]PlacementRequest, len(reqs))
	for _, r := range reqs {
		byClientID[r.ClientOrderID] = r
	}

	results, err := m.client.PlaceOrders(ctx, reqs)
	if err != nil {
		m.recordError(action.AssetID)
		return riskerr.Wrap(riskerr.KindPlacementReject, err, "batch placement failed")
	}
	for _, r := range results {
		if r.Crossed {
			return riskerr.New(riskerr.KindExchangeRejected, "post_only_cross").WithContext("asset_id", action.AssetID)
		}
		if r.Rejected {
			m.recordError(action.AssetID)
			return riskerr.New(riskerr.KindPlacementReject, r.RejectReason).WithContext("asset_id", action.AssetID)
		}
		m.reserveIfBuy(action.AssetID, r, byClientID)
	}
	m.recordSuccess(action.AssetID)
	return nil
}

// reserveIfBuy holds the placed BUY size against InventoryManager's
// conservative_exposure until the order's terminal confirmation arrives on
// the user channel, closing the gap between placement and that echo.
func (m *Manager) reserveIfBuy(assetID string, result PlacementResult, byClientID map[string]PlacementRequest) {
	if m.reservations == nil || !result.Accepted {
		return
	}
	req, ok := byClientID[result.ClientOrderID]
	if !ok || req.Side != domain.SideBuy {
		return
	}
	m.reservations.ReservePendingBuy(assetID, req.Size.Decimal())
	m.pendingReservations[result.OrderID] = pendingReservation{AssetID: assetID, Size: req.Size.Decimal()}
}

// ReleaseTerminal drops an order's pending-buy reservation once its
// terminal status confirms InventoryManager no longer needs the
// placement-to-echo cushion for it. A no-op for orders that were never
// reserved (SELLs, or when ReservationSink is unset).
func (m *Manager) ReleaseTerminal(order *domain.Order) {
	if order == nil || !order.Status.IsTerminal() {
		return
	}
	pr, ok := m.pendingReservations[order.OrderID]
	if !ok {
		return
	}
	delete(m.pendingReservations, order.OrderID)
	if m.reservations != nil {
		m.reservations.ReleasePendingBuy(pr.AssetID, pr.Size)
	}
}

// rateOK enforces the global refresh cap plus a per-asset minimum
// replacement interval. Both gates use pkg/ratelimit: the global cap is a
// token bucket refilling at global_refresh_cap_per_sec, the per-asset gate
// is a one-slot sliding window sized to min_refresh_interval_ms, created
// lazily on an asset's first quote.
func (m *Manager) rateOK(assetID string) bool {
	if !m.globalLimiter.Allow() {
		return false
	}
	lim, ok := m.assetLimiters[assetID]
	if !ok {
		lim = ratelimit.NewSlidingWindow(1, m.minAssetInterval)
		m.assetLimiters[assetID] = lim
	}
	return lim.Allow()
}

// recordError updates the local ErrorCounters (surfaced via
// ConsecutiveErrors/ErrorsInLastHour) and forwards to RiskManager, whose
// consecutive/hourly thresholds drive the §4.7 WARNING/HALTED transitions.
func (m *Manager) recordError(assetID string) {
	now := time.Now()
	m.errKinds.Consecutive++
	m.errKinds.LastHour = append(m.errKinds.LastHour, now)
	if m.risk != nil {
		m.risk.RecordError(assetID, now)
	}
}

func (m *Manager) recordSuccess(assetID string) {
	m.errKinds.Consecutive = 0
	if m.risk != nil {
		m.risk.RecordSuccess(assetID)
	}
}

// Batches groups a set of replacement requests into ≤15-per-call chunks
// for callers that build the full multi-asset batch up front, per the
// "batch placement (≤N per request, default 15)" contract.
func Batches(reqs []PlacementRequest) [][]PlacementRequest {
	if len(reqs) == 0 {
		return nil
	}
	var out [][]PlacementRequest
	for i := 0; i < len(reqs); i += maxBatchSize {
		end := i + maxBatchSize
		if end > len(reqs) {
			end = len(reqs)
		}
		out = append(out, reqs[i:end])
	}
	return out
}

func (m *Manager) ConsecutiveErrors() int { return m.errKinds.Consecutive }

func (m *Manager) ErrorsInLastHour(now time.Time) int {
	count := 0
	cutoff := now.Add(-time.Hour)
	for _, t := range m.errKinds.LastHour {
		if t.After(cutoff) {
			count++
		}
	}
	return count
}
