// Package orchestrator implements component I: process startup, the
// cooperative single-threaded main loop, and graceful shutdown, wiring
// together every other component per spec §5. Grounded on the teacher's
// controlplane/server.New/Close lifecycle (build dependencies, migrate,
// start background work, close cleanly) and its pkg/shutdown +
// pkg/syncgroup collaborators for the loop's two isolated background
// concerns: fill-markout sampling and blockchain redemption RPC.
package orchestrator

import (
	"context"
	"crypto/ecdsa"
	"net/http"
	"sync"
	"time"

	"github.com/betbot/aquoter/internal/adminserver"
	"github.com/betbot/aquoter/internal/analytics"
	"github.com/betbot/aquoter/internal/config"
	"github.com/betbot/aquoter/internal/ctf"
	"github.com/betbot/aquoter/internal/domain"
	"github.com/betbot/aquoter/internal/exchange"
	"github.com/betbot/aquoter/internal/exchange/wire"
	"github.com/betbot/aquoter/internal/inventory"
	"github.com/betbot/aquoter/internal/momentum"
	"github.com/betbot/aquoter/internal/obslog"
	"github.com/betbot/aquoter/internal/orderbook"
	"github.com/betbot/aquoter/internal/ordermanager"
	"github.com/betbot/aquoter/internal/quote"
	"github.com/betbot/aquoter/internal/risk"
	"github.com/betbot/aquoter/internal/store"
	"github.com/betbot/aquoter/internal/userchannel"
	"github.com/betbot/aquoter/pkg/alert"
	"github.com/betbot/aquoter/pkg/shutdown"
	"github.com/betbot/aquoter/pkg/syncgroup"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Orchestrator owns every component's lifecycle and drives the main loop.
type Orchestrator struct {
	cfg config.Config

	store *store.Store

	book       *orderbook.Manager
	bookStream *orderbook.Stream
	userMgr    *userchannel.Manager
	userStream *userchannel.Stream

	inv       *inventory.Manager
	mom       *momentum.Detector
	quoteEng  *quote.Engine
	om        *ordermanager.Manager
	riskMgr   *risk.Manager
	gapLogger *gapEventLogger
	analytics *analytics.Tracker
	pairs     *domain.PairRegistry

	exchangeClient *exchange.Client
	admin          *adminserver.Server
	adminHTTP      *http.Server
	alerter        *alert.Manager

	ctfClient *ctf.CTFClient
	redeemer  *ctf.AutoRedeemer

	sd *shutdown.Manager
	sg *syncgroup.SyncGroup

	sessionID string
	cancel    context.CancelFunc
}

// New builds every component and wires their callback edges, but performs
// no I/O; call Run to connect streams and enter the main loop.
func New(cfg config.Config) (*Orchestrator, error) {
	o := &Orchestrator{cfg: cfg, pairs: domain.NewPairRegistry()}

	channels := []alert.Channel{alert.NewLogChannel("engine", nil)}
	if cfg.LogLevel == "debug" {
		channels = append(channels, alert.NewConsoleChannel("engine"))
	}
	o.alerter = alert.NewManager(channels, 30*time.Second)

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return nil, errors.Wrap(err, "orchestrator: open store")
	}
	o.store = st

	o.riskMgr = risk.NewManager(riskConfigFrom(cfg), o.cancelAllForScope, o.alerter)
	o.gapLogger = &gapEventLogger{risk: o.riskMgr, store: o.store}
	o.book = orderbook.NewManager(cfg.StaleFeedThreshold(), o.gapLogger)

	o.mom = momentum.NewDetector(momentum.Config{
		Window:           cfg.MomentumWindow(),
		ThresholdTicks:   cfg.MomentumThresholdTicks,
		SweepFraction:    cfg.SweepDepthThreshold,
		SweepTopN:        5,
		CooldownDuration: cfg.CooldownDuration(),
	})

	o.quoteEng = quote.NewEngine(quote.Config{
		ImproveWhenSpreadTicks: cfg.ImproveWhenSpreadTicks,
		Coefficient:            cfg.InventorySkewCoefficient,
		RefreshThresholdTicks:  cfg.RefreshThresholdTicks,
		OrderSize:              domain.SizeFromFloat(cfg.OrderSizeUSDC),
		MinRefreshInterval:     cfg.MinRefreshInterval(),
	})

	o.analytics = analytics.NewTracker(o.book)

	if !cfg.DryRun {
		privKey, err := crypto.HexToECDSA(trimHexPrefix(cfg.WalletKeyHex))
		if err != nil {
			return nil, errors.Wrap(err, "orchestrator: parse wallet key")
		}
		creds := wire.ApiKeyCreds{Key: cfg.APIKey, Secret: cfg.APISecret, Passphrase: cfg.APIPassphrase}
		o.exchangeClient = exchange.New(cfg.ExchangeHost, creds, privKey, wire.Chain(cfg.ChainID), 10*time.Second)

		if cfg.RPCURL != "" {
			if err := o.setupCTF(privKey); err != nil {
				obslog.Component("orchestrator").Warnf("ctf redeemer disabled: %v", err)
			}
		}
	}

	o.userMgr = userchannel.NewManager(o.restSnapshotter(), o.riskMgr, o.cfg.ReconcilePositionsInterval())
	o.inv = inventory.NewManager(inventory.Limits{
		MaxPositionPerMarket:  decimal.NewFromFloat(cfg.MaxPositionPerMarket),
		MaxLiabilityPerMarket: decimal.NewFromFloat(cfg.MaxLiabilityPerMarket),
		MaxTotalLiability:     decimal.NewFromFloat(cfg.MaxTotalLiability),
		ReconcileEpsilon:      decimal.NewFromFloat(0.0001),
		PendingFillTTL:        cfg.PendingFillTTL(),
	}, o.pairs, o.userMgr, func(assetID string) decimal.Decimal {
		return decimal.NewFromFloat(o.riskMgr.PositionMultiplier(assetID))
	})

	o.om = ordermanager.NewManager(o.exchangeOrDryRun(), o.riskMgr, cfg.DryRun, cfg.FeeCacheTTL(),
		cfg.GlobalRefreshCapPerSec, cfg.MinRefreshInterval(), o.inv)

	o.admin = adminserver.New(o.riskMgr, o.inv)
	o.adminHTTP = &http.Server{Addr: cfg.AdminListenAddr, Handler: o.admin.Handler()}

	o.sd = shutdown.NewManager()
	o.sg = syncgroup.NewSyncGroup()

	o.wireBookCallbacks()
	o.wireUserCallbacks()

	return o, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

func riskConfigFrom(cfg config.Config) risk.Config {
	return risk.Config{
		StaleFeedThreshold:       cfg.StaleFeedThreshold(),
		MaxConsecutiveErrorsWarn: 3,
		MaxConsecutiveErrors:     cfg.MaxConsecutiveErrors,
		MaxErrorsPerHour:         cfg.MaxErrorsPerHour,
		MaxDrawdownPerMarket:     cfg.MaxDrawdownPerMarket,
		MaxDrawdownGlobal:        cfg.MaxDrawdownGlobal,
		MaxLossPerTrade:          cfg.MaxLossPerTrade,
		HaltCooldown:             cfg.HaltCooldown(),
		RecoveryInterval:         cfg.RecoveryInterval(),
		RequireManualReset:       cfg.RequireManualReset,
		WsGapReconcileAttempts:   cfg.WsGapReconcileAttempts,
	}
}

func (o *Orchestrator) setupCTF(privKey *ecdsa.PrivateKey) error {
	client, err := ctf.NewCTFClient(o.cfg.RPCURL, wire.Chain(o.cfg.ChainID), privKey)
	if err != nil {
		return err
	}
	o.ctfClient = client
	o.redeemer = ctf.NewAutoRedeemer(client, obslog.Component("redeemer"))
	return nil
}

func (o *Orchestrator) restSnapshotter() userchannel.RestSnapshotter {
	if o.exchangeClient == nil {
		return dryRunSnapshotter{}
	}
	return o.exchangeClient
}

func (o *Orchestrator) exchangeOrDryRun() ordermanager.ExchangeClient {
	if o.exchangeClient == nil {
		return dryRunExchange{}
	}
	return o.exchangeClient
}

// cancelAllForScope implements risk.CancelAllFunc: assetID == "" cancels
// every tracked asset, otherwise just that asset.
func (o *Orchestrator) cancelAllForScope(ctx context.Context, assetID string) {
	_ = o.store.AppendEvent(ctx, assetID, "risk_halt_cancel_all", nil)
	if assetID != "" {
		_ = o.exchangeOrDryRun().CancelAllForAsset(ctx, assetID)
		return
	}
	for _, a := range o.cfg.Assets {
		_ = o.exchangeOrDryRun().CancelAllForAsset(ctx, a)
	}
}

// gapEventLogger wraps RiskManager's GapNotifier so OrderbookManager's
// sequence-gap and feed-staleness notifications also land in the durable
// append-only event ledger (spec §6), not just the in-memory risk state.
type gapEventLogger struct {
	risk  *risk.Manager
	store *store.Store
}

func (g *gapEventLogger) NotifySequenceGap(assetID string, expected, got int64) {
	g.risk.NotifySequenceGap(assetID, expected, got)
	_ = g.store.AppendEvent(context.Background(), assetID, "sequence_gap", map[string]any{
		"expected": expected, "got": got,
	})
}

func (g *gapEventLogger) NotifyFeedStale(assetID string, stale bool) {
	g.risk.NotifyFeedStale(assetID, stale)
	_ = g.store.AppendEvent(context.Background(), assetID, "feed_stale", map[string]any{"stale": stale})
}

// dryRunExchange and dryRunSnapshotter satisfy ExchangeClient/RestSnapshotter
// without touching the network, for --dry-run and --detect-only runs.
type dryRunExchange struct{}

func (dryRunExchange) PlaceOrders(ctx context.Context, reqs []ordermanager.PlacementRequest) ([]ordermanager.PlacementResult, error) {
	out := make([]ordermanager.PlacementResult, len(reqs))
	for i, r := range reqs {
		out[i] = ordermanager.PlacementResult{ClientOrderID: r.ClientOrderID, OrderID: "dryrun-" + uuid.NewString(), Accepted: true}
	}
	return out, nil
}
func (dryRunExchange) CancelOrder(ctx context.Context, orderID string) error       { return nil }
func (dryRunExchange) CancelAllForAsset(ctx context.Context, assetID string) error { return nil }
func (dryRunExchange) FeeRateBps(ctx context.Context, assetID string) (int, error) { return 0, nil }

type dryRunSnapshotter struct{}

func (dryRunSnapshotter) OpenOrders() ([]*domain.Order, error) { return nil, nil }

// wireBookCallbacks connects OrderbookManager events to MomentumDetector
// and the quote/order pipeline, matching spec §5's "market data -> quote
// engine -> order manager" main-loop edge.
func (o *Orchestrator) wireBookCallbacks() {
	o.book.Subscribe(o.onBookUpdate, o.onTrade)
	o.book.SubscribeDepth(o.onDepthUpdate)
}

func (o *Orchestrator) onTrade(assetID string, trade domain.LastTradePrice, ts time.Time) {
	tob, ok := o.book.GetTopOfBook(assetID)
	if !ok {
		return
	}
	o.mom.ObserveTrade(assetID, trade.Price, tob.Tick, ts)
}

func (o *Orchestrator) onDepthUpdate(assetID string, side domain.Side, before, after []domain.PriceLevel, ts time.Time) {
	o.mom.ObserveBookDelta(assetID, before, after, ts)
}

func (o *Orchestrator) onBookUpdate(assetID string, tob orderbook.TopOfBook) {
	o.decideAndApply(assetID, tob)
}

// recomputeQuote re-runs the quote decision for assetID against the last
// known top-of-book, used after fills and order updates change
// effective_size or resting orders outside of a fresh book tick (spec
// §4.9: "always recompute quote for that asset").
func (o *Orchestrator) recomputeQuote(assetID string) {
	tob, ok := o.book.GetTopOfBook(assetID)
	if !ok {
		return
	}
	o.decideAndApply(assetID, tob)
}

func (o *Orchestrator) decideAndApply(assetID string, tob orderbook.TopOfBook) {
	ctx := context.Background()
	log := obslog.Component("orchestrator")

	if err := o.inv.RequireTracked(assetID); err != nil {
		o.inv.SetPosition(assetID, decimal.Zero, time.Now())
	}

	orderSize := decimal.NewFromFloat(o.cfg.OrderSizeUSDC)
	pos := o.inv.Position(assetID)
	effSize := pos.EffectiveSize()
	limitCheck := o.inv.CheckLimits(assetID, orderSize, orderSize)
	adjustedBuy := o.inv.AdjustedBuySize(assetID, orderSize)
	if !limitCheck.CanBuy {
		adjustedBuy = decimal.Zero
	}

	resting := restingQuoteFrom(o.userMgr.OpenOrders(assetID))
	inCooldown := o.mom.InCooldown(assetID, time.Now()) || o.userMgr.IsReconciling()

	action := o.quoteEng.Decide(assetID, tob, effSize, domain.NewSize(adjustedBuy), resting, inCooldown, time.Now())
	if err := o.om.ApplyAction(ctx, action, o.userMgr.OpenOrders(assetID)); err != nil {
		log.WithField("asset_id", assetID).Warnf("apply quote action failed: %v", err)
		o.riskMgr.RecordError(assetID, time.Now())
	}
}

func restingQuoteFrom(orders []*domain.Order) quote.RestingQuote {
	rq := quote.RestingQuote{}
	for _, ord := range orders {
		if !ord.Status.IsOpen() {
			continue
		}
		if ord.Side == domain.SideBuy {
			rq.Bid, rq.Has = ord.Price, true
		} else {
			rq.Ask, rq.Has = ord.Price, true
		}
	}
	return rq
}

// wireUserCallbacks connects UserChannelManager fills/order updates to
// InventoryManager and analytics, per spec §5's "fill events -> inventory
// manager, fill analytics" edge.
func (o *Orchestrator) wireUserCallbacks() {
	o.userMgr.Subscribe(o.onOrderUpdate, o.onFill)
}

// onOrderUpdate releases OrderManager's pending-buy reservation once an
// order reaches a terminal status, then recomputes the asset's quote per
// spec §4.9.
func (o *Orchestrator) onOrderUpdate(order *domain.Order) {
	if order == nil {
		return
	}
	o.om.ReleaseTerminal(order)
	if order.Status.IsTerminal() {
		ctx := context.Background()
		_ = o.store.AppendEvent(ctx, order.AssetID, "order_terminal", map[string]any{
			"order_id": order.OrderID, "status": string(order.Status),
		})
	}
	o.recomputeQuote(order.AssetID)
}

func (o *Orchestrator) onFill(f domain.Fill) {
	now := time.Now()
	preAvg := o.inv.Position(f.AssetID).AvgPrice
	o.inv.OnFill(f, now)

	// A SELL below the pre-fill average entry realizes a loss on this
	// single trade, the §4.7 max_loss_per_trade HALT trigger.
	if f.Side == domain.SideSell && !preAvg.IsZero() {
		loss := preAvg.Decimal().Sub(f.Price.Decimal()).Mul(f.Size.Decimal())
		if loss.GreaterThan(decimal.Zero) {
			lossF, _ := loss.Float64()
			o.riskMgr.RecordTradeLoss(f.AssetID, lossF)
		}
	}

	mid, ok := o.book.Mid(f.AssetID)
	if !ok {
		mid = f.Price
	}
	o.analytics.RecordFill(f, f.Fee.Decimal().IsNegative(), now)

	ctx := context.Background()
	if err := o.store.InsertFill(ctx, f, mid); err != nil {
		obslog.Component("orchestrator").Warnf("persist fill failed: %v", err)
	}
	_ = o.store.AppendEvent(ctx, f.AssetID, "fill", map[string]any{
		"trade_id": f.TradeID, "order_id": f.OrderID, "side": string(f.Side),
		"price": f.Price.String(), "size": f.Size.Decimal().String(),
	})

	o.recomputeQuote(f.AssetID)
}

// Run executes the startup sequence, then blocks on the main loop until
// ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	o.sessionID = uuid.NewString()
	if err := o.store.StartSession(ctx, o.sessionID, o.cfg, time.Now()); err != nil {
		return errors.Wrap(err, "orchestrator: start session")
	}

	restored, err := o.store.RestorePositions(ctx)
	if err != nil {
		return errors.Wrap(err, "orchestrator: restore positions")
	}
	for assetID, size := range restored {
		o.inv.SetPosition(assetID, size.Decimal(), time.Now())
	}

	for i := 0; i+1 < len(o.cfg.Assets); i += 2 {
		o.pairs.Register(o.cfg.Assets[i], o.cfg.Assets[i+1])
	}
	for _, assetID := range o.cfg.Assets {
		o.book.Track(assetID)
	}

	if o.cfg.MarketStreamURL != "" {
		o.bookStream = orderbook.NewStream(o.cfg.MarketStreamURL, o.cfg.Assets, o.book)
		go o.bookStream.Run(ctx)
	}
	if o.cfg.UserStreamURL != "" && !o.cfg.DryRun {
		creds := wire.ApiKeyCreds{Key: o.cfg.APIKey, Secret: o.cfg.APISecret, Passphrase: o.cfg.APIPassphrase}
		o.userStream = userchannel.NewStream(o.cfg.UserStreamURL, creds, o.userMgr)
		go o.userStream.Run(ctx)
	}

	if _, err := o.userMgr.Reconcile(); err != nil {
		obslog.Component("orchestrator").Warnf("initial reconcile failed: %v", err)
	}

	go func() {
		if err := o.adminHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			obslog.Component("adminserver").Errorf("listen failed: %v", err)
		}
	}()

	o.sg.Add(func() { o.runMarkoutLoop(ctx) })
	if o.redeemer != nil {
		o.sg.Add(func() { o.redeemer.Run(ctx, o.cfg.ReconcilePositionsInterval(), o.redeemableSource) })
	}
	o.sg.Run()

	o.registerShutdownHandlers()

	o.mainLoop(ctx)

	return o.shutdown(context.Background())
}

// mainLoop drives the periodic timers spec §5 names: T1 (order
// reconciliation), T2 (position reconciliation), a 1s risk/markout tick,
// and cooldown expiry checks. Book/user events arrive asynchronously via
// the callbacks wired in New; this loop only owns time-driven work.
func (o *Orchestrator) mainLoop(ctx context.Context) {
	t1 := time.NewTicker(o.cfg.ReconcileOrdersInterval())
	t2 := time.NewTicker(o.cfg.ReconcilePositionsInterval())
	tick := time.NewTicker(time.Second)
	defer t1.Stop()
	defer t2.Stop()
	defer tick.Stop()

	log := obslog.Component("orchestrator")

	for {
		select {
		case <-ctx.Done():
			return
		case <-t1.C:
			if _, err := o.userMgr.Reconcile(); err != nil {
				log.Warnf("order reconcile failed: %v", err)
			}
		case <-t2.C:
			if o.exchangeClient != nil {
				positions, err := o.exchangeClient.Positions(ctx)
				if err != nil {
					log.Warnf("position reconcile failed: %v", err)
					continue
				}
				now := time.Now()
				for assetID, size := range positions {
					o.inv.ForceReconcile(assetID, size.Decimal(), now)
					pos := o.inv.Position(assetID)
					if err := o.store.UpsertPosition(ctx, pos, now); err != nil {
						log.Warnf("persist position failed: %v", err)
					}
				}
			}
		case now := <-tick.C:
			for _, assetID := range o.cfg.Assets {
				o.riskMgr.Tick(assetID, now)
			}
			o.riskMgr.Tick("", now)
			o.updatePnL(now)
			for _, assetID := range o.book.StaleAssets(now) {
				o.gapLogger.NotifyFeedStale(assetID, true)
			}
		}
	}
}

// updatePnL feeds each tracked asset's realized+unrealized P&L, plus the
// aggregate under assetID="", into RiskManager's drawdown tracking (spec
// §4.7's per-market and global max_drawdown triggers).
func (o *Orchestrator) updatePnL(now time.Time) {
	var total float64
	for _, assetID := range o.cfg.Assets {
		pos := o.inv.Position(assetID)
		pnl := pos.RealizedPL
		if mid, ok := o.book.Mid(assetID); ok {
			pnl = pnl.Add(pos.UnrealizedPnL(mid))
		}
		f, _ := pnl.Float64()
		o.riskMgr.UpdatePnL(assetID, f)
		total += f
	}
	o.riskMgr.UpdatePnL("", total)
}

// runMarkoutLoop is the isolated background concern that periodically
// flushes analytics samples independent of the main loop's 1s tick, so a
// slow store write never stalls quote decisions.
func (o *Orchestrator) runMarkoutLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if captured := o.analytics.Tick(now); len(captured) > 0 {
				if err := o.store.InsertMarkouts(ctx, captured); err != nil {
					obslog.Component("orchestrator").Warnf("markout flush failed: %v", err)
				}
			}
		}
	}
}

func (o *Orchestrator) redeemableSource(ctx context.Context) ([]ctf.RedeemablePosition, error) {
	// Resolved-market redemption candidates are outside this core's
	// event loop; the arbitrage collaborator populates this in a fuller
	// build. No positions are known resolved from the quoting side alone.
	return nil, nil
}

// Stop cancels the running main loop, causing Run to proceed to shutdown.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
}

// registerShutdownHandlers wires each cleanup concern into pkg/shutdown's
// callback registry, following the teacher's Server.Close pattern of
// running every registered handler concurrently under one deadline.
func (o *Orchestrator) registerShutdownHandlers() {
	log := obslog.Component("orchestrator")

	o.sd.OnShutdown(func(ctx context.Context, wg *sync.WaitGroup) {
		for _, assetID := range o.cfg.Assets {
			if err := o.exchangeOrDryRun().CancelAllForAsset(ctx, assetID); err != nil {
				log.WithField("asset_id", assetID).Warnf("cancel-all on shutdown failed: %v", err)
			}
		}
	})

	o.sd.OnShutdown(func(ctx context.Context, wg *sync.WaitGroup) {
		if o.redeemer != nil {
			o.redeemer.Stop()
		}
		o.sg.WaitAndClear()
	})

	o.sd.OnShutdown(func(ctx context.Context, wg *sync.WaitGroup) {
		_ = o.adminHTTP.Shutdown(ctx)
	})

	o.sd.OnShutdown(func(ctx context.Context, wg *sync.WaitGroup) {
		now := time.Now()
		for _, assetID := range o.cfg.Assets {
			pos := o.inv.Position(assetID)
			if err := o.store.UpsertPosition(ctx, pos, now); err != nil {
				log.Warnf("persist position on shutdown failed: %v", err)
			}
		}
		if err := o.store.EndSession(ctx, o.sessionID, "stopped", now); err != nil {
			log.Warnf("end session failed: %v", err)
		}
	})
}

func (o *Orchestrator) shutdown(ctx context.Context) error {
	log := obslog.Component("orchestrator")
	log.Infof("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	o.sd.Shutdown(shutdownCtx)

	o.alerter.SendInfo("engine stopped", map[string]interface{}{"session_id": o.sessionID})

	return o.store.Close()
}
