// Package quote implements component E: turns book state, inventory, and
// momentum into one of CancelAll / Keep / Replace per asset, applying the
// spread-improvement, inventory-skew, and hysteresis rules of spec §4.5.
// There is no direct teacher analogue for binary-outcome quote pricing;
// grounded on the teacher's tick-based price arithmetic conventions
// (internal/domain.Price/Tick) and its hysteresis-gated order-refresh
// pattern used elsewhere in the corpus for rate-limited state mutation.
package quote

import (
	"math"
	"time"

	"github.com/betbot/aquoter/internal/domain"
)

type Config struct {
	ImproveWhenSpreadTicks int
	Coefficient            float64
	RefreshThresholdTicks  int
	OrderSize              domain.Size
	MinRefreshInterval     time.Duration
}

func DefaultConfig() Config {
	return Config{
		ImproveWhenSpreadTicks: 4,
		Coefficient:            0.1,
		RefreshThresholdTicks:  1,
		OrderSize:              domain.SizeFromFloat(100),
		MinRefreshInterval:     500 * time.Millisecond,
	}
}

type ActionKind string

const (
	ActionCancelAll ActionKind = "cancel_all"
	ActionKeep      ActionKind = "keep"
	ActionReplace   ActionKind = "replace"
)

type Action struct {
	Kind    ActionKind
	AssetID string
	Bid     domain.Price
	Ask     domain.Price
	SizeBid domain.Size
	SizeAsk domain.Size
}

// RestingQuote is the current resting bid/ask this engine last placed,
// supplied from UserChannelManager's open-order map.
type RestingQuote struct {
	Bid domain.Price
	Ask domain.Price
	Has bool
}

type Engine struct {
	cfg Config

	lastReplace map[string]time.Time
}

func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg, lastReplace: make(map[string]time.Time)}
}

// Decide implements the full §4.5 pricing rule plus hysteresis gate.
func (e *Engine) Decide(
	assetID string,
	tob TopOfBookLike,
	effectiveSize domain.Size,
	adjustedBuySize domain.Size,
	resting RestingQuote,
	inCooldown bool,
	now time.Time,
) Action {
	if inCooldown || tob.IsStale() {
		return Action{Kind: ActionCancelAll, AssetID: assetID}
	}

	tick := tob.TickSize()
	bestBid, bestAsk := tob.Bid(), tob.Ask()

	myBid, myAsk := bestBid, bestAsk

	spreadTicks := domain.TicksBetween(bestBid, bestAsk, tick)
	if spreadTicks >= float64(e.cfg.ImproveWhenSpreadTicks) {
		myBid = myBid.AddTicks(1, tick)
		myAsk = myAsk.AddTicks(-1, tick)
	}

	effFloat := effectiveSize.Float64()
	skewTicks := int(math.Round(e.cfg.Coefficient * effFloat))
	if skewTicks != 0 {
		myBid = myBid.AddTicks(-skewTicks, tick)
		myAsk = myAsk.AddTicks(-skewTicks, tick)
	}

	lo := tick.Float64()
	hi := 1 - lo
	myBid = myBid.Clamp(domain.PriceFromFloat(lo), domain.PriceFromFloat(hi))
	myAsk = myAsk.Clamp(domain.PriceFromFloat(lo), domain.PriceFromFloat(hi))

	if maxBid := bestAsk.AddTicks(-1, tick); myBid.GreaterThan(maxBid) {
		myBid = maxBid
	}
	if minAsk := bestBid.AddTicks(1, tick); myAsk.LessThan(minAsk) {
		myAsk = minAsk
	}

	sizeBid := adjustedBuySize
	sizeAsk := e.cfg.OrderSize.Min(effectiveSize)

	// §8 boundary behaviour: within one tick of $0/$1 there is no room left
	// on the affected side to improve or even match, so suppress its size
	// rather than resting a clamped, non-competitive quote.
	loPrice, hiPrice := domain.PriceFromFloat(lo), domain.PriceFromFloat(hi)
	if bestAsk.LessOrEqual(loPrice) {
		sizeBid = domain.ZeroSize
	}
	if bestBid.GreaterOrEqual(hiPrice) {
		sizeAsk = domain.ZeroSize
	}

	if resting.Has {
		bidDeviation := math.Abs(domain.TicksBetween(resting.Bid, myBid, tick))
		askDeviation := math.Abs(domain.TicksBetween(resting.Ask, myAsk, tick))
		withinThreshold := bidDeviation < float64(e.cfg.RefreshThresholdTicks) &&
			askDeviation < float64(e.cfg.RefreshThresholdTicks)
		if withinThreshold {
			return Action{Kind: ActionKeep, AssetID: assetID, Bid: myBid, Ask: myAsk, SizeBid: sizeBid, SizeAsk: sizeAsk}
		}
	}

	if last, ok := e.lastReplace[assetID]; ok && now.Sub(last) < e.cfg.MinRefreshInterval {
		return Action{Kind: ActionKeep, AssetID: assetID, Bid: myBid, Ask: myAsk, SizeBid: sizeBid, SizeAsk: sizeAsk}
	}
	e.lastReplace[assetID] = now

	return Action{
		Kind:    ActionReplace,
		AssetID: assetID,
		Bid:     myBid,
		Ask:     myAsk,
		SizeBid: sizeBid,
		SizeAsk: sizeAsk,
	}
}

// TopOfBookLike decouples this package from internal/orderbook's concrete
// type while still letting callers pass orderbook.TopOfBook directly.
type TopOfBookLike interface {
	Bid() domain.Price
	Ask() domain.Price
	TickSize() domain.Tick
	IsStale() bool
}
