package domain

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// PairRegistry tracks which two assets form a complementary UP/DOWN pair
// (spec §3). It is populated by the out-of-core market-discovery
// collaborator and consulted read-only by InventoryManager for per-market
// liability aggregation and by the paired-position arbitrage collaborator —
// the quoting core itself only ever reads it.
type PairRegistry struct {
	mu    sync.RWMutex
	other map[string]string // asset -> complement
}

func NewPairRegistry() *PairRegistry {
	return &PairRegistry{other: make(map[string]string)}
}

// Register links two complementary assets. Idempotent.
func (r *PairRegistry) Register(assetA, assetB string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.other[assetA] = assetB
	r.other[assetB] = assetA
}

// Pair returns the complementary asset, if known.
func (r *PairRegistry) Pair(asset string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.other[asset]
	return o, ok
}

// Mirror converts a price on one side of a binary pair to its complement's
// equivalent price: Buy YES @ P == Sell NO @ (1-P).
func Mirror(p Price) Price {
	one := decimal.NewFromInt(1)
	return Price{d: one.Sub(p.d)}
}

// TopOfBookPair holds top-of-book for both sides of a complementary pair,
// grounded on the reference bot's TopOfBook/EffectivePrices helpers,
// generalized from pips to arbitrary-precision decimal.
type TopOfBookPair struct {
	Bid [2]Price // [assetA, assetB]
	Ask [2]Price
}

// WorstCaseLossPerShare approximates a long binary position's worst-case
// loss per share as its entry price (spec §4.3: "worst-case loss per
// share for a long binary position ≈ entry price").
func WorstCaseLossPerShare(entry Price) decimal.Decimal {
	return entry.Decimal()
}

// EffectiveBuyPrice returns min(direct ask, mirrored complement bid) — the
// cheapest way to acquire exposure to `asset`, considering both its own
// order book and the mirror trade through its complement.
func EffectiveBuyPrice(directAsk Price, complementBid Price) Price {
	mirrored := Mirror(complementBid)
	if directAsk.IsZero() {
		return mirrored
	}
	if mirrored.IsZero() {
		return directAsk
	}
	if mirrored.LessThan(directAsk) {
		return mirrored
	}
	return directAsk
}

// EffectiveSellPrice returns max(direct bid, mirrored complement ask).
func EffectiveSellPrice(directBid Price, complementAsk Price) Price {
	mirrored := Mirror(complementAsk)
	if directBid.IsZero() {
		return mirrored
	}
	if mirrored.IsZero() {
		return directBid
	}
	if mirrored.GreaterThan(directBid) {
		return mirrored
	}
	return directBid
}

// ArbitrageOpportunity mirrors the reference bot's CheckArbitrage output,
// shared with (but not computed by) the out-of-core paired-position
// collaborator.
type ArbitrageOpportunity struct {
	Kind          string // "long" or "short"
	Profit        decimal.Decimal
	BuyAssetA     Price
	BuyAssetB     Price
	SellAssetA    Price
	SellAssetB    Price
}

// CheckArbitrage detects a complete-set mispricing across a pair: buying
// both sides for less than $1, or selling both for more than $1.
func CheckArbitrage(book TopOfBookPair) (*ArbitrageOpportunity, error) {
	if book.Ask[0].IsZero() && book.Ask[1].IsZero() && book.Bid[0].IsZero() && book.Bid[1].IsZero() {
		return nil, fmt.Errorf("marketmath: empty top of book")
	}
	one := decimal.NewFromInt(1)

	buyA := EffectiveBuyPrice(book.Ask[0], book.Bid[1])
	buyB := EffectiveBuyPrice(book.Ask[1], book.Bid[0])
	if !buyA.IsZero() && !buyB.IsZero() {
		cost := buyA.Decimal().Add(buyB.Decimal())
		if profit := one.Sub(cost); profit.IsPositive() {
			return &ArbitrageOpportunity{Kind: "long", Profit: profit, BuyAssetA: buyA, BuyAssetB: buyB}, nil
		}
	}

	sellA := EffectiveSellPrice(book.Bid[0], book.Ask[1])
	sellB := EffectiveSellPrice(book.Bid[1], book.Ask[0])
	if !sellA.IsZero() && !sellB.IsZero() {
		revenue := sellA.Decimal().Add(sellB.Decimal())
		if profit := revenue.Sub(one); profit.IsPositive() {
			return &ArbitrageOpportunity{Kind: "short", Profit: profit, SellAssetA: sellA, SellAssetB: sellB}, nil
		}
	}

	return nil, nil
}
