// Package orderbook implements component A: it consumes the public market
// data stream for a set of assets and maintains per-asset top-of-book,
// full depth, tick size, and last trade price. Grounded on the teacher's
// pkg/sdk/websocket.MarketClient (connect/reconnect/ping loop shape) and
// pkg/orderbook.ActiveOrderBook (map-of-state-plus-callbacks shape).
package orderbook

import (
	"sync"
	"time"

	"github.com/betbot/aquoter/internal/domain"
	"github.com/shopspring/decimal"
)

var decimalTwo = decimal.NewFromInt(2)

// TopOfBook is the snapshot returned by GetTopOfBook.
type TopOfBook struct {
	BestBid   domain.Price
	BestAsk   domain.Price
	Tick      domain.Tick
	UpdatedAt time.Time
	Stale     bool
}

// Bid, Ask, TickSize, and IsStale satisfy internal/quote's TopOfBookLike so
// QuoteEngine can consume a TopOfBook without this package depending on it.
func (t TopOfBook) Bid() domain.Price      { return t.BestBid }
func (t TopOfBook) Ask() domain.Price      { return t.BestAsk }
func (t TopOfBook) TickSize() domain.Tick  { return t.Tick }
func (t TopOfBook) IsStale() bool          { return t.Stale }

type assetState struct {
	mu       sync.RWMutex
	bids     []domain.PriceLevel
	asks     []domain.PriceLevel
	tick     domain.Tick
	lastSeq  int64
	updated  time.Time
	stale    bool
	hasBook  bool
	lastTrade domain.LastTradePrice
}

func (s *assetState) topOfBook() (TopOfBook, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasBook {
		return TopOfBook{}, false
	}
	tob := TopOfBook{Tick: s.tick, UpdatedAt: s.updated, Stale: s.stale}
	if len(s.bids) > 0 {
		tob.BestBid = s.bids[0].Price
	}
	if len(s.asks) > 0 {
		tob.BestAsk = s.asks[0].Price
	}
	return tob, true
}

// OnBookUpdate fires for every applied book/price_change/best_bid_ask/
// tick_size_change event. OnTrade fires for last_trade_price events, the
// feed MomentumDetector consumes.
type OnBookUpdate func(assetID string, tob TopOfBook)
type OnTrade func(assetID string, trade domain.LastTradePrice, ts time.Time)

// OnDepthUpdate fires for each incremental price_change event with the
// affected side's top-N levels before and after the change, the feed
// MomentumDetector's depth-sweep condition consumes.
type OnDepthUpdate func(assetID string, side domain.Side, before, after []domain.PriceLevel, ts time.Time)

// GapNotifier is implemented by RiskManager; a sequence gap or missed
// heartbeat is reported here per spec §4.1's "notifies RiskManager".
type GapNotifier interface {
	NotifySequenceGap(assetID string, expected, got int64)
	NotifyFeedStale(assetID string, stale bool)
}

// Manager tracks book state for a fixed asset universe and dispatches
// callbacks in stream order per asset; cross-asset ordering is not
// guaranteed, matching the public feed's own guarantees.
type Manager struct {
	mu     sync.RWMutex
	assets map[string]*assetState

	onBookUpdate  []OnBookUpdate
	onTrade       []OnTrade
	onDepthUpdate []OnDepthUpdate
	gapNotifier   GapNotifier

	staleThreshold time.Duration
}

func NewManager(staleThreshold time.Duration, gap GapNotifier) *Manager {
	return &Manager{
		assets:         make(map[string]*assetState),
		gapNotifier:    gap,
		staleThreshold: staleThreshold,
	}
}

func (m *Manager) ensure(assetID string) *assetState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.assets[assetID]
	if !ok {
		st = &assetState{}
		m.assets[assetID] = st
	}
	return st
}

// Track registers assetID in the tracked universe ahead of any events
// arriving for it, so GetTopOfBook has a defined (empty, non-stale) state
// before the first snapshot lands.
func (m *Manager) Track(assetID string) {
	m.ensure(assetID)
}

// Subscribe registers callbacks; matches spec's subscribe(on_book_update, on_trade).
func (m *Manager) Subscribe(onBookUpdate OnBookUpdate, onTrade OnTrade) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if onBookUpdate != nil {
		m.onBookUpdate = append(m.onBookUpdate, onBookUpdate)
	}
	if onTrade != nil {
		m.onTrade = append(m.onTrade, onTrade)
	}
}

// SubscribeDepth registers a depth-delta callback, fired on every
// price_change event with the affected side's before/after top-N levels.
// Separate from Subscribe since most consumers only need top-of-book.
func (m *Manager) SubscribeDepth(onDepthUpdate OnDepthUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if onDepthUpdate != nil {
		m.onDepthUpdate = append(m.onDepthUpdate, onDepthUpdate)
	}
}

// GetTopOfBook implements the spec's get_top_of_book(asset) contract.
func (m *Manager) GetTopOfBook(assetID string) (TopOfBook, bool) {
	m.mu.RLock()
	st, ok := m.assets[assetID]
	m.mu.RUnlock()
	if !ok {
		return TopOfBook{}, false
	}
	return st.topOfBook()
}

// Mid implements analytics.MidSource: the simple mid of best bid/ask,
// unavailable while the book is stale or has no two-sided market yet.
func (m *Manager) Mid(assetID string) (domain.Price, bool) {
	tob, ok := m.GetTopOfBook(assetID)
	if !ok || tob.Stale || tob.BestBid.IsZero() || tob.BestAsk.IsZero() {
		return domain.Price{}, false
	}
	mid := tob.BestBid.Add(tob.BestAsk).Decimal().Div(decimalTwo)
	return domain.NewPrice(mid), true
}

// MarkAllStale marks every tracked asset stale, called on disconnect.
func (m *Manager) MarkAllStale() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, st := range m.assets {
		st.mu.Lock()
		wasStale := st.stale
		st.stale = true
		st.mu.Unlock()
		if !wasStale && m.gapNotifier != nil {
			m.gapNotifier.NotifyFeedStale(id, true)
		}
	}
}

// Apply consumes one MarketEvent, applying it in the order it arrived on
// the wire, and notifies subscribers.
func (m *Manager) Apply(ev domain.MarketEvent) {
	st := m.ensure(ev.AssetID)

	if ev.Sequence != 0 {
		st.mu.Lock()
		expected := st.lastSeq + 1
		gap := st.lastSeq != 0 && ev.Sequence != expected && ev.Sequence > expected
		st.lastSeq = ev.Sequence
		st.mu.Unlock()
		if gap && m.gapNotifier != nil {
			m.gapNotifier.NotifySequenceGap(ev.AssetID, expected, ev.Sequence)
		}
	}

	switch ev.Kind {
	case domain.EventBookSnapshot:
		if ev.Book == nil {
			return
		}
		st.mu.Lock()
		st.bids = ev.Book.Bids
		st.asks = ev.Book.Asks
		st.tick = ev.Book.Tick
		st.hasBook = true
		st.stale = false
		st.updated = ev.Timestamp
		st.mu.Unlock()

	case domain.EventPriceChange:
		if ev.PriceChange == nil {
			return
		}
		st.mu.Lock()
		before := append([]domain.PriceLevel(nil), sideLevels(st, ev.PriceChange.Side)...)
		applyPriceChange(st, *ev.PriceChange)
		after := append([]domain.PriceLevel(nil), sideLevels(st, ev.PriceChange.Side)...)
		st.updated = ev.Timestamp
		st.mu.Unlock()

		m.mu.RLock()
		depthCbs := append([]OnDepthUpdate(nil), m.onDepthUpdate...)
		m.mu.RUnlock()
		for _, cb := range depthCbs {
			cb(ev.AssetID, ev.PriceChange.Side, before, after, ev.Timestamp)
		}

	case domain.EventBestBidAsk:
		if ev.BestBidAsk == nil {
			return
		}
		st.mu.Lock()
		st.bids = []domain.PriceLevel{{Price: ev.BestBidAsk.BestBid}}
		st.asks = []domain.PriceLevel{{Price: ev.BestBidAsk.BestAsk}}
		st.tick = ev.BestBidAsk.Tick
		st.hasBook = true
		st.updated = ev.Timestamp
		st.mu.Unlock()

	case domain.EventTickSizeChange:
		if ev.TickSizeChange == nil {
			return
		}
		st.mu.Lock()
		st.tick = ev.TickSizeChange.NewTick
		st.updated = ev.Timestamp
		st.mu.Unlock()

	case domain.EventLastTradePrice:
		if ev.LastTradePrice == nil {
			return
		}
		st.mu.Lock()
		st.lastTrade = *ev.LastTradePrice
		st.updated = ev.Timestamp
		st.mu.Unlock()
		m.mu.RLock()
		trades := append([]OnTrade(nil), m.onTrade...)
		m.mu.RUnlock()
		for _, cb := range trades {
			cb(ev.AssetID, *ev.LastTradePrice, ev.Timestamp)
		}
		return
	}

	tob, ok := st.topOfBook()
	if !ok {
		return
	}
	m.mu.RLock()
	updates := append([]OnBookUpdate(nil), m.onBookUpdate...)
	m.mu.RUnlock()
	for _, cb := range updates {
		cb(ev.AssetID, tob)
	}
}

// sideLevels returns the bid or ask slice for delta.Side; the caller holds
// st.mu.
func sideLevels(st *assetState, side domain.Side) []domain.PriceLevel {
	if side == domain.SideBuy {
		return st.bids
	}
	return st.asks
}

// applyPriceChange replaces the level at the changed price, or removes it
// when the incoming size is zero; the caller holds st.mu.
func applyPriceChange(st *assetState, delta domain.PriceChangeDelta) {
	levels := &st.asks
	ascending := true
	if delta.Side == domain.SideBuy {
		levels = &st.bids
		ascending = false
	}
	replaced := false
	out := (*levels)[:0:0]
	for _, lvl := range *levels {
		if lvl.Price.Equal(delta.Price) {
			replaced = true
			if delta.Size.IsZero() {
				continue
			}
			out = append(out, domain.PriceLevel{Price: delta.Price, Size: delta.Size})
			continue
		}
		out = append(out, lvl)
	}
	if !replaced && !delta.Size.IsZero() {
		out = append(out, domain.PriceLevel{Price: delta.Price, Size: delta.Size})
	}
	sortLevels(out, ascending)
	*levels = out
}

func sortLevels(levels []domain.PriceLevel, ascending bool) {
	for i := 1; i < len(levels); i++ {
		j := i
		for j > 0 {
			less := levels[j].Price.LessThan(levels[j-1].Price)
			if !ascending {
				less = !less
			}
			if !less {
				break
			}
			levels[j], levels[j-1] = levels[j-1], levels[j]
			j--
		}
	}
}

// StaleAssets returns assets whose last update predates the stale
// threshold, used by RiskManager's feed-staleness check (spec §4.7).
func (m *Manager) StaleAssets(now time.Time) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var stale []string
	for id, st := range m.assets {
		st.mu.RLock()
		age := now.Sub(st.updated)
		isStale := st.stale || (st.hasBook && age > m.staleThreshold)
		st.mu.RUnlock()
		if isStale {
			stale = append(stale, id)
		}
	}
	return stale
}
