package domain

import "time"

// MarketEventKind tags the closed set of public-channel event variants
// (spec §4.1, §9 "replace loose dicts with tagged variants for events").
type MarketEventKind string

const (
	EventBookSnapshot    MarketEventKind = "book"
	EventPriceChange     MarketEventKind = "price_change"
	EventBestBidAsk      MarketEventKind = "best_bid_ask"
	EventLastTradePrice  MarketEventKind = "last_trade_price"
	EventTickSizeChange  MarketEventKind = "tick_size_change"
)

// PriceLevel is one (price, size) rung of a book side.
type PriceLevel struct {
	Price Price
	Size  Size
}

// MarketEvent is a tagged union over the five event kinds OrderbookManager
// consumes. Exactly one payload field is populated per Kind; callers must
// switch on Kind rather than infer it from field presence.
type MarketEvent struct {
	Kind      MarketEventKind
	AssetID   string
	Sequence  int64 // monotonic when the venue supplies one; 0 if absent
	Timestamp time.Time

	Book           *BookSnapshot
	PriceChange    *PriceChangeDelta
	BestBidAsk     *BestBidAsk
	LastTradePrice *LastTradePrice
	TickSizeChange *TickSizeChange
}

type BookSnapshot struct {
	Bids []PriceLevel // descending
	Asks []PriceLevel // ascending
	Tick Tick
}

type PriceChangeDelta struct {
	Side  Side
	Price Price
	Size  Size // new resting size at this level; zero means remove
}

type BestBidAsk struct {
	BestBid Price
	BestAsk Price
	Tick    Tick
}

type LastTradePrice struct {
	Price Price
	Size  Size
}

type TickSizeChange struct {
	NewTick Tick
}

// UserEventKind tags the authenticated-channel event variants (spec §4.2).
type UserEventKind string

const (
	UserEventOrderUpdate UserEventKind = "order_update"
	UserEventFill        UserEventKind = "fill"
)

type UserEvent struct {
	Kind      UserEventKind
	Timestamp time.Time

	OrderUpdate *Order
	Fill        *Fill
}
