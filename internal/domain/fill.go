package domain

import (
	"fmt"
	"time"
)

// Fill is a single execution against one of the operator's own orders.
type Fill struct {
	TradeID   string // may be empty; Key() synthesizes a stable identity
	OrderID   string
	AssetID   string
	Side      Side
	Price     Price
	Size      Size
	Fee       Price
	Timestamp time.Time
}

// Key returns the fill's dedup identity: TradeID when the venue supplied
// one, otherwise a synthesized "{order_id}:{timestamp_ms}:{size}" key. The
// synthesized form is logged wherever it's produced so operators can
// reconstruct identity by hand if two synthesized keys ever collide.
func (f Fill) Key() string {
	if f.TradeID != "" {
		return f.TradeID
	}
	return fmt.Sprintf("%s:%d:%s", f.OrderID, f.Timestamp.UnixMilli(), f.Size.Decimal().String())
}

// PendingFill is a Fill observed on the user stream that has not yet been
// absorbed by an authoritative position snapshot (spec: TrackedPosition).
type PendingFill struct {
	Fill
	ObservedAt time.Time
}

func (p PendingFill) Age(now time.Time) time.Duration {
	return now.Sub(p.ObservedAt)
}
