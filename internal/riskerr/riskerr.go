// Package riskerr defines the closed set of structured error kinds used
// throughout the engine, mirroring original_source/poly_data/exceptions.py's
// PolyMakerError hierarchy: every fault carries a machine-readable Kind
// (feeding the §7 error-policy table) and a ShouldAlert flag consumed by
// pkg/alert.
package riskerr

import "fmt"

type Kind string

const (
	KindTransientIO      Kind = "transient_io"       // REST timeout, WS read error
	KindExchangeRejected Kind = "exchange_rejected"   // PostOnlyCross, price out of band
	KindAuthProtocol     Kind = "auth_protocol"        // signature fails, bad key
	KindDesync           Kind = "desync"               // missing terminal past deadline, conflicting fills
	KindLimitBreach      Kind = "limit_breach"          // BUY exceeds max_position_per_market
	KindDrawdown         Kind = "drawdown"              // per-market/global drawdown threshold
	KindDataIntegrity    Kind = "data_integrity"        // negative confirmed size, duplicate order_id
	KindUnknownAsset     Kind = "unknown_asset"
	KindFeeFetchFailed   Kind = "fee_fetch_failed"
	KindPlacementReject  Kind = "placement_rejected"
)

// shouldAlert answers the §7 policy table's "surface an operator alert"
// column for each kind.
var shouldAlert = map[Kind]bool{
	KindTransientIO:      false,
	KindExchangeRejected: false,
	KindAuthProtocol:     true,
	KindDesync:           true,
	KindLimitBreach:      false,
	KindDrawdown:         true,
	KindDataIntegrity:    true,
	KindUnknownAsset:     false,
	KindFeeFetchFailed:   false,
	KindPlacementReject:  false,
}

// Error is the concrete error type raised across the engine. It always
// carries a Kind so callers can switch on policy without string matching.
type Error struct {
	Kind    Kind
	Msg     string
	Context map[string]any
	cause   error
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, cause error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, cause: cause}
}

func (e *Error) WithContext(kv ...any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any, len(kv)/2)
	}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		e.Context[key] = kv[i+1]
	}
	return e
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) ShouldAlert() bool { return shouldAlert[e.Kind] }

// KindOf extracts the Kind from err if it (or something it wraps) is a
// *Error; returns ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var re *Error
	if err == nil {
		return "", false
	}
	if e, ok := err.(*Error); ok {
		return e.Kind, true
	}
	_ = re
	return "", false
}
