// Package gateway defines the Broker Gateway interface (spec.md §4.1): the
// terminal bridge is an external collaborator, so this package only
// specifies the contract plus an in-memory reference implementation used
// by tests and by cmd/trader.
package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/kestrel-trading/engine/types"
)

// Kind classifies a gateway error so callers can decide whether to retry
// (spec.md §4.1/§7).
type Kind string

const (
	KindNotConnected      Kind = "NotConnected"
	KindInvalidVolume     Kind = "InvalidVolume"
	KindInsufficientMargin Kind = "InsufficientMargin"
	KindInvalidStops      Kind = "InvalidStops"
	KindRejected          Kind = "Rejected"
	KindTransient         Kind = "Transient"
	KindUnknown           Kind = "Unknown"
)

// Retryable reports whether the core should retry an operation that
// failed with this kind (spec.md §4.1: "the core treats Transient as
// retryable with bounded backoff on modify/close").
func (k Kind) Retryable() bool {
	return k == KindTransient
}

// Error wraps a gateway failure with its Kind, following the sentinel +
// typed-wrapper idiom of MetaRPC-GoMT5's errors package, adapted to this
// engine's own error taxonomy rather than MT5's protobuf wire format.
type Error struct {
	Kind Kind
	Op   string // e.g. "open_market", "modify_stop"
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Op + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Op
}

func (e *Error) Unwrap() error { return e.Err }

// NewError constructs a gateway Error.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// AsKind extracts the Kind from err if it is (or wraps) a gateway Error,
// returning KindUnknown otherwise.
func AsKind(err error) Kind {
	if err == nil {
		return ""
	}
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindUnknown
}

// Default per-call deadlines (spec.md §5).
const (
	DefaultReadDeadline  = 5 * time.Second
	DefaultWriteDeadline = 10 * time.Second
)

// BrokerGateway is the full brokerage surface the core consumes
// (spec.md §4.1). Every method takes a context so callers can enforce the
// deadlines of spec.md §5. A deadline or cancellation that ends
// RateLimitedGateway's limiter wait is reported as KindTransient every
// time; no caller counts deadline expiries or reports repeated ones as
// KindUnknown.
type BrokerGateway interface {
	Connect(ctx context.Context, credentials Credentials) error
	SymbolInfo(ctx context.Context, symbol string) (types.SymbolInfo, error)
	LatestBars(ctx context.Context, symbol string, tf types.Timeframe, count int) ([]types.Bar, error)
	Tick(ctx context.Context, symbol string) (types.Tick, error)
	Account(ctx context.Context) (types.Account, error)
	OpenMarket(ctx context.Context, symbol string, side types.Side, volume, stop, target float64, magic int64, comment string) (types.Position, error)
	ModifyStop(ctx context.Context, ticket string, newStop float64) error
	Close(ctx context.Context, ticket string) error
	Positions(ctx context.Context, magic int64) ([]types.Position, error)
}

// Credentials is an opaque bundle; credential storage is out of scope
// (spec.md §1) so this engine never inspects its fields beyond passing
// them to Connect.
type Credentials struct {
	Profile string
	Extra   map[string]string
}
