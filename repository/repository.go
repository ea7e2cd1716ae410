// Package repository persists the engine's audit trail through a thin
// interface over domain objects (spec.md §6): orders, fills, positions,
// trades, and account_history. Persistence is optional — the engine
// functions without a configured Repository.
package repository

import (
	"context"
	"time"

	"github.com/kestrel-trading/engine/types"
)

// OrderStatus enumerates the allowed order lifecycle statuses of spec.md §6.
type OrderStatus string

const (
	OrderPending       OrderStatus = "PENDING"
	OrderPartialFilled OrderStatus = "PARTIAL_FILLED"
	OrderFilled        OrderStatus = "FILLED"
	OrderCancelled     OrderStatus = "CANCELLED"
	OrderRejected      OrderStatus = "REJECTED"
	OrderExpired       OrderStatus = "EXPIRED"
)

// TradeDirection enumerates the allowed completed-trade directions.
type TradeDirection string

const (
	Long  TradeDirection = "LONG"
	Short TradeDirection = "SHORT"
)

// Order is a row of the orders table. OrderID is the business key; ID is
// the monotonic primary key assigned by the store.
type Order struct {
	ID              int64
	OrderID         string
	Symbol          string
	Side            types.Side
	Volume          float64
	Price           float64
	Stop            float64
	Target          float64
	MagicNumber     int64
	Comment         string
	Status          OrderStatus
	RejectionReason string
	CreatedAt       time.Time
}

// Fill is a row of the fills table. OrderID references Order.OrderID and
// cascades on delete (spec.md §6).
type Fill struct {
	ID       int64
	FillID   string
	OrderID  string
	Price    float64
	Volume   float64
	FilledAt time.Time
}

// PositionRecord is a row of the positions table: the durable counterpart
// of types.Position, plus its close time once known.
type PositionRecord struct {
	ID       int64
	PosID    string
	Symbol   string
	Side     types.Side
	Volume   float64
	Entry    float64
	Stop     float64
	Target   float64
	OpenedAt time.Time
	ClosedAt *time.Time
}

// Trade is a row of the trades table: one completed (fully closed) leg or
// dual-trade, aggregated for reporting.
type Trade struct {
	ID         int64
	TradeID    string
	Symbol     string
	Direction  TradeDirection
	Volume     float64
	EntryPrice float64
	ExitPrice  float64
	PnL        float64
	OpenedAt   time.Time
	ClosedAt   time.Time
}

// AccountSnapshot is a row of the account_history table; the worker writes
// one per cycle that reaches the sizing step (spec.md §5: "Account state
// reads are snapshots").
type AccountSnapshot struct {
	ID         int64
	RecordedAt time.Time
	Balance    float64
	Equity     float64
	MarginFree float64
}

// Repository is the thin persistence boundary the core writes through. It
// accepts domain objects and never exposes SQL or storage details to
// callers (spec.md §6: "The core writes through a thin repository that
// accepts domain objects").
type Repository interface {
	InsertOrder(ctx context.Context, o Order) (Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status OrderStatus, rejectionReason string) error
	InsertFill(ctx context.Context, f Fill) (Fill, error)
	UpsertPosition(ctx context.Context, p PositionRecord) (PositionRecord, error)
	ClosePosition(ctx context.Context, posID string, closedAt time.Time) error
	InsertTrade(ctx context.Context, t Trade) (Trade, error)
	InsertAccountSnapshot(ctx context.Context, a AccountSnapshot) (AccountSnapshot, error)

	OrdersBySymbol(ctx context.Context, symbol string) ([]Order, error)
	FillsByOrder(ctx context.Context, orderID string) ([]Fill, error)
	OpenPositionsBySymbol(ctx context.Context, symbol string) ([]PositionRecord, error)
	TradesBySymbol(ctx context.Context, symbol string) ([]Trade, error)

	Close() error
}
