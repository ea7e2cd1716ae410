package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrDuplicateKey is returned when an insert's business key already exists.
var ErrDuplicateKey = errors.New("repository: duplicate business key")

// ErrNotFound is returned when an update/close targets a missing business key.
var ErrNotFound = errors.New("repository: not found")

// MemoryRepository is an in-memory Repository, mutex-guarded like
// gateway.PaperGateway's position book. Useful for tests and for running
// without a configured database.
type MemoryRepository struct {
	mu sync.Mutex

	nextID int64

	orders    map[string]*Order
	fills     map[string]*Fill
	positions map[string]*PositionRecord
	trades    map[string]*Trade
	snapshots []AccountSnapshot
}

// NewMemoryRepository builds an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		orders:    make(map[string]*Order),
		fills:     make(map[string]*Fill),
		positions: make(map[string]*PositionRecord),
		trades:    make(map[string]*Trade),
	}
}

func (r *MemoryRepository) nextPK() int64 {
	r.nextID++
	return r.nextID
}

// NewBusinessKey generates a business key for orders/fills/positions/trades
// (spec.md §6: "order_id, fill_id, position_id are unique strings").
func NewBusinessKey() string {
	return uuid.NewString()
}

func (r *MemoryRepository) InsertOrder(ctx context.Context, o Order) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.orders[o.OrderID]; exists {
		return Order{}, ErrDuplicateKey
	}
	o.ID = r.nextPK()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	stored := o
	r.orders[o.OrderID] = &stored
	return stored, nil
}

func (r *MemoryRepository) UpdateOrderStatus(ctx context.Context, orderID string, status OrderStatus, rejectionReason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	o.Status = status
	o.RejectionReason = rejectionReason
	return nil
}

func (r *MemoryRepository) InsertFill(ctx context.Context, f Fill) (Fill, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.fills[f.FillID]; exists {
		return Fill{}, ErrDuplicateKey
	}
	if _, exists := r.orders[f.OrderID]; !exists {
		return Fill{}, errors.New("repository: fill references unknown order_id")
	}
	f.ID = r.nextPK()
	if f.FilledAt.IsZero() {
		f.FilledAt = time.Now().UTC()
	}
	stored := f
	r.fills[f.FillID] = &stored
	return stored, nil
}

func (r *MemoryRepository) UpsertPosition(ctx context.Context, p PositionRecord) (PositionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, exists := r.positions[p.PosID]
	if exists {
		p.ID = existing.ID
	} else {
		p.ID = r.nextPK()
	}
	stored := p
	r.positions[p.PosID] = &stored
	return stored, nil
}

func (r *MemoryRepository) ClosePosition(ctx context.Context, posID string, closedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.positions[posID]
	if !ok {
		return ErrNotFound
	}
	t := closedAt
	p.ClosedAt = &t
	// fills.order_id -> orders.order_id cascades on delete (spec.md §6);
	// closing a position does not delete anything, so no cascade here.
	return nil
}

func (r *MemoryRepository) InsertTrade(ctx context.Context, t Trade) (Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.trades[t.TradeID]; exists {
		return Trade{}, ErrDuplicateKey
	}
	t.ID = r.nextPK()
	stored := t
	r.trades[t.TradeID] = &stored
	return stored, nil
}

func (r *MemoryRepository) InsertAccountSnapshot(ctx context.Context, a AccountSnapshot) (AccountSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a.ID = r.nextPK()
	if a.RecordedAt.IsZero() {
		a.RecordedAt = time.Now().UTC()
	}
	r.snapshots = append(r.snapshots, a)
	return a, nil
}

func (r *MemoryRepository) OrdersBySymbol(ctx context.Context, symbol string) ([]Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Order
	for _, o := range r.orders {
		if o.Symbol == symbol {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (r *MemoryRepository) FillsByOrder(ctx context.Context, orderID string) ([]Fill, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Fill
	for _, f := range r.fills {
		if f.OrderID == orderID {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (r *MemoryRepository) OpenPositionsBySymbol(ctx context.Context, symbol string) ([]PositionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []PositionRecord
	for _, p := range r.positions {
		if p.Symbol == symbol && p.ClosedAt == nil {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *MemoryRepository) TradesBySymbol(ctx context.Context, symbol string) ([]Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Trade
	for _, t := range r.trades {
		if t.Symbol == symbol {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (r *MemoryRepository) Close() error { return nil }
