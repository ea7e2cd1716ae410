package testutils

import (
	"context"
	"sync"

	"github.com/kestrel-trading/engine/gateway"
	"github.com/kestrel-trading/engine/types"
)

// MockGateway is a scriptable gateway.BrokerGateway double: tests preload
// responses and then assert on the calls recorded.
type MockGateway struct {
	mu sync.Mutex

	SymbolInfoFunc func(symbol string) (types.SymbolInfo, error)
	LatestBarsFunc func(symbol string, tf types.Timeframe, count int) ([]types.Bar, error)
	TickFunc       func(symbol string) (types.Tick, error)
	AccountFunc    func() (types.Account, error)
	OpenMarketFunc func(symbol string, side types.Side, volume, stop, target float64, magic int64, comment string) (types.Position, error)
	ModifyStopFunc func(ticket string, newStop float64) error
	CloseFunc      func(ticket string) error
	PositionsFunc  func(magic int64) ([]types.Position, error)

	OpenCalls   []string // comment values, in call order
	ModifyCalls []string // tickets
	CloseCalls  []string // tickets
}

// NewMockGateway returns a double that accepts Connect and otherwise returns
// zero values until its Func fields are set, except OpenMarket, which by
// default echoes its arguments into the returned Position.
func NewMockGateway() *MockGateway { return &MockGateway{} }

func (m *MockGateway) Connect(ctx context.Context, credentials gateway.Credentials) error {
	return nil
}

func (m *MockGateway) SymbolInfo(ctx context.Context, symbol string) (types.SymbolInfo, error) {
	if m.SymbolInfoFunc != nil {
		return m.SymbolInfoFunc(symbol)
	}
	return types.SymbolInfo{}, nil
}

func (m *MockGateway) LatestBars(ctx context.Context, symbol string, tf types.Timeframe, count int) ([]types.Bar, error) {
	if m.LatestBarsFunc != nil {
		return m.LatestBarsFunc(symbol, tf, count)
	}
	return nil, nil
}

func (m *MockGateway) Tick(ctx context.Context, symbol string) (types.Tick, error) {
	if m.TickFunc != nil {
		return m.TickFunc(symbol)
	}
	return types.Tick{}, nil
}

func (m *MockGateway) Account(ctx context.Context) (types.Account, error) {
	if m.AccountFunc != nil {
		return m.AccountFunc()
	}
	return types.Account{}, nil
}

func (m *MockGateway) OpenMarket(ctx context.Context, symbol string, side types.Side, volume, stop, target float64, magic int64, comment string) (types.Position, error) {
	m.mu.Lock()
	m.OpenCalls = append(m.OpenCalls, comment)
	m.mu.Unlock()
	if m.OpenMarketFunc != nil {
		return m.OpenMarketFunc(symbol, side, volume, stop, target, magic, comment)
	}
	return types.Position{Symbol: symbol, Side: side, Volume: volume, Stop: stop, Target: target, Magic: magic, Comment: comment}, nil
}

func (m *MockGateway) ModifyStop(ctx context.Context, ticket string, newStop float64) error {
	m.mu.Lock()
	m.ModifyCalls = append(m.ModifyCalls, ticket)
	m.mu.Unlock()
	if m.ModifyStopFunc != nil {
		return m.ModifyStopFunc(ticket, newStop)
	}
	return nil
}

func (m *MockGateway) Close(ctx context.Context, ticket string) error {
	m.mu.Lock()
	m.CloseCalls = append(m.CloseCalls, ticket)
	m.mu.Unlock()
	if m.CloseFunc != nil {
		return m.CloseFunc(ticket)
	}
	return nil
}

func (m *MockGateway) Positions(ctx context.Context, magic int64) ([]types.Position, error) {
	if m.PositionsFunc != nil {
		return m.PositionsFunc(magic)
	}
	return nil, nil
}
