package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kestrel-trading/engine/types"
)

// PaperGateway is an in-memory, mutex-protected paper-trading gateway:
// perfect fills, no slippage, the full BrokerGateway surface (symbol info,
// bar history, stop/target tracking, account snapshot).
type PaperGateway struct {
	mu        sync.RWMutex
	connected bool
	account   types.Account
	symbols   map[string]types.SymbolInfo
	bars      map[string][]types.Bar
	ticks     map[string]types.Tick
	positions map[string]types.Position // ticket -> position
}

// NewPaperGateway creates a fresh paper gateway with the supplied starting
// account equity.
func NewPaperGateway(startEquity float64) *PaperGateway {
	return &PaperGateway{
		account:   types.Account{Balance: startEquity, Equity: startEquity, MarginFree: startEquity},
		symbols:   make(map[string]types.SymbolInfo),
		bars:      make(map[string][]types.Bar),
		ticks:     make(map[string]types.Tick),
		positions: make(map[string]types.Position),
	}
}

// SeedSymbol registers static symbol metadata used by SymbolInfo.
func (p *PaperGateway) SeedSymbol(info types.SymbolInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.symbols[info.Name] = info
}

// SeedBars appends bars to a symbol's history, used by LatestBars.
func (p *PaperGateway) SeedBars(symbol string, bars []types.Bar) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bars[symbol] = append(p.bars[symbol], bars...)
}

// SeedTick sets the latest quote for a symbol.
func (p *PaperGateway) SeedTick(symbol string, tick types.Tick) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ticks[symbol] = tick
}

func (p *PaperGateway) Connect(ctx context.Context, _ Credentials) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = true
	return nil
}

func (p *PaperGateway) SymbolInfo(ctx context.Context, symbol string) (types.SymbolInfo, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.connected {
		return types.SymbolInfo{}, NewError(KindNotConnected, "symbol_info", nil)
	}
	info, ok := p.symbols[symbol]
	if !ok {
		return types.SymbolInfo{}, NewError(KindRejected, "symbol_info", fmt.Errorf("unknown symbol %q", symbol))
	}
	return info, nil
}

func (p *PaperGateway) LatestBars(ctx context.Context, symbol string, tf types.Timeframe, count int) ([]types.Bar, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.connected {
		return nil, NewError(KindNotConnected, "latest_bars", nil)
	}
	all := p.bars[symbol]
	if count <= 0 || count >= len(all) {
		out := make([]types.Bar, len(all))
		copy(out, all)
		return out, nil
	}
	out := make([]types.Bar, count)
	copy(out, all[len(all)-count:])
	return out, nil
}

func (p *PaperGateway) Tick(ctx context.Context, symbol string) (types.Tick, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.connected {
		return types.Tick{}, NewError(KindNotConnected, "tick", nil)
	}
	t, ok := p.ticks[symbol]
	if !ok {
		return types.Tick{}, NewError(KindRejected, "tick", fmt.Errorf("no quote for %q", symbol))
	}
	return t, nil
}

func (p *PaperGateway) Account(ctx context.Context) (types.Account, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.connected {
		return types.Account{}, NewError(KindNotConnected, "account", nil)
	}
	return p.account, nil
}

func (p *PaperGateway) OpenMarket(ctx context.Context, symbol string, side types.Side, volume, stop, target float64, magic int64, comment string) (types.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return types.Position{}, NewError(KindNotConnected, "open_market", nil)
	}
	if volume <= 0 {
		return types.Position{}, NewError(KindInvalidVolume, "open_market", fmt.Errorf("volume %f must be positive", volume))
	}
	t, ok := p.ticks[symbol]
	if !ok {
		return types.Position{}, NewError(KindRejected, "open_market", fmt.Errorf("no quote for %q", symbol))
	}
	entry := t.Ask
	if side == types.Sell {
		entry = t.Bid
	}
	if side == types.Buy && stop >= entry {
		return types.Position{}, NewError(KindInvalidStops, "open_market", fmt.Errorf("stop %f must be below entry %f for BUY", stop, entry))
	}
	if side == types.Sell && stop <= entry {
		return types.Position{}, NewError(KindInvalidStops, "open_market", fmt.Errorf("stop %f must be above entry %f for SELL", stop, entry))
	}
	pos := types.Position{
		Ticket:   uuid.NewString(),
		Symbol:   symbol,
		Side:     side,
		Volume:   volume,
		Entry:    entry,
		Stop:     stop,
		Target:   target,
		OpenTime: time.Now().UTC(),
		Magic:    magic,
		Comment:  comment,
	}
	p.positions[pos.Ticket] = pos
	return pos, nil
}

func (p *PaperGateway) ModifyStop(ctx context.Context, ticket string, newStop float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return NewError(KindNotConnected, "modify_stop", nil)
	}
	pos, ok := p.positions[ticket]
	if !ok {
		return NewError(KindRejected, "modify_stop", fmt.Errorf("unknown ticket %q", ticket))
	}
	pos.Stop = newStop
	p.positions[ticket] = pos
	return nil
}

func (p *PaperGateway) Close(ctx context.Context, ticket string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return NewError(KindNotConnected, "close", nil)
	}
	if _, ok := p.positions[ticket]; !ok {
		return NewError(KindRejected, "close", fmt.Errorf("unknown ticket %q", ticket))
	}
	delete(p.positions, ticket)
	return nil
}

func (p *PaperGateway) Positions(ctx context.Context, magic int64) ([]types.Position, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.connected {
		return nil, NewError(KindNotConnected, "positions", nil)
	}
	out := make([]types.Position, 0, len(p.positions))
	for _, pos := range p.positions {
		if magic == 0 || pos.Magic == magic {
			out = append(out, pos)
		}
	}
	return out, nil
}

// CloseAtPrice settles a position at a given price and returns the realised
// PnL, (price - entry for BUY, entry - price for SELL) times the position's
// volume, updating the paper account's balance/equity by that amount.
func (p *PaperGateway) CloseAtPrice(ticket string, price float64) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[ticket]
	if !ok {
		return 0, NewError(KindRejected, "close_at_price", fmt.Errorf("unknown ticket %q", ticket))
	}
	pnlPerUnit := price - pos.Entry
	if pos.Side == types.Sell {
		pnlPerUnit = pos.Entry - price
	}
	pnl := pnlPerUnit * pos.Volume
	p.account.Balance += pnl
	p.account.Equity += pnl
	p.account.MarginFree += pnl
	delete(p.positions, ticket)
	return pnl, nil
}
