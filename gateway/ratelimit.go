package gateway

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/kestrel-trading/engine/types"
)

// RateLimitedGateway decorates a BrokerGateway with a token-bucket throttle
// and per-call deadlines (spec.md §5: "per-symbol workers serialize gateway
// calls and respect a global rate budget" / "every gateway call carries a
// deadline"). Every exported method waits on the limiter and then bounds
// the delegated call with DefaultReadDeadline or DefaultWriteDeadline, so a
// slow broker connection backs up callers rather than flooding the
// terminal bridge, and never hangs a cycle indefinitely.
type RateLimitedGateway struct {
	inner   BrokerGateway
	limiter *rate.Limiter
}

// NewRateLimitedGateway wraps inner with a limiter allowing callsPerSecond
// sustained calls and burst headroom of burst calls.
func NewRateLimitedGateway(inner BrokerGateway, callsPerSecond float64, burst int) *RateLimitedGateway {
	return &RateLimitedGateway{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(callsPerSecond), burst),
	}
}

func (g *RateLimitedGateway) wait(ctx context.Context) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return NewError(KindTransient, "rate_limit_wait", err)
	}
	return nil
}

func (g *RateLimitedGateway) Connect(ctx context.Context, credentials Credentials) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultWriteDeadline)
	defer cancel()
	if err := g.wait(ctx); err != nil {
		return err
	}
	return g.inner.Connect(ctx, credentials)
}

func (g *RateLimitedGateway) SymbolInfo(ctx context.Context, symbol string) (types.SymbolInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultReadDeadline)
	defer cancel()
	if err := g.wait(ctx); err != nil {
		return types.SymbolInfo{}, err
	}
	return g.inner.SymbolInfo(ctx, symbol)
}

func (g *RateLimitedGateway) LatestBars(ctx context.Context, symbol string, tf types.Timeframe, count int) ([]types.Bar, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultReadDeadline)
	defer cancel()
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	return g.inner.LatestBars(ctx, symbol, tf, count)
}

func (g *RateLimitedGateway) Tick(ctx context.Context, symbol string) (types.Tick, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultReadDeadline)
	defer cancel()
	if err := g.wait(ctx); err != nil {
		return types.Tick{}, err
	}
	return g.inner.Tick(ctx, symbol)
}

func (g *RateLimitedGateway) Account(ctx context.Context) (types.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultReadDeadline)
	defer cancel()
	if err := g.wait(ctx); err != nil {
		return types.Account{}, err
	}
	return g.inner.Account(ctx)
}

func (g *RateLimitedGateway) OpenMarket(ctx context.Context, symbol string, side types.Side, volume, stop, target float64, magic int64, comment string) (types.Position, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultWriteDeadline)
	defer cancel()
	if err := g.wait(ctx); err != nil {
		return types.Position{}, err
	}
	return g.inner.OpenMarket(ctx, symbol, side, volume, stop, target, magic, comment)
}

func (g *RateLimitedGateway) ModifyStop(ctx context.Context, ticket string, newStop float64) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultWriteDeadline)
	defer cancel()
	if err := g.wait(ctx); err != nil {
		return err
	}
	return g.inner.ModifyStop(ctx, ticket, newStop)
}

func (g *RateLimitedGateway) Close(ctx context.Context, ticket string) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultWriteDeadline)
	defer cancel()
	if err := g.wait(ctx); err != nil {
		return err
	}
	return g.inner.Close(ctx, ticket)
}

func (g *RateLimitedGateway) Positions(ctx context.Context, magic int64) ([]types.Position, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultReadDeadline)
	defer cancel()
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	return g.inner.Positions(ctx, magic)
}
