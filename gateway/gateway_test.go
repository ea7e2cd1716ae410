package gateway_test

import (
	"context"
	"testing"
	"time"

	"github.com/kestrel-trading/engine/gateway"
	"github.com/kestrel-trading/engine/types"
)

func seededGateway(t *testing.T) *gateway.PaperGateway {
	t.Helper()
	g := gateway.NewPaperGateway(10000)
	if err := g.Connect(context.Background(), gateway.Credentials{Profile: "demo"}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	g.SeedSymbol(types.SymbolInfo{
		Name: "EURUSD", Digits: 5, Point: 0.00001, ContractSize: 100000,
		LotMin: 0.01, LotMax: 50, LotStep: 0.01, TickSize: 0.00001, TickValue: 1,
		IsCurrencyPair: true,
	})
	g.SeedTick("EURUSD", types.Tick{Bid: 1.1000, Ask: 1.1002, Time: time.Now().UTC()})
	return g
}

func TestPaperGatewayOpenMarketRejectsBadStop(t *testing.T) {
	g := seededGateway(t)
	_, err := g.OpenMarket(context.Background(), "EURUSD", types.Buy, 0.1, 1.1010, 1.1050, 123, "TEST_BUY_RR1")
	if gateway.AsKind(err) != gateway.KindInvalidStops {
		t.Fatalf("expected InvalidStops, got %v", err)
	}
}

func TestPaperGatewayOpenMarketSucceeds(t *testing.T) {
	g := seededGateway(t)
	pos, err := g.OpenMarket(context.Background(), "EURUSD", types.Buy, 0.1, 1.0950, 1.1100, 123, "TEST_BUY_RR1")
	if err != nil {
		t.Fatalf("open_market: %v", err)
	}
	if pos.Entry != 1.1002 {
		t.Fatalf("expected fill at ask 1.1002, got %f", pos.Entry)
	}
	positions, err := g.Positions(context.Background(), 123)
	if err != nil {
		t.Fatalf("positions: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("expected 1 open position, got %d", len(positions))
	}
}

func TestPaperGatewayNotConnectedRejectsCalls(t *testing.T) {
	g := gateway.NewPaperGateway(10000)
	_, err := g.SymbolInfo(context.Background(), "EURUSD")
	if gateway.AsKind(err) != gateway.KindNotConnected {
		t.Fatalf("expected NotConnected, got %v", err)
	}
}

func TestRateLimitedGatewayDelegates(t *testing.T) {
	inner := seededGateway(t)
	limited := gateway.NewRateLimitedGateway(inner, 1000, 10)
	info, err := limited.SymbolInfo(context.Background(), "EURUSD")
	if err != nil {
		t.Fatalf("symbol_info: %v", err)
	}
	if info.Name != "EURUSD" {
		t.Fatalf("expected EURUSD, got %q", info.Name)
	}
}

func TestRateLimitedGatewayRespectsContextCancellation(t *testing.T) {
	inner := seededGateway(t)
	limited := gateway.NewRateLimitedGateway(inner, 0.001, 1)
	// Drain the single burst token so the next call must wait on the
	// limiter and observe the cancelled context.
	_, _ = limited.SymbolInfo(context.Background(), "EURUSD")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := limited.SymbolInfo(ctx, "EURUSD")
	if gateway.AsKind(err) != gateway.KindTransient {
		t.Fatalf("expected Transient on cancelled context, got %v", err)
	}
}
