package dualtrade_test

import (
	"context"
	"testing"

	"github.com/kestrel-trading/engine/dualtrade"
	"github.com/kestrel-trading/engine/gateway"
	"github.com/kestrel-trading/engine/testutils"
	"github.com/kestrel-trading/engine/types"
)

func buySignal() types.Signal {
	return types.Signal{
		Symbol: "EURUSD", Side: types.Buy, Entry: 1.10000, Stop: 1.09250,
		TargetMain: 1.11500, Confidence: 80,
	}
}

func TestManagerOpenCreatesBothOpenTrade(t *testing.T) {
	mg := testutils.NewMockGateway()
	ticket := 0
	mg.OpenMarketFunc = func(symbol string, side types.Side, volume, stop, target float64, magic int64, comment string) (types.Position, error) {
		ticket++
		return types.Position{Ticket: comment, Symbol: symbol, Side: side, Volume: volume, Entry: 1.10000, Stop: stop, Target: target, Magic: magic, Comment: comment}, nil
	}
	m := dualtrade.NewManager(mg, testutils.NewMockLogger(), "ADAPTIVE_TREND", "EURUSD", 123456)
	trade, err := m.Open(context.Background(), buySignal(), 0.1)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if trade.State != types.StateBothOpen {
		t.Fatalf("expected BothOpen, got %v", trade.State)
	}
	if trade.Leg1.Stop != trade.Leg2.Stop {
		t.Fatalf("expected shared stop invariant, got leg1=%f leg2=%f", trade.Leg1.Stop, trade.Leg2.Stop)
	}
}

func TestManagerOpenRollsBackLeg1OnLeg2Failure(t *testing.T) {
	mg := testutils.NewMockGateway()
	calls := 0
	mg.OpenMarketFunc = func(symbol string, side types.Side, volume, stop, target float64, magic int64, comment string) (types.Position, error) {
		calls++
		if calls == 1 {
			return types.Position{Ticket: "leg1", Symbol: symbol, Side: side, Volume: volume, Entry: 1.1, Stop: stop, Target: target}, nil
		}
		return types.Position{}, gateway.NewError(gateway.KindRejected, "open_market", nil)
	}
	closed := ""
	mg.CloseFunc = func(ticket string) error {
		closed = ticket
		return nil
	}
	m := dualtrade.NewManager(mg, testutils.NewMockLogger(), "ADAPTIVE_TREND", "EURUSD", 123456)
	_, err := m.Open(context.Background(), buySignal(), 0.1)
	if err == nil {
		t.Fatalf("expected error when leg2 fails")
	}
	if closed != "leg1" {
		t.Fatalf("expected leg1 to be rolled back, got closed=%q", closed)
	}
}

func TestManagerPollAppliesBreakevenOnLeg1Close(t *testing.T) {
	mg := testutils.NewMockGateway()
	mg.OpenMarketFunc = func(symbol string, side types.Side, volume, stop, target float64, magic int64, comment string) (types.Position, error) {
		return types.Position{Ticket: comment, Symbol: symbol, Side: side, Volume: volume, Entry: 1.10000, Stop: stop, Target: target, Magic: magic, Comment: comment}, nil
	}
	m := dualtrade.NewManager(mg, testutils.NewMockLogger(), "ADAPTIVE_TREND", "EURUSD", 123456)
	trade, err := m.Open(context.Background(), buySignal(), 0.1)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	leg2Ticket := trade.Leg2.Ticket
	// leg1 vanishes from the gateway's open-position list
	mg.PositionsFunc = func(magic int64) ([]types.Position, error) {
		return []types.Position{*trade.Leg2}, nil
	}
	var modifiedStop float64
	mg.ModifyStopFunc = func(ticket string, newStop float64) error {
		if ticket != leg2Ticket {
			t.Fatalf("expected modify on leg2 ticket %q, got %q", leg2Ticket, ticket)
		}
		modifiedStop = newStop
		return nil
	}
	if err := m.Poll(context.Background(), true); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if !trade.BreakevenApplied {
		t.Fatalf("expected breakeven_applied to be true")
	}
	if modifiedStop != trade.EntryPrice {
		t.Fatalf("expected stop modified to entry %f, got %f", trade.EntryPrice, modifiedStop)
	}
	if trade.State != types.StateLeg2OnlyOpenBE {
		t.Fatalf("expected Leg2OnlyOpenBE, got %v", trade.State)
	}
}

func TestManagerPollTerminatesWhenBothLegsClose(t *testing.T) {
	mg := testutils.NewMockGateway()
	mg.OpenMarketFunc = func(symbol string, side types.Side, volume, stop, target float64, magic int64, comment string) (types.Position, error) {
		return types.Position{Ticket: comment, Symbol: symbol, Side: side, Volume: volume, Entry: 1.1, Stop: stop, Target: target}, nil
	}
	m := dualtrade.NewManager(mg, testutils.NewMockLogger(), "ADAPTIVE_TREND", "EURUSD", 123456)
	trade, err := m.Open(context.Background(), buySignal(), 0.1)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	mg.PositionsFunc = func(magic int64) ([]types.Position, error) { return nil, nil }
	if err := m.Poll(context.Background(), true); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if !trade.IsTerminated() {
		t.Fatalf("expected trade to be terminated")
	}
	if trade.State != types.StateTerminated {
		t.Fatalf("expected Terminated, got %v", trade.State)
	}
}

func TestManagerCannotOpenWhileTradeIsOpen(t *testing.T) {
	mg := testutils.NewMockGateway()
	mg.OpenMarketFunc = func(symbol string, side types.Side, volume, stop, target float64, magic int64, comment string) (types.Position, error) {
		return types.Position{Ticket: comment, Symbol: symbol, Side: side, Volume: volume, Entry: 1.1, Stop: stop, Target: target}, nil
	}
	m := dualtrade.NewManager(mg, testutils.NewMockLogger(), "ADAPTIVE_TREND", "EURUSD", 123456)
	if _, err := m.Open(context.Background(), buySignal(), 0.1); err != nil {
		t.Fatalf("first open: %v", err)
	}
	if _, err := m.Open(context.Background(), buySignal(), 0.1); err == nil {
		t.Fatalf("expected error opening a second trade while one is live")
	}
}
