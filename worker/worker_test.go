package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/kestrel-trading/engine/config"
	"github.com/kestrel-trading/engine/dualtrade"
	"github.com/kestrel-trading/engine/testutils"
	"github.com/kestrel-trading/engine/types"
	"github.com/kestrel-trading/engine/worker"
)

type stubStrategy struct {
	sig types.Signal
	ok  bool
}

func (s *stubStrategy) Name() string { return "stub" }
func (s *stubStrategy) GenerateSignal(bars []types.Bar) (types.Signal, bool) {
	return s.sig, s.ok
}

func baseCfg() config.StrategyConfigBase {
	return config.StrategyConfigBase{
		Symbol: "EURUSD", Timeframe: types.M15, RiskPercent: 0.5, RRRatio: 2.0,
		SLMultiplier: 1.5, MagicNumber: 123456, MaxPositions: 1, CycleSeconds: 60,
	}
}

func someBars() []types.Bar {
	t := time.Now().UTC()
	return []types.Bar{{Time: t, Open: 1.1, High: 1.101, Low: 1.099, Close: 1.1, TickVolume: 100}}
}

func TestRunCycleSkipsWhenNoSignal(t *testing.T) {
	mg := testutils.NewMockGateway()
	mg.LatestBarsFunc = func(symbol string, tf types.Timeframe, count int) ([]types.Bar, error) {
		return someBars(), nil
	}
	dm := dualtrade.NewManager(mg, testutils.NewMockLogger(), "ADAPTIVE_TREND", "EURUSD", 123456)
	limits := worker.NewLimits(1, 10, 5, 10000)
	w := worker.NewPerSymbolWorker(mg, &stubStrategy{ok: false}, dm, baseCfg(), limits, testutils.NewMockLogger(), 100, false)
	if err := w.RunCycle(context.Background()); err != nil {
		t.Fatalf("run_cycle: %v", err)
	}
	if len(mg.OpenCalls) != 0 {
		t.Fatalf("expected no orders opened, got %d", len(mg.OpenCalls))
	}
}

func TestRunCycleOpensTradeOnSignal(t *testing.T) {
	mg := testutils.NewMockGateway()
	mg.LatestBarsFunc = func(symbol string, tf types.Timeframe, count int) ([]types.Bar, error) {
		return someBars(), nil
	}
	mg.AccountFunc = func() (types.Account, error) { return types.Account{Balance: 10000, Equity: 10000, MarginFree: 10000}, nil }
	mg.SymbolInfoFunc = func(symbol string) (types.SymbolInfo, error) {
		return types.SymbolInfo{
			ContractSize: 100000, LotMin: 0.01, LotMax: 50, LotStep: 0.01,
			TickSize: 0.00001, TickValue: 1, IsCurrencyPair: true,
		}, nil
	}
	sig := types.Signal{Symbol: "EURUSD", Side: types.Buy, Entry: 1.10000, Stop: 1.09250, TargetMain: 1.11500}
	dm := dualtrade.NewManager(mg, testutils.NewMockLogger(), "ADAPTIVE_TREND", "EURUSD", 123456)
	limits := worker.NewLimits(1, 10, 5, 10000)
	w := worker.NewPerSymbolWorker(mg, &stubStrategy{sig: sig, ok: true}, dm, baseCfg(), limits, testutils.NewMockLogger(), 100, false)
	if err := w.RunCycle(context.Background()); err != nil {
		t.Fatalf("run_cycle: %v", err)
	}
	if len(mg.OpenCalls) != 2 {
		t.Fatalf("expected both legs opened, got %d calls", len(mg.OpenCalls))
	}
}

func TestRunCycleDryRunDoesNotOpen(t *testing.T) {
	mg := testutils.NewMockGateway()
	mg.LatestBarsFunc = func(symbol string, tf types.Timeframe, count int) ([]types.Bar, error) {
		return someBars(), nil
	}
	mg.AccountFunc = func() (types.Account, error) { return types.Account{Balance: 10000, Equity: 10000}, nil }
	mg.SymbolInfoFunc = func(symbol string) (types.SymbolInfo, error) {
		return types.SymbolInfo{ContractSize: 100000, LotMin: 0.01, LotMax: 50, LotStep: 0.01, TickSize: 0.00001, TickValue: 1, IsCurrencyPair: true}, nil
	}
	sig := types.Signal{Symbol: "EURUSD", Side: types.Buy, Entry: 1.10000, Stop: 1.09250, TargetMain: 1.11500}
	dm := dualtrade.NewManager(mg, testutils.NewMockLogger(), "ADAPTIVE_TREND", "EURUSD", 123456)
	limits := worker.NewLimits(1, 10, 5, 10000)
	w := worker.NewPerSymbolWorker(mg, &stubStrategy{sig: sig, ok: true}, dm, baseCfg(), limits, testutils.NewMockLogger(), 100, true)
	if err := w.RunCycle(context.Background()); err != nil {
		t.Fatalf("run_cycle: %v", err)
	}
	if len(mg.OpenCalls) != 0 {
		t.Fatalf("expected dry-run to skip order placement, got %d calls", len(mg.OpenCalls))
	}
}

func TestLimitsHaltsOnDailyLoss(t *testing.T) {
	l := worker.NewLimits(1, 10, 5, 10000)
	l.ObserveEquity(9400) // 6% drawdown > 5% max
	if !l.HaltedForDay() {
		t.Fatalf("expected daily loss halt")
	}
	if l.CanOpen("EURUSD") {
		t.Fatalf("expected CanOpen to be false once halted")
	}
}

func TestLimitsCapsPerSymbolAndTotal(t *testing.T) {
	l := worker.NewLimits(1, 1, 50, 10000)
	if !l.CanOpen("EURUSD") {
		t.Fatalf("expected first open to be allowed")
	}
	l.RecordOpen("EURUSD")
	if l.CanOpen("EURUSD") {
		t.Fatalf("expected per-symbol cap to block a second open")
	}
	if l.CanOpen("GBPUSD") {
		t.Fatalf("expected total cap to block a different symbol once at max_total_positions")
	}
}
