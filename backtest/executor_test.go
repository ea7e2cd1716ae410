package backtest_test

import (
	"math"
	"testing"
	"time"

	"github.com/kestrel-trading/engine/backtest"
	"github.com/kestrel-trading/engine/risk"
	"github.com/kestrel-trading/engine/types"
)

// oneShotStrategy emits sig exactly once, the first time GenerateSignal is
// called with at least minBars bars, and stays silent afterwards.
type oneShotStrategy struct {
	sig     types.Signal
	minBars int
	fired   bool
}

func (s *oneShotStrategy) Name() string { return "one_shot" }

func (s *oneShotStrategy) GenerateSignal(bars []types.Bar) (types.Signal, bool) {
	if s.fired || len(bars) < s.minBars {
		return types.Signal{}, false
	}
	s.fired = true
	return s.sig, true
}

func eurusd() risk.SymbolInfo {
	return risk.SymbolInfo{
		ContractSize: 100000, LotMin: 0.01, LotMax: 50, LotStep: 0.01,
		TickSize: 0.00001, TickValue: 1, IsCurrencyPair: true,
	}
}

func bar(t time.Time, o, h, l, c float64) types.Bar {
	return types.Bar{Time: t, Open: o, High: h, Low: l, Close: c, TickVolume: 1000}
}

// TestExecutorScenarioS1 replays spec.md's worked dual-order scenario:
// a BUY signal at 1.10000/1.09250, rr_ratio=2.0, both targets hit with
// breakeven promoted in between.
func TestExecutorScenarioS1(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sig := types.Signal{
		Symbol: "EURUSD", Side: types.Buy,
		Entry: 1.10000, Stop: 1.09250, TargetMain: 1.11500,
	}
	strat := &oneShotStrategy{sig: sig, minBars: 1}

	bars := []types.Bar{
		bar(start, 1.09950, 1.10010, 1.09940, 1.10000), // signal bar, opens at close
		bar(start.Add(15*time.Minute), 1.10000, 1.10780, 1.09990, 1.10760), // leg1 hits target 1.10750
		bar(start.Add(30*time.Minute), 1.10760, 1.11510, 1.10700, 1.11400), // leg2 hits target 1.11500
	}

	exec := backtest.NewExecutor(strat, eurusd(), backtest.Config{
		StartEquity: 10000, RiskPercent: 0.5, MoveSLToBreakeven: true,
	})

	result, err := exec.Run(bars)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(result.Trades) != 2 {
		t.Fatalf("expected 2 closed legs, got %d", len(result.Trades))
	}

	leg1 := result.Trades[0]
	if leg1.Leg != types.Leg1 || leg1.ExitReason != backtest.ExitTarget {
		t.Fatalf("expected leg1 target exit, got %+v", leg1)
	}
	if math.Abs(leg1.Exit-1.10750) > 1e-9 {
		t.Fatalf("expected leg1 exit 1.10750, got %v", leg1.Exit)
	}
	if leg1.PnL <= 0 {
		t.Fatalf("expected leg1 positive pnl, got %v", leg1.PnL)
	}

	leg2 := result.Trades[1]
	if leg2.Leg != types.Leg2 || leg2.ExitReason != backtest.ExitTarget {
		t.Fatalf("expected leg2 target exit, got %+v", leg2)
	}
	if math.Abs(leg2.Exit-1.11500) > 1e-9 {
		t.Fatalf("expected leg2 exit 1.11500, got %v", leg2.Exit)
	}
	if leg2.PnL <= 0 {
		t.Fatalf("expected leg2 positive pnl, got %v", leg2.PnL)
	}

	if result.Stats.TotalTrades != 2 || result.Stats.Wins != 2 {
		t.Fatalf("expected 2 wins, got %+v", result.Stats)
	}
}

// TestExecutorStopThenTargetOrdering asserts that within a single bar, a
// leg that could plausibly hit both is resolved as a stop-out (worst-case
// fill ordering, spec.md §4.8 step 3).
func TestExecutorStopThenTargetOrdering(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sig := types.Signal{
		Symbol: "EURUSD", Side: types.Buy,
		Entry: 1.10000, Stop: 1.09250, TargetMain: 1.10750,
	}
	strat := &oneShotStrategy{sig: sig, minBars: 1}

	bars := []types.Bar{
		bar(start, 1.09950, 1.10010, 1.09940, 1.10000),
		// a single wide bar whose range spans both stop and target
		bar(start.Add(15*time.Minute), 1.10000, 1.10900, 1.09000, 1.10500),
	}

	exec := backtest.NewExecutor(strat, eurusd(), backtest.Config{StartEquity: 10000, RiskPercent: 0.5})
	result, err := exec.Run(bars)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, tr := range result.Trades {
		if tr.ExitReason != backtest.ExitStop {
			t.Fatalf("expected stop-out fill ordering, got %+v", tr)
		}
	}
}

// TestExecutorRoundTripEquity checks property 8 of spec.md §8: replaying
// the trade list through the PnL formulae reproduces the final equity.
func TestExecutorRoundTripEquity(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sig := types.Signal{Symbol: "EURUSD", Side: types.Buy, Entry: 1.10000, Stop: 1.09250, TargetMain: 1.11500}
	strat := &oneShotStrategy{sig: sig, minBars: 1}

	bars := []types.Bar{
		bar(start, 1.09950, 1.10010, 1.09940, 1.10000),
		bar(start.Add(15*time.Minute), 1.10000, 1.10780, 1.09990, 1.10760),
		bar(start.Add(30*time.Minute), 1.10760, 1.11510, 1.10700, 1.11400),
	}

	exec := backtest.NewExecutor(strat, eurusd(), backtest.Config{StartEquity: 10000, RiskPercent: 0.5, MoveSLToBreakeven: true})
	result, err := exec.Run(bars)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	replayed := 10000.0
	for _, tr := range result.Trades {
		replayed += tr.PnL
	}
	finalEquity := result.EquityCurve[len(result.EquityCurve)-1].Equity
	if math.Abs(replayed-finalEquity) > 1e-6 {
		t.Fatalf("round-trip mismatch: replayed=%v final=%v", replayed, finalEquity)
	}
}

func TestExecutorRejectsEmptyBars(t *testing.T) {
	strat := &oneShotStrategy{minBars: 1}
	exec := backtest.NewExecutor(strat, eurusd(), backtest.Config{StartEquity: 10000, RiskPercent: 0.5})
	if _, err := exec.Run(nil); err == nil {
		t.Fatalf("expected error for empty bar sequence")
	}
}

func TestExecutorClosesOpenTradeAtEndOfData(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sig := types.Signal{Symbol: "EURUSD", Side: types.Buy, Entry: 1.10000, Stop: 1.09250, TargetMain: 1.11500}
	strat := &oneShotStrategy{sig: sig, minBars: 1}

	bars := []types.Bar{
		bar(start, 1.09950, 1.10010, 1.09940, 1.10000),
		bar(start.Add(15*time.Minute), 1.10000, 1.10100, 1.09980, 1.10050),
	}

	exec := backtest.NewExecutor(strat, eurusd(), backtest.Config{StartEquity: 10000, RiskPercent: 0.5})
	result, err := exec.Run(bars)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(result.Trades) != 2 {
		t.Fatalf("expected both legs force-closed at end of data, got %d", len(result.Trades))
	}
	for _, tr := range result.Trades {
		if tr.ExitReason != backtest.ExitEndOfData {
			t.Fatalf("expected EndOfData exit reason, got %+v", tr)
		}
	}
}
