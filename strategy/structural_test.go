package strategy_test

import (
	"math"
	"testing"
	"time"

	"github.com/kestrel-trading/engine/config"
	"github.com/kestrel-trading/engine/strategy"
	"github.com/kestrel-trading/engine/testutils"
	"github.com/kestrel-trading/engine/types"
)

func structuralParams() config.StructuralParams {
	return config.StructuralParams{
		StrategyConfigBase: config.StrategyConfigBase{
			Symbol: "EURUSD", Timeframe: types.M15, RiskPercent: 0.5, RRRatio: 2.0,
			SLMultiplier: 1.5, MagicNumber: 123456, MaxPositions: 1, CycleSeconds: 60,
		},
		LookbackCandles: 20, FVGMinSize: 0.0001, LiquiditySweepPips: 0.0005,
		UseMarketStructure: true, UseOrderBlocks: true, UseFVG: true, UseLiquiditySweeps: true,
		MinConfluence: 2,
	}
}

func zigzagBars(n int) []types.Bar {
	bars := make([]types.Bar, n)
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	price := 1.1000
	for i := 0; i < n; i++ {
		swing := math.Sin(float64(i)/4) * 0.002
		trendUp := float64(i) * 0.0003
		close := price + swing + trendUp
		open := price
		high := math.Max(open, close) + 0.0003
		low := math.Min(open, close) - 0.0003
		bars[i] = types.Bar{
			Time: t.Add(time.Duration(i) * 15 * time.Minute),
			Open: open, High: high, Low: low, Close: close, TickVolume: 1000,
		}
		price = close
	}
	return bars
}

func TestStructuralInsufficientBarsEmitsNothing(t *testing.T) {
	s, err := strategy.NewStructural(structuralParams(), testutils.NewMockLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_, ok := s.GenerateSignal(zigzagBars(10))
	if ok {
		t.Fatalf("expected no signal with insufficient bars")
	}
}

func TestStructuralEmittedSignalIsValid(t *testing.T) {
	s, err := strategy.NewStructural(structuralParams(), testutils.NewMockLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	bars := zigzagBars(120)
	for i := 60; i <= len(bars); i++ {
		sig, ok := s.GenerateSignal(bars[:i])
		if ok && !sig.Valid() {
			t.Fatalf("emitted signal fails ordering invariant: %+v", sig)
		}
	}
}

func TestStructuralConstructorRejectsInvalidConfluence(t *testing.T) {
	p := structuralParams()
	p.MinConfluence = 5
	if _, err := strategy.NewStructural(p, testutils.NewMockLogger()); err == nil {
		t.Fatalf("expected validation error for out-of-range min_confluence")
	}
}
