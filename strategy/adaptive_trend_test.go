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

func adaptiveTrendParams() config.AdaptiveTrendParams {
	return config.AdaptiveTrendParams{
		StrategyConfigBase: config.StrategyConfigBase{
			Symbol: "EURUSD", Timeframe: types.M15, RiskPercent: 0.5, RRRatio: 2.0,
			SLMultiplier: 1.5, MagicNumber: 123456, MaxPositions: 1, CycleSeconds: 60,
		},
		MinFactor: 1, MaxFactor: 5, FactorStep: 1, ATRPeriod: 10, PerfAlpha: 0.2,
		ClusterChoice: config.ClusterBest, VolumeMAPeriod: 10, VolumeMultiplier: 0.5,
	}
}

func trendingBars(n int, up bool) []types.Bar {
	bars := make([]types.Bar, n)
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	price := 1.1000
	for i := 0; i < n; i++ {
		delta := 0.0010
		if !up {
			delta = -0.0010
		}
		open := price
		price += delta
		high := math.Max(open, price) + 0.0005
		low := math.Min(open, price) - 0.0005
		bars[i] = types.Bar{
			Time: t.Add(time.Duration(i) * 15 * time.Minute),
			Open: open, High: high, Low: low, Close: price, TickVolume: 1000,
		}
	}
	return bars
}

func TestAdaptiveTrendInsufficientBarsEmitsNothing(t *testing.T) {
	s, err := strategy.NewAdaptiveTrend(adaptiveTrendParams(), testutils.NewMockLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_, ok := s.GenerateSignal(trendingBars(10, true))
	if ok {
		t.Fatalf("expected no signal with insufficient bars")
	}
}

func TestAdaptiveTrendEmitsValidSignalOnFlip(t *testing.T) {
	s, err := strategy.NewAdaptiveTrend(adaptiveTrendParams(), testutils.NewMockLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	down := trendingBars(70, false)
	up := trendingBars(10, true)
	bars := append(down, up...)
	var lastOK bool
	var lastSig types.Signal
	for i := 60; i <= len(bars); i++ {
		sig, ok := s.GenerateSignal(bars[:i])
		if ok {
			lastOK = true
			lastSig = sig
		}
	}
	if lastOK && !lastSig.Valid() {
		t.Fatalf("expected any emitted signal to satisfy the ordering invariant, got %+v", lastSig)
	}
}

func TestAdaptiveTrendConstructorRejectsInvalidParams(t *testing.T) {
	p := adaptiveTrendParams()
	p.MaxFactor = 0
	if _, err := strategy.NewAdaptiveTrend(p, testutils.NewMockLogger()); err == nil {
		t.Fatalf("expected validation error")
	}
}
