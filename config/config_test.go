package config

import (
	"testing"

	"github.com/kestrel-trading/engine/types"
)

func validBase() StrategyConfigBase {
	return StrategyConfigBase{
		Symbol:       "EURUSD",
		Timeframe:    types.M15,
		RiskPercent:  0.5,
		RRRatio:      2.0,
		SLMultiplier: 1.5,
		MagicNumber:  123456,
		MaxPositions: 1,
		CycleSeconds: 60,
	}
}

func TestAdaptiveTrendValidateSuccess(t *testing.T) {
	cfg := AdaptiveTrendParams{
		StrategyConfigBase: validBase(),
		MinFactor:          1,
		MaxFactor:          4,
		FactorStep:         0.5,
		ATRPeriod:          10,
		PerfAlpha:          0.1,
		ClusterChoice:      ClusterBest,
		VolumeMAPeriod:     20,
		VolumeMultiplier:   1.2,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestAdaptiveTrendValidateRejectsBadFactorRange(t *testing.T) {
	cfg := AdaptiveTrendParams{
		StrategyConfigBase: validBase(),
		MinFactor:          4,
		MaxFactor:          1, // invalid: max < min
		FactorStep:         0.5,
		ATRPeriod:          10,
		PerfAlpha:          0.1,
		ClusterChoice:      ClusterBest,
		VolumeMAPeriod:     20,
		VolumeMultiplier:   1.2,
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for max_factor < min_factor")
	}
}

func TestAdaptiveTrendValidateRequiresTrailActivation(t *testing.T) {
	base := validBase()
	base.UseTrailing = true
	cfg := AdaptiveTrendParams{
		StrategyConfigBase: base,
		MinFactor:          1,
		MaxFactor:          4,
		FactorStep:         0.5,
		ATRPeriod:          10,
		PerfAlpha:          0.1,
		ClusterChoice:      ClusterBest,
		VolumeMAPeriod:     20,
		VolumeMultiplier:   1.2,
		TrailActivation:    0, // invalid when UseTrailing
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when use_trailing is set but trail_activation is 0")
	}
}

func TestStructuralValidateSuccess(t *testing.T) {
	cfg := StructuralParams{
		StrategyConfigBase: validBase(),
		LookbackCandles:    20,
		FVGMinSize:         0.0005,
		LiquiditySweepPips: 3,
		UseMarketStructure: true,
		UseOrderBlocks:     true,
		UseFVG:             true,
		MinConfluence:      3,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestStructuralValidateRejectsBadConfluence(t *testing.T) {
	cfg := StructuralParams{
		StrategyConfigBase: validBase(),
		LookbackCandles:    20,
		MinConfluence:      5, // invalid: must be in {2,3,4}
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for out-of-range min_confluence")
	}
}

func TestSymbolConfigValidateMismatchedParams(t *testing.T) {
	sc := SymbolConfig{
		Strategy: StrategyAdaptiveTrend,
		Structural: &StructuralParams{
			StrategyConfigBase: validBase(),
			LookbackCandles:    20,
			MinConfluence:      3,
		},
	}
	if err := sc.Validate(); err == nil {
		t.Fatal("expected error when structural params are set for an adaptive_trend symbol")
	}
}

func TestGlobalConfigValidateSkipsDisabledSymbols(t *testing.T) {
	gc := GlobalConfig{
		MaxDailyLossPercent:   5,
		MaxPositionsPerSymbol: 1,
		MaxTotalPositions:     5,
		AccountProfile:        ProfileDemo,
		Symbols: map[string]*SymbolConfig{
			"BROKEN": {
				Enabled:  false,
				Strategy: "not_a_real_strategy",
			},
		},
	}
	if err := gc.Validate(); err != nil {
		t.Fatalf("disabled symbol with invalid config should be skipped, got %v", err)
	}
}
