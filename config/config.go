// Package config holds the tunable parameters for the trading engine.
// Loading these structs from a file or environment is out of scope
// (spec.md §1 treats configuration loading as an external collaborator);
// this package only defines the data model and validates it.
package config

import (
	"errors"
	"fmt"

	"github.com/kestrel-trading/engine/types"
)

// ClusterChoice selects which k-means cluster the Adaptive-Trend strategy
// trades from (spec.md §4.3).
type ClusterChoice string

const (
	ClusterBest    ClusterChoice = "best"
	ClusterAverage ClusterChoice = "average"
	ClusterWorst   ClusterChoice = "worst"
)

// AccountProfile distinguishes a demo account from a live one (spec.md §6).
type AccountProfile string

const (
	ProfileDemo AccountProfile = "demo"
	ProfileLive AccountProfile = "live"
)

// StrategyName selects which concrete strategy a symbol runs.
type StrategyName string

const (
	StrategyAdaptiveTrend StrategyName = "adaptive_trend"
	StrategyStructural    StrategyName = "structural"
)

// StrategyConfigBase holds the fields common to every strategy (spec.md §3).
type StrategyConfigBase struct {
	Symbol             string
	Timeframe          types.Timeframe
	RiskPercent        float64 // per-leg, e.g. 0.5 = 0.5%
	RRRatio            float64
	SLMultiplier       float64
	MoveSLToBreakeven  bool
	UseTrailing        bool
	MagicNumber        int64
	MaxPositions       int
	CycleSeconds       int
	AllowMinSizeOverride bool // config flag from spec.md §4.5
}

// Validate checks the base fields, returning the first violated invariant.
func (c *StrategyConfigBase) Validate() error {
	if c.Symbol == "" {
		return errors.New("symbol must not be empty")
	}
	switch c.Timeframe {
	case types.M1, types.M5, types.M15, types.M30, types.H1, types.H4, types.D1:
	default:
		return fmt.Errorf("timeframe %q is not recognised", c.Timeframe)
	}
	if c.RiskPercent <= 0 || c.RiskPercent > 10 {
		return fmt.Errorf("risk_percent (%f) must be >0 and <=10", c.RiskPercent)
	}
	if c.RRRatio <= 0 {
		return fmt.Errorf("rr_ratio (%f) must be positive", c.RRRatio)
	}
	if c.SLMultiplier <= 0 {
		return fmt.Errorf("sl_multiplier (%f) must be positive", c.SLMultiplier)
	}
	if c.MagicNumber <= 0 {
		return errors.New("magic_number must be positive")
	}
	if c.MaxPositions <= 0 {
		return errors.New("max_positions must be positive")
	}
	if c.CycleSeconds <= 0 {
		return errors.New("cycle_seconds must be positive")
	}
	return nil
}

// AdaptiveTrendParams holds the Adaptive-Trend strategy's own parameters
// (spec.md §4.3).
type AdaptiveTrendParams struct {
	StrategyConfigBase

	MinFactor        float64
	MaxFactor        float64
	FactorStep       float64
	ATRPeriod        int
	PerfAlpha        float64
	ClusterChoice    ClusterChoice
	VolumeMAPeriod   int
	VolumeMultiplier float64
	TrailActivation  float64 // in ATR multiples
}

// Validate checks the Adaptive-Trend parameters in addition to the base.
func (c *AdaptiveTrendParams) Validate() error {
	if err := c.StrategyConfigBase.Validate(); err != nil {
		return err
	}
	if c.MinFactor <= 0 || c.MaxFactor <= 0 {
		return errors.New("min_factor and max_factor must be positive")
	}
	if c.MaxFactor < c.MinFactor {
		return errors.New("max_factor must be >= min_factor")
	}
	if c.FactorStep <= 0 {
		return errors.New("factor_step must be positive")
	}
	if c.ATRPeriod <= 0 {
		return errors.New("atr_period must be positive")
	}
	if c.PerfAlpha <= 0 || c.PerfAlpha > 1 {
		return fmt.Errorf("perf_alpha (%f) must be in (0,1]", c.PerfAlpha)
	}
	switch c.ClusterChoice {
	case ClusterBest, ClusterAverage, ClusterWorst:
	default:
		return fmt.Errorf("cluster_choice %q is not recognised", c.ClusterChoice)
	}
	if c.VolumeMAPeriod <= 0 {
		return errors.New("volume_ma_period must be positive")
	}
	if c.VolumeMultiplier <= 0 {
		return errors.New("volume_multiplier must be positive")
	}
	if c.UseTrailing && c.TrailActivation <= 0 {
		return errors.New("trail_activation must be positive when use_trailing is set")
	}
	return nil
}

// StructuralParams holds the Structural strategy's own parameters
// (spec.md §4.4).
type StructuralParams struct {
	StrategyConfigBase

	LookbackCandles     int
	FVGMinSize          float64
	LiquiditySweepPips   float64
	UseMarketStructure   bool
	UseOrderBlocks       bool
	UseFVG               bool
	UseLiquiditySweeps   bool
	MinConfluence        int
}

// Validate checks the Structural parameters in addition to the base.
func (c *StructuralParams) Validate() error {
	if err := c.StrategyConfigBase.Validate(); err != nil {
		return err
	}
	if c.LookbackCandles < 5 {
		return errors.New("lookback_candles must be at least 5")
	}
	if c.FVGMinSize < 0 {
		return errors.New("fvg_min_size cannot be negative")
	}
	if c.LiquiditySweepPips < 0 {
		return errors.New("liquidity_sweep_pips cannot be negative")
	}
	if c.MinConfluence < 2 || c.MinConfluence > 4 {
		return fmt.Errorf("min_confluence (%d) must be one of {2,3,4}", c.MinConfluence)
	}
	return nil
}

// SymbolConfig is one symbol's full per-symbol configuration surface
// (spec.md §6): which strategy it runs, plus that strategy's parameters.
type SymbolConfig struct {
	Enabled      bool
	Strategy     StrategyName
	AdaptiveTrend *AdaptiveTrendParams // set iff Strategy == StrategyAdaptiveTrend
	Structural    *StructuralParams    // set iff Strategy == StrategyStructural
}

// Validate checks that exactly one strategy's parameters are present and
// that they validate.
func (c *SymbolConfig) Validate() error {
	switch c.Strategy {
	case StrategyAdaptiveTrend:
		if c.AdaptiveTrend == nil {
			return errors.New("adaptive_trend strategy selected but no parameters supplied")
		}
		if c.Structural != nil {
			return errors.New("structural parameters supplied for an adaptive_trend symbol")
		}
		return c.AdaptiveTrend.Validate()
	case StrategyStructural:
		if c.Structural == nil {
			return errors.New("structural strategy selected but no parameters supplied")
		}
		if c.AdaptiveTrend != nil {
			return errors.New("adaptive_trend parameters supplied for a structural symbol")
		}
		return c.Structural.Validate()
	default:
		return fmt.Errorf("strategy %q is not recognised", c.Strategy)
	}
}

// BaseConfig returns the common StrategyConfigBase regardless of which
// concrete strategy is configured.
func (c *SymbolConfig) BaseConfig() *StrategyConfigBase {
	if c.AdaptiveTrend != nil {
		return &c.AdaptiveTrend.StrategyConfigBase
	}
	if c.Structural != nil {
		return &c.Structural.StrategyConfigBase
	}
	return nil
}

// GlobalConfig holds the engine-wide settings of spec.md §6.
type GlobalConfig struct {
	MaxDailyLossPercent  float64
	MaxPositionsPerSymbol int
	MaxTotalPositions    int
	AccountProfile       AccountProfile
	FlattenOnShutdown    bool
	Symbols              map[string]*SymbolConfig
}

// Validate checks the global settings and every configured symbol.
func (c *GlobalConfig) Validate() error {
	if c.MaxDailyLossPercent <= 0 || c.MaxDailyLossPercent > 100 {
		return fmt.Errorf("max_daily_loss_percent (%f) must be in (0,100]", c.MaxDailyLossPercent)
	}
	if c.MaxPositionsPerSymbol <= 0 {
		return errors.New("max_positions_per_symbol must be positive")
	}
	if c.MaxTotalPositions <= 0 {
		return errors.New("max_total_positions must be positive")
	}
	switch c.AccountProfile {
	case ProfileDemo, ProfileLive:
	default:
		return fmt.Errorf("account_profile %q is not recognised", c.AccountProfile)
	}
	for name, sym := range c.Symbols {
		if sym == nil {
			return fmt.Errorf("symbol %q has a nil configuration", name)
		}
		if !sym.Enabled {
			continue
		}
		if err := sym.Validate(); err != nil {
			return fmt.Errorf("symbol %q: %w", name, err)
		}
	}
	return nil
}
