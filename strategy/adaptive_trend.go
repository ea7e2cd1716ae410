package strategy

import (
	"math"

	"github.com/kestrel-trading/engine/config"
	"github.com/kestrel-trading/engine/indicator"
	"github.com/kestrel-trading/engine/logger"
	"github.com/kestrel-trading/engine/types"
)

// AdaptiveTrend implements the clustering-driven strategy of spec.md §4.3:
// a family of SuperTrend lines swept over a factor range, scored by an
// EMA-smoothed volume/volatility-adjusted performance metric, partitioned
// by 1-D k-means into three clusters, emitting a signal when the chosen
// cluster's representative trend flips.
type AdaptiveTrend struct {
	*BaseStrategy
	params config.AdaptiveTrendParams

	factors []float64
	// lastTrend records the representative factor's SuperTrend direction
	// when a signal is emitted; flip detection itself compares the last two
	// bars of the band series and does not read it.
	lastTrend int
	// activeFactor is the representative factor chosen for the most
	// recently emitted signal, reused by GenerateTrailingStop so the
	// trailing band follows the same SuperTrend line the trade was opened
	// against.
	activeFactor float64
}

// NewAdaptiveTrend validates params and builds the factor sweep.
func NewAdaptiveTrend(params config.AdaptiveTrendParams, log logger.Logger) (*AdaptiveTrend, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	base, err := newBaseStrategy("adaptive_trend", params.StrategyConfigBase, log)
	if err != nil {
		return nil, err
	}
	var factors []float64
	for f := params.MinFactor; f <= params.MaxFactor+1e-9; f += params.FactorStep {
		factors = append(factors, f)
	}
	return &AdaptiveTrend{BaseStrategy: base, params: params, factors: factors}, nil
}

// minBarsRequired is the warm-up window below which the strategy emits
// nothing (spec.md §4.3 edge cases: "insufficient bars (< max(atr_period,
// 50)+lookback) => emit nothing").
func (a *AdaptiveTrend) minBarsRequired() int {
	lookback := a.params.VolumeMAPeriod
	warmup := a.params.ATRPeriod
	if warmup < 50 {
		warmup = 50
	}
	return warmup + lookback
}

// GenerateSignal implements Strategy.
func (a *AdaptiveTrend) GenerateSignal(bars []types.Bar) (types.Signal, bool) {
	if len(bars) < a.minBarsRequired() {
		a.logSkip(a.params.Symbol, "insufficient_bars")
		return types.Signal{}, false
	}
	last := bars[len(bars)-1]
	a.recordPrice(last.Close)

	volumeMA := indicator.SMA(bars, a.params.VolumeMAPeriod, indicator.Volume)
	normVol := indicator.NormalizedVolatility(bars, a.params.ATRPeriod)

	n := len(a.factors)
	scores := make([]float64, n)
	trends := make([][]indicator.SuperTrendPoint, n)
	for i, f := range a.factors {
		st := indicator.SuperTrend(bars, f, a.params.ATRPeriod)
		trends[i] = st
		scores[i] = performanceScore(bars, st, volumeMA, normVol, a.params.PerfAlpha)
	}

	lastIdx := len(bars) - 1
	prevIdx := lastIdx - 1
	if prevIdx < 0 {
		return types.Signal{}, false
	}
	if math.IsNaN(scores[0]) {
		a.logSkip(a.params.Symbol, "nan_score")
		return types.Signal{}, false
	}

	clusterChoice := clusterLabelFor(a.params.ClusterChoice)
	result := indicator.KMeans3(scores)
	repIdx := indicator.RepresentativeIndex(scores, result, clusterChoice)
	if repIdx < 0 {
		return types.Signal{}, false
	}
	chosenPerf := scores[repIdx]
	repTrend := trends[repIdx]

	prevTrend := repTrend[prevIdx].Trend
	curTrend := repTrend[lastIdx].Trend
	if prevTrend == curTrend {
		a.logSkip(a.params.Symbol, "no_trend_flip")
		return types.Signal{}, false
	}

	if last.TickVolume < a.params.VolumeMultiplier*volumeMA[lastIdx] {
		a.logSkip(a.params.Symbol, "volume_filter_rejected")
		return types.Signal{}, false
	}

	side := types.Buy
	if curTrend < 0 {
		side = types.Sell
	}
	entry := last.Close
	stop := repTrend[lastIdx].ActiveBand
	d := math.Abs(entry - stop)
	if d <= 0 {
		return types.Signal{}, false
	}
	var target float64
	if side == types.Buy {
		target = entry + a.params.RRRatio*d
	} else {
		target = entry - a.params.RRRatio*d
	}

	confidence := 50.0
	if chosenPerf >= 0 {
		confidence = math.Min(100, chosenPerf*10)
	}
	// Independent sanity check: if the rolling close-price buffer's
	// short-window slope disagrees with the flip direction, the flip is
	// likely noise inside a choppy band, so confidence is dampened rather
	// than discarded outright.
	if slope, _, ok := a.priceMomentum(); ok {
		agrees := (side == types.Buy && slope > 0) || (side == types.Sell && slope < 0)
		if !agrees {
			confidence = math.Max(0, confidence*0.85)
		}
	}

	sig := types.Signal{
		Symbol:     a.params.Symbol,
		Side:       side,
		Entry:      entry,
		Stop:       stop,
		TargetMain: target,
		Confidence: confidence,
		Reason:     "adaptive_trend_flip",
		Metadata: map[string]float64{
			"chosen_factor": a.factors[repIdx],
			"chosen_perf":   chosenPerf,
		},
	}
	if !sig.Valid() {
		a.logSkip(a.params.Symbol, "invalid_signal_geometry")
		return types.Signal{}, false
	}
	a.lastTrend = curTrend
	a.activeFactor = a.factors[repIdx]
	a.logSignal(a.params.Symbol, string(side), sig.Reason, entry, stop, target)
	return sig, true
}

// GenerateTrailingStop implements strategy.TrailingStrategy, recomputing
// the representative factor's ATR and SuperTrend band from the latest bars
// and delegating to TrailingStopFor.
func (a *AdaptiveTrend) GenerateTrailingStop(bars []types.Bar, side types.Side, entry, currentStop float64, breakevenApplied bool) (float64, bool) {
	if !a.params.UseTrailing || len(bars) == 0 || a.activeFactor <= 0 {
		return currentStop, false
	}
	atr := indicator.ATR(bars, a.params.ATRPeriod)
	last := len(atr) - 1
	if last < 0 || math.IsNaN(atr[last]) {
		return currentStop, false
	}
	st := indicator.SuperTrend(bars, a.activeFactor, a.params.ATRPeriod)
	band := st[len(st)-1].ActiveBand
	currentPrice := bars[len(bars)-1].Close
	newStop := a.TrailingStopFor(side, entry, currentStop, currentPrice, atr[last], band, breakevenApplied)
	return newStop, newStop != currentStop
}

// TrailingStopFor implements the optional trailing behaviour of spec.md
// §4.3 step 8: once price has advanced trail_activation*atr in favour, the
// stop follows the active SuperTrend band but only in the favourable
// direction and never inside the breakeven-promoted level.
func (a *AdaptiveTrend) TrailingStopFor(side types.Side, entry, currentStop, currentPrice, atr, activeBand float64, breakevenApplied bool) float64 {
	if !a.params.UseTrailing {
		return currentStop
	}
	favourable := currentPrice - entry
	if side == types.Sell {
		favourable = entry - currentPrice
	}
	if favourable < a.params.TrailActivation*atr {
		return currentStop
	}
	candidate := activeBand
	if side == types.Buy {
		if candidate < currentStop {
			return currentStop
		}
		if breakevenApplied && candidate < entry {
			return currentStop
		}
	} else {
		if candidate > currentStop {
			return currentStop
		}
		if breakevenApplied && candidate > entry {
			return currentStop
		}
	}
	return candidate
}

// performanceScore implements spec.md §4.3 step 3: an EMA of
// trend_{t-1} * (close_t - close_{t-1}) * (volume_t / volume_ma_t) / normVol_t,
// clipped against division by near-zero volatility, returning the final
// (most recent) scalar value of that EMA.
func performanceScore(bars []types.Bar, st []indicator.SuperTrendPoint, volumeMA, normVol []float64, alpha float64) float64 {
	n := len(bars)
	proxies := make([]float64, n)
	for i := 1; i < n; i++ {
		vol := normVol[i]
		if math.IsNaN(vol) || vol < 1e-6 {
			vol = 1e-6
		}
		volRatio := 1.0
		if volumeMA[i] > 1e-9 {
			volRatio = bars[i].TickVolume / volumeMA[i]
		}
		proxies[i] = float64(st[i-1].Trend) * (bars[i].Close - bars[i-1].Close) * volRatio / vol
	}
	if n == 0 {
		return math.NaN()
	}
	ema := indicator.EMAAlpha(proxies[1:], alpha)
	if len(ema) == 0 {
		return math.NaN()
	}
	return ema[len(ema)-1]
}

func clusterLabelFor(choice config.ClusterChoice) indicator.ClusterLabel {
	switch choice {
	case config.ClusterWorst:
		return indicator.ClusterWorst
	case config.ClusterBest:
		return indicator.ClusterBest
	default:
		return indicator.ClusterAverage
	}
}
