// Package indicator provides pure functions over a bar sequence: ATR,
// moving averages, volatility, volume MA, and the parametrised SuperTrend
// band computation (spec.md §3 Indicator Kernel). Every function is
// allocation-light and output-aligned to the input slice, following the
// style of the pack's technical-indicator helpers: unavailable lookbacks
// emit NaN rather than panicking or truncating the series.
package indicator

import (
	"math"

	"github.com/kestrel-trading/engine/types"
)

// TrueRange returns the per-bar true range, aligned to bars. The first bar
// has no previous close, so its true range is simply high-low.
func TrueRange(bars []types.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		if i == 0 {
			out[i] = b.High - b.Low
			continue
		}
		prevClose := bars[i-1].Close
		hl := b.High - b.Low
		hc := math.Abs(b.High - prevClose)
		lc := math.Abs(b.Low - prevClose)
		out[i] = math.Max(hl, math.Max(hc, lc))
	}
	return out
}

// ATR returns the period-bar Wilder-smoothed average true range, aligned to
// bars. Indices before period bars have accumulated are NaN (spec.md §3:
// "NaN until period bars accumulated").
func ATR(bars []types.Bar, period int) []float64 {
	out := make([]float64, len(bars))
	if period <= 0 || len(bars) == 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	tr := TrueRange(bars)
	var sum float64
	for i := range tr {
		if i < period {
			sum += tr[i]
			if i < period-1 {
				out[i] = math.NaN()
			} else {
				out[i] = sum / float64(period)
			}
			continue
		}
		out[i] = (out[i-1]*float64(period-1) + tr[i]) / float64(period)
	}
	return out
}

// Series selects a scalar value per bar for use by EMA/SMA/std.
type Series func(b types.Bar) float64

func Close(b types.Bar) float64  { return b.Close }
func High(b types.Bar) float64   { return b.High }
func Low(b types.Bar) float64    { return b.Low }
func HL2(b types.Bar) float64    { return (b.High + b.Low) / 2 }
func Volume(b types.Bar) float64 { return float64(b.TickVolume) }

// SMA returns the period-bar simple moving average of sel(bar), aligned to
// bars. Indices before period values have accumulated are NaN.
func SMA(bars []types.Bar, period int, sel Series) []float64 {
	out := make([]float64, len(bars))
	if period <= 0 || len(bars) == 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	var sum float64
	for i, b := range bars {
		v := sel(b)
		sum += v
		if i >= period {
			sum -= sel(bars[i-period])
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// EMA returns the period-bar exponential moving average of sel(bar),
// aligned to bars, seeded by the SMA of the first period values.
func EMA(bars []types.Bar, period int, sel Series) []float64 {
	out := make([]float64, len(bars))
	if period <= 0 || len(bars) == 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	alpha := 2.0 / (float64(period) + 1.0)
	sma := SMA(bars, period, sel)
	for i := range bars {
		switch {
		case i < period-1:
			out[i] = math.NaN()
		case i == period-1:
			out[i] = sma[i]
		default:
			out[i] = alpha*sel(bars[i]) + (1-alpha)*out[i-1]
		}
	}
	return out
}

// EMAAlpha is the same recursion as EMA but seeded from series values
// directly with an explicit smoothing constant, used by the adaptive-trend
// performance score (spec.md §4.3 "an EMA (smoothing parameter derived from
// perf_alpha)"). vals[0] seeds the recursion.
func EMAAlpha(vals []float64, alpha float64) []float64 {
	out := make([]float64, len(vals))
	for i, v := range vals {
		if i == 0 {
			out[i] = v
			continue
		}
		out[i] = alpha*v + (1-alpha)*out[i-1]
	}
	return out
}

// RollingStd returns the period-bar rolling standard deviation of sel(bar),
// aligned to bars. Indices before period values have accumulated are NaN.
func RollingStd(bars []types.Bar, period int, sel Series) []float64 {
	out := make([]float64, len(bars))
	if period <= 1 || len(bars) == 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	var sum, sumSq float64
	for i, b := range bars {
		v := sel(b)
		sum += v
		sumSq += v * v
		if i >= period {
			y := sel(bars[i-period])
			sum -= y
			sumSq -= y * y
		}
		if i >= period-1 {
			mean := sum / float64(period)
			variance := math.Max(sumSq/float64(period)-mean*mean, 0)
			out[i] = math.Sqrt(variance)
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// NormalizedVolatility returns std / rolling-mean(std, 50), NaN for the
// first 50+window bars (spec.md §3).
func NormalizedVolatility(bars []types.Bar, window int) []float64 {
	std := RollingStd(bars, window, Close)
	out := make([]float64, len(bars))
	var sum float64
	count := 0
	for i := range bars {
		if !math.IsNaN(std[i]) {
			sum += std[i]
			count++
			if count > 50 {
				// drop the value that is leaving the 50-wide window of std
				// values; std is defined from index window-1 onward and one
				// value is added per bar, so the window of stds runs from
				// i-49 .. i.
				idx := i - 50
				if idx >= 0 && !math.IsNaN(std[idx]) {
					sum -= std[idx]
					count--
				}
			}
		}
		if count < 50 || math.IsNaN(std[i]) {
			out[i] = math.NaN()
			continue
		}
		mean := sum / float64(count)
		if mean <= 1e-12 {
			out[i] = math.NaN()
			continue
		}
		out[i] = std[i] / mean
	}
	return out
}

// SuperTrendPoint is the per-bar output of SuperTrend: direction and the
// currently active band level on the protective side.
type SuperTrendPoint struct {
	Trend      int // +1 or -1
	ActiveBand float64
}

// SuperTrend computes the factor/atr_period-parametrised SuperTrend band
// (spec.md §3): upper = hl2+factor*atr, lower = hl2-factor*atr, with the
// standard locking rule (the active band only ever moves in the trend's
// favour until a close crosses it). Bars before ATR has accumulated produce
// a zero-value point with Trend left at its seed of +1.
func SuperTrend(bars []types.Bar, factor float64, atrPeriod int) []SuperTrendPoint {
	out := make([]SuperTrendPoint, len(bars))
	if len(bars) == 0 {
		return out
	}
	atr := ATR(bars, atrPeriod)
	trend := 1
	var activeBand float64
	var upperBand, lowerBand float64
	initialized := false
	for i, b := range bars {
		if math.IsNaN(atr[i]) {
			out[i] = SuperTrendPoint{Trend: trend, ActiveBand: activeBand}
			continue
		}
		hl2 := HL2(b)
		rawUpper := hl2 + factor*atr[i]
		rawLower := hl2 - factor*atr[i]
		if !initialized {
			upperBand, lowerBand = rawUpper, rawLower
			if b.Close >= lowerBand {
				trend = 1
				activeBand = lowerBand
			} else {
				trend = -1
				activeBand = upperBand
			}
			initialized = true
			out[i] = SuperTrendPoint{Trend: trend, ActiveBand: activeBand}
			continue
		}
		prevClose := bars[i-1].Close
		if rawLower > lowerBand || prevClose < lowerBand {
			lowerBand = rawLower
		}
		if rawUpper < upperBand || prevClose > upperBand {
			upperBand = rawUpper
		}
		switch trend {
		case 1:
			if b.Close < lowerBand {
				trend = -1
				activeBand = upperBand
			} else {
				activeBand = lowerBand
			}
		default:
			if b.Close > upperBand {
				trend = 1
				activeBand = lowerBand
			} else {
				activeBand = upperBand
			}
		}
		out[i] = SuperTrendPoint{Trend: trend, ActiveBand: activeBand}
	}
	return out
}
