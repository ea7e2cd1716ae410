package strategy

import (
	"math"

	"github.com/kestrel-trading/engine/config"
	"github.com/kestrel-trading/engine/indicator"
	"github.com/kestrel-trading/engine/logger"
	"github.com/kestrel-trading/engine/types"
)

// fractalWing is the number of bars on each side a swing point must
// dominate (spec.md §4.4 step 1: "for N=2 or 3"). Fixed at 2, the lower end
// of the allowed range, to keep swing detection responsive.
const fractalWing = 2

// MarketTrend classifies the structural swing sequence.
type MarketTrend string

const (
	TrendBullish MarketTrend = "bullish"
	TrendBearish MarketTrend = "bearish"
	TrendNeutral MarketTrend = "neutral"
)

// StructureEvent names the latest break classification (spec.md §4.4 step 2).
type StructureEvent string

const (
	EventNone  StructureEvent = "none"
	EventBOS   StructureEvent = "BOS"
	EventCHoCH StructureEvent = "CHoCH"
)

// swingPoint is a fractal high or low.
type swingPoint struct {
	index  int
	price  float64
	isHigh bool
}

// orderBlock is the body range of the candle at a swing reversal, where
// an impulse move starts (spec.md §4.4 step 3).
type orderBlock struct {
	top, bottom float64
	strength    float64
	birth       int
	bullish     bool // protective direction: true means this OB supports longs
}

// fairValueGap is a three-bar imbalance (spec.md §4.4 step 4).
type fairValueGap struct {
	top, bottom float64
	birth       int
	bullish     bool
	filled      bool
}

// Structural implements the price-action strategy of spec.md §4.4: swing
// detection, BOS/CHoCH classification, order blocks, fair value gaps,
// liquidity sweeps, and confluence-gated signal emission.
type Structural struct {
	*BaseStrategy
	params config.StructuralParams
}

// NewStructural validates params and constructs the strategy.
func NewStructural(params config.StructuralParams, log logger.Logger) (*Structural, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	base, err := newBaseStrategy("structural", params.StrategyConfigBase, log)
	if err != nil {
		return nil, err
	}
	return &Structural{BaseStrategy: base, params: params}, nil
}

// GenerateSignal implements Strategy.
func (s *Structural) GenerateSignal(bars []types.Bar) (types.Signal, bool) {
	minBars := s.params.LookbackCandles + 2*fractalWing + 1
	if len(bars) < minBars {
		s.logSkip(s.params.Symbol, "insufficient_bars")
		return types.Signal{}, false
	}
	last := bars[len(bars)-1]
	s.recordPrice(last.Close)

	window := bars
	if len(bars) > s.params.LookbackCandles+2*fractalWing {
		window = bars[len(bars)-(s.params.LookbackCandles+2*fractalWing):]
	}
	offset := len(bars) - len(window)

	swings := detectSwings(window, fractalWing)
	trend, lastEvent := classifyTrend(swings)

	// ATR period is unspecified for this strategy family; 14 matches the
	// conventional default used by the order-block strength and stop-floor
	// calculations.
	atr := indicator.ATR(bars, 14)
	lastATR := atr[len(atr)-1]
	if math.IsNaN(lastATR) {
		lastATR = 0
	}

	var blocks []orderBlock
	if s.params.UseOrderBlocks {
		blocks = detectOrderBlocks(window, swings, lastATR, s.params.LookbackCandles)
	}
	var fvgs []fairValueGap
	if s.params.UseFVG {
		fvgs = detectFVGs(window, s.params.FVGMinSize)
		fvgs = pruneFilledFVGs(fvgs, window)
	}
	var sweepBullish, sweepBearish bool
	if s.params.UseLiquiditySweeps {
		sweepBullish, sweepBearish = detectLiquiditySweep(window, swings, s.params.LiquiditySweepPips)
	}

	if trend == TrendNeutral {
		s.logSkip(s.params.Symbol, "neutral_trend")
		return types.Signal{}, false
	}

	side := types.Buy
	if trend == TrendBearish {
		side = types.Sell
	}

	confluences := 0
	if s.params.UseMarketStructure && lastEvent == EventBOS {
		confluences++
	}
	protectiveOB, hasOB := nearestOrderBlock(blocks, side, last.Close)
	if hasOB {
		confluences++
	}
	inFVG := priceInFVG(fvgs, side, last.Close)
	if inFVG {
		confluences++
	}
	if (side == types.Buy && sweepBullish) || (side == types.Sell && sweepBearish) {
		confluences++
	}
	if s.priceTrendConfirms(side) {
		confluences++
	}

	if confluences < s.params.MinConfluence {
		s.logSkip(s.params.Symbol, "insufficient_confluence")
		return types.Signal{}, false
	}

	entry := last.Close
	stopFloor := 1.5 * lastATR
	var stop float64
	switch side {
	case types.Buy:
		stop = entry - stopFloor
		if hasOB && protectiveOB.bottom < stop {
			stop = protectiveOB.bottom
		}
		if sweepBullish {
			if w := sweepWickLow(window, swings); w < stop {
				stop = w
			}
		}
	default:
		stop = entry + stopFloor
		if hasOB && protectiveOB.top > stop {
			stop = protectiveOB.top
		}
		if sweepBearish {
			if w := sweepWickHigh(window, swings); w > stop {
				stop = w
			}
		}
	}

	d := math.Abs(entry - stop)
	if d <= 0 {
		return types.Signal{}, false
	}
	var target float64
	if side == types.Buy {
		target = entry + s.params.RRRatio*d
	} else {
		target = entry - s.params.RRRatio*d
	}

	// 5 possible votes: market structure, order block, FVG, liquidity sweep,
	// and the rolling price-buffer trend confirmation.
	confidence := math.Min(100, float64(confluences)/5.0*100)
	sig := types.Signal{
		Symbol:     s.params.Symbol,
		Side:       side,
		Entry:      entry,
		Stop:       stop,
		TargetMain: target,
		Confidence: confidence,
		Reason:     "structural_confluence",
		Metadata: map[string]float64{
			"confluences": float64(confluences),
			"offset":      float64(offset),
		},
	}
	if !sig.Valid() {
		s.logSkip(s.params.Symbol, "invalid_signal_geometry")
		return types.Signal{}, false
	}
	s.logSignal(s.params.Symbol, string(side), sig.Reason, entry, stop, target)
	return sig, true
}

// detectSwings applies the fractal rule: a bar is a swing high if its high
// is strictly greater than the highs of the wing bars on each side,
// symmetric for lows (spec.md §4.4 step 1).
func detectSwings(bars []types.Bar, wing int) []swingPoint {
	var out []swingPoint
	for i := wing; i < len(bars)-wing; i++ {
		isHigh := true
		isLow := true
		for j := 1; j <= wing; j++ {
			if bars[i].High <= bars[i-j].High || bars[i].High <= bars[i+j].High {
				isHigh = false
			}
			if bars[i].Low >= bars[i-j].Low || bars[i].Low >= bars[i+j].Low {
				isLow = false
			}
		}
		if isHigh {
			out = append(out, swingPoint{index: i, price: bars[i].High, isHigh: true})
		}
		if isLow {
			out = append(out, swingPoint{index: i, price: bars[i].Low, isHigh: false})
		}
	}
	return out
}

// classifyTrend derives trend and the latest break event from the ordered
// swing sequence (spec.md §4.4 step 2).
func classifyTrend(swings []swingPoint) (MarketTrend, StructureEvent) {
	var highs, lows []swingPoint
	for _, sw := range swings {
		if sw.isHigh {
			highs = append(highs, sw)
		} else {
			lows = append(lows, sw)
		}
	}
	if len(highs) < 2 || len(lows) < 2 {
		return TrendNeutral, EventNone
	}
	lastHigh, prevHigh := highs[len(highs)-1], highs[len(highs)-2]
	lastLow, prevLow := lows[len(lows)-1], lows[len(lows)-2]

	higherHigh := lastHigh.price > prevHigh.price
	higherLow := lastLow.price > prevLow.price
	lowerHigh := lastHigh.price < prevHigh.price
	lowerLow := lastLow.price < prevLow.price

	switch {
	case higherHigh && higherLow:
		return TrendBullish, EventBOS
	case lowerHigh && lowerLow:
		return TrendBearish, EventBOS
	case higherHigh && lowerLow:
		return TrendNeutral, EventCHoCH
	case lowerHigh && higherLow:
		return TrendNeutral, EventCHoCH
	default:
		return TrendNeutral, EventNone
	}
}

// detectOrderBlocks marks the candle at each swing reversal as an order
// block (spec.md §4.4 step 3); the candle's colour is not checked, and no
// earlier candle is searched for. Strength is
// proportional to the impulse's displacement over ATR; ties break by
// recency (later birth index wins when compared by callers).
func detectOrderBlocks(bars []types.Bar, swings []swingPoint, atr float64, maxAge int) []orderBlock {
	var blocks []orderBlock
	for _, sw := range swings {
		impulseStart := sw.index
		impulseEnd := sw.index
		for impulseEnd+1 < len(bars) && sameDirection(bars, impulseEnd, impulseEnd+1, !sw.isHigh) {
			impulseEnd++
		}
		displacement := math.Abs(bars[impulseEnd].Close - bars[impulseStart].Close)
		strength := 0.0
		if atr > 1e-9 {
			strength = displacement / atr
		}
		obIdx := impulseStart
		bullish := !sw.isHigh // OB born at a swing low protects longs
		candle := bars[obIdx]
		if obIdx >= len(bars) {
			continue
		}
		blocks = append(blocks, orderBlock{
			top:      math.Max(candle.Open, candle.Close),
			bottom:   math.Min(candle.Open, candle.Close),
			strength: strength,
			birth:    obIdx,
			bullish:  bullish,
		})
	}
	// expire blocks older than maxAge candles relative to the window end
	if len(bars) == 0 {
		return nil
	}
	cutoff := len(bars) - 1 - maxAge
	fresh := blocks[:0]
	for _, b := range blocks {
		if b.birth >= cutoff {
			fresh = append(fresh, b)
		}
	}
	return fresh
}

func sameDirection(bars []types.Bar, i, j int, bullishImpulse bool) bool {
	if bullishImpulse {
		return bars[j].Close >= bars[i].Close
	}
	return bars[j].Close <= bars[i].Close
}

// nearestOrderBlock returns the highest-strength active block on the
// protective side for side, tie-broken by recency.
func nearestOrderBlock(blocks []orderBlock, side types.Side, price float64) (orderBlock, bool) {
	var best orderBlock
	found := false
	for _, b := range blocks {
		wantBullish := side == types.Buy
		if b.bullish != wantBullish {
			continue
		}
		inZone := price >= b.bottom && price <= b.top
		if !inZone {
			continue
		}
		if !found || b.strength > best.strength || (b.strength == best.strength && b.birth > best.birth) {
			best = b
			found = true
		}
	}
	return best, found
}

// detectFVGs finds bullish/bearish three-bar imbalances (spec.md §4.4
// step 4).
func detectFVGs(bars []types.Bar, minSize float64) []fairValueGap {
	var out []fairValueGap
	for i := 2; i < len(bars); i++ {
		if bars[i].Low > bars[i-2].High {
			size := bars[i].Low - bars[i-2].High
			if size >= minSize {
				out = append(out, fairValueGap{top: bars[i].Low, bottom: bars[i-2].High, birth: i, bullish: true})
			}
		}
		if bars[i].High < bars[i-2].Low {
			size := bars[i-2].Low - bars[i].High
			if size >= minSize {
				out = append(out, fairValueGap{top: bars[i-2].Low, bottom: bars[i].High, birth: i, bullish: false})
			}
		}
	}
	return out
}

// pruneFilledFVGs marks each gap filled once a later bar's price traverses
// into it, then returns only the active (unfilled) ones (spec.md §4.4 step
// 4 + invariant: "filled transitions are monotonic").
func pruneFilledFVGs(fvgs []fairValueGap, bars []types.Bar) []fairValueGap {
	active := fvgs[:0]
	for _, g := range fvgs {
		filled := false
		for i := g.birth + 1; i < len(bars); i++ {
			if bars[i].Low <= g.top && bars[i].High >= g.bottom {
				filled = true
				break
			}
		}
		if !filled {
			active = append(active, g)
		}
	}
	return active
}

// priceInFVG reports whether price sits inside a same-direction active
// fair value gap (spec.md §4.4 step 6); a price beyond the gap's edge does
// not count.
func priceInFVG(fvgs []fairValueGap, side types.Side, price float64) bool {
	for _, g := range fvgs {
		wantBullish := side == types.Buy
		if g.bullish != wantBullish {
			continue
		}
		if price >= g.bottom && price <= g.top {
			return true
		}
	}
	return false
}

// detectLiquiditySweep reports whether the most recent bar wicked beyond a
// recent swing by at least sweepPips and closed back inside (spec.md §4.4
// step 5).
func detectLiquiditySweep(bars []types.Bar, swings []swingPoint, sweepPips float64) (bullish, bearish bool) {
	if len(bars) == 0 || len(swings) == 0 {
		return false, false
	}
	last := bars[len(bars)-1]
	var lastHigh, lastLow *swingPoint
	for i := len(swings) - 1; i >= 0; i-- {
		if swings[i].isHigh && lastHigh == nil {
			h := swings[i]
			lastHigh = &h
		}
		if !swings[i].isHigh && lastLow == nil {
			l := swings[i]
			lastLow = &l
		}
		if lastHigh != nil && lastLow != nil {
			break
		}
	}
	if lastLow != nil && last.Low < lastLow.price-sweepPips && last.Close > lastLow.price {
		bullish = true
	}
	if lastHigh != nil && last.High > lastHigh.price+sweepPips && last.Close < lastHigh.price {
		bearish = true
	}
	return bullish, bearish
}

func sweepWickLow(bars []types.Bar, swings []swingPoint) float64 {
	if len(bars) == 0 {
		return 0
	}
	return bars[len(bars)-1].Low
}

func sweepWickHigh(bars []types.Bar, swings []swingPoint) float64 {
	if len(bars) == 0 {
		return 0
	}
	return bars[len(bars)-1].High
}
