// Package backtest implements the deterministic bar-replay executor of
// spec.md §4.8: it substitutes the broker gateway with a synthetic fill
// engine that reproduces live stop/target/breakeven semantics, feeding
// the same Strategy and risk.CalcLotSize used by the live worker.
package backtest

import (
	"errors"
	"time"

	"github.com/kestrel-trading/engine/risk"
	"github.com/kestrel-trading/engine/strategy"
	"github.com/kestrel-trading/engine/types"
)

// ExitReason classifies why a leg closed during replay.
type ExitReason string

const (
	ExitStop      ExitReason = "Stop"
	ExitTarget    ExitReason = "Target"
	ExitEndOfData ExitReason = "EndOfData"
)

// TradeRecord is one closed leg, shaped per spec.md §4.8's output contract.
type TradeRecord struct {
	EntryTime  time.Time
	ExitTime   time.Time
	Side       types.Side
	Entry      float64
	Exit       float64
	Stop       float64
	Target     float64
	PnL        float64
	Leg        types.Leg
	ExitReason ExitReason
}

// EquityPoint is one sample of the running equity curve, taken at every
// bar close.
type EquityPoint struct {
	Time   time.Time
	Equity float64
}

// Stats are the aggregate statistics spec.md §4.8 requires alongside the
// trade list and equity curve.
type Stats struct {
	TotalTrades  int
	Wins         int
	Losses       int
	WinRate      float64 // percent
	ProfitFactor float64
	Sharpe       float64
	MaxDrawdown  float64 // percent
}

// Result bundles everything the executor produces from one replay.
type Result struct {
	EquityCurve []EquityPoint
	Trades      []TradeRecord
	Stats       Stats
}

// CostModel models the per-trade frictions spec.md §4.8 step 4 requires be
// subtracted from the raw sizing-formula PnL.
type CostModel struct {
	CommissionPerLot float64 // flat round-turn commission, account currency
	SpreadPrice      float64 // half-spread added to entry and subtracted at exit, in price units
	SlippagePrice    float64 // adverse slippage applied at both entry and exit, in price units
}

// Config parameterizes one Executor run.
type Config struct {
	StartEquity          float64
	RiskPercent          float64 // per-leg, matches config.StrategyConfigBase.RiskPercent
	AllowMinSizeOverride bool
	MoveSLToBreakeven    bool
	Costs                CostModel
}

// Executor replays a bar sequence through a Strategy with no look-ahead:
// signal generation at bar i only ever sees bars[:i+1].
type Executor struct {
	strat   strategy.Strategy
	symInfo risk.SymbolInfo
	cfg     Config
}

// NewExecutor builds an Executor bound to one strategy instance and one
// symbol's sizing metadata.
func NewExecutor(strat strategy.Strategy, symInfo risk.SymbolInfo, cfg Config) *Executor {
	return &Executor{strat: strat, symInfo: symInfo, cfg: cfg}
}

type openLeg struct {
	side     types.Side
	leg      types.Leg
	entry    float64
	stop     float64
	target   float64
	lot      float64
	openTime time.Time
}

type openTrade struct {
	signal           types.Signal
	leg1             *openLeg
	leg2             *openLeg
	breakevenApplied bool
	pendingBreakeven bool
}

// Run replays bars chronologically per spec.md §4.8. Bars must already be
// in ascending time order (types.Bar's documented contract).
func (e *Executor) Run(bars []types.Bar) (Result, error) {
	if len(bars) == 0 {
		return Result{}, errors.New("backtest: no bars to replay")
	}

	equity := e.cfg.StartEquity
	var curve []EquityPoint
	var trades []TradeRecord
	var open *openTrade

	for i, bar := range bars {
		if open != nil && open.pendingBreakeven {
			e.applyBreakeven(open)
			open.pendingBreakeven = false
		}

		if open != nil {
			if open.leg1 != nil {
				if closed, price, reason := checkFill(open.leg1, bar); closed {
					pnl := e.realizePnL(open.leg1, price)
					equity += pnl
					trades = append(trades, newRecord(open.leg1, bar.Time, price, pnl, reason))
					open.leg1 = nil
					if e.cfg.MoveSLToBreakeven && open.leg2 != nil && !open.breakevenApplied {
						// Applied at the next bar's start (spec.md §4.8 step 3's
						// canonical choice) to avoid an implausible same-bar
						// dependency between leg1's close and leg2's stop.
						open.pendingBreakeven = true
					}
				}
			}
			if open.leg2 != nil {
				if closed, price, reason := checkFill(open.leg2, bar); closed {
					pnl := e.realizePnL(open.leg2, price)
					equity += pnl
					trades = append(trades, newRecord(open.leg2, bar.Time, price, pnl, reason))
					open.leg2 = nil
				}
			}
			if open.leg1 == nil && open.leg2 == nil {
				open = nil
			}
		}

		curve = append(curve, EquityPoint{Time: bar.Time, Equity: equity})

		if open == nil {
			sig, ok := e.strat.GenerateSignal(bars[:i+1])
			if ok && sig.Valid() {
				sizing := risk.CalcLotSize(equity, e.cfg.RiskPercent, sig.Entry, sig.Stop, e.symInfo, e.cfg.AllowMinSizeOverride)
				if !sizing.Rejected {
					open = e.openPosition(sig, sizing.Lot, bar.Time)
				}
			}
		}
	}

	if open != nil {
		last := bars[len(bars)-1]
		for _, leg := range []*openLeg{open.leg1, open.leg2} {
			if leg == nil {
				continue
			}
			pnl := e.realizePnL(leg, last.Close)
			equity += pnl
			trades = append(trades, newRecord(leg, last.Time, last.Close, pnl, ExitEndOfData))
		}
		curve[len(curve)-1].Equity = equity
	}

	return Result{EquityCurve: curve, Trades: trades, Stats: computeStats(trades, curve)}, nil
}

func (e *Executor) openPosition(sig types.Signal, lot float64, openTime time.Time) *openTrade {
	leg1 := &openLeg{side: sig.Side, leg: types.Leg1, entry: sig.Entry, stop: sig.Stop, target: sig.Target1R(), lot: lot, openTime: openTime}
	leg2 := &openLeg{side: sig.Side, leg: types.Leg2, entry: sig.Entry, stop: sig.Stop, target: sig.TargetMain, lot: lot, openTime: openTime}
	return &openTrade{signal: sig, leg1: leg1, leg2: leg2}
}

func (e *Executor) applyBreakeven(t *openTrade) {
	if t.leg2 == nil || t.breakevenApplied {
		return
	}
	t.leg2.stop = t.leg2.entry
	t.breakevenApplied = true
}

// checkFill applies the stop-then-target bar-level fill order of spec.md
// §4.8 step 3: for a BUY, a leg hits stop if low <= stop, else hits target
// if high >= target; symmetric for SELL.
func checkFill(leg *openLeg, bar types.Bar) (closed bool, price float64, reason ExitReason) {
	if leg.side == types.Buy {
		if bar.Low <= leg.stop {
			return true, leg.stop, ExitStop
		}
		if bar.High >= leg.target {
			return true, leg.target, ExitTarget
		}
		return false, 0, ""
	}
	if bar.High >= leg.stop {
		return true, leg.stop, ExitStop
	}
	if bar.Low <= leg.target {
		return true, leg.target, ExitTarget
	}
	return false, 0, ""
}

// realizePnL applies the same per-unit value formula as risk.CalcLotSize
// (tick-based for currency pairs, contract-size-based otherwise), minus
// the configured commission/spread/slippage.
func (e *Executor) realizePnL(leg *openLeg, exitPrice float64) float64 {
	valuePerUnit := e.pnlPerUnit()

	priceDiff := exitPrice - leg.entry
	if leg.side == types.Sell {
		priceDiff = leg.entry - exitPrice
	}

	gross := leg.lot * priceDiff * valuePerUnit
	frictionPrice := 2 * (e.cfg.Costs.SpreadPrice + e.cfg.Costs.SlippagePrice) // entry + exit
	friction := leg.lot*frictionPrice*valuePerUnit + e.cfg.Costs.CommissionPerLot*leg.lot
	return gross - friction
}

func (e *Executor) pnlPerUnit() float64 {
	if e.symInfo.IsCurrencyPair && e.symInfo.TickSize > 0 {
		return e.symInfo.TickValue / e.symInfo.TickSize
	}
	return e.symInfo.ContractSize
}

func newRecord(leg *openLeg, exitTime time.Time, exitPrice, pnl float64, reason ExitReason) TradeRecord {
	return TradeRecord{
		EntryTime:  leg.openTime,
		ExitTime:   exitTime,
		Side:       leg.side,
		Entry:      leg.entry,
		Exit:       exitPrice,
		Stop:       leg.stop,
		Target:     leg.target,
		PnL:        pnl,
		Leg:        leg.leg,
		ExitReason: reason,
	}
}
