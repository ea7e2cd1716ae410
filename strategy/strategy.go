// Package strategy holds the strategy-agnostic core plus the two concrete
// strategy variants: Adaptive-Trend (clustering-driven) and Structural
// (price-action driven). Strategies are pure signal generators; order
// submission and lifecycle live in the dualtrade package (spec.md §9
// redesign guidance decouples "decide" from "act" so backtesting and live
// trading share the same strategy code).
package strategy

import "github.com/kestrel-trading/engine/types"

// Strategy generates candidate signals from bar history. Implementations
// must be side-effect-free with respect to order placement: GenerateSignal
// only inspects bars and returns an optional Signal.
type Strategy interface {
	// Name identifies the strategy for logging, metrics, and comments.
	Name() string
	// GenerateSignal evaluates the latest closed bar and returns a signal
	// if one fires, or ok=false if nothing qualifies this bar.
	GenerateSignal(bars []types.Bar) (sig types.Signal, ok bool)
}

// Observer receives lifecycle notifications from worker.PerSymbolWorker so a
// strategy can maintain internal state or advisorially veto a signal without
// owning order submission itself (spec.md §9 redesign guidance). A Strategy
// need not implement Observer — the worker only calls it via a type
// assertion — but AdaptiveTrend and Structural both get BaseStrategy's
// default (log-and-never-veto) implementation through embedding.
type Observer interface {
	// OnSignalEmitted runs once a strategy has emitted a signal, before
	// sizing. veto=true suppresses the signal for this cycle.
	OnSignalEmitted(sig types.Signal) (veto bool)
	// OnTradeOpened runs once dualtrade.Manager has successfully opened
	// both legs for a signal this strategy produced.
	OnTradeOpened(trade *types.DualTrade)
	// OnTradeClosed runs once both legs of a trade have terminated.
	OnTradeClosed(trade *types.DualTrade)
}

// TrailingStrategy is implemented by strategies that can recompute a
// trailing stop from the latest bars while a trade is open (spec.md §4.3
// step 8 / §4.7 step 2). ok is false when the strategy doesn't trail
// (use_trailing unset) or hasn't moved the stop this bar.
type TrailingStrategy interface {
	GenerateTrailingStop(bars []types.Bar, side types.Side, entry, currentStop float64, breakevenApplied bool) (newStop float64, ok bool)
}
