package strategy

import (
	"github.com/kestrel-trading/engine/config"
	"github.com/kestrel-trading/engine/logger"
	"github.com/kestrel-trading/engine/metrics"
	"github.com/kestrel-trading/engine/types"
)

// BaseStrategy bundles the dependencies and helpers shared by every
// concrete strategy: logging, metrics, and the base config fields. It owns
// no executor reference (spec.md §9 redesign: strategies never submit
// orders directly).
type BaseStrategy struct {
	Log    logger.Logger
	Base   config.StrategyConfigBase
	name   string
	prices *priceBuffer
}

// newBaseStrategy validates the base config and wires logging/metrics; all
// concrete strategies call this from their own constructors.
func newBaseStrategy(name string, base config.StrategyConfigBase, log logger.Logger) (*BaseStrategy, error) {
	if err := base.Validate(); err != nil {
		return nil, err
	}
	return &BaseStrategy{
		Log:    log,
		Base:   base,
		name:   name,
		prices: newPriceBuffer(128),
	}, nil
}

// Name identifies the strategy for logging, metrics, and order comments.
func (b *BaseStrategy) Name() string { return b.name }

// recordPrice feeds the rolling price buffer used for lightweight internal
// trend/volatility bookkeeping shared by both concrete strategies.
func (b *BaseStrategy) recordPrice(close float64) {
	b.prices.Add(close)
}

// hasHistory reports whether enough closes have accumulated to evaluate the
// rolling-window helpers (priceBuffer.Trend/Slope/Volatility).
func (b *BaseStrategy) hasHistory(minBars int) bool {
	return b.prices.Len() >= minBars
}

// priceTrendConfirms reports whether the rolling close-price buffer's own
// trend read agrees with side. This is a cheap, independent check of the
// last few closes' direction, separate from whatever swing/indicator logic
// a concrete strategy uses to decide trend; a strategy can fold it in as an
// extra confluence vote. Returns false before enough closes have
// accumulated.
func (b *BaseStrategy) priceTrendConfirms(side types.Side) bool {
	if !b.hasHistory(8) {
		return false
	}
	t := b.prices.Trend()
	if side == types.Buy {
		return t > 0
	}
	return t < 0
}

// priceMomentum exposes the buffer's short-window slope and volatility once
// enough closes have accumulated, for strategies that want to nudge
// confidence off independent momentum rather than recompute it from the bar
// slice.
func (b *BaseStrategy) priceMomentum() (slope, volatility float64, ok bool) {
	if !b.hasHistory(8) {
		return 0, 0, false
	}
	return b.prices.Slope(), b.prices.Volatility(), true
}

// logSignal emits a structured log line when a strategy emits a signal,
// and increments the shared signals-emitted counter.
func (b *BaseStrategy) logSignal(symbol, side, reason string, entry, stop, target float64) {
	b.Log.Info("signal_emitted",
		logger.String("strategy", b.name),
		logger.String("symbol", symbol),
		logger.String("side", side),
		logger.String("reason", reason),
		logger.Float64("entry", entry),
		logger.Float64("stop", stop),
		logger.Float64("target", target),
	)
	metrics.SignalsEmitted.WithLabelValues(b.name, symbol, side).Inc()
}

// logSkip emits a debug-level-equivalent info log when a bar is evaluated
// but produces no signal, tagged with why.
func (b *BaseStrategy) logSkip(symbol, reason string) {
	b.Log.Info("signal_skipped", logger.String("strategy", b.name), logger.String("symbol", symbol), logger.String("reason", reason))
}

// OnSignalEmitted implements strategy.Observer with the default policy:
// log the event, never veto. A concrete strategy with a real veto rule
// shadows this by defining its own OnSignalEmitted.
func (b *BaseStrategy) OnSignalEmitted(sig types.Signal) bool {
	b.Log.Info("observer_signal_emitted", logger.String("strategy", b.name), logger.String("symbol", sig.Symbol), logger.String("side", string(sig.Side)))
	return false
}

// OnTradeOpened implements strategy.Observer with a log-only default.
func (b *BaseStrategy) OnTradeOpened(trade *types.DualTrade) {
	b.Log.Info("observer_trade_opened", logger.String("strategy", b.name), logger.String("symbol", trade.Symbol), logger.String("trade_id", trade.ID))
}

// OnTradeClosed implements strategy.Observer with a log-only default.
func (b *BaseStrategy) OnTradeClosed(trade *types.DualTrade) {
	b.Log.Info("observer_trade_closed", logger.String("strategy", b.name), logger.String("symbol", trade.Symbol), logger.String("trade_id", trade.ID))
}
