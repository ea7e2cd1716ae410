// Package worker implements the Per-Symbol Worker and Supervisor of
// spec.md §4.7/§5: one cooperative loop per configured symbol, fanned out
// and cancelled together by a top-level supervisor.
package worker

import (
	"context"
	"time"

	"github.com/kestrel-trading/engine/config"
	"github.com/kestrel-trading/engine/dualtrade"
	"github.com/kestrel-trading/engine/gateway"
	"github.com/kestrel-trading/engine/logger"
	"github.com/kestrel-trading/engine/metrics"
	"github.com/kestrel-trading/engine/repository"
	"github.com/kestrel-trading/engine/risk"
	"github.com/kestrel-trading/engine/strategy"
	"github.com/kestrel-trading/engine/types"
)

// timeframeDuration maps a Timeframe to its wall-clock period, used for
// staleness detection (spec.md §7 DataStale).
func timeframeDuration(tf types.Timeframe) time.Duration {
	switch tf {
	case types.M1:
		return time.Minute
	case types.M5:
		return 5 * time.Minute
	case types.M15:
		return 15 * time.Minute
	case types.M30:
		return 30 * time.Minute
	case types.H1:
		return time.Hour
	case types.H4:
		return 4 * time.Hour
	case types.D1:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

// PerSymbolWorker drives one symbol's trading loop (spec.md §4.7).
type PerSymbolWorker struct {
	gw       gateway.BrokerGateway
	strat    strategy.Strategy
	dm       *dualtrade.Manager
	base     config.StrategyConfigBase
	limits   *Limits
	log      logger.Logger
	dryRun   bool
	barCount int
	repo     repository.Repository
}

// NewPerSymbolWorker constructs a worker. barCount is the number of latest
// bars fetched each cycle, sized by the caller to the strategy's lookback
// plus warmup (spec.md §4.7 step 1).
func NewPerSymbolWorker(gw gateway.BrokerGateway, strat strategy.Strategy, dm *dualtrade.Manager, base config.StrategyConfigBase, limits *Limits, log logger.Logger, barCount int, dryRun bool) *PerSymbolWorker {
	return &PerSymbolWorker{gw: gw, strat: strat, dm: dm, base: base, limits: limits, log: log, dryRun: dryRun, barCount: barCount}
}

// SetRepository attaches the audit repository (spec.md §6): account
// snapshots and sizing rejections are persisted once one is set. Optional —
// a worker with no repository runs exactly as before.
func (w *PerSymbolWorker) SetRepository(repo repository.Repository) {
	w.repo = repo
}

// RunCycle executes exactly one worker iteration (spec.md §4.7 steps 1-4).
func (w *PerSymbolWorker) RunCycle(ctx context.Context) error {
	metrics.WorkerCyclesTotal.WithLabelValues(w.base.Symbol).Inc()

	bars, err := w.gw.LatestBars(ctx, w.base.Symbol, w.base.Timeframe, w.barCount)
	if err != nil {
		w.recordCycleError(KindGatewayTransient)
		return NewError(KindGatewayTransient, "latest_bars", err)
	}
	if len(bars) == 0 {
		w.recordCycleError(KindDataStale)
		return NewError(KindDataStale, "latest_bars", nil)
	}
	if time.Since(bars[len(bars)-1].Time) > 2*timeframeDuration(w.base.Timeframe) {
		w.log.Warn("data_stale", logger.String("symbol", w.base.Symbol), logger.Any("last_bar", bars[len(bars)-1].Time))
		w.recordCycleError(KindDataStale)
		return nil
	}

	prev := w.dm.Current()
	wasOpen := prev != nil && !prev.IsTerminated()
	if err := w.dm.Poll(ctx, w.base.MoveSLToBreakeven); err != nil {
		w.recordCycleError(KindGatewayTransient)
		return NewError(KindGatewayTransient, "dualtrade_poll", err)
	}
	if trade := w.dm.Current(); wasOpen && trade != nil && trade.IsTerminated() {
		w.limits.RecordClose(w.base.Symbol)
		w.notifyTradeClosed(trade)
	}

	if trade := w.dm.Current(); trade != nil && !trade.IsTerminated() {
		if w.base.UseTrailing {
			w.maintainTrailing(ctx, bars, trade)
		}
		w.log.Info("worker_cycle_skipped_trade_open", logger.String("symbol", w.base.Symbol))
		return nil
	}
	if !w.limits.CanOpen(w.base.Symbol) {
		w.log.Info("worker_cycle_skipped_limits", logger.String("symbol", w.base.Symbol))
		return nil
	}

	sig, ok := w.strat.GenerateSignal(bars)
	if !ok {
		return nil
	}
	if w.notifySignalEmitted(sig) {
		w.log.Info("signal_vetoed_by_observer", logger.String("symbol", w.base.Symbol))
		return nil
	}

	account, err := w.gw.Account(ctx)
	if err != nil {
		w.recordCycleError(KindGatewayTransient)
		return NewError(KindGatewayTransient, "account", err)
	}
	w.limits.ObserveEquity(account.Equity)
	w.persistAccountSnapshot(ctx, account)
	symInfo, err := w.gw.SymbolInfo(ctx, w.base.Symbol)
	if err != nil {
		w.recordCycleError(KindGatewayTransient)
		return NewError(KindGatewayTransient, "symbol_info", err)
	}

	sizing := risk.CalcLotSize(account.Equity, w.base.RiskPercent, sig.Entry, sig.Stop, risk.SymbolInfo{
		ContractSize:   symInfo.ContractSize,
		LotMin:         symInfo.LotMin,
		LotMax:         symInfo.LotMax,
		LotStep:        symInfo.LotStep,
		TickSize:       symInfo.TickSize,
		TickValue:      symInfo.TickValue,
		IsCurrencyPair: symInfo.IsCurrencyPair,
	}, w.base.AllowMinSizeOverride)

	if sizing.Rejected {
		metrics.RejectionsTotal.WithLabelValues(w.base.Symbol, string(sizing.RejectReason)).Inc()
		w.log.Info("signal_rejected", logger.String("symbol", w.base.Symbol), logger.String("reason", string(sizing.RejectReason)))
		w.persistSizingRejection(ctx, sig, string(sizing.RejectReason))
		return nil
	}

	if w.dryRun {
		w.log.Info("dry_run_signal", logger.String("symbol", w.base.Symbol), logger.String("side", string(sig.Side)), logger.Float64("lot", sizing.Lot))
		return nil
	}

	trade, err := w.dm.Open(ctx, sig, sizing.Lot)
	if err != nil {
		kind := KindGatewayRejected
		if gateway.AsKind(err) == gateway.KindTransient {
			kind = KindGatewayTransient
		}
		w.recordCycleError(kind)
		return NewError(kind, "dualtrade_open", err)
	}
	w.limits.RecordOpen(w.base.Symbol)
	w.notifyTradeOpened(trade)
	return nil
}

func (w *PerSymbolWorker) recordCycleError(kind Kind) {
	metrics.WorkerCycleErrorsTotal.WithLabelValues(w.base.Symbol, string(kind)).Inc()
}

// persistAccountSnapshot records one account_history row per cycle that
// reaches the sizing step (spec.md §5: "Account state reads are
// snapshots").
func (w *PerSymbolWorker) persistAccountSnapshot(ctx context.Context, account types.Account) {
	if w.repo == nil {
		return
	}
	snap := repository.AccountSnapshot{
		RecordedAt: time.Now().UTC(), Balance: account.Balance,
		Equity: account.Equity, MarginFree: account.MarginFree,
	}
	if _, err := w.repo.InsertAccountSnapshot(ctx, snap); err != nil {
		w.log.Error("repository_account_snapshot_failed", logger.String("symbol", w.base.Symbol), logger.Err(err))
	}
}

// persistSizingRejection records a REJECTED orders row when Risk & Sizing
// refuses a signal before any gateway order is attempted (spec.md §6:
// "Trade-related failures also produce a row in orders ... rejection_reason").
func (w *PerSymbolWorker) persistSizingRejection(ctx context.Context, sig types.Signal, reason string) {
	if w.repo == nil {
		return
	}
	order := repository.Order{
		OrderID: repository.NewBusinessKey(), Symbol: w.base.Symbol, Side: sig.Side,
		Price: sig.Entry, Stop: sig.Stop, Target: sig.TargetMain, MagicNumber: w.base.MagicNumber,
		Status: repository.OrderRejected, RejectionReason: reason,
	}
	if _, err := w.repo.InsertOrder(ctx, order); err != nil {
		w.log.Error("repository_insert_order_failed", logger.String("symbol", w.base.Symbol), logger.Err(err))
	}
}

// notifySignalEmitted invokes strategy.Observer.OnSignalEmitted when the
// strategy implements it, reporting whether the signal was vetoed. A
// strategy that doesn't implement Observer never vetoes.
func (w *PerSymbolWorker) notifySignalEmitted(sig types.Signal) bool {
	obs, ok := w.strat.(strategy.Observer)
	if !ok {
		return false
	}
	return obs.OnSignalEmitted(sig)
}

// notifyTradeOpened invokes strategy.Observer.OnTradeOpened when the
// strategy implements it.
func (w *PerSymbolWorker) notifyTradeOpened(trade *types.DualTrade) {
	if obs, ok := w.strat.(strategy.Observer); ok {
		obs.OnTradeOpened(trade)
	}
}

// notifyTradeClosed invokes strategy.Observer.OnTradeClosed when the
// strategy implements it.
func (w *PerSymbolWorker) notifyTradeClosed(trade *types.DualTrade) {
	if obs, ok := w.strat.(strategy.Observer); ok {
		obs.OnTradeClosed(trade)
	}
}

// maintainTrailing applies the strategy's trailing-stop rule, if it has
// one, to the currently open trade (spec.md §4.7 step 2). Strategies that
// don't implement strategy.TrailingStrategy simply never trail.
func (w *PerSymbolWorker) maintainTrailing(ctx context.Context, bars []types.Bar, trade *types.DualTrade) {
	trailer, ok := w.strat.(strategy.TrailingStrategy)
	if !ok {
		return
	}
	newStop, moved := trailer.GenerateTrailingStop(bars, trade.Signal.Side, trade.EntryPrice, trade.SharedStop, trade.BreakevenApplied)
	if !moved {
		return
	}
	if err := w.dm.MaintainTrailing(ctx, newStop); err != nil {
		w.log.Error("trailing_stop_failed", logger.String("symbol", w.base.Symbol), logger.Err(err))
	}
}

// Run drives the scheduled loop of spec.md §4.7/§5: a cycle every
// CycleSeconds, exiting cleanly on context cancellation. Because each tick
// is handled synchronously, a cycle that overruns its period simply
// absorbs the ticker's dropped ticks in the interim (time.Ticker never
// queues more than one pending tick) — satisfying "the next tick is
// skipped if the previous is still running; no queuing" without extra
// bookkeeping.
func (w *PerSymbolWorker) Run(ctx context.Context, flattenOnShutdown bool) {
	period := time.Duration(w.base.CycleSeconds) * time.Second
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if flattenOnShutdown {
				closeCtx, cancel := context.WithTimeout(context.Background(), gateway.DefaultWriteDeadline)
				if err := w.dm.ForceClose(closeCtx); err != nil {
					w.log.Error("shutdown_force_close_failed", logger.String("symbol", w.base.Symbol), logger.Err(err))
				}
				cancel()
			} else if trade := w.dm.Current(); trade != nil && !trade.IsTerminated() {
				w.log.Info("shutdown_leaving_positions_open", logger.String("symbol", w.base.Symbol))
			}
			return
		case <-ticker.C:
			start := time.Now()
			if err := w.RunCycle(ctx); err != nil {
				w.log.Error("worker_cycle_failed", logger.String("symbol", w.base.Symbol), logger.Err(err))
			}
			if elapsed := time.Since(start); elapsed > period {
				w.log.Warn("worker_cycle_overran", logger.String("symbol", w.base.Symbol), logger.Duration("elapsed", elapsed))
			}
		}
	}
}
