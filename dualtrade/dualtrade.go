// Package dualtrade implements the Dual-Order Manager of spec.md §4.6: for
// every accepted signal it opens two paired positions with a shared entry
// and stop but different targets (1R and the configured R-multiple), tracks
// their lifecycle through the gateway, and promotes the survivor's stop to
// breakeven when the 1R leg closes.
package dualtrade

import (
	"context"
	"errors"
	"time"

	"go.uber.org/multierr"

	"github.com/kestrel-trading/engine/gateway"
	"github.com/kestrel-trading/engine/logger"
	"github.com/kestrel-trading/engine/metrics"
	"github.com/kestrel-trading/engine/repository"
	"github.com/kestrel-trading/engine/types"
)

// retryAttempts and retryBaseDelay implement the bounded exponential
// backoff of spec.md §4.6: "gateway Transient => bounded retry (e.g. 3
// attempts with exponential backoff) on modify/close".
const (
	retryAttempts  = 3
	retryBaseDelay = 200 * time.Millisecond
)

// Manager is the Dual-Order Manager for a single symbol. One Manager tracks
// at most one live DualTrade at a time (spec.md §3: "max_positions = 1 ...
// the design centre").
type Manager struct {
	gw       gateway.BrokerGateway
	log      logger.Logger
	strategy string
	symbol   string
	magic    int64
	repo     repository.Repository

	trade *types.DualTrade
}

// NewManager constructs a Manager bound to one symbol's gateway calls.
func NewManager(gw gateway.BrokerGateway, log logger.Logger, strategyName, symbol string, magic int64) *Manager {
	return &Manager{gw: gw, log: log, strategy: strategyName, symbol: symbol, magic: magic}
}

// SetRepository attaches the audit repository (spec.md §6). Persistence is
// optional: a Manager with no repository attached runs exactly as before.
func (m *Manager) SetRepository(repo repository.Repository) {
	m.repo = repo
}

// Current returns the in-flight DualTrade, or nil if none is open.
func (m *Manager) Current() *types.DualTrade { return m.trade }

// Open submits the paired leg1/leg2 orders for an accepted signal and lot
// size (spec.md §4.6 Open). If leg2 fails after leg1 succeeds, leg1 is
// rolled back (closed) and the combined error is returned via multierr.
func (m *Manager) Open(ctx context.Context, sig types.Signal, lot float64) (*types.DualTrade, error) {
	if m.trade != nil && !m.trade.IsTerminated() {
		return nil, errors.New("dualtrade: a trade is already open for this symbol")
	}

	target1R := sig.Target1R()
	comment1 := types.Comment(m.strategy, sig.Side, types.Leg1)
	pos1, err := m.gw.OpenMarket(ctx, m.symbol, sig.Side, lot, sig.Stop, target1R, m.magic, comment1)
	if err != nil {
		m.log.Error("dualtrade_open_leg1_failed", logger.String("symbol", m.symbol), logger.Err(err))
		m.persistRejection(ctx, sig, lot, comment1, err.Error())
		return nil, err
	}
	m.persistFilledOrder(ctx, pos1, sig)

	comment2 := types.Comment(m.strategy, sig.Side, types.Leg2)
	pos2, err := m.gw.OpenMarket(ctx, m.symbol, sig.Side, lot, sig.Stop, sig.TargetMain, m.magic, comment2)
	if err != nil {
		m.log.Error("dualtrade_open_leg2_failed_rolling_back", logger.String("symbol", m.symbol), logger.Err(err))
		m.persistRejection(ctx, sig, lot, comment2, err.Error())
		closeErr := m.gw.Close(ctx, pos1.Ticket)
		if closeErr != nil {
			m.log.Error("dualtrade_rollback_close_failed", logger.String("symbol", m.symbol), logger.Err(closeErr))
		} else {
			m.persistOrderStatus(ctx, pos1.Ticket, repository.OrderCancelled, "leg2 rejected, leg1 rolled back")
		}
		return nil, multierr.Combine(err, closeErr)
	}
	m.persistFilledOrder(ctx, pos2, sig)

	trade := &types.DualTrade{
		ID:         pos1.Ticket + ":" + pos2.Ticket,
		Symbol:     m.symbol,
		Signal:     sig,
		Leg1:       &pos1,
		Leg2:       &pos2,
		Volume:     lot,
		SharedStop: sig.Stop,
		EntryPrice: pos1.Entry,
		OpenTime:   time.Now().UTC(),
		State:      types.StateBothOpen,
	}
	m.trade = trade
	metrics.SetDualTradeState(m.symbol, string(trade.State))
	m.log.Info("dualtrade_opened", logger.String("symbol", m.symbol), logger.String("side", string(sig.Side)), logger.Float64("lot", lot))
	return trade, nil
}

// Poll reconciles the current DualTrade against gateway.Positions, applying
// breakeven promotion when leg1 closes first (spec.md §4.6 Poll).
// moveToBreakeven corresponds to the symbol's move_sl_to_breakeven config
// flag.
func (m *Manager) Poll(ctx context.Context, moveToBreakeven bool) error {
	if m.trade == nil || m.trade.IsTerminated() {
		return nil
	}
	open, err := m.gw.Positions(ctx, m.magic)
	if err != nil {
		return err
	}
	stillOpen := make(map[string]bool, len(open))
	for _, p := range open {
		stillOpen[p.Ticket] = true
	}

	t := m.trade
	leg1WasOpen := t.Leg1 != nil
	leg2WasOpen := t.Leg2 != nil
	if leg1WasOpen && !stillOpen[t.Leg1.Ticket] {
		m.persistClose(ctx, t.Leg1.Ticket)
		t.Leg1 = nil
	}
	if leg2WasOpen && !stillOpen[t.Leg2.Ticket] {
		m.persistClose(ctx, t.Leg2.Ticket)
		t.Leg2 = nil
	}

	leg1JustClosed := leg1WasOpen && t.Leg1 == nil
	leg2JustClosed := leg2WasOpen && t.Leg2 == nil

	switch {
	case t.IsTerminated():
		t.State = types.StateTerminated
		m.persistTradeCompletion(ctx, t)
	case leg1JustClosed && t.Leg2 != nil:
		if moveToBreakeven && !t.BreakevenApplied {
			if err := m.promoteBreakeven(ctx, t); err != nil {
				m.log.Error("dualtrade_breakeven_failed", logger.String("symbol", m.symbol), logger.Err(err))
			}
		}
		if t.BreakevenApplied {
			t.State = types.StateLeg2OnlyOpenBE
		} else {
			t.State = types.StateLeg2OnlyOpen
		}
	case leg2JustClosed && t.Leg1 != nil:
		t.State = types.StateLeg1OnlyOpen
	}
	metrics.SetDualTradeState(m.symbol, string(t.State))
	if t.IsTerminated() {
		m.log.Info("dualtrade_terminated", logger.String("symbol", m.symbol), logger.Any("breakeven_applied", t.BreakevenApplied))
	}
	return nil
}

// promoteBreakeven moves leg2's stop to the trade's entry price, retrying
// bounded on Transient errors (spec.md §4.6 failure semantics).
func (m *Manager) promoteBreakeven(ctx context.Context, t *types.DualTrade) error {
	err := retryOnTransient(ctx, func() error {
		return m.gw.ModifyStop(ctx, t.Leg2.Ticket, t.EntryPrice)
	})
	if err != nil {
		if gateway.AsKind(err) == gateway.KindRejected {
			// spec.md §4.6: mid-life Rejected on modify leaves the stop
			// unchanged; polling continues.
			return nil
		}
		return err
	}
	t.SharedStop = t.EntryPrice
	t.Leg2.Stop = t.EntryPrice
	t.BreakevenApplied = true
	metrics.BreakevenPromotionsTotal.WithLabelValues(m.symbol).Inc()
	return nil
}

// MaintainTrailing moves leg2's stop to newStop if it is strictly more
// protective than the current stop and not weaker than any breakeven
// promotion already applied (spec.md §4.6 MaintainTrailing).
func (m *Manager) MaintainTrailing(ctx context.Context, newStop float64) error {
	t := m.trade
	if t == nil || t.Leg2 == nil {
		return nil
	}
	current := t.Leg2.Stop
	var moreProtective bool
	if t.Signal.Side == types.Buy {
		moreProtective = newStop > current
	} else {
		moreProtective = newStop < current
	}
	if !moreProtective {
		return nil
	}
	if t.BreakevenApplied {
		if t.Signal.Side == types.Buy && newStop < t.EntryPrice {
			return nil
		}
		if t.Signal.Side == types.Sell && newStop > t.EntryPrice {
			return nil
		}
	}
	err := retryOnTransient(ctx, func() error {
		return m.gw.ModifyStop(ctx, t.Leg2.Ticket, newStop)
	})
	if err != nil {
		if gateway.AsKind(err) == gateway.KindRejected {
			return nil
		}
		return err
	}
	t.Leg2.Stop = newStop
	t.SharedStop = newStop
	return nil
}

// ForceClose closes any open legs via the gateway (spec.md §4.6
// ForceClose), used on shutdown or fatal error.
func (m *Manager) ForceClose(ctx context.Context) error {
	if m.trade == nil {
		return nil
	}
	var errs error
	if m.trade.Leg1 != nil {
		if err := m.gw.Close(ctx, m.trade.Leg1.Ticket); err != nil {
			errs = multierr.Append(errs, err)
		} else {
			m.persistClose(ctx, m.trade.Leg1.Ticket)
			m.trade.Leg1 = nil
		}
	}
	if m.trade.Leg2 != nil {
		if err := m.gw.Close(ctx, m.trade.Leg2.Ticket); err != nil {
			errs = multierr.Append(errs, err)
		} else {
			m.persistClose(ctx, m.trade.Leg2.Ticket)
			m.trade.Leg2 = nil
		}
	}
	if m.trade.IsTerminated() {
		m.trade.State = types.StateTerminated
		metrics.SetDualTradeState(m.symbol, string(m.trade.State))
		m.persistTradeCompletion(ctx, m.trade)
	}
	return errs
}

// persistFilledOrder records a successfully opened leg as a FILLED order
// plus its fill and open position rows (spec.md §6).
func (m *Manager) persistFilledOrder(ctx context.Context, pos types.Position, sig types.Signal) {
	if m.repo == nil {
		return
	}
	order := repository.Order{
		OrderID: pos.Ticket, Symbol: m.symbol, Side: sig.Side, Volume: pos.Volume,
		Price: pos.Entry, Stop: pos.Stop, Target: pos.Target, MagicNumber: m.magic,
		Comment: pos.Comment, Status: repository.OrderFilled,
	}
	if _, err := m.repo.InsertOrder(ctx, order); err != nil {
		m.log.Error("repository_insert_order_failed", logger.String("symbol", m.symbol), logger.Err(err))
		return
	}
	fill := repository.Fill{FillID: pos.Ticket + ":fill", OrderID: pos.Ticket, Price: pos.Entry, Volume: pos.Volume}
	if _, err := m.repo.InsertFill(ctx, fill); err != nil {
		m.log.Error("repository_insert_fill_failed", logger.String("symbol", m.symbol), logger.Err(err))
	}
	posRecord := repository.PositionRecord{
		PosID: pos.Ticket, Symbol: m.symbol, Side: sig.Side, Volume: pos.Volume,
		Entry: pos.Entry, Stop: pos.Stop, Target: pos.Target, OpenedAt: pos.OpenTime,
	}
	if _, err := m.repo.UpsertPosition(ctx, posRecord); err != nil {
		m.log.Error("repository_upsert_position_failed", logger.String("symbol", m.symbol), logger.Err(err))
	}
}

// persistRejection records a leg that the gateway refused to open as a
// REJECTED order with its rejection_reason (spec.md §6).
func (m *Manager) persistRejection(ctx context.Context, sig types.Signal, lot float64, comment, reason string) {
	if m.repo == nil {
		return
	}
	order := repository.Order{
		OrderID: repository.NewBusinessKey(), Symbol: m.symbol, Side: sig.Side, Volume: lot,
		Price: sig.Entry, Stop: sig.Stop, MagicNumber: m.magic, Comment: comment,
		Status: repository.OrderRejected, RejectionReason: reason,
	}
	if _, err := m.repo.InsertOrder(ctx, order); err != nil {
		m.log.Error("repository_insert_order_failed", logger.String("symbol", m.symbol), logger.Err(err))
	}
}

// persistOrderStatus records a post-hoc status change, e.g. leg1 cancelled
// after a leg2 rollback.
func (m *Manager) persistOrderStatus(ctx context.Context, orderID string, status repository.OrderStatus, reason string) {
	if m.repo == nil {
		return
	}
	if err := m.repo.UpdateOrderStatus(ctx, orderID, status, reason); err != nil {
		m.log.Error("repository_update_order_failed", logger.String("symbol", m.symbol), logger.Err(err))
	}
}

// persistClose records a position's close time once its leg has vanished
// from the gateway's open-position list.
func (m *Manager) persistClose(ctx context.Context, posID string) {
	if m.repo == nil {
		return
	}
	if err := m.repo.ClosePosition(ctx, posID, time.Now().UTC()); err != nil {
		m.log.Error("repository_close_position_failed", logger.String("symbol", m.symbol), logger.Err(err))
	}
}

// persistTradeCompletion records the aggregate trade row once both legs
// have closed. The exit price is approximated from the latest quote, since
// the gateway's Positions view drops a ticket's last traded price once it
// closes.
func (m *Manager) persistTradeCompletion(ctx context.Context, t *types.DualTrade) {
	if m.repo == nil {
		return
	}
	tick, err := m.gw.Tick(ctx, m.symbol)
	if err != nil {
		m.log.Error("repository_trade_tick_failed", logger.String("symbol", m.symbol), logger.Err(err))
		return
	}
	direction := repository.Long
	exitPrice := tick.Bid
	pnlPerUnit := exitPrice - t.EntryPrice
	if t.Signal.Side == types.Sell {
		direction = repository.Short
		exitPrice = tick.Ask
		pnlPerUnit = t.EntryPrice - exitPrice
	}
	trade := repository.Trade{
		TradeID: repository.NewBusinessKey(), Symbol: m.symbol, Direction: direction,
		Volume: t.Volume, EntryPrice: t.EntryPrice, ExitPrice: exitPrice,
		PnL: pnlPerUnit * t.Volume, OpenedAt: t.OpenTime, ClosedAt: time.Now().UTC(),
	}
	if _, err := m.repo.InsertTrade(ctx, trade); err != nil {
		m.log.Error("repository_insert_trade_failed", logger.String("symbol", m.symbol), logger.Err(err))
	}
}

// retryOnTransient retries fn up to retryAttempts times with exponential
// backoff while it returns a gateway.KindTransient error.
func retryOnTransient(ctx context.Context, fn func() error) error {
	var err error
	delay := retryBaseDelay
	for attempt := 0; attempt < retryAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if gateway.AsKind(err) != gateway.KindTransient {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
