// Package metrics exposes the engine's Prometheus instrumentation:
// worker-cycle counters, signal/order counters, rejection counters by
// kind, dual-trade state gauges, and breakeven-promotion counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	OrdersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_orders_submitted_total",
			Help: "Total number of orders submitted, by strategy.",
		},
		[]string{"strategy"},
	)

	SignalsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_signals_emitted_total",
			Help: "Total number of signals emitted, by strategy, symbol, and side.",
		},
		[]string{"strategy", "symbol", "side"},
	)

	RejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_rejections_total",
			Help: "Total number of signals/orders rejected, by symbol and reject kind.",
		},
		[]string{"symbol", "kind"},
	)

	WorkerCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_worker_cycles_total",
			Help: "Total number of per-symbol worker cycles executed.",
		},
		[]string{"symbol"},
	)

	WorkerCycleErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_worker_cycle_errors_total",
			Help: "Total number of per-symbol worker cycles that returned an error, by kind.",
		},
		[]string{"symbol", "kind"},
	)

	BreakevenPromotionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_breakeven_promotions_total",
			Help: "Total number of times a DualTrade's shared stop was promoted to breakeven.",
		},
		[]string{"symbol"},
	)

	PositionsOpen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kestrel_positions_open",
			Help: "Current number of open legs per symbol.",
		},
		[]string{"symbol"},
	)

	DualTradeState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kestrel_dual_trade_state",
			Help: "1 if the symbol's DualTrade is currently in the given state, else 0.",
		},
		[]string{"symbol", "state"},
	)

	EquityGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kestrel_equity",
			Help: "Current account equity as last observed from the gateway.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		OrdersSubmitted,
		SignalsEmitted,
		RejectionsTotal,
		WorkerCyclesTotal,
		WorkerCycleErrorsTotal,
		BreakevenPromotionsTotal,
		PositionsOpen,
		DualTradeState,
		EquityGauge,
	)
}

// SetDualTradeState zeroes every other known state for the symbol and sets
// the active one to 1, so the gauge vector always reflects exactly one
// active state per symbol (spec.md §4.6 state machine).
func SetDualTradeState(symbol, active string) {
	for _, s := range []string{"BothOpen", "Leg1OnlyOpen", "Leg2OnlyOpen", "Leg2OnlyOpenBE", "Terminated"} {
		v := 0.0
		if s == active {
			v = 1.0
		}
		DualTradeState.WithLabelValues(symbol, s).Set(v)
	}
}
