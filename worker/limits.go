package worker

import "sync"

// Limits tracks the global counters shared across every symbol's worker
// (spec.md §5: "Global counters ... updated under a mutex or via an
// actor-style aggregator; reads use a snapshot").
type Limits struct {
	mu sync.Mutex

	maxPositionsPerSymbol int
	maxTotalPositions     int
	maxDailyLossPercent   float64

	startOfDayEquity float64
	openPerSymbol    map[string]int
	totalOpen        int
	haltedForDay     bool
}

// NewLimits builds a Limits tracker seeded with the account equity observed
// at startup (used as the daily-loss baseline).
func NewLimits(maxPositionsPerSymbol, maxTotalPositions int, maxDailyLossPercent, startEquity float64) *Limits {
	return &Limits{
		maxPositionsPerSymbol: maxPositionsPerSymbol,
		maxTotalPositions:     maxTotalPositions,
		maxDailyLossPercent:   maxDailyLossPercent,
		startOfDayEquity:      startEquity,
		openPerSymbol:         make(map[string]int),
	}
}

// CanOpen reports whether a new DualTrade may open for symbol given the
// current snapshot of counters.
func (l *Limits) CanOpen(symbol string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.haltedForDay {
		return false
	}
	if l.openPerSymbol[symbol] >= l.maxPositionsPerSymbol {
		return false
	}
	return l.totalOpen < l.maxTotalPositions
}

// RecordOpen increments the per-symbol and total open-position counters.
func (l *Limits) RecordOpen(symbol string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.openPerSymbol[symbol]++
	l.totalOpen++
}

// RecordClose decrements the counters when a DualTrade terminates.
func (l *Limits) RecordClose(symbol string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.openPerSymbol[symbol] > 0 {
		l.openPerSymbol[symbol]--
	}
	if l.totalOpen > 0 {
		l.totalOpen--
	}
}

// ObserveEquity checks current equity against the daily-loss threshold
// (spec.md §6: "max_daily_loss_percent ... halts new entries for the UTC
// day"). Once halted, new entries stay halted until ResetDay is called.
func (l *Limits) ObserveEquity(currentEquity float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.startOfDayEquity <= 0 {
		return
	}
	drawdownPct := (l.startOfDayEquity - currentEquity) / l.startOfDayEquity * 100
	if drawdownPct >= l.maxDailyLossPercent {
		l.haltedForDay = true
	}
}

// ResetDay clears the daily-loss halt and rebaselines start-of-day equity.
// No package in the engine calls it and Limits does not track the UTC date
// itself, so a halt lasts for the rest of the process's run.
func (l *Limits) ResetDay(equity float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.startOfDayEquity = equity
	l.haltedForDay = false
}

// HaltedForDay reports the current daily-loss halt state.
func (l *Limits) HaltedForDay() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.haltedForDay
}
