package backtest

import "math"

// computeStats derives win-rate, profit factor, Sharpe, and max drawdown
// from a closed trade list and the sampled equity curve (spec.md §4.8).
func computeStats(trades []TradeRecord, curve []EquityPoint) Stats {
	var wins, losses int
	var grossProfit, grossLoss float64
	for _, t := range trades {
		switch {
		case t.PnL > 0:
			wins++
			grossProfit += t.PnL
		case t.PnL < 0:
			losses++
			grossLoss += -t.PnL
		}
	}

	total := len(trades)
	var winRate float64
	if total > 0 {
		winRate = float64(wins) / float64(total) * 100
	}

	var profitFactor float64
	switch {
	case grossLoss > 0:
		profitFactor = grossProfit / grossLoss
	case grossProfit > 0:
		profitFactor = math.Inf(1)
	}

	return Stats{
		TotalTrades:  total,
		Wins:         wins,
		Losses:       losses,
		WinRate:      winRate,
		ProfitFactor: profitFactor,
		Sharpe:       sharpeRatio(periodReturns(curve)),
		MaxDrawdown:  maxDrawdown(curve),
	}
}

func periodReturns(curve []EquityPoint) []float64 {
	if len(curve) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev == 0 {
			continue
		}
		returns = append(returns, (curve[i].Equity-prev)/prev)
	}
	return returns
}

// sharpeRatio is the unannualized mean-over-stddev of per-bar returns,
// scaled by sqrt(n) (spec.md §4.8 "aggregate stats ... Sharpe").
func sharpeRatio(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)
	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(float64(len(returns)))
}

// maxDrawdown returns the largest peak-to-trough decline of the equity
// curve, as a percentage.
func maxDrawdown(curve []EquityPoint) float64 {
	if len(curve) == 0 {
		return 0
	}
	peak := curve[0].Equity
	var maxDD float64
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			if dd := (peak - p.Equity) / peak * 100; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}
