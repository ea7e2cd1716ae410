package risk_test

import (
	"math"
	"testing"

	"github.com/kestrel-trading/engine/risk"
)

func eurusd() risk.SymbolInfo {
	return risk.SymbolInfo{
		ContractSize:   100000,
		LotMin:         0.01,
		LotMax:         50,
		LotStep:        0.01,
		TickSize:       0.00001,
		TickValue:      1,
		IsCurrencyPair: true,
	}
}

func TestCalcLotSizeCurrencyPair(t *testing.T) {
	// equity 10000, risk 0.5% -> risk_amount 50. entry 1.10000 stop 1.09250
	// -> d = 0.00750, ticks_at_risk = 750, risk_per_lot = 750.
	// raw lot = 50/750 = 0.0666... -> snapped to step 0.01 -> 0.06
	res := risk.CalcLotSize(10000, 0.5, 1.10000, 1.09250, eurusd(), false)
	if res.Rejected {
		t.Fatalf("expected accepted sizing, got rejected: %v", res.RejectReason)
	}
	if math.Abs(res.Lot-0.06) > 1e-9 {
		t.Fatalf("expected lot 0.06, got %f", res.Lot)
	}
}

func TestCalcLotSizeLinearQuote(t *testing.T) {
	info := risk.SymbolInfo{ContractSize: 1, LotMin: 0.001, LotMax: 100, LotStep: 0.001, IsCurrencyPair: false}
	// equity 10000, risk 1% -> risk_amount 100. entry 50000 stop 49000 -> d=1000
	// risk_per_lot = 1000*1 = 1000, raw lot = 0.1
	res := risk.CalcLotSize(10000, 1, 50000, 49000, info, false)
	if res.Rejected {
		t.Fatalf("expected accepted sizing, got rejected: %v", res.RejectReason)
	}
	if math.Abs(res.Lot-0.1) > 1e-9 {
		t.Fatalf("expected lot 0.1, got %f", res.Lot)
	}
}

func TestCalcLotSizeRejectsBalanceTooSmall(t *testing.T) {
	// Tiny equity forces the snapped lot to floor at lot_min while implying
	// far more than 10% over the target risk.
	res := risk.CalcLotSize(10, 0.5, 1.10000, 1.09250, eurusd(), false)
	if !res.Rejected {
		t.Fatalf("expected rejection for undersized balance, got lot %f", res.Lot)
	}
	if res.RejectReason != risk.RejectBalanceTooSmall {
		t.Fatalf("expected BalanceTooSmall, got %v", res.RejectReason)
	}
}

func TestCalcLotSizeAllowMinOverride(t *testing.T) {
	res := risk.CalcLotSize(10, 0.5, 1.10000, 1.09250, eurusd(), true)
	if res.Rejected {
		t.Fatalf("expected override to accept undersized balance, got rejected")
	}
	if res.Lot != eurusd().LotMin {
		t.Fatalf("expected lot_min %f, got %f", eurusd().LotMin, res.Lot)
	}
}

func TestCalcLotSizeClampsToLotMax(t *testing.T) {
	info := eurusd()
	info.LotMax = 0.05
	res := risk.CalcLotSize(1000000, 5, 1.10000, 1.09250, info, false)
	if res.Lot != info.LotMax {
		t.Fatalf("expected lot clamped to lot_max %f, got %f", info.LotMax, res.Lot)
	}
}

func TestCalcLotSizeRejectsZeroStopDistance(t *testing.T) {
	res := risk.CalcLotSize(10000, 0.5, 1.10000, 1.10000, eurusd(), false)
	if !res.Rejected {
		t.Fatalf("expected rejection for zero stop distance")
	}
}
