package indicator_test

import (
	"math"
	"testing"
	"time"

	"github.com/kestrel-trading/engine/indicator"
	"github.com/kestrel-trading/engine/types"
)

func makeBars(closes []float64) []types.Bar {
	bars := make([]types.Bar, len(closes))
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	prev := closes[0]
	for i, c := range closes {
		high := math.Max(c, prev) + 0.2
		low := math.Min(c, prev) - 0.2
		bars[i] = types.Bar{
			Time: t.Add(time.Duration(i) * time.Minute),
			Open: prev, High: high, Low: low, Close: c,
			TickVolume: 100,
		}
		prev = c
	}
	return bars
}

func TestATRNaNUntilPeriod(t *testing.T) {
	bars := makeBars([]float64{1, 1.1, 1.2, 1.15, 1.3, 1.25, 1.4})
	atr := indicator.ATR(bars, 5)
	for i := 0; i < 4; i++ {
		if !math.IsNaN(atr[i]) {
			t.Fatalf("expected NaN at index %d, got %f", i, atr[i])
		}
	}
	if math.IsNaN(atr[4]) {
		t.Fatalf("expected a value at index 4")
	}
}

func TestSMAMatchesManualAverage(t *testing.T) {
	bars := makeBars([]float64{1, 2, 3, 4, 5})
	sma := indicator.SMA(bars, 3, indicator.Close)
	want := (3.0 + 4.0 + 5.0) / 3.0
	if math.Abs(sma[4]-want) > 1e-9 {
		t.Fatalf("expected %f, got %f", want, sma[4])
	}
}

func TestEMASeedsFromSMA(t *testing.T) {
	bars := makeBars([]float64{1, 2, 3, 4, 5, 6})
	ema := indicator.EMA(bars, 3, indicator.Close)
	sma := indicator.SMA(bars, 3, indicator.Close)
	if math.Abs(ema[2]-sma[2]) > 1e-9 {
		t.Fatalf("expected EMA to seed with SMA at period-1, got %f vs %f", ema[2], sma[2])
	}
}

func TestSuperTrendTrendIsPlusOrMinusOne(t *testing.T) {
	closes := make([]float64, 80)
	v := 1.0
	for i := range closes {
		if i%10 < 5 {
			v += 0.01
		} else {
			v -= 0.01
		}
		closes[i] = v
	}
	bars := makeBars(closes)
	st := indicator.SuperTrend(bars, 3.0, 10)
	for i, p := range st {
		if p.Trend != 1 && p.Trend != -1 {
			t.Fatalf("index %d: trend must be +-1, got %d", i, p.Trend)
		}
	}
}

func TestKMeans3LabelsAscending(t *testing.T) {
	scores := []float64{-5, -4.8, -0.1, 0.0, 0.2, 4.9, 5.1}
	res := indicator.KMeans3(scores)
	if res.Centroids[indicator.ClusterWorst] >= res.Centroids[indicator.ClusterAverage] {
		t.Fatalf("expected worst < average centroid, got %v", res.Centroids)
	}
	if res.Centroids[indicator.ClusterAverage] >= res.Centroids[indicator.ClusterBest] {
		t.Fatalf("expected average < best centroid, got %v", res.Centroids)
	}
	idx := indicator.RepresentativeIndex(scores, res, indicator.ClusterBest)
	if scores[idx] < 4 {
		t.Fatalf("expected representative of best cluster to be a high score, got %f", scores[idx])
	}
}

func TestKMeans3DeterministicAcrossRuns(t *testing.T) {
	scores := []float64{1, 2, 3, 10, 11, 12, 20, 21, 22}
	a := indicator.KMeans3(scores)
	b := indicator.KMeans3(scores)
	if a.Centroids != b.Centroids {
		t.Fatalf("expected deterministic centroids, got %v vs %v", a.Centroids, b.Centroids)
	}
}
