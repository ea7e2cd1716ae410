package indicator

import (
	"math"
	"sort"
)

// ClusterLabel names a 1-D k-means cluster by ascending centroid (spec.md
// §4.3 / Open Questions: "Label clusters worst/average/best by ascending
// centroid").
type ClusterLabel int

const (
	ClusterWorst ClusterLabel = iota
	ClusterAverage
	ClusterBest
)

// maxKMeansIterations bounds the Lloyd's-algorithm refinement loop so the
// clustering step always terminates deterministically (spec.md §4.3: "iterate
// to convergence or a fixed iteration cap").
const maxKMeansIterations = 100

// KMeansResult is the outcome of a 1-D, k=3 clustering pass over a score
// vector, one score per swept factor.
type KMeansResult struct {
	// Centroids are ordered ascending; Centroids[ClusterWorst] is the
	// lowest, Centroids[ClusterBest] the highest.
	Centroids [3]float64
	// Assignment[i] is the cluster label of scores[i].
	Assignment []ClusterLabel
}

// KMeans3 clusters scores into 3 groups using min/median/max initial
// centroids for reproducibility (spec.md Open Questions: "this spec
// prescribes min/median/max to make results reproducible and testable"),
// then runs Lloyd's algorithm to convergence or maxKMeansIterations.
func KMeans3(scores []float64) KMeansResult {
	n := len(scores)
	if n == 0 {
		return KMeansResult{}
	}
	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)
	centroids := [3]float64{
		sorted[0],
		median(sorted),
		sorted[n-1],
	}
	assignment := make([]ClusterLabel, n)
	for iter := 0; iter < maxKMeansIterations; iter++ {
		changed := false
		for i, s := range scores {
			label := nearestCentroid(s, centroids)
			if assignment[i] != label {
				assignment[i] = label
				changed = true
			}
		}
		var sums [3]float64
		var counts [3]int
		for i, s := range scores {
			sums[assignment[i]] += s
			counts[assignment[i]]++
		}
		newCentroids := centroids
		for c := 0; c < 3; c++ {
			if counts[c] > 0 {
				newCentroids[c] = sums[c] / float64(counts[c])
			}
		}
		if !changed && newCentroids == centroids {
			break
		}
		centroids = newCentroids
		// keep ascending order so labels stay worst < average < best
		sort.Sort(ascendingCentroids(centroids[:]))
	}
	return KMeansResult{Centroids: centroids, Assignment: assignment}
}

func nearestCentroid(s float64, centroids [3]float64) ClusterLabel {
	best := ClusterLabel(0)
	bestDist := math.Abs(s - centroids[0])
	for c := 1; c < 3; c++ {
		d := math.Abs(s - centroids[c])
		if d < bestDist {
			bestDist = d
			best = ClusterLabel(c)
		}
	}
	return best
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// ascendingCentroids sorts a [3]float64 in place (through a slice over the
// array) via the sort.Interface, keeping cluster identity tied to rank
// rather than original index.
type ascendingCentroids []float64

func (a ascendingCentroids) Len() int      { return len(a) }
func (a ascendingCentroids) Swap(i, j int) { a[i], a[j] = a[j], a[i] }
func (a ascendingCentroids) Less(i, j int) bool {
	return a[i] < a[j]
}

// RepresentativeIndex returns the index within scores whose score is
// closest to the centroid of the requested cluster (spec.md §4.3 step 5:
// "Pick the representative factor of cluster_choice as the factor whose
// score is closest to the cluster's centroid"). Ties resolve to the lowest
// index, which callers should arrange to correspond to the lowest factor
// (spec.md Open Questions: "tie-breaking by lowest factor").
func RepresentativeIndex(scores []float64, result KMeansResult, label ClusterLabel) int {
	centroid := result.Centroids[label]
	best := -1
	bestDist := math.Inf(1)
	for i, s := range scores {
		if result.Assignment[i] != label {
			continue
		}
		d := math.Abs(s - centroid)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	if best == -1 {
		// No member was assigned to this cluster (can happen with highly
		// degenerate score vectors); fall back to the globally closest
		// score to the requested centroid.
		for i, s := range scores {
			d := math.Abs(s - centroid)
			if d < bestDist {
				bestDist = d
				best = i
			}
		}
	}
	return best
}
