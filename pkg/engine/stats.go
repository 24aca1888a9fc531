package engine

import (
	"math"
	"sort"
)

// WeightedSum returns the sum of values weighted by weights.
func WeightedSum(values, weights []float64) float64 {
	total := 0.0
	for i, v := range values {
		total += v * weightAt(weights, i)
	}
	return total
}

// WeightedMean returns the weighted mean of values, or 0 for zero total weight.
func WeightedMean(values, weights []float64) float64 {
	w := 0.0
	for i := range values {
		w += weightAt(weights, i)
	}
	if w == 0 {
		return 0
	}
	return WeightedSum(values, weights) / w
}

// DecileRanks ranks each member 1..10 by value. Ranks are assigned by
// cumulative weight, so each decile holds roughly a tenth of the total weight.
// Ties keep member order.
func DecileRanks(values, weights []float64) []int {
	n := len(values)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return values[order[a]] < values[order[b]]
	})

	total := 0.0
	for i := range values {
		total += weightAt(weights, i)
	}

	ranks := make([]int, n)
	cumulative := 0.0
	for _, i := range order {
		cumulative += weightAt(weights, i)
		rank := 10
		if total > 0 {
			rank = int(math.Ceil(cumulative*10/total - 1e-9))
		}
		ranks[i] = min(max(rank, 1), 10)
	}
	return ranks
}

// GroupSum returns weighted sums of values per group. groups holds a group
// index in [0, n) for each member; members outside that range are ignored.
func GroupSum(values, weights []float64, groups []int, n int) []float64 {
	out := make([]float64, n)
	for i, v := range values {
		if i >= len(groups) {
			break
		}
		g := groups[i]
		if g < 0 || g >= n {
			continue
		}
		out[g] += v * weightAt(weights, i)
	}
	return out
}

// weightAt treats a nil weight slice as unit weights.
func weightAt(weights []float64, i int) float64 {
	if weights == nil {
		return 1
	}
	if i >= len(weights) {
		return 0
	}
	return weights[i]
}
