// Package spread finds the widest cross-exchange spread in one round of
// prices and turns it into open and close signals.
package spread

import (
	"math"
	"sort"
)

// Result is the best ordered pair of a round. Low is the buy side and the
// divisor of the spread; High is the sell side.
type Result struct {
	Low           string
	High          string
	SpreadPercent float64
}

// Percent is the signed spread between buying at low and selling at high.
func Percent(low, high float64) float64 {
	return (high - low) / low * 100
}

// Evaluate scans every ordered pair of distinct exchanges and returns the one
// with the largest absolute spread. Names are visited in lexicographic order
// for both sides and the first pair wins ties, so equal inputs always give
// the same pair. Non-finite and non-positive prices are ignored; ok is false
// when fewer than two usable prices remain.
func Evaluate(prices map[string]float64) (best Result, ok bool) {
	names := make([]string, 0, len(prices))
	for name, p := range prices {
		if p > 0 && !math.IsInf(p, 0) && !math.IsNaN(p) {
			names = append(names, name)
		}
	}
	if len(names) < 2 {
		return Result{}, false
	}
	sort.Strings(names)

	bestAbs := -1.0
	for _, low := range names {
		for _, high := range names {
			if low == high {
				continue
			}
			s := Percent(prices[low], prices[high])
			if a := math.Abs(s); a > bestAbs {
				bestAbs = a
				best = Result{Low: low, High: high, SpreadPercent: s}
			}
		}
	}
	return best, true
}
