// Package stats provides the small set of descriptive statistics the
// analysis pipeline needs, on top of gonum.
package stats

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"
)

// Mean returns the arithmetic mean, or 0 for an empty sample.
func Mean(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return stat.Mean(x, nil)
}

// Sum returns the sum of x.
func Sum(x []float64) float64 {
	var s float64
	for _, v := range x {
		s += v
	}
	return s
}

// Median returns the sample median, averaging the two middle values for
// even-sized samples. It does not modify x. Returns 0 for an empty sample.
func Median(x []float64) float64 {
	n := len(x)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, x)
	sort.Float64s(sorted)

	mid := n / 2
	if n%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// MAD returns the median absolute deviation from the median.
func MAD(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	m := Median(x)
	dev := make([]float64, len(x))
	for i, v := range x {
		dev[i] = math.Abs(v - m)
	}
	return Median(dev)
}

// SampleStdDev returns the unbiased (n-1) standard deviation, or 0 when
// fewer than two values are available.
func SampleStdDev(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	return stat.StdDev(x, nil)
}

// PopStdDev returns the population (n) standard deviation, or 0 for an
// empty sample.
func PopStdDev(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	_, std := stat.PopMeanStdDev(x, nil)
	return std
}

// Round rounds v to the given number of decimal places, half to even.
func Round(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).RoundBank(places).InexactFloat64()
}
