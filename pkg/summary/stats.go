// Package summary reduces aggregated results to the tables behind the
// publication plots: masked means, medians, exponential runtime fits and
// energy efficiency gains.
package summary

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// DefaultCutoff is the fraction of missing entries at which a mean is
// no longer trusted
const DefaultCutoff = 0.028

// ErrFitWindow is returned for an exponential fit over an unusable window
var ErrFitWindow = errors.New("invalid fit window")

func finite(x []float64) []float64 {
	vals := make([]float64, 0, len(x))
	for _, v := range x {
		if !math.IsNaN(v) {
			vals = append(vals, v)
		}
	}
	return vals
}

// NanMean is the mean of the non-NaN entries of x, NaN if there are none
func NanMean(x []float64) float64 {
	vals := finite(x)
	if len(vals) == 0 {
		return math.NaN()
	}
	return stat.Mean(vals, nil)
}

// NanMedian is the median of the non-NaN entries of x, NaN if there are
// none. An even count averages the two middle values.
func NanMedian(x []float64) float64 {
	vals := finite(x)
	n := len(vals)
	if n == 0 {
		return math.NaN()
	}
	sort.Float64s(vals)
	if n%2 == 1 {
		return vals[n/2]
	}
	return (vals[n/2-1] + vals[n/2]) / 2
}

// MaskedMean returns the NaN-ignoring mean of every row. A row whose NaN
// count reaches cutoff × len(row) yields NaN.
func MaskedMean(rows [][]float64, cutoff float64) []float64 {
	out := make([]float64, len(rows))
	for i, row := range rows {
		missing := len(row) - len(finite(row))
		if len(row) == 0 || float64(missing) >= cutoff*float64(len(row)) {
			out[i] = math.NaN()
			continue
		}
		out[i] = NanMean(row)
	}
	return out
}

// FitExp fits y ≈ b·exp(a·x) by linear regression of log(y) on x over the
// inclusive index window [start, end]. A negative start selects the first
// non-NaN entry of y, a negative end selects start+1.
func FitExp(x, y []float64, start, end int) (func(float64) float64, error) {
	if len(x) != len(y) {
		return nil, fmt.Errorf("%w: %d abscissae for %d values", ErrFitWindow, len(x), len(y))
	}
	if start < 0 {
		start = -1
		for i, v := range y {
			if !math.IsNaN(v) {
				start = i
				break
			}
		}
		if start < 0 {
			return nil, fmt.Errorf("%w: no data", ErrFitWindow)
		}
	}
	if end < 0 {
		end = start + 1
	}
	if start >= end || end >= len(y) {
		return nil, fmt.Errorf("%w: [%d, %d] for %d values", ErrFitWindow, start, end, len(y))
	}

	xs := x[start : end+1]
	logs := make([]float64, len(xs))
	for i, v := range y[start : end+1] {
		if math.IsNaN(v) || v <= 0 {
			return nil, fmt.Errorf("%w: value %g at index %d", ErrFitWindow, v, start+i)
		}
		logs[i] = math.Log(v)
	}

	alpha, beta := stat.LinearRegression(xs, logs, nil, false)
	b := math.Exp(alpha)
	return func(v float64) float64 { return b * math.Exp(beta*v) }, nil
}
