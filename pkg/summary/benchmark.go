package summary

import (
	"fmt"
	"strconv"

	"github.com/bmatthiesen/efficient-global-opt/pkg/bench"
)

// FitSpec adds <Column>_fit, an exponential fit of Column over the index
// window [Start, End]
type FitSpec struct {
	Column string `mapstructure:"column"`
	Start  int    `mapstructure:"start"`
	End    int    `mapstructure:"end"`
}

// BenchmarkConfig parameterises the benchmark tables
type BenchmarkConfig struct {
	Cutoff float64   `mapstructure:"data_cutoff"`
	Fits   []FitSpec `mapstructure:"fits"`
}

// DefaultFits are the fit windows of the published runtime plots
var DefaultFits = []FitSpec{
	{Column: "NC2", Start: 9, End: 12},
	{Column: "NC3", Start: 15, End: 18},
}

// Benchmark derives the mean runtime over the number of users (one column
// NC<n> per cluster count, plus the configured fits) and over the number
// of clusters at the fixed user count (column UE<users>).
func Benchmark(t *bench.Tables, cfg BenchmarkConfig) (byUE, byNC *Frame, err error) {
	byUE = NewFrame("", toFloats(t.NumUE))
	for i, nc := range t.ClusterCounts {
		rows := make([][]float64, len(t.NumUE))
		for j := range t.NumUE {
			rows[j] = t.ByUE.Slab(i, j)
		}
		if err := byUE.Add("NC"+strconv.Itoa(nc), MaskedMean(rows, cfg.Cutoff)); err != nil {
			return nil, nil, err
		}
	}

	for _, spec := range cfg.Fits {
		col, ok := byUE.Column(spec.Column)
		if !ok {
			return nil, nil, fmt.Errorf("fit of unknown column %s", spec.Column)
		}
		fit, err := FitExp(byUE.Index, col, spec.Start, spec.End)
		if err != nil {
			return nil, nil, fmt.Errorf("fit of %s: %w", spec.Column, err)
		}
		vals := make([]float64, len(byUE.Index))
		for i, x := range byUE.Index {
			vals[i] = fit(x)
		}
		if err := byUE.Add(spec.Column+"_fit", vals); err != nil {
			return nil, nil, err
		}
	}

	byNC = NewFrame("", toFloats(t.NumNC))
	rows := make([][]float64, len(t.NumNC))
	for i := range t.NumNC {
		rows[i] = t.ByNC.Slab(i)
	}
	if err := byNC.Add("UE"+strconv.Itoa(bench.FixedUsers), MaskedMean(rows, cfg.Cutoff)); err != nil {
		return nil, nil, err
	}
	return byUE, byNC, nil
}

func toFloats(xs []int) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = float64(x)
	}
	return out
}
