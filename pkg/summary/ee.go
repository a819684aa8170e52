package summary

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/bmatthiesen/efficient-global-opt/pkg/collect"
	"github.com/bmatthiesen/efficient-global-opt/pkg/container"
	"github.com/bmatthiesen/efficient-global-opt/pkg/models"
	"github.com/bmatthiesen/efficient-global-opt/pkg/ndarray"
)

// Record sources of a series
const (
	SourceJoint = "joint"
	SourceRaw   = "raw"
)

// Series selects one curve: the joint results of Dataset, or run slot Slot
// of its raw results
type Series struct {
	Name    string `mapstructure:"name"`
	Dataset string `mapstructure:"dataset"`
	Source  string `mapstructure:"source"`
	Slot    int    `mapstructure:"slot"`
}

// Gain compares series A against series B
type Gain struct {
	Name string `mapstructure:"name"`
	A    string `mapstructure:"a"`
	B    string `mapstructure:"b"`
}

// EEConfig parameterises the energy efficiency tables
type EEConfig struct {
	IndexDataset string   `mapstructure:"index_dataset"`
	Series       []Series `mapstructure:"series"`
	Gains        []Gain   `mapstructure:"gains"`
}

// Run slots of the sweep that hold the TIN and the joint SND solution
const (
	TINSlot = 0
	SNDSlot = 7
)

// DefaultEE reproduces the published energy efficiency comparison
var DefaultEE = EEConfig{
	IndexDataset: "afsndEE_gurobi",
	Series: []Series{
		{Name: "SND", Dataset: "afsndEE_1e-3", Source: SourceJoint},
		{Name: "TIN", Dataset: "afsndEE_1e-3", Source: SourceRaw, Slot: TINSlot},
		{Name: "Joint", Dataset: "afsndEE_1e-3", Source: SourceRaw, Slot: SNDSlot},
		{Name: "SND_gurobi", Dataset: "afsndEE_gurobi", Source: SourceJoint},
		{Name: "TIN_gurobi", Dataset: "afsndEE_gurobi", Source: SourceRaw, Slot: TINSlot},
		{Name: "Joint_gurobi", Dataset: "afsndEE_gurobi", Source: SourceRaw, Slot: SNDSlot},
		{Name: "SND_mosek", Dataset: "afsndEE_mosek", Source: SourceJoint},
		{Name: "TIN_mosek", Dataset: "afsndEE_mosek", Source: SourceRaw, Slot: TINSlot},
		{Name: "Joint_mosek", Dataset: "afsndEE_mosek", Source: SourceRaw, Slot: SNDSlot},
		{Name: "Dinkelbach", Dataset: "afsnd_dinkelbach", Source: SourceRaw, Slot: 0},
	},
	Gains: []Gain{
		{Name: "SND vs TIN", A: "SND_gurobi", B: "TIN_gurobi"},
		{Name: "SND vs Joint", A: "SND_gurobi", B: "Joint_gurobi"},
	},
}

// EETables are the energy efficiency tables over the power axis
type EETables struct {
	Objective *Frame // mean energy efficiency in bit per Joule per series
	Runtime   *Frame // <series>_mean and <series>_median
	Gain      *Frame // <gain> [%] and <gain> [bpcu]
}

// EnergyEfficiency computes the energy efficiency tables of the results
// file f. Objectives are stored in nats and reported in bits.
func EnergyEfficiency(f *container.File, cfg EEConfig, logger zerolog.Logger) (*EETables, error) {
	P, err := container.ReadSlice[float64](f, container.Join(cfg.IndexDataset, collect.InputName, "P"))
	if err != nil {
		return nil, fmt.Errorf("failed to read power axis of %s: %w", cfg.IndexDataset, err)
	}

	t := &EETables{
		Objective: NewFrame("snr", P),
		Runtime:   NewFrame("snr", P),
		Gain:      NewFrame("snr", P),
	}

	for _, s := range cfg.Series {
		recs, err := loadSeries(f, s)
		if err != nil {
			return nil, err
		}
		if recs.Shape[1] != len(P) {
			return nil, fmt.Errorf("%w: series %s has %d power levels, index has %d", models.ErrSchemaMismatch, s.Name, recs.Shape[1], len(P))
		}

		objective := field(recs, func(r models.Result) float64 { return math.Log2E * r.Objective })
		runtime := field(recs, func(r models.Result) float64 { return r.Runtime })

		nans := 0
		for _, col := range objective {
			nans += len(col) - len(finite(col))
		}
		if nans > 0 {
			logger.Info().Str("series", s.Name).Int("nans", nans).Msg("Series contains NaNs")
		}

		if err := t.Objective.Add(s.Name, reduce(objective, NanMean)); err != nil {
			return nil, err
		}
		if err := t.Runtime.Add(s.Name+"_mean", reduce(runtime, NanMean)); err != nil {
			return nil, err
		}
		if err := t.Runtime.Add(s.Name+"_median", reduce(runtime, NanMedian)); err != nil {
			return nil, err
		}
	}

	ratios := make([][]float64, len(cfg.Gains))
	diffs := make([][]float64, len(cfg.Gains))
	for i, g := range cfg.Gains {
		a, okA := t.Objective.Column(g.A)
		b, okB := t.Objective.Column(g.B)
		if !okA || !okB {
			return nil, fmt.Errorf("gain %s compares unknown series %s and %s", g.Name, g.A, g.B)
		}
		ratios[i] = make([]float64, len(P))
		diffs[i] = make([]float64, len(P))
		for p := range P {
			ratios[i][p] = a[p]/b[p]*100 - 100
			diffs[i][p] = a[p] - b[p]
		}
	}
	for i, g := range cfg.Gains {
		if err := t.Gain.Add(g.Name+" [%]", ratios[i]); err != nil {
			return nil, err
		}
	}
	for i, g := range cfg.Gains {
		if err := t.Gain.Add(g.Name+" [bpcu]", diffs[i]); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// loadSeries returns the channels × power levels records of s
func loadSeries(f *container.File, s Series) (*ndarray.Array[models.Result], error) {
	switch s.Source {
	case SourceJoint:
		a, err := container.ReadArray[models.Result](f, container.Join(s.Dataset, collect.JointName))
		if err != nil {
			return nil, fmt.Errorf("series %s: %w", s.Name, err)
		}
		if a.Ndim() != 2 {
			return nil, fmt.Errorf("%w: series %s has shape %v", models.ErrSchemaMismatch, s.Name, a.Shape)
		}
		return a, nil

	case SourceRaw:
		raw, err := container.ReadArray[models.Result](f, container.Join(s.Dataset, collect.RawName))
		if err != nil {
			return nil, fmt.Errorf("series %s: %w", s.Name, err)
		}
		if raw.Ndim() != 3 {
			return nil, fmt.Errorf("%w: series %s has shape %v", models.ErrSchemaMismatch, s.Name, raw.Shape)
		}
		if s.Slot < 0 || s.Slot >= raw.Shape[2] {
			return nil, fmt.Errorf("series %s: slot %d outside %d run slots", s.Name, s.Slot, raw.Shape[2])
		}
		a := &ndarray.Array[models.Result]{Shape: []int{raw.Shape[0], raw.Shape[1]}, Data: make([]models.Result, 0, raw.Shape[0]*raw.Shape[1])}
		for c := 0; c < raw.Shape[0]; c++ {
			for p := 0; p < raw.Shape[1]; p++ {
				a.Data = append(a.Data, raw.At(c, p, s.Slot))
			}
		}
		return a, nil

	default:
		return nil, fmt.Errorf("series %s: unknown source %q", s.Name, s.Source)
	}
}

// field returns, per power level, the value of fn across channels
func field(recs *ndarray.Array[models.Result], fn func(models.Result) float64) [][]float64 {
	numChan, numP := recs.Shape[0], recs.Shape[1]
	cols := make([][]float64, numP)
	for p := range cols {
		cols[p] = make([]float64, numChan)
		for c := 0; c < numChan; c++ {
			cols[p][c] = fn(recs.At(c, p))
		}
	}
	return cols
}

func reduce(cols [][]float64, fn func([]float64) float64) []float64 {
	out := make([]float64, len(cols))
	for i, col := range cols {
		out[i] = fn(col)
	}
	return out
}
