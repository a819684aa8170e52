package summary

import (
	"bytes"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmatthiesen/efficient-global-opt/pkg/bench"
	"github.com/bmatthiesen/efficient-global-opt/pkg/collect"
	"github.com/bmatthiesen/efficient-global-opt/pkg/container"
	"github.com/bmatthiesen/efficient-global-opt/pkg/models"
	"github.com/bmatthiesen/efficient-global-opt/pkg/ndarray"
)

var nan = math.NaN()

func TestNanMeanAndMedian(t *testing.T) {
	assert.Equal(t, 2.0, NanMean([]float64{1, nan, 3}))
	assert.True(t, math.IsNaN(NanMean([]float64{nan, nan})))
	assert.True(t, math.IsNaN(NanMean(nil)))

	assert.Equal(t, 3.0, NanMedian([]float64{5, nan, 1, 3}))
	assert.Equal(t, 2.5, NanMedian([]float64{4, 1, 2, 3}))
	assert.True(t, math.IsNaN(NanMedian([]float64{nan})))
}

func TestMaskedMeanHonoursCutoff(t *testing.T) {
	row := func(missing int) []float64 {
		r := make([]float64, 100)
		for i := range r {
			r[i] = 2
		}
		for i := 0; i < missing; i++ {
			r[i] = nan
		}
		return r
	}

	got := MaskedMean([][]float64{row(0), row(2), row(3), row(50)}, 0.028)
	assert.Equal(t, 2.0, got[0])
	assert.Equal(t, 2.0, got[1], "2 of 100 missing stays below 2.8%")
	assert.True(t, math.IsNaN(got[2]), "3 of 100 missing reaches 2.8%")
	assert.True(t, math.IsNaN(got[3]))
}

func TestFitExpRecoversExponential(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5, 6}
	y := make([]float64, len(x))
	for i, v := range x {
		y[i] = 0.5 * math.Exp(0.8*v)
	}
	y[0] = nan

	fit, err := FitExp(x, y, 2, 4)
	require.NoError(t, err)
	for _, v := range x {
		assert.InEpsilon(t, 0.5*math.Exp(0.8*v), fit(v), 1e-9)
	}

	// default window starts at the first finite value and spans two points
	fit, err = FitExp(x, y, -1, -1)
	require.NoError(t, err)
	assert.InEpsilon(t, 0.5*math.Exp(0.8*10), fit(10), 1e-9)

	_, err = FitExp(x, y, 0, 2)
	assert.ErrorIs(t, err, ErrFitWindow)
	_, err = FitExp(x, y, 4, 9)
	assert.ErrorIs(t, err, ErrFitWindow)
}

func TestFrameCSV(t *testing.T) {
	fr := NewFrame("snr", []float64{-10, 0, 2.5})
	require.NoError(t, fr.Add("SND", []float64{1.25, nan, 3}))
	require.NoError(t, fr.Add("TIN", []float64{1, 2, 1e-7}))
	assert.Error(t, fr.Add("short", []float64{1}))

	var buf bytes.Buffer
	require.NoError(t, fr.WriteCSV(&buf))
	assert.Equal(t, "snr,SND,TIN\n-10,1.25,1\n0,NaN,2\n2.5,3,1e-07\n", buf.String())

	require.NoError(t, fr.Add("SND", []float64{0, 0, 0}))
	assert.Equal(t, []string{"SND", "TIN"}, fr.Columns())
}

func TestBenchmarkTables(t *testing.T) {
	numUE := []int{2, 3, 4, 5}
	tables := &bench.Tables{
		ClusterCounts: []int{2, 3},
		NumUE:         numUE,
		ByUE:          ndarray.New([]int{2, len(numUE), 4}, nan),
		NumNC:         []int{2, 3},
		ByNC:          ndarray.New([]int{2, 4}, 1.5),
	}
	for j, ue := range numUE {
		for c := 0; c < 4; c++ {
			tables.ByUE.Set(math.Exp(float64(ue)), 0, j, c)
		}
	}
	tables.ByNC.Set(nan, 1, 0)

	byUE, byNC, err := Benchmark(tables, BenchmarkConfig{
		Cutoff: DefaultCutoff,
		Fits:   []FitSpec{{Column: "NC2", Start: 1, End: 3}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"NC2", "NC3", "NC2_fit"}, byUE.Columns())

	nc2, _ := byUE.Column("NC2")
	fit, _ := byUE.Column("NC2_fit")
	for i, ue := range numUE {
		assert.InEpsilon(t, math.Exp(float64(ue)), nc2[i], 1e-12)
		assert.InEpsilon(t, math.Exp(float64(ue)), fit[i], 1e-9)
	}
	nc3, _ := byUE.Column("NC3")
	assert.True(t, math.IsNaN(nc3[0]))

	ue7, ok := byNC.Column("UE7")
	require.True(t, ok)
	assert.Equal(t, 1.5, ue7[0])
	assert.True(t, math.IsNaN(ue7[1]), "one of four channels missing")

	_, _, err = Benchmark(tables, BenchmarkConfig{Cutoff: DefaultCutoff, Fits: []FitSpec{{Column: "NC9"}}})
	assert.Error(t, err)
}

func writeDataset(t *testing.T, f *container.File, name string, P []float64, raw *ndarray.Array[models.Result], joint *ndarray.Array[models.Result]) {
	t.Helper()
	fill := models.Unsolved(models.Schema{})
	require.NoError(t, container.WriteSlice(f, container.Join(name, collect.InputName, "P"), P))
	require.NoError(t, container.WriteArray(f, container.Join(name, collect.RawName), raw, 2, fill))
	if joint != nil {
		require.NoError(t, container.WriteArray(f, container.Join(name, collect.JointName), joint, 2, fill))
	}
}

func TestEnergyEfficiency(t *testing.T) {
	f, err := container.Create(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	defer f.Close()

	P := []float64{0, 10}
	rec := func(obj, rt float64) models.Result {
		return models.Result{Objective: obj, Runtime: rt, Status: models.StatusOptimal}
	}

	// two channels, two power levels, two run slots
	raw := ndarray.New([]int{2, 2, 2}, models.Unsolved(models.Schema{}))
	joint := ndarray.New([]int{2, 2}, models.Unsolved(models.Schema{}))
	for c := 0; c < 2; c++ {
		for p := 0; p < 2; p++ {
			raw.Set(rec(1, 1), c, p, 0)
			raw.Set(rec(2, float64(1+c)), c, p, 1)
			joint.Set(rec(2, float64(2+c)), c, p)
		}
	}
	raw.Set(rec(nan, nan), 1, 1, 0)
	writeDataset(t, f, "sweep", P, raw, joint)

	cfg := EEConfig{
		IndexDataset: "sweep",
		Series: []Series{
			{Name: "SND", Dataset: "sweep", Source: SourceJoint},
			{Name: "TIN", Dataset: "sweep", Source: SourceRaw, Slot: 0},
		},
		Gains: []Gain{{Name: "SND vs TIN", A: "SND", B: "TIN"}},
	}
	tables, err := EnergyEfficiency(f, cfg, zerolog.Nop())
	require.NoError(t, err)

	snd, _ := tables.Objective.Column("SND")
	tin, _ := tables.Objective.Column("TIN")
	assert.InDelta(t, 2*math.Log2E, snd[0], 1e-12)
	assert.InDelta(t, math.Log2E, tin[1], 1e-12, "NaN channel is skipped")

	mean, _ := tables.Runtime.Column("SND_mean")
	median, _ := tables.Runtime.Column("SND_median")
	assert.Equal(t, 2.5, mean[0])
	assert.Equal(t, 2.5, median[0])

	assert.Equal(t, []string{"SND vs TIN [%]", "SND vs TIN [bpcu]"}, tables.Gain.Columns())
	pct, _ := tables.Gain.Column("SND vs TIN [%]")
	bpcu, _ := tables.Gain.Column("SND vs TIN [bpcu]")
	assert.InDelta(t, 100, pct[0], 1e-9)
	assert.InDelta(t, math.Log2E, bpcu[0], 1e-12)

	var buf bytes.Buffer
	require.NoError(t, tables.Objective.WriteCSV(&buf))
	assert.True(t, strings.HasPrefix(buf.String(), "snr,SND,TIN\n"))

	_, err = EnergyEfficiency(f, EEConfig{
		IndexDataset: "sweep",
		Series:       []Series{{Name: "bad", Dataset: "sweep", Source: SourceRaw, Slot: 2}},
	}, zerolog.Nop())
	assert.Error(t, err)
}
