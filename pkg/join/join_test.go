package join

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmatthiesen/efficient-global-opt/pkg/collect"
	"github.com/bmatthiesen/efficient-global-opt/pkg/container"
	"github.com/bmatthiesen/efficient-global-opt/pkg/models"
	"github.com/bmatthiesen/efficient-global-opt/pkg/ndarray"
)

var schema = models.Schema{DimC: 1, DimNC: 1}

// addSegment writes an aggregated dataset with two channels and two run
// slots. Every record's objective encodes its power level.
func addSegment(t *testing.T, path, name string, P []float64, withJoint bool) {
	t.Helper()
	f, err := container.Open(path)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, container.WriteSlice(f, container.Join(name, "input", "P"), P))
	require.NoError(t, container.WriteSlice(f, container.Join(name, "input", "N"), []float64{1}))

	fill := models.Unsolved(schema)
	raw := ndarray.New([]int{2, len(P), 2}, fill)
	joint := ndarray.New([]int{2, len(P)}, fill)
	for c := 0; c < 2; c++ {
		for p, v := range P {
			for s := 0; s < 2; s++ {
				raw.Set(models.Result{Objective: v, XoptC: []float64{float64(c)}, XoptNC: []float64{float64(s)}, Status: models.StatusOptimal, Runtime: 1}, c, p, s)
			}
			joint.Set(models.Result{Objective: v, XoptC: []float64{float64(c)}, XoptNC: []float64{0}, Status: models.StatusOptimal, Runtime: 2}, c, p)
		}
	}
	require.NoError(t, container.WriteArray(f, container.Join(name, collect.RawName), raw, 2, fill))
	if withJoint {
		require.NoError(t, container.WriteArray(f, container.Join(name, collect.JointName), joint, 2, fill))
	}
}

func run(path string, names ...string) (*Report, error) {
	return Run(context.Background(), Options{File: path, Names: names, JoinedName: "joined"}, zerolog.Nop())
}

func TestJoinConcatenatesAndArchives(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")
	addSegment(t, path, "seg_lo", []float64{0, 5}, true)
	addSegment(t, path, "seg_mid", []float64{10}, true)
	addSegment(t, path, "seg_hi", []float64{15, 20, 25}, true)

	report, err := run(path, "seg_lo", "seg_mid", "seg_hi")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 5, 10, 15, 20, 25}, report.P)
	assert.True(t, report.Joint)

	f, err := container.OpenReadOnly(path)
	require.NoError(t, err)
	defer f.Close()

	P, err := container.ReadSlice[float64](f, "/joined/input/P")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 5, 10, 15, 20, 25}, P)

	N, err := container.ReadSlice[float64](f, "/joined/input/N")
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, N)

	raw, err := container.ReadArray[models.Result](f, "/joined/raw_results")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 6, 2}, raw.Shape)
	for c := 0; c < 2; c++ {
		for p, v := range P {
			assert.Equal(t, v, raw.At(c, p, 1).Objective)
			assert.Equal(t, float64(c), raw.At(c, p, 1).XoptC[0])
		}
	}

	joint, err := container.ReadArray[models.Result](f, "/joined/joint_results")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 6}, joint.Shape)
	assert.Equal(t, 15.0, joint.At(1, 3).Objective)

	root, err := f.Children("/")
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultArchive, "joined"}, root)

	archived, err := f.Children("/" + DefaultArchive)
	require.NoError(t, err)
	assert.Equal(t, []string{"seg_hi", "seg_lo", "seg_mid"}, archived)

	from, ok, err := f.Attr("/joined", AttrJoinedFrom)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "/seg_lo,/seg_mid,/seg_hi", from)
}

func TestJoinWithoutJointResults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")
	addSegment(t, path, "a", []float64{1, 2}, false)
	addSegment(t, path, "b", []float64{3}, false)

	report, err := run(path, "a", "b")
	require.NoError(t, err)
	assert.False(t, report.Joint)
}

func TestJoinFailuresLeaveFileUntouched(t *testing.T) {
	cases := []struct {
		name     string
		segments map[string][]float64
		joint    map[string]bool
		order    []string
		want     error
	}{
		{
			name:     "uneven steps",
			segments: map[string][]float64{"a": {0, 0.5}, "b": {1.2}, "c": {2.2}},
			order:    []string{"a", "b", "c"},
			want:     ErrNotEvenlySpaced,
		},
		{
			name:     "decreasing segment",
			segments: map[string][]float64{"a": {0, 1}, "b": {3, 2}},
			order:    []string{"a", "b"},
			want:     ErrNotIncreasing,
		},
		{
			name:     "segments out of order",
			segments: map[string][]float64{"a": {0, 1}, "b": {2, 3}},
			order:    []string{"b", "a"},
			want:     ErrNotIncreasing,
		},
		{
			name:     "mixed joint results",
			segments: map[string][]float64{"a": {0, 1}, "b": {2, 3}},
			joint:    map[string]bool{"a": true},
			order:    []string{"a", "b"},
			want:     models.ErrSchemaMismatch,
		},
		{
			name:     "missing segment",
			segments: map[string][]float64{"a": {0, 1}},
			order:    []string{"a", "b"},
			want:     container.ErrNotFound,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "results.db")
			for name, P := range tc.segments {
				addSegment(t, path, name, P, tc.joint[name])
			}
			before, err := os.ReadFile(path)
			require.NoError(t, err)

			_, err = run(path, tc.order...)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)

			after, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}
}

func TestJoinRefusesTakenNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")
	addSegment(t, path, "a", []float64{0, 1}, true)
	addSegment(t, path, "b", []float64{2, 3}, true)
	addSegment(t, path, "joined", []float64{0}, true)

	_, err := run(path, "a", "b")
	assert.ErrorIs(t, err, container.ErrExists)

	path = filepath.Join(t.TempDir(), "results.db")
	addSegment(t, path, "a", []float64{0, 1}, true)
	addSegment(t, path, "b", []float64{2, 3}, true)
	addSegment(t, path, DefaultArchive+"/a", []float64{0}, true)

	_, err = run(path, "a", "b")
	assert.ErrorIs(t, err, container.ErrExists)
}

func TestCheckAxis(t *testing.T) {
	assert.NoError(t, CheckAxis([]float64{-10, -5, 0, 5, 10}))
	assert.NoError(t, CheckAxis([]float64{0, 0.1, 0.2, 0.3, 0.4}))
	assert.NoError(t, CheckAxis([]float64{7}))
	assert.ErrorIs(t, CheckAxis([]float64{0, 0.5, 1.2, 2.2}), ErrNotEvenlySpaced)
	assert.ErrorIs(t, CheckAxis([]float64{0, 1, 1, 2}), ErrNotIncreasing)
}
