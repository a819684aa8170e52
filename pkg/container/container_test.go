package container

import (
	"errors"
	"math"
	"math/cmplx"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmatthiesen/efficient-global-opt/pkg/models"
	"github.com/bmatthiesen/efficient-global-opt/pkg/ndarray"
)

func newFile(t *testing.T, name string) *File {
	t.Helper()
	f, err := Create(filepath.Join(t.TempDir(), name))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestGroupsAndChildren(t *testing.T) {
	f := newFile(t, "tree.db")

	require.NoError(t, f.CreateGroup("a/b/c"))
	require.NoError(t, f.CreateGroup("/a/raw results"))
	require.NoError(t, f.CreateGroup("a/b"), "re-creating a group is a no-op")

	children, err := f.Children("/a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "raw results"}, children)

	ok, err := f.IsGroup("/a/b/c")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.Has("/a/x")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDatasetFillAndChunks(t *testing.T) {
	f := newFile(t, "ds.db")

	d, err := CreateDataset(f, "/g/data", []int{2, 3, 4}, 2, math.NaN())
	require.NoError(t, err)
	assert.Equal(t, 4, d.ChunkLen())

	require.NoError(t, d.WriteChunk([]float64{1, 2, 3, 4}, 1, 2))

	chunk, err := d.ReadChunk(0, 0)
	require.NoError(t, err)
	for _, v := range chunk {
		assert.True(t, math.IsNaN(v))
	}

	a, err := ReadArray[float64](f, "/g/data")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 4}, a.Shape)
	assert.Equal(t, []float64{1, 2, 3, 4}, a.Slab(1, 2))
	assert.True(t, math.IsNaN(a.At(0, 1, 3)))

	assert.Error(t, d.WriteChunk([]float64{1, 2}, 0, 0), "short chunk")
	assert.Error(t, d.WriteChunk([]float64{1, 2, 3, 4}, 2, 0), "index out of range")
}

func TestDatasetTypeMismatch(t *testing.T) {
	f := newFile(t, "types.db")
	require.NoError(t, WriteSlice(f, "/P", []float64{1, 2, 3}))

	_, err := OpenDataset[uint64](f, "/P")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTypeMismatch))

	_, err = OpenDataset[float64](f, "/missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResultSentinelRoundTrip(t *testing.T) {
	f := newFile(t, "results.db")
	schema := models.Schema{DimC: 1, DimNC: 2}

	d, err := CreateDataset(f, "/raw_results", []int{2, 2, 3}, 2, models.Unsolved(schema))
	require.NoError(t, err)

	recs := []models.Result{
		{WPIndex: 3, Objective: 1.5, XoptC: []float64{1}, XoptNC: []float64{2, 3}, Status: models.StatusOptimal, Runtime: 0.5, PeakRSS: 1 << 20},
		{WPIndex: 3, Objective: 2.5, XoptC: []float64{4}, XoptNC: []float64{5, 6}, Status: models.StatusMaxiter, Runtime: 1.5, Iterations: 10},
		{WPIndex: 0, Objective: 0, XoptC: []float64{0}, XoptNC: []float64{0, 0}, Status: models.StatusUnsolved},
	}
	require.NoError(t, d.WriteChunk(recs, 1, 0))

	a, err := d.Read()
	require.NoError(t, err)
	assert.Equal(t, recs, a.Slab(1, 0))

	untouched := a.At(0, 1, 2)
	assert.True(t, untouched.IsSentinel())
	assert.Len(t, untouched.XoptNC, 2)

	// fill values must not share storage
	a.At(0, 0, 0).XoptC[0] = 42
	assert.True(t, math.IsNaN(a.At(0, 0, 1).XoptC[0]))
}

func TestComplexRoundTrip(t *testing.T) {
	f := newFile(t, "complex.db")
	nan := complex(math.NaN(), math.NaN())
	arr := ndarray.New([]int{2, 2}, nan)
	arr.Set(complex(1, -1), 0, 1)
	require.NoError(t, WriteArray(f, "/channel", arr, 1, nan))

	back, err := ReadArray[complex128](f, "/channel")
	require.NoError(t, err)
	assert.Equal(t, complex(1, -1), back.At(0, 1))
	assert.True(t, cmplx.IsNaN(back.At(1, 1)))
}

func TestMoveAndDelete(t *testing.T) {
	f := newFile(t, "move.db")
	require.NoError(t, WriteSlice(f, "/seg_a/input/P", []float64{1, 2}))
	require.NoError(t, f.SetAttr("/seg_a", "note", "first"))

	require.NoError(t, f.Move("/seg_a", "/archive/seg_a"))

	ok, err := f.Has("/seg_a")
	require.NoError(t, err)
	assert.False(t, ok)

	P, err := ReadSlice[float64](f, "/archive/seg_a/input/P")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, P)

	v, ok, err := f.Attr("/archive/seg_a", "note")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "first", v)

	children, err := f.Children("/archive/seg_a")
	require.NoError(t, err)
	assert.Equal(t, []string{"input"}, children)

	require.NoError(t, f.Delete("/archive"))
	ok, err = f.Has("/archive/seg_a/input/P")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMoveDoesNotTouchSiblingsWithSharedPrefix(t *testing.T) {
	f := newFile(t, "prefix.db")
	require.NoError(t, WriteSlice(f, "/set/x", []float64{1}))
	require.NoError(t, WriteSlice(f, "/set_2/x", []float64{2}))

	require.NoError(t, f.Move("/set", "/old/set"))

	v, err := ReadSlice[float64](f, "/set_2/x")
	require.NoError(t, err)
	assert.Equal(t, []float64{2}, v)
}

func TestCopyTreeAcrossFiles(t *testing.T) {
	src := newFile(t, "src.db")
	dst := newFile(t, "dst.db")

	require.NoError(t, WriteSlice(src, "/input/P", []float64{0, 0.5, 1}))
	require.NoError(t, WriteSlice(src, "/input/N", []float64{1}))

	require.NoError(t, CopyTree(src, "/input", dst, "/dset/input"))

	children, err := dst.Children("/dset/input")
	require.NoError(t, err)
	assert.Equal(t, []string{"N", "P"}, children)

	P, err := ReadSlice[float64](dst, "/dset/input/P")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.5, 1}, P)

	assert.ErrorIs(t, CopyTree(src, "/input", dst, "/dset/input"), ErrExists)
}

func TestAtomicallyRollsBack(t *testing.T) {
	f := newFile(t, "tx.db")
	boom := errors.New("boom")

	err := f.Atomically(func() error {
		if err := WriteSlice(f, "/a", []float64{1}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	ok, err := f.Has("/a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReadOnlyAndSniffing(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "c.db")

	f, err := Open(p)
	require.NoError(t, err)
	require.NoError(t, WriteSlice(f, "/x", []float64{1}))
	require.NoError(t, f.Close())

	assert.True(t, IsContainer(p))

	ro, err := OpenReadOnly(p)
	require.NoError(t, err)
	defer ro.Close()
	assert.ErrorIs(t, ro.CreateGroup("/y"), ErrReadOnly)

	plain := filepath.Join(dir, "plain.txt")
	require.NoError(t, os.WriteFile(plain, []byte("not a container, just text that is long enough"), 0o644))
	assert.False(t, IsContainer(plain))

	_, err = OpenReadOnly(filepath.Join(dir, "absent.db"))
	assert.Error(t, err)
}
