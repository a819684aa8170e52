package ndarray

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexing(t *testing.T) {
	a := New([]int{2, 3, 4}, -1)
	require.Len(t, a.Data, 24)

	a.Set(7, 1, 2, 3)
	assert.Equal(t, 7, a.At(1, 2, 3))
	assert.Equal(t, 23, a.Offset(1, 2, 3))
	assert.Equal(t, 12, a.Offset(1))

	slab := a.Slab(1, 2)
	assert.Equal(t, []int{-1, -1, -1, 7}, slab)

	slab[0] = 5
	assert.Equal(t, 5, a.At(1, 2, 0), "slab must alias storage")
}

func TestIndexOutOfRangePanics(t *testing.T) {
	a := New([]int{2, 2}, 0)
	assert.Panics(t, func() { a.At(2, 0) })
	assert.Panics(t, func() { a.At(0) })
}

func TestConcatMiddleAxis(t *testing.T) {
	// 2 x 1 x 2 and 2 x 2 x 2 -> 2 x 3 x 2
	a, err := FromSlice([]int{2, 1, 2}, []int{1, 2, 3, 4})
	require.NoError(t, err)
	b, err := FromSlice([]int{2, 2, 2}, []int{10, 11, 12, 13, 14, 15, 16, 17})
	require.NoError(t, err)

	c, err := Concat(1, a, b)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 2}, c.Shape)
	assert.Equal(t, []int{1, 2, 10, 11, 12, 13, 3, 4, 14, 15, 16, 17}, c.Data)
	assert.Equal(t, 16, c.At(1, 2, 0))
}

func TestConcatShapeMismatch(t *testing.T) {
	a := New([]int{2, 2}, 0)
	b := New([]int{3, 2}, 0)
	_, err := Concat(1, a, b)
	assert.Error(t, err)

	_, err = Concat(0, a, b)
	assert.NoError(t, err)
}

func TestFromSliceSizeCheck(t *testing.T) {
	_, err := FromSlice([]int{2, 2}, []float64{1, 2, 3})
	assert.Error(t, err)
}
