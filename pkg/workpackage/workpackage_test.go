package workpackage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmatthiesen/efficient-global-opt/pkg/models"
	"github.com/bmatthiesen/efficient-global-opt/pkg/ndarray"
)

func TestCreateAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wp.db")
	h := ndarray.New([]int{3, 2}, complex(1, 0))

	require.NoError(t, Create(path, Input{H: h, G: h, P: []float64{-10, -5, 0, 5}, N: 1}))

	tbl, err := Read(path)
	require.NoError(t, err)

	rows, cols := tbl.GridShape()
	assert.Equal(t, 3, rows)
	assert.Equal(t, 4, cols)
	require.Len(t, tbl.Entries, 12)

	// channel-major enumeration
	row, col, err := tbl.Lookup(6)
	require.NoError(t, err)
	assert.Equal(t, 1, row)
	assert.Equal(t, 2, col)

	_, _, err = tbl.Lookup(12)
	assert.ErrorIs(t, err, models.ErrUnknownWP)
}

func TestValidateRejectsBadTables(t *testing.T) {
	tbl := &Table{
		P:           []float64{0, 1},
		NumChannels: 1,
		Entries: []models.WPEntry{
			{ChannelIndex: 0, PIndex: 0},
			{ChannelIndex: 0, PIndex: 0},
			{ChannelIndex: 1, PIndex: 2},
		},
	}

	err := tbl.Validate()
	require.Error(t, err)

	var verrs models.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 3)
}

func TestCreateRejectsMismatchedG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wp.db")
	err := Create(path, Input{
		H: ndarray.New([]int{2, 2}, complex128(0)),
		G: ndarray.New([]int{2, 3}, complex128(0)),
		P: []float64{0},
	})
	assert.Error(t, err)
}
