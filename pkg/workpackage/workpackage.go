// Package workpackage reads and writes WP files: the parameter grid of a
// sweep (channel realisations × power levels) and the linear WP index that
// enumerates its cells.
package workpackage

import (
	"fmt"
	"strconv"

	"github.com/bmatthiesen/efficient-global-opt/pkg/container"
	"github.com/bmatthiesen/efficient-global-opt/pkg/models"
	"github.com/bmatthiesen/efficient-global-opt/pkg/ndarray"
)

// Node paths inside a WP file
const (
	InputGroup = "/input"
	PPath      = "/input/P"
	HPath      = "/input/h"
	GPath      = "/input/g"
	NPath      = "/input/N"
	WPPath     = "/WP"
)

// Table is the WP index of a sweep
type Table struct {
	P           []float64
	NumChannels int
	Entries     []models.WPEntry
}

// Read loads and validates the WP table of the file at path
func Read(path string) (*Table, error) {
	f, err := container.OpenReadOnly(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open WP file: %w", err)
	}
	defer f.Close()

	return ReadFrom(f)
}

// ReadFrom loads and validates the WP table of an open file
func ReadFrom(f *container.File) (*Table, error) {
	P, err := container.ReadSlice[float64](f, PPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read power axis: %w", err)
	}

	h, err := container.OpenDataset[complex128](f, HPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open channel dataset: %w", err)
	}
	shape := h.Shape()
	if len(shape) == 0 {
		return nil, fmt.Errorf("%w: %s is a scalar", models.ErrSchemaMismatch, HPath)
	}

	entries, err := container.ReadSlice[models.WPEntry](f, WPPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read WP index: %w", err)
	}

	t := &Table{P: P, NumChannels: shape[0], Entries: entries}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks that every entry lies inside the grid and that no two
// WP indices share a cell
func (t *Table) Validate() error {
	var errs models.ValidationErrors
	seen := make(map[models.WPEntry]int, len(t.Entries))

	for idx, e := range t.Entries {
		if e.ChannelIndex >= uint64(t.NumChannels) {
			errs = append(errs, models.ValidationError{
				Field:   "WP[" + strconv.Itoa(idx) + "].channel index",
				Message: fmt.Sprintf("outside grid of %d channels", t.NumChannels),
				Value:   strconv.FormatUint(e.ChannelIndex, 10),
			})
		}
		if e.PIndex >= uint64(len(t.P)) {
			errs = append(errs, models.ValidationError{
				Field:   "WP[" + strconv.Itoa(idx) + "].P index",
				Message: fmt.Sprintf("outside grid of %d power levels", len(t.P)),
				Value:   strconv.FormatUint(e.PIndex, 10),
			})
		}
		if prev, dup := seen[e]; dup {
			errs = append(errs, models.ValidationError{
				Field:   "WP[" + strconv.Itoa(idx) + "]",
				Message: fmt.Sprintf("cell already used by WP %d", prev),
				Value:   fmt.Sprintf("(%d, %d)", e.ChannelIndex, e.PIndex),
			})
		}
		seen[e] = idx
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// GridShape returns the dimensions of the parameter grid
func (t *Table) GridShape() (rows, cols int) {
	return t.NumChannels, len(t.P)
}

// Lookup returns the grid cell of WP idx
func (t *Table) Lookup(idx uint64) (row, col int, err error) {
	if idx >= uint64(len(t.Entries)) {
		return 0, 0, fmt.Errorf("%w: %d (table has %d entries)", models.ErrUnknownWP, idx, len(t.Entries))
	}
	e := t.Entries[idx]
	return int(e.ChannelIndex), int(e.PIndex), nil
}

// Input is the problem data stored in a WP file
type Input struct {
	H *ndarray.Array[complex128] // numChannels × dimIn
	G *ndarray.Array[complex128] // optional, same shape as H
	P []float64
	N float64
}

// Create writes a WP file enumerating every (channel, power) pair,
// channel-major: WP index = channel*len(P) + p.
func Create(path string, in Input) error {
	if in.H == nil || in.H.Ndim() == 0 {
		return fmt.Errorf("channel array is required")
	}
	if in.G != nil && !equalShape(in.G.Shape, in.H.Shape) {
		return fmt.Errorf("g shape %v differs from h shape %v", in.G.Shape, in.H.Shape)
	}

	f, err := container.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	numChan := in.H.Shape[0]
	entries := make([]models.WPEntry, 0, numChan*len(in.P))
	for c := 0; c < numChan; c++ {
		for p := range in.P {
			entries = append(entries, models.WPEntry{ChannelIndex: uint64(c), PIndex: uint64(p)})
		}
	}

	var zero complex128
	return f.Atomically(func() error {
		if err := container.WriteSlice(f, NPath, []float64{in.N}); err != nil {
			return err
		}
		if err := container.WriteSlice(f, PPath, in.P); err != nil {
			return err
		}
		if err := container.WriteArray(f, HPath, in.H, 1, zero); err != nil {
			return err
		}
		if in.G != nil {
			if err := container.WriteArray(f, GPath, in.G, 1, zero); err != nil {
				return err
			}
		}
		return container.WriteSlice(f, WPPath, entries)
	})
}

func equalShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
