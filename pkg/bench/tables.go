package bench

import (
	"fmt"

	"github.com/bmatthiesen/efficient-global-opt/pkg/container"
	"github.com/bmatthiesen/efficient-global-opt/pkg/ndarray"
)

// Tables holds the runtime tables of a benchmark file
type Tables struct {
	ClusterCounts []int                   // leading axis of ByUE
	NumUE         []int                   // second axis of ByUE
	ByUE          *ndarray.Array[float64] // clusters × users × channels
	NumNC         []int                   // leading axis of ByNC
	ByNC          *ndarray.Array[float64] // clusters × channels, at FixedUsers
}

// LoadTables reads the runtime tables of the benchmark file at path
func LoadTables(path string) (*Tables, error) {
	f, err := container.OpenReadOnly(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open benchmark file: %w", err)
	}
	defer f.Close()

	t := &Tables{}
	if t.ClusterCounts, err = container.ReadSlice[int](f, container.Join(ByUEGroup, DimNCName)); err != nil {
		return nil, err
	}
	if t.NumUE, err = container.ReadSlice[int](f, container.Join(ByUEGroup, DimUEName)); err != nil {
		return nil, err
	}
	if t.ByUE, err = container.ReadArray[float64](f, container.Join(ByUEGroup, DataName)); err != nil {
		return nil, err
	}
	if t.NumNC, err = container.ReadSlice[int](f, container.Join(ByNCGroup, DimNCName)); err != nil {
		return nil, err
	}
	if t.ByNC, err = container.ReadArray[float64](f, container.Join(ByNCGroup, DataName)); err != nil {
		return nil, err
	}

	if t.ByUE.Ndim() != 3 || t.ByUE.Shape[0] != len(t.ClusterCounts) || t.ByUE.Shape[1] != len(t.NumUE) {
		return nil, fmt.Errorf("runtime_numUE data has shape %v for %d cluster and %d user counts", t.ByUE.Shape, len(t.ClusterCounts), len(t.NumUE))
	}
	if t.ByNC.Ndim() != 2 || t.ByNC.Shape[0] != len(t.NumNC) {
		return nil, fmt.Errorf("runtime_numNC data has shape %v for %d cluster counts", t.ByNC.Shape, len(t.NumNC))
	}
	return t, nil
}
