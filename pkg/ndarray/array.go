package ndarray

import (
	"fmt"
)

// Array is a dense row-major n-dimensional array
type Array[T any] struct {
	Shape []int
	Data  []T
}

// New creates an array of the given shape with every element set to fill
func New[T any](shape []int, fill T) *Array[T] {
	n := Size(shape)
	data := make([]T, n)
	for i := range data {
		data[i] = fill
	}
	return &Array[T]{Shape: append([]int(nil), shape...), Data: data}
}

// FromSlice wraps data with the given shape
func FromSlice[T any](shape []int, data []T) (*Array[T], error) {
	if Size(shape) != len(data) {
		return nil, fmt.Errorf("shape %v needs %d elements, got %d", shape, Size(shape), len(data))
	}
	return &Array[T]{Shape: append([]int(nil), shape...), Data: data}, nil
}

// Size returns the number of elements spanned by shape
func Size(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Ndim returns the number of axes
func (a *Array[T]) Ndim() int { return len(a.Shape) }

// Offset converts a (possibly partial) leading index into a flat offset.
// A partial index addresses the first element of the slab it selects.
func (a *Array[T]) Offset(idx ...int) int {
	if len(idx) > len(a.Shape) {
		panic(fmt.Sprintf("ndarray: %d indices for %d axes", len(idx), len(a.Shape)))
	}
	off := 0
	for axis, d := range a.Shape {
		i := 0
		if axis < len(idx) {
			i = idx[axis]
			if i < 0 || i >= d {
				panic(fmt.Sprintf("ndarray: index %d out of range for axis %d of size %d", i, axis, d))
			}
		}
		off = off*d + i
	}
	return off
}

// At returns the element at the full index idx
func (a *Array[T]) At(idx ...int) T {
	if len(idx) != len(a.Shape) {
		panic(fmt.Sprintf("ndarray: At needs %d indices, got %d", len(a.Shape), len(idx)))
	}
	return a.Data[a.Offset(idx...)]
}

// Set stores v at the full index idx
func (a *Array[T]) Set(v T, idx ...int) {
	if len(idx) != len(a.Shape) {
		panic(fmt.Sprintf("ndarray: Set needs %d indices, got %d", len(a.Shape), len(idx)))
	}
	a.Data[a.Offset(idx...)] = v
}

// Slab returns the contiguous sub-slice selected by a leading index.
// The result aliases the array's storage.
func (a *Array[T]) Slab(idx ...int) []T {
	n := Size(a.Shape[len(idx):])
	off := a.Offset(idx...)
	return a.Data[off : off+n]
}

// Concat joins arrays along axis. All other axes must agree.
func Concat[T any](axis int, arrays ...*Array[T]) (*Array[T], error) {
	if len(arrays) == 0 {
		return nil, fmt.Errorf("nothing to concatenate")
	}
	first := arrays[0]
	if axis < 0 || axis >= first.Ndim() {
		return nil, fmt.Errorf("axis %d out of range for %d-d array", axis, first.Ndim())
	}

	shape := append([]int(nil), first.Shape...)
	shape[axis] = 0
	for i, a := range arrays {
		if a.Ndim() != first.Ndim() {
			return nil, fmt.Errorf("array %d has %d axes, expected %d", i, a.Ndim(), first.Ndim())
		}
		for ax, d := range a.Shape {
			if ax != axis && d != first.Shape[ax] {
				return nil, fmt.Errorf("array %d has shape %v, incompatible with %v along axis %d", i, a.Shape, first.Shape, axis)
			}
		}
		shape[axis] += a.Shape[axis]
	}

	// outer = product of axes before axis, each array contributes
	// blocks of Shape[axis]*inner elements per outer step
	outer := Size(shape[:axis])
	inner := Size(shape[axis+1:])
	out := &Array[T]{Shape: shape, Data: make([]T, 0, Size(shape))}
	for o := 0; o < outer; o++ {
		for _, a := range arrays {
			block := a.Shape[axis] * inner
			out.Data = append(out.Data, a.Data[o*block:(o+1)*block]...)
		}
	}
	return out, nil
}
