package models

import (
	"fmt"
	"math"
)

// Missing is stored in integer fields of sentinel records, where NaN is
// not representable.
const Missing uint64 = math.MaxUint64

// Result is one solver outcome for a work package
type Result struct {
	WPIndex    uint64    // global WP index (slot index in joint results)
	Objective  float64   // objective value
	XoptC      []float64 // optimal point, convex part
	XoptNC     []float64 // optimal point, non-convex part
	Status     Status
	Runtime    float64 // seconds
	Iterations uint64
	LastUpdate uint64 // iteration of the last incumbent update
	PeakRSS    uint64 // bytes
}

// Schema fixes the solution vector widths of a result set
type Schema struct {
	DimC  int
	DimNC int
}

// SchemaOf returns the schema r conforms to
func SchemaOf(r Result) Schema {
	return Schema{DimC: len(r.XoptC), DimNC: len(r.XoptNC)}
}

func (s Schema) String() string {
	return fmt.Sprintf("xopt_C[%d] xopt_NC[%d]", s.DimC, s.DimNC)
}

// Check verifies that every record in rs conforms to s
func (s Schema) Check(rs []Result) error {
	for i, r := range rs {
		if got := SchemaOf(r); got != s {
			return fmt.Errorf("%w: record %d has %s, expected %s", ErrSchemaMismatch, i, got, s)
		}
		if !r.Status.Valid() {
			return fmt.Errorf("%w: record %d has invalid status %d", ErrSchemaMismatch, i, uint16(r.Status))
		}
	}
	return nil
}

// Unsolved returns the "not yet computed" record for schema s: every
// float NaN, every integer Missing and Status Unsolved.
func Unsolved(s Schema) Result {
	return Result{
		WPIndex:    Missing,
		Objective:  math.NaN(),
		XoptC:      nanSlice(s.DimC),
		XoptNC:     nanSlice(s.DimNC),
		Status:     StatusUnsolved,
		Runtime:    math.NaN(),
		Iterations: Missing,
		LastUpdate: Missing,
		PeakRSS:    Missing,
	}
}

// IsSentinel reports whether r is an untouched Unsolved record
func (r Result) IsSentinel() bool {
	return r.Status == StatusUnsolved &&
		math.IsNaN(r.Objective) &&
		math.IsNaN(r.Runtime) &&
		r.WPIndex == Missing &&
		r.PeakRSS == Missing
}

// Clone returns a deep copy of r
func (r Result) Clone() Result {
	c := r
	c.XoptC = append([]float64(nil), r.XoptC...)
	c.XoptNC = append([]float64(nil), r.XoptNC...)
	return c
}

func nanSlice(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}
