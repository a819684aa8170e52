package models

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnsolvedSentinel(t *testing.T) {
	r := Unsolved(Schema{DimC: 2, DimNC: 3})

	assert.True(t, r.IsSentinel())
	assert.Equal(t, StatusUnsolved, r.Status)
	assert.True(t, math.IsNaN(r.Objective))
	assert.True(t, math.IsNaN(r.Runtime))
	assert.Equal(t, Missing, r.PeakRSS)
	assert.Equal(t, Missing, r.Iterations)
	require.Len(t, r.XoptC, 2)
	require.Len(t, r.XoptNC, 3)
	for _, v := range append(r.XoptC, r.XoptNC...) {
		assert.True(t, math.IsNaN(v))
	}

	solved := Result{Status: StatusOptimal, Objective: 1}
	assert.False(t, solved.IsSentinel())
}

func TestSchemaCheck(t *testing.T) {
	s := Schema{DimC: 1, DimNC: 2}
	ok := []Result{
		{XoptC: []float64{1}, XoptNC: []float64{1, 2}},
		{XoptC: []float64{0}, XoptNC: []float64{0, 0}, Status: StatusInfeasible},
	}
	assert.NoError(t, s.Check(ok))

	bad := append(ok, Result{XoptC: []float64{1, 2}, XoptNC: []float64{1, 2}})
	err := s.Check(bad)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSchemaMismatch))

	badStatus := []Result{{XoptC: []float64{1}, XoptNC: []float64{1, 2}, Status: Status(9)}}
	assert.ErrorIs(t, s.Check(badStatus), ErrSchemaMismatch)
}

func TestStatusNames(t *testing.T) {
	for _, s := range []Status{StatusOptimal, StatusUnsolved, StatusInfeasible, StatusMaxiter} {
		parsed, err := ParseStatus(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	_, err := ParseStatus("Solved")
	assert.Error(t, err)
	assert.Equal(t, "Status(42)", Status(42).String())
	assert.True(t, StatusMaxiter.IsSolved())
	assert.False(t, StatusUnsolved.IsSolved())
}

func TestCloneIsDeep(t *testing.T) {
	r := Result{XoptC: []float64{1}, XoptNC: []float64{2}}
	c := r.Clone()
	c.XoptC[0] = 9
	assert.Equal(t, 1.0, r.XoptC[0])
}
