package geode

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// budgets covers one-element chunks up to loading everything at once.
var budgets = []int64{8, 24, 8 * 7, 8 * 64, 1 << 20}

func steps(start time.Time, n int, step func(time.Time, int) time.Time) []time.Time {
	times := make([]time.Time, n)
	for i := range times {
		times[i] = step(start, i)
	}
	return times
}

func everyHours(h int) func(time.Time, int) time.Time {
	return func(s time.Time, i int) time.Time { return s.Add(time.Duration(i*h) * time.Hour) }
}

func everyMonth(s time.Time, i int) time.Time { return s.AddDate(0, i, 0) }

func mustTimeAxis(t *testing.T, times []time.Time, res Resolution) *Axis {
	t.Helper()
	ax, err := NewTimeAxis(times, res)
	require.NoError(t, err)
	return ax
}

// fnVar builds an in-memory Var whose value at every position is fn(idx).
func fnVar(t *testing.T, name string, fn func(idx []int) float64, axes ...*Axis) *Var {
	t.Helper()
	shape := make([]int, len(axes))
	for d, a := range axes {
		shape[d] = a.Len()
	}
	a := NewArray(shape...)
	idx := make([]int, len(shape))
	for i := range a.data {
		a.data[i] = fn(idx)
		for d := len(idx) - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < shape[d] {
				break
			}
			idx[d] = 0
		}
	}
	v, err := FromArray(name, axes, a)
	require.NoError(t, err)
	return v
}

// rampVar holds 0, 1, 2, ... in row-major order.
func rampVar(t *testing.T, name string, axes ...*Axis) *Var {
	t.Helper()
	n := 0.0
	return fnVar(t, name, func([]int) float64 { n++; return n - 1 }, axes...)
}

func get(t *testing.T, v *Var, opts ...Option) *Array {
	t.Helper()
	a, err := v.Get(context.Background(), opts...)
	require.NoError(t, err)
	return a
}

func genericAxis(name string, n int) *Axis {
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = float64(i)
	}
	return NewAxis(name, FamilyGeneric, vals)
}
