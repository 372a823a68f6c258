package geode

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingSource serves a ramp and records the size of every request.
type countingSource struct {
	data     *Array
	requests []int64
}

func (s *countingSource) ElementCount() int64 { return int64(s.data.Size()) }

func (s *countingSource) Fetch(_ context.Context, r *Region) (*Array, error) {
	s.requests = append(s.requests, r.Size())
	return s.data.Gather(r.idx)
}

func TestNewVar(t *testing.T) {
	t.Parallel()

	a, b := genericAxis("a", 3), genericAxis("b", 4)
	src := &countingSource{data: get(t, rampVar(t, "r", a, b))}
	v, err := NewVar("x", []*Axis{a, b}, src)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, v.Shape())
	assert.Equal(t, int64(12), v.Size())

	_, err = NewVar("x", []*Axis{a}, src)
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = FromArray("x", []*Axis{b}, NewArray(3))
	assert.ErrorIs(t, err, ErrConfiguration)

	m, err := Mean(v, "a")
	require.NoError(t, err)
	get(t, m, WithMemoryBudget(8*4))
	for _, n := range src.requests {
		assert.LessOrEqual(t, n, int64(4))
	}
}

func TestSliceFusion(t *testing.T) {
	t.Parallel()

	x := rampVar(t, "x", genericAxis("time", 10), genericAxis("lon", 2))
	s1, err := x.Slice("time", 2, 9)
	require.NoError(t, err)
	s2, err := s1.Take("time", []int{1, 4, 6})
	require.NoError(t, err)

	fused, ok := s2.node.(*sliced)
	require.True(t, ok)
	assert.Same(t, x, fused.src)
	assert.Equal(t, []float64{3, 6, 8}, s2.AxisAt(0).Values())
	assert.Equal(t, []float64{6, 7, 12, 13, 16, 17}, get(t, s2).Data())

	_, err = x.Take("time", []int{10})
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = x.Slice("lev", 0, 1)
	assert.ErrorIs(t, err, ErrAxisNotFound)
}

func TestCombineBroadcasts(t *testing.T) {
	t.Parallel()

	time, lon := genericAxis("time", 3), genericAxis("lon", 2)
	x := rampVar(t, "x", time, lon)
	y := fnVar(t, "y", func(idx []int) float64 { return float64(10 * (idx[0] + 1)) }, lon)

	d, err := Sub(x, y)
	require.NoError(t, err)
	assert.Equal(t, "x", d.Name())
	assert.Equal(t, []float64{-10, -19, -8, -17, -6, -15}, get(t, d).Data())

	p, err := Mul(x, y)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 20, 20, 60, 40, 100}, get(t, p).Data())

	_, err = Add(y, x)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestScalarAndLoad(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	x := rampVar(t, "x", genericAxis("a", 4))
	s, err := Sum(x)
	require.NoError(t, err)
	assert.Empty(t, s.Shape())
	v, err := s.Scalar(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6.0, v)

	_, err = x.Scalar(ctx)
	assert.ErrorIs(t, err, ErrConfiguration)

	m, err := Mean(x)
	require.NoError(t, err)
	loaded, err := m.Rename("avg").Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "avg", loaded.Name())
	_, ok := loaded.node.(*stored)
	assert.True(t, ok)
}

func TestFetchClipsRegion(t *testing.T) {
	t.Parallel()

	a := genericAxis("a", 4)
	x := rampVar(t, "x", a)
	got, err := x.Fetch(context.Background(), NewRegion(a).Take(0, []int{-1, 1, 3, 9}))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 3}, got.Data())

	_, err = x.Fetch(context.Background(), NewRegion(a, a))
	assert.ErrorIs(t, err, ErrResource)
}
