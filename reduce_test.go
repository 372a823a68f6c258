package geode

import (
	"bytes"
	"context"
	"log/slog"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

func TestVarianceOfOneToFive(t *testing.T) {
	t.Parallel()

	x, err := FromArray("x", []*Axis{genericAxis("i", 5)}, mustArray(t, []float64{1, 2, 3, 4, 5}))
	require.NoError(t, err)
	ctx := context.Background()

	v, err := Variance(x)
	require.NoError(t, err)
	got, err := v.Scalar(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, got, 1e-12)

	s, err := Stdev(x)
	require.NoError(t, err)
	got, err = s.Scalar(ctx)
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt(2.5), got, 1e-12)
	assert.InDelta(t, 1.5811, got, 1e-4)
}

func TestReductionsMatchGonum(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))
	x := fnVar(t, "x", func([]int) float64 { return rng.NormFloat64()*3 + 10 },
		genericAxis("time", 40), genericAxis("lon", 3))
	raw := get(t, x)
	column := func(j int) []float64 {
		c := make([]float64, 40)
		for i := range c {
			c[i] = raw.At(i, j)
		}
		return c
	}

	cases := []struct {
		kind   Kind
		oracle func([]float64) float64
	}{
		{KindMean, func(c []float64) float64 { return stat.Mean(c, nil) }},
		{KindVariance, func(c []float64) float64 { return stat.Variance(c, nil) }},
		{KindStdev, func(c []float64) float64 { return stat.StdDev(c, nil) }},
		{KindSum, func(c []float64) float64 { return stat.Mean(c, nil) * float64(len(c)) }},
	}
	for _, c := range cases {
		r, err := Reduce(x, c.kind, []string{"time"})
		require.NoError(t, err)
		for _, budget := range budgets {
			got := get(t, r, WithMemoryBudget(budget))
			require.Equal(t, []int{3}, got.Shape())
			for j := 0; j < 3; j++ {
				assert.InDelta(t, c.oracle(column(j)), got.At(j), 1e-9, "%s lon=%d budget=%d", c.kind, j, budget)
			}
		}
	}
}

func TestReductionsIgnoreChunking(t *testing.T) {
	t.Parallel()

	nan := math.NaN()
	rng := rand.New(rand.NewSource(11))
	x := fnVar(t, "x", func(idx []int) float64 {
		if idx[0] == 2 && idx[2] == 1 {
			return nan
		}
		return rng.Float64() * 100
	}, mustTimeAxis(t, steps(t0, 10, everyMonth), Month), NewLatAxis([]float64{-45, 0, 45, 80}), genericAxis("lon", 5))

	for _, kind := range Kinds() {
		if Kind(kind) == KindTrend || reductions[Kind(kind)].weighted {
			continue
		}
		for _, axes := range [][]string{{"time"}, {"lat", "lon"}, nil} {
			r, err := Reduce(x, Kind(kind), axes)
			require.NoError(t, err)
			want := get(t, r, WithMemoryBudget(1<<20))
			for _, budget := range budgets {
				assert.True(t, AllClose(get(t, r, WithMemoryBudget(budget)), want, 1e-10), "%s over %v at %d bytes", kind, axes, budget)
			}
		}
	}

	weighted, err := Reduce(x, KindNaNMean, []string{"lat"}, AxisWeights())
	require.NoError(t, err)
	want := get(t, weighted)
	for _, budget := range budgets {
		assert.True(t, AllClose(get(t, weighted, WithMemoryBudget(budget)), want, 1e-10))
	}
}

func TestMeanOfConstant(t *testing.T) {
	t.Parallel()

	x := fnVar(t, "x", func([]int) float64 { return 3.25 }, genericAxis("a", 4), genericAxis("b", 3), genericAxis("c", 2))
	for _, axes := range [][]string{{"a"}, {"b"}, {"c"}, {"a", "c"}, nil} {
		m, err := Mean(x, axes...)
		require.NoError(t, err)
		for _, v := range get(t, m, WithMemoryBudget(16)).Data() {
			assert.InDelta(t, 3.25, v, 1e-12)
		}
	}
}

func TestNaNReductions(t *testing.T) {
	t.Parallel()

	nan := math.NaN()
	x := fnVar(t, "x", func(idx []int) float64 {
		if idx[1] == 0 {
			return nan
		}
		return float64(idx[0] + 1)
	}, genericAxis("time", 4), genericAxis("lon", 2))

	for _, kind := range []Kind{KindNaNSum, KindNaNMean, KindNaNMin, KindNaNMax, KindNaNVariance, KindNaNStdev} {
		r, err := Reduce(x, kind, []string{"time"})
		require.NoError(t, err)
		got := get(t, r)
		assert.True(t, math.IsNaN(got.At(0)), "%s of an all-NaN bin", kind)
		assert.False(t, math.IsNaN(got.At(1)), kind)
	}
	m, err := NaNMean(x, "time")
	require.NoError(t, err)
	assert.Equal(t, 2.5, get(t, m).At(1))

	clean := rampVar(t, "y", genericAxis("time", 6), genericAxis("lon", 3))
	for plain, nanAware := range map[Kind]Kind{KindSum: KindNaNSum, KindMean: KindNaNMean, KindMin: KindNaNMin, KindMax: KindNaNMax} {
		a, err := Reduce(clean, plain, []string{"time"})
		require.NoError(t, err)
		b, err := Reduce(clean, nanAware, []string{"time"})
		require.NoError(t, err)
		assert.Equal(t, get(t, a).Data(), get(t, b).Data(), "%s vs %s", plain, nanAware)
	}
}

func TestWeightedMean(t *testing.T) {
	t.Parallel()

	lat := NewLatAxis([]float64{-60, -20, 20, 60})
	x := rampVar(t, "x", genericAxis("time", 3), lat, genericAxis("lon", 2))

	ones := fnVar(t, "w", func([]int) float64 { return 1 }, lat)
	weighted, err := Reduce(x, KindMean, []string{"time", "lat"}, Weights(ones))
	require.NoError(t, err)
	plain, err := Mean(x, "time", "lat")
	require.NoError(t, err)
	for _, budget := range budgets {
		assert.True(t, AllClose(get(t, weighted, WithMemoryBudget(budget)), get(t, plain), 1e-12))
	}

	// cos-latitude weights by hand
	byAxis, err := Reduce(x, KindMean, []string{"lat"}, AxisWeights())
	require.NoError(t, err)
	got := get(t, byAxis, WithMemoryBudget(24))
	raw := get(t, x)
	w := lat.Weights()
	for i := 0; i < 3; i++ {
		for k := 0; k < 2; k++ {
			num, den := 0.0, 0.0
			for j, wj := range w {
				num += wj * raw.At(i, j, k)
				den += wj
			}
			assert.InDelta(t, num/den, got.At(i, k), 1e-9)
		}
	}

	wsum, err := Reduce(x, KindSum, []string{"lat"}, Weights(ones))
	require.NoError(t, err)
	sum, err := Sum(x, "lat")
	require.NoError(t, err)
	assert.True(t, AllClose(get(t, wsum), get(t, sum), 1e-12))
}

func TestWeightsOutsideReduction(t *testing.T) {
	t.Parallel()

	lat, lon := genericAxis("lat", 3), genericAxis("lon", 2)
	x := rampVar(t, "x", genericAxis("time", 4), lat, lon)
	w := fnVar(t, "w", func([]int) float64 { return 1 }, lat, lon)

	_, err := Reduce(x, KindMean, []string{"lat"}, Weights(w))
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = Reduce(x, KindWeightedMean, []string{"lat"})
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = Reduce(x, KindMin, []string{"lat"}, Weights(w))
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = Reduce(x, KindTrend, []string{"time"})
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = Reduce(x, Kind("median"), nil)
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = Mean(x, "lev")
	assert.ErrorIs(t, err, ErrAxisNotFound)
}

func TestAxisWeightsRejectsBadLength(t *testing.T) {
	t.Parallel()

	lat := genericAxis("lat", 3)
	lat.weights = []float64{1, 2}
	x := rampVar(t, "x", genericAxis("time", 2), lat)

	_, err := Reduce(x, KindMean, []string{"lat"}, AxisWeights())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "array data has 2 values")
}

func TestStdevClampsNegativeVariance(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	e := newEnv([]Option{WithLogger(slog.New(slog.NewTextHandler(buf, nil)))})
	acc := []*Array{Full(3, 1), Full(2, 1), Full(3, 1)}
	got := stdev(acc, e)
	assert.Equal(t, 0.0, got.At(0))
	assert.Contains(t, buf.String(), "kind=numeric")
}

func TestParseKind(t *testing.T) {
	t.Parallel()

	k, err := ParseKind(" NaNMean ")
	require.NoError(t, err)
	assert.Equal(t, KindNaNMean, k)
	_, err = ParseKind("mode")
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Len(t, Kinds(), 17)
}

func TestReducedRegionFetch(t *testing.T) {
	t.Parallel()

	x := rampVar(t, "x", genericAxis("time", 5), genericAxis("lat", 4), genericAxis("lon", 3))
	m, err := Mean(x, "time")
	require.NoError(t, err)
	full := get(t, m)

	part, err := m.Fetch(context.Background(), m.Region().Slice(0, 1, 3, 1).Take(1, []int{2, 0}))
	require.NoError(t, err)
	want, err := full.Gather([][]int{{1, 2}, {2, 0}})
	require.NoError(t, err)
	assert.Equal(t, want.Data(), part.Data())
}
