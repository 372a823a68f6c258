package geode

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// scatterAll routes a one-dimensional chunk onto bins.
func scatterAll(bins []int) *Scatter {
	s := &Scatter{shape: []int{len(bins)}, table: [][]int{bins}}
	seen := map[int]bool{}
	for _, b := range bins {
		if !seen[b] {
			seen[b] = true
			s.cells = append(s.cells, b)
		}
	}
	return s
}

func TestAccumulateNaNAware(t *testing.T) {
	t.Parallel()

	nan := math.NaN()
	x, _ := NewArrayFrom([]float64{1, nan, nan, 2, nan}, 5)
	s := scatterAll([]int{0, 1, 1, 0, 2})

	sum, count := NewArray(3), NewArray(3)
	AccumulateNaNSum(x, s, sum, count)
	assert.Equal(t, []float64{3, 0, 0}, sum.Data())
	assert.Equal(t, []float64{2, 0, 0}, count.Data())
	assert.True(t, AllClose(divide(sum, count), mustArray(t, []float64{1.5, nan, nan}), 0))

	plain := NewArray(3)
	AccumulateSum(x, s, plain, nil)
	assert.True(t, math.IsNaN(plain.At(1)))

	lo, n := Full(math.Inf(1), 3), NewArray(3)
	AccumulateNaNMin(x, s, lo, n)
	assert.True(t, AllClose(emptyToNaN(lo, n), mustArray(t, []float64{1, nan, nan}), 0))

	hi := Full(math.Inf(-1), 3)
	AccumulateMax(x, s, hi)
	assert.Equal(t, 2.0, hi.At(0))
	assert.True(t, math.IsNaN(hi.At(1)))
}

func TestAccumulateIsOrderIndependent(t *testing.T) {
	t.Parallel()

	x, _ := NewArrayFrom([]float64{4, -1, 7, 3, 0.5, 9}, 6)
	bins := []int{1, 0, 1, 2, 0, 2}
	whole := NewArray(3)
	AccumulateSum(x, scatterAll(bins), whole, nil)

	// The same data split into two chunks, fed in reverse order.
	split := NewArray(3)
	for _, part := range [][2]int{{3, 6}, {0, 3}} {
		xs, _ := NewArrayFrom(x.Data()[part[0]:part[1]], part[1]-part[0])
		AccumulateSum(xs, scatterAll(bins[part[0]:part[1]]), split, nil)
	}
	assert.Equal(t, whole.Data(), split.Data())
	assert.Equal(t, []float64{-0.5, 11, 12}, whole.Data())
}

func TestAccumulateEach(t *testing.T) {
	t.Parallel()

	acc := NewArray(3)
	AccumulateEach(scatterAll([]int{2, 0, 2}), acc, 1.5)
	assert.Equal(t, []float64{1.5, 0, 1.5}, acc.Data())
}

func mustArray(t *testing.T, data []float64, shape ...int) *Array {
	t.Helper()
	if len(shape) == 0 {
		shape = []int{len(data)}
	}
	a, err := NewArrayFrom(data, shape...)
	if err != nil {
		t.Fatal(err)
	}
	return a
}
