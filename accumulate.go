package geode

import "math"

// The Accumulate functions fold one chunk into accumulator arrays shaped
// like the loop output. Every function applies the chunk's Scatter, so the
// same code serves whole-axis reductions and binned reductions.

// AccumulateSum adds every element of x into sum and, when count is not nil,
// one per element into count. NaNs propagate.
func AccumulateSum(x *Array, s *Scatter, sum, count *Array) {
	s.Each(func(in, out int) {
		sum.data[out] += x.data[in]
		if count != nil {
			count.data[out]++
		}
	})
}

// AccumulateNaNSum is AccumulateSum ignoring NaN elements.
func AccumulateNaNSum(x *Array, s *Scatter, sum, count *Array) {
	s.Each(func(in, out int) {
		v := x.data[in]
		if math.IsNaN(v) {
			return
		}
		sum.data[out] += v
		if count != nil {
			count.data[out]++
		}
	})
}

// AccumulateMin keeps the running minimum. A NaN element poisons its cell.
func AccumulateMin(x *Array, s *Scatter, acc *Array) {
	s.Each(func(in, out int) {
		acc.data[out] = math.Min(acc.data[out], x.data[in])
	})
}

func AccumulateMax(x *Array, s *Scatter, acc *Array) {
	s.Each(func(in, out int) {
		acc.data[out] = math.Max(acc.data[out], x.data[in])
	})
}

// AccumulateNaNMin keeps the running minimum of non-NaN elements and counts
// them, so cells that only saw NaNs can be told apart.
func AccumulateNaNMin(x *Array, s *Scatter, acc, count *Array) {
	s.Each(func(in, out int) {
		if v := x.data[in]; !math.IsNaN(v) {
			acc.data[out] = math.Min(acc.data[out], v)
			count.data[out]++
		}
	})
}

func AccumulateNaNMax(x *Array, s *Scatter, acc, count *Array) {
	s.Each(func(in, out int) {
		if v := x.data[in]; !math.IsNaN(v) {
			acc.data[out] = math.Max(acc.data[out], v)
			count.data[out]++
		}
	})
}

// AccumulateEach adds v once to every cell the chunk contributes to.
func AccumulateEach(s *Scatter, acc *Array, v float64) {
	for _, off := range s.cells {
		acc.data[off] += v
	}
}
