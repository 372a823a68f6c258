package geode

import (
	"context"
	"math"
	"sort"
	"strings"
)

// Kind names a reduction.
type Kind string

const (
	KindSum             Kind = "sum"
	KindNaNSum          Kind = "nansum"
	KindWeightedSum     Kind = "wsum"
	KindNaNWeightedSum  Kind = "nanwsum"
	KindMean            Kind = "mean"
	KindNaNMean         Kind = "nanmean"
	KindWeightedMean    Kind = "wmean"
	KindNaNWeightedMean Kind = "nanwmean"
	KindMin             Kind = "min"
	KindMax             Kind = "max"
	KindNaNMin          Kind = "nanmin"
	KindNaNMax          Kind = "nanmax"
	KindVariance        Kind = "var"
	KindNaNVariance     Kind = "nanvar"
	KindStdev           Kind = "std"
	KindNaNStdev        Kind = "nanstd"
	KindTrend           Kind = "trend"
)

// ParseKind resolves a reduction name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := reductions[k]; !ok {
		return "", configErrorf("unknown reduction %q (want one of %s)", s, strings.Join(Kinds(), ", "))
	}
	return k, nil
}

// Kinds lists every reduction name in sorted order.
func Kinds() []string {
	names := make([]string, 0, len(reductions))
	for k := range reductions {
		names = append(names, string(k))
	}
	sort.Strings(names)
	return names
}

// reduction is the accumulator layout and arithmetic of one Kind.
type reduction struct {
	kind     Kind
	init     []float64 // Initial value of every accumulator.
	weighted bool      // Data[1] of every chunk holds weights.
	coefs    int       // Length of a trailing output dimension, 0 if none.
	update   func(acc []*Array, c *Chunk)
	finalize func(acc []*Array, e *env) *Array
}

func (op *reduction) accumulators(shape []int) []*Array {
	acc := make([]*Array, len(op.init))
	for i, v := range op.init {
		acc[i] = Full(v, shape...)
	}
	return acc
}

// reductions is filled once at init and never modified afterwards.
var reductions map[Kind]*reduction

func init() {
	inf := math.Inf(1)
	reductions = map[Kind]*reduction{
		KindSum: {
			init: []float64{0},
			update: func(acc []*Array, c *Chunk) {
				AccumulateSum(c.Data[0], c.Scatter, acc[0], nil)
			},
			finalize: first,
		},
		KindNaNSum: {
			init: []float64{0, 0},
			update: func(acc []*Array, c *Chunk) {
				AccumulateNaNSum(c.Data[0], c.Scatter, acc[0], acc[1])
			},
			finalize: func(acc []*Array, _ *env) *Array { return emptyToNaN(acc[0], acc[1]) },
		},
		KindWeightedSum: {
			init:     []float64{0},
			weighted: true,
			update: func(acc []*Array, c *Chunk) {
				AccumulateSum(weighted(c), c.Scatter, acc[0], nil)
			},
			finalize: first,
		},
		KindNaNWeightedSum: {
			init:     []float64{0, 0},
			weighted: true,
			update: func(acc []*Array, c *Chunk) {
				AccumulateNaNSum(weighted(c), c.Scatter, acc[0], acc[1])
			},
			finalize: func(acc []*Array, _ *env) *Array { return emptyToNaN(acc[0], acc[1]) },
		},
		KindMean: {
			init: []float64{0, 0},
			update: func(acc []*Array, c *Chunk) {
				AccumulateSum(c.Data[0], c.Scatter, acc[0], acc[1])
			},
			finalize: func(acc []*Array, _ *env) *Array { return divide(acc[0], acc[1]) },
		},
		KindNaNMean: {
			init: []float64{0, 0},
			update: func(acc []*Array, c *Chunk) {
				AccumulateNaNSum(c.Data[0], c.Scatter, acc[0], acc[1])
			},
			finalize: func(acc []*Array, _ *env) *Array { return divide(acc[0], acc[1]) },
		},
		KindWeightedMean: {
			init:     []float64{0, 0},
			weighted: true,
			update: func(acc []*Array, c *Chunk) {
				AccumulateSum(weighted(c), c.Scatter, acc[0], nil)
				AccumulateEach(c.Scatter, acc[1], weightTotal(c)*broadcastFactor(c))
			},
			finalize: func(acc []*Array, _ *env) *Array { return divide(acc[0], acc[1]) },
		},
		KindNaNWeightedMean: {
			init:     []float64{0, 0},
			weighted: true,
			update: func(acc []*Array, c *Chunk) {
				AccumulateNaNSum(weighted(c), c.Scatter, acc[0], nil)
				AccumulateNaNSum(validWeights(c), c.Scatter, acc[1], nil)
			},
			finalize: func(acc []*Array, _ *env) *Array { return divide(acc[0], acc[1]) },
		},
		KindMin: {
			init: []float64{inf},
			update: func(acc []*Array, c *Chunk) {
				AccumulateMin(c.Data[0], c.Scatter, acc[0])
			},
			finalize: first,
		},
		KindMax: {
			init: []float64{-inf},
			update: func(acc []*Array, c *Chunk) {
				AccumulateMax(c.Data[0], c.Scatter, acc[0])
			},
			finalize: first,
		},
		KindNaNMin: {
			init: []float64{inf, 0},
			update: func(acc []*Array, c *Chunk) {
				AccumulateNaNMin(c.Data[0], c.Scatter, acc[0], acc[1])
			},
			finalize: func(acc []*Array, _ *env) *Array { return emptyToNaN(acc[0], acc[1]) },
		},
		KindNaNMax: {
			init: []float64{-inf, 0},
			update: func(acc []*Array, c *Chunk) {
				AccumulateNaNMax(c.Data[0], c.Scatter, acc[0], acc[1])
			},
			finalize: func(acc []*Array, _ *env) *Array { return emptyToNaN(acc[0], acc[1]) },
		},
		KindVariance: {
			init:     []float64{0, 0, 0},
			update:   moments(AccumulateSum),
			finalize: func(acc []*Array, _ *env) *Array { return variance(acc) },
		},
		KindNaNVariance: {
			init:     []float64{0, 0, 0},
			update:   moments(AccumulateNaNSum),
			finalize: func(acc []*Array, _ *env) *Array { return variance(acc) },
		},
		KindStdev: {
			init:     []float64{0, 0, 0},
			update:   moments(AccumulateSum),
			finalize: stdev,
		},
		KindNaNStdev: {
			init:     []float64{0, 0, 0},
			update:   moments(AccumulateNaNSum),
			finalize: stdev,
		},
		KindTrend: {
			init:     []float64{0, 0, 0, 0, 0},
			coefs:    2,
			update:   trendSums,
			finalize: trendCoefs,
		},
	}
	for k, op := range reductions {
		op.kind = k
	}
}

func first(acc []*Array, _ *env) *Array { return acc[0] }

// divide returns num/den, with NaN wherever den is zero.
func divide(num, den *Array) *Array {
	out := NewArray(num.shape...)
	for i, n := range num.data {
		if den.data[i] == 0 {
			out.data[i] = math.NaN()
			continue
		}
		out.data[i] = n / den.data[i]
	}
	return out
}

// emptyToNaN marks cells that received no valid element.
func emptyToNaN(a, count *Array) *Array {
	for i, n := range count.data {
		if n == 0 {
			a.data[i] = math.NaN()
		}
	}
	return a
}

// weighted multiplies the chunk values by the broadcast weights.
func weighted(c *Chunk) *Array {
	x := c.Data[0]
	w := c.Data[1].Broadcast(c.Dims[1], x.shape)
	for i, v := range x.data {
		w.data[i] *= v
	}
	return w
}

// validWeights broadcasts the weights, masking positions where the value
// is NaN.
func validWeights(c *Chunk) *Array {
	x := c.Data[0]
	w := c.Data[1].Broadcast(c.Dims[1], x.shape)
	for i, v := range x.data {
		if math.IsNaN(v) {
			w.data[i] = math.NaN()
		}
	}
	return w
}

func weightTotal(c *Chunk) float64 {
	s := 0.0
	for _, w := range c.Data[1].data {
		s += w
	}
	return s
}

// broadcastFactor is how many times every weight of the chunk is applied to
// a single output cell: the chunk size over the weight count times the
// number of output cells.
func broadcastFactor(c *Chunk) float64 {
	return float64(c.Data[0].Size()) / (float64(c.Data[1].Size()) * float64(c.OutSize()))
}

// moments accumulates sum(x), sum(x²) and N.
func moments(sum func(x *Array, s *Scatter, sum, count *Array)) func(acc []*Array, c *Chunk) {
	return func(acc []*Array, c *Chunk) {
		x := c.Data[0]
		sq := NewArray(x.shape...)
		for i, v := range x.data {
			sq.data[i] = v * v
		}
		sum(x, c.Scatter, acc[0], acc[2])
		sum(sq, c.Scatter, acc[1], nil)
	}
}

// variance uses the single-pass formula (Σx² - N·mean²)/(N-1), which loses
// precision when the variance is small relative to the mean.
func variance(acc []*Array) *Array {
	sx, sxx, n := acc[0], acc[1], acc[2]
	out := NewArray(sx.shape...)
	for i, cnt := range n.data {
		if cnt <= 1 {
			out.data[i] = math.NaN()
			continue
		}
		mean := sx.data[i] / cnt
		out.data[i] = (sxx.data[i] - cnt*mean*mean) / (cnt - 1)
	}
	return out
}

func stdev(acc []*Array, e *env) *Array {
	out := variance(acc)
	clamped := 0
	for i, v := range out.data {
		if v < 0 {
			v = 0
			clamped++
		}
		out.data[i] = math.Sqrt(v)
	}
	if clamped > 0 {
		e.logger.Warn("negative variance clamped to zero", "kind", "numeric", "cells", clamped)
	}
	return out
}

// trendSums accumulates Σt, Σx, Σtx, Σt² and N. Data[1] holds the time of
// every position in seconds.
func trendSums(acc []*Array, c *Chunk) {
	x := c.Data[0]
	t := c.Data[1].Broadcast(c.Dims[1], x.shape)
	tx := NewArray(x.shape...)
	tt := NewArray(x.shape...)
	for i, v := range x.data {
		tx.data[i] = t.data[i] * v
		tt.data[i] = t.data[i] * t.data[i]
	}
	AccumulateSum(t, c.Scatter, acc[0], nil)
	AccumulateSum(x, c.Scatter, acc[1], acc[4])
	AccumulateSum(tx, c.Scatter, acc[2], nil)
	AccumulateSum(tt, c.Scatter, acc[3], nil)
}

// trendCoefs solves the least squares fit x = A·t + B per cell. The result
// gains a trailing dimension holding B then A.
func trendCoefs(acc []*Array, _ *env) *Array {
	st, sx, stx, stt, n := acc[0], acc[1], acc[2], acc[3], acc[4]
	out := NewArray(append(append([]int{}, st.shape...), 2)...)
	for i, cnt := range n.data {
		et, ex, etx, ett := st.data[i]/cnt, sx.data[i]/cnt, stx.data[i]/cnt, stt.data[i]/cnt
		den := ett - et*et
		out.data[2*i] = (ett*ex - et*etx) / den
		out.data[2*i+1] = (etx - et*ex) / den
	}
	return out
}

// ReduceOption configures Reduce.
type ReduceOption func(*reduceOptions)

type reduceOptions struct {
	weights     *Var
	axisWeights bool
}

// Weights weights the reduction by w, whose axes must all be reduced over.
// Plain sums and means switch to their weighted counterparts.
func Weights(w *Var) ReduceOption {
	return func(o *reduceOptions) { o.weights = w }
}

// AxisWeights weights the reduction by the product of the weights carried
// by the reduced axes, latitude for instance.
func AxisWeights() ReduceOption {
	return func(o *reduceOptions) { o.axisWeights = true }
}

var weightedKinds = map[Kind]Kind{
	KindSum:     KindWeightedSum,
	KindNaNSum:  KindNaNWeightedSum,
	KindMean:    KindWeightedMean,
	KindNaNMean: KindNaNWeightedMean,
}

// Reduce collapses the named axes of x, or all of them when none are
// named. The result is lazy.
func Reduce(x *Var, kind Kind, axes []string, opts ...ReduceOption) (*Var, error) {
	o := &reduceOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if kind == KindTrend {
		return nil, configErrorf("trend is a time reduction, use LinearTrend or ClimTrend")
	}

	dims, err := reduceDims(x, axes)
	if err != nil {
		return nil, err
	}
	w := o.weights
	if w == nil && o.axisWeights {
		if w, err = axisWeights(x, dims); err != nil {
			return nil, err
		}
	}
	if w != nil {
		if wk, ok := weightedKinds[kind]; ok {
			kind = wk
		}
	}
	op, ok := reductions[kind]
	if !ok {
		return nil, configErrorf("unknown reduction %q", kind)
	}
	switch {
	case op.weighted && w == nil:
		return nil, configErrorf("%s reduction of %q needs weights", kind, x.name)
	case !op.weighted && w != nil:
		return nil, configErrorf("%s reduction does not take weights", kind)
	case w != nil:
		if err := checkWeights(x, w, dims); err != nil {
			return nil, err
		}
	}

	reduced := make(map[int]bool, len(dims))
	for _, d := range dims {
		reduced[d] = true
	}
	var outAxes []*Axis
	for d, a := range x.axes {
		if !reduced[d] {
			outAxes = append(outAxes, a)
		}
	}
	return &Var{name: x.name, axes: outAxes, node: &reducedNode{src: x, weights: w, dims: dims, op: op}}, nil
}

func reduceDims(x *Var, axes []string) ([]int, error) {
	if len(axes) == 0 {
		return seq(0, x.NDim()), nil
	}
	dims := make([]int, 0, len(axes))
	seen := make(map[int]bool, len(axes))
	for _, name := range axes {
		d, err := x.AxisIndex(name)
		if err != nil {
			return nil, err
		}
		if seen[d] {
			return nil, configErrorf("axis %q named twice", name)
		}
		seen[d] = true
		dims = append(dims, d)
	}
	sort.Ints(dims)
	return dims, nil
}

// checkWeights requires every weights axis to be one of the reduced axes of
// x, in the same relative order.
func checkWeights(x, w *Var, dims []int) error {
	reduced := make(map[string]bool, len(dims))
	for _, d := range dims {
		reduced[x.axes[d].name] = true
	}
	for _, a := range w.axes {
		if !reduced[a.name] {
			return configErrorf("weights axis %q is not reduced over", a.name)
		}
	}
	if _, _, err := x.Region().Project(w.axes); err != nil {
		return configErrorf("weights do not line up with %q: %v", x.name, err)
	}
	return nil
}

// axisWeights is the outer product of the weights of the reduced axes that
// carry any. It is nil when none do.
func axisWeights(x *Var, dims []int) (*Var, error) {
	var axes []*Axis
	for _, d := range dims {
		if x.axes[d].HasWeights() {
			axes = append(axes, x.axes[d])
		}
	}
	if len(axes) == 0 {
		return nil, nil
	}
	shape := make([]int, len(axes))
	for k, a := range axes {
		shape[k] = a.Len()
	}
	w := Full(1, shape...)
	for k, a := range axes {
		aw, err := NewArrayFrom(a.weights, a.Len())
		if err != nil {
			return nil, err
		}
		b := aw.Broadcast([]int{k}, shape)
		for i, v := range b.data {
			w.data[i] *= v
		}
	}
	return FromArray("weights", axes, w)
}

type reducedNode struct {
	src     *Var
	weights *Var
	dims    []int
	op      *reduction
}

func (n *reducedNode) fetch(ctx context.Context, r *Region, e *env) (*Array, error) {
	vars := []*Var{n.src}
	if n.weights != nil {
		vars = append(vars, n.weights)
	}
	loop, err := streamReduce(ctx, e, vars, r, n.dims)
	if err != nil {
		return nil, err
	}
	return accumulate(loop, n.op, e)
}

// accumulate drains a loop into fresh accumulators and finalizes them.
func accumulate(loop *Loop, op *reduction, e *env) (*Array, error) {
	acc := op.accumulators(loop.OutShape())
	for loop.Next() {
		op.update(acc, loop.Chunk())
	}
	if err := loop.Err(); err != nil {
		return nil, err
	}
	return op.finalize(acc, e), nil
}

func Sum(x *Var, axes ...string) (*Var, error)         { return Reduce(x, KindSum, axes) }
func NaNSum(x *Var, axes ...string) (*Var, error)      { return Reduce(x, KindNaNSum, axes) }
func Mean(x *Var, axes ...string) (*Var, error)        { return Reduce(x, KindMean, axes) }
func NaNMean(x *Var, axes ...string) (*Var, error)     { return Reduce(x, KindNaNMean, axes) }
func Min(x *Var, axes ...string) (*Var, error)         { return Reduce(x, KindMin, axes) }
func Max(x *Var, axes ...string) (*Var, error)         { return Reduce(x, KindMax, axes) }
func NaNMin(x *Var, axes ...string) (*Var, error)      { return Reduce(x, KindNaNMin, axes) }
func NaNMax(x *Var, axes ...string) (*Var, error)      { return Reduce(x, KindNaNMax, axes) }
func Variance(x *Var, axes ...string) (*Var, error)    { return Reduce(x, KindVariance, axes) }
func NaNVariance(x *Var, axes ...string) (*Var, error) { return Reduce(x, KindNaNVariance, axes) }
func Stdev(x *Var, axes ...string) (*Var, error)       { return Reduce(x, KindStdev, axes) }
func NaNStdev(x *Var, axes ...string) (*Var, error)    { return Reduce(x, KindNaNStdev, axes) }
