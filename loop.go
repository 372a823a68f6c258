package geode

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/qri-io/geode")

// Chunk is one budget-bounded piece of a loop.
type Chunk struct {
	Index int // Position of the chunk within the loop.
	Count int // Number of chunks in the loop.

	// Data holds one array per driven Var, shaped like the chunk region
	// projected onto that Var's axes.
	Data []*Array
	// Dims maps the dimensions of every Data array to the dimensions of the
	// primary Var, Data[0].
	Dims [][]int
	// Out is the output slice the chunk contributes to, one span per output
	// dimension.
	Out []Span
	// Bins holds the output bin of every chunk position along the mapped
	// dimension. It is nil when the loop reduces over whole axes.
	Bins []int
	// Scatter routes every element of Data[0] to its accumulator cell.
	Scatter *Scatter
}

// OutSize is the number of distinct output cells the chunk contributes to.
func (c *Chunk) OutSize() int { return len(c.Scatter.cells) }

// Scatter maps the positions of a chunk onto flat accumulator offsets.
type Scatter struct {
	shape []int
	table [][]int
	cells []int
}

// Each calls fn with the flat position of every chunk element and the
// accumulator offset it contributes to.
func (s *Scatter) Each(fn func(in, out int)) { eachOffset(s.shape, s.table, fn) }

// Cells lists the distinct accumulator offsets the chunk contributes to.
func (s *Scatter) Cells() []int { return s.cells }

// role describes how one dimension of the input region reaches the output.
type role struct {
	out  int   // Output dimension, or -1 when reduced away.
	bins []int // Local output bin of every input position on a binned dimension.
}

// Loop iterates a set of Vars over a region in memory-bounded chunks:
//
//	loop, err := Stream(ctx, vars, out, dim)
//	for loop.Next() {
//		c := loop.Chunk()
//		...
//	}
//	err = loop.Err()
type Loop struct {
	ctx      context.Context
	env      *env
	vars     []*Var
	dims     [][]int
	in       *Region
	outShape []int
	roles    []role
	pieces   [][]Span
	shares   []float64

	next     int
	cur      *Chunk
	err      error
	span     trace.Span
	elements int64
	done     bool
}

// Stream prepares a chunked traversal of vars for an output region whose
// dimension dim is binned from the primary Var's axis by CommonMap. Every
// other dimension of out must match the primary Var. Vars after the first
// are auxiliary and span a subset of its axes in the same order.
func Stream(ctx context.Context, vars []*Var, out *Region, dim int, opts ...Option) (*Loop, error) {
	return streamBinned(ctx, newEnv(opts), vars, out, dim)
}

// StreamReduce prepares a chunked traversal of vars that collapses the
// dimensions dims of the primary Var. out addresses the remaining ones.
func StreamReduce(ctx context.Context, vars []*Var, out *Region, dims []int, opts ...Option) (*Loop, error) {
	return streamReduce(ctx, newEnv(opts), vars, out, dims)
}

func streamBinned(ctx context.Context, e *env, vars []*Var, out *Region, dim int) (*Loop, error) {
	if len(vars) == 0 {
		return nil, configErrorf("nothing to loop over")
	}
	x := vars[0]
	if out.NDim() != x.NDim() {
		return nil, resourceErrorf("output region (%s) does not match %q (%s)", out.names(), x.name, NewRegion(x.axes...).names())
	}
	if dim < 0 || dim >= x.NDim() {
		return nil, resourceErrorf("mapped dimension %d out of range for %q", dim, x.name)
	}
	out = out.Clip()
	for d, a := range x.axes {
		if d != dim && a.Len() != out.axes[d].Len() {
			return nil, resourceErrorf("output axis %q has length %d, %q axis %q has %d", out.axes[d].name, out.axes[d].Len(), x.name, a.name, a.Len())
		}
	}

	intime, outtime := x.axes[dim], out.axes[dim]
	m, err := CommonMap(intime, outtime)
	if err != nil {
		return nil, err
	}
	if err := checkCoverage(m, outtime, out.idx[dim]); err != nil {
		return nil, err
	}
	// A bin requested more than once gets every contribution at each of its
	// local positions.
	local := make(map[int][]int, len(out.idx[dim]))
	for p, o := range out.idx[dim] {
		local[o] = append(local[o], p)
	}
	var inIdx, bins []int
	for k, i := range m.In {
		for _, p := range local[m.Out[k]] {
			inIdx = append(inIdx, i)
			bins = append(bins, p)
		}
	}

	in := &Region{axes: append([]*Axis{}, x.axes...), idx: make([][]int, x.NDim())}
	roles := make([]role, x.NDim())
	for d := range x.axes {
		in.idx[d] = out.idx[d]
		roles[d] = role{out: d}
	}
	in.idx[dim] = inIdx
	roles[dim].bins = bins
	return newLoop(ctx, e, vars, in, out.Shape(), roles)
}

func streamReduce(ctx context.Context, e *env, vars []*Var, out *Region, dims []int) (*Loop, error) {
	if len(vars) == 0 {
		return nil, configErrorf("nothing to loop over")
	}
	x := vars[0]
	reduced := make([]bool, x.NDim())
	for _, d := range dims {
		if d < 0 || d >= x.NDim() || reduced[d] {
			return nil, configErrorf("bad reduction dimension %d for %q", d, x.name)
		}
		reduced[d] = true
	}
	if out.NDim() != x.NDim()-len(dims) {
		return nil, resourceErrorf("output region (%s) does not match %q reduced over %d axes", out.names(), x.name, len(dims))
	}
	out = out.Clip()

	in := &Region{axes: append([]*Axis{}, x.axes...), idx: make([][]int, x.NDim())}
	roles := make([]role, x.NDim())
	j := 0
	for d, a := range x.axes {
		if reduced[d] {
			in.idx[d] = seq(0, a.Len())
			roles[d] = role{out: -1}
			continue
		}
		if a.Len() != out.axes[j].Len() {
			return nil, resourceErrorf("output axis %q has length %d, %q axis %q has %d", out.axes[j].name, out.axes[j].Len(), x.name, a.name, a.Len())
		}
		in.idx[d] = out.idx[j]
		roles[d] = role{out: j}
		j++
	}
	return newLoop(ctx, e, vars, in, out.Shape(), roles)
}

func newLoop(ctx context.Context, e *env, vars []*Var, in *Region, outShape []int, roles []role) (*Loop, error) {
	l := &Loop{
		env:      e,
		vars:     vars,
		dims:     make([][]int, len(vars)),
		in:       in,
		outShape: outShape,
		roles:    roles,
		shares:   make([]float64, len(vars)+1),
	}
	var total int64
	for k, v := range vars {
		if k == 0 {
			l.dims[k] = seq(0, in.NDim())
		} else {
			_, dims, err := in.Project(v.axes)
			if err != nil {
				return nil, fmt.Errorf("auxiliary %q: %w", v.name, err)
			}
			l.dims[k] = dims
		}
		total += v.Size()
	}
	for k, v := range vars {
		l.shares[k+1] = l.shares[k]
		if total > 0 {
			l.shares[k+1] += float64(v.Size()) / float64(total)
		}
	}

	perVar := e.budget / elementBytes / int64(len(vars))
	if perVar < 1 {
		perVar = 1
	}
	l.pieces = splitSpans(in.Shape(), perVar)
	l.ctx, l.span = tracer.Start(ctx, "geode.Loop", trace.WithAttributes(
		attribute.String("var", vars[0].name),
		attribute.Int("chunks", len(l.pieces)),
		attribute.Int64("elements", in.Size()),
	))
	e.logger.DebugContext(l.ctx, "chunk loop",
		"var", vars[0].name,
		"region", in.String(),
		"chunks", len(l.pieces),
		"budget", humanize.IBytes(uint64(e.budget)))
	return l, nil
}

// Next materializes the following chunk. It returns false when the loop is
// exhausted or failed; Err tells the two apart.
func (l *Loop) Next() bool {
	if l.done {
		return false
	}
	if l.next >= len(l.pieces) {
		l.finish(nil)
		return false
	}
	began := time.Now()
	n := len(l.pieces)
	spans := l.pieces[l.next]
	sub := l.in.Sub(spans)
	c := &Chunk{Index: l.next, Count: n, Data: make([]*Array, len(l.vars)), Dims: l.dims}

	lo, width := float64(l.next)/float64(n), 1/float64(n)
	for k, v := range l.vars {
		r := sub
		if k > 0 {
			r, _, _ = sub.Project(v.axes)
		}
		e := l.env.part(lo+width*l.shares[k], lo+width*l.shares[k+1])
		a, err := v.fetch(l.ctx, r, e)
		if err != nil {
			l.finish(fmt.Errorf("chunk %d/%d of %q: %w", l.next+1, n, v.name, err))
			return false
		}
		c.Data[k] = a
	}
	c.Out, c.Bins, c.Scatter = l.place(spans)

	elements := c.Data[0].Size()
	l.elements += int64(elements)
	if l.env.observer != nil {
		l.env.observer.ObserveChunk(elements, time.Since(began))
	}
	l.next++
	l.env.progress.Update(float64(l.next)/float64(n), fmt.Sprintf("%s: chunk %d/%d", l.vars[0].name, l.next, n))
	l.cur = c
	return true
}

// Chunk returns the chunk produced by the last successful Next.
func (l *Loop) Chunk() *Chunk { return l.cur }

func (l *Loop) Err() error { return l.err }

// Len is the number of chunks the loop yields.
func (l *Loop) Len() int { return len(l.pieces) }

// OutShape is the shape of the accumulators the loop scatters into.
func (l *Loop) OutShape() []int { return append([]int{}, l.outShape...) }

func (l *Loop) finish(err error) {
	l.done = true
	l.cur = nil
	l.err = err
	l.span.SetAttributes(attribute.Int64("elements.read", l.elements))
	if err != nil {
		l.span.RecordError(err)
		l.span.SetStatus(codes.Error, err.Error())
	}
	l.span.End()
}

// place computes the output slice and scatter tables of a chunk.
func (l *Loop) place(spans []Span) ([]Span, []int, *Scatter) {
	strides := rowMajorStrides(l.outShape)
	out := make([]Span, len(l.outShape))
	for j, n := range l.outShape {
		out[j] = Span{Start: 0, End: n}
	}
	s := &Scatter{shape: make([]int, len(spans)), table: make([][]int, len(spans))}
	var bins []int
	outTables := make([][]int, len(l.outShape))
	for d, sp := range spans {
		rl := l.roles[d]
		s.shape[d] = sp.Len()
		t := make([]int, sp.Len())
		switch {
		case rl.out < 0:
		case rl.bins != nil:
			bins = rl.bins[sp.Start:sp.End]
			lo, hi := bins[0], bins[0]
			for i, b := range bins {
				t[i] = b * strides[rl.out]
				if b < lo {
					lo = b
				}
				if b > hi {
					hi = b
				}
			}
			out[rl.out] = Span{Start: lo, End: hi + 1}
			outTables[rl.out] = distinctOffsets(bins, strides[rl.out])
		default:
			for i := range t {
				t[i] = (sp.Start + i) * strides[rl.out]
			}
			out[rl.out] = sp
			outTables[rl.out] = t
		}
		s.table[d] = t
	}
	cellShape := make([]int, len(outTables))
	for j, t := range outTables {
		cellShape[j] = len(t)
	}
	eachOffset(cellShape, outTables, func(_, off int) {
		s.cells = append(s.cells, off)
	})
	return out, bins, s
}

func distinctOffsets(bins []int, stride int) []int {
	seen := make(map[int]bool, len(bins))
	var t []int
	for _, b := range bins {
		if !seen[b] {
			seen[b] = true
			t = append(t, b*stride)
		}
	}
	return t
}
