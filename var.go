package geode

import (
	"context"
	"fmt"
)

// DataSource supplies the raw values of a Var. Fetch must return an array
// shaped like the region, holding the selected positions in order.
type DataSource interface {
	Fetch(ctx context.Context, r *Region) (*Array, error)
	ElementCount() int64
}

// node produces the values of a region. Nodes address their inputs only
// through the region index lists; axis metadata they depend on is captured
// when the node is built.
type node interface {
	fetch(ctx context.Context, r *Region, e *env) (*Array, error)
}

// Var is a lazily evaluated, named n-dimensional variable. Building a Var
// never touches data; values are computed only by Fetch, Get and Load.
type Var struct {
	name string
	axes []*Axis
	node node
}

// NewVar wraps a data source whose element count must match the axes.
func NewVar(name string, axes []*Axis, src DataSource) (*Var, error) {
	v := &Var{name: name, axes: append([]*Axis{}, axes...), node: &sourced{src: src}}
	if n := src.ElementCount(); n != v.Size() {
		return nil, configErrorf("source for %q holds %d elements, axes (%s) need %d", name, n, NewRegion(axes...).names(), v.Size())
	}
	return v, nil
}

// FromArray wraps an in-memory array.
func FromArray(name string, axes []*Axis, a *Array) (*Var, error) {
	v := &Var{name: name, axes: append([]*Axis{}, axes...), node: &stored{a: a}}
	if !sameShape(a.shape, v.Shape()) {
		return nil, configErrorf("array for %q has shape %v, axes need %v", name, a.shape, v.Shape())
	}
	return v, nil
}

func (v *Var) Name() string       { return v.name }
func (v *Var) Axes() []*Axis      { return append([]*Axis{}, v.axes...) }
func (v *Var) AxisAt(d int) *Axis { return v.axes[d] }
func (v *Var) NDim() int          { return len(v.axes) }

func (v *Var) Shape() []int {
	shape := make([]int, len(v.axes))
	for d, a := range v.axes {
		shape[d] = a.Len()
	}
	return shape
}

func (v *Var) Size() int64 { return int64(product(v.Shape())) }

// Region selects the whole Var.
func (v *Var) Region() *Region { return NewRegion(v.axes...) }

// AxisIndex returns the dimension of the named axis.
func (v *Var) AxisIndex(name string) (int, error) {
	for d, a := range v.axes {
		if a.name == name {
			return d, nil
		}
	}
	return -1, fmt.Errorf("%w: %q in %q (%s)", ErrAxisNotFound, name, v.name, NewRegion(v.axes...).names())
}

func (v *Var) Axis(name string) (*Axis, error) {
	d, err := v.AxisIndex(name)
	if err != nil {
		return nil, err
	}
	return v.axes[d], nil
}

// FamilyIndex returns the dimension of the first axis of family f.
func (v *Var) FamilyIndex(f Family) (int, error) {
	for d, a := range v.axes {
		if a.family == f {
			return d, nil
		}
	}
	return -1, fmt.Errorf("%w: no %s axis in %q (%s)", ErrAxisNotFound, f, v.name, NewRegion(v.axes...).names())
}

// Rename returns the same Var under a new name.
func (v *Var) Rename(name string) *Var {
	c := *v
	c.name = name
	return &c
}

// ReplaceAxis relabels dimension d with an axis of the same length.
func (v *Var) ReplaceAxis(d int, ax *Axis) (*Var, error) {
	if ax.Len() != v.axes[d].Len() {
		return nil, configErrorf("cannot replace axis %q of length %d with %q of length %d", v.axes[d].name, v.axes[d].Len(), ax.name, ax.Len())
	}
	c := *v
	c.axes = append([]*Axis{}, v.axes...)
	c.axes[d] = ax
	return &c, nil
}

// Fetch materializes a region. Indices outside the axis bounds are dropped.
func (v *Var) Fetch(ctx context.Context, r *Region, opts ...Option) (*Array, error) {
	return v.fetch(ctx, r.Clip(), newEnv(opts))
}

// Get materializes the whole Var.
func (v *Var) Get(ctx context.Context, opts ...Option) (*Array, error) {
	return v.fetch(ctx, v.Region(), newEnv(opts))
}

// Load materializes the whole Var and returns an in-memory copy of it.
func (v *Var) Load(ctx context.Context, opts ...Option) (*Var, error) {
	a, err := v.Get(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return FromArray(v.name, v.axes, a)
}

// Scalar materializes a single-element Var.
func (v *Var) Scalar(ctx context.Context, opts ...Option) (float64, error) {
	if v.Size() != 1 {
		return 0, configErrorf("%q has %d elements, not a scalar", v.name, v.Size())
	}
	a, err := v.Get(ctx, opts...)
	if err != nil {
		return 0, err
	}
	return a.data[0], nil
}

func (v *Var) fetch(ctx context.Context, r *Region, e *env) (*Array, error) {
	if r.NDim() != len(v.axes) {
		return nil, resourceErrorf("region (%s) does not match %q (%s)", r.names(), v.name, NewRegion(v.axes...).names())
	}
	for d, a := range v.axes {
		if r.axes[d].Len() != a.Len() {
			return nil, resourceErrorf("region axis %q has length %d, %q axis %q has %d", r.axes[d].name, r.axes[d].Len(), v.name, a.name, a.Len())
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := v.node.fetch(ctx, &Region{axes: v.axes, idx: r.idx}, e)
	if err != nil {
		return nil, err
	}
	if !sameShape(out.shape, r.Shape()) {
		return nil, resourceErrorf("%q produced shape %v for region shape %v", v.name, out.shape, r.Shape())
	}
	return out, nil
}

// Slice keeps positions [start, stop) of the named axis.
func (v *Var) Slice(axis string, start, stop int) (*Var, error) {
	d, err := v.AxisIndex(axis)
	if err != nil {
		return nil, err
	}
	if start < 0 {
		start = 0
	}
	if n := v.axes[d].Len(); stop > n {
		stop = n
	}
	return v.Take(axis, seq(start, stop))
}

// Take keeps the listed positions of the named axis. Slices of slices fuse
// into a single selection on the underlying Var.
func (v *Var) Take(axis string, idx []int) (*Var, error) {
	d, err := v.AxisIndex(axis)
	if err != nil {
		return nil, err
	}
	for _, i := range idx {
		if i < 0 || i >= v.axes[d].Len() {
			return nil, configErrorf("index %d out of range for axis %q of length %d", i, axis, v.axes[d].Len())
		}
	}
	src, sel := v, make([][]int, len(v.axes))
	if s, ok := v.node.(*sliced); ok {
		src = s.src
		copy(sel, s.idx)
	}
	abs := append([]int{}, idx...)
	if sel[d] != nil {
		for k, i := range idx {
			abs[k] = sel[d][i]
		}
	}
	sel[d] = abs

	axes := append([]*Axis{}, v.axes...)
	axes[d] = v.axes[d].Take(idx)
	return &Var{name: v.name, axes: axes, node: &sliced{src: src, idx: sel}}, nil
}

type sourced struct {
	src DataSource
}

func (n *sourced) fetch(ctx context.Context, r *Region, _ *env) (*Array, error) {
	return n.src.Fetch(ctx, r)
}

type stored struct {
	a *Array
}

func (n *stored) fetch(_ context.Context, r *Region, _ *env) (*Array, error) {
	return n.a.Gather(r.idx)
}

// sliced selects positions of src. A nil index list keeps a dimension whole.
type sliced struct {
	src *Var
	idx [][]int
}

func (n *sliced) fetch(ctx context.Context, r *Region, e *env) (*Array, error) {
	p := &Region{axes: n.src.axes, idx: make([][]int, len(r.idx))}
	for d, ix := range r.idx {
		if n.idx[d] == nil {
			p.idx[d] = ix
			continue
		}
		p.idx[d] = make([]int, len(ix))
		for k, i := range ix {
			p.idx[d][k] = n.idx[d][i]
		}
	}
	return n.src.fetch(ctx, p, e)
}

// combined applies a binary operator elementwise. The right operand spans a
// subset of the left operand's axes and is broadcast over the rest.
type combined struct {
	op    func(x, y float64) float64
	a, b  *Var
	bdims []int
}

func (n *combined) fetch(ctx context.Context, r *Region, e *env) (*Array, error) {
	x, err := n.a.fetch(ctx, r, e)
	if err != nil {
		return nil, err
	}
	rb := &Region{axes: n.b.axes, idx: make([][]int, len(n.bdims))}
	for k, d := range n.bdims {
		rb.idx[k] = r.idx[d]
	}
	y, err := n.b.fetch(ctx, rb, e)
	if err != nil {
		return nil, err
	}
	out := y.Broadcast(n.bdims, x.shape)
	for i, xv := range x.data {
		out.data[i] = n.op(xv, out.data[i])
	}
	return out, nil
}

func combine(a, b *Var, op func(x, y float64) float64) (*Var, error) {
	bdims := make([]int, len(b.axes))
	last := -1
	for k, ax := range b.axes {
		d, err := a.AxisIndex(ax.name)
		if err != nil {
			return nil, configErrorf("%q axis %q is missing from %q", b.name, ax.name, a.name)
		}
		if d <= last || a.axes[d].Len() != ax.Len() {
			return nil, configErrorf("%q axis %q does not line up with %q", b.name, ax.name, a.name)
		}
		last = d
		bdims[k] = d
	}
	return &Var{name: a.name, axes: a.axes, node: &combined{op: op, a: a, b: b, bdims: bdims}}, nil
}

// Sub returns a - b, broadcasting b over the axes of a it lacks.
func Sub(a, b *Var) (*Var, error) { return combine(a, b, func(x, y float64) float64 { return x - y }) }

func Add(a, b *Var) (*Var, error) { return combine(a, b, func(x, y float64) float64 { return x + y }) }
func Mul(a, b *Var) (*Var, error) { return combine(a, b, func(x, y float64) float64 { return x * y }) }
func Div(a, b *Var) (*Var, error) { return combine(a, b, func(x, y float64) float64 { return x / y }) }
