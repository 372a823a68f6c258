package geode

import (
	"fmt"
	"strings"
)

// Span is a half-open [Start, End) range of positions.
type Span struct {
	Start int // Inclusive.
	End   int // Exclusive.
}

func (s Span) Len() int { return s.End - s.Start }

// Region describes a rectangular selection of a Var: one integer index list
// per axis. Regions are immutable; every method returns a new Region.
type Region struct {
	axes []*Axis
	idx  [][]int
}

// NewRegion selects every position of every axis.
func NewRegion(axes ...*Axis) *Region {
	r := &Region{
		axes: append([]*Axis{}, axes...),
		idx:  make([][]int, len(axes)),
	}
	for d, a := range axes {
		r.idx[d] = seq(0, a.Len())
	}
	return r
}

func (r *Region) Axes() []*Axis       { return append([]*Axis{}, r.axes...) }
func (r *Region) Axis(d int) *Axis    { return r.axes[d] }
func (r *Region) NDim() int           { return len(r.axes) }
func (r *Region) Indices(d int) []int { return append([]int{}, r.idx[d]...) }

// Shape is the number of selected positions along every dimension.
func (r *Region) Shape() []int {
	shape := make([]int, len(r.idx))
	for d, ix := range r.idx {
		shape[d] = len(ix)
	}
	return shape
}

// Size is the number of selected elements.
func (r *Region) Size() int64 {
	n := int64(1)
	for _, ix := range r.idx {
		n *= int64(len(ix))
	}
	return n
}

// Dim finds a dimension by axis name.
func (r *Region) Dim(name string) (int, error) {
	for d, a := range r.axes {
		if a.name == name {
			return d, nil
		}
	}
	return -1, fmt.Errorf("%w: %q in region (%s)", ErrAxisNotFound, name, r.names())
}

// Slice selects positions start, start+step, ... below stop along d.
func (r *Region) Slice(d, start, stop, step int) *Region {
	if step < 1 {
		step = 1
	}
	var ix []int
	for i := start; i < stop; i += step {
		ix = append(ix, i)
	}
	return r.Take(d, ix)
}

// Take selects an explicit list of positions along d.
func (r *Region) Take(d int, idx []int) *Region {
	return r.Replace(d, r.axes[d], idx)
}

// Clip drops every index outside its axis bounds.
func (r *Region) Clip() *Region {
	c := r.clone()
	for d, ix := range c.idx {
		n := c.axes[d].Len()
		kept := make([]int, 0, len(ix))
		for _, i := range ix {
			if i >= 0 && i < n {
				kept = append(kept, i)
			}
		}
		c.idx[d] = kept
	}
	return c
}

// Replace swaps the axis and index list of dimension d.
func (r *Region) Replace(d int, ax *Axis, idx []int) *Region {
	c := r.clone()
	c.axes[d] = ax
	c.idx[d] = append([]int{}, idx...)
	return c
}

// Remove drops dimension d.
func (r *Region) Remove(d int) *Region {
	c := r.clone()
	c.axes = append(c.axes[:d], c.axes[d+1:]...)
	c.idx = append(c.idx[:d], c.idx[d+1:]...)
	return c
}

// Insert adds a dimension before position d.
func (r *Region) Insert(d int, ax *Axis, idx []int) *Region {
	c := r.clone()
	c.axes = append(c.axes[:d], append([]*Axis{ax}, c.axes[d:]...)...)
	c.idx = append(c.idx[:d], append([][]int{append([]int{}, idx...)}, c.idx[d:]...)...)
	return c
}

// Sub selects the given position spans of the current index lists.
func (r *Region) Sub(spans []Span) *Region {
	c := r.clone()
	for d, s := range spans {
		c.idx[d] = c.idx[d][s.Start:s.End]
	}
	return c
}

// Project restricts the region onto axes, a subset of its own axes in the
// same relative order. It returns the projected region and the dimension of
// r each projected axis came from.
func (r *Region) Project(axes []*Axis) (*Region, []int, error) {
	p := &Region{axes: make([]*Axis, len(axes)), idx: make([][]int, len(axes))}
	dims := make([]int, len(axes))
	last := -1
	for k, a := range axes {
		d, err := r.Dim(a.name)
		if err != nil {
			return nil, nil, resourceErrorf("axis %q is not driven by region (%s)", a.name, r.names())
		}
		if d <= last {
			return nil, nil, resourceErrorf("axis %q is out of order relative to region (%s)", a.name, r.names())
		}
		if a.Len() != r.axes[d].Len() {
			return nil, nil, resourceErrorf("axis %q has length %d, region axis has %d", a.name, a.Len(), r.axes[d].Len())
		}
		last = d
		dims[k] = d
		p.axes[k] = a
		p.idx[k] = r.idx[d]
	}
	return p, dims, nil
}

// Split partitions the region into pieces of at most budget elements. The
// pieces cover the region exactly once, in ascending row-major order.
func (r *Region) Split(budget int64) []*Region {
	spans := splitSpans(r.Shape(), budget)
	out := make([]*Region, len(spans))
	for i, s := range spans {
		out[i] = r.Sub(s)
	}
	return out
}

// splitSpans keeps the longest run of trailing dimensions that fits the
// budget whole, cuts the next outer dimension into budget-sized runs and
// walks every remaining outer dimension one position at a time.
func splitSpans(shape []int, budget int64) [][]Span {
	if product(shape) == 0 {
		return nil
	}
	if budget < 1 {
		budget = 1
	}
	nd := len(shape)
	inner := int64(1)
	k := nd
	for k > 0 && inner*int64(shape[k-1]) <= budget {
		inner *= int64(shape[k-1])
		k--
	}
	full := make([]Span, nd)
	for d, n := range shape {
		full[d] = Span{0, n}
	}
	if k == 0 {
		return [][]Span{full}
	}

	cut := k - 1
	step := int(budget / inner)
	var out [][]Span
	idx := make([]int, cut)
	for {
		for start := 0; start < shape[cut]; start += step {
			piece := append([]Span{}, full...)
			for d, i := range idx {
				piece[d] = Span{i, i + 1}
			}
			piece[cut] = Span{start, min(start+step, shape[cut])}
			out = append(out, piece)
		}
		d := cut - 1
		for ; d >= 0; d-- {
			idx[d]++
			if idx[d] < shape[d] {
				break
			}
			idx[d] = 0
		}
		if d < 0 {
			return out
		}
	}
}

func (r *Region) clone() *Region {
	c := &Region{
		axes: append([]*Axis{}, r.axes...),
		idx:  make([][]int, len(r.idx)),
	}
	copy(c.idx, r.idx)
	return c
}

func (r *Region) names() string {
	names := make([]string, len(r.axes))
	for d, a := range r.axes {
		names[d] = a.name
	}
	return strings.Join(names, ",")
}

func (r *Region) String() string {
	return fmt.Sprintf("region(%s) %v", r.names(), r.Shape())
}
