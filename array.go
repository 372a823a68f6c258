package geode

import (
	"fmt"
	"math"
)

// Array is a dense, row-major n-dimensional float64 buffer. It is the
// materialized form of a region of a Var.
type Array struct {
	shape   []int
	strides []int
	data    []float64
}

// NewArray allocates a zero-filled array. A call with no dimensions yields a
// scalar array holding one element.
func NewArray(shape ...int) *Array {
	return &Array{
		shape:   append([]int{}, shape...),
		strides: rowMajorStrides(shape),
		data:    make([]float64, product(shape)),
	}
}

// NewArrayFrom wraps data, which must hold exactly product(shape) values.
func NewArrayFrom(data []float64, shape ...int) (*Array, error) {
	if len(data) != product(shape) {
		return nil, fmt.Errorf("array data has %d values, shape %v needs %d", len(data), shape, product(shape))
	}
	return &Array{
		shape:   append([]int{}, shape...),
		strides: rowMajorStrides(shape),
		data:    data,
	}, nil
}

// Full allocates an array with every element set to v.
func Full(v float64, shape ...int) *Array {
	a := NewArray(shape...)
	a.Fill(v)
	return a
}

func (a *Array) Shape() []int    { return append([]int{}, a.shape...) }
func (a *Array) NDim() int       { return len(a.shape) }
func (a *Array) Size() int       { return len(a.data) }
func (a *Array) Data() []float64 { return a.data }

// Offset returns the flat position of a multi-index.
func (a *Array) Offset(idx ...int) int {
	off := 0
	for d, i := range idx {
		off += i * a.strides[d]
	}
	return off
}

func (a *Array) At(idx ...int) float64     { return a.data[a.Offset(idx...)] }
func (a *Array) Set(v float64, idx ...int) { a.data[a.Offset(idx...)] = v }

func (a *Array) Fill(v float64) {
	for i := range a.data {
		a.data[i] = v
	}
}

func (a *Array) Clone() *Array {
	return &Array{
		shape:   append([]int{}, a.shape...),
		strides: append([]int{}, a.strides...),
		data:    append([]float64{}, a.data...),
	}
}

// Gather copies the sub-block selected by one index list per dimension.
func (a *Array) Gather(idx [][]int) (*Array, error) {
	if len(idx) != len(a.shape) {
		return nil, fmt.Errorf("gather: %d index lists for %d dimensions", len(idx), len(a.shape))
	}
	shape := make([]int, len(idx))
	for d, ix := range idx {
		for _, i := range ix {
			if i < 0 || i >= a.shape[d] {
				return nil, fmt.Errorf("gather: index %d out of range for dimension %d of length %d", i, d, a.shape[d])
			}
		}
		shape[d] = len(ix)
	}
	out := NewArray(shape...)
	tables := make([][]int, len(idx))
	for d, ix := range idx {
		tables[d] = make([]int, len(ix))
		for p, i := range ix {
			tables[d][p] = i * a.strides[d]
		}
	}
	eachOffset(shape, tables, func(o, src int) {
		out.data[o] = a.data[src]
	})
	return out, nil
}

// Broadcast expands a, whose dimensions correspond to dims of the target
// shape, to the full target shape.
func (a *Array) Broadcast(dims []int, shape []int) *Array {
	out := NewArray(shape...)
	tables := make([][]int, len(shape))
	for d, n := range shape {
		tables[d] = make([]int, n)
	}
	for k, d := range dims {
		for i := range tables[d] {
			tables[d][i] = i * a.strides[k]
		}
	}
	eachOffset(shape, tables, func(o, src int) {
		out.data[o] = a.data[src]
	})
	return out
}

// Take selects positions along one dimension.
func (a *Array) Take(dim int, idx []int) (*Array, error) {
	sel := make([][]int, len(a.shape))
	for d, n := range a.shape {
		if d == dim {
			sel[d] = idx
			continue
		}
		sel[d] = seq(0, n)
	}
	return a.Gather(sel)
}

// Insert places b as a sub-block of a at the given per-dimension offsets.
func (a *Array) Insert(b *Array, at []int) {
	tables := make([][]int, len(b.shape))
	for d, n := range b.shape {
		tables[d] = make([]int, n)
		for i := range tables[d] {
			tables[d][i] = (at[d] + i) * a.strides[d]
		}
	}
	eachOffset(b.shape, tables, func(src, o int) {
		a.data[o] = b.data[src]
	})
}

// AllClose reports whether two arrays share a shape and agree elementwise
// within tol. NaNs compare equal to NaNs.
func AllClose(a, b *Array, tol float64) bool {
	if !sameShape(a.shape, b.shape) {
		return false
	}
	for i, x := range a.data {
		y := b.data[i]
		if math.IsNaN(x) || math.IsNaN(y) {
			if math.IsNaN(x) != math.IsNaN(y) {
				return false
			}
			continue
		}
		if math.Abs(x-y) > tol*math.Max(1, math.Abs(y)) {
			return false
		}
	}
	return true
}

// eachOffset walks shape in row-major order, calling fn with the flat
// row-major position and the sum of per-dimension table entries.
func eachOffset(shape []int, tables [][]int, fn func(pos, off int)) {
	n := product(shape)
	if n == 0 {
		return
	}
	nd := len(shape)
	idx := make([]int, nd)
	off := 0
	for d := 0; d < nd; d++ {
		off += tables[d][0]
	}
	for pos := 0; pos < n; pos++ {
		fn(pos, off)
		for d := nd - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < shape[d] {
				off += tables[d][idx[d]] - tables[d][idx[d]-1]
				break
			}
			off -= tables[d][idx[d]-1] - tables[d][0]
			idx[d] = 0
		}
	}
}

func rowMajorStrides(shape []int) []int {
	strides := make([]int, len(shape))
	s := 1
	for d := len(shape) - 1; d >= 0; d-- {
		strides[d] = s
		s *= shape[d]
	}
	return strides
}

func product(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func seq(start, stop int) []int {
	if stop < start {
		return []int{}
	}
	s := make([]int, stop-start)
	for i := range s {
		s[i] = start + i
	}
	return s
}
