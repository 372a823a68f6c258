package geode

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Family groups axes describing the same kind of coordinate. Only axes of
// the same family can be mapped onto each other.
type Family string

const (
	FamilyGeneric Family = ""
	FamilyTime    Family = "time"
	FamilyLat     Family = "lat"
	FamilyLon     Family = "lon"
	FamilyPres    Family = "pres"
	FamilyCoef    Family = "coef"
)

// Field is a named auxiliary integer array carried by an axis, one value per
// position (for example the month of every timestep).
type Field struct {
	Name   string
	Values []int
}

// Axis is an immutable ordered sequence of coordinate values.
type Axis struct {
	name    string
	family  Family
	values  []float64
	fields  []Field
	weights []float64
	// reference date of time axes; values are seconds since start
	start time.Time
}

// NewAxis builds an axis without auxiliary fields.
func NewAxis(name string, family Family, values []float64) *Axis {
	return &Axis{
		name:   name,
		family: family,
		values: append([]float64{}, values...),
	}
}

// NewLatAxis builds a latitude axis weighted by the cosine of latitude.
func NewLatAxis(values []float64) *Axis {
	a := NewAxis("lat", FamilyLat, values)
	a.weights = make([]float64, len(values))
	for i, v := range values {
		a.weights[i] = math.Cos(v * math.Pi / 180)
	}
	return a
}

// NewCoefAxis builds the coefficient axis of trend results.
func NewCoefAxis(n int) *Axis {
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = float64(i)
	}
	return NewAxis("coef", FamilyCoef, vals)
}

// WithWeights returns a copy of the axis carrying per-position weights.
func (a *Axis) WithWeights(w []float64) (*Axis, error) {
	if len(w) != a.Len() {
		return nil, configErrorf("axis %q has %d positions, got %d weights", a.name, a.Len(), len(w))
	}
	b := a.copy()
	b.weights = append([]float64{}, w...)
	return b, nil
}

// Rename returns a copy of the axis with a new name.
func (a *Axis) Rename(name string) *Axis {
	b := a.copy()
	b.name = name
	return b
}

func (a *Axis) Name() string        { return a.name }
func (a *Axis) Family() Family      { return a.family }
func (a *Axis) Len() int            { return len(a.values) }
func (a *Axis) Value(i int) float64 { return a.values[i] }
func (a *Axis) Values() []float64   { return append([]float64{}, a.values...) }
func (a *Axis) Weights() []float64  { return append([]float64(nil), a.weights...) }
func (a *Axis) HasWeights() bool    { return a.weights != nil }
func (a *Axis) Start() time.Time    { return a.start }

func (a *Axis) HasField(name string) bool {
	_, ok := a.Field(name)
	return ok
}

// Field returns a copy of the named auxiliary field.
func (a *Axis) Field(name string) ([]int, bool) {
	for _, f := range a.fields {
		if f.Name == name {
			return append([]int{}, f.Values...), true
		}
	}
	return nil, false
}

// FieldNames lists auxiliary fields in canonical order.
func (a *Axis) FieldNames() []string {
	names := make([]string, len(a.fields))
	for i, f := range a.fields {
		names[i] = f.Name
	}
	return names
}

// Take returns the axis restricted to the given positions.
func (a *Axis) Take(idx []int) *Axis {
	b := &Axis{
		name:   a.name,
		family: a.family,
		start:  a.start,
		values: make([]float64, len(idx)),
	}
	for p, i := range idx {
		b.values[p] = a.values[i]
	}
	for _, f := range a.fields {
		vals := make([]int, len(idx))
		for p, i := range idx {
			vals[p] = f.Values[i]
		}
		b.fields = append(b.fields, Field{Name: f.Name, Values: vals})
	}
	if a.weights != nil {
		b.weights = make([]float64, len(idx))
		for p, i := range idx {
			b.weights[p] = a.weights[i]
		}
	}
	return b
}

// Equal reports whether two axes have the same name, family, values and
// fields.
func (a *Axis) Equal(b *Axis) bool {
	if a == b {
		return true
	}
	if a.name != b.name || a.family != b.family || a.Len() != b.Len() || len(a.fields) != len(b.fields) {
		return false
	}
	for i, v := range a.values {
		if v != b.values[i] {
			return false
		}
	}
	for k, f := range a.fields {
		g := b.fields[k]
		if f.Name != g.Name {
			return false
		}
		for i, v := range f.Values {
			if v != g.Values[i] {
				return false
			}
		}
	}
	return true
}

// Compatible reports whether other can be mapped onto a: both belong to the
// same family and every field of other is present on a.
func (a *Axis) Compatible(other *Axis) bool {
	if a.family != other.family {
		return false
	}
	for _, f := range other.fields {
		if !a.HasField(f.Name) {
			return false
		}
	}
	return true
}

// MapTo maps the positions of a onto the bins of other.
func (a *Axis) MapTo(other *Axis) (*Mapping, error) {
	return CommonMap(a, other)
}

func (a *Axis) String() string {
	if a.Len() == 0 {
		return fmt.Sprintf("%s <%s>: empty", a.name, a.family)
	}
	if a.family == FamilyTime {
		return fmt.Sprintf("%s <%s>: %s to %s (%d values)", a.name, a.family,
			a.dateAt(0).Format(time.RFC3339), a.dateAt(a.Len()-1).Format(time.RFC3339), a.Len())
	}
	return fmt.Sprintf("%s <%s>: %g to %g (%d values)", a.name, a.family, a.values[0], a.values[a.Len()-1], a.Len())
}

func (a *Axis) copy() *Axis {
	b := *a
	return &b
}

// withFields builds a sibling axis from fields, recomputing values for time
// axes. Field slices are sorted into canonical order.
func (a *Axis) withFields(fields []Field, values []float64) *Axis {
	sort.SliceStable(fields, func(i, j int) bool {
		return fieldRank(fields[i].Name) < fieldRank(fields[j].Name)
	})
	b := &Axis{
		name:   a.name,
		family: a.family,
		start:  a.start,
		fields: fields,
		values: values,
	}
	if a.family == FamilyTime {
		b.values = make([]float64, fieldLen(fields, len(values)))
		for i := range b.values {
			b.values[i] = float64(b.dateAt(i).Unix() - b.start.Unix())
		}
	}
	return b
}

func fieldLen(fields []Field, fallback int) int {
	if len(fields) == 0 {
		return fallback
	}
	return len(fields[0].Values)
}
