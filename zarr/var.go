package zarr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/qri-io/geode"
)

// Attribute keys describing axis coordinate arrays.
const (
	AttrFamily  = "family"
	AttrStart   = "time_start"
	AttrFields  = "time_fields"
	AttrWeights = "weights"
	AttrAxis    = "is_axis"
)

// WriteAxis stores an axis as a one-dimensional coordinate array named after
// it. Calendar fields, the reference date and weights go into attributes.
// An equal axis already stored is kept; a different one of the same name is
// an error.
func WriteAxis(ctx context.Context, store Store, root string, ax *geode.Axis) error {
	prev, err := ReadAxis(ctx, store, root, ax.Name())
	switch {
	case err == nil && prev.Equal(ax):
		return nil
	case err == nil:
		return fmt.Errorf("axis %q is already stored under %q with different coordinates", ax.Name(), root)
	case !errors.Is(err, ErrNotfound):
		return err
	}

	attrs := Attributes{
		DimensionsKey: []string{ax.Name()},
		AttrFamily:    string(ax.Family()),
		AttrAxis:      true,
	}
	if ax.Family() == geode.FamilyTime {
		attrs[AttrStart] = ax.Start().Format(time.RFC3339)
		fields := map[string][]int{}
		for _, name := range ax.FieldNames() {
			fields[name], _ = ax.Field(name)
		}
		attrs[AttrFields] = fields
	}
	if ax.HasWeights() {
		attrs[AttrWeights] = ax.Weights()
	}
	meta := &ArrayMeta{
		ZarrFormat: Version,
		Shape:      []int{ax.Len()},
		Chunks:     []int{max(ax.Len(), 1)},
		Dtype:      Float64,
		Compressor: Zstd(),
		FillValue:  FillValueNaN,
		Order:      "C",
	}
	a, err := Create(store, joinPath(root, ax.Name()), meta, attrs, ModeWrite)
	if err != nil {
		return err
	}
	vals, err := geode.NewArrayFrom(ax.Values(), ax.Len())
	if err != nil {
		return err
	}
	if ax.Len() == 0 {
		return nil
	}
	return a.Write(ctx, []int{0}, vals)
}

// ReadAxis rebuilds an axis written by WriteAxis.
func ReadAxis(ctx context.Context, store Store, root, name string) (*geode.Axis, error) {
	a, err := Open(store, joinPath(root, name))
	if err != nil {
		return nil, err
	}
	if len(a.meta.Shape) != 1 {
		return nil, fmt.Errorf("axis %q: coordinate array has %d dimensions", name, len(a.meta.Shape))
	}
	family, _ := a.attrs[AttrFamily].(string)

	var ax *geode.Axis
	if geode.Family(family) == geode.FamilyTime {
		if ax, err = readTimeAxis(a.attrs); err != nil {
			return nil, fmt.Errorf("axis %q: %w", name, err)
		}
		ax = ax.Rename(name)
		if ax.Len() != a.meta.Shape[0] {
			return nil, fmt.Errorf("axis %q: calendar fields describe %d times, array holds %d", name, ax.Len(), a.meta.Shape[0])
		}
	} else {
		vals, err := a.Fetch(ctx, geode.NewRegion(geode.NewAxis(name, geode.FamilyGeneric, make([]float64, a.meta.Shape[0]))))
		if err != nil {
			return nil, err
		}
		ax = geode.NewAxis(name, geode.Family(family), vals.Data())
	}
	if raw, ok := a.attrs[AttrWeights].([]interface{}); ok {
		w, err := floats(raw)
		if err != nil {
			return nil, fmt.Errorf("axis %q weights: %w", name, err)
		}
		if ax, err = ax.WithWeights(w); err != nil {
			return nil, err
		}
	}
	return ax, nil
}

func readTimeAxis(attrs Attributes) (*geode.Axis, error) {
	s, _ := attrs[AttrStart].(string)
	start, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("reading reference date: %w", err)
	}
	raw, _ := attrs[AttrFields].(map[string]interface{})
	fields := make([]geode.Field, 0, len(raw))
	for name, v := range raw {
		list, ok := v.([]interface{})
		if !ok {
			return nil, fmt.Errorf("field %q is not a list", name)
		}
		f, err := floats(list)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		vals := make([]int, len(f))
		for i, x := range f {
			vals[i] = int(x)
		}
		fields = append(fields, geode.Field{Name: name, Values: vals})
	}
	return geode.NewCalendarAxis(start, fields...)
}

func floats(raw []interface{}) ([]float64, error) {
	out := make([]float64, len(raw))
	for i, v := range raw {
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("element %d is %T, not a number", i, v)
		}
		out[i] = f
	}
	return out, nil
}

// WriteOptions configures WriteVar.
type WriteOptions struct {
	// Chunks is the chunk shape. Zero or missing entries keep a dimension
	// whole, except the leading one, which defaults to 1.
	Chunks []int
	// Compressor defaults to zstd.
	Compressor *CompressionMeta
	// Raw stores chunks uncompressed, ignoring Compressor.
	Raw bool
}

// WriteVar evaluates v one chunk at a time and stores it, with its axes,
// under root. Only one chunk of v is held in memory at once.
func WriteVar(ctx context.Context, store Store, root string, v *geode.Var, wo WriteOptions, opts ...geode.Option) (*Array, error) {
	for _, ax := range v.Axes() {
		if err := WriteAxis(ctx, store, root, ax); err != nil {
			return nil, fmt.Errorf("writing axis %q: %w", ax.Name(), err)
		}
	}

	shape := v.Shape()
	chunks := make([]int, len(shape))
	for d, n := range shape {
		switch {
		case d < len(wo.Chunks) && wo.Chunks[d] > 0:
			chunks[d] = min(wo.Chunks[d], max(n, 1))
		case d == 0 && len(shape) > 1:
			chunks[d] = 1
		default:
			chunks[d] = max(n, 1)
		}
	}
	comp := wo.Compressor
	switch {
	case wo.Raw:
		comp = nil
	case comp == nil:
		comp = Zstd()
	}
	dims := make([]string, len(shape))
	for d, ax := range v.Axes() {
		dims[d] = ax.Name()
	}
	meta := &ArrayMeta{
		ZarrFormat: Version,
		Shape:      shape,
		Chunks:     chunks,
		Dtype:      Float64,
		Compressor: comp,
		FillValue:  FillValueNaN,
		Order:      "C",
	}
	a, err := Create(store, joinPath(root, v.Name()), meta, Attributes{DimensionsKey: dims}, ModeWrite)
	if err != nil {
		return nil, err
	}

	grid := make([][]int, len(shape))
	for d, n := range shape {
		for s := 0; s < n; s += chunks[d] {
			grid[d] = append(grid[d], s)
		}
		if len(grid[d]) == 0 {
			return a, nil
		}
	}
	pos := make([]int, len(shape))
	for {
		r := v.Region()
		at := make([]int, len(shape))
		for d := range shape {
			at[d] = grid[d][pos[d]]
			r = r.Slice(d, at[d], min(at[d]+chunks[d], shape[d]), 1)
		}
		block, err := v.Fetch(ctx, r, opts...)
		if err != nil {
			return nil, fmt.Errorf("writing %q: %w", v.Name(), err)
		}
		if err := a.Write(ctx, at, block); err != nil {
			return nil, fmt.Errorf("writing %q: %w", v.Name(), err)
		}

		d := len(pos) - 1
		for ; d >= 0; d-- {
			pos[d]++
			if pos[d] < len(grid[d]) {
				break
			}
			pos[d] = 0
		}
		if d < 0 {
			return a, nil
		}
	}
}

// OpenVar opens a variable written by WriteVar, or any array whose
// dimensions are named in its attributes and stored as coordinate arrays.
func OpenVar(ctx context.Context, store Store, root, name string) (*geode.Var, error) {
	a, err := Open(store, joinPath(root, name))
	if err != nil {
		return nil, err
	}
	dims, ok := a.attrs.Dimensions()
	if !ok || len(dims) != len(a.meta.Shape) {
		return nil, fmt.Errorf("variable %q: missing %s attribute", name, DimensionsKey)
	}
	axes := make([]*geode.Axis, len(dims))
	for d, dim := range dims {
		if axes[d], err = ReadAxis(ctx, store, root, dim); err != nil {
			return nil, fmt.Errorf("variable %q: %w", name, err)
		}
	}
	return geode.NewVar(name, axes, a)
}

// Variables lists the non-axis arrays directly below root.
func Variables(store Store, root string) ([]string, error) {
	prefix := joinPath(root, "")
	keys, err := store.List(prefix)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, k := range keys {
		rest := strings.TrimPrefix(k, prefix)
		name, ok := strings.CutSuffix(rest, "/"+string(MTArray))
		if !ok || strings.Contains(name, "/") {
			continue
		}
		a, err := Open(store, joinPath(root, name))
		if err != nil {
			return nil, err
		}
		if isAxis, _ := a.attrs[AttrAxis].(bool); !isAxis {
			names = append(names, name)
		}
	}
	return names, nil
}

func joinPath(root, name string) string {
	root = strings.Trim(root, "/")
	if root == "" {
		return name
	}
	return root + "/" + name
}
