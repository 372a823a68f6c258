package zarr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/qri-io/geode"
)

const (
	// Version is the zarr storage specification version arrays are written
	// in and the only one read.
	Version = 2
)

// Array is a chunked n-dimensional array in a Store. It is a
// geode.DataSource: every Fetch reads only the chunks the region touches.
type Array struct {
	path  Path
	store Store
	meta  *ArrayMeta
	attrs Attributes
}

var _ geode.DataSource = (*Array)(nil)

// PersistenceMode controls what Create does with an existing array.
type PersistenceMode string

const (
	// ModeWrite means create (overwrite if exists)
	ModeWrite PersistenceMode = "w"
	// ModeWriteFail means create (fail if exists).
	ModeWriteFail PersistenceMode = "w-"
)

// Create writes array metadata under path. Chunks are written separately.
func Create(store Store, path string, meta *ArrayMeta, attrs Attributes, mode PersistenceMode) (*Array, error) {
	p, err := NewPath(path)
	if err != nil {
		return nil, err
	}
	if err := meta.Validate(); err != nil {
		return nil, fmt.Errorf("creating %q: %w", path, err)
	}
	a := &Array{path: p, store: store, meta: meta, attrs: attrs}

	mp := p.Join(string(MTArray)).String()
	if mode == ModeWriteFail {
		if f, err := store.Get(mp); err == nil {
			f.Close()
			return nil, fmt.Errorf("creating %q: array exists", path)
		}
	}
	if err := putJSON(store, mp, meta); err != nil {
		return nil, err
	}
	if attrs != nil {
		if err := putJSON(store, p.Join(string(MTAttributes)).String(), attrs); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Open reads the metadata of an existing array.
func Open(store Store, path string) (*Array, error) {
	p, err := NewPath(path)
	if err != nil {
		return nil, err
	}

	a := &Array{
		path:  p,
		store: store,
		meta:  &ArrayMeta{},
		attrs: Attributes{},
	}
	if err := getJSON(store, p.Join(string(MTArray)).String(), a.meta); err != nil {
		return nil, fmt.Errorf("opening %q: %w", path, err)
	}
	if err := a.meta.Validate(); err != nil {
		return nil, fmt.Errorf("opening %q: %w", path, err)
	}
	if err := getJSON(store, p.Join(string(MTAttributes)).String(), &a.attrs); err != nil && !errors.Is(err, ErrNotfound) {
		return nil, fmt.Errorf("opening %q: %w", path, err)
	}
	return a, nil
}

func (a *Array) Info() string {
	return fmt.Sprintf("<zarr.Array %s %v %s>", a.path, a.meta.Shape, a.meta.Dtype)
}

func (a *Array) Path() string           { return a.path.String() }
func (a *Array) Meta() *ArrayMeta       { return a.meta }
func (a *Array) Attributes() Attributes { return a.attrs }
func (a *Array) Shape() []int           { return append([]int{}, a.meta.Shape...) }

func (a *Array) ElementCount() int64 {
	n := int64(1)
	for _, s := range a.meta.Shape {
		n *= int64(s)
	}
	return n
}

// Fetch reads the positions selected by r.
func (a *Array) Fetch(ctx context.Context, r *geode.Region) (*geode.Array, error) {
	if r.NDim() != len(a.meta.Shape) {
		return nil, fmt.Errorf("%s: region has %d dimensions, array has %d", a.path, r.NDim(), len(a.meta.Shape))
	}
	sel := make([][]int, r.NDim())
	for d := range sel {
		sel[d] = r.Indices(d)
		for _, i := range sel[d] {
			if i < 0 || i >= a.meta.Shape[d] {
				return nil, fmt.Errorf("%s: index %d out of range for dimension %d", a.path, i, d)
			}
		}
	}
	out := geode.NewArray(r.Shape()...)
	for _, p := range projections(sel, a.meta.Chunks) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunk, err := a.readChunk(p.ChunkCoords)
		if err != nil {
			return nil, err
		}
		sub, err := chunk.Gather(p.ChunkSelection)
		if err != nil {
			return nil, err
		}
		scatter(out, sub, p.OutSelection)
	}
	return out, nil
}

// Write stores block at the given offset, rewriting every chunk it touches.
// Chunks only partially covered by block are read and merged first.
func (a *Array) Write(ctx context.Context, at []int, block *geode.Array) error {
	shape := block.Shape()
	if len(at) != len(a.meta.Shape) || len(shape) != len(at) {
		return fmt.Errorf("%s: block of shape %v at %v does not fit array of shape %v", a.path, shape, at, a.meta.Shape)
	}
	sel := make([][]int, len(at))
	for d := range at {
		if at[d] < 0 || at[d]+shape[d] > a.meta.Shape[d] {
			return fmt.Errorf("%s: block of shape %v at %v does not fit array of shape %v", a.path, shape, at, a.meta.Shape)
		}
		sel[d] = make([]int, shape[d])
		for i := range sel[d] {
			sel[d][i] = at[d] + i
		}
	}
	for _, p := range projections(sel, a.meta.Chunks) {
		if err := ctx.Err(); err != nil {
			return err
		}
		var chunk *geode.Array
		if a.covers(p) {
			chunk = geode.Full(a.meta.Fill(), a.meta.Chunks...)
		} else {
			var err error
			if chunk, err = a.readChunk(p.ChunkCoords); err != nil {
				return err
			}
		}
		sub, err := block.Gather(p.OutSelection)
		if err != nil {
			return err
		}
		scatter(chunk, sub, p.ChunkSelection)
		if err := a.writeChunk(p.ChunkCoords, chunk); err != nil {
			return err
		}
	}
	return nil
}

// covers reports whether a projection spans its whole chunk.
func (a *Array) covers(p chunkProjection) bool {
	for d, s := range p.ChunkSelection {
		if len(s) != a.meta.Chunks[d] {
			return false
		}
	}
	return true
}

// readChunk decodes one chunk. Chunks never written hold the fill value.
func (a *Array) readChunk(coords []int) (*geode.Array, error) {
	key := a.chunkPath(coords).String()
	f, err := a.store.Get(key)
	if errors.Is(err, ErrNotfound) {
		return geode.Full(a.meta.Fill(), a.meta.Chunks...), nil
	} else if err != nil {
		return nil, err
	}
	defer f.Close()

	raw, err := decompress(a.meta.Compressor, f)
	if err != nil {
		return nil, fmt.Errorf("reading chunk %q: %w", key, err)
	}
	vals, err := a.meta.Dtype.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("reading chunk %q: %w", key, err)
	}
	chunk, err := geode.NewArrayFrom(vals, a.meta.Chunks...)
	if err != nil {
		return nil, fmt.Errorf("reading chunk %q: %w", key, err)
	}
	return chunk, nil
}

func (a *Array) writeChunk(coords []int, chunk *geode.Array) error {
	raw, err := a.meta.Dtype.Encode(chunk.Data())
	if err != nil {
		return err
	}
	enc, err := compress(a.meta.Compressor, raw)
	if err != nil {
		return err
	}
	return a.store.Put(a.chunkPath(coords).String(), bytes.NewReader(enc))
}

func (a *Array) chunkPath(coords []int) Path {
	if len(coords) == 0 {
		return a.path.Join("0")
	}
	parts := make([]string, len(coords))
	for d, c := range coords {
		parts[d] = strconv.Itoa(c)
	}
	return a.path.Join(strings.Join(parts, a.meta.chunkSeparator()))
}

// scatter copies src into dst at the positions listed per dimension.
func scatter(dst, src *geode.Array, sel [][]int) {
	idx := make([]int, len(sel))
	pos := make([]int, len(sel))
	data := src.Data()
	for i := range data {
		for d := range idx {
			pos[d] = sel[d][idx[d]]
		}
		dst.Set(data[i], pos...)
		for d := len(idx) - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < len(sel[d]) {
				break
			}
			idx[d] = 0
		}
	}
}

func putJSON(store Store, key string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return store.Put(key, bytes.NewReader(data))
}

func getJSON(store Store, key string, v interface{}) error {
	f, err := store.Get(key)
	if err != nil {
		return err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// CreateGroup marks path as a group.
func CreateGroup(store Store, path string) error {
	p, err := NewPath(path)
	if err != nil {
		return err
	}
	return putJSON(store, p.Join(string(MTGroup)).String(), Group{ZarrFormat: Version})
}

// Path is a normalized logical path within a store.
type Path []string

// NewPath normalizes a logical path: backslashes become forward slashes,
// leading, trailing and repeated slashes are dropped. ".." segments are
// rejected.
func NewPath(posix string) (Path, error) {
	posix = strings.ReplaceAll(posix, `\`, "/")
	var p Path
	for _, part := range strings.Split(posix, "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			return nil, fmt.Errorf("invalid path %q: parent references are not allowed", posix)
		}
		p = append(p, part)
	}
	return p, nil
}

func (p Path) String() string {
	return strings.Join(p, "/")
}

func (p Path) Join(elems ...string) Path {
	return append(append(Path{}, p...), elems...)
}
