package zarr

import (
	"encoding/json"
	"fmt"
	"math"
)

type MetaType string

const (
	// MTAttributes stores userland metadata keyed by array name
	MTAttributes MetaType = ".zattrs"
	// MTArray is the key for storing metadata on an array store
	MTArray MetaType = ".zarray"
	// MTGroup is the key for storing group definitions on an array store
	MTGroup MetaType = ".zgroup"
	// MTMetadata is the key for composite metadata
	MTMetadata MetaType = ".zmetadata"
)

type MetaTyper interface {
	MetaType() MetaType
}

var metaTypes = map[MetaType]struct{}{
	MTAttributes: {},
	MTArray:      {},
	MTGroup:      {},
}

// KeyMetaType relies on every metadata key name being 7 characters long.
func KeyMetaType(s string) (mt MetaType, ok bool) {
	if len(s) < 7 {
		return mt, false
	}
	mt = MetaType(s[len(s)-7:])
	_, ok = metaTypes[mt]
	return mt, ok
}

// Attributes is the free-form metadata stored next to an array.
type Attributes map[string]interface{}

func (Attributes) MetaType() MetaType { return MTAttributes }

// DimensionsKey lists the dimension names of an array, as xarray writes
// them.
const DimensionsKey = "_ARRAY_DIMENSIONS"

// Dimensions returns the dimension names recorded in the attributes.
func (a Attributes) Dimensions() ([]string, bool) {
	raw, ok := a[DimensionsKey].([]interface{})
	if !ok {
		if names, ok := a[DimensionsKey].([]string); ok {
			return names, true
		}
		return nil, false
	}
	names := make([]string, len(raw))
	for i, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, false
		}
		names[i] = s
	}
	return names, true
}

// Group marks a logical path holding arrays and other groups.
type Group struct {
	ZarrFormat int `json:"zarr_format"`
}

func (Group) MetaType() MetaType { return MTGroup }

// ConsolidatedMetadata gathers every metadata document of a hierarchy under
// one ".zmetadata" key.
type ConsolidatedMetadata struct {
	ConsolidatedFormat int                  `json:"zarr_consolidated_format"`
	Metadata           map[string]MetaTyper `json:"metadata"`
}

type consolidatedMetaDecoder struct {
	ConsolidatedFormat int                        `json:"zarr_consolidated_format"`
	Metadata           map[string]json.RawMessage `json:"metadata"`
}

func (m *ConsolidatedMetadata) UnmarshalJSON(d []byte) error {
	cd := consolidatedMetaDecoder{}
	if err := json.Unmarshal(d, &cd); err != nil {
		return err
	}
	cm := ConsolidatedMetadata{
		ConsolidatedFormat: cd.ConsolidatedFormat,
		Metadata:           map[string]MetaTyper{},
	}

	for key, data := range cd.Metadata {
		kt, ok := KeyMetaType(key)
		if !ok {
			return fmt.Errorf("invalid consolidated metadata key: %q", key)
		}

		switch kt {
		case MTArray:
			arr := &ArrayMeta{}
			if err := json.Unmarshal(data, arr); err != nil {
				return fmt.Errorf("reading %q metadata: %w", key, err)
			}
			cm.Metadata[key] = arr
		case MTAttributes:
			attr := Attributes{}
			if err := json.Unmarshal(data, &attr); err != nil {
				return fmt.Errorf("reading %q attributes: %w", key, err)
			}
			cm.Metadata[key] = attr
		case MTGroup:
			grp := Group{}
			if err := json.Unmarshal(data, &grp); err != nil {
				return fmt.Errorf("reading %q group: %w", key, err)
			}
			cm.Metadata[key] = grp
		}
	}

	*m = cm
	return nil
}

// Each array requires essential configuration metadata to be stored,
// enabling correct interpretation of the stored data.
// This metadata is encoded using JSON and stored as the value of the
// “.zarray” key within an array store.
type ArrayMeta struct {
	// An integer defining the version of the storage specification to which
	// the array store adheres.
	ZarrFormat int `json:"zarr_format"`
	// A list of integers defining the length of each dimension of the array.
	Shape []int `json:"shape"`
	// A list of integers defining the length of each dimension of a chunk of the
	// array. Note that all chunks within a Zarr array have the same shape.
	Chunks []int `json:"chunks"`
	// The data type of stored values.
	Dtype Dtype `json:"dtype"`
	// The primary compression codec, or null if chunks are stored raw.
	Compressor *CompressionMeta `json:"compressor"`

	// A scalar value providing the default value to use for uninitialized
	// portions of the array, or null if no fill_value is to be used.
	// Non-finite floats are encoded as the strings "NaN", "Infinity" and
	// "-Infinity".
	FillValue interface{} `json:"fill_value"`
	// Either “C” or “F”, defining the layout of bytes within each chunk of the
	// array. Only “C”, row-major order, can be read.
	Order string `json:"order"`
	// A list of JSON objects providing codec configurations, or null if no
	// filters are to be applied.
	Filters []Filter `json:"filters"`

	// If present, either the string "." or "/" defining the separator placed
	// between the dimensions of a chunk. If the value is not set, then the
	// default MUST be assumed to be ".", leading to chunk keys of the form “0.0”.
	DimensionSeparator string `json:"dimension_separator,omitempty"`
}

func (a ArrayMeta) MetaType() MetaType { return MTArray }

// Validate checks that the array can be read and written by this package.
func (a *ArrayMeta) Validate() error {
	if a.ZarrFormat != Version {
		return fmt.Errorf("unsupported zarr format %d", a.ZarrFormat)
	}
	if len(a.Chunks) != len(a.Shape) {
		return fmt.Errorf("chunks %v do not match shape %v", a.Chunks, a.Shape)
	}
	for d, n := range a.Shape {
		if n < 0 || a.Chunks[d] < 1 {
			return fmt.Errorf("invalid shape %v with chunks %v", a.Shape, a.Chunks)
		}
	}
	if a.Order != "" && a.Order != "C" {
		return fmt.Errorf("unsupported %q chunk order", a.Order)
	}
	if len(a.Filters) > 0 {
		return fmt.Errorf("filters are not supported, got %d", len(a.Filters))
	}
	if !a.Dtype.Numeric() {
		return fmt.Errorf("unsupported dtype %s", a.Dtype)
	}
	return nil
}

// Fill is the value of positions whose chunk was never written.
func (a *ArrayMeta) Fill() float64 {
	switch v := a.FillValue.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		switch v {
		case FillValueInfinity:
			return math.Inf(1)
		case FillValueNegativeInfinity:
			return math.Inf(-1)
		}
	}
	return math.NaN()
}

// chunkSeparator defaults to ".".
func (a *ArrayMeta) chunkSeparator() string {
	if a.DimensionSeparator == "" {
		return "."
	}
	return a.DimensionSeparator
}

type Filter struct {
	ID     string `json:"id"`
	Delta  string `json:"delta,omitempty"`
	Dtype  string `json:"dtype,omitempty"`
	AsType string `json:"astype,omitempty"`
}

const (
	// Not a Number
	FillValueNaN = "NaN"
	// Infinity
	FillValueInfinity = "Infinity"
	// -Infinity
	FillValueNegativeInfinity = "-Infinity"
)
