package zarr

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// https://zarr.readthedocs.io/en/stable/spec/v2.html#metadata
const specExample = `{
  "chunks": [
    1000,
    1000
  ],
	"compressor": {
			"id": "blosc",
			"cname": "lz4",
			"clevel": 5,
			"shuffle": 1
	},
	"dtype": "<f8",
	"fill_value": "NaN",
	"filters": [
			{"id": "delta", "dtype": "<f8", "astype": "<f4"}
	],
	"order": "C",
	"shape": [
			10000,
			10000
	],
	"zarr_format": 2
}`

func TestMetadataSerialization(t *testing.T) {
	m := &ArrayMeta{}
	require.NoError(t, json.Unmarshal([]byte(specExample), m))

	assert.Equal(t, []int{1000, 1000}, m.Chunks)
	assert.Equal(t, Float64, m.Dtype)
	assert.Equal(t, "lz4", m.Compressor.Cname)
	assert.Equal(t, "delta", m.Filters[0].ID)
	assert.True(t, math.IsNaN(m.Fill()))
	assert.Error(t, m.Validate(), "filters are not supported")

	m.Filters = nil
	assert.NoError(t, m.Validate())

	data, err := json.Marshal(m)
	require.NoError(t, err)
	back := &ArrayMeta{}
	require.NoError(t, json.Unmarshal(data, back))
	assert.Equal(t, m, back)
}

const consolidated = `{
  "zarr_consolidated_format": 1,
  "metadata": {
    ".zgroup": {"zarr_format": 2},
    "tas/.zarray": {"zarr_format": 2, "shape": [4], "chunks": [2], "dtype": "<f4", "compressor": null, "fill_value": 0, "order": "C", "filters": null},
    "tas/.zattrs": {"_ARRAY_DIMENSIONS": ["time"]}
  }
}`

func TestConsolidatedMetadata(t *testing.T) {
	cm := &ConsolidatedMetadata{}
	require.NoError(t, json.Unmarshal([]byte(consolidated), cm))
	assert.Equal(t, 1, cm.ConsolidatedFormat)
	require.Len(t, cm.Metadata, 3)

	arr, ok := cm.Metadata["tas/.zarray"].(*ArrayMeta)
	require.True(t, ok)
	assert.Nil(t, arr.Compressor)
	assert.Equal(t, 0.0, arr.Fill())

	attrs, ok := cm.Metadata["tas/.zattrs"].(Attributes)
	require.True(t, ok)
	dims, ok := attrs.Dimensions()
	require.True(t, ok)
	assert.Equal(t, []string{"time"}, dims)

	assert.Error(t, json.Unmarshal([]byte(`{"metadata": {"bad": {}}}`), cm))
}

func TestKeyMetaType(t *testing.T) {
	mt, ok := KeyMetaType("a/b/.zarray")
	assert.True(t, ok)
	assert.Equal(t, MTArray, mt)
	_, ok = KeyMetaType("0.0")
	assert.False(t, ok)
}
