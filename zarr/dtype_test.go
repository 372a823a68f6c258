package zarr

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDtype(t *testing.T) {
	dt, err := ParseDtype("&lt;M8[ns]")
	require.NoError(t, err)
	assert.Equal(t, Dtype{ByteOrder: BOLittleEndian, BasicType: BTDatetime, ByteSize: 8, Units: "[ns]"}, dt)
	assert.Equal(t, "<M8[ns]", dt.String())
	assert.False(t, dt.Numeric())

	for _, bad := range []string{"<f", "?f8", "<x8", "<fz"} {
		_, err := ParseDtype(bad)
		assert.Error(t, err, bad)
	}
}

func TestDtypeCodec(t *testing.T) {
	vals := []float64{0, 1, -2, 100}
	for _, s := range []string{"<f8", ">f4", "<i2", ">i4", "<i8", "|i1"} {
		dt, err := ParseDtype(s)
		require.NoError(t, err)
		b, err := dt.Encode(vals)
		require.NoError(t, err)
		assert.Len(t, b, len(vals)*dt.ByteSize)
		got, err := dt.Decode(b)
		require.NoError(t, err)
		assert.Equal(t, vals, got, s)
	}

	u, _ := ParseDtype(">u2")
	got, err := u.Decode([]byte{0x01, 0x00, 0xff, 0xff})
	require.NoError(t, err)
	assert.Equal(t, []float64{256, 65535}, got)

	f, _ := ParseDtype("<f8")
	b, err := f.Encode([]float64{math.NaN()})
	require.NoError(t, err)
	got, err = f.Decode(b)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(got[0]))

	_, err = f.Decode([]byte{1, 2, 3})
	assert.Error(t, err)
}
