package zarr

import (
	"context"
	"io"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qri-io/geode"
)

func ramp(shape ...int) *geode.Array {
	a := geode.NewArray(shape...)
	for i := range a.Data() {
		a.Data()[i] = float64(i)
	}
	return a
}

func axes(shape ...int) []*geode.Axis {
	names := []string{"x", "y", "z"}
	out := make([]*geode.Axis, len(shape))
	for d, n := range shape {
		vals := make([]float64, n)
		for i := range vals {
			vals[i] = float64(i)
		}
		out[d] = geode.NewAxis(names[d], geode.FamilyGeneric, vals)
	}
	return out
}

func TestFetchAcrossChunks(t *testing.T) {
	ctx := context.Background()
	for _, comp := range []*CompressionMeta{nil, Zstd()} {
		for name, s := range stores(t) {
			meta := &ArrayMeta{
				ZarrFormat: Version,
				Shape:      []int{5, 4, 3},
				Chunks:     []int{2, 3, 2},
				Dtype:      Float64,
				Compressor: comp,
				FillValue:  FillValueNaN,
				Order:      "C",
			}
			a, err := Create(s, "grp/v", meta, Attributes{DimensionsKey: []string{"x", "y", "z"}}, ModeWrite)
			require.NoError(t, err, name)
			want := ramp(5, 4, 3)
			require.NoError(t, a.Write(ctx, []int{0, 0, 0}, want))

			b, err := Open(s, "grp/v")
			require.NoError(t, err)
			assert.Equal(t, int64(60), b.ElementCount())
			dims, ok := b.Attributes().Dimensions()
			require.True(t, ok)
			assert.Equal(t, []string{"x", "y", "z"}, dims)

			r := geode.NewRegion(axes(5, 4, 3)...).Take(0, []int{4, 1, 2}).Slice(1, 1, 4, 2).Take(2, []int{2, 0})
			got, err := b.Fetch(ctx, r)
			require.NoError(t, err)
			idx := [][]int{{4, 1, 2}, {1, 3}, {2, 0}}
			expect, err := want.Gather(idx)
			require.NoError(t, err)
			assert.Equal(t, expect.Data(), got.Data(), name)
		}
	}
}

func TestPartialWritesAndFill(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	meta := &ArrayMeta{
		ZarrFormat: Version,
		Shape:      []int{3, 5},
		Chunks:     []int{2, 2},
		Dtype:      Float64,
		Compressor: Zstd(),
		FillValue:  FillValueNaN,
		Order:      "C",
	}
	a, err := Create(s, "v", meta, nil, ModeWriteFail)
	require.NoError(t, err)
	_, err = Create(s, "v", meta, nil, ModeWriteFail)
	assert.Error(t, err)

	block, err := geode.NewArrayFrom([]float64{1, 2, 3, 4}, 2, 2)
	require.NoError(t, err)
	require.NoError(t, a.Write(ctx, []int{1, 1}, block))
	assert.Error(t, a.Write(ctx, []int{2, 4}, block))

	got, err := a.Fetch(ctx, geode.NewRegion(axes(3, 5)...))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		for j := 0; j < 5; j++ {
			v := got.At(i, j)
			if i >= 1 && j >= 1 && j <= 2 {
				assert.Equal(t, float64(1+(i-1)*2+(j-1)), v)
				continue
			}
			assert.True(t, math.IsNaN(v), "position %d,%d", i, j)
		}
	}
}

func TestWriteVarRoundTrip(t *testing.T) {
	ctx := context.Background()
	times := make([]time.Time, 36)
	for i := range times {
		times[i] = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, i, 0)
	}
	taxis, err := geode.NewTimeAxis(times, geode.Month)
	require.NoError(t, err)
	lat := geode.NewLatAxis([]float64{-30, 0, 30})
	raw := ramp(36, 3)
	x, err := geode.FromArray("tas", []*geode.Axis{taxis, lat}, raw)
	require.NoError(t, err)

	clim, err := geode.Climatology(x)
	require.NoError(t, err)
	clim, err = clim.ReplaceAxis(0, clim.AxisAt(0).Rename("month"))
	require.NoError(t, err)
	want, err := clim.Get(ctx)
	require.NoError(t, err)

	for name, s := range stores(t) {
		_, err = WriteVar(ctx, s, "out", x, WriteOptions{Chunks: []int{5}})
		require.NoError(t, err, name)
		_, err = WriteVar(ctx, s, "out", clim, WriteOptions{}, geode.WithMemoryBudget(16))
		require.NoError(t, err, name)

		_, err = WriteVar(ctx, s, "out", x.Rename("tas2"), WriteOptions{})
		require.NoError(t, err, "equal axes are shared")
		err = WriteAxis(ctx, s, "out", clim.AxisAt(0).Rename("time"))
		assert.Error(t, err)

		names, err := Variables(s, "out")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"tas", "tas2", "tas_clim_mean"}, names)

		back, err := OpenVar(ctx, s, "out", "tas_clim_mean")
		require.NoError(t, err)
		assert.Equal(t, clim.Shape(), back.Shape())
		assert.True(t, clim.AxisAt(0).Equal(back.AxisAt(0)))
		assert.Equal(t, lat.Weights(), back.AxisAt(1).Weights())
		got, err := back.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, want.Data(), got.Data())

		// the stored input reduces like the in-memory one
		stored, err := OpenVar(ctx, s, "out", "tas")
		require.NoError(t, err)
		assert.True(t, taxis.Equal(stored.AxisAt(0)))
		again, err := geode.Climatology(stored)
		require.NoError(t, err)
		got, err = again.Get(ctx, geode.WithMemoryBudget(64))
		require.NoError(t, err)
		assert.Equal(t, want.Data(), got.Data())
	}
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(NewMemoryStore(), "nope")
	assert.ErrorIs(t, err, ErrNotfound)
	_, err = OpenVar(context.Background(), NewMemoryStore(), "", "nope")
	assert.ErrorIs(t, err, ErrNotfound)
}

func TestWriteVarRaw(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	x, err := geode.FromArray("v", axes(3, 4), ramp(3, 4))
	require.NoError(t, err)

	a, err := WriteVar(ctx, s, "", x, WriteOptions{Chunks: []int{2, 3}, Raw: true})
	require.NoError(t, err)
	assert.Nil(t, a.Meta().Compressor)

	v, err := OpenVar(ctx, s, "", "v")
	require.NoError(t, err)
	got, err := v.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, ramp(3, 4).Data(), got.Data())

	// raw chunks hold exactly 2x3 little-endian float64s
	r, err := s.Get("v/0.0")
	require.NoError(t, err)
	defer r.Close()
	raw, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Len(t, raw, 2*3*8)
}
