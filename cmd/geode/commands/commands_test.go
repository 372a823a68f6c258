package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qri-io/geode"
	"github.com/qri-io/geode/config"
	"github.com/qri-io/geode/zarr"
)

// execute runs the geode command line against store and returns stdout.
func execute(t *testing.T, store zarr.Store, args ...string) (string, error) {
	t.Helper()

	cfgPath := filepath.Join(t.TempDir(), "geode.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("logging:\n  level: warn\n"), 0o600))

	cmd := newRootCommand(&App{store: store})
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))

	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func synthStore(t *testing.T) *zarr.MemoryStore {
	t.Helper()

	store := zarr.NewMemoryStore()
	_, err := execute(t, store, "synth", "--years", "3", "--lat", "4", "--lon", "3", "--trend", "0.5")
	require.NoError(t, err)

	return store
}

func openVar(t *testing.T, store zarr.Store, name string) *geode.Var {
	t.Helper()

	v, err := zarr.OpenVar(context.Background(), store, "", name)
	require.NoError(t, err)

	return v
}

func TestSynthAndList(t *testing.T) {
	t.Parallel()

	store := synthStore(t)

	tas := openVar(t, store, "tas")
	assert.Equal(t, []int{36, 4, 3}, tas.Shape())
	assert.Equal(t, geode.Month, tas.AxisAt(0).Resolution())
	assert.True(t, tas.AxisAt(1).HasWeights())

	out, err := execute(t, store, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "tas")
	assert.Contains(t, out, "time,lat,lon")
	assert.Contains(t, out, "Total: 1 variables")
	assert.Contains(t, out, "3.4 KiB")
}

func TestSynthIsChunkInvariant(t *testing.T) {
	t.Parallel()

	sc := &SynthCommand{name: "x", start: "2001-06", years: 2, nlat: 3, nlon: 5, trend: 1, noise: 2, seed: 7}
	v, err := sc.build()
	require.NoError(t, err)

	ctx := context.Background()
	whole, err := v.Get(ctx)
	require.NoError(t, err)
	chunked, err := v.Get(ctx, geode.WithMemoryBudget(8*4))
	require.NoError(t, err)

	assert.Equal(t, whole.Data(), chunked.Data())
}

func TestReduce(t *testing.T) {
	t.Parallel()

	store := synthStore(t)
	ctx := context.Background()

	out, err := execute(t, store, "reduce", "tas", "--kind", "max")
	require.NoError(t, err)

	mx, err := geode.Max(openVar(t, store, "tas"))
	require.NoError(t, err)
	want, err := mx.Scalar(ctx)
	require.NoError(t, err)
	assert.Contains(t, out, "tas_max")
	assert.Contains(t, out, formatValue(want))

	_, err = execute(t, store, "reduce", "tas", "-a", "lat", "-w", "-o", "tas_latmean")
	require.NoError(t, err)

	stored := openVar(t, store, "tas_latmean")
	assert.Equal(t, []int{36, 3}, stored.Shape())

	lazy, err := geode.Reduce(openVar(t, store, "tas"), geode.KindMean, []string{"lat"}, geode.AxisWeights())
	require.NoError(t, err)
	a, err := lazy.Get(ctx)
	require.NoError(t, err)
	b, err := stored.Get(ctx)
	require.NoError(t, err)
	assert.True(t, geode.AllClose(a, b, 1e-12))
}

func TestReduceRejectsUnknownKind(t *testing.T) {
	t.Parallel()

	_, err := execute(t, synthStore(t), "reduce", "tas", "--kind", "median")
	require.ErrorIs(t, err, geode.ErrConfiguration)
}

func TestAggregate(t *testing.T) {
	t.Parallel()

	store := synthStore(t)
	ctx := context.Background()

	_, err := execute(t, store, "aggregate", "tas", "--op", "clim")
	require.NoError(t, err)
	_, err = execute(t, store, "aggregate", "tas", "--op", "seasonal")
	require.NoError(t, err)
	_, err = execute(t, store, "aggregate", "tas", "--op", "trend", "--limit", "0")
	require.NoError(t, err)

	names, err := zarr.Variables(store, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"tas", "tas_clim_mean", "tas_seasonal_mean", "tas_series_trend"}, names)

	clim := openVar(t, store, "tas_clim_mean")
	assert.Equal(t, "time_clim", clim.AxisAt(0).Name())
	assert.Equal(t, []int{12, 4, 3}, clim.Shape())

	lazy, err := geode.Climatology(openVar(t, store, "tas"))
	require.NoError(t, err)
	a, err := lazy.Get(ctx)
	require.NoError(t, err)
	b, err := clim.Get(ctx)
	require.NoError(t, err)
	assert.True(t, geode.AllClose(a, b, 1e-12))

	trend := openVar(t, store, "tas_series_trend")
	assert.Equal(t, []int{1, 4, 3, 2}, trend.Shape())
	assert.Equal(t, geode.FamilyCoef, trend.AxisAt(3).Family())
}

func TestAggregateRejectsUnknownOp(t *testing.T) {
	t.Parallel()

	_, err := execute(t, synthStore(t), "aggregate", "tas", "--op", "hourly")
	require.ErrorIs(t, err, geode.ErrConfiguration)
}

func TestDetrend(t *testing.T) {
	t.Parallel()

	store := synthStore(t)
	ctx := context.Background()

	out, err := execute(t, store, "detrend", "tas", "--keep-trend")
	require.NoError(t, err)
	assert.Contains(t, out, "tas_detrended")
	assert.Contains(t, out, "tas_trend")

	sum, err := geode.Add(openVar(t, store, "tas_detrended"), openVar(t, store, "tas_trend"))
	require.NoError(t, err)
	got, err := sum.Get(ctx)
	require.NoError(t, err)
	want, err := openVar(t, store, "tas").Get(ctx)
	require.NoError(t, err)
	assert.True(t, geode.AllClose(want, got, 1e-9))
}

func TestFlagsOverrideConfig(t *testing.T) {
	t.Parallel()

	_, err := execute(t, zarr.NewMemoryStore(), "--memory", "lots", "list")
	require.ErrorIs(t, err, config.ErrInvalidMemory)

	_, err = execute(t, zarr.NewMemoryStore(), "--log-level", "chatty", "list")
	require.ErrorIs(t, err, config.ErrInvalidLogLevel)

	dir := t.TempDir()
	_, err = execute(t, nil, "--store", dir, "synth", "--years", "1", "--lat", "2", "--lon", "2")
	require.NoError(t, err)

	local, err := zarr.NewLocalStore(dir)
	require.NoError(t, err)
	assert.Equal(t, []int{12, 2, 2}, openVar(t, local, "tas").Shape())
}
