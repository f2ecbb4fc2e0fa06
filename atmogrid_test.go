package atmogrid

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/arloliu/atmogrid/config"
	"github.com/arloliu/atmogrid/grid"
	"github.com/arloliu/atmogrid/merge"
	"github.com/arloliu/atmogrid/store/memstore"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	testNow = time.Date(2024, time.March, 2, 10, 30, 0, 0, time.UTC)
	jan5    = time.Date(2020, time.January, 5, 0, 0, 0, 0, time.UTC)
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Grid = &config.GridConfig{Family: "5km", MinLon: -100, MinLat: 30, Rows: 4, Cols: 5}
	cfg.Datasets = []config.DatasetConfig{{
		Name:       "t2m",
		View:       "time,lat,lon",
		DType:      "float32",
		Provenance: "timestats",
	}}

	return cfg
}

func TestOpen_Memory(t *testing.T) {
	reg := prometheus.NewRegistry()
	var events []merge.Event

	g, err := Open(testConfig(),
		WithLogger(zaptest.NewLogger(t)),
		WithClock(clockwork.NewFakeClockAt(testNow)),
		WithRegisterer(reg),
		WithNotifier(merge.NotifierFunc(func(_ context.Context, e merge.Event) error {
			events = append(events, e)
			return nil
		})),
	)
	require.NoError(t, err)
	defer g.Close()

	names, err := g.File().DatasetNames()
	require.NoError(t, err)
	require.Equal(t, []string{"t2m"}, names)

	res, err := g.Controller().WriteObservation(context.Background(), "t2m", merge.URMA, jan5, grid.Full(271, 3, 4, 5))
	require.NoError(t, err)
	require.Equal(t, 3, res.Steps)
	require.True(t, res.Watermarks.URMAEnd.Equal(jan5.Add(2*time.Hour)))

	require.Len(t, events, 1)
	require.Equal(t, "t2m", events[0].Dataset)

	ds, err := g.Dataset("t2m")
	require.NoError(t, err)
	arr, err := ds.Read(grid.Selection{grid.Time: grid.Span(96, 3)})
	require.NoError(t, err)
	require.Equal(t, []int{3, 4, 5}, arr.Shape)
	require.InDelta(t, 271, arr.At(2, 3, 4), 0)

	n, err := testutil.GatherAndCount(reg, "atmogrid_merge_writes_total")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestOpen_Bolt(t *testing.T) {
	cfg := testConfig()
	cfg.Store = config.StoreConfig{
		Backend:     config.BackendBolt,
		Path:        filepath.Join(t.TempDir(), "jan2020.db"),
		Compression: "zstd",
		Timeout:     config.Duration(time.Second),
	}

	g, err := Open(cfg, WithLogger(zaptest.NewLogger(t)), WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	_, err = g.Controller().WriteForecast(context.Background(), "t2m", jan5, grid.Full(280, 6, 4, 5))
	require.NoError(t, err)
	require.NoError(t, g.Close())

	t.Run("reopen", func(t *testing.T) {
		g, err := Open(cfg, WithLogger(zaptest.NewLogger(t)))
		require.NoError(t, err)
		defer g.Close()

		w, err := g.Controller().Watermarks("t2m")
		require.NoError(t, err)
		require.True(t, w.FcastStart.Equal(jan5))
		require.True(t, w.FcastEnd.Equal(jan5.Add(5*time.Hour)))
		require.True(t, w.LastValid.Equal(w.FcastEnd))
	})

	t.Run("read-only rejects missing dataset", func(t *testing.T) {
		ro := cfg
		ro.Store.ReadOnly = true
		ro.Datasets = append(ro.Datasets, config.DatasetConfig{Name: "u10", View: "time,lat,lon", DType: "float32"})

		_, err := Open(ro, WithLogger(zaptest.NewLogger(t)))
		require.Error(t, err)
	})
}

func TestOpen_SharedRegisterer(t *testing.T) {
	bolt := testConfig()
	bolt.Store = config.StoreConfig{Backend: config.BackendBolt, Path: filepath.Join(t.TempDir(), "shared.db")}

	for name, cfg := range map[string]config.Config{"memory": testConfig(), "bolt": bolt} {
		t.Run(name, func(t *testing.T) {
			reg := prometheus.NewRegistry()

			g, err := Open(cfg, WithLogger(zaptest.NewLogger(t)), WithRegisterer(reg))
			require.NoError(t, err)
			_, err = g.Controller().WriteForecast(context.Background(), "t2m", jan5, grid.Full(280, 2, 4, 5))
			require.NoError(t, err)
			require.NoError(t, g.Close())

			n, err := testutil.GatherAndCount(reg)
			require.NoError(t, err)
			require.Zero(t, n)

			g, err = Open(cfg, WithLogger(zaptest.NewLogger(t)), WithRegisterer(reg))
			require.NoError(t, err)
			defer g.Close()

			_, err = g.Controller().WriteForecast(context.Background(), "t2m", jan5.Add(2*time.Hour), grid.Full(281, 2, 4, 5))
			require.NoError(t, err)
			n, err = testutil.GatherAndCount(reg, "atmogrid_merge_writes_total")
			require.NoError(t, err)
			require.Equal(t, 1, n)
		})
	}
}

func TestOpen_WithStore(t *testing.T) {
	st := memstore.New()
	cfg := testConfig()

	g, err := Open(cfg, WithStore(st), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	require.Same(t, st, g.File().Store())
	require.NoError(t, g.Close())

	_, err = Open(cfg, WithStore(nil))
	require.Error(t, err)
}

func TestOpen_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Store.Backend = "hdf5"

	_, err := Open(cfg)
	require.Error(t, err)
}
