package merge

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/arloliu/atmogrid/errs"
	"github.com/arloliu/atmogrid/format"
	"github.com/arloliu/atmogrid/geo"
	"github.com/arloliu/atmogrid/grid"
	"github.com/arloliu/atmogrid/gridfile"
	"github.com/arloliu/atmogrid/provenance"
	"github.com/arloliu/atmogrid/store/memstore"
	"github.com/arloliu/atmogrid/timeindex"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	testRows = 4
	testCols = 5
)

var testNow = time.Date(2024, time.March, 2, 10, 30, 0, 0, time.UTC)

// hour returns 2020-01-05 at h o'clock UTC; h may exceed 23.
func hour(h int) time.Time {
	return time.Date(2020, time.January, 5, 0, 0, 0, 0, time.UTC).Add(time.Duration(h) * time.Hour)
}

func newTestFile(t *testing.T) *gridfile.GridFile {
	t.Helper()

	g, err := geo.NewGrid(geo.Family5km, -100, 30, testRows, testCols)
	require.NoError(t, err)

	f, err := gridfile.Create(memstore.New(), gridfile.FileAttrs{
		Start:     time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:       time.Date(2020, time.January, 31, 23, 0, 0, 0, time.UTC),
		Frequency: 1,
		Grid:      &g,
	}, gridfile.WithClock(clockwork.NewFakeClockAt(testNow)), gridfile.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	_, err = f.CreateDataset(gridfile.DatasetSpec{
		Name:         "t2m",
		View:         grid.MustParseView("time,lat,lon"),
		DType:        format.Float32,
		MissingValue: math.NaN(),
		Provenance:   provenance.TimeStats,
	})
	require.NoError(t, err)

	return f
}

func newTestController(t *testing.T, opts ...Option) *Controller {
	t.Helper()

	c, err := NewController(newTestFile(t), opts...)
	require.NoError(t, err)

	return c
}

func steps(n int, v float64) grid.Array {
	return grid.Full(v, n, testRows, testCols)
}

func TestController_ExampleScenario(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t)

	res, err := c.WriteObservation(ctx, "t2m", URMA, hour(0), steps(6, 271))
	require.NoError(t, err)
	require.Equal(t, 6, res.Steps)
	require.Equal(t, hour(5), res.End)
	require.Equal(t, hour(5), res.Watermarks.URMAEnd)
	require.Equal(t, hour(5), res.Watermarks.LastObs)
	require.Equal(t, hour(5), res.Watermarks.LastValid)

	res, err = c.WriteForecast(ctx, "t2m", hour(6), steps(10, 275))
	require.NoError(t, err)
	require.Equal(t, hour(6), res.Watermarks.FcastStart)
	require.Equal(t, hour(15), res.Watermarks.FcastEnd)
	require.Equal(t, hour(15), res.Watermarks.LastValid)

	_, err = c.WriteObservation(ctx, "t2m", RTMA, hour(3), steps(3, 1))
	require.ErrorIs(t, err, errs.ErrPrecedence)

	w, err := c.Validate("t2m")
	require.NoError(t, err)
	require.Equal(t, hour(15), w.LastValid)
	require.Equal(t, hour(5), w.URMAEnd)
	require.True(t, w.RTMAEnd.IsZero())

	t.Run("persisted attributes", func(t *testing.T) {
		for key, want := range map[string]string{
			gridfile.AttrURMAEndTime:    "2020-01-05:05",
			gridfile.AttrLastObsTime:    "2020-01-05:05",
			gridfile.AttrFcastStartTime: "2020-01-05:06",
			gridfile.AttrFcastEndTime:   "2020-01-05:15",
			gridfile.AttrLastValidTime:  "2020-01-05:15",
		} {
			got, ok, err := c.File().Store().Attr("t2m", key)
			require.NoError(t, err)
			require.True(t, ok, key)
			require.Equal(t, want, got, key)
		}
	})

	t.Run("data", func(t *testing.T) {
		ds, err := c.File().Dataset("t2m")
		require.NoError(t, err)

		got, err := ds.Read(grid.Selection{grid.Time: grid.Point(96 + 5)})
		require.NoError(t, err)
		require.True(t, grid.Full(271, testRows, testCols).Equal(got))

		got, err = ds.Read(grid.Selection{grid.Time: grid.Point(96 + 6)})
		require.NoError(t, err)
		require.True(t, grid.Full(275, testRows, testCols).Equal(got))
	})

	t.Run("provenance", func(t *testing.T) {
		ds, err := c.File().Dataset("t2m")
		require.NoError(t, err)

		records, err := ds.Records(timeindex.At(hour(0)), timeindex.At(hour(15)))
		require.NoError(t, err)
		require.Len(t, records, 16)
		for i, r := range records {
			require.Equal(t, timeindex.Format(hour(i)), r.Time)
			require.Equal(t, "2024-03-02 10:30:00", r.Processed)
			if i < 6 {
				require.Equal(t, "urma", r.Source)
				require.InDelta(t, 271, r.Mean, 0)
			} else {
				require.Equal(t, "forecast", r.Source)
				require.InDelta(t, 275, r.Median, 0)
			}
		}
	})
}

func TestController_ForecastTruncation(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t)

	_, err := c.WriteForecast(ctx, "t2m", hour(1), steps(6, 280))
	require.NoError(t, err)

	res, err := c.WriteObservation(ctx, "t2m", RTMA, hour(1), steps(3, 281))
	require.NoError(t, err)
	require.Equal(t, hour(3), res.Watermarks.RTMAEnd)
	require.Equal(t, hour(4), res.Watermarks.FcastStart)
	require.Equal(t, hour(6), res.Watermarks.FcastEnd)
	require.Equal(t, hour(6), res.Watermarks.LastValid)
	require.NoError(t, res.Watermarks.Validate())

	res, err = c.WriteObservation(ctx, "t2m", RTMA, hour(4), steps(3, 282))
	require.NoError(t, err)
	require.False(t, res.Watermarks.HasForecast())
	require.Equal(t, hour(6), res.Watermarks.LastObs)
	require.Equal(t, hour(6), res.Watermarks.LastValid)

	for _, key := range []string{gridfile.AttrFcastStartTime, gridfile.AttrFcastEndTime} {
		_, ok, err := c.File().Store().Attr("t2m", key)
		require.NoError(t, err)
		require.False(t, ok, key)
	}

	_, err = c.WriteForecast(ctx, "t2m", hour(6), steps(2, 1))
	require.ErrorIs(t, err, errs.ErrPrecedence)
}

func TestController_TierPrecedence(t *testing.T) {
	ctx := context.Background()

	t.Run("urma never retreats", func(t *testing.T) {
		c := newTestController(t)
		_, err := c.WriteObservation(ctx, "t2m", URMA, hour(0), steps(6, 1))
		require.NoError(t, err)

		_, err = c.WriteObservation(ctx, "t2m", URMA, hour(0), steps(3, 1))
		require.ErrorIs(t, err, errs.ErrPrecedence)

		res, err := c.WriteObservation(ctx, "t2m", URMA, hour(3), steps(3, 2))
		require.NoError(t, err)
		require.Equal(t, hour(5), res.Watermarks.URMAEnd)
	})

	t.Run("urma supersedes rtma", func(t *testing.T) {
		c := newTestController(t)
		_, err := c.WriteObservation(ctx, "t2m", RTMA, hour(0), steps(10, 1))
		require.NoError(t, err)

		res, err := c.WriteObservation(ctx, "t2m", URMA, hour(0), steps(5, 2))
		require.NoError(t, err)
		require.Equal(t, hour(4), res.Watermarks.URMAEnd)
		require.Equal(t, hour(9), res.Watermarks.RTMAEnd)
		require.NoError(t, res.Watermarks.Validate())

		_, err = c.WriteObservation(ctx, "t2m", RTMA, hour(4), steps(2, 1))
		require.ErrorIs(t, err, errs.ErrPrecedence)

		res, err = c.WriteObservation(ctx, "t2m", URMA, hour(5), steps(5, 2))
		require.NoError(t, err)
		require.Equal(t, hour(9), res.Watermarks.URMAEnd)
		require.True(t, res.Watermarks.RTMAEnd.IsZero())
		require.Equal(t, hour(9), res.Watermarks.LastObs)
	})

	t.Run("rtma watermark is monotone", func(t *testing.T) {
		c := newTestController(t)
		_, err := c.WriteObservation(ctx, "t2m", RTMA, hour(0), steps(10, 1))
		require.NoError(t, err)

		res, err := c.WriteObservation(ctx, "t2m", RTMA, hour(2), steps(2, 3))
		require.NoError(t, err)
		require.Equal(t, hour(9), res.Watermarks.RTMAEnd)
		require.Equal(t, hour(9), res.Watermarks.LastValid)
	})

	t.Run("forecast tier through observation path", func(t *testing.T) {
		c := newTestController(t)
		_, err := c.WriteObservation(ctx, "t2m", Forecast, hour(0), steps(1, 1))
		require.ErrorIs(t, err, errs.ErrPrecedence)
	})
}

func TestController_MonotoneLastValid(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t)

	type call struct {
		tier  Tier
		start int
		n     int
	}
	calls := []call{
		{Forecast, 0, 12},
		{RTMA, 0, 4},
		{URMA, 0, 2},
		{Forecast, 20, 4},
		{RTMA, 4, 10},
		{URMA, 2, 12},
		{Forecast, 14, 3},
	}

	var prev time.Time
	for _, cl := range calls {
		var (
			res Result
			err error
		)
		if cl.tier == Forecast {
			res, err = c.WriteForecast(ctx, "t2m", hour(cl.start), steps(cl.n, 1))
		} else {
			res, err = c.WriteObservation(ctx, "t2m", cl.tier, hour(cl.start), steps(cl.n, 1))
		}
		require.NoError(t, err, "%s at %d", cl.tier, cl.start)
		require.False(t, res.Watermarks.LastValid.Before(prev))
		require.NoError(t, res.Watermarks.Validate(), "%s at %d", cl.tier, cl.start)
		prev = res.Watermarks.LastValid
	}
	require.Equal(t, hour(23), prev)
}

func TestController_ClampAtAxisEnd(t *testing.T) {
	c := newTestController(t)
	start := time.Date(2020, time.January, 31, 20, 0, 0, 0, time.UTC)

	res, err := c.WriteForecast(context.Background(), "t2m", start, steps(10, 5))
	require.NoError(t, err)
	require.Equal(t, 4, res.Steps)
	require.Equal(t, time.Date(2020, time.January, 31, 23, 0, 0, 0, time.UTC), res.End)
	require.Equal(t, res.End, res.Watermarks.FcastEnd)

	ds, err := c.File().Dataset("t2m")
	require.NoError(t, err)
	records, err := ds.Records(timeindex.At(start), timeindex.Position{})
	require.NoError(t, err)
	require.Len(t, records, 4)
	require.Equal(t, "2020-01-31:23", records[3].Time)
}

func TestController_Errors(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t)

	_, err := c.WriteObservation(ctx, "t2m", URMA, hour(0).Add(30*time.Minute), steps(1, 1))
	require.Error(t, err)

	_, err = c.WriteObservation(ctx, "t2m", URMA, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), steps(1, 1))
	require.ErrorIs(t, err, errs.ErrRange)

	_, err = c.WriteObservation(ctx, "t2m", URMA, hour(0), grid.Full(1, testRows))
	require.ErrorIs(t, err, errs.ErrDimensionMismatch)

	// No rows: nothing is written, so no watermark may move.
	_, err = c.WriteObservation(ctx, "t2m", URMA, hour(0), grid.NewArray(6, 0, testCols))
	require.ErrorIs(t, err, errs.ErrDimensionMismatch)
	_, err = c.WriteForecast(ctx, "t2m", hour(0), grid.NewArray(0, testRows, testCols))
	require.ErrorIs(t, err, errs.ErrDimensionMismatch)

	_, err = c.WriteObservation(ctx, "missing", URMA, hour(0), steps(1, 1))
	require.ErrorIs(t, err, errs.ErrDatasetNotFound)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = c.WriteObservation(canceled, "t2m", URMA, hour(0), steps(1, 1))
	require.ErrorIs(t, err, context.Canceled)

	w, err := c.Watermarks("t2m")
	require.NoError(t, err)
	require.Equal(t, Watermarks{}, w)
}

func TestController_SubRegionSingleStep(t *testing.T) {
	ctx := context.Background()
	f := newTestFile(t)
	_, err := f.CreateDataset(gridfile.DatasetSpec{
		Name:         "tmax",
		View:         grid.MustParseView("lat,lon,time"),
		DType:        format.Int16,
		MissingValue: -9999,
		Frequency:    24,
		Provenance:   provenance.DateStats,
	})
	require.NoError(t, err)

	c, err := NewController(f)
	require.NoError(t, err)

	day := time.Date(2020, time.January, 3, 0, 0, 0, 0, time.UTC)
	data := grid.Full(30, 2, 3)
	data.Set(math.NaN(), 0, 0)

	res, err := c.WriteObservation(ctx, "tmax", URMA, day, data, WithRows(grid.Span(1, 2)), WithCols(grid.Span(2, 3)))
	require.NoError(t, err)
	require.Equal(t, 1, res.Steps)
	require.Equal(t, grid.Region{{Lo: 1, Hi: 3}, {Lo: 2, Hi: 5}, {Lo: 2, Hi: 3}}, res.Region)

	ds, err := f.Dataset("tmax")
	require.NoError(t, err)
	got, err := ds.Read(grid.Selection{grid.Time: grid.Point(2)})
	require.NoError(t, err)
	require.Equal(t, []int{testRows, testCols}, got.Shape)
	require.InDelta(t, -9999, got.At(0, 0), 0)
	require.InDelta(t, -9999, got.At(1, 2), 0)
	require.InDelta(t, 30, got.At(1, 3), 0)

	records, err := ds.Records(timeindex.At(day), timeindex.At(day))
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "2020-01-03", records[0].Time)
	require.InDelta(t, 30, records[0].Min, 0)
}

func TestController_ProvenanceTimeLeading(t *testing.T) {
	f := newTestFile(t)
	_, err := f.CreateDataset(gridfile.DatasetSpec{
		Name:         "precip",
		View:         grid.MustParseView("lon,lat,time"),
		DType:        format.Float32,
		MissingValue: math.NaN(),
		Provenance:   provenance.TimeAccumStats,
	})
	require.NoError(t, err)

	c, err := NewController(f)
	require.NoError(t, err)

	obs := grid.NewArray(testCols, testRows, 3)
	acc := grid.NewArray(testCols, testRows, 3)
	for s := range 3 {
		for lon := range testCols {
			for lat := range testRows {
				obs.Set(float64(s+1), lon, lat, s)
				acc.Set(float64(10*(s+1)), lon, lat, s)
			}
		}
	}

	_, err = c.WriteObservation(context.Background(), "precip", RTMA, hour(0), obs)
	require.ErrorIs(t, err, errs.ErrDimensionMismatch)

	_, err = c.WriteObservation(context.Background(), "precip", RTMA, hour(0), obs, WithAccumulation(acc))
	require.NoError(t, err)

	ds, err := f.Dataset("precip")
	require.NoError(t, err)
	records, err := ds.Records(timeindex.At(hour(0)), timeindex.At(hour(2)))
	require.NoError(t, err)
	for s, r := range records {
		require.InDelta(t, float64(s+1), r.Mean, 0)
		require.InDelta(t, float64(10*(s+1)), r.AccumMax, 0)
		require.Equal(t, "rtma", r.Source)
	}
}

func TestController_MetricsAndNotifier(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	var events []Event
	c := newTestController(t,
		WithMetrics(m),
		WithNotifier(NotifierFunc(func(_ context.Context, e Event) error {
			events = append(events, e)
			return errors.New("broker down")
		})),
	)

	_, err = c.WriteForecast(ctx, "t2m", hour(2), steps(6, 1))
	require.NoError(t, err)
	_, err = c.WriteObservation(ctx, "t2m", URMA, hour(0), steps(4, 1))
	require.NoError(t, err)
	_, err = c.WriteObservation(ctx, "t2m", RTMA, hour(1), steps(1, 1))
	require.ErrorIs(t, err, errs.ErrPrecedence)

	require.InDelta(t, 1, testutil.ToFloat64(m.Writes.WithLabelValues("urma", OutcomeOK)), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.Writes.WithLabelValues("forecast", OutcomeOK)), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.Writes.WithLabelValues("rtma", OutcomeRejected)), 0)
	require.InDelta(t, 6, testutil.ToFloat64(m.StepsWritten.WithLabelValues("forecast")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.ForecastAdjustments.WithLabelValues(AdjustTruncated)), 0)
	require.InDelta(t, float64(hour(4).Unix()),
		testutil.ToFloat64(m.Watermark.WithLabelValues("t2m", gridfile.AttrFcastStartTime)), 0)

	require.Len(t, events, 2)
	require.Equal(t, Forecast, events[0].Tier)
	require.Equal(t, URMA, events[1].Tier)
	require.Equal(t, AdjustTruncated, events[1].Adjustment)
	require.Equal(t, testNow, events[1].At)
	require.Contains(t, events[1].Changed, gridfile.AttrFcastStartTime)
}

func TestNewMetrics_SharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()

	first, err := NewMetrics(reg)
	require.NoError(t, err)
	first.observeWrite(URMA, OutcomeOK, 1)

	second, err := NewMetrics(reg)
	require.NoError(t, err)
	require.Same(t, first.Writes, second.Writes)
	second.observeWrite(URMA, OutcomeOK, 1)
	require.InDelta(t, 2, testutil.ToFloat64(first.Writes.WithLabelValues("urma", OutcomeOK)), 0)

	second.Unregister(reg)
	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	require.Zero(t, n)

	third, err := NewMetrics(reg)
	require.NoError(t, err)
	require.NotSame(t, first.Writes, third.Writes)

	t.Run("conflicting collector", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "atmogrid", Subsystem: "merge", Name: "writes_total", Help: "other",
		}))

		_, err := NewMetrics(reg)
		require.Error(t, err)
	})
}

func TestController_ValidateDetectsStaleWatermarks(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t)

	_, err := c.WriteObservation(ctx, "t2m", URMA, hour(0), steps(6, 1))
	require.NoError(t, err)
	_, err = c.WriteForecast(ctx, "t2m", hour(6), steps(4, 1))
	require.NoError(t, err)

	// Simulates a crash between the slice write and the watermark update.
	st := c.File().Store()
	require.NoError(t, st.SetAttr("t2m", gridfile.AttrLastObsTime, "2020-01-05:07"))

	_, err = c.Validate("t2m")
	require.ErrorIs(t, err, errs.ErrInvariant)
}

func TestController_FallBackHour(t *testing.T) {
	ctx := context.Background()
	ny, err := timeindex.LoadLocation("America/New_York")
	require.NoError(t, err)
	g, err := geo.NewGrid(geo.Family5km, -100, 30, testRows, testCols)
	require.NoError(t, err)

	// 2020-11-01 01:00 local occurs twice: 05:00 UTC (EDT) and 06:00 UTC (EST).
	edt := time.Date(2020, time.November, 1, 5, 0, 0, 0, time.UTC)
	est := edt.Add(time.Hour)

	newFile := func(t *testing.T) *gridfile.GridFile {
		t.Helper()

		f, err := gridfile.Create(memstore.New(), gridfile.FileAttrs{
			Location:  ny,
			Start:     time.Date(2020, time.October, 31, 0, 0, 0, 0, ny),
			End:       time.Date(2020, time.November, 2, 23, 0, 0, 0, ny),
			Frequency: 1,
			Grid:      &g,
		}, gridfile.WithClock(clockwork.NewFakeClockAt(testNow)))
		require.NoError(t, err)
		_, err = f.CreateDataset(gridfile.DatasetSpec{
			Name:         "t2m",
			View:         grid.MustParseView("time,lat,lon"),
			DType:        format.Float32,
			MissingValue: math.NaN(),
			Provenance:   provenance.TimeStats,
		})
		require.NoError(t, err)

		return f
	}

	t.Run("watermark survives reopen", func(t *testing.T) {
		f := newFile(t)
		c, err := NewController(f)
		require.NoError(t, err)

		res, err := c.WriteObservation(ctx, "t2m", URMA, est.Add(-2*time.Hour), steps(3, 271))
		require.NoError(t, err)
		require.True(t, res.Watermarks.URMAEnd.Equal(est))

		reopened, err := gridfile.Open(f.Store())
		require.NoError(t, err)
		rc, err := NewController(reopened)
		require.NoError(t, err)

		w, err := rc.Watermarks("t2m")
		require.NoError(t, err)
		require.True(t, w.URMAEnd.Equal(est), "urma_end_time reloaded as %s", w.URMAEnd.UTC())
		require.True(t, w.LastValid.Equal(est))

		_, err = rc.WriteObservation(ctx, "t2m", RTMA, est, steps(1, 0))
		require.ErrorIs(t, err, errs.ErrPrecedence)

		ds, err := reopened.Dataset("t2m")
		require.NoError(t, err)
		arr, err := ds.Read(grid.Selection{grid.Time: grid.Point(26)})
		require.NoError(t, err)
		require.InDelta(t, 271, arr.At(0, 0), 0)
	})

	t.Run("earlier instant records the later one", func(t *testing.T) {
		c, err := NewController(newFile(t))
		require.NoError(t, err)

		res, err := c.WriteObservation(ctx, "t2m", URMA, edt.Add(-time.Hour), steps(2, 271))
		require.NoError(t, err)
		require.True(t, res.End.Equal(edt))
		require.True(t, res.Watermarks.URMAEnd.Equal(est))

		_, err = c.WriteObservation(ctx, "t2m", RTMA, est, steps(1, 0))
		require.ErrorIs(t, err, errs.ErrPrecedence)
		_, err = c.WriteObservation(ctx, "t2m", RTMA, est.Add(time.Hour), steps(1, 280))
		require.NoError(t, err)
	})
}
