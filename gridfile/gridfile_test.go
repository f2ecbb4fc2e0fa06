package gridfile

import (
	"math"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/arloliu/atmogrid/errs"
	"github.com/arloliu/atmogrid/format"
	"github.com/arloliu/atmogrid/geo"
	"github.com/arloliu/atmogrid/grid"
	"github.com/arloliu/atmogrid/provenance"
	"github.com/arloliu/atmogrid/store"
	"github.com/arloliu/atmogrid/store/memstore"
	"github.com/arloliu/atmogrid/timeindex"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var testNow = time.Date(2024, time.March, 2, 10, 30, 0, 0, time.UTC)

func testAttrs(t *testing.T) FileAttrs {
	t.Helper()

	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	g, err := geo.NewGrid(geo.Family5km, -100, 30, 10, 12)
	require.NoError(t, err)

	return FileAttrs{
		Location:  loc,
		Start:     time.Date(2020, 1, 1, 0, 0, 0, 0, loc),
		End:       time.Date(2020, 1, 31, 23, 0, 0, 0, loc),
		Frequency: 1,
		Grid:      &g,
	}
}

func newTestFile(t *testing.T) (*GridFile, store.Store) {
	t.Helper()

	st := memstore.New()
	f, err := Create(st, testAttrs(t), WithClock(clockwork.NewFakeClockAt(testNow)), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	return f, st
}

func TestCreateOpen(t *testing.T) {
	f, st := newTestFile(t)
	want := f.Attrs()

	tz, ok, err := st.Attr(store.RootObject, AttrTimezone)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "America/New_York", tz)

	start, _, err := st.Attr(store.RootObject, AttrStartTime)
	require.NoError(t, err)
	require.Equal(t, "2020-01-01:00", start)

	reopened, err := Open(st)
	require.NoError(t, err)
	got := reopened.Attrs()
	require.Equal(t, want.Location.String(), got.Location.String())
	require.True(t, want.Start.Equal(got.Start))
	require.True(t, want.End.Equal(got.End))
	require.Equal(t, want.Frequency, got.Frequency)
	require.Equal(t, *want.Grid, *got.Grid)

	t.Run("create twice", func(t *testing.T) {
		_, err := Create(st, testAttrs(t))
		require.ErrorIs(t, err, errs.ErrDatasetExists)
	})

	t.Run("open empty store", func(t *testing.T) {
		_, err := Open(memstore.New())
		require.ErrorIs(t, err, errs.ErrAttributeNotFound)
	})

	t.Run("end before start", func(t *testing.T) {
		a := testAttrs(t)
		a.End = a.Start.Add(-time.Hour)
		_, err := Create(memstore.New(), a)
		require.ErrorIs(t, err, errs.ErrRange)
	})
}

func TestCreateDataset(t *testing.T) {
	f, st := newTestFile(t)

	ds, err := f.CreateDataset(DatasetSpec{
		Name:         "t2m",
		View:         grid.MustParseView("time,lat,lon"),
		DType:        format.Float32,
		MissingValue: math.NaN(),
		Provenance:   provenance.TimeStats,
	})
	require.NoError(t, err)
	require.Equal(t, []int{744, 10, 12}, ds.Shape())
	require.Equal(t, 1, ds.Frequency())

	info, err := st.Dataset("t2m")
	require.NoError(t, err)
	require.Equal(t, []int{24, 10, 12}, info.ChunkShape)

	target, ok := ds.Provenance()
	require.True(t, ok)
	require.Equal(t, "t2m_provenance", target.Name)
	require.Equal(t, 2, target.DataRank)

	daily, err := f.CreateDataset(DatasetSpec{
		Name:         "tmax",
		View:         grid.MustParseView("lat,lon,time"),
		DType:        format.Int16,
		MissingValue: -9999,
		Frequency:    24,
		Provenance:   provenance.DateStats,
	})
	require.NoError(t, err)
	require.Equal(t, []int{10, 12, 31}, daily.Shape())

	names, err := f.DatasetNames()
	require.NoError(t, err)
	require.Equal(t, []string{"t2m", "tmax"}, names)

	t.Run("reload descriptor", func(t *testing.T) {
		reopened, err := Open(st)
		require.NoError(t, err)

		got, err := reopened.Dataset("tmax")
		require.NoError(t, err)
		require.Equal(t, daily.Layout(), got.Layout())

		axis, ok := got.Axis()
		require.True(t, ok)
		require.Equal(t, 24, axis.Frequency)
		require.Equal(t, 31, axis.Len())

		prov, ok := got.Provenance()
		require.True(t, ok)
		require.Equal(t, provenance.DateStats, prov.Type)
		require.Equal(t, 2, prov.DataRank)
		require.InDelta(t, -9999, prov.MissingValue, 0)

		_, err = reopened.Dataset("t2m_provenance")
		require.ErrorIs(t, err, errs.ErrInvalidView)
		_, err = reopened.Dataset("missing")
		require.ErrorIs(t, err, errs.ErrDatasetNotFound)
	})

	t.Run("duplicate", func(t *testing.T) {
		_, err := f.CreateDataset(DatasetSpec{Name: "t2m", View: grid.MustParseView("lat,lon"), DType: format.Float32})
		require.ErrorIs(t, err, errs.ErrDatasetExists)
	})

	t.Run("integer without missing value", func(t *testing.T) {
		_, err := f.CreateDataset(DatasetSpec{
			Name:         "bad",
			View:         grid.MustParseView("time,lat,lon"),
			DType:        format.Int32,
			MissingValue: math.NaN(),
		})
		require.ErrorIs(t, err, errs.ErrInvalidConfig)
	})

	t.Run("provenance without time", func(t *testing.T) {
		_, err := f.CreateDataset(DatasetSpec{
			Name:       "elev",
			View:       grid.MustParseView("lat,lon"),
			DType:      format.Float32,
			Provenance: provenance.TimeStats,
		})
		require.ErrorIs(t, err, errs.ErrInvalidConfig)
	})
}

func TestDataset_TimeAttrs(t *testing.T) {
	f, st := newTestFile(t)
	ds, err := f.CreateDataset(DatasetSpec{
		Name:         "t2m",
		View:         grid.MustParseView("time,lat,lon"),
		DType:        format.Float32,
		MissingValue: math.NaN(),
	})
	require.NoError(t, err)

	_, ok, err := ds.TimeAttr(AttrLastObsTime)
	require.NoError(t, err)
	require.False(t, ok)

	axis, _ := ds.Axis()
	obs := time.Date(2020, 1, 5, 3, 0, 0, 0, time.UTC)
	require.NoError(t, ds.SetTimeAttr(AttrLastObsTime, obs))

	raw, ok, err := st.Attr("t2m", AttrLastObsTime)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, timeindex.Format(obs.In(axis.Location)), raw)

	got, ok, err := ds.TimeAttr(AttrLastObsTime)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, obs.Equal(got))

	t.Run("cache", func(t *testing.T) {
		require.NoError(t, st.SetAttr("t2m", AttrLastObsTime, "2020-01-06:00"))
		got, _, err := ds.TimeAttr(AttrLastObsTime)
		require.NoError(t, err)
		require.True(t, obs.Equal(got))

		ds.ReloadTimeAttrs()
		got, _, err = ds.TimeAttr(AttrLastObsTime)
		require.NoError(t, err)
		require.True(t, time.Date(2020, 1, 6, 0, 0, 0, 0, axis.Location).Equal(got))
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, ds.DeleteTimeAttr(AttrLastObsTime))
		_, ok, err := ds.TimeAttr(AttrLastObsTime)
		require.NoError(t, err)
		require.False(t, ok)
		_, ok, err = st.Attr("t2m", AttrLastObsTime)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("malformed", func(t *testing.T) {
		require.NoError(t, st.SetAttr("t2m", AttrFcastEndTime, "yesterday"))
		_, _, err := ds.TimeAttr(AttrFcastEndTime)
		require.ErrorIs(t, err, errs.ErrInvalidTimestamp)
	})
}

func TestDataset_ReadWrite(t *testing.T) {
	f, _ := newTestFile(t)
	ds, err := f.CreateDataset(DatasetSpec{
		Name:         "t2m",
		View:         grid.MustParseView("time,lat,lon"),
		DType:        format.Float64,
		MissingValue: math.NaN(),
		Provenance:   provenance.TimeStats,
	})
	require.NoError(t, err)

	tr, err := ds.TimeRange(
		timeindex.At(time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)),
		timeindex.At(time.Date(2020, 1, 2, 1, 0, 0, 0, time.UTC)),
	)
	require.NoError(t, err)
	// 2020-01-02 00Z is 2020-01-01 19:00 in New York.
	require.Equal(t, grid.Range{Lo: 19, Hi: 21}, tr)

	data := grid.Full(280, 2, 10, 12)
	_, err = ds.Write(grid.Selection{grid.Time: tr}, data)
	require.NoError(t, err)

	got, err := ds.Read(grid.Selection{grid.Time: tr})
	require.NoError(t, err)
	require.True(t, data.Equal(got))

	updated, ok, err := ds.Updated()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, testNow, updated)

	records, err := ds.Records(timeindex.Index(0), timeindex.Index(2))
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.True(t, records[0].IsEmpty())

	_, err = f.Dataset("t2m")
	require.NoError(t, err)
}

func TestCoordinates(t *testing.T) {
	f, _ := newTestFile(t)
	require.NoError(t, f.CreateCoordinates())

	lat, err := f.Dataset(CoordLat)
	require.NoError(t, err)
	lon, err := f.Dataset(CoordLon)
	require.NoError(t, err)

	g, ok := f.Locator()
	require.True(t, ok)

	sel := grid.Selection{grid.Lat: grid.Point(3), grid.Lon: grid.Point(5)}
	gotLat, err := lat.Read(sel)
	require.NoError(t, err)
	gotLon, err := lon.Read(sel)
	require.NoError(t, err)

	wantLon, wantLat := g.Node(3, 5)
	require.InDelta(t, wantLat, gotLat.Data[0], 1e-12)
	require.InDelta(t, wantLon, gotLon.Data[0], 1e-12)

	names, err := f.DatasetNames()
	require.NoError(t, err)
	require.Empty(t, names)
}

func TestBoundingBox(t *testing.T) {
	f, _ := newTestFile(t)

	rows, cols, err := f.BoundingBox(-100, -100+5.0/24, 30, 30+3.0/24)
	require.NoError(t, err)
	require.Equal(t, grid.Range{Lo: 0, Hi: 4}, rows)
	require.Equal(t, grid.Range{Lo: 0, Hi: 6}, cols)

	_, _, err = f.BoundingBox(-120, -119, 30, 31)
	require.ErrorIs(t, err, errs.ErrOutOfBounds)

	day := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	bare, err := Create(memstore.New(), FileAttrs{Start: day, End: day})
	require.NoError(t, err)
	_, _, err = bare.BoundingBox(-100, -99, 30, 31)
	require.ErrorIs(t, err, errs.ErrAttributeNotFound)
}
