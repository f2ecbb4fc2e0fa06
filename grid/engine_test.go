package grid

import (
	"math"
	"testing"
	"time"

	"github.com/arloliu/atmogrid/encoding"
	"github.com/arloliu/atmogrid/endian"
	"github.com/arloliu/atmogrid/errs"
	"github.com/arloliu/atmogrid/format"
	"github.com/arloliu/atmogrid/store"
	"github.com/arloliu/atmogrid/store/memstore"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, time.March, 2, 10, 30, 0, 0, time.UTC)

func newTestEngine(t *testing.T, layout Layout) (*Engine, store.Store) {
	t.Helper()

	codec, err := encoding.NewValueCodec(layout.DType, endian.GetLittleEndianEngine())
	require.NoError(t, err)

	st := memstore.New()
	require.NoError(t, st.CreateDataset(store.DatasetInfo{
		Name:       layout.Name,
		Shape:      layout.Shape,
		ChunkShape: []int{4, 4, 4}[:len(layout.Shape)],
		DType:      layout.DType,
		Fill:       codec.EncodeOne(layout.MissingValue),
	}))

	e, err := NewEngine(st, WithClock(clockwork.NewFakeClockAt(testNow)))
	require.NoError(t, err)

	return e, st
}

func cube(view string) Layout {
	v := MustParseView(view)
	extents := map[AxisKind]int{Time: 10, Lat: 6, Lon: 7}
	shape := make([]int, len(v))
	for i, k := range v {
		shape[i] = extents[k]
	}

	return Layout{Name: "t2m", View: v, Shape: shape, DType: format.Float64, MissingValue: math.NaN()}
}

func TestEngine_SliceSymmetry(t *testing.T) {
	for _, view := range []string{"time,lat,lon", "lat,lon,time", "lon,time,lat", "time,lat", "lat,lon", "time"} {
		t.Run(view, func(t *testing.T) {
			layout := cube(view)
			e, _ := newTestEngine(t, layout)

			sel := Selection{}
			shape := make([]int, len(layout.View))
			for i, k := range layout.View {
				r := map[AxisKind]Range{Time: {2, 5}, Lat: {1, 4}, Lon: {3, 7}}[k]
				sel[k] = r
				shape[i] = r.Len()
			}
			data := sequence(shape...)

			region, err := e.Write(layout, sel, data)
			require.NoError(t, err)
			require.Equal(t, shape, region.Count())

			got, err := e.Read(layout, sel)
			require.NoError(t, err)
			require.True(t, data.Equal(got), "got %v", got)
		})
	}
}

func TestEngine_UnwrittenReadsMissing(t *testing.T) {
	layout := cube("time,lat,lon")
	e, _ := newTestEngine(t, layout)

	got, err := e.Read(layout, Selection{Time: Point(0)})
	require.NoError(t, err)
	require.Equal(t, []int{6, 7}, got.Shape)
	for _, v := range got.Data {
		require.True(t, math.IsNaN(v))
	}
}

func TestEngine_BoundaryClamp(t *testing.T) {
	layout := cube("time,lat,lon")

	clamped, _ := newTestEngine(t, layout)
	data := sequence(4, 6, 7)
	region, err := clamped.Write(layout, Selection{Time: {8, 12}}, data)
	require.NoError(t, err)
	require.Equal(t, Region{{8, 10}, {0, 6}, {0, 7}}, region)

	explicit, _ := newTestEngine(t, layout)
	head, err := data.Sub([]Range{{0, 2}, {0, 6}, {0, 7}})
	require.NoError(t, err)
	_, err = explicit.Write(layout, Selection{Time: {8, 10}}, head)
	require.NoError(t, err)

	a, err := clamped.Read(layout, Selection{})
	require.NoError(t, err)
	b, err := explicit.Read(layout, Selection{})
	require.NoError(t, err)
	require.True(t, a.Equal(b))

	// reads clamp the same way
	tail, err := clamped.Read(layout, Selection{Time: {8, 20}})
	require.NoError(t, err)
	require.Equal(t, []int{2, 6, 7}, tail.Shape)
	require.True(t, head.Equal(tail))
}

func TestEngine_SingleStepOmitsTime(t *testing.T) {
	layout := cube("lat,lon,time")
	e, _ := newTestEngine(t, layout)

	frame := sequence(6, 7)
	region, err := e.Write(layout, Selection{Time: Point(3)}, frame)
	require.NoError(t, err)
	require.Equal(t, Region{{0, 6}, {0, 7}, {3, 4}}, region)

	got, err := e.Read(layout, Selection{Time: Point(3)})
	require.NoError(t, err)
	require.True(t, frame.Equal(got))

	pixel, err := e.Read(layout, Selection{Time: Point(3), Lat: Point(2), Lon: Point(5)})
	require.NoError(t, err)
	require.Zero(t, pixel.Rank())
	require.Equal(t, frame.At(2, 5), pixel.Data[0])

	series, err := e.Read(layout, Selection{Lat: Point(2), Lon: Point(5)})
	require.NoError(t, err)
	require.Equal(t, []int{10}, series.Shape)
	require.Equal(t, frame.At(2, 5), series.Data[3])
	require.True(t, math.IsNaN(series.Data[2]))

	full, region, err := e.ReadRegion(layout, Selection{Lat: Point(2)})
	require.NoError(t, err)
	require.Equal(t, []int{1, 7, 10}, full.Shape)
	require.Equal(t, Region{{2, 3}, {0, 7}, {0, 10}}, region)
}

func TestEngine_UpdatedStamp(t *testing.T) {
	layout := cube("time,lat,lon")
	e, st := newTestEngine(t, layout)

	_, ok, err := st.Attr("t2m", AttrUpdated)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = e.Write(layout, Selection{Time: Point(0)}, Full(1, 6, 7))
	require.NoError(t, err)

	stamp, ok, err := st.Attr("t2m", AttrUpdated)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "2024-03-02 10:30:00", stamp)
}

func TestEngine_IntegerDType(t *testing.T) {
	layout := Layout{Name: "snow", View: View{Lat, Lon}, Shape: []int{2, 3}, DType: format.Int16, MissingValue: -999}
	e, _ := newTestEngine(t, layout)

	data, err := FromSlice([]float64{1, math.NaN(), 3.6, -4, 5, 6}, 2, 3)
	require.NoError(t, err)
	_, err = e.Write(layout, nil, data)
	require.NoError(t, err)
	require.True(t, math.IsNaN(data.Data[1]), "input must not be mutated")

	got, err := e.Read(layout, nil)
	require.NoError(t, err)
	require.Equal(t, []float64{1, -999, 4, -4, 5, 6}, got.Data)
}

func TestEngine_Errors(t *testing.T) {
	layout := cube("time,lat,lon")
	e, _ := newTestEngine(t, layout)

	t.Run("rank too low without single time step", func(t *testing.T) {
		_, err := e.Write(layout, Selection{Time: {0, 2}}, sequence(6, 7))
		require.ErrorIs(t, err, errs.ErrDimensionMismatch)

		_, err = e.Write(layout, nil, sequence(6, 7))
		require.ErrorIs(t, err, errs.ErrDimensionMismatch)
	})

	t.Run("rank far off", func(t *testing.T) {
		_, err := e.Write(layout, nil, sequence(7))
		require.ErrorIs(t, err, errs.ErrDimensionMismatch)
	})

	t.Run("empty data", func(t *testing.T) {
		_, err := e.Write(layout, nil, NewArray(2, 0, 7))
		require.ErrorIs(t, err, errs.ErrDimensionMismatch)

		_, err = e.Write(layout, Selection{Time: Point(0)}, NewArray(6, 0))
		require.ErrorIs(t, err, errs.ErrDimensionMismatch)
	})

	t.Run("range does not match data", func(t *testing.T) {
		_, err := e.Write(layout, Selection{Lat: {0, 3}}, sequence(1, 6, 7))
		require.ErrorIs(t, err, errs.ErrDimensionMismatch)
	})

	t.Run("lower bound outside axis", func(t *testing.T) {
		_, err := e.Write(layout, Selection{Time: {10, 11}}, sequence(1, 6, 7))
		require.ErrorIs(t, err, errs.ErrInvalidRange)

		_, err = e.Read(layout, Selection{Lon: {-1, 2}})
		require.ErrorIs(t, err, errs.ErrInvalidRange)

		_, err = e.Read(layout, Selection{Lon: {3, 3}})
		require.ErrorIs(t, err, errs.ErrInvalidRange)
	})

	t.Run("axis not in view", func(t *testing.T) {
		flat := cube("lat,lon")
		fe, _ := newTestEngine(t, flat)

		_, err := fe.Read(flat, Selection{Time: Point(0)})
		require.ErrorIs(t, err, errs.ErrDimensionMismatch)
	})

	t.Run("bad layout", func(t *testing.T) {
		bad := layout
		bad.View = View{Time, Time, Lon}
		_, err := e.Read(bad, nil)
		require.ErrorIs(t, err, errs.ErrInvalidView)

		bad = layout
		bad.DType = format.Record
		_, err = e.Read(bad, nil)
		require.ErrorIs(t, err, errs.ErrInvalidDType)
	})

	t.Run("unknown dataset", func(t *testing.T) {
		other := layout
		other.Name = "missing"
		_, err := e.Read(other, nil)
		require.ErrorIs(t, err, errs.ErrDatasetNotFound)
	})
}
