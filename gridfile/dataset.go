package gridfile

import (
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/arloliu/atmogrid/encoding"
	"github.com/arloliu/atmogrid/endian"
	"github.com/arloliu/atmogrid/errs"
	"github.com/arloliu/atmogrid/format"
	"github.com/arloliu/atmogrid/grid"
	"github.com/arloliu/atmogrid/provenance"
	"github.com/arloliu/atmogrid/store"
	"github.com/arloliu/atmogrid/timeindex"
	"go.uber.org/zap"
)

// Default chunk extents per axis kind.
const (
	DefaultTimeChunk  = 24
	DefaultSpaceChunk = 64
)

// DatasetSpec describes a data dataset to create.
type DatasetSpec struct {
	Name         string
	View         grid.View
	DType        format.DType
	MissingValue float64 // required to be finite for integer dtypes

	// Time axis; zero values inherit the file attributes.
	Frequency int
	Start     time.Time
	End       time.Time

	// Spatial extents; zero values inherit the file grid.
	Rows int
	Cols int

	ChunkShape  []int // in view order; nil picks per-axis defaults
	Compression format.CompressionType

	// Provenance, when non-zero, creates a companion provenance dataset.
	Provenance     provenance.RecordType
	ProvenanceName string // defaults to Name + "_provenance"
}

// Dataset is a data dataset of a grid file with its decoded descriptor and
// a cache of its time attributes.
type Dataset struct {
	file   *GridFile
	layout grid.Layout
	axis   timeindex.Axis
	hasAx  bool
	prov   provenance.Target
	hasPrv bool

	mu    sync.Mutex
	times map[string]timeCacheEntry
}

type timeCacheEntry struct {
	t  time.Time
	ok bool
}

// CreateDataset creates a data dataset, its descriptor attributes and, when
// requested, its provenance dataset.
//
// Parameters:
//   - spec: dataset description
//
// Returns:
//   - *Dataset: the created dataset
//   - error: ErrDatasetExists, ErrInvalidView, ErrInvalidDType, ErrInvalidConfig or a store error
func (f *GridFile) CreateDataset(spec DatasetSpec) (*Dataset, error) {
	layout, axis, hasAxis, err := f.resolveSpec(&spec)
	if err != nil {
		return nil, err
	}

	codec, err := encoding.NewValueCodec(spec.DType, endian.GetLittleEndianEngine())
	if err != nil {
		return nil, err
	}

	info := store.DatasetInfo{
		Name:        spec.Name,
		Shape:       layout.Shape,
		ChunkShape:  spec.ChunkShape,
		DType:       spec.DType,
		Fill:        codec.EncodeOne(spec.MissingValue),
		Compression: spec.Compression,
	}
	if info.ChunkShape == nil {
		info.ChunkShape = defaultChunks(spec.View, layout.Shape)
	}
	if err := f.store.CreateDataset(info); err != nil {
		return nil, err
	}

	attrs := [][2]string{
		{AttrView, spec.View.String()},
		{AttrDType, spec.DType.String()},
		{AttrMissingValue, formatFloat(spec.MissingValue)},
	}
	if hasAxis {
		attrs = append(attrs, axisAttrs(axis)...)
	}

	ds := &Dataset{file: f, layout: layout, axis: axis, hasAx: hasAxis, times: make(map[string]timeCacheEntry)}

	if spec.Provenance != 0 {
		if !hasAxis {
			return nil, fmt.Errorf("%w: provenance for %q requires a time axis", errs.ErrInvalidConfig, spec.Name)
		}
		ds.prov = provenance.Target{
			Name:         spec.ProvenanceName,
			Type:         spec.Provenance,
			Axis:         axis,
			DataRank:     len(spec.View) - 1,
			MissingValue: spec.MissingValue,
		}
		ds.hasPrv = true
		if err := f.createProvenance(ds.prov, spec.Compression); err != nil {
			return nil, err
		}
		attrs = append(attrs, [2]string{AttrProvenance, ds.prov.Name})
	}

	if err := setAttrs(f.store, spec.Name, attrs); err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.datasets[spec.Name] = ds
	f.mu.Unlock()

	f.logger.Debug("Created dataset",
		zap.String("dataset", spec.Name),
		zap.Stringer("view", spec.View),
		zap.Ints("shape", layout.Shape),
		zap.Stringer("dtype", spec.DType))

	return ds, nil
}

func (f *GridFile) resolveSpec(spec *DatasetSpec) (grid.Layout, timeindex.Axis, bool, error) {
	if err := spec.View.Validate(); err != nil {
		return grid.Layout{}, timeindex.Axis{}, false, fmt.Errorf("dataset %q: %w", spec.Name, err)
	}
	if !spec.DType.IsNumeric() {
		return grid.Layout{}, timeindex.Axis{}, false, fmt.Errorf("%w: dataset %q dtype %s", errs.ErrInvalidDType, spec.Name, spec.DType)
	}
	if !spec.DType.IsFloat() && (math.IsNaN(spec.MissingValue) || math.IsInf(spec.MissingValue, 0)) {
		return grid.Layout{}, timeindex.Axis{}, false, fmt.Errorf("%w: dataset %q: %s needs a finite missing value",
			errs.ErrInvalidConfig, spec.Name, spec.DType)
	}
	if spec.ProvenanceName == "" {
		spec.ProvenanceName = spec.Name + "_provenance"
	}

	var (
		axis    timeindex.Axis
		hasAxis = spec.View.Has(grid.Time)
	)
	if hasAxis {
		start, end, freq := spec.Start, spec.End, spec.Frequency
		if start.IsZero() {
			start = f.attrs.Start
		}
		if end.IsZero() {
			end = f.attrs.End
		}
		if freq == 0 {
			freq = f.attrs.Frequency
		}

		var err error
		if axis, err = timeindex.NewAxis(start, end, f.attrs.Location, freq); err != nil {
			return grid.Layout{}, timeindex.Axis{}, false, fmt.Errorf("dataset %q: %w", spec.Name, err)
		}
	}

	rows, cols := spec.Rows, spec.Cols
	if g := f.attrs.Grid; g != nil {
		if rows == 0 {
			rows = g.Rows
		}
		if cols == 0 {
			cols = g.Cols
		}
	}

	shape := make([]int, len(spec.View))
	for i, k := range spec.View {
		switch k {
		case grid.Time:
			shape[i] = axis.Len()
		case grid.Lat:
			shape[i] = rows
		case grid.Lon:
			shape[i] = cols
		}
	}

	layout := grid.Layout{
		Name:         spec.Name,
		View:         spec.View,
		Shape:        shape,
		DType:        spec.DType,
		MissingValue: spec.MissingValue,
	}
	if err := layout.Validate(); err != nil {
		return grid.Layout{}, timeindex.Axis{}, false, err
	}

	return layout, axis, hasAxis, nil
}

func (f *GridFile) createProvenance(target provenance.Target, compression format.CompressionType) error {
	info, err := target.DatasetInfo(compression)
	if err != nil {
		return err
	}
	if err := f.store.CreateDataset(info); err != nil {
		return err
	}

	attrs := append(axisAttrs(target.Axis),
		[2]string{AttrRecordType, target.Type.String()},
		[2]string{AttrDataRank, strconv.Itoa(target.DataRank)},
		[2]string{AttrMissingValue, formatFloat(target.MissingValue)},
	)

	return setAttrs(f.store, target.Name, attrs)
}

func loadDataset(f *GridFile, name string) (*Dataset, error) {
	info, err := f.store.Dataset(name)
	if err != nil {
		return nil, err
	}
	attrs, err := f.store.Attrs(name)
	if err != nil {
		return nil, err
	}
	if _, ok := attrs[AttrRecordType]; ok {
		return nil, fmt.Errorf("%w: %q is a provenance dataset", errs.ErrInvalidView, name)
	}

	p := attrParser{attrs: attrs}
	viewStr, _ := p.required(AttrView)
	dtypeStr, _ := p.required(AttrDType)
	missing := p.float(AttrMissingValue)
	if p.err != nil {
		return nil, fmt.Errorf("dataset %q: %w", name, p.err)
	}

	view, err := grid.ParseView(viewStr)
	if err != nil {
		return nil, fmt.Errorf("dataset %q: %w", name, err)
	}
	dtype, err := format.ParseDType(dtypeStr)
	if err != nil {
		return nil, fmt.Errorf("dataset %q: %w", name, err)
	}

	ds := &Dataset{
		file: f,
		layout: grid.Layout{
			Name:         name,
			View:         view,
			Shape:        info.Shape,
			DType:        dtype,
			MissingValue: missing,
		},
		times: make(map[string]timeCacheEntry),
	}
	if err := ds.layout.Validate(); err != nil {
		return nil, err
	}

	if view.Has(grid.Time) {
		if ds.axis, err = parseAxis(&p); err != nil {
			return nil, fmt.Errorf("dataset %q: %w", name, err)
		}
		ds.hasAx = true
		if n := ds.layout.Extent(grid.Time); n != ds.axis.Len() {
			return nil, fmt.Errorf("%w: dataset %q has %d time steps, axis has %d",
				errs.ErrDimensionMismatch, name, n, ds.axis.Len())
		}
	}

	if provName, ok := attrs[AttrProvenance]; ok {
		if ds.prov, err = loadProvenance(f.store, provName); err != nil {
			return nil, fmt.Errorf("dataset %q: %w", name, err)
		}
		ds.hasPrv = true
	}

	return ds, nil
}

func loadProvenance(st store.Store, name string) (provenance.Target, error) {
	attrs, err := st.Attrs(name)
	if err != nil {
		return provenance.Target{}, err
	}

	p := attrParser{attrs: attrs}
	typeStr, _ := p.required(AttrRecordType)
	rank := p.int(AttrDataRank, -1)
	missing := p.float(AttrMissingValue)
	if p.err != nil {
		return provenance.Target{}, p.err
	}
	axis, err := parseAxis(&p)
	if err != nil {
		return provenance.Target{}, err
	}
	rt, err := provenance.ParseRecordType(typeStr)
	if err != nil {
		return provenance.Target{}, err
	}

	target := provenance.Target{Name: name, Type: rt, Axis: axis, DataRank: rank, MissingValue: missing}
	if _, err := target.Schema(); err != nil {
		return provenance.Target{}, err
	}

	return target, nil
}

func axisAttrs(a timeindex.Axis) [][2]string {
	return [][2]string{
		{AttrTimezone, a.Location.String()},
		{AttrStartTime, timeindex.Format(a.Start)},
		{AttrEndTime, timeindex.Format(a.End)},
		{AttrFrequency, strconv.Itoa(a.Frequency)},
	}
}

func parseAxis(p *attrParser) (timeindex.Axis, error) {
	loc := p.location(AttrTimezone)
	start := p.time(AttrStartTime, loc)
	end := p.time(AttrEndTime, loc)
	freq := p.int(AttrFrequency, 1)
	if p.err != nil {
		return timeindex.Axis{}, p.err
	}

	return timeindex.NewAxis(start, end, loc, freq)
}

func setAttrs(st store.Store, object string, attrs [][2]string) error {
	for _, kv := range attrs {
		if err := st.SetAttr(object, kv[0], kv[1]); err != nil {
			return err
		}
	}

	return nil
}

func defaultChunks(view grid.View, shape []int) []int {
	chunks := make([]int, len(view))
	for i, k := range view {
		n := DefaultSpaceChunk
		if k == grid.Time {
			n = DefaultTimeChunk
		}
		chunks[i] = min(n, shape[i])
	}

	return chunks
}

// Name returns the dataset name.
func (d *Dataset) Name() string { return d.layout.Name }

// View returns the axis order of the dataset.
func (d *Dataset) View() grid.View { return d.layout.View }

// Shape returns the extent of each view axis.
func (d *Dataset) Shape() []int { return append([]int(nil), d.layout.Shape...) }

// Layout returns the engine layout of the dataset.
func (d *Dataset) Layout() grid.Layout { return d.layout }

// Axis returns the time axis, reporting whether the view has one.
func (d *Dataset) Axis() (timeindex.Axis, bool) { return d.axis, d.hasAx }

// Provenance returns the companion provenance target, reporting whether one exists.
func (d *Dataset) Provenance() (provenance.Target, bool) { return d.prov, d.hasPrv }

// Frequency returns the time step in hours, or 0 when the dataset has no time axis.
func (d *Dataset) Frequency() int {
	if !d.hasAx {
		return 0
	}

	return d.axis.Frequency
}

// TimeAttr returns a time attribute of the dataset, reporting whether it is set.
// Values are cached after the first lookup.
func (d *Dataset) TimeAttr(key string) (time.Time, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.times[key]; ok {
		return e.t, e.ok, nil
	}

	s, ok, err := d.file.store.Attr(d.layout.Name, key)
	if err != nil {
		return time.Time{}, false, err
	}

	var t time.Time
	if ok {
		if t, err = timeindex.Parse(s, d.location()); err != nil {
			return time.Time{}, false, fmt.Errorf("dataset %q attribute %s: %w", d.layout.Name, key, err)
		}
	}
	d.times[key] = timeCacheEntry{t: t, ok: ok}

	return t, ok, nil
}

// SetTimeAttr persists a time attribute and updates the cache.
//
// The cache holds the value a fresh handle parses back, so the earlier of two
// instants sharing a wall-clock hour is cached as the later one.
func (d *Dataset) SetTimeAttr(key string, t time.Time) error {
	s := timeindex.Format(t.In(d.location()))
	t, err := timeindex.Parse(s, d.location())
	if err != nil {
		return err
	}
	if err := d.file.store.SetAttr(d.layout.Name, key, s); err != nil {
		return err
	}

	d.mu.Lock()
	d.times[key] = timeCacheEntry{t: t, ok: true}
	d.mu.Unlock()

	return nil
}

// DeleteTimeAttr removes a time attribute and updates the cache.
func (d *Dataset) DeleteTimeAttr(key string) error {
	if err := d.file.store.DeleteAttr(d.layout.Name, key); err != nil {
		return err
	}

	d.mu.Lock()
	d.times[key] = timeCacheEntry{}
	d.mu.Unlock()

	return nil
}

// ReloadTimeAttrs drops the time attribute cache.
func (d *Dataset) ReloadTimeAttrs() {
	d.mu.Lock()
	clear(d.times)
	d.mu.Unlock()
}

// Updated returns the last write stamp of the dataset.
func (d *Dataset) Updated() (time.Time, bool, error) {
	s, ok, err := d.file.store.Attr(d.layout.Name, AttrUpdated)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	t, err := time.ParseInLocation(timeindex.StampLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: %s=%q", errs.ErrInvalidTimestamp, AttrUpdated, s)
	}

	return t, true, nil
}

// Read reads a selection through the file engine.
func (d *Dataset) Read(sel grid.Selection) (grid.Array, error) {
	return d.file.engine.Read(d.layout, sel)
}

// Write writes data at a selection through the file engine.
func (d *Dataset) Write(sel grid.Selection, data grid.Array) (grid.Region, error) {
	return d.file.engine.Write(d.layout, sel, data)
}

// TimeRange resolves two positions to a half-open time range of the dataset.
func (d *Dataset) TimeRange(start, end timeindex.Position) (grid.Range, error) {
	if !d.hasAx {
		return grid.Range{}, fmt.Errorf("%w: dataset %q has no time axis", errs.ErrInvalidView, d.layout.Name)
	}
	lo, hi, err := d.axis.IndexesForRange(start, end)
	if err != nil {
		return grid.Range{}, err
	}

	return grid.Range{Lo: lo, Hi: hi}, nil
}

// Records reads the provenance records of [start, end].
func (d *Dataset) Records(start, end timeindex.Position) ([]provenance.Record, error) {
	if !d.hasPrv {
		return nil, fmt.Errorf("%w: %q", errs.ErrNoProvenance, d.layout.Name)
	}

	return d.file.appender.ReadRecords(d.prov, start, end)
}

func (d *Dataset) location() *time.Location {
	if d.hasAx && d.axis.Location != nil {
		return d.axis.Location
	}

	return d.file.attrs.Location
}
