// Package gridfile is the aggregate over a store.Store: file attributes, the
// descriptors of its datasets, cached time attributes and the engines that
// read and write them.
//
// A grid file is created once with its timezone, time span, frequency and
// optional lat/lon grid. Datasets are added with CreateDataset and never
// removed. Every descriptor is persisted as string attributes, so Open can
// rebuild the same GridFile from any store that Create populated.
package gridfile

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/arloliu/atmogrid/errs"
	"github.com/arloliu/atmogrid/geo"
	"github.com/arloliu/atmogrid/grid"
	"github.com/arloliu/atmogrid/internal/options"
	"github.com/arloliu/atmogrid/provenance"
	"github.com/arloliu/atmogrid/store"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// GridFile is an open grid file.
type GridFile struct {
	store    store.Store
	attrs    FileAttrs
	clock    clockwork.Clock
	logger   *zap.Logger
	engine   *grid.Engine
	appender *provenance.Appender

	mu       sync.Mutex
	datasets map[string]*Dataset
}

// Option configures a GridFile.
type Option = options.Option[*GridFile]

// WithClock sets the clock used for updated and processed stamps.
func WithClock(clock clockwork.Clock) Option {
	return options.NoError(func(f *GridFile) {
		if clock != nil {
			f.clock = clock
		}
	})
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return options.NoError(func(f *GridFile) {
		if logger != nil {
			f.logger = logger
		}
	})
}

// Create initializes a grid file on an empty store.
//
// Parameters:
//   - st: store to initialize; the GridFile takes ownership
//   - attrs: file attributes
//   - opts: WithClock, WithLogger
//
// Returns:
//   - *GridFile: open grid file
//   - error: ErrDatasetExists if st already holds a grid file, or a validation error
func Create(st store.Store, attrs FileAttrs, opts ...Option) (*GridFile, error) {
	if err := attrs.normalize(); err != nil {
		return nil, err
	}
	if _, ok, err := st.Attr(store.RootObject, AttrStartTime); err != nil {
		return nil, err
	} else if ok {
		return nil, fmt.Errorf("%w: store already holds a grid file", errs.ErrDatasetExists)
	}
	if err := writeFileAttrs(st, attrs); err != nil {
		return nil, err
	}

	return newGridFile(st, attrs, opts)
}

// Open opens an existing grid file.
func Open(st store.Store, opts ...Option) (*GridFile, error) {
	attrs, err := readFileAttrs(st)
	if err != nil {
		return nil, fmt.Errorf("open grid file: %w", err)
	}

	return newGridFile(st, attrs, opts)
}

func newGridFile(st store.Store, attrs FileAttrs, opts []Option) (*GridFile, error) {
	f := &GridFile{
		store:    st,
		attrs:    attrs,
		clock:    clockwork.NewRealClock(),
		logger:   zap.NewNop(),
		datasets: make(map[string]*Dataset),
	}
	if err := options.Apply(f, opts...); err != nil {
		return nil, err
	}

	var err error
	f.engine, err = grid.NewEngine(st, grid.WithClock(f.clock), grid.WithLogger(f.logger))
	if err != nil {
		return nil, err
	}
	f.appender, err = provenance.NewAppender(st, provenance.WithClock(f.clock), provenance.WithLogger(f.logger))
	if err != nil {
		return nil, err
	}

	return f, nil
}

// Attrs returns the file attributes.
func (f *GridFile) Attrs() FileAttrs {
	return f.attrs
}

// Store returns the underlying store.
func (f *GridFile) Store() store.Store {
	return f.store
}

// Engine returns the slice engine.
func (f *GridFile) Engine() *grid.Engine {
	return f.engine
}

// Appender returns the provenance appender.
func (f *GridFile) Appender() *provenance.Appender {
	return f.appender
}

// Clock returns the file clock.
func (f *GridFile) Clock() clockwork.Clock {
	return f.clock
}

// Logger returns the file logger.
func (f *GridFile) Logger() *zap.Logger {
	return f.logger
}

// Locator returns the lat/lon grid of the file, if it has one.
func (f *GridFile) Locator() (geo.Grid, bool) {
	if f.attrs.Grid == nil {
		return geo.Grid{}, false
	}

	return *f.attrs.Grid, true
}

// BoundingBox resolves a lon/lat bounding box to half-open row and column ranges.
func (f *GridFile) BoundingBox(minLon, maxLon, minLat, maxLat float64) (rows, cols grid.Range, err error) {
	g, ok := f.Locator()
	if !ok {
		return grid.Range{}, grid.Range{}, fmt.Errorf("%w: grid file has no lat/lon grid", errs.ErrAttributeNotFound)
	}

	box, err := g.BoundingBoxToIndices(minLon, maxLon, minLat, maxLat)
	if err != nil {
		return grid.Range{}, grid.Range{}, err
	}

	return grid.Range{Lo: box.MinRow, Hi: box.MaxRow + 1}, grid.Range{Lo: box.MinCol, Hi: box.MaxCol + 1}, nil
}

// DatasetNames lists the data datasets, excluding provenance and coordinate datasets.
func (f *GridFile) DatasetNames() ([]string, error) {
	names, err := f.store.Datasets()
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(names))
	for _, name := range names {
		attrs, err := f.store.Attrs(name)
		if err != nil {
			return nil, err
		}
		if _, ok := attrs[AttrRecordType]; ok {
			continue
		}
		if name == CoordLat || name == CoordLon {
			continue
		}
		if _, ok := attrs[AttrView]; ok {
			out = append(out, name)
		}
	}

	return out, nil
}

// Dataset returns the named data dataset, loading its descriptor on first use.
func (f *GridFile) Dataset(name string) (*Dataset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if ds, ok := f.datasets[name]; ok {
		return ds, nil
	}

	ds, err := loadDataset(f, name)
	if err != nil {
		return nil, err
	}
	f.datasets[name] = ds

	return ds, nil
}

// Close closes the underlying store.
func (f *GridFile) Close() error {
	f.mu.Lock()
	f.datasets = make(map[string]*Dataset)
	f.mu.Unlock()

	return f.store.Close()
}

func (f *GridFile) String() string {
	f.mu.Lock()
	names := slices.Sorted(maps.Keys(f.datasets))
	f.mu.Unlock()

	return fmt.Sprintf("GridFile{%s..%s every %dh, open datasets [%s]}",
		f.attrs.Start.Format("2006-01-02:15"), f.attrs.End.Format("2006-01-02:15"), f.attrs.Frequency, strings.Join(names, " "))
}
