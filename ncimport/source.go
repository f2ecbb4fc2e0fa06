package ncimport

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/arloliu/atmogrid/errs"
	"github.com/arloliu/atmogrid/grid"
	"github.com/arloliu/atmogrid/internal/options"
	"go.uber.org/zap"
)

// Default coordinate variable names.
const (
	DefaultTimeVar = "time"
	DefaultLatVar  = "latitude"
	DefaultLonVar  = "longitude"
)

// epoch1900 is the reference of ERA5 time values when no units attribute is present.
var epoch1900 = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)

// Source is an open NetCDF file with decoded coordinates.
type Source struct {
	group   Group
	logger  *zap.Logger
	timeVar string
	latVar  string
	lonVar  string

	times   []time.Time
	lats    []float64 // south to north
	lons    []float64
	flipLat bool
}

// Option configures a Source.
type Option = options.Option[*Source]

// WithCoordinateNames overrides the time, latitude and longitude variable names.
// Empty names keep the defaults.
func WithCoordinateNames(timeVar, latVar, lonVar string) Option {
	return options.NoError(func(s *Source) {
		if timeVar != "" {
			s.timeVar = timeVar
		}
		if latVar != "" {
			s.latVar = latVar
		}
		if lonVar != "" {
			s.lonVar = lonVar
		}
	})
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return options.NoError(func(s *Source) {
		if logger != nil {
			s.logger = logger
		}
	})
}

// Open opens a NetCDF file as a Source.
func Open(path string, opts ...Option) (*Source, error) {
	g, err := OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	s, err := New(g, opts...)
	if err != nil {
		g.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	return s, nil
}

// New decodes the coordinates of an open group. The Source takes ownership of g.
func New(g Group, opts ...Option) (*Source, error) {
	s := &Source{
		group:   g,
		logger:  zap.NewNop(),
		timeVar: DefaultTimeVar,
		latVar:  DefaultLatVar,
		lonVar:  DefaultLonVar,
	}
	if err := options.Apply(s, opts...); err != nil {
		return nil, err
	}

	var err error
	if s.times, err = s.readTimes(); err != nil {
		return nil, err
	}
	if s.lats, err = s.readCoord(s.latVar); err != nil {
		return nil, err
	}
	if s.lons, err = s.readCoord(s.lonVar); err != nil {
		return nil, err
	}

	if n := len(s.lats); n > 1 && s.lats[0] > s.lats[n-1] {
		slices.Reverse(s.lats)
		s.flipLat = true
	}

	s.logger.Debug("Opened NetCDF source",
		zap.Int("times", len(s.times)),
		zap.Int("lats", len(s.lats)),
		zap.Int("lons", len(s.lons)),
		zap.Bool("flip_lat", s.flipLat))

	return s, nil
}

// Len returns the number of time steps.
func (s *Source) Len() int { return len(s.times) }

// Times returns the UTC time of every step.
func (s *Source) Times() []time.Time { return slices.Clone(s.times) }

// Lats returns the row latitudes, south to north.
func (s *Source) Lats() []float64 { return slices.Clone(s.lats) }

// Lons returns the column longitudes.
func (s *Source) Lons() []float64 { return slices.Clone(s.lons) }

// Step returns the spacing of the time steps, failing with ErrAlignment when
// the steps are not evenly spaced.
func (s *Source) Step() (time.Duration, error) {
	if len(s.times) < 2 {
		return 0, nil
	}

	step := s.times[1].Sub(s.times[0])
	for i := 2; i < len(s.times); i++ {
		if d := s.times[i].Sub(s.times[i-1]); d != step {
			return 0, fmt.Errorf("%w: step %d is %s apart, want %s", errs.ErrAlignment, i, d, step)
		}
	}

	return step, nil
}

// Block reads steps [begin, end) of a variable as a (time,lat,lon) array of
// physical values with missing samples as NaN.
func (s *Source) Block(name string, begin, end int) (grid.Array, error) {
	if begin < 0 || end > len(s.times) || end <= begin {
		return grid.Array{}, fmt.Errorf("%w: steps [%d,%d) of %d", errs.ErrInvalidRange, begin, end, len(s.times))
	}

	v, err := s.group.Variable(name)
	if err != nil {
		return grid.Array{}, fmt.Errorf("variable %q: %w", name, err)
	}
	if dims := v.Dimensions(); len(dims) != 3 {
		return grid.Array{}, fmt.Errorf("%w: variable %q has dimensions %v, want (time, lat, lon)",
			errs.ErrDimensionMismatch, name, dims)
	}

	raw, err := v.GetSlice(int64(begin), int64(end))
	if err != nil {
		return grid.Array{}, fmt.Errorf("variable %q: %w", name, err)
	}
	data, shape, err := flatten3(raw)
	if err != nil {
		return grid.Array{}, fmt.Errorf("variable %q: %w", name, err)
	}
	if want := []int{end - begin, len(s.lats), len(s.lons)}; !slices.Equal(shape, want) {
		return grid.Array{}, fmt.Errorf("%w: variable %q block shape %v, want %v", errs.ErrDimensionMismatch, name, shape, want)
	}

	readPacking(v).apply(data)
	if s.flipLat {
		flipRows(data, shape)
	}

	return grid.Array{Shape: shape, Data: data}, nil
}

// Close closes the file.
func (s *Source) Close() {
	s.group.Close()
}

func (s *Source) readCoord(name string) ([]float64, error) {
	v, err := s.group.Variable(name)
	if err != nil {
		return nil, fmt.Errorf("coordinate %q: %w", name, err)
	}
	raw, err := v.Values()
	if err != nil {
		return nil, fmt.Errorf("coordinate %q: %w", name, err)
	}
	values, err := flatten1(raw)
	if err != nil {
		return nil, fmt.Errorf("coordinate %q: %w", name, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: coordinate %q is empty", errs.ErrDimensionMismatch, name)
	}

	return values, nil
}

func (s *Source) readTimes() ([]time.Time, error) {
	values, err := s.readCoord(s.timeVar)
	if err != nil {
		return nil, err
	}

	unit, ref := time.Hour, epoch1900
	v, _ := s.group.Variable(s.timeVar)
	if a, ok := v.Attr("units"); ok {
		units, _ := a.(string)
		if unit, ref, err = parseTimeUnits(units); err != nil {
			return nil, err
		}
	}

	times := make([]time.Time, len(values))
	for i, x := range values {
		times[i] = ref.Add(time.Duration(x * float64(unit)))
	}

	return times, nil
}

// parseTimeUnits parses CF time units such as "hours since 1900-01-01 00:00:00.0".
func parseTimeUnits(units string) (time.Duration, time.Time, error) {
	unitStr, refStr, ok := strings.Cut(strings.TrimSpace(units), " since ")
	if !ok {
		return 0, time.Time{}, fmt.Errorf("%w: time units %q", errs.ErrInvalidTimestamp, units)
	}

	var unit time.Duration
	switch strings.ToLower(strings.TrimSpace(unitStr)) {
	case "days", "day":
		unit = 24 * time.Hour
	case "hours", "hour":
		unit = time.Hour
	case "minutes", "minute":
		unit = time.Minute
	case "seconds", "second":
		unit = time.Second
	default:
		return 0, time.Time{}, fmt.Errorf("%w: time unit %q", errs.ErrInvalidTimestamp, unitStr)
	}

	refStr = strings.TrimSuffix(strings.TrimSpace(refStr), " UTC")
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04", "2006-01-02"} {
		if ref, err := time.ParseInLocation(layout, refStr, time.UTC); err == nil {
			return unit, ref.UTC(), nil
		}
	}

	return 0, time.Time{}, fmt.Errorf("%w: time reference %q", errs.ErrInvalidTimestamp, refStr)
}

// flipRows reverses the row order of every (lat, lon) plane in place.
func flipRows(data []float64, shape []int) {
	rows, cols := shape[1], shape[2]
	plane := rows * cols
	for t := range shape[0] {
		p := data[t*plane : (t+1)*plane]
		for i, j := 0, rows-1; i < j; i, j = i+1, j-1 {
			a, b := p[i*cols:(i+1)*cols], p[j*cols:(j+1)*cols]
			for k := range cols {
				a[k], b[k] = b[k], a[k]
			}
		}
	}
}
