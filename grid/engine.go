package grid

import (
	"fmt"
	"math"
	"slices"

	"github.com/arloliu/atmogrid/encoding"
	"github.com/arloliu/atmogrid/endian"
	"github.com/arloliu/atmogrid/errs"
	"github.com/arloliu/atmogrid/internal/options"
	"github.com/arloliu/atmogrid/store"
	"github.com/arloliu/atmogrid/timeindex"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Engine performs viewed sub-array reads and writes against a store.
//
// Engine holds no per-dataset state; it is safe for concurrent reads but
// writes to one dataset must be serialized by the caller.
type Engine struct {
	store  store.Store
	clock  clockwork.Clock
	logger *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption = options.Option[*Engine]

// WithClock sets the clock used for the updated stamp.
func WithClock(clock clockwork.Clock) EngineOption {
	return options.NoError(func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	})
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) EngineOption {
	return options.NoError(func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	})
}

// NewEngine creates an engine over st.
func NewEngine(st store.Store, opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		store:  st,
		clock:  clockwork.NewRealClock(),
		logger: zap.NewNop(),
	}
	if err := options.Apply(e, opts...); err != nil {
		return nil, err
	}

	return e, nil
}

// Clock returns the engine clock.
func (e *Engine) Clock() clockwork.Clock {
	return e.clock
}

// Write stores data into the dataset described by layout.
//
// data is laid out in the dataset's view order. Its rank equals the view rank,
// or is one less when the view has a time axis and sel selects a single time
// step, in which case the time axis is omitted from data.
//
// Each axis range starts at sel's lower bound (0 when unselected) and spans
// the data extent. A selected range must span exactly the data extent. Ranges
// running past the end of an axis are clamped and the data truncated to fit.
//
// Parameters:
//   - layout: target dataset
//   - sel: per-axis ranges
//   - data: values to write; NaN is stored as layout.MissingValue for integer dtypes
//
// Returns:
//   - Region: the clamped ranges written, in view order
//   - error: ErrDimensionMismatch (including empty data), ErrInvalidRange or a store error
func (e *Engine) Write(layout Layout, sel Selection, data Array) (Region, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	if err := data.Validate(); err != nil {
		return nil, err
	}

	data, err := expandRank(layout, sel, data)
	if err != nil {
		return nil, err
	}
	if data.Len() == 0 {
		return nil, fmt.Errorf("%w: dataset %q: %v data has no elements", errs.ErrDimensionMismatch, layout.Name, data.Shape)
	}

	region := make(Region, len(layout.View))
	truncated := false
	for i, k := range layout.View {
		extent := data.Shape[i]
		r, ok := sel[k]
		if !ok {
			r = Span(0, extent)
		}
		if r.Len() != extent {
			return nil, fmt.Errorf("%w: dataset %q %s range %s for data extent %d",
				errs.ErrDimensionMismatch, layout.Name, k, r, extent)
		}
		if r.Lo < 0 || r.Lo >= layout.Shape[i] {
			return nil, fmt.Errorf("%w: dataset %q %s range %s starts outside [0,%d)",
				errs.ErrInvalidRange, layout.Name, k, r, layout.Shape[i])
		}
		if r.Hi > layout.Shape[i] {
			r.Hi = layout.Shape[i]
			truncated = true
		}
		region[i] = r
	}

	if truncated {
		local := make([]Range, len(region))
		for i, r := range region {
			local[i] = Span(0, r.Len())
		}
		if data, err = data.Sub(local); err != nil {
			return nil, err
		}
		e.logger.Debug("Clamped write at axis end",
			zap.String("dataset", layout.Name),
			zap.Stringer("view", layout.View),
			zap.Ints("start", region.Start()),
			zap.Ints("count", region.Count()))
	}

	codec, err := encoding.NewValueCodec(layout.DType, endian.GetLittleEndianEngine())
	if err != nil {
		return nil, err
	}

	values := data.Data
	if !layout.DType.IsFloat() && slices.ContainsFunc(values, math.IsNaN) {
		values = slices.Clone(values)
		for i, v := range values {
			if math.IsNaN(v) {
				values[i] = layout.MissingValue
			}
		}
	}

	if err := e.store.WriteSubarray(layout.Name, region.Start(), region.Count(), codec.Encode(nil, values)); err != nil {
		return nil, err
	}
	if err := e.Touch(layout.Name); err != nil {
		return nil, err
	}

	return region, nil
}

// Read returns the sub-array of the dataset selected by sel.
//
// Unselected axes read their full extent. Ranges are clamped at the end of an
// axis; a range starting outside the axis or empty after clamping is an error.
// Axes whose range covers a single index are dropped from the result.
func (e *Engine) Read(layout Layout, sel Selection) (Array, error) {
	arr, region, err := e.read(layout, sel)
	if err != nil {
		return Array{}, err
	}

	shape := make([]int, 0, len(region))
	for _, r := range region {
		if r.Len() != 1 {
			shape = append(shape, r.Len())
		}
	}
	arr.Shape = shape

	return arr, nil
}

// ReadRegion is like Read but keeps every view axis and reports the clamped region.
func (e *Engine) ReadRegion(layout Layout, sel Selection) (Array, Region, error) {
	return e.read(layout, sel)
}

// Touch stamps the updated attribute of a dataset with the current UTC time.
func (e *Engine) Touch(name string) error {
	return e.store.SetAttr(name, AttrUpdated, e.clock.Now().UTC().Format(timeindex.StampLayout))
}

func (e *Engine) read(layout Layout, sel Selection) (Array, Region, error) {
	if err := layout.Validate(); err != nil {
		return Array{}, nil, err
	}
	for k := range sel {
		if !layout.View.Has(k) {
			return Array{}, nil, fmt.Errorf("%w: dataset %q view %s has no %s axis", errs.ErrDimensionMismatch, layout.Name, layout.View, k)
		}
	}

	region := make(Region, len(layout.View))
	for i, k := range layout.View {
		r, ok := sel[k]
		if !ok {
			r = Span(0, layout.Shape[i])
		}
		if r.Lo < 0 || r.Lo >= layout.Shape[i] || r.Hi <= r.Lo {
			return Array{}, nil, fmt.Errorf("%w: dataset %q %s range %s within [0,%d)",
				errs.ErrInvalidRange, layout.Name, k, r, layout.Shape[i])
		}
		r.Hi = min(r.Hi, layout.Shape[i])
		region[i] = r
	}

	raw, err := e.store.ReadSubarray(layout.Name, region.Start(), region.Count())
	if err != nil {
		return Array{}, nil, err
	}

	codec, err := encoding.NewValueCodec(layout.DType, endian.GetLittleEndianEngine())
	if err != nil {
		return Array{}, nil, err
	}
	arr := NewArray(region.Count()...)
	if err := codec.Decode(raw, arr.Data); err != nil {
		return Array{}, nil, err
	}

	return arr, region, nil
}

// expandRank reinserts an omitted single time step so data matches the view rank.
func expandRank(layout Layout, sel Selection, data Array) (Array, error) {
	for k := range sel {
		if !layout.View.Has(k) {
			return Array{}, fmt.Errorf("%w: dataset %q view %s has no %s axis", errs.ErrDimensionMismatch, layout.Name, layout.View, k)
		}
	}

	switch data.Rank() {
	case len(layout.View):
		return data, nil
	case len(layout.View) - 1:
		ti := layout.View.Index(Time)
		r, ok := sel[Time]
		if ti < 0 || !ok || r.Len() != 1 {
			return Array{}, fmt.Errorf("%w: dataset %q view %s needs rank %d data, got %d (a single selected time step may omit time)",
				errs.ErrDimensionMismatch, layout.Name, layout.View, len(layout.View), data.Rank())
		}
		shape := slices.Insert(slices.Clone(data.Shape), ti, 1)

		return data.Reshape(shape...)
	default:
		return Array{}, fmt.Errorf("%w: dataset %q view %s needs rank %d data, got %d",
			errs.ErrDimensionMismatch, layout.Name, layout.View, len(layout.View), data.Rank())
	}
}
