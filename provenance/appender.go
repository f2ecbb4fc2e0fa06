package provenance

import (
	"fmt"
	"time"

	"github.com/arloliu/atmogrid/errs"
	"github.com/arloliu/atmogrid/format"
	"github.com/arloliu/atmogrid/grid"
	"github.com/arloliu/atmogrid/internal/options"
	"github.com/arloliu/atmogrid/store"
	"github.com/arloliu/atmogrid/timeindex"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Target describes a provenance dataset and the data it summarizes.
type Target struct {
	Name         string         // provenance dataset name
	Type         RecordType     // record layout
	Axis         timeindex.Axis // time axis shared with the data dataset
	DataRank     int            // rank of one step of the data, without time
	MissingValue float64        // data missing value
}

// Schema validates the target and returns its record schema.
func (t Target) Schema() (Schema, error) {
	if t.Axis.Frequency <= 0 {
		return Schema{}, fmt.Errorf("%w: provenance %q has no time axis", errs.ErrInvalidConfig, t.Name)
	}
	if t.DataRank < 0 {
		return Schema{}, fmt.Errorf("%w: provenance %q data rank %d", errs.ErrInvalidConfig, t.Name, t.DataRank)
	}

	return t.Type.Schema()
}

// DatasetInfo returns the store descriptor of the provenance dataset: one
// record per step, pre-filled with the empty record.
func (t Target) DatasetInfo(compression format.CompressionType) (store.DatasetInfo, error) {
	schema, err := t.Schema()
	if err != nil {
		return store.DatasetInfo{}, err
	}
	fill, err := schema.Encode(nil, t.Type.Empty())
	if err != nil {
		return store.DatasetInfo{}, err
	}

	return store.DatasetInfo{
		Name:        t.Name,
		Shape:       []int{t.Axis.Len()},
		ChunkShape:  []int{min(t.Axis.Len(), 1024)},
		DType:       format.Record,
		ItemSize:    schema.Size(),
		Fill:        fill,
		Compression: compression,
	}, nil
}

// Appender writes provenance records.
type Appender struct {
	store  store.Store
	clock  clockwork.Clock
	logger *zap.Logger
}

// AppenderOption configures an Appender.
type AppenderOption = options.Option[*Appender]

// WithClock sets the clock used for processed and updated stamps.
func WithClock(clock clockwork.Clock) AppenderOption {
	return options.NoError(func(a *Appender) {
		if clock != nil {
			a.clock = clock
		}
	})
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) AppenderOption {
	return options.NoError(func(a *Appender) {
		if logger != nil {
			a.logger = logger
		}
	})
}

// NewAppender creates an appender over st.
func NewAppender(st store.Store, opts ...AppenderOption) (*Appender, error) {
	a := &Appender{store: st, clock: clockwork.NewRealClock(), logger: zap.NewNop()}
	if err := options.Apply(a, opts...); err != nil {
		return nil, err
	}

	return a, nil
}

// Append generates and stores one record per step of samples.
//
// Samples of rank DataRank form a single step; samples of rank DataRank+1
// carry one step per index of their leading axis. Steps are spaced by the
// axis frequency from start, which must land exactly on a step. Steps past
// the end of the axis are dropped.
//
// Parameters:
//   - target: provenance dataset
//   - start: time of the first step
//   - source: tier tag stored in every record
//   - samples: Type.Inputs() arrays of equal step count
//
// Returns:
//   - time.Time: first step written
//   - time.Time: last step written
//   - error: ErrUnknownRecordType, ErrDimensionMismatch, ErrRange, ErrAlignment or a store error
func (a *Appender) Append(target Target, start time.Time, source string, samples ...grid.Array) (time.Time, time.Time, error) {
	schema, err := target.Schema()
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if len(samples) != target.Type.Inputs() {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %s takes %d sample arrays, got %d",
			errs.ErrDimensionMismatch, target.Type, target.Type.Inputs(), len(samples))
	}

	steps, err := stepCount(target, samples)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	first, err := target.Axis.IndexForTime(start, true)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if n := target.Axis.Len() - first; steps > n {
		a.logger.Debug("Clamped provenance append at axis end",
			zap.String("dataset", target.Name),
			zap.Int("steps", steps),
			zap.Int("kept", n))
		steps = n
	}

	now := a.clock.Now()
	buf := make([]byte, 0, steps*schema.Size())
	step := make([]grid.Array, len(samples))
	for i := range steps {
		ts, err := target.Axis.TimeForIndex(first + i)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		for j, s := range samples {
			if s.Rank() == target.DataRank {
				step[j] = s
			} else {
				step[j] = s.Step(i)
			}
		}

		rec, err := target.Type.Generate(ts, now, source, target.MissingValue, step...)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		if buf, err = schema.Encode(buf, rec); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}

	if err := a.store.WriteSubarray(target.Name, []int{first}, []int{steps}, buf); err != nil {
		return time.Time{}, time.Time{}, err
	}
	if err := a.store.SetAttr(target.Name, grid.AttrUpdated, now.UTC().Format(timeindex.StampLayout)); err != nil {
		return time.Time{}, time.Time{}, err
	}

	startTime, _ := target.Axis.TimeForIndex(first)
	endTime, _ := target.Axis.TimeForIndex(first + steps - 1)

	return startTime, endTime, nil
}

// ReadRecords returns the records of the steps in [start, end].
//
// Positions follow timeindex.Axis.IndexesForRange; the end is clamped to the axis.
func (a *Appender) ReadRecords(target Target, start, end timeindex.Position) ([]Record, error) {
	schema, err := target.Schema()
	if err != nil {
		return nil, err
	}

	lo, hi, err := target.Axis.IndexesForRange(start, end)
	if err != nil {
		return nil, err
	}
	hi = min(hi, target.Axis.Len())
	if lo < 0 || lo >= target.Axis.Len() || hi <= lo {
		return nil, fmt.Errorf("%w: records [%d,%d) of %q", errs.ErrInvalidRange, lo, hi, target.Name)
	}

	raw, err := a.store.ReadSubarray(target.Name, []int{lo}, []int{hi - lo})
	if err != nil {
		return nil, err
	}

	records := make([]Record, hi-lo)
	size := schema.Size()
	for i := range records {
		if records[i], err = schema.Decode(raw[i*size : (i+1)*size]); err != nil {
			return nil, err
		}
	}

	return records, nil
}

func stepCount(target Target, samples []grid.Array) (int, error) {
	steps := -1
	for _, s := range samples {
		if err := s.Validate(); err != nil {
			return 0, err
		}

		n := 0
		switch s.Rank() {
		case target.DataRank:
			n = 1
		case target.DataRank + 1:
			n = s.Shape[0]
		default:
			return 0, fmt.Errorf("%w: %q takes samples of rank %d or %d, got %d",
				errs.ErrDimensionMismatch, target.Name, target.DataRank, target.DataRank+1, s.Rank())
		}
		if steps >= 0 && n != steps {
			return 0, fmt.Errorf("%w: sample arrays of %q disagree on step count (%d vs %d)",
				errs.ErrDimensionMismatch, target.Name, steps, n)
		}
		steps = n
	}
	if steps <= 0 {
		return 0, fmt.Errorf("%w: no steps to append to %q", errs.ErrDimensionMismatch, target.Name)
	}

	return steps, nil
}
