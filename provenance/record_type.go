package provenance

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/arloliu/atmogrid/errs"
	"github.com/arloliu/atmogrid/grid"
	"github.com/arloliu/atmogrid/timeindex"
)

// Field widths shared by the record types.
const (
	TimeWidth      = 14
	DateWidth      = 10
	ProcessedWidth = 20
	SourceWidth    = 12
)

const dateLayout = "2006-01-02"

// RecordType selects the schema and generator of a provenance dataset.
type RecordType uint8

const (
	// TimeStats summarizes one sample array per hourly step.
	TimeStats RecordType = iota + 1
	// DateStats summarizes one sample array per daily step.
	DateStats
	// TimeAccumStats summarizes an observation array and an accumulation array per step.
	TimeAccumStats
)

var (
	timeStatsSchema = NewSchema(
		String(FieldTime, TimeWidth),
		Float32(FieldMin), Float32(FieldMax), Float32(FieldMean), Float32(FieldMedian),
		String(FieldProcessed, ProcessedWidth),
		String(FieldSource, SourceWidth),
	)
	dateStatsSchema = NewSchema(
		String(FieldDate, DateWidth),
		Float32(FieldMin), Float32(FieldMax), Float32(FieldMean), Float32(FieldMedian),
		String(FieldProcessed, ProcessedWidth),
		String(FieldSource, SourceWidth),
	)
	timeAccumStatsSchema = NewSchema(
		String(FieldTime, TimeWidth),
		Float32(FieldObsMin), Float32(FieldObsMax), Float32(FieldObsMean),
		Float32(FieldAccumMin), Float32(FieldAccumMax), Float32(FieldAccumMean),
		String(FieldProcessed, ProcessedWidth),
		String(FieldSource, SourceWidth),
	)
)

// ParseRecordType parses a record type name.
func ParseRecordType(s string) (RecordType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "timestats":
		return TimeStats, nil
	case "datestats":
		return DateStats, nil
	case "timeaccumstats":
		return TimeAccumStats, nil
	default:
		return 0, fmt.Errorf("%w: %q", errs.ErrUnknownRecordType, s)
	}
}

func (t RecordType) String() string {
	switch t {
	case TimeStats:
		return "timestats"
	case DateStats:
		return "datestats"
	case TimeAccumStats:
		return "timeaccumstats"
	default:
		return "unknown"
	}
}

// Schema returns the field layout of t.
func (t RecordType) Schema() (Schema, error) {
	switch t {
	case TimeStats:
		return timeStatsSchema, nil
	case DateStats:
		return dateStatsSchema, nil
	case TimeAccumStats:
		return timeAccumStatsSchema, nil
	default:
		return Schema{}, fmt.Errorf("%w: %d", errs.ErrUnknownRecordType, t)
	}
}

// Inputs returns how many sample arrays the generator consumes per step.
func (t RecordType) Inputs() int {
	if t == TimeAccumStats {
		return 2
	}

	return 1
}

// FormatTime renders a step timestamp the way t stores it.
func (t RecordType) FormatTime(ts time.Time) string {
	if t == DateStats {
		return ts.Format(dateLayout)
	}

	return timeindex.Format(ts)
}

// Empty returns the sentinel record: blank strings and NaN statistics.
func (t RecordType) Empty() Record {
	nan := math.NaN()

	return Record{
		Min: nan, Max: nan, Mean: nan, Median: nan,
		AccumMin: nan, AccumMax: nan, AccumMean: nan,
	}
}

// Generate builds the record of one step from its samples.
//
// Parameters:
//   - ts: step timestamp in the dataset timezone
//   - now: processing time
//   - source: tier tag, at most SourceWidth bytes
//   - missing: sample value treated as absent in addition to NaN
//   - samples: Inputs() arrays for this step
//
// Returns:
//   - Record: generated record
//   - error: ErrUnknownRecordType or ErrDimensionMismatch
func (t RecordType) Generate(ts, now time.Time, source string, missing float64, samples ...grid.Array) (Record, error) {
	if _, err := t.Schema(); err != nil {
		return Record{}, err
	}
	if len(samples) != t.Inputs() {
		return Record{}, fmt.Errorf("%w: %s takes %d sample arrays, got %d", errs.ErrDimensionMismatch, t, t.Inputs(), len(samples))
	}

	r := t.Empty()
	r.Time = t.FormatTime(ts)
	r.Processed = now.UTC().Format(timeindex.StampLayout)
	r.Source = source

	switch t {
	case TimeStats, DateStats:
		st := Summarize(samples[0].Data, missing)
		r.Min, r.Max, r.Mean, r.Median = st.Min, st.Max, st.Mean, st.Median
	case TimeAccumStats:
		obs := Summarize(samples[0].Data, missing)
		acc := Summarize(samples[1].Data, missing)
		r.Min, r.Max, r.Mean = obs.Min, obs.Max, obs.Mean
		r.AccumMin, r.AccumMax, r.AccumMean = acc.Min, acc.Max, acc.Mean
	}

	return r, nil
}
