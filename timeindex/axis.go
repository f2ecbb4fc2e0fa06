package timeindex

import (
	"fmt"
	"time"

	"github.com/arloliu/atmogrid/errs"
)

// Axis is the time axis of a dataset. Start and End are sampled steps.
type Axis struct {
	Start     time.Time
	End       time.Time
	Location  *time.Location
	Frequency int // hours between steps
}

// NewAxis creates an axis from start to end inclusive, both converted to loc.
//
// Parameters:
//   - start, end: first and last sampled step
//   - loc: canonical timezone (nil means UTC)
//   - frequency: hours between steps (must be positive)
//
// Returns:
//   - Axis: validated axis
//   - error: ErrRange if end precedes start, ErrAlignment if the span is not whole hours,
//     ErrInvalidTimestamp if start or end is not canonical in loc
func NewAxis(start, end time.Time, loc *time.Location, frequency int) (Axis, error) {
	if loc == nil {
		loc = time.UTC
	}
	if frequency <= 0 {
		return Axis{}, fmt.Errorf("%w: frequency %d", errs.ErrInvalidConfig, frequency)
	}

	a := Axis{Start: start.In(loc), End: end.In(loc), Location: loc, Frequency: frequency}
	if a.End.Before(a.Start) {
		return Axis{}, fmt.Errorf("%w: end %s before start %s", errs.ErrRange, Format(a.End), Format(a.Start))
	}
	if a.End.Sub(a.Start)%time.Hour != 0 {
		return Axis{}, fmt.Errorf("%w: span %s is not whole hours", errs.ErrAlignment, a.End.Sub(a.Start))
	}
	for _, t := range [2]time.Time{a.Start, a.End} {
		if !IsCanonical(t, loc) {
			return Axis{}, fmt.Errorf("%w: %s (UTC %s) does not round-trip as %s",
				errs.ErrInvalidTimestamp, Format(t), t.UTC().Format(time.RFC3339), loc)
		}
	}

	return a, nil
}

// Step returns the duration between consecutive steps.
func (a Axis) Step() time.Duration {
	return time.Duration(a.Frequency) * time.Hour
}

// Len returns the number of steps.
func (a Axis) Len() int {
	return int(a.End.Sub(a.Start)/time.Hour)/a.Frequency + 1
}

// Last returns the time of the last step, which precedes End when the span is
// not a multiple of Frequency.
func (a Axis) Last() time.Time {
	return a.Start.Add(time.Duration(a.Len()-1) * a.Step())
}

// Contains reports whether t lies within [Start, End].
func (a Axis) Contains(t time.Time) bool {
	return !t.Before(a.Start) && !t.After(a.End)
}

// IndexForTime returns the step index of t.
//
// t is converted to the axis location and must lie within [Start, End]. When
// exact is set t must land on a step; otherwise it rounds to the nearest step,
// halves rounding down.
//
// Returns:
//   - int: step index
//   - error: ErrRange outside the axis, ErrAlignment for an inexact exact lookup
func (a Axis) IndexForTime(t time.Time, exact bool) (int, error) {
	t = t.In(a.loc())
	if !a.Contains(t) {
		return 0, fmt.Errorf("%w: %s outside [%s, %s]", errs.ErrRange, Format(t), Format(a.Start), Format(a.End))
	}

	diff := t.Sub(a.Start)
	if exact && diff%time.Hour != 0 {
		return 0, fmt.Errorf("%w: %s is not on the hour", errs.ErrAlignment, t.Format(StampLayout))
	}

	hours := int(diff / time.Hour)
	if a.Frequency == 1 {
		return hours, nil
	}

	index, rem := hours/a.Frequency, hours%a.Frequency
	if rem == 0 {
		return index, nil
	}
	if exact {
		return 0, fmt.Errorf("%w: %s is %dh past a %dh step", errs.ErrAlignment, Format(t), rem, a.Frequency)
	}
	if 2*rem > a.Frequency {
		index++
	}
	if index >= a.Len() {
		return 0, fmt.Errorf("%w: %s rounds past the last step %s", errs.ErrRange, Format(t), Format(a.Last()))
	}

	return index, nil
}

// TimeForIndex returns the time of step i.
func (a Axis) TimeForIndex(i int) (time.Time, error) {
	if i < 0 || i >= a.Len() {
		return time.Time{}, fmt.Errorf("%w: index %d outside [0, %d)", errs.ErrRange, i, a.Len())
	}

	return a.Start.Add(time.Duration(i) * a.Step()), nil
}

// IndexesForRange resolves a pair of positions to a half-open index range.
//
// Index positions pass through unchanged, an open start is 0 and an open end
// is Len. Time positions resolve to their nearest step; a time end is
// inclusive and resolves to its index plus one.
func (a Axis) IndexesForRange(start, end Position) (lo, hi int, err error) {
	switch start.kind {
	case positionOpen:
		lo = 0
	case positionIndex:
		lo = start.index
	case positionTime:
		if lo, err = a.IndexForTime(start.time, false); err != nil {
			return 0, 0, err
		}
	}

	switch end.kind {
	case positionOpen:
		hi = a.Len()
	case positionIndex:
		hi = end.index
	case positionTime:
		if hi, err = a.IndexForTime(end.time, false); err != nil {
			return 0, 0, err
		}
		hi++
	}

	if hi < lo {
		return 0, 0, fmt.Errorf("%w: [%d, %d)", errs.ErrInvalidRange, lo, hi)
	}

	return lo, hi, nil
}

func (a Axis) loc() *time.Location {
	if a.Location == nil {
		return time.UTC
	}

	return a.Location
}

type positionKind uint8

const (
	positionOpen positionKind = iota
	positionTime
	positionIndex
)

// Position is one end of a time range: a timestamp, a raw index, or open.
// The zero value is open.
type Position struct {
	kind  positionKind
	time  time.Time
	index int
}

// At returns a position at time t.
func At(t time.Time) Position {
	return Position{kind: positionTime, time: t}
}

// Index returns a position at a raw step index.
func Index(i int) Position {
	return Position{kind: positionIndex, index: i}
}

// IsOpen reports whether p is the open position.
func (p Position) IsOpen() bool {
	return p.kind == positionOpen
}

func (p Position) String() string {
	switch p.kind {
	case positionTime:
		return Format(p.time)
	case positionIndex:
		return fmt.Sprintf("#%d", p.index)
	default:
		return "open"
	}
}
