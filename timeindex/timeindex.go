// Package timeindex translates timezone-aware timestamps into offsets along a
// dataset's hourly time axis and back.
//
// Timestamps persist as canonical "YYYY-MM-DD:HH" strings interpreted in a
// separately stored timezone. An Axis spans [Start, End] inclusive with one
// step every Frequency hours; its length is ⌊hours(End-Start)/Frequency⌋+1.
package timeindex

import (
	"fmt"
	"strings"
	"time"

	"github.com/arloliu/atmogrid/errs"
)

const (
	// Layout is the canonical persisted timestamp layout, e.g. "2020-01-05:03".
	Layout = "2006-01-02:15"

	// StampLayout formats wall-clock stamps such as updated and processed.
	StampLayout = "2006-01-02 15:04:05"
)

// Format renders t in its own location using Layout.
func Format(t time.Time) string {
	return t.Format(Layout)
}

// Parse parses a Layout timestamp in loc. A nil loc means UTC.
// Parse(Format(t)) returns t for every canonical t (see IsCanonical).
func Parse(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}

	s = strings.TrimSpace(s)
	t, err := time.ParseInLocation(Layout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", errs.ErrInvalidTimestamp, s)
	}

	// An hour repeated by a daylight saving fall-back resolves to its later instant.
	if later := t.Add(time.Hour); Format(later) == s {
		return later, nil
	}

	return t, nil
}

// IsCanonical reports whether t survives a Format/Parse round trip in loc:
// it falls on a whole hour and is not the earlier of two instants sharing a
// wall-clock hour.
func IsCanonical(t time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.UTC
	}
	p, err := Parse(Format(t.In(loc)), loc)

	return err == nil && p.Equal(t)
}

// LoadLocation resolves a persisted timezone name. An empty name means UTC.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", errs.ErrInvalidTimestamp, name, err)
	}

	return loc, nil
}
