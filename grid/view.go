package grid

import (
	"fmt"
	"strings"

	"github.com/arloliu/atmogrid/errs"
)

// AxisKind identifies a dataset axis.
type AxisKind uint8

const (
	Time AxisKind = iota + 1
	Lat
	Lon
)

// AllAxes lists every axis kind in canonical order.
var AllAxes = [...]AxisKind{Time, Lat, Lon}

func (k AxisKind) String() string {
	switch k {
	case Time:
		return "time"
	case Lat:
		return "lat"
	case Lon:
		return "lon"
	default:
		return "unknown"
	}
}

// ParseAxisKind parses "time", "lat" or "lon". "row" and "col" are accepted as
// aliases of lat and lon.
func ParseAxisKind(s string) (AxisKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "time":
		return Time, nil
	case "lat", "row":
		return Lat, nil
	case "lon", "col":
		return Lon, nil
	default:
		return 0, fmt.Errorf("%w: unknown axis %q", errs.ErrInvalidView, s)
	}
}

// View is the ordered tuple of axes describing a dataset's layout.
type View []AxisKind

// ParseView parses a comma separated axis list such as "time,lat,lon".
// Surrounding parentheses are ignored.
func ParseView(s string) (View, error) {
	s = strings.Trim(strings.TrimSpace(s), "()")
	if s == "" {
		return nil, fmt.Errorf("%w: empty view", errs.ErrInvalidView)
	}

	parts := strings.Split(s, ",")
	v := make(View, 0, len(parts))
	for _, p := range parts {
		k, err := ParseAxisKind(p)
		if err != nil {
			return nil, err
		}
		v = append(v, k)
	}

	return v, v.Validate()
}

// MustParseView is like ParseView but panics on error. It is meant for
// package-level literals.
func MustParseView(s string) View {
	v, err := ParseView(s)
	if err != nil {
		panic(err)
	}

	return v
}

// Validate checks that v has one to three distinct known axes.
func (v View) Validate() error {
	if len(v) == 0 || len(v) > len(AllAxes) {
		return fmt.Errorf("%w: %d axes", errs.ErrInvalidView, len(v))
	}

	var seen [len(AllAxes) + 1]bool
	for _, k := range v {
		if k < Time || k > Lon {
			return fmt.Errorf("%w: unknown axis %d", errs.ErrInvalidView, k)
		}
		if seen[k] {
			return fmt.Errorf("%w: duplicate axis %s in %s", errs.ErrInvalidView, k, v)
		}
		seen[k] = true
	}

	return nil
}

// Index returns the position of k in v, or -1.
func (v View) Index(k AxisKind) int {
	for i, axis := range v {
		if axis == k {
			return i
		}
	}

	return -1
}

// Has reports whether v contains k.
func (v View) Has(k AxisKind) bool {
	return v.Index(k) >= 0
}

// Without returns v with k removed.
func (v View) Without(k AxisKind) View {
	out := make(View, 0, len(v))
	for _, axis := range v {
		if axis != k {
			out = append(out, axis)
		}
	}

	return out
}

// SameAxes reports whether v and o hold the same axes in any order.
func (v View) SameAxes(o View) bool {
	if len(v) != len(o) {
		return false
	}
	for _, k := range v {
		if !o.Has(k) {
			return false
		}
	}

	return true
}

// String renders v as "time,lat,lon".
func (v View) String() string {
	names := make([]string, len(v))
	for i, k := range v {
		names[i] = k.String()
	}

	return strings.Join(names, ",")
}
