package gridfile

import (
	"fmt"
	"strconv"
	"time"

	"github.com/arloliu/atmogrid/errs"
	"github.com/arloliu/atmogrid/geo"
	"github.com/arloliu/atmogrid/grid"
	"github.com/arloliu/atmogrid/store"
	"github.com/arloliu/atmogrid/timeindex"
)

// Descriptor attribute keys.
const (
	AttrTimezone     = "timezone"
	AttrStartTime    = "start_time"
	AttrEndTime      = "end_time"
	AttrFrequency    = "frequency"
	AttrView         = "view"
	AttrDType        = "dtype"
	AttrMissingValue = "missing_value"
	AttrProvenance   = "provenance"
	AttrRecordType   = "record_type"
	AttrDataRank     = "data_rank"
	AttrUpdated      = grid.AttrUpdated
)

// Watermark attribute keys.
const (
	AttrLastObsTime    = "last_obs_time"
	AttrLastValidTime  = "last_valid_time"
	AttrRTMAEndTime    = "rtma_end_time"
	AttrURMAEndTime    = "urma_end_time"
	AttrFcastStartTime = "fcast_start_time"
	AttrFcastEndTime   = "fcast_end_time"
)

// Grid definition attribute keys on the file root.
const (
	AttrGridMinLon  = "grid_min_lon"
	AttrGridMinLat  = "grid_min_lat"
	AttrGridSpacing = "grid_spacing"
	AttrGridRows    = "grid_rows"
	AttrGridCols    = "grid_cols"
	AttrGridRadius  = "grid_radius"
)

// FileAttrs are the process-wide attributes of a grid file.
type FileAttrs struct {
	Location  *time.Location // canonical timezone; nil means UTC
	Start     time.Time
	End       time.Time
	Frequency int       // hours; 0 means 1
	Grid      *geo.Grid // optional lat/lon grid shared by every dataset
}

// Axis returns the file-wide time axis.
func (a FileAttrs) Axis() (timeindex.Axis, error) {
	return timeindex.NewAxis(a.Start, a.End, a.Location, a.Frequency)
}

func (a *FileAttrs) normalize() error {
	if a.Location == nil {
		a.Location = time.UTC
	}
	if a.Frequency == 0 {
		a.Frequency = 1
	}
	if _, err := a.Axis(); err != nil {
		return err
	}
	if a.Grid != nil {
		return a.Grid.Validate()
	}

	return nil
}

func writeFileAttrs(st store.Store, a FileAttrs) error {
	attrs := [][2]string{
		{AttrTimezone, a.Location.String()},
		{AttrStartTime, timeindex.Format(a.Start.In(a.Location))},
		{AttrEndTime, timeindex.Format(a.End.In(a.Location))},
		{AttrFrequency, strconv.Itoa(a.Frequency)},
	}
	if g := a.Grid; g != nil {
		attrs = append(attrs,
			[2]string{AttrGridMinLon, formatFloat(g.MinLon)},
			[2]string{AttrGridMinLat, formatFloat(g.MinLat)},
			[2]string{AttrGridSpacing, formatFloat(g.Spacing)},
			[2]string{AttrGridRows, strconv.Itoa(g.Rows)},
			[2]string{AttrGridCols, strconv.Itoa(g.Cols)},
			[2]string{AttrGridRadius, formatFloat(g.Radius)},
		)
	}

	for _, kv := range attrs {
		if err := st.SetAttr(store.RootObject, kv[0], kv[1]); err != nil {
			return err
		}
	}

	return nil
}

func readFileAttrs(st store.Store) (FileAttrs, error) {
	attrs, err := st.Attrs(store.RootObject)
	if err != nil {
		return FileAttrs{}, err
	}

	p := attrParser{attrs: attrs}
	a := FileAttrs{Location: p.location(AttrTimezone)}
	a.Start = p.time(AttrStartTime, a.Location)
	a.End = p.time(AttrEndTime, a.Location)
	a.Frequency = p.int(AttrFrequency, 1)

	if _, ok := attrs[AttrGridRows]; ok {
		a.Grid = &geo.Grid{
			MinLon:  p.float(AttrGridMinLon),
			MinLat:  p.float(AttrGridMinLat),
			Spacing: p.float(AttrGridSpacing),
			Rows:    p.int(AttrGridRows, 0),
			Cols:    p.int(AttrGridCols, 0),
			Radius:  p.float(AttrGridRadius),
		}
	}
	if p.err != nil {
		return FileAttrs{}, p.err
	}

	return a, a.normalize()
}

// attrParser decodes descriptor attributes, keeping the first error.
type attrParser struct {
	attrs map[string]string
	err   error
}

func (p *attrParser) get(key string) (string, bool) {
	if p.err != nil {
		return "", false
	}
	s, ok := p.attrs[key]

	return s, ok
}

func (p *attrParser) required(key string) (string, bool) {
	s, ok := p.get(key)
	if !ok && p.err == nil {
		p.err = fmt.Errorf("%w: %s", errs.ErrAttributeNotFound, key)
	}

	return s, ok
}

func (p *attrParser) location(key string) *time.Location {
	s, _ := p.get(key)
	loc, err := timeindex.LoadLocation(s)
	if err != nil {
		p.err = err
		return time.UTC
	}

	return loc
}

func (p *attrParser) time(key string, loc *time.Location) time.Time {
	s, ok := p.required(key)
	if !ok {
		return time.Time{}
	}
	t, err := timeindex.Parse(s, loc)
	if err != nil {
		p.err = fmt.Errorf("attribute %s: %w", key, err)
	}

	return t
}

func (p *attrParser) int(key string, def int) int {
	s, ok := p.get(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		p.err = fmt.Errorf("%w: attribute %s=%q is not an integer", errs.ErrInvalidConfig, key, s)
	}

	return n
}

func (p *attrParser) float(key string) float64 {
	s, ok := p.required(key)
	if !ok {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.err = fmt.Errorf("%w: attribute %s=%q is not a number", errs.ErrInvalidConfig, key, s)
	}

	return v
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
