package merge

import (
	"fmt"
	"time"

	"github.com/arloliu/atmogrid/errs"
	"github.com/arloliu/atmogrid/gridfile"
	"github.com/arloliu/atmogrid/timeindex"
)

// Watermarks is the watermark set of a dataset. A zero time means unset.
type Watermarks struct {
	LastObs    time.Time `json:"last_obs_time,omitzero"`
	LastValid  time.Time `json:"last_valid_time,omitzero"`
	RTMAEnd    time.Time `json:"rtma_end_time,omitzero"`
	URMAEnd    time.Time `json:"urma_end_time,omitzero"`
	FcastStart time.Time `json:"fcast_start_time,omitzero"`
	FcastEnd   time.Time `json:"fcast_end_time,omitzero"`
}

// LoadWatermarks reads the watermark set of a dataset through its time attribute cache.
func LoadWatermarks(ds *gridfile.Dataset) (Watermarks, error) {
	var w Watermarks
	for _, f := range w.fields() {
		t, ok, err := ds.TimeAttr(f.key)
		if err != nil {
			return Watermarks{}, err
		}
		if ok {
			*f.val = t
		}
	}

	return w, nil
}

// TierEnd returns the end watermark of an observation tier.
func (w Watermarks) TierEnd(t Tier) time.Time {
	switch t {
	case URMA:
		return w.URMAEnd
	case RTMA:
		return w.RTMAEnd
	default:
		return time.Time{}
	}
}

// HasForecast reports whether a forecast window is standing.
func (w Watermarks) HasForecast() bool {
	return !w.FcastStart.IsZero() || !w.FcastEnd.IsZero()
}

// LatestObservation returns max(last_obs_time, rtma_end_time, urma_end_time).
func (w Watermarks) LatestObservation() time.Time {
	return latest(latest(w.LastObs, w.RTMAEnd), w.URMAEnd)
}

// Validate checks the watermark invariants:
//
//   - when both are set, urma_end_time precedes rtma_end_time
//   - a forecast window has both ends, in order, after the latest observation
//   - last_valid_time is max(last_obs_time, fcast_end_time) when both are set
//
// Returns ErrInvariant naming the first violation.
func (w Watermarks) Validate() error {
	if !w.URMAEnd.IsZero() && !w.RTMAEnd.IsZero() && !w.URMAEnd.Before(w.RTMAEnd) {
		return fmt.Errorf("%w: urma_end_time %s not before rtma_end_time %s",
			errs.ErrInvariant, timeindex.Format(w.URMAEnd), timeindex.Format(w.RTMAEnd))
	}

	if w.HasForecast() {
		if w.FcastStart.IsZero() || w.FcastEnd.IsZero() {
			return fmt.Errorf("%w: forecast window has only one end", errs.ErrInvariant)
		}
		if w.FcastEnd.Before(w.FcastStart) {
			return fmt.Errorf("%w: fcast_end_time %s before fcast_start_time %s",
				errs.ErrInvariant, timeindex.Format(w.FcastEnd), timeindex.Format(w.FcastStart))
		}
		if obs := w.LatestObservation(); !obs.IsZero() && !w.FcastStart.After(obs) {
			return fmt.Errorf("%w: fcast_start_time %s not after latest observation %s",
				errs.ErrInvariant, timeindex.Format(w.FcastStart), timeindex.Format(obs))
		}
	}

	if !w.LastObs.IsZero() && !w.FcastEnd.IsZero() {
		if want := latest(w.LastObs, w.FcastEnd); !w.LastValid.Equal(want) {
			return fmt.Errorf("%w: last_valid_time %s, want %s",
				errs.ErrInvariant, formatOrUnset(w.LastValid), timeindex.Format(want))
		}
	}

	return nil
}

type watermarkField struct {
	key string
	val *time.Time
}

func (w *Watermarks) fields() []watermarkField {
	return []watermarkField{
		{gridfile.AttrLastObsTime, &w.LastObs},
		{gridfile.AttrLastValidTime, &w.LastValid},
		{gridfile.AttrRTMAEndTime, &w.RTMAEnd},
		{gridfile.AttrURMAEndTime, &w.URMAEnd},
		{gridfile.AttrFcastStartTime, &w.FcastStart},
		{gridfile.AttrFcastEndTime, &w.FcastEnd},
	}
}

// save persists the fields of w that differ from old, deleting cleared ones.
func (w Watermarks) save(ds *gridfile.Dataset, old Watermarks) ([]string, error) {
	var changed []string
	prev := old.fields()
	for i, f := range w.fields() {
		if f.val.Equal(*prev[i].val) {
			continue
		}

		var err error
		if f.val.IsZero() {
			err = ds.DeleteTimeAttr(f.key)
		} else {
			err = ds.SetTimeAttr(f.key, *f.val)
		}
		if err != nil {
			return changed, err
		}
		changed = append(changed, f.key)
	}

	return changed, nil
}

func latest(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}

	return a
}

func formatOrUnset(t time.Time) string {
	if t.IsZero() {
		return "unset"
	}

	return timeindex.Format(t)
}
