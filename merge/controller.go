package merge

import (
	"context"
	"fmt"
	"time"

	"github.com/arloliu/atmogrid/errs"
	"github.com/arloliu/atmogrid/grid"
	"github.com/arloliu/atmogrid/gridfile"
	"github.com/arloliu/atmogrid/internal/options"
	"github.com/arloliu/atmogrid/timeindex"
	"go.uber.org/zap"
)

// Result reports a committed write.
type Result struct {
	Dataset    string
	Tier       Tier
	Start      time.Time   // first step written
	End        time.Time   // last step written, after clamping at the axis end
	Steps      int         // steps written
	Region     grid.Region // written ranges in view order
	Watermarks Watermarks  // watermark set after the write
}

// Controller applies tiered writes to the datasets of one grid file.
//
// A Controller is not safe for concurrent use; a grid file has a single writer.
type Controller struct {
	file     *gridfile.GridFile
	logger   *zap.Logger
	metrics  *Metrics
	notifier Notifier
}

// NewController creates a Controller over file.
func NewController(file *gridfile.GridFile, opts ...Option) (*Controller, error) {
	if file == nil {
		return nil, fmt.Errorf("%w: nil grid file", errs.ErrInvalidConfig)
	}

	c := &Controller{file: file, logger: file.Logger()}
	if err := options.Apply(c, opts...); err != nil {
		return nil, err
	}

	return c, nil
}

// File returns the grid file the controller writes to.
func (c *Controller) File() *gridfile.GridFile {
	return c.file
}

// WriteObservation writes URMA or RTMA data starting at start.
//
// data is laid out in the dataset view, optionally without the time axis for
// a single step. Steps past the end of the time axis are dropped.
//
// Parameters:
//   - ctx: checked before any state is touched; a started write runs to completion
//   - dataset: data dataset name
//   - tier: URMA or RTMA
//   - start: time of the first step; must land exactly on a step
//   - data: values to write
//   - opts: WithRows, WithCols, WithAccumulation
//
// Returns:
//   - Result: the committed steps and the new watermark set
//   - error: ErrPrecedence when the write would overwrite a higher tier or
//     retreat the URMA watermark, or any index, shape or store error
func (c *Controller) WriteObservation(ctx context.Context, dataset string, tier Tier, start time.Time, data grid.Array, opts ...WriteOption) (Result, error) {
	if !tier.IsObservation() {
		return Result{}, fmt.Errorf("%w: %s is not an observation tier", errs.ErrPrecedence, tier)
	}

	return c.write(ctx, dataset, tier, start, data, opts)
}

// WriteForecast writes forecast data starting at start.
//
// The forecast must start after every committed observation. The forecast
// window widens to cover the written steps.
func (c *Controller) WriteForecast(ctx context.Context, dataset string, start time.Time, data grid.Array, opts ...WriteOption) (Result, error) {
	return c.write(ctx, dataset, Forecast, start, data, opts)
}

// Watermarks returns the current watermark set of a dataset.
func (c *Controller) Watermarks(dataset string) (Watermarks, error) {
	ds, err := c.file.Dataset(dataset)
	if err != nil {
		return Watermarks{}, err
	}

	return LoadWatermarks(ds)
}

// Validate re-reads the watermark attributes of a dataset and checks the
// watermark invariants. Use it after a failed write to detect stale state.
func (c *Controller) Validate(dataset string) (Watermarks, error) {
	ds, err := c.file.Dataset(dataset)
	if err != nil {
		return Watermarks{}, err
	}
	ds.ReloadTimeAttrs()

	w, err := LoadWatermarks(ds)
	if err != nil {
		return Watermarks{}, err
	}

	return w, w.Validate()
}

type writePlan struct {
	sel   grid.Selection
	first int
	steps int
	start time.Time
	end   time.Time
}

func (c *Controller) write(ctx context.Context, name string, tier Tier, start time.Time, data grid.Array, opts []WriteOption) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	var cfg writeConfig
	if err := options.Apply(&cfg, opts...); err != nil {
		return Result{}, err
	}

	ds, err := c.file.Dataset(name)
	if err != nil {
		return Result{}, err
	}
	axis, ok := ds.Axis()
	if !ok {
		return Result{}, fmt.Errorf("%w: dataset %q has no time axis", errs.ErrInvalidView, name)
	}

	plan, err := planWrite(ds.View(), axis, start, data, cfg)
	if err != nil {
		c.metrics.observeWrite(tier, OutcomeError, 0)
		return Result{}, err
	}

	prev, err := LoadWatermarks(ds)
	if err != nil {
		return Result{}, err
	}
	if err := checkPrecedence(tier, prev, plan.start, plan.end); err != nil {
		c.metrics.observeWrite(tier, OutcomeRejected, 0)
		c.logger.Debug("Rejected write",
			zap.String("dataset", name),
			zap.Stringer("tier", tier),
			zap.Error(err))

		return Result{}, err
	}

	region, err := ds.Write(plan.sel, data)
	if err != nil {
		c.metrics.observeWrite(tier, OutcomeError, 0)
		return Result{}, err
	}

	if target, ok := ds.Provenance(); ok {
		samples, err := provenanceSamples(ds.View(), region, append([]grid.Array{data}, cfg.accum...))
		if err == nil {
			_, _, err = c.file.Appender().Append(target, plan.start, tier.String(), samples...)
		}
		if err != nil {
			c.metrics.observeWrite(tier, OutcomeError, 0)
			return Result{}, fmt.Errorf("provenance of %q: %w", name, err)
		}
	}

	next, adjustment := advance(prev, tier, plan.start, plan.end, axis.Step())
	changed, err := next.save(ds, prev)
	if err == nil {
		next, err = LoadWatermarks(ds)
	}
	if err != nil {
		c.metrics.observeWrite(tier, OutcomeError, 0)
		return Result{}, fmt.Errorf("watermarks of %q: %w", name, err)
	}

	c.metrics.observeWrite(tier, OutcomeOK, plan.steps)
	c.metrics.observeAdjustment(adjustment)
	c.metrics.observeWatermarks(name, next)

	c.logger.Debug("Committed write",
		zap.String("dataset", name),
		zap.Stringer("tier", tier),
		zap.String("start", timeindex.Format(plan.start)),
		zap.String("end", timeindex.Format(plan.end)),
		zap.Int("steps", plan.steps),
		zap.Strings("changed", changed))
	if adjustment != "" {
		c.logger.Info("Adjusted forecast window",
			zap.String("dataset", name),
			zap.String("action", adjustment),
			zap.String("cutoff", timeindex.Format(plan.end)),
			zap.String("fcast_start_time", formatOrUnset(next.FcastStart)),
			zap.String("fcast_end_time", formatOrUnset(next.FcastEnd)))
	}

	res := Result{
		Dataset:    name,
		Tier:       tier,
		Start:      plan.start,
		End:        plan.end,
		Steps:      plan.steps,
		Region:     region,
		Watermarks: next,
	}
	c.notify(ctx, res, adjustment, changed)

	return res, nil
}

func (c *Controller) notify(ctx context.Context, res Result, adjustment string, changed []string) {
	if c.notifier == nil {
		return
	}

	event := Event{
		Dataset:    res.Dataset,
		Tier:       res.Tier,
		Start:      res.Start,
		End:        res.End,
		Steps:      res.Steps,
		Adjustment: adjustment,
		Changed:    changed,
		Watermarks: res.Watermarks,
		At:         c.file.Clock().Now().UTC(),
	}
	if err := c.notifier.Notify(ctx, event); err != nil {
		c.logger.Warn("Failed to publish merge event",
			zap.String("dataset", res.Dataset),
			zap.Stringer("tier", res.Tier),
			zap.Error(err))
	}
}

// planWrite resolves the time range of a write and its clamped end.
func planWrite(view grid.View, axis timeindex.Axis, start time.Time, data grid.Array, cfg writeConfig) (writePlan, error) {
	if err := data.Validate(); err != nil {
		return writePlan{}, err
	}

	var n int
	switch data.Rank() {
	case len(view):
		n = data.Shape[view.Index(grid.Time)]
	case len(view) - 1:
		n = 1
	default:
		return writePlan{}, fmt.Errorf("%w: %v data for view %s", errs.ErrDimensionMismatch, data.Shape, view)
	}
	if data.Len() == 0 {
		return writePlan{}, fmt.Errorf("%w: %v data has no elements", errs.ErrDimensionMismatch, data.Shape)
	}

	first, err := axis.IndexForTime(start, true)
	if err != nil {
		return writePlan{}, err
	}
	steps := min(n, axis.Len()-first)

	p := writePlan{
		sel:   grid.Selection{grid.Time: grid.Span(first, n)},
		first: first,
		steps: steps,
	}
	p.start, _ = axis.TimeForIndex(first)
	p.end, _ = axis.TimeForIndex(first + steps - 1)

	if cfg.rows != nil {
		p.sel[grid.Lat] = *cfg.rows
	}
	if cfg.cols != nil {
		p.sel[grid.Lon] = *cfg.cols
	}

	return p, nil
}

func checkPrecedence(tier Tier, w Watermarks, start, end time.Time) error {
	switch tier {
	case URMA:
		if !w.URMAEnd.IsZero() && end.Before(w.URMAEnd) {
			return fmt.Errorf("%w: urma write ending %s would retreat urma_end_time %s",
				errs.ErrPrecedence, timeindex.Format(end), timeindex.Format(w.URMAEnd))
		}
	case RTMA:
		if !w.URMAEnd.IsZero() && !start.After(w.URMAEnd) {
			return fmt.Errorf("%w: rtma write at %s not after urma_end_time %s",
				errs.ErrPrecedence, timeindex.Format(start), timeindex.Format(w.URMAEnd))
		}
	case Forecast:
		if obs := w.LatestObservation(); !obs.IsZero() && !start.After(obs) {
			return fmt.Errorf("%w: forecast at %s not after last observation %s",
				errs.ErrPrecedence, timeindex.Format(start), timeindex.Format(obs))
		}
	default:
		return fmt.Errorf("%w: unknown tier %d", errs.ErrPrecedence, tier)
	}

	return nil
}

// advance returns the watermark set after tier committed [start, end].
func advance(w Watermarks, tier Tier, start, end time.Time, step time.Duration) (Watermarks, string) {
	var adjustment string
	switch tier {
	case URMA:
		w.URMAEnd = end
		if !w.RTMAEnd.IsZero() && !end.Before(w.RTMAEnd) {
			w.RTMAEnd = time.Time{}
		}
		w.LastObs = latest(w.LastObs, end)
		adjustment = adjustForecast(&w, end, step)
	case RTMA:
		w.RTMAEnd = latest(w.RTMAEnd, end)
		w.LastObs = latest(w.LastObs, end)
		adjustment = adjustForecast(&w, end, step)
	case Forecast:
		if w.FcastStart.IsZero() || start.Before(w.FcastStart) {
			w.FcastStart = start
		}
		w.FcastEnd = latest(w.FcastEnd, end)
	}
	w.LastValid = latest(w.LastValid, end)

	return w, adjustment
}

// adjustForecast trims the forecast window against an observation cutoff:
// a window ending at or before cutoff is deleted, a window starting at or
// before cutoff restarts one step after it.
func adjustForecast(w *Watermarks, cutoff time.Time, step time.Duration) string {
	if !w.HasForecast() {
		return ""
	}
	if !w.FcastEnd.After(cutoff) {
		w.FcastStart, w.FcastEnd = time.Time{}, time.Time{}
		return AdjustSuperseded
	}
	if !w.FcastStart.After(cutoff) {
		w.FcastStart = cutoff.Add(step)
		return AdjustTruncated
	}

	return ""
}

// provenanceSamples reshapes written arrays into the time-leading layout the
// appender expects, dropping what the write clamped away.
func provenanceSamples(view grid.View, region grid.Region, arrays []grid.Array) ([]grid.Array, error) {
	spatial := view.Without(grid.Time)
	timeLeading := append(grid.View{grid.Time}, spatial...)

	out := make([]grid.Array, len(arrays))
	for i, a := range arrays {
		dataView := view
		if a.Rank() == len(spatial) {
			dataView = spatial
		}

		local := make([]grid.Range, 0, len(dataView))
		clamped := false
		for j, k := range dataView {
			n := region[view.Index(k)].Len()
			if j < a.Rank() && a.Shape[j] != n {
				clamped = true
			}
			local = append(local, grid.Span(0, n))
		}

		var err error
		if clamped {
			if a, err = a.Sub(local); err != nil {
				return nil, err
			}
		}
		if len(dataView) == len(view) {
			if a, err = grid.Transpose(a, view, timeLeading); err != nil {
				return nil, err
			}
		}
		out[i] = a
	}

	return out, nil
}
