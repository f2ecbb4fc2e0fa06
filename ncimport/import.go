package ncimport

import (
	"context"
	"fmt"
	"time"

	"github.com/arloliu/atmogrid/errs"
	"github.com/arloliu/atmogrid/grid"
	"github.com/arloliu/atmogrid/merge"
	"go.uber.org/zap"
)

// DefaultBlockSize is the number of steps per write when Job.BlockSize is zero.
const DefaultBlockSize = 24

// Job selects what to import and where.
type Job struct {
	Variable  string     // NetCDF variable name
	Dataset   string     // target dataset
	Tier      merge.Tier // observation tier, or merge.Forecast
	BlockSize int        // steps per write
}

// Import writes every step of a variable that falls inside the dataset time
// axis through the controller, one block at a time.
//
// The first source node is located on the grid file grid to place the block;
// without a grid the block lands at row and column 0. Source steps must be
// evenly spaced by the dataset frequency.
//
// Returns the result of every committed block; on error the results so far
// are returned with it.
func (s *Source) Import(ctx context.Context, c *merge.Controller, job Job) ([]merge.Result, error) {
	ds, err := c.File().Dataset(job.Dataset)
	if err != nil {
		return nil, err
	}
	axis, ok := ds.Axis()
	if !ok {
		return nil, fmt.Errorf("%w: dataset %q has no time axis", errs.ErrInvalidView, job.Dataset)
	}
	if step, err := s.Step(); err != nil {
		return nil, err
	} else if step != 0 && step != axis.Step() {
		return nil, fmt.Errorf("%w: source steps are %s apart, dataset %q every %s",
			errs.ErrAlignment, step, job.Dataset, axis.Step())
	}

	var opts []merge.WriteOption
	if g, ok := c.File().Locator(); ok {
		row, col, err := g.Locate(s.lons[0], s.lats[0])
		if err != nil {
			return nil, fmt.Errorf("place %q on grid: %w", job.Variable, err)
		}
		opts = append(opts, merge.WithRows(grid.Span(row, len(s.lats))), merge.WithCols(grid.Span(col, len(s.lons))))
	}

	blockSize := job.BlockSize
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}

	first, last := s.window(axis.Start, axis.Last())
	if first >= last {
		s.logger.Info("No source steps inside dataset span",
			zap.String("variable", job.Variable),
			zap.String("dataset", job.Dataset))

		return nil, nil
	}

	source := grid.View{grid.Time, grid.Lat, grid.Lon}
	var results []merge.Result
	for begin := first; begin < last; begin += blockSize {
		end := min(begin+blockSize, last)

		block, err := s.Block(job.Variable, begin, end)
		if err != nil {
			return results, err
		}
		if block, err = grid.Transpose(block, source, ds.View()); err != nil {
			return results, err
		}

		var res merge.Result
		if job.Tier == merge.Forecast {
			res, err = c.WriteForecast(ctx, job.Dataset, s.times[begin], block, opts...)
		} else {
			res, err = c.WriteObservation(ctx, job.Dataset, job.Tier, s.times[begin], block, opts...)
		}
		if err != nil {
			return results, fmt.Errorf("import %q steps [%d,%d): %w", job.Variable, begin, end, err)
		}
		results = append(results, res)
	}

	s.logger.Info("Imported NetCDF variable",
		zap.String("variable", job.Variable),
		zap.String("dataset", job.Dataset),
		zap.Stringer("tier", job.Tier),
		zap.Int("steps", last-first),
		zap.Int("blocks", len(results)))

	return results, nil
}

// window returns the half-open range of source steps within [start, end].
func (s *Source) window(start, end time.Time) (int, int) {
	first := 0
	for first < len(s.times) && s.times[first].Before(start) {
		first++
	}
	last := first
	for last < len(s.times) && !s.times[last].After(end) {
		last++
	}

	return first, last
}
