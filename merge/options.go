package merge

import (
	"github.com/arloliu/atmogrid/grid"
	"github.com/arloliu/atmogrid/internal/options"
	"go.uber.org/zap"
)

// Option configures a Controller.
type Option = options.Option[*Controller]

// WithLogger sets the logger; the default is the grid file logger.
func WithLogger(logger *zap.Logger) Option {
	return options.NoError(func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	})
}

// WithMetrics records writes, steps and watermarks on m.
func WithMetrics(m *Metrics) Option {
	return options.NoError(func(c *Controller) {
		c.metrics = m
	})
}

// WithNotifier publishes an Event after every successful write.
func WithNotifier(n Notifier) Option {
	return options.NoError(func(c *Controller) {
		c.notifier = n
	})
}

// writeConfig holds the per-call settings of a write.
type writeConfig struct {
	rows, cols *grid.Range
	accum      []grid.Array
}

// WriteOption configures a single write.
type WriteOption = options.Option[*writeConfig]

// WithRows restricts the write to a row (latitude) range of the dataset.
func WithRows(r grid.Range) WriteOption {
	return options.NoError(func(w *writeConfig) {
		w.rows = &r
	})
}

// WithCols restricts the write to a column (longitude) range of the dataset.
func WithCols(r grid.Range) WriteOption {
	return options.NoError(func(w *writeConfig) {
		w.cols = &r
	})
}

// WithAccumulation supplies the extra sample arrays of provenance record types
// taking more than one input, laid out like the written data.
func WithAccumulation(samples ...grid.Array) WriteOption {
	return options.NoError(func(w *writeConfig) {
		w.accum = append(w.accum, samples...)
	})
}
