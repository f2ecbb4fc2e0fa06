// Package atmogrid stores gridded weather variables in time-indexed,
// multi-dimensional arrays and merges writes from forecast and observation
// sources of different precedence.
//
// # Package Structure
//
// The root package assembles the pieces below from a config.Config. Each
// piece can also be used on its own:
//
//   - store, store/memstore, store/boltstore: chunked arrays and string attributes
//   - grid: views, arrays and the slice engine
//   - timeindex: timestamps, time axes and position resolution
//   - geo: the lat/lon grid and coordinate lookup
//   - provenance: per-step source statistics
//   - gridfile: file and dataset descriptors over a store
//   - merge: watermark tracking and source precedence
//   - ncimport: loading NetCDF/HDF5 exports into a dataset
//   - notify/kafka: publishing merge events
//
// # Basic Usage
//
//	cfg, _ := config.Load("atmogrid.toml")
//	g, _ := atmogrid.Open(cfg)
//	defer g.Close()
//
//	res, err := g.Controller().WriteObservation(ctx, "t2m", merge.URMA, start, block)
//
// Open creates the grid file and its configured datasets when the store is
// empty, and opens the existing file otherwise.
package atmogrid

import (
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/arloliu/atmogrid/config"
	"github.com/arloliu/atmogrid/gridfile"
	"github.com/arloliu/atmogrid/internal/options"
	"github.com/arloliu/atmogrid/logger"
	"github.com/arloliu/atmogrid/merge"
	"github.com/arloliu/atmogrid/notify/kafka"
	"github.com/arloliu/atmogrid/store"
	"github.com/arloliu/atmogrid/store/boltstore"
	"github.com/arloliu/atmogrid/store/memstore"
	"github.com/arloliu/atmogrid/timeindex"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Grid is an open grid file together with its merge controller.
type Grid struct {
	cfg        config.Config
	logger     *zap.Logger
	file       *gridfile.GridFile
	controller *merge.Controller
	publisher  *kafka.Publisher

	registry  prometheus.Registerer
	collector prometheus.Collector
	metrics   *merge.Metrics
}

type openConfig struct {
	logger   *zap.Logger
	clock    clockwork.Clock
	registry prometheus.Registerer
	notifier merge.Notifier
	store    store.Store
}

// Option configures Open.
type Option = options.Option[*openConfig]

// WithLogger replaces the logger built from the log section.
func WithLogger(l *zap.Logger) Option {
	return options.NoError(func(c *openConfig) {
		c.logger = l
	})
}

// WithClock sets the clock used for updated and processed stamps.
func WithClock(clock clockwork.Clock) Option {
	return options.NoError(func(c *openConfig) {
		c.clock = clock
	})
}

// WithRegisterer registers merge metrics, and the bolt store collector when
// the bolt backend is used, on reg. Close unregisters them, so the same reg
// can serve a grid reopened later.
func WithRegisterer(reg prometheus.Registerer) Option {
	return options.NoError(func(c *openConfig) {
		c.registry = reg
	})
}

// WithNotifier receives merge events instead of the Kafka publisher.
func WithNotifier(n merge.Notifier) Option {
	return options.NoError(func(c *openConfig) {
		c.notifier = n
	})
}

// WithStore uses st instead of the store section's backend.
func WithStore(st store.Store) Option {
	return options.New(func(c *openConfig) error {
		if st == nil {
			return fmt.Errorf("open grid: nil store")
		}
		c.store = st

		return nil
	})
}

// Open builds the store, grid file and merge controller described by cfg.
//
// Parameters:
//   - cfg: validated configuration
//   - opts: WithLogger, WithClock, WithRegisterer, WithNotifier, WithStore
//
// Returns:
//   - *Grid: open grid; the caller must Close it
//   - error: configuration, store or dataset creation failure
func Open(cfg config.Config, opts ...Option) (*Grid, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	oc := &openConfig{clock: clockwork.NewRealClock()}
	if err := options.Apply(oc, opts...); err != nil {
		return nil, err
	}
	if oc.logger == nil {
		l, err := logger.New(os.Stderr, cfg.Log)
		if err != nil {
			return nil, err
		}
		oc.logger = l
	}

	g := &Grid{cfg: cfg, logger: oc.logger, registry: oc.registry}
	st := oc.store
	if st == nil {
		var err error
		if st, err = openStore(cfg.Store, oc); err != nil {
			return nil, err
		}
		if bs, ok := st.(*boltstore.Store); ok && oc.registry != nil {
			if err := oc.registry.Register(bs); err != nil {
				return nil, multierr.Append(fmt.Errorf("register store collector: %w", err), bs.Close())
			}
			g.collector = bs
		}
	}

	file, err := openFile(cfg, st, oc)
	if err != nil {
		g.unregister()
		return nil, multierr.Append(err, st.Close())
	}

	g.file = file
	if err := g.init(oc); err != nil {
		return nil, multierr.Append(err, g.Close())
	}

	return g, nil
}

func openStore(sc config.StoreConfig, oc *openConfig) (store.Store, error) {
	if sc.Backend == config.BackendMemory {
		return memstore.New(), nil
	}

	bopts := []boltstore.Option{
		boltstore.WithLogger(oc.logger.Named("boltstore")),
		boltstore.WithCompression(sc.CompressionType()),
	}
	if sc.Timeout > 0 {
		bopts = append(bopts, boltstore.WithTimeout(time.Duration(sc.Timeout)))
	}
	if sc.ReadOnly {
		bopts = append(bopts, boltstore.WithReadOnly())
	}

	bs, err := boltstore.Open(sc.Path, bopts...)
	if err != nil {
		return nil, err
	}

	return bs, nil
}

func openFile(cfg config.Config, st store.Store, oc *openConfig) (*gridfile.GridFile, error) {
	fopts := []gridfile.Option{
		gridfile.WithClock(oc.clock),
		gridfile.WithLogger(oc.logger),
	}

	_, exists, err := st.Attr(store.RootObject, gridfile.AttrStartTime)
	if err != nil {
		return nil, err
	}
	if exists {
		return gridfile.Open(st, fopts...)
	}

	attrs, err := cfg.FileAttrs()
	if err != nil {
		return nil, err
	}
	oc.logger.Info("Creating grid file",
		zap.String("start", timeindex.Format(attrs.Start.In(attrs.Location))),
		zap.String("end", timeindex.Format(attrs.End.In(attrs.Location))))

	return gridfile.Create(st, attrs, fopts...)
}

func (g *Grid) init(oc *openConfig) error {
	specs, err := g.cfg.DatasetSpecs()
	if err != nil {
		return err
	}
	names, err := g.file.DatasetNames()
	if err != nil {
		return err
	}
	for _, spec := range specs {
		if slices.Contains(names, spec.Name) {
			continue
		}
		if g.cfg.Store.ReadOnly {
			return fmt.Errorf("dataset %q missing from read-only store", spec.Name)
		}
		if _, err := g.file.CreateDataset(spec); err != nil {
			return err
		}
		g.logger.Info("Created dataset", zap.String("dataset", spec.Name), zap.Stringer("view", spec.View))
	}

	notifier := oc.notifier
	if notifier == nil && g.cfg.Kafka.Enabled {
		g.publisher, err = kafka.NewPublisher(kafka.Config{
			Brokers:      g.cfg.Kafka.Brokers,
			Topic:        g.cfg.Kafka.Topic,
			WriteTimeout: time.Duration(g.cfg.Kafka.WriteTimeout),
		}, g.logger.Named("kafka"))
		if err != nil {
			return err
		}
		notifier = g.publisher
	}

	g.metrics, err = merge.NewMetrics(oc.registry)
	if err != nil {
		return err
	}

	mopts := []merge.Option{
		merge.WithLogger(g.logger.Named("merge")),
		merge.WithMetrics(g.metrics),
	}
	if notifier != nil {
		mopts = append(mopts, merge.WithNotifier(notifier))
	}
	g.controller, err = merge.NewController(g.file, mopts...)

	return err
}

// Config returns the configuration the grid was opened with.
func (g *Grid) Config() config.Config {
	return g.cfg
}

// File returns the grid file.
func (g *Grid) File() *gridfile.GridFile {
	return g.file
}

// Controller returns the merge controller.
func (g *Grid) Controller() *merge.Controller {
	return g.controller
}

// Dataset returns the named dataset.
func (g *Grid) Dataset(name string) (*gridfile.Dataset, error) {
	return g.file.Dataset(name)
}

// Close stops the publisher, unregisters the grid's metrics and closes the
// grid file and its store.
func (g *Grid) Close() error {
	g.unregister()

	var err error
	if g.publisher != nil {
		err = multierr.Append(err, g.publisher.Close())
	}
	err = multierr.Append(err, g.file.Close())
	_ = g.logger.Sync()

	return err
}

func (g *Grid) unregister() {
	if g.registry == nil {
		return
	}
	g.metrics.Unregister(g.registry)
	if g.collector != nil {
		g.registry.Unregister(g.collector)
	}
}
