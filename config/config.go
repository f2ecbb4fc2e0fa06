// Package config loads the TOML configuration of a grid file: its time span,
// lat/lon grid, storage backend, logging, event publishing and datasets.
//
// Configuration is decoded once, validated, and handed to constructors by
// value. Unknown keys are rejected.
package config

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/arloliu/atmogrid/errs"
	"github.com/arloliu/atmogrid/format"
	"github.com/arloliu/atmogrid/geo"
	"github.com/arloliu/atmogrid/grid"
	"github.com/arloliu/atmogrid/gridfile"
	"github.com/arloliu/atmogrid/logger"
	"github.com/arloliu/atmogrid/provenance"
	"github.com/arloliu/atmogrid/timeindex"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendBolt   = "bolt"
)

// Config is the root configuration.
type Config struct {
	File     FileConfig      `toml:"file"`
	Grid     *GridConfig     `toml:"grid"`
	Store    StoreConfig     `toml:"store"`
	Log      logger.Config   `toml:"log"`
	Kafka    KafkaConfig     `toml:"kafka"`
	Datasets []DatasetConfig `toml:"dataset"`
}

// FileConfig holds the file-wide time axis.
type FileConfig struct {
	Timezone  string `toml:"timezone"`
	StartTime string `toml:"start-time"`
	EndTime   string `toml:"end-time"`
	Frequency int    `toml:"frequency"`
}

// GridConfig defines the lat/lon grid shared by every dataset.
type GridConfig struct {
	Family string  `toml:"family"` // "5km" or "2.5km"
	MinLon float64 `toml:"min-lon"`
	MinLat float64 `toml:"min-lat"`
	Rows   int     `toml:"rows"`
	Cols   int     `toml:"cols"`
}

// StoreConfig selects the array store.
type StoreConfig struct {
	Backend     string   `toml:"backend"`
	Path        string   `toml:"path"`
	Compression string   `toml:"compression"`
	ReadOnly    bool     `toml:"read-only"`
	Timeout     Duration `toml:"timeout"`
}

// KafkaConfig enables merge event publishing.
type KafkaConfig struct {
	Enabled      bool     `toml:"enabled"`
	Brokers      []string `toml:"brokers"`
	Topic        string   `toml:"topic"`
	WriteTimeout Duration `toml:"write-timeout"`
}

// DatasetConfig describes one data dataset.
type DatasetConfig struct {
	Name         string   `toml:"name"`
	View         string   `toml:"view"`
	DType        string   `toml:"dtype"`
	MissingValue *float64 `toml:"missing-value"`
	Frequency    int      `toml:"frequency"`
	StartTime    string   `toml:"start-time"`
	EndTime      string   `toml:"end-time"`
	Chunk        []int    `toml:"chunk"`
	Compression  string   `toml:"compression"`
	Provenance   string   `toml:"provenance"`
}

// Duration is a time.Duration decoded from a string such as "1s".
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q", errs.ErrInvalidConfig, text)
	}
	*d = Duration(v)

	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Default returns an in-memory configuration spanning January 2020 at hourly steps.
func Default() Config {
	return Config{
		File: FileConfig{
			Timezone:  "UTC",
			StartTime: "2020-01-01:00",
			EndTime:   "2020-01-31:23",
			Frequency: 1,
		},
		Store: StoreConfig{Backend: BackendMemory},
		Log:   logger.NewConfig(),
		Kafka: KafkaConfig{WriteTimeout: Duration(10 * time.Second)},
	}
}

// Load reads and validates a configuration file on top of Default.
func Load(path string) (Config, error) {
	c := Default()
	md, err := toml.DecodeFile(path, &c)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s: %v", errs.ErrInvalidConfig, path, err)
	}

	return c.finish(md)
}

// Parse decodes and validates configuration text on top of Default.
func Parse(text string) (Config, error) {
	c := Default()
	md, err := toml.Decode(text, &c)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", errs.ErrInvalidConfig, err)
	}

	return c.finish(md)
}

func (c Config) finish(md toml.MetaData) (Config, error) {
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}

		return Config{}, fmt.Errorf("%w: unknown keys %s", errs.ErrInvalidConfig, strings.Join(keys, ", "))
	}

	return c, c.Validate()
}

// Validate checks enums, timestamps and positivity.
func (c Config) Validate() error {
	if _, err := c.FileAttrs(); err != nil {
		return err
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendBolt:
		if c.Store.Path == "" {
			return fmt.Errorf("%w: store.path is required for the bolt backend", errs.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store.backend %q", errs.ErrInvalidConfig, c.Store.Backend)
	}
	if _, err := format.ParseCompression(c.Store.Compression); err != nil {
		return err
	}
	if c.Store.Timeout < 0 {
		return fmt.Errorf("%w: negative store.timeout", errs.ErrInvalidConfig)
	}

	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return fmt.Errorf("%w: kafka needs brokers and a topic", errs.ErrInvalidConfig)
	}

	names := make([]string, 0, len(c.Datasets))
	for i := range c.Datasets {
		if _, err := c.Datasets[i].Spec(c.location()); err != nil {
			return err
		}
		if slices.Contains(names, c.Datasets[i].Name) {
			return fmt.Errorf("%w: dataset %q declared twice", errs.ErrInvalidConfig, c.Datasets[i].Name)
		}
		names = append(names, c.Datasets[i].Name)
	}

	return nil
}

// FileAttrs converts the file and grid sections.
func (c Config) FileAttrs() (gridfile.FileAttrs, error) {
	loc, err := timeindex.LoadLocation(c.File.Timezone)
	if err != nil {
		return gridfile.FileAttrs{}, fmt.Errorf("%w: file.timezone: %v", errs.ErrInvalidConfig, err)
	}
	start, err := timeindex.Parse(c.File.StartTime, loc)
	if err != nil {
		return gridfile.FileAttrs{}, fmt.Errorf("%w: file.start-time: %v", errs.ErrInvalidConfig, err)
	}
	end, err := timeindex.Parse(c.File.EndTime, loc)
	if err != nil {
		return gridfile.FileAttrs{}, fmt.Errorf("%w: file.end-time: %v", errs.ErrInvalidConfig, err)
	}
	if c.File.Frequency < 0 {
		return gridfile.FileAttrs{}, fmt.Errorf("%w: file.frequency %d", errs.ErrInvalidConfig, c.File.Frequency)
	}
	if _, err := timeindex.NewAxis(start, end, loc, max(c.File.Frequency, 1)); err != nil {
		return gridfile.FileAttrs{}, fmt.Errorf("%w: file: %v", errs.ErrInvalidConfig, err)
	}

	attrs := gridfile.FileAttrs{Location: loc, Start: start, End: end, Frequency: c.File.Frequency}
	if c.Grid != nil {
		g, err := c.Grid.Grid()
		if err != nil {
			return gridfile.FileAttrs{}, err
		}
		attrs.Grid = &g
	}

	return attrs, nil
}

// Grid converts the grid section.
func (g GridConfig) Grid() (geo.Grid, error) {
	var family geo.Grid
	switch strings.ToLower(g.Family) {
	case "", "5km":
		family = geo.Family5km
	case "2.5km", "2p5km":
		family = geo.Family2p5km
	default:
		return geo.Grid{}, fmt.Errorf("%w: unknown grid.family %q", errs.ErrInvalidConfig, g.Family)
	}

	return geo.NewGrid(family, g.MinLon, g.MinLat, g.Rows, g.Cols)
}

// CompressionType returns the parsed store compression.
func (s StoreConfig) CompressionType() format.CompressionType {
	c, _ := format.ParseCompression(s.Compression)
	return c
}

// Spec converts a dataset section. Times are read in loc.
func (d DatasetConfig) Spec(loc *time.Location) (gridfile.DatasetSpec, error) {
	if d.Name == "" {
		return gridfile.DatasetSpec{}, fmt.Errorf("%w: dataset without a name", errs.ErrInvalidConfig)
	}
	wrap := func(err error) error {
		return fmt.Errorf("dataset %q: %w", d.Name, err)
	}

	view, err := grid.ParseView(d.View)
	if err != nil {
		return gridfile.DatasetSpec{}, wrap(err)
	}
	dtype, err := format.ParseDType(d.DType)
	if err != nil {
		return gridfile.DatasetSpec{}, wrap(err)
	}
	if !dtype.IsNumeric() {
		return gridfile.DatasetSpec{}, wrap(fmt.Errorf("%w: %s", errs.ErrInvalidDType, dtype))
	}
	compression, err := format.ParseCompression(d.Compression)
	if err != nil {
		return gridfile.DatasetSpec{}, wrap(err)
	}
	if d.Frequency < 0 {
		return gridfile.DatasetSpec{}, wrap(fmt.Errorf("%w: frequency %d", errs.ErrInvalidConfig, d.Frequency))
	}
	if d.Chunk != nil && len(d.Chunk) != len(view) {
		return gridfile.DatasetSpec{}, wrap(fmt.Errorf("%w: chunk %v for view %s", errs.ErrInvalidConfig, d.Chunk, view))
	}

	spec := gridfile.DatasetSpec{
		Name:        d.Name,
		View:        view,
		DType:       dtype,
		Frequency:   d.Frequency,
		ChunkShape:  d.Chunk,
		Compression: compression,
	}

	switch {
	case d.MissingValue != nil:
		spec.MissingValue = *d.MissingValue
	case dtype.IsFloat():
		spec.MissingValue = math.NaN()
	default:
		return gridfile.DatasetSpec{}, wrap(fmt.Errorf("%w: %s needs missing-value", errs.ErrInvalidConfig, dtype))
	}

	if d.StartTime != "" {
		if spec.Start, err = timeindex.Parse(d.StartTime, loc); err != nil {
			return gridfile.DatasetSpec{}, wrap(err)
		}
	}
	if d.EndTime != "" {
		if spec.End, err = timeindex.Parse(d.EndTime, loc); err != nil {
			return gridfile.DatasetSpec{}, wrap(err)
		}
	}
	if d.Provenance != "" {
		if spec.Provenance, err = provenance.ParseRecordType(d.Provenance); err != nil {
			return gridfile.DatasetSpec{}, wrap(err)
		}
	}

	return spec, nil
}

// DatasetSpecs converts every dataset section.
func (c Config) DatasetSpecs() ([]gridfile.DatasetSpec, error) {
	specs := make([]gridfile.DatasetSpec, len(c.Datasets))
	for i, d := range c.Datasets {
		spec, err := d.Spec(c.location())
		if err != nil {
			return nil, err
		}
		specs[i] = spec
	}

	return specs, nil
}

func (c Config) location() *time.Location {
	loc, err := timeindex.LoadLocation(c.File.Timezone)
	if err != nil {
		return time.UTC
	}

	return loc
}
