// Package config provides the batch configuration: folder roots, factor
// levels, participant set and every pipeline tunable. It is loaded from YAML
// and folder roots may be overridden from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"thermomap/internal/catalog"
	"thermomap/internal/condition"
	"thermomap/internal/drawing"
	"thermomap/internal/heatmap"
	"thermomap/internal/mask"
	"thermomap/internal/render"
	"thermomap/internal/trial"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override folder roots.
const (
	EnvDataDir     = "THERMOMAP_DATA_DIR"
	EnvDrawingsDir = "THERMOMAP_DRAWINGS_DIR"
	EnvMaskPath    = "THERMOMAP_MASK_PATH"
	EnvOutputDir   = "THERMOMAP_OUTPUT_DIR"
)

// Paths holds the folder roots of the inputs and outputs.
type Paths struct {
	// DataDir holds p<P>_data.csv or p<P>_data.xlsx per participant.
	DataDir string `yaml:"data_dir"`
	// DrawingsDir holds p<P>/p<P>_trial<T>_drawing.png.
	DrawingsDir string `yaml:"drawings_dir"`
	MaskPath    string `yaml:"mask_path"`
	OutputDir   string `yaml:"output_dir"`
	// FilledDir, when set, receives a copy of every filled drawing.
	FilledDir string `yaml:"filled_dir,omitempty"`
}

// Dimensions are the factor levels a batch iterates over.
type Dimensions struct {
	Axis         condition.Axis `yaml:"axis"`
	Temperatures []float64      `yaml:"temperatures"`
	Durations    []float64      `yaml:"durations"`
	// Positions are location fractions, or directions on the direction axis.
	Positions    []float64 `yaml:"positions"`
	AllPositions bool      `yaml:"all_positions"`
	AllDurations bool      `yaml:"all_durations"`
	// Illusions splits assets by reported illusion, e.g. [1, 0].
	Illusions    []float64 `yaml:"illusions,omitempty"`
	AllIllusions bool      `yaml:"all_illusions,omitempty"`
}

// Space returns the combination space of the dimensions.
func (d Dimensions) Space() condition.Space {
	return condition.Space{
		Axis:         d.Axis,
		Temperatures: d.Temperatures,
		Durations:    d.Durations,
		Positions:    d.Positions,
		AllPositions: d.AllPositions,
		AllDurations: d.AllDurations,
		Illusions:    d.Illusions,
		AllIllusions: d.AllIllusions,
	}
}

// CatalogConfig configures the asset catalog.
type CatalogConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Config is the full batch configuration.
type Config struct {
	Paths        Paths       `yaml:"paths"`
	Participants []int       `yaml:"participants"`
	Dimensions   Dimensions  `yaml:"dimensions"`
	Match        trial.Rules `yaml:"match"`

	// PerParticipant adds one single-participant job per combination.
	PerParticipant bool `yaml:"per_participant"`
	// Workers is the number of combinations rendered concurrently.
	Workers int `yaml:"workers"`
	// SkipEmpty skips combinations without a single matching trial instead
	// of rendering an empty heatmap.
	SkipEmpty bool `yaml:"skip_empty"`

	MaskThreshold uint8          `yaml:"mask_threshold"`
	Drawing       drawing.Params `yaml:"drawing"`
	Heatmap       heatmap.Params `yaml:"heatmap"`
	Render        render.Params  `yaml:"render"`

	Catalog CatalogConfig `yaml:"catalog"`
	Logging LoggingConfig `yaml:"logging"`
}

// Default returns the configuration of the funneling study.
func Default() *Config {
	participants := make([]int, 16)
	for i := range participants {
		participants[i] = i + 1
	}
	return &Config{
		Paths: Paths{
			DataDir:     "data",
			DrawingsDir: "drawings",
			MaskPath:    "arm_mask.png",
			OutputDir:   "heatmaps",
		},
		Participants: participants,
		Dimensions: Dimensions{
			Axis:         condition.AxisLocation,
			Temperatures: []float64{9, -15},
			Durations:    []float64{0.1, 1, 2},
			Positions:    []float64{0, 0.25, 0.5, 0.75, 1},
		},
		Match:         trial.Rules{ThermalMatch: true},
		Workers:       1,
		MaskThreshold: mask.DefaultThreshold,
		Drawing:       drawing.DefaultParams(),
		Heatmap:       heatmap.DefaultParams(),
		Render:        render.DefaultParams(),
		Catalog:       CatalogConfig{Enabled: true},
		Logging:       LoggingConfig{Level: "info"},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty), then environment overrides. Relative folder roots in
// the file are resolved against the file's directory.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// LoadFromFile reads a YAML configuration over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.Paths.resolve(filepath.Dir(path))
	return cfg, nil
}

func (p *Paths) resolve(base string) {
	for _, s := range []*string{&p.DataDir, &p.DrawingsDir, &p.MaskPath, &p.OutputDir, &p.FilledDir} {
		if *s != "" && !filepath.IsAbs(*s) {
			*s = filepath.Join(base, *s)
		}
	}
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadEnvFiles loads .env files into the process environment without
// overriding variables already set. Missing files are ignored.
func LoadEnvFiles(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides folder roots from THERMOMAP_* variables.
func (c *Config) ApplyEnv() {
	overrides := []struct {
		env string
		dst *string
	}{
		{EnvDataDir, &c.Paths.DataDir},
		{EnvDrawingsDir, &c.Paths.DrawingsDir},
		{EnvMaskPath, &c.Paths.MaskPath},
		{EnvOutputDir, &c.Paths.OutputDir},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.dst = v
		}
	}
}

// CatalogPath returns the catalog database path inside the output root.
func (c *Config) CatalogPath() string {
	return filepath.Join(c.Paths.OutputDir, catalog.FileName)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Paths.DataDir == "" || c.Paths.DrawingsDir == "" || c.Paths.MaskPath == "" || c.Paths.OutputDir == "" {
		add("paths: data_dir, drawings_dir, mask_path and output_dir are required")
	}

	if len(c.Participants) == 0 {
		add("participants: at least one participant is required")
	}
	for _, p := range c.Participants {
		if p < 1 {
			add("participants: %d must be >= 1", p)
		}
	}

	d := c.Dimensions
	if len(d.Temperatures) == 0 {
		add("dimensions: at least one temperature is required")
	}
	if len(d.Durations) == 0 && !d.AllDurations {
		add("dimensions: durations must be set or all_durations enabled")
	}
	for _, v := range d.Durations {
		if v <= 0 {
			add("dimensions: duration %v must be > 0", v)
		}
	}
	if len(d.Positions) == 0 && !d.AllPositions {
		add("dimensions: positions must be set or all_positions enabled")
	}
	for _, v := range d.Positions {
		switch d.Axis {
		case condition.AxisDirection:
			if v != 0 && v != 1 {
				add("dimensions: direction %v must be 0 or 1", v)
			}
		default:
			if v < 0 || v > 1 {
				add("dimensions: location %v must be between 0 and 1", v)
			}
		}
	}

	for _, v := range d.Illusions {
		if v != 0 && v != 1 {
			add("dimensions: illusion %v must be 0 or 1", v)
		}
	}

	if c.Match.LocationTolerance < 0 {
		add("match: location_tolerance must be >= 0")
	}
	if c.Workers < 1 {
		add("workers: must be >= 1, got %d", c.Workers)
	}

	if len(c.Drawing.RedBands) == 0 {
		add("drawing: at least one red band is required")
	}
	for i, b := range c.Drawing.RedBands {
		if !b.Valid() {
			add("drawing: red band %d is not a valid HSV range", i)
		}
	}
	if c.Drawing.KernelSize < 0 || c.Drawing.CloseIterations < 0 {
		add("drawing: kernel_size and close_iterations must be >= 0")
	}
	if c.Heatmap.Sigma < 0 {
		add("heatmap: sigma must be >= 0, got %v", c.Heatmap.Sigma)
	}
	if err := c.Render.Validate(); err != nil {
		add("render: %v", err)
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		add("logging: invalid level %q", c.Logging.Level)
	}

	return errors.Join(errs...)
}
