// Package config handles configuration loading and shared data structures.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/woozymasta/reproj/internal/crs"

	"github.com/paulmach/orb"
	"gopkg.in/yaml.v3"
)

// Kind of dataset processed by the pipeline.
type Kind string

const (
	KindVector Kind = "vector"
	KindPoints Kind = "points"
	KindRaster Kind = "raster"
)

// Config represents the root configuration file structure.
type Config struct {
	Attribution string     `yaml:"attribution,omitempty" json:"attribution,omitempty"`
	Output      string     `yaml:"output,omitempty" json:"-"`
	Cache       string     `yaml:"cache,omitempty" json:"-"`
	Repository  Repository `yaml:"repository,omitempty" json:"-"`
	Grids       []Grid     `yaml:"grids,omitempty" json:"-"`
	Datasets    []Dataset  `yaml:"datasets" json:"datasets"`
	Concurrency int        `yaml:"concurrency,omitempty" json:"-"`
}

// Grid is a vertical-shift grid available to transforms.
type Grid struct {
	Name   string `yaml:"name"`
	Source string `yaml:"source"` // local path or URL of an ESRI ASCII grid
	Code   int    `yaml:"code"`   // vertical datum EPSG code
}

// Repository holds credentials of the altimetry repository.
// Values may reference environment variables as ${VAR}.
type Repository struct {
	URL        string        `yaml:"url"`
	Username   string        `yaml:"username"`
	Password   string        `yaml:"password"`
	Retries    uint          `yaml:"retries,omitempty"`
	RetryDelay time.Duration `yaml:"retry_delay,omitempty"`
}

// Dataset is a single source to acquire, reproject and render.
type Dataset struct {
	Index *int `yaml:"index,omitempty" json:"index,omitempty"`

	// GeoJSON defined directly in config.yaml
	Inline map[string]interface{} `yaml:"geojson,omitempty" json:"-"`

	Start       time.Time `yaml:"start,omitempty" json:"-"`
	End         time.Time `yaml:"end,omitempty" json:"-"`
	Name        string    `yaml:"name" json:"name"`
	Kind        Kind      `yaml:"kind" json:"kind"`
	Source      string    `yaml:"source,omitempty" json:"-"`
	Attribution string    `yaml:"attribution,omitempty" json:"attribution,omitempty"`
	Product     string    `yaml:"product,omitempty" json:"product,omitempty"`
	Aliases     []string  `yaml:"aliases,omitempty" json:"-"`
	Bound       []float64 `yaml:"bound,omitempty" json:"bound,omitempty"` // min lon, min lat, max lon, max lat
	SourceCRS   crs.ID    `yaml:"source_crs,omitempty" json:"source_crs"`
	TargetCRS   crs.ID    `yaml:"target_crs" json:"target_crs"`
	Zoom        int       `yaml:"zoom,omitempty" json:"zoom,omitempty"`
	Limit       int       `yaml:"limit,omitempty" json:"-"`
	Resolution  float64   `yaml:"resolution,omitempty" json:"resolution,omitempty"`
	Width       int       `yaml:"width,omitempty" json:"-"`
	Height      int       `yaml:"height,omitempty" json:"-"`
}

// Area returns the configured lon/lat bound.
func (d Dataset) Area() (orb.Bound, bool) {
	if len(d.Bound) != 4 {
		return orb.Bound{}, false
	}
	return orb.Bound{
		Min: orb.Point{d.Bound[0], d.Bound[1]},
		Max: orb.Point{d.Bound[2], d.Bound[3]},
	}, true
}

// IsTileTemplate reports whether the raster source is a {z}/{x}/{y} URL template.
func (d Dataset) IsTileTemplate() bool {
	return strings.Contains(d.Source, "{z}") || strings.Contains(d.Source, "{x}")
}

// Load reads and parses the YAML configuration file from the specified path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes, normalizes and validates configuration data.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.Repository.URL = os.ExpandEnv(cfg.Repository.URL)
	cfg.Repository.Username = os.ExpandEnv(cfg.Repository.Username)
	cfg.Repository.Password = os.ExpandEnv(cfg.Repository.Password)

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.Sort()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Output == "" {
		c.Output = "data"
	}
	if c.Cache == "" {
		c.Cache = ".cache"
	}
	if c.Repository.Retries == 0 {
		c.Repository.Retries = 3
	}
	if c.Repository.RetryDelay == 0 {
		c.Repository.RetryDelay = 2 * time.Second
	}

	for i := range c.Datasets {
		d := &c.Datasets[i]
		if d.Attribution == "" {
			d.Attribution = c.Attribution
		}
		if d.SourceCRS.IsZero() {
			switch {
			case d.Kind == KindRaster && d.IsTileTemplate():
				d.SourceCRS = crs.WebMercator
			case d.Kind == KindPoints && d.Source == "":
				d.SourceCRS = crs.EPSG(4979)
			default:
				d.SourceCRS = crs.WGS84
			}
		}
	}
}

// Validate checks dataset definitions and CRS codes.
func (c *Config) Validate() error {
	var errs []error
	names := make(map[string]string)

	claim := func(name, owner string) {
		if prev, ok := names[name]; ok {
			errs = append(errs, fmt.Errorf("name %q of %q already used by %q", name, owner, prev))
			return
		}
		names[name] = owner
	}

	for _, g := range c.Grids {
		if g.Source == "" {
			errs = append(errs, fmt.Errorf("grid %q: source is empty", g.Name))
		}
		if _, ok := crs.LookupVertical(g.Code); !ok {
			errs = append(errs, fmt.Errorf("grid %q: %w: vertical code %d", g.Name, crs.ErrUnknownCRS, g.Code))
		}
	}

	for _, d := range c.Datasets {
		if d.Name == "" || strings.ContainsAny(d.Name, `/\`) {
			errs = append(errs, fmt.Errorf("dataset name %q is invalid", d.Name))
			continue
		}
		claim(d.Name, d.Name)
		for _, a := range d.Aliases {
			claim(a, d.Name)
		}

		switch d.Kind {
		case KindVector:
			if d.Source == "" && d.Inline == nil {
				errs = append(errs, fmt.Errorf("dataset %q: vector needs source or geojson", d.Name))
			}
		case KindPoints:
			if d.Source == "" && c.Repository.URL == "" {
				errs = append(errs, fmt.Errorf("dataset %q: points need source or repository", d.Name))
			}
		case KindRaster:
			if d.Source == "" {
				errs = append(errs, fmt.Errorf("dataset %q: raster needs source", d.Name))
			}
			if d.IsTileTemplate() && len(d.Bound) != 4 {
				errs = append(errs, fmt.Errorf("dataset %q: tile source needs bound", d.Name))
			}
		default:
			errs = append(errs, fmt.Errorf("dataset %q: unknown kind %q", d.Name, d.Kind))
		}

		if d.Bound != nil && len(d.Bound) != 4 {
			errs = append(errs, fmt.Errorf("dataset %q: bound needs 4 values", d.Name))
		}
		if !d.End.IsZero() && d.End.Before(d.Start) {
			errs = append(errs, fmt.Errorf("dataset %q: end before start", d.Name))
		}

		if d.TargetCRS.IsZero() {
			errs = append(errs, fmt.Errorf("dataset %q: target_crs is required", d.Name))
		} else if _, err := crs.Lookup(d.TargetCRS); err != nil {
			errs = append(errs, fmt.Errorf("dataset %q: target: %w", d.Name, err))
		}
		if _, err := crs.Lookup(d.SourceCRS); err != nil {
			errs = append(errs, fmt.Errorf("dataset %q: source: %w", d.Name, err))
		}
	}

	return errors.Join(errs...)
}

// Sort orders datasets by index, then name.
func (c *Config) Sort() {
	sort.SliceStable(c.Datasets, func(i, j int) bool {
		idxI, idxJ := 999999, 999999
		if c.Datasets[i].Index != nil {
			idxI = *c.Datasets[i].Index
		}
		if c.Datasets[j].Index != nil {
			idxJ = *c.Datasets[j].Index
		}
		if idxI != idxJ {
			return idxI < idxJ
		}

		return c.Datasets[i].Name < c.Datasets[j].Name
	})
}

// Resolver maps dataset names and aliases to the dataset name.
func (c *Config) Resolver() map[string]string {
	r := make(map[string]string, len(c.Datasets))
	for _, d := range c.Datasets {
		r[d.Name] = d.Name
		for _, a := range d.Aliases {
			r[a] = d.Name
		}
	}
	return r
}

// Dataset finds a dataset by name or alias.
func (c *Config) Dataset(name string) (Dataset, bool) {
	resolved, ok := c.Resolver()[name]
	if !ok {
		return Dataset{}, false
	}
	for _, d := range c.Datasets {
		if d.Name == resolved {
			return d, true
		}
	}
	return Dataset{}, false
}

// GridFor returns the grid registered for a vertical datum code.
func (c *Config) GridFor(code int) (Grid, bool) {
	for _, g := range c.Grids {
		if g.Code == code {
			return g, true
		}
	}
	return Grid{}, false
}
