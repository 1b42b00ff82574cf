// Package processor runs datasets through acquisition, reprojection and output.
package processor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/woozymasta/reproj/internal/altimetry"
	"github.com/woozymasta/reproj/internal/config"
	"github.com/woozymasta/reproj/internal/crs"
	"github.com/woozymasta/reproj/internal/geoid"

	"github.com/rs/zerolog/log"
)

// Options tune a pipeline run.
type Options struct {
	Concurrency int
	Force       bool   // overwrite existing outputs
	FastCheck   bool   // skip datasets whose output directory exists
	PlotFormat  string // png, svg or pdf; defaults to png
}

// Result describes the outcome for one dataset.
type Result struct {
	Dataset string   `json:"dataset"`
	Files   []string `json:"files,omitempty"`
	Input   int      `json:"input"`
	Output  int      `json:"output"`
	Dropped int      `json:"dropped"`
	Skipped bool     `json:"skipped,omitempty"`
}

// Processor holds shared clients and loaded geoid grids.
type Processor struct {
	client *http.Client
	cfg    *config.Config
	repo   *altimetry.Client
	geoids map[int]*geoid.Model
	opts   Options
	mu     sync.Mutex
}

// New creates a processor for cfg.
func New(client *http.Client, cfg *config.Config, opts Options) *Processor {
	if opts.Concurrency <= 0 {
		opts.Concurrency = cfg.Concurrency
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}

	return &Processor{
		client: client,
		cfg:    cfg,
		opts:   opts,
		geoids: make(map[int]*geoid.Model),
	}
}

// Process dispatches a dataset to the pipeline for its kind.
func (p *Processor) Process(ctx context.Context, d config.Dataset) (Result, error) {
	dir := p.datasetDir(d)
	if p.opts.FastCheck && !p.opts.Force {
		if _, err := os.Stat(dir); err == nil {
			log.Info().
				Str("dataset", d.Name).
				Msg("Output directory exists, skipping (fast-check)")
			return Result{Dataset: d.Name, Skipped: true}, nil
		}
	}

	switch d.Kind {
	case config.KindVector:
		return p.ProcessVector(ctx, d)
	case config.KindPoints:
		return p.ProcessPoints(ctx, d)
	case config.KindRaster:
		return p.ProcessRaster(ctx, d)
	default:
		return Result{Dataset: d.Name}, fmt.Errorf("unknown dataset kind %q", d.Kind)
	}
}

// Transformer builds the dataset's transform with any geoid grids it needs.
func (p *Processor) Transformer(ctx context.Context, src, dst crs.ID) (*crs.Transformer, error) {
	opts, err := p.ResolveGeoids(ctx, src, dst)
	if err != nil {
		return nil, err
	}
	return crs.NewTransformer(src, dst, opts...)
}

// ResolveGeoids loads the configured grids for the vertical datums of a CRS
// pair. A datum without a configured grid is reported as crs.ErrMissingGrid.
func (p *Processor) ResolveGeoids(ctx context.Context, src, dst crs.ID) ([]crs.Option, error) {
	if src.Vertical == dst.Vertical {
		return nil, nil
	}

	var opts []crs.Option
	for _, code := range []int{src.Vertical, dst.Vertical} {
		if code == 0 {
			continue
		}
		model, err := p.geoid(ctx, code)
		if err != nil {
			return nil, err
		}
		opts = append(opts, crs.WithGeoid(code, model))
	}
	return opts, nil
}

func (p *Processor) geoid(ctx context.Context, code int) (*geoid.Model, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if m, ok := p.geoids[code]; ok {
		return m, nil
	}

	g, ok := p.cfg.GridFor(code)
	if !ok {
		return nil, fmt.Errorf("%w: no grid configured for EPSG:%d", crs.ErrMissingGrid, code)
	}

	m, err := geoid.Load(ctx, p.client, g.Name, g.Source, p.cfg.Cache)
	if err != nil {
		return nil, err
	}
	p.geoids[code] = m
	return m, nil
}

func (p *Processor) repository() *altimetry.Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.repo == nil {
		r := p.cfg.Repository
		p.repo = altimetry.NewClient(p.client, r.URL,
			altimetry.Credentials{Username: r.Username, Password: r.Password},
			altimetry.WithRetries(r.Retries, r.RetryDelay))
	}
	return p.repo
}

func (p *Processor) datasetDir(d config.Dataset) string {
	return filepath.Join(p.cfg.Output, d.Name)
}

// plotPath returns the path of the dataset plot in the configured format.
func (p *Processor) plotPath(d config.Dataset) string {
	format := p.opts.PlotFormat
	if format == "" {
		format = "png"
	}
	return p.outputPath(d, "."+format)
}

// outputPath returns the path of a dataset output file.
func (p *Processor) outputPath(d config.Dataset, ext string) string {
	return filepath.Join(p.datasetDir(d), d.Name+ext)
}

// exists reports whether a non-empty output is already present.
func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

// writeFile creates path and its directory and hands the file to write.
func writeFile(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tmp := path + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func isRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// fetch reads a local file or downloads a URL.
func fetch(ctx context.Context, client *http.Client, source string) ([]byte, error) {
	if !isRemote(source) {
		return os.ReadFile(source)
	}

	log.Info().Str("url", source).Msg("Downloading source")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed: %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
