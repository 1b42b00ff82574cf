// Package geoid provides geoid undulation models used for vertical datum shifts.
package geoid

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/woozymasta/reproj/internal/crs"
	"github.com/woozymasta/reproj/internal/raster"

	"github.com/rs/zerolog/log"
)

// Model samples undulations from a geographic grid (lon/lat degrees, metres).
type Model struct {
	grid *raster.Grid
	inv  raster.GeoTransform
	name string
}

// NewModel wraps a grid in EPSG:4326.
func NewModel(name string, g *raster.Grid) (*Model, error) {
	if g.CRS.Code != crs.WGS84.Code {
		return nil, fmt.Errorf("geoid grid %s must be in %s, got %s", name, crs.WGS84, g.CRS)
	}
	inv, err := g.Transform.Invert()
	if err != nil {
		return nil, err
	}
	return &Model{grid: g, inv: inv, name: name}, nil
}

// Name returns the grid name.
func (m *Model) Name() string {
	return m.name
}

// Grid returns the underlying raster.
func (m *Model) Grid() *raster.Grid {
	return m.grid
}

// Undulation returns N at lon/lat. Longitudes are wrapped into the grid's
// range so global grids starting at 0 or -180 both work.
func (m *Model) Undulation(lon, lat float64) (float64, error) {
	b := m.grid.Bounds()
	if b.Max[0]-b.Min[0] >= 359.999 {
		for lon < b.Min[0] {
			lon += 360
		}
		for lon >= b.Max[0] {
			lon -= 360
		}
	}

	col, row := m.inv.Apply(lon, lat)
	v, ok := m.grid.Bilinear(0, col, row)
	if !ok {
		return 0, fmt.Errorf("%w: (%g, %g) outside grid %s", crs.ErrMissingGrid, lon, lat, m.name)
	}
	return v, nil
}

// Constant is a model with the same undulation everywhere.
type Constant float64

// Undulation returns the constant.
func (c Constant) Undulation(lon, lat float64) (float64, error) {
	if math.IsNaN(float64(c)) {
		return 0, crs.ErrMissingGrid
	}
	return float64(c), nil
}

// Load reads an ESRI ASCII geoid grid from a local path or URL. Remote grids
// are downloaded once into cacheDir. Any failure wraps crs.ErrMissingGrid.
func Load(ctx context.Context, client *http.Client, name, source, cacheDir string) (*Model, error) {
	path := source
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		path = filepath.Join(cacheDir, "grids", name+".asc")
		if err := fetch(ctx, client, source, path); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", crs.ErrMissingGrid, name, err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", crs.ErrMissingGrid, name, err)
	}
	defer func() { _ = f.Close() }()

	g, err := raster.ReadASCII(f, crs.WGS84)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", crs.ErrMissingGrid, name, err)
	}

	log.Debug().
		Str("grid", name).
		Int("width", g.Width).
		Int("height", g.Height).
		Msg("Geoid grid loaded")

	return NewModel(name, g)
}

func fetch(ctx context.Context, client *http.Client, url, path string) error {
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		return nil
	}

	log.Info().Str("url", url).Msg("Downloading geoid grid")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tmp := path + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	return os.Rename(tmp, path)
}
