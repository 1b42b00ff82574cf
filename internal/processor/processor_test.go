package processor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/woozymasta/reproj/internal/altimetry"
	"github.com/woozymasta/reproj/internal/config"
	"github.com/woozymasta/reproj/internal/crs"
	"github.com/woozymasta/reproj/internal/geo"
	"github.com/woozymasta/reproj/internal/raster"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const flatGeoid = `ncols 4
nrows 2
xllcorner -180
yllcorner -90
cellsize 90
NODATA_value -9999
30 30 30 30
30 30 30 30
`

// terrariumTile encodes a constant elevation of 100 m.
func terrariumTile(t *testing.T, size int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 128, G: 100, B: 0, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type upstream struct {
	tile      []byte
	tileHits  atomic.Int32
	searchHit atomic.Int32
}

func (u *upstream) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/tiles/", func(w http.ResponseWriter, r *http.Request) {
		u.tileHits.Add(1)
		// only tile 1/1/0 exists
		if r.URL.Path != "/tiles/1/1/0.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(u.tile)
	})
	mux.HandleFunc("/api/login", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"token":"abc"}`))
	})
	mux.HandleFunc("/api/search", func(w http.ResponseWriter, r *http.Request) {
		u.searchHit.Add(1)
		_, _ = w.Write([]byte(`{"points":[
			{"lon":-50.1,"lat":69.2,"h":1200.5,"beam":"gt1l"},
			{"lon":-50.2,"lat":69.3,"h":1180.0,"beam":"gt2l"}]}`))
	})
	return mux
}

func setup(t *testing.T, datasets string) (*Processor, *config.Config, *upstream) {
	t.Helper()

	up := &upstream{tile: terrariumTile(t, 16)}
	srv := httptest.NewServer(up.handler())
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	gridPath := filepath.Join(dir, "egm.asc")
	require.NoError(t, os.WriteFile(gridPath, []byte(flatGeoid), 0644))

	doc := fmt.Sprintf(`
output: %s
cache: %s
grids:
  - name: egm2008
    code: 3855
    source: %s
repository:
  url: %s/api
  username: u
  password: p
  retries: 1
  retry_delay: 1ms
datasets:
%s`, filepath.Join(dir, "out"), filepath.Join(dir, "cache"), gridPath, srv.URL,
		strings.ReplaceAll(datasets, "{{server}}", srv.URL))

	cfg, err := config.Parse([]byte(doc))
	require.NoError(t, err)

	return New(srv.Client(), cfg, Options{Concurrency: 4}), cfg, up
}

const inlineVector = `
  - name: cities
    kind: vector
    target_crs: EPSG:3857
    geojson:
      type: FeatureCollection
      features:
        - type: Feature
          properties: {name: Berlin}
          geometry: {type: Point, coordinates: [13.4, 52.5]}
        - type: Feature
          properties: {name: Pole}
          geometry: {type: Point, coordinates: [0, 90]}
`

func TestProcessVector(t *testing.T) {
	p, cfg, _ := setup(t, inlineVector)
	ctx := context.Background()

	res, err := p.Process(ctx, cfg.Datasets[0])
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, 2, res.Output)
	require.Len(t, res.Files, 2)

	f, err := os.Open(res.Files[0])
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	c, err := geo.Load(f, crs.ID{})
	require.NoError(t, err)
	assert.Equal(t, crs.WebMercator, c.CRS)
	berlin := c.Features.Features[0].Geometry.(orb.Point)
	assert.InDelta(t, 1491681.0, berlin[0], 1)

	// second run keeps existing outputs
	res, err = p.Process(ctx, cfg.Datasets[0])
	require.NoError(t, err)
	assert.True(t, res.Skipped)
}

func TestProcessVectorPlotFormat(t *testing.T) {
	p, cfg, _ := setup(t, inlineVector)
	p.opts.PlotFormat = "svg"

	res, err := p.Process(context.Background(), cfg.Datasets[0])
	require.NoError(t, err)
	require.Len(t, res.Files, 2)
	assert.Equal(t, ".svg", filepath.Ext(res.Files[1]))

	data, err := os.ReadFile(res.Files[1])
	require.NoError(t, err)
	assert.Contains(t, string(data), "<svg")
}

func TestFastCheckSkipsExistingDirectory(t *testing.T) {
	p, cfg, _ := setup(t, inlineVector)
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.Output, "cities"), 0755))

	p.opts.FastCheck = true
	res, err := p.Process(context.Background(), cfg.Datasets[0])
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Empty(t, res.Files)
}

func TestProcessPointsFromRepository(t *testing.T) {
	p, cfg, up := setup(t, `
  - name: glacier
    kind: points
    product: ATL06
    bound: [-51, 69, -50, 70]
    target_crs: EPSG:32622+3855
`)

	res, err := p.Process(context.Background(), cfg.Datasets[0])
	require.NoError(t, err)
	assert.Equal(t, 2, res.Output)
	assert.Equal(t, int32(1), up.searchHit.Load())
	require.Len(t, res.Files, 3)

	f, err := os.Open(res.Files[0])
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	cloud, err := altimetry.ReadCSV(f, crs.MustParse("EPSG:32622+3855"))
	require.NoError(t, err)
	require.Len(t, cloud.Points, 2)
	assert.InDelta(t, 1170.5, cloud.Points[0].Height, 1e-3)
	assert.Equal(t, "gt1l", cloud.Points[0].Beam)
}

func TestProcessPointsMissingGrid(t *testing.T) {
	p, cfg, up := setup(t, `
  - name: glacier
    kind: points
    target_crs: EPSG:32622+5773
`)

	_, err := p.Process(context.Background(), cfg.Datasets[0])
	assert.ErrorIs(t, err, crs.ErrMissingGrid)
	assert.Equal(t, int32(0), up.searchHit.Load())
}

func TestProcessRasterMissingGrid(t *testing.T) {
	p, cfg, up := setup(t, `
  - name: terrain
    kind: raster
    source: "{{server}}/tiles/{z}/{x}/{y}.png"
    zoom: 1
    bound: [10, 10, 170, 80]
    target_crs: EPSG:4326+5773
`)

	_, err := p.Process(context.Background(), cfg.Datasets[0])
	assert.ErrorIs(t, err, crs.ErrMissingGrid)
	assert.Equal(t, int32(0), up.tileHits.Load())
}

func TestProcessRasterFromTiles(t *testing.T) {
	p, cfg, up := setup(t, `
  - name: terrain
    kind: raster
    source: "{{server}}/tiles/{z}/{x}/{y}.png"
    zoom: 1
    bound: [10, 10, 170, 80]
    target_crs: EPSG:4326
`)

	res, err := p.Process(context.Background(), cfg.Datasets[0])
	require.NoError(t, err)
	require.Len(t, res.Files, 4)
	assert.Greater(t, res.Output, 0)

	f, err := os.Open(res.Files[0])
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	g, err := raster.ReadASCII(f, crs.WGS84)
	require.NoError(t, err)
	st := g.Stats(0)
	assert.InDelta(t, 100, st.Min, 1e-6)
	assert.InDelta(t, 100, st.Max, 1e-6)

	// tiles come from the cache on a rerun
	hits := up.tileHits.Load()
	require.NoError(t, os.Remove(res.Files[0]))
	_, err = p.Process(context.Background(), cfg.Datasets[0])
	require.NoError(t, err)
	assert.Equal(t, hits, up.tileHits.Load())
}

func TestFetchTerrainMissingTiles(t *testing.T) {
	up := &upstream{tile: terrariumTile(t, 8)}
	srv := httptest.NewServer(up.handler())
	defer srv.Close()

	g, err := FetchTerrain(context.Background(), srv.Client(), TerrainRequest{
		URLTemplate: srv.URL + "/tiles/{z}/{x}/{y}.png",
		Bound:       orb.Bound{Min: orb.Point{-170, -80}, Max: orb.Point{170, 80}},
		Zoom:        1,
	})
	require.NoError(t, err)
	assert.Equal(t, 16, g.Width)
	assert.Equal(t, 16, g.Height)
	assert.Equal(t, crs.WebMercator, g.CRS)

	// 1/1/0 is the upper right quadrant
	assert.Equal(t, 100.0, g.At(0, 12, 2))
	assert.False(t, g.Valid(g.At(0, 2, 2)))
	assert.False(t, g.Valid(g.At(0, 12, 12)))
	assert.Equal(t, 64, g.Stats(0).Valid)

	x, y := g.Transform.Apply(0, 0)
	assert.InDelta(t, -MercatorHalfWorld, x, 1e-6)
	assert.InDelta(t, MercatorHalfWorld, y, 1e-6)

	_, err = FetchTerrain(context.Background(), srv.Client(), TerrainRequest{
		URLTemplate: srv.URL + "/tiles/{z}/{x}/{y}.png",
		Bound:       orb.Bound{Min: orb.Point{-170, -80}, Max: orb.Point{-10, -10}},
		Zoom:        1,
	})
	assert.Error(t, err)
}

func TestTerrarium(t *testing.T) {
	h, ok := Terrarium(color.NRGBA{R: 128, G: 0, B: 128, A: 255})
	assert.True(t, ok)
	assert.Equal(t, 0.5, h)

	h, ok = Terrarium(color.NRGBA{R: 0, G: 0, B: 0, A: 255})
	assert.True(t, ok)
	assert.Equal(t, -32768.0, h)

	_, ok = Terrarium(color.NRGBA{})
	assert.False(t, ok)
}

func TestCoverTiles(t *testing.T) {
	tiles := CoverTiles(orb.Bound{Min: orb.Point{-170, -80}, Max: orb.Point{170, 80}}, 1)
	assert.Equal(t, []TileCoordinate{{1, 0, 0}, {1, 1, 0}, {1, 0, 1}, {1, 1, 1}}, tiles)

	b := TileCoordinate{Z: 1, X: 1, Y: 0}.Bound()
	assert.Equal(t, orb.Point{0, 0}, b.Min)
	assert.InDelta(t, MercatorHalfWorld, b.Max[0], 1e-6)
}

func TestBuildURL(t *testing.T) {
	c := TileCoordinate{Z: 3, X: 2, Y: 1}
	assert.Equal(t, "https://t/3/2/1.png", buildURL("https://t/{z}/{x}/{y}.png", c))
	assert.Equal(t, "https://t/3/2/6.png", buildURL("https://t/{z}/{x}/{tms_y}.png", c))
}

func TestResolveGeoids(t *testing.T) {
	p, _, _ := setup(t, inlineVector)
	ctx := context.Background()

	opts, err := p.ResolveGeoids(ctx, crs.WGS84, crs.WGS84)
	require.NoError(t, err)
	assert.Empty(t, opts)

	opts, err = p.ResolveGeoids(ctx, crs.EPSG(4979), crs.MustParse("EPSG:4326+3855"))
	require.NoError(t, err)
	assert.Len(t, opts, 1)

	_, err = p.ResolveGeoids(ctx, crs.MustParse("EPSG:4326+5773"), crs.WGS84)
	assert.ErrorIs(t, err, crs.ErrMissingGrid)
}
