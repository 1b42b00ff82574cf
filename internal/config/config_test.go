package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/woozymasta/reproj/internal/crs"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
attribution: Natural Earth
grids:
  - name: egm2008
    code: 3855
    source: grids/egm2008.asc
repository:
  url: https://altimetry.example.org/api
  username: ${REPROJ_TEST_USER}
  password: ${REPROJ_TEST_PASSWORD}
datasets:
  - name: countries
    kind: vector
    source: https://example.org/countries.geojson
    target_crs: EPSG:3857
    aliases: [world]
    index: 2
  - name: glacier
    kind: points
    product: ATL06
    bound: [-51, 69, -50, 70]
    start: 2019-05-01T00:00:00Z
    end: 2019-06-01T00:00:00Z
    target_crs: EPSG:32622+3855
    index: 1
  - name: terrain
    kind: raster
    source: https://tiles.example.org/terrarium/{z}/{x}/{y}.png
    zoom: 8
    bound: [126.5, 37, 127.5, 38]
    target_crs: 5186
`

func TestParse(t *testing.T) {
	t.Setenv("REPROJ_TEST_USER", "alice")
	t.Setenv("REPROJ_TEST_PASSWORD", "s3cret")

	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "data", cfg.Output)
	assert.Equal(t, uint(3), cfg.Repository.Retries)
	assert.Equal(t, 2*time.Second, cfg.Repository.RetryDelay)
	assert.Equal(t, "alice", cfg.Repository.Username)
	assert.Equal(t, "s3cret", cfg.Repository.Password)

	require.Len(t, cfg.Datasets, 3)
	// sorted by index, then name
	assert.Equal(t, "glacier", cfg.Datasets[0].Name)
	assert.Equal(t, "countries", cfg.Datasets[1].Name)
	assert.Equal(t, "terrain", cfg.Datasets[2].Name)

	glacier := cfg.Datasets[0]
	assert.Equal(t, crs.EPSG(4979), glacier.SourceCRS)
	assert.Equal(t, crs.MustParse("EPSG:32622+3855"), glacier.TargetCRS)
	assert.Equal(t, "Natural Earth", glacier.Attribution)
	area, ok := glacier.Area()
	require.True(t, ok)
	assert.Equal(t, orb.Point{-51, 69}, area.Min)

	terrain := cfg.Datasets[2]
	assert.True(t, terrain.IsTileTemplate())
	assert.Equal(t, crs.WebMercator, terrain.SourceCRS)
	assert.Equal(t, crs.EPSG(5186), terrain.TargetCRS)

	g, ok := cfg.GridFor(3855)
	require.True(t, ok)
	assert.Equal(t, "egm2008", g.Name)
	_, ok = cfg.GridFor(5773)
	assert.False(t, ok)
}

func TestDatasetByAlias(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	d, ok := cfg.Dataset("world")
	require.True(t, ok)
	assert.Equal(t, "countries", d.Name)

	_, ok = cfg.Dataset("nope")
	assert.False(t, ok)
}

func TestParseRejectsBadCRSSyntax(t *testing.T) {
	_, err := Parse([]byte(`
datasets:
  - name: a
    kind: vector
    source: a.geojson
    target_crs: ESRI:102100
`))
	assert.ErrorIs(t, err, crs.ErrUnknownCRS)
}

func TestValidate(t *testing.T) {
	_, err := Parse([]byte(`
grids:
  - name: bad
    code: 1234
    source: x.asc
datasets:
  - name: a
    kind: vector
    target_crs: EPSG:99999
  - name: b
    kind: raster
    source: https://t/{z}/{x}/{y}.png
    target_crs: EPSG:3857
    aliases: [a]
  - name: c
    kind: mesh
    target_crs: EPSG:3857
  - name: d
    kind: points
`))
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `grid "bad"`)
	assert.Contains(t, msg, "vector needs source")
	assert.Contains(t, msg, "EPSG:99999")
	assert.Contains(t, msg, "tile source needs bound")
	assert.Contains(t, msg, `already used by "a"`)
	assert.Contains(t, msg, `unknown kind "mesh"`)
	assert.Contains(t, msg, "points need source or repository")
	assert.Contains(t, msg, "target_crs is required")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Datasets, 3)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
