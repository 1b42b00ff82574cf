package render

import (
	"bytes"
	"image/png"
	"testing"
	"time"

	"github.com/woozymasta/reproj/internal/altimetry"
	"github.com/woozymasta/reproj/internal/crs"
	"github.com/woozymasta/reproj/internal/geo"
	"github.com/woozymasta/reproj/internal/raster"

	"github.com/chai2010/webp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/plot/vg"
)

func TestCollectionPNG(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.Polygon{{{10, 40}, {12, 40}, {12, 41}, {10, 41}, {10, 40}}}))
	fc.Append(geojson.NewFeature(orb.MultiLineString{{{10, 40}, {11, 40.5}}}))
	fc.Append(geojson.NewFeature(orb.Point{11, 40.5}))

	var buf bytes.Buffer
	err := Collection(&buf, geo.NewCollection(crs.WGS84, fc), Options{Title: "countries", Width: 4 * vg.Inch})
	require.NoError(t, err)

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	// height follows the 2:1 bound
	assert.Greater(t, img.Bounds().Dx(), img.Bounds().Dy())
}

func TestCollectionSVG(t *testing.T) {
	var buf bytes.Buffer
	err := Collection(&buf, geo.NewCollection(crs.WGS84, nil), Options{Format: FormatOf("out.svg")})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "<svg")
}

func TestPointsPNG(t *testing.T) {
	cloud := &altimetry.Cloud{
		CRS: crs.EPSG(4979),
		Points: []altimetry.Point{
			{X: -50.1, Y: 69.2, Height: 1200, Time: time.Now()},
			{X: -50.2, Y: 69.3, Height: 1150},
			{X: -50.3, Y: 69.1, Height: 1100},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Points(&buf, cloud, Options{}))
	_, err := png.Decode(&buf)
	assert.NoError(t, err)
}

func TestFlatten(t *testing.T) {
	lines, points := flatten(orb.Collection{
		orb.MultiPoint{{0, 0}, {1, 1}},
		orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}, {}},
	})
	assert.Len(t, points, 2)
	assert.Len(t, lines, 1)
}

func TestPreviewScales(t *testing.T) {
	g, err := raster.New(40, 20, 1, raster.NorthUp(0, 20, 1, 1), crs.WGS84, raster.DefaultNoData)
	require.NoError(t, err)
	for row := 0; row < 20; row++ {
		for col := 0; col < 40; col++ {
			if col > 0 {
				g.Set(0, col, row, float64(col*row))
			}
		}
	}

	var buf bytes.Buffer
	require.NoError(t, Preview(&buf, g, 0, 10))

	img, err := webp.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 10, img.Bounds().Dx())
	assert.Equal(t, 5, img.Bounds().Dy())
}

func TestImageTransparentNoData(t *testing.T) {
	g, err := raster.New(2, 1, 1, raster.NorthUp(0, 1, 1, 1), crs.WGS84, raster.DefaultNoData)
	require.NoError(t, err)
	g.Set(0, 1, 0, 5)

	img := g.Image(0, HeightMap())
	assert.Equal(t, uint8(0), img.NRGBAAt(0, 0).A)
	assert.Equal(t, uint8(255), img.NRGBAAt(1, 0).A)
}
