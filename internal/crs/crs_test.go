package crs

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wroge/wgs84"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want ID
	}{
		{"EPSG:4326", EPSG(4326)},
		{"epsg:3857", EPSG(3857)},
		{" 32633 ", EPSG(32633)},
		{"urn:ogc:def:crs:EPSG::3857", EPSG(3857)},
		{"urn:ogc:def:crs:EPSG:6.6:25832", EPSG(25832)},
		{"OGC:CRS84", WGS84},
		{"EPSG:4326+3855", ID{Authority: AuthorityEPSG, Code: 4326, Vertical: 3855}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseInvalid(t *testing.T) {
	for _, in := range []string{"", "ESRI:102100", "EPSG:abc", "EPSG:4326+x", "-1"} {
		_, err := Parse(in)
		assert.ErrorIs(t, err, ErrUnknownCRS, in)
	}
}

func TestIDString(t *testing.T) {
	assert.Equal(t, "EPSG:4326", WGS84.String())
	assert.Equal(t, "EPSG:4326+3855", MustParse("4326+3855").String())
	assert.Equal(t, "urn:ogc:def:crs:EPSG::3857", WebMercator.URN())
	assert.Equal(t, "", ID{}.String())
}

func TestUnknownCodeFailsImmediately(t *testing.T) {
	_, err := NewTransformer(WGS84, EPSG(27700))
	assert.True(t, errors.Is(err, ErrUnknownCRS))

	_, err = NewTransformer(ID{Code: 4326, Vertical: 9999}, WGS84)
	assert.ErrorIs(t, err, ErrUnknownCRS)
}

func TestWebMercator(t *testing.T) {
	tr, err := NewTransformer(WGS84, WebMercator)
	require.NoError(t, err)

	x, y, err := tr.Transform(14.1, 62.3)
	require.NoError(t, err)
	assert.InDelta(t, 1569604.8201851572, x, 1e-2)
	assert.InDelta(t, 8930630.669201756, y, 1e-2)

	lon, lat, err := tr.Inverse().Transform(x, y)
	require.NoError(t, err)
	assert.InDelta(t, 14.1, lon, 1e-7)
	assert.InDelta(t, 62.3, lat, 1e-7)
}

func TestWebMercatorPoleIsOutOfDomain(t *testing.T) {
	tr, err := NewTransformer(WGS84, WebMercator)
	require.NoError(t, err)

	_, _, err = tr.Transform(0, 90)
	assert.ErrorIs(t, err, ErrOutOfDomain)
}

func TestUTMCentralMeridian(t *testing.T) {
	tr, err := NewTransformer(WGS84, EPSG(32633))
	require.NoError(t, err)

	x, y, err := tr.Transform(15, 0)
	require.NoError(t, err)
	assert.InDelta(t, 500000, x, 1e-3)
	assert.InDelta(t, 0, y, 1e-3)

	south, err := NewTransformer(WGS84, EPSG(32733))
	require.NoError(t, err)
	_, y, err = south.Transform(15, -0.0000001)
	require.NoError(t, err)
	assert.InDelta(t, 10000000, y, 1)
}

func TestRoundTrip(t *testing.T) {
	pairs := []struct {
		src, dst ID
		lon, lat float64
	}{
		{WGS84, EPSG(32633), 16.37, 48.21},
		{WGS84, EPSG(25832), 9.99, 53.55},
		{WGS84, EPSG(5186), 127.02, 37.5},
		{WGS84, EPSG(32719), -70.6, -33.45},
		{WGS84, EPSG(900913), -122.4, 37.8},
	}

	for _, p := range pairs {
		t.Run(p.dst.String(), func(t *testing.T) {
			fwd, err := NewTransformer(p.src, p.dst)
			require.NoError(t, err)

			x, y, err := fwd.Transform(p.lon, p.lat)
			require.NoError(t, err)

			lon, lat, err := fwd.Inverse().Transform(x, y)
			require.NoError(t, err)
			assert.InDelta(t, p.lon, lon, 1e-6)
			assert.InDelta(t, p.lat, lat, 1e-6)
		})
	}
}

func TestProjectedToProjected(t *testing.T) {
	tr, err := NewTransformer(EPSG(32633), WebMercator)
	require.NoError(t, err)

	x, y, err := tr.Transform(500000, 0)
	require.NoError(t, err)
	assert.InDelta(t, 15*math.Pi/180*6378137, x, 1e-2)
	assert.InDelta(t, 0, y, 1e-2)
}

type constantGeoid float64

func (c constantGeoid) Undulation(lon, lat float64) (float64, error) {
	return float64(c), nil
}

func TestVerticalShift(t *testing.T) {
	src := MustParse("EPSG:4979")
	dst := MustParse("EPSG:4326+3855")

	_, err := NewTransformer(src, dst)
	require.NoError(t, err)

	noGrid, _ := NewTransformer(src, dst)
	_, _, _, err = noGrid.Transform3D(10, 50, 100)
	assert.ErrorIs(t, err, ErrMissingGrid)

	// horizontal-only transforms never need the grid
	_, _, err = noGrid.Transform(10, 50)
	assert.NoError(t, err)

	tr, err := NewTransformer(src, dst, WithGeoid(3855, constantGeoid(47.5)))
	require.NoError(t, err)

	lon, lat, h, err := tr.Transform3D(10, 50, 100)
	require.NoError(t, err)
	assert.InDelta(t, 10, lon, 1e-9)
	assert.InDelta(t, 50, lat, 1e-9)
	assert.InDelta(t, 52.5, h, 1e-6)

	_, _, back, err := tr.Inverse().Transform3D(lon, lat, h)
	require.NoError(t, err)
	assert.InDelta(t, 100, back, 1e-6)
}

func TestUTMZone(t *testing.T) {
	assert.Equal(t, EPSG(32633), UTMZone(15, 48))
	assert.Equal(t, EPSG(32719), UTMZone(-70.6, -33.4))
	assert.Equal(t, EPSG(32660), UTMZone(180, 10))
	assert.Equal(t, EPSG(32601), UTMZone(-180, 10))
}

func TestDefinitionsSorted(t *testing.T) {
	defs := Definitions()
	require.NotEmpty(t, defs)
	for i := 1; i < len(defs); i++ {
		assert.Less(t, defs[i-1].Code, defs[i].Code)
	}

	def, err := Lookup(EPSG(32633))
	require.NoError(t, err)
	assert.Equal(t, "WGS 84 / UTM zone 33N", def.Name)
	assert.True(t, def.Contains(16, 48))
	assert.False(t, def.Contains(30, 48))
}

func TestCovers(t *testing.T) {
	tr, err := NewTransformer(WebMercator, EPSG(32633))
	require.NoError(t, err)

	vienna := []float64{1822285.0, 6141880.0}
	paris := []float64{261600.0, 6250000.0}
	assert.True(t, tr.Covers(vienna[0], vienna[1]))
	assert.False(t, tr.Covers(paris[0], paris[1]))
	assert.False(t, tr.Covers(math.NaN(), 0))
}

func TestTransverseMercatorInverseAcrossZone(t *testing.T) {
	p := transverseMercator{lon0: 15, scale: 0.9996, east0: 500000}
	s := wgs84.WGS84()

	for lat := -80.0; lat <= 84; lat += 8 {
		for lon := 12.0; lon <= 18; lon += 1.5 {
			x, y := p.FromLonLat(lon, lat, s)
			gotLon, gotLat := p.ToLonLat(x, y, s)
			assert.InDelta(t, lon, gotLon, 1e-9, "lon at %g,%g", lon, lat)
			assert.InDelta(t, lat, gotLat, 1e-9, "lat at %g,%g", lon, lat)
		}
	}
}

func TestUTMInverseAwayFromMeridian(t *testing.T) {
	tr, err := NewTransformer(EPSG(32633), WGS84)
	require.NoError(t, err)

	// 16.37E 48.21N projected in zone 33N
	fwd, err := NewTransformer(WGS84, EPSG(32633))
	require.NoError(t, err)
	x, y, err := fwd.Transform(16.37, 48.21)
	require.NoError(t, err)

	lon, lat, err := tr.Transform(x, y)
	require.NoError(t, err)
	assert.InDelta(t, 16.37, lon, 1e-7)
	assert.InDelta(t, 48.21, lat, 1e-7)
}
