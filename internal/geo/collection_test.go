package geo

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/woozymasta/reproj/internal/crs"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const countries = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"name": "Square"},
     "geometry": {"type": "Polygon", "coordinates": [[[10,40],[11,40],[11,41],[10,41],[10,40]]]}},
    {"type": "Feature", "properties": {"name": "Pole"},
     "geometry": {"type": "Point", "coordinates": [0, -90]}}
  ]
}`

func TestDecodeDefaultsToCRS84(t *testing.T) {
	c, err := Decode([]byte(countries), crs.ID{})
	require.NoError(t, err)
	assert.Equal(t, crs.WGS84, c.CRS)
	assert.Len(t, c.Features.Features, 2)
}

func TestDecodeNamedCRS(t *testing.T) {
	doc := `{"type":"FeatureCollection","crs":{"type":"name","properties":{"name":"urn:ogc:def:crs:EPSG::3857"}},"features":[]}`
	c, err := Decode([]byte(doc), crs.WGS84)
	require.NoError(t, err)
	assert.Equal(t, crs.WebMercator, c.CRS)
	assert.NotContains(t, c.Features.ExtraMembers, "crs")

	_, err = Decode([]byte(`{"type":"FeatureCollection","crs":{"type":"link"},"features":[]}`), crs.WGS84)
	assert.ErrorIs(t, err, crs.ErrUnknownCRS)
}

func TestReprojectToMercatorClampsPoles(t *testing.T) {
	c, err := Decode([]byte(countries), crs.WGS84)
	require.NoError(t, err)

	tr, err := crs.NewTransformer(crs.WGS84, crs.WebMercator)
	require.NoError(t, err)

	out, report, err := c.Reproject(tr)
	require.NoError(t, err)
	assert.Equal(t, Report{Features: 2, Transformed: 2}, report)
	assert.Equal(t, crs.WebMercator, out.CRS)

	pole := out.Features.Features[1].Geometry.(orb.Point)
	assert.InDelta(t, -20037508.34, pole[1], 1)

	// input untouched
	sq := c.Features.Features[0].Geometry.(orb.Polygon)
	assert.Equal(t, orb.Point{10, 40}, sq[0][0])
	assert.Equal(t, crs.WGS84, c.CRS)
}

func TestReprojectDropsOutOfDomain(t *testing.T) {
	c, err := Decode([]byte(countries), crs.WGS84)
	require.NoError(t, err)

	c.Features.Features[1].Geometry = orb.Point{0, math.NaN()}

	tr, err := crs.NewTransformer(crs.WGS84, crs.EPSG(32632))
	require.NoError(t, err)

	out, report, err := c.Reproject(tr)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Dropped)
	assert.Len(t, out.Features.Features, 1)
	assert.Equal(t, "Square", out.Features.Features[0].Properties.MustString("name"))
}

func TestReprojectRoundTrip(t *testing.T) {
	c, err := Decode([]byte(countries), crs.WGS84)
	require.NoError(t, err)
	c.Features.Features = c.Features.Features[:1]

	tr, err := crs.NewTransformer(crs.WGS84, crs.EPSG(32632))
	require.NoError(t, err)

	utm, _, err := c.Reproject(tr)
	require.NoError(t, err)
	back, _, err := utm.Reproject(tr.Inverse())
	require.NoError(t, err)

	want := c.Features.Features[0].Geometry.(orb.Polygon)
	got := back.Features.Features[0].Geometry.(orb.Polygon)
	for i := range want[0] {
		assert.InDelta(t, want[0][i][0], got[0][i][0], 1e-6)
		assert.InDelta(t, want[0][i][1], got[0][i][1], 1e-6)
	}
}

func TestReprojectWrongSource(t *testing.T) {
	c, err := Decode([]byte(countries), crs.WGS84)
	require.NoError(t, err)

	tr, err := crs.NewTransformer(crs.WebMercator, crs.WGS84)
	require.NoError(t, err)

	_, _, err = c.Reproject(tr)
	assert.Error(t, err)
}

func TestEncodeWritesCRSMember(t *testing.T) {
	c, err := Decode([]byte(countries), crs.WGS84)
	require.NoError(t, err)

	data, err := c.Encode()
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"crs"`)

	c.CRS = crs.EPSG(32633)
	data, err = c.Encode()
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Contains(t, doc, "crs")

	back, err := Decode(data, crs.ID{})
	require.NoError(t, err)
	assert.Equal(t, crs.EPSG(32633), back.CRS)
}

func TestBound(t *testing.T) {
	c, err := Decode([]byte(countries), crs.WGS84)
	require.NoError(t, err)

	b := c.Bound()
	assert.Equal(t, orb.Point{0, -90}, b.Min)
	assert.Equal(t, orb.Point{11, 41}, b.Max)
}
