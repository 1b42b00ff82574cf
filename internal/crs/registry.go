package crs

import (
	"fmt"
	"sort"

	"github.com/paulmach/orb"
	"github.com/wroge/wgs84"
)

// Unit of the horizontal axes.
type Unit string

const (
	Degree Unit = "degree"
	Metre  Unit = "metre"
)

// Definition describes a registered horizontal CRS.
type Definition struct {
	Name       string    `json:"name" yaml:"name"`
	Unit       Unit      `json:"unit" yaml:"unit"`
	Area       orb.Bound `json:"-" yaml:"-"`
	Code       int       `json:"code" yaml:"code"`
	Geographic bool      `json:"geographic" yaml:"geographic"`

	// maxLat limits the latitudes a projection accepts, 0 means no limit.
	maxLat float64
}

// ID returns the identifier of the definition.
func (d Definition) ID() ID {
	return EPSG(d.Code)
}

// Contains reports whether lon/lat lies inside the area of use.
func (d Definition) Contains(lon, lat float64) bool {
	return d.Area.Contains(orb.Point{lon, lat})
}

// VerticalDatum describes a registered gravity-related height system.
type VerticalDatum struct {
	Name string `json:"name" yaml:"name"`
	Code int    `json:"code" yaml:"code"`
}

type spheroid struct {
	a, fi float64
}

func (s spheroid) A() float64 {
	return s.a
}

func (s spheroid) Fi() float64 {
	return s.fi
}

var (
	wgs84Spheroid = spheroid{a: 6378137, fi: 298.257223563}
	grs80Spheroid = spheroid{a: 6378137, fi: 298.257222101}
)

// maxMercatorLat is the latitude where Web Mercator becomes a square.
const maxMercatorLat = 85.0511287798066

var world = orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}

func anywhere(lon, lat float64) bool {
	return true
}

// repo holds every CRS the package can transform.
var repo = wgs84.EPSG()

var definitions = map[int]Definition{}

var verticals = map[int]VerticalDatum{
	3855: {Code: 3855, Name: "EGM2008 height"},
	5773: {Code: 5773, Name: "EGM96 height"},
}

func init() {
	// Geographic axis order is always lon/lat, matching GeoJSON.
	repo.Add(4326, wgs84.LonLat())
	definitions[4326] = Definition{Code: 4326, Name: "WGS 84", Unit: Degree, Geographic: true, Area: world}
	repo.Add(4979, wgs84.LonLat())
	definitions[4979] = Definition{Code: 4979, Name: "WGS 84 (3D)", Unit: Degree, Geographic: true, Area: world}

	mercatorArea := orb.Bound{Min: orb.Point{-180, -maxMercatorLat}, Max: orb.Point{180, maxMercatorLat}}
	repo.Add(3857, wgs84.WebMercator())
	definitions[3857] = Definition{Code: 3857, Name: "WGS 84 / Pseudo-Mercator", Unit: Metre, Area: mercatorArea, maxLat: maxMercatorLat}
	repo.Add(900913, wgs84.WebMercator())
	definitions[900913] = Definition{Code: 900913, Name: "Google Maps Global Mercator", Unit: Metre, Area: mercatorArea, maxLat: maxMercatorLat}

	wgs := wgs84.Datum{Spheroid: wgs84Spheroid, Area: wgs84.AreaFunc(anywhere)}
	for zone := 1; zone <= 60; zone++ {
		lon0 := float64(zone)*6 - 183
		area := func(minLat, maxLat float64) orb.Bound {
			return orb.Bound{Min: orb.Point{lon0 - 3, minLat}, Max: orb.Point{lon0 + 3, maxLat}}
		}

		north := 32600 + zone
		repo.Add(north, transverseMercatorCRS(wgs, lon0, 0, 0.9996, 500000, 0))
		definitions[north] = Definition{
			Code: north,
			Name: fmt.Sprintf("WGS 84 / UTM zone %dN", zone),
			Unit: Metre,
			Area: area(0, 84),
		}

		south := 32700 + zone
		repo.Add(south, transverseMercatorCRS(wgs, lon0, 0, 0.9996, 500000, 10000000))
		definitions[south] = Definition{
			Code: south,
			Name: fmt.Sprintf("WGS 84 / UTM zone %dS", zone),
			Unit: Metre,
			Area: area(-80, 0),
		}
	}

	// ETRS89 is treated as coincident with WGS 84, the difference is below a metre.
	etrs := wgs84.Datum{Spheroid: grs80Spheroid, Area: wgs84.AreaFunc(anywhere)}
	for zone := 28; zone <= 38; zone++ {
		lon0 := float64(zone)*6 - 183
		code := 25800 + zone
		repo.Add(code, transverseMercatorCRS(etrs, lon0, 0, 0.9996, 500000, 0))
		definitions[code] = Definition{
			Code: code,
			Name: fmt.Sprintf("ETRS89 / UTM zone %dN", zone),
			Unit: Metre,
			Area: orb.Bound{Min: orb.Point{lon0 - 3, 34}, Max: orb.Point{lon0 + 3, 72}},
		}
	}

	korea := wgs84.Datum{
		Spheroid: grs80Spheroid,
		Area: wgs84.AreaFunc(func(lon, lat float64) bool {
			if lon < 122.71 || lat < 28.6 || lon > 134.28 || lat > 40.27 {
				return false
			}
			return true
		}),
	}
	koreaArea := orb.Bound{Min: orb.Point{122.71, 28.6}, Max: orb.Point{134.28, 40.27}}
	repo.Add(5179, transverseMercatorCRS(korea, 127.5, 38, 0.9996, 1000000, 2000000))
	definitions[5179] = Definition{Code: 5179, Name: "Korea 2000 / Unified CS", Unit: Metre, Area: koreaArea}
	repo.Add(5186, transverseMercatorCRS(korea, 127, 38, 1, 200000, 600000))
	definitions[5186] = Definition{Code: 5186, Name: "Korea 2000 / Central Belt 2010", Unit: Metre, Area: koreaArea}
}

// Lookup returns the definition for a horizontal code.
func Lookup(id ID) (Definition, error) {
	def, ok := definitions[id.Code]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrUnknownCRS, id)
	}
	if id.Vertical != 0 {
		if _, ok := verticals[id.Vertical]; !ok {
			return Definition{}, fmt.Errorf("%w: vertical datum %d", ErrUnknownCRS, id.Vertical)
		}
	}
	return def, nil
}

// LookupVertical returns the vertical datum for a code.
func LookupVertical(code int) (VerticalDatum, bool) {
	v, ok := verticals[code]
	return v, ok
}

// Definitions lists registered horizontal definitions ordered by code.
func Definitions() []Definition {
	out := make([]Definition, 0, len(definitions))
	for _, d := range definitions {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// VerticalDatums lists registered vertical datums ordered by code.
func VerticalDatums() []VerticalDatum {
	out := make([]VerticalDatum, 0, len(verticals))
	for _, v := range verticals {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// UTMZone returns the WGS 84 / UTM code covering lon/lat.
func UTMZone(lon, lat float64) ID {
	zone := int((lon+180)/6) + 1
	if zone > 60 {
		zone = 60
	}
	if zone < 1 {
		zone = 1
	}
	if lat < 0 {
		return EPSG(32700 + zone)
	}
	return EPSG(32600 + zone)
}
