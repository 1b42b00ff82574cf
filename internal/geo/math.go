package geo

import "github.com/paulmach/orb"

// MaxMercatorLat is the latitude where Web Mercator maps to a square world.
const MaxMercatorLat = 85.0511287798066

// ClampMercator limits latitude to the Web Mercator domain so that polar
// vertices (e.g. Antarctica in Natural Earth) stay finite.
func ClampMercator(p orb.Point) orb.Point {
	lat := p[1]
	if lat > MaxMercatorLat {
		lat = MaxMercatorLat
	} else if lat < -MaxMercatorLat {
		lat = -MaxMercatorLat
	}
	return orb.Point{p[0], lat}
}
