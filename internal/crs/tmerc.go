package crs

import (
	"math"

	"github.com/wroge/wgs84"
)

// tmIterations bounds the Newton steps that refine the inverse series.
const tmIterations = 6

// transverseMercator is the Snyder series form of the projection. The
// inverse series is refined against FromLonLat so that both directions
// agree to floating point precision.
type transverseMercator struct {
	lon0, lat0 float64 // degrees
	scale      float64
	east0      float64
	north0     float64
}

var _ wgs84.Projection = transverseMercator{}

type ellipsoid struct {
	a, e2, ep2, e1 float64
}

func newEllipsoid(s wgs84.Spheroid) ellipsoid {
	f := 1 / s.Fi()
	e2 := f * (2 - f)
	r := math.Sqrt(1 - e2)
	return ellipsoid{
		a:   s.A(),
		e2:  e2,
		ep2: e2 / (1 - e2),
		e1:  (1 - r) / (1 + r),
	}
}

// meridian returns the meridional arc length from the equator to phi.
func (e ellipsoid) meridian(phi float64) float64 {
	e4 := e.e2 * e.e2
	e6 := e4 * e.e2
	return e.a * ((1-e.e2/4-3*e4/64-5*e6/256)*phi -
		(3*e.e2/8+3*e4/32+45*e6/1024)*math.Sin(2*phi) +
		(15*e4/256+45*e6/1024)*math.Sin(4*phi) -
		(35*e6/3072)*math.Sin(6*phi))
}

func (p transverseMercator) FromLonLat(lon, lat float64, s wgs84.Spheroid) (float64, float64) {
	return p.forward(newEllipsoid(s), lon, lat)
}

func (p transverseMercator) forward(e ellipsoid, lon, lat float64) (float64, float64) {
	phi := lat * math.Pi / 180
	sin, cos := math.Sincos(phi)
	tan := sin / cos

	n := e.a / math.Sqrt(1-e.e2*sin*sin)
	t := tan * tan
	c := e.ep2 * cos * cos
	a := (lon - p.lon0) * math.Pi / 180 * cos

	a2 := a * a
	a3 := a2 * a
	a4 := a3 * a
	a5 := a4 * a
	a6 := a5 * a

	east := p.scale*n*(a+(1-t+c)*a3/6+(5-18*t+t*t+72*c-58*e.ep2)*a5/120) + p.east0
	north := p.scale*(e.meridian(phi)-e.meridian(p.lat0*math.Pi/180)+
		n*tan*(a2/2+(5-t+9*c+4*c*c)*a4/24+(61-58*t+t*t+600*c-330*e.ep2)*a6/720)) + p.north0

	return east, north
}

func (p transverseMercator) ToLonLat(east, north float64, s wgs84.Spheroid) (float64, float64) {
	e := newEllipsoid(s)
	lon, lat := p.inverseSeries(e, east, north)

	// Newton steps with a finite difference Jacobian
	const h = 1e-7
	for i := 0; i < tmIterations; i++ {
		x, y := p.forward(e, lon, lat)
		dx, dy := east-x, north-y
		if math.Abs(dx) < 1e-7 && math.Abs(dy) < 1e-7 {
			break
		}

		x1, y1 := p.forward(e, lon+h, lat)
		x2, y2 := p.forward(e, lon, lat+h)
		j11, j21 := (x1-x)/h, (y1-y)/h
		j12, j22 := (x2-x)/h, (y2-y)/h
		det := j11*j22 - j12*j21
		if det == 0 || math.IsNaN(det) || math.IsInf(det, 0) {
			break
		}

		lon += (j22*dx - j12*dy) / det
		lat += (j11*dy - j21*dx) / det
	}

	return lon, lat
}

func (p transverseMercator) inverseSeries(e ellipsoid, east, north float64) (float64, float64) {
	m := e.meridian(p.lat0*math.Pi/180) + (north-p.north0)/p.scale
	e4 := e.e2 * e.e2
	mu := m / (e.a * (1 - e.e2/4 - 3*e4/64 - 5*e4*e.e2/256))

	e1 := e.e1
	phi1 := mu + (3*e1/2-27*e1*e1*e1/32)*math.Sin(2*mu) +
		(21*e1*e1/16-55*e1*e1*e1*e1/32)*math.Sin(4*mu) +
		(151*e1*e1*e1/96)*math.Sin(6*mu) +
		(1097*e1*e1*e1*e1/512)*math.Sin(8*mu)

	sin, cos := math.Sincos(phi1)
	tan := sin / cos
	w := 1 - e.e2*sin*sin

	n1 := e.a / math.Sqrt(w)
	r1 := e.a * (1 - e.e2) / math.Pow(w, 1.5)
	t1 := tan * tan
	c1 := e.ep2 * cos * cos
	d := (east - p.east0) / (n1 * p.scale)

	d2 := d * d
	d3 := d2 * d
	d4 := d3 * d
	d5 := d4 * d
	d6 := d5 * d

	phi := phi1 - (n1*tan/r1)*(d2/2-
		(5+3*t1+10*c1-4*c1*c1-9*e.ep2)*d4/24+
		(61+90*t1+298*c1+45*t1*t1-252*e.ep2-3*c1*c1)*d6/720)
	lam := (d - (1+2*t1+c1)*d3/6 +
		(5-2*c1+28*t1-3*c1*c1+8*e.ep2+24*t1*t1)*d5/120) / cos

	return p.lon0 + lam*180/math.Pi, phi * 180 / math.Pi
}

// transverseMercatorCRS registers the projection on a datum.
func transverseMercatorCRS(d wgs84.Datum, lon0, lat0, scale, east0, north0 float64) wgs84.ProjectedReferenceSystem {
	return wgs84.ProjectedReferenceSystem{
		Datum:      d,
		Projection: transverseMercator{lon0: lon0, lat0: lat0, scale: scale, east0: east0, north0: north0},
	}
}
