package crs

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/wroge/wgs84"
)

// Geoid provides geoid undulations (height of the geoid above the WGS 84 ellipsoid, metres).
type Geoid interface {
	Undulation(lon, lat float64) (float64, error)
}

// Option configures a Transformer.
type Option func(*Transformer)

// WithGeoid registers the undulation model used for a vertical datum code.
func WithGeoid(vertical int, g Geoid) Option {
	return func(t *Transformer) {
		if g != nil {
			t.geoids[vertical] = g
		}
	}
}

// Transformer converts coordinates from a source to a target CRS. It is safe
// for concurrent use once built.
type Transformer struct {
	geoids     map[int]Geoid
	toLonLat   func(a, b, c float64) (a2, b2, c2 float64)
	fromLonLat func(a, b, c float64) (a2, b2, c2 float64)
	srcDef     Definition
	dstDef     Definition
	src        ID
	dst        ID
}

// NewTransformer builds a transformer. Unknown identifiers fail immediately
// with ErrUnknownCRS. Missing vertical grids are only detected when a
// coordinate needs them.
func NewTransformer(src, dst ID, opts ...Option) (*Transformer, error) {
	srcDef, err := Lookup(src)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	dstDef, err := Lookup(dst)
	if err != nil {
		return nil, fmt.Errorf("target: %w", err)
	}

	t := &Transformer{
		src:    src,
		dst:    dst,
		srcDef: srcDef,
		dstDef: dstDef,
		geoids: make(map[int]Geoid),
	}
	for _, opt := range opts {
		opt(t)
	}

	if !srcDef.Geographic {
		t.toLonLat = wgs84.Transform(repo.Code(src.Code), repo.Code(WGS84.Code))
	}
	if !dstDef.Geographic {
		t.fromLonLat = wgs84.Transform(repo.Code(WGS84.Code), repo.Code(dst.Code))
	}

	return t, nil
}

// Source returns the source CRS.
func (t *Transformer) Source() ID { return t.src }

// Target returns the target CRS.
func (t *Transformer) Target() ID { return t.dst }

// SourceDefinition returns the registered source definition.
func (t *Transformer) SourceDefinition() Definition { return t.srcDef }

// TargetDefinition returns the registered target definition.
func (t *Transformer) TargetDefinition() Definition { return t.dstDef }

// NeedsGeoid reports whether heights change vertical datum.
func (t *Transformer) NeedsGeoid() bool {
	return t.src.Vertical != t.dst.Vertical
}

// CheckGrids returns ErrMissingGrid when a vertical datum on either side has
// no registered geoid model.
func (t *Transformer) CheckGrids() error {
	if !t.NeedsGeoid() {
		return nil
	}
	for _, v := range []int{t.src.Vertical, t.dst.Vertical} {
		if v == 0 {
			continue
		}
		if _, ok := t.geoids[v]; !ok {
			return fmt.Errorf("%w: EPSG:%d", ErrMissingGrid, v)
		}
	}
	return nil
}

// Identity reports whether the transform leaves coordinates unchanged.
func (t *Transformer) Identity() bool {
	return t.src.Vertical == t.dst.Vertical &&
		(t.src.Code == t.dst.Code || (t.srcDef.Geographic && t.dstDef.Geographic))
}

// Transform converts a horizontal coordinate pair.
func (t *Transformer) Transform(x, y float64) (float64, float64, error) {
	x2, y2, _, err := t.transform(x, y, 0, false)
	return x2, y2, err
}

// Transform3D converts a coordinate with height, applying geoid undulations
// when the vertical datums differ.
func (t *Transformer) Transform3D(x, y, z float64) (float64, float64, float64, error) {
	return t.transform(x, y, z, true)
}

// TransformClamped is like Transform but first limits latitudes to the
// target's domain, so points beyond the Web Mercator limit land on its edge.
func (t *Transformer) TransformClamped(x, y float64) (float64, float64, error) {
	limit := t.dstDef.maxLat
	if limit == 0 || !finite(x, y) {
		return t.Transform(x, y)
	}

	lon, lat := x, y
	if t.toLonLat != nil {
		lon, lat, _ = t.toLonLat(x, y, 0)
	}
	if math.Abs(lat) <= limit {
		return t.Transform(x, y)
	}
	lat = math.Copysign(limit, lat)

	ox, oy, _ := t.fromLonLat(lon, lat, 0)
	if !finite(ox, oy) {
		return math.NaN(), math.NaN(), fmt.Errorf("%w: (%g, %g) in %s", ErrOutOfDomain, x, y, t.dst)
	}
	return ox, oy, nil
}

func (t *Transformer) transform(x, y, z float64, vertical bool) (float64, float64, float64, error) {
	if !finite(x, y, z) {
		return math.NaN(), math.NaN(), math.NaN(), fmt.Errorf("%w: non-finite input", ErrOutOfDomain)
	}
	if t.Identity() {
		return x, y, z, nil
	}

	lon, lat, h := x, y, z
	if t.toLonLat != nil {
		lon, lat, h = t.toLonLat(x, y, z)
	}

	if vertical && t.NeedsGeoid() {
		if t.src.Vertical != 0 {
			n, err := t.undulation(t.src.Vertical, lon, lat)
			if err != nil {
				return math.NaN(), math.NaN(), math.NaN(), err
			}
			h += n
		}
		if t.dst.Vertical != 0 {
			n, err := t.undulation(t.dst.Vertical, lon, lat)
			if err != nil {
				return math.NaN(), math.NaN(), math.NaN(), err
			}
			h -= n
		}
	}

	if limit := t.dstDef.maxLat; limit > 0 && math.Abs(lat) > limit {
		return math.NaN(), math.NaN(), math.NaN(),
			fmt.Errorf("%w: latitude %g beyond %s", ErrOutOfDomain, lat, t.dst)
	}

	ox, oy, oz := lon, lat, h
	if t.fromLonLat != nil {
		ox, oy, oz = t.fromLonLat(lon, lat, h)
	}
	if !vertical {
		oz = 0
	}

	if !finite(ox, oy, oz) {
		return math.NaN(), math.NaN(), math.NaN(),
			fmt.Errorf("%w: (%g, %g) in %s", ErrOutOfDomain, x, y, t.dst)
	}

	return ox, oy, oz, nil
}

func (t *Transformer) undulation(vertical int, lon, lat float64) (float64, error) {
	g, ok := t.geoids[vertical]
	if !ok {
		return 0, fmt.Errorf("%w: EPSG:%d", ErrMissingGrid, vertical)
	}
	n, err := g.Undulation(lon, lat)
	if err != nil {
		return 0, fmt.Errorf("geoid EPSG:%d at (%g, %g): %w", vertical, lon, lat, err)
	}
	return n, nil
}

// Projection adapts the transformer to orb. Points that fail to transform
// become NaN so callers can detect and drop them.
func (t *Transformer) Projection() orb.Projection {
	return func(p orb.Point) orb.Point {
		x, y, err := t.Transform(p[0], p[1])
		if err != nil {
			return orb.Point{math.NaN(), math.NaN()}
		}
		return orb.Point{x, y}
	}
}

// Inverse returns the transformer for the opposite direction, sharing geoid models.
func (t *Transformer) Inverse() *Transformer {
	inv := &Transformer{
		src:    t.dst,
		dst:    t.src,
		srcDef: t.dstDef,
		dstDef: t.srcDef,
		geoids: t.geoids,
	}
	if !inv.srcDef.Geographic {
		inv.toLonLat = wgs84.Transform(repo.Code(inv.src.Code), repo.Code(WGS84.Code))
	}
	if !inv.dstDef.Geographic {
		inv.fromLonLat = wgs84.Transform(repo.Code(WGS84.Code), repo.Code(inv.dst.Code))
	}
	return inv
}

// Covers reports whether a source coordinate lies inside the target's area of use.
func (t *Transformer) Covers(x, y float64) bool {
	if !finite(x, y) {
		return false
	}
	lon, lat := x, y
	if t.toLonLat != nil {
		lon, lat, _ = t.toLonLat(x, y, 0)
	}
	return t.dstDef.Contains(lon, lat)
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
