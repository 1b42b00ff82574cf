// Package geo handles georeferenced feature collections and their reprojection.
package geo

import (
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/woozymasta/reproj/internal/crs"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"
)

// Collection is a GeoJSON feature collection tagged with its CRS.
type Collection struct {
	Features *geojson.FeatureCollection
	CRS      crs.ID
}

// Report counts the outcome of a reprojection.
type Report struct {
	Features    int `json:"features"`
	Transformed int `json:"transformed"`
	Dropped     int `json:"dropped"`
}

// namedCRS is the legacy GeoJSON 2008 "crs" member.
type namedCRS struct {
	Type       string `json:"type"`
	Properties struct {
		Name string `json:"name"`
	} `json:"properties"`
}

// NewCollection wraps a feature collection.
func NewCollection(id crs.ID, fc *geojson.FeatureCollection) *Collection {
	if fc == nil {
		fc = geojson.NewFeatureCollection()
	}
	return &Collection{CRS: id, Features: fc}
}

// Decode parses a feature collection. A "crs" member overrides fallback;
// without either the collection is CRS84.
func Decode(data []byte, fallback crs.ID) (*Collection, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}

	id := fallback
	if id.IsZero() {
		id = crs.WGS84
	}

	if raw, ok := fc.ExtraMembers["crs"]; ok {
		parsed, err := parseNamedCRS(raw)
		if err != nil {
			return nil, err
		}
		id = parsed
		delete(fc.ExtraMembers, "crs")
	}

	return &Collection{CRS: id, Features: fc}, nil
}

// Load reads and decodes a feature collection.
func Load(r io.Reader, fallback crs.ID) (*Collection, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Decode(data, fallback)
}

func parseNamedCRS(raw interface{}) (crs.ID, error) {
	b, err := json.Marshal(raw)
	if err != nil {
		return crs.ID{}, err
	}
	var n namedCRS
	if err := json.Unmarshal(b, &n); err != nil {
		return crs.ID{}, fmt.Errorf("crs member: %w", err)
	}
	if n.Type != "name" {
		return crs.ID{}, fmt.Errorf("%w: crs member type %q", crs.ErrUnknownCRS, n.Type)
	}
	return crs.Parse(n.Properties.Name)
}

// Encode marshals the collection. Non-CRS84 collections carry a named "crs" member.
func (c *Collection) Encode() ([]byte, error) {
	out := *c.Features
	out.ExtraMembers = c.Features.ExtraMembers.Clone()

	if c.CRS.Code != crs.WGS84.Code {
		if out.ExtraMembers == nil {
			out.ExtraMembers = geojson.Properties{}
		}
		out.ExtraMembers["crs"] = map[string]interface{}{
			"type":       "name",
			"properties": map[string]interface{}{"name": c.CRS.URN()},
		}
	}

	return json.Marshal(out)
}

// Reproject returns a copy of the collection in the transformer's target CRS.
// The receiver is not modified. Features with vertices outside the target
// domain are dropped.
func (c *Collection) Reproject(t *crs.Transformer) (*Collection, Report, error) {
	report := Report{Features: len(c.Features.Features)}

	if !c.CRS.Horizontal().Equal(t.Source().Horizontal()) {
		return nil, report, fmt.Errorf("collection crs %s does not match transform source %s", c.CRS, t.Source())
	}

	proj := t.Projection()
	if t.SourceDefinition().Geographic && isMercator(t.Target()) {
		inner := proj
		proj = func(p orb.Point) orb.Point {
			return inner(ClampMercator(p))
		}
	}

	var failed bool
	checked := func(p orb.Point) orb.Point {
		q := proj(p)
		if math.IsNaN(q[0]) || math.IsNaN(q[1]) {
			failed = true
		}
		return q
	}

	out := geojson.NewFeatureCollection()
	out.ExtraMembers = c.Features.ExtraMembers.Clone()

	for _, f := range c.Features.Features {
		nf := *f
		nf.Properties = f.Properties.Clone()
		nf.BBox = nil

		if f.Geometry != nil {
			failed = false
			nf.Geometry = project.Geometry(orb.Clone(f.Geometry), checked)
			if failed {
				report.Dropped++
				continue
			}
		}

		out.Append(&nf)
		report.Transformed++
	}

	if report.Features > 0 && report.Transformed == 0 {
		return nil, report, fmt.Errorf("%w: no feature could be transformed to %s", crs.ErrOutOfDomain, t.Target())
	}

	return &Collection{CRS: t.Target(), Features: out}, report, nil
}

// Bound returns the envelope of all geometries.
func (c *Collection) Bound() orb.Bound {
	var b orb.Bound
	first := true
	for _, f := range c.Features.Features {
		if f.Geometry == nil {
			continue
		}
		if first {
			b = f.Geometry.Bound()
			first = false
			continue
		}
		b = b.Union(f.Geometry.Bound())
	}
	return b
}

func isMercator(id crs.ID) bool {
	return id.Code == crs.WebMercator.Code || id.Code == 900913
}
