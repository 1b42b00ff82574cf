// Package altimetry handles satellite altimetry point clouds: repository
// queries, CSV exchange and 3D reprojection.
package altimetry

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/woozymasta/reproj/internal/crs"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Point is a single altimetry return. X/Y are lon/lat for geographic clouds.
type Point struct {
	Time   time.Time `json:"time"`
	Beam   string    `json:"beam,omitempty"`
	X      float64   `json:"x"`
	Y      float64   `json:"y"`
	Height float64   `json:"h"`
}

// Cloud is a sequence of points tagged with a CRS.
type Cloud struct {
	Points []Point
	CRS    crs.ID
}

// Report counts the outcome of a reprojection.
type Report struct {
	Points      int `json:"points"`
	Transformed int `json:"transformed"`
	Dropped     int `json:"dropped"`
}

// Reproject converts every point in 3D. Points that fail (outside the
// projection domain or the geoid grid) are dropped; a missing grid aborts.
func Reproject(c *Cloud, t *crs.Transformer) (*Cloud, Report, error) {
	report := Report{Points: len(c.Points)}

	if !c.CRS.Equal(t.Source()) {
		return nil, report, fmt.Errorf("cloud crs %s does not match transform source %s", c.CRS, t.Source())
	}
	if err := t.CheckGrids(); err != nil {
		return nil, report, err
	}

	out := &Cloud{CRS: t.Target(), Points: make([]Point, 0, len(c.Points))}
	var firstErr error
	for _, p := range c.Points {
		x, y, h, err := t.Transform3D(p.X, p.Y, p.Height)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			report.Dropped++
			continue
		}
		p.X, p.Y, p.Height = x, y, h
		out.Points = append(out.Points, p)
		report.Transformed++
	}

	if report.Points > 0 && report.Transformed == 0 {
		return nil, report, fmt.Errorf("no point could be transformed: %w", firstErr)
	}

	return out, report, nil
}

// Bound returns the horizontal envelope of the cloud.
func (c *Cloud) Bound() orb.Bound {
	if len(c.Points) == 0 {
		return orb.Bound{}
	}
	b := orb.Bound{Min: orb.Point{c.Points[0].X, c.Points[0].Y}, Max: orb.Point{c.Points[0].X, c.Points[0].Y}}
	for _, p := range c.Points[1:] {
		b = b.Extend(orb.Point{p.X, p.Y})
	}
	return b
}

// ToFeatureCollection converts the cloud into GeoJSON points with height and time properties.
func (c *Cloud) ToFeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.Features = make([]*geojson.Feature, 0, len(c.Points))
	for _, p := range c.Points {
		f := geojson.NewFeature(orb.Point{p.X, p.Y})
		f.Properties["h"] = p.Height
		if !p.Time.IsZero() {
			f.Properties["time"] = p.Time.UTC().Format(time.RFC3339Nano)
		}
		if p.Beam != "" {
			f.Properties["beam"] = p.Beam
		}
		fc.Append(f)
	}
	return fc
}

var csvHeader = []string{"x", "y", "h", "time", "beam"}

// WriteCSV writes the cloud with a header row.
func WriteCSV(w io.Writer, c *Cloud) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	for _, p := range c.Points {
		ts := ""
		if !p.Time.IsZero() {
			ts = p.Time.UTC().Format(time.RFC3339Nano)
		}
		rec := []string{
			strconv.FormatFloat(p.X, 'f', -1, 64),
			strconv.FormatFloat(p.Y, 'f', -1, 64),
			strconv.FormatFloat(p.Height, 'f', -1, 64),
			ts,
			p.Beam,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// ReadCSV reads a cloud written by WriteCSV. Columns are located by header
// name; "lon"/"lat" are accepted for x/y.
func ReadCSV(r io.Reader, id crs.ID) (*Cloud, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("csv header: %w", err)
	}

	cols := map[string]int{}
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(name))
		switch name {
		case "lon", "longitude":
			name = "x"
		case "lat", "latitude":
			name = "y"
		case "height", "elevation", "z":
			name = "h"
		}
		cols[name] = i
	}
	for _, req := range []string{"x", "y", "h"} {
		if _, ok := cols[req]; !ok {
			return nil, fmt.Errorf("csv: missing column %q", req)
		}
	}

	c := &Cloud{CRS: id}
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}

		var p Point
		if p.X, err = strconv.ParseFloat(rec[cols["x"]], 64); err != nil {
			return nil, fmt.Errorf("csv line %d: x: %w", line, err)
		}
		if p.Y, err = strconv.ParseFloat(rec[cols["y"]], 64); err != nil {
			return nil, fmt.Errorf("csv line %d: y: %w", line, err)
		}
		if p.Height, err = strconv.ParseFloat(rec[cols["h"]], 64); err != nil {
			return nil, fmt.Errorf("csv line %d: h: %w", line, err)
		}
		if i, ok := cols["time"]; ok && rec[i] != "" {
			if p.Time, err = time.Parse(time.RFC3339Nano, rec[i]); err != nil {
				return nil, fmt.Errorf("csv line %d: time: %w", line, err)
			}
		}
		if i, ok := cols["beam"]; ok {
			p.Beam = rec[i]
		}
		c.Points = append(c.Points, p)
	}

	return c, nil
}
