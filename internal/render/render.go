// Package render draws datasets as static plots and raster previews.
package render

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"path/filepath"
	"strings"

	"github.com/woozymasta/reproj/internal/altimetry"
	"github.com/woozymasta/reproj/internal/geo"
	"github.com/woozymasta/reproj/internal/raster"

	"github.com/chai2010/webp"
	"github.com/paulmach/orb"
	xdraw "golang.org/x/image/draw"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// Options control plot output.
type Options struct {
	Title  string
	Format string    // png, svg or pdf; defaults to png
	Width  vg.Length // height follows the data aspect ratio
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = 8 * vg.Inch
	}
	if o.Format == "" {
		o.Format = "png"
	}
	return o
}

// FormatOf derives the plot format from a file name.
func FormatOf(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

// HeightMap is the colour map used for elevations.
func HeightMap() palette.ColorMap {
	return moreland.ExtendedBlackBody()
}

var outline = color.RGBA{R: 40, G: 70, B: 120, A: 255}

// Collection plots feature outlines and points in the collection's CRS.
func Collection(w io.Writer, c *geo.Collection, opts Options) error {
	opts = opts.withDefaults()
	p := newPlot(opts.Title, c.CRS.String())

	var pts plotter.XYs
	for _, f := range c.Features.Features {
		if f.Geometry == nil {
			continue
		}
		lines, points := flatten(f.Geometry)
		for _, ring := range lines {
			l, err := plotter.NewLine(ring)
			if err != nil {
				return fmt.Errorf("plot line: %w", err)
			}
			l.LineStyle.Width = vg.Points(0.5)
			l.LineStyle.Color = outline
			p.Add(l)
		}
		pts = append(pts, points...)
	}

	if len(pts) > 0 {
		s, err := plotter.NewScatter(pts)
		if err != nil {
			return fmt.Errorf("plot points: %w", err)
		}
		s.GlyphStyle.Color = outline
		s.GlyphStyle.Radius = vg.Points(1.5)
		s.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(s)
	}

	return save(w, p, c.Bound(), opts)
}

// Points plots a cloud as a scatter coloured by height.
func Points(w io.Writer, c *altimetry.Cloud, opts Options) error {
	opts = opts.withDefaults()
	p := newPlot(opts.Title, c.CRS.String())

	if len(c.Points) > 0 {
		xys := make(plotter.XYs, len(c.Points))
		lo, hi := math.Inf(1), math.Inf(-1)
		for i, pt := range c.Points {
			xys[i] = plotter.XY{X: pt.X, Y: pt.Y}
			lo = math.Min(lo, pt.Height)
			hi = math.Max(hi, pt.Height)
		}
		if hi <= lo {
			hi = lo + 1
		}

		cm := HeightMap()
		cm.SetMin(lo)
		cm.SetMax(hi)

		s, err := plotter.NewScatter(xys)
		if err != nil {
			return fmt.Errorf("plot points: %w", err)
		}
		s.GlyphStyleFunc = func(i int) draw.GlyphStyle {
			col, err := cm.At(c.Points[i].Height)
			if err != nil {
				col = color.Black
			}
			return draw.GlyphStyle{Color: col, Radius: vg.Points(1.5), Shape: draw.CircleGlyph{}}
		}
		p.Add(s)
	}

	return save(w, p, c.Bound(), opts)
}

func newPlot(title, axis string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = axis
	p.Add(plotter.NewGrid())
	return p
}

func save(w io.Writer, p *plot.Plot, b orb.Bound, opts Options) error {
	height := opts.Width * 0.75
	if dx, dy := b.Max[0]-b.Min[0], b.Max[1]-b.Min[1]; dx > 0 && dy > 0 {
		ratio := math.Max(0.25, math.Min(4, dy/dx))
		height = opts.Width * vg.Length(ratio)
	}

	wt, err := p.WriterTo(opts.Width, height, opts.Format)
	if err != nil {
		return fmt.Errorf("plot writer: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// flatten splits a geometry into drawable line strings and points.
func flatten(g orb.Geometry) ([]plotter.XYs, plotter.XYs) {
	var lines []plotter.XYs
	var points plotter.XYs

	toXYs := func(ls []orb.Point) plotter.XYs {
		xys := make(plotter.XYs, len(ls))
		for i, p := range ls {
			xys[i] = plotter.XY{X: p[0], Y: p[1]}
		}
		return xys
	}

	switch v := g.(type) {
	case orb.Point:
		points = append(points, plotter.XY{X: v[0], Y: v[1]})
	case orb.MultiPoint:
		points = append(points, toXYs(v)...)
	case orb.LineString:
		lines = append(lines, toXYs(v))
	case orb.MultiLineString:
		for _, ls := range v {
			lines = append(lines, toXYs(ls))
		}
	case orb.Ring:
		lines = append(lines, toXYs(v))
	case orb.Polygon:
		for _, r := range v {
			lines = append(lines, toXYs(r))
		}
	case orb.MultiPolygon:
		for _, poly := range v {
			for _, r := range poly {
				lines = append(lines, toXYs(r))
			}
		}
	case orb.Collection:
		for _, sub := range v {
			l, p := flatten(sub)
			lines = append(lines, l...)
			points = append(points, p...)
		}
	case orb.Bound:
		lines = append(lines, toXYs(v.ToRing()))
	}

	// plotter.NewLine rejects empty input
	out := lines[:0]
	for _, l := range lines {
		if len(l) > 0 {
			out = append(out, l)
		}
	}
	return out, points
}

// Preview colours one raster band and encodes it as WebP, scaled so the
// longer side is at most maxSize pixels.
func Preview(w io.Writer, g *raster.Grid, band, maxSize int) error {
	src := g.Image(band, HeightMap())

	var img image.Image = src
	if maxSize > 0 && (g.Width > maxSize || g.Height > maxSize) {
		scale := float64(maxSize) / float64(max(g.Width, g.Height))
		dw := max(1, int(math.Round(float64(g.Width)*scale)))
		dh := max(1, int(math.Round(float64(g.Height)*scale)))

		dst := image.NewNRGBA(image.Rect(0, 0, dw, dh))
		xdraw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
		img = dst
	}

	if err := webp.Encode(w, img, &webp.Options{Lossless: false, Quality: 85}); err != nil {
		return fmt.Errorf("encode webp: %w", err)
	}
	return nil
}
