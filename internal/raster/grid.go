package raster

import (
	"fmt"
	"math"

	"github.com/woozymasta/reproj/internal/crs"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultNoData marks missing samples unless a grid says otherwise.
const DefaultNoData = -9999.0

// Grid is a band-major array of samples with a geotransform and CRS tag.
type Grid struct {
	Data      []float64
	Transform GeoTransform
	CRS       crs.ID
	NoData    float64
	Width     int
	Height    int
	Bands     int
}

// New allocates a grid filled with nodata.
func New(width, height, bands int, gt GeoTransform, id crs.ID, nodata float64) (*Grid, error) {
	if width <= 0 || height <= 0 || bands <= 0 {
		return nil, fmt.Errorf("invalid grid size %dx%dx%d", width, height, bands)
	}

	data := make([]float64, width*height*bands)
	for i := range data {
		data[i] = nodata
	}

	return &Grid{
		Data:      data,
		Transform: gt,
		CRS:       id,
		NoData:    nodata,
		Width:     width,
		Height:    height,
		Bands:     bands,
	}, nil
}

func (g *Grid) index(band, col, row int) int {
	return (band*g.Height+row)*g.Width + col
}

// At returns the sample at integer pixel position.
func (g *Grid) At(band, col, row int) float64 {
	return g.Data[g.index(band, col, row)]
}

// Set stores a sample at integer pixel position.
func (g *Grid) Set(band, col, row int, v float64) {
	g.Data[g.index(band, col, row)] = v
}

// Valid reports whether v is a real sample.
func (g *Grid) Valid(v float64) bool {
	return !math.IsNaN(v) && v != g.NoData
}

// Bilinear samples a band at a fractional pixel position, where pixel
// centres sit at i+0.5. Nodata neighbours are skipped and the remaining
// weights renormalised. Positions outside the grid return false.
func (g *Grid) Bilinear(band int, col, row float64) (float64, bool) {
	if col < 0 || row < 0 || col > float64(g.Width) || row > float64(g.Height) {
		return g.NoData, false
	}

	u := col - 0.5
	v := row - 0.5
	c0 := int(math.Floor(u))
	r0 := int(math.Floor(v))
	fu := u - float64(c0)
	fv := v - float64(r0)

	var sum, weight float64
	for dr := 0; dr <= 1; dr++ {
		for dc := 0; dc <= 1; dc++ {
			c := clamp(c0+dc, 0, g.Width-1)
			r := clamp(r0+dr, 0, g.Height-1)

			w := (1 - math.Abs(float64(dc)-fu)) * (1 - math.Abs(float64(dr)-fv))
			if w == 0 {
				continue
			}

			s := g.At(band, c, r)
			if !g.Valid(s) {
				continue
			}
			sum += s * w
			weight += w
		}
	}

	if weight == 0 {
		return g.NoData, false
	}

	return sum / weight, true
}

// Sample reads a band at map coordinates in the grid CRS.
func (g *Grid) Sample(band int, x, y float64) (float64, bool) {
	inv, err := g.Transform.Invert()
	if err != nil {
		return g.NoData, false
	}
	col, row := inv.Apply(x, y)
	return g.Bilinear(band, col, row)
}

// Bounds returns the envelope of the grid in map coordinates.
func (g *Grid) Bounds() orb.Bound {
	w, h := float64(g.Width), float64(g.Height)
	x, y := g.Transform.Apply(0, 0)
	b := orb.Bound{Min: orb.Point{x, y}, Max: orb.Point{x, y}}
	for _, c := range [][2]float64{{w, 0}, {0, h}, {w, h}} {
		x, y = g.Transform.Apply(c[0], c[1])
		b = b.Extend(orb.Point{x, y})
	}
	return b
}

// Stats summarises the valid samples of a band.
type Stats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Valid int     `json:"valid"`
	Total int     `json:"total"`
}

// Stats computes band statistics over valid samples.
func (g *Grid) Stats(band int) Stats {
	n := g.Width * g.Height
	start := band * n
	values := make([]float64, 0, n)
	for _, v := range g.Data[start : start+n] {
		if g.Valid(v) {
			values = append(values, v)
		}
	}

	s := Stats{Valid: len(values), Total: n}
	if len(values) == 0 {
		return s
	}

	s.Min = floats.Min(values)
	s.Max = floats.Max(values)
	s.Mean, s.Std = stat.MeanStdDev(values, nil)
	if math.IsNaN(s.Std) {
		s.Std = 0
	}
	return s
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
