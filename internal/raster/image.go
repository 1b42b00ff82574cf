package raster

import (
	"image"
	"image/color"

	"gonum.org/v1/plot/palette"
)

// Image colours one band through cm, stretched over the band's value range.
// Nodata pixels stay transparent.
func (g *Grid) Image(band int, cm palette.ColorMap) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, g.Width, g.Height))

	st := g.Stats(band)
	if st.Valid == 0 {
		return img
	}
	lo, hi := st.Min, st.Max
	if hi <= lo {
		hi = lo + 1
	}
	cm.SetMin(lo)
	cm.SetMax(hi)

	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			v := g.At(band, col, row)
			if !g.Valid(v) {
				continue
			}
			c, err := cm.At(v)
			if err != nil {
				continue
			}
			img.Set(col, row, color.NRGBAModel.Convert(c))
		}
	}

	return img
}
