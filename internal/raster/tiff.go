package raster

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"

	"golang.org/x/image/tiff"
)

// Scaling maps 16-bit pixel values back to samples: v = Offset + p*Scale.
// Pixel value 0 is reserved for nodata.
type Scaling struct {
	Scale  float64 `json:"scale"`
	Offset float64 `json:"offset"`
}

// Gray16 quantises one band into a 16-bit image.
func (g *Grid) Gray16(band int) (*image.Gray16, Scaling) {
	st := g.Stats(band)
	sc := Scaling{Scale: 1, Offset: st.Min - 1}
	if span := st.Max - st.Min; span > 0 {
		sc.Scale = span / (math.MaxUint16 - 1)
		sc.Offset = st.Min - sc.Scale
	}

	img := image.NewGray16(image.Rect(0, 0, g.Width, g.Height))
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			v := g.At(band, col, row)
			if !g.Valid(v) {
				continue
			}
			p := math.Round((v - sc.Offset) / sc.Scale)
			p = math.Max(1, math.Min(math.MaxUint16, p))
			img.SetGray16(col, row, color.Gray16{Y: uint16(p)})
		}
	}

	return img, sc
}

// WriteTIFF16 encodes one band as a deflate-compressed 16-bit TIFF and
// returns the scaling needed to restore sample values.
func WriteTIFF16(w io.Writer, g *Grid, band int) (Scaling, error) {
	img, sc := g.Gray16(band)
	if err := tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		return Scaling{}, fmt.Errorf("encode tiff: %w", err)
	}
	return sc, nil
}

// WriteWorldFile writes the six-line world file (.tfw/.pgw) for the grid.
// World files reference the centre of the upper-left pixel.
func WriteWorldFile(w io.Writer, gt GeoTransform) error {
	cx, cy := gt.Apply(0.5, 0.5)
	bw := bufio.NewWriter(w)
	for _, v := range []float64{gt[1], gt[4], gt[2], gt[5], cx, cy} {
		if _, err := fmt.Fprintln(bw, formatFloat(v)); err != nil {
			return err
		}
	}
	return bw.Flush()
}
