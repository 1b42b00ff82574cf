// Package raster implements georeferenced numeric grids and their reprojection.
package raster

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// GeoTransform is the six-coefficient affine transform from pixel space to
// map coordinates, in GDAL order:
//
//	x = gt[0] + col*gt[1] + row*gt[2]
//	y = gt[3] + col*gt[4] + row*gt[5]
type GeoTransform [6]float64

// NorthUp builds a transform without rotation for an upper-left origin and pixel size.
func NorthUp(originX, originY, pixelWidth, pixelHeight float64) GeoTransform {
	return GeoTransform{originX, pixelWidth, 0, originY, 0, -pixelHeight}
}

// Apply maps a pixel-space position to map coordinates.
func (gt GeoTransform) Apply(col, row float64) (x, y float64) {
	x = gt[0] + col*gt[1] + row*gt[2]
	y = gt[3] + col*gt[4] + row*gt[5]
	return x, y
}

// Invert returns the transform from map coordinates to pixel space.
func (gt GeoTransform) Invert() (GeoTransform, error) {
	m := mat.NewDense(3, 3, []float64{
		gt[1], gt[2], gt[0],
		gt[4], gt[5], gt[3],
		0, 0, 1,
	})

	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return GeoTransform{}, fmt.Errorf("geotransform %v is not invertible: %w", gt, err)
	}

	return GeoTransform{
		inv.At(0, 2), inv.At(0, 0), inv.At(0, 1),
		inv.At(1, 2), inv.At(1, 0), inv.At(1, 1),
	}, nil
}

// PixelSize returns the absolute pixel width and height for a north-up transform.
func (gt GeoTransform) PixelSize() (float64, float64) {
	w, h := gt[1], gt[5]
	if w < 0 {
		w = -w
	}
	if h < 0 {
		h = -h
	}
	return w, h
}
