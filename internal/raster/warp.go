package raster

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"github.com/woozymasta/reproj/internal/crs"

	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"
)

// WarpOptions control the target grid of a reprojection.
type WarpOptions struct {
	// Resolution is the target pixel size in target units. Zero keeps the pixel count.
	Resolution float64
	// Width and Height force the target dimensions. When only one is set the
	// other follows the extent's aspect ratio with square pixels.
	Width, Height int
	// Densify is the number of samples per source edge used to find the target extent.
	Densify int
	// Concurrency limits parallel rows. Zero uses GOMAXPROCS.
	Concurrency int
}

// Warp reprojects src onto a new grid in the transformer's target CRS using
// bilinear resampling. The target extent covers the transformed source edges.
func Warp(ctx context.Context, src *Grid, t *crs.Transformer, opts WarpOptions) (*Grid, error) {
	if !src.CRS.Horizontal().Equal(t.Source().Horizontal()) {
		return nil, fmt.Errorf("grid crs %s does not match transform source %s", src.CRS, t.Source())
	}

	bound, err := targetBound(src, t, opts.Densify)
	if err != nil {
		return nil, err
	}

	width, height, resX, resY := targetSize(src, bound, opts)
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("empty target grid for bound %v", bound)
	}
	gt := NorthUp(bound.Min[0], bound.Max[1], resX, resY)

	dst, err := New(width, height, src.Bands, gt, t.Target(), src.NoData)
	if err != nil {
		return nil, err
	}

	srcInv, err := src.Transform.Invert()
	if err != nil {
		return nil, err
	}
	inv := t.Inverse()

	limit := opts.Concurrency
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for row := 0; row < height; row++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for col := 0; col < width; col++ {
				x, y := gt.Apply(float64(col)+0.5, float64(row)+0.5)
				sx, sy, err := inv.Transform(x, y)
				if err != nil {
					continue
				}
				c, r := srcInv.Apply(sx, sy)
				for band := 0; band < src.Bands; band++ {
					if v, ok := src.Bilinear(band, c, r); ok {
						dst.Set(band, col, row, v)
					}
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return dst, nil
}

func targetBound(src *Grid, t *crs.Transformer, densify int) (orb.Bound, error) {
	if densify <= 0 {
		densify = 20
	}

	w, h := float64(src.Width), float64(src.Height)
	var bound orb.Bound
	found := false

	add := func(col, row float64) {
		x, y := src.Transform.Apply(col, row)
		tx, ty, err := t.TransformClamped(x, y)
		if err != nil {
			return
		}
		p := orb.Point{tx, ty}
		if !found {
			bound = orb.Bound{Min: p, Max: p}
			found = true
			return
		}
		bound = bound.Extend(p)
	}

	for i := 0; i <= densify; i++ {
		f := float64(i) / float64(densify)
		add(f*w, 0)
		add(f*w, h)
		add(0, f*h)
		add(w, f*h)
	}

	if !found {
		return orb.Bound{}, fmt.Errorf("%w: no grid edge can be transformed to %s", crs.ErrOutOfDomain, t.Target())
	}

	return bound, nil
}

// targetSize returns the target dimensions and pixel sizes.
func targetSize(src *Grid, bound orb.Bound, opts WarpOptions) (int, int, float64, float64) {
	bw := bound.Max[0] - bound.Min[0]
	bh := bound.Max[1] - bound.Min[1]

	var res float64
	switch {
	case opts.Width > 0 && opts.Height > 0:
		return opts.Width, opts.Height, bw / float64(opts.Width), bh / float64(opts.Height)
	case opts.Width > 0:
		res = bw / float64(opts.Width)
	case opts.Height > 0:
		res = bh / float64(opts.Height)
	case opts.Resolution > 0:
		res = opts.Resolution
	default:
		res = math.Sqrt(bw * bh / float64(src.Width*src.Height))
	}
	if res <= 0 || math.IsNaN(res) || math.IsInf(res, 0) {
		return 0, 0, 0, 0
	}

	width, height := int(math.Ceil(bw/res)), int(math.Ceil(bh/res))
	if opts.Width > 0 {
		width = opts.Width
	}
	if opts.Height > 0 {
		height = opts.Height
	}
	return width, height, res, res
}

// ConvertHeights shifts sample values of one band between vertical datums.
// t must share the grid's horizontal CRS. Pixels whose shift cannot be
// computed become nodata; their count is returned.
func (g *Grid) ConvertHeights(band int, t *crs.Transformer) (int, error) {
	if !g.CRS.Horizontal().Equal(t.Source().Horizontal()) || !t.Source().Horizontal().Equal(t.Target().Horizontal()) {
		return 0, fmt.Errorf("height conversion %s -> %s does not apply to grid in %s", t.Source(), t.Target(), g.CRS)
	}
	if err := t.CheckGrids(); err != nil {
		return 0, err
	}

	dropped := 0
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			v := g.At(band, col, row)
			if !g.Valid(v) {
				continue
			}
			x, y := g.Transform.Apply(float64(col)+0.5, float64(row)+0.5)
			_, _, h, err := t.Transform3D(x, y, v)
			if err != nil {
				g.Set(band, col, row, g.NoData)
				dropped++
				continue
			}
			g.Set(band, col, row, h)
		}
	}

	g.CRS = t.Target()
	return dropped, nil
}
