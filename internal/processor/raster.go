package processor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/woozymasta/reproj/internal/config"
	"github.com/woozymasta/reproj/internal/crs"
	"github.com/woozymasta/reproj/internal/raster"
	"github.com/woozymasta/reproj/internal/render"

	"github.com/rs/zerolog/log"
)

// previewSize bounds the longer side of raster previews.
const previewSize = 1024

// ProcessRaster acquires an elevation grid, warps it into the target CRS and
// writes an ASCII grid, a 16-bit TIFF with world file and a WebP preview.
func (p *Processor) ProcessRaster(ctx context.Context, d config.Dataset) (Result, error) {
	res := Result{Dataset: d.Name}
	ascFile := p.outputPath(d, ".asc")

	if exists(ascFile) && !p.opts.Force {
		log.Debug().Str("dataset", d.Name).Msg("Raster exists, skipping")
		res.Skipped = true
		return res, nil
	}

	// warp keeps the source heights, the datum shift runs afterwards in place
	target := crs.ID{Authority: d.TargetCRS.Authority, Code: d.TargetCRS.Code, Vertical: d.SourceCRS.Vertical}

	// fail on missing grids before downloading tiles
	var vt *crs.Transformer
	if target.Vertical != d.TargetCRS.Vertical {
		var err error
		if vt, err = p.Transformer(ctx, target, d.TargetCRS); err != nil {
			return res, err
		}
	}

	src, err := p.acquireRaster(ctx, d)
	if err != nil {
		return res, err
	}

	t, err := crs.NewTransformer(src.CRS, target)
	if err != nil {
		return res, err
	}

	out, err := raster.Warp(ctx, src, t, raster.WarpOptions{
		Resolution:  d.Resolution,
		Width:       d.Width,
		Height:      d.Height,
		Concurrency: p.opts.Concurrency,
	})
	if err != nil {
		return res, fmt.Errorf("warp %s: %w", d.Name, err)
	}

	if vt != nil {
		dropped, err := out.ConvertHeights(0, vt)
		if err != nil {
			return res, err
		}
		res.Dropped = dropped
	}

	st := out.Stats(0)
	res.Input = src.Width * src.Height
	res.Output = st.Valid

	if err := writeFile(ascFile, func(w io.Writer) error {
		return raster.WriteASCII(w, out, 0)
	}); err != nil {
		return res, err
	}
	res.Files = append(res.Files, ascFile)

	tifFile := p.outputPath(d, ".tif")
	var scaling raster.Scaling
	if err := writeFile(tifFile, func(w io.Writer) error {
		scaling, err = raster.WriteTIFF16(w, out, 0)
		return err
	}); err != nil {
		return res, err
	}
	res.Files = append(res.Files, tifFile)

	tfwFile := p.outputPath(d, ".tfw")
	if err := writeFile(tfwFile, func(w io.Writer) error {
		return raster.WriteWorldFile(w, out.Transform)
	}); err != nil {
		return res, err
	}
	res.Files = append(res.Files, tfwFile)

	previewFile := p.outputPath(d, ".webp")
	if err := writeFile(previewFile, func(w io.Writer) error {
		return render.Preview(w, out, 0, previewSize)
	}); err != nil {
		return res, err
	}
	res.Files = append(res.Files, previewFile)

	log.Info().
		Str("dataset", d.Name).
		Str("crs", out.CRS.String()).
		Int("width", out.Width).
		Int("height", out.Height).
		Float64("min", st.Min).
		Float64("max", st.Max).
		Float64("tiff_scale", scaling.Scale).
		Float64("tiff_offset", scaling.Offset).
		Msg("Raster dataset written")

	return res, nil
}

func (p *Processor) acquireRaster(ctx context.Context, d config.Dataset) (*raster.Grid, error) {
	if d.IsTileTemplate() {
		if d.SourceCRS.Horizontal().Code != crs.WebMercator.Code {
			return nil, fmt.Errorf("tile source of %s must be EPSG:3857, got %s", d.Name, d.SourceCRS)
		}
		area, ok := d.Area()
		if !ok {
			return nil, fmt.Errorf("tile source of %s needs a bound", d.Name)
		}
		zoom := d.Zoom
		if zoom <= 0 {
			zoom = 10
		}

		g, err := FetchTerrain(ctx, p.client, TerrainRequest{
			URLTemplate: d.Source,
			CacheDir:    filepath.Join(p.cfg.Cache, "tiles", d.Name),
			Bound:       area,
			Zoom:        zoom,
			Concurrency: p.opts.Concurrency,
			Force:       p.opts.Force,
		})
		if err != nil {
			return nil, err
		}
		g.CRS = d.SourceCRS
		return g, nil
	}

	data, err := fetch(ctx, p.client, d.Source)
	if err != nil {
		return nil, err
	}
	return raster.ReadASCII(bytes.NewReader(data), d.SourceCRS)
}
