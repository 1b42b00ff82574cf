package processor

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/woozymasta/reproj/internal/altimetry"
	"github.com/woozymasta/reproj/internal/config"
	"github.com/woozymasta/reproj/internal/geo"
	"github.com/woozymasta/reproj/internal/render"

	"github.com/rs/zerolog/log"
)

// ProcessPoints queries the altimetry repository (or reads a CSV source),
// reprojects the cloud in 3D and writes CSV, GeoJSON and a scatter plot.
func (p *Processor) ProcessPoints(ctx context.Context, d config.Dataset) (Result, error) {
	res := Result{Dataset: d.Name}
	csvFile := p.outputPath(d, ".csv")

	if exists(csvFile) && !p.opts.Force {
		log.Debug().Str("dataset", d.Name).Msg("Point cloud exists, skipping")
		res.Skipped = true
		return res, nil
	}

	// fail on missing grids before querying the repository
	t, err := p.Transformer(ctx, d.SourceCRS, d.TargetCRS)
	if err != nil {
		return res, err
	}

	cloud, err := p.acquirePoints(ctx, d)
	if err != nil {
		return res, err
	}
	if !cloud.CRS.Equal(t.Source()) {
		if t, err = p.Transformer(ctx, cloud.CRS, d.TargetCRS); err != nil {
			return res, err
		}
	}

	out, report, err := altimetry.Reproject(cloud, t)
	if err != nil {
		return res, fmt.Errorf("reproject %s: %w", d.Name, err)
	}
	res.Input, res.Output, res.Dropped = report.Points, report.Transformed, report.Dropped

	if report.Dropped > 0 {
		log.Warn().
			Str("dataset", d.Name).
			Int("dropped", report.Dropped).
			Msg("Points could not be transformed and were dropped")
	}

	if err := writeFile(csvFile, func(w io.Writer) error {
		return altimetry.WriteCSV(w, out)
	}); err != nil {
		return res, err
	}
	res.Files = append(res.Files, csvFile)

	encoded, err := geo.NewCollection(out.CRS, out.ToFeatureCollection()).Encode()
	if err != nil {
		return res, err
	}
	geoFile := p.outputPath(d, ".geojson")
	if err := writeFile(geoFile, func(w io.Writer) error {
		_, err := w.Write(encoded)
		return err
	}); err != nil {
		return res, err
	}
	res.Files = append(res.Files, geoFile)

	plotFile := p.plotPath(d)
	if err := writeFile(plotFile, func(w io.Writer) error {
		return render.Points(w, out, render.Options{Title: d.Name, Format: render.FormatOf(plotFile)})
	}); err != nil {
		return res, err
	}
	res.Files = append(res.Files, plotFile)

	log.Info().
		Str("dataset", d.Name).
		Str("crs", out.CRS.String()).
		Int("points", report.Transformed).
		Msg("Point dataset written")

	return res, nil
}

func (p *Processor) acquirePoints(ctx context.Context, d config.Dataset) (*altimetry.Cloud, error) {
	if d.Source != "" {
		data, err := fetch(ctx, p.client, d.Source)
		if err != nil {
			return nil, err
		}
		return altimetry.ReadCSV(bytes.NewReader(data), d.SourceCRS)
	}

	q := altimetry.Query{
		Product: d.Product,
		Start:   d.Start,
		End:     d.End,
		Limit:   d.Limit,
	}
	if b, ok := d.Area(); ok {
		q.Bound = b
	}

	log.Info().
		Str("dataset", d.Name).
		Str("product", d.Product).
		Msg("Querying altimetry repository")

	return p.repository().Query(ctx, q)
}
