package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/woozymasta/reproj/internal/config"
	"github.com/woozymasta/reproj/internal/geo"
	"github.com/woozymasta/reproj/internal/render"

	"github.com/rs/zerolog/log"
)

// ProcessVector loads a feature collection, reprojects it and writes GeoJSON
// plus an outline plot.
func (p *Processor) ProcessVector(ctx context.Context, d config.Dataset) (Result, error) {
	res := Result{Dataset: d.Name}
	destFile := p.outputPath(d, ".geojson")
	plotFile := p.plotPath(d)

	if exists(destFile) && !p.opts.Force {
		log.Debug().Str("dataset", d.Name).Msg("GeoJSON exists, skipping")
		res.Skipped = true
		return res, nil
	}

	var data []byte
	var err error

	// Inline data priority
	if d.Inline != nil {
		log.Info().
			Str("dataset", d.Name).
			Msg("Using inline GeoJSON from config")
		data, err = json.Marshal(d.Inline)
	} else {
		log.Info().
			Str("dataset", d.Name).
			Str("source", d.Source).
			Msg("Loading features")
		data, err = fetch(ctx, p.client, d.Source)
	}
	if err != nil {
		return res, err
	}

	src, err := geo.Decode(data, d.SourceCRS)
	if err != nil {
		return res, err
	}

	t, err := p.Transformer(ctx, src.CRS, d.TargetCRS)
	if err != nil {
		return res, err
	}

	out, report, err := src.Reproject(t)
	if err != nil {
		return res, fmt.Errorf("reproject %s: %w", d.Name, err)
	}
	res.Input, res.Output, res.Dropped = report.Features, report.Transformed, report.Dropped

	if report.Dropped > 0 {
		log.Warn().
			Str("dataset", d.Name).
			Int("dropped", report.Dropped).
			Msg("Features outside the target CRS domain were dropped")
	}

	encoded, err := out.Encode()
	if err != nil {
		return res, err
	}
	if err := writeFile(destFile, func(w io.Writer) error {
		_, err := w.Write(encoded)
		return err
	}); err != nil {
		return res, err
	}
	res.Files = append(res.Files, destFile)

	if err := writeFile(plotFile, func(w io.Writer) error {
		return render.Collection(w, out, render.Options{Title: d.Name, Format: render.FormatOf(plotFile)})
	}); err != nil {
		return res, err
	}
	res.Files = append(res.Files, plotFile)

	log.Info().
		Str("dataset", d.Name).
		Str("crs", out.CRS.String()).
		Int("features", report.Transformed).
		Msg("Vector dataset written")

	return res, nil
}
