package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/woozymasta/reproj/internal/config"
	"github.com/woozymasta/reproj/internal/crs"
	"github.com/woozymasta/reproj/internal/logger"
	"github.com/woozymasta/reproj/internal/processor"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	Input      string `short:"i" long:"in"     description:"Input file with 'x y [z]' or CSV rows. Reads from stdin if empty"`
	Output     string `short:"o" long:"out"    description:"Output file path. Writes to stdout if empty"`
	Format     string `short:"f" long:"format" description:"Output format" choice:"json" choice:"yaml" choice:"csv" choice:"table" default:"table"`
	From       string `short:"s" long:"from"   description:"Source CRS (e.g. EPSG:4326)" required:"true"`
	To         string `short:"t" long:"to"     description:"Target CRS (e.g. EPSG:32633+3855), 'utm' picks the zone of the first coordinate" required:"true"`
	ConfigFile string `short:"c" long:"config" env:"CONFIG_FILE" description:"Configuration with geoid grids, needed for vertical datums"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	opts.Logger.Setup()

	src, err := crs.Parse(opts.From)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid --from")
	}

	var in io.Reader = os.Stdin
	if opts.Input != "" {
		f, err := os.Open(opts.Input)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open input")
		}
		defer func() { _ = f.Close() }()
		in = f
	}

	coords, err := readCoordinates(in)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read coordinates")
	}

	dst, err := resolveTarget(opts.To, src, coords)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid --to")
	}

	t, err := newTransformer(src, dst, opts.ConfigFile)
	if err != nil {
		log.Fatal().Err(err).Str("from", src.String()).Str("to", dst.String()).Msg("Failed to build transformer")
	}

	records := convert(t, coords)

	var out io.Writer = os.Stdout
	if opts.Output != "" {
		f, err := os.Create(opts.Output)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create output")
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	if err := write(out, opts.Format, records); err != nil {
		log.Fatal().Err(err).Msg("Failed to write output")
	}

	failed, outside := 0, 0
	for _, r := range records {
		if r.Error != "" {
			failed++
		}
		if r.OutsideArea {
			outside++
		}
	}
	log.Info().
		Int("converted", len(records)-failed).
		Int("failed", failed).
		Int("outside_area", outside).
		Str("from", src.String()).
		Str("to", dst.String()).
		Msg("Conversion finished")
}

// resolveTarget parses the target CRS. "utm" (optionally with a vertical
// suffix, "utm+3855") selects the WGS 84 / UTM zone of the first coordinate.
func resolveTarget(to string, src crs.ID, coords []coordinate) (crs.ID, error) {
	name, vertical, _ := strings.Cut(to, "+")
	if !strings.EqualFold(strings.TrimSpace(name), "utm") {
		return crs.Parse(to)
	}
	if len(coords) == 0 {
		return crs.ID{}, fmt.Errorf("%w: utm needs at least one coordinate", crs.ErrUnknownCRS)
	}

	t, err := crs.NewTransformer(src.Horizontal(), crs.WGS84)
	if err != nil {
		return crs.ID{}, err
	}
	lon, lat, err := t.Transform(coords[0].X, coords[0].Y)
	if err != nil {
		return crs.ID{}, err
	}

	id := crs.UTMZone(lon, lat)
	if vertical != "" {
		if id.Vertical, err = strconv.Atoi(vertical); err != nil {
			return crs.ID{}, fmt.Errorf("%w: vertical %q", crs.ErrUnknownCRS, vertical)
		}
	}
	log.Debug().Str("zone", id.String()).Float64("lon", lon).Float64("lat", lat).Msg("UTM zone selected")
	return id, nil
}

// newTransformer loads geoid grids through the configuration when either
// side carries a vertical datum.
func newTransformer(src, dst crs.ID, configFile string) (*crs.Transformer, error) {
	if src.Vertical == 0 && dst.Vertical == 0 {
		return crs.NewTransformer(src, dst)
	}
	if configFile == "" {
		return nil, fmt.Errorf("%w: --config with grids is required for vertical datums", crs.ErrMissingGrid)
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: 60 * time.Second}
	return processor.New(client, cfg, processor.Options{}).Transformer(context.Background(), src, dst)
}

type coordinate struct {
	Z    *float64
	X, Y float64
	Line int
}

// record is one converted coordinate. Failed conversions keep the input
// and carry the error.
type record struct {
	Z           *float64 `json:"z,omitempty" yaml:"z,omitempty"`
	Error       string   `json:"error,omitempty" yaml:"error,omitempty"`
	InX         float64  `json:"in_x" yaml:"in_x"`
	InY         float64  `json:"in_y" yaml:"in_y"`
	X           float64  `json:"x" yaml:"x"`
	Y           float64  `json:"y" yaml:"y"`
	Line        int      `json:"line" yaml:"line"`
	OutsideArea bool     `json:"outside_area,omitempty" yaml:"outside_area,omitempty"`
}

// readCoordinates accepts whitespace or comma separated rows. Blank lines,
// '#' comments and rows whose first field is not a number (headers) are skipped.
func readCoordinates(r io.Reader) ([]coordinate, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var out []coordinate
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)

		fields := splitFields(row)
		if len(fields) == 0 {
			continue
		}
		if _, err := strconv.ParseFloat(fields[0], 64); err != nil {
			log.Debug().Int("line", line).Msg("Skipping non-numeric row")
			continue
		}
		if len(fields) < 2 || len(fields) > 3 {
			return nil, fmt.Errorf("line %d: expected 2 or 3 values, got %d", line, len(fields))
		}

		c := coordinate{Line: line}
		var errX, errY error
		c.X, errX = strconv.ParseFloat(fields[0], 64)
		c.Y, errY = strconv.ParseFloat(fields[1], 64)
		if errX != nil || errY != nil {
			return nil, fmt.Errorf("line %d: invalid coordinate", line)
		}
		if len(fields) == 3 {
			z, err := strconv.ParseFloat(fields[2], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid height %q", line, fields[2])
			}
			c.Z = &z
		}
		out = append(out, c)
	}

	return out, nil
}

// splitFields expands space separated values inside CSV cells.
func splitFields(row []string) []string {
	var fields []string
	for _, cell := range row {
		start := -1
		for i, r := range cell + " " {
			if r == ' ' || r == '\t' {
				if start >= 0 {
					fields = append(fields, cell[start:i])
					start = -1
				}
				continue
			}
			if start < 0 {
				start = i
			}
		}
	}
	return fields
}

func convert(t *crs.Transformer, coords []coordinate) []record {
	out := make([]record, 0, len(coords))
	for _, c := range coords {
		r := record{Line: c.Line, InX: c.X, InY: c.Y}

		var err error
		if c.Z != nil {
			var h float64
			r.X, r.Y, h, err = t.Transform3D(c.X, c.Y, *c.Z)
			r.Z = &h
		} else {
			r.X, r.Y, err = t.Transform(c.X, c.Y)
		}

		if err != nil {
			log.Warn().Err(err).Int("line", c.Line).Msg("Coordinate not converted")
			r = record{Line: c.Line, InX: c.X, InY: c.Y, Error: err.Error()}
		} else if !t.Covers(c.X, c.Y) {
			log.Warn().Int("line", c.Line).Str("crs", t.Target().String()).Msg("Coordinate outside the area of use")
			r.OutsideArea = true
		}
		out = append(out, r)
	}
	return out
}

func write(w io.Writer, format string, records []record) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)

	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(records); err != nil {
			return err
		}
		return enc.Close()

	case "csv":
		cw := csv.NewWriter(w)
		_ = cw.Write([]string{"x", "y", "z", "error"})
		for _, r := range records {
			row := []string{"", "", "", r.Error}
			if r.Error == "" {
				row[0] = strconv.FormatFloat(r.X, 'f', -1, 64)
				row[1] = strconv.FormatFloat(r.Y, 'f', -1, 64)
				if r.Z != nil {
					row[2] = strconv.FormatFloat(*r.Z, 'f', -1, 64)
				}
			}
			_ = cw.Write(row)
		}
		cw.Flush()
		return cw.Error()

	default:
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Line", "In X", "In Y", "X", "Y", "Z", "Error"})
		for _, r := range records {
			row := table.Row{r.Line, r.InX, r.InY, "", "", "", r.Error}
			if r.Error == "" {
				row[3] = fmt.Sprintf("%.3f", r.X)
				row[4] = fmt.Sprintf("%.3f", r.Y)
				if r.Z != nil {
					row[5] = fmt.Sprintf("%.3f", *r.Z)
				}
			}
			t.AppendRow(row)
		}
		t.Render()
		return nil
	}
}
