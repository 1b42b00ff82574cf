package raster

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/woozymasta/reproj/internal/crs"
)

// ReadASCII parses an ESRI ASCII grid. The format carries no CRS, so the
// caller supplies it.
func ReadASCII(r io.Reader, id crs.ID) (*Grid, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	sc.Split(bufio.ScanWords)

	header := map[string]float64{}
	var pending string

	// header is a run of "key value" pairs, data starts at the first numeric token
	for sc.Scan() {
		tok := sc.Text()
		if _, err := strconv.ParseFloat(tok, 64); err == nil {
			pending = tok
			break
		}
		key := strings.ToLower(tok)
		if !sc.Scan() {
			return nil, fmt.Errorf("ascii grid: missing value for %q", tok)
		}
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return nil, fmt.Errorf("ascii grid: %s: %w", key, err)
		}
		header[key] = v
	}

	ncols, nrows := int(header["ncols"]), int(header["nrows"])
	if ncols <= 0 || nrows <= 0 {
		return nil, fmt.Errorf("ascii grid: invalid size %dx%d", ncols, nrows)
	}

	dx, dy := header["cellsize"], header["cellsize"]
	if v, ok := header["dx"]; ok {
		dx = v
	}
	if v, ok := header["dy"]; ok {
		dy = v
	}
	if dx <= 0 || dy <= 0 {
		return nil, fmt.Errorf("ascii grid: invalid cell size")
	}

	var left, bottom float64
	switch {
	case hasKey(header, "xllcorner"):
		left = header["xllcorner"]
	case hasKey(header, "xllcenter"):
		left = header["xllcenter"] - dx/2
	default:
		return nil, fmt.Errorf("ascii grid: missing xllcorner")
	}
	switch {
	case hasKey(header, "yllcorner"):
		bottom = header["yllcorner"]
	case hasKey(header, "yllcenter"):
		bottom = header["yllcenter"] - dy/2
	default:
		return nil, fmt.Errorf("ascii grid: missing yllcorner")
	}

	nodata := DefaultNoData
	if v, ok := header["nodata_value"]; ok {
		nodata = v
	}

	gt := NorthUp(left, bottom+float64(nrows)*dy, dx, dy)
	g, err := New(ncols, nrows, 1, gt, id, nodata)
	if err != nil {
		return nil, err
	}

	i := 0
	next := func() (string, bool) {
		if pending != "" {
			tok := pending
			pending = ""
			return tok, true
		}
		if sc.Scan() {
			return sc.Text(), true
		}
		return "", false
	}

	for ; i < len(g.Data); i++ {
		tok, ok := next()
		if !ok {
			break
		}
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, fmt.Errorf("ascii grid: sample %d: %w", i, err)
		}
		g.Data[i] = v
	}

	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("ascii grid: %w", err)
	}
	if i != len(g.Data) {
		return nil, fmt.Errorf("ascii grid: expected %d samples, got %d", len(g.Data), i)
	}

	return g, nil
}

// WriteASCII writes one band as an ESRI ASCII grid. Rotated transforms and
// non-square pixels use the dx/dy extension.
func WriteASCII(w io.Writer, g *Grid, band int) error {
	if g.Transform[2] != 0 || g.Transform[4] != 0 {
		return fmt.Errorf("ascii grid: rotated geotransform not supported")
	}

	dx, dy := g.Transform.PixelSize()
	b := g.Bounds()

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "ncols %d\nnrows %d\n", g.Width, g.Height)
	fmt.Fprintf(bw, "xllcorner %s\nyllcorner %s\n", formatFloat(b.Min[0]), formatFloat(b.Min[1]))
	if dx == dy {
		fmt.Fprintf(bw, "cellsize %s\n", formatFloat(dx))
	} else {
		fmt.Fprintf(bw, "dx %s\ndy %s\n", formatFloat(dx), formatFloat(dy))
	}
	fmt.Fprintf(bw, "NODATA_value %s\n", formatFloat(g.NoData))

	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			if col > 0 {
				_ = bw.WriteByte(' ')
			}
			_, _ = bw.WriteString(formatFloat(g.At(band, col, row)))
		}
		_ = bw.WriteByte('\n')
	}

	return bw.Flush()
}

func hasKey(m map[string]float64, k string) bool {
	_, ok := m[k]
	return ok
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
