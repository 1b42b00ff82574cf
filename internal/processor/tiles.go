package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/woozymasta/reproj/internal/crs"
	"github.com/woozymasta/reproj/internal/raster"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/maptile/tilecover"
	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// MercatorHalfWorld is half the Web Mercator world width in metres.
const MercatorHalfWorld = 20037508.342789244

var errTileMissing = errors.New("tile not found")

// TileCoordinate represents a specific tile.
type TileCoordinate struct {
	Z, X, Y int
}

// Span returns the tile edge length in Web Mercator metres.
func (c TileCoordinate) Span() float64 {
	return 2 * MercatorHalfWorld / float64(int(1)<<c.Z)
}

// Bound returns the tile extent in Web Mercator.
func (c TileCoordinate) Bound() orb.Bound {
	span := c.Span()
	minX := -MercatorHalfWorld + float64(c.X)*span
	maxY := MercatorHalfWorld - float64(c.Y)*span
	return orb.Bound{Min: orb.Point{minX, maxY - span}, Max: orb.Point{minX + span, maxY}}
}

// TerrainRequest describes a Terrarium elevation mosaic.
type TerrainRequest struct {
	URLTemplate string
	CacheDir    string
	Bound       orb.Bound // lon/lat
	Zoom        int
	Concurrency int
	Force       bool
}

type job struct {
	URLTemplate string
	CacheDir    string
	Coord       TileCoordinate
}

type result struct {
	Image image.Image
	Err   error
	Coord TileCoordinate
	Valid bool
}

// CoverTiles lists the tiles intersecting a lon/lat bound, ordered by row then column.
func CoverTiles(b orb.Bound, zoom int) []TileCoordinate {
	b.Min[1] = max(b.Min[1], -85.05112878)
	b.Max[1] = min(b.Max[1], 85.05112878)

	set := tilecover.Bound(b, maptile.Zoom(zoom))
	tiles := make([]TileCoordinate, 0, len(set))
	for t := range set {
		tiles = append(tiles, TileCoordinate{Z: int(t.Z), X: int(t.X), Y: int(t.Y)})
	}

	sort.Slice(tiles, func(i, j int) bool {
		if tiles[i].Y != tiles[j].Y {
			return tiles[i].Y < tiles[j].Y
		}
		return tiles[i].X < tiles[j].X
	})
	return tiles
}

// FetchTerrain downloads the Terrarium tiles covering the request and decodes
// them into a single-band Web Mercator elevation grid. Missing tiles stay nodata.
func FetchTerrain(ctx context.Context, client *http.Client, req TerrainRequest) (*raster.Grid, error) {
	tiles := CoverTiles(req.Bound, req.Zoom)
	if len(tiles) == 0 {
		return nil, fmt.Errorf("no tiles cover %v at zoom %d", req.Bound, req.Zoom)
	}

	concurrency := req.Concurrency
	if concurrency <= 0 {
		concurrency = 8
	}

	log.Info().
		Int("zoom", req.Zoom).
		Int("tiles", len(tiles)).
		Msg("Starting terrain download")

	results := processBatch(ctx, client, concurrency, tiles, req.URLTemplate, req.CacheDir, req.Force)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	minX, minY := tiles[0].X, tiles[0].Y
	maxX, maxY := minX, minY
	tileSize := 0
	var missing, failed int
	for _, r := range results {
		minX, maxX = min(minX, r.Coord.X), max(maxX, r.Coord.X)
		minY, maxY = min(minY, r.Coord.Y), max(maxY, r.Coord.Y)
		switch {
		case r.Valid:
			if tileSize == 0 {
				tileSize = r.Image.Bounds().Dx()
			}
		case errors.Is(r.Err, errTileMissing):
			missing++
		default:
			failed++
			log.Warn().
				Err(r.Err).
				Str("url", buildURL(req.URLTemplate, r.Coord)).
				Msg("Failed to fetch tile")
		}
	}

	if tileSize == 0 {
		return nil, fmt.Errorf("no terrain tiles available (%d missing, %d failed)", missing, failed)
	}

	origin := TileCoordinate{Z: req.Zoom, X: minX, Y: minY}.Bound()
	res := origin.Max[0] - origin.Min[0]
	gt := raster.NorthUp(origin.Min[0], origin.Max[1], res/float64(tileSize), res/float64(tileSize))

	g, err := raster.New((maxX-minX+1)*tileSize, (maxY-minY+1)*tileSize, 1, gt, crs.WebMercator, raster.DefaultNoData)
	if err != nil {
		return nil, err
	}

	for _, r := range results {
		if !r.Valid {
			continue
		}
		if r.Image.Bounds().Dx() != tileSize || r.Image.Bounds().Dy() != tileSize {
			log.Warn().
				Int("z", r.Coord.Z).Int("x", r.Coord.X).Int("y", r.Coord.Y).
				Msg("Tile size differs from mosaic, skipped")
			continue
		}
		offX, offY := (r.Coord.X-minX)*tileSize, (r.Coord.Y-minY)*tileSize
		decodeTerrarium(g, r.Image, offX, offY)
	}

	log.Info().
		Int("width", g.Width).
		Int("height", g.Height).
		Int("missing", missing).
		Int("failed", failed).
		Msg("Terrain mosaic assembled")

	return g, nil
}

// Terrarium returns the elevation encoded in a Terrarium pixel.
func Terrarium(c color.Color) (float64, bool) {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	if n.A == 0 {
		return 0, false
	}
	return float64(n.R)*256 + float64(n.G) + float64(n.B)/256 - 32768, true
}

func decodeTerrarium(g *raster.Grid, img image.Image, offX, offY int) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if h, ok := Terrarium(img.At(x, y)); ok {
				g.Set(0, offX+x-b.Min.X, offY+y-b.Min.Y, h)
			}
		}
	}
}

func processBatch(
	ctx context.Context,
	client *http.Client,
	concurrency int,
	tiles []TileCoordinate,
	urlTpl, cacheDir string,
	force bool,
) []result {

	jobs := make(chan job, len(tiles))
	results := make(chan result, len(tiles))

	go func() {
		for _, t := range tiles {
			jobs <- job{Coord: t, URLTemplate: urlTpl, CacheDir: cacheDir}
		}
		close(jobs)
	}()

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				if err := ctx.Err(); err != nil {
					results <- result{Coord: j.Coord, Err: err}
					continue
				}
				img, err := downloadTile(ctx, client, j, force)
				results <- result{Coord: j.Coord, Image: img, Err: err, Valid: err == nil}
			}
		}()
	}
	wg.Wait()
	close(results)

	out := make([]result, 0, len(tiles))
	for res := range results {
		out = append(out, res)
	}

	return out
}

func downloadTile(ctx context.Context, client *http.Client, j job, force bool) (image.Image, error) {
	var cachePath string
	if j.CacheDir != "" {
		cachePath = filepath.Join(
			j.CacheDir,
			fmt.Sprintf("%d", j.Coord.Z),
			fmt.Sprintf("%d", j.Coord.X),
			fmt.Sprintf("%d", j.Coord.Y)+".tile")

		if !force {
			if data, err := os.ReadFile(cachePath); err == nil && len(data) > 0 {
				return decodeTile(data)
			}
		}
	}

	url := buildURL(j.URLTemplate, j.Coord)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		log.Trace().Str("url", url).Msg("Tile not found (404)")
		return nil, errTileMissing
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status code %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	img, err := decodeTile(data)
	if err != nil {
		return nil, err
	}

	if cachePath != "" {
		if err := os.MkdirAll(filepath.Dir(cachePath), 0755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(cachePath, data, 0644); err != nil {
			return nil, err
		}
	}

	return img, nil
}

func decodeTile(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode tile: %w", err)
	}
	// Filter out empty/1px tiles often returned by map servers for OOB areas
	if img.Bounds().Dx() <= 1 {
		return nil, errTileMissing
	}
	return img, nil
}

func buildURL(tpl string, c TileCoordinate) string {
	s := strings.ReplaceAll(tpl, "{z}", fmt.Sprintf("%d", c.Z))
	s = strings.ReplaceAll(s, "{x}", fmt.Sprintf("%d", c.X))
	s = strings.ReplaceAll(s, "{y}", fmt.Sprintf("%d", c.Y))

	if strings.Contains(s, "{tms_y}") {
		maxCoord := (1 << c.Z) - 1
		tmsY := maxCoord - c.Y
		s = strings.ReplaceAll(s, "{tms_y}", fmt.Sprintf("%d", tmsY))
	}

	return s
}
