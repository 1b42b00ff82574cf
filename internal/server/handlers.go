// Package server handles HTTP requests and middleware.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/woozymasta/reproj/internal/config"
	"github.com/woozymasta/reproj/internal/crs"

	"github.com/rs/zerolog/log"
)

const etagCap = 64

var contentTypes = map[string]string{
	".geojson": "application/geo+json",
	".csv":     "text/csv; charset=utf-8",
	".asc":     "text/plain; charset=utf-8",
	".tfw":     "text/plain; charset=utf-8",
	".tif":     "image/tiff",
	".png":     "image/png",
	".svg":     "image/svg+xml",
	".pdf":     "application/pdf",
	".webp":    "image/webp",
}

type datasetView struct {
	config.Dataset
	Files []string `json:"files"`
}

// HandleDatasetsList serves the JSON list of available datasets.
func (s *ServerContext) HandleDatasetsList(w http.ResponseWriter, r *http.Request) {
	out := make([]datasetView, 0, len(s.Config.Datasets))
	for _, d := range s.Config.Datasets {
		out = append(out, datasetView{Dataset: d, Files: s.Files[d.Name]})
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleCRSList serves the supported horizontal and vertical definitions.
func (s *ServerContext) HandleCRSList(w http.ResponseWriter, r *http.Request) {
	type horizontal struct {
		crs.Definition
		ID   crs.ID     `json:"id"`
		Area [4]float64 `json:"area"`
	}

	defs := crs.Definitions()
	list := make([]horizontal, 0, len(defs))
	for _, d := range defs {
		list = append(list, horizontal{
			Definition: d,
			ID:         d.ID(),
			Area:       [4]float64{d.Area.Min[0], d.Area.Min[1], d.Area.Max[0], d.Area.Max[1]},
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"horizontal": list,
		"vertical":   crs.VerticalDatums(),
	})
}

type transformResponse struct {
	From crs.ID   `json:"from"`
	To   crs.ID   `json:"to"`
	Z    *float64 `json:"z,omitempty"`
	X    float64  `json:"x"`
	Y    float64  `json:"y"`
}

// HandleTransform converts a single coordinate:
// /api/transform?from=EPSG:4326&to=EPSG:3857&x=14.1&y=62.3[&z=100]
func (s *ServerContext) HandleTransform(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	src, err := crs.Parse(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("from: %w", err))
		return
	}
	dst, err := crs.Parse(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("to: %w", err))
		return
	}

	x, errX := strconv.ParseFloat(q.Get("x"), 64)
	y, errY := strconv.ParseFloat(q.Get("y"), 64)
	if errX != nil || errY != nil {
		writeError(w, http.StatusBadRequest, errors.New("x and y must be numbers"))
		return
	}

	var z *float64
	if raw := q.Get("z"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("z must be a number"))
			return
		}
		z = &v
	}

	t, err := s.transformer(r.Context(), src, dst)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	resp := transformResponse{From: src, To: dst}
	if z != nil {
		var h float64
		resp.X, resp.Y, h, err = t.Transform3D(x, y, *z)
		resp.Z = &h
	} else {
		resp.X, resp.Y, err = t.Transform(x, y)
	}
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, crs.ErrUnknownCRS):
		return http.StatusBadRequest
	case errors.Is(err, crs.ErrOutOfDomain):
		return http.StatusUnprocessableEntity
	case errors.Is(err, crs.ErrMissingGrid):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HandleFavicon serves the site icon.
func (s *ServerContext) HandleFavicon(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	_, _ = w.Write(s.Favicon)
}

// HandleIndex serves the main HTML application.
func (s *ServerContext) HandleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && strings.Contains(r.URL.Path, ".") {
		http.NotFound(w, r)
		return
	}

	etag := fmt.Sprintf(`"%x"`, len(s.IndexHTML))

	if match := r.Header.Get("If-None-Match"); match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, no-cache")
	_, _ = w.Write(s.IndexHTML)
}

// HandleData serves dataset outputs: /data/{dataset}/{file}.
// The dataset may be addressed by an alias.
func (s *ServerContext) HandleData(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 {
		http.NotFound(w, r)
		return
	}

	name, ok := s.Resolver[parts[1]]
	if !ok {
		http.NotFound(w, r)
		return
	}

	// only files listed at startup, so paths outside the output stay unreachable
	file := parts[2]
	if !slices.Contains(s.Files[name], file) {
		http.NotFound(w, r)
		return
	}

	path := filepath.Join(s.Config.Output, name, file)
	if !s.serveFile(w, r, path, contentTypes[filepath.Ext(file)]) {
		http.NotFound(w, r)
	}
}

// serveFile tries to serve a file from disk with ETag generation.
// It returns true if the file was found and served (or 304).
func (s *ServerContext) serveFile(w http.ResponseWriter, r *http.Request, path string, contentType string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if info.IsDir() {
		return false
	}

	buf := make([]byte, 0, etagCap)
	buf = append(buf, '"')
	buf = strconv.AppendInt(buf, info.Size(), 16)
	buf = append(buf, '-')
	buf = strconv.AppendInt(buf, info.ModTime().UnixNano(), 16)
	buf = append(buf, '"')
	etag := string(buf)

	// check If-None-Match (client sent ETag)
	if match := r.Header.Get("If-None-Match"); match == etag {
		w.WriteHeader(http.StatusNotModified)
		return true
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, no-cache")

	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}

	http.ServeFile(w, r, path)
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Ignoring error as we cannot handle client disconnects
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	log.Debug().Err(err).Int("status", status).Msg("Request rejected")
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
