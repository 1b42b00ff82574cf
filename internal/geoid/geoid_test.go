package geoid

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/woozymasta/reproj/internal/crs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 4x2 global grid, 90 degree cells
const globalGrid = `ncols 4
nrows 2
xllcorner -180
yllcorner -90
cellsize 90
NODATA_value -9999
10 20 30 40
50 60 70 80
`

func writeGrid(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "grid.asc")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadLocal(t *testing.T) {
	m, err := Load(context.Background(), http.DefaultClient, "test", writeGrid(t, globalGrid), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "test", m.Name())

	n, err := m.Undulation(-135, 45)
	require.NoError(t, err)
	assert.InDelta(t, 10, n, 1e-9)

	// wrapped longitude hits the same cell
	n, err = m.Undulation(225, 45)
	require.NoError(t, err)
	assert.InDelta(t, 10, n, 1e-9)
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(context.Background(), http.DefaultClient, "none", filepath.Join(t.TempDir(), "nope.asc"), t.TempDir())
	assert.ErrorIs(t, err, crs.ErrMissingGrid)
}

func TestLoadRemoteCachesGrid(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write([]byte(globalGrid))
	}))
	defer srv.Close()

	cache := t.TempDir()
	for i := 0; i < 2; i++ {
		_, err := Load(context.Background(), srv.Client(), "egm", srv.URL+"/egm.asc", cache)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, hits)
	assert.FileExists(t, filepath.Join(cache, "grids", "egm.asc"))
}

func TestLoadRemoteUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := Load(context.Background(), srv.Client(), "egm", srv.URL+"/egm.asc", t.TempDir())
	assert.ErrorIs(t, err, crs.ErrMissingGrid)
}

func TestModelWithTransformer(t *testing.T) {
	m, err := Load(context.Background(), http.DefaultClient, "test", writeGrid(t, globalGrid), t.TempDir())
	require.NoError(t, err)

	tr, err := crs.NewTransformer(crs.MustParse("EPSG:4979"), crs.MustParse("EPSG:4326+3855"), crs.WithGeoid(3855, m))
	require.NoError(t, err)

	_, _, h, err := tr.Transform3D(-135, -45, 100)
	require.NoError(t, err)
	assert.InDelta(t, 50, h, 1e-6)
}

func TestConstant(t *testing.T) {
	n, err := Constant(12.5).Undulation(0, 0)
	require.NoError(t, err)
	assert.Equal(t, 12.5, n)
}
