package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceDest(t *testing.T) {
	tests := []struct {
		name    string
		source  Source
		want    string
		wantErr bool
	}{
		{
			name:   "explicit name wins",
			source: Source{Name: "hand.tif", URL: "https://example.com/srtm/tile.tif"},
			want:   "hand.tif",
		},
		{
			name:   "name derived from url",
			source: Source{URL: "https://example.com/srtm/tile.tif"},
			want:   "tile.tif",
		},
		{
			name:    "bare host needs a name",
			source:  Source{URL: "https://example.com/"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.source.dest()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClientRoutesByScheme(t *testing.T) {
	c := NewClient(Options{})

	f, err := c.fetcherFor("https://example.com/x.tif")
	require.NoError(t, err)
	assert.Same(t, c.HTTP, f)

	f, err = c.fetcherFor("ftp://example.com/x.tif")
	require.NoError(t, err)
	assert.Same(t, c.FTP, f)

	_, err = c.fetcherFor("s3://bucket/x.tif")
	assert.ErrorContains(t, err, "unsupported scheme")
}

func TestFetchAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/hand.tif":
			_, _ = w.Write([]byte("elevation"))
		case "/buildings.tif":
			_, _ = w.Write([]byte("footprints"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(Options{MaxRetries: 1, Rate: 100, Burst: 100, Timeout: 5 * time.Second})
	dir := t.TempDir()

	sources := []Source{
		{URL: srv.URL + "/hand.tif"},
		{Name: "settlement.tif", URL: srv.URL + "/buildings.tif"},
		{URL: srv.URL + "/absent.tif"},
	}

	outcomes := c.FetchAll(context.Background(), sources, dir, 2)

	require.Len(t, outcomes, 3)
	assert.Equal(t, 1, Failed(outcomes))

	require.NoError(t, outcomes[0].Err)
	assert.True(t, outcomes[0].Changed)
	assert.Equal(t, filepath.Join(dir, "hand.tif"), outcomes[0].Path)
	data, err := os.ReadFile(outcomes[0].Path)
	require.NoError(t, err)
	assert.Equal(t, "elevation", string(data))

	require.NoError(t, outcomes[1].Err)
	assert.Equal(t, filepath.Join(dir, "settlement.tif"), outcomes[1].Path)

	assert.Error(t, outcomes[2].Err)
	_, err = os.Stat(filepath.Join(dir, "absent.tif"))
	assert.True(t, os.IsNotExist(err))
}

func TestFetchAllSkipsUnchangedLayers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"same"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"same"`)
		_, _ = w.Write([]byte("rivers"))
	}))
	defer srv.Close()

	c := NewClient(Options{MaxRetries: 1, Rate: 100, Burst: 100, Timeout: 5 * time.Second})
	dir := t.TempDir()
	sources := []Source{{Name: "rivers.shp", URL: srv.URL + "/rivers"}}

	first := c.FetchAll(context.Background(), sources, dir, 1)
	require.NoError(t, first[0].Err)
	assert.True(t, first[0].Changed)

	second := c.FetchAll(context.Background(), sources, dir, 1)
	require.NoError(t, second[0].Err)
	assert.False(t, second[0].Changed)
}
