package geocode

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNominatimGeocode_Match(t *testing.T) {
	var gotQuery, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[{
			"lat": "45.5017", "lon": "-73.5673",
			"display_name": "10 Main St, Montreal",
			"class": "building", "type": "yes", "importance": 0.4
		}]`)
	}))
	defer srv.Close()

	c, err := New(BackendNominatim, WithNominatimURL(srv.URL), WithUserAgent("routemap-test"), WithRetry(noRetry()))
	require.NoError(t, err)

	result, err := c.Geocode(context.Background(), "  10   Main St ")
	require.NoError(t, err)
	assert.Equal(t, "10 Main St", gotQuery)
	assert.Equal(t, "routemap-test", gotUA)
	assert.InDelta(t, 45.5017, result.Latitude, 1e-6)
	assert.InDelta(t, -73.5673, result.Longitude, 1e-6)
	assert.Equal(t, BackendNominatim, result.Source)
	assert.Equal(t, "rooftop", result.Quality)
	assert.Equal(t, "10 Main St, Montreal", result.DisplayName)
}

func TestNominatimGeocode_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	c, err := New(BackendNominatim, WithNominatimURL(srv.URL), WithRetry(noRetry()))
	require.NoError(t, err)

	_, err = c.Geocode(context.Background(), "000 Nowhere")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNominatimGeocode_EmptyAddress(t *testing.T) {
	c, err := New(BackendNominatim, WithRetry(noRetry()))
	require.NoError(t, err)

	_, err = c.Geocode(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNominatimGeocode_BadCoordinates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[{"lat": "north", "lon": "1"}]`)
	}))
	defer srv.Close()

	c, err := New(BackendNominatim, WithNominatimURL(srv.URL), WithRetry(noRetry()))
	require.NoError(t, err)

	_, err = c.Geocode(context.Background(), "10 Main St")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse lat")
}

func TestNominatimGeocode_RetriesTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, `[{"lat": "1.5", "lon": "2.5", "class": "place"}]`)
	}))
	defer srv.Close()

	c, err := New(BackendNominatim, WithNominatimURL(srv.URL), WithRetry(fastRetry(3)))
	require.NoError(t, err)

	result, err := c.Geocode(context.Background(), "Somewhere")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "centroid", result.Quality)
}

func TestNominatimGeocode_PermanentErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c, err := New(BackendNominatim, WithNominatimURL(srv.URL), WithRetry(fastRetry(3)))
	require.NoError(t, err)

	_, err = c.Geocode(context.Background(), "Somewhere")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNominatimQuality(t *testing.T) {
	tests := []struct {
		class, typ, want string
	}{
		{"building", "yes", "rooftop"},
		{"place", "house", "rooftop"},
		{"highway", "residential", "range"},
		{"place", "city", "centroid"},
		{"boundary", "administrative", "centroid"},
		{"amenity", "cafe", "approximate"},
	}
	for _, tt := range tests {
		t.Run(tt.class+"/"+tt.typ, func(t *testing.T) {
			assert.Equal(t, tt.want, nominatimQuality(tt.class, tt.typ))
		})
	}
}
