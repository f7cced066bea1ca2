package geocode

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const parisResponse = `[{
	"display_name": "Paris, Île-de-France, France",
	"lat": "48.8588897",
	"lon": "2.3200410",
	"address": {"city": "Paris", "state": "Île-de-France", "country": "France"}
}]`

func testClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	c := New(server.URL, "test-agent", 2*time.Second, slog.Default())
	c.retryCfg.InitialWait = time.Millisecond
	return c, server
}

func TestLookup(t *testing.T) {
	var gotUA string
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		assert.Equal(t, "Paris", r.URL.Query().Get("q"))
		assert.Equal(t, "jsonv2", r.URL.Query().Get("format"))
		w.Write([]byte(parisResponse))
	})

	res, err := c.Lookup(context.Background(), "Paris")
	require.NoError(t, err)
	assert.Equal(t, "test-agent", gotUA)
	assert.InDelta(t, 48.8588897, res.Latitude, 1e-6)
	assert.InDelta(t, 2.3200410, res.Longitude, 1e-6)
	assert.Equal(t, "Île-de-France, France", res.Display)
}

func TestLookupCachesWithinTTL(t *testing.T) {
	var calls int32
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(parisResponse))
	})

	_, err := c.Lookup(context.Background(), "Paris")
	require.NoError(t, err)

	// Same address, different casing and spacing: no second HTTP call.
	_, err = c.Lookup(context.Background(), "  paris ")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestLookupNotFoundIsCached(t *testing.T) {
	var calls int32
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`[]`))
	})

	_, err := c.Lookup(context.Background(), "nowhere at all")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.Lookup(context.Background(), "nowhere at all")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "negative result served from cache")
}

func TestLookupRetriesServerErrors(t *testing.T) {
	var calls int32
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(parisResponse))
	})

	res, err := c.Lookup(context.Background(), "Paris")
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.NotNil(t, res)
}

func TestLookupDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.Lookup(context.Background(), "Paris")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "4xx answers are final")
}

func TestLookupEmptyQuery(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no HTTP call expected")
	})
	_, err := c.Lookup(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInvalidate(t *testing.T) {
	var calls int32
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(parisResponse))
	})

	_, err := c.Lookup(context.Background(), "Paris")
	require.NoError(t, err)
	assert.True(t, c.Invalidate("paris"))

	_, err = c.Lookup(context.Background(), "Paris")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCoarseDisplay(t *testing.T) {
	tests := []struct {
		name    string
		address map[string]string
		want    string
	}{
		{"state and country", map[string]string{"state": "Bretagne", "country": "France"}, "Bretagne, France"},
		{"region fallback", map[string]string{"region": "Wallonie", "country": "Belgique"}, "Wallonie, Belgique"},
		{"county fallback", map[string]string{"county": "Kent", "country": "United Kingdom"}, "Kent, United Kingdom"},
		{"country only", map[string]string{"country": "Suisse"}, "Suisse"},
		{"region only", map[string]string{"state": "Québec"}, "Québec"},
		{"nothing", map[string]string{}, "Localisation définie"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, coarseDisplay(tt.address))
		})
	}
}
