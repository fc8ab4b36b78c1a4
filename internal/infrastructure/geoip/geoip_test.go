package geoip

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_LookupIPAPIFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"countryCode":"DE","city":"Berlin","lat":52.52,"lon":13.405,"timezone":"Europe/Berlin"}`))
	}))
	defer srv.Close()

	c := NewClient(WithEndpoints(srv.URL + "/json/#ip"))
	info, err := c.Lookup(context.Background(), "93.184.216.34")
	require.NoError(t, err)

	assert.Equal(t, "DE", info.Country)
	assert.Equal(t, "Berlin", info.City)
	assert.InDelta(t, 52.52, info.Latitude, 1e-9)
	assert.InDelta(t, 13.405, info.Longitude, 1e-9)
	assert.Equal(t, "Europe/Berlin", info.Timezone)
	assert.True(t, info.IsEU)
}

func TestClient_LookupIPInfoFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"country":"US","city":"Norwell","loc":"42.1596,-70.8217","timezone":"America/New_York"}`))
	}))
	defer srv.Close()

	c := NewClient(WithEndpoints(srv.URL + "/#ip/json"))
	info, err := c.Lookup(context.Background(), "8.8.8.8")
	require.NoError(t, err)

	assert.Equal(t, "US", info.Country)
	assert.InDelta(t, 42.1596, info.Latitude, 1e-4)
	assert.InDelta(t, -70.8217, info.Longitude, 1e-4)
	assert.False(t, info.IsEU)
}

func TestClient_LookupFailover(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	working := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"countryCode":"SA","city":"Riyadh"}`))
	}))
	defer working.Close()

	c := NewClient(WithEndpoints(broken.URL+"/#ip", working.URL+"/#ip"))
	info, err := c.Lookup(context.Background(), "8.8.8.8")
	require.NoError(t, err)
	assert.Equal(t, "SA", info.Country)
}

func TestClient_LookupAllEndpointsFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(WithEndpoints(srv.URL+"/#ip", srv.URL+"/#ip"))
	_, err := c.Lookup(context.Background(), "8.8.8.8")
	assert.Error(t, err)
}

func TestClient_LookupInvalidIP(t *testing.T) {
	c := NewClient()
	_, err := c.Lookup(context.Background(), "not-an-ip")
	assert.Error(t, err)
}

func TestClient_LookupMissingCountry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"city":"Nowhere"}`))
	}))
	defer srv.Close()

	c := NewClient(WithEndpoints(srv.URL + "/#ip"))
	_, err := c.Lookup(context.Background(), "8.8.8.8")
	assert.Error(t, err)
}

func TestClient_DebugLoopback(t *testing.T) {
	c := NewClient(WithDebug(true))

	info, err := c.Lookup(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "Unknown", info.Country)

	info, err = c.Lookup(context.Background(), "::1")
	require.NoError(t, err)
	assert.Equal(t, "Unknown", info.Country)
}
