package geocoding

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPGeocoder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.NotEmpty(t, r.URL.Query().Get("lat"))
		w.Write([]byte(`{"display_name": "Rizal Park, Manila"}`))
	}))
	defer server.Close()

	g := &HTTPGeocoder{endpoint: server.URL, client: server.Client()}
	addr := g.ReverseGeocode(context.Background(), 14.5826, 120.9787)
	assert.Equal(t, "Rizal Park, Manila", addr)
}

func TestHTTPGeocoderDegradesToEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	g := &HTTPGeocoder{endpoint: server.URL, client: server.Client()}
	assert.Empty(t, g.ReverseGeocode(context.Background(), 14.58, 120.97))
}

func TestNoopGeocoder(t *testing.T) {
	g := &NoopGeocoder{}
	assert.Empty(t, g.ReverseGeocode(context.Background(), 14.58, 120.97))
}
