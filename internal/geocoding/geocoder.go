// Package geocoding resolves coordinates to display addresses. Addresses are
// audit decoration only and never feed policy decisions, so every failure
// path degrades to an empty string.
package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"shiftclock/internal/types"

	"github.com/sirupsen/logrus"
)

// Geocoder resolves a coordinate to a human-readable address.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) string
}

// NewGeocoder returns the HTTP geocoder when an endpoint is configured,
// otherwise the noop one.
func NewGeocoder(configManager types.ConfigManager) Geocoder {
	cfg := configManager.GetGeocodingConfig()
	if cfg.Endpoint == "" {
		logrus.Debug("No geocoding endpoint configured, addresses will be blank")
		return &NoopGeocoder{}
	}
	return &HTTPGeocoder{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// NoopGeocoder always returns an empty address.
type NoopGeocoder struct{}

func (g *NoopGeocoder) ReverseGeocode(ctx context.Context, lat, lng float64) string {
	return ""
}

// HTTPGeocoder calls a Nominatim-compatible reverse endpoint.
type HTTPGeocoder struct {
	endpoint string
	client   *http.Client
}

func (g *HTTPGeocoder) ReverseGeocode(ctx context.Context, lat, lng float64) string {
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%f", lat))
	q.Set("lon", fmt.Sprintf("%f", lng))
	q.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		logrus.WithError(err).Debug("Failed to build geocoding request")
		return ""
	}

	resp, err := g.client.Do(req)
	if err != nil {
		logrus.WithError(err).Debug("Reverse geocoding request failed")
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logrus.WithField("status", resp.StatusCode).Debug("Reverse geocoding returned non-200")
		return ""
	}

	var payload struct {
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		logrus.WithError(err).Debug("Failed to decode geocoding response")
		return ""
	}
	return payload.DisplayName
}
