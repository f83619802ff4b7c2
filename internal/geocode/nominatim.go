// Package geocode resolves GPS coordinates to a short place name.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"complaint-portal/internal/apperrors"
	"complaint-portal/internal/config"
)

const addressParts = 3

type reverseResponse struct {
	DisplayName string `json:"display_name"`
}

// Nominatim is a reverse geocoder for the OpenStreetMap Nominatim API. Its
// usage policy allows one request per second.
type Nominatim struct {
	client    *http.Client
	endpoint  string
	userAgent string
	limiter   *rate.Limiter
	logger    *logrus.Logger
}

func NewNominatim(cfg *config.Config, logger *logrus.Logger) *Nominatim {
	return &Nominatim{
		client:    &http.Client{Timeout: cfg.FetchTimeout},
		endpoint:  cfg.GeocoderURL,
		userAgent: cfg.GeocoderUserAgent,
		limiter:   rate.NewLimiter(rate.Every(time.Second), 1),
		logger:    logger,
	}
}

// Reverse returns the first three comma-separated parts of the display name
// for the given point.
func (n *Nominatim) Reverse(ctx context.Context, lat, lon float64) (string, error) {
	const op = "reverse geocode"

	if err := n.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter error: %w", err)
	}

	params := url.Values{}
	params.Set("format", "json")
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("zoom", "18")
	params.Set("addressdetails", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create geocode request: %w", err)
	}
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", apperrors.NewTimeoutError(op, err)
		}
		return "", apperrors.NewNetworkError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &apperrors.RemoteError{Op: op, Message: http.StatusText(resp.StatusCode), StatusCode: resp.StatusCode}
	}

	var body reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", apperrors.NewRemoteError(op, "invalid JSON response")
	}
	if body.DisplayName == "" {
		return "", apperrors.NewRemoteError(op, "no address for coordinates")
	}

	place := ShortAddress(body.DisplayName)
	n.logger.WithField("location", place).Debug("Reverse geocoded coordinates")
	return place, nil
}

// ShortAddress keeps the first three comma-separated parts of an address.
func ShortAddress(displayName string) string {
	parts := strings.Split(displayName, ",")
	if len(parts) > addressParts {
		parts = parts[:addressParts]
	}
	return strings.TrimSpace(strings.Join(parts, ","))
}
