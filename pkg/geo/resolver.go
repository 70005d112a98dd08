// Package geo resolves free-text addresses and searches for doctors near a
// coordinate using Google Maps style web services.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/menta2k/medref/internal/upstream"
	"github.com/menta2k/medref/pkg/types"
)

const (
	geocodeProvider = "geocoder"
	placesProvider  = "places search"

	DefaultGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"
	DefaultPlacesURL  = "https://maps.googleapis.com/maps/api/place/nearbysearch/json"
	DefaultRadius     = 5000
)

// Resolver is implemented by anything that can geocode and search places
type Resolver interface {
	Resolve(ctx context.Context, address string) (types.GeoPoint, error)
	Nearby(ctx context.Context, point types.GeoPoint, keyword string, radiusMeters int) ([]types.DoctorListing, error)
}

// Config holds endpoints and credentials for the maps services
type Config struct {
	GeocodeURL string
	PlacesURL  string
	APIKey     string
	Timeout    time.Duration
}

// MapsResolver talks to the geocoding and places nearby-search endpoints
type MapsResolver struct {
	config     Config
	httpClient *http.Client
}

// NewMapsResolver creates a resolver, filling in default endpoints
func NewMapsResolver(config Config) *MapsResolver {
	if config.GeocodeURL == "" {
		config.GeocodeURL = DefaultGeocodeURL
	}
	if config.PlacesURL == "" {
		config.PlacesURL = DefaultPlacesURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &MapsResolver{
		config:     config,
		httpClient: &http.Client{},
	}
}

type geocodeResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

type placesResponse struct {
	Status       string        `json:"status"`
	ErrorMessage string        `json:"error_message"`
	Results      []placeResult `json:"results"`
}

type placeResult struct {
	Name             string   `json:"name"`
	Vicinity         string   `json:"vicinity"`
	FormattedAddress string   `json:"formatted_address"`
	Rating           *float64 `json:"rating"`
	UserRatingsTotal int      `json:"user_ratings_total"`
}

// Resolve converts an address into coordinates
func (r *MapsResolver) Resolve(ctx context.Context, address string) (types.GeoPoint, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return types.GeoPoint{}, &types.AddressNotFoundError{}
	}

	params := url.Values{}
	params.Set("address", address)
	params.Set("key", r.config.APIKey)

	var resp geocodeResponse
	if err := r.get(ctx, geocodeProvider, r.config.GeocodeURL, params, &resp); err != nil {
		return types.GeoPoint{}, err
	}

	switch resp.Status {
	case "", "OK":
	case "ZERO_RESULTS":
		return types.GeoPoint{}, &types.AddressNotFoundError{Address: address}
	default:
		return types.GeoPoint{}, providerStatusError(geocodeProvider, resp.Status, resp.ErrorMessage)
	}

	if len(resp.Results) == 0 {
		return types.GeoPoint{}, &types.AddressNotFoundError{Address: address}
	}

	loc := resp.Results[0].Geometry.Location
	return types.GeoPoint{Lat: loc.Lat, Lng: loc.Lng}, nil
}

// Nearby lists doctors around point matching keyword, in provider order
func (r *MapsResolver) Nearby(ctx context.Context, point types.GeoPoint, keyword string, radiusMeters int) ([]types.DoctorListing, error) {
	if radiusMeters <= 0 {
		radiusMeters = DefaultRadius
	}

	params := url.Values{}
	params.Set("location", point.String())
	params.Set("radius", strconv.Itoa(radiusMeters))
	params.Set("keyword", keyword)
	params.Set("type", "doctor")
	params.Set("key", r.config.APIKey)

	var resp placesResponse
	if err := r.get(ctx, placesProvider, r.config.PlacesURL, params, &resp); err != nil {
		return nil, err
	}

	switch resp.Status {
	case "", "OK", "ZERO_RESULTS":
	default:
		return nil, providerStatusError(placesProvider, resp.Status, resp.ErrorMessage)
	}

	return lo.Map(resp.Results, func(item placeResult, _ int) types.DoctorListing {
		address := item.Vicinity
		if address == "" {
			address = item.FormattedAddress
		}
		return types.DoctorListing{
			Name:        item.Name,
			Address:     address,
			Rating:      item.Rating,
			RatingCount: item.UserRatingsTotal,
		}
	}), nil
}

func (r *MapsResolver) get(ctx context.Context, provider, endpoint string, params url.Values, out any) error {
	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return upstream.TransportError(ctx, provider, err)
	}
	defer resp.Body.Close()

	body, err := upstream.ReadBody(ctx, provider, resp)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &types.ResponseParseError{Provider: provider, Err: err}
	}
	return nil
}

// providerStatusError reports an error carried in a 200 response body
func providerStatusError(provider, status, message string) error {
	code := http.StatusBadGateway
	switch status {
	case "REQUEST_DENIED":
		code = http.StatusForbidden
	case "INVALID_REQUEST":
		code = http.StatusBadRequest
	case "OVER_QUERY_LIMIT", "OVER_DAILY_LIMIT":
		code = http.StatusTooManyRequests
	}
	body := status
	if message != "" {
		body = status + ": " + message
	}
	return &types.UpstreamError{Provider: provider, Status: code, Body: body}
}
