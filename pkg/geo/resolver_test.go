package geo

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/menta2k/medref/pkg/types"
)

func newTestResolver(srv *httptest.Server) *MapsResolver {
	return NewMapsResolver(Config{
		GeocodeURL: srv.URL + "/geocode/json",
		PlacesURL:  srv.URL + "/place/nearbysearch/json",
		APIKey:     "maps-key",
		Timeout:    time.Second,
	})
}

func TestNewMapsResolverDefaults(t *testing.T) {
	r := NewMapsResolver(Config{})
	require.Equal(t, DefaultGeocodeURL, r.config.GeocodeURL)
	require.Equal(t, DefaultPlacesURL, r.config.PlacesURL)
	require.Equal(t, 10*time.Second, r.config.Timeout)
}

func TestResolve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/geocode/json", r.URL.Path)
		require.Equal(t, "MG Road, Bengaluru", r.URL.Query().Get("address"))
		require.Equal(t, "maps-key", r.URL.Query().Get("key"))
		fmt.Fprint(w, `{"status":"OK","results":[
			{"formatted_address":"MG Road","geometry":{"location":{"lat":12.9756,"lng":77.6066}}},
			{"formatted_address":"Other","geometry":{"location":{"lat":1,"lng":2}}}
		]}`)
	}))
	defer srv.Close()

	point, err := newTestResolver(srv).Resolve(context.Background(), "  MG Road, Bengaluru ")
	require.NoError(t, err)
	require.Equal(t, types.GeoPoint{Lat: 12.9756, Lng: 77.6066}, point)
}

func TestResolveNotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Query().Get("address") == "nowhere" {
			fmt.Fprint(w, `{"status":"ZERO_RESULTS","results":[]}`)
			return
		}
		fmt.Fprint(w, `{"status":"OK","results":[]}`)
	}))
	defer srv.Close()

	resolver := newTestResolver(srv)
	for _, address := range []string{"", "   ", "nowhere", "empty"} {
		_, err := resolver.Resolve(context.Background(), address)

		var notFound *types.AddressNotFoundError
		require.ErrorAs(t, err, &notFound, address)
	}
	require.EqualValues(t, 2, calls.Load())
}

func TestResolveProviderErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "http failure",
			status: http.StatusInternalServerError,
			body:   "backend error",
			check: func(t *testing.T, err error) {
				var upstreamErr *types.UpstreamError
				require.ErrorAs(t, err, &upstreamErr)
				require.Equal(t, http.StatusInternalServerError, upstreamErr.Status)
				require.Equal(t, "backend error", upstreamErr.Body)
			},
		},
		{
			name:   "denied in body",
			status: http.StatusOK,
			body:   `{"status":"REQUEST_DENIED","error_message":"The provided API key is invalid."}`,
			check: func(t *testing.T, err error) {
				var upstreamErr *types.UpstreamError
				require.ErrorAs(t, err, &upstreamErr)
				require.Equal(t, http.StatusForbidden, upstreamErr.Status)
				require.Contains(t, upstreamErr.Body, "API key is invalid")
			},
		},
		{
			name:   "malformed body",
			status: http.StatusOK,
			body:   `<html>`,
			check: func(t *testing.T, err error) {
				var parseErr *types.ResponseParseError
				require.ErrorAs(t, err, &parseErr)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			_, err := newTestResolver(srv).Resolve(context.Background(), "somewhere")
			tt.check(t, err)
		})
	}
}

func TestResolveTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	resolver := newTestResolver(srv)
	resolver.config.Timeout = 50 * time.Millisecond

	_, err := resolver.Resolve(context.Background(), "somewhere")
	var timeoutErr *types.UpstreamTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
}

func TestNearby(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "/place/nearbysearch/json", r.URL.Path)
		require.Equal(t, "12.5,77.25", q.Get("location"))
		require.Equal(t, "3000", q.Get("radius"))
		require.Equal(t, "cardiologist", q.Get("keyword"))
		require.Equal(t, "doctor", q.Get("type"))
		require.Equal(t, "maps-key", q.Get("key"))
		fmt.Fprint(w, `{"status":"OK","results":[
			{"name":"Heart Clinic","vicinity":"1 Main St","rating":4.6,"user_ratings_total":120},
			{"name":"City Hospital","formatted_address":"2 Side Rd"}
		]}`)
	}))
	defer srv.Close()

	doctors, err := newTestResolver(srv).Nearby(context.Background(), types.GeoPoint{Lat: 12.5, Lng: 77.25}, "cardiologist", 3000)
	require.NoError(t, err)
	require.Len(t, doctors, 2)

	require.Equal(t, "Heart Clinic", doctors[0].Name)
	require.Equal(t, "1 Main St", doctors[0].Address)
	require.NotNil(t, doctors[0].Rating)
	require.InDelta(t, 4.6, *doctors[0].Rating, 1e-9)
	require.Equal(t, 120, doctors[0].RatingCount)

	require.Equal(t, "City Hospital", doctors[1].Name)
	require.Equal(t, "2 Side Rd", doctors[1].Address)
	require.Nil(t, doctors[1].Rating)
}

func TestNearbyZeroResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "5000", r.URL.Query().Get("radius"))
		fmt.Fprint(w, `{"status":"ZERO_RESULTS","results":[]}`)
	}))
	defer srv.Close()

	doctors, err := newTestResolver(srv).Nearby(context.Background(), types.GeoPoint{}, "oncologist", 0)
	require.NoError(t, err)
	require.Empty(t, doctors)
}

func TestNearbyQuotaExceeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"OVER_QUERY_LIMIT"}`)
	}))
	defer srv.Close()

	_, err := newTestResolver(srv).Nearby(context.Background(), types.GeoPoint{}, "oncologist", 1000)

	var upstreamErr *types.UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	require.Equal(t, http.StatusTooManyRequests, upstreamErr.Status)
}
