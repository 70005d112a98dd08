package medref

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/menta2k/medref/internal/config"
	"github.com/menta2k/medref/pkg/ollama"
	"github.com/menta2k/medref/pkg/openai"
	"github.com/menta2k/medref/pkg/specialty"
	"github.com/menta2k/medref/pkg/types"
)

func TestNewWithDefaults(t *testing.T) {
	pipeline, err := New(config.Default(), nil)
	require.NoError(t, err)
	require.NotNil(t, pipeline.Processor())
	require.Equal(t, 70, pipeline.Processor().Config().Quality)
}

func TestNewVisionClient(t *testing.T) {
	cfg := config.Default().Vision

	c, err := NewVisionClient(cfg)
	require.NoError(t, err)
	require.IsType(t, &openai.Client{}, c)

	cfg.Backend = "ollama"
	cfg.Endpoint = "http://localhost:11434"
	cfg.Model = "llava"
	c, err = NewVisionClient(cfg)
	require.NoError(t, err)
	require.IsType(t, &ollama.Client{}, c)
	require.Equal(t, "llava", c.Model())

	cfg.Backend = "bedrock"
	_, err = NewVisionClient(cfg)
	require.Error(t, err)
}

func TestNewExtractor(t *testing.T) {
	e, err := NewExtractor(config.ReferralConfig{Extractor: "fixed", FixedLabel: "acne"})
	require.NoError(t, err)
	require.Equal(t, specialty.FixedExtractor{Label: "acne"}, e)

	e, err = NewExtractor(config.ReferralConfig{})
	require.NoError(t, err)
	require.IsType(t, &specialty.KeywordExtractor{}, e)

	_, err = NewExtractor(config.ReferralConfig{Extractor: "llm"})
	require.Error(t, err)
}

func TestPipelineEndToEnd(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer vision-key", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"Opacity suggests a cataract in the left eye."}}]}`)
	})
	mux.HandleFunc("/geocode", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "maps-key", r.URL.Query().Get("key"))
		fmt.Fprint(w, `{"status":"OK","results":[{"geometry":{"location":{"lat":28.61,"lng":77.2}}}]}`)
	})
	mux.HandleFunc("/places", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "ophthalmologist", r.URL.Query().Get("keyword"))
		fmt.Fprint(w, `{"status":"OK","results":[{"name":"Eye Centre","vicinity":"Connaught Place"}]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := config.Default()
	cfg.Vision.Endpoint = srv.URL + "/chat"
	cfg.Vision.APIKey = "vision-key"
	cfg.Maps.GeocodeURL = srv.URL + "/geocode"
	cfg.Maps.PlacesURL = srv.URL + "/places"
	cfg.Maps.APIKey = "maps-key"

	pipeline, err := New(cfg, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 16, 16))))

	bundle, err := pipeline.Run(context.Background(), &types.UploadedImage{Data: buf.Bytes()}, "New Delhi")
	require.NoError(t, err)
	require.Equal(t, "cataract", bundle.Disease)
	require.Equal(t, types.Ophthalmologist, bundle.Specialty)
	require.Equal(t, []types.DoctorListing{{Name: "Eye Centre", Address: "Connaught Place"}}, bundle.Doctors)
	require.Equal(t, &types.GeoPoint{Lat: 28.61, Lng: 77.2}, bundle.Location)
}

func TestGetVersion(t *testing.T) {
	require.Equal(t, Version, GetVersion())
}
