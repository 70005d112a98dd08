package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/menta2k/medref/pkg/referral"
	"github.com/menta2k/medref/pkg/types"
)

type fakeAnalyzer struct {
	bundle  *types.ResultBundle
	err     error
	upload  *types.UploadedImage
	address string
}

func (f *fakeAnalyzer) Run(ctx context.Context, image *types.UploadedImage, address string) (*types.ResultBundle, error) {
	f.upload = image
	f.address = address
	return f.bundle, f.err
}

func setupRouter(analyzer Analyzer, maxUpload int64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	return NewRouter(NewHandler(analyzer, logger, maxUpload, "test-model"), logger).SetupRoutes()
}

func multipartRequest(t *testing.T, fields map[string]string, image []byte) *http.Request {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	if image != nil {
		part, err := writer.CreateFormFile("image", "scan.png")
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestAnalyzeSuccess(t *testing.T) {
	analyzer := &fakeAnalyzer{bundle: &types.ResultBundle{
		ID:        "run-1",
		Disease:   "acne",
		Specialty: types.Dermatologist,
		Doctors:   []types.DoctorListing{},
	}}
	router := setupRouter(analyzer, 1024)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, map[string]string{"address": "Delhi"}, []byte("fake image bytes")))

	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, w.Header().Get(requestIDHeader))

	resp := decodeResponse(t, w)
	require.True(t, resp.Success)
	data := resp.Data.(map[string]any)
	require.Equal(t, "dermatologist", data["specialty"])
	require.Equal(t, []any{}, data["doctors"])

	require.Equal(t, "Delhi", analyzer.address)
	require.Equal(t, []byte("fake image bytes"), analyzer.upload.Data)
	require.Equal(t, "scan.png", analyzer.upload.Filename)
}

func TestAnalyzeMissingImage(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	w := httptest.NewRecorder()
	setupRouter(analyzer, 1024).ServeHTTP(w, multipartRequest(t, map[string]string{"address": "Delhi"}, nil))

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.False(t, decodeResponse(t, w).Success)
	require.Nil(t, analyzer.upload)
}

func TestAnalyzeUploadTooLarge(t *testing.T) {
	w := httptest.NewRecorder()
	setupRouter(&fakeAnalyzer{}, 8).ServeHTTP(w, multipartRequest(t, nil, bytes.Repeat([]byte("x"), 64)))

	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestAnalyzePipelineFailure(t *testing.T) {
	analyzer := &fakeAnalyzer{err: &referral.PipelineError{
		Stage: referral.ModelInvoking,
		Err:   &types.UpstreamTimeoutError{Provider: "vision model", Err: context.DeadlineExceeded},
	}}

	w := httptest.NewRecorder()
	setupRouter(analyzer, 1024).ServeHTTP(w, multipartRequest(t, nil, []byte("img")))

	require.Equal(t, http.StatusGatewayTimeout, w.Code)
	resp := decodeResponse(t, w)
	require.False(t, resp.Success)
	require.Equal(t, "model_invoking", resp.Stage)
	require.Contains(t, resp.Error, "did not respond in time")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{types.ErrNoImage, http.StatusBadRequest},
		{&types.DecodeError{Err: errors.New("bad")}, http.StatusUnprocessableEntity},
		{&types.PayloadTooLargeError{Length: 2, Limit: 1}, http.StatusUnprocessableEntity},
		{&types.AddressNotFoundError{Address: "x"}, http.StatusNotFound},
		{&types.UpstreamTimeoutError{Provider: "p"}, http.StatusGatewayTimeout},
		{&types.UpstreamError{Provider: "p", Status: 500}, http.StatusBadGateway},
		{&types.ResponseParseError{Provider: "p", Err: errors.New("x")}, http.StatusBadGateway},
		{errors.New("other"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		wrapped := &referral.PipelineError{Stage: referral.ModelInvoking, Err: tt.err}
		require.Equal(t, tt.want, StatusFor(wrapped), fmt.Sprintf("%T", tt.err))
	}
}

func TestHealthCheck(t *testing.T) {
	w := httptest.NewRecorder()
	setupRouter(&fakeAnalyzer{}, 1024).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	require.True(t, resp.Success)
	require.Equal(t, "test-model", resp.Data.(map[string]any)["model"])
}

func TestRequestIDIsPropagated(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "abc-123")

	w := httptest.NewRecorder()
	setupRouter(&fakeAnalyzer{}, 1024).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "abc-123", w.Header().Get(requestIDHeader))
}

func TestPanicIsRecovered(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ErrorHandler(zap.NewNop()))
	router.GET("/panic", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, "Internal server error", decodeResponse(t, w).Error)
}
