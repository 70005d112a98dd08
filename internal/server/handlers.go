package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/menta2k/medref/pkg/referral"
	"github.com/menta2k/medref/pkg/types"
)

const imageParamKey = "image"

// Analyzer is the pipeline entry point the handlers call into
type Analyzer interface {
	Run(ctx context.Context, image *types.UploadedImage, address string) (*types.ResultBundle, error)
}

// Response is the envelope of every JSON answer
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Stage   string      `json:"stage,omitempty"`
}

// AnalyzeForm holds the non-file fields of an analysis request
type AnalyzeForm struct {
	Address string `form:"address" binding:"max=256"`
}

type Handler struct {
	analyzer      Analyzer
	logger        *zap.Logger
	maxUploadSize int64
	model         string
}

func NewHandler(analyzer Analyzer, logger *zap.Logger, maxUploadSize int64, model string) *Handler {
	return &Handler{
		analyzer:      analyzer,
		logger:        logger,
		maxUploadSize: maxUploadSize,
		model:         model,
	}
}

// Analyze accepts a multipart upload and returns the result bundle
func (h *Handler) Analyze(c *gin.Context) {
	var form AnalyzeForm
	if err := c.ShouldBind(&form); err != nil {
		h.respondError(c, http.StatusBadRequest, err.Error(), "")
		return
	}

	file, header, err := c.Request.FormFile(imageParamKey)
	if err != nil {
		h.respondError(c, http.StatusBadRequest, "No image file provided", "")
		return
	}
	defer file.Close()

	if header.Size > h.maxUploadSize {
		h.respondError(c, http.StatusRequestEntityTooLarge, "Image exceeds maximum upload size", "")
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadSize+1))
	if err != nil {
		h.respondError(c, http.StatusBadRequest, "Failed to read image", "")
		return
	}

	upload := &types.UploadedImage{
		Data:     data,
		MIMEType: header.Header.Get("Content-Type"),
		Filename: header.Filename,
	}

	bundle, err := h.analyzer.Run(c.Request.Context(), upload, form.Address)
	if err != nil {
		status := StatusFor(err)
		stage, _ := referral.FailedStage(err)
		h.logger.Warn("analysis failed",
			zap.Error(err),
			zap.String("stage", stage.String()),
			zap.Int("status", status),
		)
		h.respondError(c, status, err.Error(), stage.String())
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: bundle})
}

// HealthCheck reports liveness
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: gin.H{
			"status":    "healthy",
			"model":     h.model,
			"timestamp": time.Now(),
		},
	})
}

func (h *Handler) respondError(c *gin.Context, status int, message, stage string) {
	c.JSON(status, Response{Success: false, Error: message, Stage: stage})
}

// StatusFor maps a pipeline error onto an HTTP status code
func StatusFor(err error) int {
	var (
		decodeErr   *types.DecodeError
		tooLargeErr *types.PayloadTooLargeError
		timeoutErr  *types.UpstreamTimeoutError
		upstreamErr *types.UpstreamError
		parseErr    *types.ResponseParseError
		addressErr  *types.AddressNotFoundError
	)

	switch {
	case errors.Is(err, types.ErrNoImage):
		return http.StatusBadRequest
	case errors.As(err, &decodeErr), errors.As(err, &tooLargeErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &addressErr):
		return http.StatusNotFound
	case errors.As(err, &timeoutErr):
		return http.StatusGatewayTimeout
	case errors.As(err, &upstreamErr), errors.As(err, &parseErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
