package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Router struct {
	handler *Handler
	logger  *zap.Logger
}

func NewRouter(handler *Handler, logger *zap.Logger) *Router {
	return &Router{
		handler: handler,
		logger:  logger,
	}
}

func (r *Router) SetupRoutes() *gin.Engine {
	router := gin.New()

	router.Use(RequestID())
	router.Use(Logger(r.logger))
	router.Use(ErrorHandler(r.logger))
	router.MaxMultipartMemory = r.handler.maxUploadSize

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", r.handler.HealthCheck)
		v1.POST("/analyze", r.handler.Analyze)
	}

	router.GET("/", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{
			"status":  "OK",
			"message": "medref is running",
		})
	})

	return router
}
