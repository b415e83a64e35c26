// Package router wires the HTTP routes.
package router

import (
	"shiftclock/internal/handler"
	"shiftclock/internal/middleware"
	"shiftclock/internal/types"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

// NewRouter creates the gin engine with the full middleware chain and routes.
func NewRouter(
	configManager types.ConfigManager,
	attendanceHandler *handler.AttendanceHandler,
	commonHandler *handler.CommonHandler,
) *gin.Engine {
	if configManager.GetLogConfig().Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	engine.Use(middleware.Recovery())
	engine.Use(middleware.ErrorHandler())
	engine.Use(middleware.Logger(configManager.GetLogConfig()))
	engine.Use(middleware.CORS(configManager.GetCORSConfig()))
	engine.Use(middleware.RateLimiter(configManager.GetPerformanceConfig()))
	engine.Use(middleware.RequestBodySizeLimit(0))
	engine.Use(gzip.Gzip(gzip.DefaultCompression))

	engine.GET("/health", commonHandler.Health)

	api := engine.Group("/api")
	api.Use(middleware.Auth(configManager.GetAuthConfig()))
	api.Use(middleware.Identity())
	{
		attendance := api.Group("/attendance")
		attendance.POST("/time-in", attendanceHandler.TimeIn)
		attendance.POST("/time-out", attendanceHandler.TimeOut)
		attendance.GET("/today", attendanceHandler.Today)
		attendance.GET("/daily", attendanceHandler.ListDaily)
	}

	return engine
}
