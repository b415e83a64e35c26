package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// CommonHandler serves the infrastructure endpoints.
type CommonHandler struct {
	db *gorm.DB
}

func NewCommonHandler(db *gorm.DB) *CommonHandler {
	return &CommonHandler{db: db}
}

// Health handles GET /health. It reports degraded instead of failing the
// probe when the database is unreachable.
func (h *CommonHandler) Health(c *gin.Context) {
	status := "healthy"
	httpStatus := http.StatusOK

	sqlDB, err := h.db.DB()
	if err != nil || sqlDB.Ping() != nil {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
