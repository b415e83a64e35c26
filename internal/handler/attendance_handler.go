// Package handler exposes the HTTP surface of the attendance engine.
package handler

import (
	"encoding/base64"
	"net/http"
	"time"

	"shiftclock/internal/config"
	app_errors "shiftclock/internal/errors"
	"shiftclock/internal/middleware"
	"shiftclock/internal/models"
	"shiftclock/internal/response"
	"shiftclock/internal/services"
	"shiftclock/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AttendanceHandler serves the punch and reporting endpoints.
type AttendanceHandler struct {
	engine          *services.AttendanceEngine
	db              *gorm.DB
	settingsManager *config.SystemSettingsManager
}

func NewAttendanceHandler(engine *services.AttendanceEngine, db *gorm.DB, settingsManager *config.SystemSettingsManager) *AttendanceHandler {
	return &AttendanceHandler{
		engine:          engine,
		db:              db,
		settingsManager: settingsManager,
	}
}

// punchPayload is the request body shared by time-in and time-out.
type punchPayload struct {
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Accuracy   float64 `json:"accuracy"`
	Timezone   string  `json:"timezone"`
	LateReason string  `json:"late_reason"`
	// Image is the base64-encoded capture. Optional; the policy decides
	// whether its absence matters.
	Image    string `json:"image"`
	DeviceID string `json:"device_id"`
}

func (p *punchPayload) toRequest(c *gin.Context) (services.PunchRequest, *app_errors.APIError) {
	req := services.PunchRequest{
		UserID:     c.GetUint(middleware.ContextUserID),
		OrgID:      c.GetUint(middleware.ContextOrgID),
		Latitude:   p.Latitude,
		Longitude:  p.Longitude,
		Accuracy:   p.Accuracy,
		Timezone:   p.Timezone,
		LateReason: p.LateReason,
		ClientIP:   c.ClientIP(),
		DeviceID:   p.DeviceID,
	}
	if p.Image != "" {
		image, err := base64.StdEncoding.DecodeString(p.Image)
		if err != nil {
			return req, app_errors.NewAPIError(app_errors.ErrBadRequest, "Image must be base64 encoded")
		}
		req.Image = image
	}
	return req, nil
}

// TimeIn handles POST /api/attendance/time-in.
func (h *AttendanceHandler) TimeIn(c *gin.Context) {
	var payload punchPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, app_errors.ErrInvalidJSON)
		return
	}
	req, apiErr := payload.toRequest(c)
	if apiErr != nil {
		response.Error(c, apiErr)
		return
	}

	result := h.engine.ProcessTimeIn(c.Request.Context(), req)
	if !result.OK {
		response.Error(c, outcomeError(result.StatusCode, result.Message))
		return
	}
	c.JSON(result.StatusCode, response.SuccessResponse{Code: 0, Message: result.Message, Data: result})
}

// TimeOut handles POST /api/attendance/time-out.
func (h *AttendanceHandler) TimeOut(c *gin.Context) {
	var payload punchPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, app_errors.ErrInvalidJSON)
		return
	}
	req, apiErr := payload.toRequest(c)
	if apiErr != nil {
		response.Error(c, apiErr)
		return
	}

	result := h.engine.ProcessTimeOut(c.Request.Context(), req)
	if !result.OK {
		response.Error(c, outcomeError(result.StatusCode, result.Message))
		return
	}
	c.JSON(result.StatusCode, response.SuccessResponse{Code: 0, Message: result.Message, Data: result})
}

// todayView is the GET today response body.
type todayView struct {
	Date     string                     `json:"date"`
	Daily    *models.DailyAttendance    `json:"daily,omitempty"`
	Sessions []models.AttendanceSession `json:"sessions"`
	HasOpen  bool                       `json:"has_open_session"`
}

// Today handles GET /api/attendance/today. The optional tz query parameter
// controls which local calendar day "today" means; it defaults to the
// system default timezone.
func (h *AttendanceHandler) Today(c *gin.Context) {
	userID := c.GetUint(middleware.ContextUserID)

	loc := time.UTC
	tz := c.Query("tz")
	if tz == "" {
		tz = h.settingsManager.GetSettings().DefaultTimezone
	}
	if tz != "" {
		parsed, err := time.LoadLocation(tz)
		if err != nil {
			response.Error(c, app_errors.NewAPIError(app_errors.ErrBadRequest, "Unknown timezone"))
			return
		}
		loc = parsed
	}
	date := utils.LocalDate(time.Now().In(loc))

	var sessions []models.AttendanceSession
	if err := h.db.Where("user_id = ? AND date = ?", userID, date).
		Order("time_in ASC").
		Find(&sessions).Error; err != nil {
		logrus.WithError(err).Error("Failed to load today's sessions")
		response.Error(c, app_errors.ErrDatabase)
		return
	}

	view := todayView{Date: date, Sessions: sessions}
	for i := range sessions {
		if sessions[i].State == models.SessionStateOpen {
			view.HasOpen = true
		}
	}

	var daily models.DailyAttendance
	err := h.db.Where("user_id = ? AND date = ?", userID, date).First(&daily).Error
	if err == nil {
		view.Daily = &daily
	} else if err != gorm.ErrRecordNotFound {
		logrus.WithError(err).Error("Failed to load daily attendance")
		response.Error(c, app_errors.ErrDatabase)
		return
	}

	response.Success(c, view)
}

// ListDaily handles GET /api/attendance/daily with from/to date filters and
// pagination.
func (h *AttendanceHandler) ListDaily(c *gin.Context) {
	userID := c.GetUint(middleware.ContextUserID)

	to := c.Query("to")
	from := c.Query("from")
	if to == "" {
		to = utils.LocalDate(time.Now().UTC())
	}
	toDay, err := time.Parse(utils.DateLayout, to)
	if err != nil {
		response.Error(c, app_errors.NewAPIError(app_errors.ErrBadRequest, "Invalid 'to' date"))
		return
	}
	if from == "" {
		from = utils.LocalDate(toDay.AddDate(0, 0, -30))
	}
	fromDay, err := time.Parse(utils.DateLayout, from)
	if err != nil {
		response.Error(c, app_errors.NewAPIError(app_errors.ErrBadRequest, "Invalid 'from' date"))
		return
	}
	if fromDay.After(toDay) {
		response.Error(c, app_errors.NewAPIError(app_errors.ErrBadRequest, "'from' must not be after 'to'"))
		return
	}

	maxRange := h.settingsManager.GetSettings().DailyListMaxRangeDays
	if maxRange > 0 && toDay.Sub(fromDay) > time.Duration(maxRange)*24*time.Hour {
		response.Error(c, app_errors.NewAPIError(app_errors.ErrBadRequest, "Date range too large"))
		return
	}

	query := h.db.Model(&models.DailyAttendance{}).
		Where("user_id = ? AND date >= ? AND date <= ?", userID, from, to).
		Order("date DESC")

	var rows []models.DailyAttendance
	page, err := response.Paginate(c, query, &rows)
	if err != nil {
		response.Error(c, app_errors.ParseDBError(err))
		return
	}
	response.Success(c, page)
}

// outcomeError maps an engine outcome to the API error envelope.
func outcomeError(status int, message string) *app_errors.APIError {
	base := app_errors.ErrInternalServer
	switch status {
	case http.StatusConflict:
		base = app_errors.ErrStateConflict
	case http.StatusUnprocessableEntity:
		base = app_errors.ErrPolicyViolation
	case http.StatusNotFound:
		base = app_errors.ErrResourceNotFound
	case http.StatusBadRequest:
		base = app_errors.ErrBadRequest
	}
	return app_errors.NewAPIError(base, message)
}
