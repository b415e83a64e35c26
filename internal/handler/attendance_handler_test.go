package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"shiftclock/internal/config"
	app_errors "shiftclock/internal/errors"
	"shiftclock/internal/geocoding"
	"shiftclock/internal/middleware"
	"shiftclock/internal/models"
	"shiftclock/internal/policy"
	"shiftclock/internal/services"
	"shiftclock/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type nullMedia struct{}

func (nullMedia) Save(data []byte, userID uint, kind string) (string, error) { return "", nil }
func (nullMedia) URL(key string) string                                      { return "" }

type handlerFixture struct {
	router *gin.Engine
	db     *gorm.DB
	user   models.User
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Organization{}, &models.Shift{}, &models.WorkLocation{},
		&models.User{}, &models.AttendanceSession{}, &models.DailyAttendance{},
	))

	org := models.Organization{Name: "Acme", Timezone: "UTC"}
	require.NoError(t, db.Create(&org).Error)

	// A permissive simplified policy keeps the handler tests independent of
	// wall-clock time: nothing is ever late and neither geofence nor selfie
	// is required. The accuracy ceiling still applies to every punch.
	shift := models.Shift{
		OrgID:      org.ID,
		Name:       "Any Hours",
		StartClock: "00:00",
		EndClock:   "23:59",
		PolicyDoc: datatypes.JSON([]byte(`{
			"version": 1,
			"mode": "simplified",
			"shift_timing": {"start": "00:00", "end": "23:59"},
			"grace_period_minutes": 1440
		}`)),
	}
	require.NoError(t, db.Create(&shift).Error)

	user := models.User{OrgID: org.ID, Name: "Ada", ShiftID: &shift.ID}
	require.NoError(t, db.Create(&user).Error)

	settingsManager := config.NewSystemSettingsManager()
	memStore := store.NewMemoryStore()
	t.Cleanup(func() { memStore.Close() })

	dispatcher := services.NewEventDispatcher(settingsManager, memStore)
	engine := services.NewAttendanceEngine(
		db, memStore, settingsManager, policy.NewResolver(),
		&geocoding.NoopGeocoder{}, nullMedia{}, dispatcher,
	)
	h := NewAttendanceHandler(engine, db, settingsManager)

	router := gin.New()
	api := router.Group("/api", middleware.Identity())
	attendance := api.Group("/attendance")
	attendance.POST("/time-in", h.TimeIn)
	attendance.POST("/time-out", h.TimeOut)
	attendance.GET("/today", h.Today)
	attendance.GET("/daily", h.ListDaily)

	return &handlerFixture{router: router, db: db, user: user}
}

// punchBody is a capture payload that passes the location gate: the accuracy
// ceiling applies to every punch regardless of the policy's geofence settings.
func punchBody() gin.H {
	return gin.H{
		"timezone":  "UTC",
		"latitude":  14.5995,
		"longitude": 120.9842,
		"accuracy":  12,
	}
}

func (f *handlerFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", fmt.Sprintf("%d", f.user.ID))
	req.Header.Set("X-Org-ID", fmt.Sprintf("%d", f.user.OrgID))
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestPunchRoundTrip(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(t, http.MethodPost, "/api/attendance/time-in", punchBody())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, int64(0), gjson.Get(w.Body.String(), "code").Int())

	// Second time-in while a session is open must conflict.
	w = f.do(t, http.MethodPost, "/api/attendance/time-in", punchBody())
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	assert.Equal(t, "STATE_CONFLICT", gjson.Get(w.Body.String(), "code").String())

	w = f.do(t, http.MethodPost, "/api/attendance/time-out", punchBody())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// No open session left to close.
	w = f.do(t, http.MethodPost, "/api/attendance/time-out", punchBody())
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
}

func TestTimeInRequiresIdentityHeaders(t *testing.T) {
	f := newHandlerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/attendance/time-in", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "X-User-ID")
}

func TestTimeInRejectsMalformedBody(t *testing.T) {
	f := newHandlerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/attendance/time-in", bytes.NewReader([]byte(`{not json`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "1")
	req.Header.Set("X-Org-ID", "1")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_JSON", gjson.Get(w.Body.String(), "code").String())
}

func TestTimeInRejectsInvalidBase64Image(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(t, http.MethodPost, "/api/attendance/time-in", gin.H{"image": "not-base64!!!"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "base64")
}

func TestTodayReflectsOpenSession(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(t, http.MethodGet, "/api/attendance/today", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, gjson.Get(w.Body.String(), "data.has_open_session").Bool())

	w = f.do(t, http.MethodPost, "/api/attendance/time-in", punchBody())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = f.do(t, http.MethodGet, "/api/attendance/today", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, gjson.Get(body, "data.has_open_session").Bool())
	assert.Equal(t, int64(1), gjson.Get(body, "data.sessions.#").Int())
}

func TestListDailyValidatesRange(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(t, http.MethodGet, "/api/attendance/daily?from=2025-05-20&to=2025-05-10", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/api/attendance/daily?from=bogus", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/api/attendance/daily?from=2025-05-01&to=2025-05-10", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, int64(0), gjson.Get(w.Body.String(), "data.pagination.total_items").Int())
}

func TestTodayRejectsUnknownTimezone(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(t, http.MethodGet, "/api/attendance/today?tz=Not/AZone", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "timezone")
}

func TestOutcomeErrorUsesCanonicalCodes(t *testing.T) {
	tests := []struct {
		status int
		code   string
	}{
		{http.StatusConflict, app_errors.ErrStateConflict.Code},
		{http.StatusUnprocessableEntity, app_errors.ErrPolicyViolation.Code},
		{http.StatusNotFound, app_errors.ErrResourceNotFound.Code},
		{http.StatusBadRequest, app_errors.ErrBadRequest.Code},
		{http.StatusTeapot, app_errors.ErrInternalServer.Code},
	}

	for _, tt := range tests {
		err := outcomeError(tt.status, "boom")
		assert.Equal(t, tt.code, err.Code)
		assert.Equal(t, "boom", err.Message)
	}
}
