package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"shiftclock/internal/types"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func okHandler(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func TestAuthAcceptsBearerAndAPIKeyHeader(t *testing.T) {
	router := gin.New()
	router.Use(Auth(types.AuthConfig{Key: "sk-test"}))
	router.GET("/ping", okHandler)

	cases := []struct {
		name   string
		header string
		value  string
		status int
	}{
		{"bearer", "Authorization", "Bearer sk-test", http.StatusOK},
		{"api key header", "X-Api-Key", "sk-test", http.StatusOK},
		{"wrong key", "Authorization", "Bearer nope", http.StatusUnauthorized},
		{"missing key", "", "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestAuthSkipsHealthEndpoint(t *testing.T) {
	router := gin.New()
	router.Use(Auth(types.AuthConfig{Key: "sk-test"}))
	router.GET("/health", okHandler)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestIdentitySetsContextValues(t *testing.T) {
	router := gin.New()
	router.Use(Identity())
	router.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id": c.GetUint(ContextUserID),
			"org_id":  c.GetUint(ContextOrgID),
		})
	})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("X-User-ID", "42")
	req.Header.Set("X-Org-ID", "7")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":42`)
	assert.Contains(t, w.Body.String(), `"org_id":7`)
}

func TestIdentityRejectsMissingOrZeroHeaders(t *testing.T) {
	router := gin.New()
	router.Use(Identity())
	router.GET("/whoami", okHandler)

	for _, tc := range []struct {
		name string
		user string
		org  string
	}{
		{"no headers", "", ""},
		{"zero user", "0", "1"},
		{"garbage org", "1", "abc"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tc.user != "" {
				req.Header.Set("X-User-ID", tc.user)
			}
			if tc.org != "" {
				req.Header.Set("X-Org-ID", tc.org)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	router := gin.New()
	router.Use(CORS(types.CORSConfig{
		Enabled:        true,
		AllowedOrigins: []string{"https://app.example.com"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
	}))
	router.POST("/api/attendance/time-in", okHandler)

	req := httptest.NewRequest(http.MethodOptions, "/api/attendance/time-in", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	// Disallowed origins get no CORS headers back.
	req = httptest.NewRequest(http.MethodOptions, "/api/attendance/time-in", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestBodySizeLimit(t *testing.T) {
	router := gin.New()
	router.Use(RequestBodySizeLimit(64))
	router.POST("/punch", okHandler)

	req := httptest.NewRequest(http.MethodPost, "/punch", strings.NewReader(strings.Repeat("x", 1024)))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/punch", strings.NewReader("small"))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiterSheds(t *testing.T) {
	limiter := RateLimiter(types.PerformanceConfig{MaxConcurrentRequests: 1})

	router := gin.New()
	router.Use(limiter)

	release := make(chan struct{})
	entered := make(chan struct{})
	router.GET("/slow", func(c *gin.Context) {
		close(entered)
		<-release
		c.String(http.StatusOK, "ok")
	})

	first := make(chan int)
	go func() {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/slow", nil))
		first <- w.Code
	}()

	<-entered
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/slow", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	close(release)
	assert.Equal(t, http.StatusOK, <-first)
}
