package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitewise/platform/internal/cache"
	"github.com/sitewise/platform/internal/domain/ratelimit"
	"github.com/sitewise/platform/internal/middleware"
)

func rateLimitRouter(config *ratelimit.Config, withIdentity bool) *gin.Engine {
	router := gin.New()
	if withIdentity {
		router.Use(middleware.RequireIdentity())
	}
	router.Use(middleware.RateLimit(cache.NewMemoryRateLimiter(), config))
	router.GET("/ping", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router
}

func TestRateLimit_PerIP(t *testing.T) {
	config := &ratelimit.Config{
		Global: ratelimit.WindowConfig{Limit: 100, Window: time.Minute},
		PerIP:  ratelimit.WindowConfig{Limit: 2, Window: time.Minute},
	}
	router := rateLimitRouter(config, false)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		require.Equal(t, http.StatusNoContent, w.Code)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "RATE_LIMIT_EXCEEDED")
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestRateLimit_PerUser(t *testing.T) {
	config := &ratelimit.Config{
		Global:  ratelimit.WindowConfig{Limit: 100, Window: time.Minute},
		PerUser: ratelimit.WindowConfig{Limit: 1, Window: time.Minute},
		PerIP:   ratelimit.WindowConfig{Limit: 100, Window: time.Minute},
	}
	router := rateLimitRouter(config, true)

	send := func(userID uuid.UUID) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(middleware.HeaderUserID, userID.String())
		req.Header.Set(middleware.HeaderCompanyID, "1")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	alice := uuid.New()
	require.Equal(t, http.StatusNoContent, send(alice).Code)
	assert.Equal(t, http.StatusTooManyRequests, send(alice).Code)

	// A different user has an independent budget.
	assert.Equal(t, http.StatusNoContent, send(uuid.New()).Code)
}

func TestRateLimit_Global(t *testing.T) {
	config := &ratelimit.Config{
		Global: ratelimit.WindowConfig{Limit: 1, Window: time.Minute},
		PerIP:  ratelimit.WindowConfig{Limit: 100, Window: time.Minute},
	}
	router := rateLimitRouter(config, false)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "GLOBAL_RATE_LIMIT_EXCEEDED")
}

func TestRateLimit_SetsHeaders(t *testing.T) {
	config := &ratelimit.Config{
		Global: ratelimit.WindowConfig{Limit: 100, Window: time.Minute},
		PerIP:  ratelimit.WindowConfig{Limit: 5, Window: time.Minute},
	}
	router := rateLimitRouter(config, false)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "4", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
}
