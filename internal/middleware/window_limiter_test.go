package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/relink-dev/relink/internal/middleware"
	"github.com/relink-dev/relink/internal/service/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives both the limiter and the mock cache's TTL handling.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func setupWindowLimiter(t *testing.T) (*middleware.WindowLimiter, *mocks.MockCacheRepository, *fakeClock) {
	t.Helper()

	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	cache := mocks.NewMockCacheRepository()
	cache.Now = clock.Now

	logger, _ := zap.NewDevelopment()
	limiter := middleware.NewWindowLimiter(cache, false, logger).WithClock(clock.Now)
	return limiter, cache, clock
}

func TestWindowLimiter_AllowsUpToBudget(t *testing.T) {
	limiter, _, _ := setupWindowLimiter(t)
	ctx := context.Background()

	profile := middleware.Profile{Name: "test", MaxRequests: 5, Window: time.Minute}

	for i := 0; i < 5; i++ {
		allowed, _, err := limiter.Allow(ctx, profile, "client-1")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d within budget", i+1)
	}

	allowed, retryAfter, err := limiter.Allow(ctx, profile, "client-1")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Greater(t, retryAfter, time.Duration(0))
	assert.LessOrEqual(t, retryAfter, time.Minute)
}

func TestWindowLimiter_RetryAfterShrinksWithElapsedTime(t *testing.T) {
	limiter, _, clock := setupWindowLimiter(t)
	ctx := context.Background()

	profile := middleware.Profile{Name: "test", MaxRequests: 1, Window: time.Minute}

	allowed, _, err := limiter.Allow(ctx, profile, "client-1")
	require.NoError(t, err)
	require.True(t, allowed)

	clock.Advance(40 * time.Second)

	allowed, retryAfter, err := limiter.Allow(ctx, profile, "client-1")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 20*time.Second, retryAfter)
}

func TestWindowLimiter_WindowResets(t *testing.T) {
	limiter, _, clock := setupWindowLimiter(t)
	ctx := context.Background()

	profile := middleware.Profile{Name: "test", MaxRequests: 2, Window: time.Minute}

	for i := 0; i < 2; i++ {
		allowed, _, err := limiter.Allow(ctx, profile, "client-1")
		require.NoError(t, err)
		require.True(t, allowed)
	}
	allowed, _, err := limiter.Allow(ctx, profile, "client-1")
	require.NoError(t, err)
	require.False(t, allowed)

	clock.Advance(time.Minute + time.Second)

	allowed, _, err = limiter.Allow(ctx, profile, "client-1")
	require.NoError(t, err)
	assert.True(t, allowed, "new window after reset")
}

func TestWindowLimiter_IdentifiersAreIndependent(t *testing.T) {
	limiter, _, _ := setupWindowLimiter(t)
	ctx := context.Background()

	profile := middleware.Profile{Name: "test", MaxRequests: 1, Window: time.Minute}

	allowed, _, err := limiter.Allow(ctx, profile, "client-1")
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, _, err = limiter.Allow(ctx, profile, "client-1")
	require.NoError(t, err)
	require.False(t, allowed)

	allowed, _, err = limiter.Allow(ctx, profile, "client-2")
	require.NoError(t, err)
	assert.True(t, allowed, "other identifiers keep their own budget")
}

func TestWindowLimiter_ProfilesAreIndependent(t *testing.T) {
	limiter, _, _ := setupWindowLimiter(t)
	ctx := context.Background()

	strict := middleware.Profile{Name: "strict", MaxRequests: 1, Window: time.Minute}
	relaxed := middleware.Profile{Name: "relaxed", MaxRequests: 10, Window: time.Minute}

	allowed, _, err := limiter.Allow(ctx, strict, "client-1")
	require.NoError(t, err)
	require.True(t, allowed)
	allowed, _, err = limiter.Allow(ctx, strict, "client-1")
	require.NoError(t, err)
	require.False(t, allowed)

	allowed, _, err = limiter.Allow(ctx, relaxed, "client-1")
	require.NoError(t, err)
	assert.True(t, allowed, "same client, different scope")
}

func TestWindowLimiter_KillSwitch(t *testing.T) {
	cache := mocks.NewMockCacheRepository()
	logger, _ := zap.NewDevelopment()
	limiter := middleware.NewWindowLimiter(cache, true, logger)

	profile := middleware.Profile{Name: "test", MaxRequests: 1, Window: time.Minute}

	for i := 0; i < 50; i++ {
		allowed, _, err := limiter.Allow(context.Background(), profile, "client-1")
		require.NoError(t, err)
		require.True(t, allowed)
	}
}

func TestWindowLimiter_CacheFailureSurfaces(t *testing.T) {
	limiter, cache, _ := setupWindowLimiter(t)
	cache.FailWindows = true

	profile := middleware.Profile{Name: "test", MaxRequests: 1, Window: time.Minute}

	_, _, err := limiter.Allow(context.Background(), profile, "client-1")
	assert.Error(t, err)
}

func windowTestRouter(limiter *middleware.WindowLimiter, profileName string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ping", limiter.Middleware(profileName, nil), func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	return router
}

func TestWindowLimiterMiddleware_RejectsWith429(t *testing.T) {
	limiter, _, _ := setupWindowLimiter(t)
	router := windowTestRouter(limiter, "auth-check")

	budget := middleware.Profiles["auth-check"].MaxRequests
	for i := int64(0); i < budget; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "retry_after")
}

func TestWindowLimiterMiddleware_FailsOpenOnCacheError(t *testing.T) {
	limiter, cache, _ := setupWindowLimiter(t)
	cache.FailWindows = true
	router := windowTestRouter(limiter, "auth-check")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	router.ServeHTTP(w, req)

	// The limiter never takes the endpoint down with it
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWindowLimiterMiddleware_UnknownProfilePassesThrough(t *testing.T) {
	limiter, _, _ := setupWindowLimiter(t)
	router := windowTestRouter(limiter, "no-such-profile")

	for i := 0; i < 20; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}
}
