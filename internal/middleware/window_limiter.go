package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/relink-dev/relink/internal/models"
	"github.com/relink-dev/relink/internal/repository"
	"go.uber.org/zap"
)

// Profile names a sliding-window budget for one calling endpoint.
type Profile struct {
	Name        string
	MaxRequests int64
	Window      time.Duration
}

// Profiles is the static table of rate-limit budgets.
var Profiles = map[string]Profile{
	"oauth":         {Name: "oauth", MaxRequests: 20, Window: 15 * time.Minute},
	"token-refresh": {Name: "token-refresh", MaxRequests: 30, Window: time.Hour},
	"auth-check":    {Name: "auth-check", MaxRequests: 100, Window: time.Minute},
	"link-creation": {Name: "link-creation", MaxRequests: 100, Window: time.Hour},
	"redirect":      {Name: "redirect", MaxRequests: 300, Window: time.Minute},
}

// WindowLimiter throttles by counter-with-reset windows stored in the edge
// cache under scope:identifier keys. The check is a read-modify-write over
// get/put, so concurrent requests on one key can lose updates; limiting is
// approximate by design (the cache contract has no atomic increment).
//
// A cache failure fails open with a log record: the limiter must never take
// the redirect path down.
type WindowLimiter struct {
	cache    repository.CacheRepository
	logger   *zap.Logger
	disabled bool
	now      func() time.Time
}

// NewWindowLimiter builds the distributed limiter. disabled is the global
// kill switch: every check passes through, regardless of profile, for
// deployments that delegate rate limiting to an outer layer.
func NewWindowLimiter(cache repository.CacheRepository, disabled bool, logger *zap.Logger) *WindowLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WindowLimiter{
		cache:    cache,
		logger:   logger,
		disabled: disabled,
		now:      time.Now,
	}
}

// WithClock replaces the time source. Test hook.
func (l *WindowLimiter) WithClock(now func() time.Time) *WindowLimiter {
	l.now = now
	return l
}

// Allow runs one sliding-window-by-reset check for scope:identifier.
// Within a live window the counter increments in place; once the window has
// elapsed it resets to {1, now}. Exceeding the budget reports the seconds
// remaining until the window resets.
func (l *WindowLimiter) Allow(ctx context.Context, profile Profile, identifier string) (bool, time.Duration, error) {
	if l.disabled {
		return true, 0, nil
	}

	key := profile.Name + ":" + identifier
	now := l.now()

	window, err := l.cache.GetWindow(ctx, key)
	if err != nil && !errors.Is(err, repository.ErrCacheMiss) {
		return false, 0, err
	}

	elapsed := time.Duration(0)
	if window != nil {
		elapsed = now.Sub(time.Unix(window.WindowStart, 0))
	}

	if window == nil || elapsed >= profile.Window {
		window = &models.RateLimitWindow{Count: 1, WindowStart: now.Unix()}
		elapsed = 0
	} else {
		window.Count++
	}

	remaining := profile.Window - elapsed
	if err := l.cache.SetWindow(ctx, key, window, remaining); err != nil {
		return false, 0, err
	}

	if window.Count > profile.MaxRequests {
		return false, remaining, nil
	}

	return true, 0, nil
}

// Middleware applies a named profile, keyed by keyFn (falling back to client
// IP). Unknown profile names pass through.
func (l *WindowLimiter) Middleware(profileName string, keyFn func(*gin.Context) string) gin.HandlerFunc {
	profile, ok := Profiles[profileName]

	return func(c *gin.Context) {
		if !ok {
			c.Next()
			return
		}

		identifier := ""
		if keyFn != nil {
			identifier = keyFn(c)
		}
		if identifier == "" {
			identifier = c.ClientIP()
		}

		allowed, retryAfter, err := l.Allow(c.Request.Context(), profile, identifier)
		if err != nil {
			l.logger.Warn("rate limit check failed, allowing request",
				zap.String("profile", profile.Name),
				zap.String("identifier", identifier),
				zap.Error(err),
			)
			c.Next()
			return
		}

		if !allowed {
			seconds := int(retryAfter.Round(time.Second) / time.Second)
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limit_exceeded",
				"message":     "Too many requests, try again later",
				"retry_after": seconds,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
