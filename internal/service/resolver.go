package service

import (
	"context"
	"errors"
	"time"

	"github.com/relink-dev/relink/internal/models"
	"github.com/relink-dev/relink/internal/repository"
	"go.uber.org/zap"
)

// RedirectResolver drives one redirect request:
// lookup -> found-active / found-inactive / found-expired / not-found.
// It reads only the cache projection; the authoritative store is never
// consulted on this path, so a stale projection must still yield a safe
// answer on its own.
type RedirectResolver struct {
	cache  repository.CacheRepository
	clicks ClickProcessor
	logger *zap.Logger
	now    func() time.Time
}

func NewRedirectResolver(cache repository.CacheRepository, clicks ClickProcessor, logger *zap.Logger) *RedirectResolver {
	return &RedirectResolver{
		cache:  cache,
		clicks: clicks,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock replaces the time source. Test hook.
func (r *RedirectResolver) WithClock(now func() time.Time) *RedirectResolver {
	r.now = now
	return r
}

// Resolve maps a short code to its destination URL. Inactive mappings are
// reported as ErrNotFound, deliberately indistinguishable from absent ones,
// so disabled links don't leak their existence. Expired mappings return
// ErrExpired. On success the visit is handed to the click processor; that is
// best-effort and can never fail the redirect.
func (r *RedirectResolver) Resolve(ctx context.Context, code string, visit *models.ClickEvent) (string, error) {
	mapping, err := r.cache.GetMapping(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrCacheMiss) {
			r.logger.Debug("short code not found", zap.String("code", code))
			return "", ErrNotFound
		}
		r.logger.Error("cache lookup failed",
			zap.String("operation", "resolve"),
			zap.String("code", code),
			zap.Error(err),
		)
		return "", err
	}

	if !mapping.IsActive {
		r.logger.Debug("short code inactive", zap.String("code", code))
		return "", ErrNotFound
	}

	if mapping.Expired(r.now()) {
		return "", ErrExpired
	}

	if visit != nil {
		visit.LinkID = mapping.LinkID
		visit.ShortCode = code
		if err := r.clicks.Enqueue(ctx, visit); err != nil {
			r.logger.Warn("failed to enqueue click event",
				zap.String("code", code),
				zap.Error(err),
			)
		}
	}

	return mapping.DestinationURL, nil
}
