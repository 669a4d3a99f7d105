package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/relink-dev/relink/internal/models"
	"github.com/relink-dev/relink/internal/service"
	"github.com/relink-dev/relink/internal/service/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capturingProcessor records enqueued visits instead of processing them.
type capturingProcessor struct {
	mu       sync.Mutex
	enqueued []*models.ClickEvent
	fail     bool
}

func (p *capturingProcessor) Start() {}
func (p *capturingProcessor) Stop()  {}

func (p *capturingProcessor) Enqueue(ctx context.Context, event *models.ClickEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return fmt.Errorf("queue full")
	}
	copied := *event
	p.enqueued = append(p.enqueued, &copied)
	return nil
}

func (p *capturingProcessor) GetStats(ctx context.Context, shortCode string) (*models.ClickStats, error) {
	return &models.ClickStats{ShortCode: shortCode}, nil
}

func (p *capturingProcessor) GetDailyStats(ctx context.Context, shortCode string, days int) ([]models.DailyClickStats, error) {
	return nil, nil
}

func (p *capturingProcessor) events() []*models.ClickEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*models.ClickEvent(nil), p.enqueued...)
}

func setupResolver(t *testing.T) (*service.RedirectResolver, *mocks.MockCacheRepository, *capturingProcessor) {
	t.Helper()

	cache := mocks.NewMockCacheRepository()
	clicks := &capturingProcessor{}
	logger, _ := zap.NewDevelopment()
	resolver := service.NewRedirectResolver(cache, clicks, logger)
	return resolver, cache, clicks
}

func TestRedirectResolver_Resolve_Active(t *testing.T) {
	resolver, cache, clicks := setupResolver(t)
	ctx := context.Background()

	require.NoError(t, cache.SetMapping(ctx, "abc123", &models.LinkMapping{
		DestinationURL: "https://example.com/landing",
		LinkID:         "link-1",
		IsActive:       true,
	}, 0))

	visit := &models.ClickEvent{IPAddress: "10.0.0.1", UserAgent: "curl/8.0"}
	destination, err := resolver.Resolve(ctx, "abc123", visit)

	require.NoError(t, err)
	assert.Equal(t, "https://example.com/landing", destination)

	events := clicks.events()
	require.Len(t, events, 1)
	assert.Equal(t, "link-1", events[0].LinkID)
	assert.Equal(t, "abc123", events[0].ShortCode)
	assert.Equal(t, "10.0.0.1", events[0].IPAddress)
}

func TestRedirectResolver_Resolve_NotFound(t *testing.T) {
	resolver, _, clicks := setupResolver(t)

	destination, err := resolver.Resolve(context.Background(), "missing", &models.ClickEvent{})

	assert.ErrorIs(t, err, service.ErrNotFound)
	assert.Empty(t, destination)
	assert.Empty(t, clicks.events())
}

func TestRedirectResolver_Resolve_Inactive(t *testing.T) {
	resolver, cache, clicks := setupResolver(t)
	ctx := context.Background()

	require.NoError(t, cache.SetMapping(ctx, "abc123", &models.LinkMapping{
		DestinationURL: "https://example.com/landing",
		LinkID:         "link-1",
		IsActive:       false,
	}, 0))

	// Inactive resolves exactly like absent
	_, err := resolver.Resolve(ctx, "abc123", &models.ClickEvent{})
	assert.ErrorIs(t, err, service.ErrNotFound)
	assert.Empty(t, clicks.events())
}

func TestRedirectResolver_Resolve_Expired(t *testing.T) {
	resolver, cache, clicks := setupResolver(t)
	ctx := context.Background()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	resolver.WithClock(func() time.Time { return now })

	expiresAt := now.Add(-time.Minute).Unix()
	require.NoError(t, cache.SetMapping(ctx, "abc123", &models.LinkMapping{
		DestinationURL: "https://example.com/landing",
		LinkID:         "link-1",
		ExpiresAt:      &expiresAt,
		IsActive:       true,
	}, 0))

	_, err := resolver.Resolve(ctx, "abc123", &models.ClickEvent{})
	assert.ErrorIs(t, err, service.ErrExpired)
	assert.Empty(t, clicks.events())
}

func TestRedirectResolver_Resolve_NotYetExpired(t *testing.T) {
	resolver, cache, _ := setupResolver(t)
	ctx := context.Background()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	resolver.WithClock(func() time.Time { return now })

	expiresAt := now.Add(time.Hour).Unix()
	require.NoError(t, cache.SetMapping(ctx, "abc123", &models.LinkMapping{
		DestinationURL: "https://example.com/landing",
		LinkID:         "link-1",
		ExpiresAt:      &expiresAt,
		IsActive:       true,
	}, 0))

	destination, err := resolver.Resolve(ctx, "abc123", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/landing", destination)
}

func TestRedirectResolver_Resolve_Idempotent(t *testing.T) {
	resolver, cache, _ := setupResolver(t)
	ctx := context.Background()

	require.NoError(t, cache.SetMapping(ctx, "abc123", &models.LinkMapping{
		DestinationURL: "https://example.com/landing",
		LinkID:         "link-1",
		IsActive:       true,
	}, 0))

	first, err := resolver.Resolve(ctx, "abc123", nil)
	require.NoError(t, err)
	second, err := resolver.Resolve(ctx, "abc123", nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRedirectResolver_Resolve_EnqueueFailureTolerated(t *testing.T) {
	resolver, cache, clicks := setupResolver(t)
	ctx := context.Background()

	clicks.fail = true

	require.NoError(t, cache.SetMapping(ctx, "abc123", &models.LinkMapping{
		DestinationURL: "https://example.com/landing",
		LinkID:         "link-1",
		IsActive:       true,
	}, 0))

	// A dropped click never fails the redirect itself
	destination, err := resolver.Resolve(ctx, "abc123", &models.ClickEvent{})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/landing", destination)
}
