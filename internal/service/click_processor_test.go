package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/relink-dev/relink/internal/models"
	"github.com/relink-dev/relink/internal/service"
	"github.com/relink-dev/relink/internal/service/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clickEnv struct {
	processor service.ClickProcessor
	clickRepo *mocks.MockClickRepository
	linkRepo  *mocks.MockLinkRepository
	billing   *mocks.MockBillingRepository
}

// setupClickProcessor starts a worker pool over mocks with one free-tier
// account, one organization and one link.
func setupClickProcessor(t *testing.T) *clickEnv {
	t.Helper()

	linkRepo := mocks.NewMockLinkRepository()
	clickRepo := mocks.NewMockClickRepository()
	billing := mocks.NewMockBillingRepository()

	accountID := "acct-1"
	billing.AddAccount(&models.BillingAccount{
		ID:          accountID,
		OwnerUserID: "user-1",
		Tier:        models.TierFree,
		CreatedAt:   time.Now(),
	})
	billing.AddOrganization(&models.Organization{
		ID:               "org-1",
		Name:             "First",
		BillingAccountID: &accountID,
		CreatedAt:        time.Now(),
	})

	require.NoError(t, linkRepo.Create(context.Background(), &models.Link{
		ID:             "link-1",
		OrgID:          "org-1",
		ShortCode:      "abc123",
		DestinationURL: "https://example.com/landing",
		CreatedAt:      time.Now(),
		IsActive:       true,
	}))

	logger, _ := zap.NewDevelopment()
	processor := service.NewClickProcessor(clickRepo, linkRepo, billing, logger)
	processor.Start()
	t.Cleanup(processor.Stop)

	return &clickEnv{
		processor: processor,
		clickRepo: clickRepo,
		linkRepo:  linkRepo,
		billing:   billing,
	}
}

func (env *clickEnv) clickCount() int64 {
	link, err := env.linkRepo.GetByID(context.Background(), "link-1")
	if err != nil {
		return 0
	}
	return link.ClickCount
}

func TestClickProcessor_RecordsEvent(t *testing.T) {
	env := setupClickProcessor(t)

	err := env.processor.Enqueue(context.Background(), &models.ClickEvent{
		LinkID:    "link-1",
		ShortCode: "abc123",
		Referrer:  "https://google.com",
		IPAddress: "10.0.0.1",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(env.clickRepo.Events()) == 1
	}, time.Second, 10*time.Millisecond)

	events := env.clickRepo.Events()
	assert.Equal(t, "link-1", events[0].LinkID)
	// The org relation comes from the authoritative link, not the request
	assert.Equal(t, "org-1", events[0].OrgID)
	assert.Equal(t, "10.0.0.1", events[0].IPAddress)
	assert.NotEmpty(t, events[0].ID)

	assert.Equal(t, int64(1), env.clickCount())
}

func TestClickProcessor_DropsEventAtTrackedClickLimit(t *testing.T) {
	env := setupClickProcessor(t)
	ctx := context.Background()

	// Free tier tracks 1000 clicks per month; fill the budget.
	for i := 0; i < 1000; i++ {
		require.NoError(t, env.clickRepo.RecordEvent(ctx, &models.AnalyticsEvent{
			ID:        fmt.Sprintf("event-%d", i),
			LinkID:    "link-1",
			OrgID:     "org-1",
			ClickedAt: time.Now(),
		}))
	}

	require.NoError(t, env.processor.Enqueue(ctx, &models.ClickEvent{
		LinkID:    "link-1",
		ShortCode: "abc123",
	}))

	// click_count advances for every redirect served, tracked or not
	require.Eventually(t, func() bool {
		return env.clickCount() == 1
	}, time.Second, 10*time.Millisecond)

	// The counter increments before the limit decision, so give the worker a
	// moment to finish before asserting no analytics row landed.
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, env.clickRepo.Events(), 1000)
}

func TestClickProcessor_UnknownLinkIgnored(t *testing.T) {
	env := setupClickProcessor(t)

	require.NoError(t, env.processor.Enqueue(context.Background(), &models.ClickEvent{
		LinkID:    "missing",
		ShortCode: "nosuch",
	}))

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, env.clickRepo.Events())
	assert.Equal(t, int64(0), env.clickCount())
}
