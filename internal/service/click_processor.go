package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/relink-dev/relink/internal/models"
	"github.com/relink-dev/relink/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultWorkerCount   = 3
	defaultChannelBuffer = 1000
	maxRecordRetries     = 3
	clickTimeout         = 5 * time.Second
)

// ClickProcessor records redirect side effects (analytics event + click
// counter) off the request path. Everything here is fire-log-continue: a
// full buffer or a failed write is logged, never surfaced to the visitor.
type ClickProcessor interface {
	Start()
	Stop()
	Enqueue(ctx context.Context, event *models.ClickEvent) error
	GetStats(ctx context.Context, shortCode string) (*models.ClickStats, error)
	GetDailyStats(ctx context.Context, shortCode string, days int) ([]models.DailyClickStats, error)
}

type clickProcessor struct {
	clickRepo    repository.ClickRepository
	linkRepo     repository.LinkRepository
	billingRepo  repository.BillingRepository
	logger       *zap.Logger
	clickChannel chan *models.ClickEvent
	workerCount  int
	wg           sync.WaitGroup
	ctx          context.Context
	cancel       context.CancelFunc
	now          func() time.Time
}

func NewClickProcessor(
	clickRepo repository.ClickRepository,
	linkRepo repository.LinkRepository,
	billingRepo repository.BillingRepository,
	logger *zap.Logger,
) ClickProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &clickProcessor{
		clickRepo:    clickRepo,
		linkRepo:     linkRepo,
		billingRepo:  billingRepo,
		logger:       logger,
		clickChannel: make(chan *models.ClickEvent, defaultChannelBuffer),
		workerCount:  defaultWorkerCount,
		now:          time.Now,
	}
}

func (p *clickProcessor) Start() {
	p.ctx, p.cancel = context.WithCancel(context.Background())

	p.logger.Info("starting click processor workers", zap.Int("count", p.workerCount))

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

func (p *clickProcessor) Stop() {
	p.logger.Info("stopping click processor")
	p.cancel()
	p.wg.Wait()
	p.logger.Info("click processor stopped")
}

func (p *clickProcessor) worker(id int) {
	defer p.wg.Done()

	p.logger.Debug("click worker started", zap.Int("id", id))

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Debug("click worker stopped", zap.Int("id", id))
			return

		case event, ok := <-p.clickChannel:
			if !ok {
				return
			}
			p.processClick(event)
		}
	}
}

func (p *clickProcessor) processClick(event *models.ClickEvent) {
	ctx, cancel := context.WithTimeout(p.ctx, clickTimeout)
	defer cancel()

	// The org relation comes from the authoritative link. Events must never
	// carry an empty or invented org_id.
	link, err := p.linkRepo.GetByID(ctx, event.LinkID)
	if err != nil {
		p.logger.Warn("failed to load link for click",
			zap.String("link_id", event.LinkID),
			zap.String("short_code", event.ShortCode),
			zap.Error(err),
		)
		return
	}

	// click_count tracks every redirect served, independent of whether the
	// analytics row lands.
	if err := p.linkRepo.IncrementClickCount(ctx, link.ID); err != nil {
		p.logger.Warn("failed to increment click count",
			zap.String("link_id", link.ID),
			zap.Error(err),
		)
	}

	if !p.withinTrackedClickLimit(ctx, link.OrgID) {
		p.logger.Debug("tracked click limit reached, event dropped",
			zap.String("link_id", link.ID),
		)
		return
	}

	analyticsEvent := &models.AnalyticsEvent{
		ID:        uuid.NewString(),
		LinkID:    link.ID,
		OrgID:     link.OrgID,
		Referrer:  event.Referrer,
		UserAgent: event.UserAgent,
		IPAddress: event.IPAddress,
		Country:   event.Country,
		ClickedAt: p.now(),
	}

	var lastErr error
	for i := 0; i < maxRecordRetries; i++ {
		if lastErr = p.clickRepo.RecordEvent(ctx, analyticsEvent); lastErr == nil {
			return
		}
		if i < maxRecordRetries-1 {
			p.logger.Debug("retrying analytics event write",
				zap.String("link_id", link.ID),
				zap.Int("attempt", i+1),
				zap.Error(lastErr),
			)
			time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
		}
	}

	p.logger.Error("failed to record analytics event after retries",
		zap.String("operation", "record_event"),
		zap.String("link_id", link.ID),
		zap.Error(lastErr),
	)
}

// withinTrackedClickLimit applies the tier's max tracked clicks per month.
// Any uncertainty (missing billing account, count failure) resolves to
// recording the event; this guard protects storage, not billing accuracy.
func (p *clickProcessor) withinTrackedClickLimit(ctx context.Context, orgID string) bool {
	org, err := p.billingRepo.GetOrganization(ctx, orgID)
	if err != nil || org.BillingAccountID == nil {
		return true
	}

	account, err := p.billingRepo.GetBillingAccount(ctx, *org.BillingAccountID)
	if err != nil {
		return true
	}

	limit := account.Limits().MaxTrackedClicksPerMonth
	if limit == nil {
		return true
	}

	count, err := p.clickRepo.MonthlyEventCount(ctx, account.ID, MonthStart(p.now()))
	if err != nil {
		p.logger.Warn("failed to count monthly events",
			zap.String("billing_account_id", account.ID),
			zap.Error(err),
		)
		return true
	}

	return count < *limit
}

// Enqueue hands a click event to the worker pool without blocking the
// redirect. A full buffer drops the event with a warning.
func (p *clickProcessor) Enqueue(ctx context.Context, event *models.ClickEvent) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case p.clickChannel <- event:
		return nil
	default:
		p.logger.Warn("click channel full, event dropped",
			zap.String("short_code", event.ShortCode),
		)
		return nil
	}
}

func (p *clickProcessor) GetStats(ctx context.Context, shortCode string) (*models.ClickStats, error) {
	return p.clickRepo.GetStats(ctx, shortCode)
}

func (p *clickProcessor) GetDailyStats(ctx context.Context, shortCode string, days int) ([]models.DailyClickStats, error) {
	return p.clickRepo.GetDailyStats(ctx, shortCode, days)
}
