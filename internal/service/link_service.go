package service

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/relink-dev/relink/internal/models"
	"github.com/relink-dev/relink/internal/repository"
	"github.com/relink-dev/relink/internal/shortcode"
	"go.uber.org/zap"
)

const (
	maxLinkTTL = 30 * 24 * time.Hour

	// Expired mappings stay cached for a while past expiry so the edge can
	// answer 410 Gone instead of 404 for recently expired codes.
	mappingGracePeriod = 30 * 24 * time.Hour

	// Collision retries are sequential and bounded: the 11th collision is a
	// hard failure, never an infinite loop. At 62^6 codes, hitting the bound
	// means the code space is near saturation or the cache is lying.
	maxGenerateAttempts = 10
)

var urlPattern = regexp.MustCompile(`^https?://[^\s]+$`)

type LinkService interface {
	Create(ctx context.Context, input *models.CreateLinkInput) (*models.Link, error)
	SoftDelete(ctx context.Context, id string) error
	DeleteForOrg(ctx context.Context, orgID string) (int64, error)
	Migrate(ctx context.Context, linkIDs []string, targetOrgID string) (int64, error)
}

type linkService struct {
	linkRepo  repository.LinkRepository
	cacheRepo repository.CacheRepository
	billing   repository.BillingRepository
	quota     *QuotaEnforcer
	logger    *zap.Logger
	now       func() time.Time
}

func NewLinkService(
	linkRepo repository.LinkRepository,
	cacheRepo repository.CacheRepository,
	billing repository.BillingRepository,
	quota *QuotaEnforcer,
	logger *zap.Logger,
) LinkService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &linkService{
		linkRepo:  linkRepo,
		cacheRepo: cacheRepo,
		billing:   billing,
		quota:     quota,
		logger:    logger,
		now:       time.Now,
	}
}

// Create validates the request, enforces the billing account's monthly
// quota, assigns a short code, writes the authoritative row and the cache
// projection, then commits the quota counter. Validation failures reject
// before any store access.
func (s *linkService) Create(ctx context.Context, input *models.CreateLinkInput) (*models.Link, error) {
	if !urlPattern.MatchString(input.DestinationURL) {
		return nil, ErrInvalidURL
	}
	if input.CustomCode != nil && *input.CustomCode != "" {
		if err := shortcode.ValidateCustom(*input.CustomCode); err != nil {
			return nil, err
		}
	}

	account, err := s.accountForOrg(ctx, input.OrgID)
	if err != nil {
		return nil, err
	}

	if err := s.quota.CheckCreate(ctx, account); err != nil {
		return nil, err
	}

	code, err := s.assignCode(ctx, input.CustomCode)
	if err != nil {
		return nil, err
	}

	var expiresAt *time.Time
	if input.ExpiresInMinutes != nil && *input.ExpiresInMinutes > 0 {
		ttl := time.Duration(*input.ExpiresInMinutes) * time.Minute
		if ttl > maxLinkTTL {
			ttl = maxLinkTTL
		}
		t := s.now().Add(ttl)
		expiresAt = &t
	}

	link := &models.Link{
		ID:             uuid.NewString(),
		OrgID:          input.OrgID,
		ShortCode:      code,
		DestinationURL: input.DestinationURL,
		Title:          input.Title,
		CreatedBy:      input.CreatedBy,
		CreatedAt:      s.now(),
		ExpiresAt:      expiresAt,
		IsActive:       true,
	}

	if err := s.linkRepo.Create(ctx, link); err != nil {
		if errors.Is(err, repository.ErrCodeExists) {
			// Lost the race between the cache probe and the insert.
			return nil, ErrCodeConflict
		}
		return nil, err
	}

	// Cache write is tolerated to fail: the authoritative row exists and the
	// projection can be repaired; redirects miss until then.
	s.writeMapping(ctx, link)

	if err := s.quota.Commit(ctx, account.ID, 1); err != nil {
		s.logger.Error("failed to commit quota counter",
			zap.String("operation", "create"),
			zap.String("billing_account_id", account.ID),
			zap.String("link_id", link.ID),
			zap.Error(err),
		)
		// The row and projection are already visible; retire them so the
		// failed request does not leave an uncounted link serving redirects.
		if derr := s.linkRepo.SoftDelete(ctx, link.ID); derr != nil {
			s.logger.Error("uncounted link left active after quota commit failure",
				zap.String("link_id", link.ID),
				zap.String("code", link.ShortCode),
				zap.Error(derr),
			)
		}
		if derr := s.cacheRepo.DeleteMapping(ctx, link.ShortCode); derr != nil {
			s.logger.Warn("failed to delete cache mapping",
				zap.String("operation", "create"),
				zap.String("code", link.ShortCode),
				zap.Error(derr),
			)
		}
		return nil, err
	}

	return link, nil
}

// SoftDelete flips is_active in the authoritative store, then deletes the
// cache projection. The authoritative flip is mandatory; the cache delete is
// best-effort, and a stale projection still reads inactive once rewritten.
func (s *linkService) SoftDelete(ctx context.Context, id string) error {
	link, err := s.linkRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return ErrNotFound
		}
		return err
	}

	if err := s.linkRepo.SoftDelete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return ErrNotFound
		}
		return err
	}

	if err := s.cacheRepo.DeleteMapping(ctx, link.ShortCode); err != nil {
		s.logger.Warn("failed to delete cache mapping",
			zap.String("operation", "soft_delete"),
			zap.String("code", link.ShortCode),
			zap.Error(err),
		)
	}

	return nil
}

// DeleteForOrg removes every link of an organization. Cache entries go
// first, rows second: a mid-operation crash leaves links unreachable from
// the edge rather than reachable but un-queryable. The month counter is
// released afterwards.
func (s *linkService) DeleteForOrg(ctx context.Context, orgID string) (int64, error) {
	org, err := s.billing.GetOrganization(ctx, orgID)
	if err != nil {
		return 0, err
	}

	links, err := s.linkRepo.ListForOrg(ctx, orgID)
	if err != nil {
		return 0, err
	}

	for _, link := range links {
		if err := s.cacheRepo.DeleteMapping(ctx, link.ShortCode); err != nil {
			s.logger.Warn("failed to delete cache mapping",
				zap.String("operation", "delete_for_org"),
				zap.String("code", link.ShortCode),
				zap.Error(err),
			)
		}
	}

	deleted, err := s.linkRepo.DeleteForOrg(ctx, orgID)
	if err != nil {
		return 0, err
	}

	if org.BillingAccountID != nil && deleted > 0 {
		if err := s.quota.Release(ctx, *org.BillingAccountID, deleted); err != nil {
			s.logger.Warn("failed to release quota counter",
				zap.String("operation", "delete_for_org"),
				zap.String("billing_account_id", *org.BillingAccountID),
				zap.Error(err),
			)
		}
	}

	return deleted, nil
}

// Migrate reassigns links to another organization. Quota transfers only for
// links arriving from other billing accounts: moving links between two
// organizations of one account nets to zero and consumes no capacity. The
// incoming count is checked and committed before the rows move, so a
// successful migration can never exceed quota. Cache projections are
// rewritten under the same keys since the code namespace is global.
func (s *linkService) Migrate(ctx context.Context, linkIDs []string, targetOrgID string) (int64, error) {
	targetOrg, err := s.billing.GetOrganization(ctx, targetOrgID)
	if err != nil {
		return 0, err
	}
	if targetOrg.BillingAccountID == nil {
		return 0, ErrNoBillingAccount
	}

	targetAccount, err := s.billing.GetBillingAccount(ctx, *targetOrg.BillingAccountID)
	if err != nil {
		return 0, err
	}

	if len(linkIDs) == 0 {
		return 0, nil
	}

	// incoming counts links crossing into the target account; sources give
	// the same count back after the rows move.
	links := make([]*models.Link, 0, len(linkIDs))
	sourceCounts := make(map[string]int64)
	var incoming int64
	for _, id := range linkIDs {
		link, err := s.linkRepo.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrLinkNotFound) {
				return 0, ErrNotFound
			}
			return 0, err
		}
		links = append(links, link)

		sourceOrg, err := s.billing.GetOrganization(ctx, link.OrgID)
		if err != nil {
			return 0, err
		}
		switch {
		case sourceOrg.BillingAccountID == nil:
			// Never counted anywhere; consumes a target slot.
			incoming++
		case *sourceOrg.BillingAccountID != targetAccount.ID:
			incoming++
			sourceCounts[*sourceOrg.BillingAccountID]++
		}
	}

	if incoming > 0 {
		if err := s.quota.CheckMigration(ctx, targetAccount, incoming); err != nil {
			return 0, err
		}
		if err := s.quota.Commit(ctx, targetAccount.ID, incoming); err != nil {
			return 0, err
		}
	}

	moved, err := s.linkRepo.Reassign(ctx, linkIDs, targetOrgID)
	if err != nil {
		return 0, err
	}

	for _, link := range links {
		link.OrgID = targetOrgID
		s.writeMapping(ctx, link)
	}

	for accountID, count := range sourceCounts {
		if err := s.quota.Release(ctx, accountID, count); err != nil {
			s.logger.Warn("failed to release source quota counter",
				zap.String("operation", "migrate"),
				zap.String("billing_account_id", accountID),
				zap.Error(err),
			)
		}
	}

	return moved, nil
}

func (s *linkService) accountForOrg(ctx context.Context, orgID string) (*models.BillingAccount, error) {
	org, err := s.billing.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org.BillingAccountID == nil {
		return nil, ErrNoBillingAccount
	}
	return s.billing.GetBillingAccount(ctx, *org.BillingAccountID)
}

// assignCode picks the short code: a validated custom code probed against
// the cache namespace, or up to maxGenerateAttempts random candidates.
func (s *linkService) assignCode(ctx context.Context, custom *string) (string, error) {
	if custom != nil && *custom != "" {
		taken, err := s.codeTaken(ctx, *custom)
		if err != nil {
			return "", err
		}
		if taken {
			return "", ErrCodeConflict
		}
		return *custom, nil
	}

	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		code, err := shortcode.Generate()
		if err != nil {
			return "", err
		}
		taken, err := s.codeTaken(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
		s.logger.Debug("generated code collided",
			zap.String("code", code),
			zap.Int("attempt", attempt+1),
		)
	}

	s.logger.Error("short code generation exhausted",
		zap.String("operation", "assign_code"),
		zap.Int("attempts", maxGenerateAttempts),
	)
	return "", ErrGenerationExhausted
}

func (s *linkService) codeTaken(ctx context.Context, code string) (bool, error) {
	_, err := s.cacheRepo.GetMapping(ctx, code)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, repository.ErrCacheMiss) {
		return false, nil
	}
	return false, err
}

// writeMapping projects the link into the cache. The redirect path reads
// only this projection, so non-expiring links get no TTL; the entry lives
// until a writer deletes or rewrites it.
func (s *linkService) writeMapping(ctx context.Context, link *models.Link) {
	var ttl time.Duration
	if link.ExpiresAt != nil {
		ttl = link.ExpiresAt.Sub(s.now()) + mappingGracePeriod
		if ttl <= 0 {
			return
		}
	}
	if err := s.cacheRepo.SetMapping(ctx, link.ShortCode, link.Mapping(), ttl); err != nil {
		s.logger.Warn("failed to write cache mapping",
			zap.String("code", link.ShortCode),
			zap.Error(err),
		)
	}
}
