package service

import (
	"context"
	"time"

	"github.com/relink-dev/relink/internal/models"
	"github.com/relink-dev/relink/internal/repository"
	"go.uber.org/zap"
)

// QuotaEnforcer evaluates and commits monthly link-creation quotas at
// billing-account granularity. Every organization under one account draws
// from the same counter.
type QuotaEnforcer struct {
	billing repository.BillingRepository
	logger  *zap.Logger
	now     func() time.Time
}

func NewQuotaEnforcer(billing repository.BillingRepository, logger *zap.Logger) *QuotaEnforcer {
	return &QuotaEnforcer{
		billing: billing,
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock replaces the time source. Test hook.
func (q *QuotaEnforcer) WithClock(now func() time.Time) *QuotaEnforcer {
	q.now = now
	return q
}

// MonthKey derives the counter key suffix for a point in time, in UTC.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// MonthStart returns the first instant of the month containing t, in UTC.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// CheckCreate rejects when the account's committed usage for the current
// month has reached its tier limit.
func (q *QuotaEnforcer) CheckCreate(ctx context.Context, account *models.BillingAccount) error {
	limit := account.Limits().MaxLinksPerMonth
	if limit == nil {
		return nil
	}

	current, err := q.billing.MonthlyUsage(ctx, account.ID, MonthKey(q.now()))
	if err != nil {
		return err
	}

	if current >= *limit {
		return &QuotaExceededError{Current: current, Limit: *limit}
	}

	return nil
}

// CheckMigration rejects when moving n links into the account would exceed
// its remaining capacity for the current month.
func (q *QuotaEnforcer) CheckMigration(ctx context.Context, account *models.BillingAccount, n int64) error {
	limit := account.Limits().MaxLinksPerMonth
	if limit == nil {
		return nil
	}

	current, err := q.billing.MonthlyUsage(ctx, account.ID, MonthKey(q.now()))
	if err != nil {
		return err
	}

	available := *limit - current
	if available < 0 {
		available = 0
	}
	if n > available {
		return &MigrationCapacityError{Requested: n, Available: available}
	}

	return nil
}

// Commit bumps the account's counter for the current month by n.
func (q *QuotaEnforcer) Commit(ctx context.Context, accountID string, n int64) error {
	return q.billing.IncrementMonthlyUsage(ctx, accountID, MonthKey(q.now()), n)
}

// Release lowers the account's counter for the current month by n, floored
// at zero. Used on org deletion and migration transfer.
func (q *QuotaEnforcer) Release(ctx context.Context, accountID string, n int64) error {
	return q.billing.DecrementMonthlyUsage(ctx, accountID, MonthKey(q.now()), n)
}

// MemberCapacityAvailable applies the committed-usage rule for member
// limits: members already joined plus invitations not yet accepted count
// against the limit. Membership flows themselves live outside this service.
func MemberCapacityAvailable(limits models.TierLimits, joined, pending int64) bool {
	if limits.MaxMembers == nil {
		return true
	}
	return joined+pending < *limits.MaxMembers
}
