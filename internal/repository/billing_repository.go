package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/relink-dev/relink/internal/models"
)

var (
	ErrBillingAccountNotFound = errors.New("billing account not found")
	ErrOrganizationNotFound   = errors.New("organization not found")
)

type BillingRepository interface {
	GetBillingAccount(ctx context.Context, id string) (*models.BillingAccount, error)
	GetOrganization(ctx context.Context, id string) (*models.Organization, error)
	MonthlyUsage(ctx context.Context, accountID, month string) (int64, error)
	IncrementMonthlyUsage(ctx context.Context, accountID, month string, delta int64) error
	DecrementMonthlyUsage(ctx context.Context, accountID, month string, delta int64) error
	ResetMonthlyUsage(ctx context.Context, accountID, month string) error
}

type billingRepository struct {
	db *PostgresDB
}

func NewBillingRepository(db *PostgresDB) BillingRepository {
	return &billingRepository{db: db}
}

func (r *billingRepository) GetBillingAccount(ctx context.Context, id string) (*models.BillingAccount, error) {
	query := `SELECT id, owner_user_id, tier, created_at FROM billing_accounts WHERE id = $1`

	account := &models.BillingAccount{}
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&account.ID,
		&account.OwnerUserID,
		&account.Tier,
		&account.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBillingAccountNotFound
		}
		return nil, fmt.Errorf("failed to get billing account %s: %w", id, err)
	}

	return account, nil
}

func (r *billingRepository) GetOrganization(ctx context.Context, id string) (*models.Organization, error) {
	query := `SELECT id, name, billing_account_id, created_at, created_by FROM organizations WHERE id = $1`

	org := &models.Organization{}
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&org.ID,
		&org.Name,
		&org.BillingAccountID,
		&org.CreatedAt,
		&org.CreatedBy,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("failed to get organization %s: %w", id, err)
	}

	return org, nil
}

func (r *billingRepository) MonthlyUsage(ctx context.Context, accountID, month string) (int64, error) {
	query := `SELECT count FROM monthly_counters WHERE billing_account_id = $1 AND month = $2`

	var count int64
	err := r.db.Pool.QueryRow(ctx, query, accountID, month).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get monthly usage for account %s: %w", accountID, err)
	}

	return count, nil
}

// IncrementMonthlyUsage is an atomic upsert. Concurrent creations for the
// same account never lose updates.
func (r *billingRepository) IncrementMonthlyUsage(ctx context.Context, accountID, month string, delta int64) error {
	query := `
		INSERT INTO monthly_counters (billing_account_id, month, count)
		VALUES ($1, $2, $3)
		ON CONFLICT (billing_account_id, month)
		DO UPDATE SET count = monthly_counters.count + $3
	`

	_, err := r.db.Pool.Exec(ctx, query, accountID, month, delta)
	if err != nil {
		return fmt.Errorf("failed to increment monthly usage for account %s: %w", accountID, err)
	}

	return nil
}

// DecrementMonthlyUsage floors at zero; the counter never goes negative.
func (r *billingRepository) DecrementMonthlyUsage(ctx context.Context, accountID, month string, delta int64) error {
	query := `
		UPDATE monthly_counters
		SET count = GREATEST(count - $3, 0)
		WHERE billing_account_id = $1 AND month = $2
	`

	_, err := r.db.Pool.Exec(ctx, query, accountID, month, delta)
	if err != nil {
		return fmt.Errorf("failed to decrement monthly usage for account %s: %w", accountID, err)
	}

	return nil
}

// ResetMonthlyUsage zeroes a counter. Explicit admin operation only.
func (r *billingRepository) ResetMonthlyUsage(ctx context.Context, accountID, month string) error {
	query := `
		UPDATE monthly_counters
		SET count = 0
		WHERE billing_account_id = $1 AND month = $2
	`

	_, err := r.db.Pool.Exec(ctx, query, accountID, month)
	if err != nil {
		return fmt.Errorf("failed to reset monthly usage for account %s: %w", accountID, err)
	}

	return nil
}
