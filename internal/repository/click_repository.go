package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/relink-dev/relink/internal/models"
)

type ClickRepository interface {
	RecordEvent(ctx context.Context, event *models.AnalyticsEvent) error
	MonthlyEventCount(ctx context.Context, billingAccountID string, monthStart time.Time) (int64, error)
	GetStats(ctx context.Context, shortCode string) (*models.ClickStats, error)
	GetDailyStats(ctx context.Context, shortCode string, days int) ([]models.DailyClickStats, error)
}

type clickRepository struct {
	db *PostgresDB
}

func NewClickRepository(db *PostgresDB) ClickRepository {
	return &clickRepository{db: db}
}

func (r *clickRepository) RecordEvent(ctx context.Context, event *models.AnalyticsEvent) error {
	query := `
		INSERT INTO analytics_events (id, link_id, org_id, referrer, user_agent, ip_address, country, clicked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		event.ID,
		event.LinkID,
		event.OrgID,
		event.Referrer,
		event.UserAgent,
		event.IPAddress,
		event.Country,
		event.ClickedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to record analytics event for link %s: %w", event.LinkID, err)
	}

	return nil
}

// MonthlyEventCount counts tracked clicks across every organization under a
// billing account, for the tracked-clicks tier limit.
func (r *clickRepository) MonthlyEventCount(ctx context.Context, billingAccountID string, monthStart time.Time) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM analytics_events e
		JOIN organizations o ON e.org_id = o.id
		WHERE o.billing_account_id = $1 AND e.clicked_at >= $2
	`

	var count int64
	err := r.db.Pool.QueryRow(ctx, query, billingAccountID, monthStart).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count monthly events for account %s: %w", billingAccountID, err)
	}

	return count, nil
}

func (r *clickRepository) GetStats(ctx context.Context, shortCode string) (*models.ClickStats, error) {
	query := `
		SELECT
			COUNT(*) as total_clicks,
			COUNT(DISTINCT ip_address) as unique_clicks
		FROM analytics_events e
		JOIN links l ON e.link_id = l.id
		WHERE l.short_code = $1
	`

	stats := &models.ClickStats{
		ShortCode: shortCode,
	}

	err := r.db.Pool.QueryRow(ctx, query, shortCode).Scan(
		&stats.TotalClicks,
		&stats.UniqueClicks,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to get click stats: %w", err)
	}

	return stats, nil
}

func (r *clickRepository) GetDailyStats(ctx context.Context, shortCode string, days int) ([]models.DailyClickStats, error) {
	query := `
		SELECT
			DATE(e.clicked_at) as date,
			COUNT(*) as clicks
		FROM analytics_events e
		JOIN links l ON e.link_id = l.id
		WHERE l.short_code = $1
			AND e.clicked_at >= NOW() - INTERVAL '1 day' * $2
		GROUP BY DATE(e.clicked_at)
		ORDER BY date DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, shortCode, days)
	if err != nil {
		return nil, fmt.Errorf("failed to get daily stats: %w", err)
	}
	defer rows.Close()

	var stats []models.DailyClickStats
	for rows.Next() {
		var dailyStat models.DailyClickStats
		if err := rows.Scan(&dailyStat.Date, &dailyStat.Clicks); err != nil {
			return nil, fmt.Errorf("failed to scan daily stat: %w", err)
		}
		stats = append(stats, dailyStat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily stats: %w", err)
	}

	return stats, nil
}
