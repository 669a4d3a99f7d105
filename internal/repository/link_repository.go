package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/relink-dev/relink/internal/models"
)

var (
	ErrLinkNotFound = errors.New("link not found")
	ErrCodeExists   = errors.New("short code already exists")
)

type LinkRepository interface {
	Create(ctx context.Context, link *models.Link) error
	GetByID(ctx context.Context, id string) (*models.Link, error)
	GetByShortCode(ctx context.Context, code string) (*models.Link, error)
	SoftDelete(ctx context.Context, id string) error
	ListForOrg(ctx context.Context, orgID string) ([]*models.Link, error)
	DeleteForOrg(ctx context.Context, orgID string) (int64, error)
	Reassign(ctx context.Context, linkIDs []string, targetOrgID string) (int64, error)
	IncrementClickCount(ctx context.Context, id string) error
}

type linkRepository struct {
	db *PostgresDB
}

func NewLinkRepository(db *PostgresDB) LinkRepository {
	return &linkRepository{db: db}
}

const linkColumns = `id, org_id, short_code, destination_url, title, created_by, created_at, updated_at, expires_at, is_active, click_count`

func (r *linkRepository) Create(ctx context.Context, link *models.Link) error {
	query := `
		INSERT INTO links (id, org_id, short_code, destination_url, title, created_by, created_at, expires_at, is_active, click_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0)
		RETURNING created_at
	`

	err := r.db.Pool.QueryRow(
		ctx,
		query,
		link.ID,
		link.OrgID,
		link.ShortCode,
		link.DestinationURL,
		link.Title,
		link.CreatedBy,
		link.CreatedAt,
		link.ExpiresAt,
		link.IsActive,
	).Scan(&link.CreatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrCodeExists
		}
		return fmt.Errorf("failed to create link: %w", err)
	}

	return nil
}

func (r *linkRepository) GetByID(ctx context.Context, id string) (*models.Link, error) {
	query := `SELECT ` + linkColumns + ` FROM links WHERE id = $1`
	return r.scanOne(r.db.Pool.QueryRow(ctx, query, id))
}

func (r *linkRepository) GetByShortCode(ctx context.Context, code string) (*models.Link, error) {
	query := `SELECT ` + linkColumns + ` FROM links WHERE short_code = $1`
	return r.scanOne(r.db.Pool.QueryRow(ctx, query, code))
}

// SoftDelete flips is_active. The row stays until its organization is
// deleted or the link is migrated out.
func (r *linkRepository) SoftDelete(ctx context.Context, id string) error {
	query := `UPDATE links SET is_active = FALSE, updated_at = NOW() WHERE id = $1 AND is_active = TRUE`

	result, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to soft delete link %s: %w", id, err)
	}

	if result.RowsAffected() == 0 {
		return ErrLinkNotFound
	}

	return nil
}

func (r *linkRepository) ListForOrg(ctx context.Context, orgID string) ([]*models.Link, error) {
	query := `SELECT ` + linkColumns + ` FROM links WHERE org_id = $1`

	rows, err := r.db.Pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list links for org %s: %w", orgID, err)
	}
	defer rows.Close()

	var links []*models.Link
	for rows.Next() {
		link, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating links: %w", err)
	}

	return links, nil
}

func (r *linkRepository) DeleteForOrg(ctx context.Context, orgID string) (int64, error) {
	query := `DELETE FROM links WHERE org_id = $1`

	result, err := r.db.Pool.Exec(ctx, query, orgID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete links for org %s: %w", orgID, err)
	}

	return result.RowsAffected(), nil
}

func (r *linkRepository) Reassign(ctx context.Context, linkIDs []string, targetOrgID string) (int64, error) {
	query := `UPDATE links SET org_id = $1, updated_at = NOW() WHERE id = ANY($2)`

	result, err := r.db.Pool.Exec(ctx, query, targetOrgID, linkIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to reassign links to org %s: %w", targetOrgID, err)
	}

	return result.RowsAffected(), nil
}

// IncrementClickCount bumps the counter atomically in the store; callers
// never read-modify-write it.
func (r *linkRepository) IncrementClickCount(ctx context.Context, id string) error {
	query := `UPDATE links SET click_count = click_count + 1 WHERE id = $1`

	result, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to increment click count for link %s: %w", id, err)
	}

	if result.RowsAffected() == 0 {
		return ErrLinkNotFound
	}

	return nil
}

func (r *linkRepository) scanOne(row pgx.Row) (*models.Link, error) {
	link := &models.Link{}
	err := row.Scan(
		&link.ID,
		&link.OrgID,
		&link.ShortCode,
		&link.DestinationURL,
		&link.Title,
		&link.CreatedBy,
		&link.CreatedAt,
		&link.UpdatedAt,
		&link.ExpiresAt,
		&link.IsActive,
		&link.ClickCount,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to scan link: %w", err)
	}

	return link, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
