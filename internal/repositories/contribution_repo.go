package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oesperto/comparador/internal/models"
)

const contributionColumns = `id, user_id, user_name, product_name, price, store_name, city, state,
	quantity, unit, verified, verified_by, created_at, updated_at`

type PostgresContributionRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresContributionRepository(pool *pgxpool.Pool) *PostgresContributionRepository {
	return &PostgresContributionRepository{pool: pool}
}

func (r *PostgresContributionRepository) Create(ctx context.Context, c *models.PriceContribution) error {
	query := `INSERT INTO price_contributions
	              (user_id, user_name, product_name, price, store_name, city, state, quantity, unit, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10::timestamptz, NOW()))
	          RETURNING id, verified, created_at`

	err := r.pool.QueryRow(ctx, query,
		c.UserID,
		c.UserName,
		c.ProductName,
		c.Price,
		c.StoreName,
		c.City,
		c.State,
		c.Quantity,
		c.Unit,
		nullTime(c.CreatedAt),
	).Scan(&c.ID, &c.Verified, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create contribution: %w", err)
	}
	return nil
}

func (r *PostgresContributionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PriceContribution, error) {
	query := `SELECT ` + contributionColumns + ` FROM price_contributions WHERE id = $1`

	c, err := scanContribution(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contribution: %w", err)
	}
	return c, nil
}

// HasRecentDuplicate reports whether the user already priced the same product
// at the same store and city since the given time. Names compare case-insensitively.
func (r *PostgresContributionRepository) HasRecentDuplicate(ctx context.Context, userID uuid.UUID, input models.ContributionInput, since time.Time) (bool, error) {
	query := `SELECT EXISTS (
	              SELECT 1 FROM price_contributions
	              WHERE user_id = $1
	                AND LOWER(product_name) = LOWER($2)
	                AND LOWER(store_name) = LOWER($3)
	                AND LOWER(city) = LOWER($4)
	                AND created_at >= $5)`

	var exists bool
	err := r.pool.QueryRow(ctx, query, userID, input.ProductName, input.StoreName, input.City, since).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check duplicate contribution: %w", err)
	}
	return exists, nil
}

// ListSince returns contributions for a city created since the given time,
// newest first. An empty city or state matches all.
func (r *PostgresContributionRepository) ListSince(ctx context.Context, city, state string, since time.Time) ([]*models.PriceContribution, error) {
	query := `SELECT ` + contributionColumns + `
	          FROM price_contributions
	          WHERE created_at >= $1
	            AND ($2 = '' OR LOWER(city) = LOWER($2))
	            AND ($3 = '' OR LOWER(state) = LOWER($3))
	          ORDER BY created_at DESC`
	return r.list(ctx, query, since, city, state)
}

// Verify flips verified from false to true. It returns ErrNoChange when the
// contribution was already verified.
func (r *PostgresContributionRepository) Verify(ctx context.Context, id, adminID uuid.UUID) (*models.PriceContribution, error) {
	query := `UPDATE price_contributions
	          SET verified = TRUE, verified_by = $2, updated_at = NOW()
	          WHERE id = $1 AND verified = FALSE
	          RETURNING ` + contributionColumns

	c, err := scanContribution(r.pool.QueryRow(ctx, query, id, adminID))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrNoChange
	}
	if err != nil {
		return nil, fmt.Errorf("failed to verify contribution: %w", err)
	}
	return c, nil
}

func (r *PostgresContributionRepository) ListVerifiedForUserSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]*models.PriceContribution, error) {
	query := `SELECT ` + contributionColumns + `
	          FROM price_contributions
	          WHERE user_id = $1 AND verified = TRUE AND updated_at > $2
	          ORDER BY updated_at ASC`
	return r.list(ctx, query, userID, since)
}

func (r *PostgresContributionRepository) ListCreatedSince(ctx context.Context, since time.Time) ([]*models.PriceContribution, error) {
	query := `SELECT ` + contributionColumns + `
	          FROM price_contributions
	          WHERE created_at > $1
	          ORDER BY created_at ASC`
	return r.list(ctx, query, since)
}

func (r *PostgresContributionRepository) list(ctx context.Context, query string, args ...any) ([]*models.PriceContribution, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query contributions: %w", err)
	}
	defer rows.Close()

	var contributions []*models.PriceContribution
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contribution: %w", err)
		}
		contributions = append(contributions, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contributions: %w", err)
	}
	return contributions, nil
}

func scanContribution(row scanner) (*models.PriceContribution, error) {
	var c models.PriceContribution
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.UserName,
		&c.ProductName,
		&c.Price,
		&c.StoreName,
		&c.City,
		&c.State,
		&c.Quantity,
		&c.Unit,
		&c.Verified,
		&c.VerifiedBy,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
