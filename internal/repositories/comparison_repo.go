package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oesperto/comparador/internal/models"
)

type PostgresComparisonRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresComparisonRepository(pool *pgxpool.Pool) *PostgresComparisonRepository {
	return &PostgresComparisonRepository{pool: pool}
}

// Create stores a comparison. Products and stores go into JSONB columns.
// Replayed offline records keep the time they were saved on the device.
func (r *PostgresComparisonRepository) Create(ctx context.Context, userID uuid.UUID, input models.ComparisonInput, createdAt time.Time) (*models.Comparison, error) {
	query := `INSERT INTO comparisons (user_id, products, stores, created_at)
	          VALUES ($1, $2, $3, COALESCE($4::timestamptz, NOW()))
	          RETURNING id, created_at`

	comparison := &models.Comparison{
		UserID:   userID,
		Products: input.Products,
		Stores:   input.Stores,
	}

	var id uuid.UUID
	err := r.pool.QueryRow(ctx, query, userID, input.Products, input.Stores, nullTime(createdAt)).Scan(&id, &comparison.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create comparison: %w", err)
	}
	comparison.ID = id.String()
	return comparison, nil
}

func (r *PostgresComparisonRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Comparison, error) {
	query := `SELECT id, user_id, products, stores, created_at
	          FROM comparisons
	          WHERE user_id = $1
	          ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query comparisons: %w", err)
	}
	defer rows.Close()

	var comparisons []*models.Comparison
	for rows.Next() {
		var c models.Comparison
		var id uuid.UUID
		if err := rows.Scan(&id, &c.UserID, &c.Products, &c.Stores, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comparison: %w", err)
		}
		c.ID = id.String()
		comparisons = append(comparisons, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating comparisons: %w", err)
	}
	return comparisons, nil
}

func (r *PostgresComparisonRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM comparisons WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete comparison: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// nullTime maps the zero time to NULL so the column default applies.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
