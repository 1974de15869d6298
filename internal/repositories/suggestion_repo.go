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

const suggestionColumns = `id, user_id, user_name, type, title, description, status, admin_notes, created_at, updated_at`

type PostgresSuggestionRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresSuggestionRepository(pool *pgxpool.Pool) *PostgresSuggestionRepository {
	return &PostgresSuggestionRepository{pool: pool}
}

func (r *PostgresSuggestionRepository) Create(ctx context.Context, s *models.Suggestion) error {
	query := `INSERT INTO suggestions (user_id, user_name, type, title, description)
	          VALUES ($1, $2, $3, $4, $5)
	          RETURNING id, status, created_at`

	err := r.pool.QueryRow(ctx, query, s.UserID, s.UserName, s.Type, s.Title, s.Description).
		Scan(&s.ID, &s.Status, &s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create suggestion: %w", err)
	}
	return nil
}

func (r *PostgresSuggestionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Suggestion, error) {
	query := `SELECT ` + suggestionColumns + ` FROM suggestions WHERE id = $1`

	s, err := scanSuggestion(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get suggestion: %w", err)
	}
	return s, nil
}

// UpdateStatus moves a suggestion to a new status. Setting the current status
// again returns ErrNoChange.
func (r *PostgresSuggestionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.SuggestionStatus, notes string) (*models.Suggestion, error) {
	query := `UPDATE suggestions
	          SET status = $2, admin_notes = $3, updated_at = NOW()
	          WHERE id = $1 AND status <> $2
	          RETURNING ` + suggestionColumns

	s, err := scanSuggestion(r.pool.QueryRow(ctx, query, id, status, notes))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrNoChange
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update suggestion: %w", err)
	}
	return s, nil
}

func (r *PostgresSuggestionRepository) ListChangedForUserSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]*models.Suggestion, error) {
	query := `SELECT ` + suggestionColumns + `
	          FROM suggestions
	          WHERE user_id = $1 AND updated_at > $2
	          ORDER BY updated_at ASC`
	return r.list(ctx, query, userID, since)
}

func (r *PostgresSuggestionRepository) ListCreatedSince(ctx context.Context, since time.Time) ([]*models.Suggestion, error) {
	query := `SELECT ` + suggestionColumns + `
	          FROM suggestions
	          WHERE created_at > $1
	          ORDER BY created_at ASC`
	return r.list(ctx, query, since)
}

func (r *PostgresSuggestionRepository) list(ctx context.Context, query string, args ...any) ([]*models.Suggestion, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query suggestions: %w", err)
	}
	defer rows.Close()

	var suggestions []*models.Suggestion
	for rows.Next() {
		s, err := scanSuggestion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan suggestion: %w", err)
		}
		suggestions = append(suggestions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating suggestions: %w", err)
	}
	return suggestions, nil
}

func scanSuggestion(row scanner) (*models.Suggestion, error) {
	var s models.Suggestion
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.UserName,
		&s.Type,
		&s.Title,
		&s.Description,
		&s.Status,
		&s.AdminNotes,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
