package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oesperto/comparador/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrNoChange is returned when a conditional update matched an existing row
	// that was already in the target state.
	ErrNoChange = errors.New("no change")
)

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

type PostgresAccountRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresAccountRepository(pool *pgxpool.Pool) *PostgresAccountRepository {
	return &PostgresAccountRepository{pool: pool}
}

func (r *PostgresAccountRepository) Create(ctx context.Context, account *models.Account) error {
	query := `INSERT INTO accounts (email, name, password_hash, is_admin)
              VALUES ($1, $2, $3, $4)
              RETURNING id, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query, account.Email, account.Name, account.PasswordHash, account.IsAdmin).
		Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (r *PostgresAccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	query := `SELECT id, email, name, password_hash, is_admin, created_at, updated_at, deleted_at
	          FROM accounts WHERE id = $1 AND deleted_at IS NULL`
	return scanAccount(r.pool.QueryRow(ctx, query, id))
}

func (r *PostgresAccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT id, email, name, password_hash, is_admin, created_at, updated_at, deleted_at
	          FROM accounts WHERE email = $1 AND deleted_at IS NULL`
	return scanAccount(r.pool.QueryRow(ctx, query, email))
}

func (r *PostgresAccountRepository) Update(ctx context.Context, account *models.Account) error {
	query := `UPDATE accounts SET email = $1, name = $2, password_hash = $3, is_admin = $4, updated_at = NOW()
	          WHERE id = $5 AND deleted_at IS NULL`

	result, err := r.pool.Exec(ctx, query, account.Email, account.Name, account.PasswordHash, account.IsAdmin, account.ID)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresAccountRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE accounts SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`
	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAccount(row scanner) (*models.Account, error) {
	var account models.Account
	err := row.Scan(
		&account.ID,
		&account.Email,
		&account.Name,
		&account.PasswordHash,
		&account.IsAdmin,
		&account.CreatedAt,
		&account.UpdatedAt,
		&account.DeletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}
