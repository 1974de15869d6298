package repositories

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/oesperto/comparador/internal/models"
)

type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	Update(ctx context.Context, account *models.Account) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByID(ctx context.Context, id string) (*models.Session, error)
	ListByAccountID(ctx context.Context, accountID uuid.UUID) ([]*models.Session, error)
	Delete(ctx context.Context, id string) error
	DeleteAllForAccount(ctx context.Context, accountID uuid.UUID) error
}

// ComparisonRepository is the remote store of saved comparisons.
type ComparisonRepository interface {
	// Create stores a comparison. A zero createdAt lets the database stamp it.
	Create(ctx context.Context, userID uuid.UUID, input models.ComparisonInput, createdAt time.Time) (*models.Comparison, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Comparison, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ContributionRepository is the remote store of crowd-sourced prices.
type ContributionRepository interface {
	Create(ctx context.Context, contribution *models.PriceContribution) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.PriceContribution, error)
	HasRecentDuplicate(ctx context.Context, userID uuid.UUID, input models.ContributionInput, since time.Time) (bool, error)
	ListSince(ctx context.Context, city, state string, since time.Time) ([]*models.PriceContribution, error)
	Verify(ctx context.Context, id, adminID uuid.UUID) (*models.PriceContribution, error)
	ListVerifiedForUserSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]*models.PriceContribution, error)
	ListCreatedSince(ctx context.Context, since time.Time) ([]*models.PriceContribution, error)
}

type SuggestionRepository interface {
	Create(ctx context.Context, suggestion *models.Suggestion) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Suggestion, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.SuggestionStatus, notes string) (*models.Suggestion, error)
	ListChangedForUserSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]*models.Suggestion, error)
	ListCreatedSince(ctx context.Context, since time.Time) ([]*models.Suggestion, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Notification, error)
	MarkRead(ctx context.Context, userID uuid.UUID, id string) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) error
	DeleteAllForUser(ctx context.Context, userID uuid.UUID) error
}

// PermissionRepository keeps the desktop-notification permission per account.
type PermissionRepository interface {
	Get(ctx context.Context, accountID uuid.UUID) (models.NotificationPermission, error)
	Set(ctx context.Context, accountID uuid.UUID, permission models.NotificationPermission) error
}
