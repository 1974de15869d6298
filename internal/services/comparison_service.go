package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oesperto/comparador/internal/models"
	"github.com/oesperto/comparador/internal/offline"
	"github.com/oesperto/comparador/internal/repositories"
)

type ComparisonService struct {
	repo    repositories.ComparisonRepository
	queue   *offline.Queue
	conn    Connectivity
	toaster Toaster
	logger  *slog.Logger
}

func NewComparisonService(
	repo repositories.ComparisonRepository,
	queue *offline.Queue,
	conn Connectivity,
	toaster Toaster,
	logger *slog.Logger,
) *ComparisonService {
	return &ComparisonService{
		repo:    repo,
		queue:   queue,
		conn:    conn,
		toaster: toaster,
		logger:  logger.With("component", "comparisons"),
	}
}

// SaveComparison writes to the backend when online and falls back to the
// local queue when offline or when the remote write fails. A queued record
// comes back with Offline set.
func (s *ComparisonService) SaveComparison(ctx context.Context, userID uuid.UUID, input models.ComparisonInput) (*models.Comparison, error) {
	if err := validateComparison(input); err != nil {
		return nil, err
	}

	if !s.conn.Online() {
		return s.saveOffline(userID, input)
	}

	saved, err := s.repo.Create(ctx, userID, input, time.Time{})
	if err != nil {
		s.logger.Warn("remote save failed, queueing comparison", "user_id", userID, "error", err)
		return s.saveOffline(userID, input)
	}
	return saved, nil
}

func (s *ComparisonService) saveOffline(userID uuid.UUID, input models.ComparisonInput) (*models.Comparison, error) {
	queued, err := s.queue.SaveOfflineComparison(userID, input)
	if err != nil {
		return nil, fmt.Errorf("failed to queue comparison: %w", err)
	}

	s.logger.Info("comparison saved offline", "user_id", userID, "id", queued.ID)
	s.toaster.Toast(userID, models.Notification{
		ID:        "saved-offline-" + queued.ID,
		Title:     "Salvo offline",
		Message:   "Sua comparação será sincronizada quando a conexão voltar.",
		Type:      models.NotificationInfo,
		CreatedAt: time.Now().UTC(),
	})

	c := queued.Comparison()
	return &c, nil
}

// GetUserComparisons merges the user's remote comparisons with the ones still
// waiting in the local queue, newest first. When the backend is unreachable
// only the local records are returned.
//
// The queue is read before the backend so a sync landing between the two
// reads shows the record in at least one of them. A replayed row keeps its
// queued timestamp, which is how the local copy is recognised and dropped.
func (s *ComparisonService) GetUserComparisons(ctx context.Context, userID uuid.UUID) ([]models.Comparison, error) {
	local, localErr := s.queue.GetUnsyncedComparisons()

	var remote []*models.Comparison
	var remoteErr error
	if s.conn.Online() {
		remote, remoteErr = s.repo.ListByUser(ctx, userID)
		if remoteErr != nil {
			s.logger.Warn("failed to list remote comparisons, showing local only", "user_id", userID, "error", remoteErr)
		}
	}

	if localErr != nil {
		if remoteErr != nil {
			return nil, fmt.Errorf("failed to list comparisons: %w", errors.Join(remoteErr, localErr))
		}
		return nil, fmt.Errorf("failed to read offline comparisons: %w", localErr)
	}

	seen := make(map[string]bool, len(remote)+len(local))
	replayed := make(map[int64]bool, len(remote))
	merged := make([]models.Comparison, 0, len(remote)+len(local))
	for _, c := range remote {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		replayed[replayKey(c.CreatedAt)] = true
		merged = append(merged, *c)
	}
	for _, q := range local {
		if q.UserID != userID || seen[q.ID] || replayed[replayKey(q.CreatedAt)] {
			continue
		}
		seen[q.ID] = true
		merged = append(merged, q.Comparison())
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.After(merged[j].CreatedAt)
	})
	return merged, nil
}

// replayKey reduces a timestamp to the backend's microsecond precision.
func replayKey(t time.Time) int64 {
	return t.UnixMicro()
}

// DeleteComparison removes a queued comparison locally and any other one from
// the backend.
func (s *ComparisonService) DeleteComparison(ctx context.Context, id string) error {
	if models.IsOfflineID(id) {
		if err := s.queue.DeleteOfflineComparison(id); err != nil {
			if errors.Is(err, offline.ErrRecordNotFound) {
				return repositories.ErrNotFound
			}
			return fmt.Errorf("failed to delete offline comparison: %w", err)
		}
		return nil
	}

	remoteID, err := uuid.Parse(id)
	if err != nil {
		return invalid("invalid comparison id %q", id)
	}
	if err := s.repo.Delete(ctx, remoteID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete comparison: %w", err)
	}
	return nil
}

func validateComparison(input models.ComparisonInput) error {
	if len(input.Products) == 0 {
		return invalid("a comparison needs at least one product")
	}
	if len(input.Stores) == 0 {
		return invalid("a comparison needs at least one store")
	}

	storeIDs := make(map[string]bool, len(input.Stores))
	for _, st := range input.Stores {
		if strings.TrimSpace(st.ID) == "" {
			return invalid("store id is required")
		}
		if storeIDs[st.ID] {
			return invalid("duplicate store %q", st.ID)
		}
		storeIDs[st.ID] = true
	}
	for _, p := range input.Products {
		if strings.TrimSpace(p.Name) == "" {
			return invalid("product name is required")
		}
		if p.Quantity < 0 {
			return invalid("quantity of %q cannot be negative", p.Name)
		}
	}
	return nil
}
