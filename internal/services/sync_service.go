package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/oesperto/comparador/internal/models"
	"github.com/oesperto/comparador/internal/notifications"
	"github.com/oesperto/comparador/internal/offline"
	"github.com/oesperto/comparador/internal/realtime"
	"github.com/oesperto/comparador/internal/repositories"
)

type SyncResult struct {
	// Skipped is set when another sync was already running.
	Skipped             bool          `json:"skipped"`
	SyncedComparisons   int           `json:"synced_comparisons"`
	SyncedContributions int           `json:"synced_contributions"`
	Failed              int           `json:"failed"`
	Cleared             int           `json:"cleared"`
	Remaining           int           `json:"remaining"`
	Duration            time.Duration `json:"duration"`
}

type SyncStatus struct {
	Syncing bool `json:"syncing"`
	offline.Stats
}

// SyncService replays the local queue against the backend.
type SyncService struct {
	queue         *offline.Queue
	comparisons   repositories.ComparisonRepository
	contributions repositories.ContributionRepository
	publisher     realtime.Publisher
	logger        *slog.Logger
	syncing       atomic.Bool
	now           func() time.Time
}

func NewSyncService(
	queue *offline.Queue,
	comparisons repositories.ComparisonRepository,
	contributions repositories.ContributionRepository,
	publisher realtime.Publisher,
	logger *slog.Logger,
) *SyncService {
	return &SyncService{
		queue:         queue,
		comparisons:   comparisons,
		contributions: contributions,
		publisher:     publisher,
		logger:        logger.With("component", "sync"),
		now:           time.Now,
	}
}

// SyncOfflineData pushes every unsynced comparison, then every unsynced
// contribution, one at a time in the order they were queued. A record that
// fails stays queued for the next run. Only one sync runs at a time; a call
// made while one is running returns a skipped result.
func (s *SyncService) SyncOfflineData(ctx context.Context) (*SyncResult, error) {
	if !s.syncing.CompareAndSwap(false, true) {
		s.logger.Debug("sync already in progress, skipping")
		return &SyncResult{Skipped: true}, nil
	}
	defer s.syncing.Store(false)

	start := s.now()
	result := &SyncResult{}

	comparisons, err := s.queue.GetUnsyncedComparisons()
	if err != nil {
		return nil, fmt.Errorf("failed to read queued comparisons: %w", err)
	}
	contributions, err := s.queue.GetUnsyncedContributions()
	if err != nil {
		return nil, fmt.Errorf("failed to read queued contributions: %w", err)
	}
	if len(comparisons)+len(contributions) > 0 {
		s.logger.Info("starting sync", "comparisons", len(comparisons), "contributions", len(contributions))
	}

	for _, q := range comparisons {
		if ctx.Err() != nil {
			break
		}
		if err := s.replayComparison(ctx, q); err != nil {
			s.logger.Warn("failed to sync comparison", "id", q.ID, "error", err)
			result.Failed++
			continue
		}
		result.SyncedComparisons++
	}

	for _, q := range contributions {
		if ctx.Err() != nil {
			break
		}
		if err := s.replayContribution(ctx, q); err != nil {
			s.logger.Warn("failed to sync contribution", "id", q.ID, "error", err)
			result.Failed++
			continue
		}
		result.SyncedContributions++
	}

	cleared, err := s.queue.ClearSyncedData()
	if err != nil {
		return nil, fmt.Errorf("failed to clear synced data: %w", err)
	}
	result.Cleared = cleared

	if err := s.queue.SetLastSync(s.now()); err != nil {
		return nil, fmt.Errorf("failed to record last sync: %w", err)
	}

	stats, err := s.queue.Stats()
	if err != nil {
		return nil, fmt.Errorf("failed to read queue stats: %w", err)
	}
	result.Remaining = stats.PendingComparisons + stats.PendingContributions
	result.Duration = s.now().Sub(start)

	if result.SyncedComparisons+result.SyncedContributions+result.Failed > 0 {
		s.logger.Info("sync finished",
			"comparisons", result.SyncedComparisons,
			"contributions", result.SyncedContributions,
			"failed", result.Failed,
			"remaining", result.Remaining,
			"duration", result.Duration,
		)
	}
	return result, nil
}

func (s *SyncService) replayComparison(ctx context.Context, q models.QueuedComparison) error {
	if _, err := s.comparisons.Create(ctx, q.UserID, q.Input(), q.CreatedAt); err != nil {
		return err
	}
	return s.queue.MarkComparisonSynced(q.ID)
}

func (s *SyncService) replayContribution(ctx context.Context, q models.QueuedContribution) error {
	c := &models.PriceContribution{
		UserID:      q.UserID,
		UserName:    q.UserName,
		ProductName: q.ProductName,
		Price:       q.Price,
		StoreName:   q.StoreName,
		City:        q.City,
		State:       q.State,
		Quantity:    q.Quantity,
		Unit:        q.Unit,
		CreatedAt:   q.CreatedAt,
	}
	if err := s.contributions.Create(ctx, c); err != nil {
		return err
	}
	if err := s.queue.MarkContributionSynced(q.ID); err != nil {
		return err
	}

	publish(ctx, s.publisher, s.logger, realtime.Event{
		Table: notifications.TableContributions,
		Type:  realtime.EventInsert,
		New:   contributionRow(c),
	})
	return nil
}

// Sync satisfies the scheduler's Syncer.
func (s *SyncService) Sync(ctx context.Context) error {
	_, err := s.SyncOfflineData(ctx)
	return err
}

func (s *SyncService) Status() (SyncStatus, error) {
	stats, err := s.queue.Stats()
	if err != nil {
		return SyncStatus{}, err
	}
	return SyncStatus{Syncing: s.syncing.Load(), Stats: stats}, nil
}
