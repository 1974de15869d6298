package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oesperto/comparador/internal/models"
	"github.com/oesperto/comparador/internal/offline"
	"github.com/oesperto/comparador/internal/repositories/mocks"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

type SyncServiceTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	comparisons   *mocks.MockComparisonRepository
	contributions *mocks.MockContributionRepository
	queue         *offline.Queue
	publisher     *recordingPublisher

	service *SyncService
	userID  uuid.UUID
}

func (s *SyncServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.comparisons = mocks.NewMockComparisonRepository(s.ctrl)
	s.contributions = mocks.NewMockContributionRepository(s.ctrl)
	s.queue = offline.NewQueue(offline.NewMemoryKV(), 0)
	s.publisher = &recordingPublisher{}
	s.userID = uuid.New()

	s.service = NewSyncService(s.queue, s.comparisons, s.contributions, s.publisher, testLogger())
}

func (s *SyncServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestSyncServiceTestSuite(t *testing.T) {
	suite.Run(t, new(SyncServiceTestSuite))
}

func (s *SyncServiceTestSuite) queueRecords() {
	_, err := s.queue.SaveOfflineComparison(s.userID, sampleComparison())
	s.Require().NoError(err)
	_, err = s.queue.SaveOfflineComparison(s.userID, sampleComparison())
	s.Require().NoError(err)
	_, err = s.queue.SaveOfflineContribution(s.userID, "Ana", sampleContribution())
	s.Require().NoError(err)
}

// TestSync_ComparisonsBeforeContributions checks every comparison is replayed
// before any contribution.
func (s *SyncServiceTestSuite) TestSync_ComparisonsBeforeContributions() {
	ctx := context.Background()
	s.queueRecords()

	gomock.InOrder(
		s.comparisons.EXPECT().Create(ctx, s.userID, gomock.Any(), gomock.Any()).Return(&models.Comparison{ID: uuid.NewString()}, nil),
		s.comparisons.EXPECT().Create(ctx, s.userID, gomock.Any(), gomock.Any()).Return(&models.Comparison{ID: uuid.NewString()}, nil),
		s.contributions.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, c *models.PriceContribution) error {
			s.Equal("Ana", c.UserName)
			c.ID = uuid.New()
			return nil
		}),
	)

	result, err := s.service.SyncOfflineData(ctx)

	s.Require().NoError(err)
	s.Equal(2, result.SyncedComparisons)
	s.Equal(1, result.SyncedContributions)
	s.Equal(0, result.Failed)
	s.Equal(3, result.Cleared)
	s.Equal(0, result.Remaining)
	s.Len(s.publisher.published(), 1)

	_, ok, err := s.queue.LastSync()
	s.Require().NoError(err)
	s.True(ok, "Last sync should be stamped")
}

// TestSync_KeepsQueuedTimestamps checks replayed rows carry the time they were
// saved on the device, not the time of the sync.
func (s *SyncServiceTestSuite) TestSync_KeepsQueuedTimestamps() {
	ctx := context.Background()
	s.queueRecords()

	comparisons, err := s.queue.GetOfflineComparisons()
	s.Require().NoError(err)
	contributions, err := s.queue.GetOfflineContributions()
	s.Require().NoError(err)
	s.Require().Len(contributions, 1)

	for _, q := range comparisons {
		s.comparisons.EXPECT().Create(ctx, s.userID, q.Input(), q.CreatedAt).Return(&models.Comparison{ID: uuid.NewString()}, nil)
	}
	s.contributions.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, c *models.PriceContribution) error {
		s.True(c.CreatedAt.Equal(contributions[0].CreatedAt), "Contribution should keep its queued time")
		s.False(c.CreatedAt.IsZero())
		c.ID = uuid.New()
		return nil
	})

	result, err := s.service.SyncOfflineData(ctx)

	s.Require().NoError(err)
	s.Equal(2, result.SyncedComparisons)
	s.Equal(1, result.SyncedContributions)
}

func (s *SyncServiceTestSuite) TestSync_FailedRecordsStayQueued() {
	ctx := context.Background()
	s.queueRecords()

	s.comparisons.EXPECT().Create(ctx, s.userID, gomock.Any(), gomock.Any()).Return(nil, errors.New("timeout"))
	s.comparisons.EXPECT().Create(ctx, s.userID, gomock.Any(), gomock.Any()).Return(&models.Comparison{ID: uuid.NewString()}, nil)
	s.contributions.EXPECT().Create(ctx, gomock.Any()).Return(errors.New("timeout"))

	result, err := s.service.SyncOfflineData(ctx)

	s.Require().NoError(err)
	s.Equal(1, result.SyncedComparisons)
	s.Equal(2, result.Failed)
	s.Equal(2, result.Remaining)

	comparisons, _ := s.queue.GetOfflineComparisons()
	s.Len(comparisons, 1, "Synced record should be cleared, failed one kept")
	s.False(comparisons[0].Synced)
}

// TestSync_SecondRunWritesNothing replays twice with nothing new queued.
func (s *SyncServiceTestSuite) TestSync_SecondRunWritesNothing() {
	ctx := context.Background()
	s.queueRecords()

	s.comparisons.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(&models.Comparison{}, nil).Times(2)
	s.contributions.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	_, err := s.service.SyncOfflineData(ctx)
	s.Require().NoError(err)

	result, err := s.service.SyncOfflineData(ctx)
	s.Require().NoError(err)
	s.Equal(0, result.SyncedComparisons+result.SyncedContributions+result.Failed)
}

func (s *SyncServiceTestSuite) TestSync_ConcurrentCallIsSkipped() {
	ctx := context.Background()
	_, err := s.queue.SaveOfflineComparison(s.userID, sampleComparison())
	s.Require().NoError(err)

	entered := make(chan struct{})
	release := make(chan struct{})
	s.comparisons.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, uuid.UUID, models.ComparisonInput, time.Time) (*models.Comparison, error) {
			close(entered)
			<-release
			return &models.Comparison{}, nil
		}).Times(1)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = s.service.SyncOfflineData(ctx)
	}()

	select {
	case <-entered:
	case <-time.After(time.Second):
		s.FailNow("first sync never started")
	}

	status, err := s.service.Status()
	s.Require().NoError(err)
	s.True(status.Syncing)

	result, err := s.service.SyncOfflineData(ctx)
	s.Require().NoError(err)
	s.True(result.Skipped)

	close(release)
	wg.Wait()

	status, err = s.service.Status()
	s.Require().NoError(err)
	s.False(status.Syncing)
	s.Equal(0, status.PendingComparisons)
}
