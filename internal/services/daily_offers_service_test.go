package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oesperto/comparador/internal/models"
	"github.com/oesperto/comparador/internal/notifications"
	"github.com/oesperto/comparador/internal/offline"
	"github.com/oesperto/comparador/internal/realtime"
	"github.com/oesperto/comparador/internal/repositories"
	"github.com/oesperto/comparador/internal/repositories/mocks"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

type DailyOffersServiceTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	repo      *mocks.MockContributionRepository
	queue     *offline.Queue
	conn      *switchConn
	toaster   *recordingToaster
	publisher *recordingPublisher

	service *DailyOffersService
	userID  uuid.UUID
	now     time.Time
}

func (s *DailyOffersServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.repo = mocks.NewMockContributionRepository(s.ctrl)
	s.queue = offline.NewQueue(offline.NewMemoryKV(), 0)
	s.conn = newConn(true)
	s.toaster = &recordingToaster{}
	s.publisher = &recordingPublisher{}
	s.userID = uuid.New()
	s.now = time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)

	s.service = NewDailyOffersService(s.repo, s.queue, s.conn, s.toaster, s.publisher, testLogger())
	s.service.now = func() time.Time { return s.now }
}

func (s *DailyOffersServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestDailyOffersServiceTestSuite(t *testing.T) {
	suite.Run(t, new(DailyOffersServiceTestSuite))
}

func (s *DailyOffersServiceTestSuite) TestSubmit_Remote() {
	ctx := context.Background()
	newID := uuid.New()

	s.repo.EXPECT().HasRecentDuplicate(ctx, s.userID, gomock.Any(), s.now.Add(-24*time.Hour)).Return(false, nil)
	s.repo.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, c *models.PriceContribution) error {
		s.Equal("PE", c.State, "State should be normalized")
		s.Equal(1.0, c.Quantity)
		s.Equal("un", c.Unit)
		c.ID = newID
		return nil
	})

	got, err := s.service.SubmitPriceContribution(ctx, sampleContribution(), s.userID, "Ana")

	s.Require().NoError(err)
	s.False(got.Offline)
	s.Equal(newID.String(), got.ID)

	events := s.publisher.published()
	s.Require().Len(events, 1)
	s.Equal(notifications.TableContributions, events[0].Table)
	s.Equal(realtime.EventInsert, events[0].Type)
	s.Equal("Ana", events[0].New["user_name"])
}

func (s *DailyOffersServiceTestSuite) TestSubmit_Duplicate() {
	s.repo.EXPECT().HasRecentDuplicate(gomock.Any(), s.userID, gomock.Any(), gomock.Any()).Return(true, nil)

	_, err := s.service.SubmitPriceContribution(context.Background(), sampleContribution(), s.userID, "Ana")

	s.ErrorIs(err, ErrDuplicateContribution)
	s.ErrorIs(err, ErrValidation)
	unsynced, _ := s.queue.GetUnsyncedContributions()
	s.Empty(unsynced, "Validation failures are not queued")
}

func (s *DailyOffersServiceTestSuite) TestSubmit_RemoteFailureQueues() {
	s.repo.EXPECT().HasRecentDuplicate(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(false, nil)
	s.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("connection refused"))

	got, err := s.service.SubmitPriceContribution(context.Background(), sampleContribution(), s.userID, "Ana")

	s.Require().NoError(err)
	s.True(got.Offline)

	unsynced, err := s.queue.GetUnsyncedContributions()
	s.Require().NoError(err)
	s.Require().Len(unsynced, 1)
	s.Equal(got.ID, unsynced[0].ID)
	s.Equal("Ana", unsynced[0].UserName)
	s.Empty(s.publisher.published())
	s.Equal(1, s.toaster.count())
}

func (s *DailyOffersServiceTestSuite) TestSubmit_Invalid() {
	input := sampleContribution()
	input.Price = 0

	_, err := s.service.SubmitPriceContribution(context.Background(), input, s.userID, "Ana")

	s.ErrorIs(err, ErrValidation)
}

func (s *DailyOffersServiceTestSuite) TestTodayOffers_CachesPerBoard() {
	ctx := context.Background()
	board := NewOfferBoard(time.Minute)
	offers := []*models.PriceContribution{{ID: uuid.New(), City: "Recife"}}
	midnight := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	s.repo.EXPECT().ListSince(ctx, "Recife", "PE", midnight).Return(offers, nil).Times(1)

	first, err := s.service.TodayOffers(ctx, board, "Recife", "PE")
	s.Require().NoError(err)
	second, err := s.service.TodayOffers(ctx, board, "recife", "pe")
	s.Require().NoError(err)

	s.Equal(offers, first)
	s.Equal(offers, second)
}

func (s *DailyOffersServiceTestSuite) TestTodayOffers_ServesStaleOnFailure() {
	ctx := context.Background()
	board := NewOfferBoard(time.Minute)
	offers := []*models.PriceContribution{{ID: uuid.New()}}

	s.repo.EXPECT().ListSince(ctx, "Recife", "PE", gomock.Any()).Return(offers, nil)
	_, err := s.service.TodayOffers(ctx, board, "Recife", "PE")
	s.Require().NoError(err)

	s.now = s.now.Add(5 * time.Minute)
	s.repo.EXPECT().ListSince(ctx, "Recife", "PE", gomock.Any()).Return(nil, errors.New("offline"))

	got, err := s.service.TodayOffers(ctx, board, "Recife", "PE")
	s.Require().NoError(err)
	s.Equal(offers, got)

	// a fresh board has nothing to fall back on
	s.repo.EXPECT().ListSince(ctx, "Recife", "PE", gomock.Any()).Return(nil, errors.New("offline"))
	_, err = s.service.TodayOffers(ctx, NewOfferBoard(time.Minute), "Recife", "PE")
	s.Error(err)
}

func (s *DailyOffersServiceTestSuite) TestVerify_PublishesChange() {
	ctx := context.Background()
	id, admin := uuid.New(), uuid.New()
	verified := &models.PriceContribution{ID: id, UserID: s.userID, ProductName: "Arroz", StoreName: "Extra", Verified: true}

	s.repo.EXPECT().Verify(ctx, id, admin).Return(verified, nil)

	got, err := s.service.VerifyContribution(ctx, id, admin)

	s.Require().NoError(err)
	s.True(got.Verified)
	events := s.publisher.published()
	s.Require().Len(events, 1)
	s.Equal(realtime.EventUpdate, events[0].Type)
	s.Equal(true, events[0].New["verified"])
	s.Equal(false, events[0].Old["verified"])
}

func (s *DailyOffersServiceTestSuite) TestVerify_AlreadyVerified() {
	ctx := context.Background()
	id, admin := uuid.New(), uuid.New()
	existing := &models.PriceContribution{ID: id, Verified: true}

	s.repo.EXPECT().Verify(ctx, id, admin).Return(nil, repositories.ErrNoChange)
	s.repo.EXPECT().GetByID(ctx, id).Return(existing, nil)

	got, err := s.service.VerifyContribution(ctx, id, admin)

	s.Require().NoError(err)
	s.Equal(existing, got)
	s.Empty(s.publisher.published())
}

func (s *DailyOffersServiceTestSuite) TestMarkSimilarVerified() {
	ctx := context.Background()
	admin := uuid.New()
	created := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	base := &models.PriceContribution{ID: uuid.New(), ProductName: "Café Pilão", StoreName: "Assaí", City: "Recife", State: "PE", Price: 20, CreatedAt: created}
	match := &models.PriceContribution{ID: uuid.New(), ProductName: "café pilão 500g", StoreName: "Assaí Boa Viagem", City: "recife", State: "PE", Price: 21, CreatedAt: created.Add(time.Hour)}
	tooExpensive := &models.PriceContribution{ID: uuid.New(), ProductName: "Café Pilão", StoreName: "Assaí", City: "Recife", State: "PE", Price: 25, CreatedAt: created}
	otherStore := &models.PriceContribution{ID: uuid.New(), ProductName: "Café Pilão", StoreName: "Carrefour", City: "Recife", State: "PE", Price: 20, CreatedAt: created}
	already := &models.PriceContribution{ID: uuid.New(), ProductName: "Café Pilão", StoreName: "Assaí", City: "Recife", State: "PE", Price: 20, Verified: true, CreatedAt: created}

	s.repo.EXPECT().GetByID(ctx, base.ID).Return(base, nil)
	s.repo.EXPECT().ListSince(ctx, "Recife", "PE", time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)).
		Return([]*models.PriceContribution{base, match, tooExpensive, otherStore, already}, nil)
	s.repo.EXPECT().Verify(ctx, match.ID, admin).Return(&models.PriceContribution{ID: match.ID, Verified: true}, nil)

	n, err := s.service.MarkSimilarVerified(ctx, base.ID, admin)

	s.Require().NoError(err)
	s.Equal(1, n)
	s.Len(s.publisher.published(), 1)
}
