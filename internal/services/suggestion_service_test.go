package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/oesperto/comparador/internal/models"
	"github.com/oesperto/comparador/internal/realtime"
	"github.com/oesperto/comparador/internal/repositories"
	"github.com/oesperto/comparador/internal/repositories/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestSuggestionService_Submit(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockSuggestionRepository(ctrl)
	publisher := &recordingPublisher{}
	service := NewSuggestionService(repo, publisher, testLogger())
	userID := uuid.New()

	repo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, s *models.Suggestion) error {
		s.ID = uuid.New()
		s.Status = models.SuggestionPending
		return nil
	})

	got, err := service.Submit(context.Background(), userID, "Ana", models.SuggestionInput{Type: "Store", Title: "  Assaí Imbiribeira "})

	require.NoError(t, err)
	assert.Equal(t, "store", got.Type)
	assert.Equal(t, "Assaí Imbiribeira", got.Title)
	events := publisher.published()
	require.Len(t, events, 1)
	assert.Equal(t, realtime.EventInsert, events[0].Type)
	assert.Equal(t, userID.String(), events[0].New["user_id"])
}

func TestSuggestionService_SubmitInvalid(t *testing.T) {
	ctrl := gomock.NewController(t)
	service := NewSuggestionService(mocks.NewMockSuggestionRepository(ctrl), nil, testLogger())

	_, err := service.Submit(context.Background(), uuid.New(), "Ana", models.SuggestionInput{Type: "product"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = service.Submit(context.Background(), uuid.New(), "Ana", models.SuggestionInput{Type: "recipe", Title: "x"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSuggestionService_UpdateStatus(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockSuggestionRepository(ctrl)
	publisher := &recordingPublisher{}
	service := NewSuggestionService(repo, publisher, testLogger())
	ctx := context.Background()
	id := uuid.New()

	before := &models.Suggestion{ID: id, Title: "Modo escuro", Status: models.SuggestionPending}
	after := &models.Suggestion{ID: id, Title: "Modo escuro", Status: models.SuggestionApproved}
	repo.EXPECT().GetByID(ctx, id).Return(before, nil)
	repo.EXPECT().UpdateStatus(ctx, id, models.SuggestionApproved, "boa ideia").Return(after, nil)

	got, err := service.UpdateStatus(ctx, id, models.SuggestionApproved, " boa ideia ")

	require.NoError(t, err)
	assert.Equal(t, models.SuggestionApproved, got.Status)
	events := publisher.published()
	require.Len(t, events, 1)
	assert.Equal(t, "approved", events[0].New["status"])
	assert.Equal(t, "pending", events[0].Old["status"])
}

func TestSuggestionService_UpdateStatusUnchanged(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockSuggestionRepository(ctrl)
	publisher := &recordingPublisher{}
	service := NewSuggestionService(repo, publisher, testLogger())
	ctx := context.Background()
	id := uuid.New()
	current := &models.Suggestion{ID: id, Status: models.SuggestionRejected}

	repo.EXPECT().GetByID(ctx, id).Return(current, nil)
	repo.EXPECT().UpdateStatus(ctx, id, models.SuggestionRejected, "").Return(nil, repositories.ErrNoChange)

	got, err := service.UpdateStatus(ctx, id, models.SuggestionRejected, "")

	require.NoError(t, err)
	assert.Equal(t, current, got)
	assert.Empty(t, publisher.published())

	_, err = service.UpdateStatus(ctx, id, "archived", "")
	assert.ErrorIs(t, err, ErrValidation)
}
