package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/oesperto/comparador/internal/models"
	"github.com/oesperto/comparador/internal/notifications"
	"github.com/oesperto/comparador/internal/realtime"
	"github.com/oesperto/comparador/internal/repositories"
)

var suggestionTypes = map[string]bool{
	"product": true,
	"store":   true,
	"feature": true,
	"other":   true,
}

type SuggestionService struct {
	repo      repositories.SuggestionRepository
	publisher realtime.Publisher
	logger    *slog.Logger
}

func NewSuggestionService(repo repositories.SuggestionRepository, publisher realtime.Publisher, logger *slog.Logger) *SuggestionService {
	return &SuggestionService{
		repo:      repo,
		publisher: publisher,
		logger:    logger.With("component", "suggestions"),
	}
}

func (s *SuggestionService) Submit(ctx context.Context, userID uuid.UUID, userName string, input models.SuggestionInput) (*models.Suggestion, error) {
	input.Type = strings.ToLower(strings.TrimSpace(input.Type))
	input.Title = strings.TrimSpace(input.Title)
	if input.Type == "" {
		input.Type = "other"
	}
	if !suggestionTypes[input.Type] {
		return nil, invalid("unknown suggestion type %q", input.Type)
	}
	if input.Title == "" {
		return nil, invalid("title is required")
	}

	suggestion := &models.Suggestion{
		UserID:      userID,
		UserName:    userName,
		Type:        input.Type,
		Title:       input.Title,
		Description: strings.TrimSpace(input.Description),
	}
	if err := s.repo.Create(ctx, suggestion); err != nil {
		return nil, fmt.Errorf("failed to save suggestion: %w", err)
	}

	publish(ctx, s.publisher, s.logger, realtime.Event{
		Table: notifications.TableSuggestions,
		Type:  realtime.EventInsert,
		New:   suggestionRow(suggestion),
	})
	return suggestion, nil
}

// UpdateStatus moves a suggestion to a new status. Setting the status it
// already has returns it unchanged and publishes nothing.
func (s *SuggestionService) UpdateStatus(ctx context.Context, id uuid.UUID, status models.SuggestionStatus, notes string) (*models.Suggestion, error) {
	if !status.Valid() {
		return nil, invalid("unknown status %q", status)
	}

	before, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateStatus(ctx, id, status, strings.TrimSpace(notes))
	if errors.Is(err, repositories.ErrNoChange) {
		return before, nil
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("suggestion status changed", "id", id, "from", before.Status, "to", updated.Status)
	publish(ctx, s.publisher, s.logger, realtime.Event{
		Table: notifications.TableSuggestions,
		Type:  realtime.EventUpdate,
		New:   suggestionRow(updated),
		Old:   suggestionRow(before),
	})
	return updated, nil
}
