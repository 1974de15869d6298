package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/oesperto/comparador/internal/models"
	"github.com/oesperto/comparador/internal/repositories"
)

// Poller pulls the changes a user's channels would have pushed.
type Poller interface {
	Poll(ctx context.Context, user User, since time.Time) ([]models.Notification, error)
}

// RemotePoller reads the backend tables directly.
type RemotePoller struct {
	contributions repositories.ContributionRepository
	suggestions   repositories.SuggestionRepository
}

func NewRemotePoller(contributions repositories.ContributionRepository, suggestions repositories.SuggestionRepository) *RemotePoller {
	return &RemotePoller{contributions: contributions, suggestions: suggestions}
}

func (p *RemotePoller) Poll(ctx context.Context, user User, since time.Time) ([]models.Notification, error) {
	var out []models.Notification

	verified, err := p.contributions.ListVerifiedForUserSince(ctx, user.ID, since)
	if err != nil {
		return nil, fmt.Errorf("poll contributions: %w", err)
	}
	for _, c := range verified {
		out = append(out, verificationNotification(c.ID.String(), c.ProductName, c.StoreName, true))
	}

	changed, err := p.suggestions.ListChangedForUserSince(ctx, user.ID, since)
	if err != nil {
		return nil, fmt.Errorf("poll suggestions: %w", err)
	}
	for _, s := range changed {
		if n, ok := suggestionNotification(s.ID.String(), s.Title, s.Status); ok {
			out = append(out, n)
		}
	}

	if !user.IsAdmin {
		return out, nil
	}

	created, err := p.contributions.ListCreatedSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("poll new contributions: %w", err)
	}
	for _, c := range created {
		if c.UserID == user.ID {
			continue
		}
		out = append(out, newContributionNotification(c.ID.String(), c.UserName, c.ProductName, c.StoreName))
	}

	suggested, err := p.suggestions.ListCreatedSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("poll new suggestions: %w", err)
	}
	for _, s := range suggested {
		if s.UserID == user.ID {
			continue
		}
		out = append(out, newSuggestionNotification(s.ID.String(), s.UserName, s.Title))
	}
	return out, nil
}
