package services

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/oesperto/comparador/internal/models"
	"github.com/oesperto/comparador/internal/realtime"
)

// Connectivity reports whether the remote backend is believed reachable.
type Connectivity interface {
	Online() bool
}

// Toaster shows a transient message to one user.
type Toaster interface {
	Toast(userID uuid.UUID, n models.Notification)
}

// publish emits a change event for the realtime channels. Delivery is best
// effort; a failure is logged and the write that caused it still stands.
func publish(ctx context.Context, p realtime.Publisher, logger *slog.Logger, event realtime.Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, event); err != nil {
		logger.Warn("failed to publish change event", "table", event.Table, "type", event.Type, "error", err)
	}
}

func contributionRow(c *models.PriceContribution) map[string]any {
	return map[string]any{
		"id":           c.ID.String(),
		"user_id":      c.UserID.String(),
		"user_name":    c.UserName,
		"product_name": c.ProductName,
		"store_name":   c.StoreName,
		"city":         c.City,
		"state":        c.State,
		"price":        c.Price,
		"verified":     c.Verified,
	}
}

func suggestionRow(s *models.Suggestion) map[string]any {
	return map[string]any{
		"id":        s.ID.String(),
		"user_id":   s.UserID.String(),
		"user_name": s.UserName,
		"type":      s.Type,
		"title":     s.Title,
		"status":    string(s.Status),
	}
}
