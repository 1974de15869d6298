// Package session keeps the per-user state of signed-in users: their
// notification manager and their cached offer board.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oesperto/comparador/internal/notifications"
	"github.com/oesperto/comparador/internal/services"
)

type Session struct {
	User          notifications.User
	Notifications *notifications.Manager
	Offers        *services.OfferBoard
}

// ManagerFactory builds an unstarted notification manager.
type ManagerFactory func() *notifications.Manager

type Registry struct {
	newManager ManagerFactory
	offersTTL  time.Duration
	logger     *slog.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

func NewRegistry(newManager ManagerFactory, offersTTL time.Duration, logger *slog.Logger) *Registry {
	return &Registry{
		newManager: newManager,
		offersTTL:  offersTTL,
		logger:     logger.With("component", "sessions"),
		sessions:   make(map[uuid.UUID]*Session),
	}
}

// Open returns the user's session, creating it and setting up its
// notification channels on first use. A change of admin rights rebuilds the
// channels.
func (r *Registry) Open(ctx context.Context, user notifications.User) *Session {
	r.mu.Lock()
	s, ok := r.sessions[user.ID]
	if ok && s.User == user {
		r.mu.Unlock()
		return s
	}
	if !ok {
		s = &Session{
			Notifications: r.newManager(),
			Offers:        services.NewOfferBoard(r.offersTTL),
		}
		r.sessions[user.ID] = s
	}
	changed := ok
	s.User = user
	r.mu.Unlock()

	if changed {
		s.Notifications.Teardown()
	}
	s.Notifications.Setup(ctx, user)
	r.logger.Debug("session opened", "user_id", user.ID)
	return s
}

func (r *Registry) Get(userID uuid.UUID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[userID]
	return s, ok
}

// Close tears the user's session down. Closing an unknown user is a no-op.
func (r *Registry) Close(userID uuid.UUID) {
	r.mu.Lock()
	s, ok := r.sessions[userID]
	delete(r.sessions, userID)
	r.mu.Unlock()

	if ok {
		s.Notifications.Teardown()
		r.logger.Debug("session closed", "user_id", userID)
	}
}

func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[uuid.UUID]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Notifications.Teardown()
	}
}
