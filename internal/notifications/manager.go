// Package notifications delivers backend change events to a signed-in user.
//
// A Manager owns the realtime channels for one user at a time. Channel
// failures are retried with exponential backoff; once the retry budget is
// spent and nothing subscribed within the fallback window, the manager polls
// the backend instead. Every delivered notification lands in a capped list,
// raises a toast and a chime, optionally a desktop notification, and is
// persisted for history. Persistence failures never block delivery.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oesperto/comparador/internal/models"
	"github.com/oesperto/comparador/internal/realtime"
	"github.com/oesperto/comparador/internal/repositories"
)

const persistTimeout = 5 * time.Second

type User struct {
	ID      uuid.UUID
	Name    string
	IsAdmin bool
}

// Presenter is the UI surface. Calls are fire-and-forget.
type Presenter interface {
	Toast(userID uuid.UUID, n models.Notification)
	Chime(userID uuid.UUID, cue Cue)
	Desktop(userID uuid.UUID, n models.Notification)
	ConnectionChanged(userID uuid.UUID, status models.ConnectionStatus)
}

type NopPresenter struct{}

func (NopPresenter) Toast(uuid.UUID, models.Notification)                 {}
func (NopPresenter) Chime(uuid.UUID, Cue)                                 {}
func (NopPresenter) Desktop(uuid.UUID, models.Notification)               {}
func (NopPresenter) ConnectionChanged(uuid.UUID, models.ConnectionStatus) {}

type Config struct {
	Policy       realtime.Policy
	PollInterval time.Duration
	Capacity     int
}

func DefaultConfig() Config {
	return Config{Policy: realtime.DefaultPolicy(), PollInterval: 30 * time.Second, Capacity: 10}
}

type Manager struct {
	client      realtime.Client
	poller      Poller
	store       repositories.NotificationRepository
	permissions repositories.PermissionRepository
	presenter   Presenter
	cfg         Config
	logger      *slog.Logger
	list        *List

	mu            sync.Mutex
	user          *User
	machine       realtime.Machine
	generation    int
	channels      []realtime.Channel
	confirmed     map[string]bool
	retryTimer    *time.Timer
	fallbackTimer *time.Timer
	pollCancel    context.CancelFunc
	setupAt       time.Time
	lastConnected *time.Time
}

func NewManager(
	client realtime.Client,
	poller Poller,
	store repositories.NotificationRepository,
	permissions repositories.PermissionRepository,
	presenter Presenter,
	cfg Config,
	logger *slog.Logger,
) *Manager {
	if presenter == nil {
		presenter = NopPresenter{}
	}
	return &Manager{
		client:      client,
		poller:      poller,
		store:       store,
		permissions: permissions,
		presenter:   presenter,
		cfg:         cfg,
		logger:      logger.With("component", "notifications"),
		list:        NewList(cfg.Capacity),
		machine:     realtime.NewMachine(cfg.Policy),
	}
}

// Setup opens the user's channels. Calling it again for the same user is a
// no-op; calling it for another user tears the current one down first.
func (m *Manager) Setup(ctx context.Context, user User) {
	m.mu.Lock()
	if m.user != nil && m.user.ID == user.ID {
		m.mu.Unlock()
		return
	}
	switching := m.user != nil
	m.mu.Unlock()

	if switching {
		m.Teardown()
	}

	m.mu.Lock()
	m.user = &user
	m.machine = realtime.NewMachine(m.cfg.Policy)
	m.setupAt = time.Now()
	m.lastConnected = nil
	gen := m.generation
	m.mu.Unlock()

	m.list.Clear()
	m.loadHistory(ctx, user)
	m.logger.Info("setting up notification channels", "user_id", user.ID, "admin", user.IsAdmin)
	m.handle(gen, realtime.InputSetup)
}

// Teardown stops timers, polling and channels. It is safe to call at any time.
func (m *Manager) Teardown() {
	m.mu.Lock()
	if m.user == nil {
		m.mu.Unlock()
		return
	}
	user := *m.user
	m.generation++
	gen := m.generation
	next, effects := m.machine.Transition(realtime.InputTeardown)
	m.machine = next
	m.user = nil
	m.mu.Unlock()

	for _, e := range effects {
		m.apply(gen, user, e)
	}
	m.logger.Info("notification channels torn down", "user_id", user.ID)
}

func (m *Manager) Status() models.ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

func (m *Manager) State() realtime.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.machine.State
}

func (m *Manager) Notifications() []models.Notification {
	return m.list.Items()
}

func (m *Manager) UnreadCount() int {
	return m.list.UnreadCount()
}

// Deliver hands a notification to the current user. It reports false when
// the notification was already delivered.
func (m *Manager) Deliver(ctx context.Context, n models.Notification) bool {
	return m.deliver(ctx, m.currentUser(), n)
}

func (m *Manager) MarkAsRead(ctx context.Context, id string) error {
	if !m.list.MarkRead(id) {
		return repositories.ErrNotFound
	}
	if user := m.currentUser(); user != nil {
		if err := m.store.MarkRead(ctx, user.ID, id); err != nil && !errors.Is(err, repositories.ErrNotFound) {
			m.logger.Warn("failed to persist read flag", "notification_id", id, "error", err)
		}
	}
	return nil
}

func (m *Manager) MarkAllAsRead(ctx context.Context) {
	m.list.MarkAllRead()
	if user := m.currentUser(); user != nil {
		if err := m.store.MarkAllRead(ctx, user.ID); err != nil {
			m.logger.Warn("failed to persist read flags", "error", err)
		}
	}
}

func (m *Manager) ClearAll(ctx context.Context) {
	m.list.Clear()
	if user := m.currentUser(); user != nil {
		if err := m.store.DeleteAllForUser(ctx, user.ID); err != nil {
			m.logger.Warn("failed to clear stored notifications", "error", err)
		}
	}
}

// RequestPermission grants desktop notifications unless the user already
// answered. A denial is never overturned here.
func (m *Manager) RequestPermission(ctx context.Context) (models.NotificationPermission, error) {
	user := m.currentUser()
	if user == nil {
		return models.PermissionDefault, errors.New("no user set up")
	}
	current, err := m.permissions.Get(ctx, user.ID)
	if err != nil {
		return models.PermissionDefault, err
	}
	if current != models.PermissionDefault {
		return current, nil
	}
	if err := m.permissions.Set(ctx, user.ID, models.PermissionGranted); err != nil {
		return models.PermissionDefault, err
	}
	return models.PermissionGranted, nil
}

func (m *Manager) currentUser() *User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

func (m *Manager) statusLocked() models.ConnectionStatus {
	return models.ConnectionStatus{
		Connected:     m.machine.State == realtime.StateSubscribed,
		Connecting:    m.machine.State == realtime.StateConnecting,
		LastConnected: m.lastConnected,
		RetryCount:    m.machine.Attempt,
		UsingFallback: m.machine.State == realtime.StateFallbackPolling,
	}
}

// handle feeds one input to the state machine. Inputs from a stale
// generation (old channels, timers from before a resubscribe or teardown)
// are dropped.
func (m *Manager) handle(gen int, in realtime.Input) {
	m.mu.Lock()
	if gen != m.generation || m.user == nil {
		m.mu.Unlock()
		return
	}
	prev := m.machine.State
	next, effects := m.machine.Transition(in)
	m.machine = next
	if next.State == realtime.StateSubscribed && prev != realtime.StateSubscribed {
		now := time.Now()
		m.lastConnected = &now
	}
	user := *m.user
	status := m.statusLocked()
	m.mu.Unlock()

	if next.State != prev {
		m.logger.Debug("channel state changed", "user_id", user.ID, "from", prev, "to", next.State, "attempt", next.Attempt)
	}
	for _, e := range effects {
		m.apply(gen, user, e)
	}
	if next.State != prev {
		m.presenter.ConnectionChanged(user.ID, status)
	}
}

func (m *Manager) apply(gen int, user User, e realtime.Effect) {
	switch e.Kind {
	case realtime.EffectSubscribe:
		m.subscribe(user)

	case realtime.EffectScheduleRetry:
		m.logger.Info("retrying notification channels", "user_id", user.ID, "delay", e.Delay)
		m.mu.Lock()
		if gen == m.generation {
			stopTimer(m.retryTimer)
			m.retryTimer = time.AfterFunc(e.Delay, func() { m.handle(gen, realtime.InputRetryTimer) })
		}
		m.mu.Unlock()

	case realtime.EffectScheduleFallback:
		m.mu.Lock()
		if gen == m.generation {
			stopTimer(m.fallbackTimer)
			m.fallbackTimer = time.AfterFunc(e.Delay, func() { m.handle(gen, realtime.InputFallbackTimer) })
		}
		m.mu.Unlock()

	case realtime.EffectCancelTimers:
		m.mu.Lock()
		stopTimer(m.retryTimer)
		stopTimer(m.fallbackTimer)
		m.retryTimer, m.fallbackTimer = nil, nil
		m.mu.Unlock()

	case realtime.EffectStartPolling:
		m.mu.Lock()
		if m.pollCancel != nil {
			m.mu.Unlock()
			return
		}
		ctx, cancel := context.WithCancel(context.Background())
		m.pollCancel = cancel
		since := m.setupAt
		m.mu.Unlock()
		m.logger.Warn("realtime unavailable, falling back to polling", "user_id", user.ID, "interval", m.cfg.PollInterval)
		go m.pollLoop(ctx, user, since)

	case realtime.EffectStopPolling:
		m.mu.Lock()
		cancel := m.pollCancel
		m.pollCancel = nil
		m.mu.Unlock()
		if cancel != nil {
			cancel()
		}

	case realtime.EffectCloseChannels:
		m.mu.Lock()
		channels := m.channels
		m.channels = nil
		m.mu.Unlock()
		m.unsubscribeAll(channels)
	}
}

func (m *Manager) subscribe(user User) {
	m.mu.Lock()
	old := m.channels
	m.generation++
	gen := m.generation
	channels := m.buildChannels(user)
	m.channels = channels
	m.confirmed = make(map[string]bool, len(channels))
	m.mu.Unlock()

	m.unsubscribeAll(old)
	for _, ch := range channels {
		ch.Subscribe(m.onStatus(gen, ch.Name()))
	}
}

func (m *Manager) buildChannels(user User) []realtime.Channel {
	uid := user.ID.String()
	own := &realtime.Filter{Column: "user_id", Value: uid}

	channels := []realtime.Channel{
		m.client.Channel("contributions:"+uid).On(
			realtime.EventSpec{Table: TableContributions, Type: realtime.EventUpdate, Filter: own},
			m.eventHandler(user, func(e realtime.Event) (models.Notification, bool) { return fromContributionUpdate(e) }),
		),
		m.client.Channel("suggestions:"+uid).On(
			realtime.EventSpec{Table: TableSuggestions, Type: realtime.EventUpdate, Filter: own},
			m.eventHandler(user, func(e realtime.Event) (models.Notification, bool) { return fromSuggestionUpdate(e) }),
		),
	}
	if !user.IsAdmin {
		return channels
	}

	notOwn := func(build func(realtime.Event) models.Notification) func(realtime.Event) (models.Notification, bool) {
		return func(e realtime.Event) (models.Notification, bool) {
			if str(e.New, "user_id") == uid {
				return models.Notification{}, false
			}
			return build(e), true
		}
	}
	return append(channels,
		m.client.Channel("admin-contributions:"+uid).On(
			realtime.EventSpec{Table: TableContributions, Type: realtime.EventInsert},
			m.eventHandler(user, notOwn(fromContributionInsert)),
		),
		m.client.Channel("admin-suggestions:"+uid).On(
			realtime.EventSpec{Table: TableSuggestions, Type: realtime.EventInsert},
			m.eventHandler(user, notOwn(fromSuggestionInsert)),
		),
	)
}

func (m *Manager) eventHandler(user User, build func(realtime.Event) (models.Notification, bool)) realtime.Handler {
	return func(e realtime.Event) {
		if cur := m.currentUser(); cur == nil || cur.ID != user.ID {
			return
		}
		if n, ok := build(e); ok {
			ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
			defer cancel()
			m.deliver(ctx, &user, n)
		}
	}
}

func (m *Manager) onStatus(gen int, channel string) realtime.StatusFunc {
	return func(status realtime.Status, err error) {
		switch {
		case status == realtime.StatusSubscribed:
			m.logger.Debug("channel subscribed", "channel", channel)
			if m.confirm(gen, channel) {
				m.handle(gen, realtime.InputSubscribed)
			}
		case status.Failed():
			m.logger.Warn("channel failed", "channel", channel, "status", status, "error", err)
			m.handle(gen, realtime.InputFailed)
		default:
			m.logger.Debug("ignoring channel status", "channel", channel, "status", status)
		}
	}
}

// confirm records a channel's subscription and reports whether every channel
// of the generation is now confirmed. The group only counts as subscribed as
// a whole; a partial success must not reset the retry budget.
func (m *Manager) confirm(gen int, channel string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.generation || m.confirmed == nil {
		return false
	}
	m.confirmed[channel] = true
	return len(m.confirmed) == len(m.channels)
}

func (m *Manager) pollLoop(ctx context.Context, user User, since time.Time) {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	poll := func() {
		started := time.Now()
		found, err := m.poller.Poll(ctx, user, since)
		if err != nil {
			if ctx.Err() == nil {
				m.logger.Warn("fallback poll failed", "user_id", user.ID, "error", err)
			}
			return
		}
		since = started
		for _, n := range found {
			if ctx.Err() != nil {
				return
			}
			m.deliver(ctx, &user, n)
		}
	}

	poll()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			poll()
		}
	}
}

func (m *Manager) deliver(ctx context.Context, user *User, n models.Notification) bool {
	if n.ID == "" {
		n.ID = fmt.Sprintf("local-%d", time.Now().UnixNano())
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	userID := uuid.Nil
	if user != nil {
		userID = user.ID
		n.UserID = user.ID
	}

	if !m.list.Add(n) {
		return false
	}

	m.presenter.Toast(userID, n)
	m.presenter.Chime(userID, TwoToneChime())

	if user == nil {
		return true
	}

	permission, err := m.permissions.Get(ctx, user.ID)
	if err != nil {
		m.logger.Debug("could not read notification permission", "error", err)
	} else if permission == models.PermissionGranted {
		m.presenter.Desktop(userID, n)
	}

	if err := m.store.Create(ctx, &n); err != nil {
		m.logger.Warn("failed to persist notification", "notification_id", n.ID, "error", err)
	}
	return true
}

func (m *Manager) loadHistory(ctx context.Context, user User) {
	history, err := m.store.ListByUser(ctx, user.ID, m.list.cap)
	if err != nil {
		m.logger.Warn("failed to load notification history", "user_id", user.ID, "error", err)
		return
	}
	older := make([]models.Notification, 0, len(history))
	for _, n := range history {
		older = append(older, *n)
	}
	m.list.Seed(older)
}

func (m *Manager) unsubscribeAll(channels []realtime.Channel) {
	for _, ch := range channels {
		if err := ch.Unsubscribe(); err != nil {
			m.logger.Warn("failed to unsubscribe", "channel", ch.Name(), "error", err)
		}
	}
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}
