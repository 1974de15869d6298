package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oesperto/comparador/internal/models"
	"github.com/oesperto/comparador/internal/notifications"
	"github.com/oesperto/comparador/internal/offline"
	"github.com/oesperto/comparador/internal/realtime"
	"github.com/oesperto/comparador/internal/repositories"
)

const (
	duplicateWindow    = 24 * time.Hour
	similarPriceMargin = 0.10
)

// OfferBoard caches today's offers per city for one session.
type OfferBoard struct {
	ttl     time.Duration
	mu      sync.Mutex
	entries map[string]offerEntry
}

type offerEntry struct {
	offers  []*models.PriceContribution
	fetched time.Time
}

func NewOfferBoard(ttl time.Duration) *OfferBoard {
	return &OfferBoard{ttl: ttl, entries: make(map[string]offerEntry)}
}

func (b *OfferBoard) Invalidate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.entries)
}

func (b *OfferBoard) lookup(key string, now time.Time) (offerEntry, bool, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[key]
	if !ok {
		return offerEntry{}, false, false
	}
	fresh := now.Sub(e.fetched) < b.ttl && sameDay(e.fetched, now)
	return e, true, fresh
}

func (b *OfferBoard) store(key string, offers []*models.PriceContribution, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[key] = offerEntry{offers: offers, fetched: now}
}

// ContributionResult is what a submission produced: a backend record, or a
// queued one when the backend could not be reached.
type ContributionResult struct {
	ID           string                   `json:"id"`
	Offline      bool                     `json:"offline"`
	Contribution *models.PriceContribution `json:"contribution,omitempty"`
}

type DailyOffersService struct {
	repo      repositories.ContributionRepository
	queue     *offline.Queue
	conn      Connectivity
	toaster   Toaster
	publisher realtime.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewDailyOffersService(
	repo repositories.ContributionRepository,
	queue *offline.Queue,
	conn Connectivity,
	toaster Toaster,
	publisher realtime.Publisher,
	logger *slog.Logger,
) *DailyOffersService {
	return &DailyOffersService{
		repo:      repo,
		queue:     queue,
		conn:      conn,
		toaster:   toaster,
		publisher: publisher,
		logger:    logger.With("component", "daily_offers"),
		now:       time.Now,
	}
}

// SubmitPriceContribution records a price seen in a store. The same user
// pricing the same product at the same store and city twice within 24 hours
// gets ErrDuplicateContribution.
func (s *DailyOffersService) SubmitPriceContribution(ctx context.Context, input models.ContributionInput, userID uuid.UUID, userName string) (*ContributionResult, error) {
	input, err := normalizeContribution(input)
	if err != nil {
		return nil, err
	}

	if !s.conn.Online() {
		return s.saveOffline(userID, userName, input)
	}

	dup, err := s.repo.HasRecentDuplicate(ctx, userID, input, s.now().Add(-duplicateWindow))
	if err != nil {
		s.logger.Warn("duplicate check failed, queueing contribution", "user_id", userID, "error", err)
		return s.saveOffline(userID, userName, input)
	}
	if dup {
		return nil, ErrDuplicateContribution
	}

	c := &models.PriceContribution{
		UserID:      userID,
		UserName:    userName,
		ProductName: input.ProductName,
		Price:       input.Price,
		StoreName:   input.StoreName,
		City:        input.City,
		State:       input.State,
		Quantity:    input.Quantity,
		Unit:        input.Unit,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		s.logger.Warn("remote save failed, queueing contribution", "user_id", userID, "error", err)
		return s.saveOffline(userID, userName, input)
	}

	publish(ctx, s.publisher, s.logger, realtime.Event{
		Table: notifications.TableContributions,
		Type:  realtime.EventInsert,
		New:   contributionRow(c),
	})
	return &ContributionResult{ID: c.ID.String(), Contribution: c}, nil
}

func (s *DailyOffersService) saveOffline(userID uuid.UUID, userName string, input models.ContributionInput) (*ContributionResult, error) {
	queued, err := s.queue.SaveOfflineContribution(userID, userName, input)
	if err != nil {
		return nil, fmt.Errorf("failed to queue contribution: %w", err)
	}

	s.logger.Info("contribution saved offline", "user_id", userID, "id", queued.ID)
	s.toaster.Toast(userID, models.Notification{
		ID:        "saved-offline-" + queued.ID,
		Title:     "Salvo offline",
		Message:   fmt.Sprintf("O preço de %s será enviado quando a conexão voltar.", input.ProductName),
		Type:      models.NotificationInfo,
		CreatedAt: s.now().UTC(),
	})
	return &ContributionResult{ID: queued.ID, Offline: true}, nil
}

// TodayOffers returns contributions made today in a city, newest first. A
// remote failure serves the board's last copy when it has one.
func (s *DailyOffersService) TodayOffers(ctx context.Context, board *OfferBoard, city, state string) ([]*models.PriceContribution, error) {
	now := s.now()
	key := strings.ToLower(strings.TrimSpace(city)) + "|" + strings.ToLower(strings.TrimSpace(state))

	cached, found, fresh := board.lookup(key, now)
	if fresh {
		return cached.offers, nil
	}

	offers, err := s.repo.ListSince(ctx, city, state, startOfDay(now))
	if err != nil {
		if found && sameDay(cached.fetched, now) {
			s.logger.Warn("serving cached offers", "city", city, "state", state, "error", err)
			return cached.offers, nil
		}
		return nil, fmt.Errorf("failed to load today's offers: %w", err)
	}

	board.store(key, offers, now)
	return offers, nil
}

// VerifyContribution marks a contribution verified by an admin. Verifying an
// already verified contribution returns it unchanged.
func (s *DailyOffersService) VerifyContribution(ctx context.Context, id, adminID uuid.UUID) (*models.PriceContribution, error) {
	c, err := s.repo.Verify(ctx, id, adminID)
	if errors.Is(err, repositories.ErrNoChange) {
		return s.repo.GetByID(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("contribution verified", "id", id, "admin_id", adminID)
	s.publishVerified(ctx, c)
	return c, nil
}

// MarkSimilarVerified verifies the same-day contributions that describe the
// same offer as the given one: same city and state, product and store names
// contained in one another, price within 10%. It returns how many it verified.
func (s *DailyOffersService) MarkSimilarVerified(ctx context.Context, id, adminID uuid.UUID) (int, error) {
	base, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}

	candidates, err := s.repo.ListSince(ctx, base.City, base.State, startOfDay(base.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("failed to list similar contributions: %w", err)
	}

	verified := 0
	for _, c := range candidates {
		if c.ID == base.ID || c.Verified || !sameDay(c.CreatedAt, base.CreatedAt) || !similarOffer(base, c) {
			continue
		}
		updated, err := s.repo.Verify(ctx, c.ID, adminID)
		if errors.Is(err, repositories.ErrNoChange) {
			continue
		}
		if err != nil {
			return verified, fmt.Errorf("failed to verify similar contribution %s: %w", c.ID, err)
		}
		s.publishVerified(ctx, updated)
		verified++
	}

	if verified > 0 {
		s.logger.Info("similar contributions verified", "base_id", id, "count", verified)
	}
	return verified, nil
}

func (s *DailyOffersService) publishVerified(ctx context.Context, c *models.PriceContribution) {
	old := contributionRow(c)
	old["verified"] = false
	publish(ctx, s.publisher, s.logger, realtime.Event{
		Table: notifications.TableContributions,
		Type:  realtime.EventUpdate,
		New:   contributionRow(c),
		Old:   old,
	})
}

func normalizeContribution(input models.ContributionInput) (models.ContributionInput, error) {
	input.ProductName = strings.TrimSpace(input.ProductName)
	input.StoreName = strings.TrimSpace(input.StoreName)
	input.City = strings.TrimSpace(input.City)
	input.State = strings.ToUpper(strings.TrimSpace(input.State))
	input.Unit = strings.TrimSpace(input.Unit)

	switch {
	case input.ProductName == "":
		return input, invalid("product name is required")
	case input.StoreName == "":
		return input, invalid("store name is required")
	case input.City == "" || input.State == "":
		return input, invalid("city and state are required")
	case math.IsNaN(input.Price) || math.IsInf(input.Price, 0) || input.Price <= 0:
		return input, invalid("price must be a positive number")
	case input.Quantity < 0:
		return input, invalid("quantity cannot be negative")
	}

	if input.Quantity == 0 {
		input.Quantity = 1
	}
	if input.Unit == "" {
		input.Unit = "un"
	}
	return input, nil
}

func similarOffer(a, b *models.PriceContribution) bool {
	if !strings.EqualFold(a.City, b.City) || !strings.EqualFold(a.State, b.State) {
		return false
	}
	if !namesOverlap(a.ProductName, b.ProductName) || !namesOverlap(a.StoreName, b.StoreName) {
		return false
	}
	return math.Abs(a.Price-b.Price) <= a.Price*similarPriceMargin
}

func namesOverlap(a, b string) bool {
	a, b = normalizeName(a), normalizeName(b)
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func normalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.In(a.Location()).Date()
	return ay == by && am == bm && ad == bd
}
