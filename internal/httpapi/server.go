// Package httpapi is the agent's local HTTP and WebSocket surface for the UI.
package httpapi

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/oesperto/comparador/internal/models"
	"github.com/oesperto/comparador/internal/pricing"
	"github.com/oesperto/comparador/internal/services"
	"github.com/oesperto/comparador/internal/session"
)

type Server struct {
	auth         *services.AuthService
	comparisons  *services.ComparisonService
	offers       *services.DailyOffersService
	suggestions  *services.SuggestionService
	sync         *services.SyncService
	connectivity services.Connectivity
	sessions     *session.Registry
	hub          *Hub
	logger       *slog.Logger
}

type Deps struct {
	Auth         *services.AuthService
	Comparisons  *services.ComparisonService
	Offers       *services.DailyOffersService
	Suggestions  *services.SuggestionService
	Sync         *services.SyncService
	Connectivity services.Connectivity
	Sessions     *session.Registry
	Hub          *Hub
	Logger       *slog.Logger
}

func NewServer(d Deps) *Server {
	return &Server{
		auth:         d.Auth,
		comparisons:  d.Comparisons,
		offers:       d.Offers,
		suggestions:  d.Suggestions,
		sync:         d.Sync,
		connectivity: d.Connectivity,
		sessions:     d.Sessions,
		hub:          d.Hub,
		logger:       d.Logger.With("component", "http"),
	}
}

func (s *Server) Router() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.With(s.authenticate).Post("/logout", s.handleLogout)
	})

	router.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Get("/comparisons", s.handleListComparisons)
		r.Post("/comparisons", s.handleSaveComparison)
		r.Delete("/comparisons/{id}", s.handleDeleteComparison)

		r.Post("/contributions", s.handleSubmitContribution)
		r.Get("/offers/today", s.handleTodayOffers)
		r.Post("/suggestions", s.handleSubmitSuggestion)

		r.Post("/sync", s.handleSync)
		r.Get("/sync/status", s.handleSyncStatus)

		r.Post("/pricing/summary", s.handlePricingSummary)

		r.Get("/notifications", s.handleListNotifications)
		r.Get("/notifications/status", s.handleNotificationStatus)
		r.Post("/notifications/{id}/read", s.handleMarkRead)
		r.Post("/notifications/read-all", s.handleMarkAllRead)
		r.Delete("/notifications", s.handleClearNotifications)
		r.Post("/notifications/permission", s.handleRequestPermission)

		r.Get("/ws", s.handleWS)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Post("/contributions/{id}/verify", s.handleVerifyContribution)
			r.Post("/suggestions/{id}/status", s.handleSuggestionStatus)
		})
	})

	return router
}

func (s *Server) session(r *http.Request) *session.Session {
	return s.sessions.Open(r.Context(), userFrom(r.Context()))
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	account, err := s.auth.Register(r.Context(), req)
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	resp, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	s.sessions.Open(r.Context(), userFromLogin(resp))
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	if err := s.auth.Logout(r.Context(), bearerToken(r)); err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	s.sessions.Close(claims.AccountID)
	s.hub.CloseUser(claims.AccountID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListComparisons(w http.ResponseWriter, r *http.Request) {
	list, err := s.comparisons.GetUserComparisons(r.Context(), claimsFrom(r.Context()).AccountID)
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleSaveComparison(w http.ResponseWriter, r *http.Request) {
	var input models.ComparisonInput
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	saved, err := s.comparisons.SaveComparison(r.Context(), claimsFrom(r.Context()).AccountID, input)
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	writeJSON(w, createdStatus(saved.Offline), saved)
}

func (s *Server) handleDeleteComparison(w http.ResponseWriter, r *http.Request) {
	if err := s.comparisons.DeleteComparison(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSubmitContribution(w http.ResponseWriter, r *http.Request) {
	var input models.ContributionInput
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	sess := s.session(r)
	claims := claimsFrom(r.Context())
	result, err := s.offers.SubmitPriceContribution(r.Context(), input, claims.AccountID, claims.Name)
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	if !result.Offline {
		sess.Offers.Invalidate()
	}
	writeJSON(w, createdStatus(result.Offline), result)
}

func (s *Server) handleTodayOffers(w http.ResponseWriter, r *http.Request) {
	city := strings.TrimSpace(r.URL.Query().Get("city"))
	state := strings.TrimSpace(r.URL.Query().Get("state"))
	if city == "" || state == "" {
		writeError(w, s.logger, r, fmt.Errorf("%w: city and state are required", services.ErrValidation))
		return
	}
	offers, err := s.offers.TodayOffers(r.Context(), s.session(r).Offers, city, state)
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	if offers == nil {
		offers = []*models.PriceContribution{}
	}
	writeJSON(w, http.StatusOK, offers)
}

func (s *Server) handleSubmitSuggestion(w http.ResponseWriter, r *http.Request) {
	var input models.SuggestionInput
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	claims := claimsFrom(r.Context())
	suggestion, err := s.suggestions.Submit(r.Context(), claims.AccountID, claims.Name, input)
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, suggestion)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if !s.connectivity.Online() {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "backend unreachable, data stays queued"})
		return
	}
	result, err := s.sync.SyncOfflineData(r.Context())
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	s.hub.Send(claimsFrom(r.Context()).AccountID, EventSync, result)
	writeJSON(w, http.StatusOK, result)
}

type syncStatusResponse struct {
	services.SyncStatus
	Online bool `json:"online"`
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.sync.Status()
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, syncStatusResponse{SyncStatus: status, Online: s.connectivity.Online()})
}

func (s *Server) handlePricingSummary(w http.ResponseWriter, r *http.Request) {
	var input models.ComparisonInput
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pricing.Analyze(input.Products, input.Stores))
}

type notificationsResponse struct {
	Notifications []models.Notification `json:"notifications"`
	UnreadCount   int                   `json:"unread_count"`
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	m := s.session(r).Notifications
	items := m.Notifications()
	if items == nil {
		items = []models.Notification{}
	}
	writeJSON(w, http.StatusOK, notificationsResponse{Notifications: items, UnreadCount: m.UnreadCount()})
}

func (s *Server) handleNotificationStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session(r).Notifications.Status())
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if err := s.session(r).Notifications.MarkAsRead(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	s.session(r).Notifications.MarkAllAsRead(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearNotifications(w http.ResponseWriter, r *http.Request) {
	s.session(r).Notifications.ClearAll(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRequestPermission(w http.ResponseWriter, r *http.Request) {
	permission, err := s.session(r).Notifications.RequestPermission(r.Context())
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]models.NotificationPermission{"permission": permission})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r)
	s.hub.ServeWS(w, r, sess.User.ID)
	s.hub.ConnectionChanged(sess.User.ID, sess.Notifications.Status())
}

type verifyResponse struct {
	Contribution    *models.PriceContribution `json:"contribution"`
	SimilarVerified int                       `json:"similar_verified"`
}

func (s *Server) handleVerifyContribution(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	admin := claimsFrom(r.Context()).AccountID

	contribution, err := s.offers.VerifyContribution(r.Context(), id, admin)
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}

	resp := verifyResponse{Contribution: contribution}
	if similar, _ := strconv.ParseBool(r.URL.Query().Get("similar")); similar {
		resp.SimilarVerified, err = s.offers.MarkSimilarVerified(r.Context(), id, admin)
		if err != nil {
			writeError(w, s.logger, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type statusRequest struct {
	Status models.SuggestionStatus `json:"status"`
	Notes  string                  `json:"notes"`
}

func (s *Server) handleSuggestionStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	suggestion, err := s.suggestions.UpdateStatus(r.Context(), id, req.Status, req.Notes)
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, suggestion)
}

func parseID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid id", services.ErrValidation)
	}
	return id, nil
}

// createdStatus is 202 for writes that were only queued locally.
func createdStatus(queued bool) int {
	if queued {
		return http.StatusAccepted
	}
	return http.StatusCreated
}
