package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/oesperto/comparador/internal/notifications"
	"github.com/oesperto/comparador/internal/services"
)

type ctxKey int

const claimsKey ctxKey = iota

func claimsFrom(ctx context.Context) *services.TokenClaims {
	claims, _ := ctx.Value(claimsKey).(*services.TokenClaims)
	return claims
}

func userFrom(ctx context.Context) notifications.User {
	c := claimsFrom(ctx)
	return notifications.User{ID: c.AccountID, Name: c.Name, IsAdmin: c.IsAdmin}
}

// bearerToken reads the Authorization header. Browsers cannot set headers on
// a websocket upgrade, so the token query parameter is accepted too.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, s.logger, r, services.ErrInvalidToken)
			return
		}
		claims, err := s.auth.Authenticate(r.Context(), token)
		if err != nil {
			writeError(w, s.logger, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c := claimsFrom(r.Context()); c == nil || !c.IsAdmin {
			writeError(w, s.logger, r, services.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func userFromLogin(resp *services.LoginResponse) notifications.User {
	return notifications.User{ID: resp.AccountID, Name: resp.Name, IsAdmin: resp.IsAdmin}
}
