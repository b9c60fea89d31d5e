package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/classgate/access-server/internal/audit"
	apperrors "github.com/classgate/access-server/internal/errors"
	"github.com/classgate/access-server/internal/util"
)

// AdminAuthMiddleware checks the bearer token against the configured
// bcrypt hash of the admin password.
type AdminAuthMiddleware struct {
	passwordHash string
	limiter      *AuthFailureLimiter
}

func NewAdminAuthMiddleware(passwordHash string, limiter *AuthFailureLimiter) *AdminAuthMiddleware {
	if limiter == nil {
		limiter = NewAuthFailureLimiter()
	}
	return &AdminAuthMiddleware{passwordHash: passwordHash, limiter: limiter}
}

func (m *AdminAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.passwordHash == "" {
			writeError(w, apperrors.Unavailable("Admin API is disabled"))
			return
		}

		ip := audit.ClientIP(r)
		if m.limiter.Blocked(ip) {
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventRateLimitExceed,
				Details: map[string]interface{}{"scope": "admin_auth"},
			})
			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, map[string]string{
				"error": "Too many failed attempts. Please try again later.",
			})
			return
		}

		token := extractToken(r)
		if token == "" {
			writeError(w, apperrors.Unauthorized("Missing authentication token"))
			return
		}

		if !util.CheckPasswordHash(token, m.passwordHash) {
			m.limiter.RecordFailure(ip)
			log.Warn().Str("ip", ip).Msg("admin auth: invalid token attempt")
			audit.LogFromRequest(r, audit.Event{Type: audit.EventAdminAuthFailure})
			writeError(w, apperrors.Unauthorized("Invalid token"))
			return
		}

		m.limiter.Reset(ip)
		next.ServeHTTP(w, r)
	})
}

func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	// EventSource cannot set headers.
	return r.URL.Query().Get("token")
}
