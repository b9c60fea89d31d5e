package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAdminAuthMiddleware(t *testing.T) {
	hash := hashPassword(t, "door-admin")

	t.Run("disabled without configured hash", func(t *testing.T) {
		handler := NewAdminAuthMiddleware("", nil).Handler(okHandler())

		req := httptest.NewRequest(http.MethodGet, "/admin/api/capture", nil)
		req.Header.Set("Authorization", "Bearer door-admin")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("rejects missing token", func(t *testing.T) {
		handler := NewAdminAuthMiddleware(hash, nil).Handler(okHandler())

		req := httptest.NewRequest(http.MethodGet, "/admin/api/capture", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")
	})

	t.Run("accepts bearer token", func(t *testing.T) {
		handler := NewAdminAuthMiddleware(hash, nil).Handler(okHandler())

		req := httptest.NewRequest(http.MethodGet, "/admin/api/capture", nil)
		req.Header.Set("Authorization", "Bearer door-admin")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("accepts query token", func(t *testing.T) {
		handler := NewAdminAuthMiddleware(hash, nil).Handler(okHandler())

		req := httptest.NewRequest(http.MethodGet, "/display/events?token=door-admin", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("blocks after repeated failures", func(t *testing.T) {
		handler := NewAdminAuthMiddleware(hash, NewAuthFailureLimiter()).Handler(okHandler())

		send := func(token string) int {
			req := httptest.NewRequest(http.MethodGet, "/admin/api/capture", nil)
			req.RemoteAddr = "10.1.1.1:4000"
			req.Header.Set("Authorization", "Bearer "+token)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			return rec.Code
		}

		for i := 0; i < authMaxFailures; i++ {
			assert.Equal(t, http.StatusUnauthorized, send("wrong"))
		}
		assert.Equal(t, http.StatusTooManyRequests, send("door-admin"))
	})
}

func TestAuthFailureLimiter(t *testing.T) {
	now := time.Date(2026, time.October, 19, 9, 0, 0, 0, time.UTC)
	l := NewAuthFailureLimiter()
	l.now = func() time.Time { return now }

	for i := 0; i < authMaxFailures-1; i++ {
		l.RecordFailure("a")
	}
	assert.False(t, l.Blocked("a"))

	l.RecordFailure("a")
	assert.True(t, l.Blocked("a"))
	assert.False(t, l.Blocked("b"))

	now = now.Add(authWindowDuration + time.Second)
	assert.False(t, l.Blocked("a"))

	for i := 0; i < authMaxFailures; i++ {
		l.RecordFailure("a")
	}
	l.Reset("a")
	assert.False(t, l.Blocked("a"))
}
