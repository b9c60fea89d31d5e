package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classgate/access-server/internal/model"
)

func TestRegisterHandler(t *testing.T) {
	s := newTestServer(t)
	s.seedCourse(t, "Algebra")
	ctx := context.Background()

	link, err := s.engine.CreateSelfRegister(ctx, "C4", "Algebra")
	require.NoError(t, err)

	t.Run("resolves a live token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/register/"+link.Token, nil))

		require.Equal(t, http.StatusOK, rec.Code)
		body := decode[map[string]any](t, rec)
		assert.Equal(t, "C4", body["credential"])
		assert.Equal(t, "Algebra", body["subject"])
	})

	t.Run("unknown token is not found", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/register/nope", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid submission keeps the token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/register/"+link.Token, strings.NewReader(`{"name":"Eva","accountId":"12"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		_, err := s.engine.ResolveSelfRegister(ctx, link.Token)
		assert.NoError(t, err)
	})

	t.Run("form submission enrolls and consumes the token", func(t *testing.T) {
		form := url.Values{"name": {"Eva"}, "accountId": {"2222222"}}
		req := httptest.NewRequest(http.MethodPost, "/register/"+link.Token, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		enrolled := decode[model.EnrollmentRecord](t, rec)
		assert.Equal(t, model.Credential("C4"), enrolled.Credential)
		assert.Equal(t, "Algebra", enrolled.Subject)

		rec = httptest.NewRecorder()
		s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/register/"+link.Token, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
