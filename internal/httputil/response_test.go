package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/classgate/access-server/internal/errors"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   apperrors.ErrorCode
	}{
		{"validation", apperrors.InvalidInput("accountId", "must be 7 digits"), http.StatusBadRequest, apperrors.ErrCodeInvalidInput},
		{"not found", apperrors.NotFound("Token"), http.StatusNotFound, apperrors.ErrCodeNotFound},
		{"slot occupied", apperrors.SlotOccupied(1, "07:00"), http.StatusConflict, apperrors.ErrCodeSlotOccupied},
		{"wrong card", apperrors.WrongCard("AA"), http.StatusConflict, apperrors.ErrCodeWrongCard},
		{"side effect", apperrors.SideEffectFailed("attendance", errors.New("x")), http.StatusInternalServerError, apperrors.ErrCodeSideEffect},
		{"unavailable", apperrors.Unavailable("engine stopped"), http.StatusServiceUnavailable, apperrors.ErrCodeUnavailable},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, apperrors.ErrCodeInternal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tc.err)

			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.wantCode, body.Code)
			assert.NotEmpty(t, body.Error)
		})
	}
}
