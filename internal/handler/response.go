package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	apperrors "github.com/classgate/access-server/internal/errors"
	"github.com/classgate/access-server/internal/httputil"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}

// decodeJSON reads an optional JSON body into dst. An empty body leaves dst
// untouched.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return apperrors.ValidationError("Invalid JSON body")
}

// writeResult writes v, or the error when the operation failed outright.
// Partial failures that still produced a value are reported alongside it.
func writeResult(w http.ResponseWriter, status int, v any, err error) {
	if err == nil {
		writeJSON(w, status, v)
		return
	}
	if appErr, ok := apperrors.AsAppError(err); ok && appErr.Code == apperrors.ErrCodeSideEffect && v != nil {
		writeJSON(w, status, map[string]any{
			"result":  v,
			"warning": appErr.Message,
		})
		return
	}
	writeError(w, err)
}
