package middleware

import (
	"bytes"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/classgate/access-server/internal/audit"
	apperrors "github.com/classgate/access-server/internal/errors"
	"github.com/classgate/access-server/internal/util"
)

const DeviceSignatureHeader = "X-Device-Signature"

// DeviceSignatureMiddleware authenticates reader devices by an HMAC-SHA256
// of the request body keyed with the shared device secret.
type DeviceSignatureMiddleware struct {
	secret string
}

func NewDeviceSignatureMiddleware(secret string) *DeviceSignatureMiddleware {
	return &DeviceSignatureMiddleware{secret: secret}
}

func (m *DeviceSignatureMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.secret == "" {
			writeError(w, apperrors.Unavailable("Device endpoint is disabled"))
			return
		}

		signature := r.Header.Get(DeviceSignatureHeader)
		if signature == "" {
			log.Warn().Msg("device signature middleware: missing signature header")
			writeError(w, apperrors.Unauthorized("Missing signature"))
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			log.Error().Err(err).Msg("device signature middleware: failed to read body")
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
				"error": "Failed to read request body",
			})
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		computed := util.HmacSHA256(m.secret, string(body))
		if !util.ConstantTimeEqual(computed, signature) {
			log.Warn().Msg("device signature middleware: invalid signature")
			audit.LogFromRequest(r, audit.Event{Type: audit.EventDeviceSigFailure})
			writeError(w, apperrors.Unauthorized("Invalid signature"))
			return
		}

		next.ServeHTTP(w, r)
	})
}
