package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/classgate/access-server/internal/audit"
	"github.com/classgate/access-server/internal/engine"
	"github.com/classgate/access-server/internal/model"
	"github.com/classgate/access-server/internal/util"
)

// RegisterHandler serves the public self-registration link.
type RegisterHandler struct {
	engine *engine.Engine
}

func NewRegisterHandler(eng *engine.Engine) *RegisterHandler {
	return &RegisterHandler{engine: eng}
}

func (h *RegisterHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{token}", h.Resolve)
	r.Post("/{token}", h.Submit)
	return r
}

func (h *RegisterHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	sess, err := h.engine.ResolveSelfRegister(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"credential": sess.Credential,
		"subject":    sess.Subject,
		"expiresAt":  sess.ExpiresAt(),
	})
}

// Submit accepts either a JSON body or a posted form.
func (h *RegisterHandler) Submit(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	var req struct {
		Name      string `json:"name"`
		AccountID string `json:"accountId"`
		Subject   string `json:"subject"`
	}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid form body"})
			return
		}
		req.Name = r.PostForm.Get("name")
		req.AccountID = r.PostForm.Get("accountId")
		req.Subject = r.PostForm.Get("subject")
	} else if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	rec, err := h.engine.SelfRegisterSubmit(r.Context(), token, model.SelfRegisterSubmission{
		Name:      req.Name,
		AccountID: req.AccountID,
		Subject:   req.Subject,
	})
	if rec == nil {
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:       audit.EventSelfRegisterSubmit,
		Credential: rec.Credential.String(),
		Token:      util.MaskToken(token),
		Details:    map[string]interface{}{"subject": rec.Subject},
	})
	writeResult(w, http.StatusCreated, rec, err)
}
