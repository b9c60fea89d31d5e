package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/classgate/access-server/internal/audit"
	"github.com/classgate/access-server/internal/engine"
	apperrors "github.com/classgate/access-server/internal/errors"
	"github.com/classgate/access-server/internal/model"
	"github.com/classgate/access-server/internal/repository"
	"github.com/classgate/access-server/internal/service"
	"github.com/classgate/access-server/internal/util"
)

type AdminHandler struct {
	engine           *engine.Engine
	scheduleService  *service.ScheduleService
	enroller         *service.EnrollmentService
	notificationRepo repository.NotificationRepository
	auth             func(http.Handler) http.Handler
}

func NewAdminHandler(
	eng *engine.Engine,
	scheduleService *service.ScheduleService,
	enroller *service.EnrollmentService,
	notificationRepo repository.NotificationRepository,
	auth func(http.Handler) http.Handler,
) *AdminHandler {
	return &AdminHandler{
		engine:           eng,
		scheduleService:  scheduleService,
		enroller:         enroller,
		notificationRepo: notificationRepo,
		auth:             auth,
	}
}

func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.auth)

	// Capture session
	r.Get("/api/capture", h.Status)
	r.Post("/api/capture/individual", h.StartIndividual)
	r.Post("/api/capture/batch", h.StartBatch)
	r.Post("/api/capture/stop", h.Stop)
	r.Post("/api/capture/pause", h.TogglePause)
	r.Post("/api/capture/confirm", h.ConfirmIndividual)
	r.Delete("/api/capture/queue/last", h.RemoveLastQueued)
	r.Post("/api/capture/finish", h.FinishBatch)
	r.Post("/api/capture/cancel-all", h.CancelAll)
	r.Post("/api/scan", h.Scan)

	// Self-registration
	r.Get("/api/self-register", h.ListSelfRegister)
	r.Post("/api/self-register", h.CreateSelfRegister)
	r.Post("/api/self-register/links", h.GenerateLinks)
	r.Post("/api/self-register/from-pending", h.SelfRegisterFromPending)
	r.Delete("/api/self-register/await", h.ClearAwaiting)
	r.Post("/api/self-register/{token}/await", h.AwaitSelfRegister)
	r.Delete("/api/self-register/{token}", h.CancelSelfRegister)

	// Schedule and courses
	r.Get("/api/schedule", h.ListSlots)
	r.Post("/api/schedule", h.AddSlot)
	r.Delete("/api/schedule/{day}/{start}", h.RemoveSlot)
	r.Get("/api/courses", h.ListCourses)
	r.Post("/api/courses", h.AddCourse)

	// Enrollments and notifications
	r.Get("/api/enrollments", h.ListEnrollments)
	r.Post("/api/enrollments", h.Enroll)
	r.Get("/api/enrollments/{credential}", h.LookupEnrollment)
	r.Get("/api/notifications", h.ListNotifications)

	return r
}

func (h *AdminHandler) Status(w http.ResponseWriter, r *http.Request) {
	snap, err := h.engine.Status(r.Context())
	writeResult(w, http.StatusOK, snap, err)
}

func (h *AdminHandler) StartIndividual(w http.ResponseWriter, r *http.Request) {
	snap, err := h.engine.StartIndividual(r.Context())
	if err == nil {
		audit.LogFromRequest(r, audit.Event{
			Type:    audit.EventCaptureStart,
			Details: map[string]interface{}{"mode": string(model.CaptureModeIndividual)},
		})
	}
	writeResult(w, http.StatusOK, snap, err)
}

func (h *AdminHandler) StartBatch(w http.ResponseWriter, r *http.Request) {
	snap, err := h.engine.StartBatch(r.Context())
	if err == nil {
		audit.LogFromRequest(r, audit.Event{
			Type:    audit.EventCaptureStart,
			Details: map[string]interface{}{"mode": string(model.CaptureModeBatch)},
		})
	}
	writeResult(w, http.StatusOK, snap, err)
}

func (h *AdminHandler) Stop(w http.ResponseWriter, r *http.Request) {
	discarded, err := h.engine.StopCapture(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	audit.LogFromRequest(r, audit.Event{Type: audit.EventCaptureStop})
	writeJSON(w, http.StatusOK, map[string]any{"discarded": discarded})
}

func (h *AdminHandler) TogglePause(w http.ResponseWriter, r *http.Request) {
	paused, err := h.engine.TogglePause(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": paused})
}

func (h *AdminHandler) ConfirmIndividual(w http.ResponseWriter, r *http.Request) {
	var req engine.ConfirmParams
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	rec, err := h.engine.ConfirmIndividual(r.Context(), req)
	if rec == nil {
		writeError(w, err)
		return
	}
	audit.LogFromRequest(r, audit.Event{
		Type:       audit.EventEnrollmentCreate,
		Credential: rec.Credential.String(),
		Details:    map[string]interface{}{"subject": rec.Subject, "source": "individual_capture"},
	})
	writeResult(w, http.StatusCreated, rec, err)
}

func (h *AdminHandler) RemoveLastQueued(w http.ResponseWriter, r *http.Request) {
	credential, err := h.engine.RemoveLastQueued(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"removed": credential.String()})
}

func (h *AdminHandler) FinishBatch(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.FinishBatch(r.Context())
	if apperrors.HasCode(err, apperrors.ErrCodeInvalidState) {
		writeError(w, err)
		return
	}
	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventBatchFinish,
		Details: map[string]interface{}{"granted": res.Granted, "denied": res.Denied},
	})
	writeResult(w, http.StatusOK, res, err)
}

func (h *AdminHandler) CancelAll(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.CancelAll(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	audit.LogFromRequest(r, audit.Event{Type: audit.EventCancelAll})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AdminHandler) Scan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Credential string `json:"credential"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if util.IsBlank(req.Credential) {
		writeError(w, apperrors.MissingRequired("credential"))
		return
	}

	res, err := h.engine.Scan(r.Context(), model.Credential(req.Credential))
	writeScan(w, res, err)
}

func (h *AdminHandler) ListSelfRegister(w http.ResponseWriter, r *http.Request) {
	links, err := h.engine.ListSelfRegister(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": links,
		"total": len(links),
	})
}

func (h *AdminHandler) CreateSelfRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Credential string `json:"credential"`
		Subject    string `json:"subject"`
		Await      bool   `json:"await"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	link, err := h.engine.CreateSelfRegister(r.Context(), model.Credential(req.Credential), req.Subject)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.Await {
		if link, err = h.engine.AwaitSelfRegister(r.Context(), link.Token); err != nil {
			writeError(w, err)
			return
		}
	}
	audit.LogFromRequest(r, audit.Event{
		Type:       audit.EventSelfRegisterCreate,
		Credential: link.Credential.String(),
		Token:      util.MaskToken(link.Token),
	})
	writeJSON(w, http.StatusCreated, link)
}

func (h *AdminHandler) GenerateLinks(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Subject string `json:"subject"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	links, err := h.engine.GenerateSelfRegisterLinks(r.Context(), req.Subject)
	if apperrors.HasCode(err, apperrors.ErrCodeUnavailable) || apperrors.HasCode(err, apperrors.ErrCodeInvalidInput) {
		writeError(w, err)
		return
	}
	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventSelfRegisterCreate,
		Details: map[string]interface{}{"links": len(links), "subject": req.Subject},
	})

	body := map[string]any{"items": links, "total": len(links)}
	if err != nil {
		body["warning"] = err.Error()
	}
	writeJSON(w, http.StatusCreated, body)
}

func (h *AdminHandler) SelfRegisterFromPending(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Subject string `json:"subject"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	link, err := h.engine.SelfRegisterFromPending(r.Context(), req.Subject)
	if err != nil {
		writeError(w, err)
		return
	}
	audit.LogFromRequest(r, audit.Event{
		Type:       audit.EventSelfRegisterCreate,
		Credential: link.Credential.String(),
		Token:      util.MaskToken(link.Token),
	})
	writeJSON(w, http.StatusCreated, link)
}

func (h *AdminHandler) AwaitSelfRegister(w http.ResponseWriter, r *http.Request) {
	link, err := h.engine.AwaitSelfRegister(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

func (h *AdminHandler) ClearAwaiting(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.ClearAwaiting(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AdminHandler) CancelSelfRegister(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if err := h.engine.CancelSelfRegister(r.Context(), token); err != nil {
		writeError(w, err)
		return
	}
	audit.LogFromRequest(r, audit.Event{
		Type:  audit.EventSelfRegisterCancel,
		Token: util.MaskToken(token),
	})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AdminHandler) ListSlots(w http.ResponseWriter, r *http.Request) {
	slots, err := h.scheduleService.ListSlots(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": slots,
		"total": len(slots),
	})
}

func (h *AdminHandler) AddSlot(w http.ResponseWriter, r *http.Request) {
	var req service.AddSlotParams
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	slot, err := h.engine.AddSlot(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	audit.LogFromRequest(r, audit.Event{
		Type: audit.EventSlotCreate,
		Details: map[string]interface{}{
			"owner": slot.Owner, "day": slot.Day, "start": slot.Start, "end": slot.End,
		},
	})
	writeJSON(w, http.StatusCreated, slot)
}

func (h *AdminHandler) RemoveSlot(w http.ResponseWriter, r *http.Request) {
	day, err := strconv.Atoi(chi.URLParam(r, "day"))
	if err != nil {
		writeError(w, apperrors.InvalidInput("day", "must be a number"))
		return
	}
	start := chi.URLParam(r, "start")

	if err := h.engine.RemoveSlot(r.Context(), day, start); err != nil {
		writeError(w, err)
		return
	}
	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventSlotDelete,
		Details: map[string]interface{}{"day": day, "start": start},
	})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AdminHandler) ListCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := h.scheduleService.ListCourses(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": courses,
		"total": len(courses),
	})
}

func (h *AdminHandler) AddCourse(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Subject    string `json:"subject"`
		Instructor string `json:"instructor"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	course, err := h.engine.AddCourse(r.Context(), req.Subject, req.Instructor)
	if err != nil {
		writeError(w, err)
		return
	}
	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventCourseCreate,
		Details: map[string]interface{}{"subject": course.Subject},
	})
	writeJSON(w, http.StatusCreated, course)
}

func (h *AdminHandler) ListEnrollments(w http.ResponseWriter, r *http.Request) {
	subject := strings.TrimSpace(r.URL.Query().Get("subject"))
	if subject == "" {
		writeError(w, apperrors.MissingRequired("subject"))
		return
	}

	records, err := h.enroller.ListBySubject(r.Context(), subject)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": page(records, ParsePagination(r)),
		"total": len(records),
	})
}

func (h *AdminHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Credential string `json:"credential"`
		Name       string `json:"name"`
		AccountID  string `json:"accountId"`
		Subject    string `json:"subject"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	rec, err := h.engine.Enroll(r.Context(), service.EnrollParams{
		Credential: model.NormalizeCredential(req.Credential),
		Name:       req.Name,
		AccountID:  req.AccountID,
		Subject:    req.Subject,
	})
	if rec == nil {
		writeError(w, err)
		return
	}
	audit.LogFromRequest(r, audit.Event{
		Type:       audit.EventEnrollmentCreate,
		Credential: rec.Credential.String(),
		Details:    map[string]interface{}{"subject": rec.Subject, "source": "admin"},
	})
	writeResult(w, http.StatusCreated, rec, err)
}

func (h *AdminHandler) LookupEnrollment(w http.ResponseWriter, r *http.Request) {
	credential := model.NormalizeCredential(chi.URLParam(r, "credential"))

	rec, err := h.enroller.Lookup(r.Context(), credential)
	if err != nil {
		writeError(w, err)
		return
	}
	if rec == nil {
		writeError(w, apperrors.NotFound("Enrollment"))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *AdminHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	p := ParsePagination(r)

	notes, err := h.notificationRepo.ListRecent(r.Context(), p.Limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": notes,
		"total": len(notes),
	})
}

// writeScan reports a scan. A wrong-card rejection is an expected outcome
// and is returned with the routing details.
func writeScan(w http.ResponseWriter, res engine.ScanResult, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case apperrors.IsTransient(err):
		writeJSON(w, http.StatusConflict, map[string]any{
			"result": res,
			"error":  err.Error(),
			"code":   apperrors.ErrCodeWrongCard,
		})
	case res.Decision != nil:
		writeResult(w, http.StatusOK, res, err)
	default:
		writeError(w, err)
	}
}
